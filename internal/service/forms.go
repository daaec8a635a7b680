package service

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/dharsanguruparan/esubmit/internal/apperr"
	"github.com/dharsanguruparan/esubmit/internal/auth"
	"github.com/dharsanguruparan/esubmit/internal/logging"
	"github.com/dharsanguruparan/esubmit/internal/model"
	"github.com/dharsanguruparan/esubmit/internal/store"
	"github.com/dharsanguruparan/esubmit/internal/validation"
)

//go:embed sample_form.json
var sampleFormSchema []byte

// SampleFormID is the id of the built-in licence application form.
const SampleFormID = "labuan-company-management-license"

// Forms manages form definitions.
type Forms struct {
	stores *store.Stores
	log    *logrus.Entry
	now    clock
}

// NewForms returns the form service.
func NewForms(stores *store.Stores, log *logrus.Logger) *Forms {
	return &Forms{stores: stores, log: logging.Component(log, "forms")}
}

// FormInput creates a form.
type FormInput struct {
	FormID        string        `json:"formId"`
	Name          string        `json:"name"`
	Description   string        `json:"description"`
	Category      string        `json:"category"`
	Version       string        `json:"version"`
	SchemaData    model.RawJSON `json:"schemaData"`
	IsActive      *bool         `json:"isActive"`
	RequiresAuth  bool          `json:"requiresAuth"`
	EstimatedTime string        `json:"estimatedTime"`
}

// FormPatch is a partial form update. Nil fields are left alone.
type FormPatch struct {
	Name          *string       `json:"name"`
	Description   *string       `json:"description"`
	Category      *string       `json:"category"`
	Version       *string       `json:"version"`
	SchemaData    model.RawJSON `json:"schemaData"`
	IsActive      *bool         `json:"isActive"`
	RequiresAuth  *bool         `json:"requiresAuth"`
	EstimatedTime *string       `json:"estimatedTime"`
}

// List returns forms filtered by status: active, inactive or all.
func (f *Forms) List(ctx context.Context, status string) ([]model.Form, error) {
	switch status {
	case "":
		status = store.FormStatusActive
	case store.FormStatusActive, store.FormStatusInactive, store.FormStatusAll:
	default:
		return nil, apperr.Invalid("unknown form status %q", status)
	}
	return f.stores.Forms.List(ctx, store.FormsByStatus(status))
}

// Get returns a form by id or formId.
func (f *Forms) Get(ctx context.Context, id string) (*model.Form, error) {
	form, err := f.stores.Forms.Get(ctx, id)
	if errors.Is(err, apperr.ErrNotFound) {
		return nil, apperr.NotFound("form", id)
	}
	return form, err
}

// Schema returns a form's parsed schema.
func (f *Forms) Schema(ctx context.Context, id string) (*model.Form, *validation.Schema, error) {
	form, err := f.Get(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	schema, err := validation.ParseSchema(form.SchemaData)
	if err != nil {
		return nil, nil, err
	}
	if schema.FormID == "" {
		schema.FormID = form.FormID
	}
	return form, schema, nil
}

// Create stores a new form. A duplicate formId is a conflict.
func (f *Forms) Create(ctx context.Context, p *auth.Principal, in FormInput) (*model.Form, error) {
	if err := requireAdmin(p); err != nil {
		return nil, err
	}
	in.FormID = strings.TrimSpace(in.FormID)
	if in.FormID == "" || strings.TrimSpace(in.Name) == "" {
		return nil, apperr.Invalid("formId and name are required")
	}
	if err := checkSchema(in.SchemaData); err != nil {
		return nil, err
	}
	if _, err := f.stores.Forms.Get(ctx, in.FormID); err == nil {
		return nil, apperr.Conflict("form %q already exists", in.FormID)
	} else if !errors.Is(err, apperr.ErrNotFound) {
		return nil, err
	}
	now := f.now.now()
	form := &model.Form{
		ID:            uuid.NewString(),
		FormID:        in.FormID,
		Name:          in.Name,
		Description:   in.Description,
		Category:      in.Category,
		Version:       in.Version,
		SchemaData:    in.SchemaData,
		IsActive:      in.IsActive == nil || *in.IsActive,
		RequiresAuth:  in.RequiresAuth,
		EstimatedTime: in.EstimatedTime,
		CreatedAt:     now,
		UpdatedAt:     now,
		CreatedBy:     p.ID,
		UpdatedBy:     p.ID,
	}
	if form.Version == "" {
		form.Version = "1.0.0"
	}
	if err := f.stores.Forms.Create(ctx, form); err != nil {
		return nil, err
	}
	f.log.WithField("formId", form.FormID).Info("form created")
	return form, nil
}

// Update applies a partial update.
func (f *Forms) Update(ctx context.Context, p *auth.Principal, id string, patch FormPatch) (*model.Form, error) {
	if err := requireAdmin(p); err != nil {
		return nil, err
	}
	if len(patch.SchemaData) > 0 {
		if err := checkSchema(patch.SchemaData); err != nil {
			return nil, err
		}
	}
	form, err := f.stores.Forms.Update(ctx, id, func(form *model.Form) error {
		setString(&form.Name, patch.Name)
		setString(&form.Description, patch.Description)
		setString(&form.Category, patch.Category)
		setString(&form.Version, patch.Version)
		setString(&form.EstimatedTime, patch.EstimatedTime)
		if patch.IsActive != nil {
			form.IsActive = *patch.IsActive
		}
		if patch.RequiresAuth != nil {
			form.RequiresAuth = *patch.RequiresAuth
		}
		if len(patch.SchemaData) > 0 {
			form.SchemaData = patch.SchemaData
		}
		if strings.TrimSpace(form.Name) == "" {
			return apperr.Invalid("name cannot be empty")
		}
		form.UpdatedBy = p.ID
		form.UpdatedAt = f.now.now()
		return nil
	})
	if errors.Is(err, apperr.ErrNotFound) {
		return nil, apperr.NotFound("form", id)
	}
	return form, err
}

// Delete removes a form permanently.
func (f *Forms) Delete(ctx context.Context, p *auth.Principal, id string) error {
	if err := requireAdmin(p); err != nil {
		return err
	}
	form, err := f.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := f.stores.Forms.Delete(ctx, form.ID); err != nil {
		return err
	}
	f.log.WithField("formId", form.FormID).Info("form deleted")
	return nil
}

// SeedSample installs the built-in licence application form when it is
// missing. It reports whether the form was created.
func (f *Forms) SeedSample(ctx context.Context) (bool, error) {
	if _, err := f.stores.Forms.Get(ctx, SampleFormID); err == nil {
		return false, nil
	} else if !errors.Is(err, apperr.ErrNotFound) {
		return false, err
	}
	var meta struct {
		FormName string `json:"formName"`
		Version  string `json:"version"`
	}
	if err := json.Unmarshal(sampleFormSchema, &meta); err != nil {
		return false, err
	}
	now := f.now.now()
	form := &model.Form{
		ID:            uuid.NewString(),
		FormID:        SampleFormID,
		Name:          meta.FormName,
		Description:   "Application for Licence to Carry on Labuan Company Management Business under Section 131, Labuan Financial Services and Securities Act 2010",
		Category:      "Licensing",
		Version:       meta.Version,
		SchemaData:    append(model.RawJSON(nil), sampleFormSchema...),
		IsActive:      true,
		RequiresAuth:  true,
		EstimatedTime: "2-3 hours",
		CreatedAt:     now,
		UpdatedAt:     now,
		CreatedBy:     "system",
	}
	if err := f.stores.Forms.Create(ctx, form); err != nil {
		if errors.Is(err, apperr.ErrConflict) {
			return false, nil
		}
		return false, err
	}
	f.log.WithField("formId", SampleFormID).Info("sample form seeded")
	return true, nil
}

func checkSchema(raw model.RawJSON) error {
	if len(raw) == 0 {
		return apperr.Invalid("schemaData is required")
	}
	schema, err := validation.ParseSchema(raw)
	if err != nil {
		return apperr.Invalid("schemaData: %v", err)
	}
	if len(schema.Steps) == 0 {
		return apperr.Invalid("schemaData must declare at least one step")
	}
	return nil
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}
