package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/microcosm-cc/bluemonday"
	"github.com/sirupsen/logrus"

	"github.com/dharsanguruparan/esubmit/internal/apperr"
	"github.com/dharsanguruparan/esubmit/internal/auth"
	"github.com/dharsanguruparan/esubmit/internal/logging"
	"github.com/dharsanguruparan/esubmit/internal/model"
	"github.com/dharsanguruparan/esubmit/internal/queue"
	"github.com/dharsanguruparan/esubmit/internal/store"
	"github.com/dharsanguruparan/esubmit/internal/validation"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
	recentActivity  = 10

	estimatedReviewTime = "5-7 business days"
)

// Submissions runs the submission lifecycle: draft, submit, review.
type Submissions struct {
	stores   *store.Stores
	forms    *Forms
	files    *Files
	notifier Notifier
	policy   *bluemonday.Policy
	log      *logrus.Entry
	now      clock
}

// NewSubmissions returns the submission service. notifier may be nil.
func NewSubmissions(stores *store.Stores, forms *Forms, files *Files, notifier Notifier, log *logrus.Logger) *Submissions {
	if notifier == nil {
		notifier = nopNotifier{}
	}
	return &Submissions{
		stores:   stores,
		forms:    forms,
		files:    files,
		notifier: notifier,
		policy:   bluemonday.StrictPolicy(),
		log:      logging.Component(log, "submissions"),
	}
}

// SubmitInput carries the submitted values and any explicitly attached files.
type SubmitInput struct {
	Data  model.Data     `json:"data"`
	Files model.FileRefs `json:"files,omitempty"`
}

// SubmitResult is returned after a successful submission.
type SubmitResult struct {
	FormID              string                 `json:"formId"`
	SubmissionID        string                 `json:"submissionId"`
	Status              model.SubmissionStatus `json:"status"`
	Message             string                 `json:"message"`
	SubmittedAt         time.Time              `json:"submittedAt"`
	EstimatedReviewTime string                 `json:"estimatedReviewTime"`
}

// ListFilter narrows List.
type ListFilter struct {
	FormID   string
	Status   model.SubmissionStatus
	Page     int
	PageSize int
}

// ReviewInput is an admin decision. Nil fields are left unchanged.
type ReviewInput struct {
	Status        *model.SubmissionStatus `json:"status"`
	ReviewNotes   *string                 `json:"reviewNotes"`
	RequestedInfo *string                 `json:"requestedInfo"`
}

// Activity is one entry of the admin dashboard feed.
type Activity struct {
	ID          string    `json:"id"`
	Type        string    `json:"type"`
	Description string    `json:"description"`
	Timestamp   time.Time `json:"timestamp"`
}

// Statistics summarizes submissions for the admin dashboard.
type Statistics struct {
	TotalSubmissions    int            `json:"totalSubmissions"`
	PendingSubmissions  int            `json:"pendingSubmissions"`
	ApprovedSubmissions int            `json:"approvedSubmissions"`
	RejectedSubmissions int            `json:"rejectedSubmissions"`
	DraftSubmissions    int            `json:"draftSubmissions"`
	ByStatus            map[string]int `json:"byStatus"`
	TotalForms          int            `json:"totalForms"`
	RecentActivity      []Activity     `json:"recentActivity"`
}

// Validate checks data against a form, optionally limited to one step.
func (s *Submissions) Validate(ctx context.Context, formID string, data model.Data, stepID string) (validation.Result, error) {
	_, schema, err := s.forms.Schema(ctx, formID)
	if err != nil {
		return validation.Result{}, err
	}
	if stepID != "" {
		if _, ok := schema.Step(stepID); !ok {
			return validation.Result{}, apperr.NotFound("step", stepID)
		}
		return validation.ValidateStep(schema, data, stepID), nil
	}
	return validation.Validate(schema, data), nil
}

// Submit validates and records a final submission.
func (s *Submissions) Submit(ctx context.Context, p *auth.Principal, formID string, in SubmitInput) (*SubmitResult, error) {
	form, schema, err := s.forms.Schema(ctx, formID)
	if err != nil {
		return nil, err
	}
	if err := s.checkForm(form, p); err != nil {
		return nil, err
	}
	if res := validation.Validate(schema, in.Data); !res.Valid {
		return nil, res.Err()
	}
	now := s.now.now()
	sub := &model.Submission{
		ID:            uuid.NewString(),
		SubmissionID:  model.NewSubmissionID(now),
		FormID:        form.FormID,
		SubmittedData: in.Data,
		Status:        model.StatusSubmitted,
		SubmittedAt:   timePtr(now),
		Files:         mergeRefs(checklistFiles(schema, in.Data), in.Files),
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if p != nil {
		sub.SubmittedBy = p.ID
	}
	if err := s.stores.Submissions.Create(ctx, sub); err != nil {
		return nil, err
	}
	s.files.link(ctx, sub.SubmissionID, sub.Files)
	s.log.WithFields(logrus.Fields{"submission": sub.SubmissionID, "form": sub.FormID}).Info("submission received")
	s.notify(ctx, sub, "")
	return &SubmitResult{
		FormID:              sub.FormID,
		SubmissionID:        sub.SubmissionID,
		Status:              sub.Status,
		Message:             "Form submitted successfully",
		SubmittedAt:         now,
		EstimatedReviewTime: estimatedReviewTime,
	}, nil
}

// SaveDraft stores unvalidated data as a new draft.
func (s *Submissions) SaveDraft(ctx context.Context, p *auth.Principal, formID string, in SubmitInput) (*model.Submission, error) {
	form, schema, err := s.forms.Schema(ctx, formID)
	if err != nil {
		return nil, err
	}
	if err := s.checkForm(form, p); err != nil {
		return nil, err
	}
	now := s.now.now()
	sub := &model.Submission{
		ID:            uuid.NewString(),
		SubmissionID:  model.NewSubmissionID(now),
		FormID:        form.FormID,
		SubmittedData: in.Data,
		Status:        model.StatusDraft,
		Files:         mergeRefs(checklistFiles(schema, in.Data), in.Files),
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if p != nil {
		sub.SubmittedBy = p.ID
	}
	if err := s.stores.Submissions.Create(ctx, sub); err != nil {
		return nil, err
	}
	s.files.link(ctx, sub.SubmissionID, sub.Files)
	return sub, nil
}

// UpdateDraft replaces the data of a draft or rejected submission.
func (s *Submissions) UpdateDraft(ctx context.Context, p *auth.Principal, id string, in SubmitInput) (*model.Submission, error) {
	current, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}
	_, schema, err := s.forms.Schema(ctx, current.FormID)
	if err != nil {
		return nil, err
	}
	refs := mergeRefs(checklistFiles(schema, in.Data), in.Files)
	sub, err := s.stores.Submissions.Update(ctx, current.ID, func(sub *model.Submission) error {
		if err := ownsSubmission(p, sub); err != nil {
			return err
		}
		if !sub.Status.Editable() {
			return fmt.Errorf("%w (status %q)", apperr.ErrNotEditable, sub.Status)
		}
		sub.SubmittedData = in.Data
		sub.Files = refs
		if sub.SubmittedBy == "" && p != nil {
			sub.SubmittedBy = p.ID
		}
		sub.UpdatedAt = s.now.now()
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.files.link(ctx, sub.SubmissionID, sub.Files)
	return sub, nil
}

// SubmitDraft validates a draft or rejected submission and moves it to
// submitted.
func (s *Submissions) SubmitDraft(ctx context.Context, p *auth.Principal, id string) (*model.Submission, error) {
	current, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}
	_, schema, err := s.forms.Schema(ctx, current.FormID)
	if err != nil {
		return nil, err
	}
	if res := validation.Validate(schema, current.SubmittedData); !res.Valid {
		return nil, res.Err()
	}
	var previous model.SubmissionStatus
	sub, err := s.stores.Submissions.Update(ctx, current.ID, func(sub *model.Submission) error {
		if err := ownsSubmission(p, sub); err != nil {
			return err
		}
		if !sub.Status.Editable() {
			return fmt.Errorf("%w (status %q)", apperr.ErrNotEditable, sub.Status)
		}
		previous = sub.Status
		now := s.now.now()
		sub.Status = model.StatusSubmitted
		sub.SubmittedAt = timePtr(now)
		sub.UpdatedAt = now
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.notify(ctx, sub, previous)
	return sub, nil
}

// List returns the caller's submissions, or every submission for admins.
func (s *Submissions) List(ctx context.Context, p *auth.Principal, f ListFilter) ([]model.Submission, error) {
	if p == nil {
		return nil, apperr.ErrUnauthorized
	}
	q := store.AllSubmissions()
	if !p.IsAdmin() {
		q = store.SubmissionsBy(p.ID)
	}
	if f.FormID != "" {
		formID := f.FormID
		q = q.And(store.ScopeWhere("form_id = ?", formID),
			func(sub model.Submission) bool { return sub.FormID == formID })
	}
	if f.Status != "" {
		if !f.Status.Valid() {
			return nil, apperr.Invalid("unknown status %q", f.Status)
		}
		status := f.Status
		q = q.And(store.ScopeWhere("status = ?", status),
			func(sub model.Submission) bool { return sub.Status == status })
	}
	subs, err := s.stores.Submissions.List(ctx, q)
	if err != nil {
		return nil, err
	}
	return paginate(subs, f.Page, f.PageSize), nil
}

// Get returns a submission visible to the caller.
func (s *Submissions) Get(ctx context.Context, p *auth.Principal, id string) (*model.Submission, error) {
	sub, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := ownsSubmission(p, sub); err != nil {
		return nil, err
	}
	return sub, nil
}

// Delete removes a draft. Owners and admins may delete.
func (s *Submissions) Delete(ctx context.Context, p *auth.Principal, id string) error {
	sub, err := s.get(ctx, id)
	if err != nil {
		return err
	}
	if p == nil {
		return apperr.ErrUnauthorized
	}
	if err := ownsSubmission(p, sub); err != nil {
		return err
	}
	if sub.Status != model.StatusDraft {
		return fmt.Errorf("%w (status %q)", apperr.ErrNotDeletable, sub.Status)
	}
	if err := s.stores.Submissions.Delete(ctx, sub.ID); err != nil {
		return err
	}
	s.log.WithField("submission", sub.SubmissionID).Info("draft deleted")
	return nil
}

// Review records an admin decision on a submission.
func (s *Submissions) Review(ctx context.Context, p *auth.Principal, id string, in ReviewInput) (*model.Submission, error) {
	if err := requireAdmin(p); err != nil {
		return nil, err
	}
	if in.Status != nil && !in.Status.Valid() {
		return nil, apperr.Invalid("unknown status %q", *in.Status)
	}
	if in.Status != nil && *in.Status == model.StatusDraft {
		return nil, apperr.Invalid("%q is not a review outcome", *in.Status)
	}
	current, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}
	var previous model.SubmissionStatus
	sub, err := s.stores.Submissions.Update(ctx, current.ID, func(sub *model.Submission) error {
		if sub.Status == model.StatusApproved && !p.IsSuperAdmin() {
			return apperr.ErrApprovedLocked
		}
		if sub.Status == model.StatusDraft {
			return apperr.ErrReviewNotAllowed
		}
		previous = sub.Status
		if in.Status != nil {
			sub.Status = *in.Status
		}
		if in.ReviewNotes != nil {
			sub.ReviewNotes = s.sanitize(*in.ReviewNotes)
		}
		if in.RequestedInfo != nil {
			sub.RequestedInfo = s.sanitize(*in.RequestedInfo)
		}
		now := s.now.now()
		sub.ReviewedBy = p.ID
		sub.ReviewedAt = timePtr(now)
		sub.UpdatedAt = now
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.log.WithFields(logrus.Fields{
		"submission": sub.SubmissionID,
		"from":       previous,
		"to":         sub.Status,
		"reviewer":   p.ID,
	}).Info("submission reviewed")
	if sub.Status != previous {
		s.notify(ctx, sub, previous)
	}
	return sub, nil
}

// Statistics summarizes every submission for the admin dashboard.
func (s *Submissions) Statistics(ctx context.Context, p *auth.Principal) (*Statistics, error) {
	if err := requireAdmin(p); err != nil {
		return nil, err
	}
	subs, err := s.stores.Submissions.List(ctx, store.AllSubmissions())
	if err != nil {
		return nil, err
	}
	forms, err := s.stores.Forms.Count(ctx, store.FormsByStatus(store.FormStatusAll))
	if err != nil {
		return nil, err
	}
	stats := &Statistics{
		TotalSubmissions: len(subs),
		ByStatus:         make(map[string]int),
		TotalForms:       forms,
		RecentActivity:   []Activity{},
	}
	for _, sub := range subs {
		stats.ByStatus[string(sub.Status)]++
	}
	stats.PendingSubmissions = stats.ByStatus[string(model.StatusSubmitted)] + stats.ByStatus[string(model.StatusUnderReview)]
	stats.ApprovedSubmissions = stats.ByStatus[string(model.StatusApproved)]
	stats.RejectedSubmissions = stats.ByStatus[string(model.StatusRejected)]
	stats.DraftSubmissions = stats.ByStatus[string(model.StatusDraft)]

	sort.SliceStable(subs, func(i, j int) bool { return subs[i].CreatedAt.After(subs[j].CreatedAt) })
	for i, sub := range subs {
		if i == recentActivity {
			break
		}
		ts := sub.CreatedAt
		if sub.SubmittedAt != nil {
			ts = *sub.SubmittedAt
		}
		stats.RecentActivity = append(stats.RecentActivity, Activity{
			ID:          sub.SubmissionID,
			Type:        "submission",
			Description: fmt.Sprintf("New submission %s for form %s", sub.SubmissionID, sub.FormID),
			Timestamp:   ts,
		})
	}
	return stats, nil
}

func (s *Submissions) get(ctx context.Context, id string) (*model.Submission, error) {
	sub, err := s.stores.Submissions.Get(ctx, id)
	if errors.Is(err, apperr.ErrNotFound) {
		return nil, apperr.NotFound("submission", id)
	}
	return sub, err
}

func (s *Submissions) checkForm(form *model.Form, p *auth.Principal) error {
	if !form.IsActive {
		return apperr.Invalid("form %q is not accepting submissions", form.FormID)
	}
	if form.RequiresAuth && p == nil {
		return fmt.Errorf("%w: form %q requires sign in", apperr.ErrUnauthorized, form.FormID)
	}
	return nil
}

func (s *Submissions) sanitize(text string) string {
	return strings.TrimSpace(s.policy.Sanitize(text))
}

func (s *Submissions) notify(ctx context.Context, sub *model.Submission, previous model.SubmissionStatus) {
	err := s.notifier.SubmissionStatusChanged(ctx, queue.StatusPayload{
		SubmissionID:   sub.SubmissionID,
		FormID:         sub.FormID,
		Status:         string(sub.Status),
		PreviousStatus: string(previous),
		Recipient:      sub.SubmittedBy,
		ReviewNotes:    sub.ReviewNotes,
		RequestedInfo:  sub.RequestedInfo,
		ChangedAt:      sub.UpdatedAt,
	})
	if err != nil {
		s.log.WithError(err).WithField("submission", sub.SubmissionID).Warn("notification failed")
	}
}

// ownsSubmission lets admins see everything and owners see their own.
// Submissions made without signing in are reachable by id alone.
func ownsSubmission(p *auth.Principal, sub *model.Submission) error {
	if p.IsAdmin() || sub.SubmittedBy == "" {
		return nil
	}
	if p == nil {
		return apperr.ErrUnauthorized
	}
	if p.ID != sub.SubmittedBy {
		return apperr.Forbidden("you can only access your own submissions")
	}
	return nil
}

// checklistFiles collects the uploads recorded in every document checklist of
// the schema, in stable key order.
func checklistFiles(schema *validation.Schema, data model.Data) model.FileRefs {
	var refs model.FileRefs
	stepIDs := make([]string, 0)
	fields := schema.ChecklistFields()
	for id := range fields {
		stepIDs = append(stepIDs, id)
	}
	sort.Strings(stepIDs)
	for _, stepID := range stepIDs {
		values := data.Step(stepID)
		for _, field := range fields[stepID] {
			state, _ := values[field.FieldName].(map[string]any)
			keys := make([]string, 0, len(state))
			for k := range state {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, key := range keys {
				entry, _ := state[key].(map[string]any)
				uploaded, _ := entry["uploaded"].(bool)
				fileID, _ := entry["fileId"].(string)
				if !uploaded || fileID == "" {
					continue
				}
				name, _ := entry["fileName"].(string)
				if name == "" {
					name = fileID
				}
				refs = append(refs, model.FileRef{FieldName: key, FileID: fileID, FileName: name})
			}
		}
	}
	return refs
}

// mergeRefs appends extra to refs, skipping file ids already present.
func mergeRefs(refs, extra model.FileRefs) model.FileRefs {
	seen := make(map[string]bool, len(refs))
	for _, r := range refs {
		seen[r.FileID] = true
	}
	for _, r := range extra {
		if r.FileID == "" || seen[r.FileID] {
			continue
		}
		seen[r.FileID] = true
		refs = append(refs, r)
	}
	return refs
}

func paginate[T any](items []T, page, size int) []T {
	if size <= 0 {
		size = defaultPageSize
	}
	if size > maxPageSize {
		size = maxPageSize
	}
	if page <= 0 {
		page = 1
	}
	if page-1 >= (len(items)+size-1)/size {
		return []T{}
	}
	start := (page - 1) * size
	end := start + size
	if end > len(items) {
		end = len(items)
	}
	return items[start:end]
}
