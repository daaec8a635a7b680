// Package validation checks submitted form data against a form schema.
package validation

import (
	"encoding/json"
	"fmt"
	"strings"
)

// FieldType is the schema's tag for how a field is rendered and checked.
type FieldType string

const (
	TypeTextInput         FieldType = "text-input"
	TypeTextarea          FieldType = "textarea"
	TypeEmail             FieldType = "email"
	TypeInputEmail        FieldType = "input-email"
	TypePhone             FieldType = "phone"
	TypePassword          FieldType = "password"
	TypeSelect            FieldType = "select"
	TypeRadio             FieldType = "radio"
	TypeCheckbox          FieldType = "checkbox"
	TypeFileUpload        FieldType = "file-upload"
	TypeUpload            FieldType = "upload"
	TypeDocumentChecklist FieldType = "document-checklist"
	TypeLabuanChecklist   FieldType = "labuan-document-checklist"
	TypeRepeater          FieldType = "repeater"
	TypeTable             FieldType = "table"
)

// Textual fields get length, pattern and (for email types) address checks.
func (t FieldType) Textual() bool {
	if strings.HasPrefix(string(t), "input-") {
		return true
	}
	switch t {
	case TypeTextInput, "text", TypeTextarea, TypeEmail, TypePhone, TypePassword:
		return true
	}
	return false
}

// Email fields must look like an address.
func (t FieldType) Email() bool {
	return t == TypeInputEmail || t == TypeEmail
}

// Select fields must hold one of the declared option values.
func (t FieldType) Select() bool {
	return strings.HasPrefix(string(t), "select-") || t == TypeSelect || t == TypeRadio
}

// Upload fields hold uploaded file references.
func (t FieldType) Upload() bool {
	return t == TypeFileUpload || t == TypeUpload
}

// Checklist fields track which required documents were uploaded.
func (t FieldType) Checklist() bool {
	return t == TypeDocumentChecklist || t == TypeLabuanChecklist
}

// Schema is the parsed form of Form.SchemaData.
type Schema struct {
	FormID string `json:"formId,omitempty"`
	Steps  []Step `json:"steps"`
}

// Step groups fields shown together.
type Step struct {
	StepID   string  `json:"stepId"`
	StepName string  `json:"stepName,omitempty"`
	Fields   []Field `json:"fields"`
}

// Field is one input inside a step.
type Field struct {
	FieldID    string     `json:"fieldId"`
	FieldName  string     `json:"fieldName"`
	FieldType  FieldType  `json:"fieldType"`
	Label      string     `json:"label,omitempty"`
	Required   bool       `json:"required,omitempty"`
	Validation Rules      `json:"validation,omitempty"`
	Options    []Option   `json:"options,omitempty"`
	Documents  []Document `json:"documents,omitempty"`
	Fields     []Field    `json:"fields,omitempty"`
}

// Rules are the optional constraints on textual fields.
type Rules struct {
	MinLength    *int   `json:"minLength,omitempty"`
	MaxLength    *int   `json:"maxLength,omitempty"`
	Pattern      string `json:"pattern,omitempty"`
	ErrorMessage string `json:"errorMessage,omitempty"`
}

// Option is one choice of a select field. Values may be any JSON scalar.
type Option struct {
	Value any    `json:"value"`
	Label string `json:"label,omitempty"`
}

// Document is one entry of a document checklist.
type Document struct {
	ID       string `json:"id"`
	Label    string `json:"label,omitempty"`
	Required bool   `json:"required,omitempty"`
}

// ParseSchema decodes a stored form schema.
func ParseSchema(data []byte) (*Schema, error) {
	var s Schema
	if len(data) == 0 {
		return &s, nil
	}
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse form schema: %w", err)
	}
	return &s, nil
}

// displayName is used in default error messages.
func (f Field) displayName() string {
	if f.Label != "" {
		return f.Label
	}
	return f.FieldName
}

// Step returns the step with the given id.
func (s *Schema) Step(stepID string) (Step, bool) {
	for _, st := range s.Steps {
		if st.StepID == stepID {
			return st, true
		}
	}
	return Step{}, false
}

// ChecklistFields returns every checklist field with the step it lives in.
func (s *Schema) ChecklistFields() map[string][]Field {
	out := make(map[string][]Field)
	for _, st := range s.Steps {
		for _, f := range st.Fields {
			if f.FieldType.Checklist() {
				out[st.StepID] = append(out[st.StepID], f)
			}
		}
	}
	return out
}
