package validation

import (
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/dharsanguruparan/esubmit/internal/apperr"
)

// Error codes reported in FieldError.Code.
const (
	CodeRequired        = "REQUIRED"
	CodeMinLength       = "MIN_LENGTH"
	CodeMaxLength       = "MAX_LENGTH"
	CodePatternMismatch = "PATTERN_MISMATCH"
	CodeInvalidEmail    = "INVALID_EMAIL"
	CodeInvalidOption   = "INVALID_OPTION"
)

// supportingDocuments is exempt from its required check when the sibling
// checklist reports every required document as uploaded.
const supportingDocumentsField = "supportingDocuments"

// Result is the outcome of a validation run.
type Result struct {
	Valid  bool                `json:"valid"`
	Errors []apperr.FieldError `json:"errors"`
}

// Err returns a *apperr.ValidationError when the result is invalid.
func (r Result) Err() error {
	if r.Valid {
		return nil
	}
	return &apperr.ValidationError{Errors: r.Errors}
}

// Validate checks every step of the schema. Errors follow schema order: steps
// outer, fields inner. Only the top-level fields of a step are checked.
func Validate(schema *Schema, data map[string]any) Result {
	return run(schema, data, "")
}

// ValidateStep restricts validation to a single step.
func ValidateStep(schema *Schema, data map[string]any, stepID string) Result {
	return run(schema, data, stepID)
}

func run(schema *Schema, data map[string]any, only string) Result {
	errs := []apperr.FieldError{}
	if schema != nil {
		for _, step := range schema.Steps {
			if only != "" && step.StepID != only {
				continue
			}
			values, _ := data[step.StepID].(map[string]any)
			if values == nil {
				values = map[string]any{}
			}
			for _, field := range step.Fields {
				errs = append(errs, checkField(step, field, values)...)
			}
		}
	}
	return Result{Valid: len(errs) == 0, Errors: errs}
}

func checkField(step Step, field Field, values map[string]any) []apperr.FieldError {
	value := values[field.FieldName]
	fail := func(code, msg string) apperr.FieldError {
		return apperr.FieldError{
			FieldID:   field.FieldID,
			FieldName: field.FieldName,
			StepID:    step.StepID,
			Message:   msg,
			Code:      code,
		}
	}
	custom := func(def string) string {
		if field.Validation.ErrorMessage != "" {
			return field.Validation.ErrorMessage
		}
		return def
	}

	if field.FieldName == supportingDocumentsField && field.FieldType.Upload() && checklistComplete(step, values) {
		return nil
	}
	if isEmpty(field.FieldType, value) {
		if field.Required {
			return []apperr.FieldError{fail(CodeRequired, field.displayName()+" is required")}
		}
		return nil
	}

	var errs []apperr.FieldError
	switch {
	case field.FieldType.Textual():
		text := fmt.Sprint(value)
		length := utf8.RuneCountInString(text)
		rules := field.Validation
		if rules.MinLength != nil && length < *rules.MinLength {
			errs = append(errs, fail(CodeMinLength,
				custom(fmt.Sprintf("%s must be at least %d characters", field.displayName(), *rules.MinLength))))
		}
		if rules.MaxLength != nil && length > *rules.MaxLength {
			errs = append(errs, fail(CodeMaxLength,
				custom(fmt.Sprintf("%s must be at most %d characters", field.displayName(), *rules.MaxLength))))
		}
		if rules.Pattern != "" {
			if re := compilePattern(rules.Pattern); re != nil && !re.MatchString(text) {
				errs = append(errs, fail(CodePatternMismatch,
					custom(field.displayName()+" format is invalid")))
			}
		}
		if field.FieldType.Email() && (!strings.Contains(text, "@") || !strings.Contains(text, ".")) {
			errs = append(errs, fail(CodeInvalidEmail,
				custom(field.displayName()+" must be a valid email address")))
		}
	case field.FieldType.Select():
		if !validOption(field.Options, value) {
			errs = append(errs, fail(CodeInvalidOption,
				custom(field.displayName()+" must be one of the available options")))
		}
	}
	return errs
}

// isEmpty treats nil, "", empty lists, empty objects and an unchecked
// checkbox as missing. Nothing else counts as empty.
func isEmpty(t FieldType, value any) bool {
	switch v := value.(type) {
	case nil:
		return true
	case string:
		return v == ""
	case []any:
		return len(v) == 0
	case map[string]any:
		return len(v) == 0
	case bool:
		return t == TypeCheckbox && !v
	}
	return false
}

func checklistComplete(step Step, values map[string]any) bool {
	for _, f := range step.Fields {
		if !f.FieldType.Checklist() {
			continue
		}
		state, ok := values[f.FieldName].(map[string]any)
		if !ok || len(state) == 0 {
			return false
		}
		required := 0
		for _, doc := range f.Documents {
			if !doc.Required {
				continue
			}
			required++
			entry, _ := state[doc.ID].(map[string]any)
			if uploaded, _ := entry["uploaded"].(bool); !uploaded {
				return false
			}
		}
		return required > 0
	}
	return false
}

func validOption(options []Option, value any) bool {
	if list, ok := value.([]any); ok {
		for _, v := range list {
			if !hasOption(options, v) {
				return false
			}
		}
		return true
	}
	return hasOption(options, value)
}

func hasOption(options []Option, value any) bool {
	for _, opt := range options {
		if reflect.DeepEqual(opt.Value, value) {
			return true
		}
	}
	return false
}

var patterns sync.Map // pattern -> *regexp.Regexp, nil when invalid

// compilePattern anchors the pattern at the start of the value, matching how
// schema authors expect a prefix match. Invalid patterns return nil and are
// skipped.
func compilePattern(p string) *regexp.Regexp {
	if cached, ok := patterns.Load(p); ok {
		re, _ := cached.(*regexp.Regexp)
		return re
	}
	re, err := regexp.Compile(`^(?:` + p + `)`)
	if err != nil {
		patterns.Store(p, (*regexp.Regexp)(nil))
		return nil
	}
	patterns.Store(p, re)
	return re
}
