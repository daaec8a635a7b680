// Package model contains the entities shared by the stores, services and API.
// Every struct carries json tags (API and JSON file store) and gorm tags (SQL
// store) so both backends persist the same shape.
package model

import (
	"bytes"
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// RawJSON stores a JSON document verbatim. Form schemas are arbitrary admin
// authored documents, so unknown keys must survive a round trip.
type RawJSON []byte

// MarshalJSON returns the stored document, or null when empty.
func (r RawJSON) MarshalJSON() ([]byte, error) {
	if len(r) == 0 {
		return []byte("null"), nil
	}
	return r, nil
}

// UnmarshalJSON copies the document so later decoder buffer reuse cannot
// corrupt it.
func (r *RawJSON) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*r = nil
		return nil
	}
	*r = append((*r)[:0], data...)
	return nil
}

// Value implements driver.Valuer; documents are stored as text.
func (r RawJSON) Value() (driver.Value, error) {
	if len(r) == 0 {
		return "{}", nil
	}
	return string(r), nil
}

// Scan implements sql.Scanner.
func (r *RawJSON) Scan(value any) error {
	switch v := value.(type) {
	case nil:
		*r = nil
	case []byte:
		*r = append(RawJSON(nil), v...)
	case string:
		*r = RawJSON(v)
	default:
		return fmt.Errorf("cannot scan type %T into RawJSON", value)
	}
	return nil
}

// Data is a generic value bag, keyed by step id and then field name for
// submissions.
type Data map[string]any

// Value implements driver.Valuer.
func (d Data) Value() (driver.Value, error) {
	return jsonValue(d)
}

// Scan implements sql.Scanner.
func (d *Data) Scan(value any) error {
	return jsonScan(value, d)
}

// Step returns the values submitted for one step, or an empty map when the
// step is missing or not an object.
func (d Data) Step(stepID string) map[string]any {
	if step, ok := d[stepID].(map[string]any); ok {
		return step
	}
	return map[string]any{}
}

// FileRef links a submission to an uploaded file.
type FileRef struct {
	FieldName string `json:"fieldName"`
	FileID    string `json:"fileId"`
	FileName  string `json:"fileName,omitempty"`
}

// FileRefs is the list of uploads attached to a submission.
type FileRefs []FileRef

// Value implements driver.Valuer.
func (f FileRefs) Value() (driver.Value, error) {
	if f == nil {
		return "[]", nil
	}
	return jsonValue(f)
}

// Scan implements sql.Scanner.
func (f *FileRefs) Scan(value any) error {
	return jsonScan(value, f)
}

func jsonValue(v any) (driver.Value, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

func jsonScan(value any, dst any) error {
	var data []byte
	switch v := value.(type) {
	case nil:
		return nil
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("cannot scan type %T into %T", value, dst)
	}
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, dst)
}
