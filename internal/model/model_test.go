package model

import (
	"encoding/json"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSubmissionID(t *testing.T) {
	now := time.Date(2024, 3, 9, 12, 0, 0, 0, time.UTC)
	id := NewSubmissionID(now)
	assert.Regexp(t, regexp.MustCompile(`^SUB-20240309-[0-9a-f]{6}$`), id)
}

func TestRawJSONKeepsUnknownKeys(t *testing.T) {
	in := `{"formId":"f","schemaData":{"steps":[],"theme":{"color":"blue"}}}`
	var f Form
	require.NoError(t, json.Unmarshal([]byte(in), &f))
	assert.JSONEq(t, `{"steps":[],"theme":{"color":"blue"}}`, string(f.SchemaData))

	v, err := f.SchemaData.Value()
	require.NoError(t, err)
	var back RawJSON
	require.NoError(t, back.Scan(v))
	assert.JSONEq(t, string(f.SchemaData), string(back))
}

func TestDataValuerScanner(t *testing.T) {
	d := Data{"step-1": map[string]any{"officerName": "Jane"}}
	v, err := d.Value()
	require.NoError(t, err)

	var back Data
	require.NoError(t, back.Scan([]byte(v.(string))))
	assert.Equal(t, "Jane", back.Step("step-1")["officerName"])
	assert.Empty(t, back.Step("missing"))
}

func TestLookupKeys(t *testing.T) {
	s := Submission{ID: "uuid-1", SubmissionID: "SUB-20240101-abcdef"}
	assert.True(t, s.Matches("uuid-1"))
	assert.True(t, s.Matches("SUB-20240101-abcdef"))
	assert.False(t, s.Matches(""))

	f := FileRecord{ID: "uuid-2", FileID: "client-file", FilePath: "/srv/x"}
	assert.True(t, f.Matches("client-file"))
	assert.Empty(t, f.Public().FilePath)
	assert.Equal(t, "/srv/x", f.FilePath)
}

func TestStatusRules(t *testing.T) {
	assert.True(t, StatusDraft.Editable())
	assert.True(t, StatusRejected.Editable())
	assert.False(t, StatusApproved.Editable())
	assert.False(t, SubmissionStatus("archived").Valid())
	assert.True(t, RoleSuperAdmin.IsAdmin())
	assert.False(t, RoleUser.IsAdmin())
}
