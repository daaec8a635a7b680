package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dharsanguruparan/esubmit/internal/apperr"
	"github.com/dharsanguruparan/esubmit/internal/model"
)

const twoStepSchema = `{"steps":[
	{"stepId":"s1","stepName":"One","fields":[{"fieldId":"n","fieldType":"text-input","fieldName":"name","label":"Name","required":true}]},
	{"stepId":"s2","stepName":"Two","fields":[]}
]}`

func TestSeedSampleIsIdempotent(t *testing.T) {
	env := newEnv(t)
	ctx := context.Background()
	env.seed(t)

	created, err := env.forms.SeedSample(ctx)
	require.NoError(t, err)
	assert.False(t, created)

	form, schema, err := env.forms.Schema(ctx, SampleFormID)
	require.NoError(t, err)
	assert.True(t, form.IsActive)
	assert.True(t, form.RequiresAuth)
	assert.Len(t, schema.Steps, 5)
	assert.Equal(t, SampleFormID, schema.FormID)
}

func TestFormCRUD(t *testing.T) {
	env := newEnv(t)
	ctx := context.Background()

	_, err := env.forms.Create(ctx, applicant, FormInput{FormID: "f1", Name: "F", SchemaData: model.RawJSON(twoStepSchema)})
	assert.ErrorIs(t, err, apperr.ErrForbidden)

	_, err = env.forms.Create(ctx, reviewer, FormInput{FormID: "f1", Name: "F", SchemaData: model.RawJSON(`{"steps":[]}`)})
	assert.ErrorIs(t, err, apperr.ErrInvalid)

	form, err := env.forms.Create(ctx, reviewer, FormInput{FormID: "f1", Name: "F", SchemaData: model.RawJSON(twoStepSchema)})
	require.NoError(t, err)
	assert.Equal(t, "1.0.0", form.Version)
	assert.True(t, form.IsActive)
	assert.Equal(t, reviewer.ID, form.CreatedBy)

	_, err = env.forms.Create(ctx, reviewer, FormInput{FormID: "f1", Name: "Again", SchemaData: model.RawJSON(twoStepSchema)})
	assert.ErrorIs(t, err, apperr.ErrConflict)

	updated, err := env.forms.Update(ctx, reviewer, "f1", FormPatch{Name: ptr("Renamed"), IsActive: ptr(false)})
	require.NoError(t, err)
	assert.Equal(t, "Renamed", updated.Name)
	assert.False(t, updated.IsActive)
	assert.JSONEq(t, twoStepSchema, string(updated.SchemaData))

	_, err = env.forms.Update(ctx, reviewer, "f1", FormPatch{Name: ptr("  ")})
	assert.ErrorIs(t, err, apperr.ErrInvalid)

	active, err := env.forms.List(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, active)
	inactive, err := env.forms.List(ctx, "inactive")
	require.NoError(t, err)
	assert.Len(t, inactive, 1)
	_, err = env.forms.List(ctx, "archived")
	assert.ErrorIs(t, err, apperr.ErrInvalid)

	require.NoError(t, env.forms.Delete(ctx, reviewer, form.ID))
	_, err = env.forms.Get(ctx, "f1")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	assert.ErrorIs(t, env.forms.Delete(ctx, reviewer, "f1"), apperr.ErrNotFound)
}
