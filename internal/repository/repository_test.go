package repository

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/dharsanguruparan/esubmit/internal/model"
)

func setupDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "test.db")), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(model.All()...))
	return db
}

func TestSubmissionLookupByEitherKey(t *testing.T) {
	ctx := context.Background()
	repo := New[model.Submission](setupDB(t), "id", "submission_id")

	sub := &model.Submission{
		ID:            "0b6c1c8e-0000-4000-8000-000000000001",
		SubmissionID:  "SUB-20240101-abcdef",
		FormID:        "form-a",
		Status:        model.StatusDraft,
		SubmittedData: model.Data{"step-1": map[string]any{"officerName": "Jane"}},
	}
	require.NoError(t, repo.Create(ctx, sub))

	for _, key := range []string{sub.ID, sub.SubmissionID} {
		got, err := repo.Get(ctx, key)
		require.NoError(t, err)
		assert.Equal(t, "Jane", got.SubmittedData.Step("step-1")["officerName"])
	}

	_, err := repo.Get(ctx, "missing")
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestUpdateRollsBackOnMutateError(t *testing.T) {
	ctx := context.Background()
	repo := New[model.Form](setupDB(t), "id", "form_id")
	require.NoError(t, repo.Create(ctx, &model.Form{ID: "1", FormID: "f", Name: "Before", SchemaData: model.RawJSON(`{}`)}))

	boom := errors.New("boom")
	_, err := repo.Update(ctx, "f", func(f *model.Form) error {
		f.Name = "After"
		return boom
	})
	assert.ErrorIs(t, err, boom)

	got, err := repo.Get(ctx, "f")
	require.NoError(t, err)
	assert.Equal(t, "Before", got.Name)

	updated, err := repo.Update(ctx, "1", func(f *model.Form) error {
		f.Name = "After"
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, "After", updated.Name)
}

func TestUniqueViolationIsTranslated(t *testing.T) {
	ctx := context.Background()
	repo := New[model.Payment](setupDB(t))
	p := model.Payment{ID: "p1", SubmissionID: "SUB-1", Amount: 350, Currency: "USD", PaymentMethod: "card", PaymentGateway: "stub", Status: model.PaymentPending}
	require.NoError(t, repo.Create(ctx, &p))

	dup := p
	dup.ID = "p2"
	err := repo.Create(ctx, &dup)
	assert.ErrorIs(t, err, gorm.ErrDuplicatedKey)
}

func TestListCountAndDelete(t *testing.T) {
	ctx := context.Background()
	repo := New[model.Session](setupDB(t))
	now := time.Now().UTC()
	for i, exp := range []time.Time{now.Add(-time.Hour), now.Add(time.Hour), now.Add(2 * time.Hour)} {
		s := model.Session{ID: string(rune('a' + i)), TokenHash: "h", SubjectID: "u1", Role: model.RoleUser, CreatedAt: now, ExpiresAt: exp}
		require.NoError(t, repo.Create(ctx, &s))
	}

	live := func(db *gorm.DB) *gorm.DB { return db.Where("expires_at > ?", now) }
	n, err := repo.Count(ctx, live)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	list, err := repo.List(ctx, live, "expires_at desc", 1)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "c", list[0].ID)

	removed, err := repo.DeleteWhere(ctx, func(db *gorm.DB) *gorm.DB { return db.Where("expires_at <= ?", now) })
	require.NoError(t, err)
	assert.EqualValues(t, 1, removed)

	require.NoError(t, repo.Delete(ctx, "b"))
	assert.ErrorIs(t, repo.Delete(ctx, "b"), ErrNotFound)
}
