package service

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dharsanguruparan/esubmit/internal/apperr"
	"github.com/dharsanguruparan/esubmit/internal/model"
	"github.com/dharsanguruparan/esubmit/internal/validation"
)

func TestMissingOfficerNameIsRejected(t *testing.T) {
	env := newEnv(t)
	ctx := context.Background()
	env.seed(t)

	data := completeApplication()
	delete(data.Step("step-1-general-info"), "officerName")

	_, err := env.subs.Submit(ctx, applicant, SampleFormID, SubmitInput{Data: data})
	var verr *apperr.ValidationError
	require.True(t, errors.As(err, &verr))
	require.Len(t, verr.Errors, 1)
	assert.Equal(t, "officerName", verr.Errors[0].FieldName)
	assert.Equal(t, "step-1-general-info", verr.Errors[0].StepID)
	assert.Equal(t, validation.CodeRequired, verr.Errors[0].Code)

	all, err := env.subs.List(ctx, reviewer, ListFilter{})
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestSubmitCollectsChecklistFiles(t *testing.T) {
	env := newEnv(t)
	ctx := context.Background()
	env.seed(t)

	res, err := env.subs.Submit(ctx, applicant, SampleFormID, SubmitInput{
		Data:  completeApplication(),
		Files: model.FileRefs{{FieldName: "extra", FileID: "doc-extra"}, {FieldName: "dup", FileID: "doc-kyc"}},
	})
	require.NoError(t, err)
	assert.Equal(t, model.StatusSubmitted, res.Status)
	assert.Regexp(t, `^SUB-\d{8}-[0-9a-f]{6}$`, res.SubmissionID)
	assert.Equal(t, "5-7 business days", res.EstimatedReviewTime)

	sub, err := env.subs.Get(ctx, applicant, res.SubmissionID)
	require.NoError(t, err)
	ids := make([]string, 0, len(sub.Files))
	for _, f := range sub.Files {
		ids = append(ids, f.FileID)
	}
	assert.Equal(t, []string{
		"doc-financials", "doc-resolution", "doc-incorporation", "doc-structure",
		"doc-kyc", "doc-memorandum", "doc-passport", "doc-extra",
	}, ids)
	assert.Equal(t, []string{"submitted"}, env.notes.statuses())
}

func TestSubmitRequiresSignInForProtectedForms(t *testing.T) {
	env := newEnv(t)
	env.seed(t)

	_, err := env.subs.Submit(context.Background(), nil, SampleFormID, SubmitInput{Data: completeApplication()})
	assert.ErrorIs(t, err, apperr.ErrUnauthorized)
}

func TestValidateSingleStep(t *testing.T) {
	env := newEnv(t)
	ctx := context.Background()
	env.seed(t)

	data := model.Data{"step-1-general-info": completeApplication().Step("step-1-general-info")}
	res, err := env.subs.Validate(ctx, SampleFormID, data, "step-1-general-info")
	require.NoError(t, err)
	assert.True(t, res.Valid)

	res, err = env.subs.Validate(ctx, SampleFormID, data, "")
	require.NoError(t, err)
	assert.False(t, res.Valid)

	_, err = env.subs.Validate(ctx, SampleFormID, data, "step-9")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestDraftLifecycle(t *testing.T) {
	env := newEnv(t)
	ctx := context.Background()
	env.seed(t)

	partial := model.Data{"step-1-general-info": map[string]any{"officerName": "Jane"}}
	draft, err := env.subs.SaveDraft(ctx, applicant, SampleFormID, SubmitInput{Data: partial})
	require.NoError(t, err)
	assert.Equal(t, model.StatusDraft, draft.Status)
	assert.Nil(t, draft.SubmittedAt)

	_, err = env.subs.UpdateDraft(ctx, otherUser, draft.SubmissionID, SubmitInput{Data: partial})
	assert.ErrorIs(t, err, apperr.ErrForbidden)

	_, err = env.subs.SubmitDraft(ctx, applicant, draft.SubmissionID)
	assert.ErrorIs(t, err, apperr.ErrInvalid)

	_, err = env.subs.UpdateDraft(ctx, applicant, draft.SubmissionID, SubmitInput{Data: completeApplication()})
	require.NoError(t, err)
	submitted, err := env.subs.SubmitDraft(ctx, applicant, draft.SubmissionID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusSubmitted, submitted.Status)
	require.NotNil(t, submitted.SubmittedAt)

	_, err = env.subs.UpdateDraft(ctx, applicant, draft.SubmissionID, SubmitInput{Data: partial})
	assert.ErrorIs(t, err, apperr.ErrNotEditable)
	assert.ErrorIs(t, env.subs.Delete(ctx, applicant, draft.SubmissionID), apperr.ErrNotDeletable)
}

func TestDeleteDraft(t *testing.T) {
	env := newEnv(t)
	ctx := context.Background()
	env.seed(t)

	draft, err := env.subs.SaveDraft(ctx, applicant, SampleFormID, SubmitInput{Data: model.Data{}})
	require.NoError(t, err)

	assert.ErrorIs(t, env.subs.Delete(ctx, nil, draft.ID), apperr.ErrUnauthorized)
	assert.ErrorIs(t, env.subs.Delete(ctx, otherUser, draft.ID), apperr.ErrForbidden)
	require.NoError(t, env.subs.Delete(ctx, applicant, draft.ID))
	_, err = env.subs.Get(ctx, applicant, draft.ID)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestReviewRules(t *testing.T) {
	env := newEnv(t)
	ctx := context.Background()
	env.seed(t)

	draft, err := env.subs.SaveDraft(ctx, applicant, SampleFormID, SubmitInput{Data: model.Data{}})
	require.NoError(t, err)
	_, err = env.subs.Review(ctx, reviewer, draft.ID, ReviewInput{Status: ptr(model.StatusApproved)})
	assert.ErrorIs(t, err, apperr.ErrReviewNotAllowed)

	res, err := env.subs.Submit(ctx, applicant, SampleFormID, SubmitInput{Data: completeApplication()})
	require.NoError(t, err)

	_, err = env.subs.Review(ctx, applicant, res.SubmissionID, ReviewInput{Status: ptr(model.StatusApproved)})
	assert.ErrorIs(t, err, apperr.ErrForbidden)
	_, err = env.subs.Review(ctx, reviewer, res.SubmissionID, ReviewInput{Status: ptr(model.SubmissionStatus("archived"))})
	assert.ErrorIs(t, err, apperr.ErrInvalid)
	_, err = env.subs.Review(ctx, reviewer, res.SubmissionID, ReviewInput{Status: ptr(model.StatusDraft)})
	assert.ErrorIs(t, err, apperr.ErrInvalid)
	_, err = env.subs.Review(ctx, superAdmin, res.SubmissionID, ReviewInput{Status: ptr(model.StatusDraft)})
	assert.ErrorIs(t, err, apperr.ErrInvalid)
	still, err := env.subs.Get(ctx, applicant, res.SubmissionID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusSubmitted, still.Status)

	reviewed, err := env.subs.Review(ctx, reviewer, res.SubmissionID, ReviewInput{
		Status:      ptr(model.StatusApproved),
		ReviewNotes: ptr(`<script>alert(1)</script>All <b>good</b>`),
	})
	require.NoError(t, err)
	assert.Equal(t, model.StatusApproved, reviewed.Status)
	assert.Equal(t, "All good", reviewed.ReviewNotes)
	assert.Equal(t, reviewer.ID, reviewed.ReviewedBy)
	require.NotNil(t, reviewed.ReviewedAt)

	_, err = env.subs.Review(ctx, reviewer, res.SubmissionID, ReviewInput{Status: ptr(model.StatusRejected)})
	assert.ErrorIs(t, err, apperr.ErrApprovedLocked)

	reopened, err := env.subs.Review(ctx, superAdmin, res.SubmissionID, ReviewInput{
		Status:        ptr(model.StatusRequestInfo),
		RequestedInfo: ptr("Certified copy of passport"),
	})
	require.NoError(t, err)
	assert.Equal(t, model.StatusRequestInfo, reopened.Status)
	assert.Equal(t, "Certified copy of passport", reopened.RequestedInfo)

	assert.Equal(t, []string{"submitted", "approved", "request_info"}, env.notes.statuses())
	last := env.notes.sent[len(env.notes.sent)-1]
	assert.Equal(t, "approved", last.PreviousStatus)
	assert.Equal(t, applicant.ID, last.Recipient)
}

func TestListScopesAndPagination(t *testing.T) {
	env := newEnv(t)
	ctx := context.Background()
	env.seed(t)

	for i := 0; i < 3; i++ {
		_, err := env.subs.SaveDraft(ctx, applicant, SampleFormID, SubmitInput{Data: model.Data{}})
		require.NoError(t, err)
	}
	_, err := env.subs.SaveDraft(ctx, otherUser, SampleFormID, SubmitInput{Data: model.Data{}})
	require.NoError(t, err)

	_, err = env.subs.List(ctx, nil, ListFilter{})
	assert.ErrorIs(t, err, apperr.ErrUnauthorized)

	mine, err := env.subs.List(ctx, applicant, ListFilter{})
	require.NoError(t, err)
	assert.Len(t, mine, 3)

	all, err := env.subs.List(ctx, reviewer, ListFilter{FormID: SampleFormID, Status: model.StatusDraft})
	require.NoError(t, err)
	assert.Len(t, all, 4)

	page, err := env.subs.List(ctx, reviewer, ListFilter{Page: 2, PageSize: 3})
	require.NoError(t, err)
	assert.Len(t, page, 1)

	none, err := env.subs.List(ctx, reviewer, ListFilter{Status: model.StatusApproved})
	require.NoError(t, err)
	assert.Empty(t, none)

	_, err = env.subs.List(ctx, reviewer, ListFilter{Status: "archived"})
	assert.ErrorIs(t, err, apperr.ErrInvalid)

	_, err = env.subs.Get(ctx, otherUser, mine[0].SubmissionID)
	assert.ErrorIs(t, err, apperr.ErrForbidden)
}

func TestStatistics(t *testing.T) {
	env := newEnv(t)
	ctx := context.Background()
	env.seed(t)
	base := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	tick := 0
	env.subs.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Minute)
	}

	_, err := env.subs.SaveDraft(ctx, applicant, SampleFormID, SubmitInput{Data: model.Data{}})
	require.NoError(t, err)
	first, err := env.subs.Submit(ctx, applicant, SampleFormID, SubmitInput{Data: completeApplication()})
	require.NoError(t, err)
	second, err := env.subs.Submit(ctx, applicant, SampleFormID, SubmitInput{Data: completeApplication()})
	require.NoError(t, err)
	_, err = env.subs.Review(ctx, reviewer, first.SubmissionID, ReviewInput{Status: ptr(model.StatusRejected)})
	require.NoError(t, err)

	_, err = env.subs.Statistics(ctx, applicant)
	assert.ErrorIs(t, err, apperr.ErrForbidden)

	stats, err := env.subs.Statistics(ctx, reviewer)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.TotalSubmissions)
	assert.Equal(t, 1, stats.PendingSubmissions)
	assert.Equal(t, 1, stats.RejectedSubmissions)
	assert.Equal(t, 1, stats.DraftSubmissions)
	assert.Zero(t, stats.ApprovedSubmissions)
	assert.Equal(t, 1, stats.TotalForms)
	require.Len(t, stats.RecentActivity, 3)
	assert.Equal(t, second.SubmissionID, stats.RecentActivity[0].ID)
}

func TestInactiveFormRejectsSubmissions(t *testing.T) {
	env := newEnv(t)
	ctx := context.Background()
	env.seed(t)
	_, err := env.forms.Update(ctx, reviewer, SampleFormID, FormPatch{IsActive: ptr(false)})
	require.NoError(t, err)

	_, err = env.subs.SaveDraft(ctx, applicant, SampleFormID, SubmitInput{Data: model.Data{}})
	assert.ErrorIs(t, err, apperr.ErrInvalid)
}

func TestPaginate(t *testing.T) {
	items := make([]int, 250)
	for i := range items {
		items[i] = i
	}
	assert.Len(t, paginate(items, 0, 0), defaultPageSize)
	assert.Len(t, paginate(items, 1, 1000), maxPageSize)
	assert.Equal(t, []int{240, 241, 242, 243, 244, 245, 246, 247, 248, 249}, paginate(items, 25, 10))
	assert.Empty(t, paginate(items, 30, 10))
	assert.Empty(t, paginate(items, 26, 10))
	assert.Empty(t, paginate(items, math.MaxInt, 100))
	assert.Empty(t, paginate(items, 100000000000000000, 100))
	assert.Empty(t, paginate([]int{}, 1, 10))
}
