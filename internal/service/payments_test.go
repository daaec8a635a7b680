package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dharsanguruparan/esubmit/internal/apperr"
	"github.com/dharsanguruparan/esubmit/internal/model"
)

func TestPaymentLifecycle(t *testing.T) {
	env := newEnv(t)
	ctx := context.Background()
	env.seed(t)

	res, err := env.subs.Submit(ctx, applicant, SampleFormID, SubmitInput{Data: completeApplication()})
	require.NoError(t, err)

	_, err = env.payments.Create(ctx, applicant, res.SubmissionID, PaymentInput{Amount: 0, PaymentMethod: "card"})
	assert.ErrorIs(t, err, apperr.ErrInvalid)
	_, err = env.payments.Create(ctx, applicant, res.SubmissionID, PaymentInput{Amount: 350})
	assert.ErrorIs(t, err, apperr.ErrInvalid)
	_, err = env.payments.Create(ctx, otherUser, res.SubmissionID, PaymentInput{Amount: 350, PaymentMethod: "card"})
	assert.ErrorIs(t, err, apperr.ErrForbidden)

	co, err := env.payments.Create(ctx, applicant, res.SubmissionID, PaymentInput{Amount: 350, PaymentMethod: "card", Currency: "usd"})
	require.NoError(t, err)
	assert.Equal(t, "USD", co.Currency)
	assert.Equal(t, model.PaymentPending, co.Status)
	assert.Equal(t, "/payments/"+co.PaymentID+"/process", co.PaymentURL)
	require.NotNil(t, co.ExpiresAt)

	_, err = env.payments.Create(ctx, applicant, res.SubmissionID, PaymentInput{Amount: 350, PaymentMethod: "card"})
	assert.ErrorIs(t, err, apperr.ErrConflict)

	sub, err := env.subs.Get(ctx, applicant, res.SubmissionID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusPendingPayment, sub.Status)

	pay, err := env.payments.GetBySubmission(ctx, applicant, res.SubmissionID)
	require.NoError(t, err)
	assert.Equal(t, "stripe", pay.PaymentGateway)
	assert.Equal(t, "Payment for submission "+res.SubmissionID, pay.Description)

	proc, err := env.payments.Process(ctx, applicant, pay.ID)
	require.NoError(t, err)
	assert.Equal(t, "/payments/"+pay.ID+"/complete", proc.PaymentURL)

	_, err = env.payments.Update(ctx, applicant, pay.ID, PaymentUpdate{Status: ptr(model.PaymentCompleted)})
	assert.ErrorIs(t, err, apperr.ErrForbidden)
	_, err = env.payments.Get(ctx, otherUser, pay.ID)
	assert.ErrorIs(t, err, apperr.ErrForbidden)

	_, err = env.payments.Update(ctx, reviewer, pay.ID, PaymentUpdate{Status: ptr(model.PaymentStatus("lost"))})
	assert.ErrorIs(t, err, apperr.ErrInvalid)

	done, err := env.payments.Update(ctx, reviewer, pay.ID, PaymentUpdate{
		Status:        ptr(model.PaymentCompleted),
		TransactionID: "txn-1",
		Metadata:      model.Data{"receipt": "R-1"},
	})
	require.NoError(t, err)
	require.NotNil(t, done.PaidAt)
	assert.Equal(t, "txn-1", done.TransactionID)
	assert.Equal(t, "R-1", done.Metadata["receipt"])

	sub, err = env.subs.Get(ctx, applicant, res.SubmissionID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusUnderReview, sub.Status)

	_, err = env.payments.Process(ctx, applicant, pay.ID)
	assert.ErrorIs(t, err, apperr.ErrInvalid)
}

func TestPaymentFailureAndMissing(t *testing.T) {
	env := newEnv(t)
	ctx := context.Background()
	env.seed(t)

	res, err := env.subs.Submit(ctx, applicant, SampleFormID, SubmitInput{Data: completeApplication()})
	require.NoError(t, err)
	_, err = env.payments.GetBySubmission(ctx, applicant, res.SubmissionID)
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	co, err := env.payments.Create(ctx, applicant, res.SubmissionID, PaymentInput{Amount: 1550, PaymentMethod: "fpx"})
	require.NoError(t, err)
	failed, err := env.payments.Update(ctx, reviewer, co.PaymentID, PaymentUpdate{Status: ptr(model.PaymentFailed), FailureReason: "declined"})
	require.NoError(t, err)
	require.NotNil(t, failed.FailedAt)
	assert.Equal(t, "declined", failed.FailureReason)
	assert.Nil(t, failed.PaidAt)

	sub, err := env.subs.Get(ctx, applicant, res.SubmissionID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusPendingPayment, sub.Status)

	_, err = env.payments.Get(ctx, reviewer, "nope")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	_, err = env.payments.Update(ctx, reviewer, "nope", PaymentUpdate{})
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestPaymentRequiresOpenSubmission(t *testing.T) {
	env := newEnv(t)
	ctx := context.Background()
	env.seed(t)

	draft, err := env.subs.SaveDraft(ctx, applicant, SampleFormID, SubmitInput{Data: model.Data{}})
	require.NoError(t, err)
	_, err = env.payments.Create(ctx, applicant, draft.SubmissionID, PaymentInput{Amount: 100, PaymentMethod: "card"})
	assert.ErrorIs(t, err, apperr.ErrInvalid)

	res, err := env.subs.Submit(ctx, applicant, SampleFormID, SubmitInput{Data: completeApplication()})
	require.NoError(t, err)
	_, err = env.subs.Review(ctx, reviewer, res.SubmissionID, ReviewInput{Status: ptr(model.StatusApproved)})
	require.NoError(t, err)

	_, err = env.payments.Create(ctx, applicant, res.SubmissionID, PaymentInput{Amount: 100, PaymentMethod: "card"})
	assert.ErrorIs(t, err, apperr.ErrApprovedLocked)
	_, err = env.payments.GetBySubmission(ctx, applicant, res.SubmissionID)
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	sub, err := env.subs.Get(ctx, applicant, res.SubmissionID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusApproved, sub.Status)
}

func TestPaymentLeavesRejectedStatus(t *testing.T) {
	env := newEnv(t)
	ctx := context.Background()
	env.seed(t)

	res, err := env.subs.Submit(ctx, applicant, SampleFormID, SubmitInput{Data: completeApplication()})
	require.NoError(t, err)
	_, err = env.subs.Review(ctx, reviewer, res.SubmissionID, ReviewInput{Status: ptr(model.StatusRejected)})
	require.NoError(t, err)

	_, err = env.payments.Create(ctx, applicant, res.SubmissionID, PaymentInput{Amount: 100, PaymentMethod: "card"})
	require.NoError(t, err)
	sub, err := env.subs.Get(ctx, applicant, res.SubmissionID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusRejected, sub.Status)
}

func TestAwaitsPayment(t *testing.T) {
	for st, want := range map[model.SubmissionStatus]bool{
		model.StatusSubmitted:      true,
		model.StatusUnderReview:    true,
		model.StatusRequestInfo:    true,
		model.StatusPendingPayment: false,
		model.StatusRejected:       false,
		model.StatusApproved:       false,
		model.StatusDraft:          false,
	} {
		assert.Equal(t, want, awaitsPayment(st), st)
	}
}
