package queue

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dharsanguruparan/esubmit/internal/logging"
)

type recorder struct {
	got []StatusPayload
	err error
}

func (r *recorder) Deliver(_ context.Context, p StatusPayload) error {
	r.got = append(r.got, p)
	return r.err
}

func payload() StatusPayload {
	return StatusPayload{
		SubmissionID:   "SUB-20240101-abcdef",
		FormID:         "labuan-company-management-license",
		Status:         "approved",
		PreviousStatus: "under-review",
		Recipient:      "user-1",
		ReviewNotes:    "All documents in order",
		ChangedAt:      time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
	}
}

func TestMessage(t *testing.T) {
	subject, body := payload().Message()
	assert.Equal(t, "Submission SUB-20240101-abcdef is now approved", subject)
	assert.Contains(t, body, "from under-review to approved")
	assert.Contains(t, body, "Reviewer notes: All documents in order")
	assert.NotContains(t, body, "Additional information")
}

func TestNotifierWithoutBrokerDeliversInline(t *testing.T) {
	rec := &recorder{}
	n := NewNotifier(nil, rec, logging.Discard())
	require.NoError(t, n.SubmissionStatusChanged(context.Background(), payload()))
	require.Len(t, rec.got, 1)
	assert.Equal(t, "SUB-20240101-abcdef", rec.got[0].SubmissionID)

	rec.err = errors.New("smtp down")
	assert.NoError(t, n.SubmissionStatusChanged(context.Background(), payload()))
}

func TestNotifierEnqueuesTask(t *testing.T) {
	mr := miniredis.RunT(t)
	client := asynq.NewClient(asynq.RedisClientOpt{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	rec := &recorder{}
	n := NewNotifier(client, rec, logging.Discard())
	require.NoError(t, n.SubmissionStatusChanged(context.Background(), payload()))

	assert.Empty(t, rec.got, "queued notifications are not delivered inline")
	pending, err := mr.List("asynq:{default}:pending")
	require.NoError(t, err)
	assert.Len(t, pending, 1)
}

func TestNotifierFallsBackWhenBrokerIsDown(t *testing.T) {
	mr := miniredis.RunT(t)
	client := asynq.NewClient(asynq.RedisClientOpt{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	mr.Close()

	rec := &recorder{}
	n := NewNotifier(client, rec, logging.Discard())
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, n.SubmissionStatusChanged(ctx, payload()))
	assert.Len(t, rec.got, 1)
}
