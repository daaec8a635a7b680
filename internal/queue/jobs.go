package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"

	"github.com/dharsanguruparan/esubmit/internal/metrics"
)

const (
	// SubmissionStatusTask is scheduled each time a submission changes status.
	SubmissionStatusTask = "notify:submission-status"
)

// StatusPayload is serialized into the task payload so the worker knows whom
// to notify and what changed.
type StatusPayload struct {
	SubmissionID   string    `json:"submission_id"`
	FormID         string    `json:"form_id"`
	Status         string    `json:"status"`
	PreviousStatus string    `json:"previous_status,omitempty"`
	Recipient      string    `json:"recipient,omitempty"`
	ReviewNotes    string    `json:"review_notes,omitempty"`
	RequestedInfo  string    `json:"requested_info,omitempty"`
	ChangedAt      time.Time `json:"changed_at"`
}

// Message renders the notification email.
func (p StatusPayload) Message() (subject, body string) {
	subject = fmt.Sprintf("Submission %s is now %s", p.SubmissionID, p.Status)
	body = fmt.Sprintf("Your submission %s for form %s changed from %s to %s on %s.",
		p.SubmissionID, p.FormID, orDash(p.PreviousStatus), p.Status, p.ChangedAt.UTC().Format(time.RFC1123))
	if p.ReviewNotes != "" {
		body += "\n\nReviewer notes: " + p.ReviewNotes
	}
	if p.RequestedInfo != "" {
		body += "\n\nAdditional information requested: " + p.RequestedInfo
	}
	return subject, body
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// EnqueueStatus enqueues a status notification job.
func EnqueueStatus(ctx context.Context, client *asynq.Client, payload StatusPayload) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	task := asynq.NewTask(SubmissionStatusTask, data)
	if _, err := client.EnqueueContext(ctx, task, asynq.MaxRetry(5)); err != nil {
		return fmt.Errorf("enqueue status task: %w", err)
	}
	return nil
}

// Deliverer sends a notification synchronously.
type Deliverer interface {
	Deliver(ctx context.Context, payload StatusPayload) error
}

// Notifier hands status changes to the asynq queue when a broker is
// configured. Without one, or when enqueueing fails, delivery runs inline.
type Notifier struct {
	client *asynq.Client
	inline Deliverer
	log    *logrus.Entry
}

// NewNotifier returns a Notifier. client may be nil.
func NewNotifier(client *asynq.Client, inline Deliverer, log *logrus.Logger) *Notifier {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Notifier{client: client, inline: inline, log: log.WithField("component", "notifier")}
}

// SubmissionStatusChanged implements the service notifier. Failures are
// logged; a notification never fails the status change that caused it.
func (n *Notifier) SubmissionStatusChanged(ctx context.Context, payload StatusPayload) error {
	if n.client != nil {
		err := EnqueueStatus(ctx, n.client, payload)
		if err == nil {
			metrics.Notifications.WithLabelValues("queued").Inc()
			return nil
		}
		n.log.WithError(err).WithField("submission", payload.SubmissionID).Warn("enqueue failed, delivering inline")
	}
	metrics.Notifications.WithLabelValues("inline").Inc()
	if n.inline == nil {
		return nil
	}
	if err := n.inline.Deliver(ctx, payload); err != nil {
		n.log.WithError(err).WithField("submission", payload.SubmissionID).Warn("inline delivery failed")
	}
	return nil
}
