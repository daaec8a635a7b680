package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"

	"github.com/dharsanguruparan/esubmit/internal/apperr"
	"github.com/dharsanguruparan/esubmit/internal/queue"
	"github.com/dharsanguruparan/esubmit/internal/store"
)

// Processor is plugged into the asynq worker loop. Email delivery is a stub:
// the rendered message is written to the log.
type Processor struct {
	stores *store.Stores
	log    *logrus.Entry
}

// NewProcessor constructs a worker processor.
func NewProcessor(stores *store.Stores, log *logrus.Logger) *Processor {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Processor{stores: stores, log: log.WithField("component", "worker")}
}

// Handler registers the notification job handler.
func (p *Processor) Handler() *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.HandleFunc(queue.SubmissionStatusTask, p.handleStatus)
	return mux
}

func (p *Processor) handleStatus(ctx context.Context, task *asynq.Task) error {
	var payload queue.StatusPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("decode payload: %v: %w", err, asynq.SkipRetry)
	}
	return p.Deliver(ctx, payload)
}

// Deliver renders and "sends" the notification. A missing recipient is not
// retried.
func (p *Processor) Deliver(ctx context.Context, payload queue.StatusPayload) error {
	entry := p.log.WithField("submission", payload.SubmissionID)
	if payload.Recipient == "" {
		entry.Info("submission has no owner, skipping notification")
		return nil
	}
	user, err := p.stores.Users.Get(ctx, payload.Recipient)
	if errors.Is(err, apperr.ErrNotFound) {
		entry.WithField("recipient", payload.Recipient).Warn("recipient not found, skipping notification")
		return nil
	}
	if err != nil {
		return fmt.Errorf("load recipient: %w", err)
	}
	subject, body := payload.Message()
	entry.WithFields(logrus.Fields{
		"to":      user.Email,
		"subject": subject,
		"status":  payload.Status,
	}).Info("notification email")
	entry.Debug(body)
	return nil
}
