// Package service implements the e-submission workflows on top of the
// dual-backend stores: forms, submissions, uploads, payments and accounts.
// Services receive the caller's principal explicitly and enforce ownership and
// role rules themselves; the HTTP layer only authenticates.
package service

import (
	"context"
	"time"

	"github.com/dharsanguruparan/esubmit/internal/apperr"
	"github.com/dharsanguruparan/esubmit/internal/auth"
	"github.com/dharsanguruparan/esubmit/internal/queue"
)

// Notifier receives submission status changes.
type Notifier interface {
	SubmissionStatusChanged(ctx context.Context, payload queue.StatusPayload) error
}

type nopNotifier struct{}

func (nopNotifier) SubmissionStatusChanged(context.Context, queue.StatusPayload) error { return nil }

type clock func() time.Time

func (c clock) now() time.Time {
	if c == nil {
		return time.Now().UTC()
	}
	return c().UTC()
}

func requireAdmin(p *auth.Principal) error {
	if p == nil {
		return apperr.ErrUnauthorized
	}
	if !p.IsAdmin() {
		return apperr.Forbidden("admin access required")
	}
	return nil
}

func requireSuperAdmin(p *auth.Principal) error {
	if err := requireAdmin(p); err != nil {
		return err
	}
	if !p.IsSuperAdmin() {
		return apperr.Forbidden("super admin access required")
	}
	return nil
}

func timePtr(t time.Time) *time.Time { return &t }
