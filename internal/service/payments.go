package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/dharsanguruparan/esubmit/internal/apperr"
	"github.com/dharsanguruparan/esubmit/internal/auth"
	"github.com/dharsanguruparan/esubmit/internal/logging"
	"github.com/dharsanguruparan/esubmit/internal/model"
	"github.com/dharsanguruparan/esubmit/internal/store"
)

// paymentWindow is how long a created payment stays payable.
const paymentWindow = 24 * time.Hour

// Payments records fees for submissions. No gateway is called; processing
// only returns the URL a gateway integration would redirect to.
type Payments struct {
	stores *store.Stores
	subs   *Submissions
	log    *logrus.Entry
	now    clock
}

// NewPayments returns the payment service.
func NewPayments(stores *store.Stores, subs *Submissions, log *logrus.Logger) *Payments {
	return &Payments{stores: stores, subs: subs, log: logging.Component(log, "payments")}
}

// PaymentInput creates a payment.
type PaymentInput struct {
	Amount         float64    `json:"amount"`
	Currency       string     `json:"currency"`
	PaymentMethod  string     `json:"paymentMethod"`
	PaymentGateway string     `json:"paymentGateway"`
	Description    string     `json:"description"`
	Metadata       model.Data `json:"metadata"`
}

// PaymentUpdate is a status change, typically from a gateway webhook.
type PaymentUpdate struct {
	Status        *model.PaymentStatus `json:"status"`
	TransactionID string               `json:"transactionId"`
	FailureReason string               `json:"failureReason"`
	Metadata      model.Data           `json:"metadata"`
}

// Checkout is returned when a payment is created or processed.
type Checkout struct {
	PaymentID    string              `json:"paymentId"`
	SubmissionID string              `json:"submissionId"`
	Amount       float64             `json:"amount"`
	Currency     string              `json:"currency"`
	Status       model.PaymentStatus `json:"status"`
	PaymentURL   string              `json:"paymentUrl"`
	ExpiresAt    *time.Time          `json:"expiresAt,omitempty"`
}

// Create opens the payment of a submission. Each submission has at most one
// payment. Submissions still awaiting a decision move to pending-payment;
// drafts and approved submissions take no payment.
func (s *Payments) Create(ctx context.Context, p *auth.Principal, submissionID string, in PaymentInput) (*Checkout, error) {
	sub, err := s.subs.Get(ctx, p, submissionID)
	if err != nil {
		return nil, err
	}
	switch sub.Status {
	case model.StatusDraft:
		return nil, apperr.Invalid("submit the draft before paying")
	case model.StatusApproved:
		return nil, apperr.ErrApprovedLocked
	}
	if in.Amount <= 0 {
		return nil, apperr.Invalid("amount must be greater than zero")
	}
	if strings.TrimSpace(in.PaymentMethod) == "" {
		return nil, apperr.Invalid("paymentMethod is required")
	}
	if existing, err := s.stores.Payments.First(ctx, store.PaymentForSubmission(sub.SubmissionID)); err == nil {
		return nil, apperr.Conflict("payment already exists for submission %s (payment %s)", sub.SubmissionID, existing.ID)
	} else if !errors.Is(err, apperr.ErrNotFound) {
		return nil, err
	}

	now := s.now.now()
	pay := &model.Payment{
		ID:             uuid.NewString(),
		SubmissionID:   sub.SubmissionID,
		Amount:         in.Amount,
		Currency:       strings.ToUpper(orDefault(in.Currency, "USD")),
		PaymentMethod:  in.PaymentMethod,
		PaymentGateway: orDefault(in.PaymentGateway, "stripe"),
		Status:         model.PaymentPending,
		Description:    orDefault(in.Description, "Payment for submission "+sub.SubmissionID),
		Metadata:       in.Metadata,
		ExpiresAt:      timePtr(now.Add(paymentWindow)),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if pay.Metadata == nil {
		pay.Metadata = model.Data{}
	}
	if err := s.stores.Payments.Create(ctx, pay); err != nil {
		return nil, err
	}
	if _, err := s.stores.Submissions.Update(ctx, sub.ID, func(sub *model.Submission) error {
		if !awaitsPayment(sub.Status) {
			return nil
		}
		sub.Status = model.StatusPendingPayment
		sub.UpdatedAt = now
		return nil
	}); err != nil {
		s.log.WithError(err).WithField("submission", sub.SubmissionID).Warn("could not mark submission pending payment")
	}
	s.log.WithFields(logrus.Fields{"payment": pay.ID, "submission": sub.SubmissionID}).Info("payment created")
	return checkout(pay, fmt.Sprintf("/payments/%s/process", pay.ID)), nil
}

// Get returns a payment whose submission is visible to the caller.
func (s *Payments) Get(ctx context.Context, p *auth.Principal, id string) (*model.Payment, error) {
	pay, err := s.stores.Payments.Get(ctx, id)
	if errors.Is(err, apperr.ErrNotFound) {
		return nil, apperr.NotFound("payment", id)
	}
	if err != nil {
		return nil, err
	}
	if _, err := s.subs.Get(ctx, p, pay.SubmissionID); err != nil {
		return nil, err
	}
	return pay, nil
}

// GetBySubmission returns the payment of a submission visible to the caller.
func (s *Payments) GetBySubmission(ctx context.Context, p *auth.Principal, submissionID string) (*model.Payment, error) {
	sub, err := s.subs.Get(ctx, p, submissionID)
	if err != nil {
		return nil, err
	}
	pay, err := s.stores.Payments.First(ctx, store.PaymentForSubmission(sub.SubmissionID))
	if errors.Is(err, apperr.ErrNotFound) {
		return nil, apperr.NotFound("payment for submission", submissionID)
	}
	return pay, err
}

// Update applies a status change. Completing a payment moves a
// pending-payment submission to under-review. Admins only, since no gateway
// callback is verified.
func (s *Payments) Update(ctx context.Context, p *auth.Principal, id string, in PaymentUpdate) (*model.Payment, error) {
	if err := requireAdmin(p); err != nil {
		return nil, err
	}
	if in.Status != nil && !in.Status.Valid() {
		return nil, apperr.Invalid("unknown payment status %q", *in.Status)
	}
	now := s.now.now()
	pay, err := s.stores.Payments.Update(ctx, id, func(pay *model.Payment) error {
		if in.Status != nil {
			pay.Status = *in.Status
			switch pay.Status {
			case model.PaymentCompleted:
				pay.PaidAt = timePtr(now)
			case model.PaymentFailed:
				pay.FailedAt = timePtr(now)
				pay.FailureReason = in.FailureReason
			}
		}
		if in.TransactionID != "" {
			pay.TransactionID = in.TransactionID
		}
		if len(in.Metadata) > 0 {
			if pay.Metadata == nil {
				pay.Metadata = model.Data{}
			}
			for k, v := range in.Metadata {
				pay.Metadata[k] = v
			}
		}
		pay.UpdatedAt = now
		return nil
	})
	if errors.Is(err, apperr.ErrNotFound) {
		return nil, apperr.NotFound("payment", id)
	}
	if err != nil {
		return nil, err
	}
	if pay.Status == model.PaymentCompleted {
		_, err := s.stores.Submissions.Update(ctx, pay.SubmissionID, func(sub *model.Submission) error {
			if sub.Status == model.StatusPendingPayment {
				sub.Status = model.StatusUnderReview
				sub.UpdatedAt = now
			}
			return nil
		})
		if err != nil {
			s.log.WithError(err).WithField("submission", pay.SubmissionID).Warn("could not advance submission after payment")
		}
	}
	return pay, nil
}

// Process starts a gateway transaction. Only the redirect URL is produced.
func (s *Payments) Process(ctx context.Context, p *auth.Principal, id string) (*Checkout, error) {
	pay, err := s.Get(ctx, p, id)
	if err != nil {
		return nil, err
	}
	if pay.Status == model.PaymentCompleted {
		return nil, apperr.Invalid("payment already completed")
	}
	return checkout(pay, fmt.Sprintf("/payments/%s/complete", pay.ID)), nil
}

func checkout(pay *model.Payment, url string) *Checkout {
	return &Checkout{
		PaymentID:    pay.ID,
		SubmissionID: pay.SubmissionID,
		Amount:       pay.Amount,
		Currency:     pay.Currency,
		Status:       pay.Status,
		PaymentURL:   url,
		ExpiresAt:    pay.ExpiresAt,
	}
}

func orDefault(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}

// awaitsPayment reports whether opening a payment moves a submission in
// status st to pending-payment.
func awaitsPayment(st model.SubmissionStatus) bool {
	switch st {
	case model.StatusSubmitted, model.StatusUnderReview, model.StatusRequestInfo:
		return true
	}
	return false
}
