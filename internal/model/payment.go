package model

import "time"

// PaymentStatus is the lifecycle of a payment.
type PaymentStatus string

const (
	PaymentPending    PaymentStatus = "pending"
	PaymentProcessing PaymentStatus = "processing"
	PaymentCompleted  PaymentStatus = "completed"
	PaymentFailed     PaymentStatus = "failed"
	PaymentRefunded   PaymentStatus = "refunded"
	PaymentCancelled  PaymentStatus = "cancelled"
)

// Valid reports whether s is a known payment status.
func (s PaymentStatus) Valid() bool {
	switch s {
	case PaymentPending, PaymentProcessing, PaymentCompleted, PaymentFailed,
		PaymentRefunded, PaymentCancelled:
		return true
	}
	return false
}

// Payment belongs to exactly one submission.
type Payment struct {
	ID             string        `json:"id" gorm:"primaryKey;type:varchar(36)"`
	SubmissionID   string        `json:"submissionId" gorm:"uniqueIndex;size:50;not null"`
	Amount         float64       `json:"amount" gorm:"type:numeric(10,2);not null"`
	Currency       string        `json:"currency" gorm:"size:3;not null;default:USD"`
	PaymentMethod  string        `json:"paymentMethod" gorm:"size:50;not null"`
	PaymentGateway string        `json:"paymentGateway" gorm:"size:50;not null"`
	Status         PaymentStatus `json:"status" gorm:"size:50;index;not null"`
	Description    string        `json:"description,omitempty" gorm:"type:text"`
	TransactionID  string        `json:"transactionId,omitempty" gorm:"size:255;index"`
	FailureReason  string        `json:"failureReason,omitempty" gorm:"type:text"`
	Metadata       Data          `json:"metadata,omitempty" gorm:"column:payment_metadata;type:text"`
	ExpiresAt      *time.Time    `json:"expiresAt,omitempty"`
	PaidAt         *time.Time    `json:"paidAt,omitempty"`
	FailedAt       *time.Time    `json:"failedAt,omitempty"`
	CreatedAt      time.Time     `json:"createdAt"`
	UpdatedAt      time.Time     `json:"updatedAt"`
}

// Matches reports whether key is the payment id.
func (p Payment) Matches(key string) bool {
	return key != "" && p.ID == key
}
