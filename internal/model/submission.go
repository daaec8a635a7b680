package model

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"time"
)

// SubmissionStatus describes where a submission sits in the review lifecycle.
type SubmissionStatus string

const (
	StatusDraft          SubmissionStatus = "draft"
	StatusSubmitted      SubmissionStatus = "submitted"
	StatusPendingPayment SubmissionStatus = "pending-payment"
	StatusUnderReview    SubmissionStatus = "under-review"
	StatusRequestInfo    SubmissionStatus = "request_info"
	StatusApproved       SubmissionStatus = "approved"
	StatusRejected       SubmissionStatus = "rejected"
)

// Valid reports whether s is a known status.
func (s SubmissionStatus) Valid() bool {
	switch s {
	case StatusDraft, StatusSubmitted, StatusPendingPayment, StatusUnderReview,
		StatusRequestInfo, StatusApproved, StatusRejected:
		return true
	}
	return false
}

// Editable reports whether the owner may still change the submission.
func (s SubmissionStatus) Editable() bool {
	return s == StatusDraft || s == StatusRejected
}

// Submission is one applicant's filled-in instance of a form.
type Submission struct {
	ID            string           `json:"id" gorm:"primaryKey;type:varchar(36)"`
	SubmissionID  string           `json:"submissionId" gorm:"uniqueIndex;size:50;not null"`
	FormID        string           `json:"formId" gorm:"size:100;index;not null"`
	SubmittedData Data             `json:"submittedData" gorm:"type:text"`
	Status        SubmissionStatus `json:"status" gorm:"size:50;index;not null"`
	SubmittedBy   string           `json:"submittedBy,omitempty" gorm:"size:36;index"`
	SubmittedAt   *time.Time       `json:"submittedAt,omitempty"`
	ReviewedBy    string           `json:"reviewedBy,omitempty" gorm:"size:36"`
	ReviewedAt    *time.Time       `json:"reviewedAt,omitempty"`
	ReviewNotes   string           `json:"reviewNotes,omitempty" gorm:"type:text"`
	RequestedInfo string           `json:"requestedInfo,omitempty" gorm:"type:text"`
	Files         FileRefs         `json:"files,omitempty" gorm:"type:text"`
	CreatedAt     time.Time        `json:"createdAt"`
	UpdatedAt     time.Time        `json:"updatedAt"`
}

// Matches reports whether key is the internal id or the human readable id.
func (s Submission) Matches(key string) bool {
	return key != "" && (s.ID == key || s.SubmissionID == key)
}

// NewSubmissionID returns an id of the form SUB-YYYYMMDD-ffffff.
func NewSubmissionID(now time.Time) string {
	var buf [4]byte
	_, _ = rand.Read(buf[:])
	suffix := binary.BigEndian.Uint32(buf[:]) & 0xffffff
	return fmt.Sprintf("SUB-%s-%06x", now.UTC().Format("20060102"), suffix)
}
