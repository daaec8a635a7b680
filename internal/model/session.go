package model

import "time"

// Session records an issued bearer token so it can be revoked before expiry.
type Session struct {
	ID        string    `json:"id" gorm:"primaryKey;type:varchar(64)"`
	TokenHash string    `json:"tokenHash" gorm:"size:64;index;not null"`
	SubjectID string    `json:"subjectId" gorm:"size:36;index;not null"`
	Role      Role      `json:"role" gorm:"size:20;not null"`
	CreatedAt time.Time `json:"createdAt"`
	ExpiresAt time.Time `json:"expiresAt" gorm:"index"`
}

// Matches reports whether key is the session id.
func (s Session) Matches(key string) bool {
	return key != "" && s.ID == key
}

// Expired reports whether the session is past its expiry at now.
func (s Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// All returns every model persisted by the stores, in migration order.
func All() []any {
	return []any{
		&Form{},
		&Submission{},
		&FileRecord{},
		&Payment{},
		&User{},
		&Admin{},
		&Session{},
	}
}
