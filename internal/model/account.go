package model

import (
	"strings"
	"time"
)

// Role separates applicants from the two administrator tiers.
type Role string

const (
	RoleUser       Role = "user"
	RoleAdmin      Role = "admin"
	RoleSuperAdmin Role = "superAdmin"
)

// IsAdmin reports whether the role may use the admin endpoints.
func (r Role) IsAdmin() bool {
	return r == RoleAdmin || r == RoleSuperAdmin
}

// Account holds the fields shared by users and admins. The two identity
// spaces live in separate tables, so emails are unique per table only.
type Account struct {
	ID           string    `json:"id" gorm:"primaryKey;type:varchar(36)"`
	Email        string    `json:"email" gorm:"uniqueIndex;size:255;not null"`
	PasswordHash string    `json:"passwordHash" gorm:"size:255;not null"`
	Name         string    `json:"name" gorm:"size:255"`
	IsActive     bool      `json:"isActive"`
	Role         Role      `json:"role" gorm:"size:20;not null"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// Matches reports whether key is the account id.
func (a Account) Matches(key string) bool {
	return key != "" && a.ID == key
}

// HasEmail compares emails case-insensitively.
func (a Account) HasEmail(email string) bool {
	return strings.EqualFold(a.Email, strings.TrimSpace(email))
}

// User is an applicant account.
type User struct {
	Account
}

// Admin is a reviewer account.
type Admin struct {
	Account
}

// Profile is the client view of an account.
type Profile struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	Role      Role      `json:"role"`
	IsActive  bool      `json:"isActive"`
	CreatedAt time.Time `json:"createdAt"`
}

// Profile strips credentials from the account.
func (a Account) Profile() Profile {
	return Profile{
		ID:        a.ID,
		Email:     a.Email,
		Name:      a.Name,
		Role:      a.Role,
		IsActive:  a.IsActive,
		CreatedAt: a.CreatedAt,
	}
}

// NormalizeEmail lowercases and trims an email address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
