package model

import "time"

// Form is an admin defined multi-step questionnaire template.
type Form struct {
	ID            string    `json:"id" gorm:"primaryKey;type:varchar(36)"`
	FormID        string    `json:"formId" gorm:"uniqueIndex;size:100;not null"`
	Name          string    `json:"name" gorm:"size:255;not null"`
	Description   string    `json:"description,omitempty" gorm:"type:text"`
	Category      string    `json:"category,omitempty" gorm:"size:100;index"`
	Version       string    `json:"version" gorm:"size:50;not null;default:1.0.0"`
	SchemaData    RawJSON   `json:"schemaData" gorm:"type:text;not null"`
	IsActive      bool      `json:"isActive" gorm:"index"`
	RequiresAuth  bool      `json:"requiresAuth"`
	EstimatedTime string    `json:"estimatedTime,omitempty" gorm:"size:50"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
	CreatedBy     string    `json:"createdBy,omitempty" gorm:"size:255"`
	UpdatedBy     string    `json:"updatedBy,omitempty" gorm:"size:255"`
}

// Matches reports whether key is the form's internal id or its formId.
func (f Form) Matches(key string) bool {
	return key != "" && (f.ID == key || f.FormID == key)
}
