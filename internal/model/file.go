package model

import (
	"time"
)

// StorageLocation names the blob backend holding an upload.
type StorageLocation string

const (
	StorageLocal StorageLocation = "local"
	StorageS3    StorageLocation = "s3"
	StorageAzure StorageLocation = "azure"
	StorageGCS   StorageLocation = "gcs"
)

// FileRecord holds metadata about an uploaded file. FilePath is persisted but
// cleared before records leave the API so server paths never leak.
type FileRecord struct {
	ID              string          `json:"id" gorm:"primaryKey;type:varchar(36)"`
	FileID          string          `json:"fileId" gorm:"size:255;uniqueIndex;not null"`
	SubmissionID    string          `json:"submissionId,omitempty" gorm:"size:50;index"`
	FieldName       string          `json:"fieldName" gorm:"size:255;not null"`
	FileName        string          `json:"fileName" gorm:"size:500;not null"`
	StoredName      string          `json:"storedName" gorm:"size:500"`
	FilePath        string          `json:"filePath,omitempty" gorm:"size:1000;not null"`
	FileSize        int64           `json:"fileSize"`
	MimeType        string          `json:"mimeType" gorm:"size:100"`
	StorageLocation StorageLocation `json:"storageLocation" gorm:"size:20"`
	FileHash        string          `json:"fileHash" gorm:"size:64"`
	PageCount       int             `json:"pageCount,omitempty"`
	UploadedBy      string          `json:"uploadedBy,omitempty" gorm:"size:36"`
	UploadedAt      time.Time       `json:"uploadedAt"`
}

// Matches reports whether key is the internal UUID or the client file id.
func (f FileRecord) Matches(key string) bool {
	return key != "" && (f.ID == key || f.FileID == key)
}

// Public returns a copy safe to send to clients.
func (f FileRecord) Public() FileRecord {
	f.FilePath = ""
	return f
}
