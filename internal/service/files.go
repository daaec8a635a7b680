package service

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/dharsanguruparan/esubmit/internal/apperr"
	"github.com/dharsanguruparan/esubmit/internal/logging"
	"github.com/dharsanguruparan/esubmit/internal/metrics"
	"github.com/dharsanguruparan/esubmit/internal/model"
	pdfutil "github.com/dharsanguruparan/esubmit/internal/pdf"
	"github.com/dharsanguruparan/esubmit/internal/storage"
	"github.com/dharsanguruparan/esubmit/internal/store"
)

// pdfPreviewRunes bounds the first-page text logged for uploaded PDFs.
const pdfPreviewRunes = 200

// FileLimits bounds accepted uploads.
type FileLimits struct {
	MaxSize           int64
	AllowedExtensions []string
}

// Files stores uploaded documents and their metadata.
type Files struct {
	stores  *store.Stores
	blobs   storage.Blobs
	maxSize int64
	allowed map[string]struct{}
	log     *logrus.Entry
	now     clock
}

// NewFiles returns the upload service.
func NewFiles(stores *store.Stores, blobs storage.Blobs, limits FileLimits, log *logrus.Logger) *Files {
	allowed := make(map[string]struct{}, len(limits.AllowedExtensions))
	for _, ext := range limits.AllowedExtensions {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		allowed[ext] = struct{}{}
	}
	return &Files{
		stores:  stores,
		blobs:   blobs,
		maxSize: limits.MaxSize,
		allowed: allowed,
		log:     logging.Component(log, "files"),
	}
}

// Upload is one file received from a client.
type Upload struct {
	Content   []byte
	FieldName string
	FileName  string
	MimeType  string
	// FileID is an optional client supplied identifier. Lookups accept it as
	// well as the generated id.
	FileID       string
	SubmissionID string
	UploadedBy   string
}

var unsafeName = regexp.MustCompile(`[^A-Za-z0-9_-]+`)

// Store validates and persists an upload. Size and extension are checked
// before anything is written; nothing is persisted on rejection.
func (f *Files) Store(ctx context.Context, up Upload) (*model.FileRecord, error) {
	name := filepath.Base(strings.TrimSpace(up.FileName))
	if name == "" || name == "." || name == string(filepath.Separator) {
		metrics.Uploads.WithLabelValues("rejected").Inc()
		return nil, apperr.Invalid("file name is required")
	}
	if strings.TrimSpace(up.FieldName) == "" {
		metrics.Uploads.WithLabelValues("rejected").Inc()
		return nil, apperr.Invalid("fieldName is required")
	}
	if f.maxSize > 0 && int64(len(up.Content)) > f.maxSize {
		metrics.Uploads.WithLabelValues("too_large").Inc()
		return nil, fmt.Errorf("%w (%d > %d bytes)", apperr.ErrSizeExceeded, len(up.Content), f.maxSize)
	}
	ext := strings.ToLower(filepath.Ext(name))
	if _, ok := f.allowed[ext]; !ok {
		metrics.Uploads.WithLabelValues("type_rejected").Inc()
		return nil, fmt.Errorf("%w: %q", apperr.ErrTypeNotAllowed, ext)
	}

	fileID := strings.TrimSpace(up.FileID)
	if fileID != "" {
		if _, err := f.stores.Files.Get(ctx, fileID); err == nil {
			metrics.Uploads.WithLabelValues("rejected").Inc()
			return nil, apperr.Conflict("file id %q is already in use", fileID)
		} else if !errors.Is(err, apperr.ErrNotFound) {
			return nil, err
		}
	}

	sum := sha256.Sum256(up.Content)
	storedName, err := storedFileName(up.FieldName, ext)
	if err != nil {
		return nil, err
	}
	path, err := f.blobs.Put(ctx, storedName, up.Content)
	if err != nil {
		metrics.Uploads.WithLabelValues("failed").Inc()
		return nil, err
	}

	mime := up.MimeType
	if mime == "" || mime == "application/octet-stream" {
		mime = http.DetectContentType(up.Content)
	}
	id := uuid.NewString()
	if fileID == "" {
		fileID = id
	}
	rec := &model.FileRecord{
		ID:              id,
		FileID:          fileID,
		SubmissionID:    up.SubmissionID,
		FieldName:       up.FieldName,
		FileName:        name,
		StoredName:      storedName,
		FilePath:        path,
		FileSize:        int64(len(up.Content)),
		MimeType:        mime,
		StorageLocation: f.blobs.Location(),
		FileHash:        hex.EncodeToString(sum[:]),
		UploadedBy:      up.UploadedBy,
		UploadedAt:      f.now.now(),
	}
	if pdfutil.IsPDF(up.Content) {
		if pages, err := pdfutil.PageCount(up.Content); err == nil {
			rec.PageCount = pages
		} else {
			f.log.WithError(err).WithField("file", name).Debug("could not count pdf pages")
		}
		if f.log.Logger.IsLevelEnabled(logrus.DebugLevel) {
			if text, err := pdfutil.FirstPageText(up.Content, pdfPreviewRunes); err == nil && text != "" {
				f.log.WithFields(logrus.Fields{"file": name, "preview": text}).Debug("pdf first page")
			}
		}
	}
	if err := f.stores.Files.Create(ctx, rec); err != nil {
		if rmErr := f.blobs.Remove(ctx, path); rmErr != nil {
			f.log.WithError(rmErr).WithField("path", path).Warn("failed to remove orphaned upload")
		}
		metrics.Uploads.WithLabelValues("failed").Inc()
		return nil, fmt.Errorf("save file metadata: %w", err)
	}
	metrics.Uploads.WithLabelValues("stored").Inc()
	f.log.WithFields(logrus.Fields{
		"fileId": rec.FileID,
		"field":  rec.FieldName,
		"size":   rec.FileSize,
	}).Info("file stored")
	out := rec.Public()
	return &out, nil
}

// storedFileName combines the field name with a random suffix and keeps the
// original extension.
func storedFileName(field, ext string) (string, error) {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("random name: %w", err)
	}
	base := strings.Trim(unsafeName.ReplaceAllString(field, "_"), "_")
	if base == "" {
		base = "file"
	}
	return base + "_" + hex.EncodeToString(buf) + ext, nil
}

// Get returns the metadata of an upload without its server path.
func (f *Files) Get(ctx context.Context, fileID string) (*model.FileRecord, error) {
	rec, err := f.stores.Files.Get(ctx, fileID)
	if err != nil {
		return nil, err
	}
	out := rec.Public()
	return &out, nil
}

// Retrieve returns the full record of an upload whose content is still
// present in storage.
func (f *Files) Retrieve(ctx context.Context, fileID string) (*model.FileRecord, error) {
	rec, err := f.stores.Files.Get(ctx, fileID)
	if err != nil {
		return nil, err
	}
	ok, err := f.blobs.Exists(ctx, rec.FilePath)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperr.NotFound("file content", fileID)
	}
	return rec, nil
}

// Open returns the record and a reader over its content. The caller closes
// the reader.
func (f *Files) Open(ctx context.Context, fileID string) (*model.FileRecord, io.ReadSeekCloser, error) {
	rec, err := f.Retrieve(ctx, fileID)
	if err != nil {
		return nil, nil, err
	}
	rc, err := f.blobs.Open(ctx, rec.FilePath)
	if err != nil {
		return nil, nil, err
	}
	return rec, rc, nil
}

// Remove deletes the stored content and the metadata record. A record whose
// content is already gone is still removed.
func (f *Files) Remove(ctx context.Context, fileID string) error {
	rec, err := f.stores.Files.Get(ctx, fileID)
	if err != nil {
		return err
	}
	if rec.FilePath != "" {
		if err := f.blobs.Remove(ctx, rec.FilePath); err != nil {
			return err
		}
	}
	if err := f.stores.Files.Delete(ctx, rec.ID); err != nil && !errors.Is(err, apperr.ErrNotFound) {
		return err
	}
	f.log.WithField("fileId", rec.FileID).Info("file removed")
	return nil
}

// ForSubmission lists the uploads linked to a submission.
func (f *Files) ForSubmission(ctx context.Context, submissionID string) ([]model.FileRecord, error) {
	recs, err := f.stores.Files.List(ctx, store.FilesForSubmission(submissionID))
	if err != nil {
		return nil, err
	}
	for i := range recs {
		recs[i] = recs[i].Public()
	}
	return recs, nil
}

// link attaches uploads to a submission. Failures are logged and skipped.
func (f *Files) link(ctx context.Context, submissionID string, refs model.FileRefs) {
	for _, ref := range refs {
		_, err := f.stores.Files.Update(ctx, ref.FileID, func(rec *model.FileRecord) error {
			rec.SubmissionID = submissionID
			return nil
		})
		if err != nil {
			f.log.WithError(err).WithFields(logrus.Fields{
				"submission": submissionID,
				"fileId":     ref.FileID,
			}).Warn("could not link upload to submission")
		}
	}
}
