package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"github.com/dharsanguruparan/esubmit/internal/apperr"
	"github.com/dharsanguruparan/esubmit/internal/auth"
	"github.com/dharsanguruparan/esubmit/internal/model"
	"github.com/dharsanguruparan/esubmit/internal/service"
)

// multipartOverhead is the room left for headers and form fields around the
// file part.
const multipartOverhead = 1 << 20

const maxFieldValue = 4 << 10

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	limit := s.opts.MaxUploadBytes
	if limit > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, limit+multipartOverhead)
	}
	mr, err := r.MultipartReader()
	if err != nil {
		s.respondError(w, r, apperr.Invalid("expecting multipart form"))
		return
	}
	q := r.URL.Query()
	up := service.Upload{
		FieldName:    q.Get("fieldName"),
		FileID:       q.Get("fileId"),
		SubmissionID: q.Get("submissionId"),
	}
	if p := auth.FromContext(r.Context()); p != nil {
		up.UploadedBy = p.ID
	}
	var found bool
	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			s.respondError(w, r, uploadError(err))
			return
		}
		if part.FileName() != "" {
			if found {
				part.Close()
				continue
			}
			if err := s.readFilePart(part, &up); err != nil {
				part.Close()
				s.respondError(w, r, err)
				return
			}
			found = true
			part.Close()
			continue
		}
		if err := readFieldPart(part, &up); err != nil {
			part.Close()
			s.respondError(w, r, err)
			return
		}
		part.Close()
	}
	if !found {
		s.respondError(w, r, apperr.Invalid("missing file part"))
		return
	}
	if up.SubmissionID != "" {
		sub, err := s.svc.Submissions.Get(r.Context(), auth.FromContext(r.Context()), up.SubmissionID)
		if err != nil {
			s.respondError(w, r, err)
			return
		}
		up.SubmissionID = sub.SubmissionID
	}
	rec, err := s.svc.Files.Store(r.Context(), up)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusCreated, rec.Public())
}

// readFilePart reads at most one byte past the configured limit so the
// service can reject oversized content before anything is written.
func (s *Server) readFilePart(part *multipart.Part, up *service.Upload) error {
	var src io.Reader = part
	if s.opts.MaxUploadBytes > 0 {
		src = io.LimitReader(part, s.opts.MaxUploadBytes+1)
	}
	content, err := io.ReadAll(src)
	if err != nil {
		return uploadError(err)
	}
	up.Content = content
	up.FileName = part.FileName()
	up.MimeType = part.Header.Get("Content-Type")
	if up.MimeType == "" || up.MimeType == "application/octet-stream" {
		up.MimeType = http.DetectContentType(content)
	}
	return nil
}

func readFieldPart(part *multipart.Part, up *service.Upload) error {
	raw, err := io.ReadAll(io.LimitReader(part, maxFieldValue))
	if err != nil {
		return uploadError(err)
	}
	v := strings.TrimSpace(string(raw))
	switch part.FormName() {
	case "fieldName":
		if up.FieldName == "" {
			up.FieldName = v
		}
	case "fileId":
		if up.FileID == "" {
			up.FileID = v
		}
	case "submissionId":
		if up.SubmissionID == "" {
			up.SubmissionID = v
		}
	}
	return nil
}

func uploadError(err error) error {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return fmt.Errorf("%w: upload exceeds %d bytes", apperr.ErrSizeExceeded, tooLarge.Limit)
	}
	return apperr.Invalid("malformed multipart body: %v", err)
}

// authorizeFile lets admins and uploaders through, plus anyone who can see
// the submission the file is linked to. Files uploaded without signing in and
// not yet linked are reachable by id alone.
func (s *Server) authorizeFile(ctx context.Context, p *auth.Principal, rec *model.FileRecord) error {
	if p.IsAdmin() {
		return nil
	}
	if rec.UploadedBy == "" && rec.SubmissionID == "" {
		return nil
	}
	if p != nil && rec.UploadedBy == p.ID {
		return nil
	}
	if rec.SubmissionID != "" {
		_, err := s.svc.Submissions.Get(ctx, p, rec.SubmissionID)
		return err
	}
	if p == nil {
		return apperr.ErrUnauthorized
	}
	return apperr.Forbidden("you can only access your own files")
}

func (s *Server) visibleFile(r *http.Request) (*model.FileRecord, error) {
	id := mux.Vars(r)["fileId"]
	rec, err := s.svc.Files.Get(r.Context(), id)
	if errors.Is(err, apperr.ErrNotFound) {
		return nil, apperr.NotFound("file", id)
	}
	if err != nil {
		return nil, err
	}
	if err := s.authorizeFile(r.Context(), auth.FromContext(r.Context()), rec); err != nil {
		return nil, err
	}
	return rec, nil
}

func (s *Server) handleFileInfo(w http.ResponseWriter, r *http.Request) {
	rec, err := s.visibleFile(r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, rec)
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	rec, err := s.visibleFile(r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	s.serveFile(w, r, rec.ID)
}

func (s *Server) handleSignedDownload(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	fileID := q.Get("file")
	if err := s.signer.Verify(fileID, q.Get("expires"), q.Get("signature")); err != nil {
		s.respondError(w, r, err)
		return
	}
	s.serveFile(w, r, fileID)
}

func (s *Server) serveFile(w http.ResponseWriter, r *http.Request, fileID string) {
	rec, body, err := s.svc.Files.Open(r.Context(), fileID)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	defer body.Close()
	if rec.MimeType != "" {
		w.Header().Set("Content-Type", rec.MimeType)
	}
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": rec.FileName}))
	http.ServeContent(w, r, rec.FileName, rec.UploadedAt, body)
}

func (s *Server) handleSignedURL(w http.ResponseWriter, r *http.Request) {
	rec, err := s.visibleFile(r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, s.signer.SignedLink("/api/files/signed", rec.ID, s.opts.SignedURLTTL))
}

func (s *Server) handleDeleteFile(w http.ResponseWriter, r *http.Request) {
	p := auth.FromContext(r.Context())
	if p == nil {
		s.respondError(w, r, apperr.ErrUnauthorized)
		return
	}
	rec, err := s.visibleFile(r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	if !p.IsAdmin() && rec.UploadedBy != p.ID {
		s.respondError(w, r, apperr.Forbidden("only the uploader may delete a file"))
		return
	}
	if err := s.svc.Files.Remove(r.Context(), rec.ID); err != nil {
		s.respondError(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, message{Message: "File deleted successfully"})
}
