package service

import (
	"context"
	"io"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dharsanguruparan/esubmit/internal/apperr"
	"github.com/dharsanguruparan/esubmit/internal/model"
	"github.com/dharsanguruparan/esubmit/internal/storage"
	"github.com/dharsanguruparan/esubmit/internal/store"
)

func TestStoreRetrieveRemove(t *testing.T) {
	env := newEnv(t)
	ctx := context.Background()

	rec, err := env.files.Store(ctx, Upload{
		Content:   []byte("hello world"),
		FieldName: "board resolution",
		FileName:  "../../resolution.txt",
		FileID:    "client-file-1",
	})
	require.NoError(t, err)
	assert.Equal(t, "client-file-1", rec.FileID)
	assert.Equal(t, "resolution.txt", rec.FileName)
	assert.Empty(t, rec.FilePath)
	assert.Regexp(t, `^board_resolution_[0-9a-f]{16}\.txt$`, rec.StoredName)
	assert.Equal(t, int64(11), rec.FileSize)
	assert.Len(t, rec.FileHash, 64)
	assert.Contains(t, rec.MimeType, "text/plain")

	full, rc, err := env.files.Open(ctx, "client-file-1")
	require.NoError(t, err)
	body, err := io.ReadAll(rc)
	require.NoError(t, rc.Close())
	require.NoError(t, err)
	assert.Equal(t, "hello world", string(body))
	assert.NotEmpty(t, full.FilePath)

	require.NoError(t, env.files.Remove(ctx, rec.ID))
	_, err = env.files.Get(ctx, "client-file-1")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestStoreRejectsBeforeWriting(t *testing.T) {
	env := newEnv(t)
	ctx := context.Background()

	_, err := env.files.Store(ctx, Upload{Content: make([]byte, 2048), FieldName: "f", FileName: "big.pdf"})
	assert.ErrorIs(t, err, apperr.ErrSizeExceeded)
	assert.Equal(t, 413, apperr.HTTPStatus(err))

	_, err = env.files.Store(ctx, Upload{Content: []byte("MZ"), FieldName: "f", FileName: "setup.exe"})
	assert.ErrorIs(t, err, apperr.ErrTypeNotAllowed)

	_, err = env.files.Store(ctx, Upload{Content: []byte("x"), FileName: "a.txt"})
	assert.ErrorIs(t, err, apperr.ErrInvalid)

	n, err := env.stores.Files.Count(ctx, store.Query[model.FileRecord]{})
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestRetrieveMissingContent(t *testing.T) {
	env := newEnv(t)
	ctx := context.Background()

	rec, err := env.files.Store(ctx, Upload{Content: []byte("x"), FieldName: "f", FileName: "a.txt"})
	require.NoError(t, err)
	full, err := env.files.Retrieve(ctx, rec.FileID)
	require.NoError(t, err)
	require.NoError(t, env.files.blobs.Remove(ctx, full.FilePath))

	_, err = env.files.Retrieve(ctx, rec.FileID)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	require.NoError(t, env.files.Remove(ctx, rec.FileID))
}

func TestLinkAttachesUploads(t *testing.T) {
	env := newEnv(t)
	ctx := context.Background()

	rec, err := env.files.Store(ctx, Upload{Content: []byte("x"), FieldName: "kyc", FileName: "kyc.pdf", FileID: "doc-kyc"})
	require.NoError(t, err)
	env.files.link(ctx, "SUB-1", nil)
	env.files.link(ctx, "SUB-1", []model.FileRef{{FileID: rec.FileID}, {FileID: "missing"}})

	linked, err := env.files.ForSubmission(ctx, "SUB-1")
	require.NoError(t, err)
	require.Len(t, linked, 1)
	assert.Equal(t, "doc-kyc", linked[0].FileID)
	assert.Empty(t, linked[0].FilePath)
}

func TestStoreRejectsFileIDInUse(t *testing.T) {
	env := newEnv(t)
	ctx := context.Background()

	first, err := env.files.Store(ctx, Upload{Content: []byte("first"), FieldName: "f", FileName: "a.txt", FileID: "shared"})
	require.NoError(t, err)

	_, err = env.files.Store(ctx, Upload{Content: []byte("second"), FieldName: "f", FileName: "b.txt", FileID: "shared"})
	assert.ErrorIs(t, err, apperr.ErrConflict)
	_, err = env.files.Store(ctx, Upload{Content: []byte("third"), FieldName: "f", FileName: "c.txt", FileID: first.ID})
	assert.ErrorIs(t, err, apperr.ErrConflict)

	n, err := env.stores.Files.Count(ctx, store.Query[model.FileRecord]{})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, rc, err := env.files.Open(ctx, "shared")
	require.NoError(t, err)
	body, err := io.ReadAll(rc)
	require.NoError(t, rc.Close())
	require.NoError(t, err)
	assert.Equal(t, "first", string(body))
}

func TestStoreMalformedPDF(t *testing.T) {
	log, hook := test.NewNullLogger()
	log.SetLevel(logrus.DebugLevel)
	env := newEnv(t)
	blobs, err := storage.New(model.StorageLocal, t.TempDir())
	require.NoError(t, err)
	files := NewFiles(env.stores, blobs, FileLimits{MaxSize: 1024, AllowedExtensions: []string{".pdf"}}, log)

	rec, err := files.Store(context.Background(), Upload{Content: []byte("%PDF-1.4 truncated"), FieldName: "f", FileName: "scan.pdf"})
	require.NoError(t, err)
	assert.Zero(t, rec.PageCount)

	var messages []string
	for _, e := range hook.AllEntries() {
		messages = append(messages, e.Message)
	}
	assert.Contains(t, messages, "could not count pdf pages")
	assert.NotContains(t, messages, "pdf first page")
}
