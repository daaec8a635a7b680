// Package store is the dual-backend persistence adapter. Every operation tries
// SQL first when a database is configured; any SQL failure is logged, counted
// and the same operation is served from the JSON files instead. A SQL "not
// found" also consults the JSON files, since records written during an outage
// live there.
//
// Known limitation: with intermittent SQL availability records can end up split
// between the two stores. There is no cross-store reconciliation, and a
// successful SQL list only returns SQL rows.
package store

import (
	"context"
	"errors"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/dharsanguruparan/esubmit/internal/apperr"
	"github.com/dharsanguruparan/esubmit/internal/jsonstore"
	"github.com/dharsanguruparan/esubmit/internal/metrics"
	"github.com/dharsanguruparan/esubmit/internal/model"
	"github.com/dharsanguruparan/esubmit/internal/repository"
)

// Collections names every entity collection, in the order the stores are
// wired.
var Collections = []string{"forms", "submissions", "files", "payments", "users", "admins", "sessions"}

// Backend pairs the optional SQL handle with the JSON file store.
type Backend struct {
	db   *gorm.DB
	json *jsonstore.Store
	log  *logrus.Entry
}

// Stores groups one table per entity.
type Stores struct {
	backend     *Backend
	Forms       *Table[model.Form]
	Submissions *Table[model.Submission]
	Files       *Table[model.FileRecord]
	Payments    *Table[model.Payment]
	Users       *Table[model.User]
	Admins      *Table[model.Admin]
	Sessions    *Table[model.Session]
}

// New wires every entity table. db may be nil, in which case only the JSON
// files are used and no SQL attempt is made.
func New(db *gorm.DB, files *jsonstore.Store, log *logrus.Logger) *Stores {
	if log == nil {
		log = logrus.StandardLogger()
	}
	b := &Backend{db: db, json: files, log: log.WithField("component", "store")}
	return &Stores{
		backend: b,
		Forms: newTable(b, "forms", []string{"id", "form_id"},
			func(a, c model.Form) bool { return a.FormID == c.FormID }),
		Submissions: newTable(b, "submissions", []string{"id", "submission_id"},
			func(a, c model.Submission) bool { return a.SubmissionID == c.SubmissionID }),
		Files: newTable(b, "files", []string{"id", "file_id"},
			func(a, c model.FileRecord) bool { return a.Matches(c.ID) || a.Matches(c.FileID) }),
		Payments: newTable(b, "payments", []string{"id"},
			func(a, c model.Payment) bool { return a.SubmissionID == c.SubmissionID }),
		Users: newTable(b, "users", []string{"id"},
			func(a, c model.User) bool { return a.HasEmail(c.Email) }),
		Admins: newTable(b, "admins", []string{"id"},
			func(a, c model.Admin) bool { return a.HasEmail(c.Email) }),
		Sessions: newTable[model.Session](b, "sessions", []string{"id"}, nil),
	}
}

// SQLEnabled reports whether a database handle was supplied.
func (s *Stores) SQLEnabled() bool { return s.backend.db != nil }

// JSON returns the file store.
func (s *Stores) JSON() *jsonstore.Store { return s.backend.json }

// abortError marks an error raised by caller code inside an operation. It is
// a domain error and must never trigger the JSON fallback.
type abortError struct{ err error }

func (a abortError) Error() string { return a.err.Error() }
func (a abortError) Unwrap() error { return a.err }

func abort(fn func() error) error {
	if err := fn(); err != nil {
		return abortError{err: err}
	}
	return nil
}

// errSQLMiss signals that SQL answered but did not have the record.
var errSQLMiss = errors.New("sql miss")

// run applies the fallback policy around one logical operation.
func run[R any](ctx context.Context, b *Backend, entity, op string,
	sqlFn func() (R, error), jsonFn func() (R, error)) (R, error) {
	var zero R
	if b.db != nil {
		out, err := sqlFn()
		var aborted abortError
		switch {
		case err == nil:
			return out, nil
		case errors.As(err, &aborted):
			return zero, aborted.err
		case errors.Is(err, gorm.ErrDuplicatedKey):
			return zero, apperr.Conflict("%s already exists", entity)
		case errors.Is(err, repository.ErrNotFound), errors.Is(err, errSQLMiss):
			// fall through to JSON silently
		default:
			b.log.WithFields(logrus.Fields{"entity": entity, "op": op, "error": err}).
				Warn("sql operation failed, using json fallback")
			metrics.StoreFallbacks.WithLabelValues(entity, op).Inc()
		}
	}
	if err := ctx.Err(); err != nil {
		return zero, err
	}
	return jsonFn()
}
