package store

import (
	"context"
	"sort"

	"gorm.io/gorm"

	"github.com/dharsanguruparan/esubmit/internal/apperr"
	"github.com/dharsanguruparan/esubmit/internal/jsonstore"
	"github.com/dharsanguruparan/esubmit/internal/repository"
)

// Record is implemented by every persisted model.
type Record interface {
	Matches(key string) bool
}

// Query selects records identically on both backends: Scope for SQL, Match
// for JSON. Order and Less must describe the same ordering.
type Query[T any] struct {
	Scope repository.Scope
	Match func(T) bool
	Order string
	Less  func(a, b T) bool
	Limit int
}

// And narrows q by one more condition on both backends.
func (q Query[T]) And(scope repository.Scope, match func(T) bool) Query[T] {
	prevScope, prevMatch := q.Scope, q.Match
	q.Scope = func(db *gorm.DB) *gorm.DB {
		if prevScope != nil {
			db = prevScope(db)
		}
		return scope(db)
	}
	q.Match = func(v T) bool {
		return (prevMatch == nil || prevMatch(v)) && match(v)
	}
	return q
}

// Table is the dual-backend view of one entity.
type Table[T Record] struct {
	b        *Backend
	entity   string
	sql      *repository.Repository[T]
	json     *jsonstore.Collection[T]
	conflict func(existing, candidate T) bool
}

func newTable[T Record](b *Backend, entity string, keys []string, conflict func(a, c T) bool) *Table[T] {
	t := &Table[T]{
		b:        b,
		entity:   entity,
		json:     jsonstore.NewCollection[T](b.json, entity),
		conflict: conflict,
	}
	if b.db != nil {
		t.sql = repository.New[T](b.db, keys...)
	}
	return t
}

// Get returns the record matching key on either backend.
func (t *Table[T]) Get(ctx context.Context, key string) (*T, error) {
	return run(ctx, t.b, t.entity, "get",
		func() (*T, error) { return t.sql.Get(ctx, key) },
		func() (*T, error) {
			item, ok, err := t.json.Find(ctx, func(v T) bool { return v.Matches(key) })
			if err != nil {
				return nil, err
			}
			if !ok {
				return nil, apperr.NotFound(t.entity, key)
			}
			return &item, nil
		})
}

// First returns the first record selected by q.
func (t *Table[T]) First(ctx context.Context, q Query[T]) (*T, error) {
	return run(ctx, t.b, t.entity, "first",
		func() (*T, error) {
			rows, err := t.sql.List(ctx, q.Scope, q.Order, 1)
			if err != nil {
				return nil, err
			}
			if len(rows) == 0 {
				return nil, errSQLMiss
			}
			return &rows[0], nil
		},
		func() (*T, error) {
			rows, err := t.listJSON(ctx, q)
			if err != nil {
				return nil, err
			}
			if len(rows) == 0 {
				return nil, apperr.NotFound(t.entity, "query")
			}
			return &rows[0], nil
		})
}

// List returns every record selected by q. A successful SQL query is
// authoritative; JSON is only read when SQL is absent or failing.
func (t *Table[T]) List(ctx context.Context, q Query[T]) ([]T, error) {
	return run(ctx, t.b, t.entity, "list",
		func() ([]T, error) { return t.sql.List(ctx, q.Scope, q.Order, q.Limit) },
		func() ([]T, error) { return t.listJSON(ctx, q) })
}

// Count returns how many records q selects.
func (t *Table[T]) Count(ctx context.Context, q Query[T]) (int, error) {
	return run(ctx, t.b, t.entity, "count",
		func() (int, error) {
			n, err := t.sql.Count(ctx, q.Scope)
			return int(n), err
		},
		func() (int, error) {
			q.Limit = 0
			rows, err := t.listJSON(ctx, q)
			return len(rows), err
		})
}

func (t *Table[T]) listJSON(ctx context.Context, q Query[T]) ([]T, error) {
	rows, err := t.json.Filter(ctx, q.Match)
	if err != nil {
		return nil, err
	}
	if q.Less != nil {
		sort.SliceStable(rows, func(i, j int) bool { return q.Less(rows[i], rows[j]) })
	}
	if q.Limit > 0 && len(rows) > q.Limit {
		rows = rows[:q.Limit]
	}
	return rows, nil
}

// Create inserts item. Unique keys are enforced on both backends.
func (t *Table[T]) Create(ctx context.Context, item *T) error {
	_, err := run(ctx, t.b, t.entity, "create",
		func() (struct{}, error) { return struct{}{}, t.sql.Create(ctx, item) },
		func() (struct{}, error) {
			return struct{}{}, t.json.Update(ctx, func(items []T) ([]T, error) {
				for _, existing := range items {
					if t.conflict != nil && t.conflict(existing, *item) {
						return nil, apperr.Conflict("%s already exists", t.entity)
					}
				}
				return append(items, *item), nil
			})
		})
	return err
}

// Update applies mutate to the record matching key and returns the result.
// Errors returned by mutate propagate unchanged and never trigger fallback.
func (t *Table[T]) Update(ctx context.Context, key string, mutate func(*T) error) (*T, error) {
	return run(ctx, t.b, t.entity, "update",
		func() (*T, error) {
			return t.sql.Update(ctx, key, func(v *T) error {
				return abort(func() error { return mutate(v) })
			})
		},
		func() (*T, error) {
			var out T
			err := t.json.Update(ctx, func(items []T) ([]T, error) {
				for i := range items {
					if !items[i].Matches(key) {
						continue
					}
					next := items[i]
					if err := mutate(&next); err != nil {
						return nil, err
					}
					items[i] = next
					out = next
					return items, nil
				}
				return nil, apperr.NotFound(t.entity, key)
			})
			if err != nil {
				return nil, err
			}
			return &out, nil
		})
}

// Delete removes the record matching key.
func (t *Table[T]) Delete(ctx context.Context, key string) error {
	_, err := run(ctx, t.b, t.entity, "delete",
		func() (struct{}, error) { return struct{}{}, t.sql.Delete(ctx, key) },
		func() (struct{}, error) {
			n, err := t.json.Delete(ctx, func(v T) bool { return v.Matches(key) })
			if err != nil {
				return struct{}{}, err
			}
			if n == 0 {
				return struct{}{}, apperr.NotFound(t.entity, key)
			}
			return struct{}{}, nil
		})
	return err
}

// DeleteWhere removes every record q selects. Both backends are swept when
// SQL is healthy, so records written during an outage are removed too.
func (t *Table[T]) DeleteWhere(ctx context.Context, q Query[T]) (int, error) {
	return run(ctx, t.b, t.entity, "delete",
		func() (int, error) {
			n, err := t.sql.DeleteWhere(ctx, q.Scope)
			if err != nil {
				return 0, err
			}
			jsonRemoved, err := t.json.Delete(ctx, q.Match)
			if err != nil {
				return 0, abortError{err: err}
			}
			return int(n) + jsonRemoved, nil
		},
		func() (int, error) { return t.json.Delete(ctx, q.Match) })
}

// ScopeWhere is a shorthand for a single SQL condition.
func ScopeWhere(query string, args ...any) repository.Scope {
	return func(db *gorm.DB) *gorm.DB { return db.Where(query, args...) }
}
