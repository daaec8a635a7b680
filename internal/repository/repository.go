// Package repository wraps the SQL queries used by the stores. One generic
// Repository serves every entity; the key columns decide which identifiers a
// lookup accepts (for example a submission's uuid or its SUB- id).
package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"
)

// ErrNotFound is returned when no row matches. It wraps gorm.ErrRecordNotFound
// so callers can test for either.
var ErrNotFound = fmt.Errorf("record not found: %w", gorm.ErrRecordNotFound)

// Scope narrows a query.
type Scope func(*gorm.DB) *gorm.DB

// Repository runs SQL for one model type.
type Repository[T any] struct {
	db   *gorm.DB
	keys []string
}

// New constructs a repository. keys lists the columns a key may match.
func New[T any](db *gorm.DB, keys ...string) *Repository[T] {
	if len(keys) == 0 {
		keys = []string{"id"}
	}
	return &Repository[T]{db: db, keys: keys}
}

func (r *Repository[T]) byKey(db *gorm.DB, key string) *gorm.DB {
	clauses := make([]string, len(r.keys))
	args := make([]any, len(r.keys))
	for i, col := range r.keys {
		clauses[i] = col + " = ?"
		args[i] = key
	}
	return db.Where(strings.Join(clauses, " OR "), args...)
}

// Get returns the row matching key.
func (r *Repository[T]) Get(ctx context.Context, key string) (*T, error) {
	var out T
	err := r.byKey(r.db.WithContext(ctx), key).Take(&out).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select: %w", err)
	}
	return &out, nil
}

// List returns rows selected by scope, ordered by order when set.
func (r *Repository[T]) List(ctx context.Context, scope Scope, order string, limit int) ([]T, error) {
	q := r.db.WithContext(ctx).Model(new(T))
	if scope != nil {
		q = scope(q)
	}
	if order != "" {
		q = q.Order(order)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}
	var out []T
	if err := q.Find(&out).Error; err != nil {
		return nil, fmt.Errorf("list: %w", err)
	}
	return out, nil
}

// Count returns how many rows scope selects.
func (r *Repository[T]) Count(ctx context.Context, scope Scope) (int64, error) {
	q := r.db.WithContext(ctx).Model(new(T))
	if scope != nil {
		q = scope(q)
	}
	var n int64
	if err := q.Count(&n).Error; err != nil {
		return 0, fmt.Errorf("count: %w", err)
	}
	return n, nil
}

// Create inserts item.
func (r *Repository[T]) Create(ctx context.Context, item *T) error {
	if err := r.db.WithContext(ctx).Create(item).Error; err != nil {
		return fmt.Errorf("insert: %w", err)
	}
	return nil
}

// Update loads the row matching key inside a transaction, lets mutate change
// it and saves it. An error from mutate rolls back and is returned unchanged.
func (r *Repository[T]) Update(ctx context.Context, key string, mutate func(*T) error) (*T, error) {
	var out T
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := r.byKey(tx, key).Take(&out).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return fmt.Errorf("select for update: %w", err)
		}
		if err := mutate(&out); err != nil {
			return err
		}
		if err := tx.Save(&out).Error; err != nil {
			return fmt.Errorf("save: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// Delete removes the row matching key. Deleting nothing returns ErrNotFound.
func (r *Repository[T]) Delete(ctx context.Context, key string) error {
	res := r.byKey(r.db.WithContext(ctx), key).Delete(new(T))
	if res.Error != nil {
		return fmt.Errorf("delete: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteWhere removes every row scope selects and reports how many went.
func (r *Repository[T]) DeleteWhere(ctx context.Context, scope Scope) (int64, error) {
	q := r.db.WithContext(ctx)
	if scope != nil {
		q = scope(q)
	}
	res := q.Delete(new(T))
	if res.Error != nil {
		return 0, fmt.Errorf("delete: %w", res.Error)
	}
	return res.RowsAffected, nil
}
