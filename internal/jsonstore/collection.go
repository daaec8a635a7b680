package jsonstore

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/sirupsen/logrus"
)

// Collection is a typed view over one collection file family.
type Collection[T any] struct {
	store *Store
	name  string
}

// NewCollection binds a typed collection to the store.
func NewCollection[T any](store *Store, name string) *Collection[T] {
	return &Collection[T]{store: store, name: name}
}

// Name returns the collection (file) name.
func (c *Collection[T]) Name() string { return c.name }

// Load returns every record in file order.
func (c *Collection[T]) Load(ctx context.Context) ([]T, error) {
	unlock, err := c.store.lock(ctx, c.name)
	if err != nil {
		return nil, err
	}
	defer unlock()
	return c.load()
}

// Save overwrites the collection with items.
func (c *Collection[T]) Save(ctx context.Context, items []T) error {
	unlock, err := c.store.lock(ctx, c.name)
	if err != nil {
		return err
	}
	defer unlock()
	return c.save(items)
}

// Update runs a read-modify-write cycle under the collection lock. When fn
// returns an error nothing is written and the error is returned unchanged.
func (c *Collection[T]) Update(ctx context.Context, fn func(items []T) ([]T, error)) error {
	unlock, err := c.store.lock(ctx, c.name)
	if err != nil {
		return err
	}
	defer unlock()
	items, err := c.load()
	if err != nil {
		return err
	}
	next, err := fn(items)
	if err != nil {
		return err
	}
	return c.save(next)
}

// Find returns the first record matching pred.
func (c *Collection[T]) Find(ctx context.Context, pred func(T) bool) (T, bool, error) {
	var zero T
	items, err := c.Load(ctx)
	if err != nil {
		return zero, false, err
	}
	for _, item := range items {
		if pred(item) {
			return item, true, nil
		}
	}
	return zero, false, nil
}

// Filter returns every record matching pred, in file order.
func (c *Collection[T]) Filter(ctx context.Context, pred func(T) bool) ([]T, error) {
	items, err := c.Load(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]T, 0, len(items))
	for _, item := range items {
		if pred == nil || pred(item) {
			out = append(out, item)
		}
	}
	return out, nil
}

// Upsert replaces the first record matching match, or appends item.
func (c *Collection[T]) Upsert(ctx context.Context, item T, match func(T) bool) error {
	return c.Update(ctx, func(items []T) ([]T, error) {
		for i := range items {
			if match(items[i]) {
				items[i] = item
				return items, nil
			}
		}
		return append(items, item), nil
	})
}

// Delete removes every record matching match and reports how many went.
func (c *Collection[T]) Delete(ctx context.Context, match func(T) bool) (int, error) {
	removed := 0
	err := c.Update(ctx, func(items []T) ([]T, error) {
		kept := items[:0]
		for _, item := range items {
			if match(item) {
				removed++
				continue
			}
			kept = append(kept, item)
		}
		return kept, nil
	})
	return removed, err
}

func (c *Collection[T]) load() ([]T, error) {
	raw, err := c.store.readRaw(c.name)
	if err != nil {
		return nil, err
	}
	out := make([]T, 0, len(raw))
	for i, r := range raw {
		var item T
		if err := json.Unmarshal(r, &item); err != nil {
			c.store.log.WithFields(logrus.Fields{"collection": c.name, "index": i, "error": err}).
				Warn("skipping undecodable record")
			continue
		}
		out = append(out, item)
	}
	return out, nil
}

func (c *Collection[T]) save(items []T) error {
	raw := make([]json.RawMessage, 0, len(items))
	for i := range items {
		data, err := json.Marshal(items[i])
		if err != nil {
			return fmt.Errorf("encode %s record %d: %w", c.name, i, err)
		}
		raw = append(raw, data)
	}
	return c.store.writeRaw(c.name, raw)
}
