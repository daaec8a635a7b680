// Package jsonstore persists entity collections as JSON files under a data
// directory. Each collection lives in <name>.json, or in numbered chunk files
// <name>.<i>.json once its encoded size passes the shard threshold. A legacy
// combined database.json is migrated into per-collection files on first read.
package jsonstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"

	"github.com/dharsanguruparan/esubmit/internal/apperr"
)

const (
	// FormatVersion is written into every envelope.
	FormatVersion = "1.0.0"
	// DefaultShardThreshold is the largest file written before a collection is
	// split into chunks.
	DefaultShardThreshold = 800 * 1024
	// DefaultLegacyFile is the combined document older deployments wrote.
	DefaultLegacyFile = "database.json"
)

// Store owns a data directory and one lock per collection file.
type Store struct {
	dir       string
	threshold int
	legacy    string
	log       *logrus.Entry
	now       func() time.Time

	mu    sync.Mutex
	locks map[string]*semaphore.Weighted
}

// Option customizes a Store.
type Option func(*Store)

// WithShardThreshold overrides the 800 KiB shard threshold.
func WithShardThreshold(bytes int) Option {
	return func(s *Store) {
		if bytes > 0 {
			s.threshold = bytes
		}
	}
}

// WithLegacyFile names the combined legacy document.
func WithLegacyFile(name string) Option {
	return func(s *Store) {
		if name != "" {
			s.legacy = name
		}
	}
}

// WithLogger sets the logger used for recoverable read problems.
func WithLogger(log *logrus.Entry) Option {
	return func(s *Store) {
		if log != nil {
			s.log = log
		}
	}
}

// WithClock replaces time.Now for lastUpdated stamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// Open creates the data directory if needed and returns a Store rooted there.
func Open(dir string, opts ...Option) (*Store, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, apperr.Storage("create data dir", err)
	}
	s := &Store{
		dir:       dir,
		threshold: DefaultShardThreshold,
		legacy:    DefaultLegacyFile,
		log:       logrus.NewEntry(logrus.StandardLogger()),
		now:       time.Now,
		locks:     make(map[string]*semaphore.Weighted),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.WithField("component", "jsonstore")
	return s, nil
}

// Dir returns the data directory.
func (s *Store) Dir() string { return s.dir }

// Threshold returns the shard threshold in bytes.
func (s *Store) Threshold() int { return s.threshold }

// lock serializes read-modify-write cycles on a single collection. Different
// collections never block each other.
func (s *Store) lock(ctx context.Context, name string) (func(), error) {
	s.mu.Lock()
	sem, ok := s.locks[name]
	if !ok {
		sem = semaphore.NewWeighted(1)
		s.locks[name] = sem
	}
	s.mu.Unlock()
	if err := sem.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("lock %s: %w", name, err)
	}
	return func() { sem.Release(1) }, nil
}

// envelope is the on-disk wrapper. Chunk files also carry their position.
type envelope struct {
	Version     string            `json:"version"`
	LastUpdated string            `json:"lastUpdated"`
	ChunkIndex  *int              `json:"chunkIndex,omitempty"`
	TotalChunks *int              `json:"totalChunks,omitempty"`
	Items       []json.RawMessage `json:"items"`
}

// snapshot is one decoded representation of a collection.
type snapshot struct {
	items   []json.RawMessage
	updated time.Time
	found   bool
}

func (s *Store) singlePath(name string) string {
	return filepath.Join(s.dir, name+".json")
}

func (s *Store) chunkPath(name string, index int) string {
	return filepath.Join(s.dir, name+"."+strconv.Itoa(index)+".json")
}

// readRaw returns the encoded items of a collection, reassembling chunks and
// migrating the legacy document when needed. Caller holds the lock.
func (s *Store) readRaw(name string) ([]json.RawMessage, error) {
	single, err := s.readSingle(name)
	if err != nil {
		return nil, err
	}
	chunks, err := s.readChunks(name)
	if err != nil {
		return nil, err
	}
	switch {
	case single.found && chunks.found:
		// An interrupted write can leave both; the newer one is authoritative.
		if chunks.updated.After(single.updated) {
			return chunks.items, nil
		}
		return single.items, nil
	case chunks.found:
		return chunks.items, nil
	case single.found:
		return single.items, nil
	}
	return s.migrateLegacy(name)
}

func (s *Store) readSingle(name string) (snapshot, error) {
	data, err := os.ReadFile(s.singlePath(name))
	if errors.Is(err, os.ErrNotExist) {
		return snapshot{}, nil
	}
	if err != nil {
		return snapshot{}, apperr.Storage("read "+name, err)
	}
	items, updated, err := decodeDocument(data)
	if err != nil {
		s.log.WithFields(logrus.Fields{"file": s.singlePath(name), "error": err}).
			Warn("malformed json file, treating collection as empty")
		return snapshot{found: true}, nil
	}
	return snapshot{items: items, updated: updated, found: true}, nil
}

func (s *Store) readChunks(name string) (snapshot, error) {
	var out snapshot
	for i := 0; ; i++ {
		data, err := os.ReadFile(s.chunkPath(name, i))
		if errors.Is(err, os.ErrNotExist) {
			return out, nil
		}
		if err != nil {
			return snapshot{}, apperr.Storage("read "+name+" chunk", err)
		}
		items, updated, err := decodeDocument(data)
		if err != nil {
			s.log.WithFields(logrus.Fields{"file": s.chunkPath(name, i), "error": err}).
				Warn("malformed chunk file, ignoring remaining chunks")
			return out, nil
		}
		if !out.found {
			out.updated = updated
		}
		out.found = true
		out.items = append(out.items, items...)
	}
}

func (s *Store) migrateLegacy(name string) ([]json.RawMessage, error) {
	path := filepath.Join(s.dir, s.legacy)
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.Storage("read legacy database", err)
	}
	var legacy map[string]json.RawMessage
	if err := json.Unmarshal(data, &legacy); err != nil {
		s.log.WithFields(logrus.Fields{"file": path, "error": err}).Warn("malformed legacy database")
		return nil, nil
	}
	raw, ok := legacy[name]
	if !ok {
		return nil, nil
	}
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil || len(items) == 0 {
		return nil, nil
	}
	if err := s.writeRaw(name, items); err != nil {
		return nil, err
	}
	s.log.WithFields(logrus.Fields{"collection": name, "items": len(items)}).
		Info("migrated collection from legacy database")
	return items, nil
}

// decodeDocument accepts the envelope, a bare array, or {"data": [...]}.
func decodeDocument(data []byte) ([]json.RawMessage, time.Time, error) {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, time.Time{}, err
	}
	if _, ok := raw.([]any); ok {
		var items []json.RawMessage
		if err := json.Unmarshal(data, &items); err != nil {
			return nil, time.Time{}, err
		}
		return items, time.Time{}, nil
	}
	var doc struct {
		LastUpdated string            `json:"lastUpdated"`
		Items       []json.RawMessage `json:"items"`
		Data        []json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, time.Time{}, err
	}
	updated, _ := time.Parse(time.RFC3339Nano, doc.LastUpdated)
	if doc.Items != nil {
		return doc.Items, updated, nil
	}
	return doc.Data, updated, nil
}

// writeRaw persists items as a single file when they fit under the threshold
// and as chunk files otherwise, then removes whichever representation is
// stale. Caller holds the lock.
func (s *Store) writeRaw(name string, items []json.RawMessage) error {
	if items == nil {
		items = []json.RawMessage{}
	}
	stamp := s.now().UTC().Format(time.RFC3339Nano)
	single, err := json.Marshal(envelope{Version: FormatVersion, LastUpdated: stamp, Items: items})
	if err != nil {
		return fmt.Errorf("encode %s: %w", name, err)
	}
	if len(single) <= s.threshold {
		if err := writeAtomic(s.singlePath(name), single); err != nil {
			return apperr.Storage("write "+name, err)
		}
		return s.removeChunks(name, 0)
	}

	batches := s.pack(stamp, items)
	for i, batch := range batches {
		index, total := i, len(batches)
		data, err := json.Marshal(envelope{
			Version:     FormatVersion,
			LastUpdated: stamp,
			ChunkIndex:  &index,
			TotalChunks: &total,
			Items:       batch,
		})
		if err != nil {
			return fmt.Errorf("encode %s chunk %d: %w", name, i, err)
		}
		if err := writeAtomic(s.chunkPath(name, i), data); err != nil {
			return apperr.Storage("write "+name+" chunk", err)
		}
	}
	if err := s.removeChunks(name, len(batches)); err != nil {
		return err
	}
	if err := os.Remove(s.singlePath(name)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return apperr.Storage("remove "+name, err)
	}
	s.log.WithFields(logrus.Fields{"collection": name, "chunks": len(batches), "bytes": len(single)}).
		Debug("collection sharded")
	return nil
}

// pack greedily fills chunks with consecutive items. An item that alone
// exceeds the threshold gets a chunk of its own.
func (s *Store) pack(stamp string, items []json.RawMessage) [][]json.RawMessage {
	big := 1 << 30
	empty, _ := json.Marshal(envelope{
		Version:     FormatVersion,
		LastUpdated: stamp,
		ChunkIndex:  &big,
		TotalChunks: &big,
		Items:       []json.RawMessage{},
	})
	overhead := len(empty)

	var (
		out     [][]json.RawMessage
		current []json.RawMessage
		size    = overhead
	)
	for _, item := range items {
		cost := len(item)
		if len(current) > 0 {
			cost++ // separating comma
		}
		if len(current) > 0 && size+cost > s.threshold {
			out = append(out, current)
			current = nil
			size = overhead
			cost = len(item)
		}
		current = append(current, item)
		size += cost
	}
	if len(current) > 0 {
		out = append(out, current)
	}
	return out
}

var chunkName = regexp.MustCompile(`^(.+)\.(\d+)\.json$`)

// removeChunks deletes chunk files of name whose index is >= from.
func (s *Store) removeChunks(name string, from int) error {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return apperr.Storage("list data dir", err)
	}
	for _, e := range entries {
		m := chunkName.FindStringSubmatch(e.Name())
		if m == nil || m[1] != name {
			continue
		}
		index, err := strconv.Atoi(m[2])
		if err != nil || index < from {
			continue
		}
		if err := os.Remove(filepath.Join(s.dir, e.Name())); err != nil && !errors.Is(err, os.ErrNotExist) {
			return apperr.Storage("remove stale chunk", err)
		}
	}
	return nil
}

func writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+"-*.tmp")
	if err != nil {
		return err
	}
	name := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(name)
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(name)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(name)
		return err
	}
	return os.Rename(name, path)
}

// Layout describes how a collection is currently stored.
type Layout struct {
	Name   string   `json:"name" yaml:"name"`
	Files  []string `json:"files" yaml:"files"`
	Bytes  int64    `json:"bytes" yaml:"bytes"`
	Items  int      `json:"items" yaml:"items"`
	Shards int      `json:"shards" yaml:"shards"`
}

// Describe reports the files backing a collection.
func (s *Store) Describe(ctx context.Context, name string) (Layout, error) {
	unlock, err := s.lock(ctx, name)
	if err != nil {
		return Layout{}, err
	}
	defer unlock()
	items, err := s.readRaw(name)
	if err != nil {
		return Layout{}, err
	}
	layout := Layout{Name: name, Items: len(items)}
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return Layout{}, apperr.Storage("list data dir", err)
	}
	for _, e := range entries {
		m := chunkName.FindStringSubmatch(e.Name())
		isChunk := m != nil && m[1] == name
		if e.Name() != name+".json" && !isChunk {
			continue
		}
		if isChunk {
			layout.Shards++
		}
		if info, err := e.Info(); err == nil {
			layout.Bytes += info.Size()
		}
		layout.Files = append(layout.Files, e.Name())
	}
	sort.Strings(layout.Files)
	return layout, nil
}
