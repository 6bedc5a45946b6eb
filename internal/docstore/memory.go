package docstore

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

type memRecord struct {
	data      json.RawMessage
	version   int64
	updatedAt time.Time
}

// Memory is an in-process Store. Versions come from one store-wide counter,
// so a deleted and re-created document never repeats a version.
type Memory struct {
	mu          sync.RWMutex
	docs        map[string]memRecord
	seq         int64
	feed        Feed
	now         func() time.Time
	maxAttempts int

	// beforeCommit runs between an attempt's reads and its commit; tests use
	// it to inject concurrent writers.
	beforeCommit func()
}

// NewMemory creates an empty in-memory store. A nil feed uses a LocalFeed.
func NewMemory(feed Feed) *Memory {
	if feed == nil {
		feed = NewLocalFeed()
	}
	return &Memory{
		docs:        make(map[string]memRecord),
		feed:        feed,
		now:         time.Now,
		maxAttempts: DefaultMaxAttempts,
	}
}

func (m *Memory) Get(_ context.Context, path string) (*Snapshot, error) {
	if err := validatePath(path); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.docs[path]
	if !ok {
		return nil, ErrNotFound
	}
	return rec.snapshot(path), nil
}

func (r memRecord) snapshot(path string) *Snapshot {
	data := make(json.RawMessage, len(r.data))
	copy(data, r.data)
	return &Snapshot{Path: path, Exists: true, Data: data, Version: r.version, UpdatedAt: r.updatedAt}
}

func (m *Memory) RunTransaction(ctx context.Context, fn TxFunc) error {
	return runTransaction(ctx, "memory", m.maxAttempts, m, fn, m.commit)
}

func (m *Memory) commit(ctx context.Context, t *txn) error {
	if m.beforeCommit != nil {
		m.beforeCommit()
	}

	m.mu.Lock()
	for path, version := range t.reads {
		if m.docs[path].version != version {
			m.mu.Unlock()
			return errConflict
		}
	}

	now := m.now()
	next := make(map[string]*memRecord, len(t.order))
	for _, path := range t.order {
		cur, exists := m.docs[path]
		data, ok, err := t.apply(path, cur.data, exists)
		if err != nil {
			m.mu.Unlock()
			return err
		}
		if !ok {
			next[path] = nil
			continue
		}
		m.seq++
		next[path] = &memRecord{data: data, version: m.seq, updatedAt: now}
	}
	for path, rec := range next {
		if rec == nil {
			delete(m.docs, path)
			continue
		}
		m.docs[path] = *rec
	}
	m.mu.Unlock()

	for _, path := range t.order {
		if err := m.feed.Publish(ctx, path); err != nil {
			log.Warn().Err(err).Str("path", path).Msg("Failed to publish document change")
		}
	}
	return nil
}

func (m *Memory) FindFirst(_ context.Context, collection, field, value string) (*Snapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var paths []string
	for path := range m.docs {
		if Collection(path) == collection {
			paths = append(paths, path)
		}
	}
	sort.Strings(paths)
	for _, path := range paths {
		rec := m.docs[path]
		var fields map[string]any
		if err := json.Unmarshal(rec.data, &fields); err != nil {
			continue
		}
		if s, ok := fields[field].(string); ok && s == value {
			return rec.snapshot(path), nil
		}
	}
	return nil, ErrNotFound
}

func (m *Memory) Watch(ctx context.Context, path string) (*Subscription, error) {
	return watch(ctx, m, m.feed, path)
}

func (m *Memory) Ping(context.Context) error { return nil }
