package docstore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"matelock-backend/internal/metrics"
)

type mutationKind int

const (
	mutSet mutationKind = iota
	mutUpdate
	mutDelete
)

type mutation struct {
	path    string
	kind    mutationKind
	data    json.RawMessage
	fields  map[string]json.RawMessage
	deletes []string
}

// txn records the read set and buffered writes of one transaction attempt.
type txn struct {
	reader Reader
	reads  map[string]int64
	order  []string
	muts   map[string][]mutation
}

func newTxn(reader Reader) *txn {
	return &txn{
		reader: reader,
		reads:  make(map[string]int64),
		muts:   make(map[string][]mutation),
	}
}

func (t *txn) Get(ctx context.Context, path string) (*Snapshot, error) {
	if err := validatePath(path); err != nil {
		return nil, err
	}
	snap, err := t.reader.Get(ctx, path)
	switch {
	case errors.Is(err, ErrNotFound):
		t.recordRead(path, 0)
		return nil, err
	case err != nil:
		return nil, err
	}
	t.recordRead(path, snap.Version)
	return snap, nil
}

// recordRead keeps the first version seen so a changed re-read fails the commit.
func (t *txn) recordRead(path string, version int64) {
	if _, ok := t.reads[path]; !ok {
		t.reads[path] = version
	}
}

func (t *txn) add(m mutation) {
	if _, ok := t.muts[m.path]; !ok {
		t.order = append(t.order, m.path)
	}
	t.muts[m.path] = append(t.muts[m.path], m)
}

func (t *txn) Set(path string, v any) error {
	if err := validatePath(path); err != nil {
		return err
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", path, err)
	}
	if !bytes.HasPrefix(bytes.TrimSpace(data), []byte("{")) {
		return fmt.Errorf("document %s must be a JSON object", path)
	}
	t.add(mutation{path: path, kind: mutSet, data: data})
	return nil
}

func (t *txn) Update(path string, fields map[string]any) error {
	if err := validatePath(path); err != nil {
		return err
	}
	m := mutation{path: path, kind: mutUpdate, fields: make(map[string]json.RawMessage, len(fields))}
	for name, value := range fields {
		if value == DeleteField {
			m.deletes = append(m.deletes, name)
			continue
		}
		data, err := json.Marshal(value)
		if err != nil {
			return fmt.Errorf("failed to encode field %s of %s: %w", name, path, err)
		}
		m.fields[name] = data
	}
	t.add(m)
	return nil
}

func (t *txn) Delete(path string) {
	if validatePath(path) != nil {
		return
	}
	t.add(mutation{path: path, kind: mutDelete})
}

// paths returns every path the attempt read or wrote.
func (t *txn) paths() []string {
	seen := make(map[string]bool, len(t.reads)+len(t.order))
	var out []string
	for p := range t.reads {
		seen[p] = true
		out = append(out, p)
	}
	for _, p := range t.order {
		if !seen[p] {
			out = append(out, p)
		}
	}
	return out
}

// apply folds the buffered mutations of path over its current content.
func (t *txn) apply(path string, cur json.RawMessage, exists bool) (json.RawMessage, bool, error) {
	for _, m := range t.muts[path] {
		switch m.kind {
		case mutSet:
			cur, exists = m.data, true
		case mutDelete:
			cur, exists = nil, false
		case mutUpdate:
			if !exists {
				return nil, false, fmt.Errorf("update %s: %w", path, ErrNotFound)
			}
			fields := map[string]json.RawMessage{}
			if err := json.Unmarshal(cur, &fields); err != nil {
				return nil, false, fmt.Errorf("failed to decode %s: %w", path, err)
			}
			for _, name := range m.deletes {
				delete(fields, name)
			}
			for name, value := range m.fields {
				fields[name] = value
			}
			merged, err := json.Marshal(fields)
			if err != nil {
				return nil, false, fmt.Errorf("failed to encode %s: %w", path, err)
			}
			cur, exists = merged, true
		}
	}
	return cur, exists, nil
}

// runTransaction re-runs fn until commit succeeds, fn fails, or the attempts
// are used up. Only commit conflicts are retried.
func runTransaction(ctx context.Context, backend string, maxAttempts int, reader Reader, fn TxFunc, commit func(context.Context, *txn) error) error {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		t := newTxn(reader)
		if err := fn(ctx, t); err != nil {
			metrics.ObserveTransaction(backend, metrics.TxAborted)
			return err
		}
		if len(t.order) == 0 {
			metrics.ObserveTransaction(backend, metrics.TxReadOnly)
			return nil
		}
		err := commit(ctx, t)
		if err == nil {
			metrics.ObserveTransaction(backend, metrics.TxCommitted)
			return nil
		}
		if !errors.Is(err, errConflict) {
			metrics.ObserveTransaction(backend, metrics.TxFailed)
			return err
		}
		metrics.ObserveTransaction(backend, metrics.TxConflict)
	}
	return ErrTooMuchContention
}
