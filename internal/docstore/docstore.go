// Package docstore is a small document database abstraction: JSON documents
// addressed by slash-separated paths, optimistic read-modify-write
// transactions and change subscriptions.
package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrNotFound is returned when a document does not exist.
	ErrNotFound = errors.New("document not found")
	// ErrTooMuchContention is returned when a transaction kept conflicting
	// with concurrent commits.
	ErrTooMuchContention = errors.New("transaction aborted: too much contention")

	errConflict = errors.New("commit conflict")
)

// DefaultMaxAttempts bounds how often a conflicting transaction is re-run.
const DefaultMaxAttempts = 5

// Snapshot is a document as read at a point in time
type Snapshot struct {
	Path      string
	Exists    bool
	Data      json.RawMessage
	Version   int64
	UpdatedAt time.Time
}

// ID returns the last path element.
func (s *Snapshot) ID() string {
	return PathID(s.Path)
}

// DataTo decodes the document into v.
func (s *Snapshot) DataTo(v any) error {
	if !s.Exists {
		return ErrNotFound
	}
	if err := json.Unmarshal(s.Data, v); err != nil {
		return fmt.Errorf("failed to decode %s: %w", s.Path, err)
	}
	return nil
}

// Reader reads committed documents.
type Reader interface {
	// Get returns ErrNotFound for missing documents.
	Get(ctx context.Context, path string) (*Snapshot, error)
}

// Tx is the handle passed to a transaction function. Writes are buffered and
// applied atomically on commit, after every read of the attempt has been
// checked against the current version.
type Tx interface {
	Reader
	// Set replaces the whole document.
	Set(path string, v any) error
	// Update merges top-level fields into an existing document. A field set
	// to DeleteField is removed.
	Update(path string, fields map[string]any) error
	// Delete removes the document; deleting a missing document is a no-op.
	Delete(path string)
}

// TxFunc is run once per attempt. Returning an error aborts the transaction
// and that error is returned from RunTransaction unchanged.
type TxFunc func(ctx context.Context, tx Tx) error

// Store is the document database used by the services.
type Store interface {
	Reader
	RunTransaction(ctx context.Context, fn TxFunc) error
	// FindFirst returns the first document of collection whose top-level
	// string field equals value.
	FindFirst(ctx context.Context, collection, field, value string) (*Snapshot, error)
	// Watch pushes the current snapshot of path and then every newer one.
	Watch(ctx context.Context, path string) (*Subscription, error)
	Ping(ctx context.Context) error
}

type deleteField struct{}

// DeleteField removes a field when used as a value in Tx.Update.
var DeleteField any = deleteField{}

// Join builds a document path from its segments.
func Join(segments ...string) string {
	return strings.Join(segments, "/")
}

// PathID returns the last segment of path.
func PathID(path string) string {
	if i := strings.LastIndexByte(path, '/'); i >= 0 {
		return path[i+1:]
	}
	return path
}

// Collection returns the collection part of a document path.
func Collection(path string) string {
	if i := strings.LastIndexByte(path, '/'); i >= 0 {
		return path[:i]
	}
	return ""
}

func validatePath(path string) error {
	parts := strings.Split(path, "/")
	if len(parts)%2 != 0 {
		return fmt.Errorf("invalid document path %q", path)
	}
	for _, p := range parts {
		if p == "" {
			return fmt.Errorf("invalid document path %q", path)
		}
	}
	return nil
}

// SetDocument writes a single document outside of a caller transaction.
func SetDocument(ctx context.Context, s Store, path string, v any) error {
	return s.RunTransaction(ctx, func(ctx context.Context, tx Tx) error {
		return tx.Set(path, v)
	})
}

// UpdateDocument merges fields into an existing document.
func UpdateDocument(ctx context.Context, s Store, path string, fields map[string]any) error {
	return s.RunTransaction(ctx, func(ctx context.Context, tx Tx) error {
		return tx.Update(path, fields)
	})
}

// DeleteDocument removes a document.
func DeleteDocument(ctx context.Context, s Store, path string) error {
	return s.RunTransaction(ctx, func(ctx context.Context, tx Tx) error {
		tx.Delete(path)
		return nil
	})
}
