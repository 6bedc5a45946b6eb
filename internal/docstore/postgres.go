package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"matelock-backend/internal/metrics"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog/log"
)

// PgxPool is the subset of pgxpool.Pool used by the Postgres store.
type PgxPool interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)
	Ping(ctx context.Context) error
}

// Postgres stores documents as JSONB rows of the documents table. Commits
// lock every row the attempt touched (in path order), compare versions with
// the attempt's reads and write the new contents in the same transaction.
type Postgres struct {
	pool        PgxPool
	feed        Feed
	maxAttempts int
}

// NewPostgres creates a Postgres-backed store. Changes are announced on feed.
func NewPostgres(pool PgxPool, feed Feed) *Postgres {
	if feed == nil {
		feed = NewLocalFeed()
	}
	return &Postgres{pool: pool, feed: feed, maxAttempts: DefaultMaxAttempts}
}

func (s *Postgres) Get(ctx context.Context, path string) (*Snapshot, error) {
	if err := validatePath(path); err != nil {
		return nil, err
	}
	defer observeDB("docstore.get")()

	query := `
		SELECT data, version, updated_at
		FROM documents
		WHERE path = $1
	`
	var data string
	snap := &Snapshot{Path: path, Exists: true}
	err := s.pool.QueryRow(ctx, query, path).Scan(&data, &snap.Version, &snap.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get document %s: %w", path, err)
	}
	snap.Data = json.RawMessage(data)
	return snap, nil
}

func (s *Postgres) RunTransaction(ctx context.Context, fn TxFunc) error {
	return runTransaction(ctx, "postgres", s.maxAttempts, s, fn, s.commit)
}

type pgRow struct {
	data    json.RawMessage
	version int64
}

func (s *Postgres) commit(ctx context.Context, t *txn) error {
	defer observeDB("docstore.commit")()

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	paths := t.paths()
	sort.Strings(paths)

	current := make(map[string]pgRow, len(paths))
	for _, path := range paths {
		var (
			data string
			row  pgRow
		)
		err := tx.QueryRow(ctx, `SELECT data, version FROM documents WHERE path = $1 FOR UPDATE`, path).
			Scan(&data, &row.version)
		switch {
		case errors.Is(err, pgx.ErrNoRows):
		case err != nil:
			return classify(fmt.Errorf("failed to lock document %s: %w", path, err))
		default:
			row.data = json.RawMessage(data)
		}
		if want, ok := t.reads[path]; ok && want != row.version {
			return errConflict
		}
		current[path] = row
	}

	now := time.Now()
	for _, path := range t.order {
		cur := current[path]
		data, exists, err := t.apply(path, cur.data, cur.version != 0)
		if err != nil {
			return err
		}
		switch {
		case !exists && cur.version == 0:
			continue
		case !exists:
			_, err = tx.Exec(ctx, `DELETE FROM documents WHERE path = $1`, path)
		case cur.version == 0:
			_, err = tx.Exec(ctx, `
				INSERT INTO documents (path, collection, data, version, updated_at)
				VALUES ($1, $2, $3, nextval('documents_version_seq'), $4)
			`, path, Collection(path), string(data), now)
		default:
			_, err = tx.Exec(ctx, `
				UPDATE documents
				SET data = $2, version = nextval('documents_version_seq'), updated_at = $3
				WHERE path = $1
			`, path, string(data), now)
		}
		if err != nil {
			return classify(fmt.Errorf("failed to write document %s: %w", path, err))
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return classify(fmt.Errorf("failed to commit transaction: %w", err))
	}

	for _, path := range t.order {
		if err := s.feed.Publish(ctx, path); err != nil {
			log.Warn().Err(err).Str("path", path).Msg("Failed to publish document change")
		}
	}
	return nil
}

// classify turns races that Postgres detects itself into retryable conflicts.
func classify(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505", "40001", "40P01":
			return fmt.Errorf("%w: %s", errConflict, pgErr.Message)
		}
	}
	return err
}

func (s *Postgres) FindFirst(ctx context.Context, collection, field, value string) (*Snapshot, error) {
	defer observeDB("docstore.find")()

	query := `
		SELECT path, data, version, updated_at
		FROM documents
		WHERE collection = $1 AND data->>$2 = $3
		ORDER BY path
		LIMIT 1
	`
	var data string
	snap := &Snapshot{Exists: true}
	err := s.pool.QueryRow(ctx, query, collection, field, value).
		Scan(&snap.Path, &data, &snap.Version, &snap.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to query %s: %w", collection, err)
	}
	snap.Data = json.RawMessage(data)
	return snap, nil
}

func (s *Postgres) Watch(ctx context.Context, path string) (*Subscription, error) {
	return watch(ctx, s, s.feed, path)
}

func (s *Postgres) Ping(ctx context.Context) error {
	defer observeDB("docstore.ping")()
	return s.pool.Ping(ctx)
}

func observeDB(operation string) func() {
	start := time.Now()
	return func() {
		metrics.ObserveDBLatency(operation, start)
	}
}
