package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"fuel-registry/internal/docstore"

	"github.com/jackc/pgx/v5/pgconn"
)

const (
	defaultTable      = "documents"
	defaultMaxRetries = 30
	defaultBackoff    = 5 * time.Millisecond
	maxBackoff        = 250 * time.Millisecond
)

// DBTX is the subset of *sql.DB and *sql.Tx used by the store.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store keeps documents in one JSONB table keyed by (collection, id).
type Store struct {
	db         *sql.DB
	table      string
	maxRetries int
	backoff    time.Duration
}

var _ docstore.Store = (*Store)(nil)

// Option configures the store.
type Option func(*Store)

// WithTable overrides the default table name.
func WithTable(table string) Option {
	return func(s *Store) {
		if table != "" {
			s.table = table
		}
	}
}

// WithMaxRetries overrides how often a transaction is retried on serialization failure.
func WithMaxRetries(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.maxRetries = n
		}
	}
}

// WithRetryBackoff sets the base delay between transaction attempts.
// The delay doubles per attempt up to a cap and is jittered; zero disables waiting.
func WithRetryBackoff(d time.Duration) Option {
	return func(s *Store) {
		if d >= 0 {
			s.backoff = d
		}
	}
}

// NewStore constructs a store.
func NewStore(db *sql.DB, opts ...Option) (*Store, error) {
	if db == nil {
		return nil, errors.New("postgres store: nil db")
	}
	s := &Store{db: db, table: defaultTable, maxRetries: defaultMaxRetries, backoff: defaultBackoff}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Get loads one document.
func (s *Store) Get(ctx context.Context, collection, id string) (docstore.Doc, error) {
	return getDoc(ctx, s.db, fmt.Sprintf(`SELECT data FROM %s WHERE collection = $1 AND id = $2`, s.table), collection, id)
}

// List returns every document of a collection ordered by id.
func (s *Store) List(ctx context.Context, collection string) ([]docstore.Doc, error) {
	query := fmt.Sprintf(`SELECT id, data FROM %s WHERE collection = $1 ORDER BY id`, s.table)
	return s.queryDocs(ctx, collection, query, collection)
}

// FindEqual returns documents whose field equals value.
func (s *Store) FindEqual(ctx context.Context, collection, field string, value any) ([]docstore.Doc, error) {
	if field == "" {
		return nil, errors.New("postgres store: empty field")
	}
	filter, err := json.Marshal(map[string]any{field: value})
	if err != nil {
		return nil, err
	}
	query := fmt.Sprintf(`SELECT id, data FROM %s WHERE collection = $1 AND data @> $2::jsonb ORDER BY id`, s.table)
	return s.queryDocs(ctx, collection, query, collection, string(filter))
}

// FindIn returns documents whose field equals one of values.
func (s *Store) FindIn(ctx context.Context, collection, field string, values []any) ([]docstore.Doc, error) {
	if len(values) > docstore.MaxInValues {
		return nil, docstore.ErrTooManyValues
	}
	if len(values) == 0 {
		return nil, nil
	}
	list, err := json.Marshal(values)
	if err != nil {
		return nil, err
	}
	query := fmt.Sprintf(`SELECT id, data FROM %s WHERE collection = $1 AND (data -> $2) IN (SELECT value FROM jsonb_array_elements($3::jsonb)) ORDER BY id`, s.table)
	return s.queryDocs(ctx, collection, query, collection, field, string(list))
}

func (s *Store) queryDocs(ctx context.Context, collection, query string, args ...any) ([]docstore.Doc, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []docstore.Doc
	for rows.Next() {
		var (
			id   string
			data []byte
		)
		if err := rows.Scan(&id, &data); err != nil {
			return nil, err
		}
		out = append(out, docstore.Doc{Collection: collection, ID: id, Data: json.RawMessage(data)})
	}
	return out, rows.Err()
}

// Commit applies all ops in one database transaction.
func (s *Store) Commit(ctx context.Context, ops []docstore.Op) error {
	if len(ops) == 0 {
		return nil
	}
	for _, op := range ops {
		if err := op.Validate(); err != nil {
			return err
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	for _, op := range ops {
		if err := s.apply(ctx, tx, op); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *Store) apply(ctx context.Context, db DBTX, op docstore.Op) error {
	if op.Kind == docstore.OpDelete {
		_, err := db.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE collection = $1 AND id = $2`, s.table), op.Collection, op.ID)
		return err
	}
	body, err := op.Body()
	if err != nil {
		return err
	}

	switch op.Kind {
	case docstore.OpSet:
		_, err = db.ExecContext(ctx, fmt.Sprintf(`INSERT INTO %s (collection, id, data) VALUES ($1, $2, $3::jsonb) ON CONFLICT (collection, id) DO UPDATE SET data = EXCLUDED.data, updated_at = NOW()`, s.table),
			op.Collection, op.ID, string(body))
		return err
	case docstore.OpMerge:
		_, err = db.ExecContext(ctx, fmt.Sprintf(`INSERT INTO %[1]s (collection, id, data) VALUES ($1, $2, $3::jsonb) ON CONFLICT (collection, id) DO UPDATE SET data = %[1]s.data || EXCLUDED.data, updated_at = NOW()`, s.table),
			op.Collection, op.ID, string(body))
		return err
	case docstore.OpUpdate:
		res, err := db.ExecContext(ctx, fmt.Sprintf(`UPDATE %s SET data = data || $3::jsonb, updated_at = NOW() WHERE collection = $1 AND id = $2`, s.table),
			op.Collection, op.ID, string(body))
		if err != nil {
			return err
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if affected == 0 {
			return op.MissingTarget()
		}
		return nil
	}
	return fmt.Errorf("%w: %s", docstore.ErrInvalidOp, op.Kind)
}

// RunTransaction runs fn in a SERIALIZABLE transaction, retrying on serialization failures.
func (s *Store) RunTransaction(ctx context.Context, fn func(ctx context.Context, tx docstore.Tx) error) error {
	if fn == nil {
		return errors.New("postgres store: nil transaction func")
	}
	var err error
	for attempt := 1; attempt <= s.maxRetries; attempt++ {
		err = s.runOnce(ctx, fn)
		if err == nil || !isRetryable(err) {
			return err
		}
		if attempt == s.maxRetries {
			break
		}
		if waitErr := s.wait(ctx, attempt); waitErr != nil {
			return waitErr
		}
	}
	return fmt.Errorf("postgres store: transaction gave up after %d attempts: %w", s.maxRetries, err)
}

// wait sleeps a jittered, exponentially growing delay before the next attempt.
func (s *Store) wait(ctx context.Context, attempt int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	delay := retryDelay(s.backoff, attempt)
	if delay <= 0 {
		return nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func retryDelay(base time.Duration, attempt int) time.Duration {
	if base <= 0 {
		return 0
	}
	delay := base
	for i := 1; i < attempt && delay < maxBackoff; i++ {
		delay *= 2
	}
	if delay > maxBackoff {
		delay = maxBackoff
	}
	// full jitter in [delay/2, delay)
	half := delay / 2
	return half + rand.N(half+1)
}

func (s *Store) runOnce(ctx context.Context, fn func(ctx context.Context, tx docstore.Tx) error) error {
	sqlTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return err
	}
	defer func() { _ = sqlTx.Rollback() }()

	if err := fn(ctx, &pgTx{store: s, tx: sqlTx}); err != nil {
		return err
	}
	return sqlTx.Commit()
}

type pgTx struct {
	store *Store
	tx    *sql.Tx
}

func (t *pgTx) Get(ctx context.Context, collection, id string) (docstore.Doc, error) {
	query := fmt.Sprintf(`SELECT data FROM %s WHERE collection = $1 AND id = $2 FOR UPDATE`, t.store.table)
	return getDoc(ctx, t.tx, query, collection, id)
}

func (t *pgTx) Set(ctx context.Context, collection, id string, data any) error {
	return t.store.apply(ctx, t.tx, docstore.Set(collection, id, data))
}

func getDoc(ctx context.Context, db DBTX, query, collection, id string) (docstore.Doc, error) {
	var data []byte
	if err := db.QueryRowContext(ctx, query, collection, id).Scan(&data); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return docstore.Doc{}, docstore.ErrNotFound
		}
		return docstore.Doc{}, err
	}
	return docstore.Doc{Collection: collection, ID: id, Data: json.RawMessage(data)}, nil
}

func isRetryable(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	// serialization_failure, deadlock_detected
	return pgErr.Code == "40001" || pgErr.Code == "40P01"
}
