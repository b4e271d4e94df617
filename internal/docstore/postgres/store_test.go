package postgres

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"fuel-registry/internal/docstore"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	store, err := NewStore(db, WithMaxRetries(3), WithRetryBackoff(0))
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	return store, mock
}

func TestGetReturnsDocument(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT data FROM documents WHERE collection = $1 AND id = $2`)).
		WithArgs("brands", "b1").
		WillReturnRows(sqlmock.NewRows([]string{"data"}).AddRow([]byte(`{"id":"b1","name":"Afriquia"}`)))

	doc, err := store.Get(context.Background(), "brands", "b1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	var got struct {
		Name string `json:"name"`
	}
	if err := doc.Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Name != "Afriquia" {
		t.Fatalf("unexpected name %q", got.Name)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestGetMissingMapsToNotFound(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT data FROM documents WHERE collection = $1 AND id = $2`)).
		WithArgs("brands", "nope").
		WillReturnRows(sqlmock.NewRows([]string{"data"}))

	if _, err := store.Get(context.Background(), "brands", "nope"); !errors.Is(err, docstore.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestFindEqualUsesContainment(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT id, data FROM documents WHERE collection = $1 AND data @> $2::jsonb ORDER BY id`)).
		WithArgs("communes", `{"name":"Salé"}`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "data"}).
			AddRow("c1", []byte(`{"id":"c1","name":"Salé"}`)))

	docs, err := store.FindEqual(context.Background(), "communes", "name", "Salé")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if len(docs) != 1 || docs[0].ID != "c1" || docs[0].Collection != "communes" {
		t.Fatalf("unexpected docs: %+v", docs)
	}
}

func TestFindInRejectsLargeLists(t *testing.T) {
	store, _ := newMockStore(t)
	if _, err := store.FindIn(context.Background(), "stations", "id", make([]any, docstore.MaxInValues+1)); !errors.Is(err, docstore.ErrTooManyValues) {
		t.Fatalf("expected ErrTooManyValues, got %v", err)
	}
}

func TestCommitRollsBackOnMissingUpdateTarget(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO documents (collection, id, data) VALUES ($1, $2, $3::jsonb) ON CONFLICT (collection, id) DO UPDATE SET data = EXCLUDED.data`)).
		WithArgs("stations", "s1", `{"id":"s1"}`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE documents SET data = data || $3::jsonb`)).
		WithArgs("stations", "s2", `{"name":"x"}`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := store.Commit(context.Background(), []docstore.Op{
		docstore.Set("stations", "s1", map[string]any{"id": "s1"}),
		docstore.Update("stations", "s2", map[string]any{"name": "x"}),
	})
	if !errors.Is(err, docstore.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if opErr, ok := docstore.FailedOp(err); !ok || opErr.Kind != docstore.OpUpdate || opErr.ID != "s2" {
		t.Fatalf("expected failing op to be named, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestRunTransactionRetriesSerializationFailure(t *testing.T) {
	store, mock := newMockStore(t)
	getCounter := regexp.QuoteMeta(`SELECT data FROM documents WHERE collection = $1 AND id = $2 FOR UPDATE`)

	mock.ExpectBegin()
	mock.ExpectQuery(getCounter).WithArgs("counters", "stations").
		WillReturnError(&pgconn.PgError{Code: "40001", Message: "could not serialize access"})
	mock.ExpectRollback()

	mock.ExpectBegin()
	mock.ExpectQuery(getCounter).WithArgs("counters", "stations").
		WillReturnRows(sqlmock.NewRows([]string{"data"}).AddRow([]byte(`{"value":1004}`)))
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO documents`)).
		WithArgs("counters", "stations", `{"value":1005}`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	attempts := 0
	err := store.RunTransaction(context.Background(), func(ctx context.Context, tx docstore.Tx) error {
		attempts++
		doc, err := tx.Get(ctx, "counters", "stations")
		if err != nil {
			return err
		}
		var c struct {
			Value int64 `json:"value"`
		}
		if err := doc.Decode(&c); err != nil {
			return err
		}
		c.Value++
		return tx.Set(ctx, "counters", "stations", c)
	})
	if err != nil {
		t.Fatalf("transaction: %v", err)
	}
	if attempts != 2 {
		t.Fatalf("expected 2 attempts, got %d", attempts)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestRunTransactionDoesNotRetryOtherErrors(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectBegin()
	mock.ExpectRollback()

	boom := errors.New("boom")
	attempts := 0
	err := store.RunTransaction(context.Background(), func(context.Context, docstore.Tx) error {
		attempts++
		return boom
	})
	if !errors.Is(err, boom) || attempts != 1 {
		t.Fatalf("expected single failing attempt, got %v after %d", err, attempts)
	}
}

func incrementCounter(ctx context.Context, tx docstore.Tx) error {
	doc, err := tx.Get(ctx, "counters", "stations")
	if err != nil {
		return err
	}
	var c struct {
		Value int64 `json:"value"`
	}
	if err := doc.Decode(&c); err != nil {
		return err
	}
	c.Value++
	return tx.Set(ctx, "counters", "stations", c)
}

func TestRunTransactionOutlastsLongContention(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	store, err := NewStore(db, WithRetryBackoff(time.Microsecond))
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	getCounter := regexp.QuoteMeta(`SELECT data FROM documents WHERE collection = $1 AND id = $2 FOR UPDATE`)

	const conflicts = 12
	for i := 0; i < conflicts; i++ {
		mock.ExpectBegin()
		mock.ExpectQuery(getCounter).WithArgs("counters", "stations").
			WillReturnError(&pgconn.PgError{Code: "40001", Message: "could not serialize access due to concurrent update"})
		mock.ExpectRollback()
	}
	mock.ExpectBegin()
	mock.ExpectQuery(getCounter).WithArgs("counters", "stations").
		WillReturnRows(sqlmock.NewRows([]string{"data"}).AddRow([]byte(`{"value":1008}`)))
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO documents`)).
		WithArgs("counters", "stations", `{"value":1009}`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	if err := store.RunTransaction(context.Background(), incrementCounter); err != nil {
		t.Fatalf("transaction: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestRunTransactionGivesUpAfterRetryBudget(t *testing.T) {
	store, mock := newMockStore(t)
	getCounter := regexp.QuoteMeta(`SELECT data FROM documents WHERE collection = $1 AND id = $2 FOR UPDATE`)
	for i := 0; i < 3; i++ {
		mock.ExpectBegin()
		mock.ExpectQuery(getCounter).WithArgs("counters", "stations").
			WillReturnError(&pgconn.PgError{Code: "40P01", Message: "deadlock detected"})
		mock.ExpectRollback()
	}

	err := store.RunTransaction(context.Background(), incrementCounter)
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != "40P01" {
		t.Fatalf("expected wrapped deadlock error, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestRunTransactionStopsWaitingOnCancel(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	store, err := NewStore(db, WithRetryBackoff(time.Hour))
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`FOR UPDATE`)).WithArgs("counters", "stations").
		WillReturnError(&pgconn.PgError{Code: "40001"})
	mock.ExpectRollback()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := store.RunTransaction(ctx, incrementCounter); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestRetryDelayGrowsAndCaps(t *testing.T) {
	base := 10 * time.Millisecond
	for attempt := 1; attempt <= 12; attempt++ {
		d := retryDelay(base, attempt)
		if d < base/2 || d > maxBackoff {
			t.Fatalf("attempt %d: delay %v out of range", attempt, d)
		}
	}
	if d := retryDelay(base, 20); d < maxBackoff/2 {
		t.Fatalf("expected capped delay near %v, got %v", maxBackoff, d)
	}
	if retryDelay(0, 3) != 0 {
		t.Fatalf("expected zero delay without base")
	}
}
