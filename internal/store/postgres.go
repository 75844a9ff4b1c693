package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alpha-code-labs/quiz-quest-backend/internal/config"
)

// maxTxRetries bounds retry attempts on serialization conflicts
const maxTxRetries = 3

// PostgresStore implements Store on a single JSONB documents table
type PostgresStore struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewPostgresStore creates a new PostgreSQL-backed document store
func NewPostgresStore(cfg *config.PostgresConfig, logger *slog.Logger) (*PostgresStore, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.ConnectionString())
	if err != nil {
		return nil, fmt.Errorf("parsing connection string: %w", err)
	}

	poolConfig.MaxConns = int32(cfg.MaxConnections)
	poolConfig.MinConns = int32(cfg.MinConnections)
	poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime

	pool, err := pgxpool.NewWithConfig(context.Background(), poolConfig)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	// Test connection
	if err := pool.Ping(context.Background()); err != nil {
		pool.Close()
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	return &PostgresStore{
		pool:   pool,
		logger: logger,
	}, nil
}

// NewPostgresStoreWithPool wraps an existing pool, used when the document
// store and the user repository share one database
func NewPostgresStoreWithPool(pool *pgxpool.Pool, logger *slog.Logger) *PostgresStore {
	return &PostgresStore{pool: pool, logger: logger}
}

// Close closes the database connection pool
func (s *PostgresStore) Close() {
	s.pool.Close()
}

// Pool returns the underlying connection pool
func (s *PostgresStore) Pool() *pgxpool.Pool {
	return s.pool
}

// RunMigrations executes database migrations
func (s *PostgresStore) RunMigrations(ctx context.Context) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS documents (
			collection VARCHAR(64) NOT NULL,
			id VARCHAR(64) NOT NULL,
			doc JSONB NOT NULL,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (collection, id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_documents_collection ON documents(collection)`,
	}

	for _, migration := range migrations {
		_, err := s.pool.Exec(ctx, migration)
		if err != nil {
			return fmt.Errorf("executing migration: %w", err)
		}
	}

	s.logger.Info("document store migrations completed")
	return nil
}

// Get reads a document into dest
func (s *PostgresStore) Get(ctx context.Context, collection, id string, dest any) error {
	query := `SELECT doc FROM documents WHERE collection = $1 AND id = $2`
	var raw []byte
	err := s.pool.QueryRow(ctx, query, collection, id).Scan(&raw)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrDocNotFound
		}
		return fmt.Errorf("getting document: %w", err)
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		return fmt.Errorf("decoding document: %w", err)
	}
	return nil
}

// Set writes a full document
func (s *PostgresStore) Set(ctx context.Context, collection, id string, doc any) error {
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encoding document: %w", err)
	}
	query := `
		INSERT INTO documents (collection, id, doc, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $4)
		ON CONFLICT (collection, id)
		DO UPDATE SET doc = $3, updated_at = $4
	`
	_, err = s.pool.Exec(ctx, query, collection, id, raw, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("setting document: %w", err)
	}
	return nil
}

// Merge applies a partial document on top of an existing one
func (s *PostgresStore) Merge(ctx context.Context, collection, id string, partial any) error {
	raw, err := json.Marshal(partial)
	if err != nil {
		return fmt.Errorf("encoding partial document: %w", err)
	}
	query := `
		UPDATE documents
		SET doc = doc || $3::jsonb, updated_at = $4
		WHERE collection = $1 AND id = $2
	`
	result, err := s.pool.Exec(ctx, query, collection, id, raw, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("merging document: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrDocNotFound
	}
	return nil
}

// Increment atomically adds delta to a numeric top-level field
func (s *PostgresStore) Increment(ctx context.Context, collection, id, field string, delta int64) error {
	query := `
		UPDATE documents
		SET doc = jsonb_set(doc, ARRAY[$3], to_jsonb(COALESCE((doc->>$3)::bigint, 0) + $4), true),
		    updated_at = $5
		WHERE collection = $1 AND id = $2
	`
	result, err := s.pool.Exec(ctx, query, collection, id, field, delta, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("incrementing field: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrDocNotFound
	}
	return nil
}

// SetMulti performs a grouped batch of document writes
func (s *PostgresStore) SetMulti(ctx context.Context, writes []Write) error {
	if len(writes) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	query := `
		INSERT INTO documents (collection, id, doc, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $4)
		ON CONFLICT (collection, id)
		DO UPDATE SET doc = $3, updated_at = $4
	`
	now := time.Now().UTC()

	for _, w := range writes {
		raw, err := json.Marshal(w.Doc)
		if err != nil {
			return fmt.Errorf("encoding document %s/%s: %w", w.Collection, w.ID, err)
		}
		batch.Queue(query, w.Collection, w.ID, raw, now)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for range writes {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("batch writing documents: %w", err)
		}
	}
	return nil
}

// List iterates every document of a collection in id order
func (s *PostgresStore) List(ctx context.Context, collection string, fn func(id string, raw []byte) error) error {
	query := `SELECT id, doc FROM documents WHERE collection = $1 ORDER BY id`
	rows, err := s.pool.Query(ctx, query, collection)
	if err != nil {
		return fmt.Errorf("listing documents: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id string
		var raw []byte
		if err := rows.Scan(&id, &raw); err != nil {
			return fmt.Errorf("scanning document: %w", err)
		}
		if err := fn(id, raw); err != nil {
			return err
		}
	}
	return rows.Err()
}

// RunTransaction runs fn inside a serializable transaction, retrying on
// serialization conflicts
func (s *PostgresStore) RunTransaction(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	var lastErr error
	for attempt := 0; attempt < maxTxRetries; attempt++ {
		err := s.runTransactionOnce(ctx, fn)
		if err == nil {
			return nil
		}
		if !isSerializationError(err) {
			return err
		}
		lastErr = err
		s.logger.Warn("transaction serialization conflict, retrying", "attempt", attempt+1, "error", err)
	}
	return fmt.Errorf("transaction retries exhausted: %w", lastErr)
}

func (s *PostgresStore) runTransactionOnce(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	pgtx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer pgtx.Rollback(ctx)

	if err := fn(ctx, &postgresTx{tx: pgtx}); err != nil {
		return err
	}

	if err := pgtx.Commit(ctx); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// isSerializationError reports whether err is a retryable serialization or
// deadlock failure
func isSerializationError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "40001" || pgErr.Code == "40P01"
	}
	return false
}

// postgresTx implements Tx over an open pgx transaction
type postgresTx struct {
	tx pgx.Tx
}

// Get reads a document inside the transaction, locking the row
func (t *postgresTx) Get(ctx context.Context, collection, id string, dest any) error {
	query := `SELECT doc FROM documents WHERE collection = $1 AND id = $2 FOR UPDATE`
	var raw []byte
	err := t.tx.QueryRow(ctx, query, collection, id).Scan(&raw)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrDocNotFound
		}
		return fmt.Errorf("getting document in transaction: %w", err)
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		return fmt.Errorf("decoding document: %w", err)
	}
	return nil
}

// Set writes a document inside the transaction
func (t *postgresTx) Set(ctx context.Context, collection, id string, doc any) error {
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encoding document: %w", err)
	}
	query := `
		INSERT INTO documents (collection, id, doc, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $4)
		ON CONFLICT (collection, id)
		DO UPDATE SET doc = $3, updated_at = $4
	`
	_, err = t.tx.Exec(ctx, query, collection, id, raw, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("setting document in transaction: %w", err)
	}
	return nil
}
