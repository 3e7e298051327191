package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/longbox-labs/pricefeed-cli/internal/db"
	"github.com/longbox-labs/pricefeed-cli/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// NewPostgresWithPool wraps an existing pool, e.g. a mock in tests.
func NewPostgresWithPool(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool, closeFn: func() {}}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS listings (
	marketplace TEXT NOT NULL,
	external_id TEXT NOT NULL,
	title       TEXT NOT NULL,
	price_cents BIGINT NOT NULL,
	confidence  DOUBLE PRECISION NOT NULL,
	doc         JSONB NOT NULL,
	updated_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (marketplace, external_id)
);

CREATE TABLE IF NOT EXISTS collection_runs (
	id           TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	query        TEXT NOT NULL,
	marketplace  TEXT NOT NULL,
	status       TEXT NOT NULL,
	result_count INTEGER NOT NULL DEFAULT 0,
	duration_ms  BIGINT NOT NULL DEFAULT 0,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS search_cache (
	key        TEXT PRIMARY KEY,
	result     JSONB NOT NULL,
	cached_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	expires_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS dead_letter_queue (
	id             TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	marketplace    TEXT NOT NULL,
	query          TEXT NOT NULL,
	operation      TEXT NOT NULL,
	error          TEXT NOT NULL,
	category       TEXT NOT NULL,
	attempts       INTEGER NOT NULL DEFAULT 0,
	created_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
	last_failed_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_listings_title ON listings(title);
CREATE INDEX IF NOT EXISTS idx_listings_confidence ON listings(confidence);
CREATE INDEX IF NOT EXISTS idx_runs_marketplace ON collection_runs(marketplace);
CREATE INDEX IF NOT EXISTS idx_runs_created_at ON collection_runs(created_at);
CREATE INDEX IF NOT EXISTS idx_search_cache_expires_at ON search_cache(expires_at);
CREATE INDEX IF NOT EXISTS idx_dlq_category ON dead_letter_queue(category);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	s.closeFn()
	return nil
}

// Pool returns the underlying pool for subsystems that need direct
// query access (e.g., bulk historical imports).
func (s *PostgresStore) Pool() db.Pool {
	return s.pool
}

var listingColumns = []string{
	"marketplace", "external_id", "title", "price_cents", "confidence", "doc", "updated_at",
}

func (s *PostgresStore) UpsertListings(ctx context.Context, listings []model.NormalizedListing) (int64, error) {
	if len(listings) == 0 {
		return 0, nil
	}

	now := time.Now().UTC()
	rows := make([][]any, 0, len(listings))
	for _, l := range listings {
		doc, err := json.Marshal(l)
		if err != nil {
			return 0, eris.Wrapf(err, "postgres: marshal listing %s", l.ExternalID)
		}
		rows = append(rows, []any{
			string(l.Marketplace), l.ExternalID, l.Title, l.PriceCents,
			l.Confidence, doc, now,
		})
	}

	n, err := db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table:        "listings",
		Columns:      listingColumns,
		ConflictKeys: []string{"marketplace", "external_id"},
	}, rows)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: upsert listings")
	}
	return n, nil
}

func (s *PostgresStore) ListListings(ctx context.Context, filter ListingFilter) ([]model.NormalizedListing, error) {
	query := `SELECT doc FROM listings WHERE 1=1`
	var args []any
	argIdx := 1

	if filter.Marketplace != "" {
		query += sqlArg(` AND marketplace = $%d`, &argIdx)
		args = append(args, string(filter.Marketplace))
	}
	if filter.Query != "" {
		query += sqlArg(` AND title ILIKE $%d`, &argIdx)
		args = append(args, "%"+filter.Query+"%")
	}
	if filter.MinConfidence > 0 {
		query += sqlArg(` AND confidence >= $%d`, &argIdx)
		args = append(args, filter.MinConfidence)
	}
	query += ` ORDER BY updated_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += sqlArg(` LIMIT $%d`, &argIdx)
	args = append(args, limit)

	if filter.Offset > 0 {
		query += sqlArg(` OFFSET $%d`, &argIdx)
		args = append(args, filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list listings")
	}
	defer rows.Close()

	var listings []model.NormalizedListing
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, eris.Wrap(err, "postgres: scan listing")
		}
		var l model.NormalizedListing
		if err := json.Unmarshal(doc, &l); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal listing")
		}
		listings = append(listings, l)
	}
	return listings, eris.Wrap(rows.Err(), "postgres: list listings iterate")
}

func (s *PostgresStore) RecordRun(ctx context.Context, run model.CollectionRun) error {
	if run.ID == "" {
		run.ID = uuid.New().String()
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO collection_runs (id, query, marketplace, status, result_count, duration_ms, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		run.ID, run.Query, string(run.Marketplace), string(run.Status),
		run.ResultCount, run.DurationMs, run.CreatedAt,
	)
	return eris.Wrap(err, "postgres: record run")
}

func (s *PostgresStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.CollectionRun, error) {
	query := `SELECT id, query, marketplace, status, result_count, duration_ms, created_at
	          FROM collection_runs WHERE 1=1`
	var args []any
	argIdx := 1

	if filter.Marketplace != "" {
		query += sqlArg(` AND marketplace = $%d`, &argIdx)
		args = append(args, string(filter.Marketplace))
	}
	if filter.Status != "" {
		query += sqlArg(` AND status = $%d`, &argIdx)
		args = append(args, string(filter.Status))
	}
	if !filter.CreatedAfter.IsZero() {
		query += sqlArg(` AND created_at > $%d`, &argIdx)
		args = append(args, filter.CreatedAfter)
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += sqlArg(` LIMIT $%d`, &argIdx)
	args = append(args, limit)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list runs")
	}
	defer rows.Close()

	var runs []model.CollectionRun
	for rows.Next() {
		var r model.CollectionRun
		if err := rows.Scan(&r.ID, &r.Query, &r.Marketplace, &r.Status,
			&r.ResultCount, &r.DurationMs, &r.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan run")
		}
		runs = append(runs, r)
	}
	return runs, eris.Wrap(rows.Err(), "postgres: list runs iterate")
}

func (s *PostgresStore) GetCachedSearch(ctx context.Context, key string) (*model.SearchResult, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT result FROM search_cache WHERE key = $1 AND expires_at > now()`,
		key,
	)

	var doc []byte
	err := row.Scan(&doc)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: get cached search")
	}

	var result model.SearchResult
	if err := json.Unmarshal(doc, &result); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal cached search")
	}
	return &result, nil
}

func (s *PostgresStore) SetCachedSearch(ctx context.Context, key string, result *model.SearchResult, ttl time.Duration) error {
	doc, err := json.Marshal(result)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal search result")
	}

	now := time.Now().UTC()
	_, err = s.pool.Exec(ctx,
		`INSERT INTO search_cache (key, result, cached_at, expires_at)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (key) DO UPDATE SET
		   result = $2, cached_at = $3, expires_at = $4`,
		key, doc, now, now.Add(ttl),
	)
	return eris.Wrap(err, "postgres: set cached search")
}

func (s *PostgresStore) DeleteExpiredSearches(ctx context.Context) (int, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM search_cache WHERE expires_at <= now()`,
	)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: delete expired searches")
	}
	return int(tag.RowsAffected()), nil
}

func (s *PostgresStore) EnqueueDLQ(ctx context.Context, entry DLQEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	if entry.LastFailedAt.IsZero() {
		entry.LastFailedAt = entry.CreatedAt
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO dead_letter_queue
		 (id, marketplace, query, operation, error, category, attempts, created_at, last_failed_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 ON CONFLICT (id) DO UPDATE SET
		   error = $5, category = $6, attempts = $7, last_failed_at = $9`,
		entry.ID, string(entry.Marketplace), entry.Query, entry.Operation,
		entry.Error, entry.Category, entry.Attempts, entry.CreatedAt, entry.LastFailedAt,
	)
	return eris.Wrap(err, "postgres: enqueue dlq")
}

func (s *PostgresStore) ListDLQ(ctx context.Context, limit int) ([]DLQEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, marketplace, query, operation, error, category, attempts, created_at, last_failed_at
		 FROM dead_letter_queue ORDER BY last_failed_at DESC LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list dlq")
	}
	defer rows.Close()

	var entries []DLQEntry
	for rows.Next() {
		var e DLQEntry
		if err := rows.Scan(&e.ID, &e.Marketplace, &e.Query, &e.Operation,
			&e.Error, &e.Category, &e.Attempts, &e.CreatedAt, &e.LastFailedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan dlq entry")
		}
		entries = append(entries, e)
	}
	return entries, eris.Wrap(rows.Err(), "postgres: list dlq iterate")
}

func (s *PostgresStore) CountDLQ(ctx context.Context) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM dead_letter_queue`).Scan(&count)
	return count, eris.Wrap(err, "postgres: count dlq")
}

// sqlArg formats a positional placeholder clause and advances the
// argument counter.
func sqlArg(format string, idx *int) string {
	clause := fmt.Sprintf(format, *idx)
	*idx++
	return clause
}

func (s *PostgresStore) RemoveDLQ(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM dead_letter_queue WHERE id = $1`, id)
	if err != nil {
		return eris.Wrapf(err, "postgres: remove dlq %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("dlq entry not found: %s", id)
	}
	return nil
}
