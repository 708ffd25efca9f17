package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sony/gobreaker"

	"github.com/i474232898/temperature-display/internal/weather"
)

// pgxQuerier is the subset of *pgxpool.Pool the store needs.
type pgxQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Ping(ctx context.Context) error
}

// PostgresStore persists cache entries in the weather_cache table.
type PostgresStore struct {
	db      pgxQuerier
	circuit *gobreaker.CircuitBreaker
}

// NewPostgresPool connects to url and pings the database.
func NewPostgresPool(ctx context.Context, url string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("invalid database url: %w", err)
	}
	cfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return pool, nil
}

func NewPostgresStore(db pgxQuerier) *PostgresStore {
	return &PostgresStore{
		db: db,
		circuit: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "postgres",
			MaxRequests: 1,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
		}),
	}
}

const schema = `
CREATE TABLE IF NOT EXISTS weather_cache (
	id          BIGSERIAL PRIMARY KEY,
	latitude    DOUBLE PRECISION NOT NULL,
	longitude   DOUBLE PRECISION NOT NULL,
	units       TEXT NOT NULL,
	temperature INTEGER NOT NULL,
	feels_like  INTEGER NOT NULL,
	humidity    INTEGER NOT NULL,
	condition   TEXT NOT NULL,
	uv_index    INTEGER,
	observed_at TIMESTAMPTZ NOT NULL,
	api_source  TEXT NOT NULL,
	cached_at   TIMESTAMPTZ NOT NULL,
	expires_at  TIMESTAMPTZ NOT NULL,
	UNIQUE (latitude, longitude, units)
);
CREATE INDEX IF NOT EXISTS idx_weather_cache_cached_at ON weather_cache (cached_at DESC);
`

// EnsureSchema creates the table and index if they do not exist.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	_, err := s.db.Exec(ctx, schema)
	return err
}

func (s *PostgresStore) Name() string { return "postgres" }

const upsertEntry = `
INSERT INTO weather_cache
	(latitude, longitude, units, temperature, feels_like, humidity, condition, uv_index, observed_at, api_source, cached_at, expires_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
ON CONFLICT (latitude, longitude, units) DO UPDATE SET
	temperature = EXCLUDED.temperature,
	feels_like  = EXCLUDED.feels_like,
	humidity    = EXCLUDED.humidity,
	condition   = EXCLUDED.condition,
	uv_index    = EXCLUDED.uv_index,
	observed_at = EXCLUDED.observed_at,
	api_source  = EXCLUDED.api_source,
	cached_at   = EXCLUDED.cached_at,
	expires_at  = EXCLUDED.expires_at
WHERE weather_cache.cached_at <= EXCLUDED.cached_at`

// Persist upserts e. An older write never overwrites a newer row.
func (s *PostgresStore) Persist(ctx context.Context, key weather.Key, e weather.Entry) error {
	r := e.Reading
	_, err := s.circuit.Execute(func() (interface{}, error) {
		return s.db.Exec(ctx, upsertEntry,
			key.Lat, key.Lon, string(key.Units),
			r.Temperature, r.FeelsLike, r.Humidity, string(r.Condition), r.UVIndex,
			r.ObservedAt, r.Source, e.InsertedAt, e.ExpiresAt,
		)
	})
	return err
}

const selectRecent = `
SELECT latitude, longitude, units, temperature, feels_like, humidity, condition, uv_index,
       observed_at, api_source, cached_at, expires_at
FROM weather_cache
ORDER BY cached_at DESC
LIMIT $1`

// LoadRecent returns up to limit rows, newest first.
func (s *PostgresStore) LoadRecent(ctx context.Context, limit int) ([]Record, error) {
	result, err := s.circuit.Execute(func() (interface{}, error) {
		rows, err := s.db.Query(ctx, selectRecent, limit)
		if err != nil {
			return nil, err
		}
		defer rows.Close()

		var out []Record
		for rows.Next() {
			rec, err := scanRecord(rows)
			if err != nil {
				return nil, err
			}
			out = append(out, rec)
		}
		return out, rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("load cache rows: %w", err)
	}
	records, _ := result.([]Record)
	return records, nil
}

func scanRecord(row pgx.Row) (Record, error) {
	var (
		rec       Record
		units     string
		condition string
		uv        *int
	)
	r := &rec.Entry.Reading
	err := row.Scan(
		&rec.Key.Lat, &rec.Key.Lon, &units,
		&r.Temperature, &r.FeelsLike, &r.Humidity, &condition, &uv,
		&r.ObservedAt, &r.Source, &rec.Entry.InsertedAt, &rec.Entry.ExpiresAt,
	)
	if err != nil {
		return Record{}, err
	}
	rec.Key.Units = weather.Units(units)
	r.Condition = weather.Condition(condition)
	r.UVIndex = uv
	r.ObservedAt = r.ObservedAt.UTC()
	return rec, nil
}

// Ping checks database connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}
