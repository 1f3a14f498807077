package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Schema is the SQL DDL for the session_summaries table. Execute it via
// [PostgresStore.Migrate] or apply it manually during deployment.
const Schema = `
CREATE TABLE IF NOT EXISTS session_summaries (
    id               TEXT PRIMARY KEY,
    pose             TEXT NOT NULL DEFAULT '',
    started_at       TIMESTAMPTZ NOT NULL,
    ended_at         TIMESTAMPTZ,
    frames           INTEGER NOT NULL DEFAULT 0,
    scored_frames    INTEGER NOT NULL DEFAULT 0,
    mean_accuracy    DOUBLE PRECISION NOT NULL DEFAULT 0,
    best_accuracy    DOUBLE PRECISION NOT NULL DEFAULT 0,
    breathing_rate   DOUBLE PRECISION,
    clips_requested  INTEGER NOT NULL DEFAULT 0,
    clips_played     INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_session_summaries_started ON session_summaries(started_at DESC);
`

// DB is the database interface used by [PostgresStore]. Both *pgxpool.Pool
// and *pgx.Conn satisfy this interface.
type DB interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Ping(ctx context.Context) error
}

// PostgresStore is a [Store] backed by a PostgreSQL database.
type PostgresStore struct {
	db    DB
	close func()
}

var _ Store = (*PostgresStore)(nil)

// NewPostgresStore creates a [PostgresStore] on db. The caller is
// responsible for calling [PostgresStore.Migrate] before issuing queries.
func NewPostgresStore(db DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Connect opens a connection pool to the database at dsn, verifies it and
// runs [PostgresStore.Migrate]. Call [PostgresStore.Close] to release the
// pool.
func Connect(ctx context.Context, dsn string) (*PostgresStore, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("session: parse dsn: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("session: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("session: ping: %w", err)
	}

	s := &PostgresStore{db: pool, close: pool.Close}
	if err := s.Migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// Close releases the pool opened by [Connect]. It is a no-op for stores
// created with [NewPostgresStore].
func (s *PostgresStore) Close() {
	if s.close != nil {
		s.close()
	}
}

// Migrate executes the [Schema] DDL against the database.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("session: migrate: %w", err)
	}
	return nil
}

const summaryColumns = `id, pose, started_at, ended_at, frames, scored_frames,
	mean_accuracy, best_accuracy, breathing_rate, clips_requested, clips_played`

// Save implements [Store] as an upsert on id.
func (s *PostgresStore) Save(ctx context.Context, sum Summary) error {
	const query = `
		INSERT INTO session_summaries (` + summaryColumns + `)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		ON CONFLICT (id) DO UPDATE SET
			pose = EXCLUDED.pose,
			ended_at = EXCLUDED.ended_at,
			frames = EXCLUDED.frames,
			scored_frames = EXCLUDED.scored_frames,
			mean_accuracy = EXCLUDED.mean_accuracy,
			best_accuracy = EXCLUDED.best_accuracy,
			breathing_rate = EXCLUDED.breathing_rate,
			clips_requested = EXCLUDED.clips_requested,
			clips_played = EXCLUDED.clips_played`

	var ended any
	if !sum.EndedAt.IsZero() {
		ended = sum.EndedAt
	}
	_, err := s.db.Exec(ctx, query,
		sum.ID, sum.Pose, sum.StartedAt, ended, sum.Frames, sum.ScoredFrames,
		sum.MeanAccuracy, sum.BestAccuracy, sum.BreathingRate, sum.ClipsRequested, sum.ClipsPlayed,
	)
	if err != nil {
		return fmt.Errorf("session: save %q: %w", sum.ID, err)
	}
	return nil
}

// Get implements [Store].
func (s *PostgresStore) Get(ctx context.Context, id string) (Summary, error) {
	query := `SELECT ` + summaryColumns + ` FROM session_summaries WHERE id = $1`
	sum, err := scanSummary(s.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Summary{}, ErrNotFound
		}
		return Summary{}, fmt.Errorf("session: get %q: %w", id, err)
	}
	return sum, nil
}

// List implements [Store].
func (s *PostgresStore) List(ctx context.Context, limit int) ([]Summary, error) {
	var (
		rows pgx.Rows
		err  error
	)
	if limit > 0 {
		query := `SELECT ` + summaryColumns + ` FROM session_summaries ORDER BY started_at DESC, id LIMIT $1`
		rows, err = s.db.Query(ctx, query, limit)
	} else {
		query := `SELECT ` + summaryColumns + ` FROM session_summaries ORDER BY started_at DESC, id`
		rows, err = s.db.Query(ctx, query)
	}
	if err != nil {
		return nil, fmt.Errorf("session: list: %w", err)
	}
	defer rows.Close()

	var out []Summary
	for rows.Next() {
		sum, err := scanSummary(rows)
		if err != nil {
			return nil, fmt.Errorf("session: list scan: %w", err)
		}
		out = append(out, sum)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("session: list: %w", err)
	}
	return out, nil
}

// Ping implements [Store].
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

func scanSummary(row pgx.Row) (Summary, error) {
	var (
		sum   Summary
		ended *time.Time
	)
	err := row.Scan(
		&sum.ID, &sum.Pose, &sum.StartedAt, &ended, &sum.Frames, &sum.ScoredFrames,
		&sum.MeanAccuracy, &sum.BestAccuracy, &sum.BreathingRate, &sum.ClipsRequested, &sum.ClipsPlayed,
	)
	if err != nil {
		return Summary{}, err
	}
	if ended != nil {
		sum.EndedAt = *ended
	}
	return sum, nil
}
