// internal/history/postgres.go
package history

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const schema = `
CREATE TABLE IF NOT EXISTS conversation_turns (
	id          BIGSERIAL PRIMARY KEY,
	session_key TEXT NOT NULL,
	query       TEXT NOT NULL,
	answer      TEXT NOT NULL,
	summary     TEXT,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS conversation_turns_session_idx
	ON conversation_turns (session_key, id);
`

// Postgres is the production Store backed by a pgx connection pool.
type Postgres struct {
	pool *pgxpool.Pool

	mu    sync.Mutex
	ready bool
}

var _ Store = (*Postgres)(nil)

// Connect parses dsn, opens a pool, and verifies connectivity. The schema is
// not created here; the first store operation does that.
func Connect(ctx context.Context, dsn string) (*Postgres, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &Postgres{pool: pool}, nil
}

// ensureSchema creates the table on first use. A failure leaves the latch
// unset so the next operation tries again.
func (s *Postgres) ensureSchema(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ready {
		return nil
	}
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	s.ready = true
	return nil
}

// resetOnSchemaLoss drops the latch when the table vanished underneath us,
// so the next operation recreates it.
func (s *Postgres) resetOnSchemaLoss(err error) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "42P01" { // undefined_table
		s.mu.Lock()
		s.ready = false
		s.mu.Unlock()
	}
}

func (s *Postgres) Load(ctx context.Context, key string) ([]Turn, error) {
	if err := s.ensureSchema(ctx); err != nil {
		return nil, err
	}
	rows, err := s.pool.Query(ctx,
		`SELECT query, answer, COALESCE(summary, ''), created_at
		 FROM conversation_turns WHERE session_key = $1 ORDER BY id`, key)
	if err != nil {
		s.resetOnSchemaLoss(err)
		return nil, fmt.Errorf("load turns: %w", err)
	}
	defer rows.Close()

	var turns []Turn
	for rows.Next() {
		var t Turn
		if err := rows.Scan(&t.Query, &t.Answer, &t.Summary, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan turn: %w", err)
		}
		turns = append(turns, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load turns: %w", err)
	}
	return turns, nil
}

func (s *Postgres) Append(ctx context.Context, key string, turn Turn) error {
	if err := s.ensureSchema(ctx); err != nil {
		return err
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO conversation_turns (session_key, query, answer, summary)
		 VALUES ($1, $2, $3, NULLIF($4, ''))`,
		key, turn.Query, turn.Answer, turn.Summary)
	if err != nil {
		s.resetOnSchemaLoss(err)
		return fmt.Errorf("append turn: %w", err)
	}
	return nil
}

func (s *Postgres) Sessions(ctx context.Context) ([]SessionInfo, error) {
	if err := s.ensureSchema(ctx); err != nil {
		return nil, err
	}
	rows, err := s.pool.Query(ctx,
		`SELECT session_key, COUNT(*), MAX(created_at)
		 FROM conversation_turns GROUP BY session_key
		 ORDER BY MAX(created_at) DESC`)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var infos []SessionInfo
	for rows.Next() {
		var info SessionInfo
		if err := rows.Scan(&info.Key, &info.Turns, &info.LastActive); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		infos = append(infos, info)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	return infos, nil
}

func (s *Postgres) Clear(ctx context.Context, key string) error {
	if err := s.ensureSchema(ctx); err != nil {
		return err
	}
	if _, err := s.pool.Exec(ctx,
		`DELETE FROM conversation_turns WHERE session_key = $1`, key); err != nil {
		return fmt.Errorf("clear session: %w", err)
	}
	return nil
}

func (s *Postgres) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	if err := s.ensureSchema(ctx); err != nil {
		return 0, err
	}
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM conversation_turns WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete old turns: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (s *Postgres) Close() {
	s.pool.Close()
}
