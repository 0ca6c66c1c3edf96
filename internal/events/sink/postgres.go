package sink

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/serroba/quota-gate/internal/events"
)

const schema = `
	CREATE TABLE IF NOT EXISTS quota_rejections (
		id            TEXT PRIMARY KEY,
		client_key    TEXT NOT NULL,
		client_ip     TEXT NOT NULL,
		method        TEXT NOT NULL,
		path          TEXT NOT NULL,
		quota_limit   BIGINT NOT NULL,
		reset_seconds INTEGER NOT NULL,
		rejected_at   TIMESTAMPTZ NOT NULL
	)
`

// Postgres is a PostgreSQL implementation of events.Sink.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres creates a new PostgreSQL-backed event sink.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

// EnsureSchema creates the rejections table if it does not exist.
func (p *Postgres) EnsureSchema(ctx context.Context) error {
	if _, err := p.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("create quota_rejections: %w", err)
	}

	return nil
}

// SaveRejected stores the event. Redelivered events are ignored.
func (p *Postgres) SaveRejected(ctx context.Context, event *events.RejectedEvent) error {
	query := `
		INSERT INTO quota_rejections
			(id, client_key, client_ip, method, path, quota_limit, reset_seconds, rejected_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO NOTHING
	`

	_, err := p.pool.Exec(ctx, query,
		event.ID,
		event.Key,
		event.ClientIP,
		event.Method,
		event.Path,
		int64(event.Limit),
		event.ResetSeconds,
		event.RejectedAt,
	)

	return err
}

// CountRejected returns the number of stored rejections for a client key.
func (p *Postgres) CountRejected(ctx context.Context, key string) (int64, error) {
	var n int64

	err := p.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM quota_rejections WHERE client_key = $1`, key,
	).Scan(&n)

	return n, err
}
