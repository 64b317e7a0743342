package db

import (
	"context"
	"time"

	"treadmill-relay/internal/config"

	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	newPoolFn  = pgxpool.New
	pingPoolFn = func(ctx context.Context, pool *pgxpool.Pool) error { return pool.Ping(ctx) }
)

func ConnectPostgres(cfg config.Config) (*pgxpool.Pool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	pool, err := newPoolFn(ctx, cfg.PostgresURL)
	if err != nil {
		return nil, err
	}
	if err := pingPoolFn(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}

const sessionsDDL = `
CREATE TABLE IF NOT EXISTS workout_sessions (
	id               UUID PRIMARY KEY,
	workout_start    TIMESTAMPTZ NOT NULL,
	workout_end      TIMESTAMPTZ NOT NULL,
	duration_seconds BIGINT NOT NULL,
	total_distance   BIGINT NOT NULL,
	max_speed        DOUBLE PRECISION NOT NULL,
	avg_speed        DOUBLE PRECISION NOT NULL,
	records_count    INTEGER NOT NULL,
	device_name      TEXT NOT NULL
)`

// EnsureSchema creates the sessions table used by the postgres upload mode.
func EnsureSchema(ctx context.Context, q Querier) error {
	_, err := q.Exec(ctx, sessionsDDL)
	return err
}
