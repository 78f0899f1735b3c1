package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"paper-trading-bot/internal/logging"
)

// DB wraps the pgx pool and owns schema migrations.
type DB struct {
	Pool *pgxpool.Pool
}

// Connect opens the pool, verifies connectivity, and applies migrations.
func Connect(ctx context.Context, host string, port int, user, password, dbname, sslMode string) (*DB, error) {
	connString := fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		user, password, host, port, dbname, sslMode)

	cfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("parsing database config: %w", err)
	}
	cfg.MaxConns = 10
	cfg.MinConns = 2
	cfg.MaxConnLifetime = time.Hour
	cfg.MaxConnIdleTime = 30 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	db := &DB{Pool: pool}
	if err := db.migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	log := logging.Component("database")

	log.Info().Str("host", host).Str("database", dbname).Msg("database connected")
	return db, nil
}

func (d *DB) Close() {
	d.Pool.Close()
}

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS trades (
		id BIGSERIAL PRIMARY KEY,
		position_id TEXT NOT NULL UNIQUE,
		symbol TEXT NOT NULL,
		side TEXT NOT NULL,
		entry_price DOUBLE PRECISION NOT NULL,
		exit_price DOUBLE PRECISION NOT NULL,
		size DOUBLE PRECISION NOT NULL,
		stop_loss DOUBLE PRECISION NOT NULL,
		take_profit DOUBLE PRECISION NOT NULL,
		exit_reason TEXT NOT NULL,
		realized_pnl DOUBLE PRECISION NOT NULL,
		fees_paid DOUBLE PRECISION NOT NULL,
		source TEXT NOT NULL,
		opened_at TIMESTAMPTZ NOT NULL,
		closed_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_trades_symbol ON trades(symbol)`,
	`CREATE INDEX IF NOT EXISTS idx_trades_closed_at ON trades(closed_at)`,
	`CREATE TABLE IF NOT EXISTS open_positions (
		id TEXT PRIMARY KEY,
		symbol TEXT NOT NULL UNIQUE,
		side TEXT NOT NULL,
		entry_price DOUBLE PRECISION NOT NULL,
		size DOUBLE PRECISION NOT NULL,
		stop_loss DOUBLE PRECISION NOT NULL,
		take_profit DOUBLE PRECISION NOT NULL,
		opened_at TIMESTAMPTZ NOT NULL,
		source TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS risk_state (
		id INT PRIMARY KEY DEFAULT 1 CHECK (id = 1),
		capital DOUBLE PRECISION NOT NULL,
		peak_capital DOUBLE PRECISION NOT NULL,
		daily_pnl DOUBLE PRECISION NOT NULL,
		daily_trade_count INT NOT NULL,
		day_start_date TEXT NOT NULL,
		day_start_capital DOUBLE PRECISION NOT NULL,
		trading_state TEXT NOT NULL,
		halt_reason TEXT NOT NULL DEFAULT '',
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
}

func (d *DB) migrate(ctx context.Context) error {
	for i, stmt := range migrations {
		if _, err := d.Pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migration %d: %w", i, err)
		}
	}
	return nil
}
