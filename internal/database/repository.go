package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"paper-trading-bot/internal/risk"
)

// Repository is the Postgres persistence sink. Trades are append-only;
// open_positions mirrors the in-memory table and is rewritten on each
// flush; risk_state is a single upserted row.
type Repository struct {
	db *DB
}

func NewRepository(db *DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) AppendTrade(ctx context.Context, t risk.Trade) error {
	_, err := r.db.Pool.Exec(ctx, `
		INSERT INTO trades (position_id, symbol, side, entry_price, exit_price, size,
			stop_loss, take_profit, exit_reason, realized_pnl, fees_paid, source, opened_at, closed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (position_id) DO NOTHING`,
		t.PositionID, t.Symbol, t.Side, t.EntryPrice, t.ExitPrice, t.Size,
		t.StopLoss, t.TakeProfit, t.ExitReason, t.RealizedPnL, t.FeesPaid,
		t.Source, t.OpenedAt, t.ClosedAt)
	if err != nil {
		return fmt.Errorf("inserting trade %s: %w", t.PositionID, err)
	}
	return nil
}

func (r *Repository) LoadOpenPositions(ctx context.Context) ([]risk.Position, error) {
	rows, err := r.db.Pool.Query(ctx, `
		SELECT id, symbol, side, entry_price, size, stop_loss, take_profit, opened_at, source
		FROM open_positions`)
	if err != nil {
		return nil, fmt.Errorf("querying open positions: %w", err)
	}
	defer rows.Close()

	var positions []risk.Position
	for rows.Next() {
		var p risk.Position
		if err := rows.Scan(&p.ID, &p.Symbol, &p.Side, &p.EntryPrice, &p.Size,
			&p.StopLoss, &p.TakeProfit, &p.OpenedAt, &p.Source); err != nil {
			return nil, fmt.Errorf("scanning position: %w", err)
		}
		positions = append(positions, p)
	}
	return positions, rows.Err()
}

func (r *Repository) SaveOpenPositions(ctx context.Context, positions []risk.Position) error {
	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM open_positions`); err != nil {
		return fmt.Errorf("clearing open positions: %w", err)
	}
	for _, p := range positions {
		if _, err := tx.Exec(ctx, `
			INSERT INTO open_positions (id, symbol, side, entry_price, size, stop_loss, take_profit, opened_at, source)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			p.ID, p.Symbol, p.Side, p.EntryPrice, p.Size, p.StopLoss, p.TakeProfit, p.OpenedAt, p.Source); err != nil {
			return fmt.Errorf("inserting position %s: %w", p.ID, err)
		}
	}
	return tx.Commit(ctx)
}

func (r *Repository) SaveRiskState(ctx context.Context, s risk.State) error {
	_, err := r.db.Pool.Exec(ctx, `
		INSERT INTO risk_state (id, capital, peak_capital, daily_pnl, daily_trade_count,
			day_start_date, day_start_capital, trading_state, halt_reason, updated_at)
		VALUES (1, $1, $2, $3, $4, $5, $6, $7, $8, now())
		ON CONFLICT (id) DO UPDATE SET
			capital = EXCLUDED.capital,
			peak_capital = EXCLUDED.peak_capital,
			daily_pnl = EXCLUDED.daily_pnl,
			daily_trade_count = EXCLUDED.daily_trade_count,
			day_start_date = EXCLUDED.day_start_date,
			day_start_capital = EXCLUDED.day_start_capital,
			trading_state = EXCLUDED.trading_state,
			halt_reason = EXCLUDED.halt_reason,
			updated_at = now()`,
		s.Capital, s.PeakCapital, s.DailyPnL, s.DailyTradeCount,
		s.DayStartDate, s.DayStartCapital, s.TradingState, s.HaltReason)
	if err != nil {
		return fmt.Errorf("upserting risk state: %w", err)
	}
	return nil
}

func (r *Repository) LoadRiskState(ctx context.Context) (*risk.State, error) {
	var s risk.State
	err := r.db.Pool.QueryRow(ctx, `
		SELECT capital, peak_capital, daily_pnl, daily_trade_count,
			day_start_date, day_start_capital, trading_state, halt_reason
		FROM risk_state WHERE id = 1`).
		Scan(&s.Capital, &s.PeakCapital, &s.DailyPnL, &s.DailyTradeCount,
			&s.DayStartDate, &s.DayStartCapital, &s.TradingState, &s.HaltReason)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil // first run, nothing stored yet
	}
	if err != nil {
		return nil, fmt.Errorf("loading risk state: %w", err)
	}
	return &s, nil
}

// RecentTrades returns the newest trades for the API, newest first.
func (r *Repository) RecentTrades(ctx context.Context, limit int) ([]risk.Trade, error) {
	rows, err := r.db.Pool.Query(ctx, `
		SELECT position_id, symbol, side, entry_price, exit_price, size,
			stop_loss, take_profit, exit_reason, realized_pnl, fees_paid, source, opened_at, closed_at
		FROM trades ORDER BY closed_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying trades: %w", err)
	}
	defer rows.Close()

	var trades []risk.Trade
	for rows.Next() {
		var t risk.Trade
		if err := rows.Scan(&t.PositionID, &t.Symbol, &t.Side, &t.EntryPrice, &t.ExitPrice,
			&t.Size, &t.StopLoss, &t.TakeProfit, &t.ExitReason, &t.RealizedPnL,
			&t.FeesPaid, &t.Source, &t.OpenedAt, &t.ClosedAt); err != nil {
			return nil, fmt.Errorf("scanning trade: %w", err)
		}
		trades = append(trades, t)
	}
	return trades, rows.Err()
}
