package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"paper-trading-bot/internal/risk"
)

// FileSink persists to JSON files for runs without a database: trades are
// appended as JSON lines, positions and risk state are whole-file writes.
type FileSink struct {
	mu  sync.Mutex
	dir string
}

func NewFileSink(dir string) (*FileSink, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating data dir: %w", err)
	}
	return &FileSink{dir: dir}, nil
}

func (f *FileSink) AppendTrade(_ context.Context, trade risk.Trade) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	file, err := os.OpenFile(filepath.Join(f.dir, "trades.jsonl"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("opening trade log: %w", err)
	}
	defer file.Close()

	line, err := json.Marshal(trade)
	if err != nil {
		return err
	}
	if _, err := file.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("appending trade: %w", err)
	}
	return nil
}

func (f *FileSink) SaveOpenPositions(_ context.Context, positions []risk.Position) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return writeJSON(filepath.Join(f.dir, "positions.json"), positions)
}

func (f *FileSink) LoadOpenPositions(context.Context) ([]risk.Position, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var positions []risk.Position
	err := readJSON(filepath.Join(f.dir, "positions.json"), &positions)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	return positions, err
}

func (f *FileSink) SaveRiskState(_ context.Context, state risk.State) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return writeJSON(filepath.Join(f.dir, "risk_state.json"), state)
}

func (f *FileSink) LoadRiskState(context.Context) (*risk.State, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var state risk.State
	err := readJSON(filepath.Join(f.dir, "risk_state.json"), &state)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &state, nil
}

// writeJSON writes atomically via a temp file rename so a crash mid-write
// never leaves a truncated state file.
func writeJSON(path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("writing %s: %w", tmp, err)
	}
	return os.Rename(tmp, path)
}

func readJSON(path string, v interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}
