package trace

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

// Store persists fitted traces in a SQLite database so runs can be
// reloaded and compared without refitting. The stored form keeps the raw
// per-chain draws and the suppressed-variable set; the abstract spec is
// not serialized, so loaded traces carry a nil spec reference.
type Store struct {
	db *sql.DB
}

const storeSchema = `
CREATE TABLE IF NOT EXISTS runs (
	id         TEXT PRIMARY KEY,
	backend    TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL
);
CREATE TABLE IF NOT EXISTS draws (
	run_id  TEXT NOT NULL REFERENCES runs(id),
	chain   INTEGER NOT NULL,
	varname TEXT NOT NULL,
	draw    INTEGER NOT NULL,
	dim     INTEGER NOT NULL,
	value   REAL NOT NULL
);
CREATE TABLE IF NOT EXISTS suppressed (
	run_id  TEXT NOT NULL REFERENCES runs(id),
	varname TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_draws_run ON draws(run_id, chain, varname);
`

// OpenStore opens (creating if needed) a trace store at the given path.
// Use ":memory:" for an ephemeral store.
func OpenStore(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("trace: open store: %w", err)
	}
	if _, err := db.Exec(storeSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("trace: create schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error { return s.db.Close() }

// Save persists an MCMC result and returns the generated run ID.
func (s *Store) Save(ctx context.Context, res *MCMCResult, backend string) (string, error) {
	runID := uuid.NewString()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("trace: begin save: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO runs (id, backend, created_at) VALUES (?, ?, ?)`,
		runID, backend, time.Now().UTC()); err != nil {
		return "", fmt.Errorf("trace: insert run: %w", err)
	}

	insert, err := tx.PrepareContext(ctx,
		`INSERT INTO draws (run_id, chain, varname, draw, dim, value) VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return "", fmt.Errorf("trace: prepare insert: %w", err)
	}
	defer insert.Close()

	for _, chain := range res.Trace.Chains {
		for _, name := range chain.Varnames() {
			rows, _ := chain.Get(name)
			for i, row := range rows {
				for d, v := range row {
					if _, err := insert.ExecContext(ctx, runID, chain.Chain, name, i, d, v); err != nil {
						return "", fmt.Errorf("trace: insert draw: %w", err)
					}
				}
			}
		}
	}

	for _, name := range res.Trace.Suppressed {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO suppressed (run_id, varname) VALUES (?, ?)`, runID, name); err != nil {
			return "", fmt.Errorf("trace: insert suppressed: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("trace: commit save: %w", err)
	}
	return runID, nil
}

// Load reconstructs a stored MCMC result by run ID.
func (s *Store) Load(ctx context.Context, runID string) (*MCMCResult, error) {
	var backend string
	err := s.db.QueryRowContext(ctx,
		`SELECT backend FROM runs WHERE id = ?`, runID).Scan(&backend)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("trace: no run with id %q", runID)
	}
	if err != nil {
		return nil, fmt.Errorf("trace: load run: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT chain, varname, draw, dim, value FROM draws
		 WHERE run_id = ? ORDER BY chain, varname, draw, dim`, runID)
	if err != nil {
		return nil, fmt.Errorf("trace: load draws: %w", err)
	}
	defer rows.Close()

	chains := make(map[int]*ChainTrace)
	var order []int
	for rows.Next() {
		var chain, draw, dim int
		var name string
		var value float64
		if err := rows.Scan(&chain, &name, &draw, &dim, &value); err != nil {
			return nil, fmt.Errorf("trace: scan draw: %w", err)
		}
		ct, ok := chains[chain]
		if !ok {
			ct = NewChainTrace(chain)
			chains[chain] = ct
			order = append(order, chain)
		}
		series, _ := ct.Get(name)
		for len(series) <= draw {
			series = append(series, nil)
		}
		for len(series[draw]) <= dim {
			series[draw] = append(series[draw], 0)
		}
		series[draw][dim] = value
		ct.Set(name, series)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("trace: iterate draws: %w", err)
	}

	var suppressed []string
	srows, err := s.db.QueryContext(ctx,
		`SELECT varname FROM suppressed WHERE run_id = ?`, runID)
	if err != nil {
		return nil, fmt.Errorf("trace: load suppressed: %w", err)
	}
	defer srows.Close()
	for srows.Next() {
		var name string
		if err := srows.Scan(&name); err != nil {
			return nil, fmt.Errorf("trace: scan suppressed: %w", err)
		}
		suppressed = append(suppressed, name)
	}
	if err := srows.Err(); err != nil {
		return nil, fmt.Errorf("trace: iterate suppressed: %w", err)
	}

	ordered := make([]*ChainTrace, 0, len(order))
	for _, c := range order {
		ordered = append(ordered, chains[c])
	}
	return &MCMCResult{Trace: NewMultiTrace(ordered, suppressed, nil)}, nil
}
