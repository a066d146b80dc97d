package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// StartRun records a new running batch and fills in its ID and start time.
func (s *Store) StartRun(ctx context.Context, r *Run) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	r.StartedAt = time.Now().UnixMilli()
	r.Status = RunRunning
	_, err := s.conn.ExecContext(ctx, `
		INSERT INTO runs (id, started_at, mode, user_cap, workers, sparse, threshold, seed, status)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, r.ID, r.StartedAt, r.Mode, r.UserCap, r.Workers, r.Sparse, r.Threshold, int64(r.Seed), r.Status)
	if err != nil {
		return fmt.Errorf("inserting run: %w", err)
	}
	return nil
}

// FinishRun marks a run done, or failed when runErr is non-nil.
func (s *Store) FinishRun(ctx context.Context, id string, subjects, pairs int, runErr error) error {
	status := RunDone
	var msg *string
	if runErr != nil {
		status = RunFailed
		m := runErr.Error()
		msg = &m
	}
	res, err := s.conn.ExecContext(ctx, `
		UPDATE runs SET finished_at = ?, subjects = ?, pairs = ?, status = ?, error = ?
		WHERE id = ?
	`, time.Now().UnixMilli(), subjects, pairs, status, msg, id)
	if err != nil {
		return fmt.Errorf("updating run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("run %s: %w", id, ErrNotFound)
	}
	return nil
}

const runColumns = `id, started_at, finished_at, mode, user_cap, workers, sparse,
	threshold, seed, subjects, pairs, status, error`

func scanRun(scanner interface{ Scan(dest ...any) error }) (Run, error) {
	var r Run
	var seed int64
	err := scanner.Scan(
		&r.ID, &r.StartedAt, &r.FinishedAt, &r.Mode, &r.UserCap, &r.Workers, &r.Sparse,
		&r.Threshold, &seed, &r.Subjects, &r.Pairs, &r.Status, &r.Error,
	)
	r.Seed = uint64(seed)
	return r, err
}

// GetRun returns a run by ID.
func (s *Store) GetRun(ctx context.Context, id string) (*Run, error) {
	r, err := scanRun(s.conn.QueryRowContext(ctx, "SELECT "+runColumns+" FROM runs WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("run %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// LatestRun returns the most recently started successful run.
func (s *Store) LatestRun(ctx context.Context) (*Run, error) {
	r, err := scanRun(s.conn.QueryRowContext(ctx,
		"SELECT "+runColumns+" FROM runs WHERE status = ? ORDER BY started_at DESC, rowid DESC LIMIT 1", RunDone))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("completed run: %w", ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// ListRuns returns runs ordered newest first.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	rows, err := s.conn.QueryContext(ctx,
		"SELECT "+runColumns+" FROM runs ORDER BY started_at DESC, rowid DESC LIMIT ?", limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// SaveResult writes the similarity map of a run.
func (s *Store) SaveResult(ctx context.Context, runID string, res map[int]map[int]float64) (int, error) {
	pairs := 0
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "DELETE FROM similarities WHERE run_id = ?", runID); err != nil {
			return fmt.Errorf("clearing similarities: %w", err)
		}
		stmt, err := tx.PrepareContext(ctx,
			"INSERT INTO similarities (run_id, user_id, candidate_id, score) VALUES (?, ?, ?, ?)")
		if err != nil {
			return err
		}
		defer stmt.Close()
		for u, sims := range res {
			for c, score := range sims {
				if _, err := stmt.ExecContext(ctx, runID, u, c, score); err != nil {
					return fmt.Errorf("inserting similarity (%d, %d): %w", u, c, err)
				}
				pairs++
			}
		}
		return nil
	})
	return pairs, err
}

// LoadResult reads back the similarity map of a run. Subjects with no
// stored pairs are absent.
func (s *Store) LoadResult(ctx context.Context, runID string) (map[int]map[int]float64, error) {
	rows, err := s.conn.QueryContext(ctx,
		"SELECT user_id, candidate_id, score FROM similarities WHERE run_id = ?", runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	res := make(map[int]map[int]float64)
	for rows.Next() {
		var u, c int
		var score float64
		if err := rows.Scan(&u, &c, &score); err != nil {
			return nil, err
		}
		sims, ok := res[u]
		if !ok {
			sims = make(map[int]float64)
			res[u] = sims
		}
		sims[c] = score
	}
	return res, rows.Err()
}

// Neighbors returns a subject's stored neighbors from a run, best first.
func (s *Store) Neighbors(ctx context.Context, runID string, user, limit int) ([]Similarity, error) {
	rows, err := s.conn.QueryContext(ctx, `
		SELECT candidate_id, score FROM similarities
		WHERE run_id = ? AND user_id = ?
		ORDER BY score DESC, candidate_id ASC LIMIT ?
	`, runID, user, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Similarity
	for rows.Next() {
		var sim Similarity
		if err := rows.Scan(&sim.CandidateID, &sim.Score); err != nil {
			return nil, err
		}
		out = append(out, sim)
	}
	return out, rows.Err()
}
