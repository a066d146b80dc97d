package store

import (
	"context"
	"database/sql"
	"fmt"

	"danny/nn/internal/index"
)

// SaveIndex replaces the stored visits with the user-entity adjacency.
// The entity-user side is derived on load. Any stored matrix was built
// from the previous index, so it is dropped; LoadMatrix reports
// ErrNotFound until SaveMatrix runs again.
func (s *Store) SaveIndex(ctx context.Context, ue index.Adjacency) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		for _, table := range []string{"visits", "matrix_rows", "matrix_meta"} {
			if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
				return fmt.Errorf("clearing %s: %w", table, err)
			}
		}
		stmt, err := tx.PrepareContext(ctx, "INSERT INTO visits (user_id, entity_id, weight) VALUES (?, ?, ?)")
		if err != nil {
			return err
		}
		defer stmt.Close()
		for _, u := range ue.Keys() {
			for e, w := range ue[u] {
				if _, err := stmt.ExecContext(ctx, u, e, w); err != nil {
					return fmt.Errorf("inserting visit (%d, %d): %w", u, e, err)
				}
			}
		}
		return nil
	})
}

// LoadUserEntity returns user -> entity -> weight.
func (s *Store) LoadUserEntity(ctx context.Context) (index.Adjacency, error) {
	return s.loadAdjacency(ctx, "SELECT user_id, entity_id, weight FROM visits")
}

// LoadEntityUser returns entity -> user -> weight.
func (s *Store) LoadEntityUser(ctx context.Context) (index.Adjacency, error) {
	return s.loadAdjacency(ctx, "SELECT entity_id, user_id, weight FROM visits")
}

func (s *Store) loadAdjacency(ctx context.Context, query string) (index.Adjacency, error) {
	rows, err := s.conn.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	adj := make(index.Adjacency)
	for rows.Next() {
		var key, other, w int
		if err := rows.Scan(&key, &other, &w); err != nil {
			return nil, err
		}
		row, ok := adj[key]
		if !ok {
			row = make(map[int]int)
			adj[key] = row
		}
		row[other] = w
	}
	return adj, rows.Err()
}

// LoadIndex loads the stored visits as a validated index.
func (s *Store) LoadIndex(ctx context.Context) (*index.Index, error) {
	ue, err := s.LoadUserEntity(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading visits: %w", err)
	}
	if len(ue) == 0 {
		return nil, fmt.Errorf("index: %w", ErrNotFound)
	}
	return index.FromUserEntity(ue), nil
}

// SaveMapping replaces one id mapping table.
func (s *Store) SaveMapping(ctx context.Context, m Mapping, ids map[string]int) error {
	table, err := mappingTable(m)
	if err != nil {
		return err
	}
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("clearing %s: %w", table, err)
		}
		stmt, err := tx.PrepareContext(ctx, "INSERT INTO "+table+" (raw, id) VALUES (?, ?)")
		if err != nil {
			return err
		}
		defer stmt.Close()
		for raw, id := range ids {
			if _, err := stmt.ExecContext(ctx, raw, id); err != nil {
				return fmt.Errorf("inserting %s %q: %w", table, raw, err)
			}
		}
		return nil
	})
}

// LoadMapping returns raw id -> dense id for one mapping table.
func (s *Store) LoadMapping(ctx context.Context, m Mapping) (map[string]int, error) {
	table, err := mappingTable(m)
	if err != nil {
		return nil, err
	}
	rows, err := s.conn.QueryContext(ctx, "SELECT raw, id FROM "+table)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ids := make(map[string]int)
	for rows.Next() {
		var raw string
		var id int
		if err := rows.Scan(&raw, &id); err != nil {
			return nil, err
		}
		ids[raw] = id
	}
	return ids, rows.Err()
}

func mappingTable(m Mapping) (string, error) {
	switch m {
	case UserMapping, EntityMapping:
		return string(m), nil
	}
	return "", fmt.Errorf("unknown mapping %q", m)
}
