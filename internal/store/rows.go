package store

import (
	"context"
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"time"

	"danny/nn/internal/matrix"
)

// encodeCols packs column indices as little-endian uint32.
func encodeCols(cols []int) []byte {
	buf := make([]byte, 4*len(cols))
	for i, c := range cols {
		binary.LittleEndian.PutUint32(buf[i*4:], uint32(c))
	}
	return buf
}

// decodeCols is the inverse of encodeCols. A short trailing chunk is an error.
func decodeCols(data []byte) ([]int, error) {
	if len(data)%4 != 0 {
		return nil, fmt.Errorf("column blob of %d bytes is not a multiple of 4", len(data))
	}
	cols := make([]int, len(data)/4)
	for i := range cols {
		cols[i] = int(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return cols, nil
}

// encodeVals packs values as little-endian float64.
func encodeVals(vals []float64) []byte {
	buf := make([]byte, 8*len(vals))
	for i, v := range vals {
		binary.LittleEndian.PutUint64(buf[i*8:], math.Float64bits(v))
	}
	return buf
}

func decodeVals(data []byte) ([]float64, error) {
	if len(data)%8 != 0 {
		return nil, fmt.Errorf("value blob of %d bytes is not a multiple of 8", len(data))
	}
	vals := make([]float64, len(data)/8)
	for i := range vals {
		vals[i] = math.Float64frombits(binary.LittleEndian.Uint64(data[i*8:]))
	}
	return vals, nil
}

// SaveMatrix replaces the stored matrix. Only nonzeros are written, one
// row per user.
func (s *Store) SaveMatrix(ctx context.Context, m matrix.Matrix) error {
	snap := m.Snapshot()
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "DELETE FROM matrix_rows"); err != nil {
			return fmt.Errorf("clearing matrix rows: %w", err)
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO matrix_meta (id, rows, cols, sparse, created_at) VALUES (1, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET rows = excluded.rows, cols = excluded.cols,
				sparse = excluded.sparse, created_at = excluded.created_at
		`, snap.Rows, snap.Cols, snap.Sparse, time.Now().UnixMilli())
		if err != nil {
			return fmt.Errorf("writing matrix meta: %w", err)
		}

		stmt, err := tx.PrepareContext(ctx, "INSERT INTO matrix_rows (row_id, cols, vals) VALUES (?, ?, ?)")
		if err != nil {
			return err
		}
		defer stmt.Close()
		for i := 0; i < snap.Rows; i++ {
			cols, vals := rowNonzeros(snap, i)
			if _, err := stmt.ExecContext(ctx, i, encodeCols(cols), encodeVals(vals)); err != nil {
				return fmt.Errorf("inserting matrix row %d: %w", i, err)
			}
		}
		return nil
	})
}

func rowNonzeros(snap matrix.Snapshot, i int) ([]int, []float64) {
	if snap.Sparse {
		lo, hi := snap.Indptr[i], snap.Indptr[i+1]
		return snap.Indices[lo:hi], snap.Data[lo:hi]
	}
	var cols []int
	var vals []float64
	for j, v := range snap.Data[i*snap.Cols : (i+1)*snap.Cols] {
		if v != 0 {
			cols = append(cols, j)
			vals = append(vals, v)
		}
	}
	return cols, vals
}

// MatrixInfo returns the stored matrix shape.
func (s *Store) MatrixInfo(ctx context.Context) (*MatrixMeta, error) {
	var meta MatrixMeta
	err := s.conn.QueryRowContext(ctx, "SELECT rows, cols, sparse, created_at FROM matrix_meta WHERE id = 1").
		Scan(&meta.Rows, &meta.Cols, &meta.Sparse, &meta.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("matrix: %w", ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &meta, nil
}

// LoadMatrix rebuilds the stored matrix in sparse or dense form regardless
// of the form it was saved from.
func (s *Store) LoadMatrix(ctx context.Context, sparse bool) (matrix.Matrix, error) {
	meta, err := s.MatrixInfo(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := s.conn.QueryContext(ctx, "SELECT row_id, cols, vals FROM matrix_rows ORDER BY row_id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	indptr := make([]int, meta.Rows+1)
	var indices []int
	var data []float64
	next := 0
	for rows.Next() {
		var id int
		var colBlob, valBlob []byte
		if err := rows.Scan(&id, &colBlob, &valBlob); err != nil {
			return nil, err
		}
		if id < next || id >= meta.Rows {
			return nil, fmt.Errorf("matrix row %d outside %d rows", id, meta.Rows)
		}
		cols, err := decodeCols(colBlob)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", id, err)
		}
		vals, err := decodeVals(valBlob)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", id, err)
		}
		if len(cols) != len(vals) {
			return nil, fmt.Errorf("row %d: %d columns vs %d values", id, len(cols), len(vals))
		}
		// rows without a stored entry are empty
		for ; next < id; next++ {
			indptr[next+1] = len(data)
		}
		indices = append(indices, cols...)
		data = append(data, vals...)
		indptr[id+1] = len(data)
		next = id + 1
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for ; next < meta.Rows; next++ {
		indptr[next+1] = len(data)
	}

	csr, err := matrix.NewSparse(meta.Rows, meta.Cols, indptr, indices, data)
	if err != nil {
		return nil, fmt.Errorf("rebuilding matrix: %w", err)
	}
	if sparse {
		return csr, nil
	}
	return csr.ToDense()
}
