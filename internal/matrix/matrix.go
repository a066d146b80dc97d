// Package matrix holds the row-normalized user-entity matrix in dense
// (gonum) or compressed sparse row form.
//
// Row i is user i's visitation vector and column j is entity j. Both forms
// support extracting a row, extracting a subset of rows and multiplying a
// subset of rows by a vector, which is all similarity scoring needs.
package matrix

import (
	"errors"
	"fmt"
	"sort"

	"gonum.org/v1/gonum/floats"

	"danny/nn/internal/index"
)

var (
	// ErrOutOfRange is returned for a row index outside the matrix.
	ErrOutOfRange = errors.New("row index out of range")
	// ErrDimension is returned when a vector length does not match the column count.
	ErrDimension = errors.New("dimension mismatch")
	// ErrNotConsecutive is returned when ids cannot be used as row/column positions.
	ErrNotConsecutive = errors.New("ids are not consecutive from zero")
)

// Matrix is the read-only view used by similarity scoring.
type Matrix interface {
	Dims() (rows, cols int)
	IsSparse() bool
	// Row returns a dense copy of row i.
	Row(i int) ([]float64, error)
	// Rows returns the sub-matrix made of the given rows, in order.
	Rows(ids []int) (Matrix, error)
	// MulRowsVec returns (rows ids of the matrix) x v, one value per id.
	MulRowsVec(ids []int, v []float64) ([]float64, error)
	Snapshot() Snapshot
}

// Snapshot is the serializable form of a matrix. Dense snapshots carry
// row-major Data only; sparse snapshots carry CSR arrays.
type Snapshot struct {
	Sparse  bool      `json:"sparse" msgpack:"sparse"`
	Rows    int       `json:"rows" msgpack:"rows"`
	Cols    int       `json:"cols" msgpack:"cols"`
	Indptr  []int     `json:"indptr,omitempty" msgpack:"indptr,omitempty"`
	Indices []int     `json:"indices,omitempty" msgpack:"indices,omitempty"`
	Data    []float64 `json:"data" msgpack:"data"`
}

// FromSnapshot rebuilds a matrix from its serialized form.
func FromSnapshot(s Snapshot) (Matrix, error) {
	if s.Sparse {
		return NewSparse(s.Rows, s.Cols, s.Indptr, s.Indices, s.Data)
	}
	return NewDense(s.Rows, s.Cols, s.Data)
}

// FromIndex builds the L2 row-normalized matrix for a user-entity adjacency.
// User ids and entity ids must both be consecutive from zero.
func FromIndex(ue index.Adjacency, sparse bool) (Matrix, error) {
	rows := len(ue)
	entities := make(map[int]struct{})
	for u, row := range ue {
		if u < 0 || u >= rows {
			return nil, fmt.Errorf("%w: user %d with %d users", ErrNotConsecutive, u, rows)
		}
		for e := range row {
			entities[e] = struct{}{}
		}
	}
	cols := len(entities)
	for e := range entities {
		if e < 0 || e >= cols {
			return nil, fmt.Errorf("%w: entity %d with %d entities", ErrNotConsecutive, e, cols)
		}
	}

	indptr := make([]int, rows+1)
	indices := make([]int, 0, ue.Edges())
	data := make([]float64, 0, ue.Edges())
	for u := 0; u < rows; u++ {
		row := ue[u]
		cs := make([]int, 0, len(row))
		for e := range row {
			cs = append(cs, e)
		}
		sort.Ints(cs)
		start := len(data)
		for _, e := range cs {
			indices = append(indices, e)
			data = append(data, float64(row[e]))
		}
		normalize(data[start:])
		indptr[u+1] = len(data)
	}

	csr, err := NewSparse(rows, cols, indptr, indices, data)
	if err != nil {
		return nil, err
	}
	if sparse {
		return csr, nil
	}
	return csr.ToDense()
}

// normalize scales v to unit L2 norm in place. Zero vectors are left alone.
func normalize(v []float64) {
	n := floats.Norm(v, 2)
	if n == 0 {
		return
	}
	floats.Scale(1/n, v)
}

func checkRow(i, rows int) error {
	if i < 0 || i >= rows {
		return fmt.Errorf("%w: %d not in [0, %d)", ErrOutOfRange, i, rows)
	}
	return nil
}

// Convert returns m in the requested form, copying only when it differs.
func Convert(m Matrix, sparse bool) (Matrix, error) {
	if m.IsSparse() == sparse {
		return m, nil
	}
	snap := m.Snapshot()
	if sparse {
		return denseToSparse(snap)
	}
	csr, err := NewSparse(snap.Rows, snap.Cols, snap.Indptr, snap.Indices, snap.Data)
	if err != nil {
		return nil, err
	}
	return csr.ToDense()
}

func denseToSparse(snap Snapshot) (*Sparse, error) {
	indptr := make([]int, snap.Rows+1)
	var indices []int
	var data []float64
	for i := 0; i < snap.Rows; i++ {
		for j, v := range snap.Data[i*snap.Cols : (i+1)*snap.Cols] {
			if v != 0 {
				indices = append(indices, j)
				data = append(data, v)
			}
		}
		indptr[i+1] = len(data)
	}
	return NewSparse(snap.Rows, snap.Cols, indptr, indices, data)
}
