package matrix

import "fmt"

// Sparse is a compressed sparse row matrix. Row i's nonzeros are
// indices[indptr[i]:indptr[i+1]] with values data[indptr[i]:indptr[i+1]].
type Sparse struct {
	rows, cols int
	indptr     []int
	indices    []int
	data       []float64
}

// NewSparse validates CSR arrays and wraps them without copying.
func NewSparse(rows, cols int, indptr, indices []int, data []float64) (*Sparse, error) {
	if rows < 0 || cols < 0 {
		return nil, fmt.Errorf("%w: negative shape %dx%d", ErrDimension, rows, cols)
	}
	if len(indptr) != rows+1 {
		return nil, fmt.Errorf("%w: indptr has %d entries for %d rows", ErrDimension, len(indptr), rows)
	}
	if len(indices) != len(data) {
		return nil, fmt.Errorf("%w: %d indices vs %d values", ErrDimension, len(indices), len(data))
	}
	if indptr[0] != 0 || indptr[rows] != len(data) {
		return nil, fmt.Errorf("%w: indptr does not span data", ErrDimension)
	}
	for i := 0; i < rows; i++ {
		if indptr[i] > indptr[i+1] {
			return nil, fmt.Errorf("%w: indptr decreases at row %d", ErrDimension, i)
		}
	}
	for _, c := range indices {
		if c < 0 || c >= cols {
			return nil, fmt.Errorf("%w: column %d outside %d columns", ErrDimension, c, cols)
		}
	}
	return &Sparse{rows: rows, cols: cols, indptr: indptr, indices: indices, data: data}, nil
}

func (s *Sparse) Dims() (int, int) { return s.rows, s.cols }
func (s *Sparse) IsSparse() bool   { return true }

// Row returns a dense copy of row i.
func (s *Sparse) Row(i int) ([]float64, error) {
	if err := checkRow(i, s.rows); err != nil {
		return nil, err
	}
	out := make([]float64, s.cols)
	for k := s.indptr[i]; k < s.indptr[i+1]; k++ {
		out[s.indices[k]] = s.data[k]
	}
	return out, nil
}

// Rows copies the selected rows into a new CSR matrix.
func (s *Sparse) Rows(ids []int) (Matrix, error) {
	nnz := 0
	for _, i := range ids {
		if err := checkRow(i, s.rows); err != nil {
			return nil, err
		}
		nnz += s.indptr[i+1] - s.indptr[i]
	}
	indptr := make([]int, len(ids)+1)
	indices := make([]int, 0, nnz)
	data := make([]float64, 0, nnz)
	for r, i := range ids {
		lo, hi := s.indptr[i], s.indptr[i+1]
		indices = append(indices, s.indices[lo:hi]...)
		data = append(data, s.data[lo:hi]...)
		indptr[r+1] = len(data)
	}
	return &Sparse{rows: len(ids), cols: s.cols, indptr: indptr, indices: indices, data: data}, nil
}

// MulRowsVec computes the dot product of each selected row with v.
func (s *Sparse) MulRowsVec(ids []int, v []float64) ([]float64, error) {
	if len(v) != s.cols {
		return nil, fmt.Errorf("%w: vector of %d for %d columns", ErrDimension, len(v), s.cols)
	}
	out := make([]float64, len(ids))
	for r, i := range ids {
		if err := checkRow(i, s.rows); err != nil {
			return nil, err
		}
		var dot float64
		for k := s.indptr[i]; k < s.indptr[i+1]; k++ {
			dot += s.data[k] * v[s.indices[k]]
		}
		out[r] = dot
	}
	return out, nil
}

// ToDense expands the matrix into gonum dense storage.
func (s *Sparse) ToDense() (*Dense, error) {
	data := make([]float64, s.rows*s.cols)
	for i := 0; i < s.rows; i++ {
		for k := s.indptr[i]; k < s.indptr[i+1]; k++ {
			data[i*s.cols+s.indices[k]] = s.data[k]
		}
	}
	return NewDense(s.rows, s.cols, data)
}

func (s *Sparse) Snapshot() Snapshot {
	return Snapshot{
		Sparse:  true,
		Rows:    s.rows,
		Cols:    s.cols,
		Indptr:  s.indptr,
		Indices: s.indices,
		Data:    s.data,
	}
}
