package matrix

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// Dense wraps a gonum dense matrix. gonum rejects zero-sized matrices, so
// an empty Dense keeps m nil and only its shape.
type Dense struct {
	rows, cols int
	m          *mat.Dense
}

// NewDense wraps row-major data of the given shape.
func NewDense(rows, cols int, data []float64) (*Dense, error) {
	if rows < 0 || cols < 0 {
		return nil, fmt.Errorf("%w: negative shape %dx%d", ErrDimension, rows, cols)
	}
	if len(data) != rows*cols {
		return nil, fmt.Errorf("%w: %d values for %dx%d", ErrDimension, len(data), rows, cols)
	}
	d := &Dense{rows: rows, cols: cols}
	if rows > 0 && cols > 0 {
		d.m = mat.NewDense(rows, cols, data)
	}
	return d, nil
}

func (d *Dense) Dims() (int, int) { return d.rows, d.cols }
func (d *Dense) IsSparse() bool   { return false }

// Row returns a copy of row i.
func (d *Dense) Row(i int) ([]float64, error) {
	if err := checkRow(i, d.rows); err != nil {
		return nil, err
	}
	if d.m == nil {
		return make([]float64, d.cols), nil
	}
	return mat.Row(nil, i, d.m), nil
}

// Rows copies the selected rows into a new dense matrix.
func (d *Dense) Rows(ids []int) (Matrix, error) {
	data := make([]float64, 0, len(ids)*d.cols)
	for _, i := range ids {
		if err := checkRow(i, d.rows); err != nil {
			return nil, err
		}
		if d.m != nil {
			data = append(data, d.m.RawRowView(i)...)
		}
	}
	return NewDense(len(ids), d.cols, data)
}

// MulRowsVec multiplies the selected rows by v using gonum.
func (d *Dense) MulRowsVec(ids []int, v []float64) ([]float64, error) {
	if len(v) != d.cols {
		return nil, fmt.Errorf("%w: vector of %d for %d columns", ErrDimension, len(v), d.cols)
	}
	sub, err := d.Rows(ids)
	if err != nil {
		return nil, err
	}
	sd := sub.(*Dense)
	if sd.m == nil {
		return make([]float64, len(ids)), nil
	}
	var out mat.VecDense
	out.MulVec(sd.m, mat.NewVecDense(len(v), v))
	return out.RawVector().Data, nil
}

func (d *Dense) Snapshot() Snapshot {
	s := Snapshot{Rows: d.rows, Cols: d.cols}
	if d.m == nil {
		s.Data = []float64{}
		return s
	}
	s.Data = make([]float64, 0, d.rows*d.cols)
	for i := 0; i < d.rows; i++ {
		s.Data = append(s.Data, d.m.RawRowView(i)...)
	}
	return s
}
