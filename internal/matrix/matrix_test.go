package matrix

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"danny/nn/internal/index"
)

func scenarioUE() index.Adjacency {
	return index.Adjacency{0: {0: 3, 1: 1}, 1: {0: 1}, 2: {1: 2}}
}

func TestFromIndex_Normalized(t *testing.T) {
	for _, sparse := range []bool{false, true} {
		m, err := FromIndex(scenarioUE(), sparse)
		require.NoError(t, err)
		assert.Equal(t, sparse, m.IsSparse())

		rows, cols := m.Dims()
		assert.Equal(t, 3, rows)
		assert.Equal(t, 2, cols)

		r0, err := m.Row(0)
		require.NoError(t, err)
		assert.InDelta(t, 0.9487, r0[0], 1e-4)
		assert.InDelta(t, 0.3162, r0[1], 1e-4)

		r2, err := m.Row(2)
		require.NoError(t, err)
		assert.Equal(t, []float64{0, 1}, r2)
	}
}

func TestMulRowsVec_DenseAndSparseAgree(t *testing.T) {
	dense, err := FromIndex(scenarioUE(), false)
	require.NoError(t, err)
	sparse, err := FromIndex(scenarioUE(), true)
	require.NoError(t, err)

	v, err := dense.Row(0)
	require.NoError(t, err)

	ids := []int{1, 2, 0}
	dd, err := dense.MulRowsVec(ids, v)
	require.NoError(t, err)
	sd, err := sparse.MulRowsVec(ids, v)
	require.NoError(t, err)

	require.Len(t, dd, 3)
	require.Len(t, sd, 3)
	for i := range ids {
		assert.InDelta(t, dd[i], sd[i], 1e-12)
	}
	assert.InDelta(t, 0.9487, dd[0], 1e-4)
	assert.InDelta(t, 0.3162, dd[1], 1e-4)
	assert.InDelta(t, 1.0, dd[2], 1e-12)
}

func TestMulRowsVec_EmptyIDs(t *testing.T) {
	for _, sparse := range []bool{false, true} {
		m, err := FromIndex(scenarioUE(), sparse)
		require.NoError(t, err)
		out, err := m.MulRowsVec(nil, []float64{1, 0})
		require.NoError(t, err)
		assert.Empty(t, out)
	}
}

func TestErrors(t *testing.T) {
	m, err := FromIndex(scenarioUE(), true)
	require.NoError(t, err)

	_, err = m.Row(3)
	assert.True(t, errors.Is(err, ErrOutOfRange))
	_, err = m.Rows([]int{0, -1})
	assert.True(t, errors.Is(err, ErrOutOfRange))
	_, err = m.MulRowsVec([]int{0}, []float64{1})
	assert.True(t, errors.Is(err, ErrDimension))

	_, err = FromIndex(index.Adjacency{0: {0: 1}, 5: {0: 1}}, true)
	assert.True(t, errors.Is(err, ErrNotConsecutive))
	_, err = FromIndex(index.Adjacency{0: {3: 1}}, false)
	assert.True(t, errors.Is(err, ErrNotConsecutive))
}

func TestRows_Subset(t *testing.T) {
	for _, sparse := range []bool{false, true} {
		m, err := FromIndex(scenarioUE(), sparse)
		require.NoError(t, err)
		sub, err := m.Rows([]int{2, 0})
		require.NoError(t, err)

		rows, cols := sub.Dims()
		assert.Equal(t, 2, rows)
		assert.Equal(t, 2, cols)
		r, err := sub.Row(0)
		require.NoError(t, err)
		assert.Equal(t, []float64{0, 1}, r)
	}
}

func TestSnapshot_RoundTrip(t *testing.T) {
	for _, sparse := range []bool{false, true} {
		m, err := FromIndex(scenarioUE(), sparse)
		require.NoError(t, err)
		back, err := FromSnapshot(m.Snapshot())
		require.NoError(t, err)
		assert.Equal(t, sparse, back.IsSparse())
		for i := 0; i < 3; i++ {
			want, _ := m.Row(i)
			got, err := back.Row(i)
			require.NoError(t, err)
			assert.Equal(t, want, got)
		}
	}
}

func TestFromIndex_Empty(t *testing.T) {
	m, err := FromIndex(index.Adjacency{}, false)
	require.NoError(t, err)
	rows, cols := m.Dims()
	assert.Zero(t, rows)
	assert.Zero(t, cols)
}

func TestNewSparse_Validates(t *testing.T) {
	_, err := NewSparse(2, 2, []int{0, 1}, []int{0}, []float64{1})
	assert.Error(t, err)
	_, err = NewSparse(1, 2, []int{0, 1}, []int{2}, []float64{1})
	assert.Error(t, err)
	_, err = NewSparse(1, 2, []int{0, 1}, []int{1}, []float64{1})
	assert.NoError(t, err)
}

func TestConvert(t *testing.T) {
	dense, err := FromIndex(scenarioUE(), false)
	require.NoError(t, err)

	sparse, err := Convert(dense, true)
	require.NoError(t, err)
	assert.True(t, sparse.IsSparse())
	assert.Equal(t, []int{0, 2, 3, 4}, sparse.Snapshot().Indptr)

	back, err := Convert(sparse, false)
	require.NoError(t, err)
	assert.False(t, back.IsSparse())
	for i := range 3 {
		want, _ := dense.Row(i)
		got, _ := back.Row(i)
		assert.Equal(t, want, got)
	}

	same, err := Convert(dense, false)
	require.NoError(t, err)
	assert.Same(t, dense, same)
}
