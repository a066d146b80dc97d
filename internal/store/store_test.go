package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"danny/nn/internal/index"
	"danny/nn/internal/matrix"
)

// setupTestDB opens a fresh database in a temp dir.
func setupTestDB(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func scenarioUE() index.Adjacency {
	return index.Adjacency{0: {0: 3, 1: 1}, 1: {0: 1}, 2: {1: 2}}
}

func TestOpen_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "twice.db")
	s, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = Open(path)
	require.NoError(t, err)
	defer s.Close()
	assert.Equal(t, path, s.Path)
}

func TestIndex_RoundTrip(t *testing.T) {
	s := setupTestDB(t)
	ctx := context.Background()

	require.NoError(t, s.SaveIndex(ctx, scenarioUE()))

	ue, err := s.LoadUserEntity(ctx)
	require.NoError(t, err)
	assert.Equal(t, scenarioUE(), ue)

	eu, err := s.LoadEntityUser(ctx)
	require.NoError(t, err)
	assert.Equal(t, index.Adjacency{0: {0: 3, 1: 1}, 1: {0: 1, 2: 2}}, eu)

	idx, err := s.LoadIndex(ctx)
	require.NoError(t, err)
	assert.NoError(t, idx.Validate())

	// saving again replaces rather than appends
	require.NoError(t, s.SaveIndex(ctx, index.Adjacency{0: {0: 1}}))
	ue, err = s.LoadUserEntity(ctx)
	require.NoError(t, err)
	assert.Equal(t, index.Adjacency{0: {0: 1}}, ue)
}

func TestLoadIndex_Empty(t *testing.T) {
	_, err := setupTestDB(t).LoadIndex(context.Background())
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestMapping_RoundTrip(t *testing.T) {
	s := setupTestDB(t)
	ctx := context.Background()
	users := map[string]int{"alice": 0, "bob": 1}

	require.NoError(t, s.SaveMapping(ctx, UserMapping, users))
	got, err := s.LoadMapping(ctx, UserMapping)
	require.NoError(t, err)
	assert.Equal(t, users, got)

	empty, err := s.LoadMapping(ctx, EntityMapping)
	require.NoError(t, err)
	assert.Empty(t, empty)

	assert.Error(t, s.SaveMapping(ctx, Mapping("nodes"), users))
}

func TestMatrix_RoundTripBothForms(t *testing.T) {
	ctx := context.Background()
	for _, savedSparse := range []bool{false, true} {
		s := setupTestDB(t)
		m, err := matrix.FromIndex(scenarioUE(), savedSparse)
		require.NoError(t, err)
		require.NoError(t, s.SaveMatrix(ctx, m))

		meta, err := s.MatrixInfo(ctx)
		require.NoError(t, err)
		assert.Equal(t, 3, meta.Rows)
		assert.Equal(t, 2, meta.Cols)
		assert.Equal(t, savedSparse, meta.Sparse)

		for _, loadSparse := range []bool{false, true} {
			back, err := s.LoadMatrix(ctx, loadSparse)
			require.NoError(t, err)
			assert.Equal(t, loadSparse, back.IsSparse())
			for i := range 3 {
				want, _ := m.Row(i)
				got, err := back.Row(i)
				require.NoError(t, err)
				assert.Equal(t, want, got)
			}
		}
	}
}

func TestLoadMatrix_Missing(t *testing.T) {
	_, err := setupTestDB(t).LoadMatrix(context.Background(), true)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestSaveIndex_DropsStaleMatrix(t *testing.T) {
	ctx := context.Background()
	s := setupTestDB(t)

	first := index.Adjacency{0: {0: 1}, 1: {0: 1, 1: 1}, 2: {1: 1}}
	require.NoError(t, s.SaveIndex(ctx, first))
	m, err := matrix.FromIndex(first, true)
	require.NoError(t, err)
	require.NoError(t, s.SaveMatrix(ctx, m))

	// same shape, different edges
	second := index.Adjacency{0: {0: 1}, 1: {1: 1}, 2: {0: 1, 1: 1}}
	require.NoError(t, s.SaveIndex(ctx, second))

	_, err = s.MatrixInfo(ctx)
	assert.ErrorIs(t, err, ErrNotFound)
	for _, sparse := range []bool{false, true} {
		_, err := s.LoadMatrix(ctx, sparse)
		assert.ErrorIs(t, err, ErrNotFound)
	}

	ue, err := s.LoadUserEntity(ctx)
	require.NoError(t, err)
	assert.Equal(t, second, ue)
}

func TestBlobCodec(t *testing.T) {
	cols := []int{0, 7, 65536}
	got, err := decodeCols(encodeCols(cols))
	require.NoError(t, err)
	assert.Equal(t, cols, got)

	vals := []float64{0.9486832980505138, -1, 0}
	back, err := decodeVals(encodeVals(vals))
	require.NoError(t, err)
	assert.Equal(t, vals, back)

	_, err = decodeCols([]byte{1, 2, 3})
	assert.Error(t, err)
	_, err = decodeVals([]byte{1, 2, 3, 4})
	assert.Error(t, err)
}

func TestRuns_Lifecycle(t *testing.T) {
	s := setupTestDB(t)
	ctx := context.Background()

	run := &Run{Mode: "approx", UserCap: 500, Workers: 2, Sparse: true, Threshold: -1, Seed: 1<<63 + 5}
	require.NoError(t, s.StartRun(ctx, run))
	require.NotEmpty(t, run.ID)

	_, err := s.LatestRun(ctx)
	assert.True(t, errors.Is(err, ErrNotFound), "running batch is not a completed run")

	res := map[int]map[int]float64{0: {1: 0.9487, 2: 0.3162}, 1: {0: 0.9487}, 2: {}}
	pairs, err := s.SaveResult(ctx, run.ID, res)
	require.NoError(t, err)
	assert.Equal(t, 3, pairs)
	require.NoError(t, s.FinishRun(ctx, run.ID, len(res), pairs, nil))

	got, err := s.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, RunDone, got.Status)
	assert.Equal(t, uint64(1<<63+5), got.Seed)
	assert.Equal(t, 3, got.Subjects)
	assert.NotNil(t, got.FinishedAt)
	assert.Nil(t, got.Error)

	latest, err := s.LatestRun(ctx)
	require.NoError(t, err)
	assert.Equal(t, run.ID, latest.ID)

	loaded, err := s.LoadResult(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, map[int]map[int]float64{0: {1: 0.9487, 2: 0.3162}, 1: {0: 0.9487}}, loaded)

	top, err := s.Neighbors(ctx, run.ID, 0, 1)
	require.NoError(t, err)
	assert.Equal(t, []Similarity{{CandidateID: 1, Score: 0.9487}}, top)
}

func TestRuns_Failed(t *testing.T) {
	s := setupTestDB(t)
	ctx := context.Background()

	run := &Run{Mode: "exact", UserCap: -1, Workers: 1, Threshold: -1}
	require.NoError(t, s.StartRun(ctx, run))
	require.NoError(t, s.FinishRun(ctx, run.ID, 0, 0, errors.New("boom")))

	got, err := s.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, RunFailed, got.Status)
	require.NotNil(t, got.Error)
	assert.Equal(t, "boom", *got.Error)

	runs, err := s.ListRuns(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, runs, 1)

	assert.True(t, errors.Is(s.FinishRun(ctx, "missing", 0, 0, nil), ErrNotFound))
	_, err = s.GetRun(ctx, "missing")
	assert.True(t, errors.Is(err, ErrNotFound))
}
