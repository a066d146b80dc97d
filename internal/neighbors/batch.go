package neighbors

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"runtime"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"danny/nn/internal/index"
	"danny/nn/internal/logging"
	"danny/nn/internal/matrix"
	"danny/nn/internal/metrics"
)

// Result maps subject user id to candidate id to a 4-decimal similarity.
type Result map[int]map[int]float64

// AdjacencySource loads one side of the adjacency index.
type AdjacencySource interface {
	LoadAdjacency(ctx context.Context) (index.Adjacency, error)
}

// MatrixSource loads the user-entity matrix in the requested form.
type MatrixSource interface {
	LoadMatrix(ctx context.Context, sparse bool) (matrix.Matrix, error)
}

// BatchInput names where a batch reads its structures from.
type BatchInput struct {
	UserEntity AdjacencySource
	EntityUser AdjacencySource
	Matrix     MatrixSource
	// Users restricts the batch to a subset of subjects. Nil means all.
	Users []int
}

// BatchConfig controls a batch run.
type BatchConfig struct {
	Sparse bool
	// UserCap > 0 selects approximate pruning capped at UserCap candidates.
	// Any other value runs exhaustive strict pruning.
	UserCap int
	// Workers is the pool size. 0 means available parallelism minus 2.
	Workers int
	// Threshold drops scores not strictly above it. Use NoThreshold to keep all.
	Threshold float64
	// Seed drives tie-break sampling. 0 picks a random seed.
	Seed    uint64
	Metrics *metrics.Recorder
}

// DefaultBatchConfig keeps every score and uses the default pool size.
func DefaultBatchConfig() BatchConfig {
	return BatchConfig{UserCap: DefaultUserCap, Threshold: NoThreshold}
}

var availableParallelism = runtime.NumCPU

// ResolveWorkers turns a configured worker count into a pool size.
func ResolveWorkers(n int) (int, error) {
	avail := availableParallelism()
	switch {
	case n < 0:
		return 0, fmt.Errorf("%w: negative worker count %d", ErrInvalidArgument, n)
	case n > avail:
		return 0, fmt.Errorf("%w: %d workers exceeds available parallelism %d", ErrInvalidArgument, n, avail)
	case n == 0:
		return max(avail-2, 1), nil
	}
	return n, nil
}

// ResolveSeed returns seed, or a random odd seed when seed is 0.
func ResolveSeed(seed uint64) uint64 {
	if seed != 0 {
		return seed
	}
	seed = rand.Uint64() | 1
	logging.Debug().Uint64("seed", seed).Msg("using random tie-break seed")
	return seed
}

// RunBatch prunes then scores every subject and returns the merged result.
// The index is released before the matrix is loaded. A matrix whose
// dimensions differ from the index is rejected with ErrInvalidArgument.
// The first failing unit cancels the batch and is returned as a *WorkerError.
func RunBatch(ctx context.Context, in BatchInput, cfg BatchConfig) (Result, error) {
	if in.UserEntity == nil || in.EntityUser == nil || in.Matrix == nil {
		return nil, fmt.Errorf("%w: batch needs user-entity, entity-user and matrix sources", ErrInvalidArgument)
	}
	workers, err := ResolveWorkers(cfg.Workers)
	if err != nil {
		return nil, err
	}
	cfg.Workers = workers
	cfg.Seed = ResolveSeed(cfg.Seed)

	start := time.Now()
	pruned, shape, err := prunePhase(ctx, in, cfg)
	if err != nil {
		return nil, err
	}
	runtime.GC()

	res, err := scorePhase(ctx, in.Matrix, pruned, shape, cfg)
	if err != nil {
		return nil, err
	}
	runtime.GC()

	logging.Info().
		Int("subjects", len(res)).
		Int("workers", workers).
		Dur("elapsed", time.Since(start)).
		Msg("batch complete")
	return res, nil
}

// indexShape is the user and entity count of the index a batch pruned
// with. The matrix scored against it must have the same dimensions.
type indexShape struct {
	users, entities int
}

// prunePhase owns the index for the duration of phase 1 only.
func prunePhase(ctx context.Context, in BatchInput, cfg BatchConfig) (map[int][]int, indexShape, error) {
	ue, err := in.UserEntity.LoadAdjacency(ctx)
	if err != nil {
		return nil, indexShape{}, fmt.Errorf("loading user-entity index: %w", err)
	}
	eu, err := in.EntityUser.LoadAdjacency(ctx)
	if err != nil {
		return nil, indexShape{}, fmt.Errorf("loading entity-user index: %w", err)
	}
	idx, err := index.New(ue, eu)
	if err != nil {
		return nil, indexShape{}, fmt.Errorf("%w: %w", ErrInvalidArgument, err)
	}
	shape := indexShape{users: idx.NumUsers(), entities: idx.NumEntities()}
	pruned, err := PruneBatch(ctx, idx, in.Users, cfg)
	return pruned, shape, err
}

// scorePhase owns the matrix for the duration of phase 2 only.
func scorePhase(ctx context.Context, src MatrixSource, pruned map[int][]int, shape indexShape, cfg BatchConfig) (Result, error) {
	m, err := src.LoadMatrix(ctx, cfg.Sparse)
	if err != nil {
		return nil, fmt.Errorf("loading matrix: %w", err)
	}
	if rows, cols := m.Dims(); rows != shape.users || cols != shape.entities {
		return nil, fmt.Errorf("%w: matrix is %dx%d but the index has %d users and %d entities (rebuild the matrix)",
			ErrInvalidArgument, rows, cols, shape.users, shape.entities)
	}
	return ScoreBatch(ctx, m, pruned, cfg)
}

// PruneBatch runs the prune phase for users (all index users when nil) and
// returns each subject's candidate ids.
func PruneBatch(ctx context.Context, idx *index.Index, users []int, cfg BatchConfig) (map[int][]int, error) {
	workers, err := ResolveWorkers(cfg.Workers)
	if err != nil {
		return nil, err
	}
	if users == nil {
		users = idx.UserIDs()
	}
	seed := ResolveSeed(cfg.Seed)
	cfg.Metrics.SetSubjects(len(users))

	out := make(map[int][]int, len(users))
	var mu sync.Mutex
	err = runPhase(ctx, PhasePrune, users, workers, cfg.Metrics, func(user int) error {
		ids, err := pruneUnit(idx, user, cfg.UserCap, seed)
		if err != nil {
			return err
		}
		cfg.Metrics.ObserveCandidates(len(ids))
		mu.Lock()
		out[user] = ids
		mu.Unlock()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func pruneUnit(idx *index.Index, user, userCap int, seed uint64) ([]int, error) {
	if userCap <= 0 {
		cands, err := StrictPrune(idx, user)
		if err != nil {
			return nil, err
		}
		return cands.IDs(), nil
	}
	cands, err := ApproxPrune(idx, user)
	if err != nil {
		return nil, err
	}
	rng := rand.New(rand.NewPCG(seed, uint64(user)))
	return SelectCandidates(cands, userCap, rng), nil
}

// ScoreBatch runs the score phase over pruned candidate lists.
func ScoreBatch(ctx context.Context, m matrix.Matrix, pruned map[int][]int, cfg BatchConfig) (Result, error) {
	workers, err := ResolveWorkers(cfg.Workers)
	if err != nil {
		return nil, err
	}
	users := make([]int, 0, len(pruned))
	for u := range pruned {
		users = append(users, u)
	}

	res := make(Result, len(pruned))
	var mu sync.Mutex
	err = runPhase(ctx, PhaseScore, users, workers, cfg.Metrics, func(user int) error {
		cands := pruned[user]
		sims, err := FindSimilarities(m, user, cands)
		if err != nil {
			return err
		}
		formatted := FormatSimilarities(cands, sims, cfg.Threshold)
		mu.Lock()
		res[user] = formatted
		mu.Unlock()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// runPhase fans units out over a bounded pool and waits for all of them.
func runPhase(ctx context.Context, phase Phase, users []int, workers int, rec *metrics.Recorder, unit func(user int) error) error {
	start := time.Now()
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for _, user := range users {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			if err := unit(user); err != nil {
				rec.UnitFailed(string(phase))
				return &WorkerError{Phase: phase, UserID: user, Err: err}
			}
			rec.UnitDone(string(phase))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		var we *WorkerError
		if errors.As(err, &we) {
			logging.Error().Err(we.Err).Str("phase", string(phase)).Int("user", we.UserID).Msg("unit failed")
		}
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	elapsed := time.Since(start)
	rec.ObservePhase(string(phase), elapsed)
	logging.Info().
		Str("phase", string(phase)).
		Int("units", len(users)).
		Int("workers", workers).
		Dur("elapsed", elapsed).
		Msg("phase complete")
	return nil
}
