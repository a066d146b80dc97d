package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"danny/nn/internal/logging"
	"danny/nn/internal/metrics"
	"danny/nn/internal/neighbors"
	"danny/nn/internal/source"
	"danny/nn/internal/store"
)

var (
	nnUserEntity string
	nnEntityUser string
	nnMatrix     string
	nnUsersFile  string
	nnOut        string
	nnNoStore    bool

	nnSparse    bool
	nnUserCap   int
	nnWorkers   int
	nnThreshold float64
	nnSeed      uint64
)

var nnCmd = &cobra.Command{
	Use:   "nn",
	Short: "Compute nearest neighbors for every user (or a subset) in batch",
	Long: `Runs the two-phase batch: prune the candidate space of each user from the
indexes, then score the surviving candidates against the matrix.

Inputs come from the database unless --user-entity, --entity-user and
--matrix name files (.json or .msgpack). A --user-cap of -1 scores every
user that shares an entity with the subject.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		in, err := nnInputs()
		if err != nil {
			return err
		}

		var db *store.Store
		if !in.fromFiles || !nnNoStore {
			db, err = OpenDatabase()
			switch {
			case err == nil:
				defer db.Close()
			case in.fromFiles:
				logging.Warn().Err(err).Msg("no database, the run will not be recorded")
			default:
				return err
			}
		}
		if !in.fromFiles {
			in.batch.UserEntity = source.FromStore(db, source.UserEntity)
			in.batch.EntityUser = source.FromStore(db, source.EntityUser)
			in.batch.Matrix = source.FromStore(db, source.Matrix)
		}

		record := db
		if nnNoStore {
			record = nil
		}
		_, err = runNN(cmd, record, in.batch)
		return err
	},
}

type nnInput struct {
	batch     neighbors.BatchInput
	fromFiles bool
}

// nnInputs resolves file inputs. All three structure files must be given
// together or not at all.
func nnInputs() (nnInput, error) {
	var in nnInput
	given := 0
	for _, p := range []string{nnUserEntity, nnEntityUser, nnMatrix} {
		if p != "" {
			given++
		}
	}
	switch given {
	case 0:
	case 3:
		in.fromFiles = true
		in.batch.UserEntity = source.FromFile(nnUserEntity)
		in.batch.EntityUser = source.FromFile(nnEntityUser)
		in.batch.Matrix = source.FromFile(nnMatrix)
	default:
		return in, fmt.Errorf("%w: --user-entity, --entity-user and --matrix must be given together", neighbors.ErrInvalidArgument)
	}

	if nnUsersFile != "" {
		users, err := source.FromFile(nnUsersFile).LoadUsers()
		if err != nil {
			return in, fmt.Errorf("loading users: %w", err)
		}
		in.batch.Users = users
	}
	return in, nil
}

// batchConfig builds the batch settings from config, overridden by any
// explicitly set flags.
func batchConfig(cmd *cobra.Command) (neighbors.BatchConfig, error) {
	flags := cmd.Flags()
	if flags.Changed("sparse") {
		cfg.NN.Sparse = nnSparse
	}
	if flags.Changed("user-cap") {
		cfg.NN.UserCap = nnUserCap
	}
	if flags.Changed("workers") {
		cfg.NN.Workers = nnWorkers
	}
	if flags.Changed("threshold") {
		cfg.NN.Threshold = nnThreshold
	}
	if flags.Changed("seed") {
		cfg.NN.Seed = nnSeed
	}
	if err := cfg.Validate(); err != nil {
		return neighbors.BatchConfig{}, fmt.Errorf("%w: %w", neighbors.ErrInvalidArgument, err)
	}
	return neighbors.BatchConfig{
		Sparse:    cfg.NN.Sparse,
		UserCap:   cfg.NN.UserCap,
		Workers:   cfg.NN.Workers,
		Threshold: cfg.NN.Threshold,
		Seed:      cfg.NN.Seed,
	}, nil
}

// runNN runs one batch, recording it in db when db is non-nil, and writes
// the result file and metrics textfile when configured.
func runNN(cmd *cobra.Command, db *store.Store, in neighbors.BatchInput) (neighbors.Result, error) {
	ctx := cmd.Context()
	bc, err := batchConfig(cmd)
	if err != nil {
		return nil, err
	}
	workers, err := neighbors.ResolveWorkers(bc.Workers)
	if err != nil {
		return nil, err
	}
	bc.Workers = workers
	bc.Seed = neighbors.ResolveSeed(bc.Seed)
	rec := metrics.New()
	bc.Metrics = rec

	var run *store.Run
	if db != nil {
		run = &store.Run{
			Mode:      runMode(bc.UserCap),
			UserCap:   bc.UserCap,
			Workers:   bc.Workers,
			Sparse:    bc.Sparse,
			Threshold: bc.Threshold,
			Seed:      bc.Seed,
		}
		if err := db.StartRun(ctx, run); err != nil {
			return nil, err
		}
	}

	start := time.Now()
	res, err := neighbors.RunBatch(ctx, in, bc)
	if err != nil {
		finishRun(db, run, 0, 0, err)
		return nil, describeBatchError(err)
	}

	pairs := countPairs(res)
	if db != nil {
		if pairs, err = db.SaveResult(ctx, run.ID, res); err != nil {
			finishRun(db, run, len(res), 0, err)
			return nil, fmt.Errorf("saving result: %w", err)
		}
		if err := db.FinishRun(ctx, run.ID, len(res), pairs, nil); err != nil {
			return nil, err
		}
	}

	if nnOut != "" {
		if err := source.WriteFile(nnOut, res); err != nil {
			return nil, err
		}
	}
	if cfg.Metrics.Textfile != "" {
		if err := rec.WriteTextfile(cfg.Metrics.Textfile); err != nil {
			return nil, err
		}
	}

	fmt.Printf("Scored %d users (%d pairs, mode=%s, workers=%d) in %s\n",
		len(res), pairs, runMode(bc.UserCap), bc.Workers, formatDuration(time.Since(start)))
	if run != nil {
		fmt.Printf("Run: %s\n", run.ID)
	}
	return res, nil
}

// finishRun marks a failed run. It uses a fresh context so a cancelled
// batch is still recorded.
func finishRun(db *store.Store, run *store.Run, subjects, pairs int, runErr error) {
	if db == nil || run == nil {
		return
	}
	if err := db.FinishRun(context.Background(), run.ID, subjects, pairs, runErr); err != nil {
		logging.Warn().Err(err).Str("run", run.ID).Msg("recording failed run")
	}
}

func describeBatchError(err error) error {
	var we *neighbors.WorkerError
	if errors.As(err, &we) {
		return fmt.Errorf("batch failed in %s phase at user %d: %w", we.Phase, we.UserID, we.Err)
	}
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("%w (run danny matrix or danny build first)", err)
	}
	return err
}

func runMode(userCap int) string {
	if userCap > 0 {
		return "approx"
	}
	return "exact"
}

func countPairs(res neighbors.Result) int {
	n := 0
	for _, sims := range res {
		n += len(sims)
	}
	return n
}

func addBatchFlags(cmd *cobra.Command) {
	cmd.Flags().BoolVar(&nnSparse, "sparse", true, "Score with the sparse (CSR) matrix")
	cmd.Flags().IntVar(&nnUserCap, "user-cap", neighbors.DefaultUserCap, "Candidates kept per user (-1 = exhaustive, max 1000)")
	cmd.Flags().IntVar(&nnWorkers, "workers", 0, "Worker pool size (0 = available parallelism minus 2)")
	cmd.Flags().Float64Var(&nnThreshold, "threshold", neighbors.NoThreshold, "Keep only similarities strictly above this value")
	cmd.Flags().Uint64Var(&nnSeed, "seed", 0, "Tie-break seed (0 = random)")
	cmd.Flags().StringVar(&nnOut, "out", "", "Write the result to this file (.json or .msgpack)")
}

func init() {
	addBatchFlags(nnCmd)
	nnCmd.Flags().StringVar(&nnUserEntity, "user-entity", "", "User-entity index file")
	nnCmd.Flags().StringVar(&nnEntityUser, "entity-user", "", "Entity-user index file")
	nnCmd.Flags().StringVar(&nnMatrix, "matrix", "", "Matrix file")
	nnCmd.Flags().StringVar(&nnUsersFile, "users-file", "", "File with the list of users to compute (default all)")
	nnCmd.Flags().BoolVar(&nnNoStore, "no-store", false, "Do not record the run and its result in the database")
	rootCmd.AddCommand(nnCmd)
}
