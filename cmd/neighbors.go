package cmd

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"danny/nn/internal/ingest"
	"danny/nn/internal/neighbors"
	"danny/nn/internal/store"
)

var (
	nbMode      string
	nbTopK      int
	nbThreshold float64
	nbUnsorted  bool
	nbJSON      bool
	nbRaw       bool
	nbRun       string
	nbStored    bool
	nbSparse    bool
)

var neighborsCmd = &cobra.Command{
	Use:   "neighbors <user>",
	Short: "Look up the nearest neighbors of one user",
	Long: `Modes:
  exact      score every user sharing an entity, return the top k
  approx     rank candidates heuristically, score the best 2k, return the top k
  threshold  return every neighbor scoring strictly above --threshold

With --stored the neighbors are read from a recorded nn run instead.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if cmd.Flags().Changed("sparse") {
			cfg.NN.Sparse = nbSparse
		}

		db, err := OpenDatabase()
		if err != nil {
			return err
		}
		defer db.Close()

		userRaw, err := loadNames(ctx, db, store.UserMapping)
		if err != nil {
			return err
		}

		user, err := resolveUser(ctx, db, args[0], nbRaw)
		if err != nil {
			return err
		}

		var ns []neighbors.Neighbor
		if nbStored {
			ns, err = storedNeighbors(ctx, db, user)
		} else {
			ns, err = queryNeighbors(ctx, db, user)
		}
		if err != nil {
			return err
		}

		if nbJSON {
			return printJSON(struct {
				User      int                  `json:"user"`
				Mode      string               `json:"mode"`
				Neighbors []neighbors.Neighbor `json:"neighbors"`
			}{user, nbMode, ns})
		}

		fmt.Printf("\n  Neighbors of %s (%s)\n", displayID(user, userRaw), nbMode)
		fmt.Println("  ────────────────────────────────────────")
		if len(ns) == 0 {
			fmt.Println("  (none)")
		}
		for i, n := range ns {
			fmt.Printf("  %3d. %-40s %.4f\n", i+1, displayID(n.ID, userRaw), n.Similarity)
		}
		fmt.Println()
		return nil
	},
}

// loadNames returns a dense -> raw id map, empty when the log was never
// reindexed.
func loadNames(ctx context.Context, db *store.Store, m store.Mapping) (map[int]string, error) {
	ids, err := db.LoadMapping(ctx, m)
	if err != nil {
		return nil, fmt.Errorf("loading %s: %w", m, err)
	}
	return ingest.ReverseMapping(ids), nil
}

func resolveUser(ctx context.Context, db *store.Store, arg string, raw bool) (int, error) {
	if raw {
		ids, err := db.LoadMapping(ctx, store.UserMapping)
		if err != nil {
			return 0, err
		}
		id, ok := ids[arg]
		if !ok {
			return 0, fmt.Errorf("raw user %q: %w", arg, neighbors.ErrNotFound)
		}
		return id, nil
	}
	id, err := strconv.Atoi(arg)
	if err != nil {
		return 0, fmt.Errorf("%w: user id %q is not an integer (use --raw for raw ids)", neighbors.ErrInvalidArgument, arg)
	}
	return id, nil
}

func queryNeighbors(ctx context.Context, db *store.Store, user int) ([]neighbors.Neighbor, error) {
	idx, err := db.LoadIndex(ctx)
	if err != nil {
		return nil, err
	}
	m, err := db.LoadMatrix(ctx, cfg.NN.Sparse)
	if err != nil {
		return nil, err
	}
	q := &neighbors.Querier{Index: idx, Matrix: m}

	switch nbMode {
	case "exact":
		return q.Exact(user, nbTopK)
	case "approx":
		return q.Approx(user, nbTopK)
	case "threshold":
		return q.AboveThreshold(user, nbThreshold, !nbUnsorted)
	}
	return nil, fmt.Errorf("%w: unknown mode %q (exact, approx, threshold)", neighbors.ErrInvalidArgument, nbMode)
}

func storedNeighbors(ctx context.Context, db *store.Store, user int) ([]neighbors.Neighbor, error) {
	var run *store.Run
	var err error
	if nbRun != "" {
		run, err = db.GetRun(ctx, nbRun)
	} else {
		run, err = db.LatestRun(ctx)
	}
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("%w (run danny nn first)", err)
	}
	if err != nil {
		return nil, err
	}
	nbMode = "stored " + run.Mode

	limit := nbTopK
	if limit <= 0 {
		limit = -1
	}
	sims, err := db.Neighbors(ctx, run.ID, user, limit)
	if err != nil {
		return nil, err
	}
	ns := make([]neighbors.Neighbor, len(sims))
	for i, s := range sims {
		ns[i] = neighbors.Neighbor{ID: s.CandidateID, Similarity: s.Score}
	}
	return ns, nil
}

func init() {
	neighborsCmd.Flags().StringVar(&nbMode, "mode", "exact", "exact, approx or threshold")
	neighborsCmd.Flags().IntVarP(&nbTopK, "top", "k", 10, "Neighbors to return (0 = all)")
	neighborsCmd.Flags().Float64Var(&nbThreshold, "threshold", 0.5, "Similarity cutoff for threshold mode")
	neighborsCmd.Flags().BoolVar(&nbUnsorted, "unsorted", false, "Do not sort threshold mode results")
	neighborsCmd.Flags().BoolVar(&nbJSON, "json", false, "Output as JSON")
	neighborsCmd.Flags().BoolVar(&nbRaw, "raw", false, "The user argument is a raw id from the unconverted log")
	neighborsCmd.Flags().BoolVar(&nbStored, "stored", false, "Read neighbors from a recorded nn run")
	neighborsCmd.Flags().StringVar(&nbRun, "run", "", "Run id for --stored (default latest completed run)")
	neighborsCmd.Flags().BoolVar(&nbSparse, "sparse", true, "Score with the sparse (CSR) matrix")
	rootCmd.AddCommand(neighborsCmd)
}
