package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"danny/nn/internal/index"
	"danny/nn/internal/ingest"
	"danny/nn/internal/neighbors"
	"danny/nn/internal/source"
)

var batchReindex bool

var batchCmd = &cobra.Command{
	Use:   "batch <log>",
	Short: "Build the indexes and matrix from a log, then compute all nearest neighbors",
	Long: `Runs index, matrix and nn in one go. With --reindex the log holds raw
user and entity ids which are first mapped to consecutive ids and stored.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		applyIndexFlags(cmd)
		if _, err := batchConfig(cmd); err != nil {
			return err
		}

		db, err := OpenOrCreateDatabase()
		if err != nil {
			return err
		}
		defer db.Close()

		var idx *index.Index
		if batchReindex {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			visits, mappings, err := ingest.Reindex(f)
			f.Close()
			if err != nil {
				return fmt.Errorf("reindexing %s: %w", args[0], err)
			}
			if err := saveMappings(cmd, db, mappings); err != nil {
				return err
			}
			idx = index.Build(visits, cfg.Ingest.OneHot)
		} else {
			if idx, err = buildIndexFromLog(cmd.Context(), args[0]); err != nil {
				return err
			}
		}

		if err := db.SaveIndex(cmd.Context(), idx.UserEntity); err != nil {
			return fmt.Errorf("saving index: %w", err)
		}
		if _, err := buildMatrix(cmd.Context(), db, idx.UserEntity); err != nil {
			return err
		}
		fmt.Printf("Built index (%d users, %d entities) -> %s\n", idx.NumUsers(), idx.NumEntities(), db.Path)

		// Each phase reloads its structure from the database and drops it when done.
		_, err = runNN(cmd, db, neighbors.BatchInput{
			UserEntity: source.FromStore(db, source.UserEntity),
			EntityUser: source.FromStore(db, source.EntityUser),
			Matrix:     source.FromStore(db, source.Matrix),
		})
		return err
	},
}

func init() {
	addIndexFlags(batchCmd)
	addBatchFlags(batchCmd)
	batchCmd.Flags().BoolVar(&batchReindex, "reindex", false, "The log holds raw ids: reindex it first")
	rootCmd.AddCommand(batchCmd)
}
