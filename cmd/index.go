package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"danny/nn/internal/index"
	"danny/nn/internal/ingest"
	"danny/nn/internal/neighbors"
	"danny/nn/internal/source"
)

var (
	indexOneHot  bool
	indexOutDir  string
	indexWorkers int
)

var indexCmd = &cobra.Command{
	Use:   "index <converted-log>",
	Short: "Build the user-entity and entity-user indexes from a converted log",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		applyIndexFlags(cmd)
		idx, err := buildIndexFromLog(cmd.Context(), args[0])
		if err != nil {
			return err
		}

		db, err := OpenOrCreateDatabase()
		if err != nil {
			return err
		}
		defer db.Close()
		if err := db.SaveIndex(cmd.Context(), idx.UserEntity); err != nil {
			return fmt.Errorf("saving index: %w", err)
		}

		if indexOutDir != "" {
			if err := writeIndexFiles(indexOutDir, idx); err != nil {
				return err
			}
		}

		fmt.Printf("Indexed %d users, %d entities, %d edges -> %s\n",
			idx.NumUsers(), idx.NumEntities(), idx.UserEntity.Edges(), db.Path)
		return nil
	},
}

// applyIndexFlags lets explicitly set ingest flags override the config.
func applyIndexFlags(cmd *cobra.Command) {
	if cmd.Flags().Changed("one-hot") {
		cfg.Ingest.OneHot = indexOneHot
	}
	if cmd.Flags().Changed("ingest-workers") {
		cfg.Ingest.Workers = indexWorkers
	}
}

func buildIndexFromLog(ctx context.Context, path string) (*index.Index, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	workers, err := neighbors.ResolveWorkers(cfg.Ingest.Workers)
	if err != nil {
		return nil, err
	}
	idx, err := ingest.BuildIndex(ctx, f, ingest.BuildOptions{
		OneHot:    cfg.Ingest.OneHot,
		ChunkSize: cfg.Ingest.ChunkSize,
		Workers:   workers,
	})
	if err != nil {
		return nil, fmt.Errorf("building index from %s: %w", path, err)
	}
	return idx, nil
}

func writeIndexFiles(dir string, idx *index.Index) error {
	if err := source.WriteFile(outputFile(dir, "user_entity"), idx.UserEntity); err != nil {
		return err
	}
	return source.WriteFile(outputFile(dir, "entity_user"), idx.EntityUser)
}

func addIndexFlags(cmd *cobra.Command) {
	cmd.Flags().BoolVar(&indexOneHot, "one-hot", false, "Record presence instead of visit counts")
	cmd.Flags().IntVar(&indexWorkers, "ingest-workers", 0, "Chunk builders (0 = available parallelism minus 2)")
}

func init() {
	addIndexFlags(indexCmd)
	indexCmd.Flags().StringVar(&indexOutDir, "out-dir", "", "Also write the indexes as files to this directory")
	rootCmd.AddCommand(indexCmd)
}
