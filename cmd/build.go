package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var (
	buildSparse bool
	buildOutDir string
)

var buildCmd = &cobra.Command{
	Use:   "build <converted-log>",
	Short: "Build the indexes and the matrix from a converted log",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		applyIndexFlags(cmd)
		applySparseFlag(cmd, buildSparse)
		start := time.Now()

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

		m, err := buildMatrix(cmd.Context(), db, idx.UserEntity)
		if err != nil {
			return err
		}

		if buildOutDir != "" {
			if err := writeIndexFiles(buildOutDir, idx); err != nil {
				return err
			}
			if err := writeMatrixFile(buildOutDir, m.Snapshot()); err != nil {
				return err
			}
		}

		rows, cols := m.Dims()
		fmt.Printf("Built index (%d users, %d entities) and %dx%d matrix in %s -> %s\n",
			idx.NumUsers(), idx.NumEntities(), rows, cols, formatDuration(time.Since(start)), db.Path)
		return nil
	},
}

func init() {
	addIndexFlags(buildCmd)
	buildCmd.Flags().BoolVar(&buildSparse, "sparse", true, "Build a sparse (CSR) matrix instead of a dense one")
	buildCmd.Flags().StringVar(&buildOutDir, "out-dir", "", "Also write the indexes and matrix as files to this directory")
	rootCmd.AddCommand(buildCmd)
}
