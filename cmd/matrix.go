package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"danny/nn/internal/index"
	"danny/nn/internal/matrix"
	"danny/nn/internal/neighbors"
	"danny/nn/internal/source"
	"danny/nn/internal/store"
)

var (
	matrixUserEntity string
	matrixOut        string
	matrixSparse     bool
)

var matrixCmd = &cobra.Command{
	Use:   "matrix",
	Short: "Build the L2-normalized user-entity matrix from the index",
	RunE: func(cmd *cobra.Command, args []string) error {
		applySparseFlag(cmd, matrixSparse)

		db, err := OpenOrCreateDatabase()
		if err != nil {
			return err
		}
		defer db.Close()

		var src neighbors.AdjacencySource = source.FromStore(db, source.UserEntity)
		if matrixUserEntity != "" {
			src = source.FromFile(matrixUserEntity)
		}
		ue, err := src.LoadAdjacency(cmd.Context())
		if err != nil {
			return fmt.Errorf("loading user-entity index: %w", err)
		}

		m, err := buildMatrix(cmd.Context(), db, ue)
		if err != nil {
			return err
		}
		if matrixOut != "" {
			if err := source.WriteFile(matrixOut, m.Snapshot()); err != nil {
				return err
			}
		}
		rows, cols := m.Dims()
		fmt.Printf("Built %dx%d matrix (sparse=%t) -> %s\n", rows, cols, m.IsSparse(), db.Path)
		return nil
	},
}

func applySparseFlag(cmd *cobra.Command, sparse bool) {
	if cmd.Flags().Changed("sparse") {
		cfg.NN.Sparse = sparse
	}
}

func buildMatrix(ctx context.Context, db *store.Store, ue index.Adjacency) (matrix.Matrix, error) {
	m, err := matrix.FromIndex(ue, cfg.NN.Sparse)
	if err != nil {
		return nil, fmt.Errorf("building matrix: %w", err)
	}
	if err := db.SaveMatrix(ctx, m); err != nil {
		return nil, fmt.Errorf("saving matrix: %w", err)
	}
	return m, nil
}

func init() {
	matrixCmd.Flags().StringVar(&matrixUserEntity, "user-entity", "", "Read the user-entity index from this file instead of the database")
	matrixCmd.Flags().StringVar(&matrixOut, "out", "", "Also write the matrix to this file (.json or .msgpack)")
	matrixCmd.Flags().BoolVar(&matrixSparse, "sparse", true, "Build a sparse (CSR) matrix instead of a dense one")
	rootCmd.AddCommand(matrixCmd)
}
