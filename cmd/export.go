package cmd

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"danny/nn/internal/matrix"
	"danny/nn/internal/source"
	"danny/nn/internal/store"
)

var (
	exportFormat string
	exportRun    string
	exportSparse bool
)

var exportCmd = &cobra.Command{
	Use:   "export <dir>",
	Short: "Write the stored indexes, matrix, id mappings and a run result to files",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		dir := args[0]
		if cmd.Flags().Changed("format") {
			if _, err := source.ParseFormat(exportFormat); err != nil {
				return err
			}
			cfg.Output.Format = exportFormat
		}
		if cmd.Flags().Changed("sparse") {
			cfg.NN.Sparse = exportSparse
		}

		db, err := OpenDatabase()
		if err != nil {
			return err
		}
		defer db.Close()

		idx, err := db.LoadIndex(ctx)
		if err != nil {
			return fmt.Errorf("loading index: %w", err)
		}
		if err := writeIndexFiles(dir, idx); err != nil {
			return err
		}
		written := 2

		m, err := db.LoadMatrix(ctx, cfg.NN.Sparse)
		switch {
		case err == nil:
			if err := writeMatrixFile(dir, m.Snapshot()); err != nil {
				return err
			}
			written++
		case !errors.Is(err, store.ErrNotFound):
			return fmt.Errorf("loading matrix: %w", err)
		}

		for _, mapping := range []store.Mapping{store.UserMapping, store.EntityMapping} {
			ids, err := db.LoadMapping(ctx, mapping)
			if err != nil {
				return err
			}
			if len(ids) == 0 {
				continue
			}
			if err := source.WriteFile(outputFile(dir, string(mapping)), ids); err != nil {
				return err
			}
			written++
		}

		if exportRun != "" {
			run, err := db.GetRun(ctx, exportRun)
			if err != nil {
				return err
			}
			res, err := db.LoadResult(ctx, run.ID)
			if err != nil {
				return err
			}
			if err := source.WriteFile(outputFile(dir, "result_"+run.ID), res); err != nil {
				return err
			}
			written++
		}

		fmt.Printf("Exported %d files to %s\n", written, dir)
		return nil
	},
}

func outputFile(dir, name string) string {
	return filepath.Join(dir, name+"."+cfg.Output.Format)
}

func writeMatrixFile(dir string, snap matrix.Snapshot) error {
	return source.WriteFile(outputFile(dir, "matrix"), snap)
}

func init() {
	exportCmd.Flags().StringVar(&exportFormat, "format", "json", "File format: json or msgpack")
	exportCmd.Flags().StringVar(&exportRun, "run", "", "Also export the result of this run")
	exportCmd.Flags().BoolVar(&exportSparse, "sparse", true, "Export the matrix in sparse (CSR) form")
	rootCmd.AddCommand(exportCmd)
}
