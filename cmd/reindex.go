package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"danny/nn/internal/ingest"
	"danny/nn/internal/source"
	"danny/nn/internal/store"
)

var (
	reindexMappings string
	reindexNoStore  bool
)

var reindexCmd = &cobra.Command{
	Use:   "reindex <raw-log> <converted-log>",
	Short: "Assign consecutive ids to users and entities of a raw user,entity log",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		in, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer in.Close()

		visits, mappings, err := ingest.Reindex(in)
		if err != nil {
			return fmt.Errorf("reindexing %s: %w", args[0], err)
		}

		out, err := os.Create(args[1])
		if err != nil {
			return err
		}
		if err := ingest.WriteVisits(out, visits); err != nil {
			out.Close()
			return fmt.Errorf("writing %s: %w", args[1], err)
		}
		if err := out.Close(); err != nil {
			return err
		}

		if reindexMappings != "" {
			if err := source.WriteFile(outputFile(reindexMappings, string(store.UserMapping)), mappings.Users); err != nil {
				return err
			}
			if err := source.WriteFile(outputFile(reindexMappings, string(store.EntityMapping)), mappings.Entities); err != nil {
				return err
			}
		}

		if !reindexNoStore {
			db, err := OpenOrCreateDatabase()
			if err != nil {
				return err
			}
			defer db.Close()
			if err := saveMappings(cmd, db, mappings); err != nil {
				return err
			}
		}

		fmt.Printf("Reindexed %d visits: %d users, %d entities -> %s\n",
			len(visits), len(mappings.Users), len(mappings.Entities), args[1])
		return nil
	},
}

func saveMappings(cmd *cobra.Command, db *store.Store, m *ingest.Mappings) error {
	if err := db.SaveMapping(cmd.Context(), store.UserMapping, m.Users); err != nil {
		return fmt.Errorf("saving user ids: %w", err)
	}
	if err := db.SaveMapping(cmd.Context(), store.EntityMapping, m.Entities); err != nil {
		return fmt.Errorf("saving entity ids: %w", err)
	}
	return nil
}

func init() {
	reindexCmd.Flags().StringVar(&reindexMappings, "mappings", "", "Also write user_ids/entity_ids files to this directory")
	reindexCmd.Flags().BoolVar(&reindexNoStore, "no-store", false, "Do not save the id mappings to the database")
	rootCmd.AddCommand(reindexCmd)
}
