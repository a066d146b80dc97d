package cmd

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/spf13/cobra"

	"danny/nn/internal/index"
	"danny/nn/internal/neighbors"
	"danny/nn/internal/store"
)

var (
	inspectJSON             bool
	inspectTopN             int
	inspectPopularThreshold int
)

var inspectCmd = &cobra.Command{
	Use:   "inspect",
	Short: "Report index structure: size, components, isolated users, degree distribution",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := OpenDatabase()
		if err != nil {
			return err
		}
		defer db.Close()

		idx, err := db.LoadIndex(cmd.Context())
		if err != nil {
			return fmt.Errorf("loading index: %w", err)
		}

		stats := index.ComputeStats(idx, inspectPopularThreshold, inspectTopN, neighbors.SumSignificance)

		if inspectJSON {
			return printJSON(stats)
		}

		userNames, err := loadNames(cmd.Context(), db, store.UserMapping)
		if err != nil {
			return err
		}
		entityNames, err := loadNames(cmd.Context(), db, store.EntityMapping)
		if err != nil {
			return err
		}
		meta, err := db.MatrixInfo(cmd.Context())
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return err
		}
		printStats(stats, meta, userNames, entityNames)
		return nil
	},
}

func init() {
	inspectCmd.Flags().BoolVar(&inspectJSON, "json", false, "Output as JSON")
	inspectCmd.Flags().IntVar(&inspectTopN, "top-n", 10, "Number of top items to show per section")
	inspectCmd.Flags().IntVar(&inspectPopularThreshold, "popular-threshold", 15, "Minimum users to consider an entity popular")
	rootCmd.AddCommand(inspectCmd)
}

func printStats(s *index.Stats, meta *store.MatrixMeta, userNames, entityNames map[int]string) {
	fmt.Println("\n  INDEX")
	fmt.Println("  ────────────────────────────────────────")
	fmt.Printf("  Users: %d  Entities: %d  Edges: %d  Visits: %d\n", s.Users, s.Entities, s.Edges, s.TotalVisits)
	fmt.Printf("  Components: %d  Largest: %d  Smallest: %d\n", s.NumComponents, s.LargestComponent, s.SmallestComponent)
	fmt.Printf("  Users with more than %d visits: %d\n", neighbors.SumSignificance, s.SignificantUsers)
	if meta != nil {
		fmt.Printf("  Matrix: %dx%d (sparse=%t)\n", meta.Rows, meta.Cols, meta.Sparse)
	} else {
		fmt.Println("  Matrix: not built")
	}

	if s.IsolatedCount > 0 {
		fmt.Printf("  Isolated: %d users share no entity with anyone\n", s.IsolatedCount)
		for _, id := range s.IsolatedIDs {
			fmt.Printf("    - %s\n", displayID(id, userNames))
		}
		if s.IsolatedCount > len(s.IsolatedIDs) {
			fmt.Printf("    ... and %d more\n", s.IsolatedCount-len(s.IsolatedIDs))
		}
	}

	// Entities per user
	fmt.Println("\n  Entities per user:")
	for _, b := range s.DegreeHistogram {
		if b.Count > 0 {
			barWidth := int(math.Log2(float64(b.Count))) + 2
			if barWidth < 1 {
				barWidth = 1
			}
			fmt.Printf("    %5s: %4d  %s\n", b.Label, b.Count, strings.Repeat("=", barWidth))
		}
	}

	if len(s.PopularEntities) > 0 {
		fmt.Println("\n  Popular entities:")
		for _, e := range s.PopularEntities {
			fmt.Printf("    %s users=%d visits=%d\n", displayID(e.ID, entityNames), e.Users, e.Visits)
		}
	}

	fmt.Println()
}
