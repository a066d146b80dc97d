package neighbors

import (
	"fmt"
	"math"

	"danny/nn/internal/matrix"
)

// NoThreshold keeps every score; normalized dot products are never negative.
const NoThreshold = -1.0

// FindSimilarities scores each candidate against user's row. The result is
// aligned with cands.
func FindSimilarities(m matrix.Matrix, user int, cands []int) ([]float64, error) {
	if len(cands) == 0 {
		return []float64{}, nil
	}
	row, err := m.Row(user)
	if err != nil {
		return nil, fmt.Errorf("reading row %d: %w", user, err)
	}
	sims, err := m.MulRowsVec(cands, row)
	if err != nil {
		return nil, fmt.Errorf("scoring %d candidates: %w", len(cands), err)
	}
	return sims, nil
}

// FormatSimilarities rounds scores to 4 decimals and keeps those strictly
// above thresh.
func FormatSimilarities(cands []int, sims []float64, thresh float64) map[int]float64 {
	out := make(map[int]float64, len(cands))
	for i, id := range cands {
		s := Round4(sims[i])
		if s > thresh {
			out[id] = s
		}
	}
	return out
}

// Round4 rounds to 4 decimal places.
func Round4(x float64) float64 {
	return math.Round(x*1e4) / 1e4
}
