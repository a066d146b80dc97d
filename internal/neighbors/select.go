package neighbors

import (
	"math/rand/v2"
	"sort"
)

const (
	// MaxUserCap bounds how many candidates are kept per subject.
	MaxUserCap = 1000
	// DefaultUserCap is the cap used when none is configured.
	DefaultUserCap = 500
)

// SelectCandidates returns at most min(n, MaxUserCap) candidate ids.
//
// When the set is larger than the cap, candidates scoring strictly above
// the score at rank n are always kept and the remaining slots are filled
// by sampling without replacement from the candidates tied at that score.
// rng drives the sampling only; nil uses a randomly seeded source.
func SelectCandidates(cands CandidateSet, n int, rng *rand.Rand) []int {
	if n > MaxUserCap {
		n = MaxUserCap
	}
	if n < 0 {
		n = 0
	}
	if len(cands) <= n {
		return cands.IDs()
	}
	if n == 0 {
		return []int{}
	}

	ranked := cands.IDs()
	sort.Slice(ranked, func(i, j int) bool {
		si, sj := cands[ranked[i]], cands[ranked[j]]
		if si != sj {
			return si > sj
		}
		return ranked[i] < ranked[j]
	})

	cutoff := cands[ranked[n-1]]
	selected := make([]int, 0, n)
	var ties []int
	for _, id := range ranked {
		switch s := cands[id]; {
		case s > cutoff:
			selected = append(selected, id)
		case s == cutoff:
			ties = append(ties, id)
		}
	}

	need := n - len(selected)
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	rng.Shuffle(len(ties), func(i, j int) { ties[i], ties[j] = ties[j], ties[i] })
	return append(selected, ties[:need]...)
}
