// Package neighbors finds the nearest neighbors of users in a user-entity
// graph. Candidates are pruned to users sharing at least one entity with
// the subject, optionally ranked and capped, then scored by dot product
// against the row-normalized matrix.
package neighbors

import (
	"fmt"

	"danny/nn/internal/index"
)

// SumSignificance is the visit total a subject must exceed before
// approximate scores are weighted by entity share and breadth.
const SumSignificance = 10

// CandidateSet maps candidate user id to a relevance score.
type CandidateSet map[int]float64

// IDs returns the candidate ids in no particular order.
func (c CandidateSet) IDs() []int {
	ids := make([]int, 0, len(c))
	for id := range c {
		ids = append(ids, id)
	}
	return ids
}

// StrictPrune returns every other user sharing at least one entity with
// user, each with score 1.
func StrictPrune(idx *index.Index, user int) (CandidateSet, error) {
	row, ok := idx.UserEntity[user]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrNotFound, user)
	}
	cands := make(CandidateSet)
	for e := range row {
		users, ok := idx.EntityUser[e]
		if !ok {
			return nil, fmt.Errorf("%w: entity %d has no users", ErrInvalidArgument, e)
		}
		for u := range users {
			if u != user {
				cands[u] = 1
			}
		}
	}
	return cands, nil
}

// ApproxPrune walks the same candidates as StrictPrune but accumulates a
// closeness score per candidate.
//
// With S the subject's total visits and L1 its distinct entities: when
// S > SumSignificance each shared entity visited w times contributes
// (w/S) / (|L1-L2|+1), L2 being the candidate's distinct entities.
// Otherwise each shared entity contributes 1.
func ApproxPrune(idx *index.Index, user int) (CandidateSet, error) {
	row, ok := idx.UserEntity[user]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrNotFound, user)
	}

	sum := 0
	for _, w := range row {
		sum += w
	}
	l1 := len(row)
	weighted := sum > SumSignificance

	cands := make(CandidateSet)
	for e, w := range row {
		users, ok := idx.EntityUser[e]
		if !ok {
			return nil, fmt.Errorf("%w: entity %d has no users", ErrInvalidArgument, e)
		}
		perc := float64(w) / float64(sum)
		for u := range users {
			if u == user {
				continue
			}
			if !weighted {
				cands[u]++
				continue
			}
			l2 := len(idx.UserEntity[u])
			cands[u] += perc / float64(absInt(l1-l2)+1)
		}
	}
	return cands, nil
}

func absInt(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
