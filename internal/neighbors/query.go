package neighbors

import (
	"sort"

	"danny/nn/internal/index"
	"danny/nn/internal/matrix"
)

// Neighbor is a candidate with its similarity to the subject.
type Neighbor struct {
	ID         int     `json:"id"`
	Similarity float64 `json:"similarity"`
}

// Querier answers single-user lookups against an in-memory index and matrix.
type Querier struct {
	Index  *index.Index
	Matrix matrix.Matrix
}

// Exact scores every user sharing an entity with user and returns the top k.
func (q *Querier) Exact(user, k int) ([]Neighbor, error) {
	cands, err := StrictPrune(q.Index, user)
	if err != nil {
		return nil, err
	}
	ns, err := q.score(user, cands.IDs())
	if err != nil {
		return nil, err
	}
	sortNeighbors(ns)
	return topK(ns, k), nil
}

// Approx ranks candidates heuristically, scores at most the best 2k of
// them and returns the top k.
func (q *Querier) Approx(user, k int) ([]Neighbor, error) {
	cands, err := ApproxPrune(q.Index, user)
	if err != nil {
		return nil, err
	}
	ids := cands.IDs()
	if limit := 2 * k; k > 0 && len(ids) > limit {
		sort.Slice(ids, func(i, j int) bool {
			si, sj := cands[ids[i]], cands[ids[j]]
			if si != sj {
				return si > sj
			}
			return ids[i] < ids[j]
		})
		ids = ids[:limit]
	}
	ns, err := q.score(user, ids)
	if err != nil {
		return nil, err
	}
	sortNeighbors(ns)
	return topK(ns, k), nil
}

// AboveThreshold returns every candidate scoring strictly above thresh,
// sorted by descending similarity when sorted is set.
func (q *Querier) AboveThreshold(user int, thresh float64, sorted bool) ([]Neighbor, error) {
	cands, err := StrictPrune(q.Index, user)
	if err != nil {
		return nil, err
	}
	ns, err := q.score(user, cands.IDs())
	if err != nil {
		return nil, err
	}
	kept := ns[:0]
	for _, n := range ns {
		if n.Similarity > thresh {
			kept = append(kept, n)
		}
	}
	if sorted {
		sortNeighbors(kept)
	}
	return kept, nil
}

func (q *Querier) score(user int, ids []int) ([]Neighbor, error) {
	sims, err := FindSimilarities(q.Matrix, user, ids)
	if err != nil {
		return nil, err
	}
	ns := make([]Neighbor, len(ids))
	for i, id := range ids {
		ns[i] = Neighbor{ID: id, Similarity: Round4(sims[i])}
	}
	return ns, nil
}

func sortNeighbors(ns []Neighbor) {
	sort.Slice(ns, func(i, j int) bool {
		if ns[i].Similarity != ns[j].Similarity {
			return ns[i].Similarity > ns[j].Similarity
		}
		return ns[i].ID < ns[j].ID
	})
}

// topK truncates to k; non-positive k keeps everything.
func topK(ns []Neighbor, k int) []Neighbor {
	if k > 0 && len(ns) > k {
		return ns[:k]
	}
	return ns
}
