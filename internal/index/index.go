package index

import (
	"errors"
	"fmt"
	"sort"
)

// ErrAsymmetric is returned when the user-entity and entity-user adjacencies
// do not mirror each other.
var ErrAsymmetric = errors.New("user-entity and entity-user indexes diverge")

// Adjacency maps a key id to its neighbors and visit weights.
// For the user-entity side the key is a user id, for the entity-user side an entity id.
type Adjacency map[int]map[int]int

// Index holds both sides of the bipartite visitation graph.
type Index struct {
	UserEntity Adjacency
	EntityUser Adjacency
}

// Visit is one (user, entity) log line.
type Visit struct {
	User   int
	Entity int
}

// New pairs two adjacencies and checks that they mirror each other.
func New(userEntity, entityUser Adjacency) (*Index, error) {
	idx := &Index{UserEntity: userEntity, EntityUser: entityUser}
	if err := idx.Validate(); err != nil {
		return nil, err
	}
	return idx, nil
}

// FromUserEntity builds an index from the user side, deriving the entity side.
func FromUserEntity(userEntity Adjacency) *Index {
	return &Index{UserEntity: userEntity, EntityUser: Transpose(userEntity)}
}

// Build aggregates visits into an index. With oneHot every weight is 1,
// otherwise the weight is the number of times the pair was seen.
func Build(visits []Visit, oneHot bool) *Index {
	ue := make(Adjacency)
	for _, v := range visits {
		ue.add(v.User, v.Entity, 1, oneHot)
	}
	return FromUserEntity(ue)
}

func (a Adjacency) add(key, other, weight int, oneHot bool) {
	row, ok := a[key]
	if !ok {
		row = make(map[int]int)
		a[key] = row
	}
	if oneHot {
		row[other] = 1
		return
	}
	row[other] += weight
}

// Merge folds src into a. Weights are summed unless oneHot is set.
func (a Adjacency) Merge(src Adjacency, oneHot bool) {
	for key, row := range src {
		for other, w := range row {
			a.add(key, other, w, oneHot)
		}
	}
}

// Transpose returns the mirrored adjacency.
func Transpose(a Adjacency) Adjacency {
	t := make(Adjacency)
	for key, row := range a {
		for other, w := range row {
			inner, ok := t[other]
			if !ok {
				inner = make(map[int]int)
				t[other] = inner
			}
			inner[key] = w
		}
	}
	return t
}

// Validate checks weights are positive and every triple is mirrored.
func (idx *Index) Validate() error {
	if idx.UserEntity == nil || idx.EntityUser == nil {
		return fmt.Errorf("%w: missing side", ErrAsymmetric)
	}
	edges := 0
	for u, row := range idx.UserEntity {
		for e, w := range row {
			if w < 1 {
				return fmt.Errorf("user %d entity %d: weight %d < 1", u, e, w)
			}
			if got, ok := idx.EntityUser[e][u]; !ok || got != w {
				return fmt.Errorf("%w: user %d entity %d weight %d not mirrored", ErrAsymmetric, u, e, w)
			}
			edges++
		}
	}
	mirrored := 0
	for _, row := range idx.EntityUser {
		mirrored += len(row)
	}
	if mirrored != edges {
		return fmt.Errorf("%w: %d user-entity edges vs %d entity-user edges", ErrAsymmetric, edges, mirrored)
	}
	return nil
}

// NumUsers returns the number of users with at least one visit.
func (idx *Index) NumUsers() int { return len(idx.UserEntity) }

// NumEntities returns the number of visited entities.
func (idx *Index) NumEntities() int { return len(idx.EntityUser) }

// HasUser reports whether the user has any visits.
func (idx *Index) HasUser(user int) bool {
	_, ok := idx.UserEntity[user]
	return ok
}

// UserIDs returns a sorted list of all user ids (for deterministic output)
func (idx *Index) UserIDs() []int {
	return idx.UserEntity.Keys()
}

// Keys returns the sorted keys of an adjacency.
func (a Adjacency) Keys() []int {
	ids := make([]int, 0, len(a))
	for id := range a {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

// Edges returns the number of (key, other) pairs.
func (a Adjacency) Edges() int {
	n := 0
	for _, row := range a {
		n += len(row)
	}
	return n
}
