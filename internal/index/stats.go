package index

import "sort"

// PopularEntity is an entity visited by many users
type PopularEntity struct {
	ID     int `json:"id"`
	Users  int `json:"users"`
	Visits int `json:"visits"`
}

// DegreeBucket is one bucket in the degree histogram
type DegreeBucket struct {
	Label string `json:"label"`
	Count int    `json:"count"`
}

// Stats summarizes the shape of an index
type Stats struct {
	Users             int             `json:"users"`
	Entities          int             `json:"entities"`
	Edges             int             `json:"edges"`
	TotalVisits       int             `json:"total_visits"`
	NumComponents     int             `json:"num_components"`
	LargestComponent  int             `json:"largest_component"`
	SmallestComponent int             `json:"smallest_component"`
	IsolatedCount     int             `json:"isolated_count"`
	IsolatedIDs       []int           `json:"isolated_ids"`
	SignificantUsers  int             `json:"significant_users"`
	DegreeHistogram   []DegreeBucket  `json:"degree_histogram"`
	PopularEntities   []PopularEntity `json:"popular_entities"`
}

// ComputeStats reports components, isolated users, the distribution of
// entities per user and the most visited entities.
// Users are in one component when they are linked by shared entities.
// sumSignificance is the visit total above which a user counts as significant.
func ComputeStats(idx *Index, popularThreshold, topN, sumSignificance int) *Stats {
	userIDs := idx.UserIDs()
	if len(userIDs) == 0 {
		return &Stats{DegreeHistogram: defaultHistogram()}
	}

	comps := newComponents(userIDs)
	for _, users := range idx.EntityUser {
		comps.linkAll(users)
	}
	sizes := comps.sizes()
	largest, smallest := sizes[0], sizes[len(sizes)-1]

	// Isolated: shares no entity with any other user
	var isolated []int
	buckets := [7]int{}
	totalVisits, significant := 0, 0
	for _, u := range userIDs {
		row := idx.UserEntity[u]
		buckets[degreeBucket(len(row))]++
		sum := 0
		alone := true
		for e, w := range row {
			sum += w
			if len(idx.EntityUser[e]) > 1 {
				alone = false
			}
		}
		totalVisits += sum
		if sum > sumSignificance {
			significant++
		}
		if alone {
			isolated = append(isolated, u)
		}
	}
	isolatedCount := len(isolated)
	if len(isolated) > topN {
		isolated = isolated[:topN]
	}

	histogram := defaultHistogram()
	for i := range histogram {
		histogram[i].Count = buckets[i]
	}

	var popular []PopularEntity
	for e, users := range idx.EntityUser {
		if len(users) <= popularThreshold {
			continue
		}
		visits := 0
		for _, w := range users {
			visits += w
		}
		popular = append(popular, PopularEntity{ID: e, Users: len(users), Visits: visits})
	}
	sort.Slice(popular, func(i, j int) bool {
		if popular[i].Users != popular[j].Users {
			return popular[i].Users > popular[j].Users
		}
		return popular[i].ID < popular[j].ID
	})
	if len(popular) > topN {
		popular = popular[:topN]
	}

	return &Stats{
		Users:             len(userIDs),
		Entities:          idx.NumEntities(),
		Edges:             idx.UserEntity.Edges(),
		TotalVisits:       totalVisits,
		NumComponents:     len(sizes),
		LargestComponent:  largest,
		SmallestComponent: smallest,
		IsolatedCount:     isolatedCount,
		IsolatedIDs:       isolated,
		SignificantUsers:  significant,
		DegreeHistogram:   histogram,
		PopularEntities:   popular,
	}
}

func defaultHistogram() []DegreeBucket {
	return []DegreeBucket{
		{Label: "0"}, {Label: "1"}, {Label: "2-3"},
		{Label: "4-7"}, {Label: "8-15"}, {Label: "16-31"}, {Label: "32+"},
	}
}

func degreeBucket(degree int) int {
	switch {
	case degree == 0:
		return 0
	case degree == 1:
		return 1
	case degree <= 3:
		return 2
	case degree <= 7:
		return 3
	case degree <= 15:
		return 4
	case degree <= 31:
		return 5
	default:
		return 6
	}
}
