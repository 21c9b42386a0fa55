package search

import (
	"sort"

	"github.com/ca-srg/halalfinder/internal/types"
)

// aggregate is the de-duplicated candidate set of one run
type aggregate struct {
	entries []types.CandidatePlace
	seen    map[string]struct{}
}

func newAggregate() *aggregate {
	return &aggregate{seen: make(map[string]struct{})}
}

// merge adds candidates whose ID is not present yet. First seen wins.
func (a *aggregate) merge(candidates []types.CandidatePlace) int {
	added := 0
	for _, c := range candidates {
		if _, ok := a.seen[c.ID]; ok {
			continue
		}
		a.seen[c.ID] = struct{}{}
		a.entries = append(a.entries, c)
		added++
	}
	return added
}

func (a *aggregate) len() int {
	return len(a.entries)
}

// rank computes distances from origin, orders nearest first and truncates to limit
func rank(origin types.Coordinate, candidates []types.CandidatePlace, distance func(a, b types.Coordinate) float64, limit int) []types.ResultEntry {
	results := make([]types.ResultEntry, 0, len(candidates))
	for _, c := range candidates {
		results = append(results, types.ResultEntry{
			CandidatePlace: c,
			DistanceMeters: distance(origin, c.Location),
		})
	}

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].DistanceMeters != results[j].DistanceMeters {
			return results[i].DistanceMeters < results[j].DistanceMeters
		}
		return results[i].ID < results[j].ID
	})

	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results
}
