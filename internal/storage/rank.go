package storage

import "sort"

// Less reports whether a ranks before b: higher count first, then the lexicographically
// smaller continuation.
func Less(a, b Hit) bool {
	if a.Count != b.Count {
		return a.Count > b.Count
	}
	return a.Continuation < b.Continuation
}

// Rank sorts the hits of one prefix into ranking order and truncates them to k.
// k <= 0 keeps every hit. A continuation seen twice yields an *InconsistencyError.
func Rank(prefix string, hits []Hit, k int) ([]Hit, error) {
	seen := make(map[string]int, len(hits))
	for _, h := range hits {
		seen[h.Continuation]++
		if n := seen[h.Continuation]; n > 1 {
			return nil, &InconsistencyError{Prefix: prefix, Continuation: h.Continuation, Rows: n}
		}
	}

	sort.Slice(hits, func(i, j int) bool {
		return Less(hits[i], hits[j])
	})
	if k > 0 && len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

// pruned returns the hits Prune removes from one prefix, given hits in any order.
func pruned(hits []Hit, minCount uint64, keepTop int) []Hit {
	sort.Slice(hits, func(i, j int) bool {
		return Less(hits[i], hits[j])
	})

	var drop []Hit
	kept := 0
	for _, h := range hits {
		if h.Count < minCount || (keepTop > 0 && kept >= keepTop) {
			drop = append(drop, h)
			continue
		}
		kept++
	}
	return drop
}
