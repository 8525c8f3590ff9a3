package search

import "sort"

// FuseRRF combines keyword and semantic chunk results with unweighted
// Reciprocal Rank Fusion: score_rrf(item) = Σ_over_lists 1/(k+rank+1),
// rank 0-indexed within each input list. There is no source weighting
// and no post-hoc score normalization — the fused score is exactly the
// sum above.
//
// Results are sorted by fused score descending, ties broken by ChunkID
// ascending for a deterministic order.
func FuseRRF(keyword, semantic []ChunkResult, k float64) []ChunkResult {
	scores := make(map[string]float64, len(keyword)+len(semantic))
	byID := make(map[string]ChunkResult, len(keyword)+len(semantic))

	for rank, r := range keyword {
		scores[r.ChunkID] += 1.0 / (k + float64(rank) + 1.0)
		byID[r.ChunkID] = r
	}
	for rank, r := range semantic {
		scores[r.ChunkID] += 1.0 / (k + float64(rank) + 1.0)
		if _, ok := byID[r.ChunkID]; !ok {
			byID[r.ChunkID] = r
		}
	}

	fused := make([]ChunkResult, 0, len(scores))
	for id, score := range scores {
		r := byID[id]
		r.Score = score
		fused = append(fused, r)
	}

	sort.Slice(fused, func(i, j int) bool {
		if fused[i].Score != fused[j].Score {
			return fused[i].Score > fused[j].Score
		}
		return fused[i].ChunkID < fused[j].ChunkID
	})

	return fused
}
