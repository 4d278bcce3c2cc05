package search

import (
	"container/heap"
	"sort"
)

// hitHeap is a min-heap on score so the weakest of the current top-k is
// always at the root.
type hitHeap []Hit

func (h hitHeap) Len() int { return len(h) }
func (h hitHeap) Less(i, j int) bool {
	if h[i].Score != h[j].Score {
		return h[i].Score < h[j].Score
	}
	// Reverse doc-id order so the final output tie-breaks ascending.
	return h[i].DocID > h[j].DocID
}
func (h hitHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *hitHeap) Push(x any)        { *h = append(*h, x.(Hit)) }
func (h *hitHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

func heapTopK(hits []Hit, limit int) []Hit {
	h := make(hitHeap, 0, limit)
	heap.Init(&h)
	for _, hit := range hits {
		if len(h) < limit {
			heap.Push(&h, hit)
			continue
		}
		if hit.Score > h[0].Score || (hit.Score == h[0].Score && hit.DocID < h[0].DocID) {
			h[0] = hit
			heap.Fix(&h, 0)
		}
	}

	out := []Hit(h)
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].DocID < out[j].DocID
	})
	return out
}
