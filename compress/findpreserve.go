package compress

import (
	"container/heap"
	"context"
	"math"

	"github.com/quanta-fri/gofri/transport"
)

// maxHeapItem is one candidate in the preservation max-heap.
type maxHeapItem struct {
	pos int
	abs float64
}

type maxHeap []maxHeapItem

func (h maxHeap) Len() int            { return len(h) }
func (h maxHeap) Less(i, j int) bool  { return h[i].abs > h[j].abs }
func (h maxHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *maxHeap) Push(x interface{}) { *h = append(*h, x.(maxHeapItem)) }
func (h *maxHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]

	return item
}

// FindPreserve keeps every element whose magnitude dominates the running
// threshold residualOneNorm/(nTarget-nKept), iterating the max-heap until no
// further element qualifies. Cross-process one-norm is synchronised each
// pass via tp.AllReduceSum since the threshold depends on the global
// residual, not just this process's share of it.
// Complexity: O(n log n) heap operations, O(passes) AllReduceSum round trips.
func FindPreserve(values []float64, nTarget int, tp transport.Collective) (kept []bool, residualNorm float64, err error) {
	n := len(values)
	kept = make([]bool, n)

	h := make(maxHeap, 0, n)
	var localNorm float64
	for i, v := range values {
		a := math.Abs(v)
		localNorm += a
		if a > 0 {
			h = append(h, maxHeapItem{pos: i, abs: a})
		}
	}
	heap.Init(&h)

	ctx := context.Background()
	residualOneNorm, err := tp.AllReduceSum(ctx, localNorm)
	if err != nil {
		return nil, 0, err
	}

	globalKept := 0
	for {
		keptThisPass := 0
		var removedThisPass float64
		for h.Len() > 0 {
			top := h[0]
			remaining := nTarget - globalKept
			if remaining <= 0 {
				break
			}
			threshold := residualOneNorm / float64(remaining)
			if top.abs < threshold {
				break
			}
			heap.Pop(&h)
			kept[top.pos] = true
			keptThisPass++
			removedThisPass += top.abs
		}

		keptThisPassGlobal, err := tp.AllReduceSum(ctx, float64(keptThisPass))
		if err != nil {
			return nil, 0, err
		}
		globalKept += int(keptThisPassGlobal)

		residualOneNorm, err = tp.AllReduceSum(ctx, localNorm-removedThisPass)
		if err != nil {
			return nil, 0, err
		}
		localNorm -= removedThisPass

		if keptThisPassGlobal == 0 {
			break
		}
	}

	return kept, residualOneNorm, nil
}
