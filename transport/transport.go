// Package transport formalizes the MPI-shaped all-to-all, all-gather,
// all-reduce, and broadcast primitives the driver, adder, and subspace
// packages rely on, behind one interface that is agnostic to which concrete
// implementation supplies it. Local implements that interface for an
// in-process group of goroutines, one per simulated rank, that meet at a
// shared mutex-and-condition-variable barrier per collective, so the rest of the engine builds, tests, and runs on a
// single machine without an external MPI runtime. A production deployment
// can swap in a different Collective (real OS processes and sockets)
// without touching dvec, adder, driver, or subspace.
package transport

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrRankOutOfRange is returned when a collective call references a rank
// outside [0, Size()).
var ErrRankOutOfRange = errors.New("transport: rank out of range")

// ErrSizeMismatch is returned when a collective's per-rank inputs don't
// agree on count across ranks as the collective requires.
var ErrSizeMismatch = errors.New("transport: participant count mismatch")

// Collective is the set of collective operations one simulated process
// (rank) can invoke against the others. Every method blocks until every
// rank has made the matching call; a rank that never calls a given method
// deadlocks the others, mirroring real MPI collective semantics.
type Collective interface {
	Rank() int
	Size() int
	AllToAll(ctx context.Context, counts []int32) ([]int32, error)
	AllToAllV(ctx context.Context, send [][]byte, sendCounts []int32) ([][]byte, error)
	AllGather(ctx context.Context, local []byte) ([][]byte, error)
	AllReduceSum(ctx context.Context, local float64) (float64, error)
	Broadcast(ctx context.Context, root int, data []byte) ([]byte, error)
}

// barrier is a reusable N-way rendezvous: every participant calls enter
// with its own contribution and a combine function; the last arriving
// participant runs combine once and wakes everyone with the shared result.
type barrier struct {
	mu      sync.Mutex
	cond    *sync.Cond
	n       int
	arrived int
	gen     int
	inputs  []any
	result  any
}

func newBarrier(n int) *barrier {
	b := &barrier{n: n, inputs: make([]any, n)}
	b.cond = sync.NewCond(&b.mu)

	return b
}

func (b *barrier) enter(rank int, input any, combine func([]any) any) any {
	b.mu.Lock()
	defer b.mu.Unlock()

	myGen := b.gen
	b.inputs[rank] = input
	b.arrived++

	if b.arrived == b.n {
		b.result = combine(b.inputs)
		b.inputs = make([]any, b.n)
		b.arrived = 0
		b.gen++
		b.cond.Broadcast()

		return b.result
	}

	for b.gen == myGen {
		b.cond.Wait()
	}

	return b.result
}

// hub is the shared rendezvous state for one simulated communicator; every
// Local returned by NewLocalGroup holds a pointer to the same hub.
type hub struct {
	size             int
	allToAllBarrier  *barrier
	allToAllVBarrier *barrier
	allGatherBarrier *barrier
	reduceBarrier    *barrier
	bcastBarrier     *barrier
}

// Local implements Collective for simulated rank `rank` within a group of
// `size` in-process goroutines sharing one hub.
type Local struct {
	rank int
	hub  *hub
}

// NewLocalGroup returns `size` Local collectives, one per simulated rank,
// all synchronized against each other. Each must run on its own goroutine.
func NewLocalGroup(size int) []*Local {
	h := &hub{
		size:             size,
		allToAllBarrier:  newBarrier(size),
		allToAllVBarrier: newBarrier(size),
		allGatherBarrier: newBarrier(size),
		reduceBarrier:    newBarrier(size),
		bcastBarrier:     newBarrier(size),
	}
	out := make([]*Local, size)
	for r := 0; r < size; r++ {
		out[r] = &Local{rank: r, hub: h}
	}

	return out
}

// Rank returns this participant's rank.
func (l *Local) Rank() int { return l.rank }

// Size returns the group size.
func (l *Local) Size() int { return l.hub.size }

// AllToAll exchanges one int32 count per destination rank; recv[j] is the
// count rank j sent to this rank.
// Complexity: O(size^2) combine, O(size) per participant.
func (l *Local) AllToAll(ctx context.Context, counts []int32) ([]int32, error) {
	if len(counts) != l.hub.size {
		return nil, fmt.Errorf("AllToAll: len=%d size=%d: %w", len(counts), l.hub.size, ErrSizeMismatch)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	res := l.hub.allToAllBarrier.enter(l.rank, counts, func(all []any) any {
		n := len(all)
		out := make([][]int32, n)
		for r := 0; r < n; r++ {
			out[r] = make([]int32, n)
			for j := 0; j < n; j++ {
				out[r][j] = all[j].([]int32)[r]
			}
		}

		return out
	})

	return res.([][]int32)[l.rank], nil
}

// AllToAllV exchanges variable-length byte payloads; sendCounts[j] gives
// the number of payload entries in send[j] destined for rank j (send must
// have one entry per element, concatenation is the caller's concern for
// AllToAllV's element-vs-byte granularity, so this operates at []byte
// granularity: send[j] is the entire payload for destination j).
// Complexity: O(size^2) combine.
func (l *Local) AllToAllV(ctx context.Context, send [][]byte, sendCounts []int32) ([][]byte, error) {
	if len(send) != l.hub.size {
		return nil, fmt.Errorf("AllToAllV: len=%d size=%d: %w", len(send), l.hub.size, ErrSizeMismatch)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	res := l.hub.allToAllVBarrier.enter(l.rank, send, func(all []any) any {
		n := len(all)
		out := make([][][]byte, n)
		for r := 0; r < n; r++ {
			out[r] = make([][]byte, n)
			for j := 0; j < n; j++ {
				out[r][j] = all[j].([][]byte)[r]
			}
		}

		return out
	})

	recv := res.([][][]byte)[l.rank]
	flat := make([][]byte, 0, len(recv))
	flat = append(flat, recv...)

	return flat, nil
}

// AllGather collects every participant's local payload, in rank order.
// Complexity: O(size) combine.
func (l *Local) AllGather(ctx context.Context, local []byte) ([][]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	res := l.hub.allGatherBarrier.enter(l.rank, local, func(all []any) any {
		out := make([][]byte, len(all))
		for r, v := range all {
			out[r] = v.([]byte)
		}

		return out
	})

	return res.([][]byte), nil
}

// AllReduceSum sums local across every participant and returns the total to
// all of them.
// Complexity: O(size) combine.
func (l *Local) AllReduceSum(ctx context.Context, local float64) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	res := l.hub.reduceBarrier.enter(l.rank, local, func(all []any) any {
		var sum float64
		for _, v := range all {
			sum += v.(float64)
		}

		return sum
	})

	return res.(float64), nil
}

// Broadcast distributes root's data to every participant.
// Complexity: O(size) combine.
func (l *Local) Broadcast(ctx context.Context, root int, data []byte) ([]byte, error) {
	if root < 0 || root >= l.hub.size {
		return nil, fmt.Errorf("Broadcast: root=%d: %w", root, ErrRankOutOfRange)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	type rootedPayload struct {
		root int
		data []byte
	}
	res := l.hub.bcastBarrier.enter(l.rank, rootedPayload{root, data}, func(all []any) any {
		// every participant calls with the same root; only its payload
		// is authoritative.
		for _, v := range all {
			p := v.(rootedPayload)
			if p.root == root {
				return p.data
			}
		}

		return nil
	})
	if res == nil {
		return nil, nil
	}

	return res.([]byte), nil
}
