// Package dvec implements the distributed hashed sparse vector: the
// per-process store of (determinant, value-row) pairs that the iteration
// driver mutates every step. Unlike core.Graph in the teacher repository,
// DistVec carries no lock. §5 of the distilled specification is explicit
// that the sparse vector is not reentrant -- all mutation is sequenced by
// the driver, one logical thread per process, with collectives as the only
// suspension points. Adding a mutex here would paper over a concurrency
// model the design deliberately does not have, turning a real bug
// (concurrent mutation) into a latency hit instead of a race that `go test
// -race` can catch. DistVec's own tests never mutate one DistVec from two
// goroutines at once for exactly this reason.
package dvec

import (
	"errors"
	"fmt"
	"math"

	"github.com/quanta-fri/gofri/adder"
	"github.com/quanta-fri/gofri/detbit"
	"github.com/quanta-fri/gofri/transport"
)

// ErrRowOutOfRange is returned by SetCurrVecIdx when k falls outside
// [0, nRows).
var ErrRowOutOfRange = errors.New("dvec: row index out of range")

// ErrLoadMismatch is returned by Load when the sizes of the checkpoint
// files don't fit the vector it is loaded into (its determinant byte
// length and nRows).
var ErrLoadMismatch = errors.New("dvec: checkpoint dimensions do not match")

// ErrCapacityExceeded is recorded in Stats (not returned directly — the
// Adder's CommitFunc contract reports only accept/reject per element) when
// an initiator's contribution would grow the table past MaxCap.
var ErrCapacityExceeded = errors.New("dvec: position capacity exceeded")

// Stats accumulates sign-coherence diagnostics fed by addElements.
type Stats struct {
	NoninitiatorOccupiedAdds int64
	CapacityRejections       int64
}

// DistVec is one process's shard of a distributed sparse vector over
// Slater determinants: nRows parallel value rows indexed by position, a
// local hash table from determinant to position, and a LIFO free-slot
// stack recycling positions vacated by DelAtPos.
type DistVec struct {
	nOrb      int
	nElec     int
	nRows     int
	rank      int
	nProcs    int
	commonScr []uint32
	localScr  []uint32

	idx       []detbit.Det
	occOrbs   [][]uint16
	values    [][]float64 // values[row][pos]
	diagCache []float64   // NaN sentinel: empty

	posOf     map[string]int
	freeStack []int
	minDelIdx int
	nNonz     int
	currRow   int
	maxCap    int // 0 means unbounded

	Stats Stats

	adder *adder.Adder
}

// New constructs an empty DistVec for nOrb spatial orbitals / nElec active
// electrons, with nRows parallel value rows, owned by process `rank` of
// `nProcs`, using commonScr for cross-process index ownership. localScr is
// stored on the vector; the local lookup table is keyed by determinant
// bytes and does not hash with it.
func New(nOrb, nElec, nRows, rank, nProcs int, commonScr, localScr []uint32) *DistVec {
	v := &DistVec{
		nOrb:      nOrb,
		nElec:     nElec,
		nRows:     nRows,
		rank:      rank,
		nProcs:    nProcs,
		commonScr: commonScr,
		localScr:  localScr,
		posOf:     make(map[string]int),
		values:    make([][]float64, nRows),
	}
	for r := range v.values {
		v.values[r] = make([]float64, 0, 1024)
	}

	return v
}

// Attach wires v to the adder.Adder it stages additions through, and
// registers v's commit callback as that Adder's CommitFunc. Call once
// after construction.
func (v *DistVec) Attach(tp transport.Collective, cap int) {
	v.adder = adder.NewAdder(tp, v.nOrb, cap, v.addElements)
}

// SetMaxCap bounds the number of allocated positions; further initiator
// allocations past this bound are refused and counted in
// Stats.CapacityRejections (see ErrCapacityExceeded). Zero means unbounded.
func (v *DistVec) SetMaxCap(n int) { v.maxCap = n }

// SetCurrVecIdx directs future scalar operations (Add, Dot, diagonal
// lookups) at value row k.
func (v *DistVec) SetCurrVecIdx(k int) error {
	if k < 0 || k >= v.nRows {
		return fmt.Errorf("SetCurrVecIdx: k=%d nRows=%d: %w", k, v.nRows, ErrRowOutOfRange)
	}
	v.currRow = k

	return nil
}

// procOf returns the owning rank for idx under the common scrambler.
func (v *DistVec) procOf(idx detbit.Det) (int, error) {
	return HashProc(idx, v.nElec, v.commonScr, v.nProcs)
}

// Add stages one (idx, val) contribution for later flush via the owning
// Adder, routed to its owning process under HashProc. Returns the staging
// position within that destination's row.
// Complexity: O(1) amortised.
func (v *DistVec) Add(idx detbit.Det, val float64, initiator bool) (int, error) {
	dest, err := v.procOf(idx)
	if err != nil {
		return 0, err
	}

	return v.adder.Stage(dest, idx, val, initiator)
}

// PerformAdd flushes every buffered addition from origin's Adder (or, for
// the common case where v stages its own additions, from v's own Adder),
// committing every element via addElements. Pass v itself unless a
// separate staging vector is in play.
func (v *DistVec) PerformAdd(origin *DistVec) error {
	return origin.adder.Flush(flushCtx())
}

// lookup finds or allocates (when ini is true) the position for idx,
// implementing the commit semantics in SPEC_FULL.md §4.5:
//  1. look up by hash key; only allocate a new slot when ini is true
//     (the initiator rule -- a noninitiator can never cause allocation).
//  2. if newly allocated, pop the free-stack (or append), zero all value
//     rows, clear the diagonal cache, and record the occupied-orbital list.
func (v *DistVec) lookup(idx detbit.Det, ini bool) (pos int, isNew bool) {
	key := string(idx)
	if p, ok := v.posOf[key]; ok {
		return p, false
	}
	if !ini {
		return -1, false
	}
	if v.maxCap > 0 && len(v.freeStack) == 0 && len(v.idx) >= v.maxCap {
		v.Stats.CapacityRejections++
		return -1, false
	}

	if n := len(v.freeStack); n > 0 {
		pos = v.freeStack[n-1]
		v.freeStack = v.freeStack[:n-1]
		v.idx[pos] = idx.Clone()
	} else {
		pos = len(v.idx)
		v.idx = append(v.idx, idx.Clone())
		v.occOrbs = append(v.occOrbs, nil)
		v.diagCache = append(v.diagCache, math.NaN())
		for r := range v.values {
			v.values[r] = append(v.values[r], 0)
		}
	}

	occ, err := detbit.EnumerateSetBits(idx, v.nElec)
	if err == nil {
		v.occOrbs[pos] = occ
	}
	v.diagCache[pos] = math.NaN()
	for r := range v.values {
		v.values[r][pos] = 0
	}
	v.posOf[key] = pos
	v.nNonz++

	return pos, true
}

// addElements is the Adder's commit callback: look up or allocate idx's
// position, then add val into the current value row. A noninitiator
// contribution to an already-occupied position increments
// Stats.NoninitiatorOccupiedAdds, feeding sign-coherence diagnostics. Per
// the initiator rule, lookup never allocates a slot for a noninitiator, so
// there is no allocate-then-drop case: a contribution that gets no position
// (a noninitiator at an unseen index, or an initiator refused by
// SetMaxCap) is dropped here and reported as not accepted.
func (v *DistVec) addElements(idx detbit.Det, val float64, ini bool) bool {
	pos, isNew := v.lookup(idx, ini)
	if pos < 0 {
		// a noninitiator referenced an index this process has never seen;
		// per the initiator rule this contribution is dropped, not staged.
		return false
	}
	if !isNew && !ini {
		v.Stats.NoninitiatorOccupiedAdds++
	}

	v.values[v.currRow][pos] += val

	return true
}

// DelAtPos removes the hash-table entry at pos and pushes it onto the
// free-stack, but only when pos is at or above minDelIdx and every value
// row at pos is exactly zero. Returns whether it deleted.
// Complexity: O(nRows)
func (v *DistVec) DelAtPos(pos int) bool {
	if pos < v.minDelIdx || pos >= len(v.idx) {
		return false
	}
	for r := range v.values {
		if v.values[r][pos] != 0 {
			return false
		}
	}

	delete(v.posOf, string(v.idx[pos]))
	v.idx[pos] = nil
	v.occOrbs[pos] = nil
	v.freeStack = append(v.freeStack, pos)
	v.nNonz--

	return true
}

// NNonz returns the number of occupied positions.
func (v *DistVec) NNonz() int { return v.nNonz }

// Len returns the number of allocated (possibly vacated) positions.
func (v *DistVec) Len() int { return len(v.idx) }

// IndexAt returns the determinant stored at pos.
func (v *DistVec) IndexAt(pos int) detbit.Det { return v.idx[pos] }

// OccOrbsAt returns the occupied-orbital list cached for pos.
func (v *DistVec) OccOrbsAt(pos int) []uint16 { return v.occOrbs[pos] }

// ValueAt returns the current-row value at pos.
func (v *DistVec) ValueAt(pos int) float64 { return v.values[v.currRow][pos] }

// SetValueAt assigns the current-row value at pos.
func (v *DistVec) SetValueAt(pos int, val float64) { v.values[v.currRow][pos] = val }

// PosOf reports the position of idx, if present.
func (v *DistVec) PosOf(idx detbit.Det) (int, bool) {
	p, ok := v.posOf[string(idx)]

	return p, ok
}

// NRows returns the number of co-located value rows this DistVec carries.
func (v *DistVec) NRows() int { return v.nRows }

// ValueAtRow reads the value at an explicit row/position pair, bypassing
// currRow. This is the accessor SPEC_FULL.md §9's "Multiple co-located
// vectors" note anticipates: the subspace/Arnoldi driver addresses its
// "current half"/"next half" rows directly by index rather than cycling
// SetCurrVecIdx per access.
func (v *DistVec) ValueAtRow(row, pos int) float64 { return v.values[row][pos] }

// SetValueAtRow overwrites the value at an explicit row/position pair.
func (v *DistVec) SetValueAtRow(row, pos int, val float64) { v.values[row][pos] = val }

// AddValueAtRow adds delta into the value at an explicit row/position pair.
func (v *DistVec) AddValueAtRow(row, pos int, delta float64) { v.values[row][pos] += delta }
