package compress

import (
	"context"
	"math"

	"github.com/quanta-fri/gofri/transport"
)

// RowWeights describes one row's factored sub-sampling: either a uniform
// divisor (no sub-weights, every sub-slot carries an equal share) or an
// explicit, possibly-unnormalised sub-weight vector.
type RowWeights struct {
	NDiv  int       // uniform divisor; 0 means SubWt is authoritative
	SubWt []float64 // per-slot sub-weight, nil means uniform (NDiv)
}

// SubSample names one surviving (row, sub-slot) pair and the weight it was
// given after compression.
type SubSample struct {
	Row int
	Sub int
	Val float64
}

// CompSub is the factored variant of FindPreserve+SysComp for a
// matrix-vector product expressed as a chain of sub-sampling steps: each
// row i carries either a uniform divisor (rows[i].NDiv) or a sub-weight
// vector (rows[i].SubWt). Whole rows that reach the FindPreserve threshold
// are kept exactly and split across their sub-slots by keptRowSubSamples;
// individual sub-weight entries are not kept exactly on their own, and
// there is no second keep pass over sub-weights. The remaining weight is
// resampled with SysComp, using nTarget minus the global exact-keep count
// as the sample budget. Every
// resampled row draw is then jointly resolved to a sub-slot by subU, a
// fresh uniform-in-[0,1) draw walked against that row's own SubWt CDF --
// this is the nested, variance-reducing half of the factored scheme: the
// row and its excitation identity are not independent draws, the row
// pick from SysComp and the sub-slot pick from subU together are the one
// resampling step. subU is rank-local (no collective round trip), since
// a row's SubWt is already local data once FindPreserve/SysComp has
// decided which row it belongs to.
// Complexity: O(total sub-slots) per pass, O(passes) collective round trips.
func CompSub(rowVals []float64, rows []RowWeights, nTarget int, u float64, subU func() float64, tp transport.Collective) ([]SubSample, error) {
	ctx := context.Background()
	n := len(rowVals)
	rowKept := make([]bool, n)

	kept, residualNorm, err := FindPreserve(rowVals, nTarget, tp)
	if err != nil {
		return nil, err
	}
	copy(rowKept, kept)

	nKept := 0
	for _, k := range rowKept {
		if k {
			nKept++
		}
	}
	globalKept, err := tp.AllReduceSum(ctx, float64(nKept))
	if err != nil {
		return nil, err
	}
	nRemaining := nTarget - int(globalKept)

	out := make([]SubSample, 0, nTarget)
	for i, isKept := range rowKept {
		if !isKept {
			continue
		}
		out = append(out, keptRowSubSamples(i, rowVals[i], rows[i])...)
	}

	if nRemaining <= 0 {
		return out, nil
	}

	samples, err := SysComp(rowVals, rowKept, residualNorm, nRemaining, u, tp)
	if err != nil {
		return nil, err
	}
	for _, s := range samples {
		out = append(out, expandSubSample(s, rows[s.Pos], subU())...)
	}

	return out, nil
}

// keptRowSubSamples expands an exactly-kept row into its sub-slot samples,
// distributing the row's magnitude across sub-slots by their own weight
// (uniform if rows[i] carries no explicit sub-weight vector).
func keptRowSubSamples(row int, val float64, w RowWeights) []SubSample {
	if len(w.SubWt) == 0 {
		n := w.NDiv
		if n <= 0 {
			n = 1
		}
		out := make([]SubSample, n)
		for s := 0; s < n; s++ {
			out[s] = SubSample{Row: row, Sub: s, Val: val / float64(n)}
		}

		return out
	}

	var total float64
	for _, sw := range w.SubWt {
		total += sw
	}
	out := make([]SubSample, 0, len(w.SubWt))
	for s, sw := range w.SubWt {
		if sw == 0 {
			continue
		}
		share := val
		if total != 0 {
			share = val * (sw / total)
		}
		out = append(out, SubSample{Row: row, Sub: s, Val: share})
	}

	return out
}

// expandSubSample turns one systematically-resampled row draw into a
// single sub-slot sample by walking r (a fresh uniform-in-[0,1) draw) as a
// CDF offset against the row's own |SubWt| distribution: the sub-slot
// whose cumulative share first exceeds r*total is the one the joint
// (row, sub-slot) draw landed on. Uniform rows (no declared SubWt) resolve
// to slot floor(r*NDiv), so each of the NDiv slots gets an equal share,
// matching keptRowSubSamples' own uniform-NDiv handling.
func expandSubSample(s Sample, w RowWeights, r float64) []SubSample {
	if len(w.SubWt) == 0 {
		n := w.NDiv
		if n <= 0 {
			n = 1
		}
		sub := int(r * float64(n))
		if sub >= n {
			sub = n - 1
		}

		return []SubSample{{Row: s.Pos, Sub: sub, Val: s.Val}}
	}

	var total float64
	for _, sw := range w.SubWt {
		total += math.Abs(sw)
	}
	if total == 0 {
		return []SubSample{{Row: s.Pos, Sub: 0, Val: s.Val}}
	}

	target := r * total
	sub := len(w.SubWt) - 1
	var cum float64
	for i, sw := range w.SubWt {
		cum += math.Abs(sw)
		if target < cum {
			sub = i
			break
		}
	}

	return []SubSample{{Row: s.Pos, Sub: sub, Val: s.Val}}
}
