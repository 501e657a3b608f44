package compress

import (
	"context"
	"encoding/binary"
	"math"

	"github.com/quanta-fri/gofri/transport"
)

// Sample is one systematically-resampled output element: the original
// position it replaces and the signed magnitude it was given.
type Sample struct {
	Pos int
	Val float64
}

// SysComp performs classical systematic (low-variance) resampling of the
// un-kept elements of values across every process in tp. A single random
// draw u in [0, sum/nRemaining) is broadcast from rank 0, each process
// offsets u into its own slab of the global one-norm ordering, then walks
// its local un-kept values advancing a running prefix sum and emitting one
// sample every time the prefix crosses the next sample point.
// Complexity: O(n) local work, one AllGather + one Broadcast round trip.
func SysComp(values []float64, kept []bool, residualNorm float64, nRemaining int, u float64, tp transport.Collective) ([]Sample, error) {
	ctx := context.Background()

	var localNorm float64
	for i, v := range values {
		if !kept[i] {
			localNorm += math.Abs(v)
		}
	}

	// gather every rank's local slab size so this process knows its offset
	// into the global [0, residualNorm) ordering
	prefix, err := prefixOffsets(ctx, tp, localNorm)
	if err != nil {
		return nil, err
	}

	step := residualNorm / float64(nRemaining)

	var ub float64
	if tp.Rank() == 0 {
		ub = u
	}
	buf, err := tp.Broadcast(ctx, 0, float64ToBytes(ub))
	if err != nil {
		return nil, err
	}
	u = bytesToFloat64(buf)

	// rn is the next unclaimed sample point in the global ordering; this
	// process's slab starts at `prefix`, so the first relevant sample point
	// is the smallest u+k*step that is >= prefix.
	k := math.Ceil((prefix - u) / step)
	if k < 0 {
		k = 0
	}
	next := u + k*step

	samples := make([]Sample, 0)
	lbound := prefix
	for i, v := range values {
		if kept[i] {
			continue
		}
		a := math.Abs(v)
		if a == 0 {
			continue
		}
		upper := lbound + a
		for next < upper {
			sign := 1.0
			if v < 0 {
				sign = -1.0
			}
			samples = append(samples, Sample{Pos: i, Val: sign * step})
			next += step
		}
		lbound = upper
	}

	return samples, nil
}

// prefixOffsets returns this rank's starting offset within the global
// one-norm ordering of un-kept elements (i.e. the sum of every
// lower-ranked process's local norm), computed via one AllGather.
func prefixOffsets(ctx context.Context, tp transport.Collective, localNorm float64) (float64, error) {
	all, err := tp.AllGather(ctx, float64ToBytes(localNorm))
	if err != nil {
		return 0, err
	}

	var prefix float64
	for r := 0; r < tp.Rank(); r++ {
		prefix += bytesToFloat64(all[r])
	}

	return prefix, nil
}

func float64ToBytes(v float64) []byte {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, math.Float64bits(v))

	return buf
}

func bytesToFloat64(b []byte) float64 {
	if len(b) < 8 {
		return 0
	}

	return math.Float64frombits(binary.LittleEndian.Uint64(b))
}
