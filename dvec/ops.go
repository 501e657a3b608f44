package dvec

import (
	"bufio"
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"path/filepath"

	"github.com/quanta-fri/gofri/detbit"
	"github.com/quanta-fri/gofri/transport"
)

// flushCtx returns the background context PerformAdd and CollectProcs drive
// their collectives with. The engine has no per-flush deadline of its own;
// cancellation, if ever needed, is layered on by the driver around these
// calls.
func flushCtx() context.Context { return context.Background() }

// Dot computes the local partial of the inner product between v's current
// row and a foreign (idx, val) list, matching entries by exact determinant
// bytes through v's lookup table. hashes is accepted to keep the call
// signature of SPEC_FULL.md's public contract and is not read.
// Complexity: O(len(otherIdx))
func (v *DistVec) Dot(otherIdx []detbit.Det, otherVals []float64, hashes []uint64) float64 {
	var total float64
	for i, idx := range otherIdx {
		pos, ok := v.posOf[string(idx)]
		if !ok {
			continue
		}
		total += v.values[v.currRow][pos] * otherVals[i]
	}

	return total
}

// GatheredVec is the process-concatenated view of a DistVec produced by
// CollectProcs: every process's occupied positions for the current row,
// ordered by rank then by local position.
type GatheredVec struct {
	Idx  []detbit.Det
	Vals []float64
}

// CollectProcs all-gathers every process's occupied current-row entries
// into a single GatheredVec, identical on every process. Used to build
// trial vectors against which every process can take local overlaps.
// Complexity: O(total nonzero across all processes)
func (v *DistVec) CollectProcs(tp transport.Collective) (*GatheredVec, error) {
	byteLen := detbit.ByteLen(v.nOrb)
	buf := make([]byte, 0, v.nNonz*(byteLen+8))
	for pos, idx := range v.idx {
		if idx == nil {
			continue
		}
		buf = append(buf, idx...)
		var vb [8]byte
		binary.LittleEndian.PutUint64(vb[:], math.Float64bits(v.values[v.currRow][pos]))
		buf = append(buf, vb[:]...)
	}

	parts, err := tp.AllGather(flushCtx(), buf)
	if err != nil {
		return nil, fmt.Errorf("CollectProcs: AllGather: %w", err)
	}

	out := &GatheredVec{}
	stride := byteLen + 8
	for _, part := range parts {
		n := len(part) / stride
		for i := 0; i < n; i++ {
			off := i * stride
			idx := detbit.Det(append([]byte(nil), part[off:off+byteLen]...))
			val := math.Float64frombits(binary.LittleEndian.Uint64(part[off+byteLen : off+stride]))
			out.Idx = append(out.Idx, idx)
			out.Vals = append(out.Vals, val)
		}
	}

	return out, nil
}

// detsFilename and valsFilename name v's rank-suffixed pair of on-disk
// state files, per spec.md §6.
func detsFilename(rank int) string { return fmt.Sprintf("dets%d.dat", rank) }
func valsFilename(rank int) string { return fmt.Sprintf("vals%d.dat", rank) }

// Save writes v's current occupied entries to dir/dets<rank>.dat (packed
// index-byte rows, contiguous, in position order) and dir/vals<rank>.dat
// (nRows value rows concatenated, each holding one float64 per occupied
// position, in the same order as dets<rank>.dat). Neither file carries a
// header: nOrb/nElec are recovered from the DistVec Load is called on, and
// the occupied-position count from the size of dets<rank>.dat.
func (v *DistVec) Save(dir string) error {
	detF, err := os.Create(filepath.Join(dir, detsFilename(v.rank)))
	if err != nil {
		return fmt.Errorf("Save: %w", err)
	}
	defer detF.Close()
	dw := bufio.NewWriter(detF)
	for _, idx := range v.idx {
		if idx == nil {
			continue
		}
		if _, err := dw.Write(idx); err != nil {
			return fmt.Errorf("Save: dets: %w", err)
		}
	}
	if err := dw.Flush(); err != nil {
		return fmt.Errorf("Save: dets: %w", err)
	}

	valF, err := os.Create(filepath.Join(dir, valsFilename(v.rank)))
	if err != nil {
		return fmt.Errorf("Save: %w", err)
	}
	defer valF.Close()
	vw := bufio.NewWriter(valF)
	for r := 0; r < v.nRows; r++ {
		for pos, idx := range v.idx {
			if idx == nil {
				continue
			}
			if err := binary.Write(vw, binary.LittleEndian, v.values[r][pos]); err != nil {
				return fmt.Errorf("Save: vals: %w", err)
			}
		}
	}

	return vw.Flush()
}

// Load rebuilds v from dir/dets<rank>.dat and dir/vals<rank>.dat,
// recomputing the hash table and occupied-orbital lists from scratch. v's
// nOrb/nElec/nRows must already match the checkpoint's (there is no header
// to check them against); curr_size is inferred from dets<rank>.dat's size.
func (v *DistVec) Load(dir string) error {
	byteLen := detbit.ByteLen(v.nOrb)
	detBytes, err := os.ReadFile(filepath.Join(dir, detsFilename(v.rank)))
	if err != nil {
		return fmt.Errorf("Load: %w", err)
	}
	if len(detBytes)%byteLen != 0 {
		return fmt.Errorf("Load: dets%d.dat length %d not a multiple of %d: %w",
			v.rank, len(detBytes), byteLen, ErrLoadMismatch)
	}
	currSize := len(detBytes) / byteLen

	valBytes, err := os.ReadFile(filepath.Join(dir, valsFilename(v.rank)))
	if err != nil {
		return fmt.Errorf("Load: %w", err)
	}
	wantValBytes := v.nRows * currSize * 8
	if len(valBytes) != wantValBytes {
		return fmt.Errorf("Load: vals%d.dat length %d, want %d (nRows=%d currSize=%d): %w",
			v.rank, len(valBytes), wantValBytes, v.nRows, currSize, ErrLoadMismatch)
	}

	v.idx = v.idx[:0]
	v.occOrbs = v.occOrbs[:0]
	v.diagCache = v.diagCache[:0]
	v.freeStack = v.freeStack[:0]
	v.posOf = make(map[string]int, currSize)
	v.nNonz = 0
	for rr := range v.values {
		v.values[rr] = v.values[rr][:0]
	}

	for i := 0; i < currSize; i++ {
		idx := detbit.Det(append([]byte(nil), detBytes[i*byteLen:(i+1)*byteLen]...))

		pos := len(v.idx)
		v.idx = append(v.idx, idx)
		v.diagCache = append(v.diagCache, math.NaN())
		occ, err := detbit.EnumerateSetBits(idx, v.nElec)
		if err != nil {
			return fmt.Errorf("Load: enumerate: %w", err)
		}
		v.occOrbs = append(v.occOrbs, occ)
		v.posOf[string(idx)] = pos
		v.nNonz++
	}

	for r := 0; r < v.nRows; r++ {
		base := r * currSize * 8
		for i := 0; i < currSize; i++ {
			off := base + i*8
			val := math.Float64frombits(binary.LittleEndian.Uint64(valBytes[off : off+8]))
			v.values[r] = append(v.values[r], val)
		}
	}

	return nil
}
