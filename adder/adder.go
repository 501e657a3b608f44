// Package adder buffers index/value contributions destined for other
// processes and flushes them through a transport.Collective in the
// two-phase protocol every collective-staging structure in this engine
// shares: exchange counts, exchange payloads, then let each process commit
// its own received batch locally.
package adder

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/quanta-fri/gofri/detbit"
	"github.com/quanta-fri/gofri/transport"
)

// ErrBufferFull is returned when Stage would overflow a destination's fixed
// per-process capacity. This is fatal and non-recoverable for the calling
// iteration: the caller must have flushed sooner.
var ErrBufferFull = errors.New("adder: staging buffer full, flush before continuing")

// staged is one buffered contribution awaiting flush.
type staged struct {
	idx  detbit.Det
	val  float64
	ini  bool
	from int // origin rank, needed for the return leg
}

// CommitFunc is called once per committed element on the receiving process,
// in the order the sender staged them. It returns whether the element was
// accepted; Flush reports that status back to the element's origin on the
// return leg.
type CommitFunc func(idx detbit.Det, val float64, ini bool) bool

// Adder buffers outgoing contributions per destination rank and flushes
// them through a transport.Collective two-phase all-to-all.
type Adder struct {
	tp       transport.Collective
	nOrb     int
	cap      int
	byteLen  int
	send     [][]staged // per destination rank
	commit   CommitFunc
	PT2Wt    float64 // accumulated from the return leg, for initiator PT2 accounting
}

// NewAdder constructs an Adder over tp with per-destination staging
// capacity cap and the local commit callback that applies received
// elements to the owning vector's hash table.
func NewAdder(tp transport.Collective, nOrb, cap int, commit CommitFunc) *Adder {
	return &Adder{
		tp:      tp,
		nOrb:    nOrb,
		cap:     cap,
		byteLen: stagedByteLen(nOrb),
		send:    make([][]staged, tp.Size()),
		commit:  commit,
	}
}

// stagedByteLen returns the wire size of one staged index: detbit's packed
// byte length plus one reserved high bit for the initiator flag, sized so
// that bit never collides with a real spin-orbital bit.
func stagedByteLen(nOrb int) int {
	return (2*nOrb + 1 + 7) / 8
}

// Stage buffers one contribution for destRank. Returns the buffer position
// within that destination's row, or ErrBufferFull if destRank's row is at
// capacity.
// Complexity: O(1) amortised.
func (a *Adder) Stage(destRank int, idx detbit.Det, val float64, initiator bool) (int, error) {
	if len(a.send[destRank]) >= a.cap {
		return 0, fmt.Errorf("Stage: dest=%d cap=%d: %w", destRank, a.cap, ErrBufferFull)
	}
	a.send[destRank] = append(a.send[destRank], staged{idx: idx, val: val, ini: initiator, from: a.tp.Rank()})

	return len(a.send[destRank]) - 1, nil
}

// Flush exchanges every process's staged buffers via AllToAll/AllToAllV,
// commits the received elements locally, ships a success byte back to each
// element's origin, and clears this process's send buffers.
// Complexity: O(total staged elements), two AllToAllV round trips.
func (a *Adder) Flush(ctx context.Context) error {
	size := a.tp.Size()
	counts := make([]int32, size)
	sendPayload := make([][]byte, size)
	for r := 0; r < size; r++ {
		counts[r] = int32(len(a.send[r]))
		sendPayload[r] = encodeStaged(a.send[r], a.byteLen, a.nOrb)
	}

	recvCounts, err := a.tp.AllToAll(ctx, counts)
	if err != nil {
		return fmt.Errorf("Flush: AllToAll: %w", err)
	}

	recvPayload, err := a.tp.AllToAllV(ctx, sendPayload, counts)
	if err != nil {
		return fmt.Errorf("Flush: AllToAllV: %w", err)
	}

	// returnStatus[origin] holds one byte per element received from rank
	// `origin`, in that origin's send order, so the return leg can report
	// success/fail per element: 1 when commit accepted it, 0 otherwise.
	returnStatus := make([][]byte, size)
	for r := 0; r < size; r++ {
		n := int(recvCounts[r])
		elems := decodeStaged(recvPayload[r], a.byteLen, a.nOrb, n)
		status := make([]byte, n)
		for i, e := range elems {
			ok := a.commit(e.idx, e.val, e.ini)
			if ok {
				status[i] = 1
			}
		}
		returnStatus[r] = status
	}

	recvStatus, err := a.tp.AllToAllV(ctx, returnStatus, recvCounts)
	if err != nil {
		return fmt.Errorf("Flush: AllToAllV return leg: %w", err)
	}
	a.recordReturnLeg(recvStatus)

	for r := range a.send {
		a.send[r] = a.send[r][:0]
	}

	return nil
}

// recordReturnLeg sums |val| for every initiator-flagged element that the
// destination reported as committed, feeding the perturbative (PT2) weight
// accounting an initiator run tracks for its own staged contributions.
func (a *Adder) recordReturnLeg(recvStatus [][]byte) {
	for r, status := range recvStatus {
		row := a.send[r]
		for i, e := range row {
			if i >= len(status) {
				break
			}
			if e.ini && status[i] == 1 {
				a.PT2Wt += math.Abs(e.val)
			}
		}
	}
}

func encodeStaged(elems []staged, byteLen, nOrb int) []byte {
	out := make([]byte, 0, len(elems)*(byteLen+8))
	for _, e := range elems {
		idxBytes := make([]byte, byteLen)
		copy(idxBytes, e.idx)
		if e.ini {
			bitPos := 2 * nOrb
			idxBytes[bitPos/8] |= 1 << uint(bitPos%8)
		}
		out = append(out, idxBytes...)

		var vb [8]byte
		binary.LittleEndian.PutUint64(vb[:], math.Float64bits(e.val))
		out = append(out, vb[:]...)
	}

	return out
}

func decodeStaged(buf []byte, byteLen, nOrb, n int) []staged {
	out := make([]staged, 0, n)
	stride := byteLen + 8
	for i := 0; i < n; i++ {
		off := i * stride
		idxBytes := append(detbit.Det(nil), buf[off:off+byteLen]...)
		bitPos := 2 * nOrb
		ini := idxBytes[bitPos/8]&(1<<uint(bitPos%8)) != 0
		idxBytes[bitPos/8] &^= 1 << uint(bitPos%8)
		idx := detbit.Det(idxBytes[:detbit.ByteLen(nOrb)])

		val := math.Float64frombits(binary.LittleEndian.Uint64(buf[off+byteLen : off+stride]))
		out = append(out, staged{idx: idx, val: val, ini: ini})
	}

	return out
}
