package adder_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/quanta-fri/gofri/adder"
	"github.com/quanta-fri/gofri/detbit"
	"github.com/quanta-fri/gofri/transport"
)

func TestFlushDeliversAcrossRanks(t *testing.T) {
	nOrb := 4
	group := transport.NewLocalGroup(2)

	var mu sync.Mutex
	received := make(map[int][]float64)

	var wg sync.WaitGroup
	for r, c := range group {
		wg.Add(1)
		go func(r int, c *transport.Local) {
			defer wg.Done()
			a := adder.NewAdder(c, nOrb, 16, func(idx detbit.Det, val float64, ini bool) bool {
				mu.Lock()
				received[r] = append(received[r], val)
				mu.Unlock()

				return true
			})

			dest := 1 - r
			idx := detbit.NewDet(nOrb)
			detbit.SetBit(idx, r)
			_, err := a.Stage(dest, idx, float64(r+1), true)
			require.NoError(t, err)

			require.NoError(t, a.Flush(context.Background()))
		}(r, c)
	}
	wg.Wait()

	require.ElementsMatch(t, []float64{2.0}, received[0]) // rank1 sent 2.0 to rank0
	require.ElementsMatch(t, []float64{1.0}, received[1]) // rank0 sent 1.0 to rank1
}

func TestStageOverCapacity(t *testing.T) {
	group := transport.NewLocalGroup(1)
	a := adder.NewAdder(group[0], 4, 1, func(detbit.Det, float64, bool) bool { return true })

	idx := detbit.NewDet(4)
	_, err := a.Stage(0, idx, 1.0, false)
	require.NoError(t, err)
	_, err = a.Stage(0, idx, 1.0, false)
	require.ErrorIs(t, err, adder.ErrBufferFull)
}
