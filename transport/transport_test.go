package transport_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/quanta-fri/gofri/transport"
)

func TestAllReduceSum(t *testing.T) {
	group := transport.NewLocalGroup(4)
	var wg sync.WaitGroup
	results := make([]float64, 4)
	for r, c := range group {
		wg.Add(1)
		go func(r int, c *transport.Local) {
			defer wg.Done()
			v, err := c.AllReduceSum(context.Background(), float64(r+1))
			require.NoError(t, err)
			results[r] = v
		}(r, c)
	}
	wg.Wait()
	for _, v := range results {
		require.InDelta(t, 10.0, v, 1e-12) // 1+2+3+4
	}
}

func TestBroadcast(t *testing.T) {
	group := transport.NewLocalGroup(3)
	var wg sync.WaitGroup
	results := make([][]byte, 3)
	for r, c := range group {
		wg.Add(1)
		go func(r int, c *transport.Local) {
			defer wg.Done()
			var payload []byte
			if r == 1 {
				payload = []byte("hello")
			}
			v, err := c.Broadcast(context.Background(), 1, payload)
			require.NoError(t, err)
			results[r] = v
		}(r, c)
	}
	wg.Wait()
	for _, v := range results {
		require.Equal(t, "hello", string(v))
	}
}

func TestAllGather(t *testing.T) {
	group := transport.NewLocalGroup(3)
	var wg sync.WaitGroup
	results := make([][][]byte, 3)
	for r, c := range group {
		wg.Add(1)
		go func(r int, c *transport.Local) {
			defer wg.Done()
			v, err := c.AllGather(context.Background(), []byte{byte(r)})
			require.NoError(t, err)
			results[r] = v
		}(r, c)
	}
	wg.Wait()
	for _, v := range results {
		require.Len(t, v, 3)
		for r, b := range v {
			require.Equal(t, byte(r), b[0])
		}
	}
}

func TestAllToAll(t *testing.T) {
	group := transport.NewLocalGroup(3)
	var wg sync.WaitGroup
	results := make([][]int32, 3)
	for r, c := range group {
		wg.Add(1)
		go func(r int, c *transport.Local) {
			defer wg.Done()
			counts := make([]int32, 3)
			for j := range counts {
				counts[j] = int32(r*10 + j)
			}
			v, err := c.AllToAll(context.Background(), counts)
			require.NoError(t, err)
			results[r] = v
		}(r, c)
	}
	wg.Wait()
	// results[r][j] should equal what rank j sent to rank r: j*10+r
	for r := 0; r < 3; r++ {
		for j := 0; j < 3; j++ {
			require.Equal(t, int32(j*10+r), results[r][j])
		}
	}
}
