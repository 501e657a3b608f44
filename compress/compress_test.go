package compress_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/quanta-fri/gofri/compress"
	"github.com/quanta-fri/gofri/randsrc"
	"github.com/quanta-fri/gofri/transport"
)

func TestAliasSampleMatchesWeights(t *testing.T) {
	weights := []float64{1, 2, 3, 4}
	a, err := compress.NewAlias(weights)
	require.NoError(t, err)

	src := randsrc.NewStdSource(42)
	counts := make([]int, len(weights))
	const draws = 20000
	for i := 0; i < draws; i++ {
		counts[a.Sample(src)]++
	}

	total := 10.0
	for i, w := range weights {
		frac := float64(counts[i]) / float64(draws)
		require.InDelta(t, w/total, frac, 0.03)
	}
}

func TestAliasEmptyWeights(t *testing.T) {
	_, err := compress.NewAlias(nil)
	require.ErrorIs(t, err, compress.ErrEmptyWeights)

	_, err = compress.NewAlias([]float64{0, 0})
	require.ErrorIs(t, err, compress.ErrEmptyWeights)
}

// TestFindPreserveKeepsAllWhenTargetGenerous checks the expected-value property
// from SPEC_FULL.md §8 for the pure-keep regime: when nTarget >= number of
// nonzero elements, every element is preserved exactly.
func TestFindPreserveKeepsAllWhenTargetGenerous(t *testing.T) {
	group := transport.NewLocalGroup(1)
	values := []float64{0.1, -0.2, 0.05, 0.3}

	kept, residual, err := compress.FindPreserve(values, 10, group[0])
	require.NoError(t, err)
	for _, k := range kept {
		require.True(t, k)
	}
	require.InDelta(t, 0, residual, 1e-12)
}

func TestFindPreserveSingleSurvivor(t *testing.T) {
	group := transport.NewLocalGroup(1)
	values := []float64{10.0, 0.01, 0.02, 0.01}

	// threshold 10.04/2 keeps 10.0; the 0.04 left over is below 0.04/1, so
	// nothing else is kept exactly.
	kept, _, err := compress.FindPreserve(values, 2, group[0])
	require.NoError(t, err)
	require.True(t, kept[0])
	for i := 1; i < len(values); i++ {
		require.False(t, kept[i])
	}
}

// TestSysCompExpectedValue checks that systematic resampling is unbiased in
// expectation: averaged over many independent random offsets u, the mean
// contribution attributed to each position converges to its original value.
func TestSysCompExpectedValue(t *testing.T) {
	group := transport.NewLocalGroup(1)
	values := []float64{0.01, 0.02, 0.005, 0.015}
	kept := make([]bool, len(values))

	var total float64
	for _, v := range values {
		total += v
	}

	const trials = 4000
	sums := make([]float64, len(values))
	src := randsrc.NewStdSource(7)
	for t := 0; t < trials; t++ {
		u := src.Float64() * (total / 2)
		samples, err := compress.SysComp(values, kept, total, 2, u, group[0])
		require.NoError(t, err)
		perPos := make([]float64, len(values))
		for _, s := range samples {
			perPos[s.Pos] += s.Val
		}
		for i := range sums {
			sums[i] += perPos[i]
		}
	}
	for i, v := range values {
		mean := sums[i] / trials
		require.InDelta(t, v, mean, v*0.25+0.002)
	}
}

// TestCompSubKeptRowSplitsByDeclaredSubWeight checks the exact-keep path:
// when a row survives FindPreserve untouched, its value is split across
// declared sub-slots in proportion to SubWt, not spread uniformly.
func TestCompSubKeptRowSplitsByDeclaredSubWeight(t *testing.T) {
	group := transport.NewLocalGroup(1)
	rowVals := []float64{10.0}
	rows := []compress.RowWeights{
		{SubWt: []float64{1, 3}},
	}
	src := randsrc.NewStdSource(1)

	samples, err := compress.CompSub(rowVals, rows, 1, 0, src.Float64, group[0])
	require.NoError(t, err)

	var sub0, sub1 float64
	for _, s := range samples {
		require.Equal(t, 0, s.Row)
		switch s.Sub {
		case 0:
			sub0 += s.Val
		case 1:
			sub1 += s.Val
		default:
			t.Fatalf("unexpected sub-slot %d", s.Sub)
		}
	}
	require.InDelta(t, 2.5, sub0, 1e-9)
	require.InDelta(t, 7.5, sub1, 1e-9)
}

// TestCompSubResampledRowResolvesSubSlotByWeight checks the resampled path:
// averaged over many independent subU draws, a row's resampled budget lands
// on each declared sub-slot in proportion to |SubWt|, not always on slot 0
// or always on the heaviest slot.
func TestCompSubResampledRowResolvesSubSlotByWeight(t *testing.T) {
	group := transport.NewLocalGroup(1)
	rowVals := []float64{0.01, 0.01, 0.01, 0.01}
	rows := make([]compress.RowWeights, len(rowVals))
	for i := range rows {
		rows[i] = compress.RowWeights{SubWt: []float64{1, 2, 1}}
	}
	src := randsrc.NewStdSource(11)

	const trials = 3000
	subCount := make([]int, 3)
	totalSamples := 0
	for tr := 0; tr < trials; tr++ {
		u := src.Float64() * 0.005
		samples, err := compress.CompSub(rowVals, rows, 1, u, src.Float64, group[0])
		require.NoError(t, err)
		for _, s := range samples {
			subCount[s.Sub]++
			totalSamples++
		}
	}
	require.Greater(t, totalSamples, 0)

	want := []float64{0.25, 0.5, 0.25}
	for i, w := range want {
		frac := float64(subCount[i]) / float64(totalSamples)
		require.InDelta(t, w, frac, 0.06)
	}
}

func TestAllReduceSumUsableFromCompressTests(t *testing.T) {
	group := transport.NewLocalGroup(2)
	var wg sync.WaitGroup
	results := make([]float64, 2)
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
	require.InDelta(t, 3.0, results[0], 1e-12)
}
