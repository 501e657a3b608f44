package detbit_test

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/quanta-fri/gofri/detbit"
)

func TestByteLen(t *testing.T) {
	require.Equal(t, 1, detbit.ByteLen(4))
	require.Equal(t, 2, detbit.ByteLen(5))
	require.Equal(t, 2, detbit.ByteLen(8))
}

func TestSetClearReadBit(t *testing.T) {
	d := detbit.NewDet(6)
	require.False(t, detbit.ReadBit(d, 3))
	detbit.SetBit(d, 3)
	require.True(t, detbit.ReadBit(d, 3))
	detbit.ClearBit(d, 3)
	require.False(t, detbit.ReadBit(d, 3))
}

// TestRoundTrip checks property 1 from SPEC_FULL.md §8: enumerate then
// re-materialize recovers the determinant bit for bit.
func TestRoundTrip(t *testing.T) {
	const nOrb = 10
	rng := rand.New(rand.NewSource(1))

	for trial := 0; trial < 50; trial++ {
		d := detbit.NewDet(nOrb)
		k := 1 + rng.Intn(2*nOrb-1)
		chosen := rng.Perm(2 * nOrb)[:k]
		for _, bit := range chosen {
			detbit.SetBit(d, bit)
		}

		occ, err := detbit.EnumerateSetBits(d, k)
		require.NoError(t, err)
		require.Len(t, occ, k)

		rebuilt := detbit.NewDet(nOrb)
		for _, o := range occ {
			detbit.SetBit(rebuilt, int(o))
		}
		require.Equal(t, d, rebuilt)

		for i := 1; i < len(occ); i++ {
			require.Less(t, occ[i-1], occ[i], "occ must be ascending")
		}
	}
}

func TestEnumerateSetBitsElectronCountMismatch(t *testing.T) {
	d := detbit.NewDet(4)
	detbit.SetBit(d, 0)
	detbit.SetBit(d, 1)
	_, err := detbit.EnumerateSetBits(d, 3)
	require.ErrorIs(t, err, detbit.ErrWrongElectronCount)
}

func TestPopcountBetween(t *testing.T) {
	d := detbit.NewDet(8)
	for _, bit := range []int{1, 3, 5, 7, 9} {
		detbit.SetBit(d, bit)
	}
	// bits strictly between 1 and 7: 3, 5 -> 2
	require.Equal(t, 2, detbit.PopcountBetween(d, 1, 7))
	// symmetric in argument order
	require.Equal(t, 2, detbit.PopcountBetween(d, 7, 1))
	// between 7 and 9: none strictly between
	require.Equal(t, 0, detbit.PopcountBetween(d, 7, 9))
}
