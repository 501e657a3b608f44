package symmetry_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/quanta-fri/gofri/detbit"
	"github.com/quanta-fri/gofri/symmetry"
)

func hfDet(nOrb, nElec int) detbit.Det {
	d := detbit.NewDet(nOrb)
	// fill lowest nElec/2 spatial orbitals for each spin
	for i := 0; i < nElec/2; i++ {
		detbit.SetBit(d, i)
		detbit.SetBit(d, nOrb+i)
	}

	return d
}

// TestSymmetryClosure checks property 3 from SPEC_FULL.md §8: every
// enumerated double/single has XOR-irrep 0 / equal irreps.
func TestSymmetryClosure(t *testing.T) {
	nOrb := 6
	symm := []uint8{0, 1, 2, 3, 0, 1}
	table, err := symmetry.NewIrrepTable(symm, nOrb)
	require.NoError(t, err)

	det := hfDet(nOrb, 4)
	occ, err := detbit.EnumerateSetBits(det, 4)
	require.NoError(t, err)

	for _, ex := range symmetry.EnumerateSingles(det, occ, table) {
		gi := table.Irrep(symmetry.Spatial(ex.Orbs[0], nOrb))
		ga := table.Irrep(symmetry.Spatial(ex.Orbs[1], nOrb))
		require.Equal(t, gi, ga)
		require.Equal(t, symmetry.Spin(ex.Orbs[0], nOrb), symmetry.Spin(ex.Orbs[1], nOrb))
	}

	for _, ex := range symmetry.EnumerateDoubles(det, occ, table) {
		var x uint8
		for _, o := range ex.Orbs {
			x ^= table.Irrep(symmetry.Spatial(o, nOrb))
		}
		require.Zero(t, x)
		require.Less(t, ex.Orbs[0], ex.Orbs[1])
		require.Less(t, ex.Orbs[2], ex.Orbs[3])
	}
}

// TestDoubleExcitationCountClosedForm checks end-to-end scenario S3: for
// nOrb=4, nElec=4 with no symmetry restriction (all orbitals same irrep),
// the double-excitation count from the HF determinant equals the standard
// same-spin + opposite-spin combinatorial closed form: choosing an occupied
// pair and a virtual pair independently within each spin channel
// (2 * C(m,2) * C(v,2), m = nElec/2 electrons and v = nOrb-m virtuals per
// spin channel) plus every opposite-spin occupied/virtual combination
// (m^2 * v^2).
func TestDoubleExcitationCountClosedForm(t *testing.T) {
	nOrb, nElec := 4, 4
	symm := []uint8{0, 0, 0, 0}
	table, err := symmetry.NewIrrepTable(symm, nOrb)
	require.NoError(t, err)

	det := hfDet(nOrb, nElec)
	occ, err := detbit.EnumerateSetBits(det, nElec)
	require.NoError(t, err)

	m := nElec / 2
	v := nOrb - m
	choose2 := func(n int) int { return n * (n - 1) / 2 }
	want := 2*choose2(m)*choose2(v) + m*m*v*v

	got := symmetry.CountDoubles(det, occ, table)
	require.Equal(t, want, got)
}

func TestCountSinglesMatchesEnumerate(t *testing.T) {
	nOrb := 5
	symm := []uint8{0, 1, 1, 2, 0}
	table, err := symmetry.NewIrrepTable(symm, nOrb)
	require.NoError(t, err)

	det := hfDet(nOrb, 4)
	occ, err := detbit.EnumerateSetBits(det, 4)
	require.NoError(t, err)

	require.Equal(t, len(symmetry.EnumerateSingles(det, occ, table)), symmetry.CountSingles(det, occ, table))
}

func TestCountSinglesAllowedAndVirtFromIndex(t *testing.T) {
	nOrb := 4
	symm := []uint8{0, 0, 1, 1}
	table, err := symmetry.NewIrrepTable(symm, nOrb)
	require.NoError(t, err)

	det := hfDet(nOrb, 2) // occupies spin-orbitals 0 (up, irrep0), 4 (down, irrep0)
	occ, err := detbit.EnumerateSetBits(det, 2)
	require.NoError(t, err)

	n := symmetry.CountSinglesAllowed(det, occ, table)
	require.Positive(t, n)

	for k := 0; k < n; k++ {
		i, err := symmetry.OccFromAllowedIndex(det, occ, table, k)
		require.NoError(t, err)
		g := table.Irrep(symmetry.Spatial(i, nOrb))
		s := symmetry.Spin(i, nOrb)
		require.Positive(t, symmetry.CountSinglesVirt(det, table, int(g), s))
	}

	_, err = symmetry.OccFromAllowedIndex(det, occ, table, n)
	require.ErrorIs(t, err, symmetry.ErrIndexOutOfRange)
}
