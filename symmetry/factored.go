package symmetry

import (
	"errors"
	"fmt"

	"github.com/quanta-fri/gofri/detbit"
)

// ErrIndexOutOfRange is returned by the O(1)-style indexing helpers used by
// the factored sampler when k falls outside the valid range.
var ErrIndexOutOfRange = errors.New("symmetry: index out of range")

// CountSinglesAllowed returns the number of occupied spin-orbitals that have
// at least one symmetry-and-spin-compatible unoccupied virtual (i.e. the
// number of occupied orbitals a single-excitation sampler may legally choose
// as its origin).
// Complexity: O(nElec)
func CountSinglesAllowed(det detbit.Det, occ []uint16, table *IrrepTable) int {
	virt := CountSymmVirt(det, table)
	nOrb := table.NOrb()
	count := 0
	for _, i16 := range occ {
		i := int(i16)
		g := table.Irrep(Spatial(i, nOrb))
		s := Spin(i, nOrb)
		if virt[g][s] > 0 {
			count++
		}
	}

	return count
}

// OccFromAllowedIndex returns the k-th (0-indexed, ascending occ order)
// occupied spin-orbital among those counted by CountSinglesAllowed.
// Complexity: O(nElec)
func OccFromAllowedIndex(det detbit.Det, occ []uint16, table *IrrepTable, k int) (int, error) {
	virt := CountSymmVirt(det, table)
	nOrb := table.NOrb()
	seen := 0
	for _, i16 := range occ {
		i := int(i16)
		g := table.Irrep(Spatial(i, nOrb))
		s := Spin(i, nOrb)
		if virt[g][s] > 0 {
			if seen == k {
				return i, nil
			}
			seen++
		}
	}

	return 0, fmt.Errorf("OccFromAllowedIndex: k=%d of %d: %w", k, seen, ErrIndexOutOfRange)
}

// CountSinglesVirt returns the number of unoccupied spin-orbitals sharing
// irrep g and spin s; a thin, named accessor over CountSymmVirt for callers
// that already fixed (g,s) from an occupied orbital.
// Complexity: O(nOrb)
func CountSinglesVirt(det detbit.Det, table *IrrepTable, g, s int) int {
	return CountSymmVirt(det, table)[g][s]
}

// VirtFromIndex returns the k-th (0-indexed, ascending spatial order)
// unoccupied spin-orbital carrying irrep g and spin s.
// Complexity: O(nOrb)
func VirtFromIndex(det detbit.Det, table *IrrepTable, g, s, k int) (int, error) {
	nOrb := table.NOrb()
	seen := 0
	for _, sp := range table.SpatialsOfIrrep(g) {
		so := SpinOrbital(sp, s, nOrb)
		if !detbit.ReadBit(det, so) {
			if seen == k {
				return so, nil
			}
			seen++
		}
	}

	return 0, fmt.Errorf("VirtFromIndex: k=%d of %d: %w", k, seen, ErrIndexOutOfRange)
}

// SymmPairWeight returns, for every target irrep ga in [0,NIrreps), the
// number of unordered virtual pairs (a,b) with a<b, Irrep(a)=ga,
// Irrep(b)=ga^xorTarget, compatible with the requested spin pattern
// (sameSpin picks both virtuals from spinA; mixed picks spinA for the first
// and spinB for the second). Used by the heat-bath/near-uniform samplers to
// weight the irrep-pair draw so the marginal probability of each (a,b) pair
// stays uniform within its irrep combination.
// Complexity: O(NIrreps)
func SymmPairWeight(virtCounts [NIrreps][2]int, xorTarget uint8, sameSpin bool, spinA, spinB int) [NIrreps]float64 {
	var w [NIrreps]float64
	for ga := 0; ga < NIrreps; ga++ {
		gb := int(uint8(ga) ^ xorTarget)
		if gb >= NIrreps {
			continue
		}
		na := virtCounts[ga][spinA]
		if sameSpin && ga == gb {
			// unordered pairs within the same irrep: C(na,2)
			w[ga] = float64(na*(na-1)) / 2
			continue
		}
		nb := virtCounts[gb][spinB]
		if sameSpin {
			// ga != gb, both virtuals share spinA; every a in ga pairs with
			// every b in gb, counted once per unordered irrep combination
			// by only accumulating when ga < gb.
			if ga < gb {
				w[ga] = float64(na * nb)
			}
		} else {
			// mixed spin: a (spinA, irrep ga) and b (spinB, irrep gb) are
			// distinguishable by spin alone, so every (ga,gb) combination
			// is counted exactly once, no ga<gb restriction needed.
			w[ga] = float64(na * nb)
		}
	}

	return w
}
