package sampler

import (
	"github.com/quanta-fri/gofri/detbit"
	"github.com/quanta-fri/gofri/symmetry"
)

// NearUniform draws nSamp independent excitations from a stratified
// near-uniform proposal: singles vs doubles by pDouble, then occupied pair
// (whose spins decide same- vs different-spin) uniformly among all electron pairs
// (not pre-filtered for symmetry-allowed virtuals, matching the spec's
// null-draw contract), then irrep pair weighted by symmetry.SymmPairWeight,
// then virtual pair uniformly within the chosen irrep combination. Draws
// with no valid virtual combination return Probability 0; the caller
// filters them before adding.
// Complexity: O(nSamp * NIrreps) expected.
func NearUniform(det detbit.Det, occ []uint16, table *symmetry.IrrepTable, nSamp int, pDouble float64, src RandSource) []Draw {
	out := make([]Draw, 0, nSamp)
	for s := 0; s < nSamp; s++ {
		if src.Float64() < pDouble {
			out = append(out, drawDouble(det, occ, table, pDouble, src))
		} else {
			out = append(out, drawSingle(det, occ, table, 1-pDouble, src))
		}
	}

	return out
}

func drawSingle(det detbit.Det, occ []uint16, table *symmetry.IrrepTable, pSingle float64, src RandSource) Draw {
	nAllowed := symmetry.CountSinglesAllowed(det, occ, table)
	if nAllowed == 0 {
		return Draw{}
	}
	k := uniformIndex(nAllowed, src)
	iOcc, err := symmetry.OccFromAllowedIndex(det, occ, table, k)
	if err != nil {
		return Draw{}
	}

	nOrb := table.NOrb()
	g := int(table.Irrep(symmetry.Spatial(iOcc, nOrb)))
	spin := symmetry.Spin(iOcc, nOrb)
	nVirt := symmetry.CountSinglesVirt(det, table, g, spin)
	if nVirt == 0 {
		return Draw{}
	}
	j := uniformIndex(nVirt, src)
	aVirt, err := symmetry.VirtFromIndex(det, table, g, spin, j)
	if err != nil {
		return Draw{}
	}

	prob := pSingle / float64(nAllowed) / float64(nVirt)

	return Draw{Excitation: symmetry.Excitation{Orbs: []int{iOcc, aVirt}}, Probability: prob}
}

// unrankPair maps k in [0, n*(n-1)/2) to the k-th unordered pair (i,j), i<j,
// of indices into [0,n), in lexicographic order.
func unrankPair(n, k int) (int, int) {
	for i := 0; i < n; i++ {
		remaining := n - 1 - i
		if k < remaining {
			return i, i + 1 + k
		}
		k -= remaining
	}

	return n - 2, n - 1
}

func drawDouble(det detbit.Det, occ []uint16, table *symmetry.IrrepTable, pDouble float64, src RandSource) Draw {
	nElec := len(occ)
	nPairs := nElec * (nElec - 1) / 2
	if nPairs == 0 {
		return Draw{}
	}
	pk := uniformIndex(nPairs, src)
	ii, jj := unrankPair(nElec, pk)
	iOcc, jOcc := int(occ[ii]), int(occ[jj])

	nOrb := table.NOrb()
	gi := table.Irrep(symmetry.Spatial(iOcc, nOrb))
	gj := table.Irrep(symmetry.Spatial(jOcc, nOrb))
	xorTarget := gi ^ gj
	spinI, spinJ := symmetry.Spin(iOcc, nOrb), symmetry.Spin(jOcc, nOrb)
	sameSpin := spinI == spinJ

	virtCounts := symmetry.CountSymmVirt(det, table)
	weights := symmetry.SymmPairWeight(virtCounts, xorTarget, sameSpin, spinI, spinJ)

	var total float64
	for _, w := range weights {
		total += w
	}
	if total == 0 {
		return Draw{}
	}

	pPair := 1.0 / float64(nPairs)
	pDoublePrefix := pDouble * pPair

	r := src.Float64() * total
	var ga int
	var cum float64
	for g, w := range weights {
		cum += w
		if r <= cum {
			ga = g
			break
		}
		ga = g
	}
	gb := int(uint8(ga) ^ xorTarget)
	pGa := weights[ga] / total

	var a, b int
	var pVirt float64
	if sameSpin && ga == gb {
		na := virtCounts[ga][spinI]
		nPairsVirt := na * (na - 1) / 2
		if nPairsVirt == 0 {
			return Draw{}
		}
		vk := uniformIndex(nPairsVirt, src)
		ka, kb := unrankPair(na, vk)
		a, _ = symmetry.VirtFromIndex(det, table, ga, spinI, ka)
		b, _ = symmetry.VirtFromIndex(det, table, gb, spinJ, kb)
		pVirt = 1.0 / float64(nPairsVirt)
	} else {
		na := virtCounts[ga][spinI]
		nb := virtCounts[gb][spinJ]
		if na == 0 || nb == 0 {
			return Draw{}
		}
		ka := uniformIndex(na, src)
		kb := uniformIndex(nb, src)
		a, _ = symmetry.VirtFromIndex(det, table, ga, spinI, ka)
		b, _ = symmetry.VirtFromIndex(det, table, gb, spinJ, kb)
		pVirt = 1.0 / float64(na*nb)
	}

	if a > b {
		a, b = b, a
	}

	prob := pDoublePrefix * pGa * pVirt

	return Draw{Excitation: symmetry.Excitation{Orbs: []int{iOcc, jOcc, a, b}}, Probability: prob}
}
