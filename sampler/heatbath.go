package sampler

import (
	"math"

	"github.com/quanta-fri/gofri/compress"
	"github.com/quanta-fri/gofri/detbit"
	"github.com/quanta-fri/gofri/hamiltonian"
	"github.com/quanta-fri/gofri/symmetry"
)

// maxHeatBathRejections bounds the rejection-sampling retries used when a
// heat-bath draw from a precomputed alias table lands on a virtual that
// symmetry or occupation rules forbid; after this many misses the sampler
// falls back to a uniform pick among the legal virtuals, same as
// NearUniform, rather than looping indefinitely.
const maxHeatBathRejections = 8

// HeatBath holds the once-per-determinant-shape cumulative distributions
// the heat-bath Power-Pitzer proposal samples from: one alias table per
// spatial orbital p, built over partner spatial orbitals q weighted by the
// Coulomb-plus-exchange magnitude |(pq|pq)| + |(pq|qp)|. Setup is O(n^2)
// in the number of spatial orbitals and O(n^2) in memory -- acceptable at
// the n_orb scale this repository targets (see DESIGN.md); a production
// system with n_orb in the thousands would need a sparser factorization.
type HeatBath struct {
	nOrb      int
	nFrz      int
	pairAlias []*compress.Alias
	pairWt    [][]float64
	rowWeight []float64
}

// Setup precomputes HeatBath's per-orbital alias tables from eris.
// Complexity: O(nOrb^2) time and memory.
func (h *HeatBath) Setup(eris *hamiltonian.ERIs, nOrb, nFrz int) error {
	h.nOrb = nOrb
	h.nFrz = nFrz
	h.pairAlias = make([]*compress.Alias, nOrb)
	h.pairWt = make([][]float64, nOrb)
	h.rowWeight = make([]float64, nOrb)

	nCore := nFrz / 2
	for p := 0; p < nOrb; p++ {
		pa := p + nCore
		weights := make([]float64, nOrb)
		var total float64
		for q := 0; q < nOrb; q++ {
			if q == p {
				weights[q] = 0
				continue
			}
			qa := q + nCore
			w := math.Abs(eris.At(pa, qa, pa, qa)) + math.Abs(eris.At(pa, qa, qa, pa))
			weights[q] = w
			total += w
		}
		h.rowWeight[p] = total
		h.pairWt[p] = weights
		if total == 0 {
			continue
		}
		a, err := compress.NewAlias(weights)
		if err != nil {
			continue
		}
		h.pairAlias[p] = a
	}

	return nil
}

// sampleVirtualRestricted draws a virtual spin-orbital sharing irrep ga and
// spin s, biased toward eris-heavy partners of origin spatial orbital pOrigin
// when a precomputed alias table is available, falling back to a uniform
// pick among the legal virtuals after maxHeatBathRejections misses.
func (h *HeatBath) sampleVirtualRestricted(det detbit.Det, table *symmetry.IrrepTable, pOrigin, ga, s int, src RandSource) (int, float64, bool) {
	nVirt := symmetry.CountSinglesVirt(det, table, ga, s)
	if nVirt == 0 {
		return 0, 0, false
	}

	alias := h.pairAlias[pOrigin]
	if alias != nil {
		for attempt := 0; attempt < maxHeatBathRejections; attempt++ {
			q := alias.Sample(src)
			if int(table.Irrep(q)) != ga {
				continue
			}
			so := symmetry.SpinOrbital(q, s, h.nOrb)
			if detbit.ReadBit(det, so) {
				continue
			}

			p := 0.0
			if h.rowWeight[pOrigin] > 0 {
				p = h.pairWt[pOrigin][q] / h.rowWeight[pOrigin]
			}

			return so, p, true
		}
	}

	k := uniformIndex(nVirt, src)
	so, err := symmetry.VirtFromIndex(det, table, ga, s, k)
	if err != nil {
		return 0, 0, false
	}

	return so, 1.0 / float64(nVirt), true
}

// HeatBathNormalized draws nSamp excitations whose reported Probability is
// the full proposal probability (so callers reweight by 1/p as usual).
// Complexity: O(nSamp) expected, each draw O(maxHeatBathRejections) worst case.
func HeatBathNormalized(h *HeatBath, det detbit.Det, occ []uint16, table *symmetry.IrrepTable, nSamp int, pDouble float64, src RandSource) []Draw {
	out := make([]Draw, 0, nSamp)
	for i := 0; i < nSamp; i++ {
		if src.Float64() < pDouble {
			out = append(out, h.drawDoubleHeatBath(det, occ, table, pDouble, src, true))
		} else {
			out = append(out, drawSingleHeatBath(h, det, occ, table, 1-pDouble, src, true))
		}
	}

	return out
}

// HeatBathUnnormalized is HeatBathNormalized's variant for factored
// matrix-vector products that absorb a local weight factor into the
// element value itself: Probability reflects only the structural (pair and
// irrep) selection probability, not the virtual-pick alias weight, so a
// structurally valid draw whose eris weight is zero still carries a nonzero
// Probability; such zero-weight draws are returned, not filtered out.
func HeatBathUnnormalized(h *HeatBath, det detbit.Det, occ []uint16, table *symmetry.IrrepTable, nSamp int, pDouble float64, src RandSource) []Draw {
	out := make([]Draw, 0, nSamp)
	for i := 0; i < nSamp; i++ {
		if src.Float64() < pDouble {
			out = append(out, h.drawDoubleHeatBath(det, occ, table, pDouble, src, false))
		} else {
			out = append(out, drawSingleHeatBath(h, det, occ, table, 1-pDouble, src, false))
		}
	}

	return out
}

func drawSingleHeatBath(h *HeatBath, det detbit.Det, occ []uint16, table *symmetry.IrrepTable, pSingle float64, src RandSource, normalized bool) Draw {
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
	pSpatial := symmetry.Spatial(iOcc, nOrb)
	g := int(table.Irrep(pSpatial))
	spin := symmetry.Spin(iOcc, nOrb)

	aVirt, pVirt, ok := h.sampleVirtualRestricted(det, table, pSpatial, g, spin, src)
	if !ok {
		return Draw{}
	}

	prob := pSingle / float64(nAllowed)
	if normalized {
		prob *= pVirt
	}

	return Draw{Excitation: symmetry.Excitation{Orbs: []int{iOcc, aVirt}}, Probability: prob}
}

func (h *HeatBath) drawDoubleHeatBath(det detbit.Det, occ []uint16, table *symmetry.IrrepTable, pDouble float64, src RandSource, normalized bool) Draw {
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

	r := src.Float64() * total
	var ga int
	var cum float64
	for g, w := range weights {
		cum += w
		ga = g
		if r <= cum {
			break
		}
	}
	gb := int(uint8(ga) ^ xorTarget)
	pGa := weights[ga] / total

	a, pa, ok := h.sampleVirtualRestricted(det, table, symmetry.Spatial(iOcc, nOrb), ga, spinI, src)
	if !ok {
		return Draw{}
	}
	b, pb, ok := h.sampleVirtualRestricted(det, table, symmetry.Spatial(jOcc, nOrb), gb, spinJ, src)
	if !ok {
		return Draw{}
	}
	if a > b {
		a, b = b, a
	}

	prob := pDouble / float64(nPairs) * pGa
	if normalized {
		prob *= pa * pb
	}

	return Draw{Excitation: symmetry.Excitation{Orbs: []int{iOcc, jOcc, a, b}}, Probability: prob}
}
