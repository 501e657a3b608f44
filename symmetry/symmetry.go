// Package symmetry builds per-determinant symmetry lookup tables and
// enumerates the single and double excitations that are allowed by spin and
// point-group irrep conservation.
//
// The point group has n_irreps = 8 members; group composition is XOR on the
// integer irrep label (an Abelian group of order 8, e.g. D2h).
package symmetry

import (
	"errors"
	"fmt"

	"github.com/quanta-fri/gofri/detbit"
)

// NIrreps is the fixed order of the point group this package supports.
const NIrreps = 8

// ErrBadSymmLen is returned when the symmetry label slice does not have one
// entry per spatial orbital.
var ErrBadSymmLen = errors.New("symmetry: symm slice length != nOrb")

// ErrBadIrrep is returned when a symmetry label falls outside [0, NIrreps).
var ErrBadIrrep = errors.New("symmetry: irrep label out of range")

// Excitation is a single (length 2: iOcc, aVirt) or double (length 4: iOcc,
// jOcc, aVirt, bVirt) excitation record, holding spin-orbital indices.
// Doubles observe i<j, a<b, with same-spin pairs kept on the same side and,
// for mixed-spin doubles, the spin-up electron always in the first slot.
type Excitation struct {
	Orbs []int
}

// IsDouble reports whether e is a double excitation.
func (e Excitation) IsDouble() bool { return len(e.Orbs) == 4 }

// Spatial returns the spatial-orbital index of spin-orbital idx.
func Spatial(idx, nOrb int) int { return idx % nOrb }

// Spin returns 0 (up) for idx in [0,nOrb) and 1 (down) for idx in
// [nOrb, 2*nOrb).
func Spin(idx, nOrb int) int {
	if idx < nOrb {
		return 0
	}

	return 1
}

// SpinOrbital reconstructs the spin-orbital index for a spatial orbital and
// a spin (0 or 1).
func SpinOrbital(spatial, spin, nOrb int) int { return spin*nOrb + spatial }

// IrrepTable is the per-irrep lookup: rows[g] holds the spatial orbitals
// carrying irrep g in ascending order, and len(rows[g]) is their count.
type IrrepTable struct {
	nOrb int
	rows [NIrreps][]int // rows[g] = ascending spatial-orbital indices with irrep g
	symm []uint8        // symm[spatial] = irrep, retained for XOR checks
}

// NewIrrepTable builds the lookup table from a per-spatial-orbital irrep
// label slice.
// Complexity: O(nOrb)
func NewIrrepTable(symm []uint8, nOrb int) (*IrrepTable, error) {
	if len(symm) != nOrb {
		return nil, fmt.Errorf("NewIrrepTable: len=%d nOrb=%d: %w", len(symm), nOrb, ErrBadSymmLen)
	}
	t := &IrrepTable{nOrb: nOrb, symm: append([]uint8(nil), symm...)}
	for sp, g := range symm {
		if int(g) >= NIrreps {
			return nil, fmt.Errorf("NewIrrepTable: orbital %d has irrep %d: %w", sp, g, ErrBadIrrep)
		}
		t.rows[g] = append(t.rows[g], sp)
	}

	return t, nil
}

// Irrep returns the irrep label of spatial orbital sp.
func (t *IrrepTable) Irrep(sp int) uint8 { return t.symm[sp] }

// SpatialsOfIrrep returns the ascending spatial-orbital indices carrying
// irrep g.
func (t *IrrepTable) SpatialsOfIrrep(g int) []int { return t.rows[g] }

// NOrb returns the number of spatial orbitals the table was built over.
func (t *IrrepTable) NOrb() int { return t.nOrb }

// CountSymmVirt returns, for every (irrep, spin) pair, the number of
// unoccupied spin-orbitals in det carrying that irrep and spin.
// Complexity: O(nOrb)
func CountSymmVirt(det detbit.Det, table *IrrepTable) [NIrreps][2]int {
	var counts [NIrreps][2]int
	for g := 0; g < NIrreps; g++ {
		for _, sp := range table.rows[g] {
			for s := 0; s < 2; s++ {
				so := SpinOrbital(sp, s, table.nOrb)
				if !detbit.ReadBit(det, so) {
					counts[g][s]++
				}
			}
		}
	}

	return counts
}

func xorIrreps(table *IrrepTable, nOrb int, orbs ...int) uint8 {
	var x uint8
	for _, o := range orbs {
		x ^= table.Irrep(Spatial(o, nOrb))
	}

	return x
}
