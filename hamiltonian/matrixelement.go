package hamiltonian

import "github.com/quanta-fri/gofri/symmetry"

// activeSpatial maps a spin-orbital index to an active-space spatial orbital,
// applying the frozen-core offset (n_frz/2 core spatial orbitals are not
// part of the active index space the caller's spin-orbitals range over).
func activeSpatial(spinOrbital, nOrb, nFrz int) int {
	return symmetry.Spatial(spinOrbital, nOrb) + nFrz/2
}

// DoubleMatrixElementMagnitude returns the magnitude-correct (unsigned)
// double-excitation matrix element (ij|ab) - [same-spin](ij|ba). ex must be
// a double (len(ex.Orbs)==4); orbs are spin-orbitals in the active index
// space, offset by n_frz/2 before indexing eris.
// Complexity: O(1)
func DoubleMatrixElementMagnitude(ex symmetry.Excitation, eris *ERIs, nOrb, nFrz int) float64 {
	iOcc, jOcc, aVirt, bVirt := ex.Orbs[0], ex.Orbs[1], ex.Orbs[2], ex.Orbs[3]
	i := activeSpatial(iOcc, nOrb, nFrz)
	j := activeSpatial(jOcc, nOrb, nFrz)
	a := activeSpatial(aVirt, nOrb, nFrz)
	b := activeSpatial(bVirt, nOrb, nFrz)

	direct := eris.At(i, j, a, b)
	sameSpin := symmetry.Spin(iOcc, nOrb) == symmetry.Spin(jOcc, nOrb)
	if !sameSpin {
		return direct
	}

	return direct - eris.At(i, j, b, a)
}

// SingleMatrixElementMagnitude returns the magnitude-correct single-
// excitation matrix element: h_core(i,a) plus the closed-shell sum over
// frozen-core orbitals of 2(ia|kk)-(ik|ka), plus the sum over the other
// active electrons j of (ia|jj) minus exchange (ij|ja) when spin(j) matches
// spin(i). ex must be a single (len(ex.Orbs)==2); occ is the full occupied
// spin-orbital list (including iOcc).
// Complexity: O(nFrz/2 + nElec)
func SingleMatrixElementMagnitude(ex symmetry.Excitation, occ []uint16, hCore *HCore, eris *ERIs, nOrb, nFrz int) float64 {
	iOcc, aVirt := ex.Orbs[0], ex.Orbs[1]
	i := activeSpatial(iOcc, nOrb, nFrz)
	a := activeSpatial(aVirt, nOrb, nFrz)
	spinI := symmetry.Spin(iOcc, nOrb)

	val := hCore.At(i, a)

	nCore := nFrz / 2
	for k := 0; k < nCore; k++ {
		val += 2*eris.At(i, a, k, k) - eris.At(i, k, k, a)
	}

	for _, j16 := range occ {
		jOcc := int(j16)
		if jOcc == iOcc {
			continue
		}
		j := activeSpatial(jOcc, nOrb, nFrz)
		val += eris.At(i, a, j, j)
		if symmetry.Spin(jOcc, nOrb) == spinI {
			val -= eris.At(i, j, j, a)
		}
	}

	return val
}

// DiagonalMatrixElement returns the HF-like expectation value of the
// Hamiltonian over the determinant whose occupied spin-orbitals are occ:
// the one-electron + core-interaction sum over active electrons, plus the
// active-active two-electron sum (Coulomb minus same-spin exchange).
// Complexity: O(nElec*(nFrz/2 + nElec))
func DiagonalMatrixElement(occ []uint16, hCore *HCore, eris *ERIs, nOrb, nFrz int) float64 {
	nCore := nFrz / 2
	var oneElec float64
	for _, p16 := range occ {
		p := activeSpatial(int(p16), nOrb, nFrz)
		oneElec += hCore.At(p, p)
		for k := 0; k < nCore; k++ {
			oneElec += 2*eris.At(p, p, k, k) - eris.At(p, k, k, p)
		}
	}

	var twoElec float64
	for _, p16 := range occ {
		p := activeSpatial(int(p16), nOrb, nFrz)
		spinP := symmetry.Spin(int(p16), nOrb)
		for _, q16 := range occ {
			if q16 == p16 {
				continue
			}
			q := activeSpatial(int(q16), nOrb, nFrz)
			twoElec += eris.At(p, p, q, q)
			if symmetry.Spin(int(q16), nOrb) == spinP {
				twoElec -= eris.At(p, q, q, p)
			}
		}
	}

	return oneElec + 0.5*twoElec
}
