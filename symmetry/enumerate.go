package symmetry

import "github.com/quanta-fri/gofri/detbit"

// occSet returns a boolean membership test for the occupied-orbital list,
// used to skip already-occupied virtuals during enumeration.
func occSet(occ []uint16) map[int]struct{} {
	set := make(map[int]struct{}, len(occ))
	for _, o := range occ {
		set[int(o)] = struct{}{}
	}

	return set
}

// EnumerateSingles enumerates every single excitation iOcc -> aVirt that
// conserves spin (aVirt has the same spin as iOcc) and irrep
// (Irrep(iOcc) == Irrep(aVirt)).
// Complexity: O(nElec * nOrb)
func EnumerateSingles(det detbit.Det, occ []uint16, table *IrrepTable) []Excitation {
	nOrb := table.NOrb()
	occupied := occSet(occ)
	var out []Excitation

	for _, i16 := range occ {
		i := int(i16)
		si := Spin(i, nOrb)
		gi := table.Irrep(Spatial(i, nOrb))
		for _, sp := range table.SpatialsOfIrrep(int(gi)) {
			a := SpinOrbital(sp, si, nOrb)
			if _, isOcc := occupied[a]; isOcc {
				continue
			}
			out = append(out, Excitation{Orbs: []int{i, a}})
		}
	}

	return out
}

// CountSingles returns len(EnumerateSingles(...)) without materializing the
// slice.
// Complexity: O(nElec * nOrb)
func CountSingles(det detbit.Det, occ []uint16, table *IrrepTable) int {
	nOrb := table.NOrb()
	occupied := occSet(occ)
	count := 0
	for _, i16 := range occ {
		i := int(i16)
		si := Spin(i, nOrb)
		gi := table.Irrep(Spatial(i, nOrb))
		for _, sp := range table.SpatialsOfIrrep(int(gi)) {
			a := SpinOrbital(sp, si, nOrb)
			if _, isOcc := occupied[a]; !isOcc {
				count++
			}
		}
	}

	return count
}

// EnumerateDoubles enumerates every double excitation {iOcc,jOcc} ->
// {aVirt,bVirt} with i<j, a<b, same-spin pairs kept on the same side
// (ss: both virtuals share the occupied pair's spin) and mixed-spin pairs
// keeping the spin-up electron in the first slot (guaranteed by i<j, since
// the bit layout places every spin-up index below every spin-down index),
// filtered by the symmetry closure Irrep(i)^Irrep(j)^Irrep(a)^Irrep(b)==0.
// Complexity: O(nElec^2 * nOrb^2)
func EnumerateDoubles(det detbit.Det, occ []uint16, table *IrrepTable) []Excitation {
	nOrb := table.NOrb()
	occupied := occSet(occ)
	nSpinOrb := 2 * nOrb
	var out []Excitation

	for ii := 0; ii < len(occ); ii++ {
		i := int(occ[ii])
		si := Spin(i, nOrb)
		for jj := ii + 1; jj < len(occ); jj++ {
			j := int(occ[jj])
			sj := Spin(j, nOrb)
			sameSpin := si == sj

			for a := 0; a < nSpinOrb; a++ {
				if _, isOcc := occupied[a]; isOcc {
					continue
				}
				sa := Spin(a, nOrb)
				for b := a + 1; b < nSpinOrb; b++ {
					if _, isOcc := occupied[b]; isOcc {
						continue
					}
					sb := Spin(b, nOrb)

					if sameSpin {
						if sa != si || sb != si {
							continue
						}
					} else {
						if sa != si || sb != sj {
							continue
						}
					}

					if xorIrreps(table, nOrb, i, j, a, b) != 0 {
						continue
					}

					out = append(out, Excitation{Orbs: []int{i, j, a, b}})
				}
			}
		}
	}

	return out
}

// CountDoubles returns len(EnumerateDoubles(...)) without materializing the
// slice.
// Complexity: O(nElec^2 * nOrb^2)
func CountDoubles(det detbit.Det, occ []uint16, table *IrrepTable) int {
	return len(EnumerateDoubles(det, occ, table))
}
