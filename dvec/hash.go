package dvec

import "github.com/quanta-fri/gofri/detbit"

// HashCommon hashes an occupied-orbital list with a scrambler that is
// byte-identical on every process, guaranteeing every process agrees on
// which rank an index belongs to. It is a free function rather than a
// package-level hash table with zero capacity: the only lookup table a
// DistVec holds is its posOf map in dvec.go, keyed by determinant bytes.
// Complexity: O(len(occOrbs))
func HashCommon(occOrbs []uint16, scrambler []uint32) uint64 {
	var h uint64 = 1469598103934665603 // FNV offset basis
	for _, o := range occOrbs {
		s := scrambler[int(o)%len(scrambler)]
		h ^= uint64(o) ^ uint64(s)<<17
		h *= 1099511628211 // FNV prime
	}

	return h
}

// HashLocal hashes an occupied-orbital list with a process-local scrambler
// (need not agree across processes, unlike HashCommon). It computes the
// same function as HashCommon; DistVec's own lookup table does not use it.
// Complexity: O(len(occOrbs))
func HashLocal(occOrbs []uint16, scrambler []uint32) uint64 {
	return HashCommon(occOrbs, scrambler)
}

// HashProc returns the owning process rank for a determinant: HashCommon
// over its occupied-orbital list, modulo nProcs.
// Complexity: O(nElec)
func HashProc(idx detbit.Det, nElec int, commonScrambler []uint32, nProcs int) (int, error) {
	occ, err := detbit.EnumerateSetBits(idx, nElec)
	if err != nil {
		return 0, err
	}

	return int(HashCommon(occ, commonScrambler) % uint64(nProcs)), nil
}
