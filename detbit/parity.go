package detbit

// SingleExcitationParity applies the single excitation i_occ -> a_virt to a
// clone of det and returns the resulting determinant together with the
// fermionic sign of the operator product a^dagger_a a_iOcc.
//
// Sign rule: clear the destroyer, set the creator, and multiply the sign by
// -1 for every bit that remains set strictly between iOcc and aVirt in the
// intermediate determinant (the state after clearing the destroyer, before
// setting the creator).
// Complexity: O(len(det))
func SingleExcitationParity(det Det, iOcc, aVirt int) (int, Det) {
	next := det.Clone()
	ClearBit(next, iOcc)
	sign := parityOfRun(next, iOcc, aVirt)
	SetBit(next, aVirt)

	return sign, next
}

// DoubleExcitationParity applies the double excitation
// {iOcc, jOcc} -> {aVirt, bVirt} to a clone of det and returns the resulting
// determinant together with the fermionic sign. The excitation is applied
// as two successive single excitations, iOcc -> aVirt and then
// jOcc -> bVirt, each signed by the set bits strictly between its two
// orbitals in the intermediate determinant (after its destroyer is
// cleared, before its creator is set).
// Complexity: O(len(det))
func DoubleExcitationParity(det Det, iOcc, jOcc, aVirt, bVirt int) (int, Det) {
	next := det.Clone()

	sign := 1

	ClearBit(next, iOcc)
	sign *= parityOfRun(next, iOcc, aVirt)
	SetBit(next, aVirt)

	ClearBit(next, jOcc)
	sign *= parityOfRun(next, jOcc, bVirt)
	SetBit(next, bVirt)

	return sign, next
}

// parityOfRun returns -1 raised to the power of the number of set bits in
// cur strictly between a and b, else +1.
func parityOfRun(cur Det, a, b int) int {
	if PopcountBetween(cur, a, b)%2 == 1 {
		return -1
	}

	return 1
}
