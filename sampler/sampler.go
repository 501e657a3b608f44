// Package sampler draws random excitations from the factored column
// distribution of the Hamiltonian over a fixed origin determinant: a
// near-uniform proposal that stratifies singles/doubles then samples
// uniformly within each symmetry-allowed stratum, and a heat-bath
// Power-Pitzer proposal that weights those same strata by precomputed
// cumulative distributions over the two-electron integrals.
package sampler

import (
	"math/bits"

	"github.com/quanta-fri/gofri/randsrc"
	"github.com/quanta-fri/gofri/symmetry"
)

// RandSource is the PRNG surface the samplers consume. It is a named alias
// of randsrc.Source, which compress also consumes for its alias-table
// sampling; defining the interface here instead would create an import
// cycle, since sampler imports compress.
type RandSource = randsrc.Source

// NewStdRandSource wraps math/rand/v2's ChaCha8 behind RandSource.
func NewStdRandSource(seed uint64) RandSource { return randsrc.NewStdSource(seed) }

// Draw is one proposed excitation together with the probability it was
// drawn under the proposal distribution in force.
type Draw struct {
	Excitation  symmetry.Excitation
	Probability float64
}

// BinomialSplit draws a Binomial(n, p) variate, used to split n_walkers
// between "try a double" and "try a single" attempts.
// Complexity: O(n)
func BinomialSplit(n int, p float64, src RandSource) int {
	count := 0
	for i := 0; i < n; i++ {
		if src.Float64() < p {
			count++
		}
	}

	return count
}

// uniformIndex draws a uniform integer in [0, n) from a u32 stream, using
// Lemire's bounded-multiplication trick to avoid modulo bias.
func uniformIndex(n int, src RandSource) int {
	if n <= 0 {
		return 0
	}
	hi, _ := bits.Mul64(uint64(src.Uint32()), uint64(n))

	return int(hi)
}
