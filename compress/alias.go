// Package compress implements the stochastic matrix-compression kernel: a
// deterministic "keep everything above threshold" pass (FindPreserve)
// followed by a systematic low-variance resampling of the remainder
// (SysComp), a factored variant for chained sub-sampling steps (CompSub),
// and Walker's alias method for O(1) categorical sampling of precomputed
// distributions.
package compress

import (
	"errors"

	"github.com/quanta-fri/gofri/randsrc"
)

// ErrEmptyWeights is returned when NewAlias is given a zero-length or
// all-zero weight vector.
var ErrEmptyWeights = errors.New("compress: weights are empty or sum to zero")

// Alias is Walker's alias table: a precomputed pair of (probability,
// alias-index) arrays letting Sample draw from an arbitrary discrete
// distribution in O(1).
type Alias struct {
	prob  []float64
	alias []int
}

// NewAlias builds an alias table over weights (need not sum to 1).
// Complexity: O(n) time and memory.
func NewAlias(weights []float64) (*Alias, error) {
	n := len(weights)
	var total float64
	for _, w := range weights {
		total += w
	}
	if n == 0 || total <= 0 {
		return nil, ErrEmptyWeights
	}

	scaled := make([]float64, n)
	small := make([]int, 0, n)
	large := make([]int, 0, n)
	for i, w := range weights {
		scaled[i] = w * float64(n) / total
		if scaled[i] < 1.0 {
			small = append(small, i)
		} else {
			large = append(large, i)
		}
	}

	prob := make([]float64, n)
	alias := make([]int, n)

	for len(small) > 0 && len(large) > 0 {
		s := small[len(small)-1]
		small = small[:len(small)-1]
		l := large[len(large)-1]
		large = large[:len(large)-1]

		prob[s] = scaled[s]
		alias[s] = l

		scaled[l] = scaled[l] + scaled[s] - 1.0
		if scaled[l] < 1.0 {
			small = append(small, l)
		} else {
			large = append(large, l)
		}
	}
	for len(large) > 0 {
		l := large[len(large)-1]
		large = large[:len(large)-1]
		prob[l] = 1.0
	}
	for len(small) > 0 {
		s := small[len(small)-1]
		small = small[:len(small)-1]
		prob[s] = 1.0
	}

	return &Alias{prob: prob, alias: alias}, nil
}

// Sample draws one index in [0, len(weights)) with probability proportional
// to its original weight.
// Complexity: O(1)
func (a *Alias) Sample(src randsrc.Source) int {
	n := len(a.prob)
	i := int(src.Float64() * float64(n))
	if i >= n {
		i = n - 1
	}
	if src.Float64() < a.prob[i] {
		return i
	}

	return a.alias[i]
}
