// Package randsrc formalizes the one boundary the engine needs from a
// pseudo-random source: a u32 stream and a uniform float in [0,1). The
// distilled design explicitly keeps the Mersenne-Twister generator itself
// out of scope ("the engine just consumes u32 streams"); this package is
// that boundary made concrete as a one-method-pair interface so any source
// -- including an external Mersenne-Twister implementation -- can be
// injected without touching sampler or compress code.
package randsrc

import "math/rand/v2"

// Source is the minimal PRNG surface the sampler and compress packages need.
type Source interface {
	Uint32() uint32
	Float64() float64 // in [0,1)
}

// chacha8Source wraps math/rand/v2's ChaCha8, the stdlib's post-Mersenne-
// Twister PRNG family.
type chacha8Source struct {
	r *rand.Rand
}

// NewStdSource returns a Source seeded deterministically from seed.
func NewStdSource(seed uint64) Source {
	var seed32 [32]byte
	for i := 0; i < 4; i++ {
		shift := uint(i) * 64
		v := seed >> (shift % 64)
		if i > 0 {
			v = seed*uint64(2654435761) + uint64(i)
		}
		for b := 0; b < 8; b++ {
			seed32[i*8+b] = byte(v >> (8 * b))
		}
	}

	return &chacha8Source{r: rand.New(rand.NewChaCha8(seed32))}
}

// Uint32 returns the next pseudo-random uint32.
func (c *chacha8Source) Uint32() uint32 { return c.r.Uint32() }

// Float64 returns a pseudo-random float64 in [0,1).
func (c *chacha8Source) Float64() float64 { return c.r.Float64() }
