// Package driver runs the per-iteration FRI/FCIQMC stochastic update over a
// dvec.DistVec: propose spawns from every live determinant, compress the
// proposal budget, apply the Hamiltonian matrix elements, flush spawns
// across processes, apply the diagonal death/clone step in place, compress
// the resulting vector back down to a target population, adjust the energy
// shift, and project against a trial vector for energy estimates.
package driver

import "errors"

// ErrNoLiveDeterminants is returned by Step when the vector has no occupied
// positions to propose from.
var ErrNoLiveDeterminants = errors.New("driver: no live determinants")

// ErrZeroTargetNonz is returned by NewEngine when cfg.TargetNonz == 0: a
// population-control target of zero would compress every iteration down to
// nothing.
var ErrZeroTargetNonz = errors.New("driver: TargetNonz must be positive")

// Config holds the fixed run parameters for one Engine, set via functional
// options matching the teacher's GraphOption pattern.
type Config struct {
	NOrb  int
	NElec int
	NFrz  int

	PDouble  float64 // probability a proposal attempt targets a double
	Eps      float64 // imaginary-time step (dt)
	Shift    float64 // initial energy shift
	Damp     float64 // shift-update damping factor

	ShiftInterval int // iterations between shift updates
	SaveInterval  int // iterations between checkpoints
	TargetNonz    int // post-death-step compression target
	MatrSamp      int // spawn proposal budget per iteration

	UseHeatBath bool // heat-bath Power-Pitzer proposal instead of near-uniform
	NDetermRank int // size of the deterministic subspace prefix (0 disables it)
}

// Option mutates a Config during construction.
type Option func(*Config)

// defaultConfig fills in the values every FRI run needs even when the
// caller supplies no options.
func defaultConfig() Config {
	return Config{
		PDouble:       0.5,
		Eps:           1e-3,
		Damp:          0.1,
		ShiftInterval: 10,
		SaveInterval:  1000,
		TargetNonz:    10000,
		MatrSamp:      10000,
	}
}

// WithOrbitals sets the active-space orbital/electron/frozen-core counts.
func WithOrbitals(nOrb, nElec, nFrz int) Option {
	return func(c *Config) {
		c.NOrb, c.NElec, c.NFrz = nOrb, nElec, nFrz
	}
}

// WithTimeStep sets the imaginary-time step.
func WithTimeStep(eps float64) Option {
	return func(c *Config) { c.Eps = eps }
}

// WithShift sets the initial energy shift and its update damping factor.
func WithShift(shift, damp float64, interval int) Option {
	return func(c *Config) {
		c.Shift, c.Damp, c.ShiftInterval = shift, damp, interval
	}
}

// WithPopulationControl sets the post-death compression target and the
// per-iteration spawn proposal budget.
func WithPopulationControl(targetNonz, matrSamp int) Option {
	return func(c *Config) { c.TargetNonz, c.MatrSamp = targetNonz, matrSamp }
}

// WithProposalMix sets the single-vs-double proposal split probability.
func WithProposalMix(pDouble float64) Option {
	return func(c *Config) { c.PDouble = pDouble }
}

// WithHeatBath switches the proposal distribution from near-uniform to the
// precomputed heat-bath Power-Pitzer tables.
func WithHeatBath(use bool) Option {
	return func(c *Config) { c.UseHeatBath = use }
}

// WithDeterministicSubspace marks the first nRank positions of the vector
// as the exact (non-stochastic) subspace.
func WithDeterministicSubspace(nRank int) Option {
	return func(c *Config) { c.NDetermRank = nRank }
}

// WithSaveInterval sets the checkpoint cadence.
func WithSaveInterval(n int) Option {
	return func(c *Config) { c.SaveInterval = n }
}
