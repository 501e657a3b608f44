// Package subspace implements the parallel subspace (Arnoldi-like)
// projection driver: nTrial iterates evolved together under one shared
// index set, an overlap matrix and a Hamiltonian-projection matrix built
// against a fixed set of trial vectors, and periodic restart by
// generalised eigendecomposition or matrix inversion.
package subspace

import "errors"

// ErrBadTrialCount is returned by NewDriver when cfg.NTrial <= 0.
var ErrBadTrialCount = errors.New("subspace: NTrial must be positive")

// ErrUnknownRestart is returned by NewDriver when cfg.Restart names
// something other than the three supported techniques.
var ErrUnknownRestart = errors.New("subspace: unknown restart technique")

// ErrZeroTargetNonz is returned by NewDriver when cfg.TargetNonz == 0: a
// population-control target of zero would compress every iterate down to
// nothing.
var ErrZeroTargetNonz = errors.New("subspace: TargetNonz must be positive")

// NormTechnique selects how Step normalises each iterate before computing
// overlaps.
type NormTechnique int

const (
	// NormNone applies no normalisation.
	NormNone NormTechnique = iota
	// NormOneNorm divides each iterate by its own one-norm.
	NormOneNorm
	// NormMaxOneNorm divides every iterate by the largest one-norm among
	// all nTrial iterates.
	NormMaxOneNorm
)

// RestartTechnique selects how Step recombines iterates at a restart.
type RestartTechnique int

const (
	// RestartEig solves the generalised eigenproblem B*x = lambda*D*x and
	// keeps the nTrial largest eigenvalues.
	RestartEig RestartTechnique = iota
	// RestartHInv inverts B and recombines.
	RestartHInv
	// RestartRInv QR-factors B and inverts the triangular R factor.
	RestartRInv
)

// Config holds the fixed parameters of one subspace Driver.
type Config struct {
	NOrb  int
	NElec int
	NFrz  int

	NTrial int

	Eps        float64
	PDouble    float64
	MatrSamp   int // per-iterate spawn proposal budget, mirrors driver.Config.MatrSamp
	TargetNonz int // per-iterate compression target, mirrors driver.Config.TargetNonz

	UseHeatBath bool

	Norm       NormTechnique
	Restart    RestartTechnique
	RestartInt int

	EigTol     float64
	EigMaxIter int
}

// Option mutates a Config during construction.
type Option func(*Config)

// defaultConfig fills in the values every subspace run needs even with no
// options applied.
func defaultConfig() Config {
	return Config{
		Eps:        1e-3,
		PDouble:    0.5,
		MatrSamp:   10000,
		RestartInt: 50,
		EigTol:     1e-10,
		EigMaxIter: 500,
	}
}

// New builds a Config from defaults plus opts. It does not validate it;
// NewDriver does.
func New(opts ...Option) Config {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	return cfg
}

// WithOrbitals sets the active-space orbital/electron/frozen-core counts.
func WithOrbitals(nOrb, nElec, nFrz int) Option {
	return func(c *Config) { c.NOrb, c.NElec, c.NFrz = nOrb, nElec, nFrz }
}

// WithTrialCount sets the number of simultaneously evolved iterates/trial
// vectors.
func WithTrialCount(n int) Option {
	return func(c *Config) { c.NTrial = n }
}

// WithTimeStep sets the imaginary-time step applied every multiply.
func WithTimeStep(eps float64) Option {
	return func(c *Config) { c.Eps = eps }
}

// WithProposalMix sets the single-vs-double proposal split probability and
// the per-iterate spawn budget.
func WithProposalMix(pDouble float64, matrSamp int) Option {
	return func(c *Config) { c.PDouble, c.MatrSamp = pDouble, matrSamp }
}

// WithPopulationControl sets the per-iterate compression target.
func WithPopulationControl(targetNonz int) Option {
	return func(c *Config) { c.TargetNonz = targetNonz }
}

// WithHeatBath switches the proposal distribution from near-uniform to the
// precomputed heat-bath Power-Pitzer tables.
func WithHeatBath(use bool) Option {
	return func(c *Config) { c.UseHeatBath = use }
}

// WithNormTechnique selects the per-iterate normalisation applied before
// computing overlaps.
func WithNormTechnique(n NormTechnique) Option {
	return func(c *Config) { c.Norm = n }
}

// WithRestart selects the restart technique and its cadence.
func WithRestart(technique RestartTechnique, interval int) Option {
	return func(c *Config) { c.Restart, c.RestartInt = technique, interval }
}

// WithEigenParams overrides the tolerance/iteration cap the QR-algorithm
// eigensolver uses during an Eig restart.
func WithEigenParams(tol float64, maxIter int) Option {
	return func(c *Config) { c.EigTol, c.EigMaxIter = tol, maxIter }
}

func (c Config) validate() error {
	if c.NTrial <= 0 {
		return ErrBadTrialCount
	}
	if c.TargetNonz == 0 {
		return ErrZeroTargetNonz
	}
	switch c.Restart {
	case RestartEig, RestartHInv, RestartRInv:
	default:
		return ErrUnknownRestart
	}

	return nil
}
