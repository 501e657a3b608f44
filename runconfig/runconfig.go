// Package runconfig turns the command-line/YAML surface of a gofri run into
// a typed, validated Config, in the same functional-option style the
// teacher's builder.BuilderOption uses for graph constructors.
package runconfig

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ErrMissingInput is returned by Validate when a required input path is
// empty.
var ErrMissingInput = errors.New("runconfig: missing required input path")

// ErrUnknownDistribution is returned by Validate when Distribution names
// something other than "near-uniform" or "heat-bath".
var ErrUnknownDistribution = errors.New("runconfig: unknown proposal distribution")

// ErrUnknownRestartTechnique is returned by Validate when RestartTechnique
// names something other than "eig", "hinv" or "rinv".
var ErrUnknownRestartTechnique = errors.New("runconfig: unknown restart technique")

// ErrUnknownNormTechnique is returned by Validate when NormTechnique names
// something other than "none", "one-norm" or "max-one-norm".
var ErrUnknownNormTechnique = errors.New("runconfig: unknown norm technique")

// Config is the full set of knobs a gofri run needs, loadable from flags
// (cmd/gofri) or from a gofri.yaml file via Load.
type Config struct {
	SysParamsFile string `yaml:"sys_params_file"`
	SymmFile      string `yaml:"symm_file"`
	HCoreFile     string `yaml:"hcore_file"`
	ErisFile      string `yaml:"eris_file"`
	TrialDetFile  string `yaml:"trial_det_file"`
	TrialValFile  string `yaml:"trial_val_file"`
	CheckpointDir string `yaml:"checkpoint_dir"`
	OutputDir     string `yaml:"output_dir"`

	Distribution string `yaml:"distribution"` // "near-uniform" or "heat-bath"

	Eps           float64 `yaml:"eps"`
	Shift         float64 `yaml:"shift"`
	Damp          float64 `yaml:"damp"`
	PDouble       float64 `yaml:"p_double"`
	TargetNonz    int     `yaml:"target_nonz"`
	MatrSamp      int     `yaml:"matr_samp"`
	AdderCap      int     `yaml:"adder_cap"`
	ShiftInterval int     `yaml:"shift_interval"`
	SaveInterval  int     `yaml:"save_interval"`
	NIterations   int     `yaml:"n_iterations"`
	NDetermRank   int     `yaml:"n_determ_rank"`
	Seed          uint64  `yaml:"seed"`

	// Subspace/Arnoldi run knobs; zero NTrial means the binary runs a plain
	// driver.Engine iteration instead of a subspace.Driver.
	NTrial            int    `yaml:"n_trial"`
	RestartInt        int    `yaml:"restart_int"`
	RestartTechnique  string `yaml:"restart_technique"` // "eig", "hinv", "rinv"
	NormTechnique     string `yaml:"norm_technique"`    // "none", "one-norm", "max-one-norm"
}

// Option mutates a Config during construction.
type Option func(*Config)

// defaults returns the values every run needs even with no options applied.
func defaults() Config {
	return Config{
		Distribution:  "near-uniform",
		Eps:           1e-3,
		Damp:          0.1,
		PDouble:       0.5,
		TargetNonz:    10000,
		MatrSamp:      10000,
		AdderCap:      4096,
		ShiftInterval: 10,
		SaveInterval:  1000,
		NIterations:   1000,
		CheckpointDir: "checkpoints",
		OutputDir:     "output",
		RestartInt:    50,
		RestartTechnique: "hinv",
		NormTechnique:    "none",
	}
}

// New builds a Config from defaults, applying each Option in order.
// Complexity: O(len(opts))
func New(opts ...Option) Config {
	cfg := defaults()
	for _, opt := range opts {
		opt(&cfg)
	}

	return cfg
}

// WithInputFiles sets the four integral/symmetry input paths.
func WithInputFiles(sysParams, symm, hCore, eris string) Option {
	return func(c *Config) {
		c.SysParamsFile, c.SymmFile, c.HCoreFile, c.ErisFile = sysParams, symm, hCore, eris
	}
}

// WithTrialVector sets the trial-vector determinant/value file pair.
func WithTrialVector(detFile, valFile string) Option {
	return func(c *Config) { c.TrialDetFile, c.TrialValFile = detFile, valFile }
}

// WithCheckpointing sets the checkpoint directory and save interval.
func WithCheckpointing(dir string, interval int) Option {
	return func(c *Config) { c.CheckpointDir, c.SaveInterval = dir, interval }
}

// WithOutputDir sets the directory the per-iteration output files are
// appended to.
func WithOutputDir(dir string) Option {
	return func(c *Config) { c.OutputDir = dir }
}

// WithDistribution selects the proposal distribution by name.
func WithDistribution(name string) Option {
	return func(c *Config) { c.Distribution = name }
}

// WithSeed sets the PRNG seed.
func WithSeed(seed uint64) Option {
	return func(c *Config) { c.Seed = seed }
}

// WithSubspace switches the run to the subspace/Arnoldi driver with nTrial
// simultaneous iterates, restarting every interval iterations by the named
// technique.
func WithSubspace(nTrial, interval int, technique string) Option {
	return func(c *Config) { c.NTrial, c.RestartInt, c.RestartTechnique = nTrial, interval, technique }
}

// WithNormTechnique selects the subspace driver's per-iterate normalisation.
func WithNormTechnique(name string) Option {
	return func(c *Config) { c.NormTechnique = name }
}

// Load reads a YAML run-config file and applies opts on top of it, so
// flag-sourced options can override file-sourced values.
func Load(path string, opts ...Option) (Config, error) {
	cfg := defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("runconfig.Load: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("runconfig.Load: %w", err)
	}

	for _, opt := range opts {
		opt(&cfg)
	}

	return cfg, nil
}

// Validate checks that every required input is present and every
// enumerated option names something this engine supports.
func (c Config) Validate() error {
	for name, v := range map[string]string{
		"sys_params_file": c.SysParamsFile,
		"symm_file":       c.SymmFile,
		"hcore_file":      c.HCoreFile,
		"eris_file":       c.ErisFile,
	} {
		if v == "" {
			return fmt.Errorf("runconfig.Validate: %s: %w", name, ErrMissingInput)
		}
	}

	switch c.Distribution {
	case "near-uniform", "heat-bath":
	default:
		return fmt.Errorf("runconfig.Validate: %q: %w", c.Distribution, ErrUnknownDistribution)
	}

	if c.NTrial > 0 {
		switch c.RestartTechnique {
		case "eig", "hinv", "rinv":
		default:
			return fmt.Errorf("runconfig.Validate: %q: %w", c.RestartTechnique, ErrUnknownRestartTechnique)
		}
		switch c.NormTechnique {
		case "none", "one-norm", "max-one-norm":
		default:
			return fmt.Errorf("runconfig.Validate: %q: %w", c.NormTechnique, ErrUnknownNormTechnique)
		}
	}

	return nil
}
