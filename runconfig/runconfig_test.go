package runconfig_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/quanta-fri/gofri/runconfig"
)

func TestNewAppliesDefaults(t *testing.T) {
	cfg := runconfig.New()
	require.Equal(t, "near-uniform", cfg.Distribution)
	require.Equal(t, 10000, cfg.TargetNonz)
}

func TestValidateMissingInput(t *testing.T) {
	cfg := runconfig.New()
	err := cfg.Validate()
	require.ErrorIs(t, err, runconfig.ErrMissingInput)
}

func TestValidateUnknownDistribution(t *testing.T) {
	cfg := runconfig.New(
		runconfig.WithInputFiles("a", "b", "c", "d"),
		runconfig.WithDistribution("bogus"),
	)
	err := cfg.Validate()
	require.ErrorIs(t, err, runconfig.ErrUnknownDistribution)
}

func TestValidateUnknownRestartTechnique(t *testing.T) {
	cfg := runconfig.New(
		runconfig.WithInputFiles("a", "b", "c", "d"),
		runconfig.WithSubspace(4, 50, "bogus"),
	)
	err := cfg.Validate()
	require.ErrorIs(t, err, runconfig.ErrUnknownRestartTechnique)
}

func TestValidateUnknownNormTechnique(t *testing.T) {
	cfg := runconfig.New(
		runconfig.WithInputFiles("a", "b", "c", "d"),
		runconfig.WithSubspace(4, 50, "hinv"),
		runconfig.WithNormTechnique("bogus"),
	)
	err := cfg.Validate()
	require.ErrorIs(t, err, runconfig.ErrUnknownNormTechnique)
}

func TestValidateAcceptsSubspaceDefaults(t *testing.T) {
	cfg := runconfig.New(
		runconfig.WithInputFiles("a", "b", "c", "d"),
		runconfig.WithSubspace(4, 50, "eig"),
	)
	require.NoError(t, cfg.Validate())
}

func TestLoadYAMLOverridesDefaultsAndOptionsOverrideFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "gofri.yaml")
	yamlBody := "sys_params_file: sys.txt\nsymm_file: symm.txt\nhcore_file: hcore.txt\neris_file: eris.txt\ntarget_nonz: 42\n"
	require.NoError(t, os.WriteFile(path, []byte(yamlBody), 0o644))

	cfg, err := runconfig.Load(path, runconfig.WithSeed(99))
	require.NoError(t, err)
	require.Equal(t, "sys.txt", cfg.SysParamsFile)
	require.Equal(t, 42, cfg.TargetNonz)
	require.Equal(t, uint64(99), cfg.Seed)
	require.NoError(t, cfg.Validate())
}
