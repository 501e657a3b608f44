package ioformat_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/quanta-fri/gofri/ioformat"
	"github.com/quanta-fri/gofri/matops"
)

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	return path
}

func TestLoadSysParams(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "sys_params.txt",
		"n_elec\n4\nn_frozen\n0\nn_orb\n4\neps\n0.001\nhf_energy\n-3.14\n")

	sp, err := ioformat.LoadSysParams(path)
	require.NoError(t, err)
	require.Equal(t, 4, sp.NElec)
	require.Equal(t, 0, sp.NFrozen)
	require.Equal(t, 4, sp.NOrb)
	require.InDelta(t, 0.001, sp.Eps, 1e-12)
	require.InDelta(t, -3.14, sp.HFEnergy, 1e-12)
}

func TestLoadSysParamsBadLabel(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "sys_params.txt", "n_wrong\n4\nn_frozen\n0\nn_orb\n4\neps\n0.001\nhf_energy\n-3.14\n")

	_, err := ioformat.LoadSysParams(path)
	require.ErrorIs(t, err, ioformat.ErrBadSysParams)
}

func TestLoadSymm(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "symm.txt", "0 1 2 3\n")

	symm, err := ioformat.LoadSymm(path)
	require.NoError(t, err)
	require.Equal(t, []uint8{0, 1, 2, 3}, symm)
}

func TestLoadHCoreRoundTrips(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "hcore.txt", "1,2,3,4")

	h, err := ioformat.LoadHCore(path, 2)
	require.NoError(t, err)
	require.Equal(t, 4.0, h.At(1, 1))
}

func TestLoadHCoreBadLen(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "hcore.txt", "1,2,3")

	_, err := ioformat.LoadHCore(path, 2)
	require.ErrorIs(t, err, ioformat.ErrBadTensorLen)
}

func TestLoadTrialVector(t *testing.T) {
	dir := t.TempDir()
	detPath := writeFile(t, dir, "trialdets", "3\n5\n")
	valPath := writeFile(t, dir, "trialvals", "0.5\n0.25\n")

	dets, vals, err := ioformat.LoadTrialVector(detPath, valPath, 4)
	require.NoError(t, err)
	require.Len(t, dets, 2)
	require.Equal(t, []float64{0.5, 0.25}, vals)
	require.True(t, dets[0][0] == 3)
}

func TestLoadTrialVectorMismatch(t *testing.T) {
	dir := t.TempDir()
	detPath := writeFile(t, dir, "trialdets", "3\n5\n")
	valPath := writeFile(t, dir, "trialvals", "0.5\n")

	_, _, err := ioformat.LoadTrialVector(detPath, valPath, 4)
	require.ErrorIs(t, err, ioformat.ErrMismatchedTrialFiles)
}

func TestScramblerRoundTrip(t *testing.T) {
	dir := t.TempDir()
	scr := []uint32{1, 2, 3, 4, 5, 6}
	require.NoError(t, ioformat.SaveScrambler(dir, scr))

	got, err := ioformat.LoadScrambler(dir, 3)
	require.NoError(t, err)
	require.Equal(t, scr, got)
}

func TestLoadScramblerCorrupt(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, ioformat.SaveScrambler(dir, []uint32{1, 2}))

	_, err := ioformat.LoadScrambler(dir, 4)
	require.ErrorIs(t, err, ioformat.ErrCorruptScrambler)
}

func TestDenseSizesRoundTrip(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, ioformat.SaveDenseSizes(dir, []int{3, 5, 7}))

	got, err := ioformat.LoadDenseSizes(dir)
	require.NoError(t, err)
	require.Equal(t, []int{3, 5, 7}, got)
}

func TestSeriesAppendsLines(t *testing.T) {
	dir := t.TempDir()
	s, err := ioformat.OpenSeries(dir, "norm.txt")
	require.NoError(t, err)
	require.NoError(t, s.Append(1.5))
	require.NoError(t, s.Append(2.5))
	require.NoError(t, s.Close())

	data, err := os.ReadFile(filepath.Join(dir, "norm.txt"))
	require.NoError(t, err)
	require.Contains(t, string(data), "1.5")
	require.Contains(t, string(data), "2.5")
}

func TestWriteMatrixText(t *testing.T) {
	dir := t.TempDir()
	m, err := matops.NewDense(2, 2)
	require.NoError(t, err)
	require.NoError(t, m.Set(0, 0, 1))
	require.NoError(t, m.Set(1, 1, 2))

	path := filepath.Join(dir, "d_mat_1.txt")
	require.NoError(t, ioformat.WriteMatrix(path, m))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(data), "1")
}

func TestWriteMatrixUnknownExt(t *testing.T) {
	dir := t.TempDir()
	m, err := matops.NewDense(1, 1)
	require.NoError(t, err)

	err = ioformat.WriteMatrix(filepath.Join(dir, "m.csv"), m)
	require.ErrorIs(t, err, ioformat.ErrUnknownMatrixExt)
}

func TestWriteMatrixNPYHeader(t *testing.T) {
	dir := t.TempDir()
	m, err := matops.NewDense(2, 3)
	require.NoError(t, err)

	path := filepath.Join(dir, "b_mat_1.npy")
	require.NoError(t, ioformat.WriteMatrix(path, m))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, "\x93NUMPY\x01\x00", string(data[:8]))
}
