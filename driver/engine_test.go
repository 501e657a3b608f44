package driver_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/quanta-fri/gofri/detbit"
	"github.com/quanta-fri/gofri/driver"
	"github.com/quanta-fri/gofri/dvec"
	"github.com/quanta-fri/gofri/hamiltonian"
	"github.com/quanta-fri/gofri/randsrc"
	"github.com/quanta-fri/gofri/symmetry"
	"github.com/quanta-fri/gofri/transport"
)

func smallSystem(t *testing.T) (*symmetry.IrrepTable, *hamiltonian.HCore, *hamiltonian.ERIs) {
	t.Helper()
	nOrb := 4
	symm := []uint8{0, 0, 0, 0}
	table, err := symmetry.NewIrrepTable(symm, nOrb)
	require.NoError(t, err)

	hCore, err := hamiltonian.NewHCore(nOrb)
	require.NoError(t, err)
	for i := 0; i < nOrb; i++ {
		hCore.Set(i, i, -1.0-float64(i)*0.1)
	}

	eris, err := hamiltonian.NewERIs(nOrb)
	require.NoError(t, err)
	for p := 0; p < nOrb; p++ {
		for q := 0; q < nOrb; q++ {
			eris.Set(p, q, p, q, 0.3)
		}
	}

	return table, hCore, eris
}

func seedHF(t *testing.T, v *dvec.DistVec, nOrb, nElec int) {
	t.Helper()
	det := detbit.NewDet(nOrb)
	for i := 0; i < nElec/2; i++ {
		detbit.SetBit(det, i)
		detbit.SetBit(det, nOrb+i)
	}
	require.NoError(t, v.SetCurrVecIdx(0))
	_, err := v.Add(det, 1.0, true)
	require.NoError(t, err)
	require.NoError(t, v.PerformAdd(v))
}

func TestStepRunsAndPreservesFiniteNorm(t *testing.T) {
	nOrb, nElec := 4, 2
	table, hCore, eris := smallSystem(t)

	common := make([]uint32, 2*nOrb)
	local := make([]uint32, 2*nOrb)
	for i := range common {
		common[i] = uint32(5*i + 1)
		local[i] = uint32(9*i + 2)
	}

	group := transport.NewLocalGroup(1)
	v := dvec.New(nOrb, nElec, 1, 0, 1, common, local)
	v.Attach(group[0], 4096)
	seedHF(t, v, nOrb, nElec)

	cfg := driver.Config{
		NOrb: nOrb, NElec: nElec, NFrz: 0,
		PDouble: 0.5, Eps: 1e-3, Shift: 0, Damp: 0.1,
		ShiftInterval: 2, SaveInterval: 1000,
		TargetNonz: 50, MatrSamp: 50,
	}
	src := randsrc.NewStdSource(42)
	eng, err := driver.NewEngine(cfg, table, hCore, eris, v, group[0], src)
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		err := eng.Step(context.Background())
		require.NoError(t, err)
	}

	require.False(t, eng.Stats.Norm < 0)
	require.Equal(t, 5, eng.Stats.Iteration)
}

func TestStepWithHeatBath(t *testing.T) {
	nOrb, nElec := 4, 2
	table, hCore, eris := smallSystem(t)

	common := make([]uint32, 2*nOrb)
	local := make([]uint32, 2*nOrb)
	for i := range common {
		common[i] = uint32(3*i + 7)
		local[i] = uint32(17*i + 4)
	}

	group := transport.NewLocalGroup(1)
	v := dvec.New(nOrb, nElec, 1, 0, 1, common, local)
	v.Attach(group[0], 4096)
	seedHF(t, v, nOrb, nElec)

	cfg := driver.Config{
		NOrb: nOrb, NElec: nElec, NFrz: 0,
		PDouble: 0.5, Eps: 1e-3, Shift: 0, Damp: 0.1,
		ShiftInterval: 2, SaveInterval: 1000,
		TargetNonz: 50, MatrSamp: 50,
		UseHeatBath: true,
	}
	src := randsrc.NewStdSource(11)
	eng, err := driver.NewEngine(cfg, table, hCore, eris, v, group[0], src)
	require.NoError(t, err)

	require.NoError(t, eng.Step(context.Background()))
}

func TestStepNoLiveDeterminants(t *testing.T) {
	nOrb, nElec := 4, 2
	table, hCore, eris := smallSystem(t)

	common := make([]uint32, 2*nOrb)
	local := make([]uint32, 2*nOrb)

	group := transport.NewLocalGroup(1)
	v := dvec.New(nOrb, nElec, 1, 0, 1, common, local)
	v.Attach(group[0], 4096)

	cfg := driver.Config{NOrb: nOrb, NElec: nElec, ShiftInterval: 1, TargetNonz: 10, MatrSamp: 10, Eps: 1e-3}
	src := randsrc.NewStdSource(1)
	eng, err := driver.NewEngine(cfg, table, hCore, eris, v, group[0], src)
	require.NoError(t, err)

	err = eng.Step(context.Background())
	require.ErrorIs(t, err, driver.ErrNoLiveDeterminants)
}
