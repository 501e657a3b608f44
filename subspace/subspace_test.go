package subspace_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/quanta-fri/gofri/detbit"
	"github.com/quanta-fri/gofri/dvec"
	"github.com/quanta-fri/gofri/hamiltonian"
	"github.com/quanta-fri/gofri/randsrc"
	"github.com/quanta-fri/gofri/subspace"
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

func scramblers(nOrb int) ([]uint32, []uint32) {
	common := make([]uint32, 2*nOrb)
	local := make([]uint32, 2*nOrb)
	for i := range common {
		common[i] = uint32(5*i + 1)
		local[i] = uint32(9*i + 2)
	}

	return common, local
}

// seedIterates occupies row t (t < nTrial) with a distinct singly-excited
// starting determinant, one per iterate, so the nTrial iterates begin
// linearly independent.
func seedIterates(t *testing.T, v *dvec.DistVec, nOrb, nElec, nTrial int) []detbit.Det {
	t.Helper()
	dets := make([]detbit.Det, nTrial)
	for k := 0; k < nTrial; k++ {
		det := detbit.NewDet(nOrb)
		for i := 0; i < nElec/2; i++ {
			detbit.SetBit(det, i)
			detbit.SetBit(det, nOrb+i)
		}
		if k > 0 {
			detbit.ClearBit(det, k-1)
			detbit.SetBit(det, nOrb-k)
		}
		require.NoError(t, v.SetCurrVecIdx(k))
		_, err := v.Add(det, 1.0, true)
		require.NoError(t, err)
		require.NoError(t, v.PerformAdd(v))
		dets[k] = det
	}

	return dets
}

func buildTrials(t *testing.T, dets []detbit.Det) []*dvec.GatheredVec {
	t.Helper()
	trials := make([]*dvec.GatheredVec, len(dets))
	for i, det := range dets {
		trials[i] = &dvec.GatheredVec{Idx: []detbit.Det{det}, Vals: []float64{1.0}}
	}

	return trials
}

func TestStepAdvancesAndRestartsOnInterval(t *testing.T) {
	nOrb, nElec, nTrial := 4, 2, 2
	table, hCore, eris := smallSystem(t)
	common, local := scramblers(nOrb)

	group := transport.NewLocalGroup(1)
	v := dvec.New(nOrb, nElec, 2*nTrial, 0, 1, common, local)
	v.Attach(group[0], 4096)
	dets := seedIterates(t, v, nOrb, nElec, nTrial)
	trials := buildTrials(t, dets)

	cfg := subspace.New(
		subspace.WithOrbitals(nOrb, nElec, 0),
		subspace.WithTrialCount(nTrial),
		subspace.WithTimeStep(1e-3),
		subspace.WithProposalMix(0.5, 50),
		subspace.WithPopulationControl(50),
		subspace.WithRestart(subspace.RestartHInv, 5),
	)
	src := randsrc.NewStdSource(7)
	d, err := subspace.NewDriver(cfg, table, hCore, eris, v, group[0], src, trials)
	require.NoError(t, err)

	for i := 0; i < 4; i++ {
		require.NoError(t, d.Step(context.Background()))
		require.Equal(t, i+1, d.Stats.Iteration)
		require.False(t, d.Stats.Restarted)
	}

	require.NoError(t, d.Step(context.Background()))
	require.True(t, d.Stats.Restarted)
}

func TestStepWithEigRestartReportsEigenvalues(t *testing.T) {
	nOrb, nElec, nTrial := 4, 2, 2
	table, hCore, eris := smallSystem(t)
	common, local := scramblers(nOrb)

	group := transport.NewLocalGroup(1)
	v := dvec.New(nOrb, nElec, 2*nTrial, 0, 1, common, local)
	v.Attach(group[0], 4096)
	dets := seedIterates(t, v, nOrb, nElec, nTrial)
	trials := buildTrials(t, dets)

	cfg := subspace.New(
		subspace.WithOrbitals(nOrb, nElec, 0),
		subspace.WithTrialCount(nTrial),
		subspace.WithTimeStep(1e-3),
		subspace.WithProposalMix(0.5, 50),
		subspace.WithPopulationControl(50),
		subspace.WithRestart(subspace.RestartEig, 1),
	)
	src := randsrc.NewStdSource(3)
	d, err := subspace.NewDriver(cfg, table, hCore, eris, v, group[0], src, trials)
	require.NoError(t, err)

	require.NoError(t, d.Step(context.Background()))
	require.True(t, d.Stats.Restarted)
	require.Len(t, d.Stats.Eigenvalues, nTrial)
}

func TestNewDriverRejectsMismatchedTrialCount(t *testing.T) {
	nOrb, nElec, nTrial := 4, 2, 2
	table, hCore, eris := smallSystem(t)
	common, local := scramblers(nOrb)

	group := transport.NewLocalGroup(1)
	v := dvec.New(nOrb, nElec, 2*nTrial, 0, 1, common, local)
	v.Attach(group[0], 4096)

	cfg := subspace.New(
		subspace.WithOrbitals(nOrb, nElec, 0),
		subspace.WithTrialCount(nTrial),
		subspace.WithPopulationControl(50),
	)
	src := randsrc.NewStdSource(1)
	_, err := subspace.NewDriver(cfg, table, hCore, eris, v, group[0], src, nil)
	require.Error(t, err)
}

func TestNewDriverRejectsZeroTargetNonz(t *testing.T) {
	nOrb, nElec, nTrial := 4, 2, 1
	table, hCore, eris := smallSystem(t)
	common, local := scramblers(nOrb)

	group := transport.NewLocalGroup(1)
	v := dvec.New(nOrb, nElec, 2*nTrial, 0, 1, common, local)
	v.Attach(group[0], 4096)
	dets := seedIterates(t, v, nOrb, nElec, nTrial)
	trials := buildTrials(t, dets)

	cfg := subspace.New(
		subspace.WithOrbitals(nOrb, nElec, 0),
		subspace.WithTrialCount(nTrial),
	)
	src := randsrc.NewStdSource(1)
	_, err := subspace.NewDriver(cfg, table, hCore, eris, v, group[0], src, trials)
	require.ErrorIs(t, err, subspace.ErrZeroTargetNonz)
}
