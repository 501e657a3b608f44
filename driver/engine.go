package driver

import (
	"context"
	"fmt"
	"math"

	"github.com/quanta-fri/gofri/compress"
	"github.com/quanta-fri/gofri/detbit"
	"github.com/quanta-fri/gofri/dvec"
	"github.com/quanta-fri/gofri/hamiltonian"
	"github.com/quanta-fri/gofri/randsrc"
	"github.com/quanta-fri/gofri/sampler"
	"github.com/quanta-fri/gofri/symmetry"
	"github.com/quanta-fri/gofri/transport"
)

// DetermEntry is one precomputed exact connection in the deterministic
// subspace: a Hamiltonian matrix element from position `from` to position
// `to`, applied every iteration outside the stochastic kernel.
type DetermEntry struct {
	From int
	To   int
	Mel  float64
}

// Stats reports the diagnostics produced by one Step call.
type Stats struct {
	Iteration   int
	Norm        float64
	Shift       float64
	Numerator   float64 // <H*trial|v>, diagonal terms only (see project)
	Denominator float64 // <trial|v>
	Energy      float64 // Shift estimator when no trial projection is wired
}

// Engine drives one process's share of the iteration: it owns a DistVec,
// the Hamiltonian tensors, the excitation samplers, and the transport
// group every collective step synchronizes across.
type Engine struct {
	cfg   Config
	table *symmetry.IrrepTable
	hCore *hamiltonian.HCore
	eris  *hamiltonian.ERIs
	v     *dvec.DistVec
	tp    transport.Collective
	src   randsrc.Source
	hb    *sampler.HeatBath

	determ []DetermEntry

	trial       *dvec.GatheredVec
	trialHashes []uint64

	iteration int
	prevNorm  float64

	Stats Stats
}

// NewEngine constructs an Engine over an already-populated DistVec (the
// walker population the caller seeded, e.g. a single Hartree-Fock
// determinant with unit weight).
func NewEngine(cfg Config, table *symmetry.IrrepTable, hCore *hamiltonian.HCore, eris *hamiltonian.ERIs, v *dvec.DistVec, tp transport.Collective, src randsrc.Source) (*Engine, error) {
	if cfg.TargetNonz == 0 {
		return nil, ErrZeroTargetNonz
	}
	e := &Engine{
		cfg:   cfg,
		table: table,
		hCore: hCore,
		eris:  eris,
		v:     v,
		tp:    tp,
		src:   src,
		Stats: Stats{Shift: cfg.Shift},
	}
	if cfg.UseHeatBath {
		hb := &sampler.HeatBath{}
		if err := hb.Setup(eris, cfg.NOrb, cfg.NFrz); err != nil {
			return nil, fmt.Errorf("NewEngine: heat-bath setup: %w", err)
		}
		e.hb = hb
	}

	return e, nil
}

// SetDeterministicSubspace installs the precomputed exact connections for
// the positions below cfg.NDetermRank.
func (e *Engine) SetDeterministicSubspace(entries []DetermEntry) { e.determ = entries }

// SetTrial installs the gathered trial vector Step's projection phase
// overlaps against, precomputing one hash per trial index so repeated
// Dot calls across iterations don't re-derive them.
func (e *Engine) SetTrial(trial *dvec.GatheredVec) {
	e.trial = trial
	if trial == nil {
		e.trialHashes = nil
		return
	}
	scr := make([]uint32, 2*e.cfg.NOrb)
	for i := range scr {
		scr[i] = uint32(11*i + 5)
	}
	e.trialHashes = make([]uint64, len(trial.Idx))
	for i, idx := range trial.Idx {
		occ, err := detbit.EnumerateSetBits(idx, e.cfg.NElec)
		if err != nil {
			continue
		}
		e.trialHashes[i] = dvec.HashLocal(occ, scr)
	}
}

// livePositions returns the occupied positions of v in ascending order,
// skipping vacated slots.
func (e *Engine) livePositions() []int {
	out := make([]int, 0, e.v.NNonz())
	for pos := 0; pos < e.v.Len(); pos++ {
		if e.v.IndexAt(pos) != nil {
			out = append(out, pos)
		}
	}

	return out
}

// Step performs one full iteration: proposal + compression, matrix-element
// evaluation, flush, death/clone, second compression, shift adjustment, and
// projection. Checkpointing is left to the caller (ioformat.SaveCheckpoint),
// invoked every cfg.SaveInterval iterations using Stats.Iteration.
func (e *Engine) Step(ctx context.Context) error {
	live := e.livePositions()
	if len(live) == 0 {
		return ErrNoLiveDeterminants
	}

	if err := e.applyDeterministic(); err != nil {
		return fmt.Errorf("Step: deterministic subspace: %w", err)
	}

	if err := e.proposeAndSpawn(ctx, live); err != nil {
		return fmt.Errorf("Step: propose/spawn: %w", err)
	}

	if err := e.v.PerformAdd(e.v); err != nil {
		return fmt.Errorf("Step: flush: %w", err)
	}

	e.deathClone(live)

	norm, err := e.compressPopulation(ctx, live)
	if err != nil {
		return fmt.Errorf("Step: compression: %w", err)
	}

	e.iteration++
	e.Stats.Iteration = e.iteration
	e.Stats.Norm = norm

	if e.iteration%e.cfg.ShiftInterval == 0 {
		e.adjustShift(norm)
	}
	e.prevNorm = norm

	if e.trial != nil {
		e.project()
	} else {
		e.Stats.Energy = e.Stats.Shift
	}

	return nil
}

// stochasticLive returns the live positions at or above the deterministic
// subspace rank — the portion Step's stochastic proposal/compression
// machinery actually touches.
func (e *Engine) stochasticLive(live []int) []int {
	if e.cfg.NDetermRank <= 0 {
		return live
	}
	out := live[:0:0]
	for _, pos := range live {
		if pos >= e.cfg.NDetermRank {
			out = append(out, pos)
		}
	}

	return out
}

// applyDeterministic applies every precomputed exact connection in the
// deterministic subspace to the current value row, exactly (no compression,
// no randomness), per SPEC_FULL.md's semi-stochastic subspace contract.
func (e *Engine) applyDeterministic() error {
	if len(e.determ) == 0 {
		return nil
	}

	contrib := make(map[int]float64, len(e.determ))
	for _, d := range e.determ {
		if d.From >= e.v.Len() || e.v.IndexAt(d.From) == nil {
			continue
		}
		contrib[d.To] += -e.cfg.Eps * d.Mel * e.v.ValueAt(d.From)
	}
	for pos, c := range contrib {
		if pos < e.v.Len() && e.v.IndexAt(pos) != nil {
			e.v.SetValueAt(pos, e.v.ValueAt(pos)+c)
		}
	}

	return nil
}

// proposeAndSpawn runs steps 1-3 of the engine: row weighting, hierarchical
// compression of the spawn budget across stochastic live positions, then
// matrix-element evaluation and sign-correct staging of each surviving
// (position, excitation) draw.
func (e *Engine) proposeAndSpawn(ctx context.Context, live []int) error {
	stoch := e.stochasticLive(live)
	if len(stoch) == 0 {
		return nil
	}

	rowVals := make([]float64, len(stoch))
	for i, pos := range stoch {
		rowVals[i] = math.Abs(e.v.ValueAt(pos))
	}
	rows := make([]compress.RowWeights, len(stoch))
	for i := range rows {
		rows[i] = compress.RowWeights{NDiv: 1}
	}

	kept, residualNorm, err := compress.FindPreserve(rowVals, e.cfg.MatrSamp, e.tp)
	if err != nil {
		return fmt.Errorf("FindPreserve: %w", err)
	}
	nKept := 0
	for _, k := range kept {
		if k {
			nKept++
		}
	}
	globalKept, err := e.tp.AllReduceSum(ctx, float64(nKept))
	if err != nil {
		return fmt.Errorf("AllReduceSum kept: %w", err)
	}
	nRemaining := e.cfg.MatrSamp - int(globalKept)
	u := 0.0
	if nRemaining > 0 {
		u = e.src.Float64() * (residualNorm / float64(nRemaining))
	}

	samples, err := compress.CompSub(rowVals, rows, e.cfg.MatrSamp, u, e.src.Float64, e.tp)
	if err != nil {
		return fmt.Errorf("CompSub: %w", err)
	}

	for _, s := range samples {
		pos := stoch[s.Row]
		if err := e.spawnFrom(pos, s.Val, rowVals[s.Row]); err != nil {
			return err
		}
	}

	return nil
}

// spawnFrom draws one excitation from position pos under the configured
// proposal distribution, computes the signed matrix element and fermionic
// parity of applying it, and stages the resulting spawn at the destination
// determinant's owning process. budgeted is the compressed magnitude
// CompSub assigned this row; parentWeight is the original row weight (used
// to recover the parent's sign, since CompSub operates on |value|).
func (e *Engine) spawnFrom(pos int, budgeted, parentWeight float64) error {
	if parentWeight == 0 {
		return nil
	}
	det := e.v.IndexAt(pos)
	occ := e.v.OccOrbsAt(pos)
	parentSign := e.v.ValueAt(pos) / parentWeight

	draw := e.draw(det, occ)
	if draw.Probability <= 0 {
		return nil
	}

	var parity int
	var next detbit.Det
	var mel float64
	if draw.Excitation.IsDouble() {
		parity, next = detbit.DoubleExcitationParity(det, draw.Excitation.Orbs[0], draw.Excitation.Orbs[1], draw.Excitation.Orbs[2], draw.Excitation.Orbs[3])
		mel = hamiltonian.DoubleMatrixElementMagnitude(draw.Excitation, e.eris, e.cfg.NOrb, e.cfg.NFrz)
	} else {
		parity, next = detbit.SingleExcitationParity(det, draw.Excitation.Orbs[0], draw.Excitation.Orbs[1])
		mel = hamiltonian.SingleMatrixElementMagnitude(draw.Excitation, occ, e.hCore, e.eris, e.cfg.NOrb, e.cfg.NFrz)
	}
	if mel == 0 {
		return nil
	}

	spawnVal := -e.cfg.Eps * parentSign * budgeted * float64(parity) * mel / draw.Probability
	_, err := e.v.Add(next, spawnVal, true)

	return err
}

// draw proposes one excitation from det under the configured proposal
// distribution.
func (e *Engine) draw(det detbit.Det, occ []uint16) sampler.Draw {
	if e.cfg.UseHeatBath && e.hb != nil {
		draws := sampler.HeatBathNormalized(e.hb, det, occ, e.table, 1, e.cfg.PDouble, e.src)
		if len(draws) == 0 {
			return sampler.Draw{}
		}

		return draws[0]
	}
	draws := sampler.NearUniform(det, occ, e.table, 1, e.cfg.PDouble, e.src)
	if len(draws) == 0 {
		return sampler.Draw{}
	}

	return draws[0]
}

// deathClone applies the diagonal death/clone step in place over every
// live position: v[p] *= 1 - eps*(H_aa - shift). Positions are never
// deleted here (watermarks); deletion happens only in compressPopulation
// via DelAtPos once a value is exactly zero.
func (e *Engine) deathClone(live []int) {
	for _, pos := range live {
		occ := e.v.OccOrbsAt(pos)
		diag := hamiltonian.DiagonalMatrixElement(occ, e.hCore, e.eris, e.cfg.NOrb, e.cfg.NFrz)
		factor := 1 - e.cfg.Eps*(diag-e.Stats.Shift)
		e.v.SetValueAt(pos, e.v.ValueAt(pos)*factor)
	}
}

// compressPopulation runs the second compression (FindPreserve+SysComp) on
// the stochastic portion of the vector down to cfg.TargetNonz survivors,
// evicting positions that end up exactly zero, and returns the resulting
// global one-norm (deterministic-subspace norm included).
func (e *Engine) compressPopulation(ctx context.Context, live []int) (float64, error) {
	stoch := e.stochasticLive(live)
	vals := make([]float64, len(stoch))
	for i, pos := range stoch {
		vals[i] = e.v.ValueAt(pos)
	}

	kept, residualNorm, err := compress.FindPreserve(absAll(vals), e.cfg.TargetNonz, e.tp)
	if err != nil {
		return 0, fmt.Errorf("FindPreserve: %w", err)
	}
	nKept := 0
	for _, k := range kept {
		if k {
			nKept++
		}
	}
	globalKept, err := e.tp.AllReduceSum(ctx, float64(nKept))
	if err != nil {
		return 0, fmt.Errorf("AllReduceSum kept: %w", err)
	}
	nRemaining := e.cfg.TargetNonz - int(globalKept)
	if nRemaining > 0 {
		u := e.src.Float64() * (residualNorm / float64(nRemaining))
		samples, err := compress.SysComp(absAll(vals), kept, residualNorm, nRemaining, u, e.tp)
		if err != nil {
			return 0, fmt.Errorf("SysComp: %w", err)
		}

		resampled := make([]float64, len(vals))
		for i, k := range kept {
			if k {
				resampled[i] = vals[i]
			}
		}
		for _, s := range samples {
			sign := 1.0
			if vals[s.Pos] < 0 {
				sign = -1
			}
			resampled[s.Pos] += sign * s.Val
		}
		vals = resampled
	}

	var localNorm float64
	for i, pos := range stoch {
		e.v.SetValueAt(pos, vals[i])
		localNorm += math.Abs(vals[i])
		if vals[i] == 0 {
			e.v.DelAtPos(pos)
		}
	}
	if e.cfg.NDetermRank > 0 {
		for _, pos := range live {
			if pos < e.cfg.NDetermRank {
				localNorm += math.Abs(e.v.ValueAt(pos))
			}
		}
	}

	globalNorm, err := e.tp.AllReduceSum(ctx, localNorm)
	if err != nil {
		return 0, fmt.Errorf("AllReduceSum norm: %w", err)
	}

	return globalNorm, nil
}

func absAll(vals []float64) []float64 {
	out := make([]float64, len(vals))
	for i, v := range vals {
		out[i] = math.Abs(v)
	}

	return out
}

// adjustShift updates the energy shift every cfg.ShiftInterval iterations:
// shift -= (damp/(eps*shiftInterval)) * ln(norm/prevNorm).
func (e *Engine) adjustShift(norm float64) {
	if e.prevNorm <= 0 || norm <= 0 {
		return
	}
	e.Stats.Shift -= (e.cfg.Damp / (e.cfg.Eps * float64(e.cfg.ShiftInterval))) * math.Log(norm/e.prevNorm)
}

// project computes <trial|v> and <H*trial|v> (the latter approximated by
// the diagonal-weighted trial overlap, sum_i trial_i*H_ii*v_i; off-diagonal
// Hamiltonian connections are not included) and records them for the
// energy estimator.
func (e *Engine) project() {
	denom := e.v.Dot(e.trial.Idx, e.trial.Vals, e.trialHashes)
	var num float64
	for i, idx := range e.trial.Idx {
		pos, ok := e.v.PosOf(idx)
		if !ok {
			continue
		}
		diag := hamiltonian.DiagonalMatrixElement(e.v.OccOrbsAt(pos), e.hCore, e.eris, e.cfg.NOrb, e.cfg.NFrz)
		num += e.trial.Vals[i] * diag * e.v.ValueAt(pos)
	}
	e.Stats.Denominator = denom
	e.Stats.Numerator = num
	if denom != 0 {
		e.Stats.Energy = e.Stats.Numerator / denom
	}
}
