package subspace

import (
	"context"
	"fmt"
	"math"
	"path/filepath"

	"github.com/quanta-fri/gofri/compress"
	"github.com/quanta-fri/gofri/detbit"
	"github.com/quanta-fri/gofri/dvec"
	"github.com/quanta-fri/gofri/hamiltonian"
	"github.com/quanta-fri/gofri/ioformat"
	"github.com/quanta-fri/gofri/matops"
	"github.com/quanta-fri/gofri/randsrc"
	"github.com/quanta-fri/gofri/sampler"
	"github.com/quanta-fri/gofri/symmetry"
	"github.com/quanta-fri/gofri/transport"
)

// Stats reports the diagnostics produced by one Step call.
type Stats struct {
	Iteration   int
	Restarted   bool
	Eigenvalues []float64 // populated only after an Eig restart
}

// Driver evolves cfg.NTrial co-located iterates of a dvec.DistVec (2*NTrial
// rows: a "current" half and a "next" half, swapped every iteration) under
// the Hamiltonian, tracking their overlap against a fixed set of trial
// vectors and periodically re-projecting the iterates onto the subspace
// spanned by the accumulated overlap/projection matrices.
type Driver struct {
	cfg   Config
	table *symmetry.IrrepTable
	hCore *hamiltonian.HCore
	eris  *hamiltonian.ERIs
	v     *dvec.DistVec
	tp    transport.Collective
	src   randsrc.Source
	hb    *sampler.HeatBath

	trials []*dvec.GatheredVec

	curHalf bool // false: current=[0,NTrial), next=[NTrial,2*NTrial); true: swapped

	iteration int
	outDir    string

	D, B *matops.Dense

	Stats Stats
}

// NewDriver constructs a Driver over an already-seeded DistVec with
// 2*cfg.NTrial rows: rows [0,NTrial) hold the initial iterates.
func NewDriver(cfg Config, table *symmetry.IrrepTable, hCore *hamiltonian.HCore, eris *hamiltonian.ERIs, v *dvec.DistVec, tp transport.Collective, src randsrc.Source, trials []*dvec.GatheredVec) (*Driver, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if len(trials) != cfg.NTrial {
		return nil, fmt.Errorf("NewDriver: got %d trial vectors, want %d", len(trials), cfg.NTrial)
	}
	if v.NRows() != 2*cfg.NTrial {
		return nil, fmt.Errorf("NewDriver: DistVec has %d rows, want %d", v.NRows(), 2*cfg.NTrial)
	}

	d := &Driver{cfg: cfg, table: table, hCore: hCore, eris: eris, v: v, tp: tp, src: src, trials: trials}
	if cfg.UseHeatBath {
		hb := &sampler.HeatBath{}
		if err := hb.Setup(eris, cfg.NOrb, cfg.NFrz); err != nil {
			return nil, fmt.Errorf("NewDriver: heat-bath setup: %w", err)
		}
		d.hb = hb
	}

	return d, nil
}

// SetOutputDir enables writing the overlap/projection matrices to disk
// every iteration, via ioformat.WriteMatrix, as d_mat_<iter>.txt /
// b_mat_<iter>.txt. Disabled (the zero value) by default.
func (d *Driver) SetOutputDir(dir string) { d.outDir = dir }

// currentRow returns the row index of iterate t's current-half value.
func (d *Driver) currentRow(t int) int {
	if d.curHalf {
		return d.cfg.NTrial + t
	}

	return t
}

// nextRow returns the row index of iterate t's next-half value.
func (d *Driver) nextRow(t int) int {
	if d.curHalf {
		return t
	}

	return d.cfg.NTrial + t
}

func (d *Driver) livePositions() []int {
	out := make([]int, 0, d.v.Len())
	for pos := 0; pos < d.v.Len(); pos++ {
		if d.v.IndexAt(pos) != nil {
			out = append(out, pos)
		}
	}

	return out
}

// Step performs one outer Arnoldi iteration: normalise, overlap, compress,
// multiply, project, optionally restart, then swap current/next halves.
func (d *Driver) Step(ctx context.Context) error {
	d.Stats.Restarted = false
	d.Stats.Eigenvalues = nil

	if err := d.normalize(ctx); err != nil {
		return fmt.Errorf("Step: normalize: %w", err)
	}

	D, err := d.overlap(ctx, func(t int) int { return d.currentRow(t) })
	if err != nil {
		return fmt.Errorf("Step: overlap: %w", err)
	}
	d.D = D

	for t := 0; t < d.cfg.NTrial; t++ {
		if err := d.compressIterate(t); err != nil {
			return fmt.Errorf("Step: compress iterate %d: %w", t, err)
		}
	}

	if err := d.multiply(); err != nil {
		return fmt.Errorf("Step: multiply: %w", err)
	}

	B, err := d.overlap(ctx, func(t int) int { return d.nextRow(t) })
	if err != nil {
		return fmt.Errorf("Step: projection: %w", err)
	}
	d.B = B

	d.iteration++
	d.Stats.Iteration = d.iteration

	if d.outDir != "" {
		if err := d.writeMatrices(); err != nil {
			return fmt.Errorf("Step: write matrices: %w", err)
		}
	}

	if d.cfg.RestartInt > 0 && d.iteration%d.cfg.RestartInt == 0 {
		if err := d.restart(); err != nil {
			return fmt.Errorf("Step: restart: %w", err)
		}
		d.Stats.Restarted = true
	}

	d.curHalf = !d.curHalf

	return nil
}

// normalize rescales every iterate's current-half values by the chosen
// NormTechnique, using transport.Collective.AllReduceSum to make each
// iterate's one-norm global before dividing.
func (d *Driver) normalize(ctx context.Context) error {
	if d.cfg.Norm == NormNone {
		return nil
	}

	live := d.livePositions()
	norms := make([]float64, d.cfg.NTrial)
	for t := 0; t < d.cfg.NTrial; t++ {
		row := d.currentRow(t)
		var local float64
		for _, pos := range live {
			local += math.Abs(d.v.ValueAtRow(row, pos))
		}
		global, err := d.tp.AllReduceSum(ctx, local)
		if err != nil {
			return err
		}
		norms[t] = global
	}

	scale := norms
	if d.cfg.Norm == NormMaxOneNorm {
		maxNorm := 0.0
		for _, n := range norms {
			if n > maxNorm {
				maxNorm = n
			}
		}
		scale = make([]float64, d.cfg.NTrial)
		for i := range scale {
			scale[i] = maxNorm
		}
	}

	for t := 0; t < d.cfg.NTrial; t++ {
		if scale[t] == 0 {
			continue
		}
		row := d.currentRow(t)
		for _, pos := range live {
			d.v.SetValueAtRow(row, pos, d.v.ValueAtRow(row, pos)/scale[t])
		}
	}

	return nil
}

// overlap computes an NTrial x NTrial matrix whose (t,v) entry is
// <trial_t | rowOf(v)>, local dot plus AllReduceSum.
func (d *Driver) overlap(ctx context.Context, rowOf func(int) int) (*matops.Dense, error) {
	m, err := matops.NewDense(d.cfg.NTrial, d.cfg.NTrial)
	if err != nil {
		return nil, err
	}

	for t := 0; t < d.cfg.NTrial; t++ {
		trial := d.trials[t]
		for v := 0; v < d.cfg.NTrial; v++ {
			row := rowOf(v)
			var local float64
			for i, idx := range trial.Idx {
				pos, ok := d.v.PosOf(idx)
				if !ok {
					continue
				}
				local += d.v.ValueAtRow(row, pos) * trial.Vals[i]
			}
			global, err := d.tp.AllReduceSum(ctx, local)
			if err != nil {
				return nil, err
			}
			if err := m.Set(t, v, global); err != nil {
				return nil, err
			}
		}
	}

	return m, nil
}

// compressIterate runs FindPreserve+SysComp on iterate t's current-half
// values down to cfg.TargetNonz survivors. Positions are only evicted via
// DelAtPos, which itself only deletes once every co-located row (including
// every other iterate's current/next half) is zero there, so compressing
// one iterate never disturbs another's population at a shared position.
func (d *Driver) compressIterate(t int) error {
	row := d.currentRow(t)
	live := d.livePositions()
	if len(live) == 0 {
		return nil
	}

	vals := make([]float64, len(live))
	for i, pos := range live {
		vals[i] = d.v.ValueAtRow(row, pos)
	}

	absVals := absAll(vals)
	kept, residualNorm, err := compress.FindPreserve(absVals, d.cfg.TargetNonz, d.tp)
	if err != nil {
		return err
	}

	nKept := 0
	for _, k := range kept {
		if k {
			nKept++
		}
	}
	globalKept, err := d.tp.AllReduceSum(context.Background(), float64(nKept))
	if err != nil {
		return err
	}
	nRemaining := d.cfg.TargetNonz - int(globalKept)

	resampled := make([]float64, len(vals))
	for i, k := range kept {
		if k {
			resampled[i] = vals[i]
		}
	}
	if nRemaining > 0 {
		u := d.src.Float64() * (residualNorm / float64(nRemaining))
		samples, err := compress.SysComp(absVals, kept, residualNorm, nRemaining, u, d.tp)
		if err != nil {
			return err
		}
		for _, s := range samples {
			sign := 1.0
			if vals[s.Pos] < 0 {
				sign = -1
			}
			resampled[s.Pos] += sign * s.Val
		}
	}

	for i, pos := range live {
		d.v.SetValueAtRow(row, pos, resampled[i])
		if resampled[i] == 0 {
			d.v.DelAtPos(pos)
		}
	}

	return nil
}

// multiply computes next_t <- (I - eps*H)*current_t for every iterate t:
// stage and flush the off-diagonal spawns into the next-half row first,
// then add the diagonal term current[pos]*(1-eps*H_aa) on top for every
// position current_t already occupied (never an additional diagonal scaling
// of the freshly spawned contributions, which the off-diagonal term alone
// accounts for).
func (d *Driver) multiply() error {
	for t := 0; t < d.cfg.NTrial; t++ {
		cur := d.currentRow(t)
		nxt := d.nextRow(t)
		live := d.livePositions()
		if len(live) == 0 {
			continue
		}

		rowVals := make([]float64, len(live))
		for i, pos := range live {
			rowVals[i] = math.Abs(d.v.ValueAtRow(cur, pos))
		}
		rows := make([]compress.RowWeights, len(live))
		for i := range rows {
			rows[i] = compress.RowWeights{NDiv: 1}
		}

		kept, residualNorm, err := compress.FindPreserve(rowVals, d.cfg.MatrSamp, d.tp)
		if err != nil {
			return err
		}
		nKept := 0
		for _, k := range kept {
			if k {
				nKept++
			}
		}
		globalKept, err := d.tp.AllReduceSum(context.Background(), float64(nKept))
		if err != nil {
			return err
		}
		nRemaining := d.cfg.MatrSamp - int(globalKept)
		u := 0.0
		if nRemaining > 0 {
			u = d.src.Float64() * (residualNorm / float64(nRemaining))
		}
		samples, err := compress.CompSub(rowVals, rows, d.cfg.MatrSamp, u, d.src.Float64, d.tp)
		if err != nil {
			return err
		}

		for _, s := range samples {
			pos := live[s.Row]
			parentWeight := rowVals[s.Row]
			if parentWeight == 0 {
				continue
			}
			det := d.v.IndexAt(pos)
			occ := d.v.OccOrbsAt(pos)
			parentSign := d.v.ValueAtRow(cur, pos) / parentWeight

			draw := d.draw(det, occ)
			if draw.Probability <= 0 {
				continue
			}

			var parity int
			var next detbit.Det
			var mel float64
			if draw.Excitation.IsDouble() {
				parity, next = detbit.DoubleExcitationParity(det, draw.Excitation.Orbs[0], draw.Excitation.Orbs[1], draw.Excitation.Orbs[2], draw.Excitation.Orbs[3])
				mel = hamiltonian.DoubleMatrixElementMagnitude(draw.Excitation, d.eris, d.cfg.NOrb, d.cfg.NFrz)
			} else {
				parity, next = detbit.SingleExcitationParity(det, draw.Excitation.Orbs[0], draw.Excitation.Orbs[1])
				mel = hamiltonian.SingleMatrixElementMagnitude(draw.Excitation, occ, d.hCore, d.eris, d.cfg.NOrb, d.cfg.NFrz)
			}
			if mel == 0 {
				continue
			}

			spawnVal := -d.cfg.Eps * parentSign * s.Val * float64(parity) * mel / draw.Probability
			if _, err := d.v.Add(next, spawnVal, true); err != nil {
				return err
			}
		}

		if err := d.v.SetCurrVecIdx(nxt); err != nil {
			return err
		}
		if err := d.v.PerformAdd(d.v); err != nil {
			return err
		}

		for _, pos := range live {
			occ := d.v.OccOrbsAt(pos)
			diag := hamiltonian.DiagonalMatrixElement(occ, d.hCore, d.eris, d.cfg.NOrb, d.cfg.NFrz)
			factor := 1 - d.cfg.Eps*diag
			d.v.AddValueAtRow(nxt, pos, d.v.ValueAtRow(cur, pos)*factor)
		}
	}

	return nil
}

// draw proposes one excitation from det under the configured proposal
// distribution.
func (d *Driver) draw(det detbit.Det, occ []uint16) sampler.Draw {
	if d.cfg.UseHeatBath && d.hb != nil {
		draws := sampler.HeatBathNormalized(d.hb, det, occ, d.table, 1, d.cfg.PDouble, d.src)
		if len(draws) == 0 {
			return sampler.Draw{}
		}

		return draws[0]
	}
	draws := sampler.NearUniform(det, occ, d.table, 1, d.cfg.PDouble, d.src)
	if len(draws) == 0 {
		return sampler.Draw{}
	}

	return draws[0]
}

func (d *Driver) writeMatrices() error {
	dPath := filepath.Join(d.outDir, fmt.Sprintf("d_mat_%d.txt", d.iteration))
	bPath := filepath.Join(d.outDir, fmt.Sprintf("b_mat_%d.txt", d.iteration))
	if err := ioformat.WriteMatrix(dPath, d.D); err != nil {
		return err
	}

	return ioformat.WriteMatrix(bPath, d.B)
}

// restart recombines every iterate's next-half values against a coefficient
// matrix X derived from the overlap (D) and projection (B) matrices, per
// cfg.Restart:
//
//   - RestartEig solves the generalised eigenproblem purely for the
//     diagnostic eigenvalues reported in Stats (matops' QR-algorithm
//     eigensolver does not produce eigenvectors for a non-symmetric
//     problem), and uses D^-1*B itself -- the same matrix whose eigenvalues
//     were just computed -- as the recombination operator.
//   - RestartHInv recombines by B^-1.
//   - RestartRInv QR-factors B and recombines by R^-1.
func (d *Driver) restart() error {
	var X *matops.Dense

	switch d.cfg.Restart {
	case RestartEig:
		dInv, err := matops.Inverse(d.D)
		if err != nil {
			return fmt.Errorf("restart: invert D: %w", err)
		}
		X, err = dInv.Mul(d.B)
		if err != nil {
			return fmt.Errorf("restart: D^-1*B: %w", err)
		}
		if eig, err := matops.GeneralizedEigen(d.B, d.D, d.cfg.EigTol, d.cfg.EigMaxIter); err == nil {
			d.Stats.Eigenvalues = eig
		}
	case RestartHInv:
		var err error
		X, err = matops.Inverse(d.B)
		if err != nil {
			return fmt.Errorf("restart: invert B: %w", err)
		}
	case RestartRInv:
		_, r, err := matops.QR(d.B)
		if err != nil {
			return fmt.Errorf("restart: QR(B): %w", err)
		}
		X, err = matops.Inverse(r)
		if err != nil {
			return fmt.Errorf("restart: invert R: %w", err)
		}
	default:
		return ErrUnknownRestart
	}

	return d.recombine(X)
}

// recombine replaces every iterate's next-half value at each live position
// with a linear combination of all iterates' next-half values there,
// weighted by X: next_t[pos] <- sum_s X[t][s] * next_s[pos]. Reads every
// iterate's pre-recombination value before writing any of them, so the
// recombination of iterate 0 never sees an already-recombined iterate 1.
func (d *Driver) recombine(X *matops.Dense) error {
	live := d.livePositions()
	old := make([]float64, d.cfg.NTrial)

	for _, pos := range live {
		for t := 0; t < d.cfg.NTrial; t++ {
			old[t] = d.v.ValueAtRow(d.nextRow(t), pos)
		}
		for t := 0; t < d.cfg.NTrial; t++ {
			var sum float64
			for s := 0; s < d.cfg.NTrial; s++ {
				x, err := X.At(t, s)
				if err != nil {
					return fmt.Errorf("recombine: %w", err)
				}
				sum += x * old[s]
			}
			d.v.SetValueAtRow(d.nextRow(t), pos, sum)
		}
	}

	return nil
}

func absAll(vals []float64) []float64 {
	out := make([]float64, len(vals))
	for i, v := range vals {
		out[i] = math.Abs(v)
	}

	return out
}
