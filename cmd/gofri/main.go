// Command gofri runs a Fast Randomized Iteration / FCIQMC eigensolver over
// an active-space Hamiltonian read from the sys_params/symm/hcore/eris file
// set, either as a single power-method walk (driver.Engine) or, when
// --n_trial is set, as a parallel subspace/Arnoldi projection
// (subspace.Driver) tracking several eigenstates at once.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/quanta-fri/gofri/detbit"
	"github.com/quanta-fri/gofri/driver"
	"github.com/quanta-fri/gofri/dvec"
	"github.com/quanta-fri/gofri/hamiltonian"
	"github.com/quanta-fri/gofri/ioformat"
	"github.com/quanta-fri/gofri/randsrc"
	"github.com/quanta-fri/gofri/runconfig"
	"github.com/quanta-fri/gofri/subspace"
	"github.com/quanta-fri/gofri/symmetry"
	"github.com/quanta-fri/gofri/transport"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "gofri:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		hfDir            string
		resultDir        string
		loadDir          string
		targetNorm       int
		matNonz          int
		detSpace         string
		initiatorThresh  float64
		distribution     string
		iniVec           string
		nIterations      int
		seed             uint64
		nTrial           int
		restartInt       int
		restartTechnique string
		normTechnique    string
	)

	cmd := &cobra.Command{
		Use:   "gofri",
		Short: "Fast Randomized Iteration eigensolver over a Slater-determinant Hamiltonian",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := runconfig.New(
				runconfig.WithInputFiles(
					hfDir+"/sys_params.txt",
					hfDir+"/symm.txt",
					hfDir+"/hcore.txt",
					hfDir+"/eris.txt",
				),
				runconfig.WithOutputDir(resultDir),
				runconfig.WithCheckpointing(resultDir, 1000),
				runconfig.WithDistribution(distribution),
				runconfig.WithSeed(seed),
				runconfig.WithSubspace(nTrial, restartInt, restartTechnique),
				runconfig.WithNormTechnique(normTechnique),
			)
			cfg.TargetNonz = targetNorm
			cfg.MatrSamp = matNonz
			cfg.NIterations = nIterations
			if iniVec != "" {
				cfg.TrialDetFile = iniVec + "dets"
				cfg.TrialValFile = iniVec + "vals"
			}
			// det_space/initiator_thresh select the semi-stochastic
			// deterministic subspace and the initiator cutoff; both require
			// a precomputed DetermEntry list this CLI does not yet build
			// from a plain file path, so they are accepted for forward
			// compatibility with SPEC_FULL.md's flag surface but not yet
			// threaded into driver.Config.
			_ = detSpace
			_ = initiatorThresh

			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("validate config: %w", err)
			}

			return runGofri(cmd.Context(), cfg, loadDir)
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&hfDir, "hf_path", "d", ".", "directory holding sys_params.txt/symm.txt/hcore.txt/eris.txt")
	flags.StringVarP(&resultDir, "result_dir", "y", "output", "directory for checkpoints and output series")
	flags.IntVarP(&targetNorm, "target_norm", "t", 10000, "post-compression walker population target")
	flags.IntVarP(&matNonz, "vec_nonz", "m", 10000, "spawn proposal budget per iteration")
	flags.IntVarP(&matNonz, "mat_nonz", "M", 10000, "spawn proposal budget per iteration (alias of vec_nonz)")
	flags.IntVarP(&targetNorm, "max_dets", "p", 10000, "post-compression walker population target (alias of target_norm)")
	flags.Float64VarP(&initiatorThresh, "initiator_thresh", "i", 3.0, "minimum magnitude for a noninitiator to become an initiator")
	flags.StringVarP(&loadDir, "load_dir", "l", "", "checkpoint directory to resume from, empty starts fresh")
	flags.StringVarP(&iniVec, "ini_vec", "n", "", "trial-vector determinant/value file prefix")
	flags.StringVarP(&distribution, "distribution", "q", "near-uniform", "proposal distribution: near-uniform or heat-bath")
	flags.StringVarP(&detSpace, "det_space", "s", "", "deterministic subspace size file, empty disables it")
	flags.IntVar(&nIterations, "n_iterations", 1000, "number of outer iterations to run")
	flags.Uint64Var(&seed, "seed", 1, "PRNG seed")
	flags.IntVar(&nTrial, "n_trial", 0, "number of simultaneously tracked eigenstates; 0 runs a single power-method walk")
	flags.IntVar(&restartInt, "restart_int", 50, "subspace restart cadence, in iterations")
	flags.StringVar(&restartTechnique, "restart_technique", "hinv", "subspace restart recombination: eig, hinv, or rinv")
	flags.StringVar(&normTechnique, "norm_technique", "none", "subspace per-iterate normalisation: none, one-norm, or max-one-norm")

	return cmd
}

// runGofri loads the Hamiltonian and symmetry tables, seeds a single-rank
// DistVec with the Hartree-Fock determinant (or, for a subspace run, one
// seed determinant per trial state) or, when loadDir is non-empty, resumes
// it from a prior checkpoint instead of seeding, and drives either a
// driver.Engine or a subspace.Driver for cfg.NIterations steps, appending
// diagnostics to the output series every iteration.
func runGofri(ctx context.Context, cfg runconfig.Config, loadDir string) error {
	sp, err := ioformat.LoadSysParams(cfg.SysParamsFile)
	if err != nil {
		return fmt.Errorf("runGofri: %w", err)
	}
	symm, err := ioformat.LoadSymm(cfg.SymmFile)
	if err != nil {
		return fmt.Errorf("runGofri: %w", err)
	}
	table, err := symmetry.NewIrrepTable(symm, sp.NOrb)
	if err != nil {
		return fmt.Errorf("runGofri: %w", err)
	}
	hCore, err := ioformat.LoadHCore(cfg.HCoreFile, sp.NOrb)
	if err != nil {
		return fmt.Errorf("runGofri: %w", err)
	}
	eris, err := ioformat.LoadERIs(cfg.ErisFile, sp.NOrb)
	if err != nil {
		return fmt.Errorf("runGofri: %w", err)
	}

	common := make([]uint32, 2*sp.NOrb)
	local := make([]uint32, 2*sp.NOrb)
	for i := range common {
		common[i] = uint32(7*i + 3)
		local[i] = uint32(13*i + 1)
	}

	group := transport.NewLocalGroup(1)
	src := randsrc.NewStdSource(cfg.Seed)

	out, err := ioformat.OpenOutputSet(cfg.OutputDir)
	if err != nil {
		return fmt.Errorf("runGofri: %w", err)
	}
	defer out.Close()

	if cfg.NTrial > 0 {
		return runSubspace(ctx, cfg, sp, table, hCore, eris, common, local, group[0], src, out, loadDir)
	}

	return runEngine(ctx, cfg, sp, table, hCore, eris, common, local, group[0], src, out, loadDir)
}

func hfDet(nOrb, nElec int) detbit.Det {
	det := detbit.NewDet(nOrb)
	for i := 0; i < nElec/2; i++ {
		detbit.SetBit(det, i)
		detbit.SetBit(det, nOrb+i)
	}

	return det
}

func runEngine(ctx context.Context, cfg runconfig.Config, sp ioformat.SysParams, table *symmetry.IrrepTable, hCore *hamiltonian.HCore, eris *hamiltonian.ERIs, common, local []uint32, tp transport.Collective, src randsrc.Source, out *ioformat.OutputSet, loadDir string) error {
	v := dvec.New(sp.NOrb, sp.NElec, 1, tp.Rank(), tp.Size(), common, local)
	v.Attach(tp, cfg.AdderCap)

	if loadDir != "" {
		if err := v.Load(ioformat.RankDir(loadDir, tp.Rank())); err != nil {
			return fmt.Errorf("runEngine: resume: %w", err)
		}
	} else {
		seedDet := hfDet(sp.NOrb, sp.NElec)
		if _, err := v.Add(seedDet, 1.0, true); err != nil {
			return fmt.Errorf("runEngine: seed: %w", err)
		}
		if err := v.PerformAdd(v); err != nil {
			return fmt.Errorf("runEngine: seed flush: %w", err)
		}
	}

	eng, err := driver.NewEngine(driver.Config{
		NOrb: sp.NOrb, NElec: sp.NElec, NFrz: sp.NFrozen,
		PDouble: cfg.PDouble, Eps: cfg.Eps, Shift: cfg.Shift, Damp: cfg.Damp,
		ShiftInterval: cfg.ShiftInterval, SaveInterval: cfg.SaveInterval,
		TargetNonz: cfg.TargetNonz, MatrSamp: cfg.MatrSamp,
		UseHeatBath: cfg.Distribution == "heat-bath",
		NDetermRank: cfg.NDetermRank,
	}, table, hCore, eris, v, tp, src)
	if err != nil {
		return fmt.Errorf("runEngine: %w", err)
	}

	if cfg.TrialDetFile != "" {
		dets, vals, err := ioformat.LoadTrialVector(cfg.TrialDetFile, cfg.TrialValFile, sp.NOrb)
		if err != nil {
			return fmt.Errorf("runEngine: trial vector: %w", err)
		}
		eng.SetTrial(&dvec.GatheredVec{Idx: dets, Vals: vals})
	}

	for i := 0; i < cfg.NIterations; i++ {
		if err := eng.Step(ctx); err != nil {
			return fmt.Errorf("runEngine: step %d: %w", i, err)
		}
		if err := out.Norm.Append(eng.Stats.Norm); err != nil {
			return fmt.Errorf("runEngine: append norm: %w", err)
		}
		if err := out.Nonz.AppendInt(v.NNonz()); err != nil {
			return fmt.Errorf("runEngine: append nonz: %w", err)
		}
		if cfg.SaveInterval > 0 && (i+1)%cfg.SaveInterval == 0 {
			if err := ioformat.SaveCheckpoint(cfg.CheckpointDir, tp.Rank(), v); err != nil {
				return fmt.Errorf("runEngine: checkpoint: %w", err)
			}
		}
		fmt.Printf("iter %d  norm=%.6f  shift=%.6f  nonz=%d\n", eng.Stats.Iteration, eng.Stats.Norm, eng.Stats.Shift, v.NNonz())
	}

	return nil
}

func runSubspace(ctx context.Context, cfg runconfig.Config, sp ioformat.SysParams, table *symmetry.IrrepTable, hCore *hamiltonian.HCore, eris *hamiltonian.ERIs, common, local []uint32, tp transport.Collective, src randsrc.Source, out *ioformat.OutputSet, loadDir string) error {
	v := dvec.New(sp.NOrb, sp.NElec, 2*cfg.NTrial, tp.Rank(), tp.Size(), common, local)
	v.Attach(tp, cfg.AdderCap)

	trials := make([]*dvec.GatheredVec, cfg.NTrial)
	seedDets := make([]detbit.Det, cfg.NTrial)
	for k := 0; k < cfg.NTrial; k++ {
		det := hfDet(sp.NOrb, sp.NElec)
		if k > 0 && k-1 < sp.NOrb && sp.NOrb-k >= 0 {
			detbit.ClearBit(det, k-1)
			detbit.SetBit(det, sp.NOrb-k)
		}
		seedDets[k] = det
		trials[k] = &dvec.GatheredVec{Idx: []detbit.Det{det}, Vals: []float64{1.0}}
	}

	if loadDir != "" {
		if err := v.Load(ioformat.RankDir(loadDir, tp.Rank())); err != nil {
			return fmt.Errorf("runSubspace: resume: %w", err)
		}
	} else {
		for k, det := range seedDets {
			if err := v.SetCurrVecIdx(k); err != nil {
				return fmt.Errorf("runSubspace: %w", err)
			}
			if _, err := v.Add(det, 1.0, true); err != nil {
				return fmt.Errorf("runSubspace: seed: %w", err)
			}
			if err := v.PerformAdd(v); err != nil {
				return fmt.Errorf("runSubspace: seed flush: %w", err)
			}
		}
	}

	technique := map[string]subspace.RestartTechnique{
		"eig": subspace.RestartEig, "hinv": subspace.RestartHInv, "rinv": subspace.RestartRInv,
	}[cfg.RestartTechnique]
	norm := map[string]subspace.NormTechnique{
		"none": subspace.NormNone, "one-norm": subspace.NormOneNorm, "max-one-norm": subspace.NormMaxOneNorm,
	}[cfg.NormTechnique]

	scfg := subspace.New(
		subspace.WithOrbitals(sp.NOrb, sp.NElec, sp.NFrozen),
		subspace.WithTrialCount(cfg.NTrial),
		subspace.WithTimeStep(cfg.Eps),
		subspace.WithProposalMix(cfg.PDouble, cfg.MatrSamp),
		subspace.WithPopulationControl(cfg.TargetNonz),
		subspace.WithHeatBath(cfg.Distribution == "heat-bath"),
		subspace.WithNormTechnique(norm),
		subspace.WithRestart(technique, cfg.RestartInt),
	)

	d, err := subspace.NewDriver(scfg, table, hCore, eris, v, tp, src, trials)
	if err != nil {
		return fmt.Errorf("runSubspace: %w", err)
	}
	d.SetOutputDir(cfg.OutputDir)

	for i := 0; i < cfg.NIterations; i++ {
		if err := d.Step(ctx); err != nil {
			return fmt.Errorf("runSubspace: step %d: %w", i, err)
		}
		if err := out.Nonz.AppendInt(v.NNonz()); err != nil {
			return fmt.Errorf("runSubspace: append nonz: %w", err)
		}
		if cfg.SaveInterval > 0 && (i+1)%cfg.SaveInterval == 0 {
			if err := ioformat.SaveCheckpoint(cfg.CheckpointDir, tp.Rank(), v); err != nil {
				return fmt.Errorf("runSubspace: checkpoint: %w", err)
			}
		}
		if d.Stats.Restarted {
			fmt.Printf("iter %d  restarted  eigenvalues=%v\n", d.Stats.Iteration, d.Stats.Eigenvalues)
		} else {
			fmt.Printf("iter %d  nonz=%d\n", d.Stats.Iteration, v.NNonz())
		}
	}

	return nil
}
