// Package ioformat reads and writes the on-disk text and binary formats a
// gofri run consumes and produces: the integral/symmetry input files, trial
// vectors, per-process checkpoints, and the per-iteration output series.
// Formats are reproduced verbatim from the distilled specification's §6 —
// this package does not invent a new wire format, only parses/emits the one
// named there.
package ioformat

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/quanta-fri/gofri/detbit"
	"github.com/quanta-fri/gofri/hamiltonian"
)

// ErrBadSysParams is returned when sys_params.txt doesn't have the five
// label/value line pairs the format requires.
var ErrBadSysParams = errors.New("ioformat: malformed sys_params.txt")

// ErrBadTensorLen is returned when hcore.txt/eris.txt don't contain exactly
// the expected number of comma-separated values for the declared tot_orb.
var ErrBadTensorLen = errors.New("ioformat: tensor file has wrong element count")

// ErrMismatchedTrialFiles is returned when a trial vector's det and val
// files have different line counts.
var ErrMismatchedTrialFiles = errors.New("ioformat: trial det/val files have different lengths")

// SysParams is the parsed content of sys_params.txt.
type SysParams struct {
	NElec   int
	NFrozen int
	NOrb    int
	Eps     float64
	HFEnergy float64
}

// LoadSysParams parses sys_params.txt: five label/value line pairs (ten
// lines), in order n_elec, n_frozen, n_orb, eps, hf_energy, each followed by its
// value on its own line.
func LoadSysParams(path string) (SysParams, error) {
	lines, err := readLines(path)
	if err != nil {
		return SysParams{}, fmt.Errorf("LoadSysParams: %w", err)
	}
	if len(lines) < 10 {
		return SysParams{}, fmt.Errorf("LoadSysParams: %d lines: %w", len(lines), ErrBadSysParams)
	}

	var sp SysParams
	order := []string{"n_elec", "n_frozen", "n_orb", "eps", "hf_energy"}
	values := make(map[string]string, 5)
	for i, key := range order {
		label := strings.TrimSpace(lines[2*i])
		if !strings.EqualFold(label, key) {
			return SysParams{}, fmt.Errorf("LoadSysParams: line %d: expected %q got %q: %w", 2*i, key, label, ErrBadSysParams)
		}
		values[key] = strings.TrimSpace(lines[2*i+1])
	}

	var perr error
	sp.NElec, perr = strconv.Atoi(values["n_elec"])
	if perr != nil {
		return SysParams{}, fmt.Errorf("LoadSysParams: n_elec: %w", perr)
	}
	sp.NFrozen, perr = strconv.Atoi(values["n_frozen"])
	if perr != nil {
		return SysParams{}, fmt.Errorf("LoadSysParams: n_frozen: %w", perr)
	}
	sp.NOrb, perr = strconv.Atoi(values["n_orb"])
	if perr != nil {
		return SysParams{}, fmt.Errorf("LoadSysParams: n_orb: %w", perr)
	}
	sp.Eps, perr = strconv.ParseFloat(values["eps"], 64)
	if perr != nil {
		return SysParams{}, fmt.Errorf("LoadSysParams: eps: %w", perr)
	}
	sp.HFEnergy, perr = strconv.ParseFloat(values["hf_energy"], 64)
	if perr != nil {
		return SysParams{}, fmt.Errorf("LoadSysParams: hf_energy: %w", perr)
	}

	return sp, nil
}

// LoadSymm parses symm.txt: whitespace-separated irrep indices, one per
// spatial orbital.
func LoadSymm(path string) ([]uint8, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("LoadSymm: %w", err)
	}
	fields := strings.Fields(string(data))
	out := make([]uint8, len(fields))
	for i, f := range fields {
		v, err := strconv.ParseUint(f, 10, 8)
		if err != nil {
			return nil, fmt.Errorf("LoadSymm: entry %d: %w", i, err)
		}
		out[i] = uint8(v)
	}

	return out, nil
}

// LoadHCore parses hcore.txt: a comma-separated row-major totOrb x totOrb
// matrix of doubles.
func LoadHCore(path string, totOrb int) (*hamiltonian.HCore, error) {
	vals, err := readCSVFloats(path)
	if err != nil {
		return nil, fmt.Errorf("LoadHCore: %w", err)
	}
	want := totOrb * totOrb
	if len(vals) != want {
		return nil, fmt.Errorf("LoadHCore: got %d want %d: %w", len(vals), want, ErrBadTensorLen)
	}

	h, err := hamiltonian.NewHCore(totOrb)
	if err != nil {
		return nil, fmt.Errorf("LoadHCore: %w", err)
	}
	for i := 0; i < totOrb; i++ {
		for j := 0; j < totOrb; j++ {
			h.Set(i, j, vals[i*totOrb+j])
		}
	}

	return h, nil
}

// LoadERIs parses eris.txt: a comma-separated row-major totOrb^4 tensor of
// doubles in chemists' notation (ij|kl).
func LoadERIs(path string, totOrb int) (*hamiltonian.ERIs, error) {
	vals, err := readCSVFloats(path)
	if err != nil {
		return nil, fmt.Errorf("LoadERIs: %w", err)
	}
	want := totOrb * totOrb * totOrb * totOrb
	if len(vals) != want {
		return nil, fmt.Errorf("LoadERIs: got %d want %d: %w", len(vals), want, ErrBadTensorLen)
	}

	e, err := hamiltonian.NewERIs(totOrb)
	if err != nil {
		return nil, fmt.Errorf("LoadERIs: %w", err)
	}
	idx := 0
	for i := 0; i < totOrb; i++ {
		for j := 0; j < totOrb; j++ {
			for k := 0; k < totOrb; k++ {
				for l := 0; l < totOrb; l++ {
					e.Set(i, j, k, l, vals[idx])
					idx++
				}
			}
		}
	}

	return e, nil
}

// LoadTrialVector parses a <name>dets/<name>vals file pair: decimal
// integers (bit-packed as a little-endian 64-bit determinant, so nOrb <= 32)
// and their parallel decimal values.
func LoadTrialVector(detPath, valPath string, nOrb int) ([]detbit.Det, []float64, error) {
	detLines, err := readLines(detPath)
	if err != nil {
		return nil, nil, fmt.Errorf("LoadTrialVector: %w", err)
	}
	valLines, err := readLines(valPath)
	if err != nil {
		return nil, nil, fmt.Errorf("LoadTrialVector: %w", err)
	}
	detLines = trimEmpty(detLines)
	valLines = trimEmpty(valLines)
	if len(detLines) != len(valLines) {
		return nil, nil, fmt.Errorf("LoadTrialVector: %d dets vs %d vals: %w", len(detLines), len(valLines), ErrMismatchedTrialFiles)
	}

	dets := make([]detbit.Det, len(detLines))
	vals := make([]float64, len(valLines))
	byteLen := detbit.ByteLen(nOrb)
	for i, line := range detLines {
		bits, err := strconv.ParseUint(strings.TrimSpace(line), 10, 64)
		if err != nil {
			return nil, nil, fmt.Errorf("LoadTrialVector: det %d: %w", i, err)
		}
		det := detbit.NewDet(nOrb)
		for b := 0; b < byteLen && b < 8; b++ {
			det[b] = byte(bits >> (8 * b))
		}
		dets[i] = det

		v, err := strconv.ParseFloat(strings.TrimSpace(valLines[i]), 64)
		if err != nil {
			return nil, nil, fmt.Errorf("LoadTrialVector: val %d: %w", i, err)
		}
		vals[i] = v
	}

	return dets, vals, nil
}

func readLines(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var lines []string
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), 16*1024*1024)
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}

	return lines, sc.Err()
}

func trimEmpty(lines []string) []string {
	out := lines[:0:0]
	for _, l := range lines {
		if strings.TrimSpace(l) != "" {
			out = append(out, l)
		}
	}

	return out
}

func readCSVFloats(path string) ([]float64, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	fields := strings.Split(strings.TrimSpace(string(data)), ",")
	out := make([]float64, len(fields))
	for i, f := range fields {
		v, err := strconv.ParseFloat(strings.TrimSpace(f), 64)
		if err != nil {
			return nil, fmt.Errorf("entry %d: %w", i, err)
		}
		out[i] = v
	}

	return out, nil
}
