package ioformat

import (
	"fmt"
	"os"
	"path/filepath"
)

// Series appends one value per iteration (or per shift_interval) to a named
// output file under a run's output directory: projnum.txt, projden.txt,
// S.txt, N.txt, norm.txt, nonz.txt, sign.txt, params.txt. Each Series owns
// one open file handle for the lifetime of a run.
type Series struct {
	f *os.File
}

// OpenSeries opens (creating or appending to) dir/name for line-oriented
// appends.
func OpenSeries(dir, name string) (*Series, error) {
	f, err := os.OpenFile(filepath.Join(dir, name), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("OpenSeries: %w", err)
	}

	return &Series{f: f}, nil
}

// Append writes one float value as its own line.
func (s *Series) Append(v float64) error {
	_, err := fmt.Fprintf(s.f, "%.17g\n", v)

	return err
}

// AppendInt writes one integer value as its own line (nonz.txt).
func (s *Series) AppendInt(v int) error {
	_, err := fmt.Fprintf(s.f, "%d\n", v)

	return err
}

// Close closes the underlying file.
func (s *Series) Close() error { return s.f.Close() }

// OutputSet bundles the per-iteration series a driver.Engine run appends to.
type OutputSet struct {
	ProjNum *Series
	ProjDen *Series
	S       *Series
	N       *Series
	Norm    *Series
	Nonz    *Series
	Sign    *Series
}

// OpenOutputSet opens every series file under dir, creating dir if absent.
func OpenOutputSet(dir string) (*OutputSet, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("OpenOutputSet: %w", err)
	}

	out := &OutputSet{}
	pairs := []struct {
		name string
		dst  **Series
	}{
		{"projnum.txt", &out.ProjNum},
		{"projden.txt", &out.ProjDen},
		{"S.txt", &out.S},
		{"N.txt", &out.N},
		{"norm.txt", &out.Norm},
		{"nonz.txt", &out.Nonz},
		{"sign.txt", &out.Sign},
	}
	for _, p := range pairs {
		s, err := OpenSeries(dir, p.name)
		if err != nil {
			return nil, err
		}
		*p.dst = s
	}

	return out, nil
}

// Close closes every series in the set.
func (o *OutputSet) Close() error {
	for _, s := range []*Series{o.ProjNum, o.ProjDen, o.S, o.N, o.Norm, o.Nonz, o.Sign} {
		if s != nil {
			if err := s.Close(); err != nil {
				return err
			}
		}
	}

	return nil
}
