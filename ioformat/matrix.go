package ioformat

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/quanta-fri/gofri/matops"
)

// ErrUnknownMatrixExt is returned by WriteMatrix when path's extension is
// none of .txt, .dat, .npy.
var ErrUnknownMatrixExt = errors.New("ioformat: unknown matrix file extension")

// WriteMatrix dumps m to path in one of three formats selected by
// extension: ".txt" (comma-separated rows, human-readable), ".dat"
// (row-major float64 binary, no header), ".npy" (NumPy's v1.0 format,
// row-major float64, so external post-processing can load it with
// numpy.load without a custom reader).
func WriteMatrix(path string, m *matops.Dense) error {
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".txt":
		return writeMatrixText(path, m)
	case ".dat":
		return writeMatrixBinary(path, m)
	case ".npy":
		return writeMatrixNPY(path, m)
	default:
		return fmt.Errorf("WriteMatrix: %q: %w", ext, ErrUnknownMatrixExt)
	}
}

func writeMatrixText(path string, m *matops.Dense) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("writeMatrixText: %w", err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	for r := 0; r < m.Rows(); r++ {
		cells := make([]string, m.Cols())
		for c := 0; c < m.Cols(); c++ {
			v, _ := m.At(r, c)
			cells[c] = strconv.FormatFloat(v, 'g', -1, 64)
		}
		if _, err := fmt.Fprintln(w, strings.Join(cells, ",")); err != nil {
			return fmt.Errorf("writeMatrixText: %w", err)
		}
	}

	return w.Flush()
}

func writeMatrixBinary(path string, m *matops.Dense) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("writeMatrixBinary: %w", err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	for r := 0; r < m.Rows(); r++ {
		for c := 0; c < m.Cols(); c++ {
			v, _ := m.At(r, c)
			if err := binary.Write(w, binary.LittleEndian, v); err != nil {
				return fmt.Errorf("writeMatrixBinary: %w", err)
			}
		}
	}

	return w.Flush()
}

// writeMatrixNPY emits the minimal NumPy v1.0 .npy container: an 8-byte
// magic+version header, a little-endian uint16 header length, an ASCII
// dict header padded with spaces and a trailing newline to a 64-byte
// boundary, then raw row-major float64 data.
func writeMatrixNPY(path string, m *matops.Dense) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("writeMatrixNPY: %w", err)
	}
	defer f.Close()

	header := fmt.Sprintf("{'descr': '<f8', 'fortran_order': False, 'shape': (%d, %d), }", m.Rows(), m.Cols())
	const preludeLen = 10 // magic(6) + version(2) + headerLen(2)
	total := preludeLen + len(header) + 1
	pad := (64 - total%64) % 64
	header += strings.Repeat(" ", pad) + "\n"

	w := bufio.NewWriter(f)
	if _, err := w.Write([]byte("\x93NUMPY\x01\x00")); err != nil {
		return fmt.Errorf("writeMatrixNPY: %w", err)
	}
	if err := binary.Write(w, binary.LittleEndian, uint16(len(header))); err != nil {
		return fmt.Errorf("writeMatrixNPY: %w", err)
	}
	if _, err := w.WriteString(header); err != nil {
		return fmt.Errorf("writeMatrixNPY: %w", err)
	}
	for r := 0; r < m.Rows(); r++ {
		for c := 0; c < m.Cols(); c++ {
			v, _ := m.At(r, c)
			bits := math.Float64bits(v)
			var buf [8]byte
			binary.LittleEndian.PutUint64(buf[:], bits)
			if _, err := w.Write(buf[:]); err != nil {
				return fmt.Errorf("writeMatrixNPY: %w", err)
			}
		}
	}

	return w.Flush()
}
