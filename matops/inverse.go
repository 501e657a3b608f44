package matops

import (
	"errors"
	"fmt"
)

// ErrSingular is returned when a zero pivot is encountered during inversion.
var ErrSingular = errors.New("matops: matrix is singular")

// Inverse returns the inverse of square matrix m via LU decomposition and
// forward/backward substitution against each basis column.
// Blueprint:
//
//	Stage 1 (Validate): ensure m is square.
//	Stage 2 (Decompose): m = L*U via Doolittle.
//	Stage 3 (Prepare): allocate result and scratch slices.
//	Stage 4 (Execute): for each identity column e_i, solve L*y=e_i then U*x=y.
//	Stage 5 (Finalize): assemble columns into the inverse.
//
// Complexity: O(n^3) time, O(n^2) memory.
func Inverse(m *Dense) (*Dense, error) {
	if m.r != m.c {
		return nil, fmt.Errorf("Inverse: non-square %dx%d: %w", m.r, m.c, ErrDimensionMismatch)
	}
	n := m.r

	L, U, err := LU(m)
	if err != nil {
		return nil, fmt.Errorf("Inverse: %w", err)
	}

	inv, err := NewDense(n, n)
	if err != nil {
		return nil, fmt.Errorf("Inverse: %w", err)
	}
	y := make([]float64, n)
	x := make([]float64, n)

	for col := 0; col < n; col++ {
		for i := 0; i < n; i++ {
			sum := 0.0
			for k := 0; k < i; k++ {
				sum += L.data[i*n+k] * y[k]
			}
			if i == col {
				y[i] = 1.0 - sum
			} else {
				y[i] = -sum
			}
		}

		for i := n - 1; i >= 0; i-- {
			sum := 0.0
			for k := i + 1; k < n; k++ {
				sum += U.data[i*n+k] * x[k]
			}
			pivot := U.data[i*n+i]
			if pivot == 0 {
				return nil, fmt.Errorf("Inverse: zero pivot at %d: %w", i, ErrSingular)
			}
			x[i] = (y[i] - sum) / pivot
		}

		for i := 0; i < n; i++ {
			inv.data[i*n+col] = x[i]
		}
	}

	return inv, nil
}
