package matops

import "fmt"

// LU performs Doolittle LU decomposition on a square matrix m, returning L
// (unit lower triangular) and U (upper triangular) such that m = L*U.
// Complexity: O(n^3) time, O(n^2) memory.
func LU(m *Dense) (*Dense, *Dense, error) {
	// Stage 1: Validate input is square
	if m.r != m.c {
		return nil, nil, fmt.Errorf("LU: non-square %dx%d: %w", m.r, m.c, ErrDimensionMismatch)
	}
	n := m.r

	// Stage 2: Prepare L and U
	L, err := NewDense(n, n)
	if err != nil {
		return nil, nil, fmt.Errorf("LU: %w", err)
	}
	U, err := NewDense(n, n)
	if err != nil {
		return nil, nil, fmt.Errorf("LU: %w", err)
	}
	for i := 0; i < n; i++ {
		L.data[i*n+i] = 1
	}

	// Stage 3: Execute decomposition
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			sum := 0.0
			for k := 0; k < i; k++ {
				sum += L.data[i*n+k] * U.data[k*n+j]
			}
			U.data[i*n+j] = m.data[i*n+j] - sum
		}
		for j := i + 1; j < n; j++ {
			sum := 0.0
			for k := 0; k < i; k++ {
				sum += L.data[j*n+k] * U.data[k*n+i]
			}
			uDiag := U.data[i*n+i]
			L.data[j*n+i] = (m.data[j*n+i] - sum) / uDiag
		}
	}

	return L, U, nil
}
