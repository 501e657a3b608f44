package matops

import (
	"fmt"
	"math"
)

const normZero = 0.0

// QR returns Q and R with Q*m = R via Householder reflections: Q accumulates
// the reflections applied to m, so m = Q^T*R.
// Complexity: O(n^3) time, O(n^2) memory.
func QR(m *Dense) (*Dense, *Dense, error) {
	// Stage 1: Validate input dimensions
	if m.r != m.c {
		return nil, nil, fmt.Errorf("QR: non-square %dx%d: %w", m.r, m.c, ErrDimensionMismatch)
	}
	n := m.r

	// Stage 2: Prepare working matrices and Householder vector
	A := m.Clone()
	Q, err := Identity(n)
	if err != nil {
		return nil, nil, fmt.Errorf("QR: %w", err)
	}
	v := make([]float64, n)

	// Stage 3: Execute Householder reflections
	for k := 0; k < n; k++ {
		norm := normZero
		for i := k; i < n; i++ {
			val := A.data[i*n+k]
			norm += val * val
		}
		norm = math.Sqrt(norm)
		if norm == normZero {
			continue
		}

		alpha := -math.Copysign(norm, A.data[k*n+k])
		for i := 0; i < n; i++ {
			v[i] = normZero
		}
		for i := k; i < n; i++ {
			v[i] = A.data[i*n+k]
		}
		v[k] -= alpha

		beta := normZero
		for i := k; i < n; i++ {
			beta += v[i] * v[i]
		}
		if beta == normZero {
			continue
		}
		tau := 2.0 / beta

		for j := k; j < n; j++ {
			sum := normZero
			for i := k; i < n; i++ {
				sum += v[i] * A.data[i*n+j]
			}
			for i := k; i < n; i++ {
				A.data[i*n+j] -= tau * v[i] * sum
			}
		}

		for j := 0; j < n; j++ {
			sum := normZero
			for i := k; i < n; i++ {
				sum += v[i] * Q.data[i*n+j]
			}
			for i := k; i < n; i++ {
				Q.data[i*n+j] -= tau * v[i] * sum
			}
		}
	}

	// Stage 4: Finalize; R is the reduced A
	return Q, A, nil
}
