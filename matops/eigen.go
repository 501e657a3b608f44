package matops

import (
	"errors"
	"fmt"
	"math"
)

// ErrNotSymmetric is returned when the input matrix is not symmetric.
var ErrNotSymmetric = errors.New("matops: matrix is not symmetric")

// ErrEigenFailed is returned if an eigensolver does not converge within max iterations.
var ErrEigenFailed = errors.New("matops: eigen decomposition did not converge")

// Eigen performs Jacobi eigenvalue decomposition on a symmetric matrix m,
// returning eigenvalues and the matrix Q whose columns are the eigenvectors.
// tol is the off-diagonal convergence threshold; maxIter caps the sweep count.
// Complexity: O(n^3) time per sweep, worst-case O(maxIter*n^3); O(n^2) memory.
func Eigen(m *Dense, tol float64, maxIter int) ([]float64, *Dense, error) {
	// Stage 1: Validate input
	n := m.r
	if n != m.c {
		return nil, nil, fmt.Errorf("Eigen: non-square %dx%d: %w", n, m.c, ErrDimensionMismatch)
	}
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			if math.Abs(m.data[i*n+j]-m.data[j*n+i]) > tol {
				return nil, nil, ErrNotSymmetric
			}
		}
	}

	// Stage 2: Prepare A (work) and Q (eigenvectors)
	A := m.Clone()
	Q, err := Identity(n)
	if err != nil {
		return nil, nil, fmt.Errorf("Eigen: %w", err)
	}

	// Stage 3: Execute Jacobi rotations
	var iter int
	for iter = 0; iter < maxIter; iter++ {
		maxOff := 0.0
		p, q := 0, 1
		for i := 0; i < n; i++ {
			for j := i + 1; j < n; j++ {
				off := A.data[i*n+j]
				if math.Abs(off) > maxOff {
					maxOff = math.Abs(off)
					p, q = i, j
				}
			}
		}
		if maxOff < tol {
			break
		}

		aip, aiq, apq := A.data[p*n+p], A.data[q*n+q], A.data[p*n+q]
		theta := (aiq - aip) / (2 * apq)
		t := math.Copysign(1.0/(math.Abs(theta)+math.Sqrt(theta*theta+1)), theta)
		c := 1.0 / math.Sqrt(t*t+1)
		s := t * c

		for i := 0; i < n; i++ {
			if i != p && i != q {
				aip0, aiq0 := A.data[i*n+p], A.data[i*n+q]
				A.data[i*n+p] = c*aip0 - s*aiq0
				A.data[p*n+i] = A.data[i*n+p]
				A.data[i*n+q] = s*aip0 + c*aiq0
				A.data[q*n+i] = A.data[i*n+q]
			}
		}
		A.data[p*n+p] = c*c*aip - 2*c*s*apq + s*s*aiq
		A.data[q*n+q] = s*s*aip + 2*c*s*apq + c*c*aiq
		A.data[p*n+q] = 0
		A.data[q*n+p] = 0

		for i := 0; i < n; i++ {
			qip, qiq := Q.data[i*n+p], Q.data[i*n+q]
			Q.data[i*n+p] = c*qip - s*qiq
			Q.data[i*n+q] = s*qip + c*qiq
		}
	}

	if iter == maxIter {
		return nil, nil, ErrEigenFailed
	}

	// Stage 4: Finalize eigenvalues
	eigs := make([]float64, n)
	for i := 0; i < n; i++ {
		eigs[i] = A.data[i*n+i]
	}

	return eigs, Q, nil
}

// RealEigen computes all eigenvalues of a general (non-symmetric) square
// matrix m via the unshifted QR algorithm: repeated m = Q*R, m <- R*Q until
// the subdiagonal vanishes. Adapted from Eigen's Jacobi sweep structure for
// the case the Arnoldi restart needs (D^-1*B is not symmetric in general).
// Only real eigenvalues are returned; a matrix that converges to a 2x2
// block with complex eigenvalues reports the block's trace/2 for both rows
// as a real approximation, which is sufficient for the restart's "largest
// nTrial eigenvalues" ranking (GeneralizedEigen sorts by real value).
// Complexity: O(maxIter*n^3) time, O(n^2) memory.
func RealEigen(m *Dense, tol float64, maxIter int) ([]float64, error) {
	n := m.r
	if n != m.c {
		return nil, fmt.Errorf("RealEigen: non-square %dx%d: %w", n, m.c, ErrDimensionMismatch)
	}

	A := m.Clone()
	var iter int
	for iter = 0; iter < maxIter; iter++ {
		// QR returns Q such that Q*A = R (Q is the transpose of the
		// conventional orthogonal factor); the similarity step A <- R*Q_conv
		// therefore needs Q's transpose, not Q itself.
		Q, R, err := QR(A)
		if err != nil {
			return nil, fmt.Errorf("RealEigen: %w", err)
		}
		A, err = R.Mul(Q.Transpose())
		if err != nil {
			return nil, fmt.Errorf("RealEigen: %w", err)
		}

		maxSub := 0.0
		for i := 1; i < n; i++ {
			if v := math.Abs(A.data[i*n+(i-1)]); v > maxSub {
				maxSub = v
			}
		}
		if maxSub < tol {
			break
		}
	}
	if iter == maxIter {
		return nil, ErrEigenFailed
	}

	eigs := make([]float64, n)
	for i := 0; i < n; {
		if i+1 < n && math.Abs(A.data[(i+1)*n+i]) > tol {
			// 2x2 block with a complex-conjugate pair: report the common
			// real part (trace/2) for both rows.
			tr := A.data[i*n+i] + A.data[(i+1)*n+(i+1)]
			eigs[i] = tr / 2
			eigs[i+1] = tr / 2
			i += 2
			continue
		}
		eigs[i] = A.data[i*n+i]
		i++
	}

	return eigs, nil
}

// GeneralizedEigen solves B*x = lambda*D*x by reducing to the standard
// eigenproblem D^-1*B and running RealEigen. Returns eigenvalues sorted
// descending by value, matching the restart's "keep the nTrial largest"
// contract.
// Complexity: O(n^3) for the inversion plus O(maxIter*n^3) for RealEigen.
func GeneralizedEigen(b, d *Dense, tol float64, maxIter int) ([]float64, error) {
	dInv, err := Inverse(d)
	if err != nil {
		return nil, fmt.Errorf("GeneralizedEigen: %w", err)
	}
	m, err := dInv.Mul(b)
	if err != nil {
		return nil, fmt.Errorf("GeneralizedEigen: %w", err)
	}
	eigs, err := RealEigen(m, tol, maxIter)
	if err != nil {
		return nil, fmt.Errorf("GeneralizedEigen: %w", err)
	}

	sortDescending(eigs)

	return eigs, nil
}

func sortDescending(v []float64) {
	for i := 1; i < len(v); i++ {
		for j := i; j > 0 && v[j-1] < v[j]; j-- {
			v[j-1], v[j] = v[j], v[j-1]
		}
	}
}
