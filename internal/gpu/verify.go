package gpu

import (
	"fmt"
	"math"
	"math/rand/v2"
)

// freivaldsTolerance bounds the float32 rounding error relative to |A|·|B|·r.
const freivaldsTolerance = 1e-3

// FreivaldsVerify performs Freivalds' algorithm to probabilistically verify
// that c = a * b, where a is m×k, b is k×n and c is m×n in row-major order.
// A wrong product survives each round with probability at most 1/2.
// Comparisons are scaled by |A|·|B|·r so float32 rounding is not a mismatch.
func FreivaldsVerify(a, b, c []float32, m, k, n, rounds int, rng *rand.Rand) (bool, error) {
	if err := checkDims(len(a), len(b), m, k, n); err != nil {
		return false, err
	}
	if len(c) != m*n {
		return false, fmt.Errorf("matrix C size mismatch: expected %d, got %d", m*n, len(c))
	}

	r := make([]float64, n)
	for round := 0; round < rounds; round++ {
		for j := range r {
			r[j] = float64(rng.IntN(2)) // Binary vector for simplicity
		}

		br, absBr := mulVec(b, r, k, n)
		abr, scale := mulVecAbs(a, br, absBr, m, k)
		cr, _ := mulVec(c, r, m, n)

		for i := 0; i < m; i++ {
			if math.Abs(abr[i]-cr[i]) > freivaldsTolerance*scale[i]+1e-6 {
				return false, nil
			}
		}
	}
	return true, nil
}

// mulVec returns M·v and |M|·v for a rows×cols row-major matrix and a
// non-negative vector v.
func mulVec(matrix []float32, v []float64, rows, cols int) (out, abs []float64) {
	out = make([]float64, rows)
	abs = make([]float64, rows)
	for i := 0; i < rows; i++ {
		var sum, asum float64
		row := matrix[i*cols : (i+1)*cols]
		for j, x := range row {
			sum += float64(x) * v[j]
			asum += math.Abs(float64(x)) * v[j]
		}
		out[i] = sum
		abs[i] = asum
	}
	return out, abs
}

// mulVecAbs returns M·v and |M|·absV.
func mulVecAbs(matrix []float32, v, absV []float64, rows, cols int) (out, scale []float64) {
	out = make([]float64, rows)
	scale = make([]float64, rows)
	for i := 0; i < rows; i++ {
		var sum, s float64
		row := matrix[i*cols : (i+1)*cols]
		for j, x := range row {
			sum += float64(x) * v[j]
			s += math.Abs(float64(x)) * absV[j]
		}
		out[i] = sum
		scale[i] = s
	}
	return out, scale
}
