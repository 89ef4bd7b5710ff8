package gpu

import (
	"fmt"
	"math/rand/v2"
)

// NewRand returns a deterministic generator for matrix contents.
func NewRand(seed int64) *rand.Rand {
	return rand.New(rand.NewPCG(uint64(seed), uint64(seed)^0x9e3779b97f4a7c15))
}

// RandomMatrix returns rows*cols standard-normal values in row-major order.
func RandomMatrix(rng *rand.Rand, rows, cols int) []float32 {
	out := make([]float32, rows*cols)
	for i := range out {
		out[i] = float32(rng.NormFloat64())
	}
	return out
}

// RandomTensor creates a rows×cols standard-normal tensor on b's device.
func RandomTensor(b Backend, rng *rand.Rand, rows, cols int) (Tensor, error) {
	return b.NewTensor(RandomMatrix(rng, rows, cols), rows, cols)
}

// formatCUDAVersion turns the integer encoding used by the CUDA runtime
// (1000*major + 10*minor) into "major.minor".
func formatCUDAVersion(v int) string {
	if v <= 0 {
		return ""
	}
	return fmt.Sprintf("%d.%d", v/1000, (v%1000)/10)
}
