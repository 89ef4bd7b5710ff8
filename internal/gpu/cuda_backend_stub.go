//go:build !cuda
// +build !cuda

package gpu

import "go.uber.org/zap"

// CUDABuilt reports whether this binary was compiled with the cuBLAS backend.
const CUDABuilt = false

// CUDABackend is a stub type when the binary is built without -tags cuda.
// It is never available and every operation fails with ErrBackendNotBuilt.
type CUDABackend struct {
	logger *zap.Logger
}

// NewCUDABackend returns the stub backend.
func NewCUDABackend(logger *zap.Logger) *CUDABackend {
	return &CUDABackend{logger: logger}
}

func (c *CUDABackend) Kind() Kind { return KindCUDA }

func (c *CUDABackend) MatrixMultiply(a, b []float32, m, k, n int) ([]float32, error) {
	return nil, ErrBackendNotBuilt
}

func (c *CUDABackend) NewTensor(data []float32, rows, cols int) (Tensor, error) {
	return nil, ErrBackendNotBuilt
}

func (c *CUDABackend) MatMul(a, b Tensor) (Tensor, error) {
	return nil, ErrBackendNotBuilt
}

func (c *CUDABackend) GetDeviceInfo() DeviceInfo {
	return DeviceInfo{Name: "CUDA not available"}
}

func (c *CUDABackend) IsAvailable() bool {
	return false
}

func (c *CUDABackend) Initialize() error {
	return ErrBackendNotBuilt
}

func (c *CUDABackend) Cleanup() error {
	return nil
}
