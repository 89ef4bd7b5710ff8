package gpu

import (
	"fmt"
	"runtime"

	"github.com/shirou/gopsutil/mem"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/blas"
	"gonum.org/v1/gonum/blas/blas32"
)

// CPUBackend implements Backend on the host CPU using gonum's BLAS.
type CPUBackend struct {
	logger      *zap.Logger
	initialized bool
}

// NewCPUBackend creates a new CPU backend instance
func NewCPUBackend(logger *zap.Logger) *CPUBackend {
	return &CPUBackend{
		logger: logger,
	}
}

func (c *CPUBackend) Kind() Kind { return KindCPU }

// Initialize prepares the CPU backend for use
func (c *CPUBackend) Initialize() error {
	if c.initialized {
		return nil
	}
	c.initialized = true
	c.logger.Debug("CPU backend initialized", zap.Int("threads", runtime.GOMAXPROCS(0)))
	return nil
}

// Cleanup releases any resources (none for CPU backend)
func (c *CPUBackend) Cleanup() error {
	c.initialized = false
	return nil
}

// IsAvailable checks if the backend is available (always true for CPU)
func (c *CPUBackend) IsAvailable() bool {
	return true
}

// GetDeviceInfo returns device information for CPU
func (c *CPUBackend) GetDeviceInfo() DeviceInfo {
	info := DeviceInfo{
		Name:              fmt.Sprintf("CPU (%s)", runtime.GOARCH),
		ComputeCapability: "N/A",
		DriverVersion:     runtime.Version(),
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		info.TotalMemory = int64(vm.Total)
		info.AvailableMemory = int64(vm.Available)
	} else {
		c.logger.Debug("system memory unavailable", zap.Error(err))
	}
	return info
}

// MatrixMultiply performs matrix multiplication using CPU
// Implements C = A * B where A is m×k, B is k×n, and C is m×n
func (c *CPUBackend) MatrixMultiply(a, b []float32, m, k, n int) ([]float32, error) {
	if !c.initialized {
		return nil, fmt.Errorf("CPU backend not initialized")
	}
	if err := checkDims(len(a), len(b), m, k, n); err != nil {
		return nil, err
	}

	result := make([]float32, m*n)
	if m == 0 || n == 0 || k == 0 {
		return result, nil
	}
	blas32.Gemm(blas.NoTrans, blas.NoTrans, 1,
		blas32.General{Rows: m, Cols: k, Stride: k, Data: a},
		blas32.General{Rows: k, Cols: n, Stride: n, Data: b},
		0,
		blas32.General{Rows: m, Cols: n, Stride: n, Data: result})
	return result, nil
}

// NewTensor wraps a copy of data; the CPU "device" is host memory.
func (c *CPUBackend) NewTensor(data []float32, rows, cols int) (Tensor, error) {
	if !c.initialized {
		return nil, fmt.Errorf("CPU backend not initialized")
	}
	if rows <= 0 || cols <= 0 {
		return nil, fmt.Errorf("invalid tensor shape %dx%d", rows, cols)
	}
	if len(data) != rows*cols {
		return nil, fmt.Errorf("tensor size mismatch: expected %d, got %d", rows*cols, len(data))
	}
	owned := make([]float32, len(data))
	copy(owned, data)
	return &cpuTensor{data: owned, rows: rows, cols: cols}, nil
}

// MatMul multiplies two CPU tensors.
func (c *CPUBackend) MatMul(a, b Tensor) (Tensor, error) {
	ta, ok := a.(*cpuTensor)
	if !ok {
		return nil, fmt.Errorf("tensor on %s cannot be used by the CPU backend", a.Device())
	}
	tb, ok := b.(*cpuTensor)
	if !ok {
		return nil, fmt.Errorf("tensor on %s cannot be used by the CPU backend", b.Device())
	}
	if ta.cols != tb.rows {
		return nil, fmt.Errorf("shape mismatch: %dx%d * %dx%d", ta.rows, ta.cols, tb.rows, tb.cols)
	}
	out, err := c.MatrixMultiply(ta.data, tb.data, ta.rows, ta.cols, tb.cols)
	if err != nil {
		return nil, err
	}
	return &cpuTensor{data: out, rows: ta.rows, cols: tb.cols}, nil
}

type cpuTensor struct {
	data       []float32
	rows, cols int
}

func (t *cpuTensor) Device() string { return string(KindCPU) }

func (t *cpuTensor) Shape() (int, int) { return t.rows, t.cols }

func (t *cpuTensor) Host() ([]float32, error) {
	return append([]float32(nil), t.data...), nil
}

func (t *cpuTensor) Release() error {
	t.data = nil
	return nil
}

func checkDims(lenA, lenB, m, k, n int) error {
	if m < 0 || k < 0 || n < 0 {
		return fmt.Errorf("invalid dimensions m=%d k=%d n=%d", m, k, n)
	}
	if lenA != m*k {
		return fmt.Errorf("matrix A size mismatch: expected %d, got %d", m*k, lenA)
	}
	if lenB != k*n {
		return fmt.Errorf("matrix B size mismatch: expected %d, got %d", k*n, lenB)
	}
	return nil
}
