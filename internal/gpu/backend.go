package gpu

import "errors"

// Kind names an acceleration path. The string form is what reports and
// metrics labels use.
type Kind string

const (
	KindCPU      Kind = "cpu"
	KindCUDA     Kind = "cuda"
	KindROCm     Kind = "rocm"
	KindDirectML Kind = "directml"
)

// ErrBackendNotBuilt is returned when a device was detected on the machine but
// this binary carries no compute backend for it.
var ErrBackendNotBuilt = errors.New("backend not built into this binary")

// DeviceInfo contains information about the compute device
type DeviceInfo struct {
	Name              string `json:"name"`
	TotalMemory       int64  `json:"totalMemory"`     // in bytes
	AvailableMemory   int64  `json:"availableMemory"` // in bytes
	ComputeCapability string `json:"computeCapability"`
	DriverVersion     string `json:"driverVersion"`
	CUDAVersion       string `json:"cudaVersion,omitempty"`
}

// Tensor is a row-major float32 matrix resident on a backend's device.
type Tensor interface {
	// Device is the printable device the data lives on, e.g. "cpu" or "cuda:0".
	Device() string
	Shape() (rows, cols int)
	// Host copies the data back to a row-major slice.
	Host() ([]float32, error)
	// Release frees device memory. Releasing twice is a no-op.
	Release() error
}

// Backend defines the interface for compute backends.
//
// Implementation notes:
// - Automatic fallback to CPU is handled by the Runtime, not the backend
// - Resource cleanup is critical to prevent device memory leaks
type Backend interface {
	Kind() Kind

	// MatrixMultiply performs C = A * B on host slices, where A is m×k, B is
	// k×n and C is m×n, all in row-major order. Data is copied to and from the
	// device on every call.
	MatrixMultiply(a, b []float32, m, k, n int) ([]float32, error)

	// NewTensor copies a host matrix onto the device.
	NewTensor(data []float32, rows, cols int) (Tensor, error)

	// MatMul multiplies two device-resident tensors and leaves the product on
	// the device.
	MatMul(a, b Tensor) (Tensor, error)

	// GetDeviceInfo returns information about the device.
	GetDeviceInfo() DeviceInfo

	// IsAvailable performs a quick check without heavy initialization.
	IsAvailable() bool

	// Initialize prepares the backend for use. Must be called once before
	// first use; calling it again is a no-op.
	Initialize() error

	// Cleanup releases any resources held by the backend.
	Cleanup() error
}
