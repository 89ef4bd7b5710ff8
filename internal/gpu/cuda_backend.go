//go:build cuda
// +build cuda

package gpu

/*
#cgo CFLAGS: -I/usr/local/cuda/include
#cgo LDFLAGS: -L/usr/local/cuda/lib64 -lcudart -lcublas
#include <cuda_runtime.h>
#include <cublas_v2.h>
#include <stdlib.h>
*/
import "C"
import (
	"fmt"
	"unsafe"

	"go.uber.org/zap"
)

// CUDABuilt reports whether this binary was compiled with the cuBLAS backend.
const CUDABuilt = true

// CUDABackend implements Backend using NVIDIA CUDA and cuBLAS
type CUDABackend struct {
	logger      *zap.Logger
	initialized bool
	available   bool
	device      int
	handle      C.cublasHandle_t
	deviceInfo  DeviceInfo
}

// NewCUDABackend creates a new CUDA backend instance
func NewCUDABackend(logger *zap.Logger) *CUDABackend {
	backend := &CUDABackend{
		logger: logger,
	}

	if err := backend.checkDevice(); err != nil {
		logger.Debug("CUDA device not available", zap.Error(err))
		backend.available = false
	} else {
		backend.available = true
	}

	return backend
}

func (c *CUDABackend) Kind() Kind { return KindCUDA }

// Initialize prepares the CUDA backend for use
func (c *CUDABackend) Initialize() error {
	if !c.available {
		return fmt.Errorf("CUDA device not available")
	}
	if c.initialized {
		return nil
	}

	if err := cudaCheck(C.cudaSetDevice(C.int(c.device))); err != nil {
		return fmt.Errorf("failed to select CUDA device %d: %w", c.device, err)
	}
	if status := C.cublasCreate_v2(&c.handle); status != C.CUBLAS_STATUS_SUCCESS {
		return fmt.Errorf("failed to create cuBLAS handle: status %d", int(status))
	}

	var prop C.struct_cudaDeviceProp
	if err := cudaCheck(C.cudaGetDeviceProperties(&prop, C.int(c.device))); err != nil {
		C.cublasDestroy_v2(c.handle)
		return fmt.Errorf("failed to get device properties: %w", err)
	}

	var driver, runtimeVersion C.int
	C.cudaDriverGetVersion(&driver)
	C.cudaRuntimeGetVersion(&runtimeVersion)

	var free, total C.size_t
	C.cudaMemGetInfo(&free, &total)

	c.deviceInfo = DeviceInfo{
		Name:              C.GoString(&prop.name[0]),
		TotalMemory:       int64(prop.totalGlobalMem),
		AvailableMemory:   int64(free),
		ComputeCapability: fmt.Sprintf("%d.%d", int(prop.major), int(prop.minor)),
		DriverVersion:     formatCUDAVersion(int(driver)),
		CUDAVersion:       formatCUDAVersion(int(runtimeVersion)),
	}

	c.initialized = true
	c.logger.Info("CUDA backend initialized",
		zap.String("device", c.deviceInfo.Name),
		zap.String("compute_capability", c.deviceInfo.ComputeCapability),
		zap.Float64("total_memory_gb", float64(c.deviceInfo.TotalMemory)/(1<<30)))
	return nil
}

// MatrixMultiply performs matrix multiplication using cuBLAS
func (c *CUDABackend) MatrixMultiply(a, b []float32, m, k, n int) ([]float32, error) {
	if err := checkDims(len(a), len(b), m, k, n); err != nil {
		return nil, err
	}
	if m == 0 || n == 0 || k == 0 {
		return make([]float32, m*n), nil
	}

	ta, err := c.NewTensor(a, m, k)
	if err != nil {
		return nil, err
	}
	defer ta.Release()
	tb, err := c.NewTensor(b, k, n)
	if err != nil {
		return nil, err
	}
	defer tb.Release()

	tc, err := c.MatMul(ta, tb)
	if err != nil {
		return nil, err
	}
	defer tc.Release()
	return tc.Host()
}

// NewTensor allocates device memory and copies data into it.
func (c *CUDABackend) NewTensor(data []float32, rows, cols int) (Tensor, error) {
	if !c.initialized {
		return nil, fmt.Errorf("CUDA backend not initialized")
	}
	if rows <= 0 || cols <= 0 {
		return nil, fmt.Errorf("invalid tensor shape %dx%d", rows, cols)
	}
	if len(data) != rows*cols {
		return nil, fmt.Errorf("tensor size mismatch: expected %d, got %d", rows*cols, len(data))
	}

	t, err := c.alloc(rows, cols)
	if err != nil {
		return nil, err
	}
	err = cudaCheck(C.cudaMemcpy(t.ptr, unsafe.Pointer(&data[0]), C.size_t(t.bytes()), C.cudaMemcpyHostToDevice))
	if err != nil {
		t.Release()
		return nil, fmt.Errorf("failed to copy tensor to device: %w", err)
	}
	return t, nil
}

// MatMul computes a*b on the device. cuBLAS is column-major, so the row-major
// product C = A*B is obtained as C^T = B^T * A^T without any transposition.
func (c *CUDABackend) MatMul(a, b Tensor) (Tensor, error) {
	ta, ok := a.(*cudaTensor)
	if !ok {
		return nil, fmt.Errorf("tensor on %s cannot be used by the CUDA backend", a.Device())
	}
	tb, ok := b.(*cudaTensor)
	if !ok {
		return nil, fmt.Errorf("tensor on %s cannot be used by the CUDA backend", b.Device())
	}
	if ta.cols != tb.rows {
		return nil, fmt.Errorf("shape mismatch: %dx%d * %dx%d", ta.rows, ta.cols, tb.rows, tb.cols)
	}
	m, k, n := ta.rows, ta.cols, tb.cols

	out, err := c.alloc(m, n)
	if err != nil {
		return nil, err
	}

	alpha, beta := C.float(1), C.float(0)
	status := C.cublasSgemm_v2(c.handle, C.CUBLAS_OP_N, C.CUBLAS_OP_N,
		C.int(n), C.int(m), C.int(k),
		&alpha,
		(*C.float)(tb.ptr), C.int(n),
		(*C.float)(ta.ptr), C.int(k),
		&beta,
		(*C.float)(out.ptr), C.int(n))
	if status != C.CUBLAS_STATUS_SUCCESS {
		out.Release()
		return nil, fmt.Errorf("cublasSgemm failed: status %d", int(status))
	}
	return out, nil
}

// Synchronize blocks until all queued device work has finished.
func (c *CUDABackend) Synchronize() error {
	return cudaCheck(C.cudaDeviceSynchronize())
}

// GetDeviceInfo returns information about the CUDA device
func (c *CUDABackend) GetDeviceInfo() DeviceInfo {
	if !c.initialized {
		return DeviceInfo{Name: "CUDA device (not initialized)"}
	}
	return c.deviceInfo
}

// IsAvailable checks if CUDA is available
func (c *CUDABackend) IsAvailable() bool {
	return c.available
}

// Cleanup releases CUDA resources
func (c *CUDABackend) Cleanup() error {
	if !c.initialized {
		return nil
	}
	c.logger.Debug("cleaning up CUDA backend")
	if status := C.cublasDestroy_v2(c.handle); status != C.CUBLAS_STATUS_SUCCESS {
		return fmt.Errorf("failed to destroy cuBLAS handle: status %d", int(status))
	}
	c.initialized = false
	return nil
}

func (c *CUDABackend) checkDevice() error {
	var count C.int
	if err := cudaCheck(C.cudaGetDeviceCount(&count)); err != nil {
		return err
	}
	if count == 0 {
		return fmt.Errorf("no CUDA devices")
	}
	return nil
}

func (c *CUDABackend) alloc(rows, cols int) (*cudaTensor, error) {
	t := &cudaTensor{rows: rows, cols: cols, device: c.device}
	if err := cudaCheck(C.cudaMalloc(&t.ptr, C.size_t(t.bytes()))); err != nil {
		return nil, fmt.Errorf("failed to allocate %d bytes on device: %w", t.bytes(), err)
	}
	return t, nil
}

type cudaTensor struct {
	ptr        unsafe.Pointer
	rows, cols int
	device     int
}

func (t *cudaTensor) Device() string { return fmt.Sprintf("cuda:%d", t.device) }

func (t *cudaTensor) Shape() (int, int) { return t.rows, t.cols }

func (t *cudaTensor) bytes() int { return t.rows * t.cols * 4 }

func (t *cudaTensor) Host() ([]float32, error) {
	if t.ptr == nil {
		return nil, fmt.Errorf("tensor released")
	}
	out := make([]float32, t.rows*t.cols)
	err := cudaCheck(C.cudaMemcpy(unsafe.Pointer(&out[0]), t.ptr, C.size_t(t.bytes()), C.cudaMemcpyDeviceToHost))
	if err != nil {
		return nil, fmt.Errorf("failed to copy tensor to host: %w", err)
	}
	return out, nil
}

func (t *cudaTensor) Release() error {
	if t.ptr == nil {
		return nil
	}
	err := cudaCheck(C.cudaFree(t.ptr))
	t.ptr = nil
	return err
}

func cudaCheck(err C.cudaError_t) error {
	if err == C.cudaSuccess {
		return nil
	}
	return fmt.Errorf("cuda: %s", C.GoString(C.cudaGetErrorString(err)))
}
