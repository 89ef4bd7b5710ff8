package gpu

import (
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
	"sync"

	"go.uber.org/zap"
)

const gonumModule = "gonum.org/v1/gonum"

// Runtime owns the initialized compute backends and picks one per request.
// The CPU backend is always present; accelerator backends are registered only
// when they are built into the binary and initialize successfully.
type Runtime struct {
	mu       sync.RWMutex
	backends map[Kind]Backend
	built    map[Kind]bool
	logger   *zap.Logger
}

// NewRuntime initializes the CPU backend and every accelerator backend built
// into the binary. An error means the runtime itself is unusable.
func NewRuntime(logger *zap.Logger) (*Runtime, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	var accel []Backend
	if CUDABuilt {
		accel = append(accel, NewCUDABackend(logger))
	}
	return newRuntime(logger, NewCPUBackend(logger), accel...)
}

func newRuntime(logger *zap.Logger, cpu Backend, accel ...Backend) (*Runtime, error) {
	r := &Runtime{
		backends: make(map[Kind]Backend),
		built:    map[Kind]bool{KindCPU: true},
		logger:   logger,
	}

	if err := cpu.Initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize CPU backend: %w", err)
	}
	r.backends[KindCPU] = cpu

	for _, b := range accel {
		r.built[b.Kind()] = true
		if !b.IsAvailable() {
			logger.Debug("backend has no usable device", zap.String("backend", string(b.Kind())))
			continue
		}
		if err := b.Initialize(); err != nil {
			logger.Warn("backend failed to initialize", zap.String("backend", string(b.Kind())), zap.Error(err))
			// If initialization failed, try cleanup
			_ = b.Cleanup()
			continue
		}
		r.backends[b.Kind()] = b
	}
	return r, nil
}

// Built reports whether the binary carries a compute backend for kind.
func (r *Runtime) Built(kind Kind) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.built[kind]
}

// Backend returns the initialized backend for kind.
func (r *Runtime) Backend(kind Kind) (Backend, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if b, ok := r.backends[kind]; ok {
		return b, nil
	}
	if !r.built[kind] {
		return nil, fmt.Errorf("%s: %w", kind, ErrBackendNotBuilt)
	}
	return nil, fmt.Errorf("%s backend has no usable device", kind)
}

// Select returns the first usable backend among kinds, falling back to the
// CPU. notes explains every preferred kind that was skipped.
func (r *Runtime) Select(kinds ...Kind) (b Backend, notes []string) {
	for _, kind := range kinds {
		backend, err := r.Backend(kind)
		if err == nil {
			return backend, notes
		}
		notes = append(notes, err.Error())
	}
	cpu, _ := r.Backend(KindCPU)
	return cpu, notes
}

// Description names the engines behind the runtime, e.g.
// "gonum v0.16.0 (cpu) + cuBLAS (cuda)".
func (r *Runtime) Description() string {
	parts := []string{fmt.Sprintf("gonum %s (cpu)", Version())}
	if r.Built(KindCUDA) {
		parts = append(parts, "cuBLAS (cuda)")
	}
	return strings.Join(parts, " + ")
}

// Version is the gonum module version linked into the binary.
func Version() string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return "(unknown)"
	}
	for _, dep := range info.Deps {
		if dep.Path == gonumModule {
			return dep.Version
		}
	}
	return "(devel)"
}

// Cleanup releases resources held by every backend
func (r *Runtime) Cleanup() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var errs []error
	for kind, b := range r.backends {
		if err := b.Cleanup(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", kind, err))
		}
		delete(r.backends, kind)
	}
	return errors.Join(errs...)
}
