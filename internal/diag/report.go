package diag

import (
	"time"

	"github.com/fxnlabs/gpudiag/internal/gpu"
	"github.com/fxnlabs/gpudiag/internal/probe"
	"github.com/fxnlabs/gpudiag/internal/sysinfo"
)

// Section identifies a block of the report. Printers are called once per
// section, in declaration order, as soon as its data is ready.
type Section int

const (
	SectionHeader Section = iota
	SectionRuntime
	SectionDetection
	SectionCUDA
	SectionROCm
	SectionDirectML
	SectionBuild
	SectionBackends
	SectionTensor
	SectionBenchmark
	SectionSummary
	SectionWorkload
)

var sectionNames = [...]string{
	"header", "runtime", "detection", "cuda", "rocm", "directml",
	"build", "backends", "tensor", "benchmark", "summary", "workload",
}

func (s Section) String() string {
	if s < 0 || int(s) >= len(sectionNames) {
		return "unknown"
	}
	return sectionNames[s]
}

// Report is everything one run found out.
type Report struct {
	RunID     string    `json:"runId"`
	StartedAt time.Time `json:"startedAt"`
	// GOOS is the platform the probes and recommendations targeted.
	GOOS     string       `json:"goos"`
	Workload string       `json:"workload"`
	System   sysinfo.Info `json:"system"`

	Runtime   RuntimeStatus        `json:"runtime"`
	CUDA      probe.CUDAResult     `json:"cuda"`
	ROCm      probe.ROCmResult     `json:"rocm"`
	DirectML  probe.DirectMLResult `json:"directml"`
	Build     probe.BuildInfo      `json:"build"`
	Tensor    *TensorResult        `json:"tensor,omitempty"`
	Benchmark *BenchmarkStatus     `json:"benchmark,omitempty"`

	Recommendation *Recommendation `json:"recommendation,omitempty"`
}

// RuntimeStatus is the outcome of loading the compute runtime.
type RuntimeStatus struct {
	Loaded      bool   `json:"loaded"`
	Description string `json:"description,omitempty"`
	Version     string `json:"version,omitempty"`
	Error       string `json:"error,omitempty"`
}

// TensorResult is the outcome of the tensor creation test.
type TensorResult struct {
	OK bool `json:"ok"`
	// Requested is the device kind the probes pointed at; Backend is the one
	// that actually ran. They differ when the binary has no backend for the
	// requested kind.
	Requested gpu.Kind `json:"requested"`
	Backend   gpu.Kind `json:"backend"`
	Device    string   `json:"device,omitempty"`
	Rows      int      `json:"rows"`
	Cols      int      `json:"cols"`
	Notes     []string `json:"notes,omitempty"`
	Error     string   `json:"error,omitempty"`
}

// BenchmarkStatus wraps the benchmark measurement with the fallback notes and
// any failure.
type BenchmarkStatus struct {
	gpu.BenchmarkResult
	// DeviceInfo describes the device the benchmark ran on.
	DeviceInfo *gpu.DeviceInfo `json:"deviceInfo,omitempty"`
	Requested  gpu.Kind        `json:"requested"`
	Notes      []string        `json:"notes,omitempty"`
	Error      string          `json:"error,omitempty"`
}

// OK reports whether the benchmark completed.
func (b *BenchmarkStatus) OK() bool {
	return b != nil && b.Error == ""
}
