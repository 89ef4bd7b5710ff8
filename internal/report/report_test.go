package report

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/fxnlabs/gpudiag/internal/config"
	"github.com/fxnlabs/gpudiag/internal/diag"
	"github.com/fxnlabs/gpudiag/internal/gpu"
	"github.com/fxnlabs/gpudiag/internal/probe"
	"github.com/fxnlabs/gpudiag/internal/sysinfo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedHeaders = []string{
	"GPU DETECTION DIAGNOSTIC",
	"DEVICE DETECTION TESTS",
	"Tensor Creation Test",
	"Quick Performance Test",
	"SUMMARY & RECOMMENDATIONS",
	"WHAT classify_cloudinary.py WILL USE:",
}

var allSections = []diag.Section{
	diag.SectionHeader, diag.SectionRuntime, diag.SectionDetection, diag.SectionCUDA,
	diag.SectionROCm, diag.SectionDirectML, diag.SectionBuild, diag.SectionBackends,
	diag.SectionTensor, diag.SectionBenchmark, diag.SectionSummary, diag.SectionWorkload,
}

func cudaReport() *diag.Report {
	r := &diag.Report{
		RunID:    "3f1c1f4e-6a55-4f0c-9d43-0c5a0c6f1e11",
		GOOS:     "linux",
		Workload: "classify_cloudinary.py",
		System: sysinfo.Info{
			OS: "linux", KernelRelease: "6.8.0-45-generic", Arch: "amd64",
			GoVersion: "1.23.10", CPUModel: "AMD Ryzen 9 7950X", NumCPU: 32,
			MemoryTotal: 64 << 30, CPUFeatures: []string{"avx2", "fma"},
		},
		Runtime: diag.RuntimeStatus{Loaded: true, Description: "gonum v0.16.0 (cpu) + cuBLAS (cuda)"},
		CUDA: probe.CUDAResult{
			Available: true, DeviceCount: 2, DriverVersion: "550.54.14",
			Devices: []probe.GPU{
				{Index: 0, Name: "NVIDIA GeForce RTX 4090", MemoryMiB: 24564},
				{Index: 1, Name: "NVIDIA RTX A6000", MemoryMiB: 49140},
			},
		},
		ROCm:     probe.ROCmResult{SupportedPlatform: true, Error: "hipconfig: executable not found"},
		DirectML: probe.DirectMLResult{Error: "DirectML: not supported on this platform"},
		Build:    probe.BuildInfo{CUDAToolkit: "12.1", HIPApplies: true, CuDNNAvailable: true, CuDNNVersion: 8906, CUDABackendBuilt: true},
		Tensor:   &diag.TensorResult{OK: true, Requested: gpu.KindCUDA, Backend: gpu.KindCUDA, Device: "cuda:0", Rows: 3, Cols: 3},
		Benchmark: &diag.BenchmarkStatus{
			BenchmarkResult: gpu.BenchmarkResult{
				Backend: gpu.KindCUDA, Device: "cuda:0", Size: 1000, Warmup: 10, Iterations: 100,
				Elapsed: 250 * time.Millisecond, OpsPerSecond: 400, GFLOPS: 800, Verification: gpu.VerifyPassed,
			},
			DeviceInfo: &gpu.DeviceInfo{
				Name: "NVIDIA GeForce RTX 4090", TotalMemory: 24 << 30, AvailableMemory: 23 << 30,
				ComputeCapability: "8.9", DriverVersion: "12.4", CUDAVersion: "12.1",
			},
			Requested: gpu.KindCUDA,
		},
	}
	rec := diag.Recommend(r, r.GOOS)
	r.Recommendation = &rec
	return r
}

func render(t *testing.T, r *diag.Report, opts TextOptions, sections ...diag.Section) string {
	t.Helper()
	var buf bytes.Buffer
	p := NewTextPrinter(&buf, opts)
	for _, s := range sections {
		require.NoError(t, p.Section(s, r))
	}
	require.NoError(t, p.Finish(r))
	return buf.String()
}

func TestTextPrinter_FixedHeaders(t *testing.T) {
	out := render(t, cudaReport(), TextOptions{NoColor: true}, allSections...)
	for _, h := range fixedHeaders {
		assert.Contains(t, out, h)
	}
	assert.Contains(t, out, strings.Repeat("=", 60))
	assert.Contains(t, out, strings.Repeat("-", 60))
	assert.NotContains(t, out, "\x1b[", "no escape codes when colors are off")
}

func TestTextPrinter_CUDAMachine(t *testing.T) {
	out := render(t, cudaReport(), TextOptions{NoColor: true}, allSections...)

	assert.Contains(t, out, "Platform: Linux 6.8.0-45-generic")
	assert.Contains(t, out, "Memory: 64 GiB")
	assert.Contains(t, out, "✓ Compute runtime loaded successfully")
	assert.Contains(t, out, "   CUDA available = true")
	assert.Contains(t, out, "   ✓ CUDA GPU detected!")
	assert.Contains(t, out, "   Device count: 2")
	assert.Contains(t, out, "   GPU 1: NVIDIA RTX A6000 (49140 MiB)")
	assert.Contains(t, out, "   HIP runtime found: false")
	assert.Contains(t, out, "   DirectML only available on Windows")
	assert.Contains(t, out, "   CUDA toolkit: 12.1")
	assert.Contains(t, out, "   HIP toolkit: No")
	assert.Contains(t, out, "   CuDNN version: 8906")
	assert.Contains(t, out, "   CUDA backend built: true")
	assert.Contains(t, out, "   ✓ Successfully created tensor on CUDA GPU")
	assert.Contains(t, out, "   Tensor device: cuda:0")
	assert.Contains(t, out, "   Device: cuda:0\n   Device name: NVIDIA GeForce RTX 4090\n")
	assert.Contains(t, out, "   Device memory: 24 GiB (23 GiB free)")
	assert.Contains(t, out, "   Compute capability: 8.9")
	assert.Contains(t, out, "   CUDA runtime: 12.1 (driver 12.4)")
	assert.Contains(t, out, "   Matrix size: 1000x1000")
	assert.Contains(t, out, "   Time: 0.250 seconds")
	assert.Contains(t, out, "   Operations/sec: 400.0")
	assert.Contains(t, out, "   Verification: ✓ passed")
	assert.Contains(t, out, "✓ NVIDIA CUDA GPU DETECTED - Best performance!")
	assert.Contains(t, out, "Device: NVIDIA CUDA GPU\nName: NVIDIA GeForce RTX 4090\n")

	// Sections appear in order.
	last := -1
	for _, h := range fixedHeaders {
		i := strings.Index(out, h)
		assert.Greater(t, i, last, h)
		last = i
	}
}

func TestTextPrinter_CPUFallback(t *testing.T) {
	r := cudaReport()
	r.GOOS = "windows"
	r.System.OS = "windows"
	r.CUDA = probe.CUDAResult{Error: "nvidia-smi: executable not found"}
	r.ROCm = probe.ROCmResult{}
	r.DirectML = probe.DirectMLResult{SupportedPlatform: true, Error: "failed to load DirectML.dll", Hint: probe.DirectMLInstallHint}
	r.Build = probe.BuildInfo{}
	r.Tensor = &diag.TensorResult{OK: true, Requested: gpu.KindCPU, Backend: gpu.KindCPU, Device: "cpu", Rows: 3, Cols: 3}
	r.Benchmark = &diag.BenchmarkStatus{Requested: gpu.KindCPU, Error: "benchmark panicked: out of memory"}
	rec := diag.Recommend(r, r.GOOS)
	r.Recommendation = &rec

	out := render(t, r, TextOptions{NoColor: true}, allSections...)
	assert.Contains(t, out, "   No CUDA devices detected\n   Reason: nvidia-smi: executable not found")
	assert.Contains(t, out, "   ROCm/HIP only available on Linux")
	assert.Contains(t, out, "   ✗ DirectML not installed")
	assert.Contains(t, out, probe.DirectMLInstallHint)
	assert.Contains(t, out, "   CUDA toolkit: No")
	assert.NotContains(t, out, "HIP toolkit")
	assert.Contains(t, out, "   CPU tensor created (no GPU available)")
	assert.Contains(t, out, "   ✗ Performance test failed: benchmark panicked: out of memory")
	assert.Contains(t, out, "⚠ CPU ONLY - No GPU acceleration detected")
	assert.Contains(t, out, "For AMD/Intel GPUs on Windows:\n  1. Install torch-directml:\n     pip install torch-directml\n")
	assert.Contains(t, out, "  2. Install CUDA version:\n     pip install torch torchvision --index-url https://download.pytorch.org/whl/cu121")
	assert.Contains(t, out, "Device: CPU\nRecommendation: Install torch-directml for GPU acceleration\n")
}

func TestTextPrinter_BackendNotBuilt(t *testing.T) {
	r := cudaReport()
	note := "cuda: " + gpu.ErrBackendNotBuilt.Error()
	r.Tensor = &diag.TensorResult{OK: true, Requested: gpu.KindCUDA, Backend: gpu.KindCPU, Device: "cpu", Rows: 3, Cols: 3, Notes: []string{note}}

	out := render(t, r, TextOptions{NoColor: true}, diag.SectionTensor)
	assert.Contains(t, out, "   ⚠ "+note+", using CPU")
	assert.Contains(t, out, "   CPU tensor created (no cuda backend in this binary)")
}

func TestTextPrinter_CPUDeviceInfo(t *testing.T) {
	r := cudaReport()
	r.Benchmark.Backend = gpu.KindCPU
	r.Benchmark.Device = "cpu"
	r.Benchmark.DeviceInfo = &gpu.DeviceInfo{
		Name: "CPU (amd64)", TotalMemory: 64 << 30, ComputeCapability: "N/A", DriverVersion: "go1.23.10",
	}

	out := render(t, r, TextOptions{NoColor: true}, diag.SectionBenchmark)
	assert.Contains(t, out, "   Device: cpu\n   Device name: CPU (amd64)\n   Device memory: 64 GiB\n   Matrix size")
	assert.NotContains(t, out, "Compute capability")
	assert.NotContains(t, out, "CUDA runtime")
}

func TestTextPrinter_RuntimeFailure(t *testing.T) {
	r := &diag.Report{
		Workload: "classify_cloudinary.py",
		System:   sysinfo.Info{OS: "linux", NumCPU: 4},
		Runtime:  diag.RuntimeStatus{Error: "failed to initialize CPU backend: boom"},
	}
	out := render(t, r, TextOptions{NoColor: true}, diag.SectionHeader, diag.SectionRuntime)
	assert.Contains(t, out, "GPU DETECTION DIAGNOSTIC")
	assert.Contains(t, out, "✗ Compute runtime failed to load!\n  Error: failed to initialize CPU backend: boom")
	assert.NotContains(t, out, "DEVICE DETECTION TESTS")
}

func TestTextPrinter_Banner(t *testing.T) {
	plain := render(t, cudaReport(), TextOptions{NoColor: true}, diag.SectionHeader)
	banner := render(t, cudaReport(), TextOptions{NoColor: true, Banner: true}, diag.SectionHeader)
	assert.Greater(t, strings.Count(banner, "\n"), strings.Count(plain, "\n")+3)
	assert.True(t, strings.HasSuffix(banner, plain))
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("broken pipe") }

func TestTextPrinter_WriteError(t *testing.T) {
	p := NewTextPrinter(failingWriter{}, TextOptions{NoColor: true})
	err := p.Section(diag.SectionHeader, cudaReport())
	assert.EqualError(t, err, "broken pipe")
}

func TestJSONPrinter(t *testing.T) {
	var buf bytes.Buffer
	p := NewJSONPrinter(&buf)
	r := cudaReport()
	for _, s := range allSections {
		require.NoError(t, p.Section(s, r))
	}
	assert.Zero(t, buf.Len(), "nothing is written before Finish")
	require.NoError(t, p.Finish(r))

	var doc map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &doc))
	assert.Equal(t, r.RunID, doc["runId"])
	assert.Equal(t, "classify_cloudinary.py", doc["workload"])

	cuda := doc["cuda"].(map[string]any)
	assert.Equal(t, true, cuda["available"])
	assert.Equal(t, float64(2), cuda["deviceCount"])

	bench := doc["benchmark"].(map[string]any)
	assert.Equal(t, float64(1000), bench["size"])
	assert.Equal(t, "passed", bench["verification"])
	assert.Equal(t, float64(250*time.Millisecond), bench["elapsedNs"])

	rec := doc["recommendation"].(map[string]any)
	assert.Equal(t, "cuda", rec["summary"])
	assert.Equal(t, "cuda", rec["workload"])
}

func TestNew(t *testing.T) {
	cfg := config.Default()
	assert.IsType(t, &TextPrinter{}, New(cfg, &bytes.Buffer{}))

	cfg.Report.Output = config.OutputJSON
	assert.IsType(t, &JSONPrinter{}, New(cfg, &bytes.Buffer{}))
}
