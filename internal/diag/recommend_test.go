package diag

import (
	"testing"

	"github.com/fxnlabs/gpudiag/internal/probe"
	"github.com/stretchr/testify/assert"
)

var (
	cudaFound = probe.CUDAResult{Available: true, DeviceCount: 1, Devices: []probe.GPU{{Name: "NVIDIA A100-SXM4-80GB"}}}
	rocmFound = probe.ROCmResult{SupportedPlatform: true, HIPVersion: "6.0.2", KFD: true, Devices: []probe.GPU{{Name: "Instinct MI300X"}}}
	dmlFound  = probe.DirectMLResult{SupportedPlatform: true, LibraryLoaded: true, DeviceCreated: true, Adapter: "AMD Radeon RX 6800"}
	dmlNoDev  = probe.DirectMLResult{SupportedPlatform: true, LibraryLoaded: true}
)

func TestRecommend_Priorities(t *testing.T) {
	testCases := []struct {
		name         string
		report       Report
		wantSummary  Choice
		wantWorkload Choice
	}{
		{name: "nothing", wantSummary: ChoiceCPU, wantWorkload: ChoiceCPU},
		{name: "cuda only", report: Report{CUDA: cudaFound}, wantSummary: ChoiceCUDA, wantWorkload: ChoiceCUDA},
		{name: "rocm only", report: Report{ROCm: rocmFound}, wantSummary: ChoiceROCm, wantWorkload: ChoiceROCm},
		{name: "directml only", report: Report{DirectML: dmlFound}, wantSummary: ChoiceDirectML, wantWorkload: ChoiceDirectML},
		{name: "directml without device", report: Report{DirectML: dmlNoDev}, wantSummary: ChoiceCPU, wantWorkload: ChoiceCPU},
		{name: "cuda beats everything", report: Report{CUDA: cudaFound, ROCm: rocmFound, DirectML: dmlFound}, wantSummary: ChoiceCUDA, wantWorkload: ChoiceCUDA},
		// The two blocks disagree on purpose when ROCm and DirectML are both present.
		{name: "rocm and directml", report: Report{ROCm: rocmFound, DirectML: dmlFound}, wantSummary: ChoiceDirectML, wantWorkload: ChoiceROCm},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			rec := Recommend(&tc.report, "linux")
			assert.Equal(t, tc.wantSummary, rec.Summary)
			assert.Equal(t, tc.wantWorkload, rec.Workload)
			assert.NotEmpty(t, rec.Headline)
			assert.NotEmpty(t, rec.Device)
		})
	}
}

func TestRecommend_Details(t *testing.T) {
	t.Run("cuda names the device", func(t *testing.T) {
		rec := Recommend(&Report{CUDA: cudaFound}, "linux")
		assert.Equal(t, "NVIDIA CUDA GPU DETECTED - Best performance!", rec.Headline)
		assert.Equal(t, "NVIDIA CUDA GPU", rec.Device)
		assert.Equal(t, "NVIDIA A100-SXM4-80GB", rec.DeviceName)
		assert.Empty(t, rec.Hints)
	})

	t.Run("rocm without kfd", func(t *testing.T) {
		rocm := rocmFound
		rocm.KFD = false
		rec := Recommend(&Report{ROCm: rocm}, "linux")
		assert.Len(t, rec.Details, 2)
		assert.Equal(t, "Instinct MI300X", rec.DeviceName)
	})

	t.Run("linux cpu hints", func(t *testing.T) {
		rec := Recommend(&Report{}, "linux")
		assert.Equal(t, "CPU ONLY - No GPU acceleration detected", rec.Headline)
		if assert.Len(t, rec.Hints, 2) {
			assert.Equal(t, "For AMD GPUs on Linux:", rec.Hints[0].Title)
			assert.Contains(t, rec.Hints[0].Steps[0].Command, "rocm6.0")
			assert.Contains(t, rec.Hints[1].Steps[0].Command, "cu121")
		}
		assert.Empty(t, rec.Advice)
	})

	t.Run("windows cpu without directml", func(t *testing.T) {
		rec := Recommend(&Report{}, "windows")
		if assert.Len(t, rec.Hints, 2) {
			assert.Equal(t, "For AMD/Intel GPUs on Windows:", rec.Hints[0].Title)
			assert.Len(t, rec.Hints[1].Steps, 2)
		}
		assert.Equal(t, "Install torch-directml for GPU acceleration", rec.Advice)
	})

	t.Run("windows cpu with directml library but no device", func(t *testing.T) {
		rec := Recommend(&Report{DirectML: dmlNoDev}, "windows")
		if assert.Len(t, rec.Hints, 1) {
			assert.Equal(t, "For NVIDIA GPUs:", rec.Hints[0].Title)
		}
		assert.Empty(t, rec.Advice)
	})
}
