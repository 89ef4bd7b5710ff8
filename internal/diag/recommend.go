package diag

// Choice is the acceleration path a recommendation settles on.
type Choice string

const (
	ChoiceCUDA     Choice = "cuda"
	ChoiceDirectML Choice = "directml"
	ChoiceROCm     Choice = "rocm"
	ChoiceCPU      Choice = "cpu"
)

// Hint is a titled list of setup steps shown when no GPU was found.
type Hint struct {
	Title string `json:"title"`
	Steps []Step `json:"steps"`
}

// Step is one setup action and the command that performs it.
type Step struct {
	Action  string `json:"action"`
	Command string `json:"command"`
}

// Recommendation is the summary block and the workload block.
type Recommendation struct {
	Summary  Choice   `json:"summary"`
	Headline string   `json:"headline"`
	Details  []string `json:"details,omitempty"`
	Hints    []Hint   `json:"hints,omitempty"`

	Workload Choice `json:"workload"`
	// Device is the human readable device class the workload will run on.
	Device string `json:"device"`
	// DeviceName is the GPU model, when known.
	DeviceName string `json:"deviceName,omitempty"`
	Advice     string `json:"advice,omitempty"`
}

const (
	cudaWheel = "pip install torch torchvision --index-url https://download.pytorch.org/whl/cu121"
	rocmWheel = "pip install torch torchvision --index-url https://download.pytorch.org/whl/rocm6.0"
)

// Recommend derives both decision blocks from the probe results. The summary
// prefers CUDA, then DirectML, then ROCm. The workload block prefers CUDA,
// then ROCm, then DirectML. goos selects the CPU-only setup hints.
func Recommend(r *Report, goos string) Recommendation {
	rec := summarize(r, goos)
	rec.Workload, rec.Device, rec.DeviceName, rec.Advice = workloadDevice(r, goos)
	return rec
}

func summarize(r *Report, goos string) Recommendation {
	switch {
	case r.CUDA.Available:
		return Recommendation{
			Summary:  ChoiceCUDA,
			Headline: "NVIDIA CUDA GPU DETECTED - Best performance!",
			Details:  []string{"Your setup is optimal for GPU acceleration"},
		}
	case r.DirectML.Usable():
		return Recommendation{
			Summary:  ChoiceDirectML,
			Headline: "DirectML GPU DETECTED - Good performance!",
			Details:  []string{"AMD/Intel GPU acceleration is working"},
		}
	case r.ROCm.Detected():
		details := []string{"Note: ROCm works best on Linux"}
		if r.ROCm.SupportedPlatform && !r.ROCm.KFD {
			details = append(details, "Note: /dev/kfd is missing, the amdgpu kernel driver may not be loaded")
		}
		return Recommendation{
			Summary:  ChoiceROCm,
			Headline: "ROCm support detected",
			Details:  details,
		}
	}

	rec := Recommendation{
		Summary:  ChoiceCPU,
		Headline: "CPU ONLY - No GPU acceleration detected",
	}
	if goos == "windows" {
		if !r.DirectML.LibraryLoaded {
			rec.Hints = append(rec.Hints, Hint{
				Title: "For AMD/Intel GPUs on Windows:",
				Steps: []Step{{"Install torch-directml", "pip install torch-directml"}},
			})
		}
		rec.Hints = append(rec.Hints, Hint{
			Title: "For NVIDIA GPUs:",
			Steps: []Step{
				{"Uninstall current PyTorch", "pip uninstall torch torchvision"},
				{"Install CUDA version", cudaWheel},
			},
		})
		return rec
	}
	rec.Hints = []Hint{
		{
			Title: "For AMD GPUs on Linux:",
			Steps: []Step{{"Install ROCm version", rocmWheel}},
		},
		{
			Title: "For NVIDIA GPUs:",
			Steps: []Step{{"Install CUDA version", cudaWheel}},
		},
	}
	return rec
}

func workloadDevice(r *Report, goos string) (Choice, string, string, string) {
	switch {
	case r.CUDA.Available:
		return ChoiceCUDA, "NVIDIA CUDA GPU", r.CUDA.DeviceName(), ""
	case r.ROCm.Detected():
		name := ""
		if len(r.ROCm.Devices) > 0 {
			name = r.ROCm.Devices[0].Name
		}
		return ChoiceROCm, "AMD ROCm GPU", name, ""
	case r.DirectML.Usable():
		return ChoiceDirectML, "DirectML (AMD/Intel GPU)", r.DirectML.Adapter, ""
	}
	advice := ""
	if goos == "windows" && !r.DirectML.LibraryLoaded {
		advice = "Install torch-directml for GPU acceleration"
	}
	return ChoiceCPU, "CPU", "", advice
}
