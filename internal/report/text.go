package report

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/common-nighthawk/go-figure"
	"github.com/dustin/go-humanize"
	"github.com/fxnlabs/gpudiag/internal/diag"
	"github.com/fxnlabs/gpudiag/internal/gpu"
	"github.com/muesli/termenv"
)

const ruleWidth = 60

var (
	heavyRule = strings.Repeat("=", ruleWidth)
	lightRule = strings.Repeat("-", ruleWidth)
)

// TextOptions tunes the human readable report.
type TextOptions struct {
	// NoColor disables styling even on a terminal. NO_COLOR has the same effect.
	NoColor bool
	// Banner prints an ASCII-art title above the header.
	Banner bool
}

// TextPrinter streams the report section by section.
type TextPrinter struct {
	w    io.Writer
	opts TextOptions
	err  error

	ok, fail, warn, title lipgloss.Style
}

// NewTextPrinter styles markers for w. Colors are dropped automatically when w
// is not a terminal.
func NewTextPrinter(w io.Writer, opts TextOptions) *TextPrinter {
	renderer := lipgloss.NewRenderer(w)
	if opts.NoColor || os.Getenv("NO_COLOR") != "" {
		renderer.SetColorProfile(termenv.Ascii)
	}
	return &TextPrinter{
		w:     w,
		opts:  opts,
		ok:    renderer.NewStyle().Foreground(lipgloss.Color("42")).Bold(true),
		fail:  renderer.NewStyle().Foreground(lipgloss.Color("196")).Bold(true),
		warn:  renderer.NewStyle().Foreground(lipgloss.Color("214")).Bold(true),
		title: renderer.NewStyle().Bold(true),
	}
}

func (p *TextPrinter) Section(s diag.Section, r *diag.Report) error {
	p.err = nil
	switch s {
	case diag.SectionHeader:
		p.header(r)
	case diag.SectionRuntime:
		p.runtime(r)
	case diag.SectionDetection:
		p.println()
		p.rule(lightRule, "DEVICE DETECTION TESTS", lightRule)
		p.println()
	case diag.SectionCUDA:
		p.cuda(r)
	case diag.SectionROCm:
		p.rocm(r)
	case diag.SectionDirectML:
		p.directML(r)
	case diag.SectionBuild:
		p.build(r)
	case diag.SectionBackends:
		p.backends(r)
	case diag.SectionTensor:
		p.tensor(r)
	case diag.SectionBenchmark:
		p.benchmark(r)
	case diag.SectionSummary:
		p.summary(r)
	case diag.SectionWorkload:
		p.workload(r)
	}
	return p.err
}

// Finish is a no-op: every section has already been written.
func (p *TextPrinter) Finish(*diag.Report) error {
	return nil
}

func (p *TextPrinter) header(r *diag.Report) {
	if p.opts.Banner {
		p.printf("%s\n", figure.NewFigure("gpudiag", "", true).String())
	}
	p.rule(heavyRule, "GPU DETECTION DIAGNOSTIC", heavyRule)
	p.println()

	sys := r.System
	p.printf("Platform: %s %s\n", osName(sys.OS), sys.Release())
	if sys.Platform != "" {
		p.printf("Distribution: %s %s\n", sys.Platform, sys.PlatformVersion)
	}
	p.printf("Go version: %s (%s)\n", sys.GoVersion, sys.Arch)
	if sys.CPUModel != "" {
		p.printf("CPU: %s (%d logical cores)\n", sys.CPUModel, sys.NumCPU)
	} else {
		p.printf("CPU: %d logical cores\n", sys.NumCPU)
	}
	if len(sys.CPUFeatures) > 0 {
		p.printf("CPU features: %s\n", strings.Join(sys.CPUFeatures, " "))
	}
	if sys.MemoryTotal > 0 {
		p.printf("Memory: %s\n", humanize.IBytes(sys.MemoryTotal))
	}
	p.printf("Run ID: %s\n", r.RunID)
	p.println()
}

func (p *TextPrinter) runtime(r *diag.Report) {
	if !r.Runtime.Loaded {
		p.printf("%s Compute runtime failed to load!\n", p.cross())
		p.printf("  Error: %s\n", r.Runtime.Error)
		return
	}
	p.printf("%s Compute runtime loaded successfully\n", p.check())
	p.printf("  Runtime: %s\n", r.Runtime.Description)
}

func (p *TextPrinter) cuda(r *diag.Report) {
	c := r.CUDA
	p.printf("1. NVIDIA CUDA Test:\n")
	p.printf("   CUDA available = %t\n", c.Available)
	if c.VisibleDevices != nil {
		p.printf("   CUDA_VISIBLE_DEVICES = %q\n", *c.VisibleDevices)
	}
	if c.Available {
		p.printf("   %s CUDA GPU detected!\n", p.check())
		p.printf("   Device count: %d\n", c.DeviceCount)
		p.printf("   Current device: %d\n", c.CurrentDevice)
		p.printf("   Device name: %s\n", c.DeviceName())
		p.printf("   Driver version: %s\n", c.DriverVersion)
		if len(c.Devices) > 1 {
			for _, d := range c.Devices {
				p.printf("   GPU %d: %s (%d MiB)\n", d.Index, d.Name, d.MemoryMiB)
			}
		}
	} else {
		p.printf("   No CUDA devices detected\n")
		if c.Error != "" {
			p.printf("   Reason: %s\n", c.Error)
		}
	}
	p.println()
}

func (p *TextPrinter) rocm(r *diag.Report) {
	c := r.ROCm
	p.printf("2. AMD ROCm/HIP Test (Linux only):\n")
	if !c.SupportedPlatform {
		p.printf("   ROCm/HIP only available on Linux\n")
		p.println()
		return
	}
	p.printf("   HIP runtime found: %t\n", c.Detected())
	if c.Detected() {
		p.printf("   HIP version: %s\n", c.HIPVersion)
		p.printf("   %s ROCm support detected!\n", p.check())
		p.printf("   /dev/kfd present: %t\n", c.KFD)
		for _, d := range c.Devices {
			p.printf("   GPU %d: %s\n", d.Index, d.Name)
		}
		if c.Error != "" {
			p.printf("   %s %s\n", p.caution(), c.Error)
		}
	} else {
		p.printf("   No ROCm support on this machine\n")
		if c.Error != "" {
			p.printf("   Reason: %s\n", c.Error)
		}
	}
	p.println()
}

func (p *TextPrinter) directML(r *diag.Report) {
	c := r.DirectML
	p.printf("3. DirectML Test (Windows AMD/Intel GPUs):\n")
	switch {
	case !c.SupportedPlatform:
		p.printf("   DirectML only available on Windows\n")
	case !c.LibraryLoaded:
		p.printf("   %s DirectML not installed\n", p.cross())
		if c.Error != "" {
			p.printf("   Error: %s\n", c.Error)
		}
		if c.Hint != "" {
			p.printf("   %s\n", c.Hint)
		}
	default:
		p.printf("   %s DirectML.dll loaded successfully\n", p.check())
		if c.DeviceCreated {
			p.printf("   %s DirectML device created: %s\n", p.check(), c.Device)
			if c.Adapter != "" {
				p.printf("   Adapter: %s\n", c.Adapter)
			}
		} else {
			p.printf("   %s Could not create DirectML device: %s\n", p.cross(), c.Error)
		}
	}
	p.println()
}

func (p *TextPrinter) build(r *diag.Report) {
	b := r.Build
	p.printf("4. Build Information:\n")
	p.printf("   CUDA toolkit: %s\n", orNo(b.CUDAToolkit))
	if b.HIPApplies {
		p.printf("   HIP toolkit: %s\n", orNo(b.HIPToolkit))
	}
	p.printf("   CuDNN available: %t\n", b.CuDNNAvailable)
	if b.CuDNNAvailable {
		p.printf("   CuDNN version: %d\n", b.CuDNNVersion)
	}
	p.println()
}

func (p *TextPrinter) backends(r *diag.Report) {
	p.printf("5. Backend Tests:\n")
	p.printf("   CUDA backend built: %t\n", r.Build.CUDABackendBuilt)
	p.printf("   CuDNN backend available: %t\n", r.Build.CuDNNAvailable)
	p.println()
}

func (p *TextPrinter) tensor(r *diag.Report) {
	t := r.Tensor
	p.printf("6. Tensor Creation Test:\n")
	if t == nil {
		p.println()
		return
	}
	p.notes(t.Notes)
	switch {
	case !t.OK:
		p.printf("   %s Error creating tensor: %s\n", p.cross(), t.Error)
	case t.Backend == gpu.KindCUDA:
		p.printf("   %s Successfully created tensor on CUDA GPU\n", p.check())
	case t.Backend == gpu.KindDirectML:
		p.printf("   %s Successfully created tensor on DirectML device\n", p.check())
	case t.Requested == gpu.KindCPU:
		p.printf("   CPU tensor created (no GPU available)\n")
	default:
		p.printf("   CPU tensor created (no %s backend in this binary)\n", t.Requested)
	}
	if t.OK {
		p.printf("   Tensor device: %s\n", t.Device)
		p.printf("   Tensor shape: %dx%d\n", t.Rows, t.Cols)
	}
	p.println()
}

func (p *TextPrinter) benchmark(r *diag.Report) {
	b := r.Benchmark
	p.printf("7. Quick Performance Test:\n")
	if b == nil {
		p.println()
		return
	}
	p.notes(b.Notes)
	if !b.OK() {
		p.printf("   %s Performance test failed: %s\n", p.cross(), b.Error)
		p.println()
		return
	}
	p.printf("   Device: %s\n", b.Device)
	p.deviceInfo(b.DeviceInfo)
	p.printf("   Matrix size: %dx%d\n", b.Size, b.Size)
	p.printf("   Warmup: %d\n", b.Warmup)
	p.printf("   Iterations: %d\n", b.Iterations)
	p.printf("   Time: %.3f seconds\n", b.Elapsed.Seconds())
	p.printf("   Operations/sec: %.1f\n", b.OpsPerSecond)
	p.printf("   GFLOPS: %.1f\n", b.GFLOPS)
	switch b.Verification {
	case gpu.VerifyPassed:
		p.printf("   Verification: %s passed\n", p.check())
	case gpu.VerifyFailed:
		p.printf("   Verification: %s FAILED, the device returned a wrong product\n", p.cross())
	}
	p.println()
}

func (p *TextPrinter) deviceInfo(info *gpu.DeviceInfo) {
	if info == nil {
		return
	}
	if info.Name != "" {
		p.printf("   Device name: %s\n", info.Name)
	}
	if info.TotalMemory > 0 {
		if info.AvailableMemory > 0 {
			p.printf("   Device memory: %s (%s free)\n",
				humanize.IBytes(uint64(info.TotalMemory)), humanize.IBytes(uint64(info.AvailableMemory)))
		} else {
			p.printf("   Device memory: %s\n", humanize.IBytes(uint64(info.TotalMemory)))
		}
	}
	if info.ComputeCapability != "" && info.ComputeCapability != "N/A" {
		p.printf("   Compute capability: %s\n", info.ComputeCapability)
	}
	if info.CUDAVersion != "" {
		p.printf("   CUDA runtime: %s (driver %s)\n", info.CUDAVersion, info.DriverVersion)
	}
}

func (p *TextPrinter) summary(r *diag.Report) {
	p.rule(lightRule, "SUMMARY & RECOMMENDATIONS", lightRule)
	p.println()

	rec := r.Recommendation
	if rec == nil {
		return
	}
	marker := p.check()
	if rec.Summary == diag.ChoiceCPU {
		marker = p.caution()
	}
	p.printf("%s %s\n", marker, rec.Headline)
	for _, d := range rec.Details {
		p.printf("  %s\n", d)
	}
	if len(rec.Hints) > 0 {
		p.println()
	}
	for i, h := range rec.Hints {
		if i > 0 {
			p.println()
		}
		p.printf("%s\n", h.Title)
		for n, step := range h.Steps {
			p.printf("  %d. %s:\n", n+1, step.Action)
			p.printf("     %s\n", step.Command)
		}
	}
	p.println()
	p.printf("%s\n", heavyRule)
	p.println()
}

func (p *TextPrinter) workload(r *diag.Report) {
	p.printf("%s\n", p.title.Render(fmt.Sprintf("WHAT %s WILL USE:", r.Workload)))
	p.printf("%s\n", lightRule)

	rec := r.Recommendation
	if rec != nil {
		p.printf("Device: %s\n", rec.Device)
		if rec.DeviceName != "" {
			p.printf("Name: %s\n", rec.DeviceName)
		}
		if rec.Advice != "" {
			p.printf("Recommendation: %s\n", rec.Advice)
		}
	}
	p.println()
	p.printf("%s\n", heavyRule)
}

func (p *TextPrinter) notes(notes []string) {
	for _, n := range notes {
		p.printf("   %s %s, using CPU\n", p.caution(), n)
	}
}

func (p *TextPrinter) rule(top, text, bottom string) {
	p.printf("%s\n%s\n%s\n", top, p.title.Render(text), bottom)
}

func (p *TextPrinter) check() string   { return p.ok.Render("✓") }
func (p *TextPrinter) cross() string   { return p.fail.Render("✗") }
func (p *TextPrinter) caution() string { return p.warn.Render("⚠") }

func (p *TextPrinter) printf(format string, args ...any) {
	if p.err != nil {
		return
	}
	_, p.err = fmt.Fprintf(p.w, format, args...)
}

func (p *TextPrinter) println() {
	p.printf("\n")
}

func orNo(s string) string {
	if s == "" {
		return "No"
	}
	return s
}

func osName(goos string) string {
	switch goos {
	case "linux":
		return "Linux"
	case "windows":
		return "Windows"
	case "darwin":
		return "Darwin"
	case "freebsd":
		return "FreeBSD"
	default:
		return goos
	}
}
