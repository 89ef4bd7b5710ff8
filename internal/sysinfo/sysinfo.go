// Package sysinfo gathers the host facts printed at the top of a diagnostic
// run. Every field is best effort: a value that cannot be read stays empty.
package sysinfo

import (
	"context"
	"runtime"
	"strings"

	gopsutilcpu "github.com/shirou/gopsutil/cpu"
	"github.com/shirou/gopsutil/host"
	"github.com/shirou/gopsutil/mem"
	"go.uber.org/zap"
	"golang.org/x/sys/cpu"
)

// Info describes the machine the diagnostic runs on.
type Info struct {
	OS              string   `json:"os"`
	Platform        string   `json:"platform,omitempty"`
	PlatformVersion string   `json:"platformVersion,omitempty"`
	KernelRelease   string   `json:"kernelRelease,omitempty"`
	Arch            string   `json:"arch"`
	GoVersion       string   `json:"goVersion"`
	CPUModel        string   `json:"cpuModel,omitempty"`
	NumCPU          int      `json:"numCpu"`
	MemoryTotal     uint64   `json:"memoryTotal,omitempty"` // in bytes
	CPUFeatures     []string `json:"cpuFeatures,omitempty"`
}

// Release returns what the platform line prints after the OS name: the kernel
// release when known, the platform version otherwise.
func (i Info) Release() string {
	if i.KernelRelease != "" {
		return i.KernelRelease
	}
	return i.PlatformVersion
}

// Collect reads host, memory and CPU facts.
func Collect(ctx context.Context, log *zap.Logger) Info {
	info := Info{
		OS:          runtime.GOOS,
		Arch:        runtime.GOARCH,
		GoVersion:   strings.TrimPrefix(runtime.Version(), "go"),
		NumCPU:      runtime.NumCPU(),
		CPUFeatures: Features(),
	}

	if h, err := host.InfoWithContext(ctx); err == nil {
		info.Platform = h.Platform
		info.PlatformVersion = h.PlatformVersion
		info.KernelRelease = h.KernelVersion
	} else {
		log.Debug("host info unavailable", zap.Error(err))
	}

	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		info.MemoryTotal = vm.Total
	} else {
		log.Debug("memory info unavailable", zap.Error(err))
	}

	if cpus, err := gopsutilcpu.InfoWithContext(ctx); err == nil && len(cpus) > 0 {
		info.CPUModel = strings.TrimSpace(cpus[0].ModelName)
	} else if err != nil {
		log.Debug("cpu info unavailable", zap.Error(err))
	}

	return info
}

// Features lists the SIMD extensions relevant to the CPU matmul path.
func Features() []string {
	var features []string
	add := func(ok bool, name string) {
		if ok {
			features = append(features, name)
		}
	}
	switch runtime.GOARCH {
	case "amd64", "386":
		add(cpu.X86.HasSSE42, "sse4.2")
		add(cpu.X86.HasAVX, "avx")
		add(cpu.X86.HasAVX2, "avx2")
		add(cpu.X86.HasFMA, "fma")
		add(cpu.X86.HasAVX512F, "avx512f")
	case "arm64":
		add(cpu.ARM64.HasASIMD, "neon")
		add(cpu.ARM64.HasFPHP, "fp16")
		add(cpu.ARM64.HasSVE, "sve")
	}
	return features
}
