package probe

import (
	"context"
	"encoding/json"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/fxnlabs/gpudiag/internal/gpu"
	"go.uber.org/zap"
)

// BuildInfo lists the toolkits installed next to the driver and what this
// binary was compiled with.
type BuildInfo struct {
	// CUDAToolkit is "major.minor", empty when no toolkit was found.
	CUDAToolkit string `json:"cudaToolkit,omitempty"`
	// HIPToolkit is empty when no HIP toolkit was found or the platform is
	// not Linux.
	HIPToolkit     string `json:"hipToolkit,omitempty"`
	HIPApplies     bool   `json:"hipApplies"`
	CuDNNAvailable bool   `json:"cudnnAvailable"`
	// CuDNNVersion uses cuDNN's own encoding, e.g. 8906 for 8.9.6 and
	// 90100 for 9.1.0.
	CuDNNVersion     int  `json:"cudnnVersion,omitempty"`
	CUDABackendBuilt bool `json:"cudaBackendBuilt"`
}

var (
	nvccReleasePattern = regexp.MustCompile(`release (\d+\.\d+)`)
	cudnnDefinePattern = regexp.MustCompile(`(?m)^\s*#define\s+CUDNN_(MAJOR|MINOR|PATCHLEVEL)\s+(\d+)`)
)

// Build inspects the CUDA, HIP and cuDNN toolkits.
func (p *Prober) Build(ctx context.Context) BuildInfo {
	info := BuildInfo{
		CUDABackendBuilt: gpu.CUDABuilt,
		HIPApplies:       p.goos == "linux",
	}

	if v, err := p.cudaToolkit(ctx); err == nil {
		info.CUDAToolkit = v
	} else {
		p.logger.Debug("CUDA toolkit not found", zap.Error(err))
	}

	if info.HIPApplies {
		if v, err := p.hipVersion(ctx); err == nil {
			info.HIPToolkit = v
		}
	}

	if v, ok := p.cudnnVersion(); ok {
		info.CuDNNAvailable = true
		info.CuDNNVersion = v
	}
	return info
}

func (p *Prober) cudaHome() string {
	if p.cfg.Probe.CudaHome != "" {
		return p.cfg.Probe.CudaHome
	}
	if home := p.env("CUDA_HOME", "CUDA_PATH"); home != "" {
		return home
	}
	return "/usr/local/cuda"
}

// cudaToolkit reads <cuda>/version.json and falls back to nvcc --version.
func (p *Prober) cudaToolkit(ctx context.Context) (string, error) {
	if data, err := p.readFile(filepath.Join(p.cudaHome(), "version.json")); err == nil {
		var manifest struct {
			CUDA struct {
				Version string `json:"version"`
			} `json:"cuda"`
		}
		if err := json.Unmarshal(data, &manifest); err == nil && manifest.CUDA.Version != "" {
			return majorMinor(manifest.CUDA.Version), nil
		}
	}

	output, err := p.run(ctx, p.cfg.Probe.Nvcc, "--version")
	if err != nil {
		return "", err
	}
	m := nvccReleasePattern.FindStringSubmatch(string(output))
	if m == nil {
		return "", ErrToolNotFound
	}
	return m[1], nil
}

func majorMinor(version string) string {
	parts := strings.SplitN(version, ".", 3)
	if len(parts) < 2 {
		return version
	}
	return parts[0] + "." + parts[1]
}

// cudnnVersion finds cudnn_version.h (or the pre-8 cudnn.h) in the include dirs.
func (p *Prober) cudnnVersion() (int, bool) {
	dirs := append([]string{}, p.cfg.Probe.CudnnIncludeDirs...)
	dirs = append(dirs, filepath.Join(p.cudaHome(), "include"))

	for _, dir := range dirs {
		for _, header := range []string{"cudnn_version.h", "cudnn.h"} {
			data, err := p.readFile(filepath.Join(dir, header))
			if err != nil {
				continue
			}
			if v, ok := parseCuDNNVersion(string(data)); ok {
				p.logger.Debug("found cuDNN", zap.String("header", filepath.Join(dir, header)), zap.Int("version", v))
				return v, true
			}
		}
	}
	return 0, false
}

// parseCuDNNVersion computes CUDNN_VERSION from the header's defines.
func parseCuDNNVersion(header string) (int, bool) {
	parts := map[string]int{}
	for _, m := range cudnnDefinePattern.FindAllStringSubmatch(header, -1) {
		n, err := strconv.Atoi(m[2])
		if err != nil {
			continue
		}
		parts[m[1]] = n
	}
	major, ok := parts["MAJOR"]
	if !ok {
		return 0, false
	}
	if major >= 9 {
		return major*10000 + parts["MINOR"]*100 + parts["PATCHLEVEL"], true
	}
	return major*1000 + parts["MINOR"]*100 + parts["PATCHLEVEL"], true
}
