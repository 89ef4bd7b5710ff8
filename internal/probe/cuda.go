package probe

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"
)

// CUDAResult is what the NVIDIA driver reports.
type CUDAResult struct {
	Available     bool   `json:"available"`
	DeviceCount   int    `json:"deviceCount"`
	CurrentDevice int    `json:"currentDevice"`
	Devices       []GPU  `json:"devices,omitempty"`
	DriverVersion string `json:"driverVersion,omitempty"`
	// VisibleDevices echoes CUDA_VISIBLE_DEVICES when it is set.
	VisibleDevices *string `json:"visibleDevices,omitempty"`
	Error          string  `json:"error,omitempty"`
}

// DeviceName returns the name of the current device.
func (r CUDAResult) DeviceName() string {
	if len(r.Devices) == 0 {
		return ""
	}
	return r.Devices[0].Name
}

var nvidiaSmiQuery = []string{
	"--query-gpu=index,uuid,name,memory.total,driver_version",
	"--format=csv,noheader,nounits",
}

// CUDA lists the NVIDIA devices visible to this process.
func (p *Prober) CUDA(ctx context.Context) CUDAResult {
	var res CUDAResult

	output, err := p.nvidiaSmi(ctx)
	if err != nil {
		p.logger.Info("nvidia-smi unavailable", zap.Error(err))
		res.Error = err.Error()
		return res
	}

	devices := parseNvidiaSmi(string(output), p.logger)
	// An empty CUDA_VISIBLE_DEVICES hides every device, so presence matters.
	if visible, ok := p.lookupEnv("CUDA_VISIBLE_DEVICES"); ok {
		res.VisibleDevices = &visible
		devices = filterVisible(devices, visible)
	}

	res.Devices = devices
	res.DeviceCount = len(devices)
	res.Available = len(devices) > 0
	if !res.Available {
		if res.VisibleDevices != nil {
			res.Error = fmt.Sprintf("no device matches CUDA_VISIBLE_DEVICES=%q", *res.VisibleDevices)
		}
		return res
	}
	res.CurrentDevice = devices[0].Index
	res.DriverVersion = devices[0].Driver
	return res
}

func (p *Prober) nvidiaSmi(ctx context.Context) ([]byte, error) {
	paths := []string{p.cfg.Probe.NvidiaSmi}
	if p.goos == "windows" {
		paths = append(paths,
			`C:\Windows\System32\nvidia-smi.exe`,
			`C:\Program Files\NVIDIA Corporation\NVSMI\nvidia-smi.exe`,
		)
	}

	var err error
	for _, path := range paths {
		var output []byte
		output, err = p.run(ctx, path, nvidiaSmiQuery...)
		if err == nil {
			return output, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
	}
	return nil, err
}

// parseNvidiaSmi reads "index, uuid, name, memory, driver" lines.
func parseNvidiaSmi(output string, log *zap.Logger) []GPU {
	var devices []GPU
	for _, line := range strings.Split(strings.TrimSpace(output), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		values := strings.Split(line, ",")
		if len(values) < 5 {
			log.Warn("Unexpected nvidia-smi format", zap.String("line", line))
			continue
		}
		for i := range values {
			values[i] = strings.TrimSpace(values[i])
		}
		index, err := strconv.Atoi(values[0])
		if err != nil {
			log.Warn("Unexpected nvidia-smi index", zap.String("line", line))
			continue
		}
		memory, _ := strconv.Atoi(values[len(values)-2])
		devices = append(devices, GPU{
			Index:     index,
			UUID:      values[1],
			Name:      strings.Join(values[2:len(values)-2], ","),
			MemoryMiB: memory,
			Driver:    values[len(values)-1],
		})
	}
	return devices
}

// filterVisible applies CUDA_VISIBLE_DEVICES: a comma separated list of
// indexes or UUID prefixes, read up to the first entry that matches nothing.
func filterVisible(devices []GPU, visible string) []GPU {
	var out []GPU
	seen := make(map[int]bool)
	for _, entry := range strings.Split(visible, ",") {
		entry = strings.TrimSpace(entry)
		gpu, ok := matchDevice(devices, entry)
		if !ok || seen[gpu.Index] {
			break
		}
		seen[gpu.Index] = true
		out = append(out, gpu)
	}
	return out
}

func matchDevice(devices []GPU, entry string) (GPU, bool) {
	if entry == "" {
		return GPU{}, false
	}
	if index, err := strconv.Atoi(entry); err == nil {
		for _, d := range devices {
			if d.Index == index {
				return d, true
			}
		}
		return GPU{}, false
	}
	if !strings.HasPrefix(entry, "GPU-") {
		return GPU{}, false
	}
	for _, d := range devices {
		if strings.HasPrefix(d.UUID, entry) {
			return d, true
		}
	}
	return GPU{}, false
}
