package probe

import (
	"context"
	"encoding/csv"
	"fmt"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"go.uber.org/zap"
)

// ROCmResult describes the AMD ROCm/HIP installation.
type ROCmResult struct {
	SupportedPlatform bool `json:"supportedPlatform"`
	// HIPVersion is empty when no HIP runtime is installed.
	HIPVersion string `json:"hipVersion,omitempty"`
	// KFD reports whether the kernel fusion driver node /dev/kfd exists.
	KFD     bool   `json:"kfd"`
	Devices []GPU  `json:"devices,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Detected reports whether a HIP runtime is installed.
func (r ROCmResult) Detected() bool {
	return r.HIPVersion != ""
}

var hipVersionPattern = regexp.MustCompile(`\d+\.\d+[\w.\-]*`)

// ROCm inspects the ROCm installation. It only applies to Linux.
func (p *Prober) ROCm(ctx context.Context) ROCmResult {
	var res ROCmResult
	if p.goos != "linux" {
		res.Error = fmt.Sprintf("ROCm: %s", ErrUnsupportedPlatform)
		return res
	}
	res.SupportedPlatform = true

	version, err := p.hipVersion(ctx)
	if err != nil {
		p.logger.Info("HIP runtime not found", zap.Error(err))
		res.Error = err.Error()
	}
	res.HIPVersion = version
	res.KFD = p.exists("/dev/kfd")

	if !res.Detected() {
		return res
	}

	output, err := p.run(ctx, p.cfg.Probe.RocmSmi, "--showproductname", "--csv")
	if err != nil {
		p.logger.Warn("rocm-smi failed", zap.Error(err))
		res.Error = err.Error()
		return res
	}
	devices, err := parseRocmSmi(string(output))
	if err != nil {
		p.logger.Warn("Unexpected rocm-smi format", zap.Error(err))
		res.Error = err.Error()
	}
	res.Devices = devices
	return res
}

func (p *Prober) rocmPath() string {
	if path := p.env("ROCM_PATH", "HIP_PATH"); path != "" {
		return path
	}
	return p.cfg.Probe.RocmPath
}

// hipVersion reads <rocm>/.info/version and falls back to hipconfig. The
// answer of the first call is reused by later ones.
func (p *Prober) hipVersion(ctx context.Context) (string, error) {
	p.hipOnce.Do(func() {
		p.hip, p.hipErr = p.lookupHIPVersion(ctx)
	})
	return p.hip, p.hipErr
}

func (p *Prober) lookupHIPVersion(ctx context.Context) (string, error) {
	data, fileErr := p.readFile(filepath.Join(p.rocmPath(), ".info", "version"))
	if fileErr == nil {
		if v := strings.TrimSpace(string(data)); v != "" {
			return v, nil
		}
	}

	output, err := p.run(ctx, p.cfg.Probe.Hipconfig, "--version")
	if err != nil {
		return "", fmt.Errorf("no ROCm version file (%v) and %w", fileErr, err)
	}
	v := hipVersionPattern.FindString(string(output))
	if v == "" {
		return "", fmt.Errorf("unexpected hipconfig output %q", strings.TrimSpace(string(output)))
	}
	return v, nil
}

// parseRocmSmi reads the CSV printed by rocm-smi --showproductname --csv.
func parseRocmSmi(output string) ([]GPU, error) {
	r := csv.NewReader(strings.NewReader(strings.TrimSpace(output)))
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true
	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to parse rocm-smi output: %w", err)
	}
	if len(records) < 2 {
		return nil, nil
	}

	header := records[0]
	nameCol := -1
	for _, want := range []string{"Card series", "Card Series", "Card model", "Card Model"} {
		for i, h := range header {
			if strings.TrimSpace(h) == want {
				nameCol = i
				break
			}
		}
		if nameCol >= 0 {
			break
		}
	}
	if nameCol < 0 {
		return nil, fmt.Errorf("rocm-smi output has no product name column: %v", header)
	}

	var devices []GPU
	for _, rec := range records[1:] {
		if len(rec) <= nameCol {
			continue
		}
		index, err := strconv.Atoi(strings.TrimPrefix(strings.TrimSpace(rec[0]), "card"))
		if err != nil {
			continue
		}
		devices = append(devices, GPU{Index: index, Name: strings.TrimSpace(rec[nameCol])})
	}
	return devices, nil
}
