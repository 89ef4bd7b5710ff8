package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

const (
	OutputText = "text"
	OutputJSON = "json"
)

type Config struct {
	Logger struct {
		Verbosity string `yaml:"verbosity" toml:"verbosity"`
	} `yaml:"logger" toml:"logger"`
	Benchmark struct {
		Size       int   `yaml:"size" toml:"size"`
		Iterations int   `yaml:"iterations" toml:"iterations"`
		Warmup     int   `yaml:"warmup" toml:"warmup"`
		Seed       int64 `yaml:"seed" toml:"seed"`
		// VerifyRounds is the number of Freivalds rounds run against the last product.
		VerifyRounds int `yaml:"verifyRounds" toml:"verifyRounds"`
	} `yaml:"benchmark" toml:"benchmark"`
	Tensor struct {
		Rows int `yaml:"rows" toml:"rows"`
		Cols int `yaml:"cols" toml:"cols"`
	} `yaml:"tensor" toml:"tensor"`
	Probe struct {
		Timeout          time.Duration `yaml:"timeout" toml:"timeout"`
		NvidiaSmi        string        `yaml:"nvidiaSmi" toml:"nvidiaSmi"`
		RocmSmi          string        `yaml:"rocmSmi" toml:"rocmSmi"`
		Hipconfig        string        `yaml:"hipconfig" toml:"hipconfig"`
		Nvcc             string        `yaml:"nvcc" toml:"nvcc"`
		CudaHome         string        `yaml:"cudaHome" toml:"cudaHome"`
		RocmPath         string        `yaml:"rocmPath" toml:"rocmPath"`
		CudnnIncludeDirs []string      `yaml:"cudnnIncludeDirs" toml:"cudnnIncludeDirs"`
	} `yaml:"probe" toml:"probe"`
	Report struct {
		Workload string `yaml:"workload" toml:"workload"`
		Output   string `yaml:"output" toml:"output"`
		Banner   bool   `yaml:"banner" toml:"banner"`
		NoColor  bool   `yaml:"noColor" toml:"noColor"`
	} `yaml:"report" toml:"report"`
	Metrics struct {
		Textfile string `yaml:"textfile" toml:"textfile"`
	} `yaml:"metrics" toml:"metrics"`
}

// Default returns the configuration used when no file is given. The benchmark
// shape matches the quick check operators are used to: 1000x1000, 10 warmup
// and 100 timed multiplications.
func Default() *Config {
	var c Config
	c.Logger.Verbosity = "warn"
	c.Benchmark.Size = 1000
	c.Benchmark.Iterations = 100
	c.Benchmark.Warmup = 10
	c.Benchmark.Seed = 1
	c.Benchmark.VerifyRounds = 3
	c.Tensor.Rows = 3
	c.Tensor.Cols = 3
	c.Probe.Timeout = 10 * time.Second
	c.Probe.NvidiaSmi = "nvidia-smi"
	c.Probe.RocmSmi = "rocm-smi"
	c.Probe.Hipconfig = "hipconfig"
	c.Probe.Nvcc = "nvcc"
	c.Probe.RocmPath = "/opt/rocm"
	c.Probe.CudnnIncludeDirs = []string{
		"/usr/include",
		"/usr/include/x86_64-linux-gnu",
		"/usr/local/cuda/include",
	}
	c.Report.Workload = "classify_cloudinary.py"
	c.Report.Output = OutputText
	return &c
}

// LoadConfig reads path on top of Default. Files ending in .toml are decoded
// as TOML, everything else as YAML. An empty path returns the defaults.
func LoadConfig(path string) (*Config, error) {
	config := Default()
	if path == "" {
		return config, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	if strings.EqualFold(filepath.Ext(path), ".toml") {
		if _, err := toml.Decode(string(data), config); err != nil {
			return nil, fmt.Errorf("failed to decode %s: %w", path, err)
		}
	} else {
		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to decode %s: %w", path, err)
		}
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// Validate reports the first setting that cannot produce a meaningful run.
func (c *Config) Validate() error {
	switch {
	case c.Benchmark.Size <= 0:
		return fmt.Errorf("benchmark.size must be positive, got %d", c.Benchmark.Size)
	case c.Benchmark.Iterations <= 0:
		return fmt.Errorf("benchmark.iterations must be positive, got %d", c.Benchmark.Iterations)
	case c.Benchmark.Warmup < 0:
		return fmt.Errorf("benchmark.warmup must not be negative, got %d", c.Benchmark.Warmup)
	case c.Benchmark.VerifyRounds < 0:
		return fmt.Errorf("benchmark.verifyRounds must not be negative, got %d", c.Benchmark.VerifyRounds)
	case c.Tensor.Rows <= 0 || c.Tensor.Cols <= 0:
		return fmt.Errorf("tensor shape must be positive, got %dx%d", c.Tensor.Rows, c.Tensor.Cols)
	case c.Probe.Timeout <= 0:
		return fmt.Errorf("probe.timeout must be positive, got %s", c.Probe.Timeout)
	}
	switch c.Report.Output {
	case OutputText, OutputJSON:
	default:
		return fmt.Errorf("report.output must be %q or %q, got %q", OutputText, OutputJSON, c.Report.Output)
	}
	return nil
}
