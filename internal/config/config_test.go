package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fxnlabs/gpudiag/fixtures"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig(t *testing.T) {
	t.Run("valid yaml config", func(t *testing.T) {
		config, err := LoadConfig("../../fixtures/tests/config/valid_config.yaml")
		require.NoError(t, err)
		require.NotNil(t, config)

		assert.Equal(t, "debug", config.Logger.Verbosity)
		assert.Equal(t, 256, config.Benchmark.Size)
		assert.Equal(t, 20, config.Benchmark.Iterations)
		assert.Equal(t, 2, config.Benchmark.Warmup)
		assert.Equal(t, int64(42), config.Benchmark.Seed)
		assert.Equal(t, 5, config.Benchmark.VerifyRounds)
		assert.Equal(t, 4, config.Tensor.Rows)
		assert.Equal(t, 2, config.Tensor.Cols)
		assert.Equal(t, 3*time.Second, config.Probe.Timeout)
		assert.Equal(t, "/usr/bin/nvidia-smi", config.Probe.NvidiaSmi)
		assert.Equal(t, "rocm-smi", config.Probe.RocmSmi, "unset keys keep their defaults")
		assert.Equal(t, "/opt/rocm-6.0.2", config.Probe.RocmPath)
		assert.Equal(t, []string{"/opt/cudnn/include"}, config.Probe.CudnnIncludeDirs)
		assert.Equal(t, "train.py", config.Report.Workload)
		assert.Equal(t, OutputJSON, config.Report.Output)
		assert.True(t, config.Report.Banner)
		assert.Equal(t, "/var/lib/node_exporter/gpudiag.prom", config.Metrics.Textfile)
	})

	t.Run("valid toml config", func(t *testing.T) {
		config, err := LoadConfig("../../fixtures/tests/config/valid_config.toml")
		require.NoError(t, err)

		assert.Equal(t, "error", config.Logger.Verbosity)
		assert.Equal(t, 128, config.Benchmark.Size)
		assert.Equal(t, 5, config.Benchmark.Iterations)
		assert.Equal(t, 10, config.Benchmark.Warmup)
		assert.Equal(t, time.Minute, config.Probe.Timeout)
		assert.Equal(t, "serve.py", config.Report.Workload)
		assert.True(t, config.Report.NoColor)
		assert.Equal(t, OutputText, config.Report.Output)
	})

	t.Run("empty path returns defaults", func(t *testing.T) {
		config, err := LoadConfig("")
		require.NoError(t, err)
		assert.Equal(t, Default(), config)
	})

	t.Run("non-existent file", func(t *testing.T) {
		_, err := LoadConfig("non-existent-file.yaml")
		assert.Error(t, err)
	})

	t.Run("invalid yaml", func(t *testing.T) {
		dir, err := os.Getwd()
		require.NoError(t, err)

		configPath := filepath.Join(dir, "..", "..", "fixtures", "tests", "invalid_config", "config.yaml")
		_, err = LoadConfig(configPath)
		assert.Error(t, err)
	})

	t.Run("invalid values", func(t *testing.T) {
		_, err := LoadConfig("../../fixtures/tests/config/bad_benchmark.yaml")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "benchmark.size")
	})
}

func TestConfigTemplateMatchesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gpudiag.yaml")
	require.NoError(t, os.WriteFile(path, fixtures.ConfigTemplate, 0o600))

	config, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, Default(), config)
}

func TestValidate(t *testing.T) {
	testCases := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "defaults", mutate: func(*Config) {}},
		{name: "zero iterations", mutate: func(c *Config) { c.Benchmark.Iterations = 0 }, wantErr: "benchmark.iterations"},
		{name: "negative warmup", mutate: func(c *Config) { c.Benchmark.Warmup = -1 }, wantErr: "benchmark.warmup"},
		{name: "zero warmup allowed", mutate: func(c *Config) { c.Benchmark.Warmup = 0 }},
		{name: "negative verify rounds", mutate: func(c *Config) { c.Benchmark.VerifyRounds = -2 }, wantErr: "benchmark.verifyRounds"},
		{name: "empty tensor", mutate: func(c *Config) { c.Tensor.Cols = 0 }, wantErr: "tensor shape"},
		{name: "zero timeout", mutate: func(c *Config) { c.Probe.Timeout = 0 }, wantErr: "probe.timeout"},
		{name: "unknown output", mutate: func(c *Config) { c.Report.Output = "xml" }, wantErr: "report.output"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			c := Default()
			tc.mutate(c)
			err := c.Validate()
			if tc.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantErr)
		})
	}
}
