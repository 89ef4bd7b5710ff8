package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/fxnlabs/gpudiag/fixtures"
	"github.com/fxnlabs/gpudiag/internal/config"
	"github.com/fxnlabs/gpudiag/internal/diag"
	"github.com/fxnlabs/gpudiag/internal/logger"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
)

var version = "dev"

func main() {
	if err := newApp(os.Stdout, os.Stderr).Run(os.Args); err != nil {
		os.Exit(exitCode(err, os.Stderr))
	}
}

// exitCode reports err and returns the process status. A runtime load failure
// has already been printed as part of the report.
func exitCode(err error, stderr io.Writer) int {
	if !errors.Is(err, diag.ErrRuntimeUnavailable) {
		fmt.Fprintf(stderr, "Error: %v\n", err)
	}
	return 1
}

func newApp(stdout, stderr io.Writer) *cli.App {
	var cfg *config.Config
	var rootLogger *zap.Logger

	return &cli.App{
		Name:      "gpudiag",
		Usage:     "Report which GPU acceleration backends this machine can use",
		Version:   version,
		Writer:    stdout,
		ErrWriter: stderr,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to a YAML or TOML config file",
				EnvVars: []string{"GPUDIAG_CONFIG"},
			},
			&cli.StringFlag{
				Name:  "verbosity",
				Usage: "Log level written to stderr (debug, info, warn, error)",
			},
			&cli.StringFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Usage:   "Report format: text or json",
			},
			&cli.IntFlag{
				Name:  "size",
				Usage: "Benchmark matrix size",
			},
			&cli.IntFlag{
				Name:  "iterations",
				Usage: "Timed benchmark multiplications",
			},
			&cli.IntFlag{
				Name:  "warmup",
				Usage: "Untimed warmup multiplications",
			},
			&cli.StringFlag{
				Name:  "workload",
				Usage: "Name of the workload the recommendation is for",
			},
			&cli.StringFlag{
				Name:  "metrics-file",
				Usage: "Write Prometheus metrics to this textfile collector path",
			},
			&cli.BoolFlag{
				Name:  "banner",
				Usage: "Print an ASCII-art banner",
			},
			&cli.BoolFlag{
				Name:  "no-color",
				Usage: "Disable colored status markers",
			},
		},
		Before: func(c *cli.Context) error {
			var err error
			cfg, err = config.LoadConfig(c.String("config"))
			if err != nil {
				return err
			}
			applyFlags(c, cfg)
			if err := cfg.Validate(); err != nil {
				return err
			}
			zapLogger, err := logger.New(cfg.Logger.Verbosity)
			if err != nil {
				return err
			}
			rootLogger = zapLogger.Named("gpudiag")
			return nil
		},
		After: func(c *cli.Context) error {
			if rootLogger != nil {
				_ = rootLogger.Sync()
			}
			return nil
		},
		Action: func(c *cli.Context) error {
			return runDiagnostic(c.Context, cfg, rootLogger, stdout)
		},
		Commands: []*cli.Command{
			{
				Name:  "config",
				Usage: "Print the default configuration",
				Action: func(c *cli.Context) error {
					_, err := c.App.Writer.Write(fixtures.ConfigTemplate)
					return err
				},
			},
		},
	}
}

// applyFlags overrides file settings with the flags given on the command line.
func applyFlags(c *cli.Context, cfg *config.Config) {
	if c.IsSet("verbosity") {
		cfg.Logger.Verbosity = c.String("verbosity")
	}
	if c.IsSet("output") {
		cfg.Report.Output = c.String("output")
	}
	if c.IsSet("size") {
		cfg.Benchmark.Size = c.Int("size")
	}
	if c.IsSet("iterations") {
		cfg.Benchmark.Iterations = c.Int("iterations")
	}
	if c.IsSet("warmup") {
		cfg.Benchmark.Warmup = c.Int("warmup")
	}
	if c.IsSet("workload") {
		cfg.Report.Workload = c.String("workload")
	}
	if c.IsSet("metrics-file") {
		cfg.Metrics.Textfile = c.String("metrics-file")
	}
	if c.IsSet("banner") {
		cfg.Report.Banner = c.Bool("banner")
	}
	if c.IsSet("no-color") {
		cfg.Report.NoColor = c.Bool("no-color")
	}
}
