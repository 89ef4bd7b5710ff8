package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/fxnlabs/gpudiag/internal/config"
	"github.com/fxnlabs/gpudiag/internal/diag"
	"github.com/fxnlabs/gpudiag/internal/gpu"
	"github.com/fxnlabs/gpudiag/internal/metrics"
	"github.com/fxnlabs/gpudiag/internal/probe"
	"github.com/fxnlabs/gpudiag/internal/report"
	"github.com/fxnlabs/gpudiag/internal/sysinfo"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
)

const stopTimeout = 5 * time.Second

// diagnosticModule provides everything a Diagnostic needs.
func diagnosticModule(cfg *config.Config, log *zap.Logger, stdout io.Writer) fx.Option {
	return fx.Options(
		fx.WithLogger(func() fxevent.Logger {
			return &fxevent.ZapLogger{Logger: log.Named("fx")}
		}),
		fx.Supply(cfg, log),
		fx.Provide(
			func(cfg *config.Config, log *zap.Logger) diag.Prober {
				return probe.NewProber(cfg, log.Named("probe"))
			},
			func(log *zap.Logger) diag.SystemCollector {
				return func(ctx context.Context) sysinfo.Info {
					return sysinfo.Collect(ctx, log.Named("sysinfo"))
				}
			},
			func() diag.RuntimeLoader { return gpu.NewRuntime },
			func(cfg *config.Config) diag.Printer { return report.New(cfg, stdout) },
			metrics.New,
			diag.NewDiagnostic,
		),
		fx.Invoke(func(lc fx.Lifecycle, d *diag.Diagnostic) {
			lc.Append(fx.Hook{
				OnStop: func(context.Context) error { return d.Close() },
			})
		}),
	)
}

// runDiagnostic assembles and runs one diagnostic. extra options let tests
// replace components.
func runDiagnostic(ctx context.Context, cfg *config.Config, log *zap.Logger, stdout io.Writer, extra ...fx.Option) error {
	var d *diag.Diagnostic
	var m *metrics.Metrics

	app := fx.New(
		diagnosticModule(cfg, log, stdout),
		fx.Options(extra...),
		fx.Populate(&d, &m),
	)
	if err := app.Err(); err != nil {
		return fmt.Errorf("failed to assemble diagnostic: %w", err)
	}
	if err := app.Start(ctx); err != nil {
		return fmt.Errorf("failed to start diagnostic: %w", err)
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), stopTimeout)
		defer cancel()
		if err := app.Stop(stopCtx); err != nil {
			log.Warn("failed to release compute runtime", zap.Error(err))
		}
	}()

	_, runErr := d.Run(ctx)

	if cfg.Metrics.Textfile != "" {
		if err := m.WriteTextfile(cfg.Metrics.Textfile); err != nil {
			log.Error("failed to write metrics", zap.Error(err))
		} else {
			log.Info("wrote metrics", zap.String("path", cfg.Metrics.Textfile))
		}
	}
	return runErr
}
