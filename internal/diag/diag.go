// Package diag runs the GPU detection diagnostic: it loads the compute
// runtime, runs every probe, exercises the chosen device and derives the
// recommendation, handing each finished section to a Printer.
package diag

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fxnlabs/gpudiag/internal/config"
	"github.com/fxnlabs/gpudiag/internal/gpu"
	"github.com/fxnlabs/gpudiag/internal/metrics"
	"github.com/fxnlabs/gpudiag/internal/probe"
	"github.com/fxnlabs/gpudiag/internal/sysinfo"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrRuntimeUnavailable is returned by Run when the compute runtime cannot be
// loaded. It is the only error that aborts a run.
var ErrRuntimeUnavailable = errors.New("compute runtime unavailable")

// Prober answers the detection questions.
type Prober interface {
	GOOS() string
	CUDA(ctx context.Context) probe.CUDAResult
	ROCm(ctx context.Context) probe.ROCmResult
	DirectML(ctx context.Context) probe.DirectMLResult
	Build(ctx context.Context) probe.BuildInfo
}

// Printer renders the report. Section is called as each section completes;
// Finish once at the end, including after a failed runtime load.
type Printer interface {
	Section(s Section, r *Report) error
	Finish(r *Report) error
}

// SystemCollector gathers host facts.
type SystemCollector func(ctx context.Context) sysinfo.Info

// RuntimeLoader loads the compute runtime.
type RuntimeLoader func(logger *zap.Logger) (*gpu.Runtime, error)

// Diagnostic drives one run.
type Diagnostic struct {
	cfg     *config.Config
	logger  *zap.Logger
	prober  Prober
	collect SystemCollector
	load    RuntimeLoader
	metrics *metrics.Metrics
	printer Printer

	runtime *gpu.Runtime
}

// NewDiagnostic wires a diagnostic run.
func NewDiagnostic(
	cfg *config.Config,
	logger *zap.Logger,
	prober Prober,
	collect SystemCollector,
	load RuntimeLoader,
	m *metrics.Metrics,
	printer Printer,
) *Diagnostic {
	return &Diagnostic{
		cfg:     cfg,
		logger:  logger.Named("diag"),
		prober:  prober,
		collect: collect,
		load:    load,
		metrics: m,
		printer: printer,
	}
}

// Run executes every section in order. Only a runtime load failure is
// returned as an error; every other failure is recorded in the report.
func (d *Diagnostic) Run(ctx context.Context) (*Report, error) {
	r := &Report{
		RunID:     uuid.NewString(),
		StartedAt: time.Now().UTC(),
		GOOS:      d.prober.GOOS(),
		Workload:  d.cfg.Report.Workload,
	}
	d.logger.Debug("starting diagnostic", zap.String("runId", r.RunID))

	r.System = d.collect(ctx)
	d.emit(SectionHeader, r)

	rt, err := d.load(d.logger.Named("gpu"))
	if err != nil {
		r.Runtime = RuntimeStatus{Error: err.Error()}
		d.emit(SectionRuntime, r)
		d.finish(r)
		return r, fmt.Errorf("%w: %v", ErrRuntimeUnavailable, err)
	}
	d.runtime = rt
	r.Runtime = RuntimeStatus{Loaded: true, Description: rt.Description(), Version: gpu.Version()}
	d.emit(SectionRuntime, r)
	d.emit(SectionDetection, r)

	r.CUDA = observe(d, "cuda", func() probe.CUDAResult { return d.prober.CUDA(ctx) })
	d.metrics.SetDetected(string(gpu.KindCUDA), r.CUDA.Available)
	d.emit(SectionCUDA, r)

	r.ROCm = observe(d, "rocm", func() probe.ROCmResult { return d.prober.ROCm(ctx) })
	d.metrics.SetDetected(string(gpu.KindROCm), r.ROCm.Detected())
	d.emit(SectionROCm, r)

	r.DirectML = observe(d, "directml", func() probe.DirectMLResult { return d.prober.DirectML(ctx) })
	d.metrics.SetDetected(string(gpu.KindDirectML), r.DirectML.Usable())
	d.emit(SectionDirectML, r)

	r.Build = observe(d, "build", func() probe.BuildInfo { return d.prober.Build(ctx) })
	d.emit(SectionBuild, r)
	d.emit(SectionBackends, r)

	r.Tensor = d.tensorTest(r)
	d.emit(SectionTensor, r)

	r.Benchmark = d.benchmark(ctx, r)
	d.emit(SectionBenchmark, r)

	rec := Recommend(r, r.GOOS)
	r.Recommendation = &rec
	d.emit(SectionSummary, r)
	d.emit(SectionWorkload, r)

	d.finish(r)
	return r, nil
}

// Close releases the compute runtime.
func (d *Diagnostic) Close() error {
	if d.runtime == nil {
		return nil
	}
	err := d.runtime.Cleanup()
	d.runtime = nil
	return err
}

// device picks the kind the tensor and benchmark tests should run on: CUDA
// when detected, DirectML when a device could be created, the CPU otherwise.
func device(r *Report) gpu.Kind {
	switch {
	case r.CUDA.Available:
		return gpu.KindCUDA
	case r.DirectML.Usable():
		return gpu.KindDirectML
	default:
		return gpu.KindCPU
	}
}

func (d *Diagnostic) selectBackend(r *Report) (gpu.Kind, gpu.Backend, []string) {
	want := device(r)
	b, notes := d.runtime.Select(want)
	return want, b, notes
}

func (d *Diagnostic) tensorTest(r *Report) (res *TensorResult) {
	want, backend, notes := d.selectBackend(r)
	res = &TensorResult{
		Requested: want,
		Backend:   backend.Kind(),
		Rows:      d.cfg.Tensor.Rows,
		Cols:      d.cfg.Tensor.Cols,
		Notes:     notes,
	}
	defer func() {
		if p := recover(); p != nil {
			res.OK = false
			res.Error = fmt.Sprintf("tensor creation panicked: %v", p)
		}
		d.metrics.TensorCreated.WithLabelValues(string(res.Backend)).Set(boolToFloat(res.OK))
	}()

	t, err := gpu.RandomTensor(backend, gpu.NewRand(d.cfg.Benchmark.Seed), res.Rows, res.Cols)
	if err != nil {
		d.logger.Warn("Error creating tensor", zap.Error(err))
		res.Error = err.Error()
		return res
	}
	defer t.Release()
	res.OK = true
	res.Device = t.Device()
	return res
}

func (d *Diagnostic) benchmark(ctx context.Context, r *Report) *BenchmarkStatus {
	want, backend, notes := d.selectBackend(r)
	return d.benchmarkOn(ctx, backend, &BenchmarkStatus{Requested: want, Notes: notes})
}

func (d *Diagnostic) benchmarkOn(ctx context.Context, backend gpu.Backend, status *BenchmarkStatus) *BenchmarkStatus {
	status.Backend = backend.Kind()
	defer func() {
		if p := recover(); p != nil {
			status.Error = fmt.Sprintf("benchmark panicked: %v", p)
		}
		outcome := "ok"
		if !status.OK() {
			outcome = "error"
		}
		d.metrics.BenchmarkRuns.WithLabelValues(string(status.Backend), outcome).Inc()
	}()

	opts := gpu.BenchmarkOptions{
		Size:         d.cfg.Benchmark.Size,
		Iterations:   d.cfg.Benchmark.Iterations,
		Warmup:       d.cfg.Benchmark.Warmup,
		Seed:         d.cfg.Benchmark.Seed,
		VerifyRounds: d.cfg.Benchmark.VerifyRounds,
	}
	info := backend.GetDeviceInfo()
	status.DeviceInfo = &info

	res, err := gpu.RunBenchmark(ctx, backend, opts)
	status.BenchmarkResult = res
	status.Backend = backend.Kind()
	if err != nil {
		d.logger.Warn("Performance test failed", zap.Error(err))
		status.Error = err.Error()
		return status
	}

	d.metrics.BenchmarkSeconds.Set(res.Elapsed.Seconds())
	d.metrics.BenchmarkOps.Set(res.OpsPerSecond)
	d.metrics.BenchmarkGFLOPS.Set(res.GFLOPS)
	d.metrics.BenchmarkSize.Set(float64(res.Size))
	if res.Verification == gpu.VerifyFailed {
		d.logger.Warn("benchmark product failed verification", zap.String("backend", string(res.Backend)))
	}
	return status
}

func observe[T any](d *Diagnostic, name string, fn func() T) T {
	start := time.Now()
	res := fn()
	took := time.Since(start)
	d.metrics.ObserveProbe(name, took)
	d.logger.Debug("probe finished", zap.String("probe", name), zap.Duration("took", took))
	return res
}

func (d *Diagnostic) emit(s Section, r *Report) {
	if err := d.printer.Section(s, r); err != nil {
		d.logger.Warn("failed to print section", zap.Stringer("section", s), zap.Error(err))
	}
}

func (d *Diagnostic) finish(r *Report) {
	if err := d.printer.Finish(r); err != nil {
		d.logger.Warn("failed to finish report", zap.Error(err))
	}
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
