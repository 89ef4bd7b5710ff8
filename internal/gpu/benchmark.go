package gpu

import (
	"context"
	"fmt"
	"time"
)

// BenchmarkOptions shapes a quick matmul run: Warmup untimed and Iterations
// timed multiplications of a Size×Size matrix by itself.
type BenchmarkOptions struct {
	Size         int
	Iterations   int
	Warmup       int
	Seed         int64
	VerifyRounds int
}

// Verification outcomes of the last product.
const (
	VerifyPassed  = "passed"
	VerifyFailed  = "failed"
	VerifySkipped = "skipped"
)

// BenchmarkResult is what a benchmark run measured.
type BenchmarkResult struct {
	Backend      Kind          `json:"backend"`
	Device       string        `json:"device"`
	Size         int           `json:"size"`
	Warmup       int           `json:"warmup"`
	Iterations   int           `json:"iterations"`
	Elapsed      time.Duration `json:"elapsedNs"`
	OpsPerSecond float64       `json:"opsPerSecond"`
	GFLOPS       float64       `json:"gflops"`
	Verification string        `json:"verification"`
}

// synchronizer is implemented by backends whose MatMul only enqueues work.
type synchronizer interface {
	Synchronize() error
}

// RunBenchmark multiplies a random Size×Size tensor by itself on b. It never
// panics: a panic inside the backend is returned as an error.
func RunBenchmark(ctx context.Context, b Backend, opts BenchmarkOptions) (res BenchmarkResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("benchmark panicked: %v", r)
		}
	}()

	if opts.Size <= 0 || opts.Iterations <= 0 || opts.Warmup < 0 {
		return res, fmt.Errorf("invalid benchmark shape: size=%d iterations=%d warmup=%d", opts.Size, opts.Iterations, opts.Warmup)
	}

	res = BenchmarkResult{
		Backend:      b.Kind(),
		Size:         opts.Size,
		Warmup:       opts.Warmup,
		Iterations:   opts.Iterations,
		Verification: VerifySkipped,
	}

	rng := NewRand(opts.Seed)
	host := RandomMatrix(rng, opts.Size, opts.Size)
	t, err := b.NewTensor(host, opts.Size, opts.Size)
	if err != nil {
		return res, fmt.Errorf("failed to create benchmark tensor: %w", err)
	}
	defer t.Release()
	res.Device = t.Device()

	for i := 0; i < opts.Warmup; i++ {
		out, err := b.MatMul(t, t)
		if err != nil {
			return res, fmt.Errorf("warmup multiplication %d: %w", i, err)
		}
		out.Release()
	}
	if err := synchronize(b); err != nil {
		return res, err
	}

	var last Tensor
	defer func() {
		if last != nil {
			last.Release()
		}
	}()

	start := time.Now()
	for i := 0; i < opts.Iterations; i++ {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		out, err := b.MatMul(t, t)
		if err != nil {
			return res, fmt.Errorf("multiplication %d: %w", i, err)
		}
		if last != nil {
			last.Release()
		}
		last = out
	}
	if err := synchronize(b); err != nil {
		return res, err
	}
	res.Elapsed = time.Since(start)

	seconds := res.Elapsed.Seconds()
	if seconds <= 0 {
		seconds = time.Nanosecond.Seconds()
	}
	n := float64(opts.Size)
	res.OpsPerSecond = float64(opts.Iterations) / seconds
	res.GFLOPS = 2 * n * n * n * float64(opts.Iterations) / seconds / 1e9

	if opts.VerifyRounds > 0 {
		product, err := last.Host()
		if err != nil {
			return res, fmt.Errorf("failed to read product: %w", err)
		}
		ok, err := FreivaldsVerify(host, host, product, opts.Size, opts.Size, opts.Size, opts.VerifyRounds, rng)
		if err != nil {
			return res, err
		}
		res.Verification = VerifyFailed
		if ok {
			res.Verification = VerifyPassed
		}
	}
	return res, nil
}

func synchronize(b Backend) error {
	if s, ok := b.(synchronizer); ok {
		if err := s.Synchronize(); err != nil {
			return fmt.Errorf("device synchronize: %w", err)
		}
	}
	return nil
}
