// Package probe asks the machine which GPU stacks are installed. It runs the
// vendor command line tools, reads well-known install files and device nodes,
// and on Windows loads the DirectML system library. A probe never fails the
// run: problems are recorded in the result's Error field.
package probe

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/fxnlabs/gpudiag/internal/config"
	"go.uber.org/zap"
)

var (
	// ErrToolNotFound is returned by a Runner when the executable does not exist.
	ErrToolNotFound = errors.New("executable not found")
	// ErrUnsupportedPlatform marks a probe that does not apply to this OS.
	ErrUnsupportedPlatform = errors.New("not supported on this platform")
)

// GPU is one device reported by a vendor tool.
type GPU struct {
	Index     int    `json:"index"`
	UUID      string `json:"uuid,omitempty"`
	Name      string `json:"name"`
	MemoryMiB int    `json:"memoryMiB,omitempty"`
	Driver    string `json:"driver,omitempty"`
}

// Runner executes an external command and returns its standard output.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

// ExecRunner runs commands with os/exec.
type ExecRunner struct{}

func (ExecRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	output, err := exec.CommandContext(ctx, name, args...).Output()
	if err == nil {
		return output, nil
	}
	if errors.Is(err, exec.ErrNotFound) || errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%s: %w", name, ErrToolNotFound)
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		stderr := strings.TrimSpace(string(exitErr.Stderr))
		if stderr == "" {
			return nil, fmt.Errorf("%s exited with status %d", name, exitErr.ExitCode())
		}
		return nil, fmt.Errorf("%s exited with status %d: %s", name, exitErr.ExitCode(), stderr)
	}
	return nil, fmt.Errorf("%s: %w", name, err)
}

// Prober runs the individual probes against one machine.
type Prober struct {
	cfg       *config.Config
	logger    *zap.Logger
	runner    Runner
	fsys      fs.FS
	goos      string
	lookupEnv func(string) (string, bool)
	dml       DirectMLRuntime

	// The HIP version is needed by both ROCm and Build; hipconfig runs once.
	hipOnce sync.Once
	hip     string
	hipErr  error
}

// Option overrides how a Prober reaches the machine.
type Option func(*Prober)

// WithRunner replaces command execution.
func WithRunner(r Runner) Option {
	return func(p *Prober) { p.runner = r }
}

// WithFS resolves absolute paths inside fsys instead of the host filesystem.
// "/opt/rocm/.info/version" is looked up as "opt/rocm/.info/version".
func WithFS(fsys fs.FS) Option {
	return func(p *Prober) { p.fsys = fsys }
}

// WithGOOS pretends to run on goos.
func WithGOOS(goos string) Option {
	return func(p *Prober) { p.goos = goos }
}

// WithLookupEnv replaces environment lookups; lookup has the signature of
// os.LookupEnv.
func WithLookupEnv(lookup func(string) (string, bool)) Option {
	return func(p *Prober) { p.lookupEnv = lookup }
}

// WithDirectML replaces the DirectML library loader.
func WithDirectML(dml DirectMLRuntime) Option {
	return func(p *Prober) { p.dml = dml }
}

// NewProber creates a prober for the running host.
func NewProber(cfg *config.Config, logger *zap.Logger, opts ...Option) *Prober {
	p := &Prober{
		cfg:       cfg,
		logger:    logger,
		runner:    ExecRunner{},
		goos:      runtime.GOOS,
		lookupEnv: os.LookupEnv,
		dml:       newSystemDirectML(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// GOOS is the operating system the prober targets.
func (p *Prober) GOOS() string {
	return p.goos
}

func (p *Prober) run(ctx context.Context, name string, args ...string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, p.cfg.Probe.Timeout)
	defer cancel()

	start := time.Now()
	output, err := p.runner.Run(ctx, name, args...)
	p.logger.Debug("ran command",
		zap.String("command", name),
		zap.Strings("args", args),
		zap.Duration("took", time.Since(start)),
		zap.Error(err))
	if err != nil && ctx.Err() == context.DeadlineExceeded {
		return nil, fmt.Errorf("%s timed out after %s", name, p.cfg.Probe.Timeout)
	}
	return output, err
}

func (p *Prober) readFile(name string) ([]byte, error) {
	if p.fsys == nil {
		return os.ReadFile(name)
	}
	return fs.ReadFile(p.fsys, fsPath(name))
}

func (p *Prober) exists(name string) bool {
	var err error
	if p.fsys == nil {
		_, err = os.Stat(name)
	} else {
		_, err = fs.Stat(p.fsys, fsPath(name))
	}
	return err == nil
}

func fsPath(name string) string {
	return strings.TrimPrefix(filepath.ToSlash(name), "/")
}

// env returns the first non-empty environment variable among keys.
func (p *Prober) env(keys ...string) string {
	for _, key := range keys {
		if v, _ := p.lookupEnv(key); v != "" {
			return v
		}
	}
	return ""
}
