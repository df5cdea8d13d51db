package drone

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/loykin/drone/internal/channel"
	"github.com/loykin/drone/internal/detector"
	"github.com/loykin/drone/internal/metrics"
	"github.com/loykin/drone/internal/process"
	"github.com/loykin/drone/internal/registry"
)

// Supervisor runs the commands a drone receives.
type Supervisor interface {
	Run(ctx context.Context, command string, patient bool) error
	Close() error
}

// reader is the part of a channel the loop needs.
type reader interface {
	Read(p []byte) (int, error)
	Destroy() error
	Path() string
}

// Runtime is one drone: it owns a channel in the registry, polls it for
// commands, polls the watch set and hands work to its Supervisor.
//
// The loop runs on a single goroutine. Signal delivery only flips the stop
// flag, which the loop observes at the top of its next iteration.
type Runtime struct {
	cfg      Config
	logger   *slog.Logger
	registry *registry.Registry
	sup      Supervisor
	det      detector.Detector
	signals  []os.Signal
	stdout   io.Writer
	stderr   io.Writer

	id      string
	ch      reader
	trigger bool

	state    atomic.Int32
	stop     atomic.Bool
	closed   atomic.Bool
	teardown sync.Once
	closeErr error
}

// Option customizes a Runtime.
type Option func(*Runtime)

// WithLogger sets the logger used by the runtime and its default collaborators.
func WithLogger(l *slog.Logger) Option { return func(r *Runtime) { r.logger = l } }

// WithSupervisor replaces the default process supervisor.
func WithSupervisor(s Supervisor) Option { return func(r *Runtime) { r.sup = s } }

// WithDetector replaces the detector built from WatchDirs.
func WithDetector(d detector.Detector) Option { return func(r *Runtime) { r.det = d } }

// WithSignals sets the signals that stop the drone cleanly (SIGINT and
// SIGTERM by default). Calling it with no signals disables signal handling.
func WithSignals(sigs ...os.Signal) Option { return func(r *Runtime) { r.signals = sigs } }

// WithOutput sets where the default supervisor sends command output.
func WithOutput(stdout, stderr io.Writer) Option {
	return func(r *Runtime) {
		r.stdout = stdout
		r.stderr = stderr
	}
}

// New validates cfg and prepares a Runtime. Nothing is created on disk
// until Start.
func New(cfg Config, opts ...Option) (*Runtime, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg.applyDefaults()

	r := &Runtime{
		cfg:     cfg,
		signals: []os.Signal{syscall.SIGINT, syscall.SIGTERM},
	}
	for _, o := range opts {
		o(r)
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}

	reg, err := registry.New(cfg.RegistryDir)
	if err != nil {
		return nil, err
	}
	r.registry = reg

	if r.sup == nil {
		r.sup = &process.Supervisor{
			Env:    cfg.Env,
			Dir:    cfg.WorkDir,
			Stdout: r.stdout,
			Stderr: r.stderr,
			Logger: r.logger,
		}
	}
	if r.det == nil && len(cfg.WatchDirs) > 0 {
		det, err := detector.New(cfg.WatchMode, cfg.WatchDirs, r.logger)
		if err != nil {
			return nil, err
		}
		r.det = det
	}
	return r, nil
}

// ID returns the drone id; empty before Start.
func (r *Runtime) ID() string { return r.id }

// Path returns the channel location; empty before Start.
func (r *Runtime) Path() string {
	if r.ch == nil {
		return ""
	}
	return r.ch.Path()
}

// State returns the current lifecycle state.
func (r *Runtime) State() State { return State(r.state.Load()) }

func (r *Runtime) setState(s State) {
	prev := State(r.state.Swap(int32(s)))
	if prev != s {
		metrics.SetState(prev.String(), s.String())
	}
}

// Start claims an id and creates the channel. On failure nothing is left
// in the registry. A closed Runtime cannot be started again.
func (r *Runtime) Start() error {
	if r.closed.Load() {
		return ErrClosed
	}
	if r.ch != nil {
		return nil
	}
	r.setState(StateStarting)
	id, path, err := r.registry.Claim(r.cfg.ID, func(path string) error {
		ch, err := channel.Create(path)
		if err != nil {
			return err
		}
		if err := ch.OpenReader(); err != nil {
			_ = ch.Destroy()
			return err
		}
		r.ch = ch
		return nil
	})
	if err != nil {
		r.setState(StateStopped)
		return fmt.Errorf("start drone: %w", err)
	}
	r.id = id
	r.logger = r.logger.With("drone", id)
	r.logger.Info("starting drone", "path", path, "patient", r.cfg.Patient, "watch", r.cfg.WatchDirs)
	return nil
}

// Stop asks the loop to finish after its current iteration. It is safe to
// call from any goroutine and any number of times.
func (r *Runtime) Stop() { r.stop.Store(true) }

// Run serves commands until Stop, a stop signal or ctx cancellation (all
// of which return nil), the poison command (ErrPoisoned) or a channel read
// error. The channel is destroyed on every return path.
func (r *Runtime) Run(ctx context.Context) error {
	// Signals are caught before the channel exists and stay caught until
	// it is gone, so a repeated signal cannot kill the process mid-teardown.
	var sigCh chan os.Signal
	done := make(chan struct{})
	if len(r.signals) > 0 {
		sigCh = make(chan os.Signal, 1)
		signal.Notify(sigCh, r.signals...)
		go func() {
			for {
				select {
				case <-sigCh:
					r.Stop()
				case <-done:
					return
				}
			}
		}()
	}
	defer func() {
		_ = r.Close()
		if sigCh != nil {
			signal.Stop(sigCh)
		}
		close(done)
	}()

	if err := r.Start(); err != nil {
		return err
	}

	r.setState(StateRunning)
	buf := make([]byte, r.cfg.BufferSize)
	ticker := time.NewTicker(r.cfg.PollInterval)
	defer ticker.Stop()

	for !r.stop.Load() {
		if err := r.step(ctx, buf); err != nil {
			if errors.Is(err, ErrPoisoned) {
				r.logger.Error("received remote exit signal")
			} else {
				r.logger.Error("drone failed", "error", err)
			}
			return err
		}
		select {
		case <-ctx.Done():
			r.Stop()
		case <-ticker.C:
		}
	}
	r.logger.Info("stopping drone")
	return nil
}

// step runs one iteration of the loop.
func (r *Runtime) step(ctx context.Context, buf []byte) error {
	if r.det != nil && time.Since(r.det.LastScan()) > r.cfg.WatchInterval {
		if r.det.Scan() {
			metrics.IncTrigger()
			r.trigger = true
		}
	}
	if r.trigger {
		r.trigger = false
		r.dispatch(ctx, r.cfg.OnUpdate)
	}

	n, err := r.ch.Read(buf)
	if errors.Is(err, channel.ErrNoData) {
		return nil
	}
	if err != nil {
		return err
	}
	for _, cmd := range SplitCommands(buf[:n]) {
		metrics.IncCommand()
		if cmd == PoisonCommand {
			return ErrPoisoned
		}
		r.dispatch(ctx, cmd)
	}
	return nil
}

func (r *Runtime) dispatch(ctx context.Context, command string) {
	r.logger.Debug("running command", "command", command)
	if err := r.sup.Run(ctx, command, r.cfg.Patient); err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		r.logger.Warn("command failed to launch", "command", command, "error", err)
	}
}

// Close tears the drone down: running command, watcher and channel. Only
// the first call does the work; later calls return the same result.
func (r *Runtime) Close() error {
	r.teardown.Do(func() {
		r.closed.Store(true)
		r.Stop()
		r.setState(StateStopping)
		var errs []error
		if r.sup != nil {
			if err := r.sup.Close(); err != nil {
				errs = append(errs, err)
			}
		}
		if r.det != nil {
			if err := r.det.Close(); err != nil {
				errs = append(errs, err)
			}
		}
		if r.ch != nil {
			if err := r.ch.Destroy(); err != nil {
				errs = append(errs, err)
			}
		}
		r.closeErr = errors.Join(errs...)
		r.setState(StateStopped)
	})
	return r.closeErr
}
