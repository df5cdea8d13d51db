package process

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/loykin/drone/internal/env"
	"github.com/loykin/drone/internal/metrics"
)

// LaunchError reports a command that could not be started. It never stops
// the drone; the caller logs it and moves on.
type LaunchError struct {
	Command string
	Err     error
}

func (e *LaunchError) Error() string { return fmt.Sprintf("launch %q: %v", e.Command, e.Err) }

func (e *LaunchError) Unwrap() error { return e.Err }

// Supervisor runs commands as child processes. Under the default policy a
// new command replaces the previous child (killing it if still running);
// under the patient policy each command runs to completion before Run
// returns. A Supervisor is driven from one goroutine; only the reaper of
// the current child runs concurrently with it.
type Supervisor struct {
	Env    []string // child environment; nil inherits the drone's
	Dir    string   // working directory; empty means the drone's
	Stdout io.Writer
	Stderr io.Writer
	Logger *slog.Logger

	mu      sync.Mutex
	current *child
}

type child struct {
	cmd    *exec.Cmd
	status Status
	done   chan struct{} // closed once the child has been reaped
}

func (s *Supervisor) logger() *slog.Logger {
	if s.Logger == nil {
		return slog.Default()
	}
	return s.Logger
}

func (s *Supervisor) build(command string, patient bool) (*exec.Cmd, error) {
	var lookup func(string) string
	if s.Env != nil {
		lookup = env.Lookup(s.Env)
	}
	argv, err := Tokenize(command, lookup)
	if err != nil {
		return nil, err
	}
	// #nosec G204
	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Env = s.Env
	cmd.Dir = s.Dir
	cmd.Stdout = s.Stdout
	if cmd.Stdout == nil {
		cmd.Stdout = os.Stdout
	}
	cmd.Stderr = s.Stderr
	if cmd.Stderr == nil {
		cmd.Stderr = os.Stderr
	}
	// bounded wait for output copying when writers are not plain files
	cmd.WaitDelay = time.Second
	configureSysProcAttr(cmd, patient)
	return cmd, nil
}

// Run launches command. With patient set it blocks until the child exits;
// otherwise it kills any still-running previous child, starts the new one
// and returns immediately. Only launch failures are returned; a non-zero
// exit status is logged.
func (s *Supervisor) Run(ctx context.Context, command string, patient bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if patient {
		return s.runPatient(command)
	}
	if err := s.Kill(); err != nil {
		s.logger().Warn("failed to kill previous command", "error", err)
	}
	cmd, err := s.build(command, false)
	if err != nil {
		metrics.IncLaunch(false)
		return &LaunchError{Command: command, Err: err}
	}
	if err := cmd.Start(); err != nil {
		metrics.IncLaunch(false)
		return &LaunchError{Command: command, Err: err}
	}
	metrics.IncLaunch(true)
	c := &child{
		cmd:  cmd,
		done: make(chan struct{}),
		status: Status{
			Command:   command,
			Running:   true,
			PID:       cmd.Process.Pid,
			StartedAt: time.Now(),
		},
	}
	s.mu.Lock()
	s.current = c
	s.mu.Unlock()
	s.logger().Info("command started", "command", command, "pid", c.status.PID)
	go s.reap(c)
	return nil
}

func (s *Supervisor) runPatient(command string) error {
	cmd, err := s.build(command, true)
	if err != nil {
		metrics.IncLaunch(false)
		return &LaunchError{Command: command, Err: err}
	}
	if err := cmd.Start(); err != nil {
		metrics.IncLaunch(false)
		return &LaunchError{Command: command, Err: err}
	}
	metrics.IncLaunch(true)
	s.logger().Info("command started", "command", command, "pid", cmd.Process.Pid, "patient", true)
	err = cmd.Wait()
	s.logExit(command, cmd.Process.Pid, err)
	return nil
}

func (s *Supervisor) reap(c *child) {
	err := c.cmd.Wait()
	s.mu.Lock()
	c.status.Running = false
	c.status.StoppedAt = time.Now()
	c.status.ExitErr = err
	s.mu.Unlock()
	close(c.done)
	s.logExit(c.status.Command, c.status.PID, err)
}

func (s *Supervisor) logExit(command string, pid int, err error) {
	if err == nil {
		s.logger().Info("command exited", "command", command, "pid", pid)
		return
	}
	var ee *exec.ExitError
	if errors.As(err, &ee) {
		s.logger().Warn("command exited", "command", command, "pid", pid, "status", ee.String())
		return
	}
	s.logger().Warn("command wait failed", "command", command, "pid", pid, "error", err)
}

// Kill terminates the current child without a grace period and waits until
// it has been reaped. Killing a child that already exited, or calling Kill
// with no child, is a no-op.
func (s *Supervisor) Kill() error {
	s.mu.Lock()
	c := s.current
	s.mu.Unlock()
	if c == nil {
		return nil
	}
	select {
	case <-c.done:
		return nil
	default:
	}
	if err := killGroup(c.status.PID); err != nil {
		return fmt.Errorf("kill pid %d: %w", c.status.PID, err)
	}
	<-c.done
	metrics.IncKill()
	s.logger().Info("command killed", "command", c.status.Command, "pid", c.status.PID)
	return nil
}

// Alive reports whether the current child is still running.
func (s *Supervisor) Alive() bool {
	s.mu.Lock()
	c := s.current
	s.mu.Unlock()
	if c == nil {
		return false
	}
	select {
	case <-c.done:
		return false
	default:
		return true
	}
}

// Current returns a snapshot of the most recently started child.
func (s *Supervisor) Current() (Status, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return Status{}, false
	}
	return s.current.status, true
}

// Close kills the current child, if any.
func (s *Supervisor) Close() error { return s.Kill() }
