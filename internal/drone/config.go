package drone

import (
	"errors"
	"fmt"
	"time"

	"github.com/loykin/drone/internal/detector"
)

const (
	// PoisonCommand makes a drone stop with an error when it arrives as a
	// line of its own.
	PoisonCommand = "exit"

	DefaultBufferSize    = 1024
	DefaultWatchInterval = 500 * time.Millisecond
	DefaultPollInterval  = time.Second / 60
)

var (
	// ErrPoisoned is returned by Run after the poison command was received.
	ErrPoisoned = errors.New("received remote exit signal")
	// ErrNoReaction rejects a watch set configured without a command to run.
	ErrNoReaction = errors.New("watch directories given without a command to run on update")
	// ErrClosed is returned by Start and Run once the runtime was closed.
	ErrClosed = errors.New("runtime closed")
)

// Config holds everything a drone needs to run.
type Config struct {
	ID            string        // requested id; empty allocates the next free number
	RegistryDir   string        // directory holding the channels of all drones
	BufferSize    int           // max bytes taken from the channel per poll
	WatchDirs     []string      // directories whose entries are watched (non-recursive)
	OnUpdate      string        // command run when the watch set changes
	WatchInterval time.Duration // minimum time between two watch scans
	WatchMode     detector.Mode // poll (default) or notify
	Patient       bool          // run commands to completion instead of replacing them
	PollInterval  time.Duration // sleep between loop iterations
	Env           []string      // environment for commands; nil inherits the drone's
	WorkDir       string        // working directory for commands; empty inherits the drone's
}

func (c *Config) applyDefaults() {
	if c.BufferSize <= 0 {
		c.BufferSize = DefaultBufferSize
	}
	if c.WatchInterval <= 0 {
		c.WatchInterval = DefaultWatchInterval
	}
	if c.PollInterval <= 0 {
		c.PollInterval = DefaultPollInterval
	}
	if c.WatchMode == "" {
		c.WatchMode = detector.ModePoll
	}
}

// Validate reports configuration errors that must stop a drone before it
// creates its channel.
func (c Config) Validate() error {
	if c.RegistryDir == "" {
		return fmt.Errorf("registry directory is required")
	}
	if len(c.WatchDirs) > 0 && c.OnUpdate == "" {
		return ErrNoReaction
	}
	if c.BufferSize < 0 {
		return fmt.Errorf("buffer size must be positive, got %d", c.BufferSize)
	}
	switch c.WatchMode {
	case "", detector.ModePoll, detector.ModeNotify:
	default:
		return fmt.Errorf("unknown watch mode %q", c.WatchMode)
	}
	return nil
}
