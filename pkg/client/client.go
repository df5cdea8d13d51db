// Package client talks to running drones through their channels in the
// registry directory. It is what the send, list and reset verbs use.
package client

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/loykin/drone/internal/channel"
	"github.com/loykin/drone/internal/drone"
	"github.com/loykin/drone/internal/registry"
)

// ErrEmptyCommand rejects a send without a command.
var ErrEmptyCommand = errors.New("no command given")

// Client sends commands to the drones of one registry directory.
type Client struct {
	registry *registry.Registry
	logger   *slog.Logger
}

// Config holds client configuration
type Config struct {
	Dir    string       // registry directory; empty uses registry.DefaultDir
	Logger *slog.Logger // Optional logger for client operations
}

// DefaultConfig returns a configuration for the default registry directory.
func DefaultConfig() Config {
	dir, _ := registry.DefaultDir()
	return Config{Dir: dir}
}

// New opens the registry directory, creating it when missing.
func New(config Config) (*Client, error) {
	if config.Dir == "" {
		dir, err := registry.DefaultDir()
		if err != nil {
			return nil, err
		}
		config.Dir = dir
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	reg, err := registry.New(config.Dir)
	if err != nil {
		return nil, err
	}
	return &Client{registry: reg, logger: config.Logger}, nil
}

// Dir returns the registry directory.
func (c *Client) Dir() string { return c.registry.Dir() }

// List returns the ids of the drones in the registry.
func (c *Client) List() ([]string, error) {
	return c.registry.List()
}

// Send writes command to the drone with the given id, or to the only drone
// when id is empty. A trailing newline is added when missing so the
// command arrives as a line of its own.
func (c *Client) Send(id, command string) error {
	if strings.TrimSpace(command) == "" {
		return ErrEmptyCommand
	}
	path, err := c.registry.Select(id)
	if err != nil {
		return err
	}
	if !strings.HasSuffix(command, "\n") {
		command += "\n"
	}
	if err := channel.WriteOnce(path, []byte(command)); err != nil {
		return fmt.Errorf("send to %s: %w", path, err)
	}
	c.logger.Debug("command sent", "path", path, "bytes", len(command))
	return nil
}

// Reset asks every drone to exit and removes every channel from the
// registry, live or stale. Failures on individual drones are ignored.
// It returns the ids that were reset.
func (c *Client) Reset() ([]string, error) {
	ids, err := c.registry.List()
	if err != nil {
		return nil, err
	}
	for _, id := range ids {
		path := c.registry.Path(id)
		if err := channel.WriteOnce(path, []byte(drone.PoisonCommand+"\n")); err != nil {
			c.logger.Debug("drone did not take exit", "id", id, "error", err)
		}
		if err := c.registry.Remove(id); err != nil {
			c.logger.Warn("remove channel", "id", id, "error", err)
		}
	}
	return ids, nil
}
