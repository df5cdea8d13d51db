package main

import (
	"fmt"
	"io"
	"os"

	"github.com/loykin/drone"
	cfg "github.com/loykin/drone/internal/config"
	"github.com/loykin/drone/internal/logger"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

type command struct {
	global *GlobalFlags
	stdout io.Writer
	stderr io.Writer
}

// settings resolves configuration for cmd: defaults, then --config, then
// DRONE_* environment, then flags set on the command line.
func (c *command) settings(cmd *cobra.Command) (*viper.Viper, error) {
	v := cfg.New()
	if err := cfg.ReadFile(v, c.global.ConfigPath); err != nil {
		return nil, err
	}
	if err := cfg.BindFlags(v, cmd.Flags(), flagKeys); err != nil {
		return nil, err
	}
	return v, nil
}

// client opens the registry for the send, list and reset verbs.
func (c *command) client(cmd *cobra.Command) (*drone.Client, error) {
	v, err := c.settings(cmd)
	if err != nil {
		return nil, err
	}
	log, _, err := logger.Config{Level: v.GetString("log.level")}.New(c.stderr)
	if err != nil {
		return nil, err
	}
	return drone.NewClient(drone.ClientConfig{Dir: v.GetString("dir"), Logger: log})
}

// Init runs a drone in the foreground until it is stopped.
func (c *command) Init(cmd *cobra.Command) error {
	v, err := c.settings(cmd)
	if err != nil {
		return err
	}
	s, err := cfg.Load(v)
	if err != nil {
		return err
	}
	log, closer, err := s.Log.New(c.stderr)
	if err != nil {
		return err
	}
	defer func() { _ = closer.Close() }()

	if s.MetricsListen != "" {
		if err := drone.RegisterMetricsDefault(); err != nil {
			log.Warn("failed to register metrics", "error", err)
		}
		go func() {
			if err := drone.ServeMetrics(s.MetricsListen); err != nil {
				log.Warn("metrics server stopped", "addr", s.MetricsListen, "error", err)
			}
		}()
	}

	stdout, stderr := c.stdout, c.stderr
	outW, errW, err := s.Log.ProcessWriters(outputName(s.Drone.ID))
	if err != nil {
		return err
	}
	if outW != nil {
		defer func() { _ = outW.Close() }()
		stdout = io.MultiWriter(stdout, outW)
	}
	if errW != nil {
		defer func() { _ = errW.Close() }()
		stderr = io.MultiWriter(stderr, errW)
	}

	d, err := drone.New(s.Drone, drone.WithLogger(log), drone.WithOutput(stdout, stderr))
	if err != nil {
		return err
	}
	return d.Run(cmd.Context())
}

// Send delivers one command (or several separated by newlines) to a drone.
func (c *command) Send(cmd *cobra.Command, f SendFlags, command string) error {
	cl, err := c.client(cmd)
	if err != nil {
		return err
	}
	return cl.Send(f.ID, command)
}

// List prints the ids of all drones, one per line.
func (c *command) List(cmd *cobra.Command) error {
	cl, err := c.client(cmd)
	if err != nil {
		return err
	}
	ids, err := cl.List()
	if err != nil {
		return err
	}
	for _, id := range ids {
		_, _ = fmt.Fprintln(c.stdout, id)
	}
	return nil
}

// Reset stops every drone that still listens and clears the registry.
func (c *command) Reset(cmd *cobra.Command) error {
	cl, err := c.client(cmd)
	if err != nil {
		return err
	}
	_, err = cl.Reset()
	return err
}

// outputName names the command output logs of a drone. Auto-allocated ids
// are only known once the drone starts, so those drones use their pid.
func outputName(id string) string {
	if id != "" {
		return "drone-" + id
	}
	return fmt.Sprintf("drone-pid%d", os.Getpid())
}
