package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	root := buildRoot(os.Stdout, os.Stderr)
	if err := root.Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// buildRoot creates the root command and its verbs writing to stdout and stderr.
func buildRoot(stdout, stderr io.Writer) *cobra.Command {
	globalFlags := &GlobalFlags{}
	initFlags := &InitFlags{}
	sendFlags := &SendFlags{}

	droneCommand := command{global: globalFlags, stdout: stdout, stderr: stderr}

	root := createRootCommand(globalFlags)
	root.SetOut(stdout)
	root.SetErr(stderr)

	root.AddCommand(
		createInitCommand(droneCommand, initFlags),
		createSendCommand(droneCommand, sendFlags),
		createListCommand(droneCommand),
		createResetCommand(droneCommand),
	)
	return root
}

// createRootCommand creates the root command with the persistent flags
func createRootCommand(flags *GlobalFlags) *cobra.Command {
	root := &cobra.Command{
		Use:   "drone",
		Short: "Run commands sent from another terminal",
		Long: `Drone is a process you launch in a terminal that executes commands
read from a named pipe. Other terminals, editors or scripts send it
commands; it can also rerun a command whenever watched directories change.

Examples:
  drone init                          # start drone 1 in this terminal
  drone send "go test ./..."          # run it there
  drone init -w src -u "make build"   # rebuild when src changes
  drone list
  drone reset`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&flags.ConfigPath, "config", "", "path to TOML config file (optional)")
	root.PersistentFlags().StringVar(&flags.Dir, "dir", "", "registry directory (default $XDG_DATA_HOME/drones)")
	root.PersistentFlags().StringVar(&flags.LogLevel, "log-level", "info", "log level: debug, info, warn, error")
	root.PersistentFlags().StringVar(&flags.LogFile, "log-file", "", "write the drone log to a rotated file instead of stderr")

	return root
}

// createInitCommand creates the init subcommand
func createInitCommand(droneCommand command, f *InitFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Start a drone in this terminal",
		Long: `Start a drone in the foreground. It creates its channel in the registry
and runs every command it receives until interrupted or sent "exit".

Without --patient a new command kills the one still running. With
--patient commands run one after another to completion.

Examples:
  drone init
  drone init -i web -b 4096
  drone init -w src,templates -u "make build" --watch-interval 0.25
  drone init -p --env-file .env --env GOFLAGS=-race`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return droneCommand.Init(cmd)
		},
	}

	cmd.Flags().StringVarP(&f.ID, "id", "i", "", "identifier for this drone (default: lowest free number)")
	cmd.Flags().IntVarP(&f.BufferSize, "buffer-size", "b", 1024, "max bytes read from the channel per poll")
	cmd.Flags().StringSliceVarP(&f.Watch, "watch", "w", nil, "directories to watch for changes (comma separated)")
	cmd.Flags().StringVarP(&f.OnUpdate, "on-update", "u", "", "command to run when a watched directory changes")
	cmd.Flags().Float64Var(&f.WatchInterval, "watch-interval", 0.5, "seconds between watch scans")
	cmd.Flags().StringVar(&f.WatchMode, "watch-mode", "poll", "change detection: poll or notify")
	cmd.Flags().BoolVarP(&f.Patient, "patient", "p", false, "let each command finish instead of replacing it")
	cmd.Flags().StringVar(&f.WorkDir, "workdir", "", "working directory for commands")
	cmd.Flags().StringArrayVar(&f.EnvFiles, "env-file", nil, "load environment for commands from a .env file (repeatable)")
	cmd.Flags().StringArrayVar(&f.Env, "env", nil, "set KEY=VALUE in the environment of commands (repeatable)")
	cmd.Flags().StringVar(&f.OutputDir, "output-dir", "", "also write command output to rotated files in this directory")
	cmd.Flags().StringVar(&f.MetricsListen, "metrics-listen", "", "serve Prometheus metrics on this address, e.g. 127.0.0.1:9109")

	return cmd
}

// createSendCommand creates the send subcommand
func createSendCommand(droneCommand command, f *SendFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "send CMD",
		Short: "Send a command to a running drone",
		Long: `Send a command to a running drone. With a single drone running --id may
be omitted.

Examples:
  drone send "go test ./..."
  drone send -i web "npm run build"
  drone send exit                     # stop the drone`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return droneCommand.Send(cmd, *f, args[0])
		},
	}
	cmd.Flags().StringVarP(&f.ID, "id", "i", "", "drone to send the command to")
	return cmd
}

// createListCommand creates the list subcommand
func createListCommand(droneCommand command) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the ids of all drones",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return droneCommand.List(cmd)
		},
	}
}

// createResetCommand creates the reset subcommand
func createResetCommand(droneCommand command) *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "Stop all drones and clear the registry",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return droneCommand.Reset(cmd)
		},
	}
}
