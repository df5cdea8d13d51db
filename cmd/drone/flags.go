package main

// GlobalFlags holds the persistent flags shared by every verb.
type GlobalFlags struct {
	ConfigPath string
	Dir        string
	LogLevel   string
	LogFile    string
}

// InitFlags holds flags for the init command. Values only reach the
// configuration when the flag is set on the command line.
type InitFlags struct {
	ID            string
	BufferSize    int
	Watch         []string
	OnUpdate      string
	WatchInterval float64
	WatchMode     string
	Patient       bool
	WorkDir       string
	EnvFiles      []string
	Env           []string
	OutputDir     string
	MetricsListen string
}

// SendFlags holds flags for the send command.
type SendFlags struct {
	ID string
}

// flagKeys maps configuration keys to the flag names that may set them.
var flagKeys = map[string]string{
	"dir":            "dir",
	"log.level":      "log-level",
	"log.file":       "log-file",
	"id":             "id",
	"buffer_size":    "buffer-size",
	"watch":          "watch",
	"on_update":      "on-update",
	"watch_interval": "watch-interval",
	"watch_mode":     "watch-mode",
	"patient":        "patient",
	"workdir":        "workdir",
	"env_files":      "env-file",
	"env":            "env",
	"log.output_dir": "output-dir",
	"metrics.listen": "metrics-listen",
}
