package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/loykin/drone/internal/detector"
	"github.com/loykin/drone/internal/drone"
	"github.com/loykin/drone/internal/env"
	"github.com/loykin/drone/internal/logger"
	"github.com/loykin/drone/internal/registry"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix is the prefix of environment variables read as configuration,
// e.g. DRONE_BUFFER_SIZE or DRONE_LOG_LEVEL.
const EnvPrefix = "DRONE"

// FileConfig represents the TOML structure read from --config. The same
// keys are accepted from the environment and from flags.
type FileConfig struct {
	Dir           string        `toml:"dir" mapstructure:"dir"`
	ID            string        `toml:"id" mapstructure:"id"`
	BufferSize    int           `toml:"buffer_size" mapstructure:"buffer_size"`
	Watch         []string      `toml:"watch" mapstructure:"watch"`
	OnUpdate      string        `toml:"on_update" mapstructure:"on_update"`
	WatchInterval float64       `toml:"watch_interval" mapstructure:"watch_interval"`
	WatchMode     string        `toml:"watch_mode" mapstructure:"watch_mode"`
	Patient       bool          `toml:"patient" mapstructure:"patient"`
	PollInterval  float64       `toml:"poll_interval" mapstructure:"poll_interval"`
	WorkDir       string        `toml:"workdir" mapstructure:"workdir"`
	EnvFiles      []string      `toml:"env_files" mapstructure:"env_files"`
	Env           []string      `toml:"env" mapstructure:"env"`
	Log           LogConfig     `toml:"log" mapstructure:"log"`
	Metrics       MetricsConfig `toml:"metrics" mapstructure:"metrics"`
}

type LogConfig struct {
	Level      string `toml:"level" mapstructure:"level"`
	File       string `toml:"file" mapstructure:"file"`
	Color      string `toml:"color" mapstructure:"color"`
	OutputDir  string `toml:"output_dir" mapstructure:"output_dir"`
	MaxSizeMB  int    `toml:"max_size_mb" mapstructure:"max_size_mb"`
	MaxBackups int    `toml:"max_backups" mapstructure:"max_backups"`
	MaxAgeDays int    `toml:"max_age_days" mapstructure:"max_age_days"`
	Compress   bool   `toml:"compress" mapstructure:"compress"`
}

type MetricsConfig struct {
	Listen string `toml:"listen" mapstructure:"listen"`
}

// Settings is the resolved configuration handed to the drone runtime.
type Settings struct {
	Drone         drone.Config
	Log           logger.Config
	MetricsListen string
}

// New returns a viper instance with every key defaulted and DRONE_*
// environment lookup enabled.
func New() *viper.Viper {
	v := viper.New()
	v.SetDefault("dir", "")
	v.SetDefault("id", "")
	v.SetDefault("buffer_size", drone.DefaultBufferSize)
	v.SetDefault("watch", []string{})
	v.SetDefault("on_update", "")
	v.SetDefault("watch_interval", drone.DefaultWatchInterval.Seconds())
	v.SetDefault("watch_mode", string(detector.ModePoll))
	v.SetDefault("patient", false)
	v.SetDefault("poll_interval", drone.DefaultPollInterval.Seconds())
	v.SetDefault("workdir", "")
	v.SetDefault("env_files", []string{})
	v.SetDefault("env", []string{})
	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", "")
	v.SetDefault("log.color", "auto")
	v.SetDefault("log.output_dir", "")
	v.SetDefault("log.max_size_mb", logger.DefaultMaxSizeMB)
	v.SetDefault("log.max_backups", logger.DefaultMaxBackups)
	v.SetDefault("log.max_age_days", logger.DefaultMaxAgeDays)
	v.SetDefault("log.compress", false)
	v.SetDefault("metrics.listen", "")

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// BindFlags binds config keys to flags of fs. Keys whose flag is not
// defined on fs are skipped.
func BindFlags(v *viper.Viper, fs *pflag.FlagSet, keyToFlag map[string]string) error {
	for key, name := range keyToFlag {
		f := fs.Lookup(name)
		if f == nil {
			continue
		}
		if err := v.BindPFlag(key, f); err != nil {
			return fmt.Errorf("bind flag %s: %w", name, err)
		}
	}
	return nil
}

// ReadFile merges a TOML config file into v. An empty path is a no-op.
func ReadFile(v *viper.Viper, path string) error {
	if path == "" {
		return nil
	}
	v.SetConfigFile(path)
	v.SetConfigType("toml")
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	return nil
}

// Load resolves v into Settings.
func Load(v *viper.Viper) (Settings, error) {
	var fc FileConfig
	if err := v.Unmarshal(&fc); err != nil {
		return Settings{}, fmt.Errorf("decode config: %w", err)
	}
	return fc.Settings()
}

// Settings validates fc and converts it into runtime settings.
func (fc FileConfig) Settings() (Settings, error) {
	dir := fc.Dir
	if dir == "" {
		d, err := registry.DefaultDir()
		if err != nil {
			return Settings{}, err
		}
		dir = d
	}
	watchInterval, err := seconds("watch_interval", fc.WatchInterval)
	if err != nil {
		return Settings{}, err
	}
	pollInterval, err := seconds("poll_interval", fc.PollInterval)
	if err != nil {
		return Settings{}, err
	}

	var childEnv []string
	if len(fc.EnvFiles) > 0 || len(fc.Env) > 0 {
		e := env.New()
		if err := e.LoadFiles(splitList(fc.EnvFiles)...); err != nil {
			return Settings{}, err
		}
		if err := e.SetPairs(fc.Env); err != nil {
			return Settings{}, err
		}
		childEnv = e.Merge(nil)
	}

	cfg := drone.Config{
		ID:            fc.ID,
		RegistryDir:   dir,
		BufferSize:    fc.BufferSize,
		WatchDirs:     splitList(fc.Watch),
		OnUpdate:      fc.OnUpdate,
		WatchInterval: watchInterval,
		WatchMode:     detector.Mode(strings.ToLower(fc.WatchMode)),
		Patient:       fc.Patient,
		PollInterval:  pollInterval,
		Env:           childEnv,
		WorkDir:       fc.WorkDir,
	}
	if cfg.BufferSize <= 0 {
		return Settings{}, fmt.Errorf("buffer_size must be positive, got %d", fc.BufferSize)
	}
	if err := cfg.Validate(); err != nil {
		return Settings{}, err
	}
	if _, err := logger.ParseLevel(fc.Log.Level); err != nil {
		return Settings{}, err
	}

	return Settings{
		Drone: cfg,
		Log: logger.Config{
			Level: fc.Log.Level,
			Path:  fc.Log.File,
			Color: fc.Log.Color,
			File: logger.FileConfig{
				Dir:        fc.Log.OutputDir,
				MaxSizeMB:  fc.Log.MaxSizeMB,
				MaxBackups: fc.Log.MaxBackups,
				MaxAgeDays: fc.Log.MaxAgeDays,
				Compress:   fc.Log.Compress,
			},
		},
		MetricsListen: fc.Metrics.Listen,
	}, nil
}

func seconds(key string, s float64) (time.Duration, error) {
	if s <= 0 {
		return 0, fmt.Errorf("%s must be positive, got %v", key, s)
	}
	return time.Duration(s * float64(time.Second)), nil
}

// splitList flattens comma separated entries and drops blanks, so
// "a,b" from the environment and ["a", "b"] from TOML read the same.
func splitList(in []string) []string {
	var out []string
	for _, item := range in {
		for _, part := range strings.Split(item, ",") {
			if p := strings.TrimSpace(part); p != "" {
				out = append(out, p)
			}
		}
	}
	return out
}
