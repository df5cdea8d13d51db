// Package drone runs commands sent to it over a named pipe. A drone is
// started in one terminal and fed from another, from an editor hook or from
// a change in the directories it watches.
package drone

import (
	cfg "github.com/loykin/drone/internal/config"
	rt "github.com/loykin/drone/internal/drone"
	"github.com/loykin/drone/internal/metrics"
	"github.com/loykin/drone/internal/registry"
	"github.com/loykin/drone/pkg/client"
	"github.com/prometheus/client_golang/prometheus"
)

// Re-export core types for external consumers.
type Config = rt.Config

type Runtime = rt.Runtime

type Option = rt.Option

type State = rt.State

type Settings = cfg.Settings

type Client = client.Client

type ClientConfig = client.Config

var (
	ErrPoisoned     = rt.ErrPoisoned
	ErrNoReaction   = rt.ErrNoReaction
	ErrClosed       = rt.ErrClosed
	ErrEmptyCommand = client.ErrEmptyCommand
	ErrNoDrones     = registry.ErrNoDrones
	ErrAmbiguous    = registry.ErrAmbiguous
	ErrNotFound     = registry.ErrNotFound
)

// Runtime options.
var (
	WithLogger     = rt.WithLogger
	WithSupervisor = rt.WithSupervisor
	WithDetector   = rt.WithDetector
	WithSignals    = rt.WithSignals
	WithOutput     = rt.WithOutput
)

// New prepares a drone; call Run on the result to serve commands.
func New(c Config, opts ...Option) (*Runtime, error) { return rt.New(c, opts...) }

// NewClient opens the registry directory named by c for sending commands.
func NewClient(c ClientConfig) (*Client, error) { return client.New(c) }

// DefaultDir returns the registry directory used when none is configured.
func DefaultDir() (string, error) { return registry.DefaultDir() }

// LoadConfig resolves settings from defaults, the optional TOML file at
// path and DRONE_* environment variables.
func LoadConfig(path string) (Settings, error) {
	v := cfg.New()
	if err := cfg.ReadFile(v, path); err != nil {
		return Settings{}, err
	}
	return cfg.Load(v)
}

// Metrics helpers (public facade)

func RegisterMetrics(r prometheus.Registerer) error { return metrics.Register(r) }
func RegisterMetricsDefault() error                 { return metrics.Register(prometheus.DefaultRegisterer) }

// ServeMetrics serves /metrics on addr from the default registry. It blocks
// until the listener fails.
func ServeMetrics(addr string) error { return metrics.Serve(addr) }
