package metrics

import (
	"errors"
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Package-level Prometheus collectors. They are registered via Register.
var (
	regOK atomic.Bool

	commandsReceived = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "drone",
			Subsystem: "channel",
			Name:      "commands_received_total",
			Help:      "Number of commands read from the channel.",
		},
	)
	launches = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "drone",
			Subsystem: "process",
			Name:      "launches_total",
			Help:      "Number of subprocess launch attempts by result.",
		}, []string{"result"},
	)
	kills = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "drone",
			Subsystem: "process",
			Name:      "kills_total",
			Help:      "Number of running subprocesses killed to make room for a newer one.",
		},
	)
	scans = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "drone",
			Subsystem: "watch",
			Name:      "scans_total",
			Help:      "Number of watch set scans.",
		},
	)
	triggers = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "drone",
			Subsystem: "watch",
			Name:      "triggers_total",
			Help:      "Number of watch scans that fired the reaction command.",
		},
	)
	currentState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "drone",
			Subsystem: "runtime",
			Name:      "state",
			Help:      "Current runtime state (1 = active state, 0 = inactive).",
		}, []string{"state"},
	)
)

// Register registers all metrics with the provided registerer.
// It is safe to call multiple times; subsequent calls after success are no-ops.
func Register(r prometheus.Registerer) error {
	if regOK.Load() {
		return nil
	}
	cs := []prometheus.Collector{commandsReceived, launches, kills, scans, triggers, currentState}
	for _, c := range cs {
		if err := r.Register(c); err != nil {
			// If already registered, ignore (allows double Register with default registry)
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return err
		}
	}
	regOK.Store(true)
	return nil
}

// Handler returns an http.Handler that serves Prometheus metrics for the DefaultGatherer.
func Handler() http.Handler { return promhttp.Handler() }

// Serve exposes Handler at /metrics on addr. It blocks like http.ListenAndServe.
func Serve(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())
	// #nosec G114
	return http.ListenAndServe(addr, mux)
}

// Below are lightweight helpers used by internal packages to record metrics.
// They no-op if Register hasn't been called.

func IncCommand() {
	if regOK.Load() {
		commandsReceived.Inc()
	}
}

func IncLaunch(ok bool) {
	if regOK.Load() {
		result := "ok"
		if !ok {
			result = "failed"
		}
		launches.WithLabelValues(result).Inc()
	}
}

func IncKill() {
	if regOK.Load() {
		kills.Inc()
	}
}

func IncScan() {
	if regOK.Load() {
		scans.Inc()
	}
}

func IncTrigger() {
	if regOK.Load() {
		triggers.Inc()
	}
}

// SetState marks state as the active runtime state and clears prev.
func SetState(prev, state string) {
	if regOK.Load() {
		if prev != "" {
			currentState.WithLabelValues(prev).Set(0)
		}
		currentState.WithLabelValues(state).Set(1)
	}
}
