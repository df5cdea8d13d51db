package drone

import (
	"context"
	"errors"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func TestFacadeRoundTrip(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "drones")
	out := filepath.Join(t.TempDir(), "out")

	d, err := New(Config{RegistryDir: dir, Patient: true, PollInterval: time.Millisecond}, WithSignals())
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if err := d.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	done := make(chan error, 1)
	go func() { done <- d.Run(context.Background()) }()

	c, err := NewClient(ClientConfig{Dir: dir})
	if err != nil {
		t.Fatalf("client: %v", err)
	}
	ids, err := c.List()
	if err != nil || len(ids) != 1 || ids[0] != d.ID() {
		t.Fatalf("list: %v %v", ids, err)
	}
	if err := c.Send("", "touch "+out); err != nil {
		t.Fatalf("send: %v", err)
	}
	deadline := time.Now().Add(3 * time.Second)
	for {
		if _, err := os.Stat(out); err == nil {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("command did not run")
		}
		time.Sleep(5 * time.Millisecond)
	}

	if err := c.Send("", "exit"); err != nil {
		t.Fatalf("send exit: %v", err)
	}
	select {
	case err := <-done:
		if !errors.Is(err, ErrPoisoned) {
			t.Fatalf("expected ErrPoisoned, got %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatalf("drone did not stop")
	}
	if ids, _ := c.List(); len(ids) != 0 {
		t.Fatalf("channel left behind: %v", ids)
	}
}

func TestFacadeErrors(t *testing.T) {
	c, err := NewClient(ClientConfig{Dir: t.TempDir()})
	if err != nil {
		t.Fatalf("client: %v", err)
	}
	if err := c.Send("", "ls"); !errors.Is(err, ErrNoDrones) {
		t.Fatalf("expected ErrNoDrones, got %v", err)
	}
	if _, err := New(Config{RegistryDir: t.TempDir(), WatchDirs: []string{"."}}); !errors.Is(err, ErrNoReaction) {
		t.Fatalf("expected ErrNoReaction, got %v", err)
	}
}

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "drone.toml")
	if err := os.WriteFile(path, []byte("dir = \""+dir+"\"\nbuffer_size = 32\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	s, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if s.Drone.RegistryDir != dir || s.Drone.BufferSize != 32 {
		t.Fatalf("unexpected settings: %+v", s.Drone)
	}
	if _, err := LoadConfig(filepath.Join(dir, "missing.toml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func TestMetricsHelpers(t *testing.T) {
	reg := prometheus.NewRegistry()
	if err := RegisterMetrics(reg); err != nil {
		t.Fatalf("RegisterMetrics: %v", err)
	}
	if err := RegisterMetricsDefault(); err != nil {
		t.Fatalf("RegisterMetricsDefault: %v", err)
	}
	rr := httptest.NewRecorder()
	promhttp.HandlerFor(reg, promhttp.HandlerOpts{}).ServeHTTP(rr, httptest.NewRequest("GET", "/metrics", nil))
	if rr.Code != 200 {
		t.Fatalf("metrics handler status %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "drone_") {
		t.Fatalf("metrics output missing drone prefix: %s", rr.Body.String())
	}
}
