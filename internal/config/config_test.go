package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/loykin/drone/internal/detector"
	"github.com/loykin/drone/internal/drone"
	"github.com/spf13/pflag"
)

func writeTOML(t *testing.T, dir, content string) string {
	t.Helper()
	p := filepath.Join(dir, "drone.toml")
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatalf("write toml: %v", err)
	}
	return p
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("XDG_DATA_HOME", t.TempDir())
	s, err := Load(New())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	c := s.Drone
	if c.BufferSize != drone.DefaultBufferSize {
		t.Fatalf("buffer size: %d", c.BufferSize)
	}
	if c.WatchInterval != drone.DefaultWatchInterval {
		t.Fatalf("watch interval: %v", c.WatchInterval)
	}
	if c.PollInterval <= 0 || c.PollInterval > 20*time.Millisecond {
		t.Fatalf("poll interval: %v", c.PollInterval)
	}
	if c.WatchMode != detector.ModePoll || c.Patient || len(c.WatchDirs) != 0 || c.Env != nil {
		t.Fatalf("unexpected defaults: %+v", c)
	}
	if !strings.HasSuffix(c.RegistryDir, "drones") {
		t.Fatalf("registry dir: %s", c.RegistryDir)
	}
	if s.Log.Level != "info" || s.MetricsListen != "" {
		t.Fatalf("unexpected log/metrics defaults: %+v %q", s.Log, s.MetricsListen)
	}
}

func TestLoadFromTOML(t *testing.T) {
	dir := t.TempDir()
	file := writeTOML(t, dir, `
dir = "`+dir+`/reg"
id = "web"
buffer_size = 64
watch = ["src", "templates"]
on_update = "make build"
watch_interval = 0.25
watch_mode = "notify"
patient = true
workdir = "/tmp"

[log]
level = "debug"
output_dir = "`+dir+`/out"
max_backups = 9

[metrics]
listen = "127.0.0.1:9109"
`)
	v := New()
	if err := ReadFile(v, file); err != nil {
		t.Fatalf("read: %v", err)
	}
	s, err := Load(v)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	c := s.Drone
	if c.RegistryDir != dir+"/reg" || c.ID != "web" || c.BufferSize != 64 || c.WorkDir != "/tmp" {
		t.Fatalf("unexpected base fields: %+v", c)
	}
	if len(c.WatchDirs) != 2 || c.WatchDirs[1] != "templates" || c.OnUpdate != "make build" {
		t.Fatalf("unexpected watch fields: %+v", c)
	}
	if c.WatchInterval != 250*time.Millisecond || c.WatchMode != detector.ModeNotify || !c.Patient {
		t.Fatalf("unexpected control fields: %+v", c)
	}
	if s.Log.Level != "debug" || s.Log.File.Dir != dir+"/out" || s.Log.File.MaxBackups != 9 {
		t.Fatalf("unexpected log config: %+v", s.Log)
	}
	if s.MetricsListen != "127.0.0.1:9109" {
		t.Fatalf("metrics listen: %q", s.MetricsListen)
	}
}

func TestEnvironmentOverridesFile(t *testing.T) {
	dir := t.TempDir()
	file := writeTOML(t, dir, "dir = \""+dir+"\"\nbuffer_size = 64\n")
	t.Setenv("DRONE_BUFFER_SIZE", "128")
	t.Setenv("DRONE_WATCH", "a,b")
	t.Setenv("DRONE_ON_UPDATE", "true")
	t.Setenv("DRONE_LOG_LEVEL", "warn")

	v := New()
	if err := ReadFile(v, file); err != nil {
		t.Fatalf("read: %v", err)
	}
	s, err := Load(v)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if s.Drone.BufferSize != 128 {
		t.Fatalf("env should override file, got %d", s.Drone.BufferSize)
	}
	if len(s.Drone.WatchDirs) != 2 || s.Drone.WatchDirs[0] != "a" {
		t.Fatalf("watch from env: %v", s.Drone.WatchDirs)
	}
	if s.Log.Level != "warn" {
		t.Fatalf("log level from env: %q", s.Log.Level)
	}
}

func TestFlagsOverrideEnvironment(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("DRONE_DIR", dir)
	t.Setenv("DRONE_BUFFER_SIZE", "128")

	fs := pflag.NewFlagSet("init", pflag.ContinueOnError)
	fs.IntP("buffer", "b", 0, "")
	fs.StringSliceP("watch", "w", nil, "")
	fs.StringP("on-update", "u", "", "")
	fs.Float64("watch-interval", 0, "")
	if err := fs.Parse([]string{"-b", "16", "-w", "x,y", "-u", "go test ./...", "--watch-interval", "2"}); err != nil {
		t.Fatalf("parse: %v", err)
	}
	v := New()
	if err := BindFlags(v, fs, map[string]string{
		"buffer_size":    "buffer",
		"watch":          "watch",
		"on_update":      "on-update",
		"watch_interval": "watch-interval",
		"patient":        "patient", // not defined on fs
	}); err != nil {
		t.Fatalf("bind: %v", err)
	}
	s, err := Load(v)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	c := s.Drone
	if c.RegistryDir != dir || c.BufferSize != 16 || c.OnUpdate != "go test ./..." || c.WatchInterval != 2*time.Second {
		t.Fatalf("unexpected: %+v", c)
	}
	if len(c.WatchDirs) != 2 || c.WatchDirs[0] != "x" || c.WatchDirs[1] != "y" {
		t.Fatalf("watch: %v", c.WatchDirs)
	}
}

func TestUnchangedFlagKeepsDefault(t *testing.T) {
	t.Setenv("DRONE_DIR", t.TempDir())
	fs := pflag.NewFlagSet("init", pflag.ContinueOnError)
	fs.IntP("buffer", "b", 0, "")
	if err := fs.Parse(nil); err != nil {
		t.Fatalf("parse: %v", err)
	}
	v := New()
	if err := BindFlags(v, fs, map[string]string{"buffer_size": "buffer"}); err != nil {
		t.Fatalf("bind: %v", err)
	}
	s, err := Load(v)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if s.Drone.BufferSize != drone.DefaultBufferSize {
		t.Fatalf("unset flag must not override default, got %d", s.Drone.BufferSize)
	}
}

func TestValidationErrors(t *testing.T) {
	dir := t.TempDir()
	cases := map[string]FileConfig{
		"no reaction":      {Dir: dir, BufferSize: 8, WatchInterval: 1, PollInterval: 1, Watch: []string{"src"}},
		"zero buffer":      {Dir: dir, WatchInterval: 1, PollInterval: 1},
		"bad interval":     {Dir: dir, BufferSize: 8, WatchInterval: -1, PollInterval: 1},
		"bad poll":         {Dir: dir, BufferSize: 8, WatchInterval: 1},
		"bad watch mode":   {Dir: dir, BufferSize: 8, WatchInterval: 1, PollInterval: 1, WatchMode: "inotify"},
		"bad log level":    {Dir: dir, BufferSize: 8, WatchInterval: 1, PollInterval: 1, Log: LogConfig{Level: "loud"}},
		"bad env pair":     {Dir: dir, BufferSize: 8, WatchInterval: 1, PollInterval: 1, Env: []string{"NOEQUALS"}},
		"missing env file": {Dir: dir, BufferSize: 8, WatchInterval: 1, PollInterval: 1, EnvFiles: []string{filepath.Join(dir, "nope.env")}},
	}
	for name, fc := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := fc.Settings(); err == nil {
				t.Fatalf("expected error for %+v", fc)
			}
		})
	}
}

func TestChildEnvironment(t *testing.T) {
	dir := t.TempDir()
	dotenv := filepath.Join(dir, ".env")
	if err := os.WriteFile(dotenv, []byte("FILE_ONLY=fv\nSHARED=file\n"), 0o644); err != nil {
		t.Fatalf("write env: %v", err)
	}
	t.Setenv("OS_ONLY", "osv")
	fc := FileConfig{
		Dir: dir, BufferSize: 8, WatchInterval: 1, PollInterval: 1,
		EnvFiles: []string{dotenv},
		Env:      []string{"SHARED=flag", "CHAIN=${FILE_ONLY}-x"},
	}
	s, err := fc.Settings()
	if err != nil {
		t.Fatalf("settings: %v", err)
	}
	m := make(map[string]string)
	for _, kv := range s.Drone.Env {
		k, v, _ := strings.Cut(kv, "=")
		m[k] = v
	}
	if m["OS_ONLY"] != "osv" || m["FILE_ONLY"] != "fv" {
		t.Fatalf("missing base vars: %v", m)
	}
	if m["SHARED"] != "flag" {
		t.Fatalf("explicit pair must win over file, got %q", m["SHARED"])
	}
	if m["CHAIN"] != "fv-x" {
		t.Fatalf("expansion: %q", m["CHAIN"])
	}
}

func TestReadFileErrors(t *testing.T) {
	if err := ReadFile(New(), ""); err != nil {
		t.Fatalf("empty path must be a no-op: %v", err)
	}
	if err := ReadFile(New(), filepath.Join(t.TempDir(), "missing.toml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}
