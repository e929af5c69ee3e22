package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-observatory/internal/auth"
	"github.com/nerrad567/gray-logic-observatory/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-observatory/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-observatory/internal/machine"
	"github.com/nerrad567/gray-logic-observatory/internal/telemetry"
)

// writeConfig writes a minimal simulated-site config into a temp dir,
// points OBSERVATORY_CONFIG at it and returns the dir.
func writeConfig(t *testing.T, extra string) string {
	t.Helper()
	dir := t.TempDir()
	content := fmt.Sprintf(`
site:
  id: test-site
  timezone: UTC
  location:
    latitude: 19.8
    longitude: -155.5

observatory:
  simulator: [all]
  data_dir: %q
  min_free_space_gb: 0
  wait_delay: 1
  retry_delay: 1
  run_once: true
  exit_when_done: true

scheduler:
  fields_file: ""

devices:
  poll_interval: 10
  simulator:
    speedup: 1000

calibration:
  flat_count: 0

database:
  path: %q
  wal_mode: true
  busy_timeout: 5

logging:
  level: error
  format: text
  output: stdout
%s`, filepath.Join(dir, "images"), filepath.Join(dir, "observatory.db"), extra)

	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	t.Setenv("OBSERVATORY_CONFIG", path)
	return dir
}

func TestRun_InvalidConfig(t *testing.T) {
	t.Setenv("OBSERVATORY_CONFIG", "/nonexistent/path/config.yaml")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := run(ctx); err == nil {
		t.Fatal("run() should fail with invalid config path")
	}
}

func TestRun_RequiresSimulatedDevices(t *testing.T) {
	writeConfig(t, "")
	t.Setenv("OBSERVATORY_SIMULATOR", "weather,power,night")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	err := run(ctx)
	if err == nil || !strings.Contains(err.Error(), "no device drivers") {
		t.Fatalf("run() error = %v, want missing device drivers", err)
	}
}

func TestRun_InvalidStateTable(t *testing.T) {
	dir := writeConfig(t, "")
	t.Setenv("OBSERVATORY_STATE_TABLE", filepath.Join(dir, "missing.yaml"))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	err := run(ctx)
	if err == nil || !strings.Contains(err.Error(), "loading state table") {
		t.Fatalf("run() error = %v, want a state table error", err)
	}
}

// TestRun_RunOnceSession runs a whole simulated session with no fields:
// the loop schedules nothing, parks, cleans up and exits asleep.
func TestRun_RunOnceSession(t *testing.T) {
	dir := writeConfig(t, "")

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	if err := run(ctx); err != nil {
		t.Fatalf("run() error = %v", err)
	}

	db, err := database.Open(context.Background(), config.DatabaseConfig{
		Path:        filepath.Join(dir, "observatory.db"),
		WALMode:     true,
		BusyTimeout: 5,
	})
	if err != nil {
		t.Fatalf("reopening database: %v", err)
	}
	defer db.Close()

	rec, err := telemetry.NewSQLiteStore(db.DB).GetCurrent(context.Background(), telemetry.CollectionState)
	if err != nil {
		t.Fatalf("GetCurrent(state) error = %v", err)
	}
	if rec.Data["dest"] != machine.StateSleeping {
		t.Errorf("last state = %v, want %s", rec.Data["dest"], machine.StateSleeping)
	}
}

func TestGetConfigPath_Default(t *testing.T) {
	t.Setenv("OBSERVATORY_CONFIG", "")

	if path := getConfigPath(); path != defaultConfigPath {
		t.Errorf("getConfigPath() = %q, want %q", path, defaultConfigPath)
	}
}

func TestGetConfigPath_EnvOverride(t *testing.T) {
	expected := "/custom/path/config.yaml"
	t.Setenv("OBSERVATORY_CONFIG", expected)

	if path := getConfigPath(); path != expected {
		t.Errorf("getConfigPath() = %q, want %q", path, expected)
	}
}

func TestRunToken(t *testing.T) {
	writeConfig(t, `
security:
  jwt:
    secret: "test-secret-key-at-least-32-characters-long"
`)

	var out bytes.Buffer
	if err := runToken([]string{"-subject", "night-operator", "-ttl", "1h"}, &out); err != nil {
		t.Fatalf("runToken() error = %v", err)
	}
	token := strings.TrimSpace(out.String())
	if strings.Count(token, ".") != 2 {
		t.Errorf("token = %q, want a JWT", token)
	}

	if err := runToken([]string{"-ttl", "-1s"}, &out); err == nil {
		t.Error("runToken() with negative ttl error = nil")
	}
	if err := runToken([]string{"-role", "admin"}, &out); err == nil {
		t.Error("runToken() with unknown role error = nil")
	}
}

func TestRunHashPassword(t *testing.T) {
	var out bytes.Buffer
	if err := runHashPassword(strings.NewReader("clear-skies\n"), &out); err != nil {
		t.Fatalf("runHashPassword() error = %v", err)
	}
	hash := strings.TrimSpace(out.String())
	ok, err := auth.VerifyPassword("clear-skies", hash)
	if err != nil || !ok {
		t.Errorf("VerifyPassword(hash) = %v, %v, want true", ok, err)
	}

	if err := runHashPassword(strings.NewReader("\n"), &out); err == nil {
		t.Error("runHashPassword() with empty password error = nil")
	}
}

func TestRunToken_NoSecret(t *testing.T) {
	writeConfig(t, "")
	var out bytes.Buffer
	if err := runToken(nil, &out); err == nil {
		t.Error("runToken() without a secret error = nil")
	}
}

type recordingBroadcaster struct {
	mu     sync.Mutex
	events []string
}

func (r *recordingBroadcaster) Broadcast(event string, _ any) {
	r.mu.Lock()
	r.events = append(r.events, event)
	r.mu.Unlock()
}

type recordingWriter struct {
	mu          sync.Mutex
	transitions []string
}

func (r *recordingWriter) WriteTransition(source, dest string, _ time.Time) {
	r.mu.Lock()
	r.transitions = append(r.transitions, source+"->"+dest)
	r.mu.Unlock()
}

func TestFanout(t *testing.T) {
	hub := &recordingBroadcaster{}
	series := &recordingWriter{}
	f := fanout{hub, transitionSeries{writer: series}}

	f.Broadcast(machine.EventStateChanged, map[string]any{"source": "ready", "dest": "scheduling"})
	f.Broadcast("status", map[string]any{"health": "healthy"})
	f.Broadcast(machine.EventStateChanged, "not a document")

	if len(hub.events) != 3 {
		t.Errorf("hub events = %v, want 3", hub.events)
	}
	if len(series.transitions) != 1 || series.transitions[0] != "ready->scheduling" {
		t.Errorf("transitions = %v, want [ready->scheduling]", series.transitions)
	}
}
