package process

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"
)

// Status represents the current state of a daemon.
type Status string

const (
	StatusStopped  Status = "stopped"
	StatusStarting Status = "starting"
	StatusRunning  Status = "running"
	StatusBackoff  Status = "backoff"
	StatusFailed   Status = "failed"
)

// defaultMaxHealthFailures is how many consecutive failed health checks kill a daemon.
const defaultMaxHealthFailures = 3

// Config holds the settings for one daemon.
type Config struct {
	// Name identifies the daemon in logs and stats.
	Name string

	// Binary is the path to the executable.
	Binary string

	// Args are passed to the binary.
	Args []string

	// Env are extra key=value variables on top of the parent environment.
	Env []string

	// RestartOnFailure restarts the daemon when it exits unexpectedly.
	RestartOnFailure bool

	// RestartDelay is the first backoff delay. It doubles with every
	// consecutive failure up to MaxRestartDelay.
	RestartDelay    time.Duration
	MaxRestartDelay time.Duration

	// StableThreshold is how long a run must last to reset the backoff.
	StableThreshold time.Duration

	// MaxRestartAttempts limits restarts. 0 means unlimited.
	MaxRestartAttempts int

	// GracefulTimeout is how long Stop waits after SIGTERM before SIGKILL.
	GracefulTimeout time.Duration

	// HealthCheck runs every HealthCheckInterval while the daemon is up.
	// After MaxHealthFailures consecutive failures the daemon is killed.
	HealthCheck         func(ctx context.Context) error
	HealthCheckInterval time.Duration
	MaxHealthFailures   int
}

// DefaultConfig returns a Config that restarts forever with backoff.
func DefaultConfig(name, binary string, args []string) Config {
	return Config{
		Name:                name,
		Binary:              binary,
		Args:                args,
		RestartOnFailure:    true,
		RestartDelay:        5 * time.Second,
		MaxRestartDelay:     5 * time.Minute,
		StableThreshold:     2 * time.Minute,
		GracefulTimeout:     10 * time.Second,
		HealthCheckInterval: 30 * time.Second,
		MaxHealthFailures:   defaultMaxHealthFailures,
	}
}

func (c Config) withDefaults() Config {
	if c.RestartDelay <= 0 {
		c.RestartDelay = 5 * time.Second
	}
	if c.MaxRestartDelay <= 0 {
		c.MaxRestartDelay = 5 * time.Minute
	}
	if c.MaxRestartDelay < c.RestartDelay {
		c.MaxRestartDelay = c.RestartDelay
	}
	if c.StableThreshold <= 0 {
		c.StableThreshold = 2 * time.Minute
	}
	if c.GracefulTimeout <= 0 {
		c.GracefulTimeout = 10 * time.Second
	}
	if c.HealthCheckInterval <= 0 {
		c.HealthCheckInterval = 30 * time.Second
	}
	if c.MaxHealthFailures <= 0 {
		c.MaxHealthFailures = defaultMaxHealthFailures
	}
	return c
}

// Logger defines the logging interface for this package.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Daemon runs one external binary and keeps it alive.
type Daemon struct {
	config Config

	mu            sync.RWMutex
	logger        Logger
	cmd           *exec.Cmd
	status        Status
	active        bool
	restartCount  int
	lastError     error
	startTime     time.Time
	stopRequested bool
	stop          chan struct{}
	done          chan struct{}
}

// NewDaemon creates a daemon. Zero durations take their defaults.
func NewDaemon(cfg Config) *Daemon {
	return &Daemon{
		config: cfg.withDefaults(),
		logger: noopLogger{},
		status: StatusStopped,
	}
}

// SetLogger sets the logger.
func (d *Daemon) SetLogger(logger Logger) {
	d.mu.Lock()
	d.logger = logger
	d.mu.Unlock()
}

func (d *Daemon) log() Logger {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.logger
}

// Name returns the configured name.
func (d *Daemon) Name() string { return d.config.Name }

// Start launches the binary and supervises it until Stop or ctx is done.
// It fails when the first launch fails.
func (d *Daemon) Start(ctx context.Context) error {
	d.mu.Lock()
	if d.active {
		d.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrAlreadyRunning, d.config.Name)
	}
	d.status = StatusStarting
	d.stopRequested = false
	d.restartCount = 0
	d.mu.Unlock()

	cmd, err := d.startProcess(ctx)
	if err != nil {
		d.mu.Lock()
		d.status = StatusFailed
		d.lastError = err
		d.mu.Unlock()
		return err
	}

	d.mu.Lock()
	d.active = true
	d.stop = make(chan struct{})
	d.done = make(chan struct{})
	stop, done := d.stop, d.done
	d.mu.Unlock()

	go d.monitor(ctx, cmd, stop, done)
	return nil
}

func (d *Daemon) startProcess(ctx context.Context) (*exec.Cmd, error) {
	d.log().Info("starting sensor daemon",
		"name", d.config.Name,
		"binary", d.config.Binary,
		"args", d.config.Args,
	)

	cmd := exec.CommandContext(ctx, d.config.Binary, d.config.Args...) //nolint:gosec // binary comes from the operator's config
	// Own process group so helper scripts and their children are signalled together.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		return signalGroup(cmd, syscall.SIGKILL)
	}
	if d.config.Env != nil {
		cmd.Env = append(os.Environ(), d.config.Env...)
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("creating stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("creating stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("starting %s: %w", d.config.Name, err)
	}

	d.mu.Lock()
	d.cmd = cmd
	d.status = StatusRunning
	d.startTime = time.Now()
	d.mu.Unlock()

	go d.captureOutput("stdout", stdout)
	go d.captureOutput("stderr", stderr)

	d.log().Info("sensor daemon started", "name", d.config.Name, "pid", cmd.Process.Pid)
	return cmd, nil
}

// captureOutput logs the daemon's output line by line.
func (d *Daemon) captureOutput(stream string, r io.Reader) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		d.log().Debug("sensor daemon output",
			"name", d.config.Name,
			"stream", stream,
			"line", scanner.Text(),
		)
	}
}

// wait returns when the process exits or is killed for failing its health checks.
func (d *Daemon) wait(ctx context.Context, cmd *exec.Cmd) error {
	exitCh := make(chan error, 1)
	go func() {
		exitCh <- cmd.Wait()
	}()

	if d.config.HealthCheck == nil {
		return <-exitCh
	}

	ticker := time.NewTicker(d.config.HealthCheckInterval)
	defer ticker.Stop()

	failures := 0
	for {
		select {
		case err := <-exitCh:
			return err
		case <-ctx.Done():
			// CommandContext kills the group.
			return <-exitCh
		case <-ticker.C:
			checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			err := d.config.HealthCheck(checkCtx)
			cancel()

			if err == nil {
				if failures > 0 {
					d.log().Info("sensor daemon healthy again", "name", d.config.Name, "previous_failures", failures)
				}
				failures = 0
				continue
			}

			failures++
			d.log().Warn("sensor daemon health check failed",
				"name", d.config.Name,
				"error", err,
				"consecutive_failures", failures,
			)
			if failures < d.config.MaxHealthFailures {
				continue
			}

			d.log().Error("sensor daemon unhealthy, killing", "name", d.config.Name, "failures", failures)
			if kerr := signalGroup(cmd, syscall.SIGKILL); kerr != nil {
				d.log().Warn("failed to kill sensor daemon", "name", d.config.Name, "error", kerr)
			}
			select {
			case <-exitCh:
			case <-time.After(5 * time.Second):
			}
			return fmt.Errorf("killed after %d failed health checks: %w", failures, err)
		}
	}
}

// monitor restarts the daemon until it is stopped or gives up.
func (d *Daemon) monitor(ctx context.Context, cmd *exec.Cmd, stop, done chan struct{}) {
	defer func() {
		d.mu.Lock()
		d.active = false
		d.mu.Unlock()
		close(done)
	}()

	attempt := 0
	var err error
	for {
		if cmd != nil {
			started := time.Now()
			err = d.wait(ctx, cmd)
			if time.Since(started) >= d.config.StableThreshold {
				attempt = 0
			}
		}

		d.mu.Lock()
		stopRequested := d.stopRequested
		d.mu.Unlock()
		if stopRequested || ctx.Err() != nil {
			d.log().Info("sensor daemon stopped", "name", d.config.Name)
			d.setStatus(StatusStopped, nil)
			return
		}

		d.log().Warn("sensor daemon exited unexpectedly", "name", d.config.Name, "error", err)
		d.setStatus(StatusFailed, err)

		if !d.config.RestartOnFailure {
			return
		}
		if !IsRecoverable(err) {
			d.log().Error("sensor daemon failed permanently", "name", d.config.Name, "error", err)
			return
		}

		d.mu.Lock()
		d.restartCount++
		restarts := d.restartCount
		d.mu.Unlock()
		if d.config.MaxRestartAttempts > 0 && restarts > d.config.MaxRestartAttempts {
			d.log().Error("sensor daemon restart limit reached", "name", d.config.Name, "attempts", restarts-1)
			return
		}

		attempt++
		delay := d.backoffDelay(attempt)
		d.log().Info("restarting sensor daemon", "name", d.config.Name, "attempt", attempt, "delay", delay)
		d.setStatus(StatusBackoff, err)

		select {
		case <-ctx.Done():
			d.setStatus(StatusStopped, err)
			return
		case <-stop:
			d.setStatus(StatusStopped, err)
			return
		case <-time.After(delay):
		}

		cmd, err = d.startProcess(ctx)
		if err != nil {
			d.log().Error("failed to restart sensor daemon", "name", d.config.Name, "error", err)
			cmd = nil
		}
	}
}

func (d *Daemon) setStatus(s Status, err error) {
	d.mu.Lock()
	d.status = s
	if err != nil {
		d.lastError = err
	}
	d.mu.Unlock()
}

// backoffDelay doubles RestartDelay per consecutive attempt, capped at MaxRestartDelay.
func (d *Daemon) backoffDelay(attempt int) time.Duration {
	delay := d.config.RestartDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= d.config.MaxRestartDelay {
			return d.config.MaxRestartDelay
		}
	}
	return delay
}

// Stop terminates the daemon: SIGTERM to its process group, then SIGKILL
// after GracefulTimeout. Stopping an inactive daemon is a no-op.
func (d *Daemon) Stop() error {
	d.mu.Lock()
	if !d.active {
		d.mu.Unlock()
		return nil
	}
	done := d.done
	if d.stopRequested {
		d.mu.Unlock()
		<-done
		return nil
	}
	d.stopRequested = true
	close(d.stop)
	cmd := d.cmd
	running := d.status == StatusRunning
	d.mu.Unlock()

	if running && cmd != nil && cmd.Process != nil {
		d.log().Info("stopping sensor daemon", "name", d.config.Name, "pid", cmd.Process.Pid)
		if err := signalGroup(cmd, syscall.SIGTERM); err != nil {
			d.log().Warn("failed to send SIGTERM", "name", d.config.Name, "error", err)
		}

		select {
		case <-done:
			return nil
		case <-time.After(d.config.GracefulTimeout):
			d.log().Warn("graceful stop timed out, sending SIGKILL",
				"name", d.config.Name,
				"timeout", d.config.GracefulTimeout,
			)
		}
		if err := signalGroup(cmd, syscall.SIGKILL); err != nil {
			<-done
			return fmt.Errorf("killing %s: %w", d.config.Name, err)
		}
	}

	<-done
	return nil
}

// signalGroup signals the process group led by cmd. A group that is
// already gone is not an error.
func signalGroup(cmd *exec.Cmd, sig syscall.Signal) error {
	if cmd.Process == nil {
		return nil
	}
	if err := syscall.Kill(-cmd.Process.Pid, sig); err != nil && !errors.Is(err, syscall.ESRCH) {
		return err
	}
	return nil
}

// Status returns the current status.
func (d *Daemon) Status() Status {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.status
}

// IsRunning reports whether the binary is currently up.
func (d *Daemon) IsRunning() bool {
	return d.Status() == StatusRunning
}

// LastError returns the error of the last unexpected exit.
func (d *Daemon) LastError() error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.lastError
}

// RestartCount returns how many restarts were attempted since Start.
func (d *Daemon) RestartCount() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.restartCount
}

// PID returns the process ID of the current run, or 0.
func (d *Daemon) PID() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.status == StatusRunning && d.cmd != nil && d.cmd.Process != nil {
		return d.cmd.Process.Pid
	}
	return 0
}

// Stats is a snapshot of a daemon.
type Stats struct {
	Name         string        `json:"name"`
	Status       Status        `json:"status"`
	PID          int           `json:"pid,omitempty"`
	Uptime       time.Duration `json:"uptime,omitempty"`
	RestartCount int           `json:"restart_count"`
	LastError    string        `json:"last_error,omitempty"`
}

// Stats returns a snapshot of the daemon.
func (d *Daemon) Stats() Stats {
	d.mu.RLock()
	defer d.mu.RUnlock()

	stats := Stats{
		Name:         d.config.Name,
		Status:       d.status,
		RestartCount: d.restartCount,
	}
	if d.status == StatusRunning {
		if d.cmd != nil && d.cmd.Process != nil {
			stats.PID = d.cmd.Process.Pid
		}
		stats.Uptime = time.Since(d.startTime)
	}
	if d.lastError != nil {
		stats.LastError = d.lastError.Error()
	}
	return stats
}
