package process

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func waitForStatus(t *testing.T, m *Manager, want Status, timeout time.Duration) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if m.Status() == want {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("status = %s, want %s", m.Status(), want)
}

func TestNewManagerDefaults(t *testing.T) {
	m := NewManager(Config{Name: "x", Binary: "sleep"})

	if m.config.RestartDelay != defaultRestartDelay {
		t.Errorf("RestartDelay = %v", m.config.RestartDelay)
	}
	if m.config.MaxRestartDelay != defaultMaxRestartDelay {
		t.Errorf("MaxRestartDelay = %v", m.config.MaxRestartDelay)
	}
	if m.config.GracefulTimeout != defaultGracefulTimeout {
		t.Errorf("GracefulTimeout = %v", m.config.GracefulTimeout)
	}
	if m.Status() != StatusStopped {
		t.Errorf("Status = %s, want stopped", m.Status())
	}
	if m.PID() != 0 {
		t.Errorf("PID = %d, want 0", m.PID())
	}
}

func TestBackoffDelay(t *testing.T) {
	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{1, time.Second},
		{2, 2 * time.Second},
		{3, 4 * time.Second},
		{5, 10 * time.Second},
		{50, 10 * time.Second},
	}
	for _, tt := range tests {
		if got := backoffDelay(time.Second, 10*time.Second, tt.attempt); got != tt.want {
			t.Errorf("backoffDelay(attempt=%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}

func TestStartStop(t *testing.T) {
	var started, stopped atomic.Int32
	m := NewManager(Config{
		Name:            "sleeper",
		Binary:          "sleep",
		Args:            []string{"30"},
		GracefulTimeout: 2 * time.Second,
		OnStart:         func() { started.Add(1) },
		OnStop: func(err error) {
			if err != nil {
				t.Errorf("OnStop err = %v, want nil on requested stop", err)
			}
			stopped.Add(1)
		},
	})

	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if !m.IsRunning() {
		t.Fatal("IsRunning = false after Start")
	}
	if m.PID() == 0 {
		t.Error("PID = 0 after Start")
	}
	if err := m.Start(context.Background()); !errors.Is(err, ErrAlreadyRunning) {
		t.Errorf("second Start err = %v, want ErrAlreadyRunning", err)
	}

	if err := m.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if m.Status() != StatusStopped {
		t.Errorf("Status = %s, want stopped", m.Status())
	}
	if started.Load() != 1 || stopped.Load() != 1 {
		t.Errorf("callbacks started=%d stopped=%d, want 1/1", started.Load(), stopped.Load())
	}

	// Stopping twice is harmless.
	if err := m.Stop(); err != nil {
		t.Errorf("second Stop: %v", err)
	}
}

func TestStartMissingBinary(t *testing.T) {
	m := NewManager(Config{Name: "ghost", Binary: "/nonexistent/handset-agent-binary"})
	if err := m.Start(context.Background()); err == nil {
		t.Fatal("Start succeeded for a missing binary")
	}
	if m.Status() != StatusFailed {
		t.Errorf("Status = %s, want failed", m.Status())
	}
	if m.LastError() == nil {
		t.Error("LastError = nil")
	}
}

func TestRestartOnFailure(t *testing.T) {
	var restarts atomic.Int32
	m := NewManager(Config{
		Name:               "crasher",
		Binary:             "sh",
		Args:               []string{"-c", "exit 3"},
		RestartOnFailure:   true,
		RestartDelay:       10 * time.Millisecond,
		MaxRestartDelay:    20 * time.Millisecond,
		MaxRestartAttempts: 2,
		OnRestart:          func(int) { restarts.Add(1) },
	})

	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	select {
	case <-m.done:
	case <-time.After(5 * time.Second):
		t.Fatal("supervision did not give up")
	}

	if m.Status() != StatusFailed {
		t.Errorf("Status = %s, want failed", m.Status())
	}
	if restarts.Load() != 2 {
		t.Errorf("restarts = %d, want 2", restarts.Load())
	}
	if m.LastError() == nil {
		t.Error("LastError = nil after crashes")
	}
}

func TestNoRestartWhenDisabled(t *testing.T) {
	m := NewManager(Config{
		Name:   "oneshot",
		Binary: "sh",
		Args:   []string{"-c", "exit 1"},
	})
	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitForStatus(t, m, StatusFailed, 5*time.Second)
	if m.RestartCount() != 0 {
		t.Errorf("RestartCount = %d, want 0", m.RestartCount())
	}
}

func TestReadyFunc(t *testing.T) {
	t.Run("becomes ready", func(t *testing.T) {
		var calls atomic.Int32
		m := NewManager(Config{
			Name:   "ready",
			Binary: "sleep",
			Args:   []string{"30"},
			ReadyFunc: func(context.Context) error {
				if calls.Add(1) < 3 {
					return errors.New("not yet")
				}
				return nil
			},
			ReadyTimeout: 5 * time.Second,
		})
		if err := m.Start(context.Background()); err != nil {
			t.Fatalf("Start: %v", err)
		}
		defer m.Stop() //nolint:errcheck // test cleanup
		if calls.Load() < 3 {
			t.Errorf("ReadyFunc calls = %d, want >= 3", calls.Load())
		}
	})

	t.Run("never ready", func(t *testing.T) {
		m := NewManager(Config{
			Name:         "stuck",
			Binary:       "sleep",
			Args:         []string{"30"},
			ReadyFunc:    func(context.Context) error { return errors.New("nope") },
			ReadyTimeout: 300 * time.Millisecond,
		})
		if err := m.Start(context.Background()); err == nil {
			t.Fatal("Start succeeded without readiness")
		}
		if m.Status() != StatusFailed {
			t.Errorf("Status = %s, want failed", m.Status())
		}
	})
}

func TestHealthCheckKillsHungProcess(t *testing.T) {
	m := NewManager(Config{
		Name:                "hung",
		Binary:              "sleep",
		Args:                []string{"30"},
		HealthCheckFunc:     func(context.Context) error { return errors.New("unresponsive") },
		HealthCheckInterval: 20 * time.Millisecond,
	})
	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitForStatus(t, m, StatusFailed, 5*time.Second)
	if m.LastError() == nil {
		t.Error("LastError = nil after watchdog kill")
	}
}

func TestContextCancelStops(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	m := NewManager(Config{
		Name:             "scoped",
		Binary:           "sleep",
		Args:             []string{"30"},
		RestartOnFailure: true,
	})
	if err := m.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	cancel()
	waitForStatus(t, m, StatusStopped, 5*time.Second)
	if m.RestartCount() != 0 {
		t.Errorf("RestartCount = %d, want 0 after cancellation", m.RestartCount())
	}
}

func TestStats(t *testing.T) {
	m := NewManager(Config{Name: "stats", Binary: "sleep", Args: []string{"30"}})
	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer m.Stop() //nolint:errcheck // test cleanup

	s := m.Stats()
	if s.Name != "stats" || s.Status != StatusRunning || s.PID == 0 {
		t.Errorf("Stats = %+v", s)
	}
}
