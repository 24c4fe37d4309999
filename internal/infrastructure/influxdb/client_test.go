package influxdb_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/handset-agent/internal/infrastructure/config"
	"github.com/nerrad567/handset-agent/internal/infrastructure/influxdb"
)

// fakeInfluxServer answers /ping and records line protocol sent to /api/v2/write.
type fakeInfluxServer struct {
	*httptest.Server

	mu    sync.Mutex
	lines []string
}

func newFakeInfluxServer(t *testing.T) *fakeInfluxServer {
	t.Helper()
	s := &fakeInfluxServer{}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ping":
			w.WriteHeader(http.StatusNoContent)
		case "/api/v2/write":
			body, _ := io.ReadAll(r.Body)
			s.mu.Lock()
			for _, line := range strings.Split(strings.TrimSpace(string(body)), "\n") {
				if line != "" {
					s.lines = append(s.lines, line)
				}
			}
			s.mu.Unlock()
			w.WriteHeader(http.StatusNoContent)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(s.Close)
	return s
}

func (s *fakeInfluxServer) waitForLines(t *testing.T, n int) []string {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		s.mu.Lock()
		if len(s.lines) >= n {
			lines := append([]string(nil), s.lines...)
			s.mu.Unlock()
			return lines
		}
		s.mu.Unlock()
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d lines", n)
	return nil
}

func testConfig(url string) config.InfluxDBConfig {
	return config.InfluxDBConfig{
		Enabled:       true,
		URL:           url,
		Token:         "test-token",
		Org:           "lab",
		Bucket:        "handsets",
		BatchSize:     1,
		FlushInterval: 1,
	}
}

func TestConnect_Disabled(t *testing.T) {
	cfg := testConfig("http://127.0.0.1:1")
	cfg.Enabled = false

	_, err := influxdb.Connect(cfg)
	if !errors.Is(err, influxdb.ErrDisabled) {
		t.Errorf("Connect() error = %v, want ErrDisabled", err)
	}
}

func TestConnect_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := influxdb.Connect(testConfig(url))
	if !errors.Is(err, influxdb.ErrConnectionFailed) {
		t.Errorf("Connect() error = %v, want ErrConnectionFailed", err)
	}
}

func TestConnectAndHealthCheck(t *testing.T) {
	srv := newFakeInfluxServer(t)

	client, err := influxdb.Connect(testConfig(srv.URL))
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer client.Close()

	if !client.IsConnected() {
		t.Error("IsConnected() = false after Connect()")
	}
	if err := client.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}
}

func TestWriteLifecycle(t *testing.T) {
	srv := newFakeInfluxServer(t)

	client, err := influxdb.Connect(testConfig(srv.URL))
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer client.Close()

	client.WriteLifecycle(influxdb.LifecyclePoint{
		Serial:      "R58M123ABC",
		Event:       "attached",
		Status:      "idle",
		Provisioned: true,
		Degraded:    1,
		Elapsed:     2500 * time.Millisecond,
	})
	client.Flush()

	lines := srv.waitForLines(t, 1)
	line := lines[0]
	for _, want := range []string{
		"device_lifecycle,",
		"serial=R58M123ABC",
		"event=attached",
		"duration_ms=2500i",
		"provisioned=true",
		`status="idle"`,
	} {
		if !strings.Contains(line, want) {
			t.Errorf("line %q missing %q", line, want)
		}
	}
}

func TestWriteFleetSize(t *testing.T) {
	srv := newFakeInfluxServer(t)

	client, err := influxdb.Connect(testConfig(srv.URL))
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer client.Close()

	client.WriteFleetSize("lab-1", 5, 3)
	client.Flush()

	line := srv.waitForLines(t, 1)[0]
	if !strings.HasPrefix(line, "agent_fleet,agent_id=lab-1") || !strings.Contains(line, "online=3i") {
		t.Errorf("line = %q", line)
	}
}

func TestWriteAfterClose(t *testing.T) {
	srv := newFakeInfluxServer(t)

	client, err := influxdb.Connect(testConfig(srv.URL))
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	if err := client.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	// Must not panic or block.
	client.WriteLifecycle(influxdb.LifecyclePoint{Serial: "X1", Event: "detached"})
	client.Flush()

	if err := client.HealthCheck(context.Background()); !errors.Is(err, influxdb.ErrNotConnected) {
		t.Errorf("HealthCheck() after Close error = %v, want ErrNotConnected", err)
	}
}

func TestClose_Nil(t *testing.T) {
	var client influxdb.Client
	if err := client.Close(); err != nil {
		t.Errorf("Close() on zero client error = %v", err)
	}
}
