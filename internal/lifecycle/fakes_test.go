package lifecycle

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/handset-agent/internal/device"
	"github.com/nerrad567/handset-agent/internal/provision"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(t time.Time) *fakeClock { return &fakeClock{now: t} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

type testConn struct{ serial device.Identity }

func (c testConn) Serial() device.Identity { return c.serial }

type fakeBridge struct {
	mu       sync.Mutex
	offline  map[device.Identity]bool
	wait     func(ctx context.Context, id device.Identity) (bool, error)
	timeouts []time.Duration
}

func newFakeBridge() *fakeBridge {
	return &fakeBridge{offline: map[device.Identity]bool{}}
}

func (b *fakeBridge) WaitUntilOnline(ctx context.Context, id device.Identity, timeout time.Duration) (bool, error) {
	b.mu.Lock()
	b.timeouts = append(b.timeouts, timeout)
	wait := b.wait
	offline := b.offline[id]
	b.mu.Unlock()

	if wait != nil {
		return wait(ctx, id)
	}
	return !offline, nil
}

func (b *fakeBridge) Conn(id device.Identity) device.Conn {
	return testConn{serial: id}
}

type fakeMaster struct {
	mu      sync.Mutex
	records map[device.Identity]device.Record
	saves   []device.Record
	lookups int
	getErr  error
	saveErr error
}

func newFakeMaster() *fakeMaster {
	return &fakeMaster{records: map[device.Identity]device.Record{}}
}

func (m *fakeMaster) GetDevice(_ context.Context, id device.Identity) (*device.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lookups++
	if m.getErr != nil {
		return nil, m.getErr
	}
	r, ok := m.records[id]
	if !ok {
		return nil, device.ErrDeviceNotFound
	}
	c := r.Clone()
	return &c, nil
}

func (m *fakeMaster) SaveDevice(_ context.Context, r device.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saves = append(m.saves, r.Clone())
	if m.saveErr != nil {
		return m.saveErr
	}
	m.records[r.ID] = r.Clone()
	return nil
}

func (m *fakeMaster) savesFor(id device.Identity) []device.Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []device.Record
	for _, r := range m.saves {
		if r.ID == id {
			out = append(out, r)
		}
	}
	return out
}

type fakeProber struct {
	dir    string
	mu     sync.Mutex
	cpuErr map[device.Identity]error
	shots  int
}

func newFakeProber(t *testing.T) *fakeProber {
	t.Helper()
	return &fakeProber{dir: t.TempDir(), cpuErr: map[device.Identity]error{}}
}

func (p *fakeProber) CPUInfo(_ context.Context, id device.Identity) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.cpuErr[id]; err != nil {
		return "", err
	}
	return "Qualcomm SDM845", nil
}

func (p *fakeProber) MemSize(context.Context, device.Identity) (string, error) {
	return "5.6 GB", nil
}

func (p *fakeProber) DeviceName(context.Context, device.Identity) (string, error) {
	return "OnePlus A6013", nil
}

func (p *fakeProber) OSVersion(context.Context, device.Identity) (string, error) {
	return "10", nil
}

func (p *fakeProber) Resolution(context.Context, device.Identity) (string, error) {
	return "1080x1920", nil
}

func (p *fakeProber) Screenshot(_ context.Context, id device.Identity) (string, error) {
	f, err := os.CreateTemp(p.dir, string(id)+"-*.png")
	if err != nil {
		return "", err
	}
	defer f.Close()
	p.mu.Lock()
	p.shots++
	p.mu.Unlock()
	return f.Name(), nil
}

func (p *fakeProber) shotCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.shots
}

type fakeUploader struct{}

func (fakeUploader) UploadFile(_ context.Context, path string) (string, error) {
	return "http://master/upload/" + filepath.Base(path), nil
}

// fakeInstaller counts installs per identity and can block or fail.
type fakeInstaller struct {
	name string

	mu       sync.Mutex
	installs map[device.Identity]int
	err      error
	hook     func(ctx context.Context, id device.Identity)
}

func newFakeInstaller(name string) *fakeInstaller {
	return &fakeInstaller{name: name, installs: map[device.Identity]int{}}
}

func (i *fakeInstaller) Name() string { return i.name }

func (i *fakeInstaller) Install(ctx context.Context, id device.Identity) error {
	i.mu.Lock()
	hook, err := i.hook, i.err
	i.mu.Unlock()

	if hook != nil {
		hook(ctx, id)
	}

	i.mu.Lock()
	defer i.mu.Unlock()
	if err != nil {
		return err
	}
	i.installs[id]++
	return nil
}

func (i *fakeInstaller) count(id device.Identity) int {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.installs[id]
}

func (i *fakeInstaller) setErr(err error) {
	i.mu.Lock()
	i.err = err
	i.mu.Unlock()
}

type eventRecorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *eventRecorder) Observe(_ context.Context, ev Event) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
}

func (r *eventRecorder) forIdentity(id device.Identity) []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Event
	for _, ev := range r.events {
		if ev.Identity == id {
			out = append(out, ev)
		}
	}
	return out
}

func (r *eventRecorder) all() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

type harness struct {
	registry   *device.Registry
	bridge     *fakeBridge
	master     *fakeMaster
	prober     *fakeProber
	mirror     *fakeInstaller
	input      *fakeInstaller
	automation *fakeInstaller
	clock      *fakeClock
	events     *eventRecorder
	sessions   *sessionCounter
	dispatcher *Dispatcher
}

type testSession struct {
	name   string
	closed bool
}

func (s *testSession) Name() string { return s.name }
func (s *testSession) Close() error { s.closed = true; return nil }

type sessionCounter struct {
	mu     sync.Mutex
	opened map[device.Identity]int
}

func (c *sessionCounter) factory(_ context.Context, id device.Identity, _ device.Conn) (device.Companions, error) {
	c.mu.Lock()
	c.opened[id]++
	c.mu.Unlock()
	return device.Companions{
		Mirror:     &testSession{name: "mirror"},
		Input:      &testSession{name: "input"},
		Automation: &testSession{name: "automation"},
	}, nil
}

func (c *sessionCounter) count(id device.Identity) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.opened[id]
}

var t0 = time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC)

func newHarness(t *testing.T, opts Options) *harness {
	t.Helper()

	h := &harness{
		registry:   device.NewRegistry(),
		bridge:     newFakeBridge(),
		master:     newFakeMaster(),
		prober:     newFakeProber(t),
		mirror:     newFakeInstaller("minicap"),
		input:      newFakeInstaller("minitouch"),
		automation: newFakeInstaller("uiautomator"),
		clock:      newFakeClock(t0),
		events:     &eventRecorder{},
		sessions:   &sessionCounter{opened: map[device.Identity]int{}},
	}

	workflow := provision.NewWorkflow(h.prober, fakeUploader{}, provision.Installers{
		Mirror:     h.mirror,
		Input:      h.input,
		Automation: h.automation,
	})
	workflow.SetClock(h.clock.Now)

	if opts.Endpoint == (device.Endpoint{}) {
		opts.Endpoint = device.Endpoint{Host: "10.1.2.3", Port: 10004}
	}
	opts.Clock = h.clock.Now

	h.dispatcher = NewDispatcher(Deps{
		Registry:    h.registry,
		Bridge:      h.bridge,
		Master:      h.master,
		Provisioner: workflow,
		Companions:  h.sessions.factory,
	}, opts)
	h.dispatcher.AddObserver(h.events)
	t.Cleanup(h.dispatcher.Close)

	return h
}

func (h *harness) snapshot(t *testing.T, id device.Identity) device.Record {
	t.Helper()
	handle, ok := h.registry.Get(id)
	if !ok {
		t.Fatalf("identity %s not registered", id)
	}
	return handle.Snapshot()
}

func (h *harness) installs(id device.Identity) [3]int {
	return [3]int{h.mirror.count(id), h.input.count(id), h.automation.count(id)}
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

var errBoom = errors.New("boom")
