package provision

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/nerrad567/handset-agent/internal/device"
)

// Placeholder values recorded when a non-fatal probe fails.
const (
	PlaceholderCPUInfo       = "cpu info unavailable"
	PlaceholderMemSize       = "memory size unavailable"
	PlaceholderDeviceName    = "device name unavailable"
	PlaceholderSystemVersion = "os version unavailable"
)

// Probe names reported in Report.Degraded.
const (
	ProbeCPUInfo       = "cpu_info"
	ProbeMemSize       = "mem_size"
	ProbeDeviceName    = "name"
	ProbeSystemVersion = "system_version"
)

// Prober reads hardware descriptors from an attached device.
type Prober interface {
	CPUInfo(ctx context.Context, id device.Identity) (string, error)
	MemSize(ctx context.Context, id device.Identity) (string, error)
	DeviceName(ctx context.Context, id device.Identity) (string, error)
	OSVersion(ctx context.Context, id device.Identity) (string, error)
	Resolution(ctx context.Context, id device.Identity) (string, error)

	// Screenshot captures the screen into a local file and returns its path.
	// The caller owns the file.
	Screenshot(ctx context.Context, id device.Identity) (string, error)
}

// Uploader stores a local file with the master and returns its download URL.
type Uploader interface {
	UploadFile(ctx context.Context, path string) (string, error)
}

// Installer installs one companion tool on a device.
type Installer interface {
	Name() string
	Install(ctx context.Context, id device.Identity) error
}

// Installers lists the companion tools in installation order.
type Installers struct {
	Mirror     Installer
	Input      Installer
	Automation Installer
}

func (i Installers) ordered() []Installer {
	return []Installer{i.Mirror, i.Input, i.Automation}
}

// Logger defines the logging interface used by the Workflow.
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

// ProbeResult is the outcome of one hardware probe.
// A degraded result carries the placeholder in Value and the cause in Err.
type ProbeResult struct {
	Value    string
	Degraded bool
	Err      error
}

// Report describes the non-fatal outcomes of a provisioning run.
type Report struct {
	// Degraded lists probes that fell back to a placeholder.
	Degraded []string

	// ThumbnailErr is the screenshot or upload failure, if any.
	ThumbnailErr error
}

// Workflow provisions and hydrates device handles.
type Workflow struct {
	prober     Prober
	uploader   Uploader
	installers Installers
	logger     Logger
	now        func() time.Time
}

// NewWorkflow creates a workflow. All three installers are required.
func NewWorkflow(prober Prober, uploader Uploader, installers Installers) *Workflow {
	return &Workflow{
		prober:     prober,
		uploader:   uploader,
		installers: installers,
		logger:     noopLogger{},
		now:        time.Now,
	}
}

// SetLogger sets the logger for the workflow.
func (w *Workflow) SetLogger(logger Logger) {
	w.logger = logger
}

// SetClock replaces the time source used for CreateTime.
func (w *Workflow) SetClock(now func() time.Time) {
	w.now = now
}

// Provision builds a fresh record and handle for a device the master has
// never seen, then installs the companion tools.
func (w *Workflow) Provision(ctx context.Context, conn device.Conn, id device.Identity) (*device.Handle, Report, error) {
	var report Report
	log := w.logger

	record := device.Record{
		ID:         id,
		Platform:   device.PlatformAndroid,
		CreateTime: w.now(),
		Status:     device.StatusProvisioningUnseen,
	}

	probes := []struct {
		name        string
		probe       func(context.Context, device.Identity) (string, error)
		placeholder string
		dst         *string
	}{
		{ProbeCPUInfo, w.prober.CPUInfo, PlaceholderCPUInfo, &record.CPUInfo},
		{ProbeMemSize, w.prober.MemSize, PlaceholderMemSize, &record.MemSize},
		{ProbeDeviceName, w.prober.DeviceName, PlaceholderDeviceName, &record.Name},
		{ProbeSystemVersion, w.prober.OSVersion, PlaceholderSystemVersion, &record.SystemVersion},
	}
	for _, p := range probes {
		res := runProbe(ctx, id, p.probe, p.placeholder)
		*p.dst = res.Value
		if res.Degraded {
			log.Warn("device probe degraded", "serial", id, "probe", p.name, "error", res.Err)
			report.Degraded = append(report.Degraded, p.name)
		}
	}

	raw, err := w.prober.Resolution(ctx, id)
	if err != nil {
		return nil, report, fmt.Errorf("%w: %w", ErrResolution, err)
	}
	res, err := device.ParseResolution(raw)
	if err != nil {
		return nil, report, fmt.Errorf("%w: %w", ErrResolution, err)
	}
	record.ScreenWidth = res.Width
	record.ScreenHeight = res.Height

	imgURL, err := w.thumbnail(ctx, id)
	if err != nil {
		log.Warn("device thumbnail unavailable", "serial", id, "error", err)
		report.ThumbnailErr = err
	}
	record.ImgURL = imgURL

	if err := w.Install(ctx, id); err != nil {
		return nil, report, err
	}

	log.Info("device provisioned",
		"serial", id,
		"resolution", res.String(),
		"degraded", len(report.Degraded),
	)
	return device.NewHandle(record, conn), report, nil
}

// Hydrate builds a handle from a record the master already holds and
// installs the companion tools.
func (w *Workflow) Hydrate(ctx context.Context, conn device.Conn, record device.Record) (*device.Handle, error) {
	if err := w.Install(ctx, record.ID); err != nil {
		return nil, err
	}
	w.logger.Info("device hydrated from master record", "serial", record.ID)
	return device.NewHandle(record, conn), nil
}

// Install runs the companion installers in order. The first failure stops
// the sequence and is returned as an *InstallError.
func (w *Workflow) Install(ctx context.Context, id device.Identity) error {
	for _, inst := range w.installers.ordered() {
		if inst == nil {
			return &InstallError{Tool: "unknown", Err: errors.New("installer not configured")}
		}
		name := inst.Name()
		w.logger.Debug("installing companion tool", "serial", id, "tool", name)
		if err := inst.Install(ctx, id); err != nil {
			return &InstallError{Tool: name, Err: err}
		}
	}
	return nil
}

// thumbnail captures and uploads a screenshot. The local file is removed
// before returning whether or not the upload succeeded.
func (w *Workflow) thumbnail(ctx context.Context, id device.Identity) (string, error) {
	path, err := w.prober.Screenshot(ctx, id)
	if path != "" {
		defer func() {
			if rmErr := os.Remove(path); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
				w.logger.Warn("removing screenshot", "path", path, "error", rmErr)
			}
		}()
	}
	if err != nil {
		return "", fmt.Errorf("capturing screenshot: %w", err)
	}

	url, err := w.uploader.UploadFile(ctx, path)
	if err != nil {
		return "", fmt.Errorf("uploading screenshot: %w", err)
	}
	return url, nil
}

func runProbe(ctx context.Context, id device.Identity, probe func(context.Context, device.Identity) (string, error), placeholder string) ProbeResult {
	v, err := probe(ctx, id)
	if err != nil {
		return ProbeResult{Value: placeholder, Degraded: true, Err: err}
	}
	return ProbeResult{Value: v}
}
