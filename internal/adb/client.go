package adb

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/handset-agent/internal/device"
)

// remoteTmpDir holds screenshots and APKs while they are in transit.
const remoteTmpDir = "/data/local/tmp"

// Logger defines the logging interface used by the adb package.
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

// Conn is the adb transport handle for one device.
type Conn struct {
	serial device.Identity
}

// Serial returns the device serial.
func (c *Conn) Serial() device.Identity { return c.serial }

// Client runs adb requests against individual devices.
type Client struct {
	tr     Transport
	tmpDir string
	logger Logger

	// pollInterval is how often WaitUntilOnline re-checks device state.
	pollInterval time.Duration
}

// NewClient creates a client. Screenshots are pulled into tmpDir, or the
// OS temp dir if empty.
func NewClient(tr Transport, tmpDir string) *Client {
	if tmpDir == "" {
		tmpDir = os.TempDir()
	}
	return &Client{
		tr:           tr,
		tmpDir:       tmpDir,
		logger:       noopLogger{},
		pollInterval: time.Second,
	}
}

// SetLogger sets the logger for the client.
func (c *Client) SetLogger(logger Logger) {
	c.logger = logger
}

// Conn returns the transport handle for id.
func (c *Client) Conn(id device.Identity) device.Conn {
	return &Conn{serial: id}
}

// Shell runs a shell command on id and returns its trimmed output.
func (c *Client) Shell(ctx context.Context, id device.Identity, args ...string) (string, error) {
	if len(args) == 0 {
		return "", fmt.Errorf("%w: empty shell command", ErrCommandFailed)
	}
	out, err := c.tr.Shell(ctx, string(id), args[0], args[1:]...)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

// GetProp reads one system property.
func (c *Client) GetProp(ctx context.Context, id device.Identity, name string) (string, error) {
	v, err := c.Shell(ctx, id, "getprop", name)
	if err != nil {
		return "", fmt.Errorf("getprop %s: %w", name, err)
	}
	return v, nil
}

// Push copies a local file to the device.
func (c *Client) Push(ctx context.Context, id device.Identity, local, remote string) error {
	if err := c.tr.Push(ctx, string(id), local, remote); err != nil {
		return fmt.Errorf("push %s: %w", filepath.Base(local), err)
	}
	return nil
}

// Pull copies a file from the device to local.
func (c *Client) Pull(ctx context.Context, id device.Identity, remote, local string) error {
	if err := c.tr.Pull(ctx, string(id), remote, local); err != nil {
		return fmt.Errorf("pull %s: %w", remote, err)
	}
	return nil
}

// Install pushes an APK to the device and installs it with the package
// manager, replacing any existing version and allowing test-only packages.
// The pushed copy is removed afterwards.
func (c *Client) Install(ctx context.Context, id device.Identity, apk string) error {
	name := filepath.Base(apk)
	remote := path.Join(remoteTmpDir, name)

	if err := c.Push(ctx, id, apk, remote); err != nil {
		return fmt.Errorf("install %s: %w", name, err)
	}
	defer func() {
		if _, err := c.Shell(context.WithoutCancel(ctx), id, "rm", "-f", remote); err != nil {
			c.logger.Warn("removing pushed apk", "serial", id, "error", err)
		}
	}()

	out, err := c.Shell(ctx, id, "pm", "install", "-r", "-t", remote)
	if err != nil {
		return fmt.Errorf("install %s: %w", name, err)
	}
	// pm reports failures in its output, not through the shell transport.
	if !strings.Contains(out, "Success") {
		return fmt.Errorf("%w: install %s: %s", ErrCommandFailed, name, out)
	}
	return nil
}

// State returns the adb connection state of id.
func (c *Client) State(ctx context.Context, id device.Identity) (DeviceState, error) {
	return c.tr.State(ctx, string(id))
}

// WaitUntilOnline polls until id reports the device state or timeout
// elapses. It returns false without error on timeout and ctx.Err() on
// cancellation.
func (c *Client) WaitUntilOnline(ctx context.Context, id device.Identity, timeout time.Duration) (bool, error) {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		state, err := c.State(ctx, id)
		if err == nil && state.Online() {
			return true, nil
		}
		if err != nil {
			c.logger.Debug("device state check failed", "serial", id, "error", err)
		}

		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-deadline.C:
			return false, nil
		case <-ticker.C:
		}
	}
}

// CPUInfo returns the SoC description.
func (c *Client) CPUInfo(ctx context.Context, id device.Identity) (string, error) {
	out, err := c.Shell(ctx, id, "cat", "/proc/cpuinfo")
	if err != nil {
		return "", err
	}
	return parseCPUInfo(out)
}

// MemSize returns total RAM in gigabytes, e.g. "5.6 GB".
func (c *Client) MemSize(ctx context.Context, id device.Identity) (string, error) {
	out, err := c.Shell(ctx, id, "cat", "/proc/meminfo")
	if err != nil {
		return "", err
	}
	return parseMemTotal(out)
}

// DeviceName returns "<manufacturer> <model>".
func (c *Client) DeviceName(ctx context.Context, id device.Identity) (string, error) {
	manufacturer, err := c.GetProp(ctx, id, "ro.product.manufacturer")
	if err != nil {
		return "", err
	}
	model, err := c.GetProp(ctx, id, "ro.product.model")
	if err != nil {
		return "", err
	}
	name := strings.TrimSpace(manufacturer + " " + model)
	if name == "" {
		return "", fmt.Errorf("%w: empty manufacturer and model", ErrUnexpectedOutput)
	}
	return name, nil
}

// OSVersion returns the Android release, e.g. "14".
func (c *Client) OSVersion(ctx context.Context, id device.Identity) (string, error) {
	v, err := c.GetProp(ctx, id, "ro.build.version.release")
	if err != nil {
		return "", err
	}
	if v == "" {
		return "", fmt.Errorf("%w: empty ro.build.version.release", ErrUnexpectedOutput)
	}
	return v, nil
}

// Resolution returns the screen size as "WxH".
func (c *Client) Resolution(ctx context.Context, id device.Identity) (string, error) {
	out, err := c.Shell(ctx, id, "wm", "size")
	if err != nil {
		return "", err
	}
	return parseWMSize(out)
}

// ABI returns the primary CPU ABI, e.g. "arm64-v8a".
func (c *Client) ABI(ctx context.Context, id device.Identity) (string, error) {
	return c.GetProp(ctx, id, "ro.product.cpu.abi")
}

// SDKLevel returns the API level, e.g. "34".
func (c *Client) SDKLevel(ctx context.Context, id device.Identity) (string, error) {
	return c.GetProp(ctx, id, "ro.build.version.sdk")
}

// Screenshot captures the screen to a local PNG and returns its path.
// The caller owns the file.
func (c *Client) Screenshot(ctx context.Context, id device.Identity) (string, error) {
	name := fmt.Sprintf("%s-%s.png", sanitizeSerial(id), uuid.NewString())
	remote := path.Join(remoteTmpDir, name)
	local := filepath.Join(c.tmpDir, name)

	if _, err := c.Shell(ctx, id, "screencap", "-p", remote); err != nil {
		return "", fmt.Errorf("screencap: %w", err)
	}
	defer func() {
		if _, err := c.Shell(context.WithoutCancel(ctx), id, "rm", "-f", remote); err != nil {
			c.logger.Warn("removing remote screenshot", "serial", id, "error", err)
		}
	}()

	if err := c.Pull(ctx, id, remote, local); err != nil {
		_ = os.Remove(local) //nolint:errcheck // may not exist
		return "", err
	}
	if _, err := os.Stat(local); err != nil {
		return "", errors.Join(ErrUnexpectedOutput, err)
	}
	return local, nil
}

// sanitizeSerial makes a serial safe for file names; network serials
// look like 192.168.1.5:5555.
func sanitizeSerial(id device.Identity) string {
	return strings.NewReplacer(":", "_", "/", "_").Replace(string(id))
}
