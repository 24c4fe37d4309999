package companion

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"

	"github.com/nerrad567/handset-agent/internal/device"
)

// Tool names as reported by installers and sessions.
const (
	ToolMinicap      = "minicap"
	ToolMinitouch    = "minitouch"
	ToolUiautomator2 = "uiautomator2"
)

const (
	uiautomatorServerAPK = "uiautomator2-server.apk"
	uiautomatorTestAPK   = "uiautomator2-server-test.apk"
)

// ErrResourceMissing is returned when a local artefact for the device's
// ABI or SDK level is not present in the resources directory.
var ErrResourceMissing = errors.New("companion: resource missing")

// ADB is the subset of the adb client the installers need.
type ADB interface {
	ABI(ctx context.Context, id device.Identity) (string, error)
	SDKLevel(ctx context.Context, id device.Identity) (string, error)
	Shell(ctx context.Context, id device.Identity, args ...string) (string, error)
	Push(ctx context.Context, id device.Identity, local, remote string) error
	Install(ctx context.Context, id device.Identity, apk string) error
}

// Paths locates artefacts locally and on the device.
type Paths struct {
	// ResourcesDir is the local resource tree root.
	ResourcesDir string

	// RemoteDir is the writable directory on the device.
	RemoteDir string
}

func (p Paths) local(elem ...string) (string, error) {
	full := filepath.Join(append([]string{p.ResourcesDir}, elem...)...)
	if _, err := os.Stat(full); err != nil {
		return "", fmt.Errorf("%w: %s", ErrResourceMissing, full)
	}
	return full, nil
}

func (p Paths) remote(name string) string {
	return path.Join(p.RemoteDir, name)
}

// pushExecutable pushes local to the device and marks it executable.
func pushExecutable(ctx context.Context, adb ADB, id device.Identity, local, remote string) error {
	if err := adb.Push(ctx, id, local, remote); err != nil {
		return err
	}
	if _, err := adb.Shell(ctx, id, "chmod", "755", remote); err != nil {
		return fmt.Errorf("chmod %s: %w", remote, err)
	}
	return nil
}

// MinicapInstaller pushes the minicap binary and its shared library.
type MinicapInstaller struct {
	adb   ADB
	paths Paths
}

// NewMinicapInstaller creates a minicap installer.
func NewMinicapInstaller(adb ADB, paths Paths) *MinicapInstaller {
	return &MinicapInstaller{adb: adb, paths: paths}
}

// Name implements provision.Installer.
func (m *MinicapInstaller) Name() string { return ToolMinicap }

// Install implements provision.Installer.
func (m *MinicapInstaller) Install(ctx context.Context, id device.Identity) error {
	abi, err := m.adb.ABI(ctx, id)
	if err != nil {
		return err
	}
	sdk, err := m.adb.SDKLevel(ctx, id)
	if err != nil {
		return err
	}

	bin, err := m.paths.local("minicap", "bin", abi, "minicap")
	if err != nil {
		return err
	}
	lib, err := m.paths.local("minicap", "shared", "android-"+sdk, abi, "minicap.so")
	if err != nil {
		return err
	}

	if err := pushExecutable(ctx, m.adb, id, bin, m.paths.remote("minicap")); err != nil {
		return err
	}
	return m.adb.Push(ctx, id, lib, m.paths.remote("minicap.so"))
}

// MinitouchInstaller pushes the minitouch binary.
type MinitouchInstaller struct {
	adb   ADB
	paths Paths
}

// NewMinitouchInstaller creates a minitouch installer.
func NewMinitouchInstaller(adb ADB, paths Paths) *MinitouchInstaller {
	return &MinitouchInstaller{adb: adb, paths: paths}
}

// Name implements provision.Installer.
func (m *MinitouchInstaller) Name() string { return ToolMinitouch }

// Install implements provision.Installer.
func (m *MinitouchInstaller) Install(ctx context.Context, id device.Identity) error {
	abi, err := m.adb.ABI(ctx, id)
	if err != nil {
		return err
	}
	bin, err := m.paths.local("minitouch", abi, "minitouch")
	if err != nil {
		return err
	}
	return pushExecutable(ctx, m.adb, id, bin, m.paths.remote("minitouch"))
}

// UiautomatorInstaller installs the uiautomator2 server and its
// instrumentation APK.
type UiautomatorInstaller struct {
	adb   ADB
	paths Paths
}

// NewUiautomatorInstaller creates a uiautomator2 installer.
func NewUiautomatorInstaller(adb ADB, paths Paths) *UiautomatorInstaller {
	return &UiautomatorInstaller{adb: adb, paths: paths}
}

// Name implements provision.Installer.
func (u *UiautomatorInstaller) Name() string { return ToolUiautomator2 }

// Install implements provision.Installer.
func (u *UiautomatorInstaller) Install(ctx context.Context, id device.Identity) error {
	for _, apk := range []string{uiautomatorServerAPK, uiautomatorTestAPK} {
		local, err := u.paths.local("uiautomator2", apk)
		if err != nil {
			return err
		}
		if err := u.adb.Install(ctx, id, local); err != nil {
			return err
		}
	}
	return nil
}
