package adb

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/nerrad567/handset-agent/internal/device"
)

const serial device.Identity = "R58M123ABC"

func TestClientProbes(t *testing.T) {
	f := newFakeTransport()
	f.on("-s R58M123ABC shell cat /proc/cpuinfo", "Hardware\t: Qualcomm SM8250\n")
	f.on("-s R58M123ABC shell cat /proc/meminfo", "MemTotal: 5870016 kB\n")
	f.on("-s R58M123ABC shell getprop ro.product.manufacturer", "samsung\n")
	f.on("-s R58M123ABC shell getprop ro.product.model", "SM-G981B\n")
	f.on("-s R58M123ABC shell getprop ro.build.version.release", "13\n")
	f.on("-s R58M123ABC shell wm size", "Physical size: 1440x3200\n")
	f.on("-s R58M123ABC shell getprop ro.product.cpu.abi", "arm64-v8a\n")
	f.on("-s R58M123ABC shell getprop ro.build.version.sdk", "33\n")

	c := NewClient(f, t.TempDir())
	ctx := context.Background()

	probes := []struct {
		name string
		fn   func(context.Context, device.Identity) (string, error)
		want string
	}{
		{"cpu", c.CPUInfo, "Qualcomm SM8250"},
		{"mem", c.MemSize, "5.6 GB"},
		{"name", c.DeviceName, "samsung SM-G981B"},
		{"os", c.OSVersion, "13"},
		{"resolution", c.Resolution, "1440x3200"},
		{"abi", c.ABI, "arm64-v8a"},
		{"sdk", c.SDKLevel, "33"},
	}
	for _, p := range probes {
		t.Run(p.name, func(t *testing.T) {
			got, err := p.fn(ctx, serial)
			if err != nil {
				t.Fatalf("%s: %v", p.name, err)
			}
			if got != p.want {
				t.Errorf("%s = %q, want %q", p.name, got, p.want)
			}
		})
	}
}

func TestClientProbeFailure(t *testing.T) {
	f := newFakeTransport()
	f.fail("-s R58M123ABC shell wm size", ErrCommandFailed)
	f.on("-s R58M123ABC shell getprop ro.build.version.release", "\n")

	c := NewClient(f, t.TempDir())

	if _, err := c.Resolution(context.Background(), serial); !errors.Is(err, ErrCommandFailed) {
		t.Errorf("Resolution err = %v, want ErrCommandFailed", err)
	}
	if _, err := c.OSVersion(context.Background(), serial); !errors.Is(err, ErrUnexpectedOutput) {
		t.Errorf("OSVersion err = %v, want ErrUnexpectedOutput", err)
	}
}

func TestClientInstall(t *testing.T) {
	tests := []struct {
		name    string
		apk     string
		pm      string
		pushErr error
		wantErr bool
	}{
		{name: "success", apk: "/res/app.apk", pm: "Success\n"},
		{name: "package manager failure", apk: "/res/bad.apk", pm: "Failure [INSTALL_FAILED_OLDER_SDK]\n", wantErr: true},
		{name: "package manager error", apk: "/res/bad.apk", pm: "Error: java.lang.SecurityException\n", wantErr: true},
		{name: "push failure", apk: "/res/app.apk", pushErr: ErrCommandFailed, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFakeTransport()
			remote := "/data/local/tmp/" + filepath.Base(tt.apk)
			if tt.pushErr != nil {
				f.fail("-s R58M123ABC push "+tt.apk+" "+remote, tt.pushErr)
			} else {
				f.on("-s R58M123ABC push "+tt.apk+" "+remote, "")
			}
			f.on("-s R58M123ABC shell pm install -r -t "+remote, tt.pm)
			f.on("-s R58M123ABC shell rm -f "+remote, "")

			err := NewClient(f, t.TempDir()).Install(context.Background(), serial, tt.apk)
			if tt.wantErr {
				if !errors.Is(err, ErrCommandFailed) {
					t.Fatalf("Install err = %v, want ErrCommandFailed", err)
				}
			} else if err != nil {
				t.Fatalf("Install: %v", err)
			}

			pushed := tt.pushErr == nil
			if got := f.called("-s R58M123ABC shell pm install -r -t " + remote); got != pushed {
				t.Errorf("pm install called = %v, want %v", got, pushed)
			}
			if got := f.called("-s R58M123ABC shell rm -f " + remote); got != pushed {
				t.Errorf("pushed apk removed = %v, want %v", got, pushed)
			}
		})
	}
}

func TestClientScreenshot(t *testing.T) {
	dir := t.TempDir()
	f := newFakeTransport()
	var remote string
	f.hook = func(args []string) error {
		switch {
		case len(args) >= 4 && args[3] == "screencap":
			remote = args[len(args)-1]
			f.on(strings.Join(args, " "), "")
			f.on("-s R58M123ABC shell rm -f "+remote, "")
		case len(args) == 5 && args[2] == "pull":
			f.on(strings.Join(args, " "), "1 file pulled")
			return os.WriteFile(args[4], []byte("png"), 0o600)
		}
		return nil
	}

	c := NewClient(f, dir)
	path, err := c.Screenshot(context.Background(), serial)
	if err != nil {
		t.Fatalf("Screenshot: %v", err)
	}
	if filepath.Dir(path) != dir {
		t.Errorf("path %q not in %q", path, dir)
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("screenshot file: %v", err)
	}
	if !strings.HasPrefix(remote, remoteTmpDir+"/R58M123ABC-") {
		t.Errorf("remote path = %q", remote)
	}
	if !f.called("-s R58M123ABC shell rm -f " + remote) {
		t.Error("remote screenshot not removed")
	}
}

func TestClientScreenshotPullFailure(t *testing.T) {
	f := newFakeTransport()
	f.hook = func(args []string) error {
		if len(args) >= 4 && args[3] == "screencap" {
			f.on(strings.Join(args, " "), "")
			f.on("-s R58M123ABC shell rm -f "+args[len(args)-1], "")
		}
		return nil
	}

	c := NewClient(f, t.TempDir())
	if _, err := c.Screenshot(context.Background(), serial); !errors.Is(err, ErrCommandFailed) {
		t.Fatalf("err = %v, want ErrCommandFailed", err)
	}
}

func TestWaitUntilOnline(t *testing.T) {
	t.Run("already online", func(t *testing.T) {
		f := newFakeTransport()
		f.on("-s R58M123ABC get-state", "device\n")
		c := NewClient(f, "")

		ok, err := c.WaitUntilOnline(context.Background(), serial, time.Second)
		if err != nil || !ok {
			t.Fatalf("WaitUntilOnline = %v, %v; want true, nil", ok, err)
		}
	})

	t.Run("comes online", func(t *testing.T) {
		f := newFakeTransport()
		f.on("-s R58M123ABC get-state", "offline\n")
		calls := 0
		f.hook = func(args []string) error {
			calls++
			if calls == 3 {
				f.mu.Lock()
				f.outputs["-s R58M123ABC get-state"] = "device\n"
				f.mu.Unlock()
			}
			return nil
		}
		c := NewClient(f, "")
		c.pollInterval = 5 * time.Millisecond

		ok, err := c.WaitUntilOnline(context.Background(), serial, 5*time.Second)
		if err != nil || !ok {
			t.Fatalf("WaitUntilOnline = %v, %v; want true, nil", ok, err)
		}
	})

	t.Run("timeout", func(t *testing.T) {
		f := newFakeTransport()
		f.on("-s R58M123ABC get-state", "unauthorized\n")
		c := NewClient(f, "")
		c.pollInterval = 5 * time.Millisecond

		ok, err := c.WaitUntilOnline(context.Background(), serial, 30*time.Millisecond)
		if err != nil || ok {
			t.Fatalf("WaitUntilOnline = %v, %v; want false, nil", ok, err)
		}
	})

	t.Run("cancelled", func(t *testing.T) {
		f := newFakeTransport()
		f.fail("-s R58M123ABC get-state", ErrCommandFailed)
		c := NewClient(f, "")
		c.pollInterval = 5 * time.Millisecond

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		ok, err := c.WaitUntilOnline(ctx, serial, time.Minute)
		if ok || !errors.Is(err, context.Canceled) {
			t.Fatalf("WaitUntilOnline = %v, %v; want false, Canceled", ok, err)
		}
	})
}

func TestClientShellEmpty(t *testing.T) {
	c := NewClient(newFakeTransport(), "")
	if _, err := c.Shell(context.Background(), serial); !errors.Is(err, ErrCommandFailed) {
		t.Errorf("Shell() err = %v, want ErrCommandFailed", err)
	}
}

func TestConnSerial(t *testing.T) {
	c := NewClient(newFakeTransport(), "")
	conn := c.Conn(serial)
	if conn.Serial() != serial {
		t.Errorf("Serial = %q, want %q", conn.Serial(), serial)
	}
}

func TestSanitizeSerial(t *testing.T) {
	if got := sanitizeSerial("192.168.1.5:5555"); got != "192.168.1.5_5555" {
		t.Errorf("sanitizeSerial = %q", got)
	}
}
