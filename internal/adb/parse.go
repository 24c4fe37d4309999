package adb

import (
	"fmt"
	"strconv"
	"strings"
)

// DeviceState is the adb connection state of a device.
type DeviceState string

const (
	StateDevice       DeviceState = "device"
	StateOffline      DeviceState = "offline"
	StateUnauthorized DeviceState = "unauthorized"
	StateUnknown      DeviceState = "unknown"

	// StateDisconnected marks a device that is no longer listed.
	StateDisconnected DeviceState = ""
)

// Online reports whether adb can run commands on the device.
func (s DeviceState) Online() bool {
	return s == StateDevice
}

// parseCPUInfo extracts the SoC description from /proc/cpuinfo.
// Newer kernels drop the Hardware line, so the first model name or
// Processor line is used as a fallback.
func parseCPUInfo(out string) (string, error) {
	var fallback string
	for line := range strings.Lines(out) {
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)
		if value == "" {
			continue
		}
		switch key {
		case "Hardware":
			return value, nil
		case "model name", "Processor":
			if fallback == "" {
				fallback = value
			}
		}
	}
	if fallback == "" {
		return "", fmt.Errorf("%w: no hardware line in cpuinfo", ErrUnexpectedOutput)
	}
	return fallback, nil
}

// parseMemTotal converts the MemTotal line of /proc/meminfo into a
// gigabyte figure such as "3.7 GB".
func parseMemTotal(out string) (string, error) {
	for line := range strings.Lines(out) {
		rest, ok := strings.CutPrefix(line, "MemTotal:")
		if !ok {
			continue
		}
		fields := strings.Fields(rest)
		if len(fields) == 0 {
			break
		}
		kb, err := strconv.ParseFloat(fields[0], 64)
		if err != nil {
			return "", fmt.Errorf("%w: MemTotal %q", ErrUnexpectedOutput, fields[0])
		}
		return fmt.Sprintf("%.1f GB", kb/1024/1024), nil
	}
	return "", fmt.Errorf("%w: no MemTotal in meminfo", ErrUnexpectedOutput)
}

// parseWMSize extracts "WxH" from `wm size` output. An override size wins
// over the physical size since that is what the screen renders at.
func parseWMSize(out string) (string, error) {
	var physical, override string
	for line := range strings.Lines(out) {
		line = strings.TrimSpace(line)
		if v, ok := strings.CutPrefix(line, "Physical size:"); ok {
			physical = strings.TrimSpace(v)
		} else if v, ok := strings.CutPrefix(line, "Override size:"); ok {
			override = strings.TrimSpace(v)
		}
	}
	switch {
	case override != "":
		return override, nil
	case physical != "":
		return physical, nil
	default:
		return "", fmt.Errorf("%w: wm size %q", ErrUnexpectedOutput, strings.TrimSpace(out))
	}
}
