package device

import (
	"errors"
	"testing"
	"time"
)

func TestParseResolution(t *testing.T) {
	tests := []struct {
		in      string
		want    Resolution
		wantErr bool
	}{
		{"1080x1920", Resolution{Width: 1080, Height: 1920}, false},
		{" 720x1280\n", Resolution{Width: 720, Height: 1280}, false},
		{"1080*1920", Resolution{}, true},
		{"x1920", Resolution{}, true},
		{"1080x", Resolution{}, true},
		{"0x1920", Resolution{}, true},
		{"", Resolution{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseResolution(tt.in)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidResolution) {
					t.Fatalf("ParseResolution(%q) error = %v, want ErrInvalidResolution", tt.in, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseResolution(%q) error = %v", tt.in, err)
			}
			if got != tt.want {
				t.Errorf("ParseResolution(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestResolutionString(t *testing.T) {
	if got := (Resolution{Width: 1080, Height: 1920}).String(); got != "1080x1920" {
		t.Errorf("String() = %q, want 1080x1920", got)
	}
}

func TestStatusSettled(t *testing.T) {
	tests := []struct {
		status Status
		want   bool
	}{
		{StatusIdle, true},
		{StatusOffline, true},
		{StatusProvisioningUnseen, false},
		{Status(""), false},
	}
	for _, tt := range tests {
		if got := tt.status.Settled(); got != tt.want {
			t.Errorf("%q.Settled() = %v, want %v", tt.status, got, tt.want)
		}
	}
}

func TestRecordClone(t *testing.T) {
	online := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)
	r := Record{ID: "X1", LastOnlineTime: &online}

	c := r.Clone()
	*c.LastOnlineTime = online.Add(time.Hour)

	if !r.LastOnlineTime.Equal(online) {
		t.Error("Clone() shares LastOnlineTime with the original")
	}
}
