package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names written by the agent.
const (
	MeasurementLifecycle = "device_lifecycle"
	MeasurementFleet     = "agent_fleet"
)

// LifecyclePoint is one attach/detach outcome.
type LifecyclePoint struct {
	Serial      string
	Event       string
	Status      string
	Provisioned bool
	Degraded    int
	Elapsed     time.Duration
	Failed      bool
	Timestamp   time.Time
}

// WriteLifecycle records a lifecycle outcome.
// Serial and event are tags; timings and flags are fields.
func (c *Client) WriteLifecycle(p LifecyclePoint) {
	ts := p.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}

	tags := map[string]string{
		"serial": p.Serial,
		"event":  p.Event,
	}

	fields := map[string]interface{}{
		"duration_ms": p.Elapsed.Milliseconds(),
		"provisioned": p.Provisioned,
		"degraded":    p.Degraded,
		"failed":      p.Failed,
	}
	if p.Status != "" {
		fields["status"] = p.Status
	}

	c.WritePointWithTime(MeasurementLifecycle, tags, fields, ts)
}

// WriteFleetSize records how many devices this agent holds and how many are online.
func (c *Client) WriteFleetSize(agentID string, total, online int) {
	c.WritePoint(MeasurementFleet,
		map[string]string{"agent_id": agentID},
		map[string]interface{}{
			"total":  total,
			"online": online,
		},
	)
}

// WritePoint writes a custom point stamped with the current time.
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]interface{}) {
	c.WritePointWithTime(measurement, tags, fields, time.Now())
}

// WritePointWithTime writes a custom point with a specific timestamp.
func (c *Client) WritePointWithTime(measurement string, tags map[string]string, fields map[string]interface{}, timestamp time.Time) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(measurement, tags, fields, timestamp)
	c.writeAPI.WritePoint(point)
}
