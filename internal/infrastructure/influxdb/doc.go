// Package influxdb provides InfluxDB connectivity for the handset agent.
//
// It wraps the official influxdb-client-go v2 library for connection
// management, batched non-blocking writes and health monitoring.
//
// The agent records one point per lifecycle outcome (measurement
// "device_lifecycle") and a periodic fleet gauge ("agent_fleet"), which is
// enough to chart attach latency, provisioning failures and fleet size per
// agent.
//
// # Usage
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	client.WriteLifecycle(influxdb.LifecyclePoint{
//	    Serial:  "R58M123ABC",
//	    Event:   "attached",
//	    Elapsed: 4 * time.Second,
//	})
//
// # Thread Safety
//
// All methods are safe for concurrent use from multiple goroutines.
package influxdb
