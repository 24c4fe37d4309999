package lifecycle

import (
	"context"
	"encoding/json"

	"github.com/nerrad567/handset-agent/internal/device"
	"github.com/nerrad567/handset-agent/internal/infrastructure/influxdb"
	"github.com/nerrad567/handset-agent/internal/infrastructure/mqtt"
)

// Observer receives every processed lifecycle event.
// Observe runs on the identity's lane and should return quickly.
type Observer interface {
	Observe(ctx context.Context, ev Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(ctx context.Context, ev Event)

// Observe implements Observer.
func (f ObserverFunc) Observe(ctx context.Context, ev Event) {
	f(ctx, ev)
}

// Journal appends lifecycle entries to durable storage.
type Journal interface {
	Append(ctx context.Context, entry device.JournalEntry) error
}

// JournalObserver records every event in the local journal.
type JournalObserver struct {
	journal Journal
	logger  Logger
}

// NewJournalObserver creates an observer writing to journal.
func NewJournalObserver(journal Journal, logger Logger) *JournalObserver {
	if logger == nil {
		logger = noopLogger{}
	}
	return &JournalObserver{journal: journal, logger: logger}
}

// Observe implements Observer.
func (o *JournalObserver) Observe(ctx context.Context, ev Event) {
	entry := device.JournalEntry{
		ID:          ev.ID.String(),
		Serial:      ev.Identity,
		Type:        string(ev.Type),
		Status:      ev.Status,
		Provisioned: ev.Provisioned,
		Degraded:    ev.Degraded,
		Duration:    ev.Duration,
		Error:       ev.Error,
		CreatedAt:   ev.Timestamp,
	}
	if err := o.journal.Append(ctx, entry); err != nil {
		o.logger.Warn("journal append failed", "serial", ev.Identity, "event", ev.Type, "error", err)
	}
}

// Publisher sends MQTT messages.
type Publisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
}

// MQTTObserver publishes events and the retained device status document.
type MQTTObserver struct {
	publisher Publisher
	qos       byte
	logger    Logger
}

// NewMQTTObserver creates an observer publishing with the given QoS.
func NewMQTTObserver(publisher Publisher, qos byte, logger Logger) *MQTTObserver {
	if logger == nil {
		logger = noopLogger{}
	}
	return &MQTTObserver{publisher: publisher, qos: qos, logger: logger}
}

// Observe implements Observer.
func (o *MQTTObserver) Observe(_ context.Context, ev Event) {
	topics := mqtt.Topics{}
	serial := ev.Identity.String()

	if ev.Record != nil {
		status, err := json.Marshal(ev.Record)
		if err == nil {
			err = o.publisher.Publish(topics.DeviceStatus(serial), status, o.qos, true)
		}
		if err != nil {
			o.logger.Warn("device status publish failed", "serial", serial, "error", err)
		}
	}

	payload, err := json.Marshal(ev)
	if err == nil {
		err = o.publisher.Publish(topics.DeviceEvent(serial, string(ev.Type)), payload, o.qos, false)
	}
	if err != nil {
		o.logger.Warn("lifecycle event publish failed", "serial", serial, "event", ev.Type, "error", err)
	}
}

// LifecycleWriter records lifecycle points in a time-series store.
type LifecycleWriter interface {
	WriteLifecycle(p influxdb.LifecyclePoint)
}

// MetricsObserver writes one time-series point per event.
type MetricsObserver struct {
	writer LifecycleWriter
}

// NewMetricsObserver creates an observer writing to writer.
func NewMetricsObserver(writer LifecycleWriter) *MetricsObserver {
	return &MetricsObserver{writer: writer}
}

// Observe implements Observer.
func (o *MetricsObserver) Observe(_ context.Context, ev Event) {
	o.writer.WriteLifecycle(influxdb.LifecyclePoint{
		Serial:      ev.Identity.String(),
		Event:       string(ev.Type),
		Status:      string(ev.Status),
		Provisioned: ev.Provisioned,
		Degraded:    len(ev.Degraded),
		Elapsed:     ev.Duration,
		Failed:      ev.Type == EventAttachFailed || ev.Type == EventSyncFailed,
		Timestamp:   ev.Timestamp,
	})
}
