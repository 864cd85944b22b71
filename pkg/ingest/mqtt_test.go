package ingest

import (
	"testing"
	"time"

	"github.com/preauto/preauto/pkg/env"
)

type recordedReading struct {
	scope   string
	sensor  string
	reading env.Reading
}

type fakeSink struct {
	readings []recordedReading
}

func (f *fakeSink) IngestSensor(scopeID, sensorType string, reading env.Reading) env.Scope {
	f.readings = append(f.readings, recordedReading{scopeID, sensorType, reading})
	return env.Scope{}
}

func TestHandleFeedsSink(t *testing.T) {
	sink := &fakeSink{}
	bridge := NewBridge(Config{TopicRoot: "farm/sensors"}, sink)

	bridge.handle("farm/sensors/grow-room/rh",
		[]byte(`{"value":71.5,"unit":"%","observed_at":"2025-06-01T12:00:00Z","source":"sht31-a","weight":2}`))

	if len(sink.readings) != 1 {
		t.Fatalf("readings = %d, want 1", len(sink.readings))
	}
	got := sink.readings[0]
	if got.scope != "grow-room" || got.sensor != "rh" {
		t.Fatalf("routed to %s/%s", got.scope, got.sensor)
	}
	if got.reading.Value != 71.5 || got.reading.Unit != "%" {
		t.Fatalf("reading = %+v", got.reading)
	}
	if got.reading.Source != "sht31-a" || got.reading.Weight != 2 {
		t.Fatalf("reading = %+v", got.reading)
	}
	want := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	if !got.reading.ObservedAt.Equal(want) {
		t.Fatalf("ObservedAt = %v, want %v", got.reading.ObservedAt, want)
	}
}

func TestHandleDropsMalformedPayload(t *testing.T) {
	sink := &fakeSink{}
	bridge := NewBridge(Config{}, sink)

	bridge.handle(DefaultTopicRoot+"/grow/rh", []byte(`not json`))
	bridge.handle(DefaultTopicRoot+"/grow/rh", []byte(`{"unit":"%"}`))

	if len(sink.readings) != 0 {
		t.Fatalf("readings = %d, want 0", len(sink.readings))
	}
}

func TestHandleIgnoresForeignTopics(t *testing.T) {
	sink := &fakeSink{}
	bridge := NewBridge(Config{TopicRoot: "farm/sensors"}, sink)

	bridge.handle("other/place/rh", []byte(`{"value":1}`))
	bridge.handle("farm/sensors/rh", []byte(`{"value":1}`))
	bridge.handle("farm/sensors/a/b/c", []byte(`{"value":1}`))

	if len(sink.readings) != 0 {
		t.Fatalf("readings = %d, want 0", len(sink.readings))
	}
}

func TestHandleToleratesBadTimestamp(t *testing.T) {
	sink := &fakeSink{}
	bridge := NewBridge(Config{}, sink)

	bridge.handle(DefaultTopicRoot+"/grow/temp", []byte(`{"value":24.5,"observed_at":"yesterday"}`))

	if len(sink.readings) != 1 {
		t.Fatalf("readings = %d, want 1", len(sink.readings))
	}
	if !sink.readings[0].reading.ObservedAt.IsZero() {
		t.Fatalf("ObservedAt = %v, want zero", sink.readings[0].reading.ObservedAt)
	}
}
