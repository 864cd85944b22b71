package env

import (
	"testing"
	"time"
)

func newTestStore(t *testing.T) (*Store, *time.Time) {
	t.Helper()
	s := NewStore(t.TempDir())
	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }
	return s, &now
}

func TestUpdateSensor_CreatesScope(t *testing.T) {
	s, now := newTestStore(t)

	scope := s.UpdateSensor("tent-1", "rh", Reading{Value: 63.5, Unit: "%", Source: "sensor-a"})

	sensor, ok := scope.Sensors["rh"]
	if !ok {
		t.Fatal("sensor not recorded")
	}
	if !sensor.HasValue || sensor.Value != 63.5 {
		t.Errorf("value = %v hasValue = %v", sensor.Value, sensor.HasValue)
	}
	if sensor.Unit != "%" {
		t.Errorf("unit = %q", sensor.Unit)
	}
	if !scope.UpdatedAt.Equal(*now) {
		t.Errorf("updatedAt = %v", scope.UpdatedAt)
	}

	ids := s.ScopeIDs()
	if len(ids) != 1 || ids[0] != "tent-1" {
		t.Errorf("scope ids = %v", ids)
	}
}

func TestUpdateSensor_UpdatedAtRefreshedOnEveryWrite(t *testing.T) {
	s, now := newTestStore(t)

	s.UpdateSensor("tent-1", "rh", Reading{Value: 60, Source: "a"})
	first := s.GetScope("tent-1").UpdatedAt

	*now = now.Add(30 * time.Second)
	s.UpdateSensor("tent-1", "rh", Reading{Value: 61, Source: "a"})
	second := s.GetScope("tent-1").UpdatedAt

	if !second.After(first) {
		t.Errorf("updatedAt not refreshed: %v -> %v", first, second)
	}
}

func TestUpdateSensor_WeightedMedianAcrossSources(t *testing.T) {
	s, _ := newTestStore(t)

	s.UpdateSensor("tent-1", "temp", Reading{Value: 20, Source: "a"})
	s.UpdateSensor("tent-1", "temp", Reading{Value: 30, Source: "b"})
	scope := s.UpdateSensor("tent-1", "temp", Reading{Value: 26, Source: "c"})

	sensor := scope.Sensors["temp"]
	if sensor.TotalSources != 3 || sensor.LiveSources != 3 {
		t.Errorf("sources live=%d total=%d", sensor.LiveSources, sensor.TotalSources)
	}
	// Median of 20, 26, 30 with equal weights.
	if sensor.Value != 26 {
		t.Errorf("aggregated value = %v", sensor.Value)
	}
}

func TestUpdateSensor_WeightBiasesMedian(t *testing.T) {
	s, _ := newTestStore(t)

	s.UpdateSensor("tent-1", "temp", Reading{Value: 20, Source: "a", Weight: 5})
	scope := s.UpdateSensor("tent-1", "temp", Reading{Value: 30, Source: "b"})

	if got := scope.Sensors["temp"].Value; got != 20 {
		t.Errorf("weighted median = %v, want 20", got)
	}
}

func TestUpdateSensor_StaleSourcesFallBack(t *testing.T) {
	s, now := newTestStore(t)

	old := now.Add(-30 * time.Minute)
	s.UpdateSensor("tent-1", "temp", Reading{Value: 22, Source: "a", ObservedAt: old})
	scope := s.GetScope("tent-1")

	sensor := scope.Sensors["temp"]
	if sensor.LiveSources != 0 {
		t.Errorf("liveSources = %d", sensor.LiveSources)
	}
	if sensor.Fallback != "stale-sources" {
		t.Errorf("fallback = %q", sensor.Fallback)
	}
	if !sensor.HasValue || sensor.Value != 22 {
		t.Errorf("expected stale fallback value 22, got %v", sensor.Value)
	}
}

func TestUpdateSensor_RetentionPrunesOldSources(t *testing.T) {
	s, now := newTestStore(t)

	ancient := now.Add(-7 * time.Hour)
	s.UpdateSensor("tent-1", "temp", Reading{Value: 15, Source: "old", ObservedAt: ancient})
	scope := s.UpdateSensor("tent-1", "temp", Reading{Value: 24, Source: "new"})

	sensor := scope.Sensors["temp"]
	if sensor.TotalSources != 1 {
		t.Errorf("expected the ancient source pruned, total = %d", sensor.TotalSources)
	}
	if sensor.Value != 24 {
		t.Errorf("value = %v", sensor.Value)
	}
}

func TestUpdateSensor_HistoryBounded(t *testing.T) {
	s, _ := newTestStore(t)

	for i := 0; i < maxHistory+10; i++ {
		s.UpdateSensor("tent-1", "temp", Reading{Value: float64(i), Source: "a"})
	}

	sensor := s.GetScope("tent-1").Sensors["temp"]
	if len(sensor.History) != maxHistory {
		t.Errorf("history length = %d, want %d", len(sensor.History), maxHistory)
	}
	// Newest first.
	if sensor.History[0] != float64(maxHistory+9) {
		t.Errorf("history[0] = %v", sensor.History[0])
	}
}

func TestGetScope_UnknownScopeIsEmpty(t *testing.T) {
	s, _ := newTestStore(t)
	scope := s.GetScope("nope")
	if len(scope.Sensors) != 0 || !scope.UpdatedAt.IsZero() {
		t.Errorf("expected empty scope, got %+v", scope)
	}
}

func TestGetScope_ReturnsCopy(t *testing.T) {
	s, _ := newTestStore(t)
	s.UpdateSensor("tent-1", "rh", Reading{Value: 50, Source: "a"})

	scope := s.GetScope("tent-1")
	mutated := scope.Sensors["rh"]
	mutated.Value = 999
	scope.Sensors["rh"] = mutated

	if got := s.GetScope("tent-1").Sensors["rh"].Value; got != 50 {
		t.Errorf("store state mutated through copy: %v", got)
	}
}

func TestSetTargets_ShallowMerge(t *testing.T) {
	s, _ := newTestStore(t)

	s.SetTargets("tent-1", map[string]float64{"temp": 24, "rh": 60})
	merged := s.SetTargets("tent-1", map[string]float64{"rh": 55})

	if merged["temp"] != 24 || merged["rh"] != 55 {
		t.Errorf("merged = %v", merged)
	}
	if got := s.GetTargets("tent-1"); got["rh"] != 55 {
		t.Errorf("persisted targets = %v", got)
	}
}

func TestStore_ReloadsFromDisk(t *testing.T) {
	dir := t.TempDir()
	s := NewStore(dir)
	s.UpdateSensor("tent-1", "rh", Reading{Value: 70, Source: "a"})
	s.SetTargets("tent-1", map[string]float64{"rh": 55})

	reloaded := NewStore(dir)
	if got := reloaded.GetScope("tent-1").Sensors["rh"].Value; got != 70 {
		t.Errorf("sensor value after reload = %v", got)
	}
	if got := reloaded.GetTargets("tent-1")["rh"]; got != 55 {
		t.Errorf("targets after reload = %v", got)
	}
}

func TestUpsertRoom_MergesAndUnionsActuators(t *testing.T) {
	s, _ := newTestStore(t)

	s.UpsertRoom("veg", Room{
		Name:      "Veg Tent",
		Targets:   map[string]float64{"temp": 25},
		Actuators: RoomActuators{Lights: []string{"plug:shelly:1"}},
	})
	room, ok := s.UpsertRoom("veg", Room{
		Targets:   map[string]float64{"rh": 65},
		Actuators: RoomActuators{Lights: []string{"plug:shelly:1", "plug:kasa:2"}},
	})
	if !ok {
		t.Fatal("upsert failed")
	}

	if room.Name != "Veg Tent" {
		t.Errorf("name = %q", room.Name)
	}
	if room.Targets["temp"] != 25 || room.Targets["rh"] != 65 {
		t.Errorf("targets = %v", room.Targets)
	}
	if len(room.Actuators.Lights) != 2 {
		t.Errorf("lights = %v", room.Actuators.Lights)
	}
	if room.Control.Mode != "advisory" || room.Control.Dwell != 180 {
		t.Errorf("control defaults not applied: %+v", room.Control)
	}
}

func TestRemoveRoom(t *testing.T) {
	s, _ := newTestStore(t)
	s.UpsertRoom("veg", Room{})

	if !s.RemoveRoom("veg") {
		t.Error("expected removal of existing room")
	}
	if s.RemoveRoom("veg") {
		t.Error("expected second removal to report false")
	}
}
