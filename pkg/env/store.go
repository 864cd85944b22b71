// Package env holds per-scope environmental sensor state and target
// setpoints for the automation engine. Every mutation is written through to
// a JSON document on disk.
package env

import (
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/preauto/preauto/pkg/storage"
)

const (
	// liveSourceMaxAge is how recent a source sample must be to count as live.
	liveSourceMaxAge = 10 * time.Minute
	// sourceRetention is how long stale source samples are kept before pruning.
	sourceRetention = 6 * time.Hour
	// maxHistory bounds the per-sensor aggregate value history.
	maxHistory = 50
)

// Reading is a single sensor sample submitted to the store.
// Source identifies the physical sensor; readings without a source id are
// kept under an ephemeral key and only survive until retention pruning.
type Reading struct {
	Value      float64        `json:"value"`
	Unit       string         `json:"unit,omitempty"`
	ObservedAt time.Time      `json:"observed_at,omitempty"`
	Source     string         `json:"source,omitempty"`
	Weight     float64        `json:"weight,omitempty"`
	Meta       map[string]any `json:"meta,omitempty"`
}

// SourceSample is the retained last sample from one physical sensor.
type SourceSample struct {
	Value      float64        `json:"value"`
	Weight     float64        `json:"weight,omitempty"`
	ObservedAt time.Time      `json:"observedAt"`
	Meta       map[string]any `json:"meta,omitempty"`
}

// Sensor is the aggregated view of one sensor type within a scope.
// Value is the weighted median across live sources; HasValue is false when
// no source currently contributes a usable sample.
type Sensor struct {
	Value        float64                 `json:"value"`
	HasValue     bool                    `json:"hasValue"`
	Unit         string                  `json:"unit,omitempty"`
	ObservedAt   time.Time               `json:"observedAt"`
	History      []float64               `json:"history,omitempty"`
	Sources      map[string]SourceSample `json:"sources,omitempty"`
	LiveSources  int                     `json:"liveSources"`
	TotalSources int                     `json:"totalSources"`
	Fallback     string                  `json:"fallback,omitempty"`
}

// Scope is the sensor state for one monitored area.
type Scope struct {
	Sensors   map[string]Sensor `json:"sensors"`
	UpdatedAt time.Time         `json:"updatedAt"`
}

// RoomControl configures how aggressively a room is driven.
type RoomControl struct {
	Enable bool    `json:"enable"`
	Mode   string  `json:"mode"`
	Step   float64 `json:"step"`
	Dwell  int     `json:"dwell"`
}

// RoomActuators lists the plug ids assigned to each actuator role.
type RoomActuators struct {
	Lights []string `json:"lights"`
	Fans   []string `json:"fans"`
	Dehu   []string `json:"dehu"`
}

// Room is the static description of a monitored room: targets, control
// policy and actuator assignments. Sensor readings live in Scope, not here.
type Room struct {
	RoomID    string             `json:"roomId"`
	Name      string             `json:"name"`
	Targets   map[string]float64 `json:"targets,omitempty"`
	Control   RoomControl        `json:"control"`
	Sensors   map[string]string  `json:"sensors,omitempty"`
	Actuators RoomActuators      `json:"actuators"`
	Meta      map[string]any     `json:"meta,omitempty"`
	UpdatedAt time.Time          `json:"updatedAt"`
}

type state struct {
	Scopes    map[string]Scope              `json:"scopes"`
	Targets   map[string]map[string]float64 `json:"targets"`
	Rooms     map[string]Room               `json:"rooms"`
	UpdatedAt time.Time                     `json:"updatedAt"`
}

// Store holds environment state for all scopes.
// Safe for concurrent use.
type Store struct {
	mu    sync.Mutex
	path  string
	state state
	now   func() time.Time
}

// NewStore loads (or initializes) the environment store backed by
// env-state.json under dataDir.
func NewStore(dataDir string) *Store {
	s := &Store{
		path: filepath.Join(dataDir, "env-state.json"),
		state: state{
			Scopes:  map[string]Scope{},
			Targets: map[string]map[string]float64{},
			Rooms:   map[string]Room{},
		},
		now: time.Now,
	}
	storage.ReadJSON(s.path, &s.state)
	if s.state.Scopes == nil {
		s.state.Scopes = map[string]Scope{}
	}
	if s.state.Targets == nil {
		s.state.Targets = map[string]map[string]float64{}
	}
	if s.state.Rooms == nil {
		s.state.Rooms = map[string]Room{}
	}
	return s
}

// ScopeIDs returns all known scope ids, sorted for stable iteration.
func (s *Store) ScopeIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.state.Scopes))
	for id := range s.state.Scopes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// GetScope returns a deep copy of the scope's current state.
// Unknown scopes yield an empty Scope, never an error.
func (s *Store) GetScope(scopeID string) Scope {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneScope(s.state.Scopes[scopeID])
}

// UpdateSensor ingests one reading for a sensor type within a scope and
// returns the updated scope snapshot. The reading is folded into the
// per-source samples, stale sources are pruned, and the aggregate value is
// recomputed as a weighted median across live sources.
func (s *Store) UpdateSensor(scopeID, sensorType string, r Reading) Scope {
	if scopeID == "" || sensorType == "" {
		return Scope{}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	scope := s.state.Scopes[scopeID]
	if scope.Sensors == nil {
		scope.Sensors = map[string]Sensor{}
	}
	sensor := scope.Sensors[sensorType]

	observedAt := r.ObservedAt
	if observedAt.IsZero() {
		observedAt = now
	}

	sources := map[string]SourceSample{}
	for id, sample := range sensor.Sources {
		sources[id] = sample
	}

	sourceID := r.Source
	if sourceID == "" {
		sourceID = "sensor:" + sensorType + ":" + now.Format("20060102T150405.000")
	}
	sources[sourceID] = SourceSample{
		Value:      r.Value,
		Weight:     r.Weight,
		ObservedAt: observedAt,
		Meta:       r.Meta,
	}

	// Retention pruning.
	for id, sample := range sources {
		if now.Sub(sample.ObservedAt) > sourceRetention {
			delete(sources, id)
		}
	}

	agg := aggregate(sources, now)

	unit := r.Unit
	if unit == "" {
		unit = sensor.Unit
	}

	history := sensor.History
	if agg.hasValue {
		history = append([]float64{agg.value}, history...)
		if len(history) > maxHistory {
			history = history[:maxHistory]
		}
	}

	scope.Sensors[sensorType] = Sensor{
		Value:        agg.value,
		HasValue:     agg.hasValue,
		Unit:         unit,
		ObservedAt:   agg.observedAt,
		History:      history,
		Sources:      sources,
		LiveSources:  agg.live,
		TotalSources: len(sources),
		Fallback:     agg.fallback,
	}
	scope.UpdatedAt = now

	s.state.Scopes[scopeID] = scope
	s.state.UpdatedAt = now
	s.persist()

	return cloneScope(scope)
}

// SetTargets shallow-merges targets into the scope's setpoints and returns
// the merged snapshot.
func (s *Store) SetTargets(scopeID string, targets map[string]float64) map[string]float64 {
	if scopeID == "" {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	merged := map[string]float64{}
	for k, v := range s.state.Targets[scopeID] {
		merged[k] = v
	}
	for k, v := range targets {
		merged[k] = v
	}
	s.state.Targets[scopeID] = merged
	s.state.UpdatedAt = s.now()
	s.persist()

	out := make(map[string]float64, len(merged))
	for k, v := range merged {
		out[k] = v
	}
	return out
}

// GetTargets returns a copy of the scope's target setpoints.
func (s *Store) GetTargets(scopeID string) map[string]float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := map[string]float64{}
	for k, v := range s.state.Targets[scopeID] {
		out[k] = v
	}
	return out
}

// Snapshot returns a deep copy of all scopes keyed by scope id.
func (s *Store) Snapshot() map[string]Scope {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]Scope, len(s.state.Scopes))
	for id, scope := range s.state.Scopes {
		out[id] = cloneScope(scope)
	}
	return out
}

// ListRooms returns copies of all room records.
func (s *Store) ListRooms() []Room {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.state.Rooms))
	for id := range s.state.Rooms {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	rooms := make([]Room, 0, len(ids))
	for _, id := range ids {
		rooms = append(rooms, cloneRoom(s.state.Rooms[id]))
	}
	return rooms
}

// GetRoom returns a copy of one room record, or false if unknown.
func (s *Store) GetRoom(roomID string) (Room, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	room, ok := s.state.Rooms[roomID]
	if !ok {
		return Room{}, false
	}
	return cloneRoom(room), true
}

// UpsertRoom merges payload into an existing room record (or creates one).
// Targets, sensors and meta merge key-wise; actuator lists union with the
// existing assignments so repeated upserts stay idempotent.
func (s *Store) UpsertRoom(roomID string, payload Room) (Room, bool) {
	if roomID == "" {
		return Room{}, false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing := s.state.Rooms[roomID]

	next := cloneRoom(existing)
	next.RoomID = roomID
	if payload.Name != "" {
		next.Name = payload.Name
	}
	if next.Name == "" {
		next.Name = roomID
	}
	if next.Targets == nil {
		next.Targets = map[string]float64{}
	}
	for k, v := range payload.Targets {
		next.Targets[k] = v
	}
	if next.Sensors == nil {
		next.Sensors = map[string]string{}
	}
	for k, v := range payload.Sensors {
		next.Sensors[k] = v
	}
	if next.Meta == nil {
		next.Meta = map[string]any{}
	}
	for k, v := range payload.Meta {
		next.Meta[k] = v
	}

	if existingIsZero(existing) {
		next.Control = RoomControl{Mode: "advisory", Step: 0.05, Dwell: 180}
	}
	if payload.Control.Mode != "" {
		next.Control.Mode = payload.Control.Mode
	}
	if payload.Control.Step != 0 {
		next.Control.Step = payload.Control.Step
	}
	if payload.Control.Dwell != 0 {
		next.Control.Dwell = payload.Control.Dwell
	}
	if payload.Control.Enable {
		next.Control.Enable = true
	}

	next.Actuators.Lights = unionStrings(next.Actuators.Lights, payload.Actuators.Lights)
	next.Actuators.Fans = unionStrings(next.Actuators.Fans, payload.Actuators.Fans)
	next.Actuators.Dehu = unionStrings(next.Actuators.Dehu, payload.Actuators.Dehu)

	next.UpdatedAt = s.now()
	s.state.Rooms[roomID] = next
	s.state.UpdatedAt = next.UpdatedAt
	s.persist()

	return cloneRoom(next), true
}

// RemoveRoom deletes a room record. Returns false if the room was unknown.
func (s *Store) RemoveRoom(roomID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.state.Rooms[roomID]; !ok {
		return false
	}
	delete(s.state.Rooms, roomID)
	s.state.UpdatedAt = s.now()
	s.persist()
	return true
}

func (s *Store) persist() {
	if err := storage.WriteJSON(s.path, &s.state); err != nil {
		log.Warn().Err(err).Str("path", s.path).Msg("Failed to persist environment state")
	}
}

type aggregateResult struct {
	value      float64
	hasValue   bool
	observedAt time.Time
	live       int
	fallback   string
}

// aggregate computes the weighted median over live sources, falling back to
// all retained sources when nothing is live.
func aggregate(sources map[string]SourceSample, now time.Time) aggregateResult {
	if len(sources) == 0 {
		return aggregateResult{}
	}

	var live, all []SourceSample
	for _, sample := range sources {
		all = append(all, sample)
		if now.Sub(sample.ObservedAt) <= liveSourceMaxAge {
			live = append(live, sample)
		}
	}

	samples := live
	fallback := ""
	if len(samples) == 0 {
		samples = all
		fallback = "stale-sources"
	}

	value := weightedMedian(samples)
	latest := time.Time{}
	for _, sample := range samples {
		if sample.ObservedAt.After(latest) {
			latest = sample.ObservedAt
		}
	}

	return aggregateResult{
		value:      value,
		hasValue:   true,
		observedAt: latest,
		live:       len(live),
		fallback:   fallback,
	}
}

// weightedMedian returns the value at which cumulative weight crosses half of
// the total. Samples with non-positive weight count as weight 1.
func weightedMedian(samples []SourceSample) float64 {
	normalized := make([]SourceSample, len(samples))
	copy(normalized, samples)
	for i := range normalized {
		if normalized[i].Weight <= 0 {
			normalized[i].Weight = 1
		}
	}
	sort.Slice(normalized, func(i, j int) bool { return normalized[i].Value < normalized[j].Value })

	total := 0.0
	for _, sample := range normalized {
		total += sample.Weight
	}
	half := total / 2

	running := 0.0
	for _, sample := range normalized {
		running += sample.Weight
		if running >= half {
			return sample.Value
		}
	}
	return normalized[len(normalized)-1].Value
}

func cloneScope(scope Scope) Scope {
	out := Scope{UpdatedAt: scope.UpdatedAt}
	if scope.Sensors != nil {
		out.Sensors = make(map[string]Sensor, len(scope.Sensors))
		for name, sensor := range scope.Sensors {
			c := sensor
			c.History = append([]float64(nil), sensor.History...)
			if sensor.Sources != nil {
				c.Sources = make(map[string]SourceSample, len(sensor.Sources))
				for id, sample := range sensor.Sources {
					cs := sample
					cs.Meta = cloneMeta(sample.Meta)
					c.Sources[id] = cs
				}
			}
			out.Sensors[name] = c
		}
	}
	return out
}

func cloneRoom(room Room) Room {
	out := room
	if room.Targets != nil {
		out.Targets = make(map[string]float64, len(room.Targets))
		for k, v := range room.Targets {
			out.Targets[k] = v
		}
	}
	if room.Sensors != nil {
		out.Sensors = make(map[string]string, len(room.Sensors))
		for k, v := range room.Sensors {
			out.Sensors[k] = v
		}
	}
	out.Meta = cloneMeta(room.Meta)
	out.Actuators.Lights = append([]string(nil), room.Actuators.Lights...)
	out.Actuators.Fans = append([]string(nil), room.Actuators.Fans...)
	out.Actuators.Dehu = append([]string(nil), room.Actuators.Dehu...)
	return out
}

func cloneMeta(meta map[string]any) map[string]any {
	if meta == nil {
		return nil
	}
	out := make(map[string]any, len(meta))
	for k, v := range meta {
		out[k] = v
	}
	return out
}

func existingIsZero(room Room) bool {
	return room.RoomID == "" && room.UpdatedAt.IsZero()
}

func unionStrings(a, b []string) []string {
	seen := map[string]bool{}
	var out []string
	for _, lst := range [][]string{a, b} {
		for _, v := range lst {
			if v == "" || seen[v] {
				continue
			}
			seen[v] = true
			out = append(out, v)
		}
	}
	return out
}
