package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

var ErrEngineSettingsNotFound = errors.New("engine settings not found")

// EngineSettings holds the per-profile automation loop configuration.
type EngineSettings struct {
	ID              int64
	ProfileID       int64
	TickIntervalSec int
	FreshnessSec    int
	DataDir         string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// TickInterval returns the loop cadence as a duration.
func (s *EngineSettings) TickInterval() time.Duration {
	return time.Duration(s.TickIntervalSec) * time.Second
}

// Freshness returns the sensor staleness threshold. Zero disables the gate.
func (s *EngineSettings) Freshness() time.Duration {
	return time.Duration(s.FreshnessSec) * time.Second
}

// EngineSettingsStore provides engine settings CRUD operations.
type EngineSettingsStore interface {
	Get(ctx context.Context, profileID int64) (*EngineSettings, error)
	Create(ctx context.Context, s *EngineSettings) error
	Update(ctx context.Context, s *EngineSettings) error
}

// EngineSettings returns an EngineSettingsStore for this database.
func (db *DB) EngineSettings() EngineSettingsStore {
	return &engineSettingsStore{db: db}
}

type engineSettingsStore struct {
	db *DB
}

func (s *engineSettingsStore) Get(ctx context.Context, profileID int64) (*EngineSettings, error) {
	settings := &EngineSettings{}
	var createdAt, updatedAt string
	err := s.db.QueryRowContext(ctx, `
		SELECT id, profile_id, tick_interval_sec, freshness_sec, data_dir, created_at, updated_at
		FROM engine_settings WHERE profile_id = ?
	`, profileID).Scan(&settings.ID, &settings.ProfileID, &settings.TickIntervalSec,
		&settings.FreshnessSec, &settings.DataDir, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrEngineSettingsNotFound
	}
	if err != nil {
		return nil, err
	}
	settings.CreatedAt, _ = time.Parse(time.DateTime, createdAt)
	settings.UpdatedAt, _ = time.Parse(time.DateTime, updatedAt)
	return settings, nil
}

func (s *engineSettingsStore) Create(ctx context.Context, settings *EngineSettings) error {
	result, err := s.db.ExecContext(ctx, `
		INSERT INTO engine_settings (profile_id, tick_interval_sec, freshness_sec, data_dir)
		VALUES (?, ?, ?, ?)
	`, settings.ProfileID, settings.TickIntervalSec, settings.FreshnessSec, settings.DataDir)
	if err != nil {
		return fmt.Errorf("failed to create engine settings: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	settings.ID = id
	return nil
}

func (s *engineSettingsStore) Update(ctx context.Context, settings *EngineSettings) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE engine_settings
		SET tick_interval_sec = ?, freshness_sec = ?, data_dir = ?, updated_at = datetime('now')
		WHERE profile_id = ?
	`, settings.TickIntervalSec, settings.FreshnessSec, settings.DataDir, settings.ProfileID)
	return err
}
