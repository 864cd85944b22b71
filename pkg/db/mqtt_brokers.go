package db

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var ErrBrokerNotFound = errors.New("mqtt broker not found")

// MQTTBroker is one sensor-ingestion broker subscription.
type MQTTBroker struct {
	ID        int64
	ProfileID int64
	URL       string
	ClientID  string
	TopicRoot string
	Username  string
	Password  string
	Enabled   bool
	CreatedAt time.Time
}

// MQTTBrokerStore provides broker CRUD operations.
type MQTTBrokerStore interface {
	List(ctx context.Context, profileID int64) ([]*MQTTBroker, error)
	ListEnabled(ctx context.Context, profileID int64) ([]*MQTTBroker, error)
	Create(ctx context.Context, b *MQTTBroker) error
	SetEnabled(ctx context.Context, id int64, enabled bool) error
	Delete(ctx context.Context, id int64) error
}

// MQTTBrokers returns an MQTTBrokerStore for this database.
func (db *DB) MQTTBrokers() MQTTBrokerStore {
	return &mqttBrokerStore{db: db}
}

type mqttBrokerStore struct {
	db *DB
}

const brokerColumns = `id, profile_id, url, client_id, topic_root, username, password, enabled, created_at`

func (s *mqttBrokerStore) List(ctx context.Context, profileID int64) ([]*MQTTBroker, error) {
	return s.query(ctx, `
		SELECT `+brokerColumns+` FROM mqtt_brokers WHERE profile_id = ? ORDER BY id
	`, profileID)
}

func (s *mqttBrokerStore) ListEnabled(ctx context.Context, profileID int64) ([]*MQTTBroker, error) {
	return s.query(ctx, `
		SELECT `+brokerColumns+` FROM mqtt_brokers WHERE profile_id = ? AND enabled = 1 ORDER BY id
	`, profileID)
}

func (s *mqttBrokerStore) query(ctx context.Context, stmt string, args ...any) ([]*MQTTBroker, error) {
	rows, err := s.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var brokers []*MQTTBroker
	for rows.Next() {
		b := &MQTTBroker{}
		var createdAt string
		if err := rows.Scan(&b.ID, &b.ProfileID, &b.URL, &b.ClientID, &b.TopicRoot,
			&b.Username, &b.Password, &b.Enabled, &createdAt); err != nil {
			return nil, err
		}
		b.CreatedAt, _ = time.Parse(time.DateTime, createdAt)
		brokers = append(brokers, b)
	}
	return brokers, rows.Err()
}

func (s *mqttBrokerStore) Create(ctx context.Context, b *MQTTBroker) error {
	result, err := s.db.ExecContext(ctx, `
		INSERT INTO mqtt_brokers (profile_id, url, client_id, topic_root, username, password, enabled)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, b.ProfileID, b.URL, b.ClientID, b.TopicRoot, b.Username, b.Password, b.Enabled)
	if err != nil {
		return fmt.Errorf("failed to create mqtt broker: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	b.ID = id
	return nil
}

func (s *mqttBrokerStore) SetEnabled(ctx context.Context, id int64, enabled bool) error {
	result, err := s.db.ExecContext(ctx, `UPDATE mqtt_brokers SET enabled = ? WHERE id = ?`, enabled, id)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrBrokerNotFound
	}
	return nil
}

func (s *mqttBrokerStore) Delete(ctx context.Context, id int64) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM mqtt_brokers WHERE id = ?`, id)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrBrokerNotFound
	}
	return nil
}
