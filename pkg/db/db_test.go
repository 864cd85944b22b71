package db

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	database, err := Open(filepath.Join(t.TempDir(), "preauto.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = database.Close() })

	ctx := context.Background()
	if err := database.Migrate(ctx); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	return database
}

func TestMigrateAndBootstrap(t *testing.T) {
	database := openTestDB(t)
	ctx := context.Background()

	version, err := database.SchemaVersion(ctx)
	if err != nil {
		t.Fatalf("SchemaVersion: %v", err)
	}
	if version != currentSchemaVersion {
		t.Fatalf("version = %d, want %d", version, currentSchemaVersion)
	}

	needs, err := database.NeedsBootstrap(ctx)
	if err != nil {
		t.Fatalf("NeedsBootstrap: %v", err)
	}
	if !needs {
		t.Fatal("fresh database should need bootstrap")
	}

	if err := database.Bootstrap(ctx); err != nil {
		t.Fatalf("Bootstrap: %v", err)
	}
	// Bootstrap twice must not duplicate defaults.
	if err := database.Bootstrap(ctx); err != nil {
		t.Fatalf("second Bootstrap: %v", err)
	}

	config, err := database.ActiveConfig(ctx)
	if err != nil {
		t.Fatalf("ActiveConfig: %v", err)
	}
	if config.Profile.Name != "default" {
		t.Fatalf("profile name = %q", config.Profile.Name)
	}
	if config.APIAddress() != "0.0.0.0:8080" {
		t.Fatalf("APIAddress = %q", config.APIAddress())
	}
	if config.Engine == nil {
		t.Fatal("engine settings missing after bootstrap")
	}
	if config.Engine.TickInterval() != 15*time.Second {
		t.Fatalf("TickInterval = %v", config.Engine.TickInterval())
	}
	if config.Engine.Freshness() != 60*time.Second {
		t.Fatalf("Freshness = %v", config.Engine.Freshness())
	}
	if config.DataDir() == "" {
		t.Fatal("DataDir is empty")
	}
	if len(config.Brokers) != 0 {
		t.Fatalf("brokers = %d, want 0", len(config.Brokers))
	}
}

func TestActiveConfigWithoutProfile(t *testing.T) {
	database := openTestDB(t)

	_, err := database.ActiveConfig(context.Background())
	if !errors.Is(err, ErrNoActiveProfile) {
		t.Fatalf("err = %v, want ErrNoActiveProfile", err)
	}
}

func TestEngineSettingsUpdate(t *testing.T) {
	database := openTestDB(t)
	ctx := context.Background()
	if err := database.Bootstrap(ctx); err != nil {
		t.Fatalf("Bootstrap: %v", err)
	}

	profile, err := database.Profiles().GetActive(ctx)
	if err != nil {
		t.Fatalf("GetActive: %v", err)
	}

	settings, err := database.EngineSettings().Get(ctx, profile.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	settings.TickIntervalSec = 30
	settings.FreshnessSec = 0
	if err := database.EngineSettings().Update(ctx, settings); err != nil {
		t.Fatalf("Update: %v", err)
	}

	got, err := database.EngineSettings().Get(ctx, profile.ID)
	if err != nil {
		t.Fatalf("Get after update: %v", err)
	}
	if got.TickIntervalSec != 30 || got.FreshnessSec != 0 {
		t.Fatalf("settings = %+v", got)
	}
}

func TestMQTTBrokers(t *testing.T) {
	database := openTestDB(t)
	ctx := context.Background()
	if err := database.Bootstrap(ctx); err != nil {
		t.Fatalf("Bootstrap: %v", err)
	}
	profile, err := database.Profiles().GetActive(ctx)
	if err != nil {
		t.Fatalf("GetActive: %v", err)
	}

	broker := &MQTTBroker{
		ProfileID: profile.ID,
		URL:       "tcp://localhost:1883",
		TopicRoot: "farm/sensors",
		Enabled:   true,
	}
	if err := database.MQTTBrokers().Create(ctx, broker); err != nil {
		t.Fatalf("Create: %v", err)
	}

	enabled, err := database.MQTTBrokers().ListEnabled(ctx, profile.ID)
	if err != nil {
		t.Fatalf("ListEnabled: %v", err)
	}
	if len(enabled) != 1 || enabled[0].URL != "tcp://localhost:1883" {
		t.Fatalf("enabled = %+v", enabled)
	}

	if err := database.MQTTBrokers().SetEnabled(ctx, broker.ID, false); err != nil {
		t.Fatalf("SetEnabled: %v", err)
	}
	enabled, err = database.MQTTBrokers().ListEnabled(ctx, profile.ID)
	if err != nil {
		t.Fatalf("ListEnabled: %v", err)
	}
	if len(enabled) != 0 {
		t.Fatalf("enabled = %+v, want none", enabled)
	}

	if err := database.MQTTBrokers().SetEnabled(ctx, 999, true); !errors.Is(err, ErrBrokerNotFound) {
		t.Fatalf("err = %v, want ErrBrokerNotFound", err)
	}
}

func TestProfileSetActive(t *testing.T) {
	database := openTestDB(t)
	ctx := context.Background()
	if err := database.Bootstrap(ctx); err != nil {
		t.Fatalf("Bootstrap: %v", err)
	}

	second := &Profile{Name: "greenhouse", Timezone: "UTC"}
	if err := database.Profiles().Create(ctx, second); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := database.Profiles().SetActive(ctx, second.ID); err != nil {
		t.Fatalf("SetActive: %v", err)
	}

	active, err := database.Profiles().GetActive(ctx)
	if err != nil {
		t.Fatalf("GetActive: %v", err)
	}
	if active.Name != "greenhouse" {
		t.Fatalf("active = %q", active.Name)
	}

	if err := database.Profiles().SetActive(ctx, 12345); !errors.Is(err, ErrProfileNotFound) {
		t.Fatalf("err = %v, want ErrProfileNotFound", err)
	}
}
