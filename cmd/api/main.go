package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/preauto/preauto/pkg/api"
	"github.com/preauto/preauto/pkg/audit"
	"github.com/preauto/preauto/pkg/automation"
	"github.com/preauto/preauto/pkg/db"
	"github.com/preauto/preauto/pkg/env"
	"github.com/preauto/preauto/pkg/ingest"
	"github.com/preauto/preauto/pkg/plug"
	"github.com/preauto/preauto/pkg/plug/kasa"
	"github.com/preauto/preauto/pkg/plug/shelly"
	"github.com/preauto/preauto/pkg/plug/switchbot"
	"github.com/preauto/preauto/pkg/rules"
	"github.com/preauto/preauto/pkg/rules/schema"

	_ "github.com/preauto/preauto/docs"
)

// @title           Preauto API
// @version         1.0
// @description     REST API for the pre-automation rule engine

// @host      localhost:8080
// @BasePath  /api/v1
// @schemes   http https

func main() {
	// Configure logging
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	// Parse flags
	dbPath := flag.String("db", "", "Path to database file (default: ~/.config/preauto/preauto.db)")
	addr := flag.String("addr", "", "Listen address override (default: from active profile)")
	flag.Parse()

	ctx := context.Background()

	// Open database
	database, err := db.Open(*dbPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open database")
	}
	defer func() {
		if err := database.Close(); err != nil {
			log.Error().Err(err).Msg("Failed to close database")
		}
	}()

	log.Info().Str("path", database.Path()).Msg("Database opened")

	// Run migrations
	if err := database.Migrate(ctx); err != nil {
		log.Fatal().Err(err).Msg("Failed to run database migrations")
	}

	// Bootstrap if needed (first run)
	needsBootstrap, err := database.NeedsBootstrap(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to check bootstrap status")
	}
	if needsBootstrap {
		log.Info().Msg("First run detected, bootstrapping database...")
		if err := database.Bootstrap(ctx); err != nil {
			log.Fatal().Err(err).Msg("Failed to bootstrap database")
		}
		log.Info().Msg("Database bootstrapped successfully")
	}

	// Load configuration
	cfg, err := database.ActiveConfig(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	dataDir := cfg.DataDir()
	log.Info().
		Str("profile", cfg.Profile.Name).
		Str("timezone", cfg.Timezone()).
		Str("api_address", cfg.APIAddress()).
		Str("data_dir", dataDir).
		Msg("Configuration loaded")

	// Assemble the automation engine
	envStore := env.NewStore(dataDir)
	ruleStore := rules.NewStore(dataDir)
	registry := plug.NewRegistry(dataDir)
	manager := plug.NewManager(registry,
		shelly.NewDriver(),
		kasa.NewDriver(),
		switchbot.NewDriver(),
	)
	auditLog := audit.NewLogger(audit.DefaultPath(dataDir))

	engine := automation.New(automation.Config{
		Interval:  cfg.Engine.TickInterval(),
		Freshness: cfg.Engine.Freshness(),
	}, envStore, ruleStore, registry, manager, auditLog)

	engine.Start(ctx)
	defer engine.Stop()

	// Bridge configured MQTT brokers into the sensor store. A broker that
	// is down at boot keeps retrying in the background.
	var bridges []*ingest.Bridge
	for _, broker := range cfg.Brokers {
		bridge := ingest.NewBridge(ingest.Config{
			BrokerURL: broker.URL,
			ClientID:  broker.ClientID,
			TopicRoot: broker.TopicRoot,
			Username:  broker.Username,
			Password:  broker.Password,
		}, engine)
		if err := bridge.Connect(); err != nil {
			log.Warn().Err(err).Str("broker", broker.URL).Msg("MQTT broker unavailable")
			continue
		}
		log.Info().Str("broker", broker.URL).Msg("MQTT bridge connected")
		bridges = append(bridges, bridge)
	}

	validator := schema.NewValidator()

	// Create and start API router
	router := api.NewRouter(engine, validator)

	// Handle shutdown gracefully
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		log.Info().Msg("Shutting down...")
		engine.Stop()
		for _, bridge := range bridges {
			bridge.Close()
		}
		if err := database.Close(); err != nil {
			log.Error().Err(err).Msg("Failed to close database")
		}
		os.Exit(0)
	}()

	// Start server
	listen := cfg.APIAddress()
	if *addr != "" {
		listen = *addr
	}
	log.Info().Str("address", listen).Msg("Starting API server")

	if err := router.Run(listen); err != nil {
		log.Fatal().Err(err).Msg("Server failed")
	}
}
