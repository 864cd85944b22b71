package main

import (
	"context"
	"flag"
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/preauto/preauto/pkg/audit"
	"github.com/preauto/preauto/pkg/automation"
	"github.com/preauto/preauto/pkg/db"
	"github.com/preauto/preauto/pkg/env"
	preautomcp "github.com/preauto/preauto/pkg/mcp"
	"github.com/preauto/preauto/pkg/plug"
	"github.com/preauto/preauto/pkg/plug/kasa"
	"github.com/preauto/preauto/pkg/plug/shelly"
	"github.com/preauto/preauto/pkg/plug/switchbot"
	"github.com/preauto/preauto/pkg/rules"
	"github.com/preauto/preauto/pkg/rules/schema"
)

func main() {
	// Logging must go to stderr — stdout is the MCP transport
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	// Parse flags
	dbPath := flag.String("db", "", "Path to database file (default: ~/.config/preauto/preauto.db)")
	runEngine := flag.Bool("engine", false, "Run the automation control loop alongside the MCP server")
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

	// By default the MCP server is a pure control surface against the
	// shared data dir; -engine makes this process run ticks itself.
	if *runEngine {
		engine.Start(ctx)
		defer engine.Stop()
	}

	validator := schema.NewValidator()

	// Create and start MCP server
	mcpServer := preautomcp.NewServer(engine, validator)

	log.Info().Msg("Starting MCP server on stdio")

	if err := mcpServer.ServeStdio(); err != nil {
		log.Fatal().Err(err).Msg("MCP server failed")
	}
}
