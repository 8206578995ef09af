package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/elys-network/yieldvault/internal/config"
	"github.com/elys-network/yieldvault/internal/events"
	"github.com/elys-network/yieldvault/internal/keeper"
	"github.com/elys-network/yieldvault/internal/logger"
	"github.com/elys-network/yieldvault/internal/state"
	"github.com/elys-network/yieldvault/internal/types"
	"github.com/elys-network/yieldvault/internal/web"
)

// main runs the vault in dry-run mode: simulated yield sources, a scheduled keeper and the read-only API.
func main() {
	// --- 1. Initialization Phase ---
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	if cfg.LogFile == "" {
		logger.Initialize(cfg.LogLevel)
	} else {
		file, err := logger.FileWriter(cfg.LogFile)
		if err != nil {
			log.Fatal().Err(err).Str("path", cfg.LogFile).Msg("Failed to open log file")
		}
		console := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: "2006-01-02 15:04:05"}
		logger.InitializeWithWriter(cfg.LogLevel, zerolog.MultiLevelWriter(console, file))
	}
	log.Info().Msg("Yield vault starting in dry-run mode...")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	file, err := config.LoadVaultFile(cfg.VaultConfigPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.VaultConfigPath).Msg("Failed to load vault file")
	}

	// --- 2. Persistence ---
	var store keeper.SnapshotStore
	var cycles web.CycleReader
	if cfg.PersistenceEnabled() {
		db, err := state.Open(ctx, cfg.Database)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize database")
		}
		defer db.Close()
		if err := db.EnsureSchema(ctx); err != nil {
			log.Fatal().Err(err).Msg("Failed to ensure database schema")
		}
		log.Info().Str("driver", db.Driver()).Msg("Cycle snapshots will be persisted")
		store, cycles = db, db
	} else {
		log.Warn().Msg("Persistence disabled, cycle snapshots are kept in memory only")
	}

	// --- 3. Vault ---
	owner := types.Address(cfg.OwnerAddress)
	emitter := events.NewLogEmitter(logger.GetForComponent("events"))
	d, err := bootstrap(ctx, file, owner, emitter, logger.Logger)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to bootstrap vault")
	}

	// --- 4. Web server ---
	webServer := web.NewWebServer(cfg.WebPort, d.vault, cycles)
	go func() {
		log.Info().Str("port", cfg.WebPort).Str("url", "http://localhost:"+cfg.WebPort).Msg("Starting vault API")
		if err := webServer.Start(ctx); err != nil {
			log.Error().Err(err).Msg("Web server stopped with error")
		}
	}()

	// --- 5. Keeper ---
	k, err := keeper.New(keeper.Config{
		Vault:    d.vault,
		Store:    store,
		Operator: owner,
		Schedule: cfg.KeeperSchedule,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create keeper")
	}

	// Run first cycle immediately
	if _, err := k.RunCycle(ctx); err != nil {
		log.Error().Err(err).Msg("Initial maintenance cycle finished with errors")
	}
	if err := k.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("Failed to start keeper")
	}

	<-ctx.Done()
	log.Info().Msg("Shutdown signal received")
	k.Stop()
}
