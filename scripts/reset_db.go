package main

import (
	"context"
	"os"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/elys-network/yieldvault/internal/config"
	"github.com/elys-network/yieldvault/internal/logger"
	"github.com/elys-network/yieldvault/internal/state"
)

func main() {
	logLevel := os.Getenv("LOG_LEVEL")
	if logLevel == "" {
		logLevel = "info"
	}
	logger.Initialize(logLevel)
	log.Info().Msg("Starting database reset script...")

	if err := godotenv.Load(); err != nil {
		log.Warn().Msg("Warning: .env file not found or error loading .env file. Relying on OS environment variables.")
	}

	dbCfg, err := config.LoadDatabaseConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid database configuration")
	}
	if dbCfg.Driver == config.DriverNone {
		log.Fatal().Msg("DB_DRIVER is none, nothing to reset")
	}

	log.Info().
		Str("driver", dbCfg.Driver).
		Str("host", dbCfg.Host).
		Int("port", dbCfg.Port).
		Str("dbname", dbCfg.DBName).
		Str("sqlitePath", dbCfg.SQLitePath).
		Msg("Connecting to database")

	ctx := context.Background()
	store, err := state.Open(ctx, dbCfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize database connection")
	}
	defer store.Close()

	log.Info().Msg("Connected to database. Attempting to drop all tables...")
	if err := store.DropSchema(ctx); err != nil {
		log.Fatal().Err(err).Msg("Failed to drop tables")
	}
	log.Info().Msg("Successfully dropped all tables")

	log.Info().Msg("Recreating database schema...")
	if err := store.EnsureSchema(ctx); err != nil {
		log.Fatal().Err(err).Msg("Failed to recreate database schema")
	}
	log.Info().Msg("Database reset complete!")
}
