package config

import (
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/elys-network/yieldvault/internal/state"
)

const (
	DriverNone             = "none"
	DefaultVaultConfigPath = "configs/vault.yaml"
	DefaultSQLitePath      = "yvault.db"
	DefaultWebPort         = "8080"
	DefaultKeeperSchedule  = "0 */15 * * * *"
)

// AppConfig holds all application configuration loaded from environment variables.
type AppConfig struct {
	LogLevel string
	// LogFile, when set, receives a copy of every log line.
	LogFile string
	// VaultConfigPath points at the YAML bootstrap file.
	VaultConfigPath string
	// OwnerAddress owns the vault, its engine and every adapter. The keeper runs as the owner.
	OwnerAddress string
	// Database selects persistence. Driver "none" disables it.
	Database       state.DBConfig
	WebPort        string
	KeeperSchedule string
}

// PersistenceEnabled reports whether cycle snapshots are stored.
func (c AppConfig) PersistenceEnabled() bool {
	return c.Database.Driver != DriverNone
}

// LoadConfig loads .env when present and reads the configuration from the environment.
// OWNER_ADDRESS is required; everything else has a default.
func LoadConfig() (AppConfig, error) {
	if err := godotenv.Load(); err != nil {
		log.Debug().Msg(".env file not found, relying on OS environment variables")
	}
	log.Info().Msg("Loading application configuration from environment variables...")

	var cfg AppConfig
	var err error

	cfg.OwnerAddress, err = getEnv("OWNER_ADDRESS")
	if err != nil {
		return cfg, err
	}

	cfg.LogLevel = getEnvOrDefault("LOG_LEVEL", "info")
	cfg.LogFile = expandHome(getEnvOrDefault("LOG_FILE", ""))
	cfg.VaultConfigPath = expandHome(getEnvOrDefault("VAULT_CONFIG", DefaultVaultConfigPath))
	cfg.WebPort = getEnvOrDefault("WEB_PORT", DefaultWebPort)
	cfg.KeeperSchedule = getEnvOrDefault("KEEPER_SCHEDULE", DefaultKeeperSchedule)

	cfg.Database, err = LoadDatabaseConfig()
	if err != nil {
		return cfg, err
	}

	log.Debug().
		Str("owner", cfg.OwnerAddress).
		Str("vaultConfig", cfg.VaultConfigPath).
		Str("dbDriver", cfg.Database.Driver).
		Msg("Configuration loaded successfully.")
	return cfg, nil
}

// LoadDatabaseConfig reads DB_DRIVER and the settings of the selected driver.
func LoadDatabaseConfig() (state.DBConfig, error) {
	db := state.DBConfig{Driver: strings.ToLower(getEnvOrDefault("DB_DRIVER", state.DriverSQLite))}

	switch db.Driver {
	case DriverNone:
	case state.DriverSQLite:
		db.SQLitePath = expandHome(getEnvOrDefault("SQLITE_PATH", DefaultSQLitePath))
	case state.DriverPostgres:
		var err error
		if db.Host, err = getEnv("DB_HOST"); err != nil {
			return db, err
		}
		if db.Port, err = getEnvAsIntOrDefault("DB_PORT", 5432); err != nil {
			return db, err
		}
		if db.User, err = getEnv("DB_USER"); err != nil {
			return db, err
		}
		db.Password = getEnvOrDefault("DB_PASSWORD", "")
		if db.DBName, err = getEnv("DB_NAME"); err != nil {
			return db, err
		}
		db.SSLMode = getEnvOrDefault("DB_SSLMODE", "disable")
	default:
		return db, errors.New("environment variable DB_DRIVER must be one of postgres, sqlite, none, got: " + db.Driver)
	}
	return db, nil
}

// expandHome expands a leading tilde to the user's home directory.
func expandHome(path string) string {
	if !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[2:])
}

// getEnv retrieves a string environment variable. Returns error if not set.
func getEnv(key string) (string, error) {
	if value, exists := os.LookupEnv(key); exists && value != "" {
		return value, nil
	}
	return "", errors.New("environment variable " + key + " is required but not set")
}

func getEnvOrDefault(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists && value != "" {
		return value
	}
	return fallback
}

// getEnvAsIntOrDefault retrieves an environment variable as an int. Returns error if set but invalid.
func getEnvAsIntOrDefault(key string, fallback int) (int, error) {
	valueStr, exists := os.LookupEnv(key)
	if !exists || valueStr == "" {
		return fallback, nil
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return 0, errors.New("environment variable " + key + " must be a valid integer, got: " + valueStr)
	}
	return value, nil
}
