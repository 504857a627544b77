package main

import (
	"errors"
	"os"
	"strconv"

	"github.com/golang-migrate/migrate/v4"
	"github.com/joho/godotenv"

	"github.com/hackgods/physio-scheduling/internal/db"
	"github.com/hackgods/physio-scheduling/pkg/logging"
)

// Usage:
//
//	migrate                 apply pending migrations
//	migrate down            roll back everything
//	migrate force <version> mark the schema as <version> after a failed run
//	migrate version         print the current version
func main() {
	_ = godotenv.Load()
	logger := logging.ForEnv(os.Getenv("APP_ENV"), os.Getenv("LOG_LEVEL")).With("migrate")

	dsn := os.Getenv("POSTGRES_DSN")
	if dsn == "" {
		logger.Fatal().Msg("POSTGRES_DSN is required")
	}

	if len(os.Args) < 2 {
		if err := db.MigrateUp(dsn); err != nil {
			logger.Fatal().Err(err).Msg("migrate up failed")
		}
		logger.Info().Msg("migrations complete")
		return
	}

	m, err := db.NewMigrator(dsn)
	if err != nil {
		logger.Fatal().Err(err).Msg("create migrator")
	}
	defer func() { _, _ = m.Close() }()

	switch os.Args[1] {
	case "down":
		if err := m.Down(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			logger.Fatal().Err(err).Msg("migrate down failed")
		}
		logger.Info().Msg("migrations rolled back")
	case "force":
		if len(os.Args) < 3 {
			logger.Fatal().Msg("usage: migrate force <version>")
		}
		version, err := strconv.Atoi(os.Args[2])
		if err != nil {
			logger.Fatal().Err(err).Msg("invalid version")
		}
		if err := m.Force(version); err != nil {
			logger.Fatal().Err(err).Msg("force version")
		}
		logger.Info().Int("version", version).Msg("forced schema version")
	case "version":
		version, dirty, err := m.Version()
		if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
			logger.Fatal().Err(err).Msg("read version")
		}
		logger.Info().Uint("version", version).Bool("dirty", dirty).Msg("schema version")
	default:
		logger.Fatal().Str("command", os.Args[1]).Msg("unknown command")
	}
}
