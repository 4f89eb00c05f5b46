package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/golang-migrate/migrate/v4"
	migratepg "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/jwalitptl/drivermed-api/config"
	"github.com/jwalitptl/drivermed-api/internal/model"
	"github.com/jwalitptl/drivermed-api/internal/repository"
	"github.com/jwalitptl/drivermed-api/internal/repository/postgres"
	authService "github.com/jwalitptl/drivermed-api/internal/service/auth"
	"github.com/jwalitptl/drivermed-api/migrations"
	"github.com/jwalitptl/drivermed-api/pkg/auth"
	"github.com/jwalitptl/drivermed-api/pkg/logger"
	"github.com/jwalitptl/drivermed-api/pkg/security"
)

const usage = `usage: migrate [command]

commands:
  up              apply all pending migrations (default)
  down            roll back the most recent migration
  force <version> mark the schema as <version> without running anything
  version         print the current schema version
  seed-admin      create an admin profile from ADMIN_EMAIL, ADMIN_NAME and ADMIN_PASSWORD`

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn().Err(err).Msg("failed to load .env")
	}

	cfg, err := config.LoadConfig(os.Getenv("BOOKING_CONFIG_FILE"))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	appLogger := logger.NewLogger(&logger.Config{
		Level:      logger.ParseLevel(cfg.Log.Level),
		TimeFormat: time.RFC3339,
		Output:     os.Stdout,
		JSON:       cfg.Log.JSON,
	})
	log.Logger = *appLogger.Zerolog()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	db, err := postgres.NewDB(ctx, cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	command, args := "up", []string(nil)
	if len(os.Args) > 1 {
		command, args = os.Args[1], os.Args[2:]
	}

	if command == "seed-admin" {
		if err := seedAdmin(ctx, cfg, appLogger, postgres.NewProfileRepository(db)); err != nil {
			log.Fatal().Err(err).Msg("failed to seed admin")
		}
		return
	}

	dbDriver, err := migratepg.WithInstance(db.DB, &migratepg.Config{})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create database driver")
	}
	srcDriver, err := iofs.New(migrations.FS, ".")
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open embedded migrations")
	}
	m, err := migrate.NewWithInstance("iofs", srcDriver, "postgres", dbDriver)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create migrator")
	}
	defer func() { _, _ = m.Close() }()

	if err := run(m, command, args); err != nil {
		log.Fatal().Err(err).Str("command", command).Msg("migration failed")
	}
}

func run(m *migrate.Migrate, command string, args []string) error {
	switch command {
	case "up":
		if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			return fmt.Errorf("migrate up: %w", err)
		}
	case "down":
		if err := m.Steps(-1); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			return fmt.Errorf("migrate down: %w", err)
		}
	case "force":
		if len(args) < 1 {
			return errors.New("force needs a version")
		}
		version, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("invalid version %q: %w", args[0], err)
		}
		if err := m.Force(version); err != nil {
			return fmt.Errorf("force version: %w", err)
		}
	case "version":
	default:
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}

	version, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return fmt.Errorf("read version: %w", err)
	}
	log.Info().Uint("version", version).Bool("dirty", dirty).Msg("migrations complete")
	return nil
}

func seedAdmin(ctx context.Context, cfg *config.Config, appLogger *logger.Logger, profiles repository.ProfileRepository) error {
	email := os.Getenv("ADMIN_EMAIL")
	password := os.Getenv("ADMIN_PASSWORD")
	if email == "" || password == "" {
		return errors.New("ADMIN_EMAIL and ADMIN_PASSWORD are required")
	}
	name := os.Getenv("ADMIN_NAME")
	if name == "" {
		name = "Administrator"
	}

	jwtSvc := auth.NewJWTService(cfg.Secrets.JWTSecret, cfg.JWT.Issuer, cfg.JWT.Expiry)
	svc := authService.NewService(profiles, jwtSvc, security.NewBcryptHasher(0), appLogger)

	profile, err := svc.CreateProfile(ctx, email, name, password, model.RoleAdmin)
	if err != nil {
		return err
	}
	log.Info().Str("profile_id", profile.ID.String()).Str("email", profile.Email).Msg("admin profile created")
	return nil
}
