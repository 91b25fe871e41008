package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/RubachokBoss/artwork-feedback/internal/app"
	"github.com/RubachokBoss/artwork-feedback/internal/config"
	"github.com/RubachokBoss/artwork-feedback/internal/database"
	"github.com/RubachokBoss/artwork-feedback/pkg/logger"
	"github.com/rs/zerolog"
)

func main() {
	command := "serve"
	args := []string{}
	if len(os.Args) > 1 {
		command = os.Args[1]
		args = os.Args[2:]
	}

	switch command {
	case "serve":
		runServer()
	case "worker":
		runWorker()
	case "migrate":
		migrateCmd := flag.NewFlagSet("migrate", flag.ExitOnError)
		direction := migrateCmd.String("direction", "up", "direction of migration (up/down)")
		_ = migrateCmd.Parse(args)
		runMigrations(*direction)
	case "replay":
		replayCmd := flag.NewFlagSet("replay", flag.ExitOnError)
		limit := replayCmd.Int("limit", 0, "maximum number of dead letters to replay (0 replays all)")
		_ = replayCmd.Parse(args)
		runReplay(*limit)
	default:
		log := logger.New()
		log.Fatal().Str("command", command).Msg("Unknown command. Use serve, worker, migrate or replay")
	}
}

func loadConfig() (*config.Config, zerolog.Logger) {
	log := logger.New()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	return cfg, logger.NewWithConfig(cfg.Logging.Level, cfg.Logging.Pretty, cfg.Logging.NoColor)
}

func runServer() {
	cfg, log := loadConfig()

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}

	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		log.Fatal().Err(err).Msg("Failed to ping database")
	}

	log.Info().Msg("Database connection established")

	application, err := app.New(cfg, log, db)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create application")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		if err := application.Run(); err != nil {
			log.Fatal().Err(err).Msg("Failed to run application")
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := application.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Failed to shutdown gracefully")
	}

	log.Info().Msg("Intake API stopped")
}

func runWorker() {
	cfg, log := loadConfig()

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}

	workerApp, err := app.NewWorker(cfg, log, db)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create feedback worker")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		if err := workerApp.Run(ctx); err != nil {
			log.Fatal().Err(err).Msg("Failed to run feedback worker")
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := workerApp.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Failed to shutdown gracefully")
	}

	log.Info().Msg("Feedback worker stopped")
}

func runMigrations(direction string) {
	cfg, log := loadConfig()

	migrator, err := database.NewMigrator(cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create migrator")
	}

	switch direction {
	case "up":
		if err := migrator.Up(); err != nil {
			log.Fatal().Err(err).Msg("Failed to apply migrations")
		}
		log.Info().Msg("Migrations applied successfully")
	case "down":
		if err := migrator.Down(); err != nil {
			log.Fatal().Err(err).Msg("Failed to rollback migrations")
		}
		log.Info().Msg("Migrations rolled back successfully")
	default:
		log.Fatal().Msg("Invalid migration direction. Use 'up' or 'down'")
	}
}

func runReplay(limit int) {
	cfg, log := loadConfig()

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	replayed, err := app.ReplayDeadLetters(ctx, cfg, log, db, limit)
	if err != nil {
		log.Fatal().Err(err).Int("replayed", replayed).Msg("Failed to replay dead letters")
	}

	log.Info().Int("replayed", replayed).Msg("Dead letter replay finished")
}
