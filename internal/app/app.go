package app

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"time"

	"github.com/RubachokBoss/artwork-feedback/internal/config"
	"github.com/RubachokBoss/artwork-feedback/internal/delivery/httpd"
	"github.com/RubachokBoss/artwork-feedback/internal/metrics"
	appmiddleware "github.com/RubachokBoss/artwork-feedback/internal/middleware"
	"github.com/RubachokBoss/artwork-feedback/internal/repository"
	"github.com/RubachokBoss/artwork-feedback/internal/service"
	"github.com/RubachokBoss/artwork-feedback/internal/service/integration"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"
)

// App is the intake HTTP API.
type App struct {
	server   *http.Server
	logger   zerolog.Logger
	config   *config.Config
	db       *sql.DB
	rabbitmq repository.RabbitMQRepository
}

func New(cfg *config.Config, log zerolog.Logger, db *sql.DB) (*App, error) {
	metrics.Register()

	rabbitmq, err := repository.NewRabbitMQRepository(
		cfg.RabbitMQ.URL,
		cfg.RabbitMQ.Exchange,
		[]string{cfg.RabbitMQ.JobsQueue, cfg.RabbitMQ.ResultsQueue},
		log,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	assetStorage, err := repository.NewMinIORepository(cfg.Storage, log)
	if err != nil {
		rabbitmq.Close()
		return nil, err
	}

	assetFetcher := integration.NewAssetFetcher(
		cfg.Services.Asset.Timeout,
		cfg.Services.Asset.MaxSize,
		log,
	)
	jobPublisher := integration.NewJobPublisher(rabbitmq, cfg.RabbitMQ.JobsQueue, log)

	submissionRepo := repository.NewSubmissionRepository(db, log)

	intakeService := service.NewIntakeService(
		submissionRepo,
		assetStorage,
		assetFetcher,
		jobPublisher,
		rabbitmq,
		cfg.RabbitMQ.JobsQueue,
		cfg.RabbitMQ.ResultsQueue,
		log,
	)

	handler := httpd.NewHandler(
		intakeService,
		map[string]httpd.Pinger{
			"postgres": repository.NewPostgresRepository(db, log),
		},
		log,
	)

	router := newRouter(cfg, log)
	handler.RegisterRoutes(router)

	server := &http.Server{
		Addr:         cfg.Server.Address,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	return &App{
		server:   server,
		logger:   log,
		config:   cfg,
		db:       db,
		rabbitmq: rabbitmq,
	}, nil
}

func newRouter(cfg *config.Config, log zerolog.Logger) chi.Router {
	router := chi.NewRouter()

	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(appmiddleware.RequestLogger(log))
	router.Use(appmiddleware.Recovery(log))
	router.Use(middleware.Timeout(60 * time.Second))

	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORS.AllowedOrigins,
		AllowedMethods:   cfg.CORS.AllowedMethods,
		AllowedHeaders:   cfg.CORS.AllowedHeaders,
		ExposedHeaders:   cfg.CORS.ExposedHeaders,
		AllowCredentials: cfg.CORS.AllowCredentials,
		MaxAge:           cfg.CORS.MaxAge,
	}))

	return router
}

func (a *App) Run() error {
	a.logger.Info().Msgf("Starting intake API on %s", a.config.Server.Address)
	if err := a.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (a *App) Shutdown(ctx context.Context) error {
	a.logger.Info().Msg("Shutting down intake API...")

	err := a.server.Shutdown(ctx)

	if a.rabbitmq != nil {
		if closeErr := a.rabbitmq.Close(); closeErr != nil {
			a.logger.Error().Err(closeErr).Msg("Failed to close RabbitMQ connection")
		}
	}

	if a.db != nil {
		if closeErr := a.db.Close(); closeErr != nil {
			a.logger.Error().Err(closeErr).Msg("Failed to close database connection")
		}
	}

	return err
}
