package app

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"

	"github.com/RubachokBoss/artwork-feedback/internal/config"
	"github.com/RubachokBoss/artwork-feedback/internal/delivery/httpd"
	"github.com/RubachokBoss/artwork-feedback/internal/metrics"
	"github.com/RubachokBoss/artwork-feedback/internal/repository"
	"github.com/RubachokBoss/artwork-feedback/internal/service"
	"github.com/RubachokBoss/artwork-feedback/internal/service/integration"
	"github.com/RubachokBoss/artwork-feedback/internal/worker"
	"github.com/RubachokBoss/artwork-feedback/internal/worker/queue"
	"github.com/rs/zerolog"
)

// WorkerApp runs the feedback consumer plus a small health/metrics listener.
type WorkerApp struct {
	worker   worker.FeedbackWorker
	server   *http.Server
	logger   zerolog.Logger
	config   *config.Config
	db       *sql.DB
	rabbitmq repository.RabbitMQRepository
}

func NewWorker(cfg *config.Config, log zerolog.Logger, db *sql.DB) (*WorkerApp, error) {
	metrics.Register()

	rabbitmq, err := repository.NewRabbitMQRepository(
		cfg.RabbitMQ.URL,
		cfg.RabbitMQ.Exchange,
		[]string{cfg.RabbitMQ.ResultsQueue},
		log,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	retries, err := service.NewRetryCounter(cfg.Worker.RetryCacheSize)
	if err != nil {
		rabbitmq.Close()
		return nil, fmt.Errorf("failed to create retry counter: %w", err)
	}

	feedbackService := newFeedbackService(cfg, log, db)

	consumer := queue.NewRabbitMQConsumer(
		rabbitmq,
		cfg.RabbitMQ.ResultsQueue,
		cfg.RabbitMQ.ConsumerTag,
		cfg.RabbitMQ.PrefetchCount,
		log,
	)
	publisher := queue.NewRabbitMQPublisher(rabbitmq, log)

	feedbackWorker := worker.NewFeedbackWorker(
		consumer,
		publisher,
		rabbitmq,
		feedbackService,
		service.RetryPolicy{Backoff: cfg.Worker.Backoff},
		retries,
		cfg.RabbitMQ.ResultsQueue,
		cfg.RabbitMQ.ReconnectDelay,
		log,
	)

	router := newRouter(cfg, log)
	httpd.NewWorkerHandler(feedbackWorker, log).RegisterRoutes(router)

	server := &http.Server{
		Addr:         cfg.Worker.MetricsAddress,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	return &WorkerApp{
		worker:   feedbackWorker,
		server:   server,
		logger:   log,
		config:   cfg,
		db:       db,
		rabbitmq: rabbitmq,
	}, nil
}

// Run starts consuming and blocks serving health and metrics.
func (a *WorkerApp) Run(ctx context.Context) error {
	if err := a.worker.Start(ctx); err != nil {
		return fmt.Errorf("failed to start feedback worker: %w", err)
	}

	a.logger.Info().Msgf("Worker metrics listening on %s", a.config.Worker.MetricsAddress)
	if err := a.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (a *WorkerApp) Shutdown(ctx context.Context) error {
	a.logger.Info().Msg("Shutting down feedback worker...")

	if err := a.worker.Stop(); err != nil {
		a.logger.Error().Err(err).Msg("Failed to stop feedback worker")
	}

	err := a.server.Shutdown(ctx)

	if closeErr := a.rabbitmq.Close(); closeErr != nil {
		a.logger.Error().Err(closeErr).Msg("Failed to close RabbitMQ connection")
	}

	if a.db != nil {
		if closeErr := a.db.Close(); closeErr != nil {
			a.logger.Error().Err(closeErr).Msg("Failed to close database connection")
		}
	}

	return err
}

// ReplayDeadLetters moves up to limit dead-lettered results back onto the
// results queue, reopening each submission that failed by exhausting its
// retries. A limit of zero drains the dead-letter queue.
func ReplayDeadLetters(ctx context.Context, cfg *config.Config, log zerolog.Logger, db *sql.DB, limit int) (int, error) {
	rabbitmq, err := repository.NewRabbitMQRepository(
		cfg.RabbitMQ.URL,
		cfg.RabbitMQ.Exchange,
		[]string{cfg.RabbitMQ.ResultsQueue},
		log,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}
	defer rabbitmq.Close()

	feedbackService := newFeedbackService(cfg, log, db)

	return rabbitmq.ReplayDeadLetters(ctx, cfg.RabbitMQ.ResultsQueue, limit, feedbackService.PrepareReplay)
}

func newFeedbackService(cfg *config.Config, log zerolog.Logger, db *sql.DB) service.FeedbackService {
	notificationClient := integration.NewNotificationClient(
		cfg.Services.Notification.URL,
		cfg.Services.Notification.FlowStartEndpoint,
		cfg.Services.Notification.Token,
		cfg.Services.Notification.Timeout,
		cfg.Services.Notification.RetryCount,
		cfg.Services.Notification.RetryDelay,
		log,
	)

	return service.NewFeedbackService(
		repository.NewSubmissionRepository(db, log),
		repository.NewSettingsRepository(db, log),
		notificationClient,
		cfg.Notification.FeedbackFlowKey,
		log,
	)
}
