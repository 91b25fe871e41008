package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/RubachokBoss/artwork-feedback/internal/metrics"
	"github.com/RubachokBoss/artwork-feedback/internal/models"
	"github.com/RubachokBoss/artwork-feedback/internal/service"
	"github.com/RubachokBoss/artwork-feedback/internal/worker/queue"
	"github.com/rs/zerolog"
)

type FeedbackWorker interface {
	Start(ctx context.Context) error
	// Stop finishes or requeues the in-flight message, then cancels the consumer.
	Stop() error
	QueueStats() (models.QueueStats, error)
	GetStats() WorkerStats
}

// QueueStatsReader reports queue depths with a passive read.
type QueueStatsReader interface {
	QueueStats(queue string) (models.QueueStats, error)
}

type WorkerStats struct {
	Received      int       `json:"received"`
	Completed     int       `json:"completed"`
	Requeued      int       `json:"requeued"`
	DeadLettered  int       `json:"dead_lettered"`
	Rejected      int       `json:"rejected"`
	Skipped       int       `json:"skipped"`
	PendingRetry  int       `json:"pending_retry"`
	LastMessageAt time.Time `json:"last_message_at,omitempty"`
}

type feedbackWorker struct {
	consumer       queue.RabbitMQConsumer
	publisher      queue.RabbitMQPublisher
	statsReader    QueueStatsReader
	feedback       service.FeedbackService
	policy         service.RetryPolicy
	retries        *service.RetryCounter
	queue          string
	reconnectDelay time.Duration
	sleep          func(ctx context.Context, d time.Duration) error
	logger         zerolog.Logger

	stats      WorkerStats
	statsMutex sync.RWMutex

	cancel context.CancelFunc
	done   chan struct{}
}

func NewFeedbackWorker(
	consumer queue.RabbitMQConsumer,
	publisher queue.RabbitMQPublisher,
	statsReader QueueStatsReader,
	feedback service.FeedbackService,
	policy service.RetryPolicy,
	retries *service.RetryCounter,
	queueName string,
	reconnectDelay time.Duration,
	logger zerolog.Logger,
) FeedbackWorker {
	return &feedbackWorker{
		consumer:       consumer,
		publisher:      publisher,
		statsReader:    statsReader,
		feedback:       feedback,
		policy:         policy,
		retries:        retries,
		queue:          queueName,
		reconnectDelay: reconnectDelay,
		sleep:          sleepContext,
		logger:         logger,
	}
}

func (w *feedbackWorker) Start(ctx context.Context) error {
	if w.done != nil {
		return errors.New("feedback worker already started")
	}

	w.logger.Info().
		Str("queue", w.queue).
		Int("max_retries", w.policy.MaxRetries()).
		Msg("Starting feedback worker...")

	runCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.done = make(chan struct{})

	go w.run(runCtx)

	return nil
}

func (w *feedbackWorker) Stop() error {
	w.logger.Info().Msg("Stopping feedback worker...")

	if w.cancel != nil {
		w.cancel()
		<-w.done
	}

	if err := w.consumer.Close(); err != nil {
		w.logger.Error().Err(err).Msg("Failed to close queue consumer")
	}

	stats := w.GetStats()
	w.logger.Info().
		Int("received", stats.Received).
		Int("completed", stats.Completed).
		Int("dead_lettered", stats.DeadLettered).
		Msg("Feedback worker stopped")

	return nil
}

// run keeps one consume loop alive, reconnecting after the delivery channel
// closes for any reason other than a stop.
func (w *feedbackWorker) run(ctx context.Context) {
	defer close(w.done)

	for {
		msgs, err := w.consumer.Consume(ctx)
		if err != nil {
			w.logger.Error().Err(err).
				Dur("retry_in", w.reconnectDelay).
				Msg("Failed to start consuming")
		} else {
			w.processMessages(ctx, msgs)
		}

		if ctx.Err() != nil {
			return
		}

		w.logger.Warn().
			Str("queue", w.queue).
			Dur("retry_in", w.reconnectDelay).
			Msg("Consumer disconnected, reconnecting")

		if err := w.sleep(ctx, w.reconnectDelay); err != nil {
			return
		}
	}
}

func (w *feedbackWorker) processMessages(ctx context.Context, msgs <-chan queue.RabbitMQMessage) {
	for {
		select {
		case <-ctx.Done():
			w.logger.Info().Msg("Stopping message processing")
			return
		case msg, ok := <-msgs:
			if !ok {
				w.logger.Warn().Msg("Message channel closed")
				return
			}
			w.processMessage(ctx, msg)
		}
	}
}

// processMessage drives one delivery to exactly one of ack, nack-requeue or
// reject. Store and broker calls are not cancelled by a stop; only the retry
// backoff is.
func (w *feedbackWorker) processMessage(ctx context.Context, msg queue.RabbitMQMessage) {
	w.statsMutex.Lock()
	w.stats.Received++
	w.stats.LastMessageAt = time.Now()
	w.statsMutex.Unlock()

	result, err := models.ParseResultMessage(msg.Body)
	if err != nil {
		w.logger.Warn().Err(err).
			Int("size", len(msg.Body)).
			Msg("Rejecting malformed result message")
		w.reject(msg, metrics.OutcomeRejectedMalformed)
		return
	}

	opCtx := context.WithoutCancel(ctx)
	log := w.logger.With().
		Str("submission_id", result.SubmissionID).
		Bool("redelivered", msg.Redelivered).
		Logger()

	submission, err := w.feedback.Apply(opCtx, result)
	switch {
	case err == nil:
		w.retries.Reset(result.SubmissionID)
		w.notify(opCtx, submission, result)
		w.ack(msg, metrics.OutcomeAcked)

	case errors.Is(err, service.ErrSubmissionNotFound):
		w.retries.Reset(result.SubmissionID)
		log.Warn().Err(err).Msg("Rejecting result for unknown submission")
		w.reject(msg, metrics.OutcomeRejectedNotFound)

	case errors.Is(err, service.ErrSubmissionTerminal):
		w.retries.Reset(result.SubmissionID)
		log.Info().Msg("Submission already failed, acknowledging without changes")
		w.ack(msg, metrics.OutcomeSkippedTerminal)

	case !service.IsRetryable(err):
		w.retries.Reset(result.SubmissionID)
		log.Error().Err(err).Msg("Non-retryable error applying result")
		if markErr := w.feedback.MarkFailed(opCtx, result.SubmissionID, err.Error()); markErr != nil {
			log.Error().Err(markErr).Msg("Failed to mark submission failed")
		}
		w.reject(msg, metrics.OutcomeRejectedNonRetryable)

	default:
		w.retry(ctx, opCtx, log, msg, result, err)
	}
}

func (w *feedbackWorker) retry(ctx, opCtx context.Context, log zerolog.Logger, msg queue.RabbitMQMessage, result *models.ResultMessage, applyErr error) {
	attempt := w.retries.Increment(result.SubmissionID)
	if delay, ok := w.policy.Delay(attempt); ok {
		log.Warn().Err(applyErr).
			Int("attempt", attempt).
			Dur("delay", delay).
			Msg("Retryable error applying result, backing off")

		metrics.RecordRetryBackoff(delay)
		if err := w.sleep(ctx, delay); err != nil {
			log.Info().Int("attempt", attempt).Msg("Stopped during backoff, requeueing")
		}
		w.nack(msg, metrics.OutcomeRequeued)
		return
	}

	if err := w.publisher.PublishDeadLetter(opCtx, w.queue, msg.Body); err != nil {
		// The counter is kept so the redelivery goes straight to dead-lettering.
		log.Error().Err(err).
			Int("attempt", attempt).
			Msg("Failed to dead-letter message, requeueing")
		w.nack(msg, metrics.OutcomeRequeued)
		return
	}

	w.ack(msg, metrics.OutcomeDeadLettered)
	w.retries.Reset(result.SubmissionID)

	log.Error().Err(applyErr).
		Int("attempt", attempt).
		Msg("Retries exhausted, message dead-lettered")

	reason := fmt.Sprintf("%s: %v", service.RetriesExhaustedReason, applyErr)
	if err := w.feedback.MarkFailed(opCtx, result.SubmissionID, reason); err != nil {
		log.Warn().Err(err).Msg("Failed to mark dead-lettered submission failed")
	}
}

func (w *feedbackWorker) notify(ctx context.Context, submission *models.Submission, result *models.ResultMessage) {
	err := w.feedback.Notify(ctx, submission, result)
	metrics.RecordNotification(err == nil)
	if err != nil {
		w.logger.Error().Err(err).
			Str("submission_id", result.SubmissionID).
			Str("student_id", studentForLog(submission, result)).
			Msg("Failed to notify student")
	}
}

func (w *feedbackWorker) ack(msg queue.RabbitMQMessage, outcome string) {
	if err := msg.Ack(false); err != nil {
		w.logger.Error().Err(err).Msg("Failed to ack message")
	}
	w.record(outcome)
}

func (w *feedbackWorker) nack(msg queue.RabbitMQMessage, outcome string) {
	if err := msg.Nack(false, true); err != nil {
		w.logger.Error().Err(err).Msg("Failed to nack message")
	}
	w.record(outcome)
}

func (w *feedbackWorker) reject(msg queue.RabbitMQMessage, outcome string) {
	if err := msg.Reject(false); err != nil {
		w.logger.Error().Err(err).Msg("Failed to reject message")
	}
	w.record(outcome)
}

func (w *feedbackWorker) record(outcome string) {
	metrics.RecordMessage(outcome)

	w.statsMutex.Lock()
	defer w.statsMutex.Unlock()

	switch outcome {
	case metrics.OutcomeAcked:
		w.stats.Completed++
	case metrics.OutcomeRequeued:
		w.stats.Requeued++
	case metrics.OutcomeDeadLettered:
		w.stats.DeadLettered++
	case metrics.OutcomeSkippedTerminal:
		w.stats.Skipped++
	default:
		w.stats.Rejected++
	}
}

func (w *feedbackWorker) QueueStats() (models.QueueStats, error) {
	return w.statsReader.QueueStats(w.queue)
}

func (w *feedbackWorker) GetStats() WorkerStats {
	w.statsMutex.RLock()
	defer w.statsMutex.RUnlock()

	stats := w.stats
	stats.PendingRetry = w.retries.Len()
	return stats
}

func studentForLog(submission *models.Submission, result *models.ResultMessage) string {
	if result != nil && result.StudentID != "" {
		return result.StudentID
	}
	if submission != nil && submission.StudentID != "" {
		return submission.StudentID
	}
	return "unknown"
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
