package integration

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/RubachokBoss/artwork-feedback/internal/models"
	"github.com/rs/zerolog"
)

// Publisher is the raw broker publish used by the job publisher.
type Publisher interface {
	Publish(ctx context.Context, routingKey string, message []byte) error
}

// JobPublisher hands a durable submission off to the grading pipeline.
type JobPublisher interface {
	PublishJob(ctx context.Context, job *models.JobMessage) error
}

type jobPublisher struct {
	publisher Publisher
	queue     string
	logger    zerolog.Logger
}

func NewJobPublisher(publisher Publisher, queue string, logger zerolog.Logger) JobPublisher {
	return &jobPublisher{
		publisher: publisher,
		queue:     queue,
		logger:    logger,
	}
}

func (p *jobPublisher) PublishJob(ctx context.Context, job *models.JobMessage) error {
	body, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}

	if err := p.publisher.Publish(ctx, p.queue, body); err != nil {
		return fmt.Errorf("failed to publish job: %w", err)
	}

	p.logger.Info().
		Str("submission_id", job.SubmissionID).
		Str("queue", p.queue).
		Msg("Job published")

	return nil
}
