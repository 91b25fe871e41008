package queue

import (
	"context"

	"github.com/RubachokBoss/artwork-feedback/internal/repository"
	"github.com/rs/zerolog"
)

// Publisher sends a persistent message to the exchange under routingKey.
type Publisher interface {
	Publish(ctx context.Context, routingKey string, message []byte) error
}

type RabbitMQPublisher interface {
	Publish(ctx context.Context, routingKey string, body []byte) error
	// PublishDeadLetter republishes body unchanged onto the dead-letter queue
	// paired with queue.
	PublishDeadLetter(ctx context.Context, queue string, body []byte) error
}

type rabbitMQPublisher struct {
	publisher Publisher
	logger    zerolog.Logger
}

func NewRabbitMQPublisher(publisher Publisher, logger zerolog.Logger) RabbitMQPublisher {
	return &rabbitMQPublisher{
		publisher: publisher,
		logger:    logger,
	}
}

func (p *rabbitMQPublisher) Publish(ctx context.Context, routingKey string, body []byte) error {
	return p.publisher.Publish(ctx, routingKey, body)
}

func (p *rabbitMQPublisher) PublishDeadLetter(ctx context.Context, queue string, body []byte) error {
	deadLetters := repository.DeadLetterQueue(queue)
	if err := p.Publish(ctx, deadLetters, body); err != nil {
		return err
	}

	p.logger.Warn().
		Str("queue", deadLetters).
		Int("size", len(body)).
		Msg("Message moved to dead-letter queue")

	return nil
}
