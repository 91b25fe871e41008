package queue

import (
	"context"
	"time"

	"github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
)

// ChannelProvider hands out a live channel, reconnecting when needed.
type ChannelProvider interface {
	Channel() (*amqp091.Channel, error)
}

type RabbitMQMessage struct {
	Body        []byte
	Timestamp   time.Time
	Redelivered bool
	Ack         func(multiple bool) error
	Nack        func(multiple bool, requeue bool) error
	Reject      func(requeue bool) error
}

type RabbitMQConsumer interface {
	// Consume starts delivering messages. The returned channel is closed when
	// ctx is cancelled or the broker connection is lost.
	Consume(ctx context.Context) (<-chan RabbitMQMessage, error)
	Close() error
}

type rabbitMQConsumer struct {
	provider    ChannelProvider
	queue       string
	consumerTag string
	prefetch    int
	logger      zerolog.Logger

	channel *amqp091.Channel
}

func NewRabbitMQConsumer(provider ChannelProvider, queue, consumerTag string, prefetch int, logger zerolog.Logger) RabbitMQConsumer {
	if prefetch <= 0 {
		prefetch = 1
	}
	return &rabbitMQConsumer{
		provider:    provider,
		queue:       queue,
		consumerTag: consumerTag,
		prefetch:    prefetch,
		logger:      logger,
	}
}

func (c *rabbitMQConsumer) Consume(ctx context.Context) (<-chan RabbitMQMessage, error) {
	channel, err := c.provider.Channel()
	if err != nil {
		return nil, err
	}

	err = channel.Qos(
		c.prefetch, // prefetch count
		0,          // prefetch size
		false,      // global
	)
	if err != nil {
		return nil, err
	}

	msgs, err := channel.Consume(
		c.queue,       // queue
		c.consumerTag, // consumer
		false,         // auto-ack
		false,         // exclusive
		false,         // no-local
		false,         // no-wait
		nil,           // args
	)
	if err != nil {
		return nil, err
	}
	c.channel = channel

	output := make(chan RabbitMQMessage)

	go func() {
		defer close(output)

		for {
			select {
			case <-ctx.Done():
				c.logger.Info().Msg("Stopping RabbitMQ consumer")
				return
			case msg, ok := <-msgs:
				if !ok {
					c.logger.Warn().Str("queue", c.queue).Msg("RabbitMQ delivery channel closed")
					return
				}

				delivery := msg
				rabbitMsg := RabbitMQMessage{
					Body:        delivery.Body,
					Timestamp:   delivery.Timestamp,
					Redelivered: delivery.Redelivered,
					Ack:         delivery.Ack,
					Nack:        delivery.Nack,
					Reject:      delivery.Reject,
				}

				select {
				case output <- rabbitMsg:
				case <-ctx.Done():
					_ = delivery.Nack(false, true)
					return
				}
			}
		}
	}()

	c.logger.Info().
		Str("queue", c.queue).
		Str("consumer_tag", c.consumerTag).
		Int("prefetch", c.prefetch).
		Msg("RabbitMQ consumer started")

	return output, nil
}

func (c *rabbitMQConsumer) Close() error {
	if c.channel != nil {
		if err := c.channel.Cancel(c.consumerTag, false); err != nil && err != amqp091.ErrClosed {
			c.logger.Error().Err(err).Msg("Failed to cancel RabbitMQ consumer")
		}
	}

	c.logger.Info().Msg("RabbitMQ consumer closed")
	return nil
}
