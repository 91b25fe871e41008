package repository

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/RubachokBoss/artwork-feedback/internal/models"
	"github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
)

const deadLetterSuffix = "_dead_letter"

// DeadLetterQueue returns the name of the dead-letter queue paired with queue.
func DeadLetterQueue(queue string) string {
	return queue + deadLetterSuffix
}

type RabbitMQRepository interface {
	// Channel returns the shared channel, redialing and redeclaring the
	// topology when the previous connection was lost.
	Channel() (*amqp091.Channel, error)
	Publish(ctx context.Context, routingKey string, message []byte) error
	QueueStats(queue string) (models.QueueStats, error)
	ReplayDeadLetters(ctx context.Context, queue string, limit int, prepare func(ctx context.Context, body []byte) error) (int, error)
	Close() error
}

type rabbitMQRepository struct {
	url      string
	exchange string
	queues   []string
	logger   zerolog.Logger

	mu      sync.Mutex
	conn    *amqp091.Connection
	channel *amqp091.Channel
	closed  chan *amqp091.Error
}

func NewRabbitMQRepository(url, exchange string, queues []string, logger zerolog.Logger) (RabbitMQRepository, error) {
	r := &rabbitMQRepository{
		url:      url,
		exchange: exchange,
		queues:   queues,
		logger:   logger,
	}

	if _, err := r.Channel(); err != nil {
		return nil, err
	}

	return r, nil
}

func (r *rabbitMQRepository) Channel() (*amqp091.Channel, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.healthyLocked() {
		return r.channel, nil
	}

	return r.connectLocked()
}

func (r *rabbitMQRepository) healthyLocked() bool {
	if r.conn == nil || r.channel == nil || r.conn.IsClosed() {
		return false
	}

	select {
	case <-r.closed:
		return false
	default:
		return true
	}
}

func (r *rabbitMQRepository) connectLocked() (*amqp091.Channel, error) {
	r.closeLocked()

	conn, err := amqp091.Dial(r.url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	if err := r.setupTopology(channel); err != nil {
		channel.Close()
		conn.Close()
		return nil, err
	}

	r.conn = conn
	r.channel = channel
	r.closed = channel.NotifyClose(make(chan *amqp091.Error, 1))

	r.logger.Info().
		Str("exchange", r.exchange).
		Strs("queues", r.queues).
		Msg("Connected to RabbitMQ")

	return channel, nil
}

func (r *rabbitMQRepository) setupTopology(channel *amqp091.Channel) error {
	err := channel.ExchangeDeclare(
		r.exchange, // name
		"direct",   // type
		true,       // durable
		false,      // auto-deleted
		false,      // internal
		false,      // no-wait
		nil,        // arguments
	)
	if err != nil {
		return fmt.Errorf("failed to declare exchange: %w", err)
	}

	for _, queue := range r.queues {
		for _, name := range []string{queue, DeadLetterQueue(queue)} {
			q, err := channel.QueueDeclare(
				name,  // name
				true,  // durable
				false, // delete when unused
				false, // exclusive
				false, // no-wait
				nil,   // arguments
			)
			if err != nil {
				return fmt.Errorf("failed to declare queue %s: %w", name, err)
			}

			if err := channel.QueueBind(q.Name, q.Name, r.exchange, false, nil); err != nil {
				return fmt.Errorf("failed to bind queue %s: %w", name, err)
			}
		}
	}

	return nil
}

func (r *rabbitMQRepository) Publish(ctx context.Context, routingKey string, message []byte) error {
	channel, err := r.Channel()
	if err != nil {
		return err
	}

	publishCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	return channel.PublishWithContext(
		publishCtx,
		r.exchange, // exchange
		routingKey, // routing key
		false,      // mandatory
		false,      // immediate
		amqp091.Publishing{
			ContentType:  "application/json",
			Body:         message,
			DeliveryMode: amqp091.Persistent,
			Timestamp:    time.Now(),
		},
	)
}

// QueueStats inspects the queue and its dead-letter queue on a short-lived
// channel, since a failed passive declare closes the channel it ran on.
func (r *rabbitMQRepository) QueueStats(queue string) (models.QueueStats, error) {
	stats := models.QueueStats{Queue: queue, DeadLetterQueue: DeadLetterQueue(queue)}

	if _, err := r.Channel(); err != nil {
		return stats, err
	}

	r.mu.Lock()
	conn := r.conn
	r.mu.Unlock()

	channel, err := conn.Channel()
	if err != nil {
		return stats, fmt.Errorf("failed to open stats channel: %w", err)
	}
	defer channel.Close()

	main, err := channel.QueueDeclarePassive(queue, true, false, false, false, nil)
	if err != nil {
		return stats, fmt.Errorf("failed to inspect queue %s: %w", queue, err)
	}
	stats.Messages = main.Messages
	stats.Consumers = main.Consumers

	dead, err := channel.QueueDeclarePassive(stats.DeadLetterQueue, true, false, false, false, nil)
	if err != nil {
		return stats, fmt.Errorf("failed to inspect queue %s: %w", stats.DeadLetterQueue, err)
	}
	stats.DeadLetterMessages = dead.Messages

	return stats, nil
}

// ReplayDeadLetters moves up to limit messages from the dead-letter queue
// back onto queue. prepare, when set, runs before each republish. Each
// message is acked only after it was republished.
func (r *rabbitMQRepository) ReplayDeadLetters(ctx context.Context, queue string, limit int, prepare func(ctx context.Context, body []byte) error) (int, error) {
	channel, err := r.Channel()
	if err != nil {
		return 0, err
	}

	deadLetters := DeadLetterQueue(queue)
	replayed := 0
	for limit <= 0 || replayed < limit {
		if err := ctx.Err(); err != nil {
			return replayed, err
		}

		msg, ok, err := channel.Get(deadLetters, false)
		if err != nil {
			return replayed, fmt.Errorf("failed to get from %s: %w", deadLetters, err)
		}
		if !ok {
			break
		}

		if prepare != nil {
			if err := prepare(ctx, msg.Body); err != nil {
				_ = msg.Nack(false, true)
				return replayed, fmt.Errorf("failed to prepare dead letter: %w", err)
			}
		}

		if err := r.Publish(ctx, queue, msg.Body); err != nil {
			_ = msg.Nack(false, true)
			return replayed, fmt.Errorf("failed to republish dead letter: %w", err)
		}
		if err := msg.Ack(false); err != nil {
			return replayed, fmt.Errorf("failed to ack dead letter: %w", err)
		}
		replayed++
	}

	r.logger.Info().
		Str("queue", queue).
		Int("replayed", replayed).
		Msg("Dead letters replayed")

	return replayed, nil
}

func (r *rabbitMQRepository) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.closeLocked()
	return nil
}

func (r *rabbitMQRepository) closeLocked() {
	if r.channel != nil {
		if err := r.channel.Close(); err != nil && err != amqp091.ErrClosed {
			r.logger.Error().Err(err).Msg("Failed to close RabbitMQ channel")
		}
		r.channel = nil
	}

	if r.conn != nil {
		if err := r.conn.Close(); err != nil && err != amqp091.ErrClosed {
			r.logger.Error().Err(err).Msg("Failed to close RabbitMQ connection")
		}
		r.conn = nil
	}
}
