package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"chorewalk/pkg/logger"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

const (
	QueueNameAudioProcessing = "audio_processing"
	ExchangeName             = "chorewalk"

	// Deliveries rejected without requeue land here for inspection
	DeadLetterExchange = "chorewalk.dead"
	DeadLetterQueue    = QueueNameAudioProcessing + ".dead"

	publishTimeout = 5 * time.Second
)

// ErrPermanent marks a handler failure that must not be redelivered
var ErrPermanent = errors.New("permanent failure")

// Handler processes one message body
type Handler func(ctx context.Context, body []byte) error

type RabbitMQ struct {
	conn    *amqp.Connection
	channel *amqp.Channel
}

// NewRabbitMQ dials url and declares the work and dead-letter topology
func NewRabbitMQ(url string) (*RabbitMQ, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	if err := declareTopology(ch); err != nil {
		ch.Close()
		conn.Close()
		return nil, err
	}

	logger.Info("RabbitMQ connected",
		zap.String("exchange", ExchangeName),
		zap.String("queue", QueueNameAudioProcessing))

	return &RabbitMQ{conn: conn, channel: ch}, nil
}

type binding struct {
	exchange string
	queue    string
	args     amqp.Table
}

func topology() []binding {
	return []binding{
		{exchange: DeadLetterExchange, queue: DeadLetterQueue},
		{
			exchange: ExchangeName,
			queue:    QueueNameAudioProcessing,
			args: amqp.Table{
				"x-dead-letter-exchange":    DeadLetterExchange,
				"x-dead-letter-routing-key": DeadLetterQueue,
			},
		},
	}
}

func declareTopology(ch *amqp.Channel) error {
	for _, b := range topology() {
		if err := ch.ExchangeDeclare(b.exchange, amqp.ExchangeDirect, true, false, false, false, nil); err != nil {
			return fmt.Errorf("failed to declare exchange %s: %w", b.exchange, err)
		}
		if _, err := ch.QueueDeclare(b.queue, true, false, false, false, b.args); err != nil {
			return fmt.Errorf("failed to declare queue %s: %w", b.queue, err)
		}
		if err := ch.QueueBind(b.queue, b.queue, b.exchange, false, nil); err != nil {
			return fmt.Errorf("failed to bind queue %s: %w", b.queue, err)
		}
	}
	return nil
}

// Publish sends a persistent JSON message routed by queueName
func (r *RabbitMQ) Publish(ctx context.Context, queueName string, body []byte) error {
	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	msg := amqp.Publishing{
		ContentType:  "application/json",
		Body:         body,
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now(),
	}
	if err := r.channel.PublishWithContext(ctx, ExchangeName, queueName, false, false, msg); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", queueName, err)
	}

	logger.Debug("Message published", zap.String("queue", queueName), zap.Int("size", len(body)))
	return nil
}

func (r *RabbitMQ) PublishJob(ctx context.Context, job *AudioJob) error {
	body, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job %s: %w", job.JobID, err)
	}
	return r.Publish(ctx, QueueNameAudioProcessing, body)
}

// Consume runs handler for each delivery until ctx is done or the broker
// closes the channel. At most prefetch handlers run at once; Consume waits
// for them before returning.
func (r *RabbitMQ) Consume(ctx context.Context, queueName string, prefetch int, handler Handler) error {
	if prefetch <= 0 {
		prefetch = 1
	}

	if err := r.channel.Qos(prefetch, 0, false); err != nil {
		return fmt.Errorf("failed to set QoS: %w", err)
	}

	deliveries, err := r.channel.ConsumeWithContext(ctx, queueName, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("failed to register consumer: %w", err)
	}

	logger.Info("Consuming", zap.String("queue", queueName), zap.Int("prefetch", prefetch))

	slots := make(chan struct{}, prefetch)
	drain := func() {
		for i := 0; i < prefetch; i++ {
			slots <- struct{}{}
		}
	}

	for {
		select {
		case <-ctx.Done():
			drain()
			return nil
		case d, ok := <-deliveries:
			if !ok {
				drain()
				return nil
			}
			slots <- struct{}{}
			go func(d amqp.Delivery) {
				defer func() { <-slots }()
				settle(d, handler(ctx, d.Body))
			}(d)
		}
	}
}

// outcome is how a delivery is settled after its handler returns
type outcome int

const (
	outcomeAck outcome = iota
	outcomeRequeue
	outcomeDeadLetter
)

func outcomeOf(err error) outcome {
	switch {
	case err == nil:
		return outcomeAck
	case errors.Is(err, ErrPermanent):
		return outcomeDeadLetter
	default:
		return outcomeRequeue
	}
}

// acknowledger is the part of amqp.Delivery settle needs
type acknowledger interface {
	Ack(multiple bool) error
	Nack(multiple, requeue bool) error
}

func settle(d acknowledger, err error) {
	var settleErr error
	switch outcomeOf(err) {
	case outcomeAck:
		settleErr = d.Ack(false)
	case outcomeDeadLetter:
		logger.Error("Dead-lettering message", zap.Error(err))
		settleErr = d.Nack(false, false)
	case outcomeRequeue:
		logger.Warn("Requeueing message", zap.Error(err))
		settleErr = d.Nack(false, true)
	}
	if settleErr != nil {
		logger.Error("Failed to settle message", zap.Error(settleErr))
	}
}

func (r *RabbitMQ) Close() error {
	if r.channel != nil {
		r.channel.Close()
	}
	if r.conn != nil {
		return r.conn.Close()
	}
	return nil
}
