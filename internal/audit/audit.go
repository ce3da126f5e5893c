package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/therealutkarshpriyadarshi/streamgate/internal/config"
	"github.com/therealutkarshpriyadarshi/streamgate/internal/logging"
	"github.com/therealutkarshpriyadarshi/streamgate/internal/metrics"
)

const (
	ExchangeName = "streamgate.audit"
	QueueName    = "access_audit"
	routingKey   = "access.decision"
)

// Event is one access-attempt audit record. Every resolver call emits one,
// regardless of outcome.
type Event struct {
	ID        string    `json:"id"`
	VideoID   string    `json:"video_id"`
	ViewerID  *string   `json:"viewer_id,omitempty"`
	Allow     bool      `json:"allow"`
	Reason    string    `json:"reason"`
	IPHash    string    `json:"ip_hash,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Sink receives audit events. Emission is fire-and-forget: implementations
// may fail, and callers must swallow those failures.
type Sink interface {
	Emit(ctx context.Context, event Event) error
}

// AMQPSink publishes audit events to a RabbitMQ exchange
type AMQPSink struct {
	conn    *amqp.Connection
	channel *amqp.Channel
}

// NewAMQPSink connects to RabbitMQ and declares the audit exchange and queue
func NewAMQPSink(cfg config.QueueConfig) (*AMQPSink, error) {
	url := fmt.Sprintf("amqp://%s:%s@%s:%d%s",
		cfg.User, cfg.Password, cfg.Host, cfg.Port, cfg.Vhost)

	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	err = channel.ExchangeDeclare(
		ExchangeName,
		"direct",
		true,  // durable
		false, // auto-deleted
		false, // internal
		false, // no-wait
		nil,   // arguments
	)
	if err != nil {
		channel.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to declare exchange: %w", err)
	}

	queue, err := channel.QueueDeclare(
		QueueName,
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,   // arguments
	)
	if err != nil {
		channel.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to declare queue: %w", err)
	}

	if err := channel.QueueBind(queue.Name, routingKey, ExchangeName, false, nil); err != nil {
		channel.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to bind queue: %w", err)
	}

	return &AMQPSink{conn: conn, channel: channel}, nil
}

// Emit publishes one audit event
func (s *AMQPSink) Emit(ctx context.Context, event Event) error {
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal audit event: %w", err)
	}

	err = s.channel.PublishWithContext(ctx,
		ExchangeName,
		routingKey,
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			Body:         body,
			DeliveryMode: amqp.Persistent,
			Timestamp:    event.Timestamp,
		},
	)
	if err != nil {
		return fmt.Errorf("failed to publish audit event: %w", err)
	}

	return nil
}

// Close closes the AMQP channel and connection
func (s *AMQPSink) Close() error {
	if s.channel != nil {
		s.channel.Close()
	}
	if s.conn != nil {
		return s.conn.Close()
	}
	return nil
}

// LogSink writes audit events to the structured log. Used when no broker is
// configured, and as the fallback of last resort.
type LogSink struct {
	logger *logging.Logger
}

// NewLogSink creates a log-backed sink
func NewLogSink(logger *logging.Logger) *LogSink {
	return &LogSink{logger: logger}
}

// Emit logs one audit event
func (s *LogSink) Emit(ctx context.Context, event Event) error {
	s.logger.LogAccessDecision(event.VideoID, event.ViewerID, event.Allow, event.Reason)
	return nil
}

// Emitter wraps a Sink with the swallow-all-failures policy the access
// resolver requires: a failed emission is counted and logged, never returned.
type Emitter struct {
	sink   Sink
	logger *logging.Logger
}

// NewEmitter creates an emitter over the given sink
func NewEmitter(sink Sink, logger *logging.Logger) *Emitter {
	return &Emitter{sink: sink, logger: logger}
}

// Emit fires the event and swallows any failure
func (e *Emitter) Emit(ctx context.Context, event Event) {
	if err := e.sink.Emit(ctx, event); err != nil {
		metrics.AuditEmitFailuresTotal.Inc()
		e.logger.WithError(err).Warn("Audit emission failed")
	}
}
