package audit

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// DefaultQueue is the queue audit events are published to.
const DefaultQueue = "lexauth.audit"

// Publisher is the subset of *amqp.Channel the AMQP sink needs.
type Publisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// AMQPSink publishes each event as a persistent JSON message. Publish
// failures are logged and dropped.
type AMQPSink struct {
	pub      Publisher
	exchange string
	key      string
	logger   *slog.Logger
	timeout  time.Duration

	closeFn func() error
}

// NewAMQPSink publishes through pub to exchange with routing key key.
func NewAMQPSink(pub Publisher, exchange, key string, logger *slog.Logger) *AMQPSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &AMQPSink{
		pub:      pub,
		exchange: exchange,
		key:      key,
		logger:   logger,
		timeout:  5 * time.Second,
	}
}

// DialAMQPSink connects to url and declares a durable queue. The sink
// publishes through the default exchange with the queue name as key.
func DialAMQPSink(url, queue string, logger *slog.Logger) (*AMQPSink, error) {
	if queue == "" {
		queue = DefaultQueue
	}
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, err
	}

	sink := NewAMQPSink(ch, "", queue, logger)
	sink.closeFn = func() error {
		_ = ch.Close()
		return conn.Close()
	}
	return sink, nil
}

func (s *AMQPSink) Emit(ctx context.Context, event Event) {
	body, err := json.Marshal(event)
	if err != nil {
		s.logger.Warn("lexauth: audit marshal failed", "error", err)
		return
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	msg := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    event.ID,
		Timestamp:    event.Timestamp,
		Type:         event.Type,
		Body:         body,
	}
	if err := s.pub.PublishWithContext(ctx, s.exchange, s.key, false, false, msg); err != nil {
		s.logger.Warn("lexauth: audit publish failed", "event_type", event.Type, "error", err)
	}
}

// Close releases the broker connection opened by DialAMQPSink.
func (s *AMQPSink) Close() error {
	if s == nil || s.closeFn == nil {
		return nil
	}
	return s.closeFn()
}
