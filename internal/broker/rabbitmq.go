package broker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/SergeiKhy/linktrack/internal/config"
	"github.com/SergeiKhy/linktrack/internal/models"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

var ErrNotConfigured = errors.New("rabbitmq url is not configured")

// RabbitMQ соединение и канал с объявленной durable-очередью записей о переходах
type RabbitMQ struct {
	conn  *amqp.Connection
	ch    *amqp.Channel
	queue string
}

func NewRabbitMQ(cfg config.RabbitMQConfig) (*RabbitMQ, error) {
	if cfg.URL == "" {
		return nil, ErrNotConfigured
	}

	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to rabbitmq: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	q, err := ch.QueueDeclare(
		cfg.Queue,
		true,  // durable
		false, // autoDelete
		false, // exclusive
		false, // noWait
		nil,
	)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to declare queue %q: %w", cfg.Queue, err)
	}

	return &RabbitMQ{conn: conn, ch: ch, queue: q.Name}, nil
}

// Consume подписывается на очередь с ручным ack и prefetch
func (r *RabbitMQ) Consume(prefetch int) (<-chan amqp.Delivery, error) {
	if err := r.ch.Qos(prefetch, 0, false); err != nil {
		return nil, fmt.Errorf("failed to set qos: %w", err)
	}
	msgs, err := r.ch.Consume(r.queue, "", false, false, false, false, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to register consumer: %w", err)
	}
	return msgs, nil
}

func (r *RabbitMQ) Close() error {
	chErr := r.ch.Close()
	connErr := r.conn.Close()
	return errors.Join(chErr, connErr)
}

// channel часть amqp.Channel, нужная издателю
type channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// Publisher отправляет записи о переходах в очередь. Реализует service.AccessSink.
type Publisher struct {
	ch     channel
	queue  string
	mu     sync.Mutex
	logger *zap.Logger
}

func NewPublisher(r *RabbitMQ, logger *zap.Logger) *Publisher {
	return newPublisher(r.ch, r.queue, logger)
}

func newPublisher(ch channel, queue string, logger *zap.Logger) *Publisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Publisher{ch: ch, queue: queue, logger: logger}
}

// Store публикует запись как persistent JSON-сообщение
func (p *Publisher) Store(ctx context.Context, log *models.AccessLog) error {
	body, err := json.Marshal(log)
	if err != nil {
		return fmt.Errorf("failed to encode access log: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	err = p.ch.PublishWithContext(ctx, "", p.queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    log.AccessedAt,
		Body:         body,
	})
	if err != nil {
		publishedTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("failed to publish access log: %w", err)
	}
	publishedTotal.WithLabelValues("ok").Inc()
	return nil
}
