package broker

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/SergeiKhy/linktrack/internal/models"
	"github.com/SergeiKhy/linktrack/internal/repository"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// Параметры пакетной записи по умолчанию
const (
	DefaultBatchSize     = 100
	DefaultFlushInterval = 2 * time.Second
	batchWriteTimeout    = 10 * time.Second
)

var ErrDeliveriesClosed = errors.New("rabbitmq deliveries channel closed")

// BatchWriter сохраняет пачку записей одной транзакцией
type BatchWriter interface {
	InsertBatch(ctx context.Context, logs []*models.AccessLog) error
}

type ConsumerOptions struct {
	BatchSize     int
	FlushInterval time.Duration
}

// Consumer собирает сообщения в пачки: по BatchSize штук или раз в FlushInterval.
// Успешная запись подтверждает всю пачку, ошибка соединения возвращает её в очередь.
// Если база отвергла данные, пачка пишется по одной записи и отвергнутые удаляются.
type Consumer struct {
	writer BatchWriter
	opts   ConsumerOptions
	logger *zap.Logger
}

func NewConsumer(writer BatchWriter, opts ConsumerOptions, logger *zap.Logger) *Consumer {
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	if opts.FlushInterval <= 0 {
		opts.FlushInterval = DefaultFlushInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Consumer{writer: writer, opts: opts, logger: logger}
}

// Run читает deliveries до отмены ctx или закрытия канала.
// Накопленная пачка сохраняется перед выходом.
func (c *Consumer) Run(ctx context.Context, deliveries <-chan amqp.Delivery) error {
	ticker := time.NewTicker(c.opts.FlushInterval)
	defer ticker.Stop()

	logs := make([]*models.AccessLog, 0, c.opts.BatchSize)
	pending := make([]amqp.Delivery, 0, c.opts.BatchSize)

	flush := func() {
		c.process(logs, pending)
		logs = make([]*models.AccessLog, 0, c.opts.BatchSize)
		pending = make([]amqp.Delivery, 0, c.opts.BatchSize)
	}

	for {
		select {
		case <-ctx.Done():
			flush()
			return nil

		case d, ok := <-deliveries:
			if !ok {
				flush()
				return ErrDeliveriesClosed
			}

			var log models.AccessLog
			if err := json.Unmarshal(d.Body, &log); err != nil {
				c.logger.Error("Не удалось разобрать сообщение, отклоняем", zap.Error(err))
				rejectedTotal.Inc()
				if err := d.Reject(false); err != nil {
					c.logger.Warn("Ошибка reject", zap.Error(err))
				}
				continue
			}

			logs = append(logs, &log)
			pending = append(pending, d)

			if len(logs) >= c.opts.BatchSize {
				flush()
				ticker.Reset(c.opts.FlushInterval)
			}

		case <-ticker.C:
			if len(logs) > 0 {
				c.logger.Debug("Сброс пачки по таймеру", zap.Int("count", len(logs)))
				flush()
			}
		}
	}
}

func (c *Consumer) process(logs []*models.AccessLog, deliveries []amqp.Delivery) {
	if len(logs) == 0 {
		return
	}

	// пачка пишется и при остановке воркера
	ctx, cancel := context.WithTimeout(context.Background(), batchWriteTimeout)
	defer cancel()

	err := c.writer.InsertBatch(ctx, logs)
	switch {
	case err == nil:
	case repository.IsDataError(err):
		c.logger.Warn("Пачка содержит некорректную запись, сохраняем по одной",
			zap.Int("count", len(logs)),
			zap.Error(err),
		)
		batchesTotal.WithLabelValues("split").Inc()
		c.processEach(ctx, logs, deliveries)
		return
	default:
		c.logger.Error("Не удалось сохранить пачку, возвращаем в очередь",
			zap.Int("count", len(logs)),
			zap.Error(err),
		)
		batchesTotal.WithLabelValues("requeued").Inc()
		for _, d := range deliveries {
			if err := d.Nack(false, true); err != nil {
				c.logger.Warn("Ошибка nack", zap.Error(err))
			}
		}
		return
	}

	batchesTotal.WithLabelValues("ok").Inc()
	for _, d := range deliveries {
		if err := d.Ack(false); err != nil {
			c.logger.Warn("Ошибка ack", zap.Error(err))
		}
	}
	c.logger.Info("Пачка сохранена", zap.Int("count", len(logs)))
}

// processEach пишет записи по одной: отвергнутая базой запись удаляется из очереди,
// остальные ошибки возвращают сообщение в очередь
func (c *Consumer) processEach(ctx context.Context, logs []*models.AccessLog, deliveries []amqp.Delivery) {
	for i, log := range logs {
		d := deliveries[i]
		err := c.writer.InsertBatch(ctx, []*models.AccessLog{log})
		switch {
		case err == nil:
			if err := d.Ack(false); err != nil {
				c.logger.Warn("Ошибка ack", zap.Error(err))
			}
		case repository.IsDataError(err):
			c.logger.Error("Запись отвергнута базой, удаляем из очереди",
				zap.String("entity_id", log.EntityID),
				zap.Error(err),
			)
			rejectedTotal.Inc()
			if err := d.Reject(false); err != nil {
				c.logger.Warn("Ошибка reject", zap.Error(err))
			}
		default:
			if err := d.Nack(false, true); err != nil {
				c.logger.Warn("Ошибка nack", zap.Error(err))
			}
		}
	}
}
