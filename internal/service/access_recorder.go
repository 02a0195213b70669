package service

import (
	"context"
	"sync"
	"time"

	"github.com/SergeiKhy/linktrack/internal/models"
	"go.uber.org/zap"
)

// Константы worker pool
const (
	DefaultRecorderWorkers = 3
	DefaultRecorderBuffer  = 1000
	writeTimeout           = 5 * time.Second
)

// AccessSink принимает готовую запись: база напрямую или брокер
type AccessSink interface {
	Store(ctx context.Context, log *models.AccessLog) error
}

// AccessSinkFunc позволяет использовать функцию как AccessSink
type AccessSinkFunc func(ctx context.Context, log *models.AccessLog) error

func (f AccessSinkFunc) Store(ctx context.Context, log *models.AccessLog) error {
	return f(ctx, log)
}

// AccessRecorder асинхронно сохраняет записи о переходах.
// Submit никогда не блокирует запрос, ошибки записи только логируются.
type AccessRecorder interface {
	Start()
	Stop()
	Submit(log *models.AccessLog)
	Stats() RecorderStats
}

type accessRecorder struct {
	sink        AccessSink
	logger      *zap.Logger
	queue       chan *models.AccessLog
	workerCount int

	mu       sync.RWMutex // защищает stopped и закрытие queue
	stopped  bool
	wg       sync.WaitGroup // воркеры
	overflow sync.WaitGroup // записи в обход очереди
}

// NewAccessRecorder создаёт worker pool поверх sink
func NewAccessRecorder(sink AccessSink, workers, buffer int, logger *zap.Logger) AccessRecorder {
	if workers <= 0 {
		workers = DefaultRecorderWorkers
	}
	if buffer <= 0 {
		buffer = DefaultRecorderBuffer
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &accessRecorder{
		sink:        sink,
		logger:      logger,
		queue:       make(chan *models.AccessLog, buffer),
		workerCount: workers,
	}
}

// Start запускает воркеры
func (p *accessRecorder) Start() {
	p.logger.Info("Запуск воркеров записи переходов", zap.Int("count", p.workerCount))

	for i := 0; i < p.workerCount; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
}

// Stop дожидается записи всего, что уже принято
func (p *accessRecorder) Stop() {
	p.logger.Info("Остановка записи переходов...")

	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	close(p.queue)
	p.mu.Unlock()

	p.wg.Wait()
	p.overflow.Wait()
	p.logger.Info("Запись переходов остановлена")
}

func (p *accessRecorder) worker(id int) {
	defer p.wg.Done()

	p.logger.Debug("Воркер записи переходов запущен", zap.Int("id", id))

	for log := range p.queue {
		p.write(log)
	}

	p.logger.Debug("Воркер записи переходов остановлен", zap.Int("id", id))
}

// Submit ставит запись в очередь. При заполненном буфере запись уходит
// в отдельную горутину: очередь фактически не ограничена.
func (p *accessRecorder) Submit(log *models.AccessLog) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.stopped {
		p.logger.Warn("Запись перехода после остановки, пишем синхронно",
			zap.String("entity_id", log.EntityID),
		)
		p.write(log)
		return
	}

	select {
	case p.queue <- log:
	default:
		accessQueueOverflowTotal.Inc()
		p.logger.Warn("Буфер записи переходов заполнен, пишем в обход очереди",
			zap.String("entity_id", log.EntityID),
		)
		p.overflow.Add(1)
		go func() {
			defer p.overflow.Done()
			p.write(log)
		}()
	}
}

// write всегда использует свой контекст: отключение клиента не отменяет запись
func (p *accessRecorder) write(log *models.AccessLog) {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	if err := p.sink.Store(ctx, log); err != nil {
		accessRecordsTotal.WithLabelValues("failed").Inc()
		p.logger.Error("Не удалось записать переход",
			zap.String("entity_kind", string(log.EntityKind)),
			zap.String("entity_id", log.EntityID),
			zap.Error(err),
		)
		return
	}
	accessRecordsTotal.WithLabelValues("stored").Inc()
}

// Stats состояние очереди для мониторинга
func (p *accessRecorder) Stats() RecorderStats {
	return RecorderStats{
		BufferSize:  cap(p.queue),
		BufferUsed:  len(p.queue),
		WorkerCount: p.workerCount,
	}
}

// RecorderStats статистика очереди worker pool
type RecorderStats struct {
	BufferSize  int `json:"buffer_size"`
	BufferUsed  int `json:"buffer_used"`
	WorkerCount int `json:"worker_count"`
}
