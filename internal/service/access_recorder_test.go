package service_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/SergeiKhy/linktrack/internal/models"
	"github.com/SergeiKhy/linktrack/internal/service"
	"github.com/SergeiKhy/linktrack/internal/service/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newLog(entityID string) *models.AccessLog {
	return &models.AccessLog{
		EntityKind: models.EntityQRCode,
		EntityID:   entityID,
		IPHash:     "0123456789abcdef",
		AccessedAt: time.Now(),
	}
}

// TestAccessRecorder_StopDrains Stop возвращается только после записи всех принятых записей
func TestAccessRecorder_StopDrains(t *testing.T) {
	repo := mocks.NewMockAccessLogRepository()
	recorder := service.NewAccessRecorder(service.AccessSinkFunc(repo.Insert), 2, 10, zap.NewNop())
	recorder.Start()

	for i := 0; i < 100; i++ {
		recorder.Submit(newLog("e1"))
	}
	recorder.Stop()

	assert.Len(t, repo.Logs(), 100)
}

// TestAccessRecorder_SubmitNeverBlocks медленный sink не задерживает Submit
func TestAccessRecorder_SubmitNeverBlocks(t *testing.T) {
	release := make(chan struct{})
	var stored atomic.Int32
	sink := service.AccessSinkFunc(func(ctx context.Context, log *models.AccessLog) error {
		<-release
		stored.Add(1)
		return nil
	})

	recorder := service.NewAccessRecorder(sink, 1, 1, zap.NewNop())
	recorder.Start()

	start := time.Now()
	for i := 0; i < 20; i++ {
		recorder.Submit(newLog("e1"))
	}
	assert.Less(t, time.Since(start), time.Second)

	close(release)
	recorder.Stop()
	assert.Equal(t, int32(20), stored.Load(), "переполнение очереди не теряет записи")
}

// TestAccessRecorder_FailureIsSwallowed ошибка sink только логируется
func TestAccessRecorder_FailureIsSwallowed(t *testing.T) {
	var calls atomic.Int32
	sink := service.AccessSinkFunc(func(ctx context.Context, log *models.AccessLog) error {
		calls.Add(1)
		return errors.New("db down")
	})

	recorder := service.NewAccessRecorder(sink, 1, 10, zap.NewNop())
	recorder.Start()
	recorder.Submit(newLog("e1"))
	recorder.Stop()

	assert.Equal(t, int32(1), calls.Load(), "без повторных попыток")
}

// TestAccessRecorder_FreshContext запись не зависит от контекста запроса
func TestAccessRecorder_FreshContext(t *testing.T) {
	var deadline atomic.Bool
	sink := service.AccessSinkFunc(func(ctx context.Context, log *models.AccessLog) error {
		_, ok := ctx.Deadline()
		deadline.Store(ok && ctx.Err() == nil)
		return nil
	})

	recorder := service.NewAccessRecorder(sink, 1, 10, zap.NewNop())
	recorder.Start()
	recorder.Submit(newLog("e1"))
	recorder.Stop()

	assert.True(t, deadline.Load())
}

// TestAccessRecorder_SubmitAfterStop поздняя запись всё равно сохраняется
func TestAccessRecorder_SubmitAfterStop(t *testing.T) {
	repo := mocks.NewMockAccessLogRepository()
	recorder := service.NewAccessRecorder(service.AccessSinkFunc(repo.Insert), 1, 10, zap.NewNop())
	recorder.Start()
	recorder.Stop()
	recorder.Stop()

	recorder.Submit(newLog("late"))
	require.Len(t, repo.Logs(), 1)
	assert.Equal(t, "late", repo.Logs()[0].EntityID)
}

// TestAccessRecorder_ConcurrentSubmit параллельные Submit из многих горутин
func TestAccessRecorder_ConcurrentSubmit(t *testing.T) {
	repo := mocks.NewMockAccessLogRepository()
	recorder := service.NewAccessRecorder(service.AccessSinkFunc(repo.Insert), 3, 5, zap.NewNop())
	recorder.Start()

	var wg sync.WaitGroup
	for g := 0; g < 10; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				recorder.Submit(newLog("e1"))
			}
		}()
	}
	wg.Wait()
	recorder.Stop()

	assert.Len(t, repo.Logs(), 500)
	stats := recorder.Stats()
	assert.Equal(t, 3, stats.WorkerCount)
	assert.Equal(t, 5, stats.BufferSize)
}
