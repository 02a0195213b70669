package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/SergeiKhy/linktrack/internal/service"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const healthTimeout = 2 * time.Second

// Pinger зависимость, доступность которой проверяет health
type Pinger interface {
	Ping(ctx context.Context) error
}

type HealthHandler struct {
	checks   map[string]Pinger
	recorder service.AccessRecorder
	logger   *zap.Logger
}

// NewHealthHandler recorder может быть nil: тогда состояние очереди записей не выводится
func NewHealthHandler(checks map[string]Pinger, recorder service.AccessRecorder, logger *zap.Logger) *HealthHandler {
	return &HealthHandler{checks: checks, recorder: recorder, logger: logger}
}

// Check godoc
// @Summary Health check
// @Description Ping PostgreSQL and Redis, report the access record queue
// @Tags service
// @Produce json
// @Success 200 {object} map[string]any
// @Failure 503 {object} map[string]any
// @Router /api/v1/health [get]
func (h *HealthHandler) Check(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), healthTimeout)
	defer cancel()

	status := http.StatusOK
	checks := make(map[string]string, len(h.checks))
	for name, p := range h.checks {
		if err := p.Ping(ctx); err != nil {
			h.logger.Warn("Health check failed", zap.String("dependency", name), zap.Error(err))
			checks[name] = "down"
			status = http.StatusServiceUnavailable
			continue
		}
		checks[name] = "up"
	}

	result := "healthy"
	if status != http.StatusOK {
		result = "unhealthy"
	}
	body := gin.H{"status": result, "checks": checks}
	if h.recorder != nil {
		body["accessRecorder"] = h.recorder.Stats()
	}
	c.JSON(status, body)
}
