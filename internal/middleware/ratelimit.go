package middleware

import (
	"math"
	"net/http"
	"sync"
	"time"

	"github.com/SergeiKhy/linktrack/internal/tracking"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/time/rate"
)

var rateLimitedTotal = promauto.NewCounter(prometheus.CounterOpts{
	Name: "http_rate_limited_total",
	Help: "Requests rejected by the rate limiter.",
})

// RateLimiterConfig конфигурация rate limiter
type RateLimiterConfig struct {
	RequestsPerSecond float64       // Количество запросов в секунду
	BurstSize         int           // Максимальный размер burst
	CleanupInterval   time.Duration // Интервал очистки неактивных посетителей
}

// DefaultRateLimiterConfig конфигурация по умолчанию
var DefaultRateLimiterConfig = RateLimiterConfig{
	RequestsPerSecond: 10,
	BurstSize:         20,
	CleanupInterval:   time.Minute,
}

// visitor token bucket одного клиента
type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter ограничивает запросы по алгоритму Token Bucket.
// Клиент определяется так же, как в трекинге: X-Forwarded-For, X-Real-IP, CF-Connecting-IP.
type RateLimiter struct {
	config   RateLimiterConfig
	visitors map[string]*visitor
	mu       sync.Mutex
	done     chan struct{}
	stopOnce sync.Once
}

// NewRateLimiter создаёт rate limiter и запускает очистку неактивных клиентов
func NewRateLimiter(config RateLimiterConfig) *RateLimiter {
	if config.RequestsPerSecond <= 0 {
		config.RequestsPerSecond = DefaultRateLimiterConfig.RequestsPerSecond
	}
	if config.BurstSize <= 0 {
		config.BurstSize = DefaultRateLimiterConfig.BurstSize
	}
	if config.CleanupInterval <= 0 {
		config.CleanupInterval = DefaultRateLimiterConfig.CleanupInterval
	}

	rl := &RateLimiter{
		config:   config,
		visitors: make(map[string]*visitor),
		done:     make(chan struct{}),
	}

	go rl.cleanupLoop()

	return rl
}

// Stop останавливает фоновую очистку
func (rl *RateLimiter) Stop() {
	rl.stopOnce.Do(func() { close(rl.done) })
}

func (rl *RateLimiter) cleanupLoop() {
	ticker := time.NewTicker(rl.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-rl.done:
			return
		case <-ticker.C:
			rl.cleanup()
		}
	}
}

// cleanup удаляет клиентов, не активных три интервала подряд
func (rl *RateLimiter) cleanup() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	for key, v := range rl.visitors {
		if time.Since(v.lastSeen) > rl.config.CleanupInterval*3 {
			delete(rl.visitors, key)
		}
	}
}

func (rl *RateLimiter) getLimiter(key string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	if v, exists := rl.visitors[key]; exists {
		v.lastSeen = time.Now()
		return v.limiter
	}

	limiter := rate.NewLimiter(rate.Limit(rl.config.RequestsPerSecond), rl.config.BurstSize)
	rl.visitors[key] = &visitor{
		limiter:  limiter,
		lastSeen: time.Now(),
	}

	return limiter
}

// Middleware ограничивает запросы по IP клиента
func (rl *RateLimiter) Middleware() gin.HandlerFunc {
	return rl.MiddlewareWithKey(nil)
}

// MiddlewareWithKey ограничивает запросы по ключу getKey (например, API ключу).
// Пустой ключ заменяется IP клиента.
func (rl *RateLimiter) MiddlewareWithKey(getKey func(*gin.Context) string) gin.HandlerFunc {
	retryAfter := int(math.Ceil(1 / rl.config.RequestsPerSecond))

	return func(c *gin.Context) {
		var key string
		if getKey != nil {
			key = getKey(c)
		}
		if key == "" {
			key = tracking.ClientIP(c.Request.Header)
			if key == tracking.UnknownIP {
				key = c.ClientIP()
			}
		}

		if !rl.getLimiter(key).Allow() {
			rateLimitedTotal.Inc()
			c.JSON(http.StatusTooManyRequests, gin.H{
				"error":       "rate_limit_exceeded",
				"message":     "Слишком много запросов, попробуйте позже",
				"retry_after": retryAfter,
			})
			c.Abort()
			return
		}

		c.Next()
	}
}
