package handler

import (
	"github.com/SergeiKhy/linktrack/internal/middleware"
	"github.com/SergeiKhy/linktrack/internal/service"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Services зависимости HTTP-слоя
type Services struct {
	QRCodes    service.QRCodeService
	Affiliates service.AffiliateService
	Redirects  service.RedirectService
	Recorder   service.AccessRecorder
	Health     map[string]Pinger
}

func NewRouter(
	services Services,
	rateLimiter *middleware.RateLimiter,
	apiKey *middleware.APIKey,
	logger *zap.Logger,
) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.Metrics())
	router.Use(middleware.RequestLogger(logger))

	redirectHandler := NewRedirectHandler(services.Redirects, services.Recorder, logger)
	qrHandler := NewQRCodeHandler(services.QRCodes, logger)
	affiliateHandler := NewAffiliateHandler(services.Affiliates, logger)
	healthHandler := NewHealthHandler(services.Health, services.Recorder, logger)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Редиректы: без API ключа, с rate limiting
	redirects := router.Group("/")
	if rateLimiter != nil {
		redirects.Use(rateLimiter.Middleware())
	}
	{
		redirects.GET("/r/:id", redirectHandler.QRCode)
		redirects.GET("/a/:slug", redirectHandler.Affiliate)
	}

	// API v.1
	v1 := router.Group("/api/v1")
	if rateLimiter != nil {
		v1.Use(rateLimiter.Middleware())
	}
	{
		v1.GET("/health", healthHandler.Check)

		// API Key только для управляющих эндпоинтов
		if apiKey != nil {
			v1.Use(apiKey.Middleware())
			// общий лимит на ключ, с каких бы адресов он ни приходил
			if rateLimiter != nil && apiKey.Enabled() {
				v1.Use(rateLimiter.MiddlewareWithKey(middleware.APIKeyRateKey))
			}
		}

		v1.POST("/qr", qrHandler.Create)
		v1.POST("/qr/preview", qrHandler.Preview)
		v1.GET("/qr", qrHandler.List)
		v1.GET("/qr/:id", qrHandler.Get)
		v1.GET("/qr/:id/image", qrHandler.Image)
		v1.PATCH("/qr/:id/style", qrHandler.UpdateStyle)
		v1.DELETE("/qr/:id", qrHandler.Delete)
		v1.GET("/qr/:id/stats", qrHandler.Stats)

		v1.POST("/affiliate", affiliateHandler.Create)
		v1.GET("/affiliate", affiliateHandler.List)
		v1.GET("/affiliate/:id", affiliateHandler.Get)
		v1.PUT("/affiliate/:id", affiliateHandler.Update)
		v1.DELETE("/affiliate/:id", affiliateHandler.Delete)
	}

	return router
}
