package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/SergeiKhy/linktrack/internal/broker"
	"github.com/SergeiKhy/linktrack/internal/config"
	"github.com/SergeiKhy/linktrack/internal/geoip"
	"github.com/SergeiKhy/linktrack/internal/handler"
	applog "github.com/SergeiKhy/linktrack/internal/logger"
	"github.com/SergeiKhy/linktrack/internal/middleware"
	"github.com/SergeiKhy/linktrack/internal/qr"
	"github.com/SergeiKhy/linktrack/internal/repository"
	"github.com/SergeiKhy/linktrack/internal/service"
	"github.com/SergeiKhy/linktrack/internal/tracking"
	"go.uber.org/zap"
)

func main() {
	// Загрузка конфига
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Инициализация логгера
	logger, err := applog.New(cfg.App.LogLevel)
	if err != nil {
		log.Fatalf("Failed to init logger: %v", err)
	}
	defer logger.Sync()

	// Миграции
	if err := repository.Migrate(cfg.DB, logger); err != nil {
		logger.Fatal("Failed to apply migrations", zap.Error(err))
	}

	// Подключение к БД (postgres)
	db, err := repository.NewPostgresDB(cfg.DB)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()
	logger.Info("Connected to PostgreSQL")

	// Подключение к Redis
	redis, err := repository.NewRedisClient(cfg.Redis)
	if err != nil {
		logger.Fatal("Failed to connect to Redis", zap.Error(err))
	}
	defer redis.Close()
	logger.Info("Connected to Redis")

	// Инициализация репозиториев
	qrRepo := repository.NewQRCodeRepository(db)
	affiliateRepo := repository.NewAffiliateRepository(db)
	accessRepo := repository.NewAccessLogRepository(db)
	cacheRepo := repository.NewCacheRepository(redis)

	// Трекинг и GeoIP
	anonymizer := tracking.NewIPAnonymizer(cfg.Tracking.IPHashSalt)
	if anonymizer.UsingDefaultSalt() {
		logger.Warn("IP_HASH_SALT is not set, using the default salt")
	}
	collector := tracking.NewCollector(anonymizer)

	providers, err := geoip.ProvidersByName(cfg.GeoIP.Providers, &http.Client{Timeout: cfg.GeoIP.ProviderTimeout})
	if err != nil {
		logger.Fatal("Invalid GeoIP providers", zap.Error(err))
	}
	geo := geoip.NewChainResolver(providers, geoip.Options{
		Timeout:         cfg.GeoIP.Timeout,
		ProviderTimeout: cfg.GeoIP.ProviderTimeout,
		CacheSize:       cfg.GeoIP.CacheSize,
		CacheTTL:        cfg.GeoIP.CacheTTL,
	}, logger)

	// Инициализация сервисов
	targets := service.NewTargetResolver(qrRepo, affiliateRepo, cacheRepo, cfg.Cache.EntityTTL, logger)
	qrService := service.NewQRCodeService(qrRepo, accessRepo, targets,
		qr.NewRenderer(qr.SkipMatrixSource{}, logger),
		service.QRCodeServiceConfig{
			BaseURL:        cfg.App.BaseURL,
			ReportTimezone: cfg.App.ReportTimezone,
			ImageCacheSize: cfg.Cache.QRImageSize,
			ImageCacheTTL:  cfg.Cache.QRImageTTL,
		},
		logger,
	)
	affiliateService := service.NewAffiliateService(affiliateRepo, accessRepo, targets,
		cfg.Affiliate.AllowedHosts, cfg.App.ReportTimezone, logger)
	redirectService := service.NewRedirectService(targets, accessRepo, collector, geo,
		service.RedirectPaths{
			NotFound: cfg.Redirect.NotFoundPath,
			Inactive: cfg.Redirect.InactivePath,
			Error:    cfg.Redirect.ErrorPath,
		},
		logger,
	)

	// Куда пишутся записи о переходах: напрямую в БД или через RabbitMQ
	var sink service.AccessSink = service.AccessSinkFunc(accessRepo.Insert)
	if cfg.AccessLog.Sink == "rabbitmq" {
		mq, err := broker.NewRabbitMQ(cfg.RabbitMQ)
		if err != nil {
			logger.Fatal("Failed to connect to RabbitMQ", zap.Error(err))
		}
		defer mq.Close()
		sink = broker.NewPublisher(mq, logger)
		logger.Info("Access logs are published to RabbitMQ", zap.String("queue", cfg.RabbitMQ.Queue))
	}

	// Фоновая запись переходов (Worker Pool)
	recorder := service.NewAccessRecorder(sink, cfg.AccessLog.Workers, cfg.AccessLog.BufferSize, logger)
	recorder.Start()
	defer recorder.Stop()

	// Инициализация middleware
	rateLimiter := middleware.NewRateLimiter(middleware.RateLimiterConfig{
		RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
		BurstSize:         cfg.RateLimit.BurstSize,
		CleanupInterval:   time.Minute,
	})
	defer rateLimiter.Stop()

	apiKey := middleware.NewAPIKey(middleware.APIKeyConfig{ValidKeys: cfg.Auth.APIKeys})
	if apiKey.Enabled() {
		logger.Info("API key authentication enabled", zap.Int("keys_count", len(cfg.Auth.APIKeys)))
	}

	// Настройка роутера
	router := handler.NewRouter(handler.Services{
		QRCodes:    qrService,
		Affiliates: affiliateService,
		Redirects:  redirectService,
		Recorder:   recorder,
		Health: map[string]handler.Pinger{
			"postgres": db,
			"redis":    redis,
		},
	}, rateLimiter, apiKey, logger)

	// Запуск сервера
	srv := &http.Server{
		Addr:         ":" + cfg.App.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Запуск в горутине
	go func() {
		logger.Info("Server starting", zap.String("port", cfg.App.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// Graceful Shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	// recorder.Stop через defer дописывает очередь после остановки сервера
	logger.Info("Server exited")
}
