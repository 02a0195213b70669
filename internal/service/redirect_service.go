package service

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/SergeiKhy/linktrack/internal/geoip"
	"github.com/SergeiKhy/linktrack/internal/models"
	"github.com/SergeiKhy/linktrack/internal/repository"
	"github.com/SergeiKhy/linktrack/internal/tracking"
	"go.uber.org/zap"
)

// Исход редиректа
const (
	OutcomeDestination = "destination"
	OutcomeNotFound    = "not_found"
	OutcomeInactive    = "inactive"
	OutcomeError       = "error"
)

const uniquenessTimeout = 2 * time.Second

// RedirectPaths служебные страницы для терминальных исходов
type RedirectPaths struct {
	NotFound string
	Inactive string
	Error    string
}

// Visit решение по одному переходу. Record == nil: записывать нечего.
type Visit struct {
	Location string
	Outcome  string
	Record   *models.AccessLog
}

// RedirectService решает, куда отправить посетителя, и готовит запись о переходе.
// Никогда не возвращает ошибку: любой сбой сводится к редиректу.
type RedirectService interface {
	Visit(ctx context.Context, kind models.EntityKind, key string, r *http.Request) *Visit
}

type redirectService struct {
	targets   TargetResolver
	logRepo   repository.AccessLogRepository
	collector *tracking.Collector
	geo       geoip.Resolver
	paths     RedirectPaths
	logger    *zap.Logger
}

func NewRedirectService(
	targets TargetResolver,
	logRepo repository.AccessLogRepository,
	collector *tracking.Collector,
	geo geoip.Resolver,
	paths RedirectPaths,
	logger *zap.Logger,
) RedirectService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &redirectService{
		targets:   targets,
		logRepo:   logRepo,
		collector: collector,
		geo:       geo,
		paths:     paths,
		logger:    logger,
	}
}

// Visit: поиск цели -> сбор данных -> GeoIP -> проверка уникальности.
// Сбой после нахождения цели не мешает редиректу на неё.
func (s *redirectService) Visit(ctx context.Context, kind models.EntityKind, key string, r *http.Request) *Visit {
	start := time.Now()

	target, err := s.targets.Resolve(ctx, kind, key)
	switch {
	case errors.Is(err, ErrNotFound):
		return s.terminal(kind, s.paths.NotFound, OutcomeNotFound)
	case err != nil:
		s.logger.Error("Ошибка поиска цели редиректа",
			zap.String("kind", string(kind)),
			zap.String("key", key),
			zap.Error(err),
		)
		return s.terminal(kind, s.paths.Error, OutcomeError)
	case !target.IsActive:
		return s.terminal(kind, s.paths.Inactive, OutcomeInactive)
	}

	record := s.track(ctx, target, r)
	if record != nil {
		record.ResponseTimeMs = time.Since(start).Milliseconds()
	}

	redirectsTotal.WithLabelValues(string(kind), OutcomeDestination).Inc()
	return &Visit{
		Location: target.DestinationURL,
		Outcome:  OutcomeDestination,
		Record:   record,
	}
}

func (s *redirectService) terminal(kind models.EntityKind, path, outcome string) *Visit {
	redirectsTotal.WithLabelValues(string(kind), outcome).Inc()
	return &Visit{Location: path, Outcome: outcome}
}

// track собирает запись о переходе. Отмена запроса клиентом не прерывает сбор.
func (s *redirectService) track(ctx context.Context, target *models.Target, r *http.Request) (record *models.AccessLog) {
	defer func() {
		if rec := recover(); rec != nil {
			s.logger.Error("Паника при сборе данных о переходе",
				zap.String("entity_id", target.ID),
				zap.Any("panic", rec),
			)
			record = nil
		}
	}()

	ctx = context.WithoutCancel(ctx)

	data := s.collector.Collect(r)
	if !data.HasCDNGeo() {
		data.MergeGeo(s.geo.Resolve(ctx, data.IP))
	}

	checkCtx, cancel := context.WithTimeout(ctx, uniquenessTimeout)
	defer cancel()

	seen, err := s.logRepo.HasPriorAccess(checkCtx, target.Kind, target.ID, data.IPHash)
	if err != nil {
		s.logger.Warn("Не удалось проверить уникальность, переход не записывается",
			zap.String("entity_id", target.ID),
			zap.Error(err),
		)
		return nil
	}

	return newAccessLog(target, data, !seen)
}

func newAccessLog(target *models.Target, d *tracking.TrackingData, unique bool) *models.AccessLog {
	return &models.AccessLog{
		EntityKind:      target.Kind,
		EntityID:        target.ID,
		IPHash:          d.IPHash,
		SessionID:       d.SessionID,
		IsUniqueVisitor: unique,
		UserAgent:       d.UserAgent,
		Device:          d.Device,
		IsMobile:        d.IsMobile,
		Browser:         d.Browser,
		BrowserVersion:  d.BrowserVersion,
		Platform:        d.Platform,
		OSVersion:       d.OSVersion,
		Country:         d.Country,
		Region:          d.Region,
		City:            d.City,
		Timezone:        d.Timezone,
		Latitude:        d.Latitude,
		Longitude:       d.Longitude,
		Referer:         d.Referer,
		UTMSource:       d.UTMSource,
		UTMMedium:       d.UTMMedium,
		UTMCampaign:     d.UTMCampaign,
		UTMTerm:         d.UTMTerm,
		UTMContent:      d.UTMContent,
		SocialNetwork:   d.SocialNetwork,
		Language:        d.Language,
		ScanMethod:      d.ScanMethod,
		IsBot:           d.IsBot,
		AccessedAt:      time.Now().UTC(),
	}
}
