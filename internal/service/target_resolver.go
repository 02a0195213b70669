package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/SergeiKhy/linktrack/internal/models"
	"github.com/SergeiKhy/linktrack/internal/repository"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const defaultTargetTTL = 5 * time.Minute

// TargetResolver находит цель редиректа: сначала в кэше, затем в БД.
// QR-коды ищутся по id, партнёрские ссылки по slug.
type TargetResolver interface {
	Resolve(ctx context.Context, kind models.EntityKind, key string) (*models.Target, error)
	Invalidate(ctx context.Context, kind models.EntityKind, key string)
}

type targetResolver struct {
	qrRepo        repository.QRCodeRepository
	affiliateRepo repository.AffiliateRepository
	cacheRepo     repository.CacheRepository
	ttl           time.Duration
	logger        *zap.Logger
}

func NewTargetResolver(
	qrRepo repository.QRCodeRepository,
	affiliateRepo repository.AffiliateRepository,
	cacheRepo repository.CacheRepository,
	ttl time.Duration,
	logger *zap.Logger,
) TargetResolver {
	if ttl <= 0 {
		ttl = defaultTargetTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &targetResolver{
		qrRepo:        qrRepo,
		affiliateRepo: affiliateRepo,
		cacheRepo:     cacheRepo,
		ttl:           ttl,
		logger:        logger,
	}
}

func (r *targetResolver) Resolve(ctx context.Context, kind models.EntityKind, key string) (*models.Target, error) {
	// Проверка кэша
	if target, err := r.cacheRepo.Get(ctx, kind, key); err == nil {
		targetCacheTotal.WithLabelValues("hit").Inc()
		return target, nil
	} else if !errors.Is(err, repository.ErrCacheMiss) {
		r.logger.Warn("Кэш целей недоступен", zap.Error(err))
	}
	targetCacheTotal.WithLabelValues("miss").Inc()

	target, err := r.lookup(ctx, kind, key)
	if err != nil {
		return nil, err
	}

	if err := r.cacheRepo.Set(ctx, kind, key, target, r.ttl); err != nil {
		r.logger.Debug("Не удалось закэшировать цель", zap.String("key", key), zap.Error(err))
	}
	return target, nil
}

func (r *targetResolver) lookup(ctx context.Context, kind models.EntityKind, key string) (*models.Target, error) {
	switch kind {
	case models.EntityQRCode:
		if _, err := uuid.Parse(key); err != nil {
			return nil, ErrNotFound
		}
		code, err := r.qrRepo.GetByID(ctx, key)
		if err != nil {
			return nil, notFoundOr(err)
		}
		return &models.Target{
			Kind:           kind,
			ID:             code.ID,
			DestinationURL: code.TargetURL,
			IsActive:       true,
		}, nil

	case models.EntityAffiliate:
		link, err := r.affiliateRepo.GetBySlug(ctx, key)
		if err != nil {
			return nil, notFoundOr(err)
		}
		return &models.Target{
			Kind:           kind,
			ID:             link.ID,
			DestinationURL: link.AffiliateURL,
			IsActive:       link.IsActive,
		}, nil
	}

	return nil, fmt.Errorf("unknown entity kind %q", kind)
}

func (r *targetResolver) Invalidate(ctx context.Context, kind models.EntityKind, key string) {
	if err := r.cacheRepo.Delete(ctx, kind, key); err != nil {
		r.logger.Warn("Не удалось сбросить кэш цели",
			zap.String("kind", string(kind)),
			zap.String("key", key),
			zap.Error(err),
		)
	}
}

func notFoundOr(err error) error {
	if errors.Is(err, repository.ErrNotFound) {
		return ErrNotFound
	}
	return err
}
