package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/SergeiKhy/linktrack/internal/models"
	"github.com/SergeiKhy/linktrack/internal/qr"
	"github.com/SergeiKhy/linktrack/internal/repository"
	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// DefaultPreviewPayload содержимое превью, если previewUrl не передан
const DefaultPreviewPayload = "https://example.com"

const (
	defaultImageCacheSize = 512
	defaultImageCacheTTL  = 10 * time.Minute
)

// QRCodeService управляет QR-кодами и их картинками
type QRCodeService interface {
	Create(ctx context.Context, input *models.CreateQRCodeInput) (*models.QRCode, []byte, error)
	Preview(ctx context.Context, input *models.PreviewQRCodeInput) ([]byte, error)
	Get(ctx context.Context, id string) (*models.QRCode, error)
	Image(ctx context.Context, id string) (*models.QRCode, []byte, error)
	UpdateStyle(ctx context.Context, id string, patch qr.StyleOptions) (*models.QRCode, []byte, error)
	Delete(ctx context.Context, id string) error
	List(ctx context.Context) ([]models.QRCodeSummary, error)
	Stats(ctx context.Context, id string) (*models.QRCodeStats, error)
	TrackingURL(id string) string
}

// QRCodeServiceConfig параметры сервиса QR-кодов
type QRCodeServiceConfig struct {
	BaseURL        string
	ReportTimezone string
	ImageCacheSize int
	ImageCacheTTL  time.Duration
}

type qrCodeService struct {
	qrRepo   repository.QRCodeRepository
	logRepo  repository.AccessLogRepository
	targets  TargetResolver
	renderer *qr.Renderer
	images   *expirable.LRU[string, []byte]
	group    singleflight.Group
	cfg      QRCodeServiceConfig
	logger   *zap.Logger
}

func NewQRCodeService(
	qrRepo repository.QRCodeRepository,
	logRepo repository.AccessLogRepository,
	targets TargetResolver,
	renderer *qr.Renderer,
	cfg QRCodeServiceConfig,
	logger *zap.Logger,
) QRCodeService {
	if cfg.ImageCacheSize <= 0 {
		cfg.ImageCacheSize = defaultImageCacheSize
	}
	if cfg.ImageCacheTTL <= 0 {
		cfg.ImageCacheTTL = defaultImageCacheTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &qrCodeService{
		qrRepo:   qrRepo,
		logRepo:  logRepo,
		targets:  targets,
		renderer: renderer,
		images:   expirable.NewLRU[string, []byte](cfg.ImageCacheSize, nil, cfg.ImageCacheTTL),
		cfg:      cfg,
		logger:   logger,
	}
}

// Create сохраняет QR-код и возвращает PNG с его трекинговым URL
func (s *qrCodeService) Create(ctx context.Context, input *models.CreateQRCodeInput) (*models.QRCode, []byte, error) {
	if err := validateURL(input.TargetURL); err != nil {
		return nil, nil, err
	}

	var style qr.StyleOptions
	if input.Style != nil {
		style = *input.Style
	}

	code := &models.QRCode{
		ID:        uuid.NewString(),
		Name:      input.Name,
		TargetURL: input.TargetURL,
		Style:     style,
	}

	// рендерим до записи в БД: невалидный стиль не должен оставлять строку
	png, err := s.render(code)
	if err != nil {
		return nil, nil, err
	}

	if err := s.qrRepo.Create(ctx, code); err != nil {
		return nil, nil, err
	}

	s.images.Add(imageKey(code), png)
	s.logger.Info("QR-код создан", zap.String("id", code.ID), zap.String("target_url", code.TargetURL))
	return code, png, nil
}

// Preview рендерит QR без сохранения
func (s *qrCodeService) Preview(ctx context.Context, input *models.PreviewQRCodeInput) ([]byte, error) {
	payload := input.PreviewURL
	if payload == "" {
		payload = DefaultPreviewPayload
	}

	png, err := s.renderer.Render(payload, input.StyleOptions)
	if err != nil {
		return nil, styleError(err)
	}
	return png, nil
}

func (s *qrCodeService) Get(ctx context.Context, id string) (*models.QRCode, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrNotFound
	}
	code, err := s.qrRepo.GetByID(ctx, id)
	if err != nil {
		return nil, notFoundOr(err)
	}
	return code, nil
}

// Image отдаёт PNG из кэша. Кэш привязан к updated_at, поэтому смена стиля
// автоматически даёт новый ключ. Параллельные рендеры одного ключа схлопываются.
func (s *qrCodeService) Image(ctx context.Context, id string) (*models.QRCode, []byte, error) {
	code, err := s.Get(ctx, id)
	if err != nil {
		return nil, nil, err
	}

	key := imageKey(code)
	if png, ok := s.images.Get(key); ok {
		qrImageCacheTotal.WithLabelValues("hit").Inc()
		return code, png, nil
	}
	qrImageCacheTotal.WithLabelValues("miss").Inc()

	v, err, _ := s.group.Do(key, func() (any, error) {
		png, err := s.render(code)
		if err != nil {
			return nil, err
		}
		s.images.Add(key, png)
		return png, nil
	})
	if err != nil {
		return nil, nil, err
	}
	return code, v.([]byte), nil
}

// UpdateStyle накладывает patch на сохранённый стиль и перерисовывает QR
func (s *qrCodeService) UpdateStyle(ctx context.Context, id string, patch qr.StyleOptions) (*models.QRCode, []byte, error) {
	code, err := s.Get(ctx, id)
	if err != nil {
		return nil, nil, err
	}

	code.Style = code.Style.Merge(patch)
	if err := code.Style.Validate(); err != nil {
		return nil, nil, styleError(err)
	}

	if err := s.qrRepo.UpdateStyle(ctx, code); err != nil {
		return nil, nil, notFoundOr(err)
	}

	png, err := s.render(code)
	if err != nil {
		return nil, nil, err
	}
	s.images.Add(imageKey(code), png)
	return code, png, nil
}

func (s *qrCodeService) Delete(ctx context.Context, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return ErrNotFound
	}
	if err := s.qrRepo.Delete(ctx, id); err != nil {
		return notFoundOr(err)
	}
	s.targets.Invalidate(ctx, models.EntityQRCode, id)
	return nil
}

func (s *qrCodeService) List(ctx context.Context) ([]models.QRCodeSummary, error) {
	return s.qrRepo.List(ctx)
}

func (s *qrCodeService) Stats(ctx context.Context, id string) (*models.QRCodeStats, error) {
	code, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	counts, err := s.logRepo.Counts(ctx, models.EntityQRCode, code.ID)
	if err != nil {
		return nil, err
	}
	daily, err := s.logRepo.Daily(ctx, models.EntityQRCode, code.ID, s.cfg.ReportTimezone)
	if err != nil {
		return nil, err
	}

	stats := &models.QRCodeStats{
		QRCodeID:       code.ID,
		TotalClicks:    counts.Total,
		UniqueVisitors: counts.Unique,
		Daily:          daily,
	}

	groups := []struct {
		column string
		dst    *[]models.Bucket
	}{
		{repository.GroupByDevice, &stats.ByDevice},
		{repository.GroupByCountry, &stats.ByCountry},
		{repository.GroupByScanMethod, &stats.ByScanMethod},
	}
	for _, g := range groups {
		if *g.dst, err = s.logRepo.GroupBy(ctx, models.EntityQRCode, code.ID, g.column); err != nil {
			return nil, err
		}
	}

	return stats, nil
}

// TrackingURL адрес, который кодируется в QR
func (s *qrCodeService) TrackingURL(id string) string {
	return s.cfg.BaseURL + "/r/" + id
}

func (s *qrCodeService) render(code *models.QRCode) ([]byte, error) {
	png, err := s.renderer.Render(s.TrackingURL(code.ID), code.Style)
	if err != nil {
		return nil, styleError(err)
	}
	return png, nil
}

func imageKey(code *models.QRCode) string {
	return fmt.Sprintf("%s:%d", code.ID, code.UpdatedAt.UnixMilli())
}

// styleError переводит ошибку стиля из пакета qr в ошибку сервиса
func styleError(err error) error {
	if errors.Is(err, qr.ErrInvalidStyle) {
		return fmt.Errorf("%w: %v", ErrInvalidStyle, err)
	}
	return err
}
