package service

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math"
	"math/big"
	"net/url"
	"regexp"
	"strings"
	"time"
	"unicode"

	"github.com/SergeiKhy/linktrack/internal/models"
	"github.com/SergeiKhy/linktrack/internal/repository"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Константы партнёрских ссылок
const (
	RenewalWindowDays = 7
	RecentAccessLimit = 50

	slugBaseMaxLength = 30
	slugSuffixLength  = 4
	slugCharset       = "abcdefghijklmnopqrstuvwxyz0123456789"
	maxSlugAttempts   = 5
)

var (
	slugInvalidChars = regexp.MustCompile(`[^a-z0-9\s-]`)
	slugSpaces       = regexp.MustCompile(`\s+`)
	slugDashes       = regexp.MustCompile(`-+`)
	customSlugFormat = regexp.MustCompile(`^[a-z0-9]+(?:-[a-z0-9]+)*$`)
)

// AffiliateService управляет партнёрскими ссылками
type AffiliateService interface {
	Create(ctx context.Context, input *models.CreateAffiliateInput) (*models.AffiliateLink, error)
	Get(ctx context.Context, id string) (*models.AffiliateStats, error)
	List(ctx context.Context, filter models.AffiliateFilter) ([]models.AffiliateSummary, error)
	Update(ctx context.Context, id string, input *models.UpdateAffiliateInput) (*models.AffiliateLink, error)
	Delete(ctx context.Context, id string) error
}

type affiliateService struct {
	affiliateRepo  repository.AffiliateRepository
	logRepo        repository.AccessLogRepository
	targets        TargetResolver
	allowedHosts   []string
	reportTimezone string
	now            func() time.Time
	logger         *zap.Logger
}

func NewAffiliateService(
	affiliateRepo repository.AffiliateRepository,
	logRepo repository.AccessLogRepository,
	targets TargetResolver,
	allowedHosts []string,
	reportTimezone string,
	logger *zap.Logger,
) AffiliateService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &affiliateService{
		affiliateRepo:  affiliateRepo,
		logRepo:        logRepo,
		targets:        targets,
		allowedHosts:   allowedHosts,
		reportTimezone: reportTimezone,
		now:            time.Now,
		logger:         logger,
	}
}

func (s *affiliateService) Create(ctx context.Context, input *models.CreateAffiliateInput) (*models.AffiliateLink, error) {
	if err := s.validateAffiliateURL(input.AffiliateURL); err != nil {
		return nil, err
	}

	link := &models.AffiliateLink{
		ID:           uuid.NewString(),
		ProductName:  input.ProductName,
		ProductImage: input.ProductImage,
		AffiliateURL: input.AffiliateURL,
		Category:     input.Category,
		Notes:        input.Notes,
		CreatedBy:    input.CreatedBy,
		IsActive:     true,
	}

	// Кастомный slug: занят -> ошибка
	if input.CustomSlug != nil && *input.CustomSlug != "" {
		slug := strings.ToLower(strings.TrimSpace(*input.CustomSlug))
		if !customSlugFormat.MatchString(slug) {
			return nil, ErrInvalidSlug
		}
		link.Slug = slug
		if err := s.affiliateRepo.Create(ctx, link); err != nil {
			if errors.Is(err, repository.ErrSlugExists) {
				return nil, ErrSlugTaken
			}
			return nil, err
		}
		return link, nil
	}

	// Сгенерированный slug: при коллизии генерируем заново
	for attempt := 0; attempt < maxSlugAttempts; attempt++ {
		slug, err := GenerateSlug(input.ProductName)
		if err != nil {
			return nil, fmt.Errorf("failed to generate slug: %w", err)
		}
		link.Slug = slug

		err = s.affiliateRepo.Create(ctx, link)
		if err == nil {
			s.logger.Info("Партнёрская ссылка создана", zap.String("id", link.ID), zap.String("slug", link.Slug))
			return link, nil
		}
		if !errors.Is(err, repository.ErrSlugExists) {
			return nil, err
		}
		s.logger.Debug("Коллизия slug, генерируем заново", zap.String("slug", slug))
	}

	return nil, ErrSlugTaken
}

// Get ссылка со статистикой переходов
func (s *affiliateService) Get(ctx context.Context, id string) (*models.AffiliateStats, error) {
	link, err := s.getLink(ctx, id)
	if err != nil {
		return nil, err
	}

	counts, err := s.logRepo.Counts(ctx, models.EntityAffiliate, link.ID)
	if err != nil {
		return nil, err
	}

	stats := &models.AffiliateStats{
		AffiliateSummary: s.summary(*link, counts),
	}

	if stats.Daily, err = s.logRepo.Daily(ctx, models.EntityAffiliate, link.ID, s.reportTimezone); err != nil {
		return nil, err
	}
	if stats.BySocialNetwork, err = s.logRepo.GroupBy(ctx, models.EntityAffiliate, link.ID, repository.GroupBySocialNetwork); err != nil {
		return nil, err
	}
	if stats.ByCountry, err = s.logRepo.GroupBy(ctx, models.EntityAffiliate, link.ID, repository.GroupByCountry); err != nil {
		return nil, err
	}
	if stats.RecentAccesses, err = s.logRepo.Recent(ctx, models.EntityAffiliate, link.ID, RecentAccessLimit); err != nil {
		return nil, err
	}

	return stats, nil
}

func (s *affiliateService) List(ctx context.Context, filter models.AffiliateFilter) ([]models.AffiliateSummary, error) {
	links, err := s.affiliateRepo.List(ctx, filter)
	if err != nil {
		return nil, err
	}

	for i := range links {
		links[i] = s.summary(links[i].AffiliateLink, models.AccessCounts{
			Total:  links[i].TotalClicks,
			Unique: links[i].UniqueVisitors,
		})
	}
	return links, nil
}

func (s *affiliateService) Update(ctx context.Context, id string, input *models.UpdateAffiliateInput) (*models.AffiliateLink, error) {
	link, err := s.getLink(ctx, id)
	if err != nil {
		return nil, err
	}

	changed := false
	if input.ProductName != nil {
		link.ProductName = *input.ProductName
		changed = true
	}
	if input.AffiliateURL != nil {
		if err := s.validateAffiliateURL(*input.AffiliateURL); err != nil {
			return nil, err
		}
		link.AffiliateURL = *input.AffiliateURL
		changed = true
	}
	if input.Category != nil {
		link.Category = input.Category
		changed = true
	}
	if input.Notes != nil {
		link.Notes = input.Notes
		changed = true
	}
	if input.ProductImage != nil {
		link.ProductImage = input.ProductImage
		changed = true
	}
	if input.IsActive != nil {
		link.IsActive = *input.IsActive
		changed = true
	}
	if !changed {
		return nil, ErrNothingToUpdate
	}

	if err := s.affiliateRepo.Update(ctx, link); err != nil {
		return nil, notFoundOr(err)
	}

	s.targets.Invalidate(ctx, models.EntityAffiliate, link.Slug)
	return link, nil
}

func (s *affiliateService) Delete(ctx context.Context, id string) error {
	link, err := s.getLink(ctx, id)
	if err != nil {
		return err
	}
	if err := s.affiliateRepo.Delete(ctx, link.ID); err != nil {
		return notFoundOr(err)
	}
	s.targets.Invalidate(ctx, models.EntityAffiliate, link.Slug)
	return nil
}

func (s *affiliateService) getLink(ctx context.Context, id string) (*models.AffiliateLink, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrNotFound
	}
	link, err := s.affiliateRepo.GetByID(ctx, id)
	if err != nil {
		return nil, notFoundOr(err)
	}
	return link, nil
}

func (s *affiliateService) summary(link models.AffiliateLink, counts models.AccessCounts) models.AffiliateSummary {
	days := DaysRemaining(link.UpdatedAt, s.now())
	return models.AffiliateSummary{
		AffiliateLink:  link,
		TotalClicks:    counts.Total,
		UniqueVisitors: counts.Unique,
		DaysRemaining:  days,
		Status:         LinkStatus(days),
	}
}

// validateAffiliateURL: валидный http(s) URL на домене из списка партнёров
func (s *affiliateService) validateAffiliateURL(raw string) error {
	if err := validateURL(raw); err != nil {
		return err
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%w: %q", ErrInvalidURL, raw)
	}
	if !HostAllowed(u.Hostname(), s.allowedHosts) {
		return fmt.Errorf("%w: %s", ErrHostNotAllowed, u.Hostname())
	}
	return nil
}

// HostAllowed true для точного совпадения или поддомена разрешённого хоста
func HostAllowed(host string, allowed []string) bool {
	host = strings.ToLower(strings.TrimSuffix(host, "."))
	for _, a := range allowed {
		if host == a || strings.HasSuffix(host, "."+a) {
			return true
		}
	}
	return false
}

// GenerateSlug "Perfume Importado Ñandú" -> "perfume-importado-nandu-x7k2"
func GenerateSlug(productName string) (string, error) {
	suffix, err := randomString(slugSuffixLength)
	if err != nil {
		return "", err
	}
	base := slugBase(productName)
	if base == "" {
		return suffix, nil
	}
	return base + "-" + suffix, nil
}

func slugBase(name string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, strings.ToLower(name))
	if err != nil {
		folded = strings.ToLower(name)
	}

	s := slugInvalidChars.ReplaceAllString(folded, "")
	s = slugSpaces.ReplaceAllString(s, "-")
	s = slugDashes.ReplaceAllString(s, "-")
	if len(s) > slugBaseMaxLength {
		s = s[:slugBaseMaxLength]
	}
	return strings.Trim(s, "-")
}

func randomString(n int) (string, error) {
	result := make([]byte, n)
	for i := 0; i < n; i++ {
		num, err := rand.Int(rand.Reader, big.NewInt(int64(len(slugCharset))))
		if err != nil {
			return "", err
		}
		result[i] = slugCharset[num.Int64()]
	}
	return string(result), nil
}

// DaysRemaining дней до конца окна продления (7 дней от updatedAt), в пределах [0, 7]
func DaysRemaining(updatedAt, now time.Time) int {
	expires := updatedAt.AddDate(0, 0, RenewalWindowDays)
	days := int(math.Ceil(expires.Sub(now).Hours() / 24))
	return max(0, min(RenewalWindowDays, days))
}

// LinkStatus статус по оставшимся дням
func LinkStatus(daysRemaining int) string {
	switch {
	case daysRemaining <= 0:
		return models.LinkStatusExpired
	case daysRemaining <= 2:
		return models.LinkStatusDanger
	case daysRemaining <= 4:
		return models.LinkStatusWarning
	default:
		return models.LinkStatusOK
	}
}
