package mocks

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"
	_ "time/tzdata"

	"github.com/SergeiKhy/linktrack/internal/models"
	"github.com/SergeiKhy/linktrack/internal/repository"
	"github.com/jackc/pgx/v5/pgconn"
)

// ErrUnavailable имитирует недоступное хранилище
var ErrUnavailable = errors.New("storage unavailable")

// MockQRCodeRepository implements repository.QRCodeRepository for testing
type MockQRCodeRepository struct {
	mu    sync.RWMutex
	codes map[string]*models.QRCode
	Fail  bool
}

func NewMockQRCodeRepository() *MockQRCodeRepository {
	return &MockQRCodeRepository{
		codes: make(map[string]*models.QRCode),
	}
}

func (m *MockQRCodeRepository) Create(ctx context.Context, code *models.QRCode) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.Fail {
		return ErrUnavailable
	}
	now := time.Now()
	code.CreatedAt = now
	code.UpdatedAt = now
	stored := *code
	m.codes[code.ID] = &stored
	return nil
}

func (m *MockQRCodeRepository) GetByID(ctx context.Context, id string) (*models.QRCode, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.Fail {
		return nil, ErrUnavailable
	}
	code, exists := m.codes[id]
	if !exists {
		return nil, repository.ErrNotFound
	}
	c := *code
	return &c, nil
}

func (m *MockQRCodeRepository) List(ctx context.Context) ([]models.QRCodeSummary, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	list := []models.QRCodeSummary{}
	for _, code := range m.codes {
		list = append(list, models.QRCodeSummary{QRCode: *code})
	}
	sort.Slice(list, func(i, j int) bool { return list[i].CreatedAt.After(list[j].CreatedAt) })
	return list, nil
}

func (m *MockQRCodeRepository) UpdateStyle(ctx context.Context, code *models.QRCode) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored, exists := m.codes[code.ID]
	if !exists {
		return repository.ErrNotFound
	}
	// updated_at строго растёт, как в БД
	code.UpdatedAt = stored.UpdatedAt.Add(time.Millisecond)
	if now := time.Now(); now.After(code.UpdatedAt) {
		code.UpdatedAt = now
	}
	stored.Style = code.Style
	stored.UpdatedAt = code.UpdatedAt
	return nil
}

func (m *MockQRCodeRepository) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.codes[id]; !exists {
		return repository.ErrNotFound
	}
	delete(m.codes, id)
	return nil
}

// MockAffiliateRepository implements repository.AffiliateRepository for testing
type MockAffiliateRepository struct {
	mu    sync.RWMutex
	links map[string]*models.AffiliateLink // id -> link
}

func NewMockAffiliateRepository() *MockAffiliateRepository {
	return &MockAffiliateRepository{
		links: make(map[string]*models.AffiliateLink),
	}
}

func (m *MockAffiliateRepository) Create(ctx context.Context, link *models.AffiliateLink) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, l := range m.links {
		if l.Slug == link.Slug {
			return repository.ErrSlugExists
		}
	}
	now := time.Now()
	link.CreatedAt = now
	link.UpdatedAt = now
	stored := *link
	m.links[link.ID] = &stored
	return nil
}

func (m *MockAffiliateRepository) GetByID(ctx context.Context, id string) (*models.AffiliateLink, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	link, exists := m.links[id]
	if !exists {
		return nil, repository.ErrNotFound
	}
	l := *link
	return &l, nil
}

func (m *MockAffiliateRepository) GetBySlug(ctx context.Context, slug string) (*models.AffiliateLink, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, link := range m.links {
		if link.Slug == slug {
			l := *link
			return &l, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (m *MockAffiliateRepository) SlugExists(ctx context.Context, slug string) (bool, error) {
	_, err := m.GetBySlug(ctx, slug)
	return err == nil, nil
}

func (m *MockAffiliateRepository) List(ctx context.Context, filter models.AffiliateFilter) ([]models.AffiliateSummary, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	list := []models.AffiliateSummary{}
	for _, link := range m.links {
		if filter.CreatedBy != nil && link.CreatedBy != *filter.CreatedBy {
			continue
		}
		if filter.Category != nil && (link.Category == nil || *link.Category != *filter.Category) {
			continue
		}
		if filter.IsActive != nil && link.IsActive != *filter.IsActive {
			continue
		}
		list = append(list, models.AffiliateSummary{AffiliateLink: *link})
	}
	sort.Slice(list, func(i, j int) bool { return list[i].UpdatedAt.After(list[j].UpdatedAt) })
	return list, nil
}

func (m *MockAffiliateRepository) Update(ctx context.Context, link *models.AffiliateLink) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.links[link.ID]; !exists {
		return repository.ErrNotFound
	}
	link.UpdatedAt = time.Now()
	stored := *link
	m.links[link.ID] = &stored
	return nil
}

func (m *MockAffiliateRepository) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.links[id]; !exists {
		return repository.ErrNotFound
	}
	delete(m.links, id)
	return nil
}

// SetUpdatedAt сдвигает updated_at, чтобы проверить окно продления
func (m *MockAffiliateRepository) SetUpdatedAt(id string, t time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if link, ok := m.links[id]; ok {
		link.UpdatedAt = t
	}
}

// MockAccessLogRepository implements repository.AccessLogRepository for testing
type MockAccessLogRepository struct {
	mu        sync.RWMutex
	logs      []*models.AccessLog
	nextID    int64
	FailCheck bool
	FailWrite bool
	// BadEntity: записи с этим EntityID отвергаются как слишком длинные
	BadEntity string
}

func NewMockAccessLogRepository() *MockAccessLogRepository {
	return &MockAccessLogRepository{nextID: 1}
}

func (m *MockAccessLogRepository) HasPriorAccess(ctx context.Context, kind models.EntityKind, entityID, ipHash string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.FailCheck {
		return false, ErrUnavailable
	}
	for _, l := range m.logs {
		if l.EntityKind == kind && l.EntityID == entityID && l.IPHash == ipHash {
			return true, nil
		}
	}
	return false, nil
}

func (m *MockAccessLogRepository) Insert(ctx context.Context, log *models.AccessLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.FailWrite {
		return ErrUnavailable
	}
	log.ID = m.nextID
	m.nextID++
	m.logs = append(m.logs, log)
	return nil
}

func (m *MockAccessLogRepository) InsertBatch(ctx context.Context, logs []*models.AccessLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.FailWrite {
		return ErrUnavailable
	}
	for _, log := range logs {
		if m.BadEntity != "" && log.EntityID == m.BadEntity {
			return &pgconn.PgError{Code: "22001", Message: "value too long for type character varying(32)"}
		}
	}
	for _, log := range logs {
		log.ID = m.nextID
		m.nextID++
		m.logs = append(m.logs, log)
	}
	return nil
}

func (m *MockAccessLogRepository) Counts(ctx context.Context, kind models.EntityKind, entityID string) (models.AccessCounts, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var counts models.AccessCounts
	for _, l := range m.entityLogs(kind, entityID) {
		counts.Total++
		if l.IsUniqueVisitor {
			counts.Unique++
		}
	}
	return counts, nil
}

func (m *MockAccessLogRepository) Daily(ctx context.Context, kind models.EntityKind, entityID, timezone string) ([]models.DailyCount, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return nil, err
	}
	byDay := map[string]int64{}
	for _, l := range m.entityLogs(kind, entityID) {
		byDay[l.AccessedAt.In(loc).Format(time.DateOnly)]++
	}
	days := []models.DailyCount{}
	for d, n := range byDay {
		days = append(days, models.DailyCount{Date: d, Clicks: n})
	}
	sort.Slice(days, func(i, j int) bool { return days[i].Date < days[j].Date })
	return days, nil
}

func (m *MockAccessLogRepository) GroupBy(ctx context.Context, kind models.EntityKind, entityID, column string) ([]models.Bucket, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	counts := map[string]int64{}
	for _, l := range m.entityLogs(kind, entityID) {
		key := "unknown"
		switch column {
		case repository.GroupByDevice:
			key = l.Device
		case repository.GroupByScanMethod:
			key = l.ScanMethod
		case repository.GroupByCountry:
			if l.Country != nil {
				key = *l.Country
			}
		case repository.GroupBySocialNetwork:
			if l.SocialNetwork != nil {
				key = *l.SocialNetwork
			}
		}
		counts[key]++
	}
	buckets := []models.Bucket{}
	for k, n := range counts {
		buckets = append(buckets, models.Bucket{Key: k, Count: n})
	}
	sort.Slice(buckets, func(i, j int) bool {
		if buckets[i].Count != buckets[j].Count {
			return buckets[i].Count > buckets[j].Count
		}
		return buckets[i].Key < buckets[j].Key
	})
	return buckets, nil
}

func (m *MockAccessLogRepository) Recent(ctx context.Context, kind models.EntityKind, entityID string, limit int) ([]models.AccessLog, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	logs := m.entityLogs(kind, entityID)
	recent := []models.AccessLog{}
	for i := len(logs) - 1; i >= 0 && len(recent) < limit; i-- {
		recent = append(recent, *logs[i])
	}
	return recent, nil
}

// Logs копия всех записей в порядке вставки
func (m *MockAccessLogRepository) Logs() []models.AccessLog {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]models.AccessLog, 0, len(m.logs))
	for _, l := range m.logs {
		out = append(out, *l)
	}
	return out
}

func (m *MockAccessLogRepository) entityLogs(kind models.EntityKind, entityID string) []*models.AccessLog {
	var out []*models.AccessLog
	for _, l := range m.logs {
		if l.EntityKind == kind && l.EntityID == entityID {
			out = append(out, l)
		}
	}
	return out
}

// MockCacheRepository implements repository.CacheRepository for testing
type MockCacheRepository struct {
	mu    sync.RWMutex
	cache map[string]*models.Target
}

func NewMockCacheRepository() *MockCacheRepository {
	return &MockCacheRepository{
		cache: make(map[string]*models.Target),
	}
}

func (m *MockCacheRepository) Get(ctx context.Context, kind models.EntityKind, key string) (*models.Target, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	target, exists := m.cache[string(kind)+":"+key]
	if !exists {
		return nil, repository.ErrCacheMiss
	}
	t := *target
	return &t, nil
}

func (m *MockCacheRepository) Set(ctx context.Context, kind models.EntityKind, key string, target *models.Target, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t := *target
	m.cache[string(kind)+":"+key] = &t
	return nil
}

func (m *MockCacheRepository) Delete(ctx context.Context, kind models.EntityKind, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.cache, string(kind)+":"+key)
	return nil
}

func (m *MockCacheRepository) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.cache)
}
