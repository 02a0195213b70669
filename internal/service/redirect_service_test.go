package service_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/SergeiKhy/linktrack/internal/geoip"
	"github.com/SergeiKhy/linktrack/internal/models"
	"github.com/SergeiKhy/linktrack/internal/service"
	"github.com/SergeiKhy/linktrack/internal/service/mocks"
	"github.com/SergeiKhy/linktrack/internal/tracking"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var testPaths = service.RedirectPaths{
	NotFound: "/not-found",
	Inactive: "/link-inactive",
	Error:    "/error",
}

// stubGeo считает вызовы и всегда возвращает один результат
type stubGeo struct {
	calls  atomic.Int32
	result geoip.Result
}

func (g *stubGeo) Resolve(ctx context.Context, ip string) geoip.Result {
	g.calls.Add(1)
	return g.result
}

type redirectEnv struct {
	svc       service.RedirectService
	qrRepo    *mocks.MockQRCodeRepository
	affRepo   *mocks.MockAffiliateRepository
	logRepo   *mocks.MockAccessLogRepository
	cacheRepo *mocks.MockCacheRepository
	geo       *stubGeo
}

// setupRedirect создаёт пайплайн редиректа на моках
func setupRedirect() *redirectEnv {
	env := &redirectEnv{
		qrRepo:    mocks.NewMockQRCodeRepository(),
		affRepo:   mocks.NewMockAffiliateRepository(),
		logRepo:   mocks.NewMockAccessLogRepository(),
		cacheRepo: mocks.NewMockCacheRepository(),
		geo:       &stubGeo{result: geoip.Result{Country: ptr("Brazil"), City: ptr("Recife")}},
	}
	logger := zap.NewNop()
	targets := service.NewTargetResolver(env.qrRepo, env.affRepo, env.cacheRepo, 0, logger)
	collector := tracking.NewCollector(tracking.NewIPAnonymizer("test-salt"))
	env.svc = service.NewRedirectService(targets, env.logRepo, collector, env.geo, testPaths, logger)
	return env
}

func (env *redirectEnv) addQR(t *testing.T, target string) string {
	t.Helper()
	code := &models.QRCode{ID: uuid.NewString(), Name: "qr", TargetURL: target}
	require.NoError(t, env.qrRepo.Create(context.Background(), code))
	return code.ID
}

func (env *redirectEnv) addAffiliate(t *testing.T, slug string, active bool) *models.AffiliateLink {
	t.Helper()
	link := &models.AffiliateLink{
		ID:           uuid.NewString(),
		Slug:         slug,
		ProductName:  "Produto",
		AffiliateURL: "https://shopee.com.br/p/" + slug,
		CreatedBy:    "ana",
		IsActive:     active,
	}
	require.NoError(t, env.affRepo.Create(context.Background(), link))
	return link
}

// visit выполняет редирект и синхронно сохраняет запись, как это сделал бы recorder
func (env *redirectEnv) visit(t *testing.T, kind models.EntityKind, key, ip string) *service.Visit {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/r/"+key, nil)
	req.Header.Set("X-Forwarded-For", ip)
	req.Header.Set("User-Agent", "Mozilla/5.0 (iPhone; CPU iPhone OS 17_1 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.1 Mobile/15E148 Safari/604.1")

	v := env.svc.Visit(context.Background(), kind, key, req)
	if v.Record != nil {
		require.NoError(t, env.logRepo.Insert(context.Background(), v.Record))
	}
	return v
}

func ptr[T any](v T) *T { return &v }

// TestRedirect_RepeatVisitor проверяет уникальность в разрезе сущности
func TestRedirect_RepeatVisitor(t *testing.T) {
	env := setupRedirect()
	e := env.addQR(t, "https://example.com/e")
	f := env.addQR(t, "https://example.com/f")

	first := env.visit(t, models.EntityQRCode, e, "203.0.113.7")
	require.NotNil(t, first.Record)
	assert.Equal(t, "https://example.com/e", first.Location)
	assert.True(t, first.Record.IsUniqueVisitor)

	second := env.visit(t, models.EntityQRCode, e, "203.0.113.7")
	require.NotNil(t, second.Record)
	assert.False(t, second.Record.IsUniqueVisitor)

	other := env.visit(t, models.EntityQRCode, f, "203.0.113.7")
	require.NotNil(t, other.Record)
	assert.True(t, other.Record.IsUniqueVisitor, "уникальность считается отдельно для каждой сущности")

	assert.Len(t, env.logRepo.Logs(), 3)
}

// TestRedirect_UniquenessMonotonic N-й переход уникален только при N=1
func TestRedirect_UniquenessMonotonic(t *testing.T) {
	env := setupRedirect()
	id := env.addQR(t, "https://example.com")

	for n := 1; n <= 10; n++ {
		v := env.visit(t, models.EntityQRCode, id, "198.51.100.1")
		require.NotNil(t, v.Record)
		assert.Equal(t, n == 1, v.Record.IsUniqueVisitor, "переход %d", n)
	}
}

// TestRedirect_ConcurrentFirstVisits фиксирует допустимую гонку: два одновременных
// первых перехода с одного IP оба считаются уникальными
func TestRedirect_ConcurrentFirstVisits(t *testing.T) {
	env := setupRedirect()
	id := env.addQR(t, "https://example.com")

	visits := make([]*service.Visit, 2)
	var wg sync.WaitGroup
	for i := range visits {
		wg.Add(1)
		go func() {
			defer wg.Done()
			req := httptest.NewRequest(http.MethodGet, "/r/"+id, nil)
			req.Header.Set("X-Forwarded-For", "192.0.2.10")
			visits[i] = env.svc.Visit(context.Background(), models.EntityQRCode, id, req)
		}()
	}
	wg.Wait()

	// записи попадают в хранилище уже после обоих решений
	for _, v := range visits {
		require.NotNil(t, v.Record)
		assert.True(t, v.Record.IsUniqueVisitor)
	}
}

// TestRedirect_InactiveAffiliate неактивная ссылка ведёт на отдельную страницу и не пишется
func TestRedirect_InactiveAffiliate(t *testing.T) {
	env := setupRedirect()
	env.addAffiliate(t, "perfume-ab12", false)

	v := env.visit(t, models.EntityAffiliate, "perfume-ab12", "203.0.113.7")

	assert.Equal(t, testPaths.Inactive, v.Location)
	assert.Equal(t, service.OutcomeInactive, v.Outcome)
	assert.Nil(t, v.Record)
	assert.Empty(t, env.logRepo.Logs())
	assert.Zero(t, env.geo.calls.Load())
}

// TestRedirect_ActiveAffiliate активная ссылка ведёт на партнёрский URL
func TestRedirect_ActiveAffiliate(t *testing.T) {
	env := setupRedirect()
	link := env.addAffiliate(t, "tenis-x9y8", true)

	v := env.visit(t, models.EntityAffiliate, "tenis-x9y8", "203.0.113.7")

	assert.Equal(t, link.AffiliateURL, v.Location)
	require.NotNil(t, v.Record)
	assert.Equal(t, models.EntityAffiliate, v.Record.EntityKind)
	assert.Equal(t, link.ID, v.Record.EntityID)
	assert.Equal(t, tracking.DeviceMobile, v.Record.Device)
	assert.Equal(t, "iOS", v.Record.Platform)
	assert.GreaterOrEqual(t, v.Record.ResponseTimeMs, int64(0))
}

// TestRedirect_NotFound несуществующий id и мусор вместо id
func TestRedirect_NotFound(t *testing.T) {
	env := setupRedirect()

	for _, key := range []string{uuid.NewString(), "not-a-uuid"} {
		v := env.visit(t, models.EntityQRCode, key, "203.0.113.7")
		assert.Equal(t, testPaths.NotFound, v.Location)
		assert.Equal(t, service.OutcomeNotFound, v.Outcome)
		assert.Nil(t, v.Record)
	}

	v := env.visit(t, models.EntityAffiliate, "missing", "203.0.113.7")
	assert.Equal(t, testPaths.NotFound, v.Location)
}

// TestRedirect_LookupError сбой хранилища без найденной цели ведёт на страницу ошибки
func TestRedirect_LookupError(t *testing.T) {
	env := setupRedirect()
	id := env.addQR(t, "https://example.com")
	env.qrRepo.Fail = true

	v := env.visit(t, models.EntityQRCode, id, "203.0.113.7")

	assert.Equal(t, testPaths.Error, v.Location)
	assert.Equal(t, service.OutcomeError, v.Outcome)
	assert.Nil(t, v.Record)
}

// TestRedirect_UniquenessCheckFails цель найдена: редирект на неё, запись пропускается
func TestRedirect_UniquenessCheckFails(t *testing.T) {
	env := setupRedirect()
	id := env.addQR(t, "https://example.com/ok")
	env.logRepo.FailCheck = true

	v := env.visit(t, models.EntityQRCode, id, "203.0.113.7")

	assert.Equal(t, "https://example.com/ok", v.Location)
	assert.Equal(t, service.OutcomeDestination, v.Outcome)
	assert.Nil(t, v.Record)
}

// TestRedirect_CDNGeoSkipsLookup при гео из CDN резолвер не вызывается
func TestRedirect_CDNGeoSkipsLookup(t *testing.T) {
	env := setupRedirect()
	id := env.addQR(t, "https://example.com")

	req := httptest.NewRequest(http.MethodGet, "/r/"+id, nil)
	req.Header.Set("X-Forwarded-For", "203.0.113.7")
	req.Header.Set("CF-IPCountry", "PT")
	req.Header.Set("CF-IPCity", "Lisboa")

	v := env.svc.Visit(context.Background(), models.EntityQRCode, id, req)

	require.NotNil(t, v.Record)
	assert.Zero(t, env.geo.calls.Load())
	assert.Equal(t, "PT", *v.Record.Country)
	assert.Equal(t, "Lisboa", *v.Record.City)
}

// TestRedirect_GeoMerged без гео от CDN используется резолвер
func TestRedirect_GeoMerged(t *testing.T) {
	env := setupRedirect()
	id := env.addQR(t, "https://example.com")

	v := env.visit(t, models.EntityQRCode, id, "203.0.113.7")

	require.NotNil(t, v.Record)
	assert.Equal(t, int32(1), env.geo.calls.Load())
	assert.Equal(t, "Brazil", *v.Record.Country)
	assert.Equal(t, "Recife", *v.Record.City)
}

// TestRedirect_ClientGone отмена запроса не мешает собрать запись
func TestRedirect_ClientGone(t *testing.T) {
	env := setupRedirect()
	id := env.addQR(t, "https://example.com")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	req := httptest.NewRequest(http.MethodGet, "/r/"+id, nil).WithContext(ctx)
	req.Header.Set("X-Forwarded-For", "203.0.113.7")
	v := env.svc.Visit(ctx, models.EntityQRCode, id, req)

	assert.Equal(t, "https://example.com", v.Location)
	require.NotNil(t, v.Record)
	assert.True(t, v.Record.IsUniqueVisitor)
}

// TestRedirect_TargetCached повторный поиск цели идёт в кэш
func TestRedirect_TargetCached(t *testing.T) {
	env := setupRedirect()
	id := env.addQR(t, "https://example.com")

	env.visit(t, models.EntityQRCode, id, "203.0.113.7")
	assert.Equal(t, 1, env.cacheRepo.Len())

	// база недоступна, но цель уже в кэше
	env.qrRepo.Fail = true
	v := env.visit(t, models.EntityQRCode, id, "203.0.113.8")
	assert.Equal(t, "https://example.com", v.Location)
}
