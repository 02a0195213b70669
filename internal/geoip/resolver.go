package geoip

import (
	"context"
	"errors"
	"net/netip"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// Значение полей для приватных и локальных адресов
const LocalLabel = "Local"

const (
	defaultTimeout         = 3 * time.Second
	defaultProviderTimeout = 2 * time.Second
)

var ErrLookupFailed = errors.New("geoip lookup failed")

var lookupsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "geoip_lookups_total",
	Help: "GeoIP lookups by provider and outcome.",
}, []string{"provider", "result"})

// Result геоданные по IP. Любое поле может отсутствовать.
type Result struct {
	Country   *string  `json:"country"`
	Region    *string  `json:"region"`
	City      *string  `json:"city"`
	Timezone  *string  `json:"timezone"`
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
}

// Empty true, если ни одно поле не заполнено
func (r Result) Empty() bool {
	return r.Country == nil && r.Region == nil && r.City == nil &&
		r.Timezone == nil && r.Latitude == nil && r.Longitude == nil
}

// LocalResult результат для приватных, loopback и прочих немаршрутизируемых адресов
func LocalResult() Result {
	local := LocalLabel
	return Result{Country: &local, Region: &local, City: &local}
}

// Resolver определяет геолокацию по IP. Никогда не возвращает ошибку:
// при неудаче все поля пустые.
type Resolver interface {
	Resolve(ctx context.Context, ip string) Result
}

// Provider один внешний сервис геолокации
type Provider interface {
	Name() string
	Lookup(ctx context.Context, ip string) (Result, error)
}

// Options настройки цепочки провайдеров
type Options struct {
	Timeout         time.Duration // общий дедлайн на всю цепочку
	ProviderTimeout time.Duration // дедлайн на одного провайдера
	CacheSize       int
	CacheTTL        time.Duration
}

// ChainResolver опрашивает провайдеров по порядку, первый успешный ответ побеждает
type ChainResolver struct {
	providers       []Provider
	timeout         time.Duration
	providerTimeout time.Duration
	cache           *expirable.LRU[string, Result]
	logger          *zap.Logger
}

// NewChainResolver создаёт резолвер. CacheSize <= 0 отключает кэш.
func NewChainResolver(providers []Provider, opts Options, logger *zap.Logger) *ChainResolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.ProviderTimeout <= 0 || opts.ProviderTimeout > opts.Timeout {
		opts.ProviderTimeout = min(defaultProviderTimeout, opts.Timeout)
	}

	r := &ChainResolver{
		providers:       providers,
		timeout:         opts.Timeout,
		providerTimeout: opts.ProviderTimeout,
		logger:          logger,
	}
	if opts.CacheSize > 0 {
		r.cache = expirable.NewLRU[string, Result](opts.CacheSize, nil, opts.CacheTTL)
	}
	return r
}

// Resolve возвращает геоданные для IP, не превышая общий таймаут
func (r *ChainResolver) Resolve(ctx context.Context, ip string) Result {
	ip = strings.TrimSpace(ip)
	if strings.EqualFold(ip, "localhost") {
		return LocalResult()
	}

	addr, err := netip.ParseAddr(ip)
	if err != nil {
		r.logger.Debug("GeoIP: некорректный IP", zap.String("ip", ip))
		return Result{}
	}
	if isLocal(addr) {
		return LocalResult()
	}

	key := addr.String()
	if r.cache != nil {
		if cached, ok := r.cache.Get(key); ok {
			return cached
		}
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	for _, p := range r.providers {
		if ctx.Err() != nil {
			break
		}

		res, err := r.lookup(ctx, p, key)
		if err != nil {
			lookupsTotal.WithLabelValues(p.Name(), "error").Inc()
			r.logger.Debug("GeoIP провайдер не ответил",
				zap.String("provider", p.Name()),
				zap.Error(err),
			)
			continue
		}

		lookupsTotal.WithLabelValues(p.Name(), "ok").Inc()
		if r.cache != nil {
			r.cache.Add(key, res)
		}
		return res
	}

	r.logger.Warn("GeoIP: ни один провайдер не определил IP", zap.Int("providers", len(r.providers)))
	return Result{}
}

func (r *ChainResolver) lookup(ctx context.Context, p Provider, ip string) (Result, error) {
	ctx, cancel := context.WithTimeout(ctx, r.providerTimeout)
	defer cancel()
	return p.Lookup(ctx, ip)
}

func isLocal(addr netip.Addr) bool {
	addr = addr.Unmap()
	return addr.IsPrivate() ||
		addr.IsLoopback() ||
		addr.IsUnspecified() ||
		addr.IsLinkLocalUnicast()
}
