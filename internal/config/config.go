package config

import (
	"errors"
	"io/fs"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	App       AppConfig
	DB        DBConfig
	Redis     RedisConfig
	Auth      AuthConfig
	RateLimit RateLimitConfig
	Tracking  TrackingConfig
	GeoIP     GeoIPConfig
	Redirect  RedirectConfig
	Affiliate AffiliateConfig
	AccessLog AccessLogConfig
	RabbitMQ  RabbitMQConfig
	Cache     CacheConfig
}

type AppConfig struct {
	Port           string
	BaseURL        string
	LogLevel       string
	ReportTimezone string
}

type DBConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	Name     string
}

type RedisConfig struct {
	Host string
	Port string
}

type AuthConfig struct {
	APIKeys map[string]string // API key -> name/description
}

type RateLimitConfig struct {
	RequestsPerSecond float64
	BurstSize         int
}

type TrackingConfig struct {
	IPHashSalt string // пустая строка: tracking подставит соль по умолчанию
}

type GeoIPConfig struct {
	Providers       []string // порядок опроса провайдеров
	Timeout         time.Duration
	ProviderTimeout time.Duration
	CacheSize       int
	CacheTTL        time.Duration
}

type RedirectConfig struct {
	NotFoundPath string
	InactivePath string
	ErrorPath    string
}

type AffiliateConfig struct {
	AllowedHosts []string
}

type AccessLogConfig struct {
	Sink       string // direct | rabbitmq
	Workers    int
	BufferSize int
}

type RabbitMQConfig struct {
	URL   string
	Queue string
}

type CacheConfig struct {
	QRImageSize int
	QRImageTTL  time.Duration
	EntityTTL   time.Duration
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		// .env необязателен: в контейнере всё приходит из окружения
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}

	var cfg Config
	cfg.App.Port = v.GetString("APP_PORT")
	cfg.App.BaseURL = strings.TrimRight(v.GetString("APP_BASE_URL"), "/")
	cfg.App.LogLevel = v.GetString("LOG_LEVEL")
	cfg.App.ReportTimezone = v.GetString("REPORT_TIMEZONE")

	cfg.DB.Host = v.GetString("DB_HOST")
	cfg.DB.Port = v.GetString("DB_PORT")
	cfg.DB.User = v.GetString("DB_USER")
	cfg.DB.Password = v.GetString("DB_PASSWORD")
	cfg.DB.Name = v.GetString("DB_NAME")
	cfg.Redis.Host = v.GetString("REDIS_HOST")
	cfg.Redis.Port = v.GetString("REDIS_PORT")

	// Auth config - parse API keys from comma-separated string
	// Format: key1:name1,key2:name2
	cfg.Auth.APIKeys = parseAPIKeys(v.GetString("API_KEYS"))

	cfg.RateLimit.RequestsPerSecond = v.GetFloat64("RATE_LIMIT_RPS")
	cfg.RateLimit.BurstSize = v.GetInt("RATE_LIMIT_BURST")

	cfg.Tracking.IPHashSalt = v.GetString("IP_HASH_SALT")

	cfg.GeoIP.Providers = splitList(v.GetString("GEOIP_PROVIDERS"))
	cfg.GeoIP.Timeout = v.GetDuration("GEOIP_TIMEOUT")
	cfg.GeoIP.ProviderTimeout = v.GetDuration("GEOIP_PROVIDER_TIMEOUT")
	cfg.GeoIP.CacheSize = v.GetInt("GEOIP_CACHE_SIZE")
	cfg.GeoIP.CacheTTL = v.GetDuration("GEOIP_CACHE_TTL")

	cfg.Redirect.NotFoundPath = v.GetString("REDIRECT_NOT_FOUND_PATH")
	cfg.Redirect.InactivePath = v.GetString("REDIRECT_INACTIVE_PATH")
	cfg.Redirect.ErrorPath = v.GetString("REDIRECT_ERROR_PATH")

	cfg.Affiliate.AllowedHosts = splitList(v.GetString("AFFILIATE_ALLOWED_HOSTS"))

	cfg.AccessLog.Sink = strings.ToLower(v.GetString("ACCESS_LOG_SINK"))
	cfg.AccessLog.Workers = v.GetInt("ACCESS_LOG_WORKERS")
	cfg.AccessLog.BufferSize = v.GetInt("ACCESS_LOG_BUFFER")
	cfg.RabbitMQ.URL = v.GetString("RABBITMQ_URL")
	cfg.RabbitMQ.Queue = v.GetString("ACCESS_LOG_QUEUE")

	cfg.Cache.QRImageSize = v.GetInt("QR_IMAGE_CACHE_SIZE")
	cfg.Cache.QRImageTTL = v.GetDuration("QR_IMAGE_CACHE_TTL")
	cfg.Cache.EntityTTL = v.GetDuration("ENTITY_CACHE_TTL")

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("APP_PORT", "8080")
	v.SetDefault("APP_BASE_URL", "http://localhost:8080")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("REPORT_TIMEZONE", "America/Sao_Paulo")

	v.SetDefault("RATE_LIMIT_RPS", 10)
	v.SetDefault("RATE_LIMIT_BURST", 20)

	v.SetDefault("GEOIP_PROVIDERS", "ipwhois,ipapico,ipapi")
	v.SetDefault("GEOIP_TIMEOUT", 3*time.Second)
	v.SetDefault("GEOIP_PROVIDER_TIMEOUT", 2*time.Second)
	v.SetDefault("GEOIP_CACHE_SIZE", 10000)
	v.SetDefault("GEOIP_CACHE_TTL", 6*time.Hour)

	v.SetDefault("REDIRECT_NOT_FOUND_PATH", "/not-found")
	v.SetDefault("REDIRECT_INACTIVE_PATH", "/link-inactive")
	v.SetDefault("REDIRECT_ERROR_PATH", "/error")

	v.SetDefault("AFFILIATE_ALLOWED_HOSTS", "shopee.com.br,shope.ee,s.shopee.com.br")

	v.SetDefault("ACCESS_LOG_SINK", "direct")
	v.SetDefault("ACCESS_LOG_WORKERS", 3)
	v.SetDefault("ACCESS_LOG_BUFFER", 1000)
	v.SetDefault("ACCESS_LOG_QUEUE", "access_logs")

	v.SetDefault("QR_IMAGE_CACHE_SIZE", 512)
	v.SetDefault("QR_IMAGE_CACHE_TTL", 10*time.Minute)
	v.SetDefault("ENTITY_CACHE_TTL", 5*time.Minute)
}

// parseAPIKeys parses comma-separated API keys in format "key1:name1,key2:name2"
func parseAPIKeys(raw string) map[string]string {
	keys := make(map[string]string)
	if raw == "" {
		return keys
	}

	pairs := strings.Split(raw, ",")
	for _, pair := range pairs {
		parts := strings.SplitN(strings.TrimSpace(pair), ":", 2)
		if len(parts) == 2 {
			keys[strings.TrimSpace(parts[0])] = strings.TrimSpace(parts[1])
		}
	}

	return keys
}

// splitList разбирает список через запятую, отбрасывая пустые элементы
func splitList(raw string) []string {
	var out []string
	for _, item := range strings.Split(raw, ",") {
		item = strings.ToLower(strings.TrimSpace(item))
		if item != "" {
			out = append(out, item)
		}
	}
	return out
}
