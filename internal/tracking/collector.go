package tracking

import (
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"golang.org/x/text/language"

	"github.com/SergeiKhy/linktrack/internal/geoip"
)

// Способ перехода по ссылке
const (
	ScanCamera    = "camera"
	ScanLinkClick = "link_click"
	ScanUnknown   = "unknown"
)

// Максимальная длина User-Agent и Referer в символах
const MaxHeaderLength = 500

// Ширина колонок access_logs для остальных строковых полей
const (
	MaxVersionLength  = 32
	MaxLanguageLength = 35
	MaxPlaceLength    = 100
	MaxTimezoneLength = 64
)

// IP, если ни один заголовок прокси не передал адрес клиента
const UnknownIP = "0.0.0.0"

var (
	scannerRefererPattern = regexp.MustCompile(`(?i)qr|scanner|camera|lens`)
	httpRefererPattern    = regexp.MustCompile(`(?i)^https?://`)
)

// TrackingData всё, что удалось узнать о посетителе из одного запроса
type TrackingData struct {
	IP             string `json:"-"` // только для GeoIP, в хранилище не попадает
	IPHash         string
	SessionID      string
	UserAgent      *string
	Device         string
	IsMobile       bool
	Browser        string
	BrowserVersion *string
	Platform       string
	OSVersion      *string
	Country        *string
	Region         *string
	City           *string
	Timezone       *string
	Latitude       *float64
	Longitude      *float64
	Referer        *string
	UTMSource      *string
	UTMMedium      *string
	UTMCampaign    *string
	UTMTerm        *string
	UTMContent     *string
	SocialNetwork  *string
	Language       *string
	ScanMethod     string
	IsBot          bool
}

// HasCDNGeo true, если CDN уже передал страну и город и GeoIP не нужен
func (d *TrackingData) HasCDNGeo() bool {
	return d.Country != nil && d.City != nil
}

// MergeGeo дополняет пустые гео-поля результатом резолвера. Значения CDN имеют приоритет.
func (d *TrackingData) MergeGeo(res geoip.Result) {
	d.Country = firstNonNil(d.Country, res.Country)
	d.Region = firstNonNil(d.Region, res.Region)
	d.City = firstNonNil(d.City, res.City)
	d.Timezone = firstNonNil(d.Timezone, res.Timezone)
	d.Latitude = firstNonNil(d.Latitude, res.Latitude)
	d.Longitude = firstNonNil(d.Longitude, res.Longitude)
	d.clampGeo()
}

// clampGeo обрезает гео-поля до ширины колонок: CDN и провайдеры GeoIP не ограничивают длину
func (d *TrackingData) clampGeo() {
	d.Country = clamp(d.Country, MaxPlaceLength)
	d.Region = clamp(d.Region, MaxPlaceLength)
	d.City = clamp(d.City, MaxPlaceLength)
	d.Timezone = clamp(d.Timezone, MaxTimezoneLength)
}

// Collector собирает TrackingData из входящего запроса
type Collector struct {
	anonymizer *IPAnonymizer
}

func NewCollector(anonymizer *IPAnonymizer) *Collector {
	return &Collector{anonymizer: anonymizer}
}

// Collect не обращается к сети: GeoIP и проверка уникальности выполняются позже
func (c *Collector) Collect(r *http.Request) *TrackingData {
	ip := ClientIP(r.Header)
	rawUA := r.Header.Get("User-Agent")
	rawReferer := r.Header.Get("Referer")
	ua := ParseUserAgent(rawUA)

	data := &TrackingData{
		IP:             ip,
		IPHash:         c.anonymizer.Hash(ip),
		SessionID:      uuid.NewString(),
		UserAgent:      optional(truncate(rawUA, MaxHeaderLength)),
		Device:         ua.Device,
		IsMobile:       ua.IsMobile,
		Browser:        ua.Browser,
		BrowserVersion: clamp(ua.BrowserVersion, MaxVersionLength),
		Platform:       ua.Platform,
		OSVersion:      clamp(ua.OSVersion, MaxVersionLength),
		Referer:        optional(truncate(rawReferer, MaxHeaderLength)),
		SocialNetwork:  optional(DetectSocialNetwork(rawReferer, rawUA)),
		Language:       clamp(PreferredLanguage(r.Header.Get("Accept-Language")), MaxLanguageLength),
		ScanMethod:     DetectScanMethod(rawReferer),
		IsBot:          ua.IsBot,
	}

	query := r.URL.Query()
	data.UTMSource = queryParam(query, "utm_source")
	data.UTMMedium = queryParam(query, "utm_medium")
	data.UTMCampaign = queryParam(query, "utm_campaign")
	data.UTMTerm = queryParam(query, "utm_term")
	data.UTMContent = queryParam(query, "utm_content")

	applyCDNGeo(data, r.Header)

	return data
}

// ClientIP: первый адрес X-Forwarded-For, затем X-Real-IP, затем CF-Connecting-IP
func ClientIP(h http.Header) string {
	if forwarded := h.Get("X-Forwarded-For"); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	if ip := strings.TrimSpace(h.Get("X-Real-IP")); ip != "" {
		return ip
	}
	if ip := strings.TrimSpace(h.Get("CF-Connecting-IP")); ip != "" {
		return ip
	}
	return UnknownIP
}

// DetectScanMethod угадывает способ перехода по Referer
func DetectScanMethod(referer string) string {
	switch {
	case referer == "":
		return ScanCamera
	case scannerRefererPattern.MatchString(referer):
		return ScanCamera
	case httpRefererPattern.MatchString(referer):
		return ScanLinkClick
	default:
		return ScanUnknown
	}
}

// PreferredLanguage возвращает тег языка с наибольшим весом из Accept-Language
func PreferredLanguage(header string) *string {
	if strings.TrimSpace(header) == "" {
		return nil
	}
	tags, _, err := language.ParseAcceptLanguage(header)
	if err != nil || len(tags) == 0 || tags[0] == language.Und {
		return nil
	}
	tag := tags[0].String()
	return &tag
}

func applyCDNGeo(data *TrackingData, h http.Header) {
	data.Country = optional(h.Get("CF-IPCountry"))
	data.Region = optional(h.Get("CF-Region"))
	data.City = optional(h.Get("CF-IPCity"))
	data.Timezone = optional(h.Get("CF-Timezone"))
	data.Latitude = parseCoord(h.Get("CF-IPLat"))
	data.Longitude = parseCoord(h.Get("CF-IPLon"))
	data.clampGeo()
}

func parseCoord(raw string) *float64 {
	if raw == "" {
		return nil
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return nil
	}
	return &v
}

func queryParam(values map[string][]string, key string) *string {
	v, ok := values[key]
	if !ok || len(v) == 0 {
		return nil
	}
	return &v[0]
}

// truncate обрезает строку до n рун, не разрывая UTF-8 последовательности
func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}

func clamp(s *string, n int) *string {
	if s == nil {
		return nil
	}
	v := truncate(*s, n)
	return &v
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func firstNonNil[T any](a, b *T) *T {
	if a != nil {
		return a
	}
	return b
}
