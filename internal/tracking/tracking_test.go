package tracking_test

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/SergeiKhy/linktrack/internal/geoip"
	"github.com/SergeiKhy/linktrack/internal/tracking"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	uaChromeWindows = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.6099.71 Safari/537.36"
	uaSafariMac     = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.1 Safari/605.1.15"
	uaIPhone        = "Mozilla/5.0 (iPhone; CPU iPhone OS 17_1_2 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.1 Mobile/15E148 Safari/604.1"
	uaIPad          = "Mozilla/5.0 (iPad; CPU OS 16_6 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/16.6 Mobile/15E148 Safari/604.1"
	uaIPadDesktop   = "Mozilla/5.0 (iPad; CPU OS 12_2 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/12.1 Safari/605.1.15"
	uaAndroidTablet = "Mozilla/5.0 (Linux; Android 12; SM-X700) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/119.0.0.0 Safari/537.36 Tablet"
	uaAndroid       = "Mozilla/5.0 (Linux; Android 13; SM-S901B) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/119.0.0.0 Mobile Safari/537.36"
	uaEdge          = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36 Edg/120.0.2210.61"
	uaOpera         = "Mozilla/5.0 (Windows NT 6.1; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/104.0.0.0 Safari/537.36 OPR/90.0.4480.54"
	uaFirefoxLinux  = "Mozilla/5.0 (X11; Linux x86_64; rv:121.0) Gecko/20100101 Firefox/121.0"
	uaIE11          = "Mozilla/5.0 (Windows NT 6.3; Trident/7.0; rv:11.0) like Gecko"
	uaGooglebot     = "Mozilla/5.0 (compatible; Googlebot/2.1; +http://www.google.com/bot.html)"
	uaChromeOS      = "Mozilla/5.0 (X11; CrOS x86_64 14541.0.0) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	uaInstagram     = "Mozilla/5.0 (iPhone; CPU iPhone OS 16_5 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Mobile/15E148 Instagram 290.0.0.13.115"
	uaFacebookApp   = "Mozilla/5.0 (iPhone; CPU iPhone OS 16_5 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Mobile/15E148 [FBAN/FBIOS;FBAV/420.0.0.33.107]"
)

func deref(s *string) string {
	if s == nil {
		return "<nil>"
	}
	return *s
}

// TestParseUserAgent проверяет классификацию типовых User-Agent
func TestParseUserAgent(t *testing.T) {
	tests := []struct {
		name           string
		ua             string
		device         string
		platform       string
		osVersion      string
		browser        string
		browserVersion string
		isBot          bool
	}{
		{"chrome windows", uaChromeWindows, "desktop", "Windows", "10/11", "Chrome", "120.0", false},
		{"safari mac", uaSafariMac, "desktop", "macOS", "10.15.7", "Safari", "17.1", false},
		{"iphone", uaIPhone, "mobile", "iOS", "17.1", "Safari", "17.1", false},
		{"ipad with mobile token", uaIPad, "mobile", "iOS", "16.6", "Safari", "16.6", false},
		{"ipad", uaIPadDesktop, "tablet", "iOS", "12.2", "Safari", "12.1", false},
		{"android tablet", uaAndroidTablet, "tablet", "Android", "12", "Chrome", "119.0", false},
		{"android chrome", uaAndroid, "mobile", "Android", "13", "Chrome", "119.0", false},
		{"edge", uaEdge, "desktop", "Windows", "10/11", "Edge", "120.0", false},
		{"opera", uaOpera, "desktop", "Windows", "7", "Opera", "90.0", false},
		{"firefox linux", uaFirefoxLinux, "desktop", "Linux", "<nil>", "Firefox", "121.0", false},
		{"ie11", uaIE11, "desktop", "Windows", "8.1", "Internet Explorer", "11.0", false},
		{"googlebot", uaGooglebot, "desktop", "unknown", "<nil>", "unknown", "<nil>", true},
		{"chrome os", uaChromeOS, "desktop", "Chrome OS", "<nil>", "Chrome", "120.0", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			info := tracking.ParseUserAgent(tt.ua)
			assert.Equal(t, tt.device, info.Device)
			assert.Equal(t, tt.platform, info.Platform)
			assert.Equal(t, tt.osVersion, deref(info.OSVersion))
			assert.Equal(t, tt.browser, info.Browser)
			assert.Equal(t, tt.browserVersion, deref(info.BrowserVersion))
			assert.Equal(t, tt.isBot, info.IsBot)
			assert.Equal(t, tt.device != "desktop", info.IsMobile)
		})
	}
}

// TestParseUserAgent_Empty проверяет, что пустой UA даёт "unknown", а не пустые поля
func TestParseUserAgent_Empty(t *testing.T) {
	info := tracking.ParseUserAgent("")

	assert.Equal(t, tracking.Unknown, info.Device)
	assert.Equal(t, tracking.Unknown, info.Platform)
	assert.Equal(t, tracking.Unknown, info.Browser)
	assert.False(t, info.IsMobile)
	assert.False(t, info.IsBot)
	assert.Nil(t, info.OSVersion)
	assert.Nil(t, info.BrowserVersion)
}

// TestParseUserAgent_Pure проверяет, что повторная классификация даёт тот же результат
func TestParseUserAgent_Pure(t *testing.T) {
	for _, ua := range []string{uaChromeWindows, uaIPhone, uaGooglebot, ""} {
		assert.Equal(t, tracking.ParseUserAgent(ua), tracking.ParseUserAgent(ua))
	}
}

// TestDetectSocialNetwork проверяет определение соцсети по Referer и маркерам встроенного браузера
func TestDetectSocialNetwork(t *testing.T) {
	tests := []struct {
		referer string
		ua      string
		want    string
	}{
		{"https://l.instagram.com/?u=x", uaIPhone, "instagram"},
		{"", uaInstagram, "instagram"},
		{"https://lm.facebook.com/l.php", uaAndroid, "facebook"},
		{"", uaFacebookApp, "facebook"},
		{"https://vm.tiktok.com/abc", "", "tiktok"},
		{"https://t.co/xyz", "", "twitter"},
		{"https://x.com/someone/status/1", "", "twitter"},
		{"https://www.linkedin.com/feed/", "", "linkedin"},
		{"https://web.whatsapp.com/", "", "whatsapp"},
		{"https://t.me/channel", "", "telegram"},
		{"https://br.pinterest.com/pin/1", "", "pinterest"},
		{"https://youtu.be/dQw4w9WgXcQ", "", "youtube"},
		{"https://www.reddit.com/r/golang", "", "reddit"},
		{"https://kwai.com/video", "", "kwai"},
		{"https://www.snapchat.com/add/x", "", "snapchat"},
		{"", "", ""},
		{"https://www.google.com/search?q=qr", uaChromeWindows, ""},
		// t.co не должен совпадать с произвольным доменом, содержащим эту подстроку
		{"https://www.microsoft.com/", "", ""},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%s|%s", tt.referer, tt.want), func(t *testing.T) {
			assert.Equal(t, tt.want, tracking.DetectSocialNetwork(tt.referer, tt.ua))
		})
	}
}

// TestIPAnonymizer проверяет детерминированность и длину хеша
func TestIPAnonymizer(t *testing.T) {
	a := tracking.NewIPAnonymizer("pepper")

	h1 := a.Hash("203.0.113.7")
	h2 := a.Hash("203.0.113.7")

	assert.Equal(t, h1, h2)
	assert.Len(t, h1, 16)
	assert.NotEqual(t, h1, a.Hash("203.0.113.8"))
	assert.NotEqual(t, h1, tracking.NewIPAnonymizer("salt").Hash("203.0.113.7"))
	assert.False(t, a.UsingDefaultSalt())
}

// TestIPAnonymizer_KnownValue фиксирует формат: sha256(ip + salt), первые 16 hex-символов
func TestIPAnonymizer_KnownValue(t *testing.T) {
	a := tracking.NewIPAnonymizer("")

	assert.True(t, a.UsingDefaultSalt())
	// sha256("1.2.3.4default-salt-change-in-production")
	assert.Regexp(t, "^[0-9a-f]{16}$", a.Hash("1.2.3.4"))
	assert.Equal(t, tracking.NewIPAnonymizer(tracking.DefaultSalt).Hash("1.2.3.4"), a.Hash("1.2.3.4"))
}

// TestIPAnonymizer_NoCollisions проверяет отсутствие коллизий на небольшом корпусе
func TestIPAnonymizer_NoCollisions(t *testing.T) {
	a := tracking.NewIPAnonymizer("pepper")
	seen := make(map[string]string)

	for i := 0; i < 256; i++ {
		for j := 0; j < 40; j++ {
			ip := fmt.Sprintf("10.%d.%d.1", i, j)
			h := a.Hash(ip)
			prev, exists := seen[h]
			require.False(t, exists, "collision between %s and %s", prev, ip)
			seen[h] = ip
		}
	}
}

// TestClientIP проверяет приоритет заголовков прокси
func TestClientIP(t *testing.T) {
	h := http.Header{}
	assert.Equal(t, tracking.UnknownIP, tracking.ClientIP(h))

	h.Set("CF-Connecting-IP", "198.51.100.3")
	assert.Equal(t, "198.51.100.3", tracking.ClientIP(h))

	h.Set("X-Real-IP", "198.51.100.2")
	assert.Equal(t, "198.51.100.2", tracking.ClientIP(h))

	h.Set("X-Forwarded-For", " 198.51.100.1 , 10.0.0.1")
	assert.Equal(t, "198.51.100.1", tracking.ClientIP(h))
}

// TestDetectScanMethod проверяет эвристику способа перехода
func TestDetectScanMethod(t *testing.T) {
	assert.Equal(t, tracking.ScanCamera, tracking.DetectScanMethod(""))
	assert.Equal(t, tracking.ScanCamera, tracking.DetectScanMethod("https://qr-scanner.app/"))
	assert.Equal(t, tracking.ScanCamera, tracking.DetectScanMethod("android-app://com.google.lens"))
	assert.Equal(t, tracking.ScanLinkClick, tracking.DetectScanMethod("https://example.com/page"))
	assert.Equal(t, tracking.ScanUnknown, tracking.DetectScanMethod("android-app://com.example"))
}

// TestPreferredLanguage проверяет выбор языка с наибольшим весом
func TestPreferredLanguage(t *testing.T) {
	assert.Nil(t, tracking.PreferredLanguage(""))
	assert.Equal(t, "pt-BR", deref(tracking.PreferredLanguage("pt-BR,pt;q=0.9,en-US;q=0.8")))
	assert.Equal(t, "en", deref(tracking.PreferredLanguage("de;q=0.5, en")))
}

// TestCollector_Collect проверяет сборку полной записи из запроса
func TestCollector_Collect(t *testing.T) {
	anonymizer := tracking.NewIPAnonymizer("pepper")
	c := tracking.NewCollector(anonymizer)

	req := httptest.NewRequest(http.MethodGet, "/r/abc?utm_source=flyer&utm_campaign=spring&utm_term=", nil)
	req.Header.Set("User-Agent", uaAndroid)
	req.Header.Set("Referer", "https://l.instagram.com/?u=x")
	req.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")
	req.Header.Set("Accept-Language", "pt-BR,pt;q=0.9")
	req.Header.Set("CF-IPCountry", "BR")
	req.Header.Set("CF-IPLat", "-23.55")

	data := c.Collect(req)

	assert.Equal(t, "203.0.113.9", data.IP)
	assert.Equal(t, anonymizer.Hash("203.0.113.9"), data.IPHash)
	assert.Len(t, data.SessionID, 36)
	assert.Equal(t, "mobile", data.Device)
	assert.Equal(t, "Android", data.Platform)
	assert.Equal(t, "Chrome", data.Browser)
	assert.Equal(t, "instagram", deref(data.SocialNetwork))
	assert.Equal(t, tracking.ScanLinkClick, data.ScanMethod)
	assert.Equal(t, "pt-BR", deref(data.Language))
	assert.Equal(t, "flyer", deref(data.UTMSource))
	assert.Equal(t, "spring", deref(data.UTMCampaign))
	assert.Equal(t, "", deref(data.UTMTerm))
	assert.Nil(t, data.UTMMedium)
	assert.Equal(t, "BR", deref(data.Country))
	assert.Nil(t, data.City)
	require.NotNil(t, data.Latitude)
	assert.InDelta(t, -23.55, *data.Latitude, 1e-9)
	assert.False(t, data.HasCDNGeo())

	// каждая запись получает свою сессию
	assert.NotEqual(t, data.SessionID, c.Collect(req).SessionID)
}

// TestCollector_Truncate проверяет ограничение длины User-Agent и Referer
func TestCollector_Truncate(t *testing.T) {
	c := tracking.NewCollector(tracking.NewIPAnonymizer("pepper"))

	req := httptest.NewRequest(http.MethodGet, "/r/abc", nil)
	req.Header.Set("User-Agent", strings.Repeat("é", 800))
	req.Header.Set("Referer", "https://example.com/"+strings.Repeat("a", 1000))

	data := c.Collect(req)

	assert.Equal(t, tracking.MaxHeaderLength, len([]rune(*data.UserAgent)))
	assert.Len(t, *data.Referer, tracking.MaxHeaderLength)
}

// TestCollector_ColumnWidths проверяет, что ни одно поле записи не превышает ширину своей колонки
func TestCollector_ColumnWidths(t *testing.T) {
	c := tracking.NewCollector(tracking.NewIPAnonymizer("pepper"))
	digits := strings.Repeat("9", 40)

	req := httptest.NewRequest(http.MethodGet, "/r/abc", nil)
	req.Header.Set("User-Agent", "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_"+digits+") AppleWebKit/537.36 (KHTML, like Gecko) Chrome/"+digits+".0 Safari/537.36")
	req.Header.Set("Accept-Language", "en-US-u-ca-gregory-co-phonebk-nu-latn-x-private1-private2")
	req.Header.Set("CF-IPCountry", strings.Repeat("B", 150))
	req.Header.Set("CF-Region", strings.Repeat("р", 150))
	req.Header.Set("CF-IPCity", strings.Repeat("c", 150))
	req.Header.Set("CF-Timezone", "America/"+strings.Repeat("x", 100))

	data := c.Collect(req)

	require.NotNil(t, data.BrowserVersion)
	require.NotNil(t, data.OSVersion)
	assert.Equal(t, "Chrome", data.Browser)
	assert.Equal(t, "macOS", data.Platform)
	assert.Len(t, *data.BrowserVersion, tracking.MaxVersionLength)
	assert.Len(t, *data.OSVersion, tracking.MaxVersionLength)
	if data.Language != nil {
		assert.LessOrEqual(t, len(*data.Language), tracking.MaxLanguageLength)
	}
	assert.Len(t, *data.Country, tracking.MaxPlaceLength)
	assert.Equal(t, tracking.MaxPlaceLength, len([]rune(*data.Region)))
	assert.Len(t, *data.City, tracking.MaxPlaceLength)
	assert.Len(t, *data.Timezone, tracking.MaxTimezoneLength)

	// значения провайдера GeoIP обрезаются так же
	long := strings.Repeat("z", 300)
	merged := &tracking.TrackingData{}
	merged.MergeGeo(geoip.Result{City: &long, Timezone: &long})
	assert.Len(t, *merged.City, tracking.MaxPlaceLength)
	assert.Len(t, *merged.Timezone, tracking.MaxTimezoneLength)
}

// TestTrackingData_MergeGeo проверяет приоритет значений CDN над резолвером
func TestTrackingData_MergeGeo(t *testing.T) {
	country, city, region := "BR", "Curitiba", "Paraná"
	lat := 1.5
	data := &tracking.TrackingData{Country: &country}

	data.MergeGeo(geoip.Result{Country: new(string), City: &city, Region: &region, Latitude: &lat})

	assert.Equal(t, "BR", *data.Country)
	assert.Equal(t, "Curitiba", *data.City)
	assert.Equal(t, "Paraná", *data.Region)
	assert.Equal(t, 1.5, *data.Latitude)
	assert.Nil(t, data.Timezone)
	assert.True(t, data.HasCDNGeo())
}
