package tracking

import (
	"regexp"
	"strings"
)

// Значение-заглушка для нераспознанных полей
const Unknown = "unknown"

// Классы устройств
const (
	DeviceMobile  = "mobile"
	DeviceTablet  = "tablet"
	DeviceDesktop = "desktop"
)

// UserAgentInfo результат разбора заголовка User-Agent
type UserAgentInfo struct {
	Device         string  `json:"device"`
	IsMobile       bool    `json:"isMobile"`
	Platform       string  `json:"platform"`
	OSVersion      *string `json:"osVersion"`
	Browser        string  `json:"browser"`
	BrowserVersion *string `json:"browserVersion"`
	IsBot          bool    `json:"isBot"`
}

var (
	botPattern    = regexp.MustCompile(`bot|crawler|spider|crawling|facebookexternalhit|slurp|googlebot|bingbot|yandex|baidu|duckduck`)
	mobilePattern = regexp.MustCompile(`mobile|iphone|ipod|blackberry|windows phone`)

	windowsPattern = regexp.MustCompile(`windows nt (\d+\.\d+)`)
	macPattern     = regexp.MustCompile(`mac os x (\d+[._]\d+[._]?\d*)`)
	androidPattern = regexp.MustCompile(`android (\d+\.?\d*\.?\d*)`)
	iosPattern     = regexp.MustCompile(`(?:iphone|ipad|ipod).*os (\d+[._]\d+)`)

	edgePattern    = regexp.MustCompile(`edg/(\d+\.?\d*)`)
	operaPattern   = regexp.MustCompile(`(?:opr|opera)/(\d+\.?\d*)`)
	chromePattern  = regexp.MustCompile(`chrome/(\d+\.?\d*)`)
	safariPattern  = regexp.MustCompile(`safari/\d+`)
	versionPattern = regexp.MustCompile(`version/(\d+\.?\d*)`)
	firefoxPattern = regexp.MustCompile(`firefox/(\d+\.?\d*)`)
	iePattern      = regexp.MustCompile(`(?:msie |trident.*rv:)(\d+\.?\d*)`)
	samsungPattern = regexp.MustCompile(`samsungbrowser/(\d+\.?\d*)`)
)

// Таблица версий Windows NT
var windowsVersions = map[string]string{
	"10.0": "10/11",
	"6.3":  "8.1",
	"6.2":  "8",
	"6.1":  "7",
	"6.0":  "Vista",
	"5.1":  "XP",
}

// ParseUserAgent классифицирует User-Agent: устройство, ОС, браузер, бот.
// Пустая строка допустима и даёт "unknown" во всех полях.
func ParseUserAgent(userAgent string) UserAgentInfo {
	if strings.TrimSpace(userAgent) == "" {
		return UserAgentInfo{
			Device:   Unknown,
			Platform: Unknown,
			Browser:  Unknown,
		}
	}

	ua := strings.ToLower(userAgent)

	info := UserAgentInfo{
		IsBot: botPattern.MatchString(ua),
	}
	info.Device, info.IsMobile = detectDevice(ua)
	info.Platform, info.OSVersion = detectPlatform(ua)
	info.Browser, info.BrowserVersion = detectBrowser(ua)

	return info
}

// detectDevice проверяет мобильные признаки раньше планшетных:
// iPad с "Mobile/" в UA считается телефоном.
func detectDevice(ua string) (string, bool) {
	if isMobile(ua) {
		return DeviceMobile, true
	}
	if isTablet(ua) {
		return DeviceTablet, true
	}
	return DeviceDesktop, false
}

// isMobile: мобильные ключевые слова или Android без "tablet" после названия ОС
func isMobile(ua string) bool {
	if mobilePattern.MatchString(ua) {
		return true
	}
	if idx := strings.Index(ua, "android"); idx >= 0 {
		return !strings.Contains(ua[idx:], "tablet")
	}
	return false
}

func isTablet(ua string) bool {
	return strings.Contains(ua, "tablet") || strings.Contains(ua, "ipad")
}

func detectPlatform(ua string) (string, *string) {
	if m := windowsPattern.FindStringSubmatch(ua); m != nil {
		if name, ok := windowsVersions[m[1]]; ok {
			return "Windows", &name
		}
		return "Windows", &m[1]
	}
	if m := macPattern.FindStringSubmatch(ua); m != nil {
		return "macOS", dotted(m[1])
	}
	if m := androidPattern.FindStringSubmatch(ua); m != nil {
		return "Android", &m[1]
	}
	if m := iosPattern.FindStringSubmatch(ua); m != nil {
		return "iOS", dotted(m[1])
	}
	if strings.Contains(ua, "linux") {
		return "Linux", nil
	}
	if strings.Contains(ua, "cros") {
		return "Chrome OS", nil
	}
	return Unknown, nil
}

// detectBrowser проверяет браузеры в фиксированном порядке:
// UA Chrome содержит "safari", UA Edge и Opera содержат "chrome".
func detectBrowser(ua string) (string, *string) {
	if m := edgePattern.FindStringSubmatch(ua); m != nil {
		return "Edge", &m[1]
	}
	if m := operaPattern.FindStringSubmatch(ua); m != nil {
		return "Opera", &m[1]
	}
	if m := chromePattern.FindStringSubmatch(ua); m != nil && !strings.Contains(ua, "chromium") {
		return "Chrome", &m[1]
	}
	if safariPattern.MatchString(ua) && !strings.Contains(ua, "chrome") {
		return "Safari", submatch(versionPattern, ua)
	}
	if m := firefoxPattern.FindStringSubmatch(ua); m != nil {
		return "Firefox", &m[1]
	}
	if m := iePattern.FindStringSubmatch(ua); m != nil {
		return "Internet Explorer", &m[1]
	}
	if strings.Contains(ua, "samsung") {
		return "Samsung Internet", submatch(samsungPattern, ua)
	}
	return Unknown, nil
}

func submatch(re *regexp.Regexp, s string) *string {
	if m := re.FindStringSubmatch(s); m != nil {
		return &m[1]
	}
	return nil
}

func dotted(version string) *string {
	v := strings.ReplaceAll(version, "_", ".")
	return &v
}
