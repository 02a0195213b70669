package tracking

import (
	"net/url"
	"strings"
)

// socialNetwork признаки одной соцсети: домены реферера, подстроки реферера
// и маркеры встроенного браузера в User-Agent.
type socialNetwork struct {
	name      string
	hosts     []string
	refTokens []string
	uaTokens  []string
}

// Порядок важен только при неоднозначности: побеждает первое совпадение.
var socialNetworks = []socialNetwork{
	{name: "instagram", hosts: []string{"instagram.com"}, uaTokens: []string{"instagram"}},
	{name: "facebook", hosts: []string{"facebook.com", "fb.com"}, uaTokens: []string{"fban", "fbav"}},
	{name: "tiktok", hosts: []string{"tiktok.com"}, uaTokens: []string{"tiktok", "musical_ly"}},
	{name: "twitter", hosts: []string{"twitter.com", "x.com", "t.co"}, uaTokens: []string{"twitter"}},
	{name: "linkedin", hosts: []string{"linkedin.com"}, uaTokens: []string{"linkedin"}},
	{name: "whatsapp", refTokens: []string{"whatsapp"}, uaTokens: []string{"whatsapp"}},
	{name: "telegram", hosts: []string{"t.me"}, refTokens: []string{"telegram"}, uaTokens: []string{"telegram"}},
	{name: "pinterest", hosts: []string{"pinterest.com", "pin.it"}, uaTokens: []string{"pinterest"}},
	{name: "youtube", hosts: []string{"youtube.com", "youtu.be"}},
	{name: "reddit", hosts: []string{"reddit.com"}},
	{name: "kwai", hosts: []string{"kwai.com"}, uaTokens: []string{"kwai"}},
	{name: "snapchat", hosts: []string{"snapchat.com"}, uaTokens: []string{"snapchat"}},
}

// DetectSocialNetwork определяет соцсеть-источник перехода по Referer и User-Agent.
// Пустая строка означает прямой переход или неизвестный источник.
func DetectSocialNetwork(referer, userAgent string) string {
	ref := strings.ToLower(strings.TrimSpace(referer))
	ua := strings.ToLower(userAgent)
	host := refererHost(ref)

	for _, network := range socialNetworks {
		if network.matches(ref, host, ua) {
			return network.name
		}
	}
	return ""
}

func (n socialNetwork) matches(ref, host, ua string) bool {
	for _, h := range n.hosts {
		if host != "" {
			if host == h || strings.HasSuffix(host, "."+h) {
				return true
			}
		} else if ref != "" && strings.Contains(ref, h) {
			// реферер без схемы: сравниваем по подстроке
			return true
		}
	}
	for _, token := range n.refTokens {
		if strings.Contains(ref, token) {
			return true
		}
	}
	for _, token := range n.uaTokens {
		if strings.Contains(ua, token) {
			return true
		}
	}
	return false
}

func refererHost(ref string) string {
	if ref == "" {
		return ""
	}
	u, err := url.Parse(ref)
	if err != nil {
		return ""
	}
	return strings.TrimPrefix(u.Hostname(), "www.")
}
