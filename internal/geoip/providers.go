package geoip

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// Базовые адреса публичных сервисов
const (
	IPWhoIsBaseURL = "https://ipwho.is"
	IPAPICoBaseURL = "https://ipapi.co"
	IPAPIBaseURL   = "http://ip-api.com"
)

// Имена провайдеров в GEOIP_PROVIDERS
const (
	ProviderIPWhoIs = "ipwhois"
	ProviderIPAPICo = "ipapico"
	ProviderIPAPI   = "ipapi"
)

const maxResponseBytes = 64 << 10

// httpProvider общий JSON-клиент: строит URL, выполняет GET, декодирует ответ
type httpProvider struct {
	name   string
	client *http.Client
	urlFor func(ip string) string
	decode func(body io.Reader) (Result, error)
}

func (p *httpProvider) Name() string {
	return p.name
}

func (p *httpProvider) Lookup(ctx context.Context, ip string) (Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.urlFor(ip), http.NoBody)
	if err != nil {
		return Result{}, fmt.Errorf("%s: build request: %w", p.name, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("%s: %w", p.name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Result{}, fmt.Errorf("%s: status %d: %w", p.name, resp.StatusCode, ErrLookupFailed)
	}

	res, err := p.decode(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return Result{}, fmt.Errorf("%s: %w", p.name, err)
	}
	return res, nil
}

// NewIPWhoIsProvider ipwho.is: HTTPS, без жёсткого лимита
func NewIPWhoIsProvider(client *http.Client, baseURL string) Provider {
	base := strings.TrimRight(baseURL, "/")
	return &httpProvider{
		name:   ProviderIPWhoIs,
		client: client,
		urlFor: func(ip string) string { return base + "/" + url.PathEscape(ip) },
		decode: func(body io.Reader) (Result, error) {
			var data struct {
				Success   bool    `json:"success"`
				Country   string  `json:"country"`
				Region    string  `json:"region"`
				City      string  `json:"city"`
				Latitude  float64 `json:"latitude"`
				Longitude float64 `json:"longitude"`
				Timezone  struct {
					ID string `json:"id"`
				} `json:"timezone"`
			}
			if err := json.NewDecoder(body).Decode(&data); err != nil {
				return Result{}, fmt.Errorf("decode: %w", err)
			}
			if !data.Success {
				return Result{}, ErrLookupFailed
			}
			return Result{
				Country:   str(data.Country),
				Region:    str(data.Region),
				City:      str(data.City),
				Timezone:  str(data.Timezone.ID),
				Latitude:  coord(data.Latitude),
				Longitude: coord(data.Longitude),
			}, nil
		},
	}
}

// NewIPAPICoProvider ipapi.co: HTTPS, 1000 запросов в день бесплатно
func NewIPAPICoProvider(client *http.Client, baseURL string) Provider {
	base := strings.TrimRight(baseURL, "/")
	return &httpProvider{
		name:   ProviderIPAPICo,
		client: client,
		urlFor: func(ip string) string { return base + "/" + url.PathEscape(ip) + "/json/" },
		decode: func(body io.Reader) (Result, error) {
			var data struct {
				Error       bool    `json:"error"`
				CountryName string  `json:"country_name"`
				Region      string  `json:"region"`
				City        string  `json:"city"`
				Timezone    string  `json:"timezone"`
				Latitude    float64 `json:"latitude"`
				Longitude   float64 `json:"longitude"`
			}
			if err := json.NewDecoder(body).Decode(&data); err != nil {
				return Result{}, fmt.Errorf("decode: %w", err)
			}
			if data.Error {
				return Result{}, ErrLookupFailed
			}
			return Result{
				Country:   str(data.CountryName),
				Region:    str(data.Region),
				City:      str(data.City),
				Timezone:  str(data.Timezone),
				Latitude:  coord(data.Latitude),
				Longitude: coord(data.Longitude),
			}, nil
		},
	}
}

// NewIPAPIProvider ip-api.com: только HTTP на бесплатном тарифе
func NewIPAPIProvider(client *http.Client, baseURL string) Provider {
	base := strings.TrimRight(baseURL, "/")
	return &httpProvider{
		name:   ProviderIPAPI,
		client: client,
		urlFor: func(ip string) string {
			return base + "/json/" + url.PathEscape(ip) + "?fields=status,country,regionName,city,timezone,lat,lon"
		},
		decode: func(body io.Reader) (Result, error) {
			var data struct {
				Status     string  `json:"status"`
				Country    string  `json:"country"`
				RegionName string  `json:"regionName"`
				City       string  `json:"city"`
				Timezone   string  `json:"timezone"`
				Lat        float64 `json:"lat"`
				Lon        float64 `json:"lon"`
			}
			if err := json.NewDecoder(body).Decode(&data); err != nil {
				return Result{}, fmt.Errorf("decode: %w", err)
			}
			if data.Status != "success" {
				return Result{}, ErrLookupFailed
			}
			return Result{
				Country:   str(data.Country),
				Region:    str(data.RegionName),
				City:      str(data.City),
				Timezone:  str(data.Timezone),
				Latitude:  coord(data.Lat),
				Longitude: coord(data.Lon),
			}, nil
		},
	}
}

// ProvidersByName собирает цепочку в заданном порядке с публичными адресами
func ProvidersByName(names []string, client *http.Client) ([]Provider, error) {
	providers := make([]Provider, 0, len(names))
	for _, name := range names {
		switch name {
		case ProviderIPWhoIs:
			providers = append(providers, NewIPWhoIsProvider(client, IPWhoIsBaseURL))
		case ProviderIPAPICo:
			providers = append(providers, NewIPAPICoProvider(client, IPAPICoBaseURL))
		case ProviderIPAPI:
			providers = append(providers, NewIPAPIProvider(client, IPAPIBaseURL))
		default:
			return nil, fmt.Errorf("unknown geoip provider %q", name)
		}
	}
	return providers, nil
}

func str(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// coord: нулевая координата у этих сервисов означает "нет данных"
func coord(v float64) *float64 {
	if v == 0 {
		return nil
	}
	return &v
}
