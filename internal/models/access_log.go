package models

import (
	"time"
)

// EntityKind тип отслеживаемой сущности
type EntityKind string

const (
	EntityQRCode    EntityKind = "qr"
	EntityAffiliate EntityKind = "affiliate"
)

// Target минимум, нужный для редиректа. Кэшируется в Redis.
type Target struct {
	Kind           EntityKind `json:"kind"`
	ID             string     `json:"id"`
	DestinationURL string     `json:"destinationUrl"`
	IsActive       bool       `json:"isActive"`
}

// AccessLog одна запись о переходе. Создаётся один раз и больше не меняется.
type AccessLog struct {
	ID              int64      `json:"id"`
	EntityKind      EntityKind `json:"entityKind"`
	EntityID        string     `json:"entityId"`
	IPHash          string     `json:"ipHash"`
	SessionID       string     `json:"sessionId"`
	IsUniqueVisitor bool       `json:"isUniqueVisitor"`
	UserAgent       *string    `json:"userAgent,omitempty"`
	Device          string     `json:"device"`
	IsMobile        bool       `json:"isMobile"`
	Browser         string     `json:"browser"`
	BrowserVersion  *string    `json:"browserVersion,omitempty"`
	Platform        string     `json:"platform"`
	OSVersion       *string    `json:"osVersion,omitempty"`
	Country         *string    `json:"country,omitempty"`
	Region          *string    `json:"region,omitempty"`
	City            *string    `json:"city,omitempty"`
	Timezone        *string    `json:"timezone,omitempty"`
	Latitude        *float64   `json:"latitude,omitempty"`
	Longitude       *float64   `json:"longitude,omitempty"`
	Referer         *string    `json:"referer,omitempty"`
	UTMSource       *string    `json:"utmSource,omitempty"`
	UTMMedium       *string    `json:"utmMedium,omitempty"`
	UTMCampaign     *string    `json:"utmCampaign,omitempty"`
	UTMTerm         *string    `json:"utmTerm,omitempty"`
	UTMContent      *string    `json:"utmContent,omitempty"`
	SocialNetwork   *string    `json:"socialNetwork,omitempty"`
	Language        *string    `json:"language,omitempty"`
	ScanMethod      string     `json:"scanMethod"`
	IsBot           bool       `json:"isBot"`
	ResponseTimeMs  int64      `json:"responseTimeMs"`
	AccessedAt      time.Time  `json:"accessedAt"`
}

// AccessCounts общее число переходов и уникальных посетителей
type AccessCounts struct {
	Total  int64 `json:"totalClicks"`
	Unique int64 `json:"uniqueVisitors"`
}

type DailyCount struct {
	Date   string `json:"date"` // YYYY-MM-DD в часовом поясе отчётов
	Clicks int64  `json:"clicks"`
}

// Bucket счётчик для группировки (устройство, страна, соцсеть...)
type Bucket struct {
	Key   string `json:"key"`
	Count int64  `json:"count"`
}
