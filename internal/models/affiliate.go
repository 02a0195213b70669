package models

import (
	"time"
)

// Статусы продления партнёрской ссылки
const (
	LinkStatusOK      = "ok"
	LinkStatusWarning = "warning"
	LinkStatusDanger  = "danger"
	LinkStatusExpired = "expired"
)

type AffiliateLink struct {
	ID           string    `json:"id"`
	Slug         string    `json:"slug"`
	ProductName  string    `json:"productName"`
	ProductImage *string   `json:"productImage,omitempty"`
	AffiliateURL string    `json:"affiliateUrl"`
	Category     *string   `json:"category,omitempty"`
	Notes        *string   `json:"notes,omitempty"`
	CreatedBy    string    `json:"createdBy"`
	IsActive     bool      `json:"isActive"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

type CreateAffiliateInput struct {
	ProductName  string  `json:"productName" binding:"required,max=200"`
	AffiliateURL string  `json:"affiliateUrl" binding:"required,max=2048"`
	CreatedBy    string  `json:"createdBy" binding:"required,max=100"`
	Category     *string `json:"category,omitempty" binding:"omitempty,max=100"`
	Notes        *string `json:"notes,omitempty" binding:"omitempty,max=2000"`
	ProductImage *string `json:"productImage,omitempty" binding:"omitempty,max=2048"`
	CustomSlug   *string `json:"customSlug,omitempty" binding:"omitempty,min=3,max=50"`
}

// UpdateAffiliateInput частичное обновление: nil означает "не менять"
type UpdateAffiliateInput struct {
	ProductName  *string `json:"productName,omitempty" binding:"omitempty,min=1,max=200"`
	AffiliateURL *string `json:"affiliateUrl,omitempty" binding:"omitempty,max=2048"`
	Category     *string `json:"category,omitempty" binding:"omitempty,max=100"`
	Notes        *string `json:"notes,omitempty" binding:"omitempty,max=2000"`
	ProductImage *string `json:"productImage,omitempty" binding:"omitempty,max=2048"`
	IsActive     *bool   `json:"isActive,omitempty"`
}

type AffiliateFilter struct {
	CreatedBy *string
	Category  *string
	IsActive  *bool
}

// AffiliateSummary элемент списка со счётчиками и сроком продления
type AffiliateSummary struct {
	AffiliateLink
	TotalClicks    int64  `json:"totalClicks"`
	UniqueVisitors int64  `json:"uniqueVisitors"`
	DaysRemaining  int    `json:"daysRemaining"`
	Status         string `json:"status"`
}

type AffiliateStats struct {
	AffiliateSummary
	Daily           []DailyCount `json:"daily"`
	BySocialNetwork []Bucket     `json:"bySocialNetwork"`
	ByCountry       []Bucket     `json:"byCountry"`
	RecentAccesses  []AccessLog  `json:"recentAccesses"`
}
