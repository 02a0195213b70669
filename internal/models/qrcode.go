package models

import (
	"time"

	"github.com/SergeiKhy/linktrack/internal/qr"
)

type QRCode struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	TargetURL string          `json:"targetUrl"`
	Style     qr.StyleOptions `json:"style"`
	CreatedAt time.Time       `json:"createdAt"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

type CreateQRCodeInput struct {
	Name      string           `json:"name" binding:"required,max=200"`
	TargetURL string           `json:"targetUrl" binding:"required,max=2048"`
	Style     *qr.StyleOptions `json:"style,omitempty"`
}

// PreviewQRCodeInput стиль передаётся на верхнем уровне тела запроса
type PreviewQRCodeInput struct {
	PreviewURL string `json:"previewUrl" binding:"omitempty,max=2048"`
	qr.StyleOptions
}

// QRCodeSummary элемент списка QR-кодов
type QRCodeSummary struct {
	QRCode
	TotalClicks    int64 `json:"totalClicks"`
	UniqueVisitors int64 `json:"uniqueVisitors"`
}

type QRCodeStats struct {
	QRCodeID       string       `json:"qrCodeId"`
	TotalClicks    int64        `json:"totalClicks"`
	UniqueVisitors int64        `json:"uniqueVisitors"`
	Daily          []DailyCount `json:"daily"`
	ByDevice       []Bucket     `json:"byDevice"`
	ByCountry      []Bucket     `json:"byCountry"`
	ByScanMethod   []Bucket     `json:"byScanMethod"`
}
