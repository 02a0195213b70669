package handler

import (
	"net/http"

	"github.com/SergeiKhy/linktrack/internal/models"
	"github.com/SergeiKhy/linktrack/internal/service"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type RedirectHandler struct {
	service  service.RedirectService
	recorder service.AccessRecorder
	logger   *zap.Logger
}

func NewRedirectHandler(service service.RedirectService, recorder service.AccessRecorder, logger *zap.Logger) *RedirectHandler {
	return &RedirectHandler{
		service:  service,
		recorder: recorder,
		logger:   logger,
	}
}

// QRCode godoc
// @Summary Redirect a QR code scan
// @Description Redirect to the QR code target URL and record the access
// @Tags redirect
// @Param id path string true "QR code ID"
// @Success 302
// @Router /r/{id} [get]
func (h *RedirectHandler) QRCode(c *gin.Context) {
	h.redirect(c, models.EntityQRCode, c.Param("id"))
}

// Affiliate godoc
// @Summary Redirect an affiliate link
// @Description Redirect to the partner URL of an active affiliate link and record the access
// @Tags redirect
// @Param slug path string true "Affiliate slug"
// @Success 302
// @Router /a/{slug} [get]
func (h *RedirectHandler) Affiliate(c *gin.Context) {
	h.redirect(c, models.EntityAffiliate, c.Param("slug"))
}

// redirect отвечает 302 до записи: запись уходит в фоновый recorder
func (h *RedirectHandler) redirect(c *gin.Context, kind models.EntityKind, key string) {
	visit := h.service.Visit(c.Request.Context(), kind, key, c.Request)

	c.Header("Cache-Control", "no-cache, no-store, must-revalidate")
	c.Header("Pragma", "no-cache")
	c.Header("Expires", "0")
	c.Redirect(http.StatusFound, visit.Location)

	if visit.Record != nil {
		h.recorder.Submit(visit.Record)
	}
}
