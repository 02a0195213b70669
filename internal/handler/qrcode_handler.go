package handler

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/SergeiKhy/linktrack/internal/models"
	"github.com/SergeiKhy/linktrack/internal/qr"
	"github.com/SergeiKhy/linktrack/internal/service"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const maxBodySize = 4 << 20 // логотип в base64

type QRCodeHandler struct {
	service service.QRCodeService
	logger  *zap.Logger
}

func NewQRCodeHandler(service service.QRCodeService, logger *zap.Logger) *QRCodeHandler {
	return &QRCodeHandler{
		service: service,
		logger:  logger,
	}
}

// Create godoc
// @Summary Create a styled QR code
// @Description Persist a QR code and return its PNG encoding the tracking URL
// @Tags qr
// @Accept json
// @Produce png
// @Param request body models.CreateQRCodeInput true "QR code creation request"
// @Success 200 {file} binary
// @Header 200 {string} X-QR-ID "QR code ID"
// @Header 200 {string} X-Tracking-URL "URL encoded in the QR code"
// @Failure 400 {object} ErrorResponse
// @Failure 413 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /api/v1/qr [post]
func (h *QRCodeHandler) Create(c *gin.Context) {
	limitBody(c)
	var input models.CreateQRCodeInput
	if err := c.ShouldBindJSON(&input); err != nil {
		h.logger.Warn("Invalid request body", zap.Error(err))
		respondBindError(c, err)
		return
	}

	code, png, err := h.service.Create(c.Request.Context(), &input)
	if err != nil {
		respondError(c, h.logger, "Failed to create QR code", err)
		return
	}

	c.Header("X-QR-ID", code.ID)
	c.Header("X-Tracking-URL", h.service.TrackingURL(code.ID))
	c.Header("Content-Disposition", fmt.Sprintf(`inline; filename="qr-%s.png"`, code.ID))
	c.Data(http.StatusOK, "image/png", png)
}

// Preview godoc
// @Summary Preview a styled QR code
// @Description Render a QR code without persisting it
// @Tags qr
// @Accept json
// @Produce png
// @Param request body models.PreviewQRCodeInput true "Preview payload and style"
// @Success 200 {file} binary
// @Failure 400 {object} ErrorResponse
// @Failure 413 {object} ErrorResponse
// @Router /api/v1/qr/preview [post]
func (h *QRCodeHandler) Preview(c *gin.Context) {
	limitBody(c)
	var input models.PreviewQRCodeInput
	if err := c.ShouldBindJSON(&input); err != nil {
		respondBindError(c, err)
		return
	}

	png, err := h.service.Preview(c.Request.Context(), &input)
	if err != nil {
		respondError(c, h.logger, "Failed to render preview", err)
		return
	}

	c.Header("Cache-Control", "no-cache, no-store, must-revalidate")
	c.Data(http.StatusOK, "image/png", png)
}

// List godoc
// @Summary List QR codes
// @Description List QR codes, newest first, with click counters
// @Tags qr
// @Produce json
// @Success 200 {array} models.QRCodeSummary
// @Router /api/v1/qr [get]
func (h *QRCodeHandler) List(c *gin.Context) {
	codes, err := h.service.List(c.Request.Context())
	if err != nil {
		respondError(c, h.logger, "Failed to list QR codes", err)
		return
	}
	if codes == nil {
		codes = []models.QRCodeSummary{}
	}
	c.JSON(http.StatusOK, codes)
}

// Get godoc
// @Summary Get QR code metadata
// @Tags qr
// @Produce json
// @Param id path string true "QR code ID"
// @Success 200 {object} models.QRCode
// @Failure 404 {object} ErrorResponse
// @Router /api/v1/qr/{id} [get]
func (h *QRCodeHandler) Get(c *gin.Context) {
	code, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, h.logger, "Failed to get QR code", err)
		return
	}
	c.JSON(http.StatusOK, code)
}

// Image godoc
// @Summary Get QR code image
// @Description Return the PNG of a stored QR code. ETag changes with every style update.
// @Tags qr
// @Produce png
// @Param id path string true "QR code ID"
// @Param If-None-Match header string false "ETag from a previous response"
// @Success 200 {file} binary
// @Success 304
// @Failure 404 {object} ErrorResponse
// @Router /api/v1/qr/{id}/image [get]
func (h *QRCodeHandler) Image(c *gin.Context) {
	code, png, err := h.service.Image(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, h.logger, "Failed to render QR code", err)
		return
	}

	etag := fmt.Sprintf(`"%d"`, code.UpdatedAt.UnixMilli())
	c.Header("ETag", etag)
	c.Header("Cache-Control", "no-cache, must-revalidate")

	if etagMatches(c.GetHeader("If-None-Match"), etag) {
		c.Status(http.StatusNotModified)
		return
	}
	c.Data(http.StatusOK, "image/png", png)
}

// UpdateStyle godoc
// @Summary Update QR code style
// @Description Merge allowed style keys over the stored style and return the new PNG. Unknown keys are ignored.
// @Tags qr
// @Accept json
// @Produce png
// @Param id path string true "QR code ID"
// @Param request body qr.StyleOptions true "Style patch"
// @Success 200 {file} binary
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Failure 413 {object} ErrorResponse
// @Router /api/v1/qr/{id}/style [patch]
func (h *QRCodeHandler) UpdateStyle(c *gin.Context) {
	limitBody(c)
	patch, err := decodeStylePatch(c.Request.Body)
	if err != nil {
		if isBodyTooLarge(err) {
			respondBodyTooLarge(c)
			return
		}
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid_style", Message: err.Error()})
		return
	}

	code, png, err := h.service.UpdateStyle(c.Request.Context(), c.Param("id"), patch)
	if err != nil {
		respondError(c, h.logger, "Failed to update QR code style", err)
		return
	}

	c.Header("X-QR-ID", code.ID)
	c.Header("ETag", fmt.Sprintf(`"%d"`, code.UpdatedAt.UnixMilli()))
	c.Data(http.StatusOK, "image/png", png)
}

// Delete godoc
// @Summary Delete a QR code
// @Description Delete a QR code together with its access logs
// @Tags qr
// @Produce json
// @Param id path string true "QR code ID"
// @Success 200 {object} map[string]string
// @Failure 404 {object} ErrorResponse
// @Router /api/v1/qr/{id} [delete]
func (h *QRCodeHandler) Delete(c *gin.Context) {
	if err := h.service.Delete(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, h.logger, "Failed to delete QR code", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "QR code deleted successfully"})
}

// Stats godoc
// @Summary Get QR code statistics
// @Description Totals, unique visitors, daily clicks and breakdowns by device, country and scan method
// @Tags qr
// @Produce json
// @Param id path string true "QR code ID"
// @Success 200 {object} models.QRCodeStats
// @Failure 404 {object} ErrorResponse
// @Router /api/v1/qr/{id}/stats [get]
func (h *QRCodeHandler) Stats(c *gin.Context) {
	stats, err := h.service.Stats(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, h.logger, "Failed to get QR code stats", err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

// decodeStylePatch оставляет в теле только ключи стиля. Проверка значений
// выполняется сервисом после слияния с сохранённым стилем.
func decodeStylePatch(body io.Reader) (qr.StyleOptions, error) {
	var patch qr.StyleOptions

	var raw map[string]json.RawMessage
	if err := json.NewDecoder(body).Decode(&raw); err != nil {
		return patch, fmt.Errorf("malformed JSON body: %w", err)
	}

	allowed := make(map[string]json.RawMessage, len(styleFields))
	for key, value := range raw {
		if _, ok := styleFields[key]; ok {
			allowed[key] = value
		}
	}

	filtered, err := json.Marshal(allowed)
	if err != nil {
		return patch, err
	}
	if err := json.Unmarshal(filtered, &patch); err != nil {
		return patch, err
	}
	return patch, nil
}

// etagMatches разбирает If-None-Match: список тегов, W/ и "*"
func etagMatches(header, etag string) bool {
	if header == "" {
		return false
	}
	for _, candidate := range strings.Split(header, ",") {
		candidate = strings.TrimPrefix(strings.TrimSpace(candidate), "W/")
		if candidate == "*" || candidate == etag {
			return true
		}
	}
	return false
}
