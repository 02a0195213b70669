package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/SergeiKhy/linktrack/internal/service"
	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// apiError HTTP-представление ошибки сервиса
type apiError struct {
	target  error
	status  int
	code    string
	message string
}

var serviceErrors = []apiError{
	{service.ErrNotFound, http.StatusNotFound, "not_found", "Resource not found"},
	{service.ErrInvalidURL, http.StatusBadRequest, "invalid_url", "URL must be an absolute http(s) URL"},
	{service.ErrHostNotAllowed, http.StatusBadRequest, "host_not_allowed", "URL host is not an allowed partner domain"},
	{service.ErrInvalidStyle, http.StatusBadRequest, "invalid_style", ""},
	{service.ErrSlugTaken, http.StatusBadRequest, "slug_taken", "Slug is already in use"},
	{service.ErrInvalidSlug, http.StatusBadRequest, "invalid_slug", "Slug must contain lowercase letters, digits and single hyphens"},
	{service.ErrNothingToUpdate, http.StatusBadRequest, "nothing_to_update", "No fields to update"},
}

// respondError переводит ошибку сервиса в ErrorResponse.
// Неизвестные ошибки логируются и отдаются как 500 без подробностей.
func respondError(c *gin.Context, logger *zap.Logger, op string, err error) {
	for _, e := range serviceErrors {
		if errors.Is(err, e.target) {
			message := e.message
			if message == "" {
				message = err.Error()
			}
			c.JSON(e.status, ErrorResponse{Error: e.code, Message: message})
			return
		}
	}

	logger.Error(op, zap.Error(err))
	c.JSON(http.StatusInternalServerError, ErrorResponse{
		Error:   "internal_error",
		Message: "Internal server error",
	})
}

// respondBindError отвечает на ошибку биндинга тела запроса.
// Ошибки в полях стиля отдаются как invalid_style.
func respondBindError(c *gin.Context, err error) {
	if isBodyTooLarge(err) {
		respondBodyTooLarge(c)
		return
	}
	code := "invalid_request"
	if isStyleBindError(err) {
		code = "invalid_style"
	}
	c.JSON(http.StatusBadRequest, ErrorResponse{Error: code, Message: err.Error()})
}

// limitBody ограничивает размер тела до maxBodySize
func limitBody(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBodySize)
}

func isBodyTooLarge(err error) bool {
	var tooLarge *http.MaxBytesError
	return errors.As(err, &tooLarge)
}

func respondBodyTooLarge(c *gin.Context) {
	c.JSON(http.StatusRequestEntityTooLarge, ErrorResponse{
		Error:   "payload_too_large",
		Message: fmt.Sprintf("Request body exceeds %d bytes", maxBodySize),
	})
}

var styleFields = map[string]struct{}{
	"size":        {},
	"margin":      {},
	"darkColor":   {},
	"lightColor":  {},
	"logo":        {},
	"logoSize":    {},
	"moduleStyle": {},
}

func isStyleBindError(err error) bool {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		for _, fe := range verrs {
			if strings.Contains(fe.StructNamespace(), ".Style") {
				return true
			}
		}
		return false
	}

	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		field := typeErr.Field
		if i := strings.LastIndex(field, "."); i >= 0 {
			field = field[i+1:]
		}
		_, ok := styleFields[field]
		return ok
	}
	return false
}
