package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// Ключи gin.Context
const (
	ContextAPIKeyName      = "api_key_name"
	ContextAPIKeyValidated = "api_key_validated"
)

// APIKeyConfig конфигурация для API key аутентификации
type APIKeyConfig struct {
	// ValidKeys карта валидных API ключей к их описаниям.
	// Пустая карта отключает проверку.
	ValidKeys map[string]string
	// HeaderName имя заголовка для API ключа (по умолчанию: X-API-Key)
	HeaderName string
}

// APIKey middleware для аутентификации по API ключу
type APIKey struct {
	config APIKeyConfig
}

// NewAPIKey создаёт новый API key middleware
func NewAPIKey(config APIKeyConfig) *APIKey {
	if config.HeaderName == "" {
		config.HeaderName = "X-API-Key"
	}
	return &APIKey{config: config}
}

// Enabled true, если настроен хотя бы один ключ
func (ak *APIKey) Enabled() bool {
	return len(ak.config.ValidKeys) > 0
}

// Middleware проверяет ключ из заголовка X-API-Key или Authorization: Bearer
func (ak *APIKey) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !ak.Enabled() {
			c.Next()
			return
		}

		apiKey := c.GetHeader(ak.config.HeaderName)
		if apiKey == "" {
			if token, ok := strings.CutPrefix(c.GetHeader("Authorization"), "Bearer "); ok {
				apiKey = strings.TrimSpace(token)
			}
		}

		if apiKey == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   "missing_api_key",
				"message": "Требуется API ключ. Передайте его через заголовок X-API-Key или Authorization: Bearer",
			})
			return
		}

		// constant-time сравнение с каждым ключом
		var keyName string
		valid := false
		for validKey, name := range ak.config.ValidKeys {
			if subtle.ConstantTimeCompare([]byte(apiKey), []byte(validKey)) == 1 {
				valid = true
				keyName = name
			}
		}

		if !valid {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   "invalid_api_key",
				"message": "Невалидный API ключ",
			})
			return
		}

		c.Set(ContextAPIKeyValidated, true)
		c.Set(ContextAPIKeyName, keyName)
		c.Next()
	}
}

// APIKeyName имя ключа, которым аутентифицирован запрос
func APIKeyName(c *gin.Context) (string, bool) {
	return c.GetString(ContextAPIKeyName), c.GetBool(ContextAPIKeyValidated)
}

// APIKeyRateKey ключ rate limiter для проверенного API ключа.
// Без проверенного ключа возвращает "", и лимит считается по IP.
func APIKeyRateKey(c *gin.Context) string {
	if name, ok := APIKeyName(c); ok {
		return "apikey:" + name
	}
	return ""
}
