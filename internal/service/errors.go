package service

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
)

// Ошибки сервиса
var (
	ErrNotFound        = errors.New("не найдено")
	ErrInvalidURL      = errors.New("невалидный URL")
	ErrHostNotAllowed  = errors.New("домен не входит в список партнёров")
	ErrInvalidStyle    = errors.New("невалидный стиль QR-кода")
	ErrSlugTaken       = errors.New("slug уже занят")
	ErrInvalidSlug     = errors.New("невалидный slug")
	ErrNothingToUpdate = errors.New("нет полей для обновления")
)

var validate = validator.New()

// validateURL принимает только абсолютные http(s) URL
func validateURL(raw string) error {
	if err := validate.Var(raw, "required,http_url"); err != nil {
		return fmt.Errorf("%w: %q", ErrInvalidURL, raw)
	}
	return nil
}
