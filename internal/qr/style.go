package qr

import (
	"encoding/base64"
	"errors"
	"fmt"
	"image/color"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/lucasb-eyer/go-colorful"
)

// ModuleStyle форма модулей вне finder-паттернов
type ModuleStyle string

const (
	ModuleSquare  ModuleStyle = "square"
	ModuleRounded ModuleStyle = "rounded"
	ModuleCircle  ModuleStyle = "circle"
	ModuleDiamond ModuleStyle = "diamond"
)

// Значения по умолчанию и допустимые границы
const (
	DefaultSize       = 400
	DefaultMargin     = 2
	DefaultDarkColor  = "#000000"
	DefaultLightColor = "#FFFFFF"
	DefaultLogoSize   = 20

	MinLogoSize = 10
	MaxLogoSize = 25
)

var ErrInvalidStyle = errors.New("invalid style")

var hexColorPattern = regexp.MustCompile(`^#(?:[0-9a-fA-F]{3}|[0-9a-fA-F]{6})$`)

// Теги binding совпадают с gin, поэтому одна и та же структура валидируется
// и при биндинге запроса, и после слияния со стилем из базы.
var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.SetTagName("binding")
	return v
}

// StyleOptions стиль, присланный клиентом. Все поля необязательны,
// недостающие берутся из значений по умолчанию при рендеринге.
type StyleOptions struct {
	Size        *int    `json:"size,omitempty" binding:"omitempty,min=200,max=800"`
	Margin      *int    `json:"margin,omitempty" binding:"omitempty,min=0,max=10"`
	DarkColor   *string `json:"darkColor,omitempty" binding:"omitempty,hexcolor"`
	LightColor  *string `json:"lightColor,omitempty" binding:"omitempty,hexcolor"`
	Logo        *string `json:"logo,omitempty"`     // base64 или data:image/...;base64,...
	LogoSize    *int    `json:"logoSize,omitempty"` // процент от размера, зажимается в [10, 25]
	ModuleStyle *string `json:"moduleStyle,omitempty" binding:"omitempty,oneof=square rounded circle diamond"`
}

// Merge накладывает заданные поля patch поверх текущего стиля
func (o StyleOptions) Merge(patch StyleOptions) StyleOptions {
	if patch.Size != nil {
		o.Size = patch.Size
	}
	if patch.Margin != nil {
		o.Margin = patch.Margin
	}
	if patch.DarkColor != nil {
		o.DarkColor = patch.DarkColor
	}
	if patch.LightColor != nil {
		o.LightColor = patch.LightColor
	}
	if patch.Logo != nil {
		o.Logo = patch.Logo
	}
	if patch.LogoSize != nil {
		o.LogoSize = patch.LogoSize
	}
	if patch.ModuleStyle != nil {
		o.ModuleStyle = patch.ModuleStyle
	}
	return o
}

// Validate проверяет стиль так же, как это делает Resolve
func (o StyleOptions) Validate() error {
	_, err := o.Resolve()
	return err
}

// Style полностью разрешённый стиль, готовый к рендерингу
type Style struct {
	Size     int
	Margin   int
	Dark     color.RGBA
	Light    color.RGBA
	Logo     []byte
	LogoSize int
	Module   ModuleStyle
}

// Resolve валидирует опции и подставляет значения по умолчанию
func (o StyleOptions) Resolve() (Style, error) {
	if err := validate.Struct(o); err != nil {
		return Style{}, fmt.Errorf("%w: %s", ErrInvalidStyle, describe(err))
	}

	s := Style{
		Size:     valueOr(o.Size, DefaultSize),
		Margin:   valueOr(o.Margin, DefaultMargin),
		LogoSize: ClampLogoSize(valueOr(o.LogoSize, DefaultLogoSize)),
		Module:   ModuleStyle(valueOr(o.ModuleStyle, string(ModuleSquare))),
	}

	var err error
	if s.Dark, err = parseColor(valueOr(o.DarkColor, DefaultDarkColor)); err != nil {
		return Style{}, err
	}
	if s.Light, err = parseColor(valueOr(o.LightColor, DefaultLightColor)); err != nil {
		return Style{}, err
	}
	if o.Logo != nil && *o.Logo != "" {
		if s.Logo, err = DecodeLogo(*o.Logo); err != nil {
			return Style{}, err
		}
	}

	return s, nil
}

// ClampLogoSize зажимает процент логотипа в [10, 25]: больший логотип мешает сканированию
func ClampLogoSize(percent int) int {
	return max(MinLogoSize, min(MaxLogoSize, percent))
}

// DecodeLogo принимает чистый base64 или data URL
func DecodeLogo(raw string) ([]byte, error) {
	data := strings.TrimSpace(raw)
	if strings.HasPrefix(data, "data:") {
		_, payload, ok := strings.Cut(data, ";base64,")
		if !ok {
			return nil, fmt.Errorf("%w: logo data URL must be base64", ErrInvalidStyle)
		}
		data = payload
	}

	decoded, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		if decoded, err = base64.RawStdEncoding.DecodeString(data); err != nil {
			return nil, fmt.Errorf("%w: logo is not valid base64", ErrInvalidStyle)
		}
	}
	if len(decoded) == 0 {
		return nil, fmt.Errorf("%w: logo is empty", ErrInvalidStyle)
	}
	return decoded, nil
}

func parseColor(hex string) (color.RGBA, error) {
	if !hexColorPattern.MatchString(hex) {
		return color.RGBA{}, fmt.Errorf("%w: malformed color %q", ErrInvalidStyle, hex)
	}
	c, err := colorful.Hex(strings.ToLower(hex))
	if err != nil {
		return color.RGBA{}, fmt.Errorf("%w: malformed color %q", ErrInvalidStyle, hex)
	}
	r, g, b := c.RGB255()
	return color.RGBA{R: r, G: g, B: b, A: 0xff}, nil
}

// describe превращает ошибки валидатора в "size: min=200; margin: max=10"
func describe(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		rule := fe.Tag()
		if fe.Param() != "" {
			rule += "=" + fe.Param()
		}
		parts = append(parts, fmt.Sprintf("%s: %s", lowerFirst(fe.Field()), rule))
	}
	return strings.Join(parts, "; ")
}

func lowerFirst(s string) string {
	if s == "" {
		return s
	}
	return strings.ToLower(s[:1]) + s[1:]
}

func valueOr[T any](p *T, def T) T {
	if p == nil {
		return def
	}
	return *p
}
