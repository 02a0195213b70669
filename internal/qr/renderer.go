package qr

import (
	"bytes"
	"fmt"
	"image"
	"image/png"
	"math"

	"github.com/fogleman/gg"
	"go.uber.org/zap"
	"golang.org/x/image/draw"
)

// Геометрия фигурных модулей в долях шага сетки
const (
	moduleGap    = 0.10
	cornerRadius = 0.30
)

// Renderer рисует QR-код по матрице модулей со стилем и логотипом
type Renderer struct {
	source MatrixSource
	logger *zap.Logger
}

func NewRenderer(source MatrixSource, logger *zap.Logger) *Renderer {
	if source == nil {
		source = SkipMatrixSource{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Renderer{source: source, logger: logger}
}

// Render возвращает PNG размером size x size.
// Невалидный стиль даёт ErrInvalidStyle, ошибка логотипа только логируется.
func (r *Renderer) Render(payload string, opts StyleOptions) ([]byte, error) {
	img, err := r.RenderImage(payload, opts)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}

// RenderImage то же, что Render, но без кодирования в PNG
func (r *Renderer) RenderImage(payload string, opts StyleOptions) (*image.RGBA, error) {
	style, err := opts.Resolve()
	if err != nil {
		return nil, err
	}

	level := ECMedium
	if len(style.Logo) > 0 {
		level = ECHigh
	}

	matrix, err := r.source.Matrix(payload, level)
	if err != nil {
		return nil, err
	}

	img := drawModules(matrix, style)

	if len(style.Logo) > 0 {
		if err := overlayLogo(img, style.Logo, style.LogoSize, style.Light); err != nil {
			r.logger.Warn("Не удалось наложить логотип, QR возвращён без него", zap.Error(err))
		}
	}

	return img, nil
}

// drawModules рисует матрицу на холсте size x size.
// Шаг сетки: size / (n + 2*margin). Квадратные модули и все модули finder-паттернов
// заливаются прямоугольниками с привязкой к пикселям, поэтому углы одинаковы для любого стиля.
func drawModules(matrix [][]bool, style Style) *image.RGBA {
	n := len(matrix)
	img := image.NewRGBA(image.Rect(0, 0, style.Size, style.Size))
	draw.Draw(img, img.Bounds(), &image.Uniform{C: style.Light}, image.Point{}, draw.Src)
	if n == 0 {
		return img
	}

	pitch := float64(style.Size) / float64(n+2*style.Margin)
	dark := &image.Uniform{C: style.Dark}

	var dc *gg.Context
	if style.Module != ModuleSquare {
		dc = gg.NewContextForRGBA(img)
		dc.SetColor(style.Dark)
	}

	for y, row := range matrix {
		for x, on := range row {
			if !on {
				continue
			}

			if dc == nil || inFinder(x, y, n) {
				draw.Draw(img, cellRect(x, y, style.Margin, pitch), dark, image.Point{}, draw.Src)
				continue
			}

			left := float64(x+style.Margin) * pitch
			top := float64(y+style.Margin) * pitch
			addShape(dc, style.Module, left, top, pitch)
		}
	}

	if dc != nil {
		dc.Fill()
	}
	return img
}

// cellRect пиксельные границы модуля: соседние модули стыкуются без зазоров и наложений
func cellRect(x, y, margin int, pitch float64) image.Rectangle {
	x0 := int(math.Floor(float64(x+margin) * pitch))
	y0 := int(math.Floor(float64(y+margin) * pitch))
	x1 := int(math.Floor(float64(x+margin+1) * pitch))
	y1 := int(math.Floor(float64(y+margin+1) * pitch))
	return image.Rect(x0, y0, x1, y1)
}

// addShape добавляет фигуру модуля в текущий путь; фигура целиком внутри своей клетки
func addShape(dc *gg.Context, module ModuleStyle, left, top, pitch float64) {
	gap := pitch * moduleGap
	half := pitch / 2
	cx, cy := left+half, top+half

	switch module {
	case ModuleCircle:
		dc.DrawCircle(cx, cy, (pitch-2*gap)/2)
	case ModuleRounded:
		side := pitch - 2*gap
		dc.DrawRoundedRectangle(left+gap, top+gap, side, side, pitch*cornerRadius)
	case ModuleDiamond:
		d := (pitch - 2*gap) / 2
		dc.MoveTo(cx, cy-d)
		dc.LineTo(cx+d, cy)
		dc.LineTo(cx, cy+d)
		dc.LineTo(cx-d, cy)
		dc.ClosePath()
	default:
		dc.DrawRectangle(left, top, pitch, pitch)
	}
}

// finderRegions пиксельные прямоугольники трёх угловых зон (с учётом margin)
func finderRegions(moduleCount int, style Style) []image.Rectangle {
	pitch := float64(style.Size) / float64(moduleCount+2*style.Margin)
	edge := func(modules int) int {
		return int(math.Floor(float64(modules) * pitch))
	}
	near := edge(style.Margin + finderSize)
	farStart := edge(style.Margin + moduleCount - finderSize)
	farEnd := edge(style.Margin + moduleCount)

	return []image.Rectangle{
		image.Rect(edge(style.Margin), edge(style.Margin), near, near),
		image.Rect(farStart, edge(style.Margin), farEnd, near),
		image.Rect(edge(style.Margin), farStart, near, farEnd),
	}
}
