package qr

import (
	"fmt"

	qrcode "github.com/skip2/go-qrcode"
)

// ErrorCorrection уровень избыточности QR
type ErrorCorrection int

const (
	ECMedium ErrorCorrection = iota // ~15%, без логотипа
	ECHigh                          // ~30%, логотип закрывает часть модулей
)

// Размер finder-паттерна в модулях
const finderSize = 7

// MatrixSource строит матрицу модулей. matrix[y][x] == true означает тёмный модуль,
// (0, 0) в левом верхнем углу, без quiet zone.
type MatrixSource interface {
	Matrix(payload string, level ErrorCorrection) ([][]bool, error)
}

// SkipMatrixSource MatrixSource поверх github.com/skip2/go-qrcode
type SkipMatrixSource struct{}

func (SkipMatrixSource) Matrix(payload string, level ErrorCorrection) ([][]bool, error) {
	recovery := qrcode.Medium
	if level == ECHigh {
		recovery = qrcode.Highest
	}

	code, err := qrcode.New(payload, recovery)
	if err != nil {
		return nil, fmt.Errorf("encode qr: %w", err)
	}
	// quiet zone рисуем сами по margin из стиля
	code.DisableBorder = true

	return code.Bitmap(), nil
}

// inFinder true для модулей трёх угловых блоков 7x7
func inFinder(x, y, n int) bool {
	top := y < finderSize
	left := x < finderSize
	right := x >= n-finderSize
	bottom := y >= n-finderSize
	return (top && left) || (top && right) || (bottom && left)
}
