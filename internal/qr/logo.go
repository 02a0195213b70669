package qr

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

var errEmptyLogo = errors.New("logo has zero size")

// overlayLogo вписывает логотип в квадрат size*percent/100 без обрезки,
// добавляет рамку цвета фона шириной 10% логотипа и кладёт результат по центру QR.
// При ошибке dst не изменяется.
func overlayLogo(dst *image.RGBA, logo []byte, percent int, background color.RGBA) error {
	src, _, err := image.Decode(bytes.NewReader(logo))
	if err != nil {
		return fmt.Errorf("decode logo: %w", err)
	}

	srcBounds := src.Bounds()
	if srcBounds.Empty() {
		return errEmptyLogo
	}

	size := dst.Bounds().Dx()
	logoPx := size * percent / 100
	if logoPx <= 0 {
		return errEmptyLogo
	}
	padding := logoPx / 10
	boxSize := logoPx + 2*padding

	box := image.NewRGBA(image.Rect(0, 0, boxSize, boxSize))
	draw.Draw(box, box.Bounds(), &image.Uniform{C: background}, image.Point{}, draw.Src)

	fit := containRect(srcBounds.Dx(), srcBounds.Dy(), logoPx).Add(image.Pt(padding, padding))
	draw.CatmullRom.Scale(box, fit, src, srcBounds, draw.Over, nil)

	pos := (size - boxSize) / 2
	draw.Draw(dst, image.Rect(pos, pos, pos+boxSize, pos+boxSize), box, image.Point{}, draw.Src)
	return nil
}

// containRect вписывает w x h в квадрат side x side с сохранением пропорций, по центру
func containRect(w, h, side int) image.Rectangle {
	fw, fh := side, side
	if w >= h {
		fh = max(1, h*side/w)
	} else {
		fw = max(1, w*side/h)
	}
	x := (side - fw) / 2
	y := (side - fh) / 2
	return image.Rect(x, y, x+fw, y+fh)
}
