package qr

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/makiuchi-d/gozxing"
	gozxingqr "github.com/makiuchi-d/gozxing/qrcode"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const testPayload = "http://localhost:8080/r/7f1c1d52-7c43-4b6e-9a55-4a1f0f6a2b10"

var allStyles = []ModuleStyle{ModuleSquare, ModuleRounded, ModuleCircle, ModuleDiamond}

func intPtr(v int) *int { return &v }

func strPtr(v string) *string { return &v }

func stylePtr(m ModuleStyle) *string { return strPtr(string(m)) }

// testLogo PNG w x h: красный прямоугольник с синей полосой
func testLogo(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			c := color.RGBA{R: 220, A: 255}
			if y > h/3 && y < h/2 {
				c = color.RGBA{B: 200, A: 255}
			}
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func decodeQR(t *testing.T, img image.Image) string {
	t.Helper()
	bmp, err := gozxing.NewBinaryBitmapFromImage(img)
	require.NoError(t, err)
	hints := map[gozxing.DecodeHintType]interface{}{gozxing.DecodeHintType_TRY_HARDER: true}
	res, err := gozxingqr.NewQRCodeReader().Decode(bmp, hints)
	require.NoError(t, err)
	return res.GetText()
}

// TestResolve_Defaults проверяет значения по умолчанию для пустого стиля
func TestResolve_Defaults(t *testing.T) {
	s, err := StyleOptions{}.Resolve()
	require.NoError(t, err)

	assert.Equal(t, 400, s.Size)
	assert.Equal(t, 2, s.Margin)
	assert.Equal(t, color.RGBA{A: 255}, s.Dark)
	assert.Equal(t, color.RGBA{R: 255, G: 255, B: 255, A: 255}, s.Light)
	assert.Equal(t, 20, s.LogoSize)
	assert.Equal(t, ModuleSquare, s.Module)
	assert.Nil(t, s.Logo)
}

// TestResolve_Invalid проверяет отклонение некорректных стилей
func TestResolve_Invalid(t *testing.T) {
	cases := map[string]StyleOptions{
		"size too small":   {Size: intPtr(100)},
		"size too large":   {Size: intPtr(900)},
		"margin too large": {Margin: intPtr(11)},
		"negative margin":  {Margin: intPtr(-1)},
		"named color":      {DarkColor: strPtr("red")},
		"short hex":        {LightColor: strPtr("#12345")},
		"alpha hex":        {DarkColor: strPtr("#00000080")},
		"unknown module":   {ModuleStyle: strPtr("star")},
		"bad logo":         {Logo: strPtr("!!!not base64!!!")},
		"bad data url":     {Logo: strPtr("data:image/png,abc")},
	}

	for name, opts := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := opts.Resolve()
			assert.ErrorIs(t, err, ErrInvalidStyle)
		})
	}
}

// TestResolve_ShortHexAndDataURL проверяет короткую запись цвета и логотип в data URL
func TestResolve_ShortHexAndDataURL(t *testing.T) {
	logo := testLogo(t, 8, 8)
	s, err := StyleOptions{
		DarkColor: strPtr("#F00"),
		Logo:      strPtr("data:image/png;base64," + base64.StdEncoding.EncodeToString(logo)),
	}.Resolve()
	require.NoError(t, err)

	assert.Equal(t, color.RGBA{R: 255, A: 255}, s.Dark)
	assert.Equal(t, logo, s.Logo)
}

// TestClampLogoSize проверяет зажим размера логотипа вместо отказа
func TestClampLogoSize(t *testing.T) {
	assert.Equal(t, 25, ClampLogoSize(80))
	assert.Equal(t, 10, ClampLogoSize(5))
	assert.Equal(t, 18, ClampLogoSize(18))

	s, err := StyleOptions{LogoSize: intPtr(80)}.Resolve()
	require.NoError(t, err)
	assert.Equal(t, MaxLogoSize, s.LogoSize)
}

// TestStyleOptions_Merge проверяет наложение частичного стиля
func TestStyleOptions_Merge(t *testing.T) {
	base := StyleOptions{Size: intPtr(300), DarkColor: strPtr("#111111"), ModuleStyle: stylePtr(ModuleCircle)}
	patch := StyleOptions{Size: intPtr(500), Logo: strPtr("")}

	merged := base.Merge(patch)

	assert.Equal(t, 500, *merged.Size)
	assert.Equal(t, "#111111", *merged.DarkColor)
	assert.Equal(t, "circle", *merged.ModuleStyle)
	assert.Equal(t, "", *merged.Logo)
	assert.Equal(t, 300, *base.Size)
}

// TestRender_PNGSize проверяет, что холст ровно size x size
func TestRender_PNGSize(t *testing.T) {
	r := NewRenderer(nil, zap.NewNop())

	for _, size := range []int{200, 333, 800} {
		data, err := r.Render(testPayload, StyleOptions{Size: intPtr(size), ModuleStyle: stylePtr(ModuleRounded)})
		require.NoError(t, err)

		cfg, err := png.DecodeConfig(bytes.NewReader(data))
		require.NoError(t, err)
		assert.Equal(t, size, cfg.Width)
		assert.Equal(t, size, cfg.Height)
	}
}

// TestRender_FinderInvariance проверяет, что угловые зоны одинаковы для всех стилей
func TestRender_FinderInvariance(t *testing.T) {
	r := NewRenderer(nil, zap.NewNop())
	matrix, err := SkipMatrixSource{}.Matrix(testPayload, ECMedium)
	require.NoError(t, err)

	for _, size := range []int{200, 400, 517} {
		opts := StyleOptions{Size: intPtr(size), Margin: intPtr(3)}
		reference, err := r.RenderImage(testPayload, opts)
		require.NoError(t, err)

		style, err := opts.Resolve()
		require.NoError(t, err)
		regions := finderRegions(len(matrix), style)

		for _, module := range allStyles[1:] {
			opts.ModuleStyle = stylePtr(module)
			img, err := r.RenderImage(testPayload, opts)
			require.NoError(t, err)

			for i, region := range regions {
				var darkPixels int
				for y := region.Min.Y; y < region.Max.Y; y++ {
					for x := region.Min.X; x < region.Max.X; x++ {
						want := reference.RGBAAt(x, y)
						got := img.RGBAAt(x, y)
						require.Equal(t, want, got, "size=%d style=%s region=%d pixel=(%d,%d)", size, module, i, x, y)
						if got.R == 0 {
							darkPixels++
						}
					}
				}
				assert.Positive(t, darkPixels, "finder region %d must contain dark modules", i)
			}
		}
	}
}

// fixedMatrix MatrixSource с заранее заданной матрицей
type fixedMatrix [][]bool

func (m fixedMatrix) Matrix(string, ErrorCorrection) ([][]bool, error) { return m, nil }

// TestRender_Orientation проверяет, что matrix[y][x] попадает в столбец x и строку y
func TestRender_Orientation(t *testing.T) {
	const n = 21
	m := make(fixedMatrix, n)
	for y := range m {
		m[y] = make([]bool, n)
	}
	m[8][12] = true // строка 8, столбец 12, вне finder-зон

	r := NewRenderer(m, zap.NewNop())
	opts := StyleOptions{Size: intPtr(250), Margin: intPtr(2), ModuleStyle: stylePtr(ModuleCircle)}
	img, err := r.RenderImage("ignored", opts)
	require.NoError(t, err)

	pitch := 250.0 / float64(n+4)
	center := func(col, row int) (int, int) {
		return int((float64(col+2) + 0.5) * pitch), int((float64(row+2) + 0.5) * pitch)
	}

	x, y := center(12, 8)
	assert.Equal(t, uint8(0), img.RGBAAt(x, y).R, "module must be drawn at column 12, row 8")
	x, y = center(8, 12)
	assert.Equal(t, uint8(255), img.RGBAAt(x, y).R, "transposed cell must stay light")
}

// TestRender_RoundTrip проверяет читаемость для каждого стиля и размера логотипа
func TestRender_RoundTrip(t *testing.T) {
	r := NewRenderer(nil, zap.NewNop())
	logo := base64.StdEncoding.EncodeToString(testLogo(t, 64, 48))

	for _, module := range allStyles {
		for _, logoSize := range []int{0, 10, 18, 25} {
			t.Run(fmt.Sprintf("%s/logo%d", module, logoSize), func(t *testing.T) {
				opts := StyleOptions{Size: intPtr(500), ModuleStyle: stylePtr(module)}
				if logoSize > 0 {
					opts.Logo = &logo
					opts.LogoSize = intPtr(logoSize)
				}

				img, err := r.RenderImage(testPayload, opts)
				require.NoError(t, err)
				assert.Equal(t, testPayload, decodeQR(t, img))
			})
		}
	}
}

// TestRender_CustomColors проверяет цвета фона и модулей
func TestRender_CustomColors(t *testing.T) {
	r := NewRenderer(nil, zap.NewNop())
	img, err := r.RenderImage(testPayload, StyleOptions{
		Size:       intPtr(300),
		DarkColor:  strPtr("#1A237E"),
		LightColor: strPtr("#FFF8E1"),
	})
	require.NoError(t, err)

	assert.Equal(t, color.RGBA{R: 0xff, G: 0xf8, B: 0xe1, A: 0xff}, img.RGBAAt(0, 0))

	// внешнее кольцо верхнего левого finder-паттерна всегда тёмное
	matrix, err := SkipMatrixSource{}.Matrix(testPayload, ECMedium)
	require.NoError(t, err)
	pitch := 300.0 / float64(len(matrix)+4)
	p := int(2.5 * pitch)
	assert.Equal(t, color.RGBA{R: 0x1a, G: 0x23, B: 0x7e, A: 0xff}, img.RGBAAt(p, p))
}

// TestRender_BadLogoDegrades проверяет, что битый логотип не ломает генерацию
func TestRender_BadLogoDegrades(t *testing.T) {
	r := NewRenderer(nil, zap.NewNop())
	notAnImage := base64.StdEncoding.EncodeToString([]byte("definitely not an image"))

	img, err := r.RenderImage(testPayload, StyleOptions{Size: intPtr(400), Logo: &notAnImage})
	require.NoError(t, err)
	assert.Equal(t, testPayload, decodeQR(t, img))
}

// TestOverlayLogo_Geometry проверяет вписывание, отступ и центрирование логотипа
func TestOverlayLogo_Geometry(t *testing.T) {
	white := color.RGBA{R: 255, G: 255, B: 255, A: 255}
	dst := image.NewRGBA(image.Rect(0, 0, 400, 400)) // прозрачный, чтобы видеть границы рамки

	// 20% от 400 = 80px, отступ 8px, рамка 96px, позиция (400-96)/2 = 152
	require.NoError(t, overlayLogo(dst, testLogo(t, 100, 50), 20, white))

	assert.Equal(t, color.RGBA{}, dst.RGBAAt(151, 200), "outside the padded box")
	assert.Equal(t, white, dst.RGBAAt(152, 152), "padding corner")
	assert.Equal(t, white, dst.RGBAAt(247, 247), "padding corner")
	assert.Equal(t, color.RGBA{}, dst.RGBAAt(248, 200))

	// логотип 2:1 вписан в 80x40 со смещением 20px по вертикали: строки 180..219
	assert.Equal(t, white, dst.RGBAAt(200, 170), "letterbox above the logo")
	inside := dst.RGBAAt(165, 185)
	assert.Greater(t, inside.R, uint8(180))
	assert.Less(t, inside.G, uint8(60))
}

// TestOverlayLogo_DecodeError проверяет, что при ошибке изображение не меняется
func TestOverlayLogo_DecodeError(t *testing.T) {
	dst := image.NewRGBA(image.Rect(0, 0, 50, 50))
	before := append([]uint8(nil), dst.Pix...)

	err := overlayLogo(dst, []byte("garbage"), 20, color.RGBA{A: 255})

	assert.Error(t, err)
	assert.Equal(t, before, dst.Pix)
}

// TestContainRect проверяет сохранение пропорций
func TestContainRect(t *testing.T) {
	assert.Equal(t, image.Rect(0, 20, 80, 60), containRect(100, 50, 80))
	assert.Equal(t, image.Rect(20, 0, 60, 80), containRect(50, 100, 80))
	assert.Equal(t, image.Rect(0, 0, 80, 80), containRect(10, 10, 80))
}
