package imgx

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"

	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

const (
	// DefaultQuality 在体积与可读性之间比较均衡。
	DefaultQuality = 95

	bandHeight = 40
	textX      = 10
	baselineY  = 25
)

// Band 描述顶部标注条的样式。字体固定为 7x13 等宽点阵，只允许整数倍放大。
type Band struct {
	Scale int
}

func (b Band) scale() int {
	if b.Scale < 1 {
		return 1
	}
	return b.Scale
}

// Height 返回标注条高度：1 倍时为 40px，放大时保证容纳文字。
func (b Band) Height() int {
	s := b.scale()
	if s == 1 {
		return bandHeight
	}
	h := basicfont.Face7x13.Height*s + 12
	if h < bandHeight {
		return bandHeight
	}
	return h
}

// Annotate 把 src 复制为 RGBA，在顶部画不透明黑色标注条，并在其中左对齐写入白色文字。
//
// 返回新图像；src 不会被修改（解码器可能复用缓冲区）。
func Annotate(src image.Image, text string, band Band) (*image.RGBA, error) {
	if src == nil {
		return nil, errors.New("图像为空")
	}
	b := src.Bounds()
	if b.Dx() <= 0 || b.Dy() <= 0 {
		return nil, errors.New("图片尺寸无效")
	}

	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), src, b.Min, draw.Src)

	h := band.Height()
	if h > b.Dy() {
		h = b.Dy()
	}
	draw.Draw(dst, image.Rect(0, 0, b.Dx(), h), image.NewUniform(color.Black), image.Point{}, draw.Src)

	drawText(dst, text, band.scale(), h)
	return dst, nil
}

func drawText(dst *image.RGBA, text string, scale, bandH int) {
	face := basicfont.Face7x13
	if scale == 1 {
		d := font.Drawer{
			Dst:  dst,
			Src:  image.NewUniform(color.White),
			Face: face,
			Dot:  fixed.P(textX, baselineY),
		}
		d.DrawString(text)
		return
	}

	// 放大：先在透明画布上按 1 倍绘制，再最近邻放大，保持点阵字形锐利。
	w := font.MeasureString(face, text).Ceil()
	if w <= 0 {
		return
	}
	glyphs := image.NewRGBA(image.Rect(0, 0, w, face.Height))
	d := font.Drawer{
		Dst:  glyphs,
		Src:  image.NewUniform(color.White),
		Face: face,
		Dot:  fixed.P(0, face.Ascent),
	}
	d.DrawString(text)

	top := (bandH - face.Height*scale) / 2
	if top < 0 {
		top = 0
	}
	target := image.Rect(textX, top, textX+w*scale, top+face.Height*scale)
	xdraw.NearestNeighbor.Scale(dst, target, glyphs, glyphs.Bounds(), xdraw.Over, nil)
}

// EncodeJPEG 把图像编码为 JPEG。quality 超出 [1,100] 时使用 DefaultQuality。
func EncodeJPEG(img image.Image, quality int) ([]byte, error) {
	if quality < 1 || quality > 100 {
		quality = DefaultQuality
	}
	var out bytes.Buffer
	if err := jpeg.Encode(&out, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}
