package util

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/png"
	"io"

	"github.com/disintegration/imaging"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

// DefaultMaxPixels 解码前允许的最大像素数，超过时拒绝解码，防止压缩炸弹占满内存
const DefaultMaxPixels = 89_478_485

var ErrTooManyPixels = errors.New("image exceeds pixel limit")

// DecodeImage 解码上传的图片（jpeg/png/gif/bmp/tiff/webp），并按 EXIF 方向摆正
func DecodeImage(r io.Reader) (image.Image, error) {
	return DecodeImageLimit(r, DefaultMaxPixels)
}

// DecodeImageLimit 先只读取图片头检查宽高，像素数超过 maxPixels 时返回 ErrTooManyPixels；
// maxPixels <= 0 表示不限制
func DecodeImageLimit(r io.Reader, maxPixels int64) (image.Image, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read image: %w", err)
	}

	if maxPixels > 0 {
		cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("decode image: %w", err)
		}
		if n := int64(cfg.Width) * int64(cfg.Height); n > maxPixels {
			return nil, fmt.Errorf("decode image: %w: %dx%d is more than %d pixels",
				ErrTooManyPixels, cfg.Width, cfg.Height, maxPixels)
		}
	}

	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	return img, nil
}

// DecodeBytes 同 DecodeImage，输入为内存中的字节
func DecodeBytes(data []byte) (image.Image, error) {
	return DecodeImage(bytes.NewReader(data))
}

// EncodePNG 把图片编码为 PNG 字节
func EncodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.PNG, imaging.PNGCompressionLevel(png.DefaultCompression)); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}

// ToNRGBA 转为原点在 (0,0) 的 NRGBA，方便直接操作 Pix
//
// 已经是 NRGBA 时会复制一份，调用方可以放心修改返回值。
func ToNRGBA(img image.Image) *image.NRGBA {
	b := img.Bounds()
	dst := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	if src, ok := img.(*image.NRGBA); ok {
		for y := 0; y < b.Dy(); y++ {
			i := src.PixOffset(b.Min.X, b.Min.Y+y)
			copy(dst.Pix[y*dst.Stride:(y+1)*dst.Stride], src.Pix[i:i+b.Dx()*4])
		}
		return dst
	}
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)
	return dst
}
