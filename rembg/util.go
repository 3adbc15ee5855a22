package rembg

import (
	"image"

	"github.com/nfnt/resize"
	"golang.org/x/image/draw"

	"github.com/chaos-io/pixelcut/util"
)

// resizeWithinMax 缩放（最长边 <= maxSize），分割模型的输入不需要原图分辨率
func resizeWithinMax(img *image.NRGBA, maxSize int) *image.NRGBA {
	w := img.Bounds().Dx()
	h := img.Bounds().Dy()
	longest := max(w, h)

	if maxSize <= 0 || longest <= maxSize {
		return img
	}

	scale := float64(maxSize) / float64(longest)
	newW := max(1, int(float64(w)*scale))
	newH := max(1, int(float64(h)*scale))

	resized := resize.Resize(uint(newW), uint(newH), img, resize.Lanczos3)
	return util.ToNRGBA(resized)
}

// scaleMask 把模型输出的 mask 缩放回原图尺寸
func scaleMask(mask *image.Gray, w, h int) *image.Gray {
	if mask.Bounds().Dx() == w && mask.Bounds().Dy() == h {
		return mask
	}
	return toGray(resize.Resize(uint(w), uint(h), mask, resize.Bilinear))
}

func toGray(img image.Image) *image.Gray {
	b := img.Bounds()
	if g, ok := img.(*image.Gray); ok && b.Min == (image.Point{}) {
		return g
	}
	dst := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)
	return dst
}
