package filter

import (
	"image"

	"github.com/lucasb-eyer/go-colorful"
)

// Saturate HSV 饱和度乘以 factor，上限 1；alpha 不变
func Saturate(src *image.NRGBA, factor float64) *image.NRGBA {
	w, h := src.Bounds().Dx(), src.Bounds().Dy()
	dst := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			i := src.PixOffset(src.Bounds().Min.X+x, src.Bounds().Min.Y+y)
			col := colorful.Color{
				R: float64(src.Pix[i]) / 255,
				G: float64(src.Pix[i+1]) / 255,
				B: float64(src.Pix[i+2]) / 255,
			}
			hue, sat, val := col.Hsv()
			r, g, b := colorful.Hsv(hue, min(1, sat*factor), val).RGB255()
			j := y*dst.Stride + x*4
			dst.Pix[j] = r
			dst.Pix[j+1] = g
			dst.Pix[j+2] = b
			dst.Pix[j+3] = src.Pix[i+3]
		}
	}
	return dst
}
