package enhance

import (
	"image"
	"image/color"

	"github.com/disintegration/imaging"
)

// luma ITU-R 601 亮度，定点计算
func luma(r, g, b uint8) uint8 {
	return uint8((uint32(r)*19595 + uint32(g)*38470 + uint32(b)*7471 + 0x8000) >> 16)
}

// blend 在退化图像和原图之间按 factor 插值：factor=1 原样，<1 减弱，>1 增强
func blend(degenerate, c uint8, factor float64) uint8 {
	v := float64(degenerate) + factor*(float64(c)-float64(degenerate))
	if v <= 0 {
		return 0
	}
	if v >= 255 {
		return 255
	}
	return uint8(v)
}

// Color 调整饱和度，退化图像为逐像素灰度
func Color(img image.Image, factor float64) *image.NRGBA {
	return imaging.AdjustFunc(img, func(c color.NRGBA) color.NRGBA {
		l := luma(c.R, c.G, c.B)
		return color.NRGBA{
			R: blend(l, c.R, factor),
			G: blend(l, c.G, factor),
			B: blend(l, c.B, factor),
			A: c.A,
		}
	})
}

// Contrast 调整对比度，退化图像为整图平均灰度
func Contrast(img *image.NRGBA, factor float64) *image.NRGBA {
	mean := meanLuma(img)
	return imaging.AdjustFunc(img, func(c color.NRGBA) color.NRGBA {
		return color.NRGBA{
			R: blend(mean, c.R, factor),
			G: blend(mean, c.G, factor),
			B: blend(mean, c.B, factor),
			A: c.A,
		}
	})
}

// Brightness 调整亮度，退化图像为纯黑
func Brightness(img image.Image, factor float64) *image.NRGBA {
	return imaging.AdjustFunc(img, func(c color.NRGBA) color.NRGBA {
		return color.NRGBA{
			R: blend(0, c.R, factor),
			G: blend(0, c.G, factor),
			B: blend(0, c.B, factor),
			A: c.A,
		}
	})
}

// meanLuma 整图灰度均值，四舍五入
func meanLuma(img *image.NRGBA) uint8 {
	b := img.Bounds()
	n := b.Dx() * b.Dy()
	if n == 0 {
		return 0
	}

	var sum uint64
	for y := b.Min.Y; y < b.Max.Y; y++ {
		row := img.PixOffset(b.Min.X, y)
		for x := 0; x < b.Dx(); x++ {
			i := row + x*4
			sum += uint64(luma(img.Pix[i], img.Pix[i+1], img.Pix[i+2]))
		}
	}
	return uint8(float64(sum)/float64(n) + 0.5)
}
