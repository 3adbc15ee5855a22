package enhance

import (
	"image"

	"github.com/disintegration/imaging"

	"github.com/chaos-io/pixelcut/util"
)

// sharpenKernel 中心 9、八邻域 -1，权重和为 1，整体亮度不变
var sharpenKernel = [9]float64{
	-1, -1, -1,
	-1, 9, -1,
	-1, -1, -1,
}

// Sharpen 边界按 reflect101 取邻居（imaging 默认复制边缘像素，这里先补一圈再裁掉）
func Sharpen(img image.Image) *image.NRGBA {
	src := util.ToNRGBA(img)
	w, h := src.Bounds().Dx(), src.Bounds().Dy()
	if w == 0 || h == 0 {
		return src
	}

	out := imaging.Convolve3x3(padReflect101(src, 1), sharpenKernel, nil)
	return imaging.Crop(out, image.Rect(1, 1, w+1, h+1))
}

// padReflect101 四周补 pad 个像素，取值与 denoise 的补边方式一致
func padReflect101(src *image.NRGBA, pad int) *image.NRGBA {
	w, h := src.Bounds().Dx(), src.Bounds().Dy()
	dst := image.NewNRGBA(image.Rect(0, 0, w+2*pad, h+2*pad))
	for y := 0; y < h+2*pad; y++ {
		sy := util.Reflect101(y-pad, h)
		for x := 0; x < w+2*pad; x++ {
			sx := util.Reflect101(x-pad, w)
			copy(dst.Pix[y*dst.Stride+x*4:y*dst.Stride+x*4+4], src.Pix[sy*src.Stride+sx*4:])
		}
	}
	return dst
}
