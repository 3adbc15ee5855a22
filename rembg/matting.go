package rembg

import (
	"image"

	"github.com/disintegration/imaging"
)

// Matting 根据分割置信度生成柔和的 alpha
//
//	mask >= ForegroundThreshold 为前景，mask <= BackgroundThreshold 为背景
//	两个区域各自用 ErodeSize×ErodeSize 的方形结构元腐蚀，边界向内收缩
//	腐蚀后的前景不透明、背景全透明，中间的未知带按平滑后的置信度线性过渡
type Matting struct {
	ForegroundThreshold uint8
	BackgroundThreshold uint8
	ErodeSize           int
}

func DefaultMatting() Matting {
	return Matting{
		ForegroundThreshold: 240,
		BackgroundThreshold: 10,
		ErodeSize:           10,
	}
}

func (m Matting) Alpha(mask *image.Gray) *image.Alpha {
	mask = toGray(mask)
	w, h := mask.Bounds().Dx(), mask.Bounds().Dy()

	fg := make([]bool, w*h)
	bg := make([]bool, w*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			v := mask.Pix[y*mask.Stride+x]
			fg[y*w+x] = v >= m.ForegroundThreshold
			bg[y*w+x] = v <= m.BackgroundThreshold
		}
	}

	// 未知带使用平滑后的置信度，过渡宽度随 ErodeSize 变化
	soft := mask
	if m.ErodeSize > 0 {
		fg = erode(fg, w, h, m.ErodeSize)
		bg = erode(bg, w, h, m.ErodeSize)
		soft = toGray(imaging.Blur(mask, float64(m.ErodeSize)/2))
	}

	alpha := image.NewAlpha(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			var a uint8
			switch i := y*w + x; {
			case fg[i]:
				a = 255
			case bg[i]:
				a = 0
			default:
				a = m.ramp(soft.Pix[y*soft.Stride+x])
			}
			alpha.Pix[y*alpha.Stride+x] = a
		}
	}
	return alpha
}

// ramp 置信度在背景阈值到前景阈值之间线性映射到 0..255
func (m Matting) ramp(v uint8) uint8 {
	lo, hi := int(m.BackgroundThreshold), int(m.ForegroundThreshold)
	if hi <= lo {
		if int(v) > lo {
			return 255
		}
		return 0
	}
	switch {
	case int(v) <= lo:
		return 0
	case int(v) >= hi:
		return 255
	default:
		return uint8((int(v) - lo) * 255 / (hi - lo))
	}
}

// erode 二值腐蚀，结构元为 size×size 方形，图像外视为 false
func erode(in []bool, w, h, size int) []bool {
	before := size / 2
	after := size - 1 - before

	tmp := make([]bool, w*h)
	for y := 0; y < h; y++ {
		erodeLine(in[y*w:(y+1)*w], tmp[y*w:(y+1)*w], before, after)
	}

	out := make([]bool, w*h)
	col := make([]bool, h)
	res := make([]bool, h)
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			col[y] = tmp[y*w+x]
		}
		erodeLine(col, res, before, after)
		for y := 0; y < h; y++ {
			out[y*w+x] = res[y]
		}
	}
	return out
}

// erodeLine 一维腐蚀：窗口 [i-before, i+after] 内全部为 true 才保留
func erodeLine(in, out []bool, before, after int) {
	n := len(in)
	prefix := make([]int, n+1)
	for i, v := range in {
		prefix[i+1] = prefix[i]
		if v {
			prefix[i+1]++
		}
	}
	for i := 0; i < n; i++ {
		lo, hi := i-before, i+after
		if lo < 0 || hi >= n {
			out[i] = false
			continue
		}
		out[i] = prefix[hi+1]-prefix[lo] == hi-lo+1
	}
}

// cutout RGB 保持不变，alpha = matte × 原 alpha
func cutout(src *image.NRGBA, matte *image.Alpha) *image.NRGBA {
	w, h := src.Bounds().Dx(), src.Bounds().Dy()
	dst := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			i := src.PixOffset(src.Bounds().Min.X+x, src.Bounds().Min.Y+y)
			j := y*dst.Stride + x*4
			a := uint32(matte.Pix[y*matte.Stride+x])
			dst.Pix[j] = src.Pix[i]
			dst.Pix[j+1] = src.Pix[i+1]
			dst.Pix[j+2] = src.Pix[i+2]
			dst.Pix[j+3] = uint8((a*uint32(src.Pix[i+3]) + 127) / 255)
		}
	}
	return dst
}
