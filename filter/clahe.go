package filter

import (
	"image"

	"github.com/lucasb-eyer/go-colorful"

	"github.com/chaos-io/pixelcut/util"
)

const (
	nbins = 256
	// 每个方向 8 个分块
	tilesPerAxis = 8
)

// CLAHE 限制对比度的自适应直方图均衡
//
// 图像按分块统计直方图，ClipLimit 是相对分块像素数的比例，超出的计数均匀回填，
// 防止平坦区域的噪声被过度放大。像素值由相邻四个分块的映射双线性插值得到。
type CLAHE struct {
	ClipLimit float64
}

func NewCLAHE(clipLimit float64) *CLAHE {
	return &CLAHE{ClipLimit: clipLimit}
}

// Equalize 在 HSV 的 V 通道上均衡，H/S 不变；结果按 [0,1] → [0,255] 截断换回 8 位
func (c *CLAHE) Equalize(src *image.NRGBA) *image.NRGBA {
	w, h := src.Bounds().Dx(), src.Bounds().Dy()

	// 8 位 RGB 的 V 就是三通道最大值
	v := make([]uint8, w*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			i := y*src.Stride + x*4
			v[y*w+x] = max(src.Pix[i], src.Pix[i+1], src.Pix[i+2])
		}
	}

	eq := c.equalizePlane(v, w, h)

	dst := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			i := y*src.Stride + x*4
			col := colorful.Color{
				R: float64(src.Pix[i]) / 255,
				G: float64(src.Pix[i+1]) / 255,
				B: float64(src.Pix[i+2]) / 255,
			}
			hue, sat, _ := col.Hsv()
			out := colorful.Hsv(hue, sat, eq[y*w+x])
			j := y*dst.Stride + x*4
			dst.Pix[j] = truncate8(out.R)
			dst.Pix[j+1] = truncate8(out.G)
			dst.Pix[j+2] = truncate8(out.B)
			dst.Pix[j+3] = src.Pix[i+3]
		}
	}
	return dst
}

// equalizePlane 返回 [0,1] 范围的均衡结果
//
// 分块边长为 size/8（至少 1），图像先按 reflect101 补边到分块边长的整数倍，
// 直方图只在完整的分块上统计，像素映射由相邻分块插值，最后去掉补边。
func (c *CLAHE) equalizePlane(v []uint8, w, h int) []float64 {
	kw, padX, _, nx := tileLayout(w)
	kh, padY, _, ny := tileLayout(h)
	pw := (nx + 1) * kw
	ph := (ny + 1) * kh

	padded := make([]uint8, pw*ph)
	for y := 0; y < ph; y++ {
		row := v[util.Reflect101(y-padY, h)*w:]
		for x := 0; x < pw; x++ {
			padded[y*pw+x] = row[util.Reflect101(x-padX, w)]
		}
	}

	limit := max(1, int(c.ClipLimit*float64(kw*kh)))

	maps := make([][nbins]float64, nx*ny)
	for ty := 0; ty < ny; ty++ {
		for tx := 0; tx < nx; tx++ {
			var hist [nbins]int
			x0, y0 := kw/2+tx*kw, kh/2+ty*kh
			for y := y0; y < y0+kh; y++ {
				for x := x0; x < x0+kw; x++ {
					hist[padded[y*pw+x]]++
				}
			}
			clipHistogram(&hist, limit)
			maps[ty*nx+tx] = mapHistogram(&hist, kw*kh)
		}
	}

	out := make([]float64, w*h)
	for y := 0; y < h; y++ {
		ty0, ty1, fy := neighbours(y+padY, kh, ny)
		for x := 0; x < w; x++ {
			tx0, tx1, fx := neighbours(x+padX, kw, nx)
			val := v[y*w+x]
			top := (1-fx)*maps[ty0*nx+tx0][val] + fx*maps[ty0*nx+tx1][val]
			bottom := (1-fx)*maps[ty1*nx+tx0][val] + fx*maps[ty1*nx+tx1][val]
			out[y*w+x] = (1-fy)*top + fy*bottom
		}
	}
	return out
}

// tileLayout 返回分块边长、前后补边宽度和分块个数
//
// 补边后的长度是 (tiles+1)*k，直方图分块从 k/2 开始，两端各留半块给插值
func tileLayout(size int) (k, padStart, padEnd, tiles int) {
	k = max(1, size/tilesPerAxis)
	padStart = k / 2
	padEnd = (k-size%k)%k + (k+1)/2
	tiles = (size+padStart+padEnd)/k - 1
	return k, padStart, padEnd, tiles
}

// clipHistogram 截断超出 limit 的计数并均匀回填，余数按等间隔分配到各 bin
func clipHistogram(hist *[nbins]int, limit int) {
	excess := 0
	for i, n := range hist {
		if n > limit {
			excess += n - limit
			hist[i] = limit
		}
	}
	if excess == 0 {
		return
	}

	incr := excess / nbins
	for i := range hist {
		hist[i] += incr
	}

	residual := excess - incr*nbins
	if residual > 0 {
		step := max(1, nbins/residual)
		for i := 0; i < nbins && residual > 0; i += step {
			hist[i]++
			residual--
		}
	}
}

// mapHistogram 累积分布归一化到 [0,1]
func mapHistogram(hist *[nbins]int, pixels int) [nbins]float64 {
	var m [nbins]float64
	sum := 0
	for i, n := range hist {
		sum += n
		m[i] = min(1, float64(sum)/float64(pixels))
	}
	return m
}

// neighbours p 为补边后的坐标，返回两侧分块及右侧分块的权重，超出两端时取边缘分块
func neighbours(p, size, count int) (int, int, float64) {
	b := p / size
	f := float64(p%size) / float64(size)
	return min(max(b-1, 0), count-1), min(b, count-1), f
}

func truncate8(v float64) uint8 {
	v *= 255
	if v <= 0 {
		return 0
	}
	if v >= 255 {
		return 255
	}
	return uint8(v)
}
