package enhance

import (
	"context"
	"image"
	"math"
	"runtime"

	"github.com/lucasb-eyer/go-colorful"
	"golang.org/x/sync/errgroup"

	"github.com/chaos-io/pixelcut/util"
)

// 权重低于该值的块直接忽略
const weightThreshold = 0.001

// NLMeans 彩色非局部均值去噪
//
// 图像先转到 Lab（按 8 位刻度），L 通道用 H 作为滤波强度，a/b 通道一起用 HColor。
// 每个像素在 SearchWindow 邻域内寻找相似的 TemplateWindow 块，按块距离加权平均。
// 搜索窗口越大，参与平均的相似块越多，去噪越强，计算量也越大。
type NLMeans struct {
	H              float64
	HColor         float64
	TemplateWindow int
	SearchWindow   int
}

func DefaultNLMeans() NLMeans {
	return NLMeans{
		H:              10,
		HColor:         10,
		TemplateWindow: 7,
		SearchWindow:   21,
	}
}

// Denoise ctx 取消时在下一个偏移量处停止并返回 ctx.Err()
func (n NLMeans) Denoise(ctx context.Context, img *image.NRGBA) (*image.NRGBA, error) {
	w, h := img.Bounds().Dx(), img.Bounds().Dy()
	if w == 0 || h == 0 {
		return util.ToNRGBA(img), nil
	}
	src := img
	if img.Bounds().Min != (image.Point{}) {
		src = util.ToNRGBA(img)
	}

	l := make([]float32, w*h)
	a := make([]float32, w*h)
	b := make([]float32, w*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			i := y*src.Stride + x*4
			c := colorful.Color{
				R: float64(src.Pix[i]) / 255,
				G: float64(src.Pix[i+1]) / 255,
				B: float64(src.Pix[i+2]) / 255,
			}
			cl, ca, cb := c.Lab()
			l[y*w+x] = float32(cl * 255)
			a[y*w+x] = float32(ca*100 + 128)
			b[y*w+x] = float32(cb*100 + 128)
		}
	}

	outL, err := n.denoisePlanes(ctx, [][]float32{l}, w, h, n.H)
	if err != nil {
		return nil, err
	}
	outAB, err := n.denoisePlanes(ctx, [][]float32{a, b}, w, h, n.HColor)
	if err != nil {
		return nil, err
	}

	dst := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			p := y*w + x
			c := colorful.Lab(
				float64(outL[0][p])/255,
				(float64(outAB[0][p])-128)/100,
				(float64(outAB[1][p])-128)/100,
			).Clamped()
			r, g, bb := c.RGB255()
			i := y*dst.Stride + x*4
			dst.Pix[i] = r
			dst.Pix[i+1] = g
			dst.Pix[i+2] = bb
			dst.Pix[i+3] = src.Pix[y*src.Stride+x*4+3]
		}
	}
	return dst, nil
}

// denoisePlanes 对一组通道共同计算块距离并加权平均
//
// 通道先按 reflect101 补边，补边宽度覆盖搜索半径加块半径，之后的内层循环不再做边界判断。
// 对每个偏移量：逐行求平方差并做水平滑动求和，再按行分段做垂直滑动求和并累加权重。
// 两个阶段都按行并行，各段写入互不重叠。
func (n NLMeans) denoisePlanes(ctx context.Context, planes [][]float32, w, h int, strength float64) ([][]float32, error) {
	tr := n.TemplateWindow / 2
	sr := n.SearchWindow / 2
	tw := 2*tr + 1
	area := float64(tw * tw * len(planes))
	lut := weightTable(strength)

	pad := sr + tr
	pw := w + 2*pad
	padded := make([][]float32, len(planes))
	for c, p := range planes {
		padded[c] = padPlane(p, w, h, pad)
	}

	// hsum 的第 ey 行对应原图第 ey-tr 行，每行 w 个块的水平和
	extH := h + 2*tr
	hsum := make([]float64, extH*w)
	sumW := make([]float64, w*h)
	sumV := make([][]float64, len(planes))
	for c := range sumV {
		sumV[c] = make([]float64, w*h)
	}

	workers := runtime.GOMAXPROCS(0)
	for dy := -sr; dy <= sr; dy++ {
		for dx := -sr; dx <= sr; dx++ {
			if err := ctx.Err(); err != nil {
				return nil, err
			}

			err := parallelRows(extH, workers, func(y0, y1 int) {
				diff := make([]float64, w+2*tr)
				for ey := y0; ey < y1; ey++ {
					// 原图第 ey-tr 行、第 -tr 列在补边图中的位置
					pi := (ey-tr+pad)*pw + pad - tr
					qi := pi + dy*pw + dx
					for c, p := range padded {
						rp := p[pi : pi+len(diff)]
						rq := p[qi : qi+len(diff)]
						for ex := range diff {
							v := float64(rp[ex] - rq[ex])
							if c == 0 {
								diff[ex] = v * v
							} else {
								diff[ex] += v * v
							}
						}
					}

					var s float64
					for ex := 0; ex < tw; ex++ {
						s += diff[ex]
					}
					hs := hsum[ey*w : (ey+1)*w]
					hs[0] = s
					for x := 1; x < w; x++ {
						s += diff[x+2*tr] - diff[x-1]
						hs[x] = s
					}
				}
			})
			if err != nil {
				return nil, err
			}

			err = parallelRows(h, workers, func(y0, y1 int) {
				// 每列 tw 行的滑动和，逐行向下推进
				col := make([]float64, w)
				for j := 0; j < tw; j++ {
					hs := hsum[(y0+j)*w : (y0+j+1)*w]
					for x, v := range hs {
						col[x] += v
					}
				}
				for y := y0; y < y1; y++ {
					if y > y0 {
						add := hsum[(y+2*tr)*w : (y+2*tr+1)*w]
						sub := hsum[(y-1)*w : y*w]
						for x := range col {
							col[x] += add[x] - sub[x]
						}
					}
					qi := (y+pad+dy)*pw + pad + dx
					for x, s := range col {
						d := int(max(s, 0) / area)
						if d >= len(lut) {
							continue
						}
						wt := lut[d]
						if wt == 0 {
							continue
						}
						sumW[y*w+x] += wt
						for c, p := range padded {
							sumV[c][y*w+x] += wt * float64(p[qi+x])
						}
					}
				}
			})
			if err != nil {
				return nil, err
			}
		}
	}

	out := make([][]float32, len(planes))
	for c := range out {
		out[c] = make([]float32, w*h)
		for i := range out[c] {
			out[c][i] = float32(sumV[c][i] / sumW[i])
		}
	}
	return out, nil
}

// parallelRows 把 [0,rows) 分段交给 fn 并发处理
func parallelRows(rows, workers int, fn func(y0, y1 int)) error {
	band := max(16, (rows+workers-1)/workers)
	if band >= rows {
		fn(0, rows)
		return nil
	}

	g := new(errgroup.Group)
	for y0 := 0; y0 < rows; y0 += band {
		y0, y1 := y0, min(y0+band, rows)
		g.Go(func() error {
			fn(y0, y1)
			return nil
		})
	}
	return g.Wait()
}

// padPlane 四周按 reflect101 补 pad 个像素
func padPlane(p []float32, w, h, pad int) []float32 {
	pw, ph := w+2*pad, h+2*pad
	out := make([]float32, pw*ph)
	cols := make([]int, pw)
	for x := range cols {
		cols[x] = util.Reflect101(x-pad, w)
	}
	for y := 0; y < ph; y++ {
		row := p[util.Reflect101(y-pad, h)*w:]
		dst := out[y*pw : (y+1)*pw]
		for x, sx := range cols {
			dst[x] = row[sx]
		}
	}
	return out
}

// weightTable exp(-d/h²) 按整数距离查表，超出表长的权重视为 0
func weightTable(strength float64) []float64 {
	hh := strength * strength
	if hh <= 0 {
		return []float64{1}
	}
	size := int(math.Ceil(-math.Log(weightThreshold)*hh)) + 1
	lut := make([]float64, size)
	for d := range lut {
		wt := math.Exp(-float64(d) / hh)
		if wt < weightThreshold {
			wt = 0
		}
		lut[d] = wt
	}
	return lut
}
