package enhance

import (
	"context"
	"image"
	"image/color"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chaos-io/pixelcut/util"
)

func gradient(w, h int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, color.NRGBA{
				R: uint8(40 + x*150/w),
				G: uint8(200 - y*120/h),
				B: uint8(60 + (x+y)*3%90),
				A: 255,
			})
		}
	}
	return img
}

func uniform(w, h int, c color.NRGBA) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, c)
		}
	}
	return img
}

func TestEnhancer_Enhance_AllDisabledIsIdentity(t *testing.T) {
	t.Parallel()

	src := gradient(20, 14)
	p := DefaultParams()
	p.Denoise = false
	p.Sharpen = false
	p.EnhanceColors = false
	p.EnhanceQuality = false

	got, err := NewEnhancer().Enhance(context.Background(), src, p)
	require.NoError(t, err)
	assert.Equal(t, src.Pix, got.Pix)

	// 输入不能被原地修改
	got.Pix[0] = ^got.Pix[0]
	assert.NotEqual(t, src.Pix[0], got.Pix[0])
}

func TestEnhancer_Enhance_EnhanceQualityIsIgnored(t *testing.T) {
	t.Parallel()

	src := gradient(12, 12)
	p := DefaultParams()
	p.Denoise = false

	on, err := NewEnhancer().Enhance(context.Background(), src, p)
	require.NoError(t, err)

	p.EnhanceQuality = false
	off, err := NewEnhancer().Enhance(context.Background(), src, p)
	require.NoError(t, err)

	assert.Equal(t, on.Pix, off.Pix)
}

func TestEnhancer_Enhance_SaturationBoost(t *testing.T) {
	t.Parallel()

	src := gradient(16, 16)
	p := Params{EnhanceColors: true, Brightness: 1.0, Contrast: 1.0}

	got, err := NewEnhancer().Enhance(context.Background(), src, p)
	require.NoError(t, err)

	for i := 0; i < len(src.Pix); i += 4 {
		l := float64(luma(src.Pix[i], src.Pix[i+1], src.Pix[i+2]))
		for c := 0; c < 3; c++ {
			want := l + ColorFactor*(float64(src.Pix[i+c])-l)
			assert.InDelta(t, want, float64(got.Pix[i+c]), 1.0, "pixel %d channel %d", i/4, c)
		}
		assert.Equal(t, src.Pix[i+3], got.Pix[i+3])
	}
}

func TestEnhancer_Enhance_Deterministic(t *testing.T) {
	t.Parallel()

	src := gradient(24, 18)
	e := NewEnhancer()

	first, err := e.Enhance(context.Background(), src, DefaultParams())
	require.NoError(t, err)
	second, err := e.Enhance(context.Background(), src, DefaultParams())
	require.NoError(t, err)

	assert.Equal(t, first.Pix, second.Pix)
	assert.NotEqual(t, src.Pix, first.Pix)
}

func TestBrightness(t *testing.T) {
	t.Parallel()

	src := uniform(4, 4, color.NRGBA{R: 200, G: 100, B: 10, A: 128})
	got := Brightness(src, 0.5)
	assert.Equal(t, color.NRGBA{R: 100, G: 50, B: 5, A: 128}, got.NRGBAAt(1, 1))

	got = Brightness(src, 2)
	assert.Equal(t, color.NRGBA{R: 255, G: 200, B: 20, A: 128}, got.NRGBAAt(2, 3))
}

func TestContrast(t *testing.T) {
	t.Parallel()

	// 均匀图像的均值就是自身，任何对比度系数都不改变它
	src := uniform(5, 5, color.NRGBA{R: 90, G: 90, B: 90, A: 255})
	assert.Equal(t, src.Pix, Contrast(src, 1.7).Pix)

	// 左黑右白，均值 128
	img := image.NewNRGBA(image.Rect(0, 0, 2, 1))
	img.SetNRGBA(0, 0, color.NRGBA{R: 0, G: 0, B: 0, A: 255})
	img.SetNRGBA(1, 0, color.NRGBA{R: 255, G: 255, B: 255, A: 255})
	got := Contrast(img, 0.5)
	assert.Equal(t, uint8(64), got.NRGBAAt(0, 0).R)
	assert.Equal(t, uint8(191), got.NRGBAAt(1, 0).R)
}

func TestColor_GrayUnchanged(t *testing.T) {
	t.Parallel()

	src := uniform(3, 3, color.NRGBA{R: 77, G: 77, B: 77, A: 255})
	assert.Equal(t, src.Pix, Color(src, 3).Pix)
}

func TestSharpen(t *testing.T) {
	t.Parallel()

	src := uniform(6, 6, color.NRGBA{R: 120, G: 30, B: 220, A: 255})
	assert.Equal(t, src.Pix, Sharpen(src).Pix)

	// 竖直边缘两侧的差距被拉大
	edge := image.NewNRGBA(image.Rect(0, 0, 6, 6))
	for y := 0; y < 6; y++ {
		for x := 0; x < 6; x++ {
			v := uint8(100)
			if x >= 3 {
				v = 150
			}
			edge.SetNRGBA(x, y, color.NRGBA{R: v, G: v, B: v, A: 255})
		}
	}
	got := Sharpen(edge)
	assert.Less(t, got.NRGBAAt(2, 3).R, uint8(100))
	assert.Greater(t, got.NRGBAAt(3, 3).R, uint8(150))
}

func TestSharpen_ReflectBorder(t *testing.T) {
	t.Parallel()

	src := image.NewNRGBA(image.Rect(0, 0, 4, 3))
	for y := 0; y < 3; y++ {
		for x, v := range []uint8{100, 120, 140, 160} {
			src.SetNRGBA(x, y, color.NRGBA{R: v, G: v, B: v, A: 255})
		}
	}

	got := Sharpen(src)
	require.Equal(t, src.Bounds(), got.Bounds())
	// 左边界邻居取 x=1：10*100 - 3*(120+100+120) < 0
	assert.Equal(t, uint8(0), got.NRGBAAt(0, 1).R)
	// 右边界邻居取 x=2：10*160 - 3*(140+160+140) > 255
	assert.Equal(t, uint8(255), got.NRGBAAt(3, 1).R)
	assert.Equal(t, uint8(255), got.NRGBAAt(3, 1).A)
}

func TestNLMeans_Denoise(t *testing.T) {
	t.Parallel()

	const size = 32
	rng := rand.New(rand.NewSource(7))
	noisy := image.NewNRGBA(image.Rect(0, 0, size, size))
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			v := uint8(128 + rng.Intn(13) - 6)
			noisy.SetNRGBA(x, y, color.NRGBA{R: v, G: v, B: v, A: 255})
		}
	}

	got, err := DefaultNLMeans().Denoise(context.Background(), noisy)
	require.NoError(t, err)
	assert.Less(t, deviation(got), deviation(noisy)/2)

	for i := 3; i < len(got.Pix); i += 4 {
		assert.Equal(t, uint8(255), got.Pix[i])
	}
}

func TestNLMeans_Denoise_Uniform(t *testing.T) {
	t.Parallel()

	c := color.NRGBA{R: 180, G: 40, B: 90, A: 200}
	got, err := DefaultNLMeans().Denoise(context.Background(), uniform(9, 7, c))
	require.NoError(t, err)

	for y := 0; y < 7; y++ {
		for x := 0; x < 9; x++ {
			p := got.NRGBAAt(x, y)
			assert.InDelta(t, float64(c.R), float64(p.R), 1)
			assert.InDelta(t, float64(c.G), float64(p.G), 1)
			assert.InDelta(t, float64(c.B), float64(p.B), 1)
			assert.Equal(t, c.A, p.A)
		}
	}
}

func TestNLMeans_Denoise_Cancelled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := DefaultNLMeans().Denoise(ctx, gradient(40, 30))
	assert.ErrorIs(t, err, context.Canceled)
}

// 补边 + 滑动求和的结果应与逐像素直接计算一致
func TestNLMeans_denoisePlanes_MatchesDirect(t *testing.T) {
	t.Parallel()

	const w, h = 23, 41
	rng := rand.New(rand.NewSource(11))
	planes := [][]float32{make([]float32, w*h), make([]float32, w*h)}
	for _, p := range planes {
		for i := range p {
			p[i] = float32(100 + rng.Intn(40))
		}
	}

	n := NLMeans{H: 10, HColor: 10, TemplateWindow: 3, SearchWindow: 7}
	got, err := n.denoisePlanes(context.Background(), planes, w, h, n.H)
	require.NoError(t, err)

	lut := weightTable(n.H)
	tr, sr := n.TemplateWindow/2, n.SearchWindow/2
	area := float64(n.TemplateWindow * n.TemplateWindow * len(planes))
	at := func(p []float32, x, y int) float64 {
		return float64(p[util.Reflect101(y, h)*w+util.Reflect101(x, w)])
	}

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			var sumW float64
			sumV := make([]float64, len(planes))
			for dy := -sr; dy <= sr; dy++ {
				for dx := -sr; dx <= sr; dx++ {
					var d float64
					for j := -tr; j <= tr; j++ {
						for i := -tr; i <= tr; i++ {
							for _, p := range planes {
								v := at(p, x+i, y+j) - at(p, x+dx+i, y+dy+j)
								d += v * v
							}
						}
					}
					k := int(d / area)
					if k >= len(lut) || lut[k] == 0 {
						continue
					}
					sumW += lut[k]
					for c, p := range planes {
						sumV[c] += lut[k] * at(p, x+dx, y+dy)
					}
				}
			}
			for c := range planes {
				assert.InDelta(t, sumV[c]/sumW, float64(got[c][y*w+x]), 0.5, "plane %d at (%d,%d)", c, x, y)
			}
		}
	}
}

func TestParallelRows(t *testing.T) {
	t.Parallel()

	for _, rows := range []int{1, 15, 16, 100, 257} {
		seen := make([]int, rows)
		require.NoError(t, parallelRows(rows, 4, func(y0, y1 int) {
			for y := y0; y < y1; y++ {
				seen[y]++
			}
		}))
		for y, n := range seen {
			assert.Equal(t, 1, n, "rows=%d y=%d", rows, y)
		}
	}
}

func TestFlag_UnmarshalParam(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in      string
		want    Flag
		wantErr bool
	}{
		{"true", true, false},
		{"1", true, false},
		{"Yes", true, false},
		{"on", true, false},
		{"y", true, false},
		{"false", false, false},
		{"0", false, false},
		{"no", false, false},
		{"OFF", false, false},
		{"maybe", false, true},
		{"", false, true},
	}
	for _, c := range cases {
		t.Run(c.in, func(t *testing.T) {
			f := Flag(!c.want)
			err := f.UnmarshalParam(c.in)
			if c.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, c.want, f)
		})
	}
}

func deviation(img *image.NRGBA) float64 {
	var sum, sq float64
	n := float64(len(img.Pix) / 4)
	for i := 0; i < len(img.Pix); i += 4 {
		sum += float64(img.Pix[i])
	}
	mean := sum / n
	for i := 0; i < len(img.Pix); i += 4 {
		d := float64(img.Pix[i]) - mean
		sq += d * d
	}
	return sq / n
}
