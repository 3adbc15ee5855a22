// Package enhance 图像质量增强：去噪 → 锐化 → 色彩/对比度/亮度
package enhance

import (
	"context"
	"fmt"
	"image"
	"strings"

	"github.com/chaos-io/pixelcut/util"
)

// ColorFactor 色彩饱和度固定提升 20%
const ColorFactor = 1.2

// Params 每次请求的增强参数，tag 供 gin 从 query / form 绑定
type Params struct {
	// EnhanceQuality 只接收不生效，见 DESIGN.md 的 Open Questions
	EnhanceQuality Flag    `form:"enhance_quality,default=true" json:"enhance_quality"`
	EnhanceColors  Flag    `form:"enhance_colors,default=true" json:"enhance_colors"`
	Sharpen        Flag    `form:"sharpen,default=true" json:"sharpen"`
	Denoise        Flag    `form:"denoise,default=true" json:"denoise"`
	Brightness     float64 `form:"brightness,default=1.1" json:"brightness"`
	Contrast       float64 `form:"contrast,default=1.1" json:"contrast"`
}

// Flag 表单里的布尔开关，除 strconv.ParseBool 的写法外还接受 yes/no、on/off、y/n
type Flag bool

// UnmarshalParam 实现 binding.BindUnmarshaler
func (f *Flag) UnmarshalParam(param string) error {
	switch strings.ToLower(strings.TrimSpace(param)) {
	case "1", "t", "true", "y", "yes", "on":
		*f = true
	case "0", "f", "false", "n", "no", "off":
		*f = false
	default:
		return fmt.Errorf("invalid boolean value %q", param)
	}
	return nil
}

func DefaultParams() Params {
	return Params{
		EnhanceQuality: true,
		EnhanceColors:  true,
		Sharpen:        true,
		Denoise:        true,
		Brightness:     1.1,
		Contrast:       1.1,
	}
}

type Enhancer struct {
	NLMeans NLMeans
}

func NewEnhancer() *Enhancer {
	return &Enhancer{NLMeans: DefaultNLMeans()}
}

// Enhance 按固定顺序执行被开启的步骤，关闭的步骤完全跳过
func (e *Enhancer) Enhance(ctx context.Context, img image.Image, p Params) (*image.NRGBA, error) {
	out := util.ToNRGBA(img)

	if p.Denoise {
		denoised, err := e.NLMeans.Denoise(ctx, out)
		if err != nil {
			return nil, fmt.Errorf("denoise: %w", err)
		}
		out = denoised
	}

	if p.Sharpen {
		out = Sharpen(out)
	}

	if p.EnhanceColors {
		out = Color(out, ColorFactor)
		out = Contrast(out, p.Contrast)
		out = Brightness(out, p.Brightness)
	}

	return out, nil
}
