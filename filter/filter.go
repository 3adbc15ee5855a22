// Package filter 命名滤镜，目前只有 artistic
package filter

import (
	"errors"
	"fmt"
	"image"

	"github.com/chaos-io/pixelcut/util"
)

const Artistic = "artistic"

var ErrUnknownFilter = errors.New("unknown filter type")

type Filter interface {
	Name() string
	Apply(img image.Image) (*image.NRGBA, error)
}

// Lookup 按名字取滤镜，未知名字返回包装了 ErrUnknownFilter 的错误
func Lookup(name string) (Filter, error) {
	switch name {
	case Artistic:
		return NewArtisticFilter(), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownFilter, name)
	}
}

// ArtisticFilter 自适应直方图均衡（CLAHE）+ HSV 饱和度提升
type ArtisticFilter struct {
	ClipLimit        float64
	SaturationFactor float64
}

func NewArtisticFilter() *ArtisticFilter {
	return &ArtisticFilter{
		ClipLimit:        0.03,
		SaturationFactor: 1.2,
	}
}

func (a *ArtisticFilter) Name() string {
	return Artistic
}

func (a *ArtisticFilter) Apply(img image.Image) (*image.NRGBA, error) {
	src := util.ToNRGBA(img)
	if src.Bounds().Empty() {
		return nil, errors.New("empty image")
	}

	equalized := NewCLAHE(a.ClipLimit).Equalize(src)
	return Saturate(equalized, a.SaturationFactor), nil
}
