// Package rembg 背景去除：前景分割由外部 rembg 服务完成，alpha matting 在本地处理
package rembg

import (
	"context"
	"image"
)

type Remover interface {
	Remove(ctx context.Context, img image.Image) (*image.NRGBA, error)
}

// Prober 启动时检查分割能力是否可用
type Prober interface {
	Probe(ctx context.Context) error
}
