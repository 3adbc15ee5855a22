package rembg

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"mime/multipart"
	"strings"
	"time"

	"github.com/chaos-io/pixelcut/util"
	nhttp "github.com/chaos-io/pixelcut/util/http"
)

const (
	DefaultModel   = "u2net"
	DefaultMaxSize = 1024

	removePath = "/api/remove"
	// rembg 服务的 API 文档页，能打开说明服务已就绪
	probePath = "/api"
)

var (
	_ Remover = (*ServerRemBG)(nil)
	_ Prober  = (*ServerRemBG)(nil)
)

// ServerRemBG 调用 rembg HTTP 服务（`rembg s`）获取前景 mask，再在本地做 alpha matting
type ServerRemBG struct {
	baseURL string
	model   string
	maxSize int
	timeout time.Duration
	matting Matting
	cli     nhttp.IClient
}

type Option func(*ServerRemBG)

func WithModel(model string) Option {
	return func(s *ServerRemBG) {
		if model != "" {
			s.model = model
		}
	}
}

// WithMaxSize 上传给模型前的最长边，<= 0 表示不缩放
func WithMaxSize(size int) Option {
	return func(s *ServerRemBG) {
		s.maxSize = size
	}
}

func WithTimeout(timeout time.Duration) Option {
	return func(s *ServerRemBG) {
		s.timeout = timeout
	}
}

func WithMatting(m Matting) Option {
	return func(s *ServerRemBG) {
		s.matting = m
	}
}

// WithClient 替换发请求的客户端，此时超时由调用方的客户端和 WithTimeout 共同决定
func WithClient(cli nhttp.IClient) Option {
	return func(s *ServerRemBG) {
		s.cli = cli
	}
}

func NewServerRemBG(baseURL string, opts ...Option) *ServerRemBG {
	s := &ServerRemBG{
		baseURL: strings.TrimRight(baseURL, "/"),
		model:   DefaultModel,
		maxSize: DefaultMaxSize,
		matting: DefaultMatting(),
	}
	for _, opt := range opts {
		opt(s)
	}
	// 客户端超时与单次请求超时一致，否则较长的 WithTimeout 会被默认超时截断
	if s.cli == nil {
		s.cli = nhttp.NewHTTPClientWithTimeout(s.timeout)
	}
	return s
}

func (s *ServerRemBG) Probe(ctx context.Context) error {
	if s.baseURL == "" {
		return errors.New("rembg url is empty")
	}

	err := s.cli.DoHTTPRequest(ctx, &nhttp.RequestParam{
		RequestURI: s.baseURL + probePath,
		Method:     "GET",
		Timeout:    s.timeout,
	})
	if err != nil {
		return fmt.Errorf("probe rembg: %w", err)
	}
	return nil
}

func (s *ServerRemBG) Remove(ctx context.Context, img image.Image) (*image.NRGBA, error) {
	defer util.Trace("remove background")()

	src := util.ToNRGBA(img)
	w, h := src.Bounds().Dx(), src.Bounds().Dy()
	if w == 0 || h == 0 {
		return nil, errors.New("empty image")
	}

	mask, err := s.predictMask(ctx, resizeWithinMax(src, s.maxSize))
	if err != nil {
		return nil, err
	}

	alpha := s.matting.Alpha(scaleMask(mask, w, h))
	return cutout(src, alpha), nil
}

/*
	curl -X POST "$REMBG_URL/api/remove" \
	  -F "file=@my_image.png" \
	  -F "model=u2net" \
	  -F "om=true"

返回单通道的 mask PNG
*/
func (s *ServerRemBG) predictMask(ctx context.Context, img *image.NRGBA) (*image.Gray, error) {
	data, err := util.EncodePNG(img)
	if err != nil {
		return nil, err
	}

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	part, err := writer.CreateFormFile("file", "image.png")
	if err != nil {
		return nil, fmt.Errorf("create form file: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return nil, fmt.Errorf("write form file: %w", err)
	}

	_ = writer.WriteField("model", s.model)
	_ = writer.WriteField("om", "true")
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("close multipart writer: %w", err)
	}

	var raw []byte
	reqParam := &nhttp.RequestParam{
		RequestURI: s.baseURL + removePath,
		Method:     "POST",
		Header:     map[string]string{"Content-Type": writer.FormDataContentType()},
		Body:       body,
		Response:   &raw,
		Timeout:    s.timeout,
	}
	if err := s.cli.DoHTTPRequest(ctx, reqParam); err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}

	slog.Debug("get the mask", "model", s.model, "bytes", len(raw))

	mask, err := util.DecodeBytes(raw)
	if err != nil {
		return nil, fmt.Errorf("decode mask: %w", err)
	}
	return toGray(mask), nil
}
