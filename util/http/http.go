package http

import (
	"context"
	"io"
	"time"
)

// IClient 对外部推理服务（rembg 等）发起请求的最小接口
type IClient interface {
	DoHTTPRequest(ctx context.Context, requestParam *RequestParam) error
}

// RequestParam 描述一次请求
//
// Body 的 Content-Type 由 Header 指定；Response 非空时保存原始响应体（例如 mask PNG）。
type RequestParam struct {
	RequestURI string
	Method     string
	Header     map[string]string
	Body       io.Reader
	Response   *[]byte

	Timeout time.Duration
}
