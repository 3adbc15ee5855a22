package server

import (
	"errors"
	"net/http"
)

// Kind 请求失败的类别，决定返回的状态码
type Kind int

const (
	// KindProcessing 解码、处理或编码图片时出错
	KindProcessing Kind = iota
	// KindUnavailable 背景去除能力在启动时未就绪
	KindUnavailable
	// KindInvalidInput 例如未知的滤镜类型
	KindInvalidInput
	// KindValidation 参数或上传字段不合法
	KindValidation
	// KindTooLarge 请求体超过上限
	KindTooLarge
)

func (k Kind) String() string {
	switch k {
	case KindUnavailable:
		return "unavailable"
	case KindInvalidInput:
		return "invalid_input"
	case KindValidation:
		return "validation"
	case KindTooLarge:
		return "too_large"
	default:
		return "processing"
	}
}

func (k Kind) Status() int {
	switch k {
	case KindUnavailable:
		return http.StatusServiceUnavailable
	case KindInvalidInput:
		return http.StatusBadRequest
	case KindValidation:
		return http.StatusUnprocessableEntity
	case KindTooLarge:
		return http.StatusRequestEntityTooLarge
	default:
		return http.StatusInternalServerError
	}
}

// Error 带类别的请求错误，Err 的文本原样返回给调用方
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	return e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(kind Kind, err error) *Error {
	return &Error{Kind: kind, Err: err}
}

// classify 没有显式类别的错误按处理失败算；请求体超限单独识别
func classify(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return newError(KindTooLarge, err)
	}
	return newError(KindProcessing, err)
}
