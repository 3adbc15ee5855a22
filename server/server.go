// Package server PixelCut 的 HTTP 接口
package server

import (
	"errors"
	"fmt"
	"image"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"

	"github.com/chaos-io/pixelcut/enhance"
	"github.com/chaos-io/pixelcut/filter"
	"github.com/chaos-io/pixelcut/rembg"
	"github.com/chaos-io/pixelcut/util"
)

const welcome = "Welcome to PixelCut AI API"

var errRemoverUnavailable = errors.New("Background removal service is currently unavailable")

// Options 启动时构造一次，之后只读
type Options struct {
	Remover rembg.Remover
	// RemoverAvailable 背景去除能力是否在启动时初始化成功
	RemoverAvailable bool
	Enhancer         *enhance.Enhancer
	MaxUploadBytes   int64
	// MaxImagePixels 解码前的像素数上限，0 时使用 util.DefaultMaxPixels
	MaxImagePixels int64
	Stats          *Stats
}

type Server struct {
	remover          rembg.Remover
	removerAvailable bool
	enhancer         *enhance.Enhancer
	maxUploadBytes   int64
	maxImagePixels   int64
	stats            *Stats
}

func New(opts Options) *Server {
	s := &Server{
		remover:          opts.Remover,
		removerAvailable: opts.RemoverAvailable && opts.Remover != nil,
		enhancer:         opts.Enhancer,
		maxUploadBytes:   opts.MaxUploadBytes,
		maxImagePixels:   opts.MaxImagePixels,
		stats:            opts.Stats,
	}
	if s.maxImagePixels <= 0 {
		s.maxImagePixels = util.DefaultMaxPixels
	}
	if s.enhancer == nil {
		s.enhancer = enhance.NewEnhancer()
	}
	if s.stats == nil {
		s.stats = NewStats()
	}
	return s
}

// Router 注册路由和中间件
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestID(), requestLogger(), allowAll(), limitBody(s.maxUploadBytes))
	if s.maxUploadBytes > 0 {
		r.MaxMultipartMemory = s.maxUploadBytes
	}

	r.GET("/", s.root)
	r.GET("/health", s.health)
	r.POST("/remove-bg", s.removeBackground)
	r.POST("/enhance", s.enhanceImage)
	r.POST("/apply-filter/:filter_type", s.applyFilter)
	return r
}

func (s *Server) root(c *gin.Context) {
	s.stats.request(opRoot)
	c.JSON(http.StatusOK, gin.H{"message": welcome})
}

func (s *Server) health(c *gin.Context) {
	s.stats.request(opHealth)
	c.JSON(http.StatusOK, gin.H{"status": "ok", "remove_bg": s.removerAvailable})
}

// removeBackground POST /remove-bg
func (s *Server) removeBackground(c *gin.Context) {
	s.stats.request(opRemoveBG)

	// 能力不可用时不读取、不解码上传内容
	if !s.removerAvailable {
		s.fail(c, opRemoveBG, newError(KindUnavailable, errRemoverUnavailable))
		return
	}

	img, err := s.readImage(c)
	if err != nil {
		s.fail(c, opRemoveBG, err)
		return
	}

	out, err := s.remover.Remove(c.Request.Context(), img)
	if err != nil {
		s.fail(c, opRemoveBG, fmt.Errorf("remove background: %w", err))
		return
	}
	s.writePNG(c, opRemoveBG, out)
}

// enhanceImage POST /enhance
func (s *Server) enhanceImage(c *gin.Context) {
	s.stats.request(opEnhance)

	var params enhance.Params
	if err := c.ShouldBindWith(&params, binding.Form); err != nil {
		s.fail(c, opEnhance, bindError(err))
		return
	}

	img, err := s.readImage(c)
	if err != nil {
		s.fail(c, opEnhance, err)
		return
	}

	out, err := s.enhancer.Enhance(c.Request.Context(), img, params)
	if err != nil {
		s.fail(c, opEnhance, err)
		return
	}
	s.writePNG(c, opEnhance, out)
}

// applyFilter POST /apply-filter/:filter_type
func (s *Server) applyFilter(c *gin.Context) {
	s.stats.request(opApplyFilter)

	name := c.Param("filter_type")
	f, err := filter.Lookup(name)
	if err != nil {
		s.fail(c, opApplyFilter, newError(KindInvalidInput, fmt.Errorf("Unknown filter type: %s", name)))
		return
	}

	img, err := s.readImage(c)
	if err != nil {
		s.fail(c, opApplyFilter, err)
		return
	}

	out, err := f.Apply(img)
	if err != nil {
		s.fail(c, opApplyFilter, fmt.Errorf("apply %s filter: %w", f.Name(), err))
		return
	}
	s.writePNG(c, opApplyFilter, out)
}

// readImage 读取 multipart 的 file 字段并解码
func (s *Server) readImage(c *gin.Context) (image.Image, error) {
	fh, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, newError(KindTooLarge, err)
		}
		return nil, newError(KindValidation, fmt.Errorf("file is required: %w", err))
	}

	f, err := fh.Open()
	if err != nil {
		return nil, fmt.Errorf("open upload: %w", err)
	}
	defer func() {
		_ = f.Close()
	}()

	return util.DecodeImageLimit(f, s.maxImagePixels)
}

func bindError(err error) error {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return newError(KindTooLarge, err)
	}
	return newError(KindValidation, err)
}

// writePNG 先完整编码再写响应，失败时不会留下半截图片
func (s *Server) writePNG(c *gin.Context, op string, img image.Image) {
	data, err := util.EncodePNG(img)
	if err != nil {
		s.fail(c, op, err)
		return
	}
	c.Data(http.StatusOK, "image/png", data)
}

func (s *Server) fail(c *gin.Context, op string, err error) {
	e := classify(err)
	s.stats.failure(op)

	slog.Error("request failed",
		"op", op,
		"kind", e.Kind.String(),
		"error", e.Err,
		"request_id", c.GetString(requestIDKey),
	)
	c.AbortWithStatusJSON(e.Kind.Status(), gin.H{"detail": e.Error()})
}
