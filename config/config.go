// Package config 从环境变量（可选 .env 文件）加载服务配置
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Host    string
	Port    int
	GinMode string

	LogLevel  slog.Level
	LogFormat string

	RemBGEnabled bool
	RemBGURL     string
	RemBGModel   string
	RemBGMaxSize int
	RemBGTimeout time.Duration

	MaxUploadBytes int64
	// MaxImagePixels 解码前检查的像素数上限
	MaxImagePixels int64

	// StatsSchedule cron 表达式，空字符串表示不输出统计
	StatsSchedule string
}

func Default() *Config {
	return &Config{
		Host:           "0.0.0.0",
		Port:           8000,
		GinMode:        "release",
		LogLevel:       slog.LevelInfo,
		LogFormat:      "text",
		RemBGEnabled:   true,
		RemBGURL:       "http://127.0.0.1:7000",
		RemBGModel:     "u2net",
		RemBGMaxSize:   1024,
		RemBGTimeout:   60 * time.Second,
		MaxUploadBytes: 32 << 20,
		MaxImagePixels: 89_478_485,
		StatsSchedule:  "@every 5m",
	}
}

// Load 先读取 .env（不存在时忽略），再从环境变量覆盖默认值
func Load(envFiles ...string) (*Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", f, err)
		}
	}
	return FromEnv(os.LookupEnv)
}

// FromEnv 解析配置，lookup 便于测试时注入
func FromEnv(lookup func(string) (string, bool)) (*Config, error) {
	cfg := Default()
	p := parser{lookup: lookup}

	cfg.Host = p.str("HOST", cfg.Host)
	cfg.Port = p.integer("PORT", cfg.Port)
	cfg.GinMode = p.str("GIN_MODE", cfg.GinMode)
	cfg.LogLevel = p.level("LOG_LEVEL", cfg.LogLevel)
	cfg.LogFormat = strings.ToLower(p.str("LOG_FORMAT", cfg.LogFormat))
	cfg.RemBGEnabled = p.boolean("REMBG_ENABLED", cfg.RemBGEnabled)
	cfg.RemBGURL = p.str("REMBG_URL", cfg.RemBGURL)
	cfg.RemBGModel = p.str("REMBG_MODEL", cfg.RemBGModel)
	cfg.RemBGMaxSize = p.integer("REMBG_MAX_SIZE", cfg.RemBGMaxSize)
	cfg.RemBGTimeout = p.duration("REMBG_TIMEOUT", cfg.RemBGTimeout)
	cfg.MaxUploadBytes = int64(p.integer("MAX_UPLOAD_MB", int(cfg.MaxUploadBytes>>20))) << 20
	cfg.MaxImagePixels = int64(p.integer("MAX_IMAGE_PIXELS", int(cfg.MaxImagePixels)))
	cfg.StatsSchedule = p.str("STATS_SCHEDULE", cfg.StatsSchedule)

	if len(p.errs) > 0 {
		return nil, errors.Join(p.errs...)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	var errs []error
	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("PORT out of range: %d", c.Port))
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("LOG_FORMAT must be text or json, got %q", c.LogFormat))
	}
	if c.RemBGEnabled && c.RemBGURL == "" {
		errs = append(errs, errors.New("REMBG_URL is required when REMBG_ENABLED is true"))
	}
	if c.MaxUploadBytes <= 0 {
		errs = append(errs, errors.New("MAX_UPLOAD_MB must be positive"))
	}
	if c.MaxImagePixels <= 0 {
		errs = append(errs, errors.New("MAX_IMAGE_PIXELS must be positive"))
	}
	return errors.Join(errs...)
}

func (c *Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

type parser struct {
	lookup func(string) (string, bool)
	errs   []error
}

func (p *parser) raw(key string) (string, bool) {
	v, ok := p.lookup(key)
	v = strings.TrimSpace(v)
	return v, ok && v != ""
}

func (p *parser) str(key, def string) string {
	if v, ok := p.raw(key); ok {
		return v
	}
	return def
}

func (p *parser) integer(key string, def int) int {
	v, ok := p.raw(key)
	if !ok {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return n
}

func (p *parser) boolean(key string, def bool) bool {
	v, ok := p.raw(key)
	if !ok {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return b
}

func (p *parser) duration(key string, def time.Duration) time.Duration {
	v, ok := p.raw(key)
	if !ok {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return d
}

func (p *parser) level(key string, def slog.Level) slog.Level {
	v, ok := p.raw(key)
	if !ok {
		return def
	}
	var l slog.Level
	if err := l.UnmarshalText([]byte(v)); err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return l
}
