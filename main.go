package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/chaos-io/pixelcut/config"
	"github.com/chaos-io/pixelcut/enhance"
	"github.com/chaos-io/pixelcut/rembg"
	"github.com/chaos-io/pixelcut/server"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load config:", err)
	}

	setupLogger(cfg)
	gin.SetMode(cfg.GinMode)

	remover, available := initRemover(cfg)

	stats := server.NewStats()
	if cfg.StatsSchedule != "" {
		reporter, err := stats.StartReporter(cfg.StatsSchedule)
		if err != nil {
			log.Fatal("Failed to schedule stats reporter:", err)
		}
		defer reporter.Stop()
	}

	srv := server.New(server.Options{
		Remover:          remover,
		RemoverAvailable: available,
		Enhancer:         enhance.NewEnhancer(),
		MaxUploadBytes:   cfg.MaxUploadBytes,
		MaxImagePixels:   cfg.MaxImagePixels,
		Stats:            stats,
	})

	httpServer := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           srv.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		slog.Info("server starting", "addr", cfg.Addr(), "remove_bg", available)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server stopped", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown", "error", err)
	}
}

func setupLogger(cfg *config.Config) {
	opts := &slog.HandlerOptions{Level: cfg.LogLevel}
	var handler slog.Handler = slog.NewTextHandler(os.Stdout, opts)
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
}

// initRemover 启动时探测 rembg 服务，结果在进程生命周期内不变
func initRemover(cfg *config.Config) (rembg.Remover, bool) {
	if !cfg.RemBGEnabled {
		slog.Warn("background removal disabled by config")
		return nil, false
	}

	r := rembg.NewServerRemBG(cfg.RemBGURL,
		rembg.WithModel(cfg.RemBGModel),
		rembg.WithMaxSize(cfg.RemBGMaxSize),
		rembg.WithTimeout(cfg.RemBGTimeout),
	)
	return r, probe(r, cfg)
}

// probe 只在启动时执行一次
func probe(p rembg.Prober, cfg *config.Config) bool {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := p.Probe(ctx); err != nil {
		slog.Warn("failed to initialize rembg", "url", cfg.RemBGURL, "error", err)
		return false
	}

	slog.Info("rembg initialized successfully", "url", cfg.RemBGURL, "model", cfg.RemBGModel)
	return true
}
