package util

import (
	"log/slog"
	"time"
)

// Trace 记录一段代码的耗时，用法：defer util.Trace("remove bg")()
func Trace(msg string) func() {
	start := time.Now()
	return func() {
		slog.Debug("trace", "msg", msg, "elapsed", time.Since(start))
	}
}
