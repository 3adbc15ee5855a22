package server

import (
	"log/slog"
	"sync/atomic"

	"github.com/robfig/cron/v3"
)

const (
	opRoot        = "root"
	opHealth      = "health"
	opRemoveBG    = "remove_bg"
	opEnhance     = "enhance"
	opApplyFilter = "apply_filter"
)

type counter struct {
	requests atomic.Int64
	failures atomic.Int64
}

// Stats 各接口的请求数和失败数；map 在构造后只读，计数用原子操作
type Stats struct {
	ops map[string]*counter
}

func NewStats() *Stats {
	s := &Stats{ops: make(map[string]*counter)}
	for _, op := range []string{opRoot, opHealth, opRemoveBG, opEnhance, opApplyFilter} {
		s.ops[op] = &counter{}
	}
	return s
}

func (s *Stats) request(op string) {
	if c, ok := s.ops[op]; ok {
		c.requests.Add(1)
	}
}

func (s *Stats) failure(op string) {
	if c, ok := s.ops[op]; ok {
		c.failures.Add(1)
	}
}

// Snapshot 返回 op → [请求数, 失败数]
func (s *Stats) Snapshot() map[string][2]int64 {
	out := make(map[string][2]int64, len(s.ops))
	for op, c := range s.ops {
		out[op] = [2]int64{c.requests.Load(), c.failures.Load()}
	}
	return out
}

func (s *Stats) log() {
	attrs := make([]any, 0, len(s.ops))
	for op, v := range s.Snapshot() {
		attrs = append(attrs, slog.Group(op, "requests", v[0], "failures", v[1]))
	}
	slog.Info("request stats", attrs...)
}

// StartReporter 按 cron 表达式定期输出统计，返回的 cron 由调用方 Stop
func (s *Stats) StartReporter(schedule string) (*cron.Cron, error) {
	c := cron.New()
	if _, err := c.AddFunc(schedule, s.log); err != nil {
		return nil, err
	}
	c.Start()
	return c, nil
}
