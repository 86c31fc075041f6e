package main

import (
	"sync/atomic"

	"go.uber.org/zap"
)

// statsEvery is how many sends pass between progress lines.
const statsEvery = 10

type stats struct {
	logger    *zap.Logger
	sent      atomic.Int64
	succeeded atomic.Int64
}

func newStats(logger *zap.Logger) *stats {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &stats{logger: logger}
}

// record counts one send and logs the running totals every statsEvery sends.
func (s *stats) record(ok bool) {
	if ok {
		s.succeeded.Add(1)
	}
	if n := s.sent.Add(1); n%statsEvery == 0 {
		s.logger.Info("stats",
			zap.Int64("sent", n),
			zap.Int64("succeeded", s.succeeded.Load()),
			zap.Float64("success_rate_pct", s.rate()))
	}
}

func (s *stats) totals() (sent, succeeded int64) {
	return s.sent.Load(), s.succeeded.Load()
}

func (s *stats) rate() float64 {
	sent, succeeded := s.totals()
	if sent == 0 {
		return 0
	}
	return float64(succeeded) / float64(sent) * 100
}
