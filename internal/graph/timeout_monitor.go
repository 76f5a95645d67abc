package graph

import (
	"context"
	stderrors "errors"
	"log/slog"
	"sort"
	"sync"
	"time"
)

// TimeoutStats summarizes executions of one operation
type TimeoutStats struct {
	Operation       string
	TotalExecutions int
	TimeoutCount    int
	AverageDuration time.Duration
	MaxDuration     time.Duration
}

// TimeoutMonitor records transaction durations per operation and warns when
// one gets close to its transaction timeout.
type TimeoutMonitor struct {
	logger       *slog.Logger
	warningRatio float64

	mu    sync.Mutex
	stats map[string]*TimeoutStats
}

// NewTimeoutMonitor warns at 80% of the timeout
func NewTimeoutMonitor() *TimeoutMonitor {
	return &TimeoutMonitor{
		logger:       slog.Default().With("component", "timeout_monitor"),
		warningRatio: 0.8,
		stats:        make(map[string]*TimeoutStats),
	}
}

// Observe records one execution. A zero timeout only records the duration.
func (tm *TimeoutMonitor) Observe(operation string, timeout, duration time.Duration, err error) {
	timedOut := err != nil && (stderrors.Is(err, context.DeadlineExceeded) || (timeout > 0 && duration >= timeout))

	tm.mu.Lock()
	s := tm.stats[operation]
	if s == nil {
		s = &TimeoutStats{Operation: operation}
		tm.stats[operation] = s
	}
	s.TotalExecutions++
	if timedOut {
		s.TimeoutCount++
	}
	prev := s.AverageDuration.Nanoseconds() * int64(s.TotalExecutions-1)
	s.AverageDuration = time.Duration((prev + duration.Nanoseconds()) / int64(s.TotalExecutions))
	if duration > s.MaxDuration {
		s.MaxDuration = duration
	}
	tm.mu.Unlock()

	switch {
	case timedOut:
		tm.logger.Error("transaction timed out",
			"operation", operation,
			"duration_seconds", duration.Seconds(),
			"timeout_seconds", timeout.Seconds(),
			"error", err)
	case timeout > 0 && duration >= time.Duration(float64(timeout)*tm.warningRatio):
		tm.logger.Warn("transaction approaching timeout",
			"operation", operation,
			"duration_seconds", duration.Seconds(),
			"timeout_seconds", timeout.Seconds(),
			"percent_used", duration.Seconds()/timeout.Seconds()*100)
	}
}

// Stats returns a copy of the statistics for one operation
func (tm *TimeoutMonitor) Stats(operation string) (TimeoutStats, bool) {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	s, ok := tm.stats[operation]
	if !ok {
		return TimeoutStats{}, false
	}
	return *s, true
}

// LogSummary logs one line per operation, sorted by name
func (tm *TimeoutMonitor) LogSummary() {
	tm.mu.Lock()
	all := make([]TimeoutStats, 0, len(tm.stats))
	for _, s := range tm.stats {
		all = append(all, *s)
	}
	tm.mu.Unlock()

	sort.Slice(all, func(i, j int) bool { return all[i].Operation < all[j].Operation })
	for _, s := range all {
		tm.logger.Info("operation stats",
			"operation", s.Operation,
			"total_executions", s.TotalExecutions,
			"timeout_count", s.TimeoutCount,
			"avg_duration_ms", s.AverageDuration.Milliseconds(),
			"max_duration_ms", s.MaxDuration.Milliseconds())
	}
}
