package sqlkit

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"
)

// QueryStats holds execution counters for one Client.
type QueryStats struct {
	// TotalQueries counts statements that returned rows (buffered or streamed).
	TotalQueries atomic.Int64
	// TotalExecs counts statements run through Exec.
	TotalExecs atomic.Int64
	// TotalDuration is the time spent executing, in nanoseconds.
	TotalDuration atomic.Int64
	// SlowQueries counts statements exceeding the slow query threshold.
	SlowQueries atomic.Int64
	// Errors counts failed statements.
	Errors atomic.Int64
}

// Snapshot returns the current counter values.
func (s *QueryStats) Snapshot() StatsSnapshot {
	return StatsSnapshot{
		TotalQueries:  s.TotalQueries.Load(),
		TotalExecs:    s.TotalExecs.Load(),
		TotalDuration: time.Duration(s.TotalDuration.Load()),
		SlowQueries:   s.SlowQueries.Load(),
		Errors:        s.Errors.Load(),
	}
}

// Reset sets all counters to zero.
func (s *QueryStats) Reset() {
	s.TotalQueries.Store(0)
	s.TotalExecs.Store(0)
	s.TotalDuration.Store(0)
	s.SlowQueries.Store(0)
	s.Errors.Store(0)
}

// StatsSnapshot is a point-in-time copy of QueryStats.
type StatsSnapshot struct {
	TotalQueries  int64
	TotalExecs    int64
	TotalDuration time.Duration
	SlowQueries   int64
	Errors        int64
}

// AvgDuration returns the mean statement duration.
func (s StatsSnapshot) AvgDuration() time.Duration {
	total := s.TotalQueries + s.TotalExecs
	if total == 0 {
		return 0
	}
	return s.TotalDuration / time.Duration(total)
}

func (s StatsSnapshot) String() string {
	return fmt.Sprintf(
		"queries=%d execs=%d duration=%s avg=%s slow=%d errors=%d",
		s.TotalQueries, s.TotalExecs, s.TotalDuration, s.AvgDuration(),
		s.SlowQueries, s.Errors,
	)
}

// observe records one finished statement. Parameter values are never logged.
func (e *settings) observe(ctx context.Context, query string, exec bool, start time.Time, err error) {
	d := time.Since(start)
	if exec {
		e.stats.TotalExecs.Add(1)
	} else {
		e.stats.TotalQueries.Add(1)
	}
	e.stats.TotalDuration.Add(int64(d))
	if err != nil {
		e.stats.Errors.Add(1)
	}
	if e.slow > 0 && d >= e.slow {
		e.stats.SlowQueries.Add(1)
		e.logger.LogAttrs(ctx, slog.LevelWarn, "sqlkit: slow query",
			slog.Duration("duration", d),
			slog.String("query", query),
		)
	}
}
