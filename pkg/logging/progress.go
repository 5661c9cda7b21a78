package logging

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// ProgressTracker counts finished items of a batch and logs periodic
// progress. It is safe for concurrent use.
type ProgressTracker struct {
	total     int64
	completed atomic.Int64
	failed    atomic.Int64
	startTime time.Time
	log       zerolog.Logger
	phase     string

	// every logs a progress line once this many items have finished.
	every int64

	mu      sync.Mutex
	slowest time.Duration
}

// NewProgressTracker creates a tracker for total items.
func NewProgressTracker(phase string, total int64, log zerolog.Logger) *ProgressTracker {
	every := total / 10
	if every < 1 {
		every = 1
	}
	return &ProgressTracker{
		total:     total,
		startTime: time.Now(),
		log:       log,
		phase:     phase,
		every:     every,
	}
}

// RecordCompletion records that an item finished successfully after d.
func (pt *ProgressTracker) RecordCompletion(d time.Duration) {
	pt.completed.Add(1)
	pt.observe(d)
}

// RecordFailure records that an item failed after d.
func (pt *ProgressTracker) RecordFailure(d time.Duration) {
	pt.failed.Add(1)
	pt.observe(d)
}

func (pt *ProgressTracker) observe(d time.Duration) {
	pt.mu.Lock()
	if d > pt.slowest {
		pt.slowest = d
	}
	pt.mu.Unlock()

	done := pt.Done()
	if done%pt.every == 0 && done < pt.total {
		pt.log.Debug().
			Str("phase", pt.phase).
			Int64("done", done).
			Int64("total", pt.total).
			Float64("pct", pt.ProgressPct()).
			Msg("progress")
	}
}

// Progress returns current counters.
func (pt *ProgressTracker) Progress() (completed, failed, total int64) {
	return pt.completed.Load(), pt.failed.Load(), pt.total
}

// Done returns the number of finished items, successful or not.
func (pt *ProgressTracker) Done() int64 {
	return pt.completed.Load() + pt.failed.Load()
}

// ProgressPct returns the progress percentage (0-100).
func (pt *ProgressTracker) ProgressPct() float64 {
	if pt.total == 0 {
		return 100.0
	}
	return float64(pt.Done()) * 100.0 / float64(pt.total)
}

// Elapsed returns time since tracking started.
func (pt *ProgressTracker) Elapsed() time.Duration {
	return time.Since(pt.startTime)
}

// Slowest returns the longest single item duration seen so far.
func (pt *ProgressTracker) Slowest() time.Duration {
	pt.mu.Lock()
	defer pt.mu.Unlock()
	return pt.slowest
}

// LogSummary writes one completion line for the batch.
func (pt *ProgressTracker) LogSummary(msg string) {
	completed, failed, total := pt.Progress()
	ev := pt.log.Info()
	if failed > 0 {
		ev = pt.log.Warn()
	}
	ev.Str("phase", pt.phase).
		Int64("total", total).
		Int64("completed", completed).
		Int64("failed", failed).
		Dur("elapsed", pt.Elapsed()).
		Dur("slowest", pt.Slowest()).
		Msg(msg)
}
