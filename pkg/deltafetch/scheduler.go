// Package deltafetch downloads and parses the info objects of stale users
// concurrently and hands back results in completion order.
package deltafetch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/eunmann/s3-user-agg/internal/logctx"
	"github.com/eunmann/s3-user-agg/pkg/logging"
	"github.com/eunmann/s3-user-agg/pkg/table"
	"golang.org/x/sync/errgroup"
)

var (
	// ErrFetch marks a task whose object download failed or timed out.
	ErrFetch = errors.New("fetch failed")
	// ErrParse marks a task whose downloaded bytes could not be parsed.
	ErrParse = errors.New("parse failed")
	// ErrDuplicateTask marks a second task for a user already in the batch.
	ErrDuplicateTask = errors.New("duplicate fetch task for user")
)

// Fetcher returns the raw bytes of an object. Implementations must be safe
// for concurrent use.
type Fetcher interface {
	Fetch(ctx context.Context, key string) ([]byte, error)
}

// FetcherFunc adapts a function to Fetcher.
type FetcherFunc func(ctx context.Context, key string) ([]byte, error)

// Fetch calls f.
func (f FetcherFunc) Fetch(ctx context.Context, key string) ([]byte, error) {
	return f(ctx, key)
}

// ParseFunc turns the bytes of the object at key into an info row.
type ParseFunc func(key string, data []byte) (table.Row, error)

// Task is a pending fetch of one user's info object.
type Task struct {
	UserID string
	Key    string
	// LastModified is the listing timestamp of Key, stored with the parsed row.
	LastModified time.Time
}

// Result is the outcome of one Task.
type Result struct {
	Task
	// Info is the parsed row; nil when Err is set.
	Info     table.Row
	Bytes    int
	Duration time.Duration
	Err      error
}

// Config configures a Scheduler.
type Config struct {
	// Concurrency bounds the number of in-flight fetches.
	// Zero or negative means all tasks of a batch at once.
	Concurrency int
	// Timeout bounds each task. Zero means no per-task timeout.
	Timeout time.Duration
}

// Scheduler runs fetch-and-parse tasks on a bounded pool.
type Scheduler struct {
	fetcher Fetcher
	parse   ParseFunc
	cfg     Config
}

// New creates a scheduler.
func New(fetcher Fetcher, parse ParseFunc, cfg Config) *Scheduler {
	return &Scheduler{
		fetcher: fetcher,
		parse:   parse,
		cfg:     cfg,
	}
}

// Run starts every task and returns a channel that yields one Result per
// task, in the order tasks finish. The channel is closed once all tasks are
// done. A failing task never cancels its siblings; cancelling ctx turns the
// remaining tasks into failures.
func (s *Scheduler) Run(ctx context.Context, tasks []Task) <-chan Result {
	out := make(chan Result, len(tasks))

	limit := s.cfg.Concurrency
	if limit <= 0 || limit > len(tasks) {
		limit = len(tasks)
	}
	if limit < 1 {
		limit = 1
	}

	log := logctx.FromContext(ctx)
	progress := logging.NewProgressTracker("fetch", int64(len(tasks)), log)

	go func() {
		defer close(out)

		var g errgroup.Group
		g.SetLimit(limit)

		seen := make(map[string]struct{}, len(tasks))
		for _, task := range tasks {
			if _, dup := seen[task.UserID]; dup {
				progress.RecordFailure(0)
				out <- Result{Task: task, Err: fmt.Errorf("%w: %s", ErrDuplicateTask, task.UserID)}
				continue
			}
			seen[task.UserID] = struct{}{}

			g.Go(func() error {
				res := s.runTask(ctx, task)
				if res.Err != nil {
					progress.RecordFailure(res.Duration)
				} else {
					progress.RecordCompletion(res.Duration)
				}
				out <- res
				return nil
			})
		}
		_ = g.Wait()

		if len(tasks) > 0 {
			progress.LogSummary("delta fetch finished")
		}
	}()

	return out
}

func (s *Scheduler) runTask(ctx context.Context, task Task) Result {
	start := time.Now()
	ctx = logctx.WithUser(ctx, task.UserID, task.Key)
	log := logctx.FromContext(ctx)

	if s.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.Timeout)
		defer cancel()
	}

	res := Result{Task: task}

	data, err := s.fetcher.Fetch(ctx, task.Key)
	if err == nil {
		// A fetcher that ignores ctx still has its late result discarded.
		err = ctx.Err()
	}
	if err != nil {
		res.Duration = time.Since(start)
		res.Err = fmt.Errorf("%w: %s: %w", ErrFetch, task.Key, err)
		log.Warn().Err(err).Dur("elapsed", res.Duration).Msg("fetch failed")
		return res
	}
	res.Bytes = len(data)

	info, err := s.parse(task.Key, data)
	res.Duration = time.Since(start)
	if err != nil {
		res.Err = fmt.Errorf("%w: %s: %w", ErrParse, task.Key, err)
		log.Warn().Err(err).Int("bytes", res.Bytes).Msg("parse failed")
		return res
	}

	res.Info = info
	log.Debug().Int("bytes", res.Bytes).Dur("elapsed", res.Duration).Msg("fetched info")
	return res
}
