// Package userdata ties the listing, the user cache, the delta fetcher and
// the aggregator together behind a synchronous query API.
package userdata

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/eunmann/s3-user-agg/internal/logctx"
	"github.com/eunmann/s3-user-agg/pkg/aggregate"
	"github.com/eunmann/s3-user-agg/pkg/deltafetch"
	"github.com/eunmann/s3-user-agg/pkg/listing"
	"github.com/eunmann/s3-user-agg/pkg/logging"
	"github.com/eunmann/s3-user-agg/pkg/syncer"
	"github.com/eunmann/s3-user-agg/pkg/table"
	"github.com/eunmann/s3-user-agg/pkg/usercache"
	"github.com/rs/zerolog"
)

// Config configures a Service.
type Config struct {
	// Prefix is stripped from listing keys before they are parsed as
	// {user_id}/{file}.
	Prefix string
	// Classifier decides which objects are images and which are info files.
	Classifier listing.Classifier
	// Parse turns info object bytes into a row.
	Parse deltafetch.ParseFunc
	// Fetch bounds the delta fetch.
	Fetch deltafetch.Config
	// DefaultColumns is the projection used when a query names no columns.
	// Empty means every known column.
	DefaultColumns []string
}

// FetchFailure reports a user left out of a result because its info object
// could not be fetched or parsed.
type FetchFailure struct {
	UserID string
	Key    string
	Err    error
}

// Summary describes what one aggregation pass did.
type Summary struct {
	Scan       syncer.Stats
	Fresh      int
	Dispatched int
	Fetched    int
	Failures   []FetchFailure
	Kept       int
	Elapsed    time.Duration
}

// AllFailed reports whether fetches were dispatched and none succeeded.
func (s *Summary) AllFailed() bool {
	return s.Dispatched > 0 && s.Fetched == 0
}

// Result is an aggregated table plus the pass summary.
type Result struct {
	Table   *table.Table
	Summary Summary
}

// Service runs scan, fetch and aggregation passes against one store.
// Passes are serialized, so no user is ever fetched twice at once.
type Service struct {
	lister listing.Lister
	store  *usercache.Store
	sync   *syncer.Synchronizer
	sched  *deltafetch.Scheduler
	cfg    Config
	log    zerolog.Logger

	mu sync.Mutex
}

// New creates a service. A nil store starts with an empty cache.
func New(lister listing.Lister, fetcher deltafetch.Fetcher, store *usercache.Store, cfg Config) (*Service, error) {
	if lister == nil {
		return nil, errors.New("nil lister")
	}
	if fetcher == nil {
		return nil, errors.New("nil fetcher")
	}
	if cfg.Parse == nil {
		return nil, errors.New("nil info parser")
	}
	if cfg.Classifier == nil {
		c, err := listing.NewExtensionClassifier(nil, nil)
		if err != nil {
			return nil, err
		}
		cfg.Classifier = c
	}
	if store == nil {
		store = usercache.New()
	}

	return &Service{
		lister: lister,
		store:  store,
		sync:   syncer.New(store, cfg.Classifier, cfg.Prefix),
		sched:  deltafetch.New(fetcher, cfg.Parse, cfg.Fetch),
		cfg:    cfg,
		log:    logging.WithPhase("aggregate"),
	}, nil
}

// Store returns the cache the service maintains.
func (s *Service) Store() *usercache.Store { return s.store }

// Aggregate brings the cache up to date with the remote listing and
// returns the filtered, projected table of all users with info.
//
// Only a listing failure is returned as an error. Users whose fetch fails
// are left out of the table and reported in the summary.
func (s *Service) Aggregate(ctx context.Context, opts aggregate.Options) (*Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	start := time.Now()
	if len(opts.Columns) == 0 && len(s.cfg.DefaultColumns) > 0 {
		opts.Columns = s.cfg.DefaultColumns
	}
	ctx = logctx.WithLogger(ctx, s.log)

	it, err := s.lister.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list objects: %w", err)
	}
	scan, err := s.sync.Scan(ctx, it)
	closeErr := it.Close()
	if err != nil {
		return nil, fmt.Errorf("scan listing: %w", err)
	}
	if closeErr != nil {
		return nil, fmt.Errorf("close listing: %w", closeErr)
	}

	agg := aggregate.New(opts)
	summary := Summary{
		Scan:       scan.Stats,
		Fresh:      len(scan.Fresh),
		Dispatched: len(scan.Pending),
	}

	// Fresh rows are aggregated while the fetches are in flight.
	results := s.sched.Run(ctx, scan.Pending)
	for _, id := range scan.Fresh {
		rec, _ := s.store.Get(id)
		agg.Add(rec.Merged())
	}

	for res := range results {
		if res.Err != nil {
			summary.Failures = append(summary.Failures, FetchFailure{
				UserID: res.UserID,
				Key:    res.Key,
				Err:    res.Err,
			})
			continue
		}
		rec := s.store.CommitInfo(res.UserID, res.Info, res.LastModified)
		summary.Fetched++
		agg.Add(rec.Merged())
	}

	summary.Kept = agg.Kept()
	summary.Elapsed = time.Since(start)

	ev := s.log.Info()
	if summary.AllFailed() {
		ev = s.log.Error()
	} else if len(summary.Failures) > 0 {
		ev = s.log.Warn()
	}
	ev.Int("fresh", summary.Fresh).
		Int("fetched", summary.Fetched).
		Int("failed", len(summary.Failures)).
		Int("kept", summary.Kept).
		Str("filters", aggregate.Describe(opts.Filters)).
		Dur("elapsed", summary.Elapsed).
		Msg("aggregation finished")

	return &Result{Table: agg.Table(), Summary: summary}, nil
}

// AverageNumericColumn returns the mean of column over the users matching
// filters, or -1 when none has a numeric value there.
func (s *Service) AverageNumericColumn(ctx context.Context, filters []aggregate.Predicate, column string) (float64, *Summary, error) {
	res, err := s.Aggregate(ctx, aggregate.Options{Filters: filters, Columns: []string{column}})
	if err != nil {
		return 0, nil, err
	}
	return aggregate.AverageNumeric(res.Table, column), &res.Summary, nil
}

// AverageAge returns the mean age at now, in years, of the users matching
// filters, computed from their birthts column; -1 when there is none.
func (s *Service) AverageAge(ctx context.Context, filters []aggregate.Predicate, now time.Time) (float64, *Summary, error) {
	res, err := s.Aggregate(ctx, aggregate.Options{Filters: filters, Columns: []string{aggregate.BirthColumn}})
	if err != nil {
		return 0, nil, err
	}
	return aggregate.AverageAge(res.Table, now), &res.Summary, nil
}
