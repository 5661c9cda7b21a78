// Package syncer reconciles a sorted object listing against the user cache
// in a single forward pass.
//
// Objects of one user form a contiguous run in lexicographic key order. The
// scan tracks the current run, remembers the last image and the newest info
// object seen in it, and resolves the run when the user changes or the
// listing ends:
//
//   - the run's last image key (or "" when it had none) is written to the cache,
//   - an info object newer than the cached copy becomes a fetch task,
//   - an info object no newer than the cached copy marks the user fresh.
//
// Users without an info object in their run are neither fresh nor stale.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/eunmann/s3-user-agg/pkg/deltafetch"
	"github.com/eunmann/s3-user-agg/pkg/listing"
	"github.com/eunmann/s3-user-agg/pkg/logging"
	"github.com/eunmann/s3-user-agg/pkg/usercache"
	"github.com/rs/zerolog"
)

// Stats counts what a scan observed.
type Stats struct {
	Objects     int
	Users       int
	Images      int
	InfoObjects int
	Malformed   int
	Unknown     int
}

// Result is the fresh/stale partition produced by a scan.
type Result struct {
	// Fresh lists users whose cached info is current, in listing order.
	Fresh []string
	// Pending holds one fetch task per stale user, in listing order.
	Pending []deltafetch.Task
	Stats   Stats
}

// Synchronizer scans listings against a store.
type Synchronizer struct {
	store      *usercache.Store
	classifier listing.Classifier
	prefix     string
	log        zerolog.Logger
}

// New creates a synchronizer. Keys are parsed relative to prefix.
func New(store *usercache.Store, classifier listing.Classifier, prefix string) *Synchronizer {
	return &Synchronizer{
		store:      store,
		classifier: classifier,
		prefix:     prefix,
		log:        logging.WithPhase("scan"),
	}
}

// Scan consumes it to the end and returns the partition. Only an iterator
// error aborts the scan; malformed keys and unknown extensions are counted
// and skipped.
func (s *Synchronizer) Scan(ctx context.Context, it listing.Iterator) (*Result, error) {
	start := time.Now()
	scan := s.Begin()

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		obj, err := it.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read listing: %w", err)
		}
		scan.Observe(obj)
	}

	res := scan.Finish()
	s.log.Info().
		Int("objects", res.Stats.Objects).
		Int("users", res.Stats.Users).
		Int("fresh", len(res.Fresh)).
		Int("stale", len(res.Pending)).
		Int("malformed", res.Stats.Malformed).
		Dur("elapsed", time.Since(start)).
		Msg("listing reconciled")
	return res, nil
}

// Begin starts a scan that is fed one object at a time. Objects must be
// passed in listing order.
func (s *Synchronizer) Begin() *Scan {
	return &Scan{s: s, result: &Result{}}
}

// Scan is the state of an in-progress pass. Between runs it is in the
// no-current-user state; otherwise it holds the current run.
type Scan struct {
	s      *Synchronizer
	result *Result

	inRun       bool
	userID      string
	latestImage string
	newestInfo  *listing.Descriptor
	finished    bool
}

// InRun reports whether a user run is open, and which user it belongs to.
func (sc *Scan) InRun() (string, bool) {
	return sc.userID, sc.inRun
}

// Observe processes the next object of the listing.
func (sc *Scan) Observe(obj listing.Object) {
	stats := &sc.result.Stats
	stats.Objects++

	d, err := listing.ParseKey(sc.s.prefix, obj)
	if err != nil {
		stats.Malformed++
		sc.s.log.Debug().Err(err).Msg("skipping object")
		return
	}

	if !sc.inRun || d.UserID != sc.userID {
		sc.endRun()
		sc.inRun = true
		sc.userID = d.UserID
		stats.Users++
	}

	switch sc.s.classifier.Classify(d.Extension) {
	case listing.FileTypeImage:
		stats.Images++
		sc.latestImage = d.Key
	case listing.FileTypeInfo:
		stats.InfoObjects++
		if sc.newestInfo == nil || !d.LastModified.Before(sc.newestInfo.LastModified) {
			sc.newestInfo = &d
		}
	default:
		stats.Unknown++
		sc.s.log.Debug().
			Err(fmt.Errorf("%w: %s", listing.ErrUnknownExtension, d.Extension)).
			Str("key", d.Key).
			Msg("ignoring object")
	}
}

// Finish closes the last run and returns the result. Further calls return
// the same result.
func (sc *Scan) Finish() *Result {
	if !sc.finished {
		sc.endRun()
		sc.finished = true
	}
	return sc.result
}

// endRun resolves the current run, if any, and returns to the
// no-current-user state.
func (sc *Scan) endRun() {
	if !sc.inRun {
		return
	}

	sc.s.store.SetImagePath(sc.userID, sc.latestImage)

	if info := sc.newestInfo; info != nil {
		rec, _ := sc.s.store.Get(sc.userID)
		if rec.IsStale(info.LastModified) {
			sc.result.Pending = append(sc.result.Pending, deltafetch.Task{
				UserID:       sc.userID,
				Key:          info.Key,
				LastModified: info.LastModified,
			})
		} else {
			sc.result.Fresh = append(sc.result.Fresh, sc.userID)
		}
	}

	sc.inRun = false
	sc.userID = ""
	sc.latestImage = ""
	sc.newestInfo = nil
}
