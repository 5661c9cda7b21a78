// Package usercache holds the process-local cache of per-user records.
package usercache

import (
	"sort"
	"sync"
	"time"

	"github.com/eunmann/s3-user-agg/pkg/table"
)

// Record is the cached state of one user.
//
// A record may carry an ImagePath while Info is still nil: the image was
// discovered before the first successful info fetch.
type Record struct {
	UserID string
	// Info is the user's attribute row, nil until the first successful fetch.
	// It must not be modified; clone it first.
	Info table.Row
	// ImagePath is the key of the most recently observed image, "" if none.
	ImagePath string
	// LastModified is the listing timestamp of the object Info was parsed from.
	// The zero time is older than any real timestamp.
	LastModified time.Time
}

// HasInfo reports whether the record carries a fetched info row.
func (r Record) HasInfo() bool { return r.Info != nil }

// HasImage reports whether an image was observed in the latest scan.
func (r Record) HasImage() bool { return r.ImagePath != "" }

// IsStale reports whether an info object modified at remote must be fetched.
// Equal timestamps count as up to date.
func (r Record) IsStale(remote time.Time) bool {
	return !r.HasInfo() || r.LastModified.Before(remote)
}

// Merged returns the info row with user_id and img_path filled in from the
// record. The result is a fresh map owned by the caller; it is nil when the
// record has no info.
func (r Record) Merged() table.Row {
	if r.Info == nil {
		return nil
	}
	row := r.Info.Clone()
	row[table.ColumnUserID] = table.String(r.UserID)
	if r.ImagePath != "" {
		row[table.ColumnImagePath] = table.String(r.ImagePath)
	} else {
		row[table.ColumnImagePath] = table.Null()
	}
	return row
}

// Store maps user IDs to records. It is safe for concurrent use; every
// mutation replaces a whole record under the lock, so readers never observe
// Info and LastModified from different updates.
type Store struct {
	mu      sync.RWMutex
	records map[string]Record
}

// New creates an empty store.
func New() *Store {
	return &Store{records: make(map[string]Record)}
}

// Get returns a copy of the record for userID.
func (s *Store) Get(userID string) (Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[userID]
	return rec, ok
}

// SetImagePath records the latest image key for userID, creating the record
// if needed. An empty path clears the image.
func (s *Store) SetImagePath(userID, imagePath string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec := s.records[userID]
	rec.UserID = userID
	rec.ImagePath = imagePath
	s.records[userID] = rec
}

// CommitInfo stores a freshly fetched info row together with the listing
// timestamp of the object it came from, and returns the updated record.
// The image path already in the store is kept.
func (s *Store) CommitInfo(userID string, info table.Row, lastModified time.Time) Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec := s.records[userID]
	rec.UserID = userID
	rec.Info = info
	rec.LastModified = lastModified
	s.records[userID] = rec
	return rec
}

// Put replaces the record for rec.UserID.
func (s *Store) Put(rec Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[rec.UserID] = rec
}

// Len returns the number of records.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// Snapshot returns copies of all records sorted by user ID.
func (s *Store) Snapshot() []Record {
	s.mu.RLock()
	out := make([]Record, 0, len(s.records))
	for _, rec := range s.records {
		out = append(out, rec)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out
}
