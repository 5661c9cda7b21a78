package aggregate

import (
	"math"
	"time"

	"github.com/eunmann/s3-user-agg/pkg/table"
)

// BirthColumn holds a user's UTC birth date in milliseconds since the epoch.
const BirthColumn = "birthts"

// yearDays is the average year length used for ages.
const yearDays = 365.25

const millisPerYear = yearDays * 24 * 60 * 60 * 1000

// TimestampFromAge returns the epoch-millisecond timestamp of the moment
// age years before now. Ages beyond the int64 range saturate.
func TimestampFromAge(now time.Time, age float64) int64 {
	ts := float64(now.UnixMilli()) - math.Round(age*millisPerYear)
	switch {
	case math.IsNaN(ts):
		return math.MinInt64
	case ts <= math.MinInt64:
		return math.MinInt64
	case ts >= math.MaxInt64:
		return math.MaxInt64
	}
	return int64(ts)
}

// AgeFromTimestamp returns the possibly fractional number of years between
// the epoch-millisecond timestamp ts and now.
func AgeFromTimestamp(now time.Time, ts float64) float64 {
	return (float64(now.UnixMilli()) - ts) / millisPerYear
}

// AgeRange keeps users whose age at now is within [minAge, maxAge], based
// on the birthts column. A negative bound is treated as unset.
func AgeRange(now time.Time, minAge, maxAge float64) Predicate {
	lo, hi := math.Inf(-1), math.Inf(1)
	if minAge >= 0 {
		// Older than minAge means born at or before now-minAge.
		hi = float64(TimestampFromAge(now, minAge))
	}
	if maxAge >= 0 {
		lo = float64(TimestampFromAge(now, maxAge))
	}
	return Range(BirthColumn, lo, hi)
}

// AverageAge returns the mean age at now of the birthts values in tbl, or
// -1 when there is none.
func AverageAge(tbl *table.Table, now time.Time) float64 {
	mean, ok := Mean(tbl, BirthColumn)
	if !ok {
		return EmptyAverage
	}
	return AgeFromTimestamp(now, mean)
}
