// Package aggregate filters merged user rows with column predicates and
// projects the survivors into one table.
package aggregate

import (
	"fmt"
	"math"
	"strings"

	"github.com/eunmann/s3-user-agg/pkg/table"
)

// Predicate decides whether a merged user row is kept.
type Predicate interface {
	Match(row table.Row) bool
	String() string
}

type equal struct {
	column string
	value  table.Value
}

// Equal keeps rows whose column equals value. Numbers compare numerically.
func Equal(column string, value table.Value) Predicate {
	return equal{column: column, value: value}
}

func (p equal) Match(row table.Row) bool { return row.Get(p.column).Equal(p.value) }

func (p equal) String() string { return fmt.Sprintf("%s == %v", p.column, p.value) }

type numRange struct {
	column   string
	min, max float64
}

// Range keeps rows whose column is numeric and within [min, max]. Use
// math.Inf for an open bound. Null and non-numeric values never match.
func Range(column string, min, max float64) Predicate {
	return numRange{column: column, min: min, max: max}
}

// AtLeast keeps rows whose numeric column is >= min.
func AtLeast(column string, min float64) Predicate {
	return Range(column, min, math.Inf(1))
}

// AtMost keeps rows whose numeric column is <= max.
func AtMost(column string, max float64) Predicate {
	return Range(column, math.Inf(-1), max)
}

func (p numRange) Match(row table.Row) bool {
	f, ok := row.Get(p.column).Float64()
	return ok && f >= p.min && f <= p.max
}

func (p numRange) String() string {
	return fmt.Sprintf("%g <= %s <= %g", p.min, p.column, p.max)
}

type exists struct {
	column string
	want   bool
}

// Exists keeps rows where column is present and not null.
func Exists(column string) Predicate { return exists{column: column, want: true} }

// Missing keeps rows where column is absent or null.
func Missing(column string) Predicate { return exists{column: column, want: false} }

// ImageExists keeps users with an image when want is true, and users
// without one when want is false.
func ImageExists(want bool) Predicate {
	return exists{column: table.ColumnImagePath, want: want}
}

func (p exists) Match(row table.Row) bool {
	return !row.Get(p.column).IsNull() == p.want
}

func (p exists) String() string {
	if p.want {
		return p.column + " exists"
	}
	return p.column + " missing"
}

// All combines predicates; an empty list matches every row.
func All(preds []Predicate, row table.Row) bool {
	for _, p := range preds {
		if !p.Match(row) {
			return false
		}
	}
	return true
}

// Describe renders predicates for logs.
func Describe(preds []Predicate) string {
	if len(preds) == 0 {
		return "none"
	}
	parts := make([]string, len(preds))
	for i, p := range preds {
		parts[i] = p.String()
	}
	return strings.Join(parts, " && ")
}
