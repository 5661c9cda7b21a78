package aggregate

import (
	"github.com/eunmann/s3-user-agg/pkg/table"
)

// EmptyAverage is returned by averages over an empty selection.
const EmptyAverage = -1.0

// Options configures one aggregation pass.
type Options struct {
	// Filters must all match for a user to be kept. None keeps everyone.
	Filters []Predicate
	// Columns is the output projection. Empty means every column seen in a
	// kept row, in canonical order.
	Columns []string
}

// Aggregator accumulates kept rows. Rows may be added in any order; the
// resulting row set does not depend on it.
type Aggregator struct {
	opts    Options
	rows    []table.Row
	columns map[string]struct{}
	seen    int
}

// New creates an aggregator for opts.
func New(opts Options) *Aggregator {
	return &Aggregator{
		opts:    opts,
		columns: make(map[string]struct{}),
	}
}

// Add tests a merged user row against the filters and keeps it when all
// match. It reports whether the row was kept. A nil row is never kept.
func (a *Aggregator) Add(row table.Row) bool {
	if row == nil {
		return false
	}
	a.seen++
	if !All(a.opts.Filters, row) {
		return false
	}
	a.rows = append(a.rows, row)
	if len(a.opts.Columns) == 0 {
		for c := range row {
			a.columns[c] = struct{}{}
		}
	}
	return true
}

// Seen returns how many rows were offered to Add.
func (a *Aggregator) Seen() int { return a.seen }

// Kept returns how many rows passed the filters.
func (a *Aggregator) Kept() int { return len(a.rows) }

// Columns returns the output columns of the table.
func (a *Aggregator) Columns() []string {
	if len(a.opts.Columns) > 0 {
		out := make([]string, len(a.opts.Columns))
		copy(out, a.opts.Columns)
		return out
	}
	cols := make([]string, 0, len(a.columns))
	for c := range a.columns {
		cols = append(cols, c)
	}
	if len(cols) == 0 {
		cols = append(cols, table.ColumnUserID, table.ColumnImagePath)
	}
	return table.CanonicalOrder(cols)
}

// Table projects the kept rows onto the output columns.
func (a *Aggregator) Table() *table.Table {
	tbl := table.New(a.Columns())
	for _, r := range a.rows {
		tbl.Append(r)
	}
	return tbl
}

// Mean returns the mean of the numeric values of column and whether there
// was at least one. Null and non-numeric cells are skipped.
func Mean(tbl *table.Table, column string) (float64, bool) {
	var sum float64
	var n int
	for _, v := range tbl.Column(column) {
		if f, ok := v.Float64(); ok {
			sum += f
			n++
		}
	}
	if n == 0 {
		return 0, false
	}
	return sum / float64(n), true
}

// AverageNumeric returns the mean of column, or EmptyAverage when the
// table has no numeric value in it.
func AverageNumeric(tbl *table.Table, column string) float64 {
	mean, ok := Mean(tbl, column)
	if !ok {
		return EmptyAverage
	}
	return mean
}
