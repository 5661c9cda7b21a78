package table

import "sort"

// Well-known column names added to every user's info row.
const (
	ColumnUserID    = "user_id"
	ColumnImagePath = "img_path"
)

// Row maps column names to values. A column absent from the map is null.
// Rows stored in the cache are treated as immutable; use Clone before editing.
type Row map[string]Value

// Get returns the value of column, or null when the column is absent.
func (r Row) Get(column string) Value {
	if r == nil {
		return Null()
	}
	return r[column]
}

// Clone returns a shallow copy of the row.
func (r Row) Clone() Row {
	if r == nil {
		return nil
	}
	out := make(Row, len(r)+2)
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Columns returns the row's column names in canonical order.
func (r Row) Columns() []string {
	cols := make([]string, 0, len(r))
	for k := range r {
		cols = append(cols, k)
	}
	return CanonicalOrder(cols)
}

// Project returns the values of the given columns, in order.
// Missing columns yield explicit nulls.
func (r Row) Project(columns []string) []Value {
	out := make([]Value, len(columns))
	for i, c := range columns {
		out[i] = r.Get(c)
	}
	return out
}

// CanonicalOrder sorts column names so that user_id comes first, img_path
// comes last and everything else is in lexicographic order. The input slice
// is sorted in place and returned.
func CanonicalOrder(cols []string) []string {
	rank := func(c string) int {
		switch c {
		case ColumnUserID:
			return 0
		case ColumnImagePath:
			return 2
		default:
			return 1
		}
	}
	sort.SliceStable(cols, func(i, j int) bool {
		ri, rj := rank(cols[i]), rank(cols[j])
		if ri != rj {
			return ri < rj
		}
		return cols[i] < cols[j]
	})
	return cols
}

// Table is an ordered set of columns with one value slice per row.
// Every row has exactly len(Columns) values.
type Table struct {
	Columns []string
	Rows    [][]Value
}

// New returns an empty table with the given columns.
func New(columns []string) *Table {
	cols := make([]string, len(columns))
	copy(cols, columns)
	return &Table{Columns: cols}
}

// Append projects row onto the table's columns and appends it.
func (t *Table) Append(row Row) {
	t.Rows = append(t.Rows, row.Project(t.Columns))
}

// Len returns the number of rows.
func (t *Table) Len() int { return len(t.Rows) }

// ColumnIndex returns the position of column, or -1 if absent.
func (t *Table) ColumnIndex(column string) int {
	for i, c := range t.Columns {
		if c == column {
			return i
		}
	}
	return -1
}

// Column returns every value of column in row order.
// It returns nil when the column is not part of the table.
func (t *Table) Column(column string) []Value {
	idx := t.ColumnIndex(column)
	if idx < 0 {
		return nil
	}
	out := make([]Value, len(t.Rows))
	for i, r := range t.Rows {
		out[i] = r[idx]
	}
	return out
}
