package export

import (
	"errors"
	"fmt"
	"io"

	"github.com/eunmann/s3-user-agg/pkg/table"
	"github.com/parquet-go/parquet-go"
)

// WriteParquet writes the table as a flat Parquet file with one optional
// column per table column. Column types are inferred from the non-null
// values: all ints give INT64, ints mixed with floats give DOUBLE, all
// bools give BOOLEAN, and anything else is written as a string.
func WriteParquet(w io.Writer, tbl *table.Table) error {
	if len(tbl.Columns) == 0 {
		return errors.New("parquet output needs at least one column")
	}

	kinds := make([]table.Kind, len(tbl.Columns))
	group := make(parquet.Group, len(tbl.Columns))
	for i, c := range tbl.Columns {
		if _, dup := group[c]; dup {
			return fmt.Errorf("duplicate column %q", c)
		}
		kinds[i] = columnKind(tbl, i)
		group[c] = parquet.Optional(parquetNode(kinds[i]))
	}
	schema := parquet.NewSchema("user", group)

	// Leaf order in the schema is by name, not by table column order.
	leaf := make([]int, len(tbl.Columns))
	for i, c := range tbl.Columns {
		col, ok := schema.Lookup(c)
		if !ok {
			return fmt.Errorf("column %q missing from parquet schema", c)
		}
		leaf[i] = col.ColumnIndex
	}

	pw := parquet.NewWriter(w, schema)
	rows := make([]parquet.Row, 0, len(tbl.Rows))
	for _, r := range tbl.Rows {
		prow := make(parquet.Row, len(tbl.Columns))
		for i, v := range r {
			prow[leaf[i]] = parquetCell(v, kinds[i], leaf[i])
		}
		rows = append(rows, prow)
	}

	if _, err := pw.WriteRows(rows); err != nil {
		return fmt.Errorf("write parquet rows: %w", err)
	}
	if err := pw.Close(); err != nil {
		return fmt.Errorf("close parquet writer: %w", err)
	}
	return nil
}

func columnKind(tbl *table.Table, col int) table.Kind {
	kind := table.KindNull
	for _, r := range tbl.Rows {
		k := r[col].Kind()
		switch {
		case k == table.KindNull || k == kind:
		case kind == table.KindNull:
			kind = k
		case isNumeric(kind) && isNumeric(k):
			kind = table.KindFloat
		default:
			return table.KindString
		}
	}
	if kind == table.KindNull {
		return table.KindString
	}
	return kind
}

func isNumeric(k table.Kind) bool {
	return k == table.KindInt || k == table.KindFloat
}

func parquetNode(k table.Kind) parquet.Node {
	switch k {
	case table.KindInt:
		return parquet.Int(64)
	case table.KindFloat:
		return parquet.Leaf(parquet.DoubleType)
	case table.KindBool:
		return parquet.Leaf(parquet.BooleanType)
	default:
		return parquet.String()
	}
}

func parquetCell(v table.Value, k table.Kind, col int) parquet.Value {
	if v.IsNull() {
		return parquet.NullValue().Level(0, 0, col)
	}

	var pv parquet.Value
	switch k {
	case table.KindInt:
		i, _ := v.Int64()
		pv = parquet.Int64Value(i)
	case table.KindFloat:
		f, _ := v.Float64()
		pv = parquet.DoubleValue(f)
	case table.KindBool:
		b, _ := v.BoolValue()
		pv = parquet.BooleanValue(b)
	default:
		pv = parquet.ByteArrayValue([]byte(v.String()))
	}
	return pv.Level(0, 1, col)
}
