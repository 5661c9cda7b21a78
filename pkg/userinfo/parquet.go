package userinfo

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/eunmann/s3-user-agg/pkg/table"
	"github.com/parquet-go/parquet-go"
)

// ParseParquet reads the first row of a flat Parquet info object.
func ParseParquet(data []byte) (table.Row, error) {
	file, err := parquet.OpenFile(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("open parquet file: %w", err)
	}

	fields := file.Schema().Fields()
	names := make([]string, len(fields))
	for i, f := range fields {
		if !f.Leaf() {
			return nil, fmt.Errorf("%w: nested column %q", ErrSchema, f.Name())
		}
		names[i] = f.Name()
	}

	for _, rg := range file.RowGroups() {
		rows := rg.Rows()
		buf := make([]parquet.Row, 1)
		n, err := rows.ReadRows(buf)
		rows.Close()
		if n > 0 {
			return parquetRow(buf[0], names)
		}
		if err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("read parquet rows: %w", err)
		}
	}
	return nil, ErrNoRecord
}

// parquetRow converts a parquet.Row to a table row. Columns without a value
// in the row stay null.
func parquetRow(prow parquet.Row, names []string) (table.Row, error) {
	row := make(table.Row, len(names)+2)
	for _, name := range names {
		row[name] = table.Null()
	}

	for _, val := range prow {
		col := val.Column()
		if col < 0 || col >= len(names) {
			return nil, fmt.Errorf("%w: value for unknown column %d", ErrSchema, col)
		}
		if val.IsNull() {
			continue
		}
		row[names[col]] = parquetValue(val)
	}
	return row, nil
}

func parquetValue(val parquet.Value) table.Value {
	switch val.Kind() {
	case parquet.Boolean:
		return table.Bool(val.Boolean())
	case parquet.Int32:
		return table.Int(int64(val.Int32()))
	case parquet.Int64:
		return table.Int(val.Int64())
	case parquet.Float:
		return table.Float(float64(val.Float()))
	case parquet.Double:
		return table.Float(val.Double())
	case parquet.ByteArray, parquet.FixedLenByteArray:
		return table.String(string(val.ByteArray()))
	default:
		return table.String(val.String())
	}
}
