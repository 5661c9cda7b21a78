package inventory

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/parquet-go/parquet-go"
)

type parquetReader struct {
	rowGroups    []parquet.RowGroup
	currentRGIdx int
	currentRows  parquet.Rows
	rowBuf       []parquet.Row
	bufIdx       int
	bufLen       int

	keyCol, sizeCol, modCol int
}

// NewParquetReader reads a Parquet inventory file. Columns are found by
// name: key, size (optional) and last_modified_date.
func NewParquetReader(r io.ReaderAt, size int64) (Reader, error) {
	file, err := parquet.OpenFile(r, size)
	if err != nil {
		return nil, fmt.Errorf("open parquet file: %w", err)
	}

	pr := &parquetReader{
		rowGroups:    file.RowGroups(),
		currentRGIdx: -1,
		rowBuf:       make([]parquet.Row, 256),
		keyCol:       -1,
		sizeCol:      -1,
		modCol:       -1,
	}
	for i, field := range file.Schema().Fields() {
		switch field.Name() {
		case "key":
			pr.keyCol = i
		case "size":
			pr.sizeCol = i
		case "last_modified_date":
			pr.modCol = i
		}
	}
	if pr.keyCol < 0 {
		return nil, errors.New("parquet schema missing 'key' column")
	}
	if pr.modCol < 0 {
		return nil, errors.New("parquet schema missing 'last_modified_date' column")
	}
	return pr, nil
}

// Next returns the next inventory row.
func (r *parquetReader) Next() (Row, error) {
	for {
		if r.bufIdx < r.bufLen {
			row := r.rowBuf[r.bufIdx]
			r.bufIdx++
			out := r.convert(row)
			if out.Key == "" {
				continue
			}
			return out, nil
		}

		if r.currentRows != nil {
			n, err := r.currentRows.ReadRows(r.rowBuf)
			if n > 0 {
				r.bufIdx = 0
				r.bufLen = n
				continue
			}
			if err != nil && !errors.Is(err, io.EOF) {
				return Row{}, fmt.Errorf("read parquet rows: %w", err)
			}
			r.currentRows.Close()
			r.currentRows = nil
		}

		r.currentRGIdx++
		if r.currentRGIdx >= len(r.rowGroups) {
			return Row{}, io.EOF
		}
		r.currentRows = r.rowGroups[r.currentRGIdx].Rows()
	}
}

func (r *parquetReader) convert(row parquet.Row) Row {
	var out Row
	for _, val := range row {
		if val.IsNull() {
			continue
		}
		switch val.Column() {
		case r.keyCol:
			out.Key = val.String()
		case r.sizeCol:
			out.Size = val.Int64()
		case r.modCol:
			// Inventory timestamps are milliseconds since the epoch.
			out.LastModified = time.UnixMilli(val.Int64()).UTC()
		}
	}
	return out
}

// Close releases resources.
func (r *parquetReader) Close() error {
	if r.currentRows != nil {
		err := r.currentRows.Close()
		r.currentRows = nil
		return err
	}
	return nil
}
