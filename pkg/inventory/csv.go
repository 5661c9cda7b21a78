// Package inventory lists user objects from AWS S3 Inventory reports
// instead of live ListObjectsV2 calls.
package inventory

import (
	"compress/gzip"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Row is a single object from an inventory report.
type Row struct {
	Key          string
	Size         int64
	LastModified time.Time
}

// Reader reads inventory rows. Next returns io.EOF when all rows have been read.
type Reader interface {
	Next() (Row, error)
	Close() error
}

// DefaultSchema is the fileSchema of an inventory configured with the
// LastModifiedDate and Size optional fields.
const DefaultSchema = "Bucket, Key, Size, LastModifiedDate"

// CSVColumns holds column indices for the CSV reader.
type CSVColumns struct {
	Key          int
	Size         int // -1 if not available
	LastModified int
}

// ParseSchema resolves column indices from a manifest fileSchema string
// such as "Bucket, Key, Size, LastModifiedDate".
func ParseSchema(fileSchema string) (CSVColumns, error) {
	cols := CSVColumns{Key: -1, Size: -1, LastModified: -1}
	for i, name := range strings.Split(fileSchema, ",") {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case "key":
			cols.Key = i
		case "size":
			cols.Size = i
		case "lastmodifieddate":
			cols.LastModified = i
		}
	}
	if cols.Key < 0 {
		return cols, fmt.Errorf("column %q not found in schema: %s", "Key", fileSchema)
	}
	if cols.LastModified < 0 {
		return cols, fmt.Errorf("column %q not found in schema: %s", "LastModifiedDate", fileSchema)
	}
	return cols, nil
}

type csvReader struct {
	csvReader *csv.Reader
	cols      CSVColumns
	closers   []io.Closer
}

// NewCSVReader reads inventory CSV from r. Data is gunzipped when name ends
// in .gz. Closing the reader closes r.
func NewCSVReader(r io.ReadCloser, name string, cols CSVColumns) (Reader, error) {
	var src io.Reader = r
	closers := []io.Closer{r}

	if strings.HasSuffix(strings.ToLower(name), ".gz") {
		gzr, err := gzip.NewReader(r)
		if err != nil {
			r.Close()
			return nil, fmt.Errorf("create gzip reader: %w", err)
		}
		closers = append(closers, gzr)
		src = gzr
	}

	csvr := csv.NewReader(src)
	csvr.ReuseRecord = true
	csvr.FieldsPerRecord = -1
	csvr.LazyQuotes = true

	return &csvReader{csvReader: csvr, cols: cols, closers: closers}, nil
}

// Next returns the next row. Rows without a key are skipped.
func (r *csvReader) Next() (Row, error) {
	for {
		fields, err := r.csvReader.Read()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return Row{}, io.EOF
			}
			return Row{}, fmt.Errorf("read CSV row: %w", err)
		}

		if len(fields) <= r.cols.Key || len(fields) <= r.cols.LastModified {
			continue
		}
		if fields[r.cols.Key] == "" {
			continue
		}

		// Inventory CSV keys are URL-encoded.
		key, err := url.QueryUnescape(fields[r.cols.Key])
		if err != nil {
			return Row{}, fmt.Errorf("decode key %q: %w", fields[r.cols.Key], err)
		}
		mod, err := time.Parse(time.RFC3339Nano, strings.TrimSpace(fields[r.cols.LastModified]))
		if err != nil {
			return Row{}, fmt.Errorf("parse LastModifiedDate of %q: %w", key, err)
		}

		row := Row{Key: key, LastModified: mod}
		if r.cols.Size >= 0 && len(fields) > r.cols.Size {
			row.Size, _ = strconv.ParseInt(strings.TrimSpace(fields[r.cols.Size]), 10, 64)
		}
		return row, nil
	}
}

// Close closes the gzip reader before the underlying stream.
func (r *csvReader) Close() error {
	var firstErr error
	for i := len(r.closers) - 1; i >= 0; i-- {
		if err := r.closers[i].Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
