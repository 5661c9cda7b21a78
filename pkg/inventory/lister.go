package inventory

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/eunmann/s3-user-agg/internal/logctx"
	"github.com/eunmann/s3-user-agg/pkg/listing"
)

// FileLister serves a listing from local inventory report files. Reports
// are not key-ordered, so every List call reads them in full and sorts.
type FileLister struct {
	// Paths are .csv, .csv.gz or .parquet inventory files.
	Paths []string
	// Prefix keeps only keys under it.
	Prefix string
	// Columns locates fields in CSV reports.
	Columns CSVColumns
}

// List reads every report and returns the objects under Prefix in key order.
func (l *FileLister) List(ctx context.Context) (listing.Iterator, error) {
	log := logctx.FromContext(ctx)

	var objs []listing.Object
	for _, p := range l.Paths {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		n, err := l.readFile(p, func(row Row) {
			if strings.HasPrefix(row.Key, l.Prefix) {
				objs = append(objs, listing.Object{Key: row.Key, LastModified: row.LastModified, Size: row.Size})
			}
		})
		if err != nil {
			return nil, fmt.Errorf("read inventory %s: %w", p, err)
		}
		log.Debug().Str("file", p).Int("rows", n).Msg("read inventory file")
	}

	return (&listing.SliceLister{Objects: objs}).List(ctx)
}

func (l *FileLister) readFile(path string, emit func(Row)) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}

	var r Reader
	if strings.HasSuffix(strings.ToLower(path), ".parquet") {
		defer f.Close()
		info, err := f.Stat()
		if err != nil {
			return 0, err
		}
		if r, err = NewParquetReader(f, info.Size()); err != nil {
			return 0, err
		}
	} else if r, err = NewCSVReader(f, path, l.Columns); err != nil {
		return 0, err
	}
	defer r.Close()

	n := 0
	for {
		row, err := r.Next()
		if errors.Is(err, io.EOF) {
			return n, nil
		}
		if err != nil {
			return n, err
		}
		emit(row)
		n++
	}
}
