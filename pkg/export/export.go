// Package export encodes aggregated tables as CSV, JSON or Parquet.
package export

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/eunmann/s3-user-agg/pkg/table"
)

// ErrUnknownFormat is returned for an unrecognized output format name.
var ErrUnknownFormat = errors.New("unknown output format")

// Format is an output encoding.
type Format int

const (
	FormatCSV Format = iota
	FormatJSON
	FormatParquet
)

// String returns the format name.
func (f Format) String() string {
	switch f {
	case FormatCSV:
		return "csv"
	case FormatJSON:
		return "json"
	case FormatParquet:
		return "parquet"
	default:
		return fmt.Sprintf("Format(%d)", int(f))
	}
}

// Extension returns the file extension for the format, with its dot.
func (f Format) Extension() string { return "." + f.String() }

// ContentType returns the MIME type used when uploading the format.
func (f Format) ContentType() string {
	switch f {
	case FormatJSON:
		return "application/json"
	case FormatParquet:
		return "application/vnd.apache.parquet"
	default:
		return "text/csv"
	}
}

// ParseFormat parses a format name such as "csv", case-insensitively.
func ParseFormat(name string) (Format, error) {
	switch strings.ToLower(strings.TrimPrefix(name, ".")) {
	case "csv":
		return FormatCSV, nil
	case "json":
		return FormatJSON, nil
	case "parquet":
		return FormatParquet, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownFormat, name)
	}
}

// Options configures text encodings. The zero value uses the defaults.
type Options struct {
	// Delimiter separates CSV fields. It may be longer than one character.
	// Default: DefaultDelimiter.
	Delimiter string
	// Empty is written in place of null CSV cells. Default: DefaultEmpty.
	Empty string
	// NoEmptySentinel writes null CSV cells as empty fields.
	NoEmptySentinel bool
}

const (
	// DefaultDelimiter is ", ", the separator downstream readers of output.csv expect.
	DefaultDelimiter = ", "
	// DefaultEmpty marks a null cell in CSV output.
	DefaultEmpty = "ø"
)

func (o Options) withDefaults() Options {
	if o.Delimiter == "" {
		o.Delimiter = DefaultDelimiter
	}
	if o.NoEmptySentinel {
		o.Empty = ""
	} else if o.Empty == "" {
		o.Empty = DefaultEmpty
	}
	return o
}

// Write encodes tbl to w.
func Write(w io.Writer, tbl *table.Table, f Format, opts Options) error {
	switch f {
	case FormatCSV:
		return WriteCSV(w, tbl, opts)
	case FormatJSON:
		return WriteJSON(w, tbl)
	case FormatParquet:
		return WriteParquet(w, tbl)
	default:
		return fmt.Errorf("%w: %s", ErrUnknownFormat, f)
	}
}

// Encode encodes tbl into memory, ready for upload.
func Encode(tbl *table.Table, f Format, opts Options) ([]byte, error) {
	var buf bytes.Buffer
	if err := Write(&buf, tbl, f, opts); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
