// Package userinfo parses a user's info object into a single table row.
//
// Info objects hold one header and one record. CSV, JSON and Parquet
// encodings are supported and chosen by the object key's extension.
package userinfo

import (
	"errors"
	"fmt"
	"path"
	"strings"
	"unicode/utf8"

	"github.com/eunmann/s3-user-agg/pkg/table"
)

var (
	// ErrUnsupportedFormat indicates an info object extension without a parser.
	ErrUnsupportedFormat = errors.New("unsupported info format")
	// ErrNoRecord indicates an info object with a header but no data.
	ErrNoRecord = errors.New("info object has no record")
	// ErrSchema indicates an info object whose layout cannot be mapped to columns.
	ErrSchema = errors.New("invalid info schema")
)

// DefaultDelimiter is the CSV field delimiter when none is configured.
const DefaultDelimiter = ","

// Options configures a Parser.
type Options struct {
	// Delimiter separates CSV fields, e.g. ",", ", " or "||". A single
	// character, optionally followed by spaces, is read as RFC 4180 CSV.
	// Any other delimiter splits each line literally.
	Delimiter string
}

// Parser converts info objects to rows.
type Parser struct {
	comma     rune
	trimSpace bool
	// literal is set for delimiters encoding/csv cannot express.
	literal string
}

// NewParser validates opts and returns a parser.
func NewParser(opts Options) (*Parser, error) {
	delim := opts.Delimiter
	if delim == "" {
		delim = DefaultDelimiter
	}
	if !utf8.ValidString(delim) || strings.ContainsAny(delim, "\"\r\n") {
		return nil, fmt.Errorf("delimiter %q is not usable in CSV", delim)
	}

	if utf8.RuneCountInString(delim) == 1 {
		comma, _ := utf8.DecodeRuneInString(delim)
		return &Parser{comma: comma}, nil
	}
	if trimmed := strings.TrimRight(delim, " "); utf8.RuneCountInString(trimmed) == 1 {
		comma, _ := utf8.DecodeRuneInString(trimmed)
		return &Parser{comma: comma, trimSpace: true}, nil
	}
	return &Parser{literal: delim}, nil
}

// SupportedExtensions lists the info extensions Parse understands.
func SupportedExtensions() []string {
	return []string{".csv", ".json", ".parquet"}
}

// Parse decodes data according to the extension of key.
func (p *Parser) Parse(key string, data []byte) (table.Row, error) {
	switch ext := strings.ToLower(path.Ext(key)); ext {
	case ".csv":
		return p.ParseCSV(data)
	case ".json":
		return ParseJSON(data)
	case ".parquet":
		return ParseParquet(data)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}
}
