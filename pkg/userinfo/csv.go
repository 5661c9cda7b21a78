package userinfo

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/eunmann/s3-user-agg/pkg/table"
)

// ParseCSV reads the header and the first record of a CSV info object.
// Records shorter than the header leave the trailing columns null; later
// records are ignored.
func (p *Parser) ParseCSV(data []byte) (table.Row, error) {
	data = bytes.TrimPrefix(data, []byte("\ufeff"))

	var header, fields []string
	var err error
	if p.literal != "" {
		header, fields, err = p.splitLiteral(data)
	} else {
		header, fields, err = p.readCSV(data)
	}
	if err != nil {
		return nil, err
	}

	columns := make([]string, len(header))
	seen := make(map[string]struct{}, len(header))
	for i, h := range header {
		name := strings.TrimSpace(h)
		if name == "" {
			return nil, fmt.Errorf("%w: empty column name at position %d", ErrSchema, i)
		}
		if _, dup := seen[name]; dup {
			return nil, fmt.Errorf("%w: duplicate column %q", ErrSchema, name)
		}
		seen[name] = struct{}{}
		columns[i] = name
	}
	if len(fields) > len(columns) {
		return nil, fmt.Errorf("%w: record has %d fields, header has %d", ErrSchema, len(fields), len(columns))
	}

	row := make(table.Row, len(columns)+2)
	for i, col := range columns {
		if i < len(fields) {
			row[col] = table.ParseValue(fields[i])
		} else {
			row[col] = table.Null()
		}
	}
	return row, nil
}

func (p *Parser) readCSV(data []byte) (header, fields []string, err error) {
	r := csv.NewReader(bytes.NewReader(data))
	r.Comma = p.comma
	r.TrimLeadingSpace = p.trimSpace
	r.FieldsPerRecord = -1 // Validated against the header by the caller
	r.LazyQuotes = true

	header, err = r.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil, fmt.Errorf("%w: empty object", ErrNoRecord)
		}
		return nil, nil, fmt.Errorf("read CSV header: %w", err)
	}
	fields, err = r.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil, ErrNoRecord
		}
		return nil, nil, fmt.Errorf("read CSV record: %w", err)
	}
	return header, fields, nil
}

// splitLiteral reads the first two non-blank lines and splits them on the
// literal delimiter. A field wrapped in double quotes is unquoted, with ""
// read as one quote, but quoted fields may not span lines.
func (p *Parser) splitLiteral(data []byte) (header, fields []string, err error) {
	var lines []string
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimRight(line, "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		lines = append(lines, line)
		if len(lines) == 2 {
			break
		}
	}

	switch len(lines) {
	case 0:
		return nil, nil, fmt.Errorf("%w: empty object", ErrNoRecord)
	case 1:
		return nil, nil, ErrNoRecord
	}
	return p.splitLine(lines[0]), p.splitLine(lines[1]), nil
}

func (p *Parser) splitLine(line string) []string {
	parts := strings.Split(line, p.literal)
	for i, f := range parts {
		f = strings.TrimSpace(f)
		if len(f) >= 2 && f[0] == '"' && f[len(f)-1] == '"' {
			f = strings.ReplaceAll(f[1:len(f)-1], `""`, `"`)
		}
		parts[i] = f
	}
	return parts
}
