package export

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/eunmann/s3-user-agg/pkg/table"
)

// WriteCSV writes a header line and one line per row. Null cells are
// written as the empty sentinel.
func WriteCSV(w io.Writer, tbl *table.Table, opts Options) error {
	opts = opts.withDefaults()

	if r, size := utf8.DecodeRuneInString(opts.Delimiter); size == len(opts.Delimiter) && r != '"' {
		return writeCSVRune(w, tbl, r, opts.Empty)
	}
	return writeCSVJoined(w, tbl, opts.Delimiter, opts.Empty)
}

func writeCSVRune(w io.Writer, tbl *table.Table, comma rune, empty string) error {
	cw := csv.NewWriter(w)
	cw.Comma = comma

	if err := cw.Write(tbl.Columns); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	record := make([]string, len(tbl.Columns))
	for _, row := range tbl.Rows {
		for i, v := range row {
			record[i] = cell(v, empty)
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("write csv row: %w", err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}
	return nil
}

// writeCSVJoined handles delimiters encoding/csv cannot, such as ", ".
func writeCSVJoined(w io.Writer, tbl *table.Table, delim, empty string) error {
	bw := bufio.NewWriter(w)
	fields := make([]string, len(tbl.Columns))

	writeLine := func() error {
		for i, f := range fields {
			fields[i] = quoteField(f, delim)
		}
		if _, err := bw.WriteString(strings.Join(fields, delim)); err != nil {
			return err
		}
		return bw.WriteByte('\n')
	}

	copy(fields, tbl.Columns)
	if err := writeLine(); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for _, row := range tbl.Rows {
		for i, v := range row {
			fields[i] = cell(v, empty)
		}
		if err := writeLine(); err != nil {
			return fmt.Errorf("write csv row: %w", err)
		}
	}
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}
	return nil
}

func cell(v table.Value, empty string) string {
	if v.IsNull() {
		return empty
	}
	return v.String()
}

func quoteField(f, delim string) string {
	if f == "" || !strings.Contains(f, delim) && !strings.ContainsAny(f, "\"\r\n") {
		return f
	}
	return `"` + strings.ReplaceAll(f, `"`, `""`) + `"`
}
