package export

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"

	"github.com/eunmann/s3-user-agg/pkg/table"
)

// WriteJSON writes the table as a JSON array of objects, one per row, with
// keys in column order and nulls as JSON null.
func WriteJSON(w io.Writer, tbl *table.Table) error {
	bw := bufio.NewWriter(w)

	keys := make([][]byte, len(tbl.Columns))
	for i, c := range tbl.Columns {
		k, err := json.Marshal(c)
		if err != nil {
			return fmt.Errorf("encode column %q: %w", c, err)
		}
		keys[i] = k
	}

	bw.WriteByte('[')
	for r, row := range tbl.Rows {
		if r > 0 {
			bw.WriteByte(',')
		}
		bw.WriteString("\n  {")
		for i, v := range row {
			if i > 0 {
				bw.WriteByte(',')
			}
			val, err := json.Marshal(v.Any())
			if err != nil {
				return fmt.Errorf("encode %s of row %d: %w", tbl.Columns[i], r, err)
			}
			bw.Write(keys[i])
			bw.WriteByte(':')
			bw.Write(val)
		}
		bw.WriteByte('}')
	}
	if len(tbl.Rows) > 0 {
		bw.WriteByte('\n')
	}
	bw.WriteString("]\n")

	if err := bw.Flush(); err != nil {
		return fmt.Errorf("write json: %w", err)
	}
	return nil
}
