package export

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"testing"

	"github.com/eunmann/s3-user-agg/pkg/table"
	"github.com/parquet-go/parquet-go"
)

func sampleTable() *table.Table {
	tbl := table.New([]string{"user_id", "first_name", "birthts", "score", "img_path"})
	tbl.Append(table.Row{
		"user_id":    table.String("u1"),
		"first_name": table.String("Ann"),
		"birthts":    table.Int(100),
		"score":      table.Int(3),
		"img_path":   table.String("u1/b.png"),
	})
	tbl.Append(table.Row{
		"user_id":    table.String("u2"),
		"first_name": table.String("Lee, Jr."),
		"birthts":    table.Int(300),
		"score":      table.Float(2.5),
	})
	return tbl
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in   string
		want Format
	}{
		{"csv", FormatCSV},
		{"JSON", FormatJSON},
		{".parquet", FormatParquet},
	}
	for _, tt := range tests {
		got, err := ParseFormat(tt.in)
		if err != nil || got != tt.want {
			t.Errorf("ParseFormat(%q) = %v, %v; want %v", tt.in, got, err, tt.want)
		}
	}
	if _, err := ParseFormat("xml"); !errors.Is(err, ErrUnknownFormat) {
		t.Errorf("ParseFormat(xml) err = %v, want ErrUnknownFormat", err)
	}
	if FormatParquet.Extension() != ".parquet" || FormatCSV.ContentType() != "text/csv" {
		t.Error("unexpected extension or content type")
	}
}

func TestWriteCSV(t *testing.T) {
	tests := []struct {
		name string
		opts Options
		want string
	}{
		{
			name: "defaults",
			want: "user_id, first_name, birthts, score, img_path\n" +
				"u1, Ann, 100, 3, u1/b.png\n" +
				"u2, \"Lee, Jr.\", 300, 2.5, ø\n",
		},
		{
			name: "single rune delimiter",
			opts: Options{Delimiter: ";", Empty: "-"},
			want: "user_id;first_name;birthts;score;img_path\n" +
				"u1;Ann;100;3;u1/b.png\n" +
				"u2;Lee, Jr.;300;2.5;-\n",
		},
		{
			name: "no sentinel",
			opts: Options{Delimiter: ",", NoEmptySentinel: true},
			want: "user_id,first_name,birthts,score,img_path\n" +
				"u1,Ann,100,3,u1/b.png\n" +
				"u2,\"Lee, Jr.\",300,2.5,\n",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			if err := WriteCSV(&buf, sampleTable(), tt.opts); err != nil {
				t.Fatalf("WriteCSV: %v", err)
			}
			if buf.String() != tt.want {
				t.Errorf("got:\n%s\nwant:\n%s", buf.String(), tt.want)
			}
		})
	}
}

func TestWriteCSVEmptyTable(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteCSV(&buf, table.New([]string{"user_id", "img_path"}), Options{}); err != nil {
		t.Fatalf("WriteCSV: %v", err)
	}
	if buf.String() != "user_id, img_path\n" {
		t.Errorf("got %q", buf.String())
	}
}

func TestWriteJSON(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteJSON(&buf, sampleTable()); err != nil {
		t.Fatalf("WriteJSON: %v", err)
	}

	var got []map[string]any
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("output is not valid JSON: %v\n%s", err, buf.String())
	}
	if len(got) != 2 {
		t.Fatalf("got %d records, want 2", len(got))
	}
	if got[0]["first_name"] != "Ann" || got[0]["birthts"] != float64(100) {
		t.Errorf("record 0 = %v", got[0])
	}
	if v, ok := got[1]["img_path"]; !ok || v != nil {
		t.Errorf("record 1 img_path = %v (present %v), want null", v, ok)
	}
	// Keys follow column order.
	if !bytes.HasPrefix(buf.Bytes(), []byte("[\n  {\"user_id\":\"u1\",\"first_name\"")) {
		t.Errorf("unexpected key order: %s", buf.String())
	}
}

func TestWriteJSONEmpty(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteJSON(&buf, table.New([]string{"user_id"})); err != nil {
		t.Fatalf("WriteJSON: %v", err)
	}
	if buf.String() != "[]\n" {
		t.Errorf("got %q, want []", buf.String())
	}
}

func readParquet(t *testing.T, data []byte) (*parquet.Schema, []parquet.Row) {
	t.Helper()
	file, err := parquet.OpenFile(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatalf("open parquet: %v", err)
	}
	var out []parquet.Row
	for _, rg := range file.RowGroups() {
		rows := rg.Rows()
		buf := make([]parquet.Row, 16)
		for {
			n, err := rows.ReadRows(buf)
			for _, r := range buf[:n] {
				out = append(out, r.Clone())
			}
			if errors.Is(err, io.EOF) {
				break
			}
			if err != nil {
				t.Fatalf("read rows: %v", err)
			}
			if n == 0 {
				break
			}
		}
		rows.Close()
	}
	return file.Schema(), out
}

func TestWriteParquet(t *testing.T) {
	data, err := Encode(sampleTable(), FormatParquet, Options{})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	schema, rows := readParquet(t, data)
	if len(rows) != 2 {
		t.Fatalf("got %d rows, want 2", len(rows))
	}

	cell := func(row parquet.Row, name string) parquet.Value {
		col, ok := schema.Lookup(name)
		if !ok {
			t.Fatalf("no column %q", name)
		}
		for _, v := range row {
			if v.Column() == col.ColumnIndex {
				return v
			}
		}
		t.Fatalf("row has no value for %q", name)
		return parquet.Value{}
	}

	if got := cell(rows[0], "first_name").String(); got != "Ann" {
		t.Errorf("first_name = %q", got)
	}
	if v := cell(rows[0], "birthts"); v.Kind() != parquet.Int64 || v.Int64() != 100 {
		t.Errorf("birthts = %v (%v)", v, v.Kind())
	}
	if v := cell(rows[1], "score"); v.Kind() != parquet.Double || v.Double() != 2.5 {
		t.Errorf("score = %v (%v), want DOUBLE 2.5", v, v.Kind())
	}
	if v := cell(rows[0], "score"); v.Double() != 3 {
		t.Errorf("int score widened to %v, want 3", v)
	}
	if !cell(rows[1], "img_path").IsNull() {
		t.Error("u2 img_path should be null")
	}
}

func TestColumnKind(t *testing.T) {
	tbl := table.New([]string{"a", "b", "c", "d"})
	tbl.Append(table.Row{"a": table.Bool(true), "b": table.Int(1), "c": table.String("x")})
	tbl.Append(table.Row{"a": table.Bool(false), "b": table.String("two"), "c": table.Null()})

	want := []table.Kind{table.KindBool, table.KindString, table.KindString, table.KindString}
	for i, w := range want {
		if got := columnKind(tbl, i); got != w {
			t.Errorf("columnKind(%s) = %v, want %v", tbl.Columns[i], got, w)
		}
	}
}
