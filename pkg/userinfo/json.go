package userinfo

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/eunmann/s3-user-agg/pkg/table"
)

// ParseJSON decodes a JSON object of scalar fields. A one-element array of
// such an object is accepted as well.
func ParseJSON(data []byte) (table.Row, error) {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '[' {
		var list []json.RawMessage
		if err := json.Unmarshal(data, &list); err != nil {
			return nil, fmt.Errorf("decode JSON array: %w", err)
		}
		if len(list) == 0 {
			return nil, ErrNoRecord
		}
		data = list[0]
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var obj map[string]any
	if err := dec.Decode(&obj); err != nil {
		return nil, fmt.Errorf("decode JSON object: %w", err)
	}
	if obj == nil {
		return nil, ErrNoRecord
	}

	row := make(table.Row, len(obj)+2)
	for k, v := range obj {
		name := strings.TrimSpace(k)
		if name == "" {
			return nil, fmt.Errorf("%w: empty field name", ErrSchema)
		}
		val, err := jsonValue(v)
		if err != nil {
			return nil, fmt.Errorf("%w: field %q: %w", ErrSchema, name, err)
		}
		row[name] = val
	}
	return row, nil
}

func jsonValue(v any) (table.Value, error) {
	switch x := v.(type) {
	case nil:
		return table.Null(), nil
	case string:
		return table.String(x), nil
	case bool:
		return table.Bool(x), nil
	case json.Number:
		if i, err := x.Int64(); err == nil {
			return table.Int(i), nil
		}
		f, err := x.Float64()
		if err != nil {
			return table.Null(), fmt.Errorf("number %q: %w", x, err)
		}
		return table.Float(f), nil
	default:
		return table.Null(), fmt.Errorf("unsupported JSON type %T", v)
	}
}
