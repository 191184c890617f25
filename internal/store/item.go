package store

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

func init() {
	// Decimals must serialize as bare JSON numbers so item bodies round-trip
	// through json.Number without a quoting layer.
	decimal.MarshalJSONWithoutQuotes = true
}

// Item is a single store row: attribute name to value. Numeric values read
// back from the store are json.Number, never binary floats.
type Item map[string]any

// Key addresses a row within a table. SK is empty for tables with no sort key.
type Key struct {
	PK string
	SK string
}

// Coerce recursively converts every floating-point value to a fixed decimal.
// Applied to all outgoing item bodies and update expressions.
func Coerce(v any) any {
	switch val := v.(type) {
	case float64:
		return decimal.NewFromFloat(val)
	case float32:
		return decimal.NewFromFloat32(val)
	case Item:
		out := make(Item, len(val))
		for k, inner := range val {
			out[k] = Coerce(inner)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, inner := range val {
			out[k] = Coerce(inner)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, inner := range val {
			out[i] = Coerce(inner)
		}
		return out
	default:
		return v
	}
}

// encodeItem coerces an item and serializes it for storage.
func encodeItem(item Item) ([]byte, error) {
	coerced := Coerce(item).(Item)
	return json.Marshal(coerced)
}

// decodeItem parses a stored body back into an Item, keeping numerics as
// json.Number.
func decodeItem(body []byte) (Item, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var item Item
	if err := dec.Decode(&item); err != nil {
		return nil, err
	}
	return item, nil
}

// MarshalItem converts a struct into an Item via its JSON representation.
func MarshalItem(v any) (Item, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var item Item
	if err := json.Unmarshal(b, &item); err != nil {
		return nil, err
	}
	return item, nil
}

// UnmarshalItem populates a struct from an Item.
func UnmarshalItem(item Item, v any) error {
	b, err := json.Marshal(item)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, v)
}

// Float extracts a numeric attribute regardless of its concrete encoding.
func Float(item Item, attr string) (float64, bool) {
	switch v := item[attr].(type) {
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	case float64:
		return v, true
	case decimal.Decimal:
		f, _ := v.Float64()
		return f, true
	case string:
		f, err := strconv.ParseFloat(v, 64)
		return f, err == nil
	default:
		return 0, false
	}
}

// Str extracts a string attribute.
func Str(item Item, attr string) string {
	s, _ := item[attr].(string)
	return s
}

// TimeAt extracts an RFC3339 timestamp attribute.
func TimeAt(item Item, attr string) (time.Time, bool) {
	s := Str(item, attr)
	if s == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	return t, err == nil
}

// attrEqual compares a stored attribute against a filter value, tolerating
// the json.Number/decimal/string encodings numbers pick up in storage.
func attrEqual(stored, want any) bool {
	if sf, ok := Float(Item{"v": stored}, "v"); ok {
		if wf, wok := Float(Item{"v": want}, "v"); wok {
			return sf == wf
		}
	}
	return fmt.Sprint(stored) == fmt.Sprint(want)
}
