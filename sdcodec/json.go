package sdcodec

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"
)

// ToNative converts v into plain Go values: nil, bool, int64, float64,
// string, []any, and map[string]any.
func ToNative(v Value) any {
	switch t := v.(type) {
	case nil, Null:
		return nil
	case Bool:
		return bool(t)
	case Int:
		return int64(t)
	case Float:
		return float64(t)
	case String:
		return string(t)
	case Array:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = ToNative(e)
		}
		return out
	case Object:
		return DocumentToNative(Document(t))
	default:
		panic(fmt.Sprintf("sdcodec: unknown value type %T", v))
	}
}

// DocumentToNative converts d into a map of plain Go values.
func DocumentToNative(d Document) map[string]any {
	out := make(map[string]any, len(d))
	for k, v := range d {
		out[k] = ToNative(v)
	}
	return out
}

// FromNative converts a plain Go value into a Value. It accepts the types
// produced by ToNative, the types produced by encoding/json and YAML
// decoders, and Values themselves.
func FromNative(x any) (Value, error) {
	switch t := x.(type) {
	case nil:
		return Null{}, nil
	case Value:
		return Clone(t), nil
	case bool:
		return Bool(t), nil
	case int:
		return Int(t), nil
	case int32:
		return Int(t), nil
	case int64:
		return Int(t), nil
	case uint64:
		if t > math.MaxInt64 {
			return Float(float64(t)), nil
		}
		return Int(int64(t)), nil
	case float32:
		return Float(t), nil
	case float64:
		return Float(t), nil
	case string:
		return String(t), nil
	case json.Number:
		if n, err := strconv.ParseInt(string(t), 10, 64); err == nil {
			return Int(n), nil
		}
		f, err := t.Float64()
		if err != nil {
			return nil, fmt.Errorf("invalid number %q: %w", t, err)
		}
		return Float(f), nil
	case []any:
		out := make(Array, len(t))
		for i, e := range t {
			v, err := FromNative(e)
			if err != nil {
				return nil, fmt.Errorf("index %d: %w", i, err)
			}
			out[i] = v
		}
		return out, nil
	case map[string]any:
		doc, err := DocumentFromNative(t)
		if err != nil {
			return nil, err
		}
		return Object(doc), nil
	case time.Time:
		return nil, fmt.Errorf("timestamp %s is not a document value (quote it as a string)", t.Format(time.RFC3339))
	default:
		return nil, fmt.Errorf("unsupported value type %T", x)
	}
}

// DocumentFromNative converts a map of plain Go values into a Document.
func DocumentFromNative(m map[string]any) (Document, error) {
	doc := make(Document, len(m))
	for k, e := range m {
		v, err := FromNative(e)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", k, err)
		}
		doc[k] = v
	}
	return doc, nil
}

// ParseJSON parses a JSON object into a Document. Integral numbers become Int
// values; all other numbers become Float values. Documents nested more than
// MaxDepth levels deep are rejected.
func ParseJSON(data []byte) (Document, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var m map[string]any
	if err := dec.Decode(&m); err != nil {
		return nil, fmt.Errorf("parse document: %w", err)
	} else if m == nil {
		return nil, errors.New("parse document: not a JSON object")
	}
	if dec.More() {
		return nil, errors.New("parse document: extra data after object")
	}
	doc, err := DocumentFromNative(m)
	if err != nil {
		return nil, err
	} else if err := CheckDepth(doc); err != nil {
		return nil, fmt.Errorf("parse document: %w", err)
	}
	return doc, nil
}

// MarshalDocument encodes d as a JSON object, omitting any fields named in
// hidden. Non-finite floats are encoded as null.
func MarshalDocument(d Document, hidden ...string) ([]byte, error) {
	m := DocumentToNative(d)
	for _, h := range hidden {
		delete(m, h)
	}
	scrubFloats(m)
	return json.Marshal(m)
}

// scrubFloats replaces NaN and infinite floats, which JSON cannot represent,
// with nil.
func scrubFloats(x any) any {
	switch t := x.(type) {
	case float64:
		if math.IsNaN(t) || math.IsInf(t, 0) {
			return nil
		}
	case []any:
		for i, e := range t {
			t[i] = scrubFloats(e)
		}
	case map[string]any:
		for k, e := range t {
			t[k] = scrubFloats(e)
		}
	}
	return x
}
