// Package sdcodec defines the document value model used by sealdb and its
// compact binary encoding.
//
// A [Value] is one of exactly seven variants: [Null], [Bool], [Int], [Float],
// [String], [Array], and [Object]. No other type implements Value, so a type
// switch over these seven cases is exhaustive.
//
// # Binary Format
//
// All integers are little-endian. A string is a u32 byte length followed by
// the bytes. A document or object is a u32 entry count followed by that many
// (string key, value) pairs. A value is a one-byte kind tag followed by a
// payload:
//
//	0 Null    (no payload)
//	1 Bool    1 byte, 0 or 1
//	2 Int     8 bytes, two's complement
//	3 Float   8 bytes, IEEE 754 binary64
//	4 String  string
//	5 Array   u32 count, then count values
//	6 Object  document
package sdcodec

import (
	"fmt"
	"maps"
	"math"
	"slices"
)

// Kind identifies the variant of a Value. The numeric values are the wire
// tags of the binary encoding.
type Kind byte

const (
	KindNull Kind = iota
	KindBool
	KindInt
	KindFloat
	KindString
	KindArray
	KindObject
)

var kindNames = [...]string{"null", "bool", "int", "float", "string", "array", "object"}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind(%d)", byte(k))
}

// A Value is a document field value.
type Value interface {
	kind() Kind
}

type (
	// Null is the null value.
	Null struct{}

	// Bool is a boolean value.
	Bool bool

	// Int is a 64-bit signed integer value.
	Int int64

	// Float is a 64-bit floating-point value.
	Float float64

	// String is a string value.
	String string

	// Array is an ordered sequence of values.
	Array []Value

	// Object is a mapping from string keys to values.
	Object map[string]Value
)

func (Null) kind() Kind   { return KindNull }
func (Bool) kind() Kind   { return KindBool }
func (Int) kind() Kind    { return KindInt }
func (Float) kind() Kind  { return KindFloat }
func (String) kind() Kind { return KindString }
func (Array) kind() Kind  { return KindArray }
func (Object) kind() Kind { return KindObject }

// KindOf reports the kind of v. A nil Value has kind KindNull.
func KindOf(v Value) Kind {
	if v == nil {
		return KindNull
	}
	return v.kind()
}

// A Document is a mapping from field names to values.
type Document map[string]Value

// Clone returns a deep copy of d. Cloning a nil Document returns nil.
func (d Document) Clone() Document {
	if d == nil {
		return nil
	}
	out := make(Document, len(d))
	for k, v := range d {
		out[k] = Clone(v)
	}
	return out
}

// Keys returns the field names of d in sorted order.
func (d Document) Keys() []string { return slices.Sorted(maps.Keys(d)) }

// Str returns the value of the named field if it is a String.
func (d Document) Str(name string) (string, bool) {
	s, ok := d[name].(String)
	return string(s), ok
}

// Int returns the value of the named field if it is an Int.
func (d Document) Int(name string) (int64, bool) {
	v, ok := d[name].(Int)
	return int64(v), ok
}

// Clone returns a deep copy of v. A nil value is returned as Null.
func Clone(v Value) Value {
	switch t := v.(type) {
	case nil:
		return Null{}
	case Null, Bool, Int, Float, String:
		return t
	case Array:
		if t == nil {
			return Array(nil)
		}
		out := make(Array, len(t))
		for i, e := range t {
			out[i] = Clone(e)
		}
		return out
	case Object:
		return Object(Document(t).Clone())
	default:
		panic(fmt.Sprintf("sdcodec: unknown value type %T", v))
	}
}

// Equal reports whether a and b are structurally equal. Floats compare by
// their bit patterns, so a NaN equals an identical NaN. A nil value is equal
// to Null.
func Equal(a, b Value) bool {
	if KindOf(a) != KindOf(b) {
		return false
	}
	switch t := a.(type) {
	case nil, Null:
		return true
	case Bool, Int, String:
		return a == b
	case Float:
		return math.Float64bits(float64(t)) == math.Float64bits(float64(b.(Float)))
	case Array:
		u := b.(Array)
		return slices.EqualFunc(t, u, Equal)
	case Object:
		return EqualDocuments(Document(t), Document(b.(Object)))
	default:
		panic(fmt.Sprintf("sdcodec: unknown value type %T", a))
	}
}

// EqualDocuments reports whether a and b have the same fields with equal
// values.
func EqualDocuments(a, b Document) bool {
	return maps.EqualFunc(a, b, Equal)
}

// A Field is a named field with a descriptive type hint.
type Field struct {
	Name string `json:"name" yaml:"name"`
	Type string `json:"type" yaml:"type"`
}

// A Schema is an ordered list of field descriptions attached to a collection.
// Schemas are descriptive: they are never enforced against documents.
// An empty schema is represented as nil.
type Schema []Field

// Clone returns a copy of s. The copy of an empty schema is nil.
func (s Schema) Clone() Schema {
	if len(s) == 0 {
		return nil
	}
	return slices.Clone(s)
}
