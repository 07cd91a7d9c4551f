package sdcodec

import (
	"encoding/binary"
	"fmt"
	"math"
	"slices"
)

// MaxDepth is the maximum nesting depth of arrays and objects accepted by the
// decoder. The encoder does not enforce a limit, so callers that store data
// for later decoding must check it with CheckDepth.
const MaxDepth = 256

// ErrTooDeep is reported by CheckDepth for values that nest arrays and
// objects more than MaxDepth levels deep.
var ErrTooDeep = fmt.Errorf("nesting exceeds %d levels", MaxDepth)

// CheckDepth reports ErrTooDeep if any field of d nests arrays and objects
// more deeply than the decoder accepts, so that every document passing the
// check survives an encode and decode.
func CheckDepth(d Document) error {
	for k, v := range d {
		if tooDeep(v, 0) {
			return fmt.Errorf("field %q: %w", k, ErrTooDeep)
		}
	}
	return nil
}

// tooDeep reports whether v, found at the given nesting level, exceeds
// MaxDepth. It mirrors the accounting of Decoder.enter.
func tooDeep(v Value, level int) bool {
	switch t := v.(type) {
	case Array:
		if level >= MaxDepth {
			return true
		}
		for _, e := range t {
			if tooDeep(e, level+1) {
				return true
			}
		}
	case Object:
		if level >= MaxDepth {
			return true
		}
		for _, e := range t {
			if tooDeep(e, level+1) {
				return true
			}
		}
	}
	return false
}

// AppendUint32 appends v to b in little-endian order.
func AppendUint32(b []byte, v uint32) []byte { return binary.LittleEndian.AppendUint32(b, v) }

// AppendString appends the length-prefixed encoding of s to b.
func AppendString(b []byte, s string) []byte {
	b = AppendUint32(b, uint32(len(s)))
	return append(b, s...)
}

// AppendDocument appends the encoding of d to b. Fields are written in sorted
// key order, so equal documents have equal encodings.
func AppendDocument(b []byte, d Document) []byte {
	b = AppendUint32(b, uint32(len(d)))
	for _, k := range d.Keys() {
		b = AppendString(b, k)
		b = AppendValue(b, d[k])
	}
	return b
}

// AppendValue appends the tagged encoding of v to b. A nil value is encoded
// as Null.
func AppendValue(b []byte, v Value) []byte {
	b = append(b, byte(KindOf(v)))
	switch t := v.(type) {
	case nil, Null:
		return b
	case Bool:
		if t {
			return append(b, 1)
		}
		return append(b, 0)
	case Int:
		return binary.LittleEndian.AppendUint64(b, uint64(t))
	case Float:
		return binary.LittleEndian.AppendUint64(b, math.Float64bits(float64(t)))
	case String:
		return AppendString(b, string(t))
	case Array:
		b = AppendUint32(b, uint32(len(t)))
		for _, e := range t {
			b = AppendValue(b, e)
		}
		return b
	case Object:
		return AppendDocument(b, Document(t))
	default:
		panic(fmt.Sprintf("sdcodec: unknown value type %T", v))
	}
}

// DecodeError is the concrete type of errors reported by a Decoder.
type DecodeError struct {
	Offset int    // byte offset where decoding failed
	Msg    string // description of the problem
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode at offset %d: %s", e.Offset, e.Msg)
}

// A Decoder reads encoded values from a byte slice.
type Decoder struct {
	data  []byte
	pos   int
	depth int
}

// NewDecoder constructs a Decoder that reads from data.
func NewDecoder(data []byte) *Decoder { return &Decoder{data: data} }

// Remaining reports the number of unread bytes.
func (d *Decoder) Remaining() int { return len(d.data) - d.pos }

// Offset reports the current read offset.
func (d *Decoder) Offset() int { return d.pos }

func (d *Decoder) fail(msg string, args ...any) error {
	return &DecodeError{Offset: d.pos, Msg: fmt.Sprintf(msg, args...)}
}

func (d *Decoder) take(n int, what string) ([]byte, error) {
	if n < 0 || n > d.Remaining() {
		return nil, d.fail("truncated %s: need %d bytes, have %d", what, n, d.Remaining())
	}
	out := d.data[d.pos : d.pos+n]
	d.pos += n
	return out, nil
}

// ReadUint32 reads a little-endian u32.
func (d *Decoder) ReadUint32() (uint32, error) {
	b, err := d.take(4, "u32")
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

// count reads a u32 element count and checks that the remaining input could
// hold that many elements of at least minSize bytes each.
func (d *Decoder) count(what string, minSize int) (int, error) {
	n, err := d.ReadUint32()
	if err != nil {
		return 0, err
	}
	if uint64(n)*uint64(minSize) > uint64(d.Remaining()) {
		return 0, d.fail("%s count %d exceeds remaining input (%d bytes)", what, n, d.Remaining())
	}
	return int(n), nil
}

// ReadString reads a length-prefixed string.
func (d *Decoder) ReadString() (string, error) {
	n, err := d.ReadUint32()
	if err != nil {
		return "", err
	}
	b, err := d.take(int(n), "string")
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// ReadDocument reads an encoded document.
func (d *Decoder) ReadDocument() (Document, error) {
	// Each entry is at least a 4-byte key length and a 1-byte tag.
	n, err := d.count("document", 5)
	if err != nil {
		return nil, err
	}
	doc := make(Document, n)
	for range n {
		key, err := d.ReadString()
		if err != nil {
			return nil, err
		}
		v, err := d.ReadValue()
		if err != nil {
			return nil, err
		}
		doc[key] = v
	}
	return doc, nil
}

// ReadValue reads a tagged value.
func (d *Decoder) ReadValue() (Value, error) {
	tag, err := d.take(1, "value tag")
	if err != nil {
		return nil, err
	}
	switch Kind(tag[0]) {
	case KindNull:
		return Null{}, nil
	case KindBool:
		b, err := d.take(1, "bool")
		if err != nil {
			return nil, err
		}
		return Bool(b[0] != 0), nil
	case KindInt:
		b, err := d.take(8, "int")
		if err != nil {
			return nil, err
		}
		return Int(int64(binary.LittleEndian.Uint64(b))), nil
	case KindFloat:
		b, err := d.take(8, "float")
		if err != nil {
			return nil, err
		}
		return Float(math.Float64frombits(binary.LittleEndian.Uint64(b))), nil
	case KindString:
		s, err := d.ReadString()
		if err != nil {
			return nil, err
		}
		return String(s), nil
	case KindArray:
		if err := d.enter(); err != nil {
			return nil, err
		}
		defer d.leave()
		n, err := d.count("array", 1)
		if err != nil {
			return nil, err
		}
		arr := make(Array, n)
		for i := range arr {
			if arr[i], err = d.ReadValue(); err != nil {
				return nil, err
			}
		}
		return arr, nil
	case KindObject:
		if err := d.enter(); err != nil {
			return nil, err
		}
		defer d.leave()
		doc, err := d.ReadDocument()
		if err != nil {
			return nil, err
		}
		return Object(doc), nil
	default:
		d.pos--
		return nil, d.fail("unknown value tag %d", tag[0])
	}
}

func (d *Decoder) enter() error {
	if d.depth >= MaxDepth {
		return d.fail("nesting exceeds %d levels", MaxDepth)
	}
	d.depth++
	return nil
}

func (d *Decoder) leave() { d.depth-- }

// EncodeDocument returns the encoding of d.
func EncodeDocument(d Document) []byte { return AppendDocument(nil, d) }

// DecodeDocument decodes a single document from data, which must contain no
// trailing bytes.
func DecodeDocument(data []byte) (Document, error) {
	dec := NewDecoder(data)
	doc, err := dec.ReadDocument()
	if err != nil {
		return nil, err
	} else if dec.Remaining() != 0 {
		return nil, dec.fail("%d trailing bytes after document", dec.Remaining())
	}
	return doc, nil
}

// A Snapshot is the complete content of a database: a schema per collection
// name and the documents of each collection, keyed by document id.
type Snapshot struct {
	Schemas     map[string]Schema
	Collections map[string]map[string]Document
}

// EncodeSnapshot returns the binary encoding of s: the schema table followed
// by the collection table. Names and ids are written in sorted order.
func EncodeSnapshot(s *Snapshot) []byte {
	var b []byte
	names := sortedKeys(s.Schemas)
	b = AppendUint32(b, uint32(len(names)))
	for _, name := range names {
		schema := s.Schemas[name]
		b = AppendString(b, name)
		b = AppendUint32(b, uint32(len(schema)))
		for _, f := range schema {
			b = AppendString(b, f.Name)
			b = AppendString(b, f.Type)
		}
	}
	for _, name := range sortedKeys(s.Collections) {
		coll := s.Collections[name]
		b = AppendString(b, name)
		b = AppendUint32(b, uint32(len(coll)))
		for _, id := range sortedKeys(coll) {
			b = AppendString(b, id)
			b = AppendDocument(b, coll[id])
		}
	}
	return b
}

// DecodeSnapshot decodes a snapshot produced by EncodeSnapshot. Every schema
// yields a collection (possibly empty), and every collection without a schema
// is given an empty schema, so the two maps always have the same keys.
func DecodeSnapshot(data []byte) (*Snapshot, error) {
	dec := NewDecoder(data)
	s := &Snapshot{
		Schemas:     make(map[string]Schema),
		Collections: make(map[string]map[string]Document),
	}

	// Each schema is at least a name length and a field count.
	ns, err := dec.count("schema", 8)
	if err != nil {
		return nil, err
	}
	for range ns {
		name, err := dec.ReadString()
		if err != nil {
			return nil, err
		}
		nf, err := dec.count("field", 8)
		if err != nil {
			return nil, err
		}
		var schema Schema // empty schemas are nil
		if nf > 0 {
			schema = make(Schema, nf)
		}
		for i := range schema {
			if schema[i].Name, err = dec.ReadString(); err != nil {
				return nil, err
			}
			if schema[i].Type, err = dec.ReadString(); err != nil {
				return nil, err
			}
		}
		s.Schemas[name] = schema
		s.Collections[name] = make(map[string]Document)
	}

	for dec.Remaining() > 0 {
		name, err := dec.ReadString()
		if err != nil {
			return nil, err
		}
		// Each entry is at least an id length and a document count.
		nd, err := dec.count("document", 8)
		if err != nil {
			return nil, err
		}
		coll, ok := s.Collections[name]
		if !ok {
			coll = make(map[string]Document, nd)
			s.Collections[name] = coll
			s.Schemas[name] = nil
		}
		for range nd {
			id, err := dec.ReadString()
			if err != nil {
				return nil, err
			}
			doc, err := dec.ReadDocument()
			if err != nil {
				return nil, err
			}
			coll[id] = doc
		}
	}
	return s, nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
