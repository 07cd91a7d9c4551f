package sdlib

import (
	"bytes"
	"encoding/json"
	"fmt"
	"maps"
	"slices"

	"github.com/creachadair/sealdb/sdcodec"
	"github.com/creachadair/sealdb/sddb"
)

// dumpFile is the plaintext JSON form of a complete database.
type dumpFile struct {
	Schemas     map[string]sddb.Schema `json:"schemas"`
	Collections map[string][]any       `json:"collections"`
}

// Export renders the complete contents of db, including the system
// collections, as indented plaintext JSON. Documents in each collection are
// ordered by id. Floats with integral values are indistinguishable from
// integers in the output.
func Export(db *sddb.DB) ([]byte, error) {
	snap := db.Snapshot()
	out := dumpFile{
		Schemas:     make(map[string]sddb.Schema, len(snap.Schemas)),
		Collections: make(map[string][]any, len(snap.Collections)),
	}
	for name, schema := range snap.Schemas {
		out.Schemas[name] = slices.Clone(schema)
		if out.Schemas[name] == nil {
			out.Schemas[name] = sddb.Schema{}
		}
		docs := make([]any, 0, len(snap.Collections[name]))
		for _, id := range slices.Sorted(maps.Keys(snap.Collections[name])) {
			raw, err := sdcodec.MarshalDocument(snap.Collections[name][id])
			if err != nil {
				return nil, fmt.Errorf("collection %q: document %q: %w", name, id, err)
			}
			docs = append(docs, json.RawMessage(raw))
		}
		out.Collections[name] = docs
	}
	return json.MarshalIndent(out, "", "  ")
}

// Import replaces the complete contents of db with the JSON export in data.
func Import(db *sddb.DB, data []byte) error {
	var in struct {
		Schemas     map[string]sddb.Schema       `json:"schemas"`
		Collections map[string][]json.RawMessage `json:"collections"`
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&in); err != nil {
		return fmt.Errorf("parse export: %w", err)
	}
	snap := &sdcodec.Snapshot{
		Schemas:     in.Schemas,
		Collections: make(map[string]map[string]sddb.Document, len(in.Collections)),
	}
	if snap.Schemas == nil {
		snap.Schemas = make(map[string]sddb.Schema)
	}
	for name, raws := range in.Collections {
		if _, ok := snap.Schemas[name]; !ok {
			snap.Schemas[name] = nil
		}
		coll := make(map[string]sddb.Document, len(raws))
		for i, raw := range raws {
			doc, err := sdcodec.ParseJSON(raw)
			if err != nil {
				return fmt.Errorf("collection %q: document %d: %w", name, i, err)
			}
			id, ok := doc.Str(sddb.FieldID)
			if !ok || id == "" {
				return fmt.Errorf("collection %q: document %d has no id", name, i)
			} else if _, dup := coll[id]; dup {
				return fmt.Errorf("collection %q: duplicate document id %q", name, id)
			}
			coll[id] = doc
		}
		snap.Collections[name] = coll
	}
	return db.Restore(snap)
}
