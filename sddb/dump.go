package sddb

import (
	"errors"
	"fmt"

	"github.com/creachadair/sealdb/sdcodec"
)

// Snapshot returns a deep copy of the complete contents of db, including the
// system collections.
func (db *DB) Snapshot() *sdcodec.Snapshot { return db.snapshot() }

// Restore replaces the complete contents of db with a copy of snap, and
// writes the result to the data file. Documents nested more deeply than
// sdcodec.MaxDepth are rejected. Missing system collections and
// settings are recreated as on Open. No change events are published.
func (db *DB) Restore(snap *sdcodec.Snapshot) error {
	if snap == nil {
		return errors.New("nil snapshot")
	}
	for name := range snap.Collections {
		if _, ok := snap.Schemas[name]; !ok {
			return fmt.Errorf("collection %q has no schema", name)
		}
	}
	cols := make(map[string]map[string]Document, len(snap.Schemas))
	schemas := make(map[string]Schema, len(snap.Schemas))
	for name, schema := range snap.Schemas {
		if name == "" {
			return errors.New("empty collection name")
		}
		schemas[name] = schema.Clone()
		coll := make(map[string]Document, len(snap.Collections[name]))
		for id, doc := range snap.Collections[name] {
			if got, ok := doc.Str(FieldID); !ok || got != id {
				return fmt.Errorf("collection %q: document %q has a mismatched id", name, id)
			} else if err := sdcodec.CheckDepth(doc); err != nil {
				return fmt.Errorf("collection %q: document %q: %w", name, id, err)
			}
			coll[id] = doc.Clone()
		}
		cols[name] = coll
	}

	db.syncMu.Lock()
	defer db.syncMu.Unlock()

	db.colMu.Lock()
	db.schemaMu.Lock()
	db.cols, db.schemas = cols, schemas
	db.schemaMu.Unlock()
	db.colMu.Unlock()

	if _, err := db.migrate(); err != nil {
		return fmt.Errorf("migrate system collections: %w", err)
	}
	if err := db.syncLocked(); err != nil {
		return err
	}
	db.log.Infow("restored contents", "path", db.path, "collections", len(schemas))
	return nil
}
