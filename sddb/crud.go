package sddb

import (
	"maps"
	"slices"

	"github.com/creachadair/sealdb/sdcodec"
	"github.com/creachadair/sealdb/sdcrypt"
)

// IDLen is the number of random bytes in a document id. Ids are encoded as
// 2*IDLen lowercase hex digits.
const IDLen = 12

// Reserved document fields maintained by the store.
const (
	FieldID      = "id"
	FieldCreated = "created"
	FieldUpdated = "updated"
)

// CreateCollection creates a new empty collection with the given name and
// descriptive schema. It returns false without effect if name is empty,
// names a system collection, or already exists.
func (db *DB) CreateCollection(name string, schema Schema) bool {
	if name == "" || IsSystem(name) {
		return false
	}
	if !db.createCollection(name, schema) {
		return false
	}
	db.syncWithRetry()
	db.publish(Event{Kind: CollectionCreated, Collection: name})
	return true
}

// createCollection adds an empty collection and its schema unless the name
// is already in use. It does not check for system names.
func (db *DB) createCollection(name string, schema Schema) bool {
	db.colMu.Lock()
	defer db.colMu.Unlock()
	db.schemaMu.Lock()
	defer db.schemaMu.Unlock()

	if _, ok := db.schemas[name]; ok {
		return false
	}
	db.cols[name] = make(map[string]Document)
	db.schemas[name] = schema.Clone()
	return true
}

// ListCollections returns the names of all non-system collections in
// lexicographic order.
func (db *DB) ListCollections() []string {
	return slices.DeleteFunc(db.ListAllCollections(), IsSystem)
}

// ListAllCollections returns the names of all collections, including system
// collections, in lexicographic order.
func (db *DB) ListAllCollections() []string {
	db.schemaMu.RLock()
	defer db.schemaMu.RUnlock()
	return slices.Sorted(maps.Keys(db.schemas))
}

// Schema returns a copy of the schema of the named collection, and reports
// whether the collection exists.
func (db *DB) Schema(name string) (Schema, bool) {
	db.schemaMu.RLock()
	defer db.schemaMu.RUnlock()
	s, ok := db.schemas[name]
	return s.Clone(), ok
}

// Insert adds a copy of doc to the named collection under a fresh id, and
// returns the id. The stored document has its id, created, and updated
// fields set by the store, replacing any values doc had for them.
// Insert returns "", false if the collection does not exist, doc nests more
// deeply than sdcodec.MaxDepth, or no id could be generated.
func (db *DB) Insert(coll string, doc Document) (string, bool) {
	if err := sdcodec.CheckDepth(doc); err != nil {
		db.log.Warnw("rejected insert", "collection", coll, "error", err)
		return "", false
	}
	stored := doc.Clone()
	if stored == nil {
		stored = make(Document)
	}

	id, ok := db.insert(coll, stored)
	if !ok {
		return "", false
	}
	db.syncWithRetry()
	db.publish(Event{Kind: DocCreated, Collection: coll, ID: id, Doc: stored})
	return id, true
}

// insert stores doc under a fresh id. On success, doc has the reserved fields
// set and the store holds a copy of it.
func (db *DB) insert(coll string, doc Document) (string, bool) {
	db.colMu.Lock()
	defer db.colMu.Unlock()

	docs, ok := db.cols[coll]
	if !ok {
		return "", false
	}
	var id string
	for {
		v, err := sdcrypt.RandomHex(IDLen)
		if err != nil {
			db.log.Errorw("generate document id", "collection", coll, "error", err)
			return "", false
		}
		if _, taken := docs[v]; !taken {
			id = v
			break
		}
	}
	ts := sdcodec.Int(db.timestamp())
	doc[FieldID] = sdcodec.String(id)
	doc[FieldCreated] = ts
	doc[FieldUpdated] = ts
	docs[id] = doc.Clone()
	return id, true
}

// FindOne returns a copy of the document with the given id in the named
// collection, and reports whether it was found.
func (db *DB) FindOne(coll, id string) (Document, bool) {
	db.colMu.RLock()
	defer db.colMu.RUnlock()
	doc, ok := db.cols[coll][id]
	if !ok {
		return nil, false
	}
	return doc.Clone(), true
}

// FindBy returns a copy of a document in the named collection whose field has
// the given string value, and reports whether one was found. If several
// documents match, the one with the smallest id is returned.
func (db *DB) FindBy(coll, field, value string) (Document, bool) {
	db.colMu.RLock()
	defer db.colMu.RUnlock()

	var bestID string
	var best Document
	for id, doc := range db.cols[coll] {
		if s, ok := doc[field].(sdcodec.String); ok && string(s) == value {
			if best == nil || id < bestID {
				bestID, best = id, doc
			}
		}
	}
	if best == nil {
		return nil, false
	}
	return best.Clone(), true
}

// FindAll returns copies of all the documents in the named collection,
// ordered by id. It returns nil if the collection does not exist.
func (db *DB) FindAll(coll string) []Document {
	db.colMu.RLock()
	defer db.colMu.RUnlock()

	docs, ok := db.cols[coll]
	if !ok {
		return nil
	}
	out := make([]Document, 0, len(docs))
	for _, id := range slices.Sorted(maps.Keys(docs)) {
		out = append(out, docs[id].Clone())
	}
	return out
}

// Update merges the fields of patch into the document with the given id in
// the named collection. The id and created fields of patch are ignored, and
// the updated field is set by the store to a value strictly greater than its
// previous value. Update returns false if the document does not exist or
// patch nests more deeply than sdcodec.MaxDepth.
func (db *DB) Update(coll, id string, patch Document) bool {
	if err := sdcodec.CheckDepth(patch); err != nil {
		db.log.Warnw("rejected update", "collection", coll, "id", id, "error", err)
		return false
	}
	doc, ok := db.update(coll, id, patch)
	if !ok {
		return false
	}
	db.syncWithRetry()
	db.publish(Event{Kind: DocUpdated, Collection: coll, ID: id, Doc: doc})
	return true
}

func (db *DB) update(coll, id string, patch Document) (Document, bool) {
	db.colMu.Lock()
	defer db.colMu.Unlock()

	doc, ok := db.cols[coll][id]
	if !ok {
		return nil, false
	}
	for name, v := range patch {
		switch name {
		case FieldID, FieldCreated, FieldUpdated:
			continue
		}
		doc[name] = sdcodec.Clone(v)
	}
	ts := db.timestamp()
	if prev, ok := doc.Int(FieldUpdated); ok && ts <= prev {
		ts = prev + 1
	}
	doc[FieldUpdated] = sdcodec.Int(ts)
	return doc.Clone(), true
}

// Delete removes the document with the given id from the named collection,
// and reports whether it was present.
func (db *DB) Delete(coll, id string) bool {
	if !db.remove(coll, id) {
		return false
	}
	db.syncWithRetry()
	db.publish(Event{Kind: DocDeleted, Collection: coll, ID: id})
	return true
}

func (db *DB) remove(coll, id string) bool {
	db.colMu.Lock()
	defer db.colMu.Unlock()

	docs := db.cols[coll]
	if _, ok := docs[id]; !ok {
		return false
	}
	delete(docs, id)
	return true
}

// DeleteCollection removes the named collection, its documents, and its
// schema. It returns false without effect if name is a system collection or
// does not exist.
func (db *DB) DeleteCollection(name string) bool {
	if IsSystem(name) || !db.removeCollection(name) {
		return false
	}
	db.syncWithRetry()
	db.publish(Event{Kind: CollectionDeleted, Collection: name})
	return true
}

func (db *DB) removeCollection(name string) bool {
	db.colMu.Lock()
	defer db.colMu.Unlock()
	db.schemaMu.Lock()
	defer db.schemaMu.Unlock()

	if _, ok := db.schemas[name]; !ok {
		return false
	}
	delete(db.cols, name)
	delete(db.schemas, name)
	return true
}
