// Package sddb implements an in-process document store whose contents are
// persisted only as an encrypted image.
//
// A DB holds a set of named collections, each mapping document ids to
// documents, and a descriptive schema per collection. Every mutation is
// written through to the data file before it returns, and then announced to
// an optional [Publisher] as an [Event].
//
// Collections whose names begin with "_" are system collections. They are
// created by the store itself, hidden from [DB.ListCollections], and cannot
// be deleted.
package sddb

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/creachadair/mds/mbits"
	"github.com/creachadair/sealdb/sdcodec"
	"github.com/creachadair/sealdb/sdcrypt"
	"github.com/creachadair/sealdb/sdstore"
	"go.uber.org/zap"
)

// Aliases for the value model, so that callers need not import sdcodec for
// ordinary use.
type (
	Value    = sdcodec.Value
	Document = sdcodec.Document
	Schema   = sdcodec.Schema
	Field    = sdcodec.Field
)

// ErrCorrupt is reported by Open when the data file exists but cannot be
// decrypted and decoded. The file is left untouched.
var ErrCorrupt = errors.New("data file is corrupt or the passphrase is wrong")

// Options are settings for opening a DB.
type Options struct {
	// Path is the location of the encrypted data file (required).
	Path string

	// Passphrase is the operator secret from which the encryption key is
	// derived.
	Passphrase string

	// Logger, if non-nil, receives diagnostic logs. By default, logs are
	// discarded.
	Logger *zap.SugaredLogger

	// Events, if non-nil, receives an event after each successful mutation.
	Events Publisher

	// DiscardCorrupt, if true, makes Open start from an empty store when the
	// data file is corrupt, instead of failing. The corrupt file is copied
	// aside before it can be overwritten.
	DiscardCorrupt bool

	// SyncRetries is the number of additional attempts made to write the data
	// file after a failed write.
	SyncRetries int

	// Clock, if non-nil, is used instead of time.Now for timestamps.
	Clock func() time.Time
}

// A DB is an encrypted document store. A DB is safe for concurrent use by
// multiple goroutines.
type DB struct {
	path    string
	log     *zap.SugaredLogger
	events  Publisher
	now     func() time.Time
	retries int

	// Lock order: colMu, then schemaMu, then keyMu.
	colMu sync.RWMutex
	cols  map[string]map[string]Document

	schemaMu sync.RWMutex
	schemas  map[string]Schema

	keyMu sync.RWMutex
	key   [sdstore.KeyLen]byte

	// syncMu serializes writes of the data file; it is acquired before any of
	// the map locks.
	syncMu    sync.Mutex
	lastImage [sdcrypt.Size]byte // digest of the latest image written or loaded
}

// Open opens or creates the store at opts.Path.
//
// If the data file does not exist, the store starts empty. If it exists but
// cannot be read, decrypted, or decoded, Open reports an error (wrapping
// ErrCorrupt for content problems) unless opts.DiscardCorrupt is set.
// After loading, the system collections are created or migrated, and the
// store is synced if that changed anything.
func Open(opts Options) (*DB, error) {
	if opts.Path == "" {
		return nil, errors.New("no data file path specified")
	}
	if err := sdcrypt.CheckRandom(); err != nil {
		return nil, fmt.Errorf("random source unavailable: %w", err)
	}
	db := &DB{
		path:    opts.Path,
		log:     opts.Logger,
		events:  opts.Events,
		now:     opts.Clock,
		retries: max(opts.SyncRetries, 0),
		key:     sdcrypt.DeriveKey(opts.Passphrase),
		cols:    make(map[string]map[string]Document),
		schemas: make(map[string]Schema),
	}
	if db.log == nil {
		db.log = zap.NewNop().Sugar()
	}
	if db.now == nil {
		db.now = time.Now
	}

	if err := db.load(); err != nil {
		if !opts.DiscardCorrupt || !errors.Is(err, ErrCorrupt) {
			return nil, err
		}
		aside := fmt.Sprintf("%s.corrupt-%d", db.path, db.now().Unix())
		if cerr := sdstore.CopyFile(db.path, aside); cerr != nil {
			return nil, fmt.Errorf("preserve corrupt data file: %w", cerr)
		}
		db.log.Warnw("discarded corrupt data file", "path", db.path, "savedAs", aside, "error", err)
	}

	changed, err := db.migrate()
	if err != nil {
		return nil, fmt.Errorf("migrate system collections: %w", err)
	}
	if changed {
		db.syncWithRetry()
	}
	return db, nil
}

// load reads the data file into memory. A missing file is not an error.
func (db *DB) load() error {
	img, err := sdstore.ReadFile(db.path)
	if errors.Is(err, fs.ErrNotExist) {
		db.log.Infow("no data file, starting empty", "path", db.path)
		return nil
	} else if err != nil {
		return err
	}
	plain, err := sdstore.Unseal(&db.key, img)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrCorrupt, err)
	}
	snap, err := sdcodec.DecodeSnapshot(plain)
	mbits.Zero(plain)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrCorrupt, err)
	}

	db.colMu.Lock()
	db.schemaMu.Lock()
	db.cols, db.schemas = snap.Collections, snap.Schemas
	db.schemaMu.Unlock()
	db.colMu.Unlock()

	db.syncMu.Lock()
	db.lastImage = sdcrypt.Sum256(img)
	db.syncMu.Unlock()

	db.log.Infow("loaded data file", "path", db.path, "collections", len(snap.Schemas))
	return nil
}

// Path returns the location of the data file.
func (db *DB) Path() string { return db.path }

// Fingerprint returns a short non-secret identifier of the encryption key.
func (db *DB) Fingerprint() string {
	db.keyMu.RLock()
	defer db.keyMu.RUnlock()
	return sdcrypt.Fingerprint(&db.key)
}

// LastImageDigest returns the SHA-256 digest of the most recent image this
// DB wrote to or loaded from its data file, or zero if there is none.
func (db *DB) LastImageDigest() [sdcrypt.Size]byte {
	db.syncMu.Lock()
	defer db.syncMu.Unlock()
	return db.lastImage
}

// snapshot returns a deep copy of the current contents of db.
func (db *DB) snapshot() *sdcodec.Snapshot {
	db.colMu.RLock()
	defer db.colMu.RUnlock()
	db.schemaMu.RLock()
	defer db.schemaMu.RUnlock()

	s := &sdcodec.Snapshot{
		Schemas:     make(map[string]Schema, len(db.schemas)),
		Collections: make(map[string]map[string]Document, len(db.cols)),
	}
	for name, schema := range db.schemas {
		s.Schemas[name] = schema.Clone()
	}
	for name, coll := range db.cols {
		cp := make(map[string]Document, len(coll))
		for id, doc := range coll {
			cp[id] = doc.Clone()
		}
		s.Collections[name] = cp
	}
	return s
}

// Sync writes the current contents of db to the data file. Concurrent calls
// are serialized, and each writes a snapshot taken after the previous call
// finished, so the file always reflects the state as of the latest Sync.
func (db *DB) Sync() error {
	db.syncMu.Lock()
	defer db.syncMu.Unlock()
	return db.syncLocked()
}

func (db *DB) syncLocked() error {
	plain := sdcodec.EncodeSnapshot(db.snapshot())
	defer mbits.Zero(plain)

	db.keyMu.RLock()
	img, err := sdstore.Seal(&db.key, plain)
	db.keyMu.RUnlock()
	if err != nil {
		return fmt.Errorf("seal image: %w", err)
	}
	if err := sdstore.WriteFile(db.path, img); err != nil {
		return fmt.Errorf("write data file: %w", err)
	}
	db.lastImage = sdcrypt.Sum256(img)
	return nil
}

// syncWithRetry syncs db, retrying failed writes. Failures are logged but not
// reported: the in-memory state remains authoritative.
func (db *DB) syncWithRetry() {
	db.syncMu.Lock()
	defer db.syncMu.Unlock()
	for attempt := 0; ; attempt++ {
		err := db.syncLocked()
		if err == nil {
			return
		} else if attempt >= db.retries {
			db.log.Errorw("sync failed", "path", db.path, "attempts", attempt+1, "error", err)
			return
		}
		db.log.Warnw("sync failed, retrying", "path", db.path, "attempt", attempt+1, "error", err)
		time.Sleep(time.Duration(attempt+1) * 10 * time.Millisecond)
	}
}

// Backup copies the current data file to a timestamped file in the same
// directory, and returns the path of the copy. The copy is a point-in-time
// image of the encrypted file, not a logical export.
func (db *DB) Backup() (string, error) {
	db.syncMu.Lock()
	defer db.syncMu.Unlock()

	dir := filepath.Dir(db.path)
	ts := db.now().Unix()
	path := filepath.Join(dir, fmt.Sprintf("backup_%d.bin", ts))
	for i := 1; ; i++ {
		if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
			break
		}
		path = filepath.Join(dir, fmt.Sprintf("backup_%d_%d.bin", ts, i))
	}
	if err := sdstore.CopyFile(db.path, path); err != nil {
		db.log.Errorw("backup failed", "path", db.path, "error", err)
		return "", fmt.Errorf("backup: %w", err)
	}
	db.log.Infow("backup written", "path", path)
	return path, nil
}

// Rekey changes the passphrase of db and rewrites the data file under the
// new key.
func (db *DB) Rekey(passphrase string) error {
	db.syncMu.Lock()
	defer db.syncMu.Unlock()

	db.keyMu.Lock()
	old := db.key
	db.key = sdcrypt.DeriveKey(passphrase)
	db.keyMu.Unlock()

	if err := db.syncLocked(); err != nil {
		db.keyMu.Lock()
		db.key = old
		db.keyMu.Unlock()
		return err
	}
	return nil
}

// timestamp returns the current time in seconds since the epoch.
func (db *DB) timestamp() int64 { return db.now().Unix() }
