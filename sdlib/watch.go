package sdlib

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/creachadair/sealdb/sdcrypt"
	"github.com/creachadair/sealdb/sddb"
	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// A Watcher monitors the data file of an open database, and reports when
// the file is changed by something other than the database itself. Since
// the database does not reread its file, such changes will be overwritten by
// the next mutation.
type Watcher struct {
	db  *sddb.DB
	fw  *fsnotify.Watcher
	log *zap.SugaredLogger

	// OnExternal, if non-nil, is called after logging each external change.
	OnExternal func(path string)
}

// NewWatcher creates a watcher for the data file of db. The caller must call
// Run to start watching.
func NewWatcher(db *sddb.DB, log *zap.SugaredLogger) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	// Watch the directory, since atomic replacement renames a new file over
	// the old one.
	if err := fw.Add(filepath.Dir(db.Path())); err != nil {
		fw.Close()
		return nil, err
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Watcher{db: db, fw: fw, log: log}, nil
}

// Check reports whether the data file currently holds the image most
// recently written or loaded by the database. A missing file does not match.
func (w *Watcher) Check() (bool, error) {
	for range 3 {
		before := w.db.LastImageDigest()
		data, err := os.ReadFile(w.db.Path())
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		} else if err != nil {
			return false, err
		}
		sum := sdcrypt.Sum256(data)
		after := w.db.LastImageDigest()
		if sum == before || sum == after {
			return true, nil
		} else if before == after {
			return false, nil
		}
		// The database synced while we were reading; try again.
	}
	return false, nil
}

// Run monitors the data file until ctx ends or the watcher fails. Run should
// be run in a separate goroutine. It closes the watcher before returning.
func (w *Watcher) Run(ctx context.Context) {
	defer w.fw.Close()
	path := filepath.Clean(w.db.Path())

	for {
		select {
		case evt, ok := <-w.fw.Events:
			if !ok {
				return
			}
			if filepath.Clean(evt.Name) != path {
				continue // some other file in the directory
			}
			if !evt.Has(fsnotify.Create) && !evt.Has(fsnotify.Write) && !evt.Has(fsnotify.Remove) {
				continue
			}
			match, err := w.Check()
			if err != nil {
				w.log.Warnw("check data file", "path", path, "error", err)
				continue
			}
			if !match {
				w.log.Warnw("data file was modified externally; it will be overwritten by the next change",
					"path", path, "op", evt.Op.String())
				if w.OnExternal != nil {
					w.OnExternal(path)
				}
			}
		case err, ok := <-w.fw.Errors:
			if !ok {
				return
			}
			w.log.Warnw("watching data file", "path", path, "error", err)
		case <-ctx.Done():
			return
		}
	}
}
