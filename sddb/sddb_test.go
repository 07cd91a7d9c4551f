package sddb_test

import (
	"bytes"
	crand "crypto/rand"
	"errors"
	"io"
	mrand "math/rand"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/creachadair/mds/mtest"
	"github.com/creachadair/sealdb/sdcodec"
	"github.com/creachadair/sealdb/sdcrypt"
	"github.com/creachadair/sealdb/sddb"
	"github.com/creachadair/sealdb/sdstore"
	gocmp "github.com/google/go-cmp/cmp"
	"go.uber.org/zap/zaptest"
)

const testPass = "full plate and packing steel"

var hexID = regexp.MustCompile(`^[0-9a-f]{24}$`)

// fixedClock returns a clock that always reports the same time.
func fixedClock(sec int64) func() time.Time {
	return func() time.Time { return time.Unix(sec, 0) }
}

func openTestDB(t *testing.T, path string, opts sddb.Options) *sddb.DB {
	t.Helper()
	opts.Path = path
	if opts.Passphrase == "" {
		opts.Passphrase = testPass
	}
	if opts.Logger == nil {
		opts.Logger = zaptest.NewLogger(t).Sugar()
	}
	db, err := sddb.Open(opts)
	if err != nil {
		t.Fatalf("Open %q: unexpected error: %v", path, err)
	}
	return db
}

func dataPath(t *testing.T) string { return filepath.Join(t.TempDir(), "data", "db.bin") }

func TestNotes(t *testing.T) {
	mtest.Swap[io.Reader](t, &crand.Reader, mrand.New(mrand.NewSource(20240309152407)))

	db := openTestDB(t, dataPath(t), sddb.Options{Clock: fixedClock(1700000000)})
	before := int64(1700000000)

	if !db.CreateCollection("notes", sddb.Schema{{Name: "title", Type: "string"}}) {
		t.Fatal("CreateCollection notes: got false, want true")
	}
	id, ok := db.Insert("notes", sddb.Document{"title": sdcodec.String("hi")})
	if !ok {
		t.Fatal("Insert: got false, want true")
	}
	if !hexID.MatchString(id) {
		t.Errorf("Insert id: got %q, want 24 hex digits", id)
	}

	all := db.FindAll("notes")
	if len(all) != 1 {
		t.Fatalf("FindAll: got %d documents, want 1", len(all))
	}
	doc := all[0]
	if got, _ := doc.Str("title"); got != "hi" {
		t.Errorf("title: got %q, want hi", got)
	}
	if got, _ := doc.Str(sddb.FieldID); got != id {
		t.Errorf("id field: got %q, want %q", got, id)
	}
	created, _ := doc.Int(sddb.FieldCreated)
	updated, _ := doc.Int(sddb.FieldUpdated)
	if created != updated || created < before {
		t.Errorf("Timestamps: created=%d updated=%d, want equal and >= %d", created, updated, before)
	}

	if !db.Update("notes", id, sddb.Document{"title": sdcodec.String("bye")}) {
		t.Fatal("Update: got false, want true")
	}
	got, ok := db.FindOne("notes", id)
	if !ok {
		t.Fatal("FindOne after update: not found")
	}
	if title, _ := got.Str("title"); title != "bye" {
		t.Errorf("title after update: got %q, want bye", title)
	}
	c2, _ := got.Int(sddb.FieldCreated)
	u2, _ := got.Int(sddb.FieldUpdated)
	if c2 != created || u2 <= c2 {
		t.Errorf("Timestamps after update: created=%d updated=%d, want created=%d < updated", c2, u2, created)
	}

	if db.DeleteCollection("_users") {
		t.Error("DeleteCollection(_users): got true, want false")
	}
	if !db.DeleteCollection("notes") {
		t.Error("DeleteCollection(notes): got false, want true")
	}
	if docs := db.FindAll("notes"); len(docs) != 0 {
		t.Errorf("FindAll after delete: got %v, want empty", docs)
	}
	for _, name := range db.ListAllCollections() {
		if name == "notes" {
			t.Error("ListAllCollections still contains notes")
		}
	}
}

func TestCollections(t *testing.T) {
	db := openTestDB(t, dataPath(t), sddb.Options{})

	for _, name := range []string{"", "_private", "_users"} {
		if db.CreateCollection(name, nil) {
			t.Errorf("CreateCollection(%q): got true, want false", name)
		}
	}
	if !db.CreateCollection("beta", nil) || !db.CreateCollection("alpha", nil) {
		t.Fatal("CreateCollection: got false, want true")
	}
	if db.CreateCollection("alpha", sddb.Schema{{Name: "x", Type: "int"}}) {
		t.Error("CreateCollection duplicate: got true, want false")
	}

	if diff := gocmp.Diff(db.ListCollections(), []string{"alpha", "beta"}); diff != "" {
		t.Errorf("ListCollections (-got, +want):\n%s", diff)
	}
	want := []string{"_ports", "_sessions", "_settings", "_users", "alpha", "beta"}
	if diff := gocmp.Diff(db.ListAllCollections(), want); diff != "" {
		t.Errorf("ListAllCollections (-got, +want):\n%s", diff)
	}

	if s, ok := db.Schema("alpha"); !ok || len(s) != 0 {
		t.Errorf("Schema(alpha): got %v, %v; want empty, true", s, ok)
	}
	if s, ok := db.Schema("_users"); !ok || len(s) != 4 || s[0].Name != "email" {
		t.Errorf("Schema(_users): got %v, %v", s, ok)
	}
	if _, ok := db.Schema("nonesuch"); ok {
		t.Error("Schema(nonesuch): got true, want false")
	}

	// Deleting a system collection leaves its documents alone.
	id, ok := db.Insert(sddb.Users, sddb.Document{"email": sdcodec.String("a@b")})
	if !ok {
		t.Fatal("Insert _users failed")
	}
	for _, name := range []string{"_users", "_settings", "_", "nonesuch"} {
		if db.DeleteCollection(name) {
			t.Errorf("DeleteCollection(%q): got true, want false", name)
		}
	}
	if _, ok := db.FindOne(sddb.Users, id); !ok {
		t.Error("User vanished after refused delete")
	}
}

func TestMissing(t *testing.T) {
	db := openTestDB(t, dataPath(t), sddb.Options{})

	if id, ok := db.Insert("nonesuch", sddb.Document{"a": sdcodec.Int(1)}); ok {
		t.Errorf("Insert into missing collection: got %q, want failure", id)
	}
	if doc, ok := db.FindOne("nonesuch", "x"); ok {
		t.Errorf("FindOne: got %v, want none", doc)
	}
	if doc, ok := db.FindBy("nonesuch", "a", "b"); ok {
		t.Errorf("FindBy: got %v, want none", doc)
	}
	if docs := db.FindAll("nonesuch"); docs != nil {
		t.Errorf("FindAll: got %v, want nil", docs)
	}
	if db.Update("nonesuch", "x", sddb.Document{}) {
		t.Error("Update missing collection: got true")
	}
	if db.Delete("nonesuch", "x") {
		t.Error("Delete missing collection: got true")
	}

	db.CreateCollection("c", nil)
	if db.Update("c", "x", sddb.Document{}) {
		t.Error("Update missing document: got true")
	}
	if db.Delete("c", "x") {
		t.Error("Delete missing document: got true")
	}
}

func TestDocuments(t *testing.T) {
	now := int64(1000)
	clock := func() time.Time { return time.Unix(now, 0) }
	db := openTestDB(t, dataPath(t), sddb.Options{Clock: clock})
	db.CreateCollection("people", nil)

	input := sddb.Document{
		"name":    sdcodec.String("Minsc"),
		"id":      sdcodec.String("forged"),
		"created": sdcodec.Int(1),
		"tags":    sdcodec.Array{sdcodec.String("ranger"), sdcodec.Bool(true)},
		"pet":     sdcodec.Object{"name": sdcodec.String("Boo"), "kind": sdcodec.String("hamster")},
	}
	id, ok := db.Insert("people", input)
	if !ok {
		t.Fatal("Insert failed")
	}

	// The caller's document is not aliased by the store.
	input["name"] = sdcodec.String("changed")
	input["tags"].(sdcodec.Array)[0] = sdcodec.String("changed")

	got, _ := db.FindOne("people", id)
	want := sddb.Document{
		"name":    sdcodec.String("Minsc"),
		"id":      sdcodec.String(id),
		"created": sdcodec.Int(1000),
		"updated": sdcodec.Int(1000),
		"tags":    sdcodec.Array{sdcodec.String("ranger"), sdcodec.Bool(true)},
		"pet":     sdcodec.Object{"name": sdcodec.String("Boo"), "kind": sdcodec.String("hamster")},
	}
	if diff := gocmp.Diff(got, want); diff != "" {
		t.Errorf("FindOne (-got, +want):\n%s", diff)
	}

	// Nor are the copies returned by reads.
	got["name"] = sdcodec.String("mutated")
	got["pet"].(sdcodec.Object)["name"] = sdcodec.String("mutated")
	if again, _ := db.FindOne("people", id); !sdcodec.EqualDocuments(again, want) {
		t.Errorf("Store changed through a returned copy: %v", again)
	}

	t.Run("UpdateReserved", func(t *testing.T) {
		now = 2000
		ok := db.Update("people", id, sddb.Document{
			"id":      sdcodec.String("forged"),
			"created": sdcodec.Int(5),
			"updated": sdcodec.Int(99999),
			"level":   sdcodec.Int(8),
		})
		if !ok {
			t.Fatal("Update failed")
		}
		doc, _ := db.FindOne("people", id)
		if got, _ := doc.Str("id"); got != id {
			t.Errorf("id: got %q, want %q", got, id)
		}
		if got, _ := doc.Int("created"); got != 1000 {
			t.Errorf("created: got %d, want 1000", got)
		}
		if got, _ := doc.Int("updated"); got != 2000 {
			t.Errorf("updated: got %d, want 2000", got)
		}
		if got, _ := doc.Int("level"); got != 8 {
			t.Errorf("level: got %d, want 8", got)
		}
		if got, _ := doc.Str("name"); got != "Minsc" {
			t.Errorf("name: got %q, want it unchanged", got)
		}
	})

	t.Run("UpdateMonotonic", func(t *testing.T) {
		// The clock does not advance, but updated still does.
		prev := int64(2000)
		for range 3 {
			db.Update("people", id, sddb.Document{"x": sdcodec.Null{}})
			doc, _ := db.FindOne("people", id)
			got, _ := doc.Int("updated")
			if got <= prev {
				t.Errorf("updated: got %d, want > %d", got, prev)
			}
			prev = got
		}
	})

	t.Run("FindBy", func(t *testing.T) {
		id2, _ := db.Insert("people", sddb.Document{"name": sdcodec.String("Imoen")})
		if doc, ok := db.FindBy("people", "name", "Imoen"); !ok {
			t.Error("FindBy Imoen: not found")
		} else if got, _ := doc.Str("id"); got != id2 {
			t.Errorf("FindBy Imoen: got id %q, want %q", got, id2)
		}
		if doc, ok := db.FindBy("people", "level", "8"); ok {
			t.Errorf("FindBy non-string field: got %v, want none", doc)
		}
		if doc, ok := db.FindBy("people", "name", "Jaheira"); ok {
			t.Errorf("FindBy Jaheira: got %v, want none", doc)
		}
	})

	t.Run("Delete", func(t *testing.T) {
		if !db.Delete("people", id) {
			t.Fatal("Delete: got false, want true")
		}
		if db.Delete("people", id) {
			t.Error("Delete again: got true, want false")
		}
		if _, ok := db.FindOne("people", id); ok {
			t.Error("FindOne after delete: found")
		}
	})
}

func TestUniqueIDs(t *testing.T) {
	db := openTestDB(t, dataPath(t), sddb.Options{})
	db.CreateCollection("c", nil)

	seen := make(map[string]bool)
	for range 200 {
		id, ok := db.Insert("c", nil)
		if !ok {
			t.Fatal("Insert failed")
		}
		if seen[id] {
			t.Fatalf("Duplicate id %q", id)
		}
		seen[id] = true
	}
	if n := len(db.FindAll("c")); n != len(seen) {
		t.Errorf("FindAll: got %d documents, want %d", n, len(seen))
	}
}

func TestSettings(t *testing.T) {
	db := openTestDB(t, dataPath(t), sddb.Options{Clock: fixedClock(1234)})

	docs := db.FindAll(sddb.Settings)
	if len(docs) != 1 {
		t.Fatalf("Settings: got %d documents, want 1", len(docs))
	}
	doc := docs[0]
	for name, want := range sddb.DefaultSettings() {
		if !sdcodec.Equal(doc[name], want) {
			t.Errorf("Setting %q: got %v, want %v", name, doc[name], want)
		}
	}
	if id, _ := doc.Str("id"); !hexID.MatchString(id) {
		t.Errorf("Settings id: got %q", id)
	}
	if got, _ := doc.Int("created"); got != 1234 {
		t.Errorf("Settings created: got %d, want 1234", got)
	}
	if got, _ := doc.Str("nginx_hostname"); got != "proxy.example.com" {
		t.Errorf("nginx_hostname: got %q", got)
	}
	if got, _ := doc.Int("dev_port_start"); got != 3501 {
		t.Errorf("dev_port_start: got %d, want 3501", got)
	}
}

// writeImage writes a data file containing snap, sealed with passphrase.
func writeImage(t *testing.T, path, passphrase string, snap *sdcodec.Snapshot) {
	t.Helper()
	key := sdcrypt.DeriveKey(passphrase)
	img, err := sdstore.Seal(&key, sdcodec.EncodeSnapshot(snap))
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	if err := sdstore.WriteFile(path, img); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
}

func TestMigrate(t *testing.T) {
	path := dataPath(t)
	writeImage(t, path, testPass, &sdcodec.Snapshot{
		Schemas: map[string]sddb.Schema{
			"_settings": nil,
			"notes":     {{Name: "title", Type: "string"}},
		},
		Collections: map[string]map[string]sddb.Document{
			"_settings": {
				"abc": {
					"id":         sdcodec.String("abc"),
					"page_title": sdcodec.String("Custom Title"),
					"app_port":   sdcodec.Int(8080),
				},
			},
			"notes": {},
		},
	})

	db := openTestDB(t, path, sddb.Options{})

	want := []string{"_ports", "_sessions", "_settings", "_users", "notes"}
	if diff := gocmp.Diff(db.ListAllCollections(), want); diff != "" {
		t.Errorf("Collections after migration (-got, +want):\n%s", diff)
	}
	doc, ok := db.FindOne(sddb.Settings, "abc")
	if !ok {
		t.Fatal("Settings document abc missing")
	}
	if got, _ := doc.Str("page_title"); got != "Custom Title" {
		t.Errorf("page_title: got %q, want existing value kept", got)
	}
	if got, _ := doc.Int("app_port"); got != 8080 {
		t.Errorf("app_port: got %d, want existing value kept", got)
	}
	if got, _ := doc.Int("prod_port_end"); got != 3699 {
		t.Errorf("prod_port_end: got %d, want default 3699", got)
	}
	if n := len(db.FindAll(sddb.Settings)); n != 1 {
		t.Errorf("Settings documents: got %d, want 1", n)
	}

	// Migration was persisted.
	db2 := openTestDB(t, path, sddb.Options{})
	if doc, _ := db2.FindOne(sddb.Settings, "abc"); !sdcodec.Equal(doc["og_title"], sdcodec.String("My Site")) {
		t.Errorf("Reopened og_title: got %v", doc["og_title"])
	}
}

func TestPersist(t *testing.T) {
	mtest.Swap[io.Reader](t, &crand.Reader, mrand.New(mrand.NewSource(1914)))
	path := dataPath(t)

	db := openTestDB(t, path, sddb.Options{})
	db.CreateCollection("notes", sddb.Schema{{Name: "title", Type: "string"}, {Name: "n", Type: "int"}})
	id, _ := db.Insert("notes", sddb.Document{
		"title": sdcodec.String("hello"),
		"n":     sdcodec.Int(-3),
		"f":     sdcodec.Float(2.5),
		"list":  sdcodec.Array{sdcodec.Null{}, sdcodec.Object{"deep": sdcodec.Bool(false)}},
	})
	db.CreateCollection("empty", nil)

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Read data file: %v", err)
	}
	if raw[0] != sdstore.Version {
		t.Errorf("Data file version: got %d, want %d", raw[0], sdstore.Version)
	}
	if got, want := db.LastImageDigest(), sdcrypt.Sum256(raw); got != want {
		t.Errorf("LastImageDigest: got %x, want %x", got, want)
	}
	if fi, err := os.Stat(path); err != nil {
		t.Fatalf("Stat: %v", err)
	} else if mode := fi.Mode().Perm(); mode != sdstore.FileMode {
		t.Errorf("Data file mode: got %v, want %v", mode, os.FileMode(sdstore.FileMode))
	}

	db2 := openTestDB(t, path, sddb.Options{})
	if diff := gocmp.Diff(db2.ListAllCollections(), db.ListAllCollections()); diff != "" {
		t.Errorf("Reopened collections (-got, +want):\n%s", diff)
	}
	for _, name := range db.ListAllCollections() {
		s1, _ := db.Schema(name)
		s2, _ := db2.Schema(name)
		if diff := gocmp.Diff(s2, s1); diff != "" {
			t.Errorf("Reopened schema %q (-got, +want):\n%s", name, diff)
		}
		if diff := gocmp.Diff(db2.FindAll(name), db.FindAll(name)); diff != "" {
			t.Errorf("Reopened collection %q (-got, +want):\n%s", name, diff)
		}
	}
	if _, ok := db2.FindOne("notes", id); !ok {
		t.Errorf("Reopened: document %q missing", id)
	}
	if db2.LastImageDigest() != db.LastImageDigest() {
		t.Error("Reopened LastImageDigest differs from the writer's")
	}
	if db2.Fingerprint() != db.Fingerprint() {
		t.Errorf("Fingerprint: got %q, want %q", db2.Fingerprint(), db.Fingerprint())
	}
}

func TestCorrupt(t *testing.T) {
	setup := func(t *testing.T, content []byte) string {
		t.Helper()
		path := dataPath(t)
		if err := sdstore.WriteFile(path, content); err != nil {
			t.Fatalf("WriteFile: %v", err)
		}
		return path
	}

	good := dataPath(t)
	openTestDB(t, good, sddb.Options{}).CreateCollection("notes", nil)
	goodImage, err := os.ReadFile(good)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	badVersion := append([]byte{9}, goodImage[1:]...)

	tests := []struct {
		name    string
		content []byte
		pass    string
	}{
		{"Empty", nil, testPass},
		{"Short", goodImage[:sdstore.HeaderLen], testPass},
		{"Version", badVersion, testPass},
		{"Truncated", goodImage[:len(goodImage)-5], testPass},
		{"WrongPass", goodImage, "wrong wrong wrong"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			path := setup(t, tc.content)

			db, err := sddb.Open(sddb.Options{
				Path:       path,
				Passphrase: tc.pass,
				Logger:     zaptest.NewLogger(t).Sugar(),
			})
			if !errors.Is(err, sddb.ErrCorrupt) {
				t.Fatalf("Open: got %v, %v; want ErrCorrupt", db, err)
			}
			t.Logf("Open: got expected error: %v", err)

			after, err := os.ReadFile(path)
			if err != nil {
				t.Fatalf("Read: %v", err)
			}
			if !bytes.Equal(after, tc.content) {
				t.Error("Data file was modified by a failed open")
			}

			// With DiscardCorrupt, the open succeeds and the original is kept aside.
			db = openTestDB(t, path, sddb.Options{
				Passphrase:     tc.pass,
				DiscardCorrupt: true,
				Clock:          fixedClock(777),
			})
			if got := db.ListCollections(); len(got) != 0 {
				t.Errorf("ListCollections after discard: got %v, want empty", got)
			}
			saved, err := os.ReadFile(path + ".corrupt-777")
			if err != nil {
				t.Fatalf("Read saved copy: %v", err)
			}
			if !bytes.Equal(saved, tc.content) {
				t.Error("Saved copy does not match the corrupt file")
			}
		})
	}
}

func TestNoRandom(t *testing.T) {
	mtest.Swap[io.Reader](t, &crand.Reader, failReader{})

	db, err := sddb.Open(sddb.Options{Path: dataPath(t), Passphrase: testPass})
	if err == nil {
		t.Fatalf("Open: got %v, want error", db)
	}
	t.Logf("Open without randomness: got expected error: %v", err)
}

type failReader struct{}

func (failReader) Read([]byte) (int, error) { return 0, errors.New("no entropy") }

func TestBackup(t *testing.T) {
	path := dataPath(t)
	db := openTestDB(t, path, sddb.Options{Clock: fixedClock(1600000000)})
	db.CreateCollection("notes", nil)

	want, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	dir := filepath.Dir(path)
	for i, name := range []string{"backup_1600000000.bin", "backup_1600000000_1.bin"} {
		bp, err := db.Backup()
		if err != nil {
			t.Fatalf("Backup %d: unexpected error: %v", i+1, err)
		}
		if bp != filepath.Join(dir, name) {
			t.Errorf("Backup %d: got %q, want %q", i+1, bp, name)
		}
		got, err := os.ReadFile(bp)
		if err != nil {
			t.Fatalf("Read backup: %v", err)
		}
		if diff := gocmp.Diff(got, want); diff != "" {
			t.Errorf("Backup content (-got, +want):\n%s", diff)
		}
	}

	// The backup is a usable data file.
	bdb := openTestDB(t, filepath.Join(dir, "backup_1600000000.bin"), sddb.Options{})
	if diff := gocmp.Diff(bdb.ListCollections(), []string{"notes"}); diff != "" {
		t.Errorf("Backup collections (-got, +want):\n%s", diff)
	}
}

func TestRekey(t *testing.T) {
	path := dataPath(t)
	db := openTestDB(t, path, sddb.Options{})
	db.CreateCollection("notes", nil)
	oldPrint := db.Fingerprint()

	const newPass = "go for the eyes"
	if err := db.Rekey(newPass); err != nil {
		t.Fatalf("Rekey: unexpected error: %v", err)
	}
	if db.Fingerprint() == oldPrint {
		t.Error("Fingerprint did not change after Rekey")
	}

	if _, err := sddb.Open(sddb.Options{Path: path, Passphrase: testPass}); !errors.Is(err, sddb.ErrCorrupt) {
		t.Errorf("Open with old passphrase: got %v, want ErrCorrupt", err)
	}
	db2 := openTestDB(t, path, sddb.Options{Passphrase: newPass})
	if diff := gocmp.Diff(db2.ListCollections(), []string{"notes"}); diff != "" {
		t.Errorf("Collections under new key (-got, +want):\n%s", diff)
	}
}

func TestSyncFailure(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "db.bin")
	db := openTestDB(t, path, sddb.Options{SyncRetries: 1})

	// Replace the data file with a directory so that writes fail.
	if err := os.Remove(path); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if err := os.Mkdir(path, 0700); err != nil {
		t.Fatalf("Mkdir: %v", err)
	}

	if err := db.Sync(); err == nil {
		t.Error("Sync: got nil, want error")
	}
	// Mutations still succeed in memory.
	if !db.CreateCollection("notes", nil) {
		t.Fatal("CreateCollection: got false, want true")
	}
	if _, ok := db.Insert("notes", sddb.Document{"a": sdcodec.Int(1)}); !ok {
		t.Error("Insert: got false, want true")
	}
	if n := len(db.FindAll("notes")); n != 1 {
		t.Errorf("FindAll: got %d, want 1", n)
	}
}

func TestConcurrent(t *testing.T) {
	path := dataPath(t)
	db := openTestDB(t, path, sddb.Options{})
	db.CreateCollection("c", nil)

	const workers, perWorker = 8, 15
	var wg sync.WaitGroup
	for range workers {
		wg.Go(func() {
			for i := range perWorker {
				id, ok := db.Insert("c", sddb.Document{"i": sdcodec.Int(i)})
				if !ok {
					t.Error("Insert failed")
					return
				}
				db.Update("c", id, sddb.Document{"done": sdcodec.Bool(true)})
				db.FindAll("c")
				db.ListCollections()
			}
		})
	}
	wg.Wait()

	if n := len(db.FindAll("c")); n != workers*perWorker {
		t.Errorf("FindAll: got %d, want %d", n, workers*perWorker)
	}

	// The data file reflects the final state.
	db2 := openTestDB(t, path, sddb.Options{})
	if n := len(db2.FindAll("c")); n != workers*perWorker {
		t.Errorf("Reopened FindAll: got %d, want %d", n, workers*perWorker)
	}
	for _, doc := range db2.FindAll("c") {
		if !sdcodec.Equal(doc["done"], sdcodec.Bool(true)) {
			t.Errorf("Document %v missing update", doc["id"])
		}
	}
}

func nested(depth int) sdcodec.Value {
	var v sdcodec.Value = sdcodec.String("bottom")
	for range depth {
		v = sdcodec.Object{"x": v}
	}
	return v
}

func TestNestingDepth(t *testing.T) {
	path := dataPath(t)
	db := openTestDB(t, path, sddb.Options{})
	db.CreateCollection("notes", nil)

	if id, ok := db.Insert("notes", sddb.Document{"v": nested(sdcodec.MaxDepth + 1)}); ok {
		t.Errorf("Insert too deep: got %q, true; want rejected", id)
	}
	id, ok := db.Insert("notes", sddb.Document{"v": nested(sdcodec.MaxDepth)})
	if !ok {
		t.Fatal("Insert at MaxDepth: got false, want true")
	}
	if db.Update("notes", id, sddb.Document{"w": nested(sdcodec.MaxDepth + 1)}) {
		t.Error("Update too deep: got true, want false")
	}
	if doc, _ := db.FindOne("notes", id); doc["w"] != nil {
		t.Errorf("Rejected update changed the document: w = %v", doc["w"])
	}

	// The accepted document survives a reopen.
	db2 := openTestDB(t, path, sddb.Options{})
	got, ok := db2.FindOne("notes", id)
	if !ok {
		t.Fatalf("Reopened: document %q missing", id)
	}
	if !sdcodec.Equal(got["v"], nested(sdcodec.MaxDepth)) {
		t.Error("Reopened: nested value differs")
	}
}
