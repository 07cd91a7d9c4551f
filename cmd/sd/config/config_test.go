package config_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/creachadair/command"
	"github.com/creachadair/sealdb/cmd/sd/config"
	"github.com/creachadair/sealdb/sddb"
	"go.uber.org/zap/zaptest"
)

func newEnv(set *config.Settings) *command.Env {
	return (&command.C{Name: "test"}).NewEnv(set)
}

func TestPaths(t *testing.T) {
	tests := []struct {
		set          config.Settings
		dbPath, envP string
	}{
		{config.Settings{}, "data/db.bin", ".env.local"},
		{config.Settings{Root: "/srv/app"}, "/srv/app/data/db.bin", "/srv/app/.env.local"},
		{config.Settings{Root: "/srv/app", DataDir: "/var/lib/sd"}, "/var/lib/sd/db.bin", "/srv/app/.env.local"},
		{config.Settings{Root: "/srv/app", EnvFile: "/etc/sd.env"}, "/srv/app/data/db.bin", "/etc/sd.env"},
	}
	for _, tc := range tests {
		env := newEnv(&tc.set)
		if got := config.DBPath(env); got != tc.dbPath {
			t.Errorf("DBPath(%+v): got %q, want %q", tc.set, got, tc.dbPath)
		}
		if got := config.EnvPath(env); got != tc.envP {
			t.Errorf("EnvPath(%+v): got %q, want %q", tc.set, got, tc.envP)
		}
	}
}

func TestLookup(t *testing.T) {
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, ".env.local"),
		[]byte("SECRET_KEY=from the file\nADMIN_EMAIL=\"root@example.com\"\n"), 0600); err != nil {
		t.Fatal(err)
	}
	env := newEnv(&config.Settings{Root: root})

	t.Setenv(config.KeyVar, "")
	if got, err := config.Passphrase(env); err != nil || got != "from the file" {
		t.Errorf("Passphrase: got %q, %v; want from the file", got, err)
	}
	t.Setenv(config.KeyVar, "from the environment")
	if got, err := config.Passphrase(env); err != nil || got != "from the environment" {
		t.Errorf("Passphrase: got %q, %v; want from the environment", got, err)
	}
	if got, ok := config.Lookup(env, "ADMIN_EMAIL"); !ok || got != "root@example.com" {
		t.Errorf("Lookup ADMIN_EMAIL: got %q, %v", got, ok)
	}
	if got, ok := config.Lookup(env, "NO_SUCH_VARIABLE"); ok {
		t.Errorf("Lookup NO_SUCH_VARIABLE: got %q, want not found", got)
	}
}

func TestLoadDB(t *testing.T) {
	root := t.TempDir()
	t.Setenv(config.KeyVar, "load me up")
	env := newEnv(&config.Settings{Root: root})
	config.SetLogger(env, zaptest.NewLogger(t).Sugar())

	db, err := config.LoadDB(env)
	if err != nil {
		t.Fatalf("LoadDB: unexpected error: %v", err)
	}
	if got, want := db.Path(), filepath.Join(root, "data", "db.bin"); got != want {
		t.Errorf("Path: got %q, want %q", got, want)
	}
	db.CreateCollection("notes", nil)

	// Reopening with the same passphrase sees the collection.
	db2, err := config.LoadDB(env)
	if err != nil {
		t.Fatalf("LoadDB again: unexpected error: %v", err)
	}
	if _, ok := db2.Schema("notes"); !ok {
		t.Error("Reloaded database is missing collection notes")
	}

	t.Setenv(config.KeyVar, "a different passphrase")
	if _, err := config.LoadDB(env); !errors.Is(err, sddb.ErrCorrupt) {
		t.Errorf("LoadDB with wrong passphrase: got %v, want ErrCorrupt", err)
	}
}
