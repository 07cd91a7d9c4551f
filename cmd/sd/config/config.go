// Package config contains shared configuration settings for sd subcommands.
package config

import (
	"cmp"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/creachadair/command"
	"github.com/creachadair/sealdb/sddb"
	"github.com/creachadair/sealdb/sdlib"
	"go.uber.org/zap"
)

// KeyVar is the name of the environment variable holding the passphrase.
const KeyVar = "SECRET_KEY"

// Settings are shared settings used by sd subcommands.
type Settings struct {
	Root    string // project root; "$0" expands to the program directory
	DataDir string // if "", <root>/data
	EnvFile string // if "", <root>/.env.local
	Verbose bool

	log *zap.SugaredLogger
}

func settings(env *command.Env) *Settings { return env.Config.(*Settings) }

// RootDir returns the project root directory associated with env.
func RootDir(env *command.Env) string {
	root := cmp.Or(settings(env).Root, ".")
	if tail, ok := strings.CutPrefix(root, "$0"); ok {
		ep, err := os.Executable()
		if err == nil {
			return filepath.Join(filepath.Dir(ep), tail)
		}
	}
	return root
}

// DBPath returns the path of the data file associated with env.
func DBPath(env *command.Env) string {
	dir := settings(env).DataDir
	if dir == "" {
		dir = filepath.Join(RootDir(env), "data")
	}
	return filepath.Join(dir, "db.bin")
}

// EnvPath returns the path of the env file associated with env.
func EnvPath(env *command.Env) string {
	if p := settings(env).EnvFile; p != "" {
		return p
	}
	return filepath.Join(RootDir(env), ".env.local")
}

// Lookup returns the value of the named variable from the process
// environment or, failing that, from the env file associated with env.
func Lookup(env *command.Env, name string) (string, bool) {
	if v, ok := os.LookupEnv(name); ok && v != "" {
		return v, true
	}
	return sdlib.LookupEnv(EnvPath(env), name)
}

// Passphrase returns the database passphrase. It is taken from $SECRET_KEY,
// then from the env file, and otherwise the user is prompted for it.
func Passphrase(env *command.Env) (string, error) {
	if pp, ok := Lookup(env, KeyVar); ok {
		return pp, nil
	}
	return sdlib.GetPassphrase("Passphrase: ")
}

// Logger returns the logger for env, creating it on first use. Log output
// goes to stderr at warning level, or debug level if Verbose is set.
func Logger(env *command.Env) *zap.SugaredLogger {
	set := settings(env)
	if set.log != nil {
		return set.log
	}
	cfg := zap.NewDevelopmentConfig()
	cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	if set.Verbose {
		cfg.Level.SetLevel(zap.DebugLevel)
	}
	log, err := cfg.Build()
	if err != nil {
		log = zap.NewNop()
	}
	set.log = log.Sugar()
	return set.log
}

// SetLogger sets the logger used by subcommands, replacing the default.
func SetLogger(env *command.Env, log *zap.SugaredLogger) { settings(env).log = log }

// LoadDB opens the database associated with env. If the data file does not
// exist, a new empty database is created.
func LoadDB(env *command.Env) (*sddb.DB, error) { return LoadDBWithEvents(env, nil) }

// LoadDBWithEvents is as LoadDB, but delivers change events to pub.
func LoadDBWithEvents(env *command.Env, pub sddb.Publisher) (*sddb.DB, error) {
	pp, err := Passphrase(env)
	if err != nil {
		return nil, err
	}
	db, err := sdlib.OpenDB(DBPath(env), pp, Logger(env), pub)
	if err != nil {
		return nil, err
	}
	Logger(env).Debugw("opened database", "path", db.Path(), "key", db.Fingerprint())
	return db, nil
}

// Sync flushes db to storage and reports the result on env.
func Sync(env *command.Env, db *sddb.DB) error {
	if err := db.Sync(); err != nil {
		return fmt.Errorf("save database: %w", err)
	}
	fmt.Fprintln(env, "<saved>")
	return nil
}
