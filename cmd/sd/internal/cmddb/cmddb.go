package cmddb

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/creachadair/atomicfile"
	"github.com/creachadair/command"
	"github.com/creachadair/flax"
	"github.com/creachadair/sealdb/cmd/sd/config"
	"github.com/creachadair/sealdb/sdlib"
	"github.com/creachadair/sealdb/sdstore"
	"github.com/creachadair/sealdb/wordhash"
	"github.com/dustin/go-humanize"
)

var Command = &command.C{
	Name: "db",
	Help: "Commands to manage the data file.",

	Commands: []*command.C{
		{
			Name: "init",
			Help: `Create a new database with the system collections.

If no passphrase is set in the environment or the env file, the user is
prompted for one, with confirmation.`,
			Run: command.Adapt(runInit),
		},
		{
			Name: "info",
			Help: "Print a summary of the database.",
			Run:  command.Adapt(runInfo),
		},
		{
			Name: "backup",
			Help: "Copy the encrypted data file to a timestamped backup file.",
			Run:  command.Adapt(runBackup),
		},
		{
			Name: "change-key",
			Help: "Change the passphrase of the database.",
			Run:  command.Adapt(runChangeKey),
		},
		{
			Name:     "export",
			Usage:    "[json-path]",
			Help:     "Export the contents of the database in plaintext as JSON.",
			SetFlags: command.Flags(flax.MustBind, &exportFlags),
			Run:      command.Adapt(runExport),
		},
		{
			Name:  "import",
			Usage: "<json-path>",
			Help: `Import a plaintext JSON export, replacing the contents of the database.

The current data file is backed up first.`,
			Run: command.Adapt(runImport),
		},
	},
}

// runInit implements the "db init" subcommand.
func runInit(env *command.Env) error {
	path := config.DBPath(env)
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("database %q already exists", path)
	} else if !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	passphrase, ok := config.Lookup(env, config.KeyVar)
	if !ok {
		pp, err := sdlib.ConfirmPassphrase("New database passphrase: ")
		if err != nil {
			return err
		}
		passphrase = pp
	}
	db, err := sdlib.OpenDB(path, passphrase, config.Logger(env), nil)
	if err != nil {
		return err
	}
	if err := db.Sync(); err != nil {
		return fmt.Errorf("create database: %w", err)
	}
	if email, ok := config.Lookup(env, "ADMIN_EMAIL"); ok {
		pw, ok := config.Lookup(env, "ADMIN_PASSWORD")
		if !ok {
			return errors.New("ADMIN_EMAIL is set without ADMIN_PASSWORD")
		}
		id, err := sdlib.Accounts{DB: db}.AddUser(email, pw, sdlib.RoleAdmin)
		if err != nil {
			return fmt.Errorf("create admin user: %w", err)
		}
		fmt.Fprintf(env, "Created admin user %q (%s)\n", email, id)
	}
	fmt.Fprintf(env, "Created database %q (key %s)\n", path, db.Fingerprint())
	return nil
}

// runInfo implements the "db info" subcommand.
func runInfo(env *command.Env) error {
	db, err := config.LoadDB(env)
	if err != nil {
		return err
	}
	fi, err := os.Stat(db.Path())
	if err != nil {
		return err
	}
	sum := db.LastImageDigest()
	fmt.Printf("Path:        %s\n", db.Path())
	fmt.Printf("Size:        %s\n", humanize.Bytes(uint64(fi.Size())))
	fmt.Printf("Modified:    %s\n", humanize.Time(fi.ModTime()))
	fmt.Printf("Key:         %s\n", db.Fingerprint())
	fmt.Printf("Checksum:    %s\n", wordhash.String(sum[:]))
	for _, name := range db.ListAllCollections() {
		fmt.Printf("Collection:  %-16s %s\n", name, humanize.Comma(int64(len(db.FindAll(name)))))
	}
	return nil
}

// runBackup implements the "db backup" subcommand.
func runBackup(env *command.Env) error {
	db, err := config.LoadDB(env)
	if err != nil {
		return err
	}
	path, err := db.Backup()
	if err != nil {
		return err
	}
	fmt.Fprintf(env, "Backup written to %q\n", path)
	return nil
}

// runChangeKey implements the "db change-key" subcommand.
func runChangeKey(env *command.Env) error {
	db, err := config.LoadDB(env)
	if err != nil {
		return err
	}
	newpp, err := sdlib.ConfirmPassphrase("New passphrase: ")
	if err != nil {
		return err
	}
	if err := db.Rekey(newpp); err != nil {
		return fmt.Errorf("change key: %w", err)
	}
	fmt.Fprintf(env, "Access key updated for %q (key %s)\n", db.Path(), db.Fingerprint())
	if _, ok := config.Lookup(env, config.KeyVar); ok {
		fmt.Fprintf(env, "Remember to update %s to the new passphrase\n", config.KeyVar)
	}
	return nil
}

var exportFlags struct {
	Force bool `flag:"f,Overwrite an existing output file"`
}

// runExport implements the "db export" subcommand.
func runExport(env *command.Env, optPath ...string) error {
	if len(optPath) > 1 {
		return env.Usagef("extra arguments after path: %q", optPath[1:])
	}
	db, err := config.LoadDB(env)
	if err != nil {
		return err
	}
	data, err := sdlib.Export(db)
	if err != nil {
		return err
	}
	if len(optPath) == 0 {
		_, err := fmt.Println(string(data))
		return err
	}
	path := optPath[0]
	if _, err := os.Stat(path); err == nil && !exportFlags.Force {
		return fmt.Errorf("output %q exists (use -f to overwrite)", path)
	}
	if err := atomicfile.Tx(path, sdstore.FileMode, func(f *atomicfile.File) error {
		_, err := f.Write(append(data, '\n'))
		return err
	}); err != nil {
		return err
	}
	fmt.Fprintf(env, "Exported %d collections to %q\n", len(db.ListAllCollections()), path)
	return nil
}

// runImport implements the "db import" subcommand.
func runImport(env *command.Env, jsonPath string) error {
	data, err := os.ReadFile(jsonPath)
	if err != nil {
		return err
	}
	db, err := config.LoadDB(env)
	if err != nil {
		return err
	}
	if _, err := os.Stat(db.Path()); err == nil {
		bak, err := db.Backup()
		if err != nil {
			return err
		}
		fmt.Fprintf(env, "Backup written to %q\n", bak)
	}
	if err := sdlib.Import(db, data); err != nil {
		return err
	}
	fmt.Fprintf(env, "Imported %q into %q (%d collections)\n", jsonPath, db.Path(), len(db.ListAllCollections()))
	return nil
}
