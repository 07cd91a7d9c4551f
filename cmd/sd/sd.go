// Program sd is a command-line tool for a sealdb document store.
package main

import (
	"os"

	"github.com/creachadair/command"
	"github.com/creachadair/flax"
	"github.com/creachadair/sealdb/cmd/sd/config"

	"github.com/creachadair/sealdb/cmd/sd/internal/cmdcoll"
	"github.com/creachadair/sealdb/cmd/sd/internal/cmddb"
	"github.com/creachadair/sealdb/cmd/sd/internal/cmddoc"
	"github.com/creachadair/sealdb/cmd/sd/internal/cmdports"
	"github.com/creachadair/sealdb/cmd/sd/internal/cmdshell"
	"github.com/creachadair/sealdb/cmd/sd/internal/cmduser"
)

func main() {
	var flags struct {
		Root    string `flag:"root,default=$SEALDB_ROOT,Project root directory (default .)"`
		DataDir string `flag:"data,Data directory (default <root>/data)"`
		EnvFile string `flag:"env,Env file (default <root>/.env.local)"`
		Verbose bool   `flag:"v,Enable verbose logging"`
	}
	root := &command.C{
		Name: command.ProgramName(),
		Help: `A command-line tool for the sealdb document store.

Sealdb keeps collections of schemaless JSON-like documents in a single
data file, encrypted with a key derived from a passphrase. The data file
lives at <root>/data/db.bin; use --root or set SEALDB_ROOT to choose the
project root.

The passphrase is read from the SECRET_KEY environment variable, then
from SECRET_KEY in the env file, and otherwise from the terminal.`,

		SetFlags: command.Flags(flax.MustBind, &flags),

		Init: func(env *command.Env) error {
			env.Config = &config.Settings{
				Root:    flags.Root,
				DataDir: flags.DataDir,
				EnvFile: flags.EnvFile,
				Verbose: flags.Verbose,
			}
			return nil
		},

		Commands: []*command.C{
			cmddb.Command,
			cmdcoll.Command,
			cmddoc.Command,
			cmduser.Command,
			cmdports.Command,
			cmdshell.Command,
			command.HelpCommand([]command.HelpTopic{{
				Name: "documents",
				Help: `Syntax of document arguments.

Documents are given as JSON objects, for example:

   {"title": "hello", "tags": ["a", "b"], "count": 3}

Whole numbers are stored as integers and other numbers as floats.
Every document carries the reserved fields "id", "created", and "updated",
which are maintained by the store and cannot be set by an update.`,
			}}),
			command.VersionCommand(),
		},
	}
	command.RunOrFail(root.NewEnv(nil).MergeFlags(true), os.Args[1:])
}
