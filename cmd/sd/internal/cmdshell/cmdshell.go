package cmdshell

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/creachadair/command"
	"github.com/creachadair/flax"
	"github.com/creachadair/sealdb/cmd/sd/config"
	"github.com/creachadair/sealdb/cmd/sd/internal/cmdcoll"
	"github.com/creachadair/sealdb/sdcodec"
	"github.com/creachadair/sealdb/sddb"
	"github.com/creachadair/sealdb/sdlib"
	"golang.org/x/term"
)

var Command = &command.C{
	Name: "shell",
	Help: `Open the database and read commands interactively.

The database stays open for the whole session. Each change is printed as
a JSON event, and a warning is printed if the data file is modified by
another program. Type "help" for a list of commands.`,
	SetFlags: command.Flags(flax.MustBind, &shellFlags),
	Run:      command.Adapt(runShell),
}

var shellFlags struct {
	Quiet  bool `flag:"q,Do not print change events"`
	Buffer int  `flag:"buffer,default=64,Change event buffer size"`
}

// runShell implements the "shell" subcommand.
func runShell(env *command.Env) error {
	var hub sddb.Hub
	db, err := config.LoadDBWithEvents(env, &hub)
	if err != nil {
		return err
	}
	log := config.Logger(env)

	ctx, cancel := context.WithCancel(env.Context())
	defer cancel()

	in, out, restore, err := openTerminal()
	if err != nil {
		return err
	}
	defer restore()

	if !shellFlags.Quiet {
		events, stop := hub.Subscribe(shellFlags.Buffer)
		defer stop()
		go func() {
			for e := range events {
				data, err := sdlib.EncodeEvent(e)
				if err != nil {
					log.Warnw("encode event", "kind", e.Kind, "error", err)
					continue
				}
				fmt.Fprintf(out, "%s\n", data)
			}
		}()
	}

	w, err := sdlib.NewWatcher(db, log)
	if err != nil {
		log.Warnw("file watcher unavailable", "error", err)
	} else {
		w.OnExternal = func(path string) {
			fmt.Fprintf(out, "** %s was changed by another program\n", path)
		}
		go w.Run(ctx)
	}

	fmt.Fprintf(out, "Opened %s (key %s)\n", db.Path(), db.Fingerprint())
	for {
		line, err := in()
		if errors.Is(err, io.EOF) {
			return nil
		} else if err != nil {
			return err
		}
		quit, err := Exec(db, out, line)
		if err != nil {
			fmt.Fprintf(out, "error: %v\n", err)
		}
		if quit {
			return nil
		}
	}
}

// openTerminal returns a line reader and a writer for the session. If stdin
// is a terminal it is put into raw mode and restore undoes that; otherwise
// lines are read from stdin as-is.
func openTerminal() (readLine func() (string, error), out io.Writer, restore func(), _ error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		sc := bufio.NewScanner(os.Stdin)
		return func() (string, error) {
			if sc.Scan() {
				return sc.Text(), nil
			} else if err := sc.Err(); err != nil {
				return "", err
			}
			return "", io.EOF
		}, os.Stdout, func() {}, nil
	}
	oldst, err := term.MakeRaw(fd)
	if err != nil {
		return nil, nil, nil, err
	}
	vt := term.NewTerminal(struct {
		io.Reader
		io.Writer
	}{os.Stdin, os.Stdout}, "sd> ")
	return vt.ReadLine, vt, func() { term.Restore(fd, oldst) }, nil
}

const helpText = `Commands:
  collections [-a]                    list collections
  create <name> [field:type ...]      create a collection
  drop <name>                         delete a collection
  schema <name>                       print a collection schema
  insert <coll> <json>                insert a document
  get <coll> <id>                     print a document
  find <coll> <field> <value>         print the first matching document
  list <coll>                         print all documents
  update <coll> <id> <json>           merge fields into a document
  delete <coll> <id>                  delete a document
  sync                                write the data file
  backup                              back up the data file
  help                                print this message
  quit                                end the session
`

// Exec runs a single shell command line against db, writing its output to
// w. It reports whether the line asked to end the session.
func Exec(db *sddb.DB, w io.Writer, line string) (quit bool, _ error) {
	verb, rest, _ := strings.Cut(strings.TrimSpace(line), " ")
	rest = strings.TrimSpace(rest)
	arg := func(n int) ([]string, error) {
		args := strings.SplitN(rest, " ", n)
		if rest == "" || len(args) < n {
			return nil, fmt.Errorf("usage: %s requires %d arguments", verb, n)
		}
		for i := range args {
			args[i] = strings.TrimSpace(args[i])
		}
		return args, nil
	}

	switch verb {
	case "":
		return false, nil
	case "quit", "exit":
		return true, nil
	case "help":
		_, err := io.WriteString(w, helpText)
		return false, err

	case "collections":
		names := db.ListCollections()
		if rest == "-a" {
			names = db.ListAllCollections()
		}
		for _, name := range names {
			fmt.Fprintf(w, "%s\t%d\n", name, len(db.FindAll(name)))
		}
		return false, nil

	case "create":
		fields := strings.Fields(rest)
		if len(fields) == 0 {
			return false, errors.New("usage: create <name> [field:type ...]")
		}
		schema, err := cmdcoll.ParseSchema(fields[1:])
		if err != nil {
			return false, err
		}
		if !db.CreateCollection(fields[0], schema) {
			return false, fmt.Errorf("cannot create collection %q", fields[0])
		}
		return false, nil

	case "drop":
		args, err := arg(1)
		if err != nil {
			return false, err
		}
		if !db.DeleteCollection(args[0]) {
			return false, fmt.Errorf("cannot delete collection %q", args[0])
		}
		return false, nil

	case "schema":
		args, err := arg(1)
		if err != nil {
			return false, err
		}
		schema, ok := db.Schema(args[0])
		if !ok {
			return false, fmt.Errorf("collection %q not found", args[0])
		}
		for _, f := range schema {
			fmt.Fprintf(w, "%s\t%s\n", f.Name, f.Type)
		}
		return false, nil

	case "insert":
		args, err := arg(2)
		if err != nil {
			return false, err
		}
		doc, err := sdcodec.ParseJSON([]byte(args[1]))
		if err != nil {
			return false, err
		}
		id, ok := db.Insert(args[0], doc)
		if !ok {
			return false, fmt.Errorf("insert into %q failed", args[0])
		}
		fmt.Fprintln(w, id)
		return false, nil

	case "get":
		args, err := arg(2)
		if err != nil {
			return false, err
		}
		doc, ok := db.FindOne(args[0], args[1])
		if !ok {
			return false, fmt.Errorf("document %q not found in %q", args[1], args[0])
		}
		return false, sdlib.WriteDocument(w, args[0], doc)

	case "find":
		args, err := arg(3)
		if err != nil {
			return false, err
		}
		doc, ok := db.FindBy(args[0], args[1], args[2])
		if !ok {
			return false, fmt.Errorf("no document in %q with %s=%q", args[0], args[1], args[2])
		}
		return false, sdlib.WriteDocument(w, args[0], doc)

	case "list":
		args, err := arg(1)
		if err != nil {
			return false, err
		}
		for _, doc := range db.FindAll(args[0]) {
			if err := sdlib.WriteDocument(w, args[0], doc); err != nil {
				return false, err
			}
		}
		return false, nil

	case "update":
		args, err := arg(3)
		if err != nil {
			return false, err
		}
		patch, err := sdcodec.ParseJSON([]byte(args[2]))
		if err != nil {
			return false, err
		}
		if !db.Update(args[0], args[1], patch) {
			return false, fmt.Errorf("document %q not found in %q", args[1], args[0])
		}
		return false, nil

	case "delete":
		args, err := arg(2)
		if err != nil {
			return false, err
		}
		if !db.Delete(args[0], args[1]) {
			return false, fmt.Errorf("document %q not found in %q", args[1], args[0])
		}
		return false, nil

	case "sync":
		return false, db.Sync()

	case "backup":
		path, err := db.Backup()
		if err != nil {
			return false, err
		}
		fmt.Fprintln(w, path)
		return false, nil

	default:
		return false, fmt.Errorf("unknown command %q (try help)", verb)
	}
}
