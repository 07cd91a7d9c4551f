package cmddoc

import (
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/creachadair/command"
	"github.com/creachadair/flax"
	"github.com/creachadair/sealdb/cmd/sd/config"
	"github.com/creachadair/sealdb/sdcodec"
	"github.com/creachadair/sealdb/sddb"
	"github.com/creachadair/sealdb/sdlib"
	"github.com/dustin/go-humanize"
	"github.com/olekukonko/tablewriter"
)

var Command = &command.C{
	Name: "doc",
	Help: `Commands to manage documents.

Documents are written and printed as JSON objects. Where a document is
expected, "-" reads it from stdin. See "help documents".`,

	Commands: []*command.C{
		{
			Name:  "insert",
			Usage: "<collection> <json>",
			Help:  "Insert a new document and print its id.",
			Run:   command.Adapt(runInsert),
		},
		{
			Name:  "get",
			Usage: "<collection> <id>",
			Help:  "Print the document with the given id.",
			Run:   command.Adapt(runGet),
		},
		{
			Name:  "find",
			Usage: "<collection> <field> <value>",
			Help:  "Print the first document whose field has the given string value.",
			Run:   command.Adapt(runFind),
		},
		{
			Name:     "list",
			Usage:    "<collection>",
			Help:     "List the documents in a collection.",
			SetFlags: command.Flags(flax.MustBind, &listFlags),
			Run:      command.Adapt(runList),
		},
		{
			Name:  "update",
			Usage: "<collection> <id> <json>",
			Help: `Merge the fields of a JSON object into a document.

The reserved fields id, created, and updated are ignored.`,
			Run: command.Adapt(runUpdate),
		},
		{
			Name:  "delete",
			Usage: "<collection> <id>",
			Help:  "Delete a document.",
			Run:   command.Adapt(runDelete),
		},
		{
			Name:  "edit",
			Usage: "<collection> <id>",
			Help: `Edit a document as YAML in $EDITOR.

Changed and added fields are merged into the document. A field removed in
the editor is left unchanged; set it to null instead. Hidden fields, such
as password hashes, are not shown and cannot be edited. Quote values that
look like timestamps (for example "2024-01-02"), since unquoted YAML
timestamps are not valid document values.`,
			Run: command.Adapt(runEdit),
		},
	},
}

// readDoc parses a document argument, or stdin if arg is "-".
func readDoc(arg string) (sddb.Document, error) {
	data := []byte(arg)
	if arg == "-" {
		var err error
		data, err = io.ReadAll(os.Stdin)
		if err != nil {
			return nil, err
		}
	}
	return sdcodec.ParseJSON(data)
}

// runInsert implements the "doc insert" subcommand.
func runInsert(env *command.Env, coll, input string) error {
	doc, err := readDoc(input)
	if err != nil {
		return err
	}
	db, err := config.LoadDB(env)
	if err != nil {
		return err
	}
	id, ok := db.Insert(coll, doc)
	if !ok {
		return fmt.Errorf("insert into %q failed (does the collection exist?)", coll)
	}
	fmt.Println(id)
	return nil
}

// runGet implements the "doc get" subcommand.
func runGet(env *command.Env, coll, id string) error {
	db, err := config.LoadDB(env)
	if err != nil {
		return err
	}
	doc, ok := db.FindOne(coll, id)
	if !ok {
		return fmt.Errorf("document %q not found in %q", id, coll)
	}
	return sdlib.WriteDocument(os.Stdout, coll, doc)
}

// runFind implements the "doc find" subcommand.
func runFind(env *command.Env, coll, field, value string) error {
	db, err := config.LoadDB(env)
	if err != nil {
		return err
	}
	doc, ok := db.FindBy(coll, field, value)
	if !ok {
		return fmt.Errorf("no document in %q with %s=%q", coll, field, value)
	}
	return sdlib.WriteDocument(os.Stdout, coll, doc)
}

var listFlags struct {
	JSON bool `flag:"json,Print one JSON document per line"`
}

// runList implements the "doc list" subcommand.
func runList(env *command.Env, coll string) error {
	db, err := config.LoadDB(env)
	if err != nil {
		return err
	}
	if _, ok := db.Schema(coll); !ok {
		return fmt.Errorf("collection %q not found", coll)
	}
	docs := db.FindAll(coll)
	if listFlags.JSON {
		for _, doc := range docs {
			if err := sdlib.WriteDocument(os.Stdout, coll, doc); err != nil {
				return err
			}
		}
		return nil
	}

	hidden := sdlib.HiddenFields(coll)
	tw := tablewriter.NewWriter(os.Stdout)
	tw.Header("ID", "Created", "Updated", "Fields")
	for _, doc := range docs {
		id, _ := doc.Str(sddb.FieldID)
		var fields []string
		for _, k := range doc.Keys() {
			switch k {
			case sddb.FieldID, sddb.FieldCreated, sddb.FieldUpdated:
				continue
			}
			if !slices.Contains(hidden, k) {
				fields = append(fields, k)
			}
		}
		if err := tw.Append([]string{
			id, stamp(doc, sddb.FieldCreated), stamp(doc, sddb.FieldUpdated), strings.Join(fields, ", "),
		}); err != nil {
			return err
		}
	}
	return tw.Render()
}

func stamp(doc sddb.Document, field string) string {
	ts, ok := doc.Int(field)
	if !ok {
		return "-"
	}
	return humanize.Time(time.Unix(ts, 0))
}

// runUpdate implements the "doc update" subcommand.
func runUpdate(env *command.Env, coll, id, input string) error {
	patch, err := readDoc(input)
	if err != nil {
		return err
	}
	db, err := config.LoadDB(env)
	if err != nil {
		return err
	}
	if !db.Update(coll, id, patch) {
		return fmt.Errorf("document %q not found in %q", id, coll)
	}
	fmt.Fprintf(env, "Updated %s/%s\n", coll, id)
	return nil
}

// runDelete implements the "doc delete" subcommand.
func runDelete(env *command.Env, coll, id string) error {
	db, err := config.LoadDB(env)
	if err != nil {
		return err
	}
	if !db.Delete(coll, id) {
		return fmt.Errorf("document %q not found in %q", id, coll)
	}
	fmt.Fprintf(env, "Deleted %s/%s\n", coll, id)
	return nil
}

// runEdit implements the "doc edit" subcommand.
func runEdit(env *command.Env, coll, id string) error {
	db, err := config.LoadDB(env)
	if err != nil {
		return err
	}
	doc, ok := db.FindOne(coll, id)
	if !ok {
		return fmt.Errorf("document %q not found in %q", id, coll)
	}
	edited, err := sdlib.EditDocument(env.Context(), sdlib.Editor{}, sdlib.Visible(coll, doc))
	if errors.Is(err, sdlib.ErrNoChange) {
		fmt.Fprintln(env, "No change")
		return nil
	} else if err != nil {
		return err
	}
	if !db.Update(coll, id, edited) {
		return fmt.Errorf("document %q was removed during the edit", id)
	}
	fmt.Fprintf(env, "Edit applied to %s/%s\n", coll, id)
	return nil
}
