package cmdcoll

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/creachadair/command"
	"github.com/creachadair/flax"
	"github.com/creachadair/mds/value"
	"github.com/creachadair/sealdb/cmd/sd/config"
	"github.com/creachadair/sealdb/sddb"
	"github.com/olekukonko/tablewriter"
)

var Command = &command.C{
	Name: "collection",
	Help: "Commands to manage collections.",

	Commands: []*command.C{
		{
			Name:     "list",
			Help:     "List the collections in the database.",
			SetFlags: command.Flags(flax.MustBind, &listFlags),
			Run:      command.Adapt(runList),
		},
		{
			Name:  "create",
			Usage: "<name> [field:type ...]",
			Help: `Create a new collection with the given schema.

Each field is described as name:type. The schema is descriptive only;
documents are not checked against it.`,
			Run: command.Adapt(runCreate),
		},
		{
			Name:  "delete",
			Usage: "<name>",
			Help:  "Delete a collection and all its documents.",
			Run:   command.Adapt(runDelete),
		},
		{
			Name:  "schema",
			Usage: "<name>",
			Help:  "Print the schema of a collection.",
			Run:   command.Adapt(runSchema),
		},
	},
}

var listFlags struct {
	All bool `flag:"a,Include system collections in the output"`
}

// runList implements the "collection list" subcommand.
func runList(env *command.Env) error {
	db, err := config.LoadDB(env)
	if err != nil {
		return err
	}
	names := value.Cond(listFlags.All, db.ListAllCollections(), db.ListCollections())

	tw := tablewriter.NewWriter(os.Stdout)
	tw.Header("Name", "Documents", "Fields")
	for _, name := range names {
		schema, _ := db.Schema(name)
		fields := make([]string, len(schema))
		for i, f := range schema {
			fields[i] = f.Name
		}
		if err := tw.Append([]string{
			name,
			strconv.Itoa(len(db.FindAll(name))),
			strings.Join(fields, ", "),
		}); err != nil {
			return err
		}
	}
	return tw.Render()
}

// ParseSchema parses field descriptions of the form name:type.
func ParseSchema(args []string) (sddb.Schema, error) {
	var schema sddb.Schema
	seen := make(map[string]bool)
	for _, arg := range args {
		name, typ, ok := strings.Cut(arg, ":")
		if !ok || name == "" || typ == "" {
			return nil, fmt.Errorf("invalid field %q (want name:type)", arg)
		} else if seen[name] {
			return nil, fmt.Errorf("duplicate field %q", name)
		}
		seen[name] = true
		schema = append(schema, sddb.Field{Name: name, Type: typ})
	}
	return schema, nil
}

// runCreate implements the "collection create" subcommand.
func runCreate(env *command.Env, name string, fields ...string) error {
	schema, err := ParseSchema(fields)
	if err != nil {
		return env.Usagef("%v", err)
	}
	db, err := config.LoadDB(env)
	if err != nil {
		return err
	}
	if sddb.IsSystem(name) {
		return fmt.Errorf("collection name %q is reserved", name)
	} else if !db.CreateCollection(name, schema) {
		return fmt.Errorf("collection %q already exists", name)
	}
	fmt.Fprintf(env, "Created collection %q with %d fields\n", name, len(schema))
	return nil
}

// runDelete implements the "collection delete" subcommand.
func runDelete(env *command.Env, name string) error {
	db, err := config.LoadDB(env)
	if err != nil {
		return err
	}
	if sddb.IsSystem(name) {
		return fmt.Errorf("cannot delete system collection %q", name)
	}
	n := len(db.FindAll(name))
	if !db.DeleteCollection(name) {
		return fmt.Errorf("collection %q not found", name)
	}
	fmt.Fprintf(env, "Deleted collection %q (%d documents)\n", name, n)
	return nil
}

// runSchema implements the "collection schema" subcommand.
func runSchema(env *command.Env, name string) error {
	db, err := config.LoadDB(env)
	if err != nil {
		return err
	}
	schema, ok := db.Schema(name)
	if !ok {
		return fmt.Errorf("collection %q not found", name)
	}
	tw := tablewriter.NewWriter(os.Stdout)
	tw.Header("Field", "Type")
	for _, f := range schema {
		if err := tw.Append([]string{f.Name, f.Type}); err != nil {
			return err
		}
	}
	return tw.Render()
}
