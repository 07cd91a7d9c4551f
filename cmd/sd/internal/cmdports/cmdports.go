package cmdports

import (
	"fmt"
	"os"
	"strconv"

	"github.com/creachadair/command"
	"github.com/creachadair/sealdb/cmd/sd/config"
	"github.com/creachadair/sealdb/sdlib"
	petname "github.com/dustinkirkland/golang-petname"
	"github.com/olekukonko/tablewriter"
)

var Command = &command.C{
	Name: "ports",
	Help: "Commands to allocate development and production ports to projects.",

	Commands: []*command.C{
		{
			Name:  "alloc",
			Usage: "[project]",
			Help: `Allocate a free development and production port pair to a project.

Ports are chosen from the ranges in the settings collection, skipping
ports already assigned or in use on this host. If no project name is
given, a random one is generated.`,
			Run: command.Adapt(runAlloc),
		},
		{
			Name: "list",
			Help: "List the port assignments.",
			Run:  command.Adapt(runList),
		},
	},
}

// runAlloc implements the "ports alloc" subcommand.
func runAlloc(env *command.Env, optProject ...string) error {
	var project string
	if len(optProject) > 1 {
		return env.Usagef("extra arguments after project: %q", optProject[1:])
	} else if len(optProject) == 1 {
		project = optProject[0]
	} else {
		project = petname.Generate(2, "-")
	}
	db, err := config.LoadDB(env)
	if err != nil {
		return err
	}
	pp, err := sdlib.AllocatePorts(db, project, nil)
	if err != nil {
		return err
	}
	fmt.Fprintf(env, "Allocated ports for %q\n", pp.Project)
	fmt.Printf("%s\t%d\t%d\n", pp.Project, pp.Dev, pp.Prod)
	return nil
}

// runList implements the "ports list" subcommand.
func runList(env *command.Env) error {
	db, err := config.LoadDB(env)
	if err != nil {
		return err
	}
	devBase, prodBase := sdlib.SettingsIPBases(db)

	tw := tablewriter.NewWriter(os.Stdout)
	tw.Header("Project", "Dev", "Dev IP", "Prod", "Prod IP")
	for _, pp := range sdlib.ListPorts(db) {
		if err := tw.Append([]string{
			pp.Project,
			strconv.Itoa(pp.Dev), ipOrDash(devBase, pp.Dev),
			strconv.Itoa(pp.Prod), ipOrDash(prodBase, pp.Prod),
		}); err != nil {
			return err
		}
	}
	return tw.Render()
}

func ipOrDash(base string, port int) string {
	if ip, ok := sdlib.IPFromPort(base, port); ok {
		return ip
	}
	return "-"
}
