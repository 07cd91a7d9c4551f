package cmduser

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/creachadair/command"
	"github.com/creachadair/flax"
	"github.com/creachadair/mds/value"
	"github.com/creachadair/sealdb/clipboard"
	"github.com/creachadair/sealdb/cmd/sd/config"
	"github.com/creachadair/sealdb/sddb"
	"github.com/creachadair/sealdb/sdlib"
	"github.com/creachadair/sealdb/wordhash"
	"github.com/dustin/go-humanize"
	"github.com/olekukonko/tablewriter"
)

var Command = &command.C{
	Name: "user",
	Help: "Commands to manage user accounts and sessions.",

	Commands: []*command.C{
		{
			Name:  "add",
			Usage: "<email>",
			Help: `Add a user account.

By default the user is prompted for the new password. Use --random to
generate one instead; it is printed to stdout, or with --copy sent to the
clipboard while a short checksum is printed. The first user added is an
admin unless --role is given.`,
			SetFlags: command.Flags(flax.MustBind, &addFlags),
			Run:      command.Adapt(runAdd),
		},
		{
			Name: "list",
			Help: "List user accounts.",
			Run:  command.Adapt(runList),
		},
		{
			Name:  "login",
			Usage: "<email>",
			Help:  "Check the password of a user and print a new session token.",
			Run:   command.Adapt(runLogin),
		},
		{
			Name:  "check",
			Usage: "<token>",
			Help:  "Print the user for a session token, if the session is valid.",
			Run:   command.Adapt(runCheck),
		},
		{
			Name:  "logout",
			Usage: "<token>",
			Help:  "End the session for a token.",
			Run:   command.Adapt(runLogout),
		},
	},
}

var addFlags struct {
	Role    string `flag:"role,User role (admin or user)"`
	Random  int    `flag:"random,Generate a random password of this length"`
	Symbols bool   `flag:"symbols,Include punctuation in a random password"`
	Copy    bool   `flag:"copy,Copy a random password to the clipboard"`
}

// runAdd implements the "user add" subcommand.
func runAdd(env *command.Env, email string) error {
	if addFlags.Role != "" && !sdlib.ValidRole(addFlags.Role) {
		return env.Usagef("invalid role %q", addFlags.Role)
	} else if addFlags.Copy && addFlags.Random <= 0 {
		return env.Usagef("--copy requires --random")
	}
	db, err := config.LoadDB(env)
	if err != nil {
		return err
	}

	var pw string
	if addFlags.Random > 0 {
		cs := value.Cond(addFlags.Symbols, sdlib.AllChars, sdlib.Letters|sdlib.Digits)
		pw, err = sdlib.RandomChars(addFlags.Random, cs)
	} else {
		pw, err = sdlib.ConfirmPassphrase("User password: ")
	}
	if err != nil {
		return err
	}

	id, err := sdlib.Accounts{DB: db}.AddUser(email, pw, addFlags.Role)
	if err != nil {
		return err
	}
	user, _ := db.FindOne(sddb.Users, id)
	role, _ := user.Str("role")
	fmt.Fprintf(env, "Added %s %q (%s)\n", role, email, id)

	if addFlags.Random > 0 {
		if addFlags.Copy {
			if err := clipboard.WriteString(pw); err != nil {
				return err
			}
			pw = wordhash.Text(pw)
		}
		fmt.Println(pw)
	}
	return nil
}

// runList implements the "user list" subcommand.
func runList(env *command.Env) error {
	db, err := config.LoadDB(env)
	if err != nil {
		return err
	}
	tw := tablewriter.NewWriter(os.Stdout)
	tw.Header("ID", "Email", "Role", "Created")
	for _, u := range db.FindAll(sddb.Users) {
		id, _ := u.Str(sddb.FieldID)
		email, _ := u.Str("email")
		role, _ := u.Str("role")
		created := "-"
		if ts, ok := u.Int(sddb.FieldCreated); ok {
			created = humanize.Time(time.Unix(ts, 0))
		}
		if err := tw.Append([]string{id, email, role, created}); err != nil {
			return err
		}
	}
	return tw.Render()
}

// runLogin implements the "user login" subcommand.
func runLogin(env *command.Env, email string) error {
	db, err := config.LoadDB(env)
	if err != nil {
		return err
	}
	pw, err := sdlib.GetPassphrase("Password for " + email + ": ")
	if err != nil {
		return err
	}
	sess, err := sdlib.Accounts{DB: db}.Login(email, pw)
	if err != nil {
		return err
	}
	fmt.Fprintf(env, "Session for %s expires %s\n", sess.UserID, sess.Expires.Format(time.RFC3339))
	fmt.Println(sess.Token)
	return nil
}

// runCheck implements the "user check" subcommand.
func runCheck(env *command.Env, token string) error {
	db, err := config.LoadDB(env)
	if err != nil {
		return err
	}
	accts := sdlib.Accounts{DB: db}
	user, ok := accts.GetUser(token)
	if !ok {
		return errors.New("invalid or expired session")
	}
	email, _ := user.Str("email")
	role, _ := user.Str("role")
	id, _ := user.Str(sddb.FieldID)
	fmt.Printf("%s\t%s\t%s\n", id, email, role)
	return nil
}

// runLogout implements the "user logout" subcommand.
func runLogout(env *command.Env, token string) error {
	db, err := config.LoadDB(env)
	if err != nil {
		return err
	}
	if !(sdlib.Accounts{DB: db}).Logout(token) {
		return errors.New("no such session")
	}
	fmt.Fprintln(env, "Logged out")
	return nil
}
