package sdlib

import (
	"bytes"
	"cmp"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/creachadair/mds/mdiff"
	"github.com/creachadair/mds/mstr"
	"github.com/creachadair/sealdb/sdcodec"
	"github.com/creachadair/sealdb/sddb"
	"golang.org/x/term"
	yaml "gopkg.in/yaml.v3"
)

var (
	// ErrNoChange is reported by Edit if the resulting value did not change.
	ErrNoChange = errors.New("input was not changed")

	// ErrUserReject is reported by Edit if the user rejected the changed file.
	ErrUserReject = errors.New("the user rejected the edits")
)

// An Editor runs an interactive edit of a file. The default editor runs the
// program named by $EDITOR (or vi) and confirms changes at the terminal.
type Editor struct {
	// Run, if non-nil, edits the file at path in place. If nil, the program
	// named by $EDITOR is run on the file.
	Run func(ctx context.Context, path string) error

	// Confirm, if non-nil, is shown the unified diff of the edit and reports
	// whether to keep it. If nil, the user is asked at the terminal.
	Confirm func(diff string) (bool, error)
}

// Edit invokes an editor with the specified object rendered as YAML.  When
// the editor exits, the user is prompted to confirm any changes.  If they do,
// the results are unmarshaled back into a new value, which is returned.
//
// If the edit did not change the input, Edit returns (value, ErrNoChange).
// If the user rejected the changes, Edit returns (value, ErrUserReject).
func Edit[T any](ctx context.Context, ed Editor, value T) (T, error) {
	var out T

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(3)
	if err := enc.Encode(value); err != nil {
		return out, fmt.Errorf("marshal value: %w", err)
	}

	// Use a temp directory so the name shown by the editor is stable.
	dir, err := os.MkdirTemp("", "sdedit*")
	if err != nil {
		return out, err
	}
	defer os.RemoveAll(dir)

	epath := filepath.Join(dir, "value.yaml")
	if err := os.WriteFile(epath, buf.Bytes(), 0600); err != nil {
		return out, err
	}
	run := ed.Run
	if run == nil {
		run = runEditor
	}
	if err := run(ctx, epath); err != nil {
		return out, fmt.Errorf("editor failed: %w", err)
	}

	edited, err := os.ReadFile(epath)
	if err != nil {
		return out, fmt.Errorf("read editor output: %w", err)
	}
	diff := mdiff.New(mstr.Lines(buf.String()), mstr.Lines(string(edited)))
	if len(diff.Chunks) == 0 {
		return value, ErrNoChange
	}

	var dbuf strings.Builder
	diff.AddContext(3).Unify().Format(&dbuf, mdiff.Unified, nil)
	confirm := ed.Confirm
	if confirm == nil {
		confirm = confirmTerminal
	}
	if ok, err := confirm(dbuf.String()); err != nil {
		return out, err
	} else if !ok {
		return value, ErrUserReject
	}

	err = yaml.Unmarshal(edited, &out)
	return out, err
}

// EditDocument edits doc as YAML with ed and returns the edited document.
// It returns the same errors as Edit.
func EditDocument(ctx context.Context, ed Editor, doc sddb.Document) (sddb.Document, error) {
	m, err := Edit(ctx, ed, sdcodec.DocumentToNative(doc))
	if err != nil {
		return doc, err
	}
	return sdcodec.DocumentFromNative(m)
}

func runEditor(ctx context.Context, path string) error {
	name := cmp.Or(os.Getenv("EDITOR"), "vi")
	cmd := exec.CommandContext(ctx, name, filepath.Base(path))
	cmd.Dir = filepath.Dir(path)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stderr
	cmd.Stderr = os.Stderr
	return cmd.Run()
}

// confirmTerminal shows diff on the controlling terminal and asks the user
// whether to keep the changes.
func confirmTerminal(diff string) (bool, error) {
	oldst, err := term.MakeRaw(int(os.Stdin.Fd()))
	if err != nil {
		return false, err
	}
	defer term.Restore(int(os.Stdin.Fd()), oldst)
	vt := term.NewTerminal(os.Stdin, "")
	io.WriteString(vt, diff)
	return askYesNo(vt, "▷ Keep changes? (y/n) ")
}

// askYesNo prompts on vt until the user answers yes or no.
func askYesNo(vt *term.Terminal, prompt string) (bool, error) {
	for {
		fmt.Fprint(vt, prompt)
		ln, err := vt.ReadLine()
		if err != nil {
			return false, err
		}
		switch strings.ToLower(ln) {
		case "y", "yes":
			return true, nil
		case "n", "no":
			return false, nil
		default:
			fmt.Fprintln(vt, "** Please enter y(es) or n(o)")
		}
	}
}
