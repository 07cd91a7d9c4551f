package clipboard

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
)

// WriteString attempts to copy the given string to the system clipboard.
// It uses wl-copy under Wayland and xsel under X11.
func WriteString(s string) error {
	var cmd *exec.Cmd
	switch {
	case os.Getenv("WAYLAND_DISPLAY") != "":
		cmd = exec.Command("wl-copy")
	case os.Getenv("DISPLAY") != "":
		cmd = exec.Command("xsel", "--clipboard", "--input")
	default:
		return errors.New("unable to copy to clipboard (no display)")
	}
	cmd.Stdin = strings.NewReader(s)
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("copy to clipboard: %w", err)
	}
	return nil
}
