package clipboard

import (
	"fmt"
	"os/exec"
	"strings"
)

// WriteString attempts to copy the given string to the system clipboard.
func WriteString(s string) error {
	cmd := exec.Command("pbcopy")
	cmd.Stdin = strings.NewReader(s)
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("copy to clipboard: %w", err)
	}
	return nil
}
