//go:build !linux && !darwin

package clipboard

import "errors"

// WriteString reports an error, since this platform has no supported
// clipboard.
func WriteString(string) error { return errors.New("clipboard is not supported on this platform") }
