// Package clipboard copies generated secrets to the system clipboard, so
// that they need not be printed to the terminal.
package clipboard
