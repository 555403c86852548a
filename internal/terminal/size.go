// Package terminal provides small helpers for querying the terminal the
// frontend runs in.
package terminal

import (
	"os"

	"golang.org/x/term"
)

// Size returns the terminal dimensions in columns and rows. When stdout is
// not a terminal or the size cannot be read, it falls back to 80x24, the
// same default the backend assumes.
func Size() (cols, rows int) {
	if w, h, err := term.GetSize(int(os.Stdout.Fd())); err == nil && w > 0 && h > 0 {
		return w, h
	}
	return 80, 24
}
