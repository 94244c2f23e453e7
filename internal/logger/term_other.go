//go:build !linux

package logger

import "os"

// IsTerminal reports whether f is attached to a terminal.
func IsTerminal(f *os.File) bool {
	st, err := f.Stat()
	if err != nil {
		return false
	}
	return (st.Mode() & os.ModeCharDevice) != 0
}
