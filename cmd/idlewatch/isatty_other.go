//go:build !linux && !darwin
// +build !linux,!darwin

package main

// isatty reports false where the terminal check is not implemented, which
// disables the status line.
func isatty(uintptr) bool {
	return false
}
