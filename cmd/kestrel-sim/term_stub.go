//go:build !linux
// +build !linux

package main

import "errors"

// rawMode is only implemented for Linux terminals.
func rawMode() (func(), error) {
	return nil, errors.New("raw mode not supported on this platform")
}
