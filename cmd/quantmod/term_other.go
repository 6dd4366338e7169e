//go:build !linux

package main

func stderrIsTerminal() bool {
	return false
}
