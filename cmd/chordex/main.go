// Package main provides the entry point for the chordex CLI.
package main

import (
	"os"

	"github.com/chordex/chordex/cmd/chordex/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
