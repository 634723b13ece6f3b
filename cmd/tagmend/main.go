// Package main is the entry point for the tagmend CLI.
package main

import (
	"os"

	"github.com/jmylchreest/tagmend/cmd/tagmend/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
