package main

import (
	"os"

	"github.com/loom-build/loom/cmd"
	"github.com/loom-build/loom/term"
)

func main() {
	if err := cmd.Execute(); err != nil {
		term.Errorf("%v", err)
		os.Exit(1)
	}
}
