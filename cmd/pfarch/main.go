package main

import (
	"os"

	"github.com/pfarch/pfarch/cmd/pfarch/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
