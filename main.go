package main

import (
	"os"

	"github.com/picatz/dohconf/internal/cli"
)

func main() {
	if err := cli.CommandRoot.Execute(); err != nil {
		os.Exit(1)
	}
}
