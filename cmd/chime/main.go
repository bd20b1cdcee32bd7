package main

import (
	"os"

	"github.com/zalrik/chime/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
