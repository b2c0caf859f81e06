package main

import (
	"os"

	"github.com/shopsync-dev/shopsync/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
