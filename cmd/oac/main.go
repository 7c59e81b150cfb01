package main

import (
	"os"

	"github.com/open330/oac/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(cli.ExitUnhandledError)
	}
	os.Exit(cli.ExitCode())
}
