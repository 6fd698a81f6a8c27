package main

import (
	"os"

	"github.com/rustyeddy/optrade/cmd/optrade/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
