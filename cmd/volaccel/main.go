package main

import (
	"os"

	"github.com/rustyeddy/volaccel/cmd/volaccel/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
