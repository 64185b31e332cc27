package main

import (
	"os"

	"github.com/zonehub/zonehub/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
