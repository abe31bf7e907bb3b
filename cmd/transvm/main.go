// Package main is the entry point of the transvm command.
package main

import (
	"os"

	"github.com/leapstack-labs/transvm/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
