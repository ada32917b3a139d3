// Package main is the entry point for the erpsync binary.
package main

import (
	"os"

	"erpsync/pkg/cli"
)

func main() {
	os.Exit(cli.Execute())
}
