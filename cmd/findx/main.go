// Package main provides the entry point for the findx CLI.
package main

import (
	"fmt"
	"os"

	"github.com/gaspardpetit/findx/cmd/findx/cmd"
	findxerrors "github.com/gaspardpetit/findx/internal/errors"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, findxerrors.FormatForCLI(err))
		os.Exit(1)
	}
}
