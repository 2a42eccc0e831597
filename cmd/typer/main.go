// Package main is the entry point for typer. Without arguments it opens the
// terminal UI; see "typer --help" for the one-shot commands.
package main

import (
	"os"

	"github.com/codepaste/typer/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
