// Command qgateway runs the Anthropic-compatible gateway described in
// DESIGN.md / SPEC_FULL.md.
package main

import (
	"fmt"
	"os"

	"github.com/brightloop/qgateway/cli"
)

// version is overridden at build time via -ldflags.
var version = "dev"

func main() {
	app := cli.NewApp(version)
	if err := app.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
