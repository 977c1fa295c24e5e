// Pyxis - incremental code intelligence for Odoo-style Python workspaces.
//
// Pyxis builds a workspace-wide symbol graph from Python modules and
// keeps it fresh while files change, answering definition, reference
// and diagnostic queries over a CLI or MCP server.
package main

import (
	"fmt"
	"os"

	"github.com/Benny93/pyxis-go/cmd"
)

func main() {
	cli := cmd.NewCLI()

	if err := cli.Execute(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
