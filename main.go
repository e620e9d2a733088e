// ABOUTME: Entry point for the subzero CLI, HTTP server, and MCP server
// ABOUTME: Hands off to the cobra command tree in the cli package
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/harperreed/subzero/cli"
)

const version = "0.1.0"

func main() {
	if err := cli.NewRootCommand(version).ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
