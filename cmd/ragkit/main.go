// Command ragkit is the entry point for the ragkit documentation assistant.
// It provides a CLI interface (via Cobra) and an HTTP server that streams
// answers with their grounding sources over ND-JSON.
package main

import (
	"fmt"
	"os"

	"github.com/ragkit-dev/ragkit/cmd/ragkit/commands"
)

func main() {
	if err := commands.NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
