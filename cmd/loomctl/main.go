// Command loomctl is the engine's CLI: validate a workflow definition,
// run one to completion, or watch a directory while serving the status
// API (internal/cli.Execute).
package main

import (
	"log"
	"os"

	"github.com/loomwrk/loom/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		log.Printf("error: %v", err)
		os.Exit(1)
	}
}
