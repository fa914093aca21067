// Command bae runs the SMS assistant and its development environment.
package main

import (
	"fmt"
	"os"

	"github.com/jimshare/bae-ai/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
