// Command edgelab generates, validates and promotes opening-range trading
// edges. Every subcommand prints its result as JSON.
package main

import (
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
