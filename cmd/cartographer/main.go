// Command cartographer is the crawl's process entrypoint: a thin
// wrapper that delegates the entire command surface to internal/cli and
// exits with whatever code the crawl reached (spec.md §6).
package main

import (
	"os"

	"github.com/cartographer/cartographer/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
