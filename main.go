// The main package for the alcalorscraper executable.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/avillegas/alcalorscraper/cmd"
)

// main wires signal handling and defers everything else to the CLI.
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cmd.Execute(ctx); err != nil {
		os.Exit(1)
	}
}
