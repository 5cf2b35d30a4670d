// Package main provides the forge-recipe command line tool.
//
// forge-recipe runs versioned browser automation recipes and recovers failed
// steps through a fallback ladder: cheap retries first, then healing memory,
// authoring patches and finally a human checkpoint. The inspection commands
// (classify, route, memory, patch, config) work without a browser.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

const version = "0.1.0"

func main() {
	ctx, cancel := context.WithCancel(context.Background())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		fmt.Fprintln(os.Stderr, "\nShutting down gracefully...")
		cancel()
	}()

	err := Execute(ctx)
	cancel()
	if err != nil {
		os.Exit(1)
	}
}
