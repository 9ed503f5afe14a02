// Package main is the entry point for the carhal CLI.
//
// Usage:
//
//	carhal [flags] <command> [args]
//
// Commands:
//
//	play     - Play test tones on bus outputs
//	capture  - Record an input device to a raw file
//	call     - Set up and tear down a hands-free call
//	dump     - Print the device state
//	version  - Show version information
package main

import (
	"fmt"
	"os"

	"github.com/haivivi/carhal/cmd/carhal/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
