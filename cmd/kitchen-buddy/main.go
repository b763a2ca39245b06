// Package main provides the kitchen-buddy voice server and test client.
//
// Usage:
//
//	kitchen-buddy [flags] <command> [args]
//
// Commands:
//
//	serve  - Run the WebSocket voice server
//	talk   - Send a recorded utterance to a running server
//
// Configuration:
//
//	Settings come from an optional YAML file (--config), a .env file in the
//	working directory, and environment variables such as GEMINI_API_KEY.
package main

import (
	"fmt"
	"os"

	"github.com/teslashibe/kitchen-buddy/cmd/kitchen-buddy/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
