// Command stellarwork runs the StellarWork payment service and its tools.
//
// Usage:
//
//	stellarwork serve                 # HTTP API (and /metrics)
//	stellarwork mcp --stdio           # MCP tools over stdin/stdout
//	stellarwork balance G...          # native balance of an account
//	stellarwork quote 7 --hours 2.5   # price a freelancer listing
//	stellarwork pay 7 --hours 2.5     # pay a listing with the configured agent
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
