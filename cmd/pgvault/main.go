// Package main is the entry point for pgvault.
package main

import (
	"fmt"
	"os"

	"github.com/tradeops/pgvault/internal/domain"
)

func main() {
	if err := Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(domain.ExitCodeFor(err))
	}
}
