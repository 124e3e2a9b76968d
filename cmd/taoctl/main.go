// Package main is the entry point for the taoctl application.
package main

import (
	"os"

	"github.com/jmylchreest/tao/cmd/taoctl/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
