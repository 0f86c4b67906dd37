// Package main is the entry point for the posintel application
package main

import (
	"github.com/ethpandaops/posintel/cmd"
)

func main() {
	cmd.Execute()
}
