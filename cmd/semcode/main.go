// Package main provides the entry point for the semcode CLI.
package main

import (
	"os"

	"github.com/Luiz-Frias/semcode/cmd/semcode/cmd"
)

func main() {
	os.Exit(cmd.Execute())
}
