package main

import (
	"fmt"
	"os"

	"github.com/kestrelops/jitgate/cmd/jitgate/commands"
)

func main() {
	if err := commands.NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
