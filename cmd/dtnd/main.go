package main

import (
	"fmt"
	"os"

	"github.com/go-dtn/upcn/cmd/dtnd/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "dtnd: %v\n", err)
		os.Exit(1)
	}
}
