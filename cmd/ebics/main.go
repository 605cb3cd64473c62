package main

import (
	"os"

	"github.com/sirosfoundation/go-ebics/cmd/ebics/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
