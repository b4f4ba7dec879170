package main

import (
	"os"

	"keyvault/cmd/keyvault/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
