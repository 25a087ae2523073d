package main

import (
	"os"

	"github.com/TheAlpha16/mediator-go/cmd/mediator/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
