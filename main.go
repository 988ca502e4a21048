package main

import (
	"os"

	"github.com/pierreba/era/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
