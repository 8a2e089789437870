package main

import (
	"os"

	"github.com/sosgrid/sosd/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
