package main

import (
	"os"

	"github.com/eja/tazlink/internal/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
