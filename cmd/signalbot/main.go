package main

import (
	"os"

	"signalbot/cmd/signalbot/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
