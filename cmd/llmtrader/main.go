package main

import (
	"os"

	"llmtrader/cmd/llmtrader/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
