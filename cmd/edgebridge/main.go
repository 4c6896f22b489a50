package main

import (
	"os"

	"github.com/joho/godotenv"

	"github.com/awantoch/edgebridge/utils"
)

func main() {
	// Load .env as early as possible!
	_ = godotenv.Load()

	rootCmd := NewRootCmd()
	err := rootCmd.Execute()
	utils.Sync()
	if err != nil {
		exit(1)
	}
}

var exit = os.Exit
