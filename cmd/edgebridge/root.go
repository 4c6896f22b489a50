package main

import (
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/awantoch/edgebridge/config"
	"github.com/awantoch/edgebridge/constants"
	"github.com/awantoch/edgebridge/utils"
)

var (
	configPath string
	debug      bool
)

// NewRootCmd creates the root 'edgebridge' command with persistent flags and subcommands.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:          "edgebridge",
		Short:        "Streaming request/response bridge for Vercel and net/http",
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", defaultConfigPath(), "Path to edgebridge config (JSON or YAML)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logs")
	rootCmd.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		// Load environment variables from .env file, if present
		_ = godotenv.Load()
		applyDebug()
	}

	rootCmd.AddCommand(newServeCmd(), newVersionCmd())
	return rootCmd
}

func defaultConfigPath() string {
	if p := os.Getenv(constants.EnvConfigPath); p != "" {
		return p
	}
	return config.DefaultConfigPath
}

func applyDebug() {
	if debug || os.Getenv(constants.EnvDebug) != "" {
		utils.SetMode("debug")
	}
}
