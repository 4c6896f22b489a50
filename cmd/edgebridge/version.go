package main

import (
	"runtime"

	"github.com/spf13/cobra"

	"github.com/awantoch/edgebridge/utils"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the edgebridge version",
		Run: func(cmd *cobra.Command, args []string) {
			utils.User("edgebridge %s (%s %s/%s)", version, runtime.Version(), runtime.GOOS, runtime.GOARCH)
		},
	}
}
