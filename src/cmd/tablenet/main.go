package main

import (
	"os"

	cmd "github.com/mosaicnetworks/tablenet/src/cmd/tablenet/command"
)

func main() {
	rootCmd := cmd.RootCmd

	rootCmd.AddCommand(
		cmd.NewHostCmd(),
		cmd.NewJoinCmd(),
		cmd.VersionCmd,
	)

	//Do not print usage when error occurs
	rootCmd.SilenceUsage = true

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
