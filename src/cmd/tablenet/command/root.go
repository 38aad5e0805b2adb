package command

import (
	"github.com/spf13/cobra"
)

var (
	_config = NewDefaultCLIConfig()
)

//RootCmd is the root command for tablenet
var RootCmd = &cobra.Command{
	Use:              "tablenet",
	Short:            "Shared game tables over the network",
	TraverseChildren: true,
}
