package commands

import (
	"github.com/gossipnetworks/gossamer/src/config"
	"github.com/spf13/cobra"
)

var (
	_config = config.NewDefaultConfig()
)

//RootCmd is the root command for gossamer
var RootCmd = &cobra.Command{
	Use:              "gossamer",
	Short:            "gossamer cluster membership",
	TraverseChildren: true,
}
