// Package splicecmder
package splicecmder

import (
	"github.com/spf13/cobra"

	configcmder "github.com/papercomputeco/splice/cmd/splice/config"
	reportcmder "github.com/papercomputeco/splice/cmd/splice/report"
	servecmder "github.com/papercomputeco/splice/cmd/splice/serve"
	tokencmder "github.com/papercomputeco/splice/cmd/splice/token"
	versioncmder "github.com/papercomputeco/splice/cmd/version"
)

const spliceLongDesc string = `Splice reconstructs agent conversations from captured API traffic.

Run services using:
  splice serve     Run the capture proxy
  splice report    Merge a capture log into conversations
  splice token     Extract an agent's bearer token`

const spliceShortDesc string = "Splice - Agent Traffic Reconstruction"

func NewSpliceCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "splice",
		Short: spliceShortDesc,
		Long:  spliceLongDesc,
	}

	// Global flags
	cmd.PersistentFlags().BoolP("debug", "d", false, "Enable debug logging")
	cmd.PersistentFlags().String("config-dir", "", "Override the .splice/ directory location")

	// Add subcommands
	cmd.AddCommand(servecmder.NewServeCmd())
	cmd.AddCommand(reportcmder.NewReportCmd())
	cmd.AddCommand(tokencmder.NewTokenCmd())
	cmd.AddCommand(configcmder.NewConfigCmd())
	cmd.AddCommand(versioncmder.NewVersionCmd())

	return cmd
}
