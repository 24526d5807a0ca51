package cmd

import (
	"github.com/spf13/cobra"

	"github.com/subsona/subsona/cmd/artist"
	"github.com/subsona/subsona/cmd/folder"
	"github.com/subsona/subsona/cmd/scan"
	"github.com/subsona/subsona/cmd/serve"
	"github.com/subsona/subsona/cmd/stream"
	"github.com/subsona/subsona/cmd/user"
	"github.com/subsona/subsona/internal/conf"
)

// RootCommand assembles the subsona CLI.
func RootCommand(settings *conf.Settings) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "subsona",
		Short: "Subsona music library engine",
		Long:  "Manage music folders, users and library scans for a subsona deployment.",
	}

	rootCmd.PersistentFlags().BoolVarP(&settings.Debug, "debug", "d", settings.Debug, "Enable debug output")

	rootCmd.AddCommand(
		artist.Command(settings),
		folder.Command(settings),
		scan.Command(settings),
		serve.Command(settings),
		stream.Command(settings),
		user.Command(settings),
	)
	return rootCmd
}
