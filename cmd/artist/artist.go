// Package artist implements the artist enrichment command.
package artist

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/subsona/subsona/internal/catalog"
	"github.com/subsona/subsona/internal/conf"
	"github.com/subsona/subsona/internal/enrich"
)

func Command(settings *conf.Settings) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "artist",
		Short: "Inspect and enrich catalog artists",
	}
	cmd.AddCommand(infoCommand(settings))
	return cmd
}

func infoCommand(settings *conf.Settings) *cobra.Command {
	var refresh bool

	cmd := &cobra.Command{
		Use:   "info <artist-id>",
		Short: "Show an artist's biography and image, fetching it on first use",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !settings.LastFM.Enabled {
				return fmt.Errorf("artist enrichment is disabled; set lastfm.enabled and lastfm.key")
			}

			store := catalog.New(settings.Database.Path)
			if err := store.Open(); err != nil {
				return err
			}
			defer store.Close()

			enricher := enrich.NewEnricher(store, enrich.NewLastFM(settings.LastFM))

			var (
				info *catalog.ArtistInfo
				err  error
			)
			if refresh {
				info, err = enricher.EnrichArtist(cmd.Context(), args[0])
			} else {
				info, err = enricher.ArtistInfo(cmd.Context(), args[0])
			}
			if err != nil {
				return err
			}

			if info.MbzID != nil {
				fmt.Printf("musicbrainz: %s\n", *info.MbzID)
			}
			if info.ImageURL != "" {
				fmt.Printf("image: %s\n", info.ImageURL)
			}
			if info.Biography != "" {
				fmt.Printf("\n%s\n", info.Biography)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&refresh, "refresh", false, "Fetch fresh data even when stored info exists")
	return cmd
}
