// Package stream implements the song retrieval command.
package stream

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/subsona/subsona/internal/catalog"
	"github.com/subsona/subsona/internal/conf"
	"github.com/subsona/subsona/internal/format"
	"github.com/subsona/subsona/internal/fsys"
	"github.com/subsona/subsona/internal/retrieve"
)

func Command(settings *conf.Settings) *cobra.Command {
	var (
		output     string
		targetName string
		maxBitRate int
		timeOffset int
	)

	cmd := &cobra.Command{
		Use:   "stream <user-id> <song-id>",
		Short: "Retrieve a song's audio, optionally transcoded",
		Long:  "Fetch a song as the given user and write the bytes to a file, transcoding when a target format is requested.",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			store := catalog.New(settings.Database.Path)
			if err := store.Open(); err != nil {
				return err
			}
			defer store.Close()

			service := retrieve.NewService(
				store,
				fsys.NewRegistry(settings.S3),
				retrieve.NewFFmpeg(settings.Transcode),
				settings.Transcode,
				settings.CoverArt,
			)

			var (
				body *retrieve.Stream
				err  error
			)
			if targetName == "" {
				body, err = service.StreamRaw(cmd.Context(), args[0], args[1], "")
			} else {
				target, ok := format.TranscodeFromName(targetName)
				if !ok {
					return fmt.Errorf("unsupported transcode format %q", targetName)
				}
				body, _, err = service.StreamTranscode(cmd.Context(), args[0], args[1], target, maxBitRate, timeOffset, "")
			}
			if err != nil {
				return err
			}
			defer body.Close()

			out, err := os.Create(output)
			if err != nil {
				return err
			}
			defer out.Close()

			written, err := io.Copy(out, body)
			if err != nil {
				return err
			}
			fmt.Printf("wrote %d bytes of %s to %s\n", written, body.Property.MIME, output)
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "Destination file")
	cmd.Flags().StringVarP(&targetName, "format", "f", "", "Transcode target format (aac, flac, mp3, opus, wav)")
	cmd.Flags().IntVar(&maxBitRate, "max-bitrate", 0, "Transcode bitrate cap in kbit/s")
	cmd.Flags().IntVar(&timeOffset, "offset", 0, "Start offset in seconds when transcoding")
	_ = cmd.MarkFlagRequired("output")
	return cmd
}
