// Package scan implements the library scan command.
package scan

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/subsona/subsona/internal/blobstore"
	"github.com/subsona/subsona/internal/catalog"
	"github.com/subsona/subsona/internal/conf"
	"github.com/subsona/subsona/internal/fsys"
	"github.com/subsona/subsona/internal/metatag"
	"github.com/subsona/subsona/internal/scanner"
)

func Command(settings *conf.Settings) *cobra.Command {
	return &cobra.Command{
		Use:   "scan <folder-name>",
		Short: "Run a full scan of a music folder",
		Long:  "Walk a music folder, reconcile the catalog with its current content and reap songs whose files are gone.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store := catalog.New(settings.Database.Path)
			if err := store.Open(); err != nil {
				return err
			}
			defer store.Close()

			folder, err := folderByName(store, args[0])
			if err != nil {
				return err
			}

			var covers *blobstore.Store
			if settings.CoverArt.Dir != "" {
				covers = blobstore.New(settings.CoverArt.Dir)
			}
			sc := scanner.New(
				store,
				fsys.NewRegistry(settings.S3),
				metatag.NewExtractor(metatag.DefaultConfig()),
				metatag.NewProber(""),
				covers,
				settings.Scan,
				settings.Index,
			)
			result, err := sc.ScanFolder(cmd.Context(), folder.ID)
			if err != nil {
				return err
			}
			fmt.Printf("scanned %d, upserted %d, deleted %d, errors %d\n",
				result.Scanned, result.Upserted, result.Deleted, result.Errors)
			return nil
		},
	}
}

func folderByName(store catalog.Interface, name string) (*catalog.MusicFolder, error) {
	folders, err := store.ListMusicFolders()
	if err != nil {
		return nil, err
	}
	for i := range folders {
		if folders[i].Name == name {
			return &folders[i], nil
		}
	}
	return nil, fmt.Errorf("no music folder named %q", name)
}
