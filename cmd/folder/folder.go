// Package folder implements the music folder management commands.
package folder

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/subsona/subsona/internal/catalog"
	"github.com/subsona/subsona/internal/conf"
	"github.com/subsona/subsona/internal/fsys"
)

func Command(settings *conf.Settings) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "folder",
		Short: "Manage music folders",
	}
	cmd.AddCommand(addCommand(settings), listCommand(settings),
		accessCommand(settings, "enable", true), accessCommand(settings, "disable", false))
	return cmd
}

func accessCommand(settings *conf.Settings, verb string, allow bool) *cobra.Command {
	return &cobra.Command{
		Use:   verb + " <folder-id>",
		Short: strings.ToUpper(verb[:1]) + verb[1:] + " access to a music folder for all users",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store := catalog.New(settings.Database.Path)
			if err := store.Open(); err != nil {
				return err
			}
			defer store.Close()
			return store.SetFolderAccess(args[0], allow)
		},
	}
}

func addCommand(settings *conf.Settings) *cobra.Command {
	var backend string
	cmd := &cobra.Command{
		Use:   "add <name> <path>",
		Short: "Register a music folder",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			store := catalog.New(settings.Database.Path)
			if err := store.Open(); err != nil {
				return err
			}
			defer store.Close()

			registry := fsys.NewRegistry(settings.S3)
			fs, err := registry.For(cmd.Context(), fsys.Backend(backend))
			if err != nil {
				return err
			}
			if err := fs.CheckFolder(cmd.Context(), args[1]); err != nil {
				return err
			}

			folder := &catalog.MusicFolder{Name: args[0], Path: args[1], Backend: backend, AllowAccess: true}
			if err := store.UpsertMusicFolder(folder); err != nil {
				return err
			}
			fmt.Printf("folder %s registered as %s\n", folder.Name, folder.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&backend, "backend", string(fsys.BackendLocal), "Storage backend (local or s3)")
	return cmd
}

func listCommand(settings *conf.Settings) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List registered music folders",
		RunE: func(cmd *cobra.Command, args []string) error {
			store := catalog.New(settings.Database.Path)
			if err := store.Open(); err != nil {
				return err
			}
			defer store.Close()

			folders, err := store.ListMusicFolders()
			if err != nil {
				return err
			}
			for _, folder := range folders {
				fmt.Printf("%s\t%s\t%s\t%s\n", folder.ID, folder.Name, folder.Backend, folder.Path)
			}
			return nil
		},
	}
}
