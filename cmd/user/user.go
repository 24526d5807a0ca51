// Package user implements the user and permission management commands.
package user

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/subsona/subsona/internal/catalog"
	"github.com/subsona/subsona/internal/conf"
)

func Command(settings *conf.Settings) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage users and folder permissions",
	}
	cmd.AddCommand(addCommand(settings), grantCommand(settings), revokeCommand(settings))
	return cmd
}

func withStore(settings *conf.Settings, fn func(store catalog.Interface) error) error {
	store := catalog.New(settings.Database.Path)
	if err := store.Open(); err != nil {
		return err
	}
	defer store.Close()
	return fn(store)
}

func addCommand(settings *conf.Settings) *cobra.Command {
	return &cobra.Command{
		Use:   "add <name>",
		Short: "Create a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(settings, func(store catalog.Interface) error {
				u := &catalog.User{Name: args[0]}
				if err := store.UpsertUser(u); err != nil {
					return err
				}
				fmt.Printf("user %s created as %s\n", u.Name, u.ID)
				return nil
			})
		},
	}
}

func grantCommand(settings *conf.Settings) *cobra.Command {
	return &cobra.Command{
		Use:   "grant <user-id> <folder-id>",
		Short: "Allow a user to access a music folder",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(settings, func(store catalog.Interface) error {
				return store.GrantPermission(args[0], args[1])
			})
		},
	}
}

func revokeCommand(settings *conf.Settings) *cobra.Command {
	return &cobra.Command{
		Use:   "revoke <user-id> <folder-id>",
		Short: "Revoke a user's access to a music folder",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(settings, func(store catalog.Interface) error {
				return store.RevokePermission(args[0], args[1])
			})
		},
	}
}
