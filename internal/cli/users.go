package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newUsersCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "users",
		Short: "Manage user accounts",
	}
	cmd.AddCommand(newUsersRegisterCommand(a))
	return cmd
}

func newUsersRegisterCommand(a *app) *cobra.Command {
	var login, name, password string

	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create a user account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			user, err := a.auth.Register(cmd.Context(), login, name, password)
			if err != nil {
				return err
			}
			if a.jsonOutput {
				return a.printJSON(cmd.OutOrStdout(), user.Identity())
			}
			fmt.Fprintf(cmd.OutOrStdout(), "registered %s (%s) as %s\n", user.DisplayName, user.Login, user.ID)
			return nil
		},
	}

	cmd.Flags().StringVar(&login, "login", "", "login name or email")
	cmd.Flags().StringVar(&name, "name", "", "display name")
	cmd.Flags().StringVar(&password, "password", "", "password")
	_ = cmd.MarkFlagRequired("login")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}
