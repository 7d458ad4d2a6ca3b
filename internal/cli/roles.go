package cli

import (
	"fmt"

	"chatgate/internal/core/domain"

	"github.com/spf13/cobra"
)

func newRolesCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "roles",
		Short: "Manage user roles",
	}
	cmd.AddCommand(newRolesAssignCommand(a), newRolesListCommand(a))
	return cmd
}

func newRolesAssignCommand(a *app) *cobra.Command {
	var user, role string

	cmd := &cobra.Command{
		Use:   "assign",
		Short: "Grant a role to a user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.auth.AssignRole(cmd.Context(), domain.UserID(user), domain.RoleName(role)); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "assigned role %q to %s\n", role, user)
			return nil
		},
	}

	cmd.Flags().StringVar(&user, "user", "", "user id")
	cmd.Flags().StringVar(&role, "role", "", "role name")
	_ = cmd.MarkFlagRequired("user")
	_ = cmd.MarkFlagRequired("role")
	return cmd
}

func newRolesListCommand(a *app) *cobra.Command {
	var user string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "Show a user's effective roles",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			roles, err := a.rooms.UserRoles(cmd.Context(), domain.UserID(user))
			if err != nil {
				return err
			}
			if a.jsonOutput {
				return a.printJSON(cmd.OutOrStdout(), roles.Sorted())
			}
			for _, r := range roles.Sorted() {
				fmt.Fprintln(cmd.OutOrStdout(), r)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&user, "user", "", "user id")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}
