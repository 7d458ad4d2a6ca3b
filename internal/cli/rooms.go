package cli

import (
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"chatgate/internal/core/domain"
	"chatgate/internal/core/services"

	"github.com/spf13/cobra"
)

func newRoomsCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rooms",
		Short: "List and create rooms",
	}
	cmd.AddCommand(newRoomsListCommand(a), newRoomsCreateCommand(a))
	return cmd
}

func newRoomsListCommand(a *app) *cobra.Command {
	var user, filter string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List rooms, or only those a user may enter with --user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			var rooms []domain.Room
			if user != "" {
				views, err := a.rooms.ListVisible(ctx, domain.UserID(user), filter)
				if err != nil {
					return err
				}
				for _, v := range views {
					rooms = append(rooms, v.Room)
				}
			} else {
				all, err := a.rooms.ListRooms(ctx)
				if err != nil {
					return err
				}
				rooms = services.FilterRooms(all, filter)
			}

			if a.jsonOutput {
				type row struct {
					domain.Room
					Roles []domain.RoleName `json:"roles"`
				}
				rows := make([]row, 0, len(rooms))
				for _, r := range rooms {
					rows = append(rows, row{Room: r, Roles: r.RoleList()})
				}
				return a.printJSON(out, rows)
			}

			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tNAME\tROLES\tCREATED")
			for _, r := range rooms {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", r.ID, r.Name, joinRoles(r.RoleList()), formatTime(r.CreatedAt))
			}
			return tw.Flush()
		},
	}

	cmd.Flags().StringVar(&user, "user", "", "only rooms this user id may enter")
	cmd.Flags().StringVar(&filter, "filter", "", "case-insensitive name filter")
	return cmd
}

func newRoomsCreateCommand(a *app) *cobra.Command {
	var name, creator string
	var roles []string
	var requireHeld bool

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a room tagged with one or more roles",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			tagged := make([]domain.RoleName, 0, len(roles))
			for _, r := range roles {
				tagged = append(tagged, domain.RoleName(r))
			}

			rooms := a.rooms
			if requireHeld {
				if creator == "" {
					return fmt.Errorf("--require-held needs --creator")
				}
				rooms = services.NewRoomService(a.store, nil, a.log, services.RequireHeldRoles())
			}

			room, err := rooms.CreateRoom(cmd.Context(), domain.UserID(creator), name, tagged)
			if err != nil {
				return err
			}

			if a.jsonOutput {
				return a.printJSON(cmd.OutOrStdout(), map[string]interface{}{
					"room":  room,
					"roles": room.RoleList(),
				})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created room %s (%s) with roles %s\n", room.Name, room.ID, joinRoles(room.RoleList()))
			return nil
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "room name")
	cmd.Flags().StringSliceVar(&roles, "role", nil, "role allowed into the room (repeatable)")
	cmd.Flags().StringVar(&creator, "creator", "", "user id recorded as the creator")
	cmd.Flags().BoolVar(&requireHeld, "require-held", false, "refuse roles the creator does not hold")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("role")
	return cmd
}

func joinRoles(roles []domain.RoleName) string {
	parts := make([]string, len(roles))
	for i, r := range roles {
		parts[i] = string(r)
	}
	return strings.Join(parts, ",")
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format(time.DateTime)
}
