package cli

import (
	"fmt"
	"sort"
	"text/tabwriter"

	infrabackup "chatgate/internal/infrastructure/backup"
	"chatgate/pkg/backup"

	"github.com/spf13/cobra"
)

func newBackupCommand(a *app) *cobra.Command {
	var dir string

	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Export, inspect and restore store archives",
	}
	cmd.PersistentFlags().StringVar(&dir, "dir", "", "archive directory (default backup.dir)")

	tools := func() (*infrabackup.Exporter, *backup.Service, error) {
		if dir == "" {
			dir = a.cfg.Backup.Dir
		}
		storage, err := backup.NewFileStorage(dir)
		if err != nil {
			return nil, nil, err
		}
		archives := backup.NewService(storage, infrabackup.ArchiveVersion)
		return infrabackup.NewExporter(a.store, archives, a.log), archives, nil
	}

	cmd.AddCommand(
		newBackupCreateCommand(a, tools),
		newBackupListCommand(a, tools),
		newBackupShowCommand(a, tools),
		newBackupRestoreCommand(a, tools),
		newBackupPruneCommand(a, tools),
	)
	return cmd
}

type backupTools func() (*infrabackup.Exporter, *backup.Service, error)

func newBackupCreateCommand(a *app, tools backupTools) *cobra.Command {
	return &cobra.Command{
		Use:   "create",
		Short: "Write a snapshot of every user and room",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			exporter, _, err := tools()
			if err != nil {
				return err
			}
			name, archive, err := exporter.Backup(cmd.Context())
			if err != nil {
				return err
			}
			if a.jsonOutput {
				return a.printJSON(cmd.OutOrStdout(), map[string]interface{}{
					"name":   name,
					"counts": archive.Count(),
				})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created %s (%d records)\n", name, len(archive.Records))
			return nil
		},
	}
}

func newBackupListCommand(a *app, tools backupTools) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List archives, oldest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, archives, err := tools()
			if err != nil {
				return err
			}
			names, err := archives.List(cmd.Context())
			if err != nil {
				return err
			}
			if a.jsonOutput {
				if names == nil {
					names = []string{}
				}
				return a.printJSON(cmd.OutOrStdout(), names)
			}
			for _, n := range names {
				fmt.Fprintln(cmd.OutOrStdout(), n)
			}
			return nil
		},
	}
}

func newBackupShowCommand(a *app, tools backupTools) *cobra.Command {
	return &cobra.Command{
		Use:   "show NAME",
		Short: "Summarise an archive",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, archives, err := tools()
			if err != nil {
				return err
			}
			archive, err := archives.Load(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			counts := archive.Count()
			if a.jsonOutput {
				return a.printJSON(cmd.OutOrStdout(), map[string]interface{}{
					"version":   archive.Version,
					"timestamp": archive.Timestamp,
					"counts":    counts,
				})
			}

			kinds := make([]string, 0, len(counts))
			for k := range counts {
				kinds = append(kinds, k)
			}
			sort.Strings(kinds)

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintf(w, "taken\t%s\n", formatTime(archive.Timestamp))
			for _, k := range kinds {
				fmt.Fprintf(w, "%s\t%d\n", k, counts[k])
			}
			return w.Flush()
		},
	}
}

func newBackupRestoreCommand(a *app, tools backupTools) *cobra.Command {
	return &cobra.Command{
		Use:   "restore NAME",
		Short: "Load an archive into an empty store",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			exporter, _, err := tools()
			if err != nil {
				return err
			}
			n, err := exporter.Restore(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "restored %d records from %s\n", n, args[0])
			return nil
		},
	}
}

func newBackupPruneCommand(a *app, tools backupTools) *cobra.Command {
	var keep int

	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete all but the newest archives",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, archives, err := tools()
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("keep") {
				keep = a.cfg.Backup.Retain
			}
			deleted, err := archives.Prune(cmd.Context(), keep)
			if err != nil {
				return err
			}
			for _, n := range deleted {
				fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", n)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&keep, "keep", 0, "archives to keep (default backup.retain)")
	return cmd
}
