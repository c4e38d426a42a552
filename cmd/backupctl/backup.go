package main

import (
	"context"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"portfolio-admin-backend/internal/app"
	"portfolio-admin-backend/internal/models"
	"portfolio-admin-backend/internal/service"
)

func operatorActor() models.Actor {
	return models.Actor{UserID: "backupctl"}
}

func newBackupCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Create, list, restore and delete system backups",
	}
	cmd.AddCommand(newBackupCreateCmd(), newBackupListCmd(), newBackupRestoreCmd(), newBackupDeleteCmd())
	return cmd
}

func newBackupCreateCmd() *cobra.Command {
	var (
		backupType   string
		tables       []string
		includeMedia bool
		includeSys   bool
		description  string
	)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a backup",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCore(func(ctx context.Context, core *app.Core) error {
				backup, err := core.Services.Backups.CreateBackup(ctx, models.BackupType(backupType), service.BackupOptions{
					Tables:            tables,
					IncludeMedia:      includeMedia,
					IncludeSystemData: includeSys,
					Description:       description,
					Actor:             operatorActor(),
				})
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "created %s (%d bytes, sha256 %s)\n", backup.ID, backup.Size, backup.Checksum)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&backupType, "type", string(models.BackupTypeManual), "backup type: manual, scheduled or pre-update")
	cmd.Flags().StringSliceVar(&tables, "tables", nil, "tables to include, all content tables when empty")
	cmd.Flags().BoolVar(&includeMedia, "include-media", false, "include uploaded files")
	cmd.Flags().BoolVar(&includeSys, "include-system-data", false, "include settings, versions and audit events")
	cmd.Flags().StringVar(&description, "description", "", "free text description")
	return cmd
}

func newBackupListCmd() *cobra.Command {
	var (
		backupType string
		limit      int
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List backups, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCore(func(ctx context.Context, core *app.Core) error {
				backups, total, err := core.Services.Backups.ListBackups(0, limit, models.BackupType(backupType))
				if err != nil {
					return err
				}

				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "ID\tTYPE\tSTATUS\tSIZE\tCREATED\tTABLES")
				for _, backup := range backups {
					fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%s\n",
						backup.ID,
						backup.Type,
						backup.Status,
						backup.Size,
						backup.CreatedAt.Format("2006-01-02 15:04:05"),
						strings.Join(backup.Metadata.Tables, ","),
					)
				}
				if err := w.Flush(); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%d of %d backups\n", len(backups), total)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&backupType, "type", "", "filter by backup type")
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum number of backups to show")
	return cmd
}

func newBackupRestoreCmd() *cobra.Command {
	var (
		skipPreRestore bool
		skipIntegrity  bool
	)

	cmd := &cobra.Command{
		Use:   "restore <backup-id>",
		Short: "Restore the database from a backup",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCore(func(ctx context.Context, core *app.Core) error {
				result, err := core.Services.Backups.RestoreFromBackup(ctx, args[0], service.RestoreOptions{
					CreatePreRestoreBackup: !skipPreRestore,
					ValidateIntegrity:      !skipIntegrity,
					Actor:                  operatorActor(),
				})
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "restored %d records from %s\n", result.RestoredRecords, args[0])
				if result.PreRestoreBackup != "" {
					fmt.Fprintf(cmd.OutOrStdout(), "pre-restore backup: %s\n", result.PreRestoreBackup)
				}
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&skipPreRestore, "no-pre-restore-backup", false, "do not snapshot the current state first")
	cmd.Flags().BoolVar(&skipIntegrity, "skip-integrity-check", false, "restore without verifying the checksum")
	return cmd
}

func newBackupDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <backup-id>",
		Short: "Delete a backup and its payload",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCore(func(ctx context.Context, core *app.Core) error {
				if err := core.Services.Backups.DeleteBackup(ctx, args[0], operatorActor()); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", args[0])
				return nil
			})
		},
	}
}
