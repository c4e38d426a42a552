package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"portfolio-admin-backend/internal/app"
	"portfolio-admin-backend/internal/service"
	"portfolio-admin-backend/pkg/utils"
)

func newExportCmd() *cobra.Command {
	var (
		tables       []string
		format       string
		compress     bool
		includeMedia bool
		includeSys   bool
		outDir       string
	)

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export content tables to a file",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCore(func(ctx context.Context, core *app.Core) error {
				artifact, err := core.Services.DataTransfer.Export(ctx, service.ExportOptions{
					Tables:            tables,
					IncludeMedia:      includeMedia,
					IncludeSystemData: includeSys,
					Compression:       compress,
					Format:            format,
					Actor:             operatorActor(),
				})
				if err != nil {
					return err
				}

				path := filepath.Join(outDir, artifact.Filename)
				if err := os.WriteFile(path, artifact.Data, 0o644); err != nil {
					return fmt.Errorf("failed to write export: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "wrote %d records to %s\n", artifact.Records, path)
				return nil
			})
		},
	}

	cmd.Flags().StringSliceVar(&tables, "tables", nil, "tables to export, all content tables when empty")
	cmd.Flags().StringVar(&format, "format", service.FormatJSON, "json, csv or zip")
	cmd.Flags().BoolVar(&compress, "compress", false, "gzip the JSON document")
	cmd.Flags().BoolVar(&includeMedia, "include-media", false, "include uploaded files (zip only)")
	cmd.Flags().BoolVar(&includeSys, "include-system-data", false, "include settings, versions and audit events")
	cmd.Flags().StringVarP(&outDir, "output", "o", ".", "directory for the export file")
	return cmd
}

func newSlugCmd() *cobra.Command {
	var existing []string

	cmd := &cobra.Command{
		Use:   "slug <text>",
		Short: "Print the slug generated for a title",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			slug := utils.GenerateSlug(args[0])
			if len(existing) > 0 {
				slug = utils.EnsureUniqueSlug(slug, existing)
			}
			fmt.Fprintln(cmd.OutOrStdout(), slug)
			return nil
		},
	}

	cmd.Flags().StringSliceVar(&existing, "existing", nil, "slugs already taken")
	return cmd
}
