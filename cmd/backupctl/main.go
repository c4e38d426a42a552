package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"portfolio-admin-backend/internal/app"
	"portfolio-admin-backend/internal/config"
	"portfolio-admin-backend/pkg/logger"
	"portfolio-admin-backend/pkg/validator"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "backupctl",
		Short:         "Operator tool for portfolio backups and data exports",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logger.Init()
			logger.Configure("warn", false)
			_ = godotenv.Load()
			validator.Init()
		},
	}

	root.AddCommand(newBackupCmd(), newExportCmd(), newSlugCmd())
	return root
}

// withCore opens the shared wiring for the duration of fn.
func withCore(fn func(ctx context.Context, core *app.Core) error) error {
	core, err := app.NewCore(config.New())
	if err != nil {
		return err
	}

	ctx := context.Background()
	runErr := fn(ctx, core)

	closeCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := core.Close(closeCtx); err != nil && runErr == nil {
		runErr = err
	}
	return runErr
}
