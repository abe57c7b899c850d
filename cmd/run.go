package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"xeroexport/internal/executor"
	"xeroexport/internal/logger"
	"xeroexport/internal/store"
	"xeroexport/internal/xero"
	"xeroexport/pkg/services"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Create the documents of an export in Xero",
	Long: `Create the invoice, credit note, payments, bank transfers and fee
transactions of an export in Xero.

Completed steps are read from the state store and skipped, so the command can
be repeated after a failure.

Required environment variables:
  XERO_ACCESS_TOKEN - OAuth2 access token
  XERO_TENANT_ID    - Xero organisation (tenant) ID`,
	Example: `  # Run every step of an export
  xeroexport run --export export-1234.json

  # Run a single step
  xeroexport run --export export-1234.json --task create_invoice`,
	RunE: runExport,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().String("task", "", fmt.Sprintf("Run a single task %v", executor.TaskNames()))
}

func runExport(cmd *cobra.Command, args []string) error {
	export, err := loadExport(cmd)
	if err != nil {
		return err
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := cfg.ValidateXero(); err != nil {
		return err
	}

	task, _ := cmd.Flags().GetString("task")
	reference := export.Reference()
	log := logger.WithExport("run", reference)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client, err := xero.NewClient(cfg.XeroConfig(), xero.WithLogger(logger.WithExport("xero", reference)))
	if err != nil {
		return err
	}

	stateStore, err := store.Open(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to open state store: %w", err)
	}
	defer stateStore.Close()

	load, write := services.Bind(stateStore, reference)
	exec := executor.New(export, client, load, write,
		executor.WithLogger(logger.WithExport("executor", reference)),
	)

	log.Info().
		Str("store", cfg.StateStore).
		Str("task", task).
		Msg("Starting export")

	if task != "" {
		err = exec.RunTask(ctx, task)
	} else {
		err = exec.ExecuteAll(ctx)
	}

	state, stateErr := exec.State(ctx)
	if stateErr == nil {
		printState(cmd.OutOrStdout(), reference, state)
	}

	if err != nil {
		return fmt.Errorf("export %s did not complete: %w", reference, err)
	}

	log.Info().Msg("Export completed")
	return nil
}
