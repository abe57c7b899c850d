package cmd

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"xeroexport/internal/logger"
	"xeroexport/internal/store"
	"xeroexport/pkg/models"
)

var stateCmd = &cobra.Command{
	Use:   "state",
	Short: "Inspect or repair the recorded state of an export",
}

var stateShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the recorded task state of an export",
	Example: `  xeroexport state show --export export-1234.json`,
	RunE: runStateShow,
}

var stateResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Forget the recorded outcome of a task so it runs again",
	Long: `Forget the recorded outcome of a task so the next run executes it again.

Only use this after checking Xero: a task that is reset after its document was
created will create the document a second time.`,
	Example: `  # Retry the invoice payment after deleting it in Xero
  xeroexport state reset --export export-1234.json --task create_invoice_payment

  # Forget every task of the export
  xeroexport state reset --export export-1234.json --all`,
	RunE: runStateReset,
}

func init() {
	rootCmd.AddCommand(stateCmd)
	stateCmd.AddCommand(stateShowCmd)
	stateCmd.AddCommand(stateResetCmd)

	stateResetCmd.Flags().StringSlice("task", nil, "Task name to reset (repeatable)")
	stateResetCmd.Flags().Bool("all", false, "Reset every task of the export")
}

func runStateShow(cmd *cobra.Command, args []string) error {
	export, err := loadExport(cmd)
	if err != nil {
		return err
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx := context.Background()
	stateStore, err := store.Open(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to open state store: %w", err)
	}
	defer stateStore.Close()

	state, err := stateStore.Load(ctx, export.Reference())
	if err != nil {
		return err
	}
	printState(cmd.OutOrStdout(), export.Reference(), state)
	return nil
}

func runStateReset(cmd *cobra.Command, args []string) error {
	tasks, _ := cmd.Flags().GetStringSlice("task")
	all, _ := cmd.Flags().GetBool("all")
	if len(tasks) == 0 && !all {
		return fmt.Errorf("either --task or --all is required")
	}

	export, err := loadExport(cmd)
	if err != nil {
		return err
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	reference := export.Reference()
	log := logger.WithExport("state", reference)

	ctx := context.Background()
	stateStore, err := store.Open(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to open state store: %w", err)
	}
	defer stateStore.Close()

	state, err := stateStore.Load(ctx, reference)
	if err != nil {
		return err
	}

	if all {
		tasks = state.Names()
	}
	for _, name := range tasks {
		if !state.Delete(name) {
			return fmt.Errorf("task %q is not recorded for export %s", name, reference)
		}
		log.Warn().Str("task", name).Msg("Reset task state")
	}

	if err := stateStore.Save(ctx, reference, state); err != nil {
		return fmt.Errorf("failed to save state: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Reset %d task(s) of export %s\n", len(tasks), reference)
	return nil
}

func printState(w io.Writer, reference string, state *models.State) {
	fmt.Fprintln(w, strings.Repeat("=", 80))
	fmt.Fprintf(w, "Export: %s\n", reference)
	if !state.UpdatedAt.IsZero() {
		fmt.Fprintf(w, "Updated: %s\n", state.UpdatedAt.Format("2006-01-02 15:04:05"))
	}
	fmt.Fprintln(w, strings.Repeat("-", 80))

	if state.Len() == 0 {
		fmt.Fprintln(w, "No tasks have run yet.")
	}
	for _, name := range state.Names() {
		ts, _ := state.Get(name)
		fmt.Fprintf(w, "%-40s %-9s %s\n", name, ts.Status, describeTask(ts))
	}
	fmt.Fprintln(w, strings.Repeat("=", 80))
}

func describeTask(ts models.TaskState) string {
	if ts.Error != nil {
		return fmt.Sprintf("%s error: %s", ts.Error.Kind, ts.Error.Message)
	}
	switch r := ts.Result.(type) {
	case models.InvoiceResult:
		return fmt.Sprintf("invoice %s (%s)", r.InvoiceID, r.Amount.StringFixed(2))
	case models.CreditNoteResult:
		return fmt.Sprintf("credit note %s (%s)", r.CreditNoteID, r.Amount.StringFixed(2))
	case models.PaymentResult:
		return fmt.Sprintf("payment %s (%s)", r.PaymentID, r.Amount.StringFixed(2))
	case models.TransferResult:
		return fmt.Sprintf("transfer %s (%s)", r.TransferID, r.Amount.StringFixed(2))
	case models.TransactionResult:
		return fmt.Sprintf("transaction %s (%s)", r.TransactionID, r.Amount.StringFixed(2))
	case models.Skipped:
		return "skipped: " + r.Reason
	default:
		return ""
	}
}
