package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"xeroexport/internal/logger"
	"xeroexport/internal/report"
	"xeroexport/internal/sheets"
)

var proposalCmd = &cobra.Command{
	Use:   "proposal",
	Short: "Show the documents an export would create",
	Long: `Group the records of an export the way a run would and print the result
without contacting Xero.

The proposal can also be saved as an XLSX workbook or appended to a Google
Sheet for review.

Environment variables for --sheet:
  GOOGLE_APPLICATION_CREDENTIALS - Path to service account JSON file, OR
  GOOGLE_CREDENTIALS - Inline JSON credentials string
  GOOGLE_SHEET_URL - Default spreadsheet URL`,
	Example: `  # Print the proposal
  xeroexport proposal --export export-1234.json

  # Save it as a workbook and append it to the review sheet
  xeroexport proposal --export export-1234.json --xlsx proposal.xlsx --sheet`,
	RunE: runProposal,
}

func init() {
	rootCmd.AddCommand(proposalCmd)

	proposalCmd.Flags().String("xlsx", "", "Write the proposal to an XLSX workbook")
	proposalCmd.Flags().Bool("sheet", false, "Append the proposal to the Google Sheet")
	proposalCmd.Flags().String("sheet-url", "", "Google Sheet URL (default: GOOGLE_SHEET_URL)")
	proposalCmd.Flags().String("sheet-name", "", "Worksheet name (default: GOOGLE_SHEET_WORKSHEET)")
}

func runProposal(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("proposal")

	export, err := loadExport(cmd)
	if err != nil {
		return err
	}
	if err := export.Validate(); err != nil {
		log.Warn().Err(err).Msg("Export is incomplete, a run would be rejected")
	}

	rows := report.Rows(export)
	if err := report.WriteText(cmd.OutOrStdout(), export, rows); err != nil {
		return err
	}

	if path, _ := cmd.Flags().GetString("xlsx"); path != "" {
		if err := report.WriteWorkbook(path, export, rows); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Workbook: %s\n", path)
	}

	if publish, _ := cmd.Flags().GetBool("sheet"); publish {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		sheetURL, _ := cmd.Flags().GetString("sheet-url")
		if sheetURL == "" {
			sheetURL = cfg.GoogleSheetURL
		}
		if sheetURL == "" {
			return fmt.Errorf("GOOGLE_SHEET_URL environment variable or --sheet-url is required")
		}
		sheetName, _ := cmd.Flags().GetString("sheet-name")
		if sheetName == "" {
			sheetName = cfg.GoogleSheetWorksheet
		}

		ctx := context.Background()
		svc, err := sheets.NewSheetsService(ctx, sheetURL)
		if err != nil {
			return err
		}
		if err := svc.WriteProposal(ctx, export.Reference(), rows, sheetName); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Sheet: %s\nURL: %s\n", sheetName, sheetURL)
	}

	return nil
}
