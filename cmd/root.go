package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"xeroexport/internal/config"
	"xeroexport/internal/logger"
	"xeroexport/pkg/models"
)

var version = "1.0.0"

var rootCmd = &cobra.Command{
	Use:   "xeroexport",
	Short: "Recreate accounting exports in Xero",
	Long: `xeroexport turns an accounting export (invoices, credit notes, payments,
refunds and fees) into the matching documents in a Xero organisation.

Every step of a run is recorded in a state store, so an export that failed
part way can be run again and only the unfinished steps are repeated.`,
	Version:      version,
	SilenceUsage: true,
}

func Execute() {
	log := logger.WithComponent("cmd")

	if err := rootCmd.Execute(); err != nil {
		log.Error().
			Err(err).
			Msg("Command execution failed")
		fmt.Fprintf(os.Stderr, "Error executing command: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringP("export", "e", "", "Path to the export JSON file")
}

// loadExport reads the export named by the --export flag
func loadExport(cmd *cobra.Command) (*models.Export, error) {
	path, _ := cmd.Flags().GetString("export")
	if path == "" {
		return nil, fmt.Errorf("--export is required")
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open export: %w", err)
	}
	defer f.Close()

	export, err := models.LoadExport(f)
	if err != nil {
		return nil, fmt.Errorf("failed to read export %s: %w", path, err)
	}
	return export, nil
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return cfg, nil
}
