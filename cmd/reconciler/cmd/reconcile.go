package cmd

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"card-reconciliation-service/internal/reconciler"
	"card-reconciliation-service/internal/reporter"
	"card-reconciliation-service/pkg/errors"
	"card-reconciliation-service/pkg/logger"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/multierr"
)

// Flags for the reconcile command
var (
	companyCNPJ  string
	outputFormat string
	outputFile   string
)

// reconcileCmd represents the reconcile command
var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Reconcile unreconciled card settlements against the bank statement",
	Long: `Reconcile runs one batch over every card settlement not yet reconciled,
optionally restricted to one company. Each settlement has its fee checked
against the rate table and is matched to the bank credit that paid it.
Reconciliations and alerts are written to the configured store.

The summary is printed even when the final writes fail; the command then
exits with a non-zero status.

Examples:
  # Every company
  reconciler reconcile

  # One company, JSON summary written to a file
  reconciler reconcile --company-cnpj 12345678000190 \
    --output-format json --output-file summary.json

  # Local SQLite database
  RECONCILER_DATABASE_DRIVER=sqlite RECONCILER_DATABASE_DSN=recon.db reconciler reconcile`,

	PreRunE: validateReconcileFlags,
	RunE:    runReconcile,
}

func init() {
	rootCmd.AddCommand(reconcileCmd)

	reconcileCmd.Flags().StringVarP(&companyCNPJ, "company-cnpj", "c", "", "restrict the run to one company")
	reconcileCmd.Flags().StringVarP(&outputFormat, "output-format", "f", "console", "output format: console, json, csv")
	reconcileCmd.Flags().StringVarP(&outputFile, "output-file", "o", "", "output file path (default: stdout)")
	reconcileCmd.Flags().Bool("prefetch", false, "load each company's statement once instead of querying per settlement")

	viper.BindPFlag("reconcile.company_cnpj", reconcileCmd.Flags().Lookup("company-cnpj"))
	viper.BindPFlag("reconcile.output_format", reconcileCmd.Flags().Lookup("output-format"))
	viper.BindPFlag("reconcile.output_file", reconcileCmd.Flags().Lookup("output-file"))
	viper.BindPFlag("matching.prefetch_statements", reconcileCmd.Flags().Lookup("prefetch"))
}

func validateReconcileFlags(cmd *cobra.Command, args []string) error {
	// Get values from viper (allows override from config file)
	companyCNPJ = strings.TrimSpace(viper.GetString("reconcile.company_cnpj"))
	outputFormat = viper.GetString("reconcile.output_format")
	outputFile = viper.GetString("reconcile.output_file")

	if outputFormat == "" {
		outputFormat = string(reporter.FormatConsole)
	}
	if err := validateOutputFlags(outputFormat, outputFile); err != nil {
		return err
	}

	if len(companyCNPJ) > 32 {
		return errors.ValidationError(errors.CodeOutOfRange, "company-cnpj", companyCNPJ,
			fmt.Errorf("company cnpj cannot exceed 32 characters"))
	}
	return nil
}

func validateOutputFlags(format, file string) error {
	if !reporter.OutputFormat(format).IsValid() {
		return errors.ValidationError(errors.CodeOutOfRange, "output-format", format,
			fmt.Errorf("invalid output format '%s'. Valid formats: console, json, csv", format))
	}

	if file != "" {
		dir := filepath.Dir(file)
		if dir != "." {
			if _, err := os.Stat(dir); os.IsNotExist(err) {
				return errors.FileError(errors.CodeFileNotFound, dir,
					fmt.Errorf("output directory does not exist: %s", dir))
			}
		}
	}
	return nil
}

func validateFileExists(filePath, description string) error {
	if filePath == "" {
		return errors.ValidationError(errors.CodeMissingField, description, nil,
			fmt.Errorf("%s path cannot be empty", description))
	}

	info, err := os.Stat(filePath)
	if os.IsNotExist(err) {
		return errors.FileError(errors.CodeFileNotFound, filePath,
			fmt.Errorf("%s does not exist: %s", description, filePath))
	}
	if err != nil {
		return errors.FileError(errors.CodeFilePermission, filePath,
			fmt.Errorf("error accessing %s: %w", description, err))
	}

	if info.IsDir() {
		return errors.FileError(errors.CodeFileNotFound, filePath,
			fmt.Errorf("%s is a directory, expected a file: %s", description, filePath))
	}

	file, err := os.Open(filePath)
	if err != nil {
		return errors.FileError(errors.CodeFilePermission, filePath,
			fmt.Errorf("%s is not readable: %w", description, err))
	}
	file.Close()

	return nil
}

func runReconcile(cmd *cobra.Command, args []string) error {
	settings, err := loadSettings()
	if err != nil {
		return err
	}

	log := logger.GetGlobalLogger().WithComponent("cli")
	log.WithFields(logger.Fields{
		"company_cnpj":  companyCNPJ,
		"output_format": outputFormat,
		"prefetch":      settings.Matching.PrefetchStatements,
	}).Debug("Starting reconciliation")

	orch, st, err := newOrchestrator(settings)
	if err != nil {
		return err
	}
	defer st.Close()

	summary, runErr := orch.Run(commandContext(cmd), reconciler.RunRequest{CompanyCNPJ: companyCNPJ})

	if err := writeReport(cmd, outputFormat, outputFile, func(rg *reporter.ReportGenerator, w io.Writer) error {
		return rg.GenerateRunReport(summary, runErr, w)
	}); err != nil {
		return multierr.Append(runErr, err)
	}
	return runErr
}

// writeReport renders through a generator of the given format into the
// output file, or the command output when no file is set.
func writeReport(cmd *cobra.Command, format, file string, render func(*reporter.ReportGenerator, io.Writer) error) error {
	rg, err := reporter.NewReportGenerator(&reporter.ReportConfig{
		Format:             reporter.OutputFormat(format),
		IncludeDiagnostics: true,
		CSVDelimiter:       ',',
		CSVHeaders:         true,
	})
	if err != nil {
		return err
	}

	var output io.Writer = cmd.OutOrStdout()
	if file != "" {
		f, err := os.Create(file)
		if err != nil {
			return errors.FileError(errors.CodeFilePermission, file, err)
		}
		defer f.Close()
		output = f
	}

	return render(rg, output)
}
