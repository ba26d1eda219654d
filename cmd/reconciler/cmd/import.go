package cmd

import (
	"context"
	"fmt"
	"io"

	"card-reconciliation-service/internal/models"
	"card-reconciliation-service/internal/parsers"
	"card-reconciliation-service/internal/reporter"
	"card-reconciliation-service/internal/store"
	"card-reconciliation-service/pkg/errors"
	"card-reconciliation-service/pkg/logger"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Flags for the import command
var (
	settlementFiles    []string
	statementFiles     []string
	importBatchSize    int
	importMaxErrors    int
	importOutputFormat string
	importOutputFile   string
)

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Load card settlements and bank statement lines from CSV files",
	Long: `Import reads CSV exports of card settlements and bank statement lines
and inserts them into the configured store. Rows whose id already exists are
left untouched, so importing the same file twice is harmless. Rows that
cannot be parsed are reported and skipped.

Columns use the store names: id, company_cnpj, operadora, bandeira,
data_venda, valor_bruto, taxa_percentual, taxa_valor, valor_liquido,
conciliado, data_recebimento for settlements and id, company_cnpj,
data_movimento, tipo, valor, descricao for statement lines. Comma and
semicolon delimiters are detected automatically.

Examples:
  reconciler import --settlements vendas.csv --statements extrato.csv
  reconciler import --statements jan.csv,fev.csv --max-errors 10
  reconciler import --settlements vendas.csv --output-format json`,

	PreRunE: validateImportFlags,
	RunE:    runImport,
}

func init() {
	rootCmd.AddCommand(importCmd)

	importCmd.Flags().StringSliceVar(&settlementFiles, "settlements", []string{}, "card settlement CSV files")
	importCmd.Flags().StringSliceVar(&statementFiles, "statements", []string{}, "bank statement CSV files")
	importCmd.Flags().IntVar(&importBatchSize, "batch-size", parsers.DefaultStreamConfig().BatchSize, "rows per insert")
	importCmd.Flags().IntVar(&importMaxErrors, "max-errors", 0, "abort a file after this many bad rows (0 = never)")
	importCmd.Flags().StringVarP(&importOutputFormat, "output-format", "f", "console", "output format: console, json, csv")
	importCmd.Flags().StringVarP(&importOutputFile, "output-file", "o", "", "output file path (default: stdout)")

	viper.BindPFlag("import.settlements", importCmd.Flags().Lookup("settlements"))
	viper.BindPFlag("import.statements", importCmd.Flags().Lookup("statements"))
	viper.BindPFlag("import.batch_size", importCmd.Flags().Lookup("batch-size"))
	viper.BindPFlag("import.max_errors", importCmd.Flags().Lookup("max-errors"))
	viper.BindPFlag("import.output_format", importCmd.Flags().Lookup("output-format"))
	viper.BindPFlag("import.output_file", importCmd.Flags().Lookup("output-file"))
}

func validateImportFlags(cmd *cobra.Command, args []string) error {
	settlementFiles = viper.GetStringSlice("import.settlements")
	statementFiles = viper.GetStringSlice("import.statements")
	importBatchSize = viper.GetInt("import.batch_size")
	importMaxErrors = viper.GetInt("import.max_errors")
	importOutputFormat = viper.GetString("import.output_format")
	importOutputFile = viper.GetString("import.output_file")

	if len(settlementFiles) == 0 && len(statementFiles) == 0 {
		return errors.ValidationError(errors.CodeMissingField, "settlements", nil,
			fmt.Errorf("at least one of --settlements or --statements is required"))
	}
	for i, f := range settlementFiles {
		if err := validateFileExists(f, fmt.Sprintf("settlement file %d", i+1)); err != nil {
			return err
		}
	}
	for i, f := range statementFiles {
		if err := validateFileExists(f, fmt.Sprintf("statement file %d", i+1)); err != nil {
			return err
		}
	}

	if importBatchSize == 0 {
		importBatchSize = parsers.DefaultStreamConfig().BatchSize
	}
	if importBatchSize < 0 {
		return errors.ValidationError(errors.CodeOutOfRange, "batch-size", importBatchSize,
			fmt.Errorf("batch size must be positive"))
	}
	if importMaxErrors < 0 {
		return errors.ValidationError(errors.CodeOutOfRange, "max-errors", importMaxErrors,
			fmt.Errorf("max errors cannot be negative"))
	}

	if importOutputFormat == "" {
		importOutputFormat = string(reporter.FormatConsole)
	}
	return validateOutputFlags(importOutputFormat, importOutputFile)
}

func runImport(cmd *cobra.Command, args []string) error {
	settings, err := loadSettings()
	if err != nil {
		return err
	}

	st, err := openStore(settings)
	if err != nil {
		return err
	}
	defer st.Close()

	log := logger.GetGlobalLogger()
	streamConfig := &parsers.StreamConfig{
		BatchSize:        importBatchSize,
		MaxErrors:        importMaxErrors,
		ProgressInterval: parsers.DefaultStreamConfig().ProgressInterval,
	}

	results, importErr := importFiles(commandContext(cmd), st, streamConfig, log)

	if err := writeReport(cmd, importOutputFormat, importOutputFile, func(rg *reporter.ReportGenerator, w io.Writer) error {
		return rg.GenerateImportReport(results, w)
	}); err != nil {
		return err
	}
	return importErr
}

// importFiles streams every configured file into st, settlements first. It
// stops at the first file that fails and returns the results gathered so far.
func importFiles(ctx context.Context, st store.Importer, streamConfig *parsers.StreamConfig, log logger.Logger) ([]*reporter.ImportResult, error) {
	var results []*reporter.ImportResult

	if len(settlementFiles) > 0 {
		sp, err := parsers.NewSettlementParser(&parsers.SettlementParserOptions{Stream: streamConfig, Logger: log})
		if err != nil {
			return nil, err
		}
		for _, path := range settlementFiles {
			result := &reporter.ImportResult{Kind: "settlements", Source: path}
			stats, err := sp.StreamFile(ctx, path, func(batch []*models.CardSettlement) error {
				n, err := st.InsertSettlements(ctx, batch)
				result.Inserted += n
				return err
			})
			result.Stats = stats
			if stats != nil {
				results = append(results, result)
			}
			if err != nil {
				return results, err
			}
		}
	}

	if len(statementFiles) > 0 {
		bsp, err := parsers.NewBankStatementParser(&parsers.BankStatementParserOptions{Stream: streamConfig, Logger: log})
		if err != nil {
			return results, err
		}
		for _, path := range statementFiles {
			result := &reporter.ImportResult{Kind: "statements", Source: path}
			stats, err := bsp.StreamFile(ctx, path, func(batch []*models.BankStatementLine) error {
				n, err := st.InsertStatementLines(ctx, batch)
				result.Inserted += n
				return err
			})
			result.Stats = stats
			if stats != nil {
				results = append(results, result)
			}
			if err != nil {
				return results, err
			}
		}
	}

	return results, nil
}
