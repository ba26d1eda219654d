package cmd

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"card-reconciliation-service/internal/fixtures"
	"card-reconciliation-service/internal/models"
	"card-reconciliation-service/pkg/errors"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var generator = fixtures.DefaultGenerator()

// Flags for the generate command
var (
	generateOutputDir string
	generateStartDate string
	generateDelimiter string
)

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Write a sample pair of settlement and statement CSV files",
	Long: `Generate writes settlements.csv and statements.csv with synthetic data
for one company. Most settlements get a matching credit line, a share gets a
credit slightly off the net amount, a share gets no credit at all and a share
is charged above the reference fee rate. Debit lines are mixed in as noise.

The files use the import column names, so they can be loaded directly with
'reconciler import'. The same seed always produces the same files.

Examples:
  reconciler generate --output-dir sample
  reconciler generate --count 1000 --seed 7 --not-found 0.2
  reconciler generate --delimiter ';' --start-date 2024-06-01 --days 10`,

	PreRunE: validateGenerateFlags,
	RunE:    runGenerate,
}

func init() {
	rootCmd.AddCommand(generateCmd)

	d := fixtures.DefaultGenerator()
	flags := generateCmd.Flags()
	flags.StringVar(&generateOutputDir, "output-dir", "generated", "directory for the generated files")
	flags.Int("count", d.Count, "number of card settlements")
	flags.Int64("seed", d.Seed, "random seed")
	flags.String("company-cnpj", d.CompanyCNPJ, "company of every generated record")
	flags.StringVar(&generateStartDate, "start-date", d.StartDate.Format(models.DateLayout), "first sale date (YYYY-MM-DD)")
	flags.Int("days", d.Days, "number of consecutive sale dates")
	flags.Float64("not-found", d.NotFound, "share of settlements without a credit line")
	flags.Float64("value-divergent", d.ValueDivergent, "share of settlements credited off the net amount")
	flags.Float64("fee-divergent", d.FeeDivergent, "share of settlements charged above the reference rate")
	flags.StringVar(&generateDelimiter, "delimiter", ",", "CSV delimiter")

	for _, name := range []string{
		"output-dir", "count", "seed", "company-cnpj", "start-date", "days",
		"not-found", "value-divergent", "fee-divergent", "delimiter",
	} {
		viper.BindPFlag("generate."+strings.ReplaceAll(name, "-", "_"), flags.Lookup(name))
	}
}

func validateGenerateFlags(cmd *cobra.Command, args []string) error {
	generator = fixtures.DefaultGenerator()
	generator.Count = viper.GetInt("generate.count")
	generator.Seed = viper.GetInt64("generate.seed")
	generator.CompanyCNPJ = viper.GetString("generate.company_cnpj")
	generator.Days = viper.GetInt("generate.days")
	generator.NotFound = viper.GetFloat64("generate.not_found")
	generator.ValueDivergent = viper.GetFloat64("generate.value_divergent")
	generator.FeeDivergent = viper.GetFloat64("generate.fee_divergent")
	generateOutputDir = viper.GetString("generate.output_dir")
	generateStartDate = viper.GetString("generate.start_date")
	generateDelimiter = viper.GetString("generate.delimiter")

	start, err := time.Parse(models.DateLayout, generateStartDate)
	if err != nil {
		return errors.ValidationError(errors.CodeInvalidDate, "start-date", generateStartDate,
			fmt.Errorf("start date must use YYYY-MM-DD"))
	}
	generator.StartDate = start

	if utf8.RuneCountInString(generateDelimiter) != 1 {
		return errors.ValidationError(errors.CodeInvalidFormat, "delimiter", generateDelimiter,
			fmt.Errorf("delimiter must be a single character"))
	}
	if generateOutputDir == "" {
		return errors.ValidationError(errors.CodeMissingField, "output-dir", nil,
			fmt.Errorf("output directory is required"))
	}

	if err := generator.Validate(); err != nil {
		return errors.ValidationError(errors.CodeOutOfRange, "generate", nil, err)
	}
	return nil
}

func runGenerate(cmd *cobra.Command, args []string) error {
	ds, err := generator.Generate()
	if err != nil {
		return errors.InternalError(errors.CodeUnexpectedError, "generate data set", err)
	}

	delimiter, _ := utf8.DecodeRuneInString(generateDelimiter)
	paths, err := fixtures.WriteFiles(generateOutputDir, ds, delimiter)
	if err != nil {
		return errors.FileError(errors.CodeFilePermission, generateOutputDir, err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Settlements: %s (%d rows)\n", paths.Settlements, len(ds.Settlements))
	fmt.Fprintf(out, "Statements:  %s (%d rows)\n", paths.Statements, len(ds.Statements))
	fmt.Fprintf(out, "Scenarios:   %d exact, %d value divergent, %d not found, %d fee divergent\n",
		ds.Count(fixtures.ScenarioExact), ds.Count(fixtures.ScenarioValueDivergent),
		ds.Count(fixtures.ScenarioNotFound), len(ds.FeeDivergent))
	return nil
}
