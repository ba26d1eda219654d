// Package reporter renders the outcome of reconciliation runs and CSV imports
// for the command line.
//
// Supported output formats:
//   - Console: aligned human-readable sections for a terminal
//   - JSON: the same figures as a single document, for schedulers and scripts
//   - CSV: metric,value rows for spreadsheets
//
// Example usage:
//
//	rg, err := reporter.NewReportGenerator(&reporter.ReportConfig{Format: reporter.FormatJSON})
//	err = rg.GenerateRunReport(summary, runErr, os.Stdout)
//
// A run that failed after doing work is still reported: the partial figures
// are printed together with the error.
package reporter

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"
	"time"

	"card-reconciliation-service/internal/parsers"
	"card-reconciliation-service/internal/reconciler"
	"card-reconciliation-service/pkg/errors"
	"card-reconciliation-service/pkg/logger"
)

// OutputFormat represents the supported report output formats.
type OutputFormat string

const (
	FormatConsole OutputFormat = "console"
	FormatJSON    OutputFormat = "json"
	FormatCSV     OutputFormat = "csv"
)

// IsValid checks if the output format is supported
func (f OutputFormat) IsValid() bool {
	switch f {
	case FormatConsole, FormatJSON, FormatCSV:
		return true
	default:
		return false
	}
}

// ReportConfig holds configuration options for report generation
type ReportConfig struct {
	Format OutputFormat `json:"format"`

	// IncludeDiagnostics adds matched, skipped and edge-case counters to
	// the console report. JSON and CSV always carry them.
	IncludeDiagnostics bool `json:"include_diagnostics"`

	CSVDelimiter rune `json:"csv_delimiter"`
	CSVHeaders   bool `json:"csv_headers"`
}

// DefaultReportConfig returns a default report configuration
func DefaultReportConfig() *ReportConfig {
	return &ReportConfig{
		Format:             FormatConsole,
		IncludeDiagnostics: true,
		CSVDelimiter:       ',',
		CSVHeaders:         true,
	}
}

// Validate validates the report configuration
func (c *ReportConfig) Validate() error {
	if !c.Format.IsValid() {
		return fmt.Errorf("invalid output format: %s", c.Format)
	}
	if c.Format == FormatCSV && (c.CSVDelimiter == 0 || c.CSVDelimiter == '"' || c.CSVDelimiter == '\n') {
		return fmt.Errorf("invalid CSV delimiter %q", c.CSVDelimiter)
	}
	return nil
}

// ReportGenerator renders run and import reports in the configured format.
type ReportGenerator struct {
	config *ReportConfig
	logger logger.Logger
}

// NewReportGenerator creates a new report generator with the specified configuration
func NewReportGenerator(config *ReportConfig) (*ReportGenerator, error) {
	if config == nil {
		config = DefaultReportConfig()
	}
	if config.Format == FormatCSV && config.CSVDelimiter == 0 {
		config.CSVDelimiter = ','
	}
	if err := config.Validate(); err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "output_format", config.Format, err).
			WithSuggestion("use one of: console, json, csv")
	}

	return &ReportGenerator{
		config: config,
		logger: logger.GetGlobalLogger().WithComponent("reporter"),
	}, nil
}

// GetConfiguration returns the active configuration.
func (rg *ReportGenerator) GetConfiguration() *ReportConfig {
	return rg.config
}

// ImportResult is the outcome of importing one CSV file.
type ImportResult struct {
	Kind     string              `json:"kind"`
	Source   string              `json:"source"`
	Stats    *parsers.ParseStats `json:"-"`
	Inserted int                 `json:"inserted"`
}

// Existing returns the number of valid rows the store already had.
func (r *ImportResult) Existing() int {
	if r.Stats == nil {
		return 0
	}
	if n := r.Stats.RecordsValid - r.Inserted; n > 0 {
		return n
	}
	return 0
}

// --- run reports ---

type runDocument struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`

	CompanyCNPJ           string `json:"company_cnpj,omitempty"`
	TransactionsProcessed int    `json:"transactions_processed"`
	Reconciled            int    `json:"reconciled"`
	ValidatedFees         int    `json:"validated_fees"`
	AlertsCreated         int    `json:"alerts_created"`

	Matched              int `json:"matched"`
	Skipped              int `json:"skipped"`
	MarkFailures         int `json:"mark_failures"`
	NotFoundAlerts       int `json:"not_found_alerts"`
	ValueDivergentAlerts int `json:"value_divergent_alerts"`
	DuplicateGroups      int `json:"duplicate_groups"`
	ContendedLines       int `json:"contended_lines"`

	StartTime  string `json:"start_time,omitempty"`
	DurationMS int64  `json:"duration_ms"`
}

func newRunDocument(s *reconciler.RunSummary, runErr error) runDocument {
	doc := runDocument{
		Success:               runErr == nil,
		CompanyCNPJ:           s.CompanyCNPJ,
		TransactionsProcessed: s.TransactionsProcessed,
		Reconciled:            s.Reconciled,
		ValidatedFees:         s.ValidatedFees,
		AlertsCreated:         s.AlertsCreated,
		Matched:               s.Matched,
		Skipped:               s.Skipped,
		MarkFailures:          s.MarkFailures,
		NotFoundAlerts:        s.NotFoundAlerts,
		ValueDivergentAlerts:  s.ValueDivergentAlerts,
		DuplicateGroups:       s.DuplicateGroups,
		ContendedLines:        s.ContendedLines,
		DurationMS:            s.Duration.Milliseconds(),
	}
	if runErr != nil {
		doc.Error = runErr.Error()
	}
	if !s.StartTime.IsZero() {
		doc.StartTime = s.StartTime.UTC().Format(time.RFC3339)
	}
	return doc
}

// GenerateRunReport writes the report of one reconciliation run. runErr is
// the error the run returned, if any; a nil summary with an error reports
// only the error.
func (rg *ReportGenerator) GenerateRunReport(summary *reconciler.RunSummary, runErr error, writer io.Writer) error {
	if writer == nil {
		return errors.ValidationError(errors.CodeMissingField, "writer", nil, nil)
	}
	if summary == nil {
		if runErr == nil {
			return errors.ValidationError(errors.CodeMissingField, "summary", nil, nil).
				WithSuggestion("provide the summary returned by the run")
		}
		summary = &reconciler.RunSummary{}
	}

	doc := newRunDocument(summary, runErr)
	rg.logger.WithFields(logger.Fields{
		"format":  rg.config.Format,
		"success": doc.Success,
	}).Debug("Generating run report")

	var err error
	switch rg.config.Format {
	case FormatJSON:
		err = writeJSON(writer, doc)
	case FormatCSV:
		err = rg.writeRunCSV(writer, doc)
	default:
		err = rg.writeRunConsole(writer, summary, doc)
	}
	if err != nil {
		return errors.InternalError(errors.CodeUnexpectedError, "write run report", err)
	}
	return nil
}

func (rg *ReportGenerator) writeRunConsole(w io.Writer, s *reconciler.RunSummary, doc runDocument) error {
	company := s.CompanyCNPJ
	if company == "" {
		company = "all companies"
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "CARD RECONCILIATION REPORT\n")
	fmt.Fprintf(tw, "Company:\t%s\n", company)
	if doc.StartTime != "" {
		fmt.Fprintf(tw, "Started:\t%s\n", doc.StartTime)
	}
	fmt.Fprintf(tw, "Duration:\t%v\n\n", s.Duration.Round(time.Millisecond))

	if s.Empty() && doc.Success {
		fmt.Fprintf(tw, "No unreconciled card transactions found.\n")
		return tw.Flush()
	}

	fmt.Fprintf(tw, "=== SUMMARY ===\n")
	fmt.Fprintf(tw, "Transactions processed:\t%d\n", s.TransactionsProcessed)
	fmt.Fprintf(tw, "Reconciled:\t%d (%.1f%%)\n", s.Reconciled, percentage(s.Reconciled, s.TransactionsProcessed))
	fmt.Fprintf(tw, "Fee divergences:\t%d\n", s.ValidatedFees)
	fmt.Fprintf(tw, "Alerts created:\t%d\n", s.AlertsCreated)

	if rg.config.IncludeDiagnostics {
		fmt.Fprintf(tw, "\n=== DETAILS ===\n")
		fmt.Fprintf(tw, "Matched:\t%d\n", s.Matched)
		fmt.Fprintf(tw, "Not found in statement:\t%d\n", s.NotFoundAlerts)
		fmt.Fprintf(tw, "Value divergent:\t%d\n", s.ValueDivergentAlerts)
		fmt.Fprintf(tw, "Skipped:\t%d\n", s.Skipped)
		fmt.Fprintf(tw, "Mark failures:\t%d\n", s.MarkFailures)
		if s.DuplicateGroups > 0 || s.ContendedLines > 0 {
			fmt.Fprintf(tw, "Duplicate settlement groups:\t%d\n", s.DuplicateGroups)
			fmt.Fprintf(tw, "Statement lines claimed twice:\t%d\n", s.ContendedLines)
		}
	}

	if !doc.Success {
		fmt.Fprintf(tw, "\n=== ERROR ===\n")
		fmt.Fprintf(tw, "%s\n", doc.Error)
	}
	return tw.Flush()
}

func (rg *ReportGenerator) writeRunCSV(w io.Writer, doc runDocument) error {
	rows := [][]string{
		{"success", strconv.FormatBool(doc.Success)},
		{"company_cnpj", doc.CompanyCNPJ},
		{"transactions_processed", strconv.Itoa(doc.TransactionsProcessed)},
		{"reconciled", strconv.Itoa(doc.Reconciled)},
		{"validated_fees", strconv.Itoa(doc.ValidatedFees)},
		{"alerts_created", strconv.Itoa(doc.AlertsCreated)},
		{"matched", strconv.Itoa(doc.Matched)},
		{"skipped", strconv.Itoa(doc.Skipped)},
		{"mark_failures", strconv.Itoa(doc.MarkFailures)},
		{"not_found_alerts", strconv.Itoa(doc.NotFoundAlerts)},
		{"value_divergent_alerts", strconv.Itoa(doc.ValueDivergentAlerts)},
		{"duplicate_groups", strconv.Itoa(doc.DuplicateGroups)},
		{"contended_lines", strconv.Itoa(doc.ContendedLines)},
		{"duration_ms", strconv.FormatInt(doc.DurationMS, 10)},
	}
	if doc.Error != "" {
		rows = append(rows, []string{"error", doc.Error})
	}
	return rg.writeCSV(w, []string{"metric", "value"}, rows)
}

// --- import reports ---

type importDocument struct {
	Kind          string   `json:"kind"`
	Source        string   `json:"source"`
	RecordsParsed int      `json:"records_parsed"`
	RecordsValid  int      `json:"records_valid"`
	Inserted      int      `json:"inserted"`
	Existing      int      `json:"existing"`
	Rejected      int      `json:"rejected"`
	SampleErrors  []string `json:"sample_errors,omitempty"`
}

// GenerateImportReport writes the report of a CSV import.
func (rg *ReportGenerator) GenerateImportReport(results []*ImportResult, writer io.Writer) error {
	if writer == nil {
		return errors.ValidationError(errors.CodeMissingField, "writer", nil, nil)
	}

	docs := make([]importDocument, 0, len(results))
	for _, r := range results {
		doc := importDocument{Kind: r.Kind, Source: r.Source, Inserted: r.Inserted, Existing: r.Existing()}
		if r.Stats != nil {
			doc.RecordsParsed = r.Stats.RecordsParsed
			doc.RecordsValid = r.Stats.RecordsValid
			doc.Rejected = r.Stats.ErrorCount()
			doc.SampleErrors = r.Stats.SampleErrors(5)
		}
		docs = append(docs, doc)
	}

	var err error
	switch rg.config.Format {
	case FormatJSON:
		err = writeJSON(writer, map[string]interface{}{"imports": docs})
	case FormatCSV:
		rows := make([][]string, 0, len(docs))
		for _, d := range docs {
			rows = append(rows, []string{
				d.Kind, d.Source,
				strconv.Itoa(d.RecordsParsed), strconv.Itoa(d.Inserted),
				strconv.Itoa(d.Existing), strconv.Itoa(d.Rejected),
			})
		}
		err = rg.writeCSV(writer, []string{"kind", "source", "records_parsed", "inserted", "existing", "rejected"}, rows)
	default:
		err = writeImportConsole(writer, docs)
	}
	if err != nil {
		return errors.InternalError(errors.CodeUnexpectedError, "write import report", err)
	}
	return nil
}

func writeImportConsole(w io.Writer, docs []importDocument) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "IMPORT REPORT\n")
	if len(docs) == 0 {
		fmt.Fprintf(tw, "No files imported.\n")
		return tw.Flush()
	}
	for _, d := range docs {
		fmt.Fprintf(tw, "\n=== %s ===\n", d.Kind)
		fmt.Fprintf(tw, "Source:\t%s\n", d.Source)
		fmt.Fprintf(tw, "Rows read:\t%d\n", d.RecordsParsed)
		fmt.Fprintf(tw, "Inserted:\t%d\n", d.Inserted)
		fmt.Fprintf(tw, "Already present:\t%d\n", d.Existing)
		fmt.Fprintf(tw, "Rejected:\t%d\n", d.Rejected)
		for _, e := range d.SampleErrors {
			fmt.Fprintf(tw, "  %s\n", e)
		}
	}
	return tw.Flush()
}

// --- helpers ---

func writeJSON(w io.Writer, v interface{}) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}

func (rg *ReportGenerator) writeCSV(w io.Writer, headers []string, rows [][]string) error {
	csvWriter := csv.NewWriter(w)
	csvWriter.Comma = rg.config.CSVDelimiter
	if rg.config.CSVHeaders {
		if err := csvWriter.Write(headers); err != nil {
			return fmt.Errorf("failed to write CSV headers: %w", err)
		}
	}
	if err := csvWriter.WriteAll(rows); err != nil {
		return fmt.Errorf("failed to write CSV rows: %w", err)
	}
	return nil
}

func percentage(part, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(part) / float64(total) * 100
}
