// Package parsers reads card settlement and bank statement CSV exports into
// domain records for import into a store.
//
// Files are read row by row and delivered in batches, so imports of large
// exports never hold the whole file in memory. Rows that cannot be decoded
// are collected in ParseStats and skipped; only file-level problems (missing
// file, bad encoding, missing required headers) stop a parse.
//
// Example usage:
//
//	parser, err := NewSettlementParser(nil)
//	settlements, stats, err := parser.ParseFile(ctx, "card_transactions.csv")
//
//	// Batched, for imports
//	stats, err = parser.StreamFile(ctx, "card_transactions.csv", func(batch []*models.CardSettlement) error {
//		_, err := store.InsertSettlements(ctx, batch)
//		return err
//	})
//
// Both parsers accept the Brazilian conventions found in acquirer and bank
// exports: DD/MM/YYYY dates, "R$" prefixes, "1.234,56" amounts and
// semicolon-delimited files.
package parsers

import (
	"bufio"
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"
	"unicode/utf8"

	"card-reconciliation-service/pkg/errors"
	"card-reconciliation-service/pkg/logger"
)

// RowError describes a row that could not be decoded.
type RowError struct {
	Line   int
	Column string
	Value  string
	Err    error
}

func (e *RowError) Error() string {
	if e.Column == "" {
		return fmt.Sprintf("line %d: %v", e.Line, e.Err)
	}
	return fmt.Sprintf("line %d, column %s ('%s'): %v", e.Line, e.Column, e.Value, e.Err)
}

func (e *RowError) Unwrap() error {
	return e.Err
}

// ParseConfig holds the CSV dialect settings.
type ParseConfig struct {
	// Delimiter is the field separator. Zero means detect from the header
	// line, choosing between ',' and ';'.
	Delimiter        rune
	Comment          rune
	SkipEmptyRows    bool
	ValidateEncoding bool
}

// DefaultParseConfig returns a configuration with sensible defaults
func DefaultParseConfig() *ParseConfig {
	return &ParseConfig{
		Delimiter:        0,
		Comment:          0,
		SkipEmptyRows:    true,
		ValidateEncoding: true,
	}
}

// BaseParser provides the CSV reading shared by both parsers.
type BaseParser struct {
	config *ParseConfig
	logger logger.Logger
}

// NewBaseParser creates a new BaseParser with the given configuration
func NewBaseParser(config *ParseConfig, log logger.Logger) *BaseParser {
	if config == nil {
		config = DefaultParseConfig()
	}
	if log == nil {
		log = logger.GetGlobalLogger()
	}
	return &BaseParser{config: config, logger: log}
}

// ParseContext holds state during one parse.
type ParseContext struct {
	Source    string
	Line      int
	Headers   []string
	headerMap map[string]int
	ctx       context.Context
}

// NewParseContext creates a new parsing context
func NewParseContext(ctx context.Context, source string) *ParseContext {
	if ctx == nil {
		ctx = context.Background()
	}
	return &ParseContext{
		Source:    source,
		headerMap: make(map[string]int),
		ctx:       ctx,
	}
}

// Err returns the cancellation error of the parse, if any.
func (pc *ParseContext) Err() error {
	return pc.ctx.Err()
}

// ColumnIndex returns the index of a column by name, case-insensitively,
// or -1 if it is not present.
func (pc *ParseContext) ColumnIndex(name string) int {
	if name == "" {
		return -1
	}
	if index, ok := pc.headerMap[strings.ToLower(name)]; ok {
		return index
	}
	return -1
}

// HasColumn reports whether the header carries the named column.
func (pc *ParseContext) HasColumn(name string) bool {
	return pc.ColumnIndex(name) >= 0
}

// OpenFile opens a CSV file for reading and checks its encoding.
func (bp *BaseParser) OpenFile(filePath string) (*os.File, error) {
	bp.logger.WithField("file_path", filePath).Debug("Opening CSV file")

	file, err := os.Open(filePath)
	if err != nil {
		if os.IsPermission(err) {
			return nil, errors.FileError(errors.CodeFilePermission, filePath, err)
		}
		return nil, errors.FileError(errors.CodeFileNotFound, filePath, err)
	}

	if bp.config.ValidateEncoding {
		if err := validateEncoding(file, filePath); err != nil {
			file.Close()
			return nil, err
		}
		if _, err := file.Seek(0, io.SeekStart); err != nil {
			file.Close()
			return nil, errors.FileError(errors.CodeInvalidFormat, filePath, err)
		}
	}
	return file, nil
}

// validateEncoding checks the first lines of the file for valid UTF-8.
func validateEncoding(r io.Reader, filePath string) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	line := 0
	for scanner.Scan() && line < 100 {
		line++
		if !utf8.Valid(scanner.Bytes()) {
			return errors.ParseError(
				errors.CodeInvalidFormat,
				filePath,
				line,
				"encoding",
				"",
				fmt.Errorf("invalid UTF-8 encoding detected"),
			).WithSuggestion("export the file as UTF-8 and try again")
		}
	}
	if err := scanner.Err(); err != nil {
		return errors.FileError(errors.CodeInvalidFormat, filePath, err)
	}
	return nil
}

// NewReader returns a csv.Reader configured for the dialect. When no
// delimiter is configured it is detected from the first line.
func (bp *BaseParser) NewReader(r io.Reader) *csv.Reader {
	br := bufio.NewReader(r)
	delimiter := bp.config.Delimiter
	if delimiter == 0 {
		delimiter = detectDelimiter(br)
	}

	reader := csv.NewReader(br)
	reader.Comma = delimiter
	reader.Comment = bp.config.Comment
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1
	reader.ReuseRecord = false
	return reader
}

// detectDelimiter peeks at the header line and picks ';' when it carries
// more semicolons than commas.
func detectDelimiter(br *bufio.Reader) rune {
	peek, _ := br.Peek(4096)
	if i := bytes.IndexByte(peek, '\n'); i >= 0 {
		peek = peek[:i]
	}
	if bytes.Count(peek, []byte{';'}) > bytes.Count(peek, []byte{','}) {
		return ';'
	}
	return ','
}

// ReadHeaders reads the header row and checks that every required column
// is present.
func (bp *BaseParser) ReadHeaders(reader *csv.Reader, pc *ParseContext, required []string) error {
	headers, err := reader.Read()
	if err != nil {
		if err == io.EOF {
			return errors.ValidationError(errors.CodeMissingField, "headers", pc.Source, nil).
				WithSuggestion("ensure the file contains a header row")
		}
		return errors.ParseError(errors.CodeInvalidFormat, pc.Source, 1, "headers", "", err)
	}
	pc.Line, _ = reader.FieldPos(0)

	pc.Headers = make([]string, len(headers))
	for i, h := range headers {
		h = strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
		pc.Headers[i] = h
		pc.headerMap[strings.ToLower(h)] = i
	}

	var missing []string
	for _, name := range required {
		if !pc.HasColumn(name) {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		bp.logger.WithFields(logger.Fields{
			"source":            pc.Source,
			"missing_headers":   missing,
			"available_headers": pc.Headers,
		}).Error("Required headers are missing")

		return errors.ParseError(
			errors.CodeMissingColumn,
			pc.Source,
			pc.Line,
			strings.Join(missing, ", "),
			"",
			nil,
		)
	}

	bp.logger.WithField("headers", pc.Headers).Debug("Read CSV headers")
	return nil
}

// ReadRecord returns the next non-empty record, or io.EOF.
func (bp *BaseParser) ReadRecord(reader *csv.Reader, pc *ParseContext) ([]string, error) {
	for {
		if err := pc.Err(); err != nil {
			return nil, err
		}

		record, err := reader.Read()
		if err != nil {
			if err == io.EOF {
				return nil, err
			}
			if pe, ok := err.(*csv.ParseError); ok {
				pc.Line = pe.StartLine
			} else {
				pc.Line++
			}
			return nil, &RowError{Line: pc.Line, Err: err}
		}
		// physical line of the record start; quoted fields may span lines
		pc.Line, _ = reader.FieldPos(0)

		if bp.config.SkipEmptyRows && isEmptyRecord(record) {
			continue
		}
		return record, nil
	}
}

func isEmptyRecord(record []string) bool {
	for _, field := range record {
		if strings.TrimSpace(field) != "" {
			return false
		}
	}
	return true
}

// Field returns the trimmed value of the named column, or "" when the
// column is absent from the header or the row is short.
func (pc *ParseContext) Field(record []string, name string) string {
	index := pc.ColumnIndex(name)
	if index < 0 || index >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[index])
}

// ParseStats holds statistics about a parsing operation
type ParseStats struct {
	Source        string
	TotalLines    int
	RecordsParsed int
	RecordsValid  int
	Errors        []*RowError
}

// AddError records a row error.
func (ps *ParseStats) AddError(err *RowError) {
	ps.Errors = append(ps.Errors, err)
}

// ErrorCount returns the number of rows that were skipped.
func (ps *ParseStats) ErrorCount() int {
	return len(ps.Errors)
}

// HasErrors returns true if there were any parsing errors
func (ps *ParseStats) HasErrors() bool {
	return len(ps.Errors) > 0
}

// String returns a human-readable summary of parsing statistics
func (ps *ParseStats) String() string {
	return fmt.Sprintf("Parsed %d lines, %d records (%d valid), %d errors",
		ps.TotalLines, ps.RecordsParsed, ps.RecordsValid, len(ps.Errors))
}

// SampleErrors returns up to max error messages for logging.
func (ps *ParseStats) SampleErrors(max int) []string {
	limit := len(ps.Errors)
	if max > 0 && max < limit {
		limit = max
	}
	samples := make([]string, 0, limit)
	for _, err := range ps.Errors[:limit] {
		samples = append(samples, err.Error())
	}
	return samples
}
