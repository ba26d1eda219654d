package parsers

import (
	"context"
	"fmt"
	"io"

	"card-reconciliation-service/internal/models"
	"card-reconciliation-service/pkg/errors"
	"card-reconciliation-service/pkg/logger"
)

// BankStatementParser reads bank statement exports.
//
// When the file has no type column, or a row leaves it empty, the sign of
// the amount decides: negative amounts are debits and are stored as their
// absolute value.
type BankStatementParser struct {
	base    *BaseParser
	columns *StatementColumns
	stream  *StreamConfig
}

// BankStatementParserOptions configures a BankStatementParser. Nil fields
// take their defaults.
type BankStatementParserOptions struct {
	Columns *StatementColumns
	Parse   *ParseConfig
	Stream  *StreamConfig
	Logger  logger.Logger
}

// NewBankStatementParser creates a parser. opts may be nil.
func NewBankStatementParser(opts *BankStatementParserOptions) (*BankStatementParser, error) {
	if opts == nil {
		opts = &BankStatementParserOptions{}
	}
	columns := opts.Columns
	if columns == nil {
		columns = DefaultStatementColumns()
	}
	if err := columns.Validate(); err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "statement_columns", columns, err)
	}
	streamConfig := opts.Stream
	if streamConfig == nil {
		streamConfig = DefaultStreamConfig()
	}
	if err := streamConfig.Validate(); err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "stream_config", streamConfig, err)
	}

	log := opts.Logger
	if log == nil {
		log = logger.GetGlobalLogger()
	}

	return &BankStatementParser{
		base:    NewBaseParser(opts.Parse, log.WithComponent("bank_statement_parser")),
		columns: columns,
		stream:  streamConfig,
	}, nil
}

func (bsp *BankStatementParser) schema() rowSchema[*models.BankStatementLine] {
	return rowSchema[*models.BankStatementLine]{
		operation: "parse_bank_statements",
		required:  bsp.columns.Required(),
		decode:    bsp.decode,
	}
}

// Parse reads every statement line from r.
func (bsp *BankStatementParser) Parse(ctx context.Context, r io.Reader, source string) ([]*models.BankStatementLine, *ParseStats, error) {
	return collect(ctx, bsp.base, bsp.stream, r, source, bsp.schema())
}

// ParseFile reads every statement line from a file.
func (bsp *BankStatementParser) ParseFile(ctx context.Context, filePath string) ([]*models.BankStatementLine, *ParseStats, error) {
	file, err := bsp.base.OpenFile(filePath)
	if err != nil {
		return nil, nil, err
	}
	defer file.Close()
	return bsp.Parse(ctx, file, filePath)
}

// Stream delivers the lines of r to fn in batches.
func (bsp *BankStatementParser) Stream(ctx context.Context, r io.Reader, source string, fn func([]*models.BankStatementLine) error) (*ParseStats, error) {
	return stream(ctx, bsp.base, bsp.stream, r, source, bsp.schema(), fn)
}

// StreamFile delivers the lines of a file to fn in batches.
func (bsp *BankStatementParser) StreamFile(ctx context.Context, filePath string, fn func([]*models.BankStatementLine) error) (*ParseStats, error) {
	return streamFile(ctx, bsp.base, bsp.stream, filePath, bsp.schema(), fn)
}

func (bsp *BankStatementParser) decode(pc *ParseContext, row []string) (*models.BankStatementLine, *RowError) {
	c := bsp.columns
	line := &models.BankStatementLine{
		ID:          pc.Field(row, c.ID),
		CompanyCNPJ: pc.Field(row, c.CompanyCNPJ),
		Description: pc.Field(row, c.Description),
	}

	var err *RowError
	if line.MovementDate, err = requiredDate(pc, row, c.MovementDate); err != nil {
		return nil, err
	}
	if line.Amount, err = requiredAmount(pc, row, c.Amount); err != nil {
		return nil, err
	}

	raw := pc.Field(row, c.Type)
	if raw == "" {
		line.Type = models.StatementCredit
		if line.Amount.IsNegative() {
			line.Type = models.StatementDebit
			line.Amount = line.Amount.Abs()
		}
		return line, nil
	}

	typ, perr := models.ParseStatementType(raw)
	if perr != nil {
		return nil, &RowError{Line: pc.Line, Column: c.Type, Value: raw, Err: perr}
	}
	if typ == models.StatementCredit && line.Amount.IsNegative() {
		return nil, &RowError{
			Line:   pc.Line,
			Column: c.Amount,
			Value:  line.Amount.String(),
			Err:    fmt.Errorf("credit line cannot have a negative amount"),
		}
	}
	line.Type = typ
	line.Amount = line.Amount.Abs()
	return line, nil
}
