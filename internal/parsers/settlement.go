package parsers

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"card-reconciliation-service/internal/models"
	"card-reconciliation-service/pkg/errors"
	"card-reconciliation-service/pkg/logger"

	"github.com/shopspring/decimal"
)

// SettlementParser reads card settlement exports.
type SettlementParser struct {
	base    *BaseParser
	columns *SettlementColumns
	stream  *StreamConfig
}

// SettlementParserOptions configures a SettlementParser. Nil fields take
// their defaults.
type SettlementParserOptions struct {
	Columns *SettlementColumns
	Parse   *ParseConfig
	Stream  *StreamConfig
	Logger  logger.Logger
}

// NewSettlementParser creates a parser. opts may be nil.
func NewSettlementParser(opts *SettlementParserOptions) (*SettlementParser, error) {
	if opts == nil {
		opts = &SettlementParserOptions{}
	}
	columns := opts.Columns
	if columns == nil {
		columns = DefaultSettlementColumns()
	}
	if err := columns.Validate(); err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "settlement_columns", columns, err)
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

	return &SettlementParser{
		base:    NewBaseParser(opts.Parse, log.WithComponent("settlement_parser")),
		columns: columns,
		stream:  streamConfig,
	}, nil
}

func (sp *SettlementParser) schema() rowSchema[*models.CardSettlement] {
	return rowSchema[*models.CardSettlement]{
		operation: "parse_settlements",
		required:  sp.columns.Required(),
		decode:    sp.decode,
	}
}

// Parse reads every settlement from r.
func (sp *SettlementParser) Parse(ctx context.Context, r io.Reader, source string) ([]*models.CardSettlement, *ParseStats, error) {
	return collect(ctx, sp.base, sp.stream, r, source, sp.schema())
}

// ParseFile reads every settlement from a file.
func (sp *SettlementParser) ParseFile(ctx context.Context, filePath string) ([]*models.CardSettlement, *ParseStats, error) {
	file, err := sp.base.OpenFile(filePath)
	if err != nil {
		return nil, nil, err
	}
	defer file.Close()
	return sp.Parse(ctx, file, filePath)
}

// Stream delivers the settlements of r to fn in batches.
func (sp *SettlementParser) Stream(ctx context.Context, r io.Reader, source string, fn func([]*models.CardSettlement) error) (*ParseStats, error) {
	return stream(ctx, sp.base, sp.stream, r, source, sp.schema(), fn)
}

// StreamFile delivers the settlements of a file to fn in batches.
func (sp *SettlementParser) StreamFile(ctx context.Context, filePath string, fn func([]*models.CardSettlement) error) (*ParseStats, error) {
	return streamFile(ctx, sp.base, sp.stream, filePath, sp.schema(), fn)
}

func (sp *SettlementParser) decode(pc *ParseContext, row []string) (*models.CardSettlement, *RowError) {
	c := sp.columns
	s := &models.CardSettlement{
		ID:          pc.Field(row, c.ID),
		CompanyCNPJ: pc.Field(row, c.CompanyCNPJ),
		Operator:    pc.Field(row, c.Operator),
		Brand:       pc.Field(row, c.Brand),
	}

	var err *RowError
	if s.SaleDate, err = requiredDate(pc, row, c.SaleDate); err != nil {
		return nil, err
	}
	if s.GrossAmount, err = requiredAmount(pc, row, c.GrossAmount); err != nil {
		return nil, err
	}
	if s.NetAmount, err = requiredAmount(pc, row, c.NetAmount); err != nil {
		return nil, err
	}
	if s.FeePercent, err = optionalAmount(pc, row, c.FeePercent); err != nil {
		return nil, err
	}
	if s.FeeAmount, err = optionalAmount(pc, row, c.FeeAmount); err != nil {
		return nil, err
	}

	if raw := pc.Field(row, c.Reconciled); raw != "" {
		reconciled, perr := parseFlag(raw)
		if perr != nil {
			return nil, &RowError{Line: pc.Line, Column: c.Reconciled, Value: raw, Err: perr}
		}
		s.Reconciled = reconciled
	}
	if raw := pc.Field(row, c.ReceivedOn); raw != "" {
		received, perr := models.ParseDay(raw)
		if perr != nil {
			return nil, &RowError{Line: pc.Line, Column: c.ReceivedOn, Value: raw, Err: perr}
		}
		s.ReceivedOn = &received
	}

	return s, nil
}

func requiredDate(pc *ParseContext, row []string, column string) (time.Time, *RowError) {
	raw := pc.Field(row, column)
	if raw == "" {
		return time.Time{}, &RowError{Line: pc.Line, Column: column, Err: fmt.Errorf("value is required")}
	}
	t, err := models.ParseDay(raw)
	if err != nil {
		return time.Time{}, &RowError{Line: pc.Line, Column: column, Value: raw, Err: err}
	}
	return t, nil
}

func requiredAmount(pc *ParseContext, row []string, column string) (decimal.Decimal, *RowError) {
	raw := pc.Field(row, column)
	if raw == "" {
		return decimal.Zero, &RowError{Line: pc.Line, Column: column, Err: fmt.Errorf("value is required")}
	}
	d, err := models.ParseDecimalFromString(raw)
	if err != nil {
		return decimal.Zero, &RowError{Line: pc.Line, Column: column, Value: raw, Err: err}
	}
	return d, nil
}

// optionalAmount leaves a NullDecimal invalid when the column is absent or
// the cell is empty.
func optionalAmount(pc *ParseContext, row []string, column string) (decimal.NullDecimal, *RowError) {
	raw := pc.Field(row, column)
	if raw == "" {
		return decimal.NullDecimal{}, nil
	}
	d, err := models.ParseDecimalFromString(raw)
	if err != nil {
		return decimal.NullDecimal{}, &RowError{Line: pc.Line, Column: column, Value: raw, Err: err}
	}
	return decimal.NewNullDecimal(d), nil
}

// parseFlag accepts the boolean spellings seen in exports.
func parseFlag(s string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "t", "1", "sim", "s", "yes", "y":
		return true, nil
	case "false", "f", "0", "nao", "não", "n", "no":
		return false, nil
	default:
		return false, fmt.Errorf("invalid boolean '%s'", s)
	}
}
