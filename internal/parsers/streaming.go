package parsers

import (
	"context"
	"fmt"
	"io"

	"card-reconciliation-service/pkg/errors"
	"card-reconciliation-service/pkg/logger"
)

// record is a decoded row that can check itself.
type record interface {
	Validate() error
}

// decodeFunc turns one CSV row into a record.
type decodeFunc[T record] func(pc *ParseContext, row []string) (T, *RowError)

// rowSchema describes one kind of file for stream.
type rowSchema[T record] struct {
	operation string
	required  []string
	decode    decodeFunc[T]
}

// stream reads r row by row, decodes and validates each row, and hands
// the valid records to fn in batches of config.BatchSize. Rejected rows are
// collected in the returned stats. A batch slice is never reused after fn
// returns.
func stream[T record](
	ctx context.Context,
	bp *BaseParser,
	config *StreamConfig,
	r io.Reader,
	source string,
	schema rowSchema[T],
	fn func([]T) error,
) (*ParseStats, error) {
	reader := bp.NewReader(r)
	pc := NewParseContext(ctx, source)
	stats := &ParseStats{Source: source}

	opLogger := logger.NewOperationLogger(schema.operation, bp.logger).WithField("source", source)

	if err := bp.ReadHeaders(reader, pc, schema.required); err != nil {
		opLogger.Error(err, "Failed to read headers", nil)
		return stats, err
	}

	progress := logger.NewProgressTracker(logger.ProgressConfig{
		Operation:   schema.operation,
		LogInterval: config.ProgressInterval,
		Logger:      bp.logger,
	})

	batch := make([]T, 0, config.BatchSize)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := fn(batch); err != nil {
			return fmt.Errorf("batch ending at line %d: %w", pc.Line, err)
		}
		batch = make([]T, 0, config.BatchSize)
		return nil
	}

	reject := func(rowErr *RowError) error {
		stats.AddError(rowErr)
		bp.logger.WithError(rowErr.Err).WithFields(logger.Fields{
			"source": source,
			"line":   rowErr.Line,
			"column": rowErr.Column,
		}).Debug("Skipping invalid row")
		if config.MaxErrors > 0 && stats.ErrorCount() >= config.MaxErrors {
			return errors.ParseError(
				errors.CodeInvalidData,
				source,
				rowErr.Line,
				rowErr.Column,
				rowErr.Value,
				fmt.Errorf("too many invalid rows (%d)", stats.ErrorCount()),
			).WithSuggestion("check that the file matches the expected column layout")
		}
		return nil
	}

	for {
		row, err := bp.ReadRecord(reader, pc)
		if err == io.EOF {
			break
		}
		if err != nil {
			stats.TotalLines = pc.Line
			if rowErr, ok := err.(*RowError); ok {
				if err := reject(rowErr); err != nil {
					return stats, err
				}
				continue
			}
			opLogger.Error(err, "Parsing was interrupted", logger.Fields{"line": pc.Line})
			return stats, errors.InternalError(errors.CodeUnexpectedError, schema.operation, err)
		}

		stats.RecordsParsed++
		progress.Increment()

		item, rowErr := schema.decode(pc, row)
		if rowErr == nil {
			if err := item.Validate(); err != nil {
				rowErr = &RowError{Line: pc.Line, Err: err}
			}
		}
		if rowErr != nil {
			if err := reject(rowErr); err != nil {
				stats.TotalLines = pc.Line
				return stats, err
			}
			continue
		}

		stats.RecordsValid++
		batch = append(batch, item)
		if len(batch) >= config.BatchSize {
			if err := flush(); err != nil {
				stats.TotalLines = pc.Line
				return stats, err
			}
		}
	}

	stats.TotalLines = pc.Line
	if err := flush(); err != nil {
		return stats, err
	}

	fields := logger.Fields{
		"total_lines":    stats.TotalLines,
		"records_parsed": stats.RecordsParsed,
		"records_valid":  stats.RecordsValid,
		"error_count":    stats.ErrorCount(),
	}
	if stats.HasErrors() {
		fields["sample_errors"] = stats.SampleErrors(3)
	}
	opLogger.Success("Parsing completed", fields)
	return stats, nil
}

// collect parses the whole input into memory.
func collect[T record](
	ctx context.Context,
	bp *BaseParser,
	config *StreamConfig,
	r io.Reader,
	source string,
	schema rowSchema[T],
) ([]T, *ParseStats, error) {
	var out []T
	stats, err := stream(ctx, bp, config, r, source, schema, func(batch []T) error {
		out = append(out, batch...)
		return nil
	})
	return out, stats, err
}

// streamFile opens filePath and streams it.
func streamFile[T record](
	ctx context.Context,
	bp *BaseParser,
	config *StreamConfig,
	filePath string,
	schema rowSchema[T],
	fn func([]T) error,
) (*ParseStats, error) {
	file, err := bp.OpenFile(filePath)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	return stream(ctx, bp, config, file, filePath, schema, fn)
}
