package reconciler

import (
	"strings"

	"card-reconciliation-service/internal/models"
)

// DataPreprocessor normalizes records read from the store before matching.
// Inputs are never modified; normalized copies are returned.
type DataPreprocessor struct {
	stats PreprocessingStats
}

// PreprocessingStats counts what the preprocessor did
type PreprocessingStats struct {
	Settlements int
	Lines       int
	Rejected    int
	Normalized  int
}

// NewDataPreprocessor creates a new data preprocessor
func NewDataPreprocessor() *DataPreprocessor {
	return &DataPreprocessor{}
}

// RejectedSettlement is a settlement that cannot be matched at all.
type RejectedSettlement struct {
	Settlement *models.CardSettlement
	Err        error
}

// PreprocessSettlements trims text fields and truncates dates to the day.
// Settlements that fail validation are returned separately, in input order.
func (dp *DataPreprocessor) PreprocessSettlements(settlements []*models.CardSettlement) ([]*models.CardSettlement, []RejectedSettlement) {
	out := make([]*models.CardSettlement, 0, len(settlements))
	var rejected []RejectedSettlement

	for _, s := range settlements {
		dp.stats.Settlements++
		if s == nil {
			continue
		}

		c := *s
		c.ID = strings.TrimSpace(c.ID)
		c.CompanyCNPJ = strings.TrimSpace(c.CompanyCNPJ)
		c.Operator = strings.TrimSpace(c.Operator)
		c.Brand = strings.TrimSpace(c.Brand)
		c.SaleDate = models.Day(c.SaleDate)
		if c != *s {
			dp.stats.Normalized++
		}

		if err := c.Validate(); err != nil {
			dp.stats.Rejected++
			rejected = append(rejected, RejectedSettlement{Settlement: s, Err: err})
			continue
		}
		out = append(out, &c)
	}
	return out, rejected
}

// PreprocessLines normalizes bank lines and drops lines that fail validation.
func (dp *DataPreprocessor) PreprocessLines(lines []*models.BankStatementLine) []*models.BankStatementLine {
	out := make([]*models.BankStatementLine, 0, len(lines))
	for _, l := range lines {
		dp.stats.Lines++
		if l == nil {
			continue
		}

		c := *l
		c.CompanyCNPJ = strings.TrimSpace(c.CompanyCNPJ)
		c.MovementDate = models.Day(c.MovementDate)

		if err := c.Validate(); err != nil {
			dp.stats.Rejected++
			continue
		}
		out = append(out, &c)
	}
	return out
}

// GetStatistics returns the counters accumulated so far
func (dp *DataPreprocessor) GetStatistics() PreprocessingStats {
	return dp.stats
}
