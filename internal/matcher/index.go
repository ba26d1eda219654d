package matcher

import (
	"time"

	"card-reconciliation-service/internal/models"
)

// StatementIndex groups bank statement credit lines by company and movement
// date, so lines prefetched for a whole run can be partitioned per settlement
// window without another round trip to the store.
type StatementIndex struct {
	// DateIndex maps company -> date string (YYYY-MM-DD) -> lines
	DateIndex map[string]map[string][]*models.BankStatementLine

	// AllStatements holds all indexed lines in insertion order
	AllStatements []*models.BankStatementLine
}

// IndexStats provides statistics about index usage
type IndexStats struct {
	TotalStatements int
	UniqueCompanies int
	UniqueDates     int
}

// NewStatementIndex creates a new index from a slice of lines. Debit lines are
// not indexed.
func NewStatementIndex(lines []*models.BankStatementLine) *StatementIndex {
	index := &StatementIndex{
		DateIndex:     make(map[string]map[string][]*models.BankStatementLine),
		AllStatements: make([]*models.BankStatementLine, 0, len(lines)),
	}

	for _, line := range lines {
		index.AddStatement(line)
	}
	return index
}

// AddStatement adds a line to the index
func (si *StatementIndex) AddStatement(line *models.BankStatementLine) {
	if line == nil || !line.IsCredit() {
		return
	}

	si.AllStatements = append(si.AllStatements, line)

	byDate, exists := si.DateIndex[line.CompanyCNPJ]
	if !exists {
		byDate = make(map[string][]*models.BankStatementLine)
		si.DateIndex[line.CompanyCNPJ] = byDate
	}

	dateKey := line.MovementDate.Format(models.DateLayout)
	byDate[dateKey] = append(byDate[dateKey], line)
}

// GetByDate returns lines of a company for the specified date
func (si *StatementIndex) GetByDate(company string, date time.Time) []*models.BankStatementLine {
	byDate := si.DateIndex[company]
	if byDate == nil {
		return nil
	}
	return byDate[models.Day(date).Format(models.DateLayout)]
}

// GetByDateRange returns lines of a company within the specified date range (inclusive)
func (si *StatementIndex) GetByDateRange(company string, startDate, endDate time.Time) []*models.BankStatementLine {
	byDate := si.DateIndex[company]
	if byDate == nil {
		return nil
	}

	var result []*models.BankStatementLine

	current := models.Day(startDate)
	end := models.Day(endDate)
	for !current.After(end) {
		if lines, exists := byDate[current.Format(models.DateLayout)]; exists {
			result = append(result, lines...)
		}
		current = current.AddDate(0, 0, 1)
	}

	return result
}

// GetCandidates returns the lines inside the search window of a settlement.
func (si *StatementIndex) GetCandidates(s *models.CardSettlement, config *MatchingConfig) []*models.BankStatementLine {
	from, to := config.Window(s.SaleDate)
	return si.GetByDateRange(s.CompanyCNPJ, from, to)
}

// GetIndexStats returns statistics about the index
func (si *StatementIndex) GetIndexStats() IndexStats {
	dates := 0
	for _, byDate := range si.DateIndex {
		dates += len(byDate)
	}
	return IndexStats{
		TotalStatements: len(si.AllStatements),
		UniqueCompanies: len(si.DateIndex),
		UniqueDates:     dates,
	}
}

// UnionWindow returns the smallest date range covering the search windows of
// all given settlements. ok is false for an empty slice.
func UnionWindow(settlements []*models.CardSettlement, config *MatchingConfig) (from, to time.Time, ok bool) {
	for _, s := range settlements {
		f, t := config.Window(s.SaleDate)
		if !ok || f.Before(from) {
			from = f
		}
		if !ok || t.After(to) {
			to = t
		}
		ok = true
	}
	return from, to, ok
}
