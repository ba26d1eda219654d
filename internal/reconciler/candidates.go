package reconciler

import (
	"context"
	"fmt"

	"card-reconciliation-service/internal/matcher"
	"card-reconciliation-service/internal/models"
	"card-reconciliation-service/internal/store"
)

// candidateSource returns the bank lines that may pay a settlement.
type candidateSource interface {
	Candidates(ctx context.Context, s *models.CardSettlement) ([]*models.BankStatementLine, error)
}

// queryPerSettlement issues one store query per settlement.
type queryPerSettlement struct {
	reader store.StatementReader
	config *matcher.MatchingConfig
	prep   *DataPreprocessor
}

func (q *queryPerSettlement) Candidates(ctx context.Context, s *models.CardSettlement) ([]*models.BankStatementLine, error) {
	from, to := q.config.Window(s.SaleDate)
	lines, err := q.reader.ListCredits(ctx, s.CompanyCNPJ, from, to)
	if err != nil {
		return nil, err
	}
	return q.prep.PreprocessLines(lines), nil
}

// prefetched answers from one query per company covering the union of the
// windows of that company's settlements.
type prefetched struct {
	index  *matcher.StatementIndex
	config *matcher.MatchingConfig
	failed map[string]error
}

func newPrefetched(ctx context.Context, reader store.StatementReader, config *matcher.MatchingConfig,
	prep *DataPreprocessor, settlements []*models.CardSettlement) *prefetched {

	byCompany := make(map[string][]*models.CardSettlement)
	var companies []string
	for _, s := range settlements {
		if _, ok := byCompany[s.CompanyCNPJ]; !ok {
			companies = append(companies, s.CompanyCNPJ)
		}
		byCompany[s.CompanyCNPJ] = append(byCompany[s.CompanyCNPJ], s)
	}

	p := &prefetched{
		index:  matcher.NewStatementIndex(nil),
		config: config,
		failed: make(map[string]error),
	}
	for _, company := range companies {
		from, to, ok := matcher.UnionWindow(byCompany[company], config)
		if !ok {
			continue
		}
		lines, err := reader.ListCredits(ctx, company, from, to)
		if err != nil {
			p.failed[company] = fmt.Errorf("prefetch %s..%s: %w",
				from.Format(models.DateLayout), to.Format(models.DateLayout), err)
			continue
		}
		for _, line := range prep.PreprocessLines(lines) {
			p.index.AddStatement(line)
		}
	}
	return p
}

func (p *prefetched) Candidates(_ context.Context, s *models.CardSettlement) ([]*models.BankStatementLine, error) {
	if err := p.failed[s.CompanyCNPJ]; err != nil {
		return nil, err
	}
	return p.index.GetCandidates(s, p.config), nil
}
