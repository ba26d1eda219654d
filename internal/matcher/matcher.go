package matcher

import (
	"fmt"
	"sort"

	"card-reconciliation-service/internal/models"

	"github.com/shopspring/decimal"
)

// MaxScore is the highest score a candidate can reach.
const MaxScore = 100

var (
	hundred = decimal.NewFromInt(100)

	// amount component thresholds, in percent, checked in order
	amountBands = []struct {
		below  decimal.Decimal
		points int
	}{
		{decimal.RequireFromString("0.01"), 60},
		{decimal.RequireFromString("0.5"), 50},
		{decimal.NewFromInt(1), 40},
		{decimal.NewFromInt(2), 30},
	}
)

// Outcome represents what the engine should do with a settlement after matching.
type Outcome int

const (
	// OutcomeMatched means the best candidate reached the minimum score and
	// must be committed as a reconciliation.
	OutcomeMatched Outcome = iota

	// OutcomeLowScore means eligible candidates existed but none reached the
	// minimum score.
	OutcomeLowScore

	// OutcomeNotFound means no candidate passed the tolerance ceiling, or
	// there were no candidates at all.
	OutcomeNotFound
)

// String returns the string representation of Outcome
func (o Outcome) String() string {
	switch o {
	case OutcomeMatched:
		return "Matched"
	case OutcomeLowScore:
		return "LowScore"
	case OutcomeNotFound:
		return "NotFound"
	default:
		return "Unknown"
	}
}

// Candidate is a scored bank statement line.
type Candidate struct {
	Line             *models.BankStatementLine
	DateDiffDays     int
	ValueDiffPercent decimal.Decimal
	Score            int
}

// Decision is the result of matching one settlement against its candidates.
type Decision struct {
	Outcome Outcome

	// Best is the winning candidate. Nil when Outcome is OutcomeNotFound.
	Best *Candidate

	// Considered is the number of lines inside the window, Eligible the number
	// that passed the tolerance ceiling.
	Considered int
	Eligible   int

	// Difference is line amount minus net settlement amount of Best.
	Difference decimal.Decimal
	Status     models.ReconciliationStatus
	Confidence float64
}

// String returns a string representation of the Decision
func (d *Decision) String() string {
	if d.Best == nil {
		return fmt.Sprintf("Decision{Outcome: %s, Considered: %d, Eligible: %d}", d.Outcome, d.Considered, d.Eligible)
	}
	return fmt.Sprintf("Decision{Outcome: %s, Line: %s, Score: %d, Status: %s, Considered: %d, Eligible: %d}",
		d.Outcome, d.Best.Line.ID, d.Best.Score, d.Status, d.Considered, d.Eligible)
}

// Score combines the date and amount components into a 0..100 score.
func Score(dateDiffDays int, valueDiffPercent decimal.Decimal) int {
	return datePoints(dateDiffDays) + amountPoints(valueDiffPercent)
}

func datePoints(days int) int {
	if days < 0 {
		days = -days
	}
	switch {
	case days == 0:
		return 40
	case days == 1:
		return 30
	case days <= 3:
		return 20
	default:
		return 0
	}
}

func amountPoints(pct decimal.Decimal) int {
	pct = pct.Abs()
	for _, band := range amountBands {
		if pct.LessThan(band.below) {
			return band.points
		}
	}
	return 0
}

// ValueDiffPercent returns |a-b| / max(a,b) * 100. The second result is false
// when the larger amount is not positive, in which case no percentage exists.
func ValueDiffPercent(a, b decimal.Decimal) (decimal.Decimal, bool) {
	larger := decimal.Max(a, b)
	if !larger.IsPositive() {
		return decimal.Zero, false
	}
	return a.Sub(b).Abs().Div(larger).Mul(hundred), true
}

// SortCandidates orders lines by movement date, then by id. The order decides
// which line wins a score tie.
func SortCandidates(lines []*models.BankStatementLine) {
	sort.SliceStable(lines, func(i, j int) bool {
		di, dj := models.Day(lines[i].MovementDate), models.Day(lines[j].MovementDate)
		if !di.Equal(dj) {
			return di.Before(dj)
		}
		return lines[i].ID < lines[j].ID
	})
}

// Matcher scores candidate lines for settlements.
type Matcher struct {
	config     *MatchingConfig
	maxDiffPct decimal.Decimal
}

// NewMatcher creates a matcher. A nil config selects DefaultMatchingConfig.
func NewMatcher(config *MatchingConfig) (*Matcher, error) {
	if config == nil {
		config = DefaultMatchingConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid matching configuration: %w", err)
	}

	return &Matcher{
		config:     config.Clone(),
		maxDiffPct: decimal.NewFromFloat(config.MaxValueDiffPercent),
	}, nil
}

// Config returns a copy of the matcher configuration.
func (m *Matcher) Config() *MatchingConfig {
	return m.config.Clone()
}

// Evaluate decides the fate of a settlement given the lines returned by the
// candidate search. Lines of other companies, debit lines and lines outside
// the window are ignored, so lines prefetched for a wider range can be
// passed as is. The input slice is not modified.
func (m *Matcher) Evaluate(s *models.CardSettlement, lines []*models.BankStatementLine) *Decision {
	expected := m.config.ExpectedDate(s.SaleDate)

	candidates := make([]*models.BankStatementLine, 0, len(lines))
	for _, line := range lines {
		if line == nil || line.CompanyCNPJ != s.CompanyCNPJ || !line.IsCredit() {
			continue
		}
		if !m.config.InWindow(s.SaleDate, line.MovementDate) {
			continue
		}
		candidates = append(candidates, line)
	}
	SortCandidates(candidates)

	decision := &Decision{Outcome: OutcomeNotFound, Considered: len(candidates)}

	for _, line := range candidates {
		pct, ok := ValueDiffPercent(line.Amount, s.NetAmount)
		if !ok || pct.GreaterThan(m.maxDiffPct) {
			continue
		}
		decision.Eligible++

		dateDiff := models.DaysBetween(line.MovementDate, expected)
		score := Score(dateDiff, pct)

		// first maximum wins
		if decision.Best == nil || score > decision.Best.Score {
			decision.Best = &Candidate{
				Line:             line,
				DateDiffDays:     dateDiff,
				ValueDiffPercent: pct,
				Score:            score,
			}
		}
	}

	if decision.Best == nil {
		return decision
	}

	decision.Difference = decision.Best.Line.Amount.Sub(s.NetAmount)
	if decision.Best.Score < m.config.MinScore {
		decision.Outcome = OutcomeLowScore
		return decision
	}

	decision.Outcome = OutcomeMatched
	decision.Confidence = float64(decision.Best.Score) / float64(MaxScore)
	decision.Status = models.StatusDivergent
	if decision.Difference.Abs().LessThan(m.config.ExactTolerance) {
		decision.Status = models.StatusOK
	}

	return decision
}
