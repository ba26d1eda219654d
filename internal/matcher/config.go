// Package matcher pairs card settlements with the bank statement credit that
// paid them.
//
// Matching is a single-settlement decision. For each settlement the engine
// computes the expected payout date (sale date plus the settlement lag), looks
// at every credit line of the same company inside a symmetric window around
// that date, and scores each line on date proximity and amount proximity:
//
//	date points:   0 days -> 40, 1 day -> 30, 2-3 days -> 20, otherwise 0
//	amount points: <0.01% -> 60, <0.5% -> 50, <1% -> 40, <2% -> 30, otherwise 0
//
// Lines whose amount differs from the net settlement by more than the
// tolerance ceiling are discarded before scoring. The best-scoring line is
// committed when it reaches the minimum score.
//
// Example usage:
//
//	config := matcher.DefaultMatchingConfig()
//	m, err := matcher.NewMatcher(config)
//	from, to := config.Window(settlement.SaleDate)
//	lines, _ := store.ListCredits(ctx, settlement.CompanyCNPJ, from, to)
//	decision := m.Evaluate(settlement, lines)
package matcher

import (
	"fmt"
	"time"

	"card-reconciliation-service/internal/models"

	"github.com/shopspring/decimal"
)

// MatchingConfig holds configuration parameters for settlement matching.
type MatchingConfig struct {
	// SettlementLagDays is the number of days between a card sale and the
	// expected bank deposit.
	SettlementLagDays int `json:"settlement_lag_days"`

	// WindowDays is the half-width of the search window around the expected
	// date, inclusive on both ends.
	WindowDays int `json:"window_days"`

	// MaxValueDiffPercent is the tolerance ceiling: candidates whose relative
	// amount difference exceeds it are not scored at all.
	MaxValueDiffPercent float64 `json:"max_value_diff_percent"`

	// MinScore is the minimum score (0..100) for committing a match.
	MinScore int `json:"min_score"`

	// ExactTolerance is the absolute amount difference under which a
	// committed match is considered exact.
	ExactTolerance decimal.Decimal `json:"exact_tolerance"`
}

// DefaultMatchingConfig returns a configuration with the standard card
// network settlement rules.
func DefaultMatchingConfig() *MatchingConfig {
	return &MatchingConfig{
		SettlementLagDays:   2,
		WindowDays:          3,
		MaxValueDiffPercent: 2.0,
		MinScore:            70,
		ExactTolerance:      decimal.RequireFromString("0.01"),
	}
}

// Validate checks if the matching configuration is valid
func (mc *MatchingConfig) Validate() error {
	if mc.SettlementLagDays < 0 {
		return fmt.Errorf("settlement lag days cannot be negative: %d", mc.SettlementLagDays)
	}

	if mc.WindowDays < 0 {
		return fmt.Errorf("window days cannot be negative: %d", mc.WindowDays)
	}

	if mc.MaxValueDiffPercent < 0.0 || mc.MaxValueDiffPercent > 100.0 {
		return fmt.Errorf("max value diff percent must be between 0.0 and 100.0: %f", mc.MaxValueDiffPercent)
	}

	if mc.MinScore < 1 || mc.MinScore > MaxScore {
		return fmt.Errorf("min score must be between 1 and %d: %d", MaxScore, mc.MinScore)
	}

	if mc.ExactTolerance.IsNegative() {
		return fmt.Errorf("exact tolerance cannot be negative: %s", mc.ExactTolerance)
	}

	return nil
}

// Clone creates a deep copy of the matching configuration
func (mc *MatchingConfig) Clone() *MatchingConfig {
	if mc == nil {
		return nil
	}

	clone := *mc
	return &clone
}

// ExpectedDate returns the day the acquirer is expected to pay a sale.
func (mc *MatchingConfig) ExpectedDate(saleDate time.Time) time.Time {
	return models.Day(saleDate).AddDate(0, 0, mc.SettlementLagDays)
}

// Window returns the inclusive movement date range searched for a sale.
func (mc *MatchingConfig) Window(saleDate time.Time) (from, to time.Time) {
	expected := mc.ExpectedDate(saleDate)
	return expected.AddDate(0, 0, -mc.WindowDays), expected.AddDate(0, 0, mc.WindowDays)
}

// InWindow reports whether a movement date falls inside the window of a sale.
func (mc *MatchingConfig) InWindow(saleDate, movementDate time.Time) bool {
	from, to := mc.Window(saleDate)
	d := models.Day(movementDate)
	return !d.Before(from) && !d.After(to)
}

// String returns a human-readable description of the configuration
func (mc *MatchingConfig) String() string {
	return fmt.Sprintf("MatchingConfig{Lag: %d days, Window: ±%d days, MaxValueDiff: %.2f%%, MinScore: %d, ExactTolerance: %s}",
		mc.SettlementLagDays, mc.WindowDays, mc.MaxValueDiffPercent, mc.MinScore, mc.ExactTolerance)
}
