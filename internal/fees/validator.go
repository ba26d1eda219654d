package fees

import (
	"fmt"
	"strings"

	"card-reconciliation-service/internal/models"

	"github.com/shopspring/decimal"
)

// Config holds the thresholds used to judge an observed fee.
type Config struct {
	// DivergenceThreshold is the absolute difference, in percentage points,
	// above which a fee is reported.
	DivergenceThreshold decimal.Decimal `json:"divergence_threshold"`

	// HighPriorityThreshold is the absolute difference above which the
	// report is high priority instead of medium.
	HighPriorityThreshold decimal.Decimal `json:"high_priority_threshold"`

	// DefaultBrand is looked up when a settlement carries no brand.
	DefaultBrand string `json:"default_brand"`
}

// DefaultConfig returns the thresholds used in production
func DefaultConfig() *Config {
	return &Config{
		DivergenceThreshold:   decimal.RequireFromString("0.1"),
		HighPriorityThreshold: decimal.NewFromInt(1),
		DefaultBrand:          "visa",
	}
}

// Validate checks if the fee configuration is valid
func (c *Config) Validate() error {
	if c.DivergenceThreshold.IsNegative() {
		return fmt.Errorf("divergence threshold cannot be negative: %s", c.DivergenceThreshold)
	}
	if c.HighPriorityThreshold.LessThan(c.DivergenceThreshold) {
		return fmt.Errorf("high priority threshold %s is below divergence threshold %s",
			c.HighPriorityThreshold, c.DivergenceThreshold)
	}
	return nil
}

// Divergence describes an observed fee that differs from the expected rate.
type Divergence struct {
	Operator   string
	Brand      string
	Expected   decimal.Decimal
	Observed   decimal.Decimal
	Difference decimal.Decimal // observed - expected
	Priority   models.AlertPriority
}

// RelativePercent is the difference as a percentage of the expected rate.
func (d *Divergence) RelativePercent() decimal.Decimal {
	if d.Expected.IsZero() {
		return decimal.Zero
	}
	return d.Difference.Div(d.Expected).Mul(decimal.NewFromInt(100))
}

// Validator compares settlement fees with a rate table.
type Validator struct {
	table  *RateTable
	config *Config
}

// NewValidator creates a validator. A nil table or config selects the defaults.
func NewValidator(table *RateTable, config *Config) (*Validator, error) {
	if table == nil {
		table = DefaultRateTable()
	}
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid fee configuration: %w", err)
	}

	return &Validator{table: table, config: config}, nil
}

// Table returns the rate table the validator judges against.
func (v *Validator) Table() *RateTable {
	return v.table
}

// ExpectedRate looks up the expected rate of a settlement, applying the
// default brand when the settlement has none.
func (v *Validator) ExpectedRate(s *models.CardSettlement) (decimal.Decimal, bool) {
	brand := s.Brand
	if strings.TrimSpace(brand) == "" {
		brand = v.config.DefaultBrand
	}
	return v.table.ExpectedRate(s.Operator, brand)
}

// Check returns the fee divergence of a settlement, if any. Settlements without
// an observed fee or with an unknown operator are not judged.
func (v *Validator) Check(s *models.CardSettlement) (*Divergence, bool) {
	observed, ok := s.ObservedFee()
	if !ok {
		return nil, false
	}

	expected, ok := v.ExpectedRate(s)
	if !ok {
		return nil, false
	}

	diff := observed.Sub(expected)
	if diff.Abs().LessThanOrEqual(v.config.DivergenceThreshold) {
		return nil, false
	}

	priority := models.PriorityMedium
	if diff.Abs().GreaterThan(v.config.HighPriorityThreshold) {
		priority = models.PriorityHigh
	}

	return &Divergence{
		Operator:   s.Operator,
		Brand:      s.Brand,
		Expected:   expected,
		Observed:   observed,
		Difference: diff,
		Priority:   priority,
	}, true
}
