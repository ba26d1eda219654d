package reconciler

import (
	"fmt"
	"strings"
	"time"

	"card-reconciliation-service/internal/fees"
	"card-reconciliation-service/internal/matcher"
)

// Config holds configuration options for a reconciliation run
type Config struct {
	Matching *matcher.MatchingConfig
	Fees     *fees.Config
	Rates    *fees.RateTable

	// PrefetchStatements loads each company's bank lines once for the union
	// of all settlement windows instead of querying per settlement.
	PrefetchStatements bool

	// ProgressInterval is how often progress is logged during a batch.
	ProgressInterval time.Duration
}

// DefaultConfig returns the production defaults
func DefaultConfig() *Config {
	return &Config{
		Matching:         matcher.DefaultMatchingConfig(),
		Fees:             fees.DefaultConfig(),
		Rates:            fees.DefaultRateTable(),
		ProgressInterval: 5 * time.Second,
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Matching == nil {
		return fmt.Errorf("matching configuration is required")
	}
	if err := c.Matching.Validate(); err != nil {
		return fmt.Errorf("matching: %w", err)
	}
	if c.Fees == nil {
		return fmt.Errorf("fee configuration is required")
	}
	if err := c.Fees.Validate(); err != nil {
		return fmt.Errorf("fees: %w", err)
	}
	if c.Rates == nil {
		return fmt.Errorf("fee rate table is required")
	}
	if c.ProgressInterval < 0 {
		return fmt.Errorf("progress interval cannot be negative")
	}
	return nil
}

// RunRequest selects the settlements of one run
type RunRequest struct {
	// CompanyCNPJ restricts the run to one company. Empty means all.
	CompanyCNPJ string `json:"company_cnpj,omitempty" validate:"omitempty,max=32"`
}

// Normalize trims the request fields in place.
func (r *RunRequest) Normalize() {
	r.CompanyCNPJ = strings.TrimSpace(r.CompanyCNPJ)
}

// RunSummary counts what a run did.
type RunSummary struct {
	CompanyCNPJ string `json:"company_cnpj,omitempty"`

	TransactionsProcessed int `json:"transactions_processed"`
	// Reconciled is the number of reconciliation rows the store accepted.
	Reconciled int `json:"reconciled"`
	// ValidatedFees is the number of fee checks that raised an alert.
	ValidatedFees int `json:"validated_fees"`
	// AlertsCreated is the number of alert rows the store accepted.
	AlertsCreated int `json:"alerts_created"`

	Matched              int `json:"matched"`
	Skipped              int `json:"skipped"`
	MarkFailures         int `json:"mark_failures"`
	NotFoundAlerts       int `json:"not_found_alerts"`
	ValueDivergentAlerts int `json:"value_divergent_alerts"`
	DuplicateGroups      int `json:"duplicate_groups"`
	ContendedLines       int `json:"contended_lines"`

	StartTime time.Time     `json:"start_time"`
	Duration  time.Duration `json:"duration"`
}

// Empty reports whether the run found nothing to process.
func (s *RunSummary) Empty() bool {
	return s.TransactionsProcessed == 0
}

// String returns a string representation of the RunSummary
func (s *RunSummary) String() string {
	return fmt.Sprintf("RunSummary{Processed: %d, Reconciled: %d, FeeAlerts: %d, Alerts: %d, Skipped: %d}",
		s.TransactionsProcessed, s.Reconciled, s.ValidatedFees, s.AlertsCreated, s.Skipped)
}
