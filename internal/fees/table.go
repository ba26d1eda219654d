// Package fees validates the merchant discount rate charged on card sales
// against a reference table of expected rates per acquirer and card brand.
//
// Acquirer and brand names arrive as free text ("Stone Pagamentos", "MASTER",
// "mastercard"), so lookups use bidirectional substring containment on the
// normalized names. Table order breaks ties: the first declared operator that
// matches wins, and within an operator the first declared brand that matches
// wins. An operator without a matching brand falls back to its first declared
// rate.
package fees

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// BrandRate is the expected fee percent for one card brand.
type BrandRate struct {
	Brand string          `json:"brand"`
	Rate  decimal.Decimal `json:"rate"`
}

// OperatorRates lists the expected rates of one acquirer, in declaration order.
type OperatorRates struct {
	Operator string      `json:"operator"`
	Brands   []BrandRate `json:"brands"`
}

// RateTable is an immutable, ordered operator -> brand -> rate table.
type RateTable struct {
	operators []OperatorRates
}

// NewRateTable builds a table from the given entries. Names are normalized
// and the entries are copied, so later changes to the input are not seen.
func NewRateTable(entries []OperatorRates) (*RateTable, error) {
	if len(entries) == 0 {
		return nil, fmt.Errorf("rate table must have at least one operator")
	}

	seen := make(map[string]bool, len(entries))
	operators := make([]OperatorRates, 0, len(entries))

	for _, entry := range entries {
		key := normalize(entry.Operator)
		if key == "" {
			return nil, fmt.Errorf("rate table has an operator with an empty name")
		}
		if seen[key] {
			return nil, fmt.Errorf("operator %q declared twice", key)
		}
		seen[key] = true

		if len(entry.Brands) == 0 {
			return nil, fmt.Errorf("operator %q has no brand rates", key)
		}

		brands := make([]BrandRate, 0, len(entry.Brands))
		for _, br := range entry.Brands {
			brand := normalize(br.Brand)
			if brand == "" {
				return nil, fmt.Errorf("operator %q has a brand with an empty name", key)
			}
			if br.Rate.IsNegative() {
				return nil, fmt.Errorf("operator %q brand %q has a negative rate %s", key, brand, br.Rate)
			}
			brands = append(brands, BrandRate{Brand: brand, Rate: br.Rate})
		}

		operators = append(operators, OperatorRates{Operator: key, Brands: brands})
	}

	return &RateTable{operators: operators}, nil
}

// DefaultRateTable returns the reference rates negotiated with the acquirers
// the platform integrates with.
func DefaultRateTable() *RateTable {
	table, err := NewRateTable(DefaultRates())
	if err != nil {
		panic(fmt.Sprintf("default rate table is invalid: %v", err))
	}
	return table
}

// DefaultRates returns the entries of DefaultRateTable. Callers get a fresh
// slice and may modify it.
func DefaultRates() []OperatorRates {
	rate := decimal.RequireFromString
	return []OperatorRates{
		{Operator: "stone", Brands: []BrandRate{
			{"visa", rate("2.50")}, {"master", rate("2.75")}, {"elo", rate("2.65")},
		}},
		{Operator: "cielo", Brands: []BrandRate{
			{"visa", rate("2.99")}, {"master", rate("3.19")}, {"elo", rate("2.99")},
		}},
		{Operator: "rede", Brands: []BrandRate{
			{"visa", rate("2.80")}, {"master", rate("3.00")}, {"elo", rate("2.90")},
		}},
		{Operator: "global-payments", Brands: []BrandRate{
			{"visa", rate("2.70")}, {"master", rate("2.95")}, {"elo", rate("2.80")},
		}},
		{Operator: "getnet", Brands: []BrandRate{
			{"visa", rate("2.50")}, {"master", rate("2.70")}, {"elo", rate("2.60")},
		}},
	}
}

// Operators returns the operator keys in declaration order.
func (t *RateTable) Operators() []string {
	keys := make([]string, len(t.operators))
	for i, op := range t.operators {
		keys[i] = op.Operator
	}
	return keys
}

// ResolveOperatorKey returns the first table operator whose key contains the
// normalized input or is contained by it. An empty input matches nothing.
func ResolveOperatorKey(input string, table *RateTable) (string, bool) {
	if table == nil {
		return "", false
	}
	idx, ok := table.operatorIndex(input)
	if !ok {
		return "", false
	}
	return table.operators[idx].Operator, true
}

// ExpectedRate returns the expected fee percent for an operator and brand.
// The second result is false when no operator entry matches.
func (t *RateTable) ExpectedRate(operator, brand string) (decimal.Decimal, bool) {
	idx, ok := t.operatorIndex(operator)
	if !ok {
		return decimal.Zero, false
	}

	brands := t.operators[idx].Brands
	if b := normalize(brand); b != "" {
		for _, br := range brands {
			if containsEither(b, br.Brand) {
				return br.Rate, true
			}
		}
	}

	return brands[0].Rate, true
}

func (t *RateTable) operatorIndex(input string) (int, bool) {
	name := normalize(input)
	// "" is contained in every key; a blank operator matches nothing
	if name == "" {
		return 0, false
	}
	for i, op := range t.operators {
		if containsEither(name, op.Operator) {
			return i, true
		}
	}
	return 0, false
}

func containsEither(input, key string) bool {
	return strings.Contains(input, key) || strings.Contains(key, input)
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
