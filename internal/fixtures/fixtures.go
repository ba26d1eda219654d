// Package fixtures generates paired card settlement and bank statement data
// sets for local runs and demos.
//
// Every generated settlement is assigned one matching scenario. Exact
// settlements get a credit for the net amount on (or one day after) the
// expected payout date, value divergent ones get a credit 0.8% above the net
// amount on the expected date, and not found ones get no credit at all.
// Independently, a share of settlements carries a fee above the reference
// rate. Debit lines are mixed in as noise.
//
// Example usage:
//
//	g := fixtures.DefaultGenerator()
//	g.Count = 500
//	ds, err := g.Generate()
//	paths, err := fixtures.WriteFiles("generated", ds, ',')
package fixtures

import (
	"fmt"
	"math/rand"
	"time"

	"card-reconciliation-service/internal/fees"
	"card-reconciliation-service/internal/matcher"
	"card-reconciliation-service/internal/models"

	"github.com/shopspring/decimal"
)

// Scenario is the matching outcome a settlement is generated for.
type Scenario string

const (
	ScenarioExact          Scenario = "exact"
	ScenarioValueDivergent Scenario = "value_divergent"
	ScenarioNotFound       Scenario = "not_found"
)

var brands = []string{"visa", "master", "elo"}

// valueDivergence is the relative premium of a value divergent credit. It
// keeps the line inside the 1% amount band, so it still scores a match.
var valueDivergence = decimal.RequireFromString("1.008")

var hundred = decimal.NewFromInt(100)

// Generator produces a Dataset. The zero value is not usable; start from
// DefaultGenerator.
type Generator struct {
	Count       int
	CompanyCNPJ string
	StartDate   time.Time
	// Days is the number of consecutive sale dates used from StartDate.
	Days int
	Seed int64

	// NotFound and ValueDivergent are the shares of settlements generated for
	// those scenarios; the rest are exact. FeeDivergent is drawn separately.
	NotFound       float64
	ValueDivergent float64
	FeeDivergent   float64

	Rates    *fees.RateTable
	Matching *matcher.MatchingConfig
}

// DefaultGenerator returns a generator for one company over March 2024.
func DefaultGenerator() *Generator {
	return &Generator{
		Count:          100,
		CompanyCNPJ:    "12345678000190",
		StartDate:      time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		Days:           30,
		Seed:           1,
		NotFound:       0.1,
		ValueDivergent: 0.1,
		FeeDivergent:   0.1,
		Rates:          fees.DefaultRateTable(),
		Matching:       matcher.DefaultMatchingConfig(),
	}
}

// Validate checks if the generator settings are usable
func (g *Generator) Validate() error {
	switch {
	case g.Count <= 0:
		return fmt.Errorf("count must be positive: %d", g.Count)
	case g.Days <= 0:
		return fmt.Errorf("days must be positive: %d", g.Days)
	case g.CompanyCNPJ == "":
		return fmt.Errorf("company cnpj is required")
	case g.Rates == nil || g.Matching == nil:
		return fmt.Errorf("rate table and matching config are required")
	}
	for name, share := range map[string]float64{
		"not found":       g.NotFound,
		"value divergent": g.ValueDivergent,
		"fee divergent":   g.FeeDivergent,
	} {
		if share < 0 || share > 1 {
			return fmt.Errorf("%s share must be between 0 and 1: %v", name, share)
		}
	}
	if g.NotFound+g.ValueDivergent > 1 {
		return fmt.Errorf("not found and value divergent shares exceed 1")
	}
	return nil
}

// Dataset is a generated set of records with the scenario of each settlement.
type Dataset struct {
	Settlements []*models.CardSettlement
	Statements  []*models.BankStatementLine
	Scenarios   map[string]Scenario
	// FeeDivergent holds the ids of settlements charged above the table rate.
	FeeDivergent map[string]bool
}

// Count returns the number of settlements generated for a scenario.
func (d *Dataset) Count(s Scenario) int {
	n := 0
	for _, sc := range d.Scenarios {
		if sc == s {
			n++
		}
	}
	return n
}

// Generate builds the data set. The same seed always gives the same output.
func (g *Generator) Generate() (*Dataset, error) {
	if err := g.Validate(); err != nil {
		return nil, err
	}

	rng := rand.New(rand.NewSource(g.Seed))
	operators := g.Rates.Operators()
	ds := &Dataset{
		Scenarios:    make(map[string]Scenario, g.Count),
		FeeDivergent: make(map[string]bool),
	}
	lineSeq := 0
	nextLineID := func() string {
		lineSeq++
		return fmt.Sprintf("bs-%05d", lineSeq)
	}

	for i := 0; i < g.Count; i++ {
		operator := operators[rng.Intn(len(operators))]
		brand := brands[rng.Intn(len(brands))]
		saleDate := g.StartDate.AddDate(0, 0, rng.Intn(g.Days))
		gross := decimal.New(1000+rng.Int63n(499001), -2)

		rate, _ := g.Rates.ExpectedRate(operator, brand)
		feeDivergent := rng.Float64() < g.FeeDivergent
		if feeDivergent {
			rate = rate.Add(feePremium(rng))
		}
		feeAmount := gross.Mul(rate).Div(hundred).Round(2)
		net := gross.Sub(feeAmount)

		s := &models.CardSettlement{
			ID:          fmt.Sprintf("ct-%05d", i+1),
			CompanyCNPJ: g.CompanyCNPJ,
			Operator:    operator,
			Brand:       brand,
			SaleDate:    saleDate,
			GrossAmount: gross,
			FeePercent:  decimal.NewNullDecimal(rate),
			FeeAmount:   decimal.NewNullDecimal(feeAmount),
			NetAmount:   net,
		}
		ds.Settlements = append(ds.Settlements, s)
		if feeDivergent {
			ds.FeeDivergent[s.ID] = true
		}

		expected := g.Matching.ExpectedDate(saleDate)
		draw := rng.Float64()
		switch {
		case draw < g.NotFound:
			ds.Scenarios[s.ID] = ScenarioNotFound
		case draw < g.NotFound+g.ValueDivergent:
			ds.Scenarios[s.ID] = ScenarioValueDivergent
			ds.Statements = append(ds.Statements, credit(nextLineID(), s, expected, net.Mul(valueDivergence).Round(2)))
		default:
			ds.Scenarios[s.ID] = ScenarioExact
			ds.Statements = append(ds.Statements, credit(nextLineID(), s, expected.AddDate(0, 0, rng.Intn(2)), net))
		}

		if rng.Intn(5) == 0 {
			ds.Statements = append(ds.Statements, &models.BankStatementLine{
				ID:           nextLineID(),
				CompanyCNPJ:  g.CompanyCNPJ,
				MovementDate: expected,
				Type:         models.StatementDebit,
				Amount:       decimal.New(100+rng.Int63n(9900), -2),
				Description:  "TARIFA BANCARIA",
			})
		}
	}

	return ds, nil
}

// feePremium is either a medium (0.25 pp) or a high (1.5 pp) divergence.
func feePremium(rng *rand.Rand) decimal.Decimal {
	if rng.Intn(2) == 0 {
		return decimal.RequireFromString("0.25")
	}
	return decimal.RequireFromString("1.5")
}

func credit(id string, s *models.CardSettlement, date time.Time, amount decimal.Decimal) *models.BankStatementLine {
	return &models.BankStatementLine{
		ID:           id,
		CompanyCNPJ:  s.CompanyCNPJ,
		MovementDate: date,
		Type:         models.StatementCredit,
		Amount:       amount,
		Description:  fmt.Sprintf("CRED %s %s", s.Operator, s.Brand),
	}
}
