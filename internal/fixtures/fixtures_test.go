package fixtures

import (
	"bytes"
	"context"
	"io"
	"testing"

	"card-reconciliation-service/internal/fees"
	"card-reconciliation-service/internal/matcher"
	"card-reconciliation-service/internal/models"
	"card-reconciliation-service/internal/parsers"
	"card-reconciliation-service/pkg/logger"
)

func generate(t *testing.T, mutate func(*Generator)) *Dataset {
	t.Helper()
	g := DefaultGenerator()
	g.Count = 200
	if mutate != nil {
		mutate(g)
	}
	ds, err := g.Generate()
	if err != nil {
		t.Fatalf("generate failed: %v", err)
	}
	return ds
}

func TestGenerator_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Generator)
		valid  bool
	}{
		{"defaults", func(g *Generator) {}, true},
		{"zero count", func(g *Generator) { g.Count = 0 }, false},
		{"zero days", func(g *Generator) { g.Days = 0 }, false},
		{"no company", func(g *Generator) { g.CompanyCNPJ = "" }, false},
		{"share above one", func(g *Generator) { g.FeeDivergent = 1.5 }, false},
		{"shares exceed one", func(g *Generator) { g.NotFound, g.ValueDivergent = 0.6, 0.5 }, false},
		{"no rate table", func(g *Generator) { g.Rates = nil }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := DefaultGenerator()
			tt.mutate(g)
			if err := g.Validate(); (err == nil) != tt.valid {
				t.Errorf("Validate() = %v, want valid=%v", err, tt.valid)
			}
		})
	}
}

func TestGenerate_Deterministic(t *testing.T) {
	a := generate(t, nil)
	b := generate(t, nil)

	var bufA, bufB bytes.Buffer
	if err := WriteSettlements(&bufA, a.Settlements, ','); err != nil {
		t.Fatal(err)
	}
	if err := WriteSettlements(&bufB, b.Settlements, ','); err != nil {
		t.Fatal(err)
	}
	if bufA.String() != bufB.String() {
		t.Error("the same seed must produce the same settlements")
	}

	c := generate(t, func(g *Generator) { g.Seed = 2 })
	var bufC bytes.Buffer
	WriteSettlements(&bufC, c.Settlements, ',')
	if bufA.String() == bufC.String() {
		t.Error("a different seed should produce different settlements")
	}
}

func TestGenerate_Scenarios(t *testing.T) {
	ds := generate(t, nil)

	if len(ds.Settlements) != 200 || len(ds.Scenarios) != 200 {
		t.Fatalf("expected 200 settlements, got %d", len(ds.Settlements))
	}
	total := ds.Count(ScenarioExact) + ds.Count(ScenarioValueDivergent) + ds.Count(ScenarioNotFound)
	if total != 200 {
		t.Errorf("every settlement needs a scenario, got %d", total)
	}
	if ds.Count(ScenarioExact) == 0 || ds.Count(ScenarioValueDivergent) == 0 || ds.Count(ScenarioNotFound) == 0 {
		t.Errorf("expected every scenario with 200 settlements: exact=%d value=%d notfound=%d",
			ds.Count(ScenarioExact), ds.Count(ScenarioValueDivergent), ds.Count(ScenarioNotFound))
	}

	credits := 0
	for _, l := range ds.Statements {
		if l.IsCredit() {
			credits++
		}
		if err := l.Validate(); err != nil {
			t.Errorf("invalid statement line %s: %v", l.ID, err)
		}
	}
	if credits != 200-ds.Count(ScenarioNotFound) {
		t.Errorf("expected one credit per found settlement, got %d", credits)
	}
}

func TestGenerate_NoDivergence(t *testing.T) {
	ds := generate(t, func(g *Generator) {
		g.NotFound, g.ValueDivergent, g.FeeDivergent = 0, 0, 0
	})
	if ds.Count(ScenarioExact) != 200 || len(ds.FeeDivergent) != 0 {
		t.Errorf("expected only exact settlements, got exact=%d fee=%d", ds.Count(ScenarioExact), len(ds.FeeDivergent))
	}
}

// Each settlement evaluated against its own credit must land on the outcome
// it was generated for.
func TestGenerate_MatcherAgrees(t *testing.T) {
	ds := generate(t, nil)
	m, err := matcher.NewMatcher(matcher.DefaultMatchingConfig())
	if err != nil {
		t.Fatal(err)
	}

	credits := map[string]*models.BankStatementLine{}
	i := 0
	for _, l := range ds.Statements {
		if !l.IsCredit() {
			continue
		}
		// credits are emitted in settlement order, skipping not found ones
		for ds.Scenarios[ds.Settlements[i].ID] == ScenarioNotFound {
			i++
		}
		credits[ds.Settlements[i].ID] = l
		i++
	}

	for _, s := range ds.Settlements {
		var lines []*models.BankStatementLine
		if l, ok := credits[s.ID]; ok {
			lines = append(lines, l)
		}
		d := m.Evaluate(s, lines)

		switch ds.Scenarios[s.ID] {
		case ScenarioExact:
			if d.Outcome != matcher.OutcomeMatched || d.Status != models.StatusOK {
				t.Errorf("%s: expected an exact match, got %s", s.ID, d)
			}
		case ScenarioValueDivergent:
			if d.Outcome != matcher.OutcomeMatched || d.Status != models.StatusDivergent {
				t.Errorf("%s: expected a divergent match, got %s", s.ID, d)
			}
		case ScenarioNotFound:
			if d.Outcome != matcher.OutcomeNotFound {
				t.Errorf("%s: expected no match, got %s", s.ID, d)
			}
		}
	}
}

func TestGenerate_FeeValidatorAgrees(t *testing.T) {
	ds := generate(t, nil)
	v, err := fees.NewValidator(fees.DefaultRateTable(), fees.DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}

	for _, s := range ds.Settlements {
		_, divergent := v.Check(s)
		if divergent != ds.FeeDivergent[s.ID] {
			t.Errorf("%s: fee divergence = %v, generated as %v", s.ID, divergent, ds.FeeDivergent[s.ID])
		}
	}
}

func TestWrite_ImportsBack(t *testing.T) {
	ds := generate(t, func(g *Generator) { g.Count = 50 })
	quiet, _ := logger.NewLoggerWithWriter(logger.DefaultConfig(), io.Discard)

	for _, delimiter := range []rune{',', ';'} {
		t.Run(string(delimiter), func(t *testing.T) {
			paths, err := WriteFiles(t.TempDir(), ds, delimiter)
			if err != nil {
				t.Fatalf("write failed: %v", err)
			}

			sp, _ := parsers.NewSettlementParser(&parsers.SettlementParserOptions{Logger: quiet})
			settlements, stats, err := sp.ParseFile(context.Background(), paths.Settlements)
			if err != nil || stats.HasErrors() {
				t.Fatalf("settlements do not parse back: %v %v", err, stats)
			}
			if len(settlements) != 50 || !settlements[0].NetAmount.Equal(ds.Settlements[0].NetAmount) {
				t.Errorf("unexpected settlements: %d", len(settlements))
			}

			bsp, _ := parsers.NewBankStatementParser(&parsers.BankStatementParserOptions{Logger: quiet})
			lines, stats, err := bsp.ParseFile(context.Background(), paths.Statements)
			if err != nil || stats.HasErrors() {
				t.Fatalf("statements do not parse back: %v %v", err, stats)
			}
			if len(lines) != len(ds.Statements) || lines[0].Type != ds.Statements[0].Type {
				t.Errorf("unexpected lines: %d", len(lines))
			}
		})
	}
}
