package matcher

import (
	"testing"

	"card-reconciliation-service/internal/models"

	"github.com/shopspring/decimal"
)

func createIndexTestLines() []*models.BankStatementLine {
	other := createTestLine("B4", day(2024, 1, 12), "1000.00")
	other.CompanyCNPJ = "99999999000199"

	debit := createTestLine("B5", day(2024, 1, 12), "1000.00")
	debit.Type = models.StatementDebit

	return []*models.BankStatementLine{
		createTestLine("B1", day(2024, 1, 12), "1000.00"),
		createTestLine("B2", day(2024, 1, 12), "250.00"),
		createTestLine("B3", day(2024, 1, 20), "1000.00"),
		other,
		debit,
	}
}

func TestNewStatementIndex(t *testing.T) {
	index := NewStatementIndex(createIndexTestLines())

	stats := index.GetIndexStats()
	if stats.TotalStatements != 4 {
		t.Errorf("Expected 4 indexed credit lines, got %d", stats.TotalStatements)
	}
	if stats.UniqueCompanies != 2 {
		t.Errorf("Expected 2 companies, got %d", stats.UniqueCompanies)
	}
	if stats.UniqueDates != 3 {
		t.Errorf("Expected 3 company/date buckets, got %d", stats.UniqueDates)
	}
}

func TestStatementIndex_GetByDate(t *testing.T) {
	index := NewStatementIndex(createIndexTestLines())

	lines := index.GetByDate(testCompany, day(2024, 1, 12))
	if len(lines) != 2 {
		t.Fatalf("Expected 2 lines on 2024-01-12, got %d", len(lines))
	}

	if lines := index.GetByDate(testCompany, day(2024, 1, 13)); len(lines) != 0 {
		t.Errorf("Expected no lines on 2024-01-13, got %d", len(lines))
	}

	if lines := index.GetByDate("00000000000000", day(2024, 1, 12)); lines != nil {
		t.Errorf("Expected nil for unknown company, got %v", lines)
	}
}

func TestStatementIndex_GetByDateRange(t *testing.T) {
	index := NewStatementIndex(createIndexTestLines())

	lines := index.GetByDateRange(testCompany, day(2024, 1, 9), day(2024, 1, 20))
	if len(lines) != 3 {
		t.Errorf("Expected 3 lines in range, got %d", len(lines))
	}

	lines = index.GetByDateRange(testCompany, day(2024, 1, 13), day(2024, 1, 19))
	if len(lines) != 0 {
		t.Errorf("Expected 0 lines in range, got %d", len(lines))
	}
}

func TestStatementIndex_GetCandidates(t *testing.T) {
	index := NewStatementIndex(createIndexTestLines())
	cfg := DefaultMatchingConfig()

	candidates := index.GetCandidates(createTestSettlement("1000.00"), cfg)
	if len(candidates) != 2 {
		t.Fatalf("Expected 2 candidates, got %d", len(candidates))
	}
	for _, c := range candidates {
		if c.ID == "B3" || c.ID == "B4" || c.ID == "B5" {
			t.Errorf("Unexpected candidate %s", c.ID)
		}
	}
}

func TestStatementIndex_AddStatement(t *testing.T) {
	index := NewStatementIndex(nil)
	index.AddStatement(createTestLine("B1", day(2024, 1, 12), "10.00"))
	index.AddStatement(nil)

	if len(index.AllStatements) != 1 {
		t.Errorf("Expected 1 statement, got %d", len(index.AllStatements))
	}
	if len(index.GetByDate(testCompany, day(2024, 1, 12))) != 1 {
		t.Error("Expected added line to be indexed by date")
	}
}

func TestUnionWindow(t *testing.T) {
	cfg := DefaultMatchingConfig()

	if _, _, ok := UnionWindow(nil, cfg); ok {
		t.Error("Expected no window for empty input")
	}

	a := createTestSettlement("1.00")
	b := createTestSettlement("1.00")
	b.SaleDate = day(2024, 2, 1)

	from, to, ok := UnionWindow([]*models.CardSettlement{b, a}, cfg)
	if !ok {
		t.Fatal("Expected a window")
	}
	if !from.Equal(day(2024, 1, 9)) {
		t.Errorf("Expected union start 2024-01-09, got %v", from)
	}
	if !to.Equal(day(2024, 2, 6)) {
		t.Errorf("Expected union end 2024-02-06, got %v", to)
	}
}

func TestStatementIndex_PrefetchMatchesDirectSearch(t *testing.T) {
	m, _ := NewMatcher(nil)
	cfg := m.Config()

	lines := []*models.BankStatementLine{
		createTestLine("B1", day(2024, 1, 11), "998.00"),
		createTestLine("B2", day(2024, 1, 12), "1000.00"),
		createTestLine("B3", day(2024, 1, 25), "500.00"),
		createTestLine("B4", day(2024, 1, 27), "497.00"),
	}
	index := NewStatementIndex(lines)

	s1 := createTestSettlement("1000.00")
	s2 := createTestSettlement("500.00")
	s2.ID = "C2"
	s2.SaleDate = day(2024, 1, 23)

	for _, s := range []*models.CardSettlement{s1, s2} {
		var direct []*models.BankStatementLine
		for _, l := range lines {
			if cfg.InWindow(s.SaleDate, l.MovementDate) {
				direct = append(direct, l)
			}
		}

		want := m.Evaluate(s, direct)
		got := m.Evaluate(s, index.GetCandidates(s, cfg))

		if want.Outcome != got.Outcome || want.Best.Line.ID != got.Best.Line.ID || want.Best.Score != got.Best.Score {
			t.Errorf("Settlement %s: prefetch decision %s differs from direct decision %s", s.ID, got, want)
		}
	}

	// the whole prefetched set gives the same answer as the partition
	got := m.Evaluate(s2, lines)
	if got.Best.Line.ID != "B3" {
		t.Errorf("Expected B3 for C2 when passing all lines, got %s", got.Best.Line.ID)
	}
	if !got.Difference.Equal(decimal.Zero) {
		t.Errorf("Expected exact match, got difference %s", got.Difference)
	}
}
