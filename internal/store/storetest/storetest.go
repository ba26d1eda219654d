// Package storetest holds a behavioural suite shared by every store
// implementation.
package storetest

import (
	"context"
	"errors"
	"testing"
	"time"

	"card-reconciliation-service/internal/models"
	"card-reconciliation-service/internal/store"

	"github.com/shopspring/decimal"
)

// Inspectable is a store whose written results can be read back.
type Inspectable interface {
	store.Store
	ListReconciliations(ctx context.Context, companyCNPJ string) ([]*models.Reconciliation, error)
	ListAlerts(ctx context.Context, companyCNPJ string) ([]*models.FinancialAlert, error)
}

// Factory returns an empty store. The suite closes it.
type Factory func(t *testing.T) Inspectable

const (
	companyA = "11111111000111"
	companyB = "22222222000122"
)

func day(s string) time.Time {
	d, err := models.ParseDay(s)
	if err != nil {
		panic(err)
	}
	return d
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// Settlements returns the fixture settlements used by the suite.
func Settlements() []*models.CardSettlement {
	received := day("2024-01-05")
	return []*models.CardSettlement{
		{ID: "st-1", CompanyCNPJ: companyA, Operator: "cielo", Brand: "visa", SaleDate: day("2024-01-10"),
			GrossAmount: dec("1030.90"), FeePercent: decimal.NewNullDecimal(dec("2.99")), NetAmount: dec("1000.00")},
		{ID: "st-2", CompanyCNPJ: companyA, Operator: "stone", Brand: "master", SaleDate: day("2024-01-12"),
			GrossAmount: dec("500"), NetAmount: dec("487.50")},
		{ID: "st-3", CompanyCNPJ: companyB, Operator: "rede", Brand: "elo", SaleDate: day("2024-01-11"),
			GrossAmount: dec("200"), FeeAmount: decimal.NewNullDecimal(dec("6.98")), NetAmount: dec("193.02")},
		{ID: "st-4", CompanyCNPJ: companyA, Operator: "getnet", Brand: "visa", SaleDate: day("2024-01-02"),
			GrossAmount: dec("100"), NetAmount: dec("97.50"), Reconciled: true, ReceivedOn: &received},
	}
}

// StatementLines returns the fixture bank lines used by the suite.
func StatementLines() []*models.BankStatementLine {
	return []*models.BankStatementLine{
		{ID: "ln-1", CompanyCNPJ: companyA, MovementDate: day("2024-01-12"), Type: models.StatementCredit,
			Amount: dec("1000.00"), Description: "CIELO VISA"},
		{ID: "ln-2", CompanyCNPJ: companyA, MovementDate: day("2024-01-15"), Type: models.StatementCredit,
			Amount: dec("487.50"), Description: "STONE"},
		{ID: "ln-3", CompanyCNPJ: companyA, MovementDate: day("2024-01-13"), Type: models.StatementDebit,
			Amount: dec("1000.00"), Description: "TARIFA"},
		{ID: "ln-4", CompanyCNPJ: companyB, MovementDate: day("2024-01-13"), Type: models.StatementCredit,
			Amount: dec("193.02"), Description: "REDE"},
		{ID: "ln-5", CompanyCNPJ: companyA, MovementDate: day("2024-01-20"), Type: models.StatementCredit,
			Amount: dec("50"), Description: "PIX"},
	}
}

func seeded(t *testing.T, newStore Factory) Inspectable {
	t.Helper()
	s := newStore(t)
	t.Cleanup(func() { s.Close() })

	ctx := context.Background()
	if n, err := s.InsertSettlements(ctx, Settlements()); err != nil || n != 4 {
		t.Fatalf("seed settlements: n=%d err=%v", n, err)
	}
	if n, err := s.InsertStatementLines(ctx, StatementLines()); err != nil || n != 5 {
		t.Fatalf("seed statement lines: n=%d err=%v", n, err)
	}
	return s
}

func ids[T any](items []T, id func(T) string) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		out = append(out, id(item))
	}
	return out
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// Run exercises a store implementation end to end.
func Run(t *testing.T, newStore Factory) {
	ctx := context.Background()

	t.Run("ListUnreconciled", func(t *testing.T) {
		s := seeded(t, newStore)

		tests := []struct {
			name    string
			company string
			want    []string
		}{
			{"single company newest first", companyA, []string{"st-2", "st-1"}},
			{"other company", companyB, []string{"st-3"}},
			{"all companies", "", []string{"st-2", "st-3", "st-1"}},
			{"unknown company", "99999999000199", []string{}},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				got, err := s.ListUnreconciled(ctx, tt.company)
				if err != nil {
					t.Fatalf("ListUnreconciled failed: %v", err)
				}
				gotIDs := ids(got, func(s *models.CardSettlement) string { return s.ID })
				if !equalStrings(gotIDs, tt.want) {
					t.Errorf("expected %v, got %v", tt.want, gotIDs)
				}
			})
		}
	})

	t.Run("settlement fields survive a round trip", func(t *testing.T) {
		s := seeded(t, newStore)
		got, err := s.ListUnreconciled(ctx, "")
		if err != nil {
			t.Fatalf("ListUnreconciled failed: %v", err)
		}
		byID := map[string]*models.CardSettlement{}
		for _, st := range got {
			byID[st.ID] = st
		}

		first := byID["st-1"]
		if first == nil {
			t.Fatal("st-1 missing")
		}
		if !first.SaleDate.Equal(day("2024-01-10")) || first.Operator != "cielo" || first.Brand != "visa" {
			t.Errorf("unexpected settlement: %s", first)
		}
		if !first.FeePercent.Valid || !first.FeePercent.Decimal.Equal(dec("2.99")) {
			t.Errorf("expected fee percent 2.99, got %v", first.FeePercent)
		}
		if first.FeeAmount.Valid {
			t.Errorf("expected no fee amount, got %v", first.FeeAmount)
		}
		if !first.NetAmount.Equal(dec("1000")) || !first.GrossAmount.Equal(dec("1030.90")) {
			t.Errorf("unexpected amounts: gross %s net %s", first.GrossAmount, first.NetAmount)
		}

		if third := byID["st-3"]; third == nil || !third.FeeAmount.Valid || third.FeePercent.Valid {
			t.Errorf("expected st-3 with only a fee amount, got %v", third)
		}
	})

	t.Run("import skips existing ids", func(t *testing.T) {
		s := seeded(t, newStore)
		n, err := s.InsertSettlements(ctx, Settlements()[:2])
		if err != nil {
			t.Fatalf("InsertSettlements failed: %v", err)
		}
		if n != 0 {
			t.Errorf("expected 0 new settlements, got %d", n)
		}
		n, err = s.InsertStatementLines(ctx, StatementLines())
		if err != nil {
			t.Fatalf("InsertStatementLines failed: %v", err)
		}
		if n != 0 {
			t.Errorf("expected 0 new lines, got %d", n)
		}
	})

	t.Run("ListCredits", func(t *testing.T) {
		s := seeded(t, newStore)

		tests := []struct {
			name     string
			company  string
			from, to string
			want     map[string]bool
		}{
			{"inclusive bounds", companyA, "2024-01-12", "2024-01-15", map[string]bool{"ln-1": true, "ln-2": true}},
			{"debits excluded", companyA, "2024-01-13", "2024-01-13", map[string]bool{}},
			{"scoped to company", companyB, "2024-01-01", "2024-01-31", map[string]bool{"ln-4": true}},
			{"outside window", companyA, "2024-02-01", "2024-02-10", map[string]bool{}},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				got, err := s.ListCredits(ctx, tt.company, day(tt.from), day(tt.to))
				if err != nil {
					t.Fatalf("ListCredits failed: %v", err)
				}
				if len(got) != len(tt.want) {
					t.Fatalf("expected %d lines, got %d", len(tt.want), len(got))
				}
				for _, line := range got {
					if !tt.want[line.ID] {
						t.Errorf("unexpected line %s", line.ID)
					}
					if !line.IsCredit() {
						t.Errorf("line %s is not a credit", line.ID)
					}
				}
			})
		}
	})

	t.Run("MarkReconciled", func(t *testing.T) {
		s := seeded(t, newStore)

		if err := s.MarkReconciled(ctx, "st-1", day("2024-01-12")); err != nil {
			t.Fatalf("MarkReconciled failed: %v", err)
		}
		pending, err := s.ListUnreconciled(ctx, companyA)
		if err != nil {
			t.Fatalf("ListUnreconciled failed: %v", err)
		}
		if gotIDs := ids(pending, func(s *models.CardSettlement) string { return s.ID }); !equalStrings(gotIDs, []string{"st-2"}) {
			t.Errorf("expected only st-2 pending, got %v", gotIDs)
		}

		err = s.MarkReconciled(ctx, "missing", day("2024-01-12"))
		if !errors.Is(err, store.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("InsertReconciliations", func(t *testing.T) {
		s := seeded(t, newStore)

		if n, err := s.InsertReconciliations(ctx, nil); err != nil || n != 0 {
			t.Errorf("expected empty insert to be a no-op, got n=%d err=%v", n, err)
		}

		recs := []*models.Reconciliation{
			{ID: "rc-1", CompanyCNPJ: companyA, Kind: models.KindCard, CardSettlementID: "st-1",
				BankStatementLineID: "ln-1", ReconciliationDate: day("2024-03-01"),
				StatementAmount: dec("1000.00"), SettlementAmount: dec("1000.00"), Difference: decimal.Zero,
				Status: models.StatusOK, Confidence: 1},
			{ID: "rc-2", CompanyCNPJ: companyA, Kind: models.KindCard, CardSettlementID: "st-2",
				BankStatementLineID: "ln-2", ReconciliationDate: day("2024-03-01"),
				StatementAmount: dec("487.50"), SettlementAmount: dec("487.10"), Difference: dec("0.40"),
				Status: models.StatusDivergent, Confidence: 0.9},
		}
		n, err := s.InsertReconciliations(ctx, recs)
		if err != nil {
			t.Fatalf("InsertReconciliations failed: %v", err)
		}
		if n != 2 {
			t.Errorf("expected 2 inserted, got %d", n)
		}

		got, err := s.ListReconciliations(ctx, companyA)
		if err != nil {
			t.Fatalf("ListReconciliations failed: %v", err)
		}
		if len(got) != 2 {
			t.Fatalf("expected 2 reconciliations, got %d", len(got))
		}
		second := got[1]
		if second.Status != models.StatusDivergent || second.Kind != models.KindCard {
			t.Errorf("unexpected status/kind: %s/%s", second.Status, second.Kind)
		}
		if !second.Difference.Equal(dec("0.4")) || second.Confidence != 0.9 {
			t.Errorf("unexpected difference/confidence: %s/%v", second.Difference, second.Confidence)
		}
		if !second.ReconciliationDate.Equal(day("2024-03-01")) {
			t.Errorf("unexpected reconciliation date %s", second.ReconciliationDate)
		}
	})

	t.Run("InsertAlerts", func(t *testing.T) {
		s := seeded(t, newStore)

		if n, err := s.InsertAlerts(ctx, nil); err != nil || n != 0 {
			t.Errorf("expected empty insert to be a no-op, got n=%d err=%v", n, err)
		}

		alerts := []*models.FinancialAlert{
			{ID: "al-1", CompanyCNPJ: companyB, Type: models.AlertSettlementNotFound, Priority: models.PriorityHigh,
				Title: "Recebimento de cartão não encontrado no extrato", Message: "rede",
				Details: models.AlertDetails{"valor_liquido": 193.02, "data_esperada": "2024-01-13"},
				Status:  models.AlertPending},
		}
		n, err := s.InsertAlerts(ctx, alerts)
		if err != nil {
			t.Fatalf("InsertAlerts failed: %v", err)
		}
		if n != 1 {
			t.Errorf("expected 1 inserted, got %d", n)
		}

		got, err := s.ListAlerts(ctx, companyB)
		if err != nil {
			t.Fatalf("ListAlerts failed: %v", err)
		}
		if len(got) != 1 {
			t.Fatalf("expected 1 alert, got %d", len(got))
		}
		alert := got[0]
		if alert.Priority != models.PriorityHigh || alert.Status != models.AlertPending || alert.NotifiedViaWhatsApp {
			t.Errorf("unexpected alert state: %s", alert)
		}
		if alert.Details["valor_liquido"] != 193.02 || alert.Details["data_esperada"] != "2024-01-13" {
			t.Errorf("unexpected details: %v", alert.Details)
		}
	})
}
