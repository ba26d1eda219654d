package sqlite

import (
	"context"
	"testing"

	"card-reconciliation-service/internal/models"
	"card-reconciliation-service/internal/store/storetest"
)

func newMemoryStore(t *testing.T) storetest.Inspectable {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	return s
}

func TestStore(t *testing.T) {
	storetest.Run(t, newMemoryStore)
}

func TestInitDB_Idempotent(t *testing.T) {
	db, err := InitDB(":memory:")
	if err != nil {
		t.Fatalf("InitDB failed: %v", err)
	}
	defer db.Close()

	if err := createTables(db); err != nil {
		t.Errorf("creating tables twice should succeed: %v", err)
	}

	var n int
	err = db.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table'
		AND name IN ('card_transactions', 'bank_statements', 'reconciliations', 'financial_alerts')`).Scan(&n)
	if err != nil {
		t.Fatalf("query schema: %v", err)
	}
	if n != 4 {
		t.Errorf("expected 4 tables, got %d", n)
	}
}

func TestGetSettlement(t *testing.T) {
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer s.Close()

	ctx := context.Background()
	if _, err := s.InsertSettlements(ctx, storetest.Settlements()); err != nil {
		t.Fatalf("seed: %v", err)
	}

	got, err := s.GetSettlement(ctx, "st-4")
	if err != nil {
		t.Fatalf("GetSettlement failed: %v", err)
	}
	if !got.Reconciled || got.ReceivedOn == nil || got.ReceivedOn.Format("2006-01-02") != "2024-01-05" {
		t.Errorf("expected reconciled settlement received on 2024-01-05, got %s", got)
	}

	if _, err := s.GetSettlement(ctx, "nope"); err == nil {
		t.Error("expected an error for a missing settlement")
	}
}

func TestInsertReconciliations_RollsBackOnFailure(t *testing.T) {
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer s.Close()

	ctx := context.Background()
	if _, err := s.InsertSettlements(ctx, storetest.Settlements()); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if _, err := s.InsertStatementLines(ctx, storetest.StatementLines()); err != nil {
		t.Fatalf("seed: %v", err)
	}

	_, err = s.DB().Exec(`INSERT INTO reconciliations VALUES ('dup', '11111111000111', 'cartao', 'st-1', 'ln-1', '2024-03-01', '1', '1', '0', 'ok', 1)`)
	if err != nil {
		t.Fatalf("seed reconciliation: %v", err)
	}

	recs, _ := s.ListReconciliations(ctx, "11111111000111")
	dup := *recs[0]
	fresh := dup
	fresh.ID = "fresh"

	n, err := s.InsertReconciliations(ctx, []*models.Reconciliation{&fresh, &dup})
	if err == nil {
		t.Fatal("expected a primary key violation")
	}
	if n != 0 {
		t.Errorf("expected 0 inserted after rollback, got %d", n)
	}

	recs, _ = s.ListReconciliations(ctx, "11111111000111")
	if len(recs) != 1 {
		t.Errorf("expected the batch to be rolled back, found %d rows", len(recs))
	}
}
