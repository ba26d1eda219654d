// Package store defines the persistence contract of the reconciliation engine.
//
// The engine reads unreconciled card settlements and bank statement credits,
// flips settlements to reconciled, and appends reconciliations and alerts.
// Implementations live in the postgres (hosted store, via gorm) and sqlite
// (local and test store, via database/sql) subpackages.
package store

import (
	"context"
	"errors"
	"time"

	"card-reconciliation-service/internal/models"
)

// ErrNotFound is returned when a row addressed by id does not exist.
var ErrNotFound = errors.New("record not found")

// SettlementReader lists settlements still waiting for a bank line.
type SettlementReader interface {
	// ListUnreconciled returns settlements with reconciled = false, ordered
	// by sale date descending. An empty companyCNPJ selects every company.
	ListUnreconciled(ctx context.Context, companyCNPJ string) ([]*models.CardSettlement, error)
}

// SettlementWriter records the outcome of a committed match.
type SettlementWriter interface {
	// MarkReconciled sets reconciled = true and the receipt date on one
	// settlement. Returns ErrNotFound when the id does not exist.
	MarkReconciled(ctx context.Context, id string, receivedOn time.Time) error
}

// StatementReader searches bank statement lines.
type StatementReader interface {
	// ListCredits returns the credit lines of a company whose movement date
	// lies in [from, to], both inclusive. No ordering is guaranteed.
	ListCredits(ctx context.Context, companyCNPJ string, from, to time.Time) ([]*models.BankStatementLine, error)
}

// ResultWriter appends engine output. Each call is a single batch write and
// returns the number of rows actually inserted.
type ResultWriter interface {
	InsertReconciliations(ctx context.Context, recs []*models.Reconciliation) (int, error)
	InsertAlerts(ctx context.Context, alerts []*models.FinancialAlert) (int, error)
}

// Importer loads upstream records, for local runs and fixtures. Rows whose id
// already exists are skipped.
type Importer interface {
	InsertSettlements(ctx context.Context, settlements []*models.CardSettlement) (int, error)
	InsertStatementLines(ctx context.Context, lines []*models.BankStatementLine) (int, error)
}

// Store is everything a reconciliation run needs.
type Store interface {
	SettlementReader
	SettlementWriter
	StatementReader
	ResultWriter
	Importer
	Close() error
}
