// Package postgres implements the store on the hosted PostgreSQL database
// through gorm.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"card-reconciliation-service/internal/models"
	"card-reconciliation-service/internal/store"

	pg "gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// Options tunes the connection pool and schema handling.
type Options struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	// AutoMigrate creates missing tables and indexes. The hosted database
	// owns its schema, so this is meant for local databases.
	AutoMigrate bool
	Debug       bool
}

// Store is the PostgreSQL implementation of store.Store.
type Store struct {
	db *gorm.DB
}

var _ store.Store = (*Store)(nil)

// Open connects to dsn and applies the pool options.
func Open(dsn string, opts Options) (*Store, error) {
	logLevel := logger.Error
	if opts.Debug {
		logLevel = logger.Info
	}

	db, err := gorm.Open(pg.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logLevel),
	})
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("get sql db: %w", err)
	}
	if opts.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(opts.MaxOpenConns)
	}
	if opts.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(opts.MaxIdleConns)
	}
	if opts.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(opts.ConnMaxLifetime)
	}

	s := New(db)
	if opts.AutoMigrate {
		if err := s.Migrate(); err != nil {
			sqlDB.Close()
			return nil, err
		}
	}
	return s, nil
}

// New wraps an open gorm handle.
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Migrate creates the tables the engine reads and writes.
func (s *Store) Migrate() error {
	if err := s.db.AutoMigrate(&settlementRow{}, &statementRow{}, &reconciliationRow{}, &alertRow{}); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	return nil
}

// Close releases the connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// ListUnreconciled returns pending settlements, newest sale first.
func (s *Store) ListUnreconciled(ctx context.Context, companyCNPJ string) ([]*models.CardSettlement, error) {
	q := s.db.WithContext(ctx).Where("conciliado = ?", false)
	if companyCNPJ != "" {
		q = q.Where("company_cnpj = ?", companyCNPJ)
	}

	var rows []settlementRow
	if err := q.Order("data_venda DESC").Order("id").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("query settlements: %w", err)
	}

	out := make([]*models.CardSettlement, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.model())
	}
	return out, nil
}

// MarkReconciled flips one settlement to reconciled.
func (s *Store) MarkReconciled(ctx context.Context, id string, receivedOn time.Time) error {
	res := s.db.WithContext(ctx).Model(&settlementRow{}).Where("id = ?", id).Updates(map[string]interface{}{
		"conciliado":       true,
		"data_recebimento": models.Day(receivedOn),
	})
	if res.Error != nil {
		return fmt.Errorf("update settlement %s: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("settlement %s: %w", id, store.ErrNotFound)
	}
	return nil
}

// ListCredits returns a company's credit lines in [from, to].
func (s *Store) ListCredits(ctx context.Context, companyCNPJ string, from, to time.Time) ([]*models.BankStatementLine, error) {
	var rows []statementRow
	err := s.db.WithContext(ctx).
		Where("company_cnpj = ? AND tipo = ?", companyCNPJ, string(models.StatementCredit)).
		Where("data_movimento BETWEEN ? AND ?", models.Day(from), models.Day(to)).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("query bank statements: %w", err)
	}

	out := make([]*models.BankStatementLine, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.model())
	}
	return out, nil
}

// InsertReconciliations writes all reconciliations in one statement.
func (s *Store) InsertReconciliations(ctx context.Context, recs []*models.Reconciliation) (int, error) {
	if len(recs) == 0 {
		return 0, nil
	}
	rows := make([]reconciliationRow, 0, len(recs))
	for _, r := range recs {
		rows = append(rows, newReconciliationRow(r))
	}
	return s.create(ctx, &rows, false)
}

// InsertAlerts writes all alerts in one statement.
func (s *Store) InsertAlerts(ctx context.Context, alerts []*models.FinancialAlert) (int, error) {
	if len(alerts) == 0 {
		return 0, nil
	}
	rows := make([]alertRow, 0, len(alerts))
	for _, a := range alerts {
		rows = append(rows, newAlertRow(a))
	}
	return s.create(ctx, &rows, false)
}

// InsertSettlements imports settlements, skipping ids already present.
func (s *Store) InsertSettlements(ctx context.Context, settlements []*models.CardSettlement) (int, error) {
	if len(settlements) == 0 {
		return 0, nil
	}
	rows := make([]settlementRow, 0, len(settlements))
	for _, st := range settlements {
		rows = append(rows, newSettlementRow(st))
	}
	return s.create(ctx, &rows, true)
}

// InsertStatementLines imports bank statement lines, skipping ids already present.
func (s *Store) InsertStatementLines(ctx context.Context, lines []*models.BankStatementLine) (int, error) {
	if len(lines) == 0 {
		return 0, nil
	}
	rows := make([]statementRow, 0, len(lines))
	for _, l := range lines {
		rows = append(rows, newStatementRow(l))
	}
	return s.create(ctx, &rows, true)
}

func (s *Store) create(ctx context.Context, rows interface{}, skipExisting bool) (int, error) {
	q := s.db.WithContext(ctx)
	if skipExisting {
		q = q.Clauses(clause.OnConflict{DoNothing: true})
	}
	res := q.Create(rows)
	if res.Error != nil {
		return 0, fmt.Errorf("insert: %w", res.Error)
	}
	return int(res.RowsAffected), nil
}

// ListReconciliations returns a company's reconciliations.
func (s *Store) ListReconciliations(ctx context.Context, companyCNPJ string) ([]*models.Reconciliation, error) {
	var rows []reconciliationRow
	err := s.db.WithContext(ctx).Where("company_cnpj = ?", companyCNPJ).Order("card_transaction_id").Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("query reconciliations: %w", err)
	}
	out := make([]*models.Reconciliation, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.model())
	}
	return out, nil
}

// ListAlerts returns a company's alerts.
func (s *Store) ListAlerts(ctx context.Context, companyCNPJ string) ([]*models.FinancialAlert, error) {
	var rows []alertRow
	err := s.db.WithContext(ctx).Where("company_cnpj = ?", companyCNPJ).Order("tipo_alerta").Order("id").Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("query alerts: %w", err)
	}
	out := make([]*models.FinancialAlert, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.model())
	}
	return out, nil
}

// GetSettlement loads one settlement by id.
func (s *Store) GetSettlement(ctx context.Context, id string) (*models.CardSettlement, error) {
	var row settlementRow
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query settlement %s: %w", id, err)
	}
	return row.model(), nil
}
