package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"card-reconciliation-service/internal/models"
	"card-reconciliation-service/internal/store"
)

// Store is the SQLite implementation of store.Store.
type Store struct {
	db *sql.DB
}

var _ store.Store = (*Store)(nil)

// Open initializes the database at dsn and returns a ready store.
func Open(dsn string) (*Store, error) {
	db, err := InitDB(dsn)
	if err != nil {
		return nil, err
	}
	return New(db), nil
}

// New wraps an already initialized database.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// DB exposes the underlying handle.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

const settlementColumns = `id, company_cnpj, operadora, bandeira, data_venda, valor_bruto,
	taxa_percentual, taxa_valor, valor_liquido, conciliado, data_recebimento`

// ListUnreconciled returns pending settlements, newest sale first.
func (s *Store) ListUnreconciled(ctx context.Context, companyCNPJ string) ([]*models.CardSettlement, error) {
	query := `SELECT ` + settlementColumns + ` FROM card_transactions WHERE conciliado = 0`
	var args []interface{}
	if companyCNPJ != "" {
		query += ` AND company_cnpj = ?`
		args = append(args, companyCNPJ)
	}
	query += ` ORDER BY data_venda DESC, id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query settlements: %w", err)
	}
	defer rows.Close()

	var out []*models.CardSettlement
	for rows.Next() {
		settlement, err := scanSettlement(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, settlement)
	}
	return out, rows.Err()
}

// GetSettlement loads one settlement by id.
func (s *Store) GetSettlement(ctx context.Context, id string) (*models.CardSettlement, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+settlementColumns+` FROM card_transactions WHERE id = ?`, id)
	settlement, err := scanSettlement(row)
	if err == sql.ErrNoRows {
		return nil, store.ErrNotFound
	}
	return settlement, err
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanSettlement(sc scanner) (*models.CardSettlement, error) {
	var (
		st         models.CardSettlement
		saleDate   string
		receivedOn sql.NullString
	)
	err := sc.Scan(&st.ID, &st.CompanyCNPJ, &st.Operator, &st.Brand, &saleDate, &st.GrossAmount,
		&st.FeePercent, &st.FeeAmount, &st.NetAmount, &st.Reconciled, &receivedOn)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("scan settlement: %w", err)
	}

	if st.SaleDate, err = models.ParseDay(saleDate); err != nil {
		return nil, fmt.Errorf("settlement %s: %w", st.ID, err)
	}
	if receivedOn.Valid && receivedOn.String != "" {
		day, err := models.ParseDay(receivedOn.String)
		if err != nil {
			return nil, fmt.Errorf("settlement %s: %w", st.ID, err)
		}
		st.ReceivedOn = &day
	}
	return &st, nil
}

// MarkReconciled flips one settlement to reconciled.
func (s *Store) MarkReconciled(ctx context.Context, id string, receivedOn time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE card_transactions SET conciliado = 1, data_recebimento = ? WHERE id = ?`,
		models.Day(receivedOn).Format(models.DateLayout), id)
	if err != nil {
		return fmt.Errorf("update settlement %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update settlement %s: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("settlement %s: %w", id, store.ErrNotFound)
	}
	return nil
}

// ListCredits returns a company's credit lines in [from, to].
func (s *Store) ListCredits(ctx context.Context, companyCNPJ string, from, to time.Time) ([]*models.BankStatementLine, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, company_cnpj, data_movimento, tipo, valor, descricao
		FROM bank_statements
		WHERE company_cnpj = ? AND tipo = ? AND data_movimento BETWEEN ? AND ?`,
		companyCNPJ, string(models.StatementCredit),
		models.Day(from).Format(models.DateLayout), models.Day(to).Format(models.DateLayout))
	if err != nil {
		return nil, fmt.Errorf("query bank statements: %w", err)
	}
	defer rows.Close()

	var out []*models.BankStatementLine
	for rows.Next() {
		var (
			line     models.BankStatementLine
			movement string
			kind     string
		)
		if err := rows.Scan(&line.ID, &line.CompanyCNPJ, &movement, &kind, &line.Amount, &line.Description); err != nil {
			return nil, fmt.Errorf("scan bank statement: %w", err)
		}
		if line.MovementDate, err = models.ParseDay(movement); err != nil {
			return nil, fmt.Errorf("bank statement %s: %w", line.ID, err)
		}
		line.Type = models.StatementType(kind)
		out = append(out, &line)
	}
	return out, rows.Err()
}

// InsertReconciliations writes all reconciliations in one transaction.
func (s *Store) InsertReconciliations(ctx context.Context, recs []*models.Reconciliation) (int, error) {
	if len(recs) == 0 {
		return 0, nil
	}
	return s.insertBatch(ctx, `
		INSERT INTO reconciliations
			(id, company_cnpj, tipo, card_transaction_id, bank_statement_id, data_conciliacao,
			 valor_extrato, valor_lancamento, diferenca, status, confianca)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, len(recs), func(i int) []interface{} {
		r := recs[i]
		return []interface{}{r.ID, r.CompanyCNPJ, string(r.Kind), r.CardSettlementID, r.BankStatementLineID,
			models.Day(r.ReconciliationDate).Format(models.DateLayout),
			r.StatementAmount, r.SettlementAmount, r.Difference, string(r.Status), r.Confidence}
	})
}

// InsertAlerts writes all alerts in one transaction.
func (s *Store) InsertAlerts(ctx context.Context, alerts []*models.FinancialAlert) (int, error) {
	if len(alerts) == 0 {
		return 0, nil
	}
	return s.insertBatch(ctx, `
		INSERT INTO financial_alerts
			(id, company_cnpj, tipo_alerta, prioridade, titulo, mensagem, dados_detalhados, status, notificado_whatsapp)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`, len(alerts), func(i int) []interface{} {
		a := alerts[i]
		return []interface{}{a.ID, a.CompanyCNPJ, string(a.Type), string(a.Priority), a.Title, a.Message,
			a.Details, string(a.Status), a.NotifiedViaWhatsApp}
	})
}

// InsertSettlements imports settlements, skipping ids already present.
func (s *Store) InsertSettlements(ctx context.Context, settlements []*models.CardSettlement) (int, error) {
	if len(settlements) == 0 {
		return 0, nil
	}
	return s.insertBatch(ctx, `
		INSERT OR IGNORE INTO card_transactions
			(id, company_cnpj, operadora, bandeira, data_venda, valor_bruto,
			 taxa_percentual, taxa_valor, valor_liquido, conciliado, data_recebimento)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, len(settlements), func(i int) []interface{} {
		st := settlements[i]
		var receivedOn interface{}
		if st.ReceivedOn != nil {
			receivedOn = st.ReceivedOn.Format(models.DateLayout)
		}
		return []interface{}{st.ID, st.CompanyCNPJ, st.Operator, st.Brand,
			models.Day(st.SaleDate).Format(models.DateLayout), st.GrossAmount,
			st.FeePercent, st.FeeAmount, st.NetAmount, st.Reconciled, receivedOn}
	})
}

// InsertStatementLines imports bank statement lines, skipping ids already present.
func (s *Store) InsertStatementLines(ctx context.Context, lines []*models.BankStatementLine) (int, error) {
	if len(lines) == 0 {
		return 0, nil
	}
	return s.insertBatch(ctx, `
		INSERT OR IGNORE INTO bank_statements
			(id, company_cnpj, data_movimento, tipo, valor, descricao)
		VALUES (?, ?, ?, ?, ?, ?)`, len(lines), func(i int) []interface{} {
		l := lines[i]
		return []interface{}{l.ID, l.CompanyCNPJ, models.Day(l.MovementDate).Format(models.DateLayout),
			string(l.Type), l.Amount, l.Description}
	})
}

// insertBatch runs one prepared statement n times inside a transaction and
// returns the number of rows inserted. Nothing is kept on failure.
func (s *Store) insertBatch(ctx context.Context, query string, n int, args func(i int) []interface{}) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("prepare: %w", err)
	}
	defer stmt.Close()

	inserted := 0
	for i := 0; i < n; i++ {
		res, err := stmt.ExecContext(ctx, args(i)...)
		if err != nil {
			return 0, fmt.Errorf("insert row %d: %w", i, err)
		}
		affected, _ := res.RowsAffected()
		inserted += int(affected)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return inserted, nil
}

// CountReconciliations returns how many reconciliations a company has.
func (s *Store) CountReconciliations(ctx context.Context, companyCNPJ string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM reconciliations WHERE company_cnpj = ?`, companyCNPJ).Scan(&n)
	return n, err
}

// ListAlerts returns a company's alerts, for inspection after a run.
func (s *Store) ListAlerts(ctx context.Context, companyCNPJ string) ([]*models.FinancialAlert, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, company_cnpj, tipo_alerta, prioridade, titulo, mensagem, dados_detalhados, status, notificado_whatsapp
		FROM financial_alerts WHERE company_cnpj = ? ORDER BY tipo_alerta, id`, companyCNPJ)
	if err != nil {
		return nil, fmt.Errorf("query alerts: %w", err)
	}
	defer rows.Close()

	var out []*models.FinancialAlert
	for rows.Next() {
		var (
			a                      models.FinancialAlert
			kind, priority, status string
		)
		if err := rows.Scan(&a.ID, &a.CompanyCNPJ, &kind, &priority, &a.Title, &a.Message,
			&a.Details, &status, &a.NotifiedViaWhatsApp); err != nil {
			return nil, fmt.Errorf("scan alert: %w", err)
		}
		a.Type = models.AlertType(kind)
		a.Priority = models.AlertPriority(priority)
		a.Status = models.AlertStatus(status)
		out = append(out, &a)
	}
	return out, rows.Err()
}

// ListReconciliations returns a company's reconciliations.
func (s *Store) ListReconciliations(ctx context.Context, companyCNPJ string) ([]*models.Reconciliation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, company_cnpj, tipo, card_transaction_id, bank_statement_id, data_conciliacao,
			valor_extrato, valor_lancamento, diferenca, status, confianca
		FROM reconciliations WHERE company_cnpj = ? ORDER BY card_transaction_id`, companyCNPJ)
	if err != nil {
		return nil, fmt.Errorf("query reconciliations: %w", err)
	}
	defer rows.Close()

	var out []*models.Reconciliation
	for rows.Next() {
		var (
			r            models.Reconciliation
			kind, status string
			date         string
		)
		if err := rows.Scan(&r.ID, &r.CompanyCNPJ, &kind, &r.CardSettlementID, &r.BankStatementLineID, &date,
			&r.StatementAmount, &r.SettlementAmount, &r.Difference, &status, &r.Confidence); err != nil {
			return nil, fmt.Errorf("scan reconciliation: %w", err)
		}
		if r.ReconciliationDate, err = models.ParseDay(date); err != nil {
			return nil, fmt.Errorf("reconciliation %s: %w", r.ID, err)
		}
		r.Kind = models.ReconciliationKind(kind)
		r.Status = models.ReconciliationStatus(status)
		out = append(out, &r)
	}
	return out, rows.Err()
}
