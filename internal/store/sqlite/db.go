// Package sqlite implements the store on an embedded SQLite database. It is
// used for local runs and tests; dates are stored as YYYY-MM-DD text and
// amounts as decimal text so no precision is lost.
package sqlite

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// InitDB opens (or creates) a SQLite database at the given path and ensures
// all required tables exist. Pass ":memory:" for an in-memory database.
func InitDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	// every connection of a :memory: pool would see its own empty database
	if dsn == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set wal mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	if err := createTables(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("create tables: %w", err)
	}

	return db, nil
}

func createTables(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS card_transactions (
			id TEXT PRIMARY KEY,
			company_cnpj TEXT NOT NULL,
			operadora TEXT NOT NULL DEFAULT '',
			bandeira TEXT NOT NULL DEFAULT '',
			data_venda TEXT NOT NULL,
			valor_bruto TEXT NOT NULL,
			taxa_percentual TEXT,
			taxa_valor TEXT,
			valor_liquido TEXT NOT NULL,
			conciliado INTEGER NOT NULL DEFAULT 0,
			data_recebimento TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_card_transactions_pending ON card_transactions(conciliado, company_cnpj, data_venda)`,

		`CREATE TABLE IF NOT EXISTS bank_statements (
			id TEXT PRIMARY KEY,
			company_cnpj TEXT NOT NULL,
			data_movimento TEXT NOT NULL,
			tipo TEXT NOT NULL,
			valor TEXT NOT NULL,
			descricao TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE INDEX IF NOT EXISTS idx_bank_statements_lookup ON bank_statements(company_cnpj, tipo, data_movimento)`,

		`CREATE TABLE IF NOT EXISTS reconciliations (
			id TEXT PRIMARY KEY,
			company_cnpj TEXT NOT NULL,
			tipo TEXT NOT NULL,
			card_transaction_id TEXT NOT NULL,
			bank_statement_id TEXT NOT NULL,
			data_conciliacao TEXT NOT NULL,
			valor_extrato TEXT NOT NULL,
			valor_lancamento TEXT NOT NULL,
			diferenca TEXT NOT NULL,
			status TEXT NOT NULL,
			confianca REAL NOT NULL,
			FOREIGN KEY (card_transaction_id) REFERENCES card_transactions(id),
			FOREIGN KEY (bank_statement_id) REFERENCES bank_statements(id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_reconciliations_company ON reconciliations(company_cnpj)`,

		`CREATE TABLE IF NOT EXISTS financial_alerts (
			id TEXT PRIMARY KEY,
			company_cnpj TEXT NOT NULL,
			tipo_alerta TEXT NOT NULL,
			prioridade TEXT NOT NULL,
			titulo TEXT NOT NULL,
			mensagem TEXT NOT NULL,
			dados_detalhados TEXT NOT NULL DEFAULT '{}',
			status TEXT NOT NULL,
			notificado_whatsapp INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE INDEX IF NOT EXISTS idx_financial_alerts_company ON financial_alerts(company_cnpj, tipo_alerta)`,
	}

	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("exec %q: %w", stmt[:40], err)
		}
	}

	return nil
}
