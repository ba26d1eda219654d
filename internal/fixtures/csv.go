package fixtures

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"card-reconciliation-service/internal/models"
	"card-reconciliation-service/internal/parsers"

	"github.com/shopspring/decimal"
)

// Paths are the files written by WriteFiles.
type Paths struct {
	Settlements string
	Statements  string
}

// WriteFiles writes settlements.csv and statements.csv into dir, creating
// it when needed.
func WriteFiles(dir string, ds *Dataset, delimiter rune) (*Paths, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create output directory: %w", err)
	}

	paths := &Paths{
		Settlements: filepath.Join(dir, "settlements.csv"),
		Statements:  filepath.Join(dir, "statements.csv"),
	}
	if err := writeFile(paths.Settlements, func(w io.Writer) error {
		return WriteSettlements(w, ds.Settlements, delimiter)
	}); err != nil {
		return nil, err
	}
	if err := writeFile(paths.Statements, func(w io.Writer) error {
		return WriteStatements(w, ds.Statements, delimiter)
	}); err != nil {
		return nil, err
	}
	return paths, nil
}

func writeFile(path string, write func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := write(f); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return f.Close()
}

// WriteSettlements writes settlements with the import column names.
func WriteSettlements(w io.Writer, settlements []*models.CardSettlement, delimiter rune) error {
	c := parsers.DefaultSettlementColumns()
	rows := [][]string{{
		c.ID, c.CompanyCNPJ, c.Operator, c.Brand, c.SaleDate, c.GrossAmount,
		c.FeePercent, c.FeeAmount, c.NetAmount, c.Reconciled,
	}}
	for _, s := range settlements {
		rows = append(rows, []string{
			s.ID,
			s.CompanyCNPJ,
			s.Operator,
			s.Brand,
			s.SaleDate.Format(models.DateLayout),
			s.GrossAmount.StringFixed(2),
			nullable(s.FeePercent),
			nullable(s.FeeAmount),
			s.NetAmount.StringFixed(2),
			strconv.FormatBool(s.Reconciled),
		})
	}
	return writeRows(w, rows, delimiter)
}

// WriteStatements writes statement lines with the import column names.
func WriteStatements(w io.Writer, lines []*models.BankStatementLine, delimiter rune) error {
	c := parsers.DefaultStatementColumns()
	rows := [][]string{{c.ID, c.CompanyCNPJ, c.MovementDate, c.Type, c.Amount, c.Description}}
	for _, l := range lines {
		rows = append(rows, []string{
			l.ID,
			l.CompanyCNPJ,
			l.MovementDate.Format(models.DateLayout),
			string(l.Type),
			l.Amount.StringFixed(2),
			l.Description,
		})
	}
	return writeRows(w, rows, delimiter)
}

func writeRows(w io.Writer, rows [][]string, delimiter rune) error {
	cw := csv.NewWriter(w)
	if delimiter != 0 {
		cw.Comma = delimiter
	}
	if err := cw.WriteAll(rows); err != nil {
		return err
	}
	return cw.Error()
}

func nullable(d decimal.NullDecimal) string {
	if !d.Valid {
		return ""
	}
	return d.Decimal.StringFixed(2)
}
