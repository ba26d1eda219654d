package parsers

import (
	"fmt"
	"strings"
	"time"
)

// SettlementColumns maps card settlement fields to CSV header names.
// Fields left empty are optional in the file.
type SettlementColumns struct {
	ID          string `json:"id"`
	CompanyCNPJ string `json:"company_cnpj"`
	Operator    string `json:"operadora"`
	Brand       string `json:"bandeira"`
	SaleDate    string `json:"data_venda"`
	GrossAmount string `json:"valor_bruto"`
	FeePercent  string `json:"taxa_percentual"`
	FeeAmount   string `json:"taxa_valor"`
	NetAmount   string `json:"valor_liquido"`
	Reconciled  string `json:"conciliado"`
	ReceivedOn  string `json:"data_recebimento"`
}

// DefaultSettlementColumns uses the column names of the card_transactions
// table, so a table export can be imported back as is.
func DefaultSettlementColumns() *SettlementColumns {
	return &SettlementColumns{
		ID:          "id",
		CompanyCNPJ: "company_cnpj",
		Operator:    "operadora",
		Brand:       "bandeira",
		SaleDate:    "data_venda",
		GrossAmount: "valor_bruto",
		FeePercent:  "taxa_percentual",
		FeeAmount:   "taxa_valor",
		NetAmount:   "valor_liquido",
		Reconciled:  "conciliado",
		ReceivedOn:  "data_recebimento",
	}
}

// Validate checks that the columns every settlement needs are named.
func (c *SettlementColumns) Validate() error {
	switch {
	case strings.TrimSpace(c.ID) == "":
		return fmt.Errorf("id column cannot be empty")
	case strings.TrimSpace(c.CompanyCNPJ) == "":
		return fmt.Errorf("company_cnpj column cannot be empty")
	case strings.TrimSpace(c.Operator) == "":
		return fmt.Errorf("operator column cannot be empty")
	case strings.TrimSpace(c.SaleDate) == "":
		return fmt.Errorf("sale date column cannot be empty")
	case strings.TrimSpace(c.GrossAmount) == "":
		return fmt.Errorf("gross amount column cannot be empty")
	case strings.TrimSpace(c.NetAmount) == "":
		return fmt.Errorf("net amount column cannot be empty")
	}
	return nil
}

// Required returns the header names a settlement file must carry.
// Brand, fees, reconciled flag and received date may be absent.
func (c *SettlementColumns) Required() []string {
	return []string{c.ID, c.CompanyCNPJ, c.Operator, c.SaleDate, c.GrossAmount, c.NetAmount}
}

// StatementColumns maps bank statement line fields to CSV header names.
type StatementColumns struct {
	ID           string `json:"id"`
	CompanyCNPJ  string `json:"company_cnpj"`
	MovementDate string `json:"data_movimento"`
	Type         string `json:"tipo"`
	Amount       string `json:"valor"`
	Description  string `json:"descricao"`
}

// DefaultStatementColumns uses the column names of the bank_statements table.
func DefaultStatementColumns() *StatementColumns {
	return &StatementColumns{
		ID:           "id",
		CompanyCNPJ:  "company_cnpj",
		MovementDate: "data_movimento",
		Type:         "tipo",
		Amount:       "valor",
		Description:  "descricao",
	}
}

// Validate checks that the columns every line needs are named.
func (c *StatementColumns) Validate() error {
	switch {
	case strings.TrimSpace(c.ID) == "":
		return fmt.Errorf("id column cannot be empty")
	case strings.TrimSpace(c.CompanyCNPJ) == "":
		return fmt.Errorf("company_cnpj column cannot be empty")
	case strings.TrimSpace(c.MovementDate) == "":
		return fmt.Errorf("movement date column cannot be empty")
	case strings.TrimSpace(c.Amount) == "":
		return fmt.Errorf("amount column cannot be empty")
	}
	return nil
}

// Required returns the header names a statement file must carry. Without a
// type column the sign of the amount decides between credit and debit.
func (c *StatementColumns) Required() []string {
	return []string{c.ID, c.CompanyCNPJ, c.MovementDate, c.Amount}
}

// StreamConfig controls batched delivery of parsed records.
type StreamConfig struct {
	BatchSize int `json:"batch_size"`
	// MaxErrors stops the parse once this many rows were rejected.
	// Zero means no limit.
	MaxErrors int `json:"max_errors"`
	// ProgressInterval is how often a long parse logs its progress.
	ProgressInterval time.Duration `json:"progress_interval"`
}

// DefaultStreamConfig returns a configuration with sensible defaults for streaming
func DefaultStreamConfig() *StreamConfig {
	return &StreamConfig{
		BatchSize:        500,
		MaxErrors:        0,
		ProgressInterval: 5 * time.Second,
	}
}

// Validate checks if the streaming configuration is valid
func (sc *StreamConfig) Validate() error {
	if sc.BatchSize <= 0 {
		return fmt.Errorf("batch size must be positive, got %d", sc.BatchSize)
	}
	if sc.MaxErrors < 0 {
		return fmt.Errorf("max errors cannot be negative, got %d", sc.MaxErrors)
	}
	if sc.ProgressInterval < 0 {
		return fmt.Errorf("progress interval cannot be negative, got %s", sc.ProgressInterval)
	}
	return nil
}
