// Package models holds the records exchanged between the reconciliation engine
// and its store: card settlements and bank statement lines on the read side,
// reconciliations and financial alerts on the write side.
//
// Enumerated values carry the vocabulary persisted by the hosted store, which
// is Portuguese ("cartao", "divergente", "pendente", ...). Go identifiers stay
// in English.
package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// DateLayout is the calendar date layout used by the store for date columns.
const DateLayout = "2006-01-02"

// Day truncates t to midnight UTC of its calendar date. All date arithmetic in
// the engine happens on values normalized by Day.
func Day(t time.Time) time.Time {
	year, month, day := t.Date()
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// ParseDay parses a calendar date. Timestamps are accepted and truncated.
func ParseDay(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("date string cannot be empty")
	}

	formats := []string{
		DateLayout,
		time.RFC3339,
		"2006-01-02T15:04:05",
		"2006-01-02 15:04:05",
		"02/01/2006",
	}

	var lastErr error
	for _, format := range formats {
		t, err := time.Parse(format, s)
		if err == nil {
			return Day(t), nil
		}
		lastErr = err
	}

	return time.Time{}, fmt.Errorf("unable to parse date '%s': %w", s, lastErr)
}

// DaysBetween returns the absolute number of whole days between two dates.
func DaysBetween(a, b time.Time) int {
	diff := Day(a).Sub(Day(b))
	if diff < 0 {
		diff = -diff
	}
	return int(diff / (24 * time.Hour))
}

// StatementType tells credit lines from debit lines on a bank statement.
type StatementType string

const (
	// StatementCredit is money coming into the account.
	StatementCredit StatementType = "credito"
	// StatementDebit is money leaving the account.
	StatementDebit StatementType = "debito"
)

// IsValid checks if the statement type is known
func (t StatementType) IsValid() bool {
	return t == StatementCredit || t == StatementDebit
}

// ParseStatementType accepts the stored value and a few common spellings.
func ParseStatementType(s string) (StatementType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "credito", "crédito", "credit", "c", "cr":
		return StatementCredit, nil
	case "debito", "débito", "debit", "d", "dr":
		return StatementDebit, nil
	default:
		return "", fmt.Errorf("invalid statement type '%s': must be credito or debito", s)
	}
}

// CardSettlement is an acquirer record of one card sale and its net payout.
// It is owned by the card ingestion process; the engine only flips Reconciled
// and records ReceivedOn.
type CardSettlement struct {
	ID          string              `json:"id"`
	CompanyCNPJ string              `json:"company_cnpj"`
	Operator    string              `json:"operadora"`
	Brand       string              `json:"bandeira"`
	SaleDate    time.Time           `json:"data_venda"`
	GrossAmount decimal.Decimal     `json:"valor_bruto"`
	FeePercent  decimal.NullDecimal `json:"taxa_percentual"`
	FeeAmount   decimal.NullDecimal `json:"taxa_valor"`
	NetAmount   decimal.Decimal     `json:"valor_liquido"`
	Reconciled  bool                `json:"conciliado"`
	ReceivedOn  *time.Time          `json:"data_recebimento,omitempty"`
}

// Validate performs basic validation on the CardSettlement
func (s *CardSettlement) Validate() error {
	if strings.TrimSpace(s.ID) == "" {
		return fmt.Errorf("card settlement ID cannot be empty")
	}
	if strings.TrimSpace(s.CompanyCNPJ) == "" {
		return fmt.Errorf("card settlement %s has no company", s.ID)
	}
	if s.SaleDate.IsZero() {
		return fmt.Errorf("card settlement %s has no sale date", s.ID)
	}
	return nil
}

// ObservedFee returns the fee percent charged by the acquirer. A missing or
// zero fee counts as not reported.
func (s *CardSettlement) ObservedFee() (decimal.Decimal, bool) {
	if !s.FeePercent.Valid || s.FeePercent.Decimal.IsZero() {
		return decimal.Zero, false
	}
	return s.FeePercent.Decimal, true
}

// String returns a string representation of the CardSettlement
func (s *CardSettlement) String() string {
	return fmt.Sprintf("CardSettlement{ID: %s, Operator: %s, Brand: %s, Sale: %s, Net: %s}",
		s.ID, s.Operator, s.Brand, s.SaleDate.Format(DateLayout), s.NetAmount.String())
}

// BankStatementLine is one movement from an imported bank statement.
type BankStatementLine struct {
	ID           string          `json:"id"`
	CompanyCNPJ  string          `json:"company_cnpj"`
	MovementDate time.Time       `json:"data_movimento"`
	Type         StatementType   `json:"tipo"`
	Amount       decimal.Decimal `json:"valor"`
	Description  string          `json:"descricao"`
}

// IsCredit returns true if the line is a credit
func (l *BankStatementLine) IsCredit() bool {
	return l.Type == StatementCredit
}

// Validate performs basic validation on the BankStatementLine
func (l *BankStatementLine) Validate() error {
	if strings.TrimSpace(l.ID) == "" {
		return fmt.Errorf("bank statement line ID cannot be empty")
	}
	if strings.TrimSpace(l.CompanyCNPJ) == "" {
		return fmt.Errorf("bank statement line %s has no company", l.ID)
	}
	if l.MovementDate.IsZero() {
		return fmt.Errorf("bank statement line %s has no movement date", l.ID)
	}
	if !l.Type.IsValid() {
		return fmt.Errorf("invalid statement type: %s", l.Type)
	}
	return nil
}

// String returns a string representation of the BankStatementLine
func (l *BankStatementLine) String() string {
	return fmt.Sprintf("BankStatementLine{ID: %s, Date: %s, Type: %s, Amount: %s}",
		l.ID, l.MovementDate.Format(DateLayout), l.Type, l.Amount.String())
}

// ReconciliationKind identifies which job produced a reconciliation.
type ReconciliationKind string

// KindCard marks reconciliations of card settlements.
const KindCard ReconciliationKind = "cartao"

// ReconciliationStatus tells exact matches from matches with a residual difference.
type ReconciliationStatus string

const (
	StatusOK        ReconciliationStatus = "ok"
	StatusDivergent ReconciliationStatus = "divergente"
)

// Reconciliation is a confirmed pairing between a card settlement and the
// bank statement line that paid it. Created once, never updated.
type Reconciliation struct {
	ID                  string               `json:"id"`
	CompanyCNPJ         string               `json:"company_cnpj"`
	Kind                ReconciliationKind   `json:"tipo"`
	CardSettlementID    string               `json:"card_transaction_id"`
	BankStatementLineID string               `json:"bank_statement_id"`
	ReconciliationDate  time.Time            `json:"data_conciliacao"`
	StatementAmount     decimal.Decimal      `json:"valor_extrato"`
	SettlementAmount    decimal.Decimal      `json:"valor_lancamento"`
	Difference          decimal.Decimal      `json:"diferenca"`
	Status              ReconciliationStatus `json:"status"`
	Confidence          float64              `json:"confianca"`
}

// AlertType classifies financial alerts.
type AlertType string

const (
	AlertFeeDivergent       AlertType = "taxa_divergente"
	AlertSettlementNotFound AlertType = "pagamento_nao_encontrado"
	AlertValueDivergent     AlertType = "valor_divergente"
)

// AlertPriority orders alerts for the notification dispatcher.
type AlertPriority string

const (
	PriorityHigh   AlertPriority = "alta"
	PriorityMedium AlertPriority = "media"
	PriorityLow    AlertPriority = "baixa"
)

// AlertStatus is the workflow state of an alert. This service only creates
// pending alerts.
type AlertStatus string

// AlertPending is the initial state of every alert.
const AlertPending AlertStatus = "pendente"

// AlertDetails is the kind-specific structured payload of an alert. It is
// persisted as a JSON document.
type AlertDetails map[string]interface{}

// Value implements driver.Valuer
func (d AlertDetails) Value() (driver.Value, error) {
	if d == nil {
		return "{}", nil
	}
	b, err := json.Marshal(d)
	if err != nil {
		return nil, fmt.Errorf("marshal alert details: %w", err)
	}
	return string(b), nil
}

// Scan implements sql.Scanner
func (d *AlertDetails) Scan(src interface{}) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*d = AlertDetails{}
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("cannot scan %T into alert details", src)
	}

	details := AlertDetails{}
	if err := json.Unmarshal(raw, &details); err != nil {
		return fmt.Errorf("unmarshal alert details: %w", err)
	}
	*d = details
	return nil
}

// FinancialAlert is an actionable finding raised by a reconciliation job.
// Status and WhatsApp notification are advanced by other workflows.
type FinancialAlert struct {
	ID                  string        `json:"id"`
	CompanyCNPJ         string        `json:"company_cnpj"`
	Type                AlertType     `json:"tipo_alerta"`
	Priority            AlertPriority `json:"prioridade"`
	Title               string        `json:"titulo"`
	Message             string        `json:"mensagem"`
	Details             AlertDetails  `json:"dados_detalhados"`
	Status              AlertStatus   `json:"status"`
	NotifiedViaWhatsApp bool          `json:"notificado_whatsapp"`
}

// String returns a string representation of the FinancialAlert
func (a *FinancialAlert) String() string {
	return fmt.Sprintf("FinancialAlert{Type: %s, Priority: %s, Company: %s, Title: %s}",
		a.Type, a.Priority, a.CompanyCNPJ, a.Title)
}

// ParseDecimalFromString parses a decimal value, accepting "R$" prefixes and
// both Brazilian ("1.234,56") and international ("1,234.56") separators.
// When both separators appear the last one is the decimal point. A lone
// comma is a decimal point. Inputs whose meaning depends on the locale,
// such as "1.234" or "1,234,567", are rejected.
func ParseDecimalFromString(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, fmt.Errorf("amount string cannot be empty")
	}

	raw := s
	s = strings.TrimSpace(strings.TrimPrefix(s, "R$"))
	normalized, err := normalizeSeparators(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid decimal format '%s': %w", raw, err)
	}

	d, err := decimal.NewFromString(normalized)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid decimal format '%s': %w", raw, err)
	}

	return d, nil
}

// normalizeSeparators rewrites s with "." as the only decimal point and no
// thousands separator.
func normalizeSeparators(s string) (string, error) {
	dot, comma := strings.Count(s, "."), strings.Count(s, ",")

	switch {
	case dot > 0 && comma > 0:
		decimalSep, groupSep := ",", "."
		if strings.LastIndex(s, ".") > strings.LastIndex(s, ",") {
			decimalSep, groupSep = ".", ","
		}
		if strings.Count(s, decimalSep) > 1 {
			return "", fmt.Errorf("more than one decimal separator %q", decimalSep)
		}
		i := strings.LastIndex(s, decimalSep)
		intPart, err := ungroup(s[:i], groupSep)
		if err != nil {
			return "", err
		}
		return intPart + "." + s[i+1:], nil

	case comma > 1:
		return "", fmt.Errorf("ambiguous separators: more than one ','")

	case comma == 1:
		return strings.Replace(s, ",", ".", 1), nil

	case dot > 1:
		return ungroup(s, ".")

	case dot == 1:
		if len(s)-strings.Index(s, ".")-1 == 3 {
			return "", fmt.Errorf("ambiguous separators: '.' followed by three digits")
		}
		return s, nil
	}

	return s, nil
}

// ungroup removes a thousands separator after checking that every group
// after the first has exactly three digits.
func ungroup(s, sep string) (string, error) {
	groups := strings.Split(s, sep)
	for i, g := range groups {
		digits := strings.TrimLeft(g, "+-")
		if i == 0 {
			if digits == "" || len(digits) > 3 {
				return "", fmt.Errorf("misplaced thousands separator %q", sep)
			}
			continue
		}
		if len(g) != 3 {
			return "", fmt.Errorf("misplaced thousands separator %q", sep)
		}
	}
	return strings.Join(groups, ""), nil
}
