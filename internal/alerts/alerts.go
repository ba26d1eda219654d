// Package alerts builds the financial alerts raised by card reconciliation.
// Titles and messages are pt-BR, as they are shown verbatim to the merchant.
package alerts

import (
	"fmt"
	"time"

	"card-reconciliation-service/internal/fees"
	"card-reconciliation-service/internal/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// displayDateLayout is the pt-BR short date used in alert messages.
const displayDateLayout = "02/01/2006"

// Builder creates alerts with fresh identifiers.
type Builder struct {
	newID func() string
}

// NewBuilder creates a builder that assigns random UUIDs.
func NewBuilder() *Builder {
	return &Builder{newID: func() string { return uuid.NewString() }}
}

// NewBuilderWithIDs creates a builder with a custom id source.
func NewBuilderWithIDs(newID func() string) *Builder {
	return &Builder{newID: newID}
}

func (b *Builder) base(s *models.CardSettlement, kind models.AlertType, priority models.AlertPriority) *models.FinancialAlert {
	return &models.FinancialAlert{
		ID:                  b.newID(),
		CompanyCNPJ:         s.CompanyCNPJ,
		Type:                kind,
		Priority:            priority,
		Status:              models.AlertPending,
		NotifiedViaWhatsApp: false,
	}
}

// FeeDivergent reports a fee that differs from the expected rate.
func (b *Builder) FeeDivergent(s *models.CardSettlement, d *fees.Divergence) *models.FinancialAlert {
	alert := b.base(s, models.AlertFeeDivergent, d.Priority)
	alert.Title = fmt.Sprintf("Taxa de cartão %s divergente", s.Operator)
	alert.Message = fmt.Sprintf("Bandeira: %s | Taxa esperada: %s%% | Taxa cobrada: %s%% | Diferença: %s%%",
		s.Brand, d.Expected.String(), d.Observed.String(), d.RelativePercent().StringFixed(2))
	alert.Details = models.AlertDetails{
		"operadora":            s.Operator,
		"bandeira":             s.Brand,
		"taxa_esperada":        number(d.Expected),
		"taxa_cobrada":         number(d.Observed),
		"diferenca_percentual": number(d.Difference),
		"data_venda":           s.SaleDate.Format(models.DateLayout),
		"valor_bruto":          number(s.GrossAmount),
	}
	return alert
}

// SettlementNotFound reports a settlement with no acceptable bank line near
// its expected payout date.
func (b *Builder) SettlementNotFound(s *models.CardSettlement, expected time.Time) *models.FinancialAlert {
	alert := b.base(s, models.AlertSettlementNotFound, models.PriorityHigh)
	alert.Title = "Recebimento de cartão não encontrado no extrato"
	alert.Message = fmt.Sprintf("%s | Valor esperado: R$ %s | Data esperada: ~%s",
		s.Operator, s.NetAmount.StringFixed(2), expected.Format(displayDateLayout))
	alert.Details = models.AlertDetails{
		"card_transaction_id": s.ID,
		"operadora":           s.Operator,
		"valor_liquido":       number(s.NetAmount),
		"data_esperada":       expected.Format(models.DateLayout),
		"data_venda":          s.SaleDate.Format(models.DateLayout),
	}
	return alert
}

// ValueDivergent reports a bank line that was the best candidate for a
// settlement but scored below the commit threshold.
func (b *Builder) ValueDivergent(s *models.CardSettlement, line *models.BankStatementLine) *models.FinancialAlert {
	alert := b.base(s, models.AlertValueDivergent, models.PriorityMedium)
	alert.Title = "Valor de cartão divergente no extrato"
	alert.Message = fmt.Sprintf("%s | Valor esperado: R$ %s | Valor encontrado: R$ %s",
		s.Operator, s.NetAmount.StringFixed(2), line.Amount.StringFixed(2))
	alert.Details = models.AlertDetails{
		"card_transaction_id": s.ID,
		"bank_statement_id":   line.ID,
		"valor_liquido":       number(s.NetAmount),
		"valor_extrato":       number(line.Amount),
		"diferenca":           number(line.Amount.Sub(s.NetAmount)),
		"operadora":           s.Operator,
	}
	return alert
}

// number renders amounts as JSON numbers in alert payloads.
func number(d decimal.Decimal) float64 {
	return d.InexactFloat64()
}
