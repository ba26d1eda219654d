package postgres

import (
	"time"

	"card-reconciliation-service/internal/models"

	"github.com/shopspring/decimal"
)

type settlementRow struct {
	ID              string              `gorm:"column:id;primaryKey"`
	CompanyCNPJ     string              `gorm:"column:company_cnpj;size:32;not null;index:idx_card_transactions_pending,priority:2"`
	Operadora       string              `gorm:"column:operadora;not null;default:''"`
	Bandeira        string              `gorm:"column:bandeira;not null;default:''"`
	DataVenda       time.Time           `gorm:"column:data_venda;type:date;not null;index:idx_card_transactions_pending,priority:3"`
	ValorBruto      decimal.Decimal     `gorm:"column:valor_bruto;type:numeric(14,2);not null"`
	TaxaPercentual  decimal.NullDecimal `gorm:"column:taxa_percentual;type:numeric(7,4)"`
	TaxaValor       decimal.NullDecimal `gorm:"column:taxa_valor;type:numeric(14,2)"`
	ValorLiquido    decimal.Decimal     `gorm:"column:valor_liquido;type:numeric(14,2);not null"`
	Conciliado      bool                `gorm:"column:conciliado;not null;default:false;index:idx_card_transactions_pending,priority:1"`
	DataRecebimento *time.Time          `gorm:"column:data_recebimento;type:date"`
}

func (settlementRow) TableName() string { return "card_transactions" }

func newSettlementRow(s *models.CardSettlement) settlementRow {
	row := settlementRow{
		ID:             s.ID,
		CompanyCNPJ:    s.CompanyCNPJ,
		Operadora:      s.Operator,
		Bandeira:       s.Brand,
		DataVenda:      models.Day(s.SaleDate),
		ValorBruto:     s.GrossAmount,
		TaxaPercentual: s.FeePercent,
		TaxaValor:      s.FeeAmount,
		ValorLiquido:   s.NetAmount,
		Conciliado:     s.Reconciled,
	}
	if s.ReceivedOn != nil {
		d := models.Day(*s.ReceivedOn)
		row.DataRecebimento = &d
	}
	return row
}

func (r settlementRow) model() *models.CardSettlement {
	s := &models.CardSettlement{
		ID:          r.ID,
		CompanyCNPJ: r.CompanyCNPJ,
		Operator:    r.Operadora,
		Brand:       r.Bandeira,
		SaleDate:    models.Day(r.DataVenda),
		GrossAmount: r.ValorBruto,
		FeePercent:  r.TaxaPercentual,
		FeeAmount:   r.TaxaValor,
		NetAmount:   r.ValorLiquido,
		Reconciled:  r.Conciliado,
	}
	if r.DataRecebimento != nil {
		d := models.Day(*r.DataRecebimento)
		s.ReceivedOn = &d
	}
	return s
}

type statementRow struct {
	ID            string          `gorm:"column:id;primaryKey"`
	CompanyCNPJ   string          `gorm:"column:company_cnpj;size:32;not null;index:idx_bank_statements_lookup,priority:1"`
	DataMovimento time.Time       `gorm:"column:data_movimento;type:date;not null;index:idx_bank_statements_lookup,priority:3"`
	Tipo          string          `gorm:"column:tipo;size:16;not null;index:idx_bank_statements_lookup,priority:2"`
	Valor         decimal.Decimal `gorm:"column:valor;type:numeric(14,2);not null"`
	Descricao     string          `gorm:"column:descricao;not null;default:''"`
}

func (statementRow) TableName() string { return "bank_statements" }

func newStatementRow(l *models.BankStatementLine) statementRow {
	return statementRow{
		ID:            l.ID,
		CompanyCNPJ:   l.CompanyCNPJ,
		DataMovimento: models.Day(l.MovementDate),
		Tipo:          string(l.Type),
		Valor:         l.Amount,
		Descricao:     l.Description,
	}
}

func (r statementRow) model() *models.BankStatementLine {
	return &models.BankStatementLine{
		ID:           r.ID,
		CompanyCNPJ:  r.CompanyCNPJ,
		MovementDate: models.Day(r.DataMovimento),
		Type:         models.StatementType(r.Tipo),
		Amount:       r.Valor,
		Description:  r.Descricao,
	}
}

type reconciliationRow struct {
	ID                string          `gorm:"column:id;primaryKey"`
	CompanyCNPJ       string          `gorm:"column:company_cnpj;size:32;not null;index"`
	Tipo              string          `gorm:"column:tipo;size:16;not null"`
	CardTransactionID string          `gorm:"column:card_transaction_id;not null"`
	BankStatementID   string          `gorm:"column:bank_statement_id;not null"`
	DataConciliacao   time.Time       `gorm:"column:data_conciliacao;type:date;not null"`
	ValorExtrato      decimal.Decimal `gorm:"column:valor_extrato;type:numeric(14,2);not null"`
	ValorLancamento   decimal.Decimal `gorm:"column:valor_lancamento;type:numeric(14,2);not null"`
	Diferenca         decimal.Decimal `gorm:"column:diferenca;type:numeric(14,2);not null"`
	Status            string          `gorm:"column:status;size:16;not null"`
	Confianca         float64         `gorm:"column:confianca;not null"`
}

func (reconciliationRow) TableName() string { return "reconciliations" }

func newReconciliationRow(r *models.Reconciliation) reconciliationRow {
	return reconciliationRow{
		ID:                r.ID,
		CompanyCNPJ:       r.CompanyCNPJ,
		Tipo:              string(r.Kind),
		CardTransactionID: r.CardSettlementID,
		BankStatementID:   r.BankStatementLineID,
		DataConciliacao:   models.Day(r.ReconciliationDate),
		ValorExtrato:      r.StatementAmount,
		ValorLancamento:   r.SettlementAmount,
		Diferenca:         r.Difference,
		Status:            string(r.Status),
		Confianca:         r.Confidence,
	}
}

func (r reconciliationRow) model() *models.Reconciliation {
	return &models.Reconciliation{
		ID:                  r.ID,
		CompanyCNPJ:         r.CompanyCNPJ,
		Kind:                models.ReconciliationKind(r.Tipo),
		CardSettlementID:    r.CardTransactionID,
		BankStatementLineID: r.BankStatementID,
		ReconciliationDate:  models.Day(r.DataConciliacao),
		StatementAmount:     r.ValorExtrato,
		SettlementAmount:    r.ValorLancamento,
		Difference:          r.Diferenca,
		Status:              models.ReconciliationStatus(r.Status),
		Confidence:          r.Confianca,
	}
}

type alertRow struct {
	ID                 string              `gorm:"column:id;primaryKey"`
	CompanyCNPJ        string              `gorm:"column:company_cnpj;size:32;not null;index:idx_financial_alerts_company,priority:1"`
	TipoAlerta         string              `gorm:"column:tipo_alerta;size:64;not null;index:idx_financial_alerts_company,priority:2"`
	Prioridade         string              `gorm:"column:prioridade;size:16;not null"`
	Titulo             string              `gorm:"column:titulo;not null"`
	Mensagem           string              `gorm:"column:mensagem;not null"`
	DadosDetalhados    models.AlertDetails `gorm:"column:dados_detalhados;type:jsonb;not null;default:'{}'"`
	Status             string              `gorm:"column:status;size:16;not null"`
	NotificadoWhatsapp bool                `gorm:"column:notificado_whatsapp;not null;default:false"`
}

func (alertRow) TableName() string { return "financial_alerts" }

func newAlertRow(a *models.FinancialAlert) alertRow {
	return alertRow{
		ID:                 a.ID,
		CompanyCNPJ:        a.CompanyCNPJ,
		TipoAlerta:         string(a.Type),
		Prioridade:         string(a.Priority),
		Titulo:             a.Title,
		Mensagem:           a.Message,
		DadosDetalhados:    a.Details,
		Status:             string(a.Status),
		NotificadoWhatsapp: a.NotifiedViaWhatsApp,
	}
}

func (r alertRow) model() *models.FinancialAlert {
	return &models.FinancialAlert{
		ID:                  r.ID,
		CompanyCNPJ:         r.CompanyCNPJ,
		Type:                models.AlertType(r.TipoAlerta),
		Priority:            models.AlertPriority(r.Prioridade),
		Title:               r.Titulo,
		Message:             r.Mensagem,
		Details:             r.DadosDetalhados,
		Status:              models.AlertStatus(r.Status),
		NotifiedViaWhatsApp: r.NotificadoWhatsapp,
	}
}
