// Package reconciler drives a card reconciliation run.
//
// One run loads every unreconciled card settlement (optionally for a single
// company), checks its fee against the rate table, searches the bank
// statement for the credit that paid it and either commits a reconciliation
// or raises an alert. Reconciliations and alerts are accumulated in memory and
// written at the end as two independent batch writes.
//
// Example usage:
//
//	orch, err := reconciler.NewOrchestrator(st, reconciler.DefaultConfig(), log)
//	if err != nil {
//		return err
//	}
//	summary, err := orch.Run(ctx, reconciler.RunRequest{CompanyCNPJ: cnpj})
package reconciler

import (
	"context"
	"time"

	"card-reconciliation-service/internal/alerts"
	"card-reconciliation-service/internal/fees"
	"card-reconciliation-service/internal/matcher"
	"card-reconciliation-service/internal/models"
	"card-reconciliation-service/internal/store"
	"card-reconciliation-service/pkg/errors"
	"card-reconciliation-service/pkg/logger"

	"github.com/google/uuid"
	"go.uber.org/multierr"
)

// Store is the part of the persistence layer a run uses.
type Store interface {
	store.SettlementReader
	store.SettlementWriter
	store.StatementReader
	store.ResultWriter
}

// Orchestrator runs reconciliation batches. It keeps no state between runs
// and is safe to share across goroutines.
type Orchestrator struct {
	store     Store
	config    *Config
	matcher   *matcher.Matcher
	validator *fees.Validator
	alerts    *alerts.Builder
	logger    logger.Logger

	now   func() time.Time
	newID func() string
}

// Option customizes an orchestrator.
type Option func(*Orchestrator)

// WithClock sets the clock used for the reconciliation date.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// WithIDs sets the id source for reconciliations and alerts.
func WithIDs(newID func() string) Option {
	return func(o *Orchestrator) {
		o.newID = newID
		o.alerts = alerts.NewBuilderWithIDs(newID)
	}
}

// NewOrchestrator creates an orchestrator over st. A nil config selects the
// defaults and a nil log the global logger.
func NewOrchestrator(st Store, config *Config, log logger.Logger, opts ...Option) (*Orchestrator, error) {
	if st == nil {
		return nil, errors.ValidationError(errors.CodeMissingField, "store", nil, nil).
			WithSuggestion("Provide a configured store")
	}
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "reconciler", nil, err)
	}
	if log == nil {
		log = logger.GetGlobalLogger()
	}

	m, err := matcher.NewMatcher(config.Matching)
	if err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "matching", config.Matching, err)
	}
	v, err := fees.NewValidator(config.Rates, config.Fees)
	if err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "fees", config.Fees, err)
	}

	o := &Orchestrator{
		store:     st,
		config:    config,
		matcher:   m,
		validator: v,
		alerts:    alerts.NewBuilder(),
		logger:    log.WithComponent("reconciler"),
		now:       time.Now,
		newID:     uuid.NewString,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// Run executes one batch. A load failure aborts the run. Failures of the
// final writes are returned together with the summary of what was done.
func (o *Orchestrator) Run(ctx context.Context, req RunRequest) (*RunSummary, error) {
	req.Normalize()
	summary := &RunSummary{CompanyCNPJ: req.CompanyCNPJ, StartTime: o.now()}

	op := logger.NewOperationLogger("reconcile_card", o.logger).
		WithField("company_cnpj", req.CompanyCNPJ).
		WithField("prefetch", o.config.PrefetchStatements)

	loaded, err := o.store.ListUnreconciled(ctx, req.CompanyCNPJ)
	if err != nil {
		rerr := errors.PersistenceError(errors.CodeQueryFailed, "list unreconciled settlements", err).
			WithContext("company_cnpj", req.CompanyCNPJ)
		op.Error(rerr, "Failed to load settlements", nil)
		return nil, rerr
	}

	if len(loaded) == 0 {
		op.Success("No pending settlements", nil)
		return summary, nil
	}

	prep := NewDataPreprocessor()
	settlements, rejected := prep.PreprocessSettlements(loaded)
	summary.TransactionsProcessed = len(loaded)
	for _, r := range rejected {
		summary.Skipped++
		o.logger.WithError(r.Err).WithField("card_transaction_id", r.Settlement.ID).Warn("Skipping invalid settlement")
	}

	edge := matcher.NewEdgeCaseHandler()
	for _, group := range edge.DetectDuplicates(settlements) {
		summary.DuplicateGroups++
		o.logger.WithFields(logger.Fields{
			"group_id": group.GroupID,
			"size":     len(group.Settlements),
			"reason":   group.Reason,
		}).Warn("Possible duplicate settlements")
	}

	var source candidateSource
	if o.config.PrefetchStatements {
		pf := newPrefetched(ctx, o.store, o.matcher.Config(), prep, settlements)
		stats := pf.index.GetIndexStats()
		o.logger.WithFields(logger.Fields{
			"lines":     stats.TotalStatements,
			"companies": stats.UniqueCompanies,
			"dates":     stats.UniqueDates,
			"failed":    len(pf.failed),
		}).Debug("Prefetched bank statement lines")
		source = pf
	} else {
		source = &queryPerSettlement{reader: o.store, config: o.matcher.Config(), prep: prep}
	}

	progress := logger.NewProgressTracker(logger.ProgressConfig{
		Operation:   "reconcile_card",
		Total:       int64(len(settlements)),
		LogInterval: o.config.ProgressInterval,
		Logger:      o.logger,
	})

	runDate := models.Day(o.now())
	var (
		recs      []*models.Reconciliation
		raised    []*models.FinancialAlert
		cancelled error
	)

	for _, s := range settlements {
		if err := ctx.Err(); err != nil {
			cancelled = errors.ReconciliationError(errors.CodeProcessingError, "reconcile settlements", err).
				WithContext("remaining", len(settlements)-int(progress.Current()))
			break
		}

		rec, batch := o.process(ctx, s, source, edge, runDate, summary)
		if rec != nil {
			recs = append(recs, rec)
		}
		raised = append(raised, batch...)
		progress.Increment()
	}

	prepStats := prep.GetStatistics()
	o.logger.WithFields(logger.Fields{
		"settlements": prepStats.Settlements,
		"lines":       prepStats.Lines,
		"rejected":    prepStats.Rejected,
		"normalized":  prepStats.Normalized,
	}).Debug("Preprocessing finished")

	for _, c := range edge.Contention() {
		summary.ContendedLines++
		o.logger.WithFields(logger.Fields{
			"bank_statement_id": c.LineID,
			"settlements":       c.SettlementIDs,
		}).Warn("Bank line matched by more than one settlement")
	}

	// settlements already flipped must still get their rows when the caller
	// gave up on the run
	writeCtx := context.WithoutCancel(ctx)

	var writeErr error
	reconciled, err := o.store.InsertReconciliations(writeCtx, recs)
	if err != nil {
		writeErr = multierr.Append(writeErr, errors.PersistenceError(errors.CodeWriteFailed, "insert reconciliations", err).
			WithContext("count", len(recs)))
	}
	created, err := o.store.InsertAlerts(writeCtx, raised)
	if err != nil {
		writeErr = multierr.Append(writeErr, errors.PersistenceError(errors.CodeWriteFailed, "insert alerts", err).
			WithContext("count", len(raised)))
	}

	summary.Reconciled = reconciled
	summary.AlertsCreated = created
	summary.Duration = o.now().Sub(summary.StartTime)

	fields := logger.Fields{
		"transactions_processed": summary.TransactionsProcessed,
		"reconciled":             summary.Reconciled,
		"validated_fees":         summary.ValidatedFees,
		"alerts_created":         summary.AlertsCreated,
		"skipped":                summary.Skipped,
		"not_found_alerts":       summary.NotFoundAlerts,
		"value_divergent_alerts": summary.ValueDivergentAlerts,
	}

	runErr := multierr.Combine(cancelled, writeErr)
	if runErr != nil {
		op.Error(runErr, "Card reconciliation finished with errors", fields)
		return summary, runErr
	}
	op.Success("Card reconciliation finished", fields)
	return summary, nil
}

// process handles one settlement: fee check first, then matching. It returns
// the reconciliation to record, if any, and the alerts raised.
func (o *Orchestrator) process(ctx context.Context, s *models.CardSettlement, source candidateSource,
	edge *matcher.EdgeCaseHandler, runDate time.Time, summary *RunSummary) (*models.Reconciliation, []*models.FinancialAlert) {

	log := o.logger.WithFields(logger.Fields{
		"card_transaction_id": s.ID,
		"company_cnpj":        s.CompanyCNPJ,
	})

	var raised []*models.FinancialAlert
	if div, ok := o.validator.Check(s); ok {
		summary.ValidatedFees++
		raised = append(raised, o.alerts.FeeDivergent(s, div))
		log.WithFields(logger.Fields{
			"expected": div.Expected.String(),
			"observed": div.Observed.String(),
			"priority": div.Priority,
		}).Debug("Fee divergence")
	}

	lines, err := source.Candidates(ctx, s)
	if err != nil {
		summary.Skipped++
		log.WithError(err).Warn("Candidate search failed, skipping settlement")
		return nil, raised
	}

	decision := o.matcher.Evaluate(s, lines)
	log.WithField("decision", decision.String()).Debug("Match decision")

	switch decision.Outcome {
	case matcher.OutcomeMatched:
		line := decision.Best.Line
		if err := o.store.MarkReconciled(ctx, s.ID, line.MovementDate); err != nil {
			summary.MarkFailures++
			log.WithError(err).Error("Failed to mark settlement as reconciled")
			return nil, raised
		}
		summary.Matched++
		edge.RecordClaim(line.ID, s.ID)
		return o.reconciliation(s, decision, runDate), raised

	case matcher.OutcomeLowScore:
		summary.ValueDivergentAlerts++
		raised = append(raised, o.alerts.ValueDivergent(s, decision.Best.Line))

	default:
		summary.NotFoundAlerts++
		raised = append(raised, o.alerts.SettlementNotFound(s, o.matcher.Config().ExpectedDate(s.SaleDate)))
	}
	return nil, raised
}

func (o *Orchestrator) reconciliation(s *models.CardSettlement, d *matcher.Decision, runDate time.Time) *models.Reconciliation {
	return &models.Reconciliation{
		ID:                  o.newID(),
		CompanyCNPJ:         s.CompanyCNPJ,
		Kind:                models.KindCard,
		CardSettlementID:    s.ID,
		BankStatementLineID: d.Best.Line.ID,
		ReconciliationDate:  runDate,
		StatementAmount:     d.Best.Line.Amount,
		SettlementAmount:    s.NetAmount,
		Difference:          d.Difference.Abs(),
		Status:              d.Status,
		Confidence:          d.Confidence,
	}
}
