package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"card-reconciliation-service/internal/reconciler"
	rerrors "card-reconciliation-service/pkg/errors"
	"card-reconciliation-service/pkg/logger"

	"github.com/go-playground/validator/v10"
)

// maxBodyBytes bounds the request body of the reconcile endpoint.
const maxBodyBytes = 1 << 20

// Runner executes reconciliation runs.
type Runner interface {
	Run(ctx context.Context, req reconciler.RunRequest) (*reconciler.RunSummary, error)
}

// Handlers groups all HTTP handler methods and their dependencies.
type Handlers struct {
	runner   Runner
	validate *validator.Validate
	logger   logger.Logger

	// anyOrigin is set when every origin is allowed.
	anyOrigin bool
}

// reconcileResponse is the body of a successful run. TransactionsProcessed is
// left out when there was nothing to process.
type reconcileResponse struct {
	Success               bool `json:"success"`
	TransactionsProcessed *int `json:"transactions_processed,omitempty"`
	Reconciled            int  `json:"reconciled"`
	ValidatedFees         int  `json:"validated_fees"`
	AlertsCreated         int  `json:"alerts_created"`
}

// --- helpers ---

func (h *Handlers) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.WithError(err).Error("Failed to encode response")
	}
}

func (h *Handlers) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	if rerr, ok := rerrors.AsReconcilerError(err); ok {
		status = rerr.HTTPStatus()
	}
	h.writeJSON(w, status, map[string]string{"error": err.Error()})
}

// --- ReconcileCard ---

// ReconcileCard runs one batch for the company in the body, or for every
// company when the body is empty or carries no company_cnpj.
func (h *Handlers) ReconcileCard(w http.ResponseWriter, r *http.Request) {
	req, err := h.decodeRequest(w, r)
	if err != nil {
		h.writeError(w, err)
		return
	}

	summary, err := h.runner.Run(r.Context(), req)
	if err != nil {
		log := h.logger.WithError(err).WithField("company_cnpj", req.CompanyCNPJ)
		if summary != nil {
			log = log.WithFields(logger.Fields{
				"reconciled":     summary.Reconciled,
				"alerts_created": summary.AlertsCreated,
			})
		}
		log.Error("Card reconciliation failed")
		h.writeError(w, err)
		return
	}

	resp := reconcileResponse{
		Success:       true,
		Reconciled:    summary.Reconciled,
		ValidatedFees: summary.ValidatedFees,
		AlertsCreated: summary.AlertsCreated,
	}
	if !summary.Empty() {
		processed := summary.TransactionsProcessed
		resp.TransactionsProcessed = &processed
	}
	h.writeJSON(w, http.StatusOK, resp)
}

func (h *Handlers) decodeRequest(w http.ResponseWriter, r *http.Request) (reconciler.RunRequest, error) {
	var req reconciler.RunRequest

	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		return req, rerrors.ParseError(rerrors.CodeInvalidJSON, "request body", 0, "", "", err)
	}

	req.Normalize()
	if err := h.validate.Struct(req); err != nil {
		return req, rerrors.ValidationError(rerrors.CodeOutOfRange, "company_cnpj", req.CompanyCNPJ, err)
	}
	return req, nil
}

// --- Preflight ---

// Preflight answers CORS preflight requests once the CORS middleware has set
// its headers.
// An OPTIONS request without an Origin header is not a CORS request, so the
// middleware leaves it alone; it still gets the permissive headers when every
// origin is allowed.
func (h *Handlers) Preflight(w http.ResponseWriter, r *http.Request) {
	if h.anyOrigin && r.Header.Get("Origin") == "" {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	io.WriteString(w, "ok")
}

// --- Health ---

func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
