package handlers

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	"fund-balance-service/internal/access"
	"fund-balance-service/internal/apperrors"
	"fund-balance-service/internal/services"
)

type LedgerWriter interface {
	IngestPayments(ctx context.Context, actor *access.Principal, inputs []services.PaymentInput) (*services.IngestionResult, error)
	IngestDiyaCases(ctx context.Context, actor *access.Principal, inputs []services.DiyaCaseInput) (*services.IngestionResult, error)
}

type LedgerHandler struct {
	ledger LedgerWriter
	log    *zap.Logger
}

func NewLedgerHandler(ledger LedgerWriter, log *zap.Logger) *LedgerHandler {
	return &LedgerHandler{ledger: ledger, log: log.Named("ledger_handler")}
}

func (h *LedgerHandler) IngestPayments(w http.ResponseWriter, r *http.Request) {
	var payments []services.PaymentInput
	if err := decodeJSON(r, &payments); err != nil {
		respondWithError(w, h.log, err)
		return
	}

	result, err := h.ledger.IngestPayments(r.Context(), principalFrom(r), payments)
	if err != nil {
		respondWithError(w, h.log, err)
		return
	}
	respondWithIngestion(w, result)
}

func (h *LedgerHandler) IngestDiyaCases(w http.ResponseWriter, r *http.Request) {
	var cases []services.DiyaCaseInput
	if err := decodeJSON(r, &cases); err != nil {
		respondWithError(w, h.log, err)
		return
	}

	result, err := h.ledger.IngestDiyaCases(r.Context(), principalFrom(r), cases)
	if err != nil {
		respondWithError(w, h.log, err)
		return
	}
	respondWithIngestion(w, result)
}

// respondWithIngestion answers 206 when only part of the batch was stored
// and 400 when none of it was.
func respondWithIngestion(w http.ResponseWriter, result *services.IngestionResult) {
	if result.RecordsCount == 0 {
		respondWithStatus(w, http.StatusBadRequest,
			apperrors.Validation("NO_VALID_RECORDS", "No record in the batch was valid").
				WithDetails(map[string]any{"errors": result.Errors}))
		return
	}

	status := http.StatusOK
	if !result.Success {
		status = http.StatusPartialContent
	}
	respondWithData(w, status, result)
}
