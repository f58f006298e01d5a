package handlers

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"fund-balance-service/internal/apperrors"
	"fund-balance-service/internal/calendar"
	"fund-balance-service/internal/models"
)

type auditEntryView struct {
	models.FinancialAuditEntry
	CreatedAtHijri string `json:"created_at_hijri"`
}

type AuditHistory interface {
	History(ctx context.Context, resourceType, resourceID string) ([]models.FinancialAuditEntry, error)
}

type AuditHandler struct {
	history AuditHistory
	log     *zap.Logger
}

func NewAuditHandler(history AuditHistory, log *zap.Logger) *AuditHandler {
	return &AuditHandler{history: history, log: log.Named("audit_handler")}
}

func (h *AuditHandler) GetHistory(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	entries, err := h.history.History(r.Context(), vars["resource_type"], vars["resource_id"])
	if err != nil {
		respondWithError(w, h.log, apperrors.StoreUnavailable(err))
		return
	}

	views := make([]auditEntryView, 0, len(entries))
	for _, e := range entries {
		views = append(views, auditEntryView{FinancialAuditEntry: e, CreatedAtHijri: calendar.FormatArabic(e.CreatedAt)})
	}
	respondWithData(w, http.StatusOK, views)
}
