package handlers

import (
	"context"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"fund-balance-service/internal/access"
	"fund-balance-service/internal/apperrors"
	"fund-balance-service/internal/models"
	"fund-balance-service/internal/services"
)

type BalanceReader interface {
	GetCurrentBalance(ctx context.Context) (*models.BalanceFigure, error)
	GetBreakdown(ctx context.Context) (*models.FundBreakdown, error)
}

type SnapshotManager interface {
	CreateSnapshot(ctx context.Context, actor *access.Principal, in services.CreateSnapshotInput) (*services.SnapshotView, error)
	GetSnapshots(ctx context.Context, limit, offset int) ([]services.SnapshotView, error)
}

type FundHandler struct {
	balance   BalanceReader
	snapshots SnapshotManager
	log       *zap.Logger
}

func NewFundHandler(balance BalanceReader, snapshots SnapshotManager, log *zap.Logger) *FundHandler {
	return &FundHandler{
		balance:   balance,
		snapshots: snapshots,
		log:       log.Named("fund_handler"),
	}
}

func (h *FundHandler) GetBalance(w http.ResponseWriter, r *http.Request) {
	figure, err := h.balance.GetCurrentBalance(r.Context())
	if err != nil {
		respondWithError(w, h.log, err)
		return
	}

	if figure.IsLowBalance {
		respondWithMessage(w, http.StatusOK, figure, "تحذير: رصيد الصندوق منخفض", "Warning: Fund balance is low")
		return
	}
	respondWithMessage(w, http.StatusOK, figure, "تم جلب الرصيد بنجاح", "Balance retrieved successfully")
}

func (h *FundHandler) GetBreakdown(w http.ResponseWriter, r *http.Request) {
	breakdown, err := h.balance.GetBreakdown(r.Context())
	if err != nil {
		respondWithError(w, h.log, err)
		return
	}
	respondWithMessage(w, http.StatusOK, breakdown, "تم جلب تفاصيل الرصيد بنجاح", "Balance breakdown retrieved successfully")
}

func (h *FundHandler) CreateSnapshot(w http.ResponseWriter, r *http.Request) {
	var in services.CreateSnapshotInput
	if err := decodeJSON(r, &in); err != nil {
		respondWithError(w, h.log, err)
		return
	}

	view, err := h.snapshots.CreateSnapshot(r.Context(), principalFrom(r), in)
	if err != nil {
		respondWithError(w, h.log, err)
		return
	}
	respondWithMessage(w, http.StatusCreated, view, view.Message, view.MessageEn)
}

func (h *FundHandler) GetSnapshots(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit")
	if err != nil {
		respondWithError(w, h.log, err)
		return
	}
	offset, err := queryInt(r, "offset")
	if err != nil {
		respondWithError(w, h.log, err)
		return
	}

	views, err := h.snapshots.GetSnapshots(r.Context(), limit, offset)
	if err != nil {
		respondWithError(w, h.log, err)
		return
	}
	respondWithMessage(w, http.StatusOK, views, "تم جلب سجل المطابقات بنجاح", "Snapshot history retrieved successfully")
}

// queryInt reads an optional integer query parameter; absent means 0.
func queryInt(r *http.Request, name string) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, apperrors.Validation("INVALID_PAGINATION", name+" must be an integer")
	}
	return n, nil
}
