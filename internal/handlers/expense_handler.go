package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"fund-balance-service/internal/access"
	"fund-balance-service/internal/apperrors"
	"fund-balance-service/internal/models"
	"fund-balance-service/internal/services"
)

type ExpenseManager interface {
	CreateExpense(ctx context.Context, actor *access.Principal, in services.CreateExpenseInput) (*services.ExpenseResult, error)
	GetExpense(ctx context.Context, id int64) (*models.ExpenseRecord, error)
	ReviewExpense(ctx context.Context, actor *access.Principal, id int64, in services.ReviewInput) (*services.ExpenseResult, error)
	MarkPaid(ctx context.Context, actor *access.Principal, id int64) (*models.ExpenseRecord, error)
	DeleteExpense(ctx context.Context, actor *access.Principal, id int64) (*models.ExpenseRecord, error)
}

type ExpenseHandler struct {
	expenses ExpenseManager
	log      *zap.Logger
}

func NewExpenseHandler(expenses ExpenseManager, log *zap.Logger) *ExpenseHandler {
	return &ExpenseHandler{expenses: expenses, log: log.Named("expense_handler")}
}

func (h *ExpenseHandler) Create(w http.ResponseWriter, r *http.Request) {
	var in services.CreateExpenseInput
	if err := decodeJSON(r, &in); err != nil {
		respondWithError(w, h.log, err)
		return
	}

	result, err := h.expenses.CreateExpense(r.Context(), principalFrom(r), in)
	if err != nil {
		respondWithError(w, h.log, err)
		return
	}

	if result.Expense.Status == models.ExpenseStatusApproved {
		respondWithMessage(w, http.StatusCreated, result, "تم إنشاء المصروف واعتماده", "Expense created and approved")
		return
	}
	respondWithMessage(w, http.StatusCreated, result, "تم إنشاء المصروف بانتظار الموافقة", "Expense created and awaiting approval")
}

func (h *ExpenseHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := expenseID(r)
	if err != nil {
		respondWithError(w, h.log, err)
		return
	}

	expense, err := h.expenses.GetExpense(r.Context(), id)
	if err != nil {
		respondWithError(w, h.log, err)
		return
	}
	respondWithData(w, http.StatusOK, expense)
}

func (h *ExpenseHandler) Review(w http.ResponseWriter, r *http.Request) {
	id, err := expenseID(r)
	if err != nil {
		respondWithError(w, h.log, err)
		return
	}

	var in services.ReviewInput
	if err := decodeJSON(r, &in); err != nil {
		respondWithError(w, h.log, err)
		return
	}

	result, err := h.expenses.ReviewExpense(r.Context(), principalFrom(r), id, in)
	if err != nil {
		respondWithError(w, h.log, err)
		return
	}

	status := result.Expense.Status
	respondWithMessage(w, http.StatusOK, result,
		"تم تحديث حالة المصروف: "+status.ArabicLabel(),
		"Expense status updated to "+string(status))
}

func (h *ExpenseHandler) MarkPaid(w http.ResponseWriter, r *http.Request) {
	id, err := expenseID(r)
	if err != nil {
		respondWithError(w, h.log, err)
		return
	}

	expense, err := h.expenses.MarkPaid(r.Context(), principalFrom(r), id)
	if err != nil {
		respondWithError(w, h.log, err)
		return
	}
	respondWithMessage(w, http.StatusOK, expense, "تم تسجيل دفع المصروف", "Expense marked as paid")
}

func (h *ExpenseHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := expenseID(r)
	if err != nil {
		respondWithError(w, h.log, err)
		return
	}

	expense, err := h.expenses.DeleteExpense(r.Context(), principalFrom(r), id)
	if err != nil {
		respondWithError(w, h.log, err)
		return
	}
	respondWithMessage(w, http.StatusOK, expense, "تم حذف المصروف", "Expense deleted")
}

func expenseID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil || id <= 0 {
		return 0, apperrors.Validation("INVALID_EXPENSE_ID", "Expense id must be a positive integer")
	}
	return id, nil
}
