package services

import (
	"context"
	"database/sql"
	"errors"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"fund-balance-service/internal/access"
	"fund-balance-service/internal/apperrors"
	"fund-balance-service/internal/audit"
	"fund-balance-service/internal/config"
	"fund-balance-service/internal/database"
	"fund-balance-service/internal/models"
	"fund-balance-service/internal/repositories"
)

const autoApprovalNote = "Auto-approved by Financial Manager"

// Review actions
const (
	ActionApprove     = "approve"
	ActionReject      = "reject"
	ActionRequestInfo = "request_info"
)

// Auditor receives audit and access records after the fact. It must not
// block and never reports failure.
type Auditor interface {
	Record(e audit.Entry)
	LogAccess(e audit.AccessEntry)
}

type ExpenseService struct {
	db          *sql.DB
	expenseRepo repositories.ExpenseRepository
	admission   *AdmissionController
	auditor     Auditor
	fund        config.FundConfig
	log         *zap.Logger
}

func NewExpenseService(
	db *sql.DB,
	expenseRepo repositories.ExpenseRepository,
	admission *AdmissionController,
	auditor Auditor,
	fund config.FundConfig,
	log *zap.Logger,
) *ExpenseService {
	return &ExpenseService{
		db:          db,
		expenseRepo: expenseRepo,
		admission:   admission,
		auditor:     auditor,
		fund:        fund,
		log:         log.Named("expenses"),
	}
}

type CreateExpenseInput struct {
	Category         string           `json:"expense_category" validate:"required,max=50"`
	TitleAr          string           `json:"title_ar" validate:"required,max=255"`
	TitleEn          *string          `json:"title_en" validate:"omitempty,max=255"`
	Description      *string          `json:"description"`
	Amount           *decimal.Decimal `json:"amount" validate:"required"`
	ExpenseDate      string           `json:"expense_date" validate:"required,datetime=2006-01-02"`
	PaidTo           string           `json:"paid_to" validate:"required,max=255"`
	PaymentMethod    *string          `json:"payment_method" validate:"omitempty,max=50"`
	ReceiptNumber    *string          `json:"receipt_number" validate:"omitempty,max=100"`
	Notes            *string          `json:"notes"`
	ApprovalRequired bool             `json:"approval_required"`
}

type ReviewInput struct {
	Action string  `json:"action"`
	Notes  *string `json:"notes"`
}

// BalanceImpact describes what an admitted expense did to the fund.
type BalanceImpact struct {
	BalanceBefore decimal.Decimal      `json:"balance_before"`
	ExpenseAmount decimal.Decimal      `json:"expense_amount"`
	BalanceAfter  decimal.Decimal      `json:"balance_after"`
	Currency      string               `json:"currency"`
	ExpenseStatus models.ExpenseStatus `json:"expense_status"`
}

type ExpenseResult struct {
	Expense       *models.ExpenseRecord `json:"expense"`
	BalanceImpact *BalanceImpact        `json:"balance_info,omitempty"`
}

// CreateExpense admits and stores a new expense. A financial manager's own
// expense is approved immediately unless it asks for approval; everything
// else waits in pending. Both paths go through admission so that no expense
// is recorded against a fund that cannot cover it.
func (s *ExpenseService) CreateExpense(ctx context.Context, actor *access.Principal, in CreateExpenseInput) (*ExpenseResult, error) {
	if err := validate.Struct(in); err != nil {
		return nil, validationError(err, "Missing required fields")
	}
	amount := *in.Amount
	if err := validateAmount("amount", amount); err != nil {
		return nil, err
	}
	expenseDate, err := time.Parse(dateLayout, in.ExpenseDate)
	if err != nil {
		return nil, apperrors.Validation("INVALID_DATE", "expense_date must be YYYY-MM-DD")
	}

	expense := &models.ExpenseRecord{
		Category:         in.Category,
		TitleAr:          in.TitleAr,
		TitleEn:          in.TitleEn,
		Description:      in.Description,
		Amount:           amount,
		Currency:         s.fund.Currency,
		ExpenseDate:      expenseDate,
		PaidTo:           in.PaidTo,
		PaymentMethod:    in.PaymentMethod,
		ReceiptNumber:    in.ReceiptNumber,
		Notes:            in.Notes,
		ApprovalRequired: in.ApprovalRequired,
		Status:           models.ExpenseStatusPending,
		CreatedBy:        actor.UserID,
	}

	if actor.Role == access.RoleFinancialManager && !in.ApprovalRequired {
		now := time.Now().UTC()
		note := autoApprovalNote
		expense.Status = models.ExpenseStatusApproved
		expense.ApprovedBy = &actor.UserID
		expense.ApprovedAt = &now
		expense.ApprovalNotes = &note
	}

	check, err := s.admission.Admit(ctx, amount, func(ctx context.Context, tx *sql.Tx, _ *models.BalanceCheck) error {
		return s.expenseRepo.InsertExpense(ctx, tx, expense)
	})
	if err != nil {
		return nil, err
	}

	impact := s.impact(check, expense)
	s.auditor.Record(audit.Entry{
		UserID:       actor.UserID,
		Operation:    "expense_creation",
		ResourceType: models.ResourceExpense,
		ResourceID:   strconv.FormatInt(expense.ID, 10),
		NewValue:     expense,
		Metadata: map[string]any{
			"request_id":     actor.RequestID,
			"balance_before": impact.BalanceBefore.StringFixed(2),
			"balance_after":  impact.BalanceAfter.StringFixed(2),
		},
		IP: actor.IP,
	})

	s.log.Info("expense created",
		zap.Int64("expense_id", expense.ID),
		zap.String("status", string(expense.Status)),
		zap.String("amount", expense.Amount.StringFixed(2)))

	return &ExpenseResult{Expense: expense, BalanceImpact: impact}, nil
}

func (s *ExpenseService) impact(check *models.BalanceCheck, e *models.ExpenseRecord) *BalanceImpact {
	after := check.Balance
	if e.Status.CountsTowardExpenditure() {
		after = check.BalanceAfter
	}
	return &BalanceImpact{
		BalanceBefore: check.Balance,
		ExpenseAmount: e.Amount,
		BalanceAfter:  after,
		Currency:      s.fund.Currency,
		ExpenseStatus: e.Status,
	}
}

func (s *ExpenseService) GetExpense(ctx context.Context, id int64) (*models.ExpenseRecord, error) {
	e, err := s.expenseRepo.GetExpenseByID(ctx, s.db, id)
	if err != nil {
		return nil, s.storeError(err)
	}
	return e, nil
}

// ReviewExpense approves, rejects or asks for more information on a
// pending expense. Approval moves money, so it is admitted like a new
// expense; the other two only change the status.
func (s *ExpenseService) ReviewExpense(ctx context.Context, actor *access.Principal, id int64, in ReviewInput) (*ExpenseResult, error) {
	if !access.CanApprove(actor.Role) {
		return nil, apperrors.New(apperrors.KindAccessDenied, "APPROVAL_UNAUTHORIZED",
			"ليس لديك صلاحية للموافقة على المصروفات",
			"Only financial managers can review expenses")
	}

	var target models.ExpenseStatus
	switch in.Action {
	case ActionApprove:
		target = models.ExpenseStatusApproved
	case ActionReject:
		target = models.ExpenseStatusRejected
	case ActionRequestInfo:
		target = models.ExpenseStatusPendingInfo
	default:
		return nil, apperrors.New(apperrors.KindValidation, "INVALID_ACTION",
			"إجراء غير صحيح", "Action must be approve, reject or request_info")
	}

	current, err := s.expenseRepo.GetExpenseByID(ctx, s.db, id)
	if err != nil {
		return nil, s.storeError(err)
	}
	if err := checkReviewable(current.Status); err != nil {
		return nil, err
	}

	review := func(e *models.ExpenseRecord) error {
		if err := checkReviewable(e.Status); err != nil {
			return err
		}
		now := time.Now().UTC()
		e.Status = target
		e.ApprovalNotes = in.Notes
		if target == models.ExpenseStatusApproved {
			e.ApprovedBy = &actor.UserID
			e.ApprovedAt = &now
		}
		return nil
	}

	var previous models.ExpenseStatus
	var updated *models.ExpenseRecord
	var impact *BalanceImpact

	if target.CountsTowardExpenditure() {
		check, err := s.admission.Admit(ctx, current.Amount, func(ctx context.Context, tx *sql.Tx, _ *models.BalanceCheck) error {
			var err error
			previous, updated, err = s.transitionTx(ctx, tx, id, review)
			return err
		})
		if err != nil {
			return nil, err
		}
		impact = s.impact(check, updated)
	} else {
		previous, updated, err = s.transition(ctx, id, review)
		if err != nil {
			return nil, err
		}
	}

	s.auditor.Record(audit.Entry{
		UserID:        actor.UserID,
		Operation:     "expense_" + in.Action,
		ResourceType:  models.ResourceExpense,
		ResourceID:    strconv.FormatInt(id, 10),
		PreviousValue: map[string]any{"status": previous},
		NewValue: map[string]any{
			"status":         updated.Status,
			"approved_by":    updated.ApprovedBy,
			"approval_notes": updated.ApprovalNotes,
		},
		Metadata: map[string]any{"request_id": actor.RequestID},
		IP:       actor.IP,
	})

	return &ExpenseResult{Expense: updated, BalanceImpact: impact}, nil
}

func checkReviewable(status models.ExpenseStatus) error {
	if status.CanReview() {
		return nil
	}
	if status.CountsTowardExpenditure() {
		return apperrors.New(apperrors.KindInvalidState, "ALREADY_APPROVED",
			"المصروف معتمد مسبقاً", "Expense already approved")
	}
	return apperrors.InvalidState("EXPENSE_NOT_REVIEWABLE", "Expense status "+string(status)+" cannot be reviewed")
}

// MarkPaid records that an approved expense has been paid out. The amount
// already counts toward expenditure, so no admission is needed.
func (s *ExpenseService) MarkPaid(ctx context.Context, actor *access.Principal, id int64) (*models.ExpenseRecord, error) {
	previous, updated, err := s.transition(ctx, id, func(e *models.ExpenseRecord) error {
		if e.Status != models.ExpenseStatusApproved {
			return apperrors.InvalidState("EXPENSE_NOT_APPROVED", "Only approved expenses can be marked as paid")
		}
		e.Status = models.ExpenseStatusPaid
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.auditor.Record(audit.Entry{
		UserID:        actor.UserID,
		Operation:     "expense_payment",
		ResourceType:  models.ResourceExpense,
		ResourceID:    strconv.FormatInt(id, 10),
		PreviousValue: map[string]any{"status": previous},
		NewValue:      map[string]any{"status": updated.Status},
		Metadata:      map[string]any{"request_id": actor.RequestID},
		IP:            actor.IP,
	})
	return updated, nil
}

// DeleteExpense soft-deletes an expense that has not reached a terminal
// status. The row stays for history.
func (s *ExpenseService) DeleteExpense(ctx context.Context, actor *access.Principal, id int64) (*models.ExpenseRecord, error) {
	if !access.CanApprove(actor.Role) {
		return nil, apperrors.New(apperrors.KindAccessDenied, "DELETION_UNAUTHORIZED",
			"ليس لديك صلاحية لحذف المصروفات",
			"Only financial managers can delete expenses")
	}

	previous, updated, err := s.transition(ctx, id, func(e *models.ExpenseRecord) error {
		if e.Status.IsTerminal() {
			return apperrors.InvalidState("EXPENSE_NOT_DELETABLE", "Expense status "+string(e.Status)+" cannot be deleted")
		}
		now := time.Now().UTC()
		e.Status = models.ExpenseStatusDeleted
		e.DeletedBy = &actor.UserID
		e.DeletedAt = &now
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.auditor.Record(audit.Entry{
		UserID:        actor.UserID,
		Operation:     "expense_deletion",
		ResourceType:  models.ResourceExpense,
		ResourceID:    strconv.FormatInt(id, 10),
		PreviousValue: map[string]any{"status": previous},
		NewValue:      map[string]any{"status": updated.Status, "deleted_by": actor.UserID},
		Metadata:      map[string]any{"request_id": actor.RequestID},
		IP:            actor.IP,
	})
	return updated, nil
}

// transition applies fn to the locked expense row in its own transaction.
func (s *ExpenseService) transition(ctx context.Context, id int64, fn func(*models.ExpenseRecord) error) (models.ExpenseStatus, *models.ExpenseRecord, error) {
	tx, err := database.BeginTx(ctx, s.db)
	if err != nil {
		return "", nil, s.storeError(err)
	}
	defer tx.Rollback()

	previous, updated, err := s.transitionTx(ctx, tx, id, fn)
	if err != nil {
		return "", nil, s.storeError(err)
	}

	if err := tx.Commit(); err != nil {
		return "", nil, s.storeError(err)
	}
	return previous, updated, nil
}

// transitionTx returns store errors unwrapped, except not-found, so that
// the admission controller can classify them.
func (s *ExpenseService) transitionTx(ctx context.Context, tx *sql.Tx, id int64, fn func(*models.ExpenseRecord) error) (models.ExpenseStatus, *models.ExpenseRecord, error) {
	e, err := s.expenseRepo.GetExpenseForUpdate(ctx, tx, id)
	if errors.Is(err, repositories.ErrExpenseNotFound) {
		return "", nil, s.storeError(err)
	}
	if err != nil {
		return "", nil, err
	}

	from := e.Status
	if err := fn(e); err != nil {
		return "", nil, err
	}
	if err := s.expenseRepo.UpdateExpenseStatus(ctx, tx, e, from); err != nil {
		return "", nil, err
	}
	return from, e, nil
}

// storeError translates repository errors. Conflicts are passed through
// unchanged so the admission controller can retry them.
func (s *ExpenseService) storeError(err error) error {
	var appErr *apperrors.Error
	switch {
	case errors.As(err, &appErr):
		return err
	case errors.Is(err, repositories.ErrExpenseNotFound):
		return apperrors.NotFound("EXPENSE_NOT_FOUND", "Expense not found")
	case errors.Is(err, repositories.ErrExpenseStatusChanged), database.IsConflict(err):
		return apperrors.Conflict(err)
	default:
		s.log.Error("expense store failure", zap.Error(err))
		return apperrors.StoreUnavailable(err)
	}
}
