package services

import (
	"context"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"fund-balance-service/internal/access"
	"fund-balance-service/internal/apperrors"
	"fund-balance-service/internal/audit"
	"fund-balance-service/internal/calendar"
	"fund-balance-service/internal/config"
	"fund-balance-service/internal/models"
	"fund-balance-service/internal/repositories"
)

const (
	DefaultSnapshotLimit = 20
	MaxSnapshotLimit     = 100
)

// reconciledTolerance is one fils: smaller variances count as reconciled.
var reconciledTolerance = decimal.New(1, -2)

type VarianceStatus string

const (
	VarianceReconciled   VarianceStatus = "reconciled"
	VarianceBankExcess   VarianceStatus = "bank_excess"
	VarianceBankShortage VarianceStatus = "bank_shortage"
)

// ClassifyVariance buckets variance = bank - calculated.
func ClassifyVariance(variance decimal.Decimal) VarianceStatus {
	switch {
	case variance.Abs().LessThan(reconciledTolerance):
		return VarianceReconciled
	case variance.IsPositive():
		return VarianceBankExcess
	default:
		return VarianceBankShortage
	}
}

func (v VarianceStatus) Labels() (ar, en string) {
	switch v {
	case VarianceReconciled:
		return "مطابق", "Reconciled"
	case VarianceBankExcess:
		return "فائض في البنك", "Bank excess"
	default:
		return "نقص في البنك", "Bank shortage"
	}
}

type CreateSnapshotInput struct {
	BankStatementBalance *decimal.Decimal `json:"bank_statement_balance" validate:"required"`
	SnapshotDate         string           `json:"snapshot_date" validate:"required"`
	Notes                *string          `json:"notes" validate:"omitempty,max=2000"`
}

// SnapshotView is a stored snapshot with its presentation fields.
type SnapshotView struct {
	models.FundBalanceSnapshot
	IsReconciled      bool           `json:"is_reconciled"`
	Status            VarianceStatus `json:"status"`
	VarianceStatus    string         `json:"variance_status"`
	VarianceStatusEn  string         `json:"variance_status_en"`
	SnapshotDateHijri string         `json:"snapshot_date_hijri"`
	Message           string         `json:"message"`
	MessageEn         string         `json:"message_en"`
}

// NewSnapshotView decorates s for display. Variance amounts are quoted in
// currency, the fund's base currency.
func NewSnapshotView(s models.FundBalanceSnapshot, currency string) SnapshotView {
	status := ClassifyVariance(s.Variance)
	ar, en := status.Labels()
	view := SnapshotView{
		FundBalanceSnapshot: s,
		IsReconciled:        status == VarianceReconciled,
		Status:              status,
		VarianceStatus:      ar,
		VarianceStatusEn:    en,
		SnapshotDateHijri:   calendar.FormatArabic(s.SnapshotDate),
	}
	if view.IsReconciled {
		view.Message = "الرصيد مطابق"
		view.MessageEn = "Balance reconciled"
	} else {
		amount := formatAmount(s.Variance.Abs())
		view.Message = "يوجد فرق " + amount + " " + currencyLabelAr(currency)
		view.MessageEn = "Variance of " + amount + " " + currency
	}
	return view
}

// SnapshotService records reconciliations between the computed balance and
// a bank statement. Stored snapshots are history: they are never updated
// and never recomputed against the current ledger.
type SnapshotService struct {
	balance      *BalanceService
	snapshotRepo repositories.SnapshotRepository
	auditor      Auditor
	currency     string
	log          *zap.Logger
}

func NewSnapshotService(
	balance *BalanceService,
	snapshotRepo repositories.SnapshotRepository,
	auditor Auditor,
	fund config.FundConfig,
	log *zap.Logger,
) *SnapshotService {
	return &SnapshotService{
		balance:      balance,
		snapshotRepo: snapshotRepo,
		auditor:      auditor,
		currency:     fund.Currency,
		log:          log.Named("snapshots"),
	}
}

// CreateSnapshot validates the request before touching the store, so a bad
// request never leaves a row behind.
func (s *SnapshotService) CreateSnapshot(ctx context.Context, actor *access.Principal, in CreateSnapshotInput) (*SnapshotView, error) {
	if err := validate.Struct(in); err != nil {
		return nil, validationError(err, "Bank statement balance and snapshot date are required")
	}
	snapshotDate, err := time.Parse(dateLayout, in.SnapshotDate)
	if err != nil {
		return nil, apperrors.Validation("INVALID_DATE", "snapshot_date must be YYYY-MM-DD")
	}
	bank := in.BankStatementBalance.Round(2)

	figure, err := s.balance.GetCurrentBalance(ctx)
	if err != nil {
		return nil, err
	}

	snap := &models.FundBalanceSnapshot{
		SnapshotDate:         snapshotDate,
		TotalRevenue:         figure.TotalRevenue,
		TotalExpenses:        figure.TotalExpenses,
		TotalInternalDiya:    figure.TotalInternalDiya,
		CalculatedBalance:    figure.CalculatedBalance,
		BankStatementBalance: bank,
		Variance:             bank.Sub(figure.CalculatedBalance),
		Notes:                in.Notes,
		CreatedBy:            actor.UserID,
	}

	if err := s.snapshotRepo.CreateSnapshot(ctx, snap); err != nil {
		s.log.Error("failed to store snapshot", zap.Error(err))
		return nil, apperrors.StoreUnavailable(err)
	}

	view := NewSnapshotView(*snap, s.currency)

	s.auditor.Record(audit.Entry{
		UserID:       actor.UserID,
		Operation:    "snapshot_creation",
		ResourceType: models.ResourceSnapshot,
		ResourceID:   strconv.FormatInt(snap.ID, 10),
		NewValue:     snap,
		Metadata: map[string]any{
			"request_id":         actor.RequestID,
			"variance":           snap.Variance.StringFixed(2),
			"bank_balance":       bank.StringFixed(2),
			"calculated_balance": snap.CalculatedBalance.StringFixed(2),
		},
		IP: actor.IP,
	})
	s.auditor.LogAccess(audit.AccessEntry{
		UserID:    actor.UserID,
		Result:    models.AccessSuccess,
		Operation: "snapshot_creation",
		Role:      string(actor.Role),
		Metadata:  map[string]any{"snapshot_id": snap.ID, "variance": snap.Variance.StringFixed(2)},
		IP:        actor.IP,
	})

	s.log.Info("snapshot created",
		zap.Int64("snapshot_id", snap.ID),
		zap.String("variance", snap.Variance.StringFixed(2)),
		zap.String("status", string(view.Status)))

	return &view, nil
}

// GetSnapshots pages through stored snapshots, newest first. A zero limit
// means the default; larger limits are capped.
func (s *SnapshotService) GetSnapshots(ctx context.Context, limit, offset int) ([]SnapshotView, error) {
	if limit < 0 || offset < 0 {
		return nil, apperrors.Validation("INVALID_PAGINATION", "limit and offset must not be negative")
	}
	if limit == 0 {
		limit = DefaultSnapshotLimit
	}
	if limit > MaxSnapshotLimit {
		limit = MaxSnapshotLimit
	}

	snapshots, err := s.snapshotRepo.ListSnapshots(ctx, limit, offset)
	if err != nil {
		s.log.Error("failed to list snapshots", zap.Error(err))
		return nil, apperrors.StoreUnavailable(err)
	}

	views := make([]SnapshotView, 0, len(snapshots))
	for _, snap := range snapshots {
		views = append(views, NewSnapshotView(snap, s.currency))
	}
	return views, nil
}
