package services

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"fund-balance-service/internal/access"
	"fund-balance-service/internal/apperrors"
	"fund-balance-service/internal/audit"
	"fund-balance-service/internal/database"
	"fund-balance-service/internal/models"
	"fund-balance-service/internal/repositories"
)

// LedgerService appends payments and diya cases to the ledger. These
// postings are not capped by admission control: dues are income and
// internal diya are binding obligations the fund must honour.
type LedgerService struct {
	db          *sql.DB
	paymentRepo repositories.PaymentRepository
	diyaRepo    repositories.DiyaRepository
	auditor     Auditor
	log         *zap.Logger
}

func NewLedgerService(
	db *sql.DB,
	paymentRepo repositories.PaymentRepository,
	diyaRepo repositories.DiyaRepository,
	auditor Auditor,
	log *zap.Logger,
) *LedgerService {
	return &LedgerService{
		db:          db,
		paymentRepo: paymentRepo,
		diyaRepo:    diyaRepo,
		auditor:     auditor,
		log:         log.Named("ledger"),
	}
}

type PaymentInput struct {
	PayerID   string          `json:"payer_id" validate:"required,max=64"`
	Amount    decimal.Decimal `json:"amount"`
	Status    string          `json:"status" validate:"required,oneof=completed pending failed refunded"`
	Reference *string         `json:"reference" validate:"omitempty,max=100"`
	PaidAt    *time.Time      `json:"paid_at"`
}

type DiyaCaseInput struct {
	CaseNumber      string          `json:"case_number" validate:"required,max=50"`
	BeneficiaryName string          `json:"beneficiary_name" validate:"required,max=255"`
	AmountPaid      decimal.Decimal `json:"amount_paid"`
	DiyaType        string          `json:"diya_type" validate:"required,oneof=internal external"`
	Status          string          `json:"status" validate:"required,oneof=pending partially_paid paid completed"`
}

type IngestionResult struct {
	Success      bool           `json:"success"`
	RecordsCount int            `json:"records_count"`
	Errors       []string       `json:"errors,omitempty"`
	Details      map[string]any `json:"details,omitempty"`
}

func (s *LedgerService) IngestPayments(ctx context.Context, actor *access.Principal, inputs []PaymentInput) (*IngestionResult, error) {
	if len(inputs) == 0 {
		return nil, apperrors.Validation("EMPTY_BATCH", "No payments provided")
	}

	var inserted []*models.PaymentRecord
	result, err := s.ingest(ctx, len(inputs), func(tx *sql.Tx, i int) error {
		input := inputs[i]
		if err := validate.Struct(input); err != nil {
			return fmt.Errorf("invalid payment %d (%s): %w", i, input.PayerID, err)
		}
		if err := validateAmount("amount", input.Amount); err != nil {
			return fmt.Errorf("invalid payment %d (%s): %w", i, input.PayerID, err)
		}

		payment := &models.PaymentRecord{
			PayerID:   input.PayerID,
			Amount:    input.Amount,
			Status:    input.Status,
			Reference: input.Reference,
		}
		if input.PaidAt != nil {
			payment.CreatedAt = input.PaidAt.UTC()
		}
		if err := s.paymentRepo.InsertPayment(ctx, tx, payment); err != nil {
			return err
		}
		inserted = append(inserted, payment)
		return nil
	})
	if err != nil {
		return nil, err
	}

	for _, p := range inserted {
		s.auditor.Record(audit.Entry{
			UserID:       actor.UserID,
			Operation:    "payment_recorded",
			ResourceType: models.ResourcePayment,
			ResourceID:   strconv.FormatInt(p.ID, 10),
			NewValue:     p,
			Metadata:     map[string]any{"request_id": actor.RequestID},
			IP:           actor.IP,
		})
	}
	return result, nil
}

func (s *LedgerService) IngestDiyaCases(ctx context.Context, actor *access.Principal, inputs []DiyaCaseInput) (*IngestionResult, error) {
	if len(inputs) == 0 {
		return nil, apperrors.Validation("EMPTY_BATCH", "No diya cases provided")
	}

	var inserted []*models.InternalDiyaCase
	result, err := s.ingest(ctx, len(inputs), func(tx *sql.Tx, i int) error {
		input := inputs[i]
		if err := validate.Struct(input); err != nil {
			return fmt.Errorf("invalid diya case %s: %w", input.CaseNumber, err)
		}
		if input.AmountPaid.IsNegative() || !input.AmountPaid.Equal(input.AmountPaid.Round(2)) {
			return fmt.Errorf("invalid diya case %s: amount_paid must be a non-negative amount with two decimals", input.CaseNumber)
		}

		c := &models.InternalDiyaCase{
			CaseNumber:      input.CaseNumber,
			BeneficiaryName: input.BeneficiaryName,
			AmountPaid:      input.AmountPaid,
			DiyaType:        input.DiyaType,
			Status:          input.Status,
		}
		if err := s.diyaRepo.InsertDiyaCase(ctx, tx, c); err != nil {
			return err
		}
		inserted = append(inserted, c)
		return nil
	})
	if err != nil {
		return nil, err
	}

	for _, c := range inserted {
		s.auditor.Record(audit.Entry{
			UserID:       actor.UserID,
			Operation:    "diya_recorded",
			ResourceType: models.ResourceDiyaCase,
			ResourceID:   strconv.FormatInt(c.ID, 10),
			NewValue:     c,
			Metadata:     map[string]any{"request_id": actor.RequestID},
			IP:           actor.IP,
		})
	}
	return result, nil
}

// ingest runs insert for every record index inside one transaction. Bad
// records are reported and skipped; a lost lock race aborts the whole batch
// because InnoDB has already rolled the transaction back.
func (s *LedgerService) ingest(ctx context.Context, total int, insert func(tx *sql.Tx, i int) error) (*IngestionResult, error) {
	result := &IngestionResult{Details: make(map[string]any)}

	tx, err := database.BeginTx(ctx, s.db)
	if err != nil {
		return nil, apperrors.StoreUnavailable(err)
	}
	defer tx.Rollback()

	for i := 0; i < total; i++ {
		err := insert(tx, i)
		if err == nil {
			result.RecordsCount++
			continue
		}
		if database.IsConflict(err) {
			return nil, apperrors.Conflict(err)
		}
		result.Errors = append(result.Errors, err.Error())
	}

	if result.RecordsCount > 0 {
		if err := tx.Commit(); err != nil {
			s.log.Error("failed to commit ledger batch", zap.Error(err))
			return nil, apperrors.StoreUnavailable(err)
		}
	}

	result.Success = len(result.Errors) == 0
	result.Details["total_records"] = total
	result.Details["successful"] = result.RecordsCount
	result.Details["failed"] = len(result.Errors)

	s.log.Info("ledger batch ingested",
		zap.Int("total", total),
		zap.Int("successful", result.RecordsCount),
		zap.Int("failed", len(result.Errors)))
	return result, nil
}
