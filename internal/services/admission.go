package services

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"fund-balance-service/internal/apperrors"
	"fund-balance-service/internal/config"
	"fund-balance-service/internal/database"
	"fund-balance-service/internal/models"
	"fund-balance-service/internal/repositories"
)

// Mutation is the state change an admission protects. It runs inside the
// admission transaction after the amount has been admitted and must not do
// any I/O outside tx. Returning an *apperrors.Error aborts without retry.
type Mutation func(ctx context.Context, tx *sql.Tx, check *models.BalanceCheck) error

// AdmissionController is the only path allowed to move money into an
// expenditure-counting status. Each decision runs as one SERIALIZABLE
// transaction that first takes the fund lock row, then reads the balance,
// compares, applies the mutation and bumps the lock version before commit.
type AdmissionController struct {
	db          database.TxBeginner
	balanceRepo repositories.BalanceRepository
	cfg         config.AdmissionConfig
	fund        config.FundConfig
	log         *zap.Logger
}

func NewAdmissionController(
	db database.TxBeginner,
	balanceRepo repositories.BalanceRepository,
	cfg config.AdmissionConfig,
	fund config.FundConfig,
	log *zap.Logger,
) *AdmissionController {
	return &AdmissionController{
		db:          db,
		balanceRepo: balanceRepo,
		cfg:         cfg,
		fund:        fund,
		log:         log.Named("admission"),
	}
}

// Admit decides whether amount may be spent and, if so, commits mutate
// atomically with that decision. Conflicts with concurrent admissions are
// retried with exponential backoff; InsufficientFunds, validation and
// DataUnavailable errors are returned at once.
func (a *AdmissionController) Admit(ctx context.Context, amount decimal.Decimal, mutate Mutation) (*models.BalanceCheck, error) {
	var check *models.BalanceCheck
	attempt := 0

	op := func() error {
		attempt++
		var err error
		check, err = a.attempt(ctx, amount, mutate)
		return err
	}

	notify := func(err error, wait time.Duration) {
		a.log.Debug("admission conflict, retrying",
			zap.Int("attempt", attempt),
			zap.Duration("wait", wait),
			zap.String("amount", amount.StringFixed(2)),
			zap.Error(err))
	}

	err := backoff.RetryNotify(op, a.newBackOff(ctx), notify)
	if err != nil {
		if apperrors.KindOf(err) == apperrors.KindInternal {
			// Backoff gave up on a cancelled parent context.
			err = apperrors.Conflict(err)
		}
		if apperrors.Is(err, apperrors.KindConflict) {
			a.log.Warn("admission abandoned after conflicts",
				zap.Int("attempts", attempt),
				zap.String("amount", amount.StringFixed(2)))
		}
		return nil, err
	}
	return check, nil
}

func (a *AdmissionController) newBackOff(ctx context.Context) backoff.BackOff {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = a.cfg.BackoffInitial
	exp.MaxInterval = a.cfg.BackoffMax
	exp.MaxElapsedTime = 0
	return backoff.WithContext(backoff.WithMaxRetries(exp, uint64(a.cfg.MaxRetries)), ctx)
}

// attempt runs one admission transaction. Errors it returns are either
// retryable Conflicts or wrapped in backoff.Permanent.
func (a *AdmissionController) attempt(ctx context.Context, amount decimal.Decimal, mutate Mutation) (*models.BalanceCheck, error) {
	actx, cancel := context.WithTimeout(ctx, a.cfg.Timeout)
	defer cancel()

	tx, err := database.BeginSerializable(actx, a.db)
	if err != nil {
		return nil, a.classify(ctx, actx, err)
	}
	defer tx.Rollback()

	version, err := a.balanceRepo.LockFund(actx, tx)
	if err != nil {
		return nil, a.classify(ctx, actx, err)
	}

	check, err := a.ValidateExpenseBalance(actx, tx, amount)
	if err != nil {
		return nil, a.classify(ctx, actx, err)
	}
	if !check.Valid {
		return nil, backoff.Permanent(a.reject(check, amount))
	}

	if err := mutate(actx, tx, check); err != nil {
		return nil, a.classify(ctx, actx, err)
	}

	if err := a.balanceRepo.BumpFundVersion(actx, tx, version); err != nil {
		return nil, a.classify(ctx, actx, err)
	}

	if err := tx.Commit(); err != nil {
		return nil, a.classify(ctx, actx, err)
	}
	return check, nil
}

// ValidateExpenseBalance compares amount with the balance as seen by tx.
// It only reads; a failed check leaves the transaction usable.
func (a *AdmissionController) ValidateExpenseBalance(ctx context.Context, tx *sql.Tx, amount decimal.Decimal) (*models.BalanceCheck, error) {
	totals, err := a.balanceRepo.GetLedgerTotals(ctx, tx)
	if err != nil {
		return nil, err
	}

	balance := totals.Balance()
	check := &models.BalanceCheck{
		Valid:        true,
		Balance:      balance,
		BalanceAfter: balance.Sub(amount),
	}

	switch {
	case amount.GreaterThan(balance):
		e := apperrors.InsufficientFunds()
		check.Valid = false
		check.Error, check.ErrorEn = e.Message, e.MessageEn
	case a.fund.EnforceReserve && check.BalanceAfter.LessThan(a.fund.MinBalanceThreshold):
		e := apperrors.BelowReserve()
		check.Valid = false
		check.Error, check.ErrorEn = e.Message, e.MessageEn
	}
	return check, nil
}

func (a *AdmissionController) reject(check *models.BalanceCheck, amount decimal.Decimal) error {
	shortfall := amount.Sub(check.Balance)

	var e *apperrors.Error
	if amount.GreaterThan(check.Balance) {
		e = apperrors.InsufficientFunds()
	} else {
		e = apperrors.BelowReserve()
		shortfall = a.fund.MinBalanceThreshold.Sub(check.BalanceAfter)
	}

	a.log.Warn("expense rejected",
		zap.String("code", e.Code),
		zap.String("amount", amount.StringFixed(2)),
		zap.String("balance", check.Balance.StringFixed(2)),
		zap.String("shortfall", shortfall.StringFixed(2)))

	return e.WithDetails(map[string]any{
		"current_balance":  check.Balance.StringFixed(2),
		"requested_amount": amount.StringFixed(2),
		"shortfall":        shortfall.StringFixed(2),
		"currency":         a.fund.Currency,
	})
}

// classify turns err into a retryable Conflict or a permanent error. An
// attempt that ran out of its own time budget counts as a Conflict.
func (a *AdmissionController) classify(parent, attemptCtx context.Context, err error) error {
	var appErr *apperrors.Error
	if errors.As(err, &appErr) {
		if appErr.Kind == apperrors.KindConflict {
			return err
		}
		return backoff.Permanent(err)
	}
	if errors.Is(err, repositories.ErrExpenseStatusChanged) {
		return apperrors.Conflict(err)
	}
	if parent.Err() != nil {
		return backoff.Permanent(apperrors.Conflict(err))
	}
	if database.IsConflict(err) || errors.Is(attemptCtx.Err(), context.DeadlineExceeded) {
		return apperrors.Conflict(err)
	}
	a.log.Error("admission transaction failed", zap.Error(err))
	return backoff.Permanent(apperrors.DataUnavailable(err))
}
