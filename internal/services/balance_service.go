package services

import (
	"context"
	"database/sql"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"fund-balance-service/internal/apperrors"
	"fund-balance-service/internal/config"
	"fund-balance-service/internal/database"
	"fund-balance-service/internal/models"
	"fund-balance-service/internal/repositories"
)

// breakdownListSize is how many recent records of each kind a breakdown shows.
const breakdownListSize = 10

// BalanceService derives the fund balance from the ledger. It stores
// nothing; every call sums the ledger again.
type BalanceService struct {
	db          *sql.DB
	balanceRepo repositories.BalanceRepository
	expenseRepo repositories.ExpenseRepository
	paymentRepo repositories.PaymentRepository
	diyaRepo    repositories.DiyaRepository
	fund        config.FundConfig
	log         *zap.Logger
}

func NewBalanceService(
	db *sql.DB,
	balanceRepo repositories.BalanceRepository,
	expenseRepo repositories.ExpenseRepository,
	paymentRepo repositories.PaymentRepository,
	diyaRepo repositories.DiyaRepository,
	fund config.FundConfig,
	log *zap.Logger,
) *BalanceService {
	return &BalanceService{
		db:          db,
		balanceRepo: balanceRepo,
		expenseRepo: expenseRepo,
		paymentRepo: paymentRepo,
		diyaRepo:    diyaRepo,
		fund:        fund,
		log:         log.Named("balance"),
	}
}

// GetCurrentBalance reads the ledger without taking locks. A failed read is
// reported as DataUnavailable; it is never replaced by zero or a cached value.
func (s *BalanceService) GetCurrentBalance(ctx context.Context) (*models.BalanceFigure, error) {
	return s.balanceOn(ctx, s.db)
}

// balanceOn reads the balance through q, which is the admission transaction
// when called from the admission controller.
func (s *BalanceService) balanceOn(ctx context.Context, q database.Querier) (*models.BalanceFigure, error) {
	totals, err := s.balanceRepo.GetLedgerTotals(ctx, q)
	if err != nil {
		s.log.Error("failed to read ledger totals", zap.Error(err))
		return nil, apperrors.DataUnavailable(err)
	}
	figure := s.figure(totals)
	return &figure, nil
}

func (s *BalanceService) figure(totals *models.LedgerTotals) models.BalanceFigure {
	balance := totals.Balance()
	return models.BalanceFigure{
		TotalRevenue:      totals.TotalRevenue,
		TotalExpenses:     totals.TotalExpenses,
		TotalInternalDiya: totals.TotalInternalDiya,
		CalculatedBalance: balance,
		IsLowBalance:      balance.LessThan(s.fund.MinBalanceThreshold),
		MinThreshold:      s.fund.MinBalanceThreshold,
		Currency:          s.fund.Currency,
	}
}

// GetBreakdown returns the balance and the most recent records behind each
// of its three totals. The lists are read concurrently.
func (s *BalanceService) GetBreakdown(ctx context.Context) (*models.FundBreakdown, error) {
	breakdown := &models.FundBreakdown{}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		figure, err := s.balanceOn(gctx, s.db)
		if err != nil {
			return err
		}
		breakdown.Summary = *figure
		return nil
	})
	g.Go(func() error {
		expenses, err := s.expenseRepo.ListRecentCounted(gctx, s.db, breakdownListSize)
		breakdown.RecentExpenses = expenses
		return err
	})
	g.Go(func() error {
		payments, err := s.paymentRepo.ListRecentCompleted(gctx, s.db, breakdownListSize)
		breakdown.RecentPayments = payments
		return err
	})
	g.Go(func() error {
		cases, err := s.diyaRepo.ListRecentInternal(gctx, s.db, breakdownListSize)
		breakdown.InternalDiyaCases = cases
		return err
	})

	if err := g.Wait(); err != nil {
		if apperrors.KindOf(err) == apperrors.KindInternal {
			s.log.Error("failed to read fund breakdown", zap.Error(err))
			return nil, apperrors.DataUnavailable(err)
		}
		return nil, err
	}
	return breakdown, nil
}
