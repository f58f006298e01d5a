package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"fund-balance-service/internal/database"
	"fund-balance-service/internal/models"
)

// fundLockID is the single row of fund_balance_lock.
const fundLockID = 1

// ledgerTotalsQuery sums the three ledger sources in one statement so the
// figures come from a single consistent read view.
var ledgerTotalsQuery = fmt.Sprintf(`
	SELECT
		(SELECT COALESCE(SUM(amount), 0) FROM payments WHERE status = ?) AS total_revenue,
		(SELECT COALESCE(SUM(amount), 0) FROM expenses WHERE status IN (%s)) AS total_expenses,
		(SELECT COALESCE(SUM(amount_paid), 0) FROM diya_cases
		  WHERE diya_type = ? AND status IN (%s)) AS total_internal_diya
`, placeholders(len(models.ExpenseStatusesCounted)), placeholders(len(models.DiyaStatusesCounted)))

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func countedExpenseArgs() []any {
	args := make([]any, 0, len(models.ExpenseStatusesCounted))
	for _, s := range models.ExpenseStatusesCounted {
		args = append(args, string(s))
	}
	return args
}

// countedDiyaArgs starts with the internal diya type, then the statuses.
func countedDiyaArgs() []any {
	args := []any{models.DiyaTypeInternal}
	for _, s := range models.DiyaStatusesCounted {
		args = append(args, s)
	}
	return args
}

func ledgerTotalsArgs() []any {
	args := []any{models.PaymentStatusCompleted}
	args = append(args, countedExpenseArgs()...)
	return append(args, countedDiyaArgs()...)
}

type BalanceRepository interface {
	GetLedgerTotals(ctx context.Context, q database.Querier) (*models.LedgerTotals, error)
	LockFund(ctx context.Context, tx *sql.Tx) (int64, error)
	BumpFundVersion(ctx context.Context, tx *sql.Tx, version int64) error
}

type balanceRepository struct{}

func NewBalanceRepository() BalanceRepository {
	return &balanceRepository{}
}

func (r *balanceRepository) GetLedgerTotals(ctx context.Context, q database.Querier) (*models.LedgerTotals, error) {
	totals := &models.LedgerTotals{}
	err := q.QueryRowContext(ctx, ledgerTotalsQuery, ledgerTotalsArgs()...).Scan(
		&totals.TotalRevenue,
		&totals.TotalExpenses,
		&totals.TotalInternalDiya,
	)
	if err != nil {
		return nil, fmt.Errorf("sum ledger totals: %w", err)
	}
	return totals, nil
}

// LockFund takes the exclusive lock on the fund lock row and returns its
// current version. Every admission transaction calls it before reading
// the aggregate, so admissions queue behind each other here.
func (r *balanceRepository) LockFund(ctx context.Context, tx *sql.Tx) (int64, error) {
	var version int64
	err := tx.QueryRowContext(ctx,
		`SELECT version FROM fund_balance_lock WHERE id = ? FOR UPDATE`, fundLockID,
	).Scan(&version)
	if err == sql.ErrNoRows {
		return 0, errors.New("fund lock row missing")
	}
	if err != nil {
		return 0, fmt.Errorf("lock fund: %w", err)
	}
	return version, nil
}

// BumpFundVersion advances the lock row only if it still holds version.
func (r *balanceRepository) BumpFundVersion(ctx context.Context, tx *sql.Tx, version int64) error {
	result, err := tx.ExecContext(ctx,
		`UPDATE fund_balance_lock SET version = version + 1 WHERE id = ? AND version = ?`,
		fundLockID, version,
	)
	if err != nil {
		return fmt.Errorf("bump fund version: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return database.ErrVersionMismatch
	}
	return nil
}
