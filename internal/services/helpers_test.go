package services

import (
	"database/sql"
	"database/sql/driver"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"fund-balance-service/internal/access"
	"fund-balance-service/internal/audit"
	"fund-balance-service/internal/config"
	"fund-balance-service/internal/models"
	"fund-balance-service/internal/repositories"
)

const (
	lockQuery    = `SELECT version FROM fund_balance_lock WHERE id = \? FOR UPDATE`
	totalsQuery  = `SELECT\s+\(SELECT COALESCE\(SUM\(amount\), 0\) FROM payments`
	bumpExec     = `UPDATE fund_balance_lock SET version = version \+ 1 WHERE id = \? AND version = \?`
	expenseByID  = `FROM expenses WHERE id = \?$`
	expenseLock  = `FROM expenses WHERE id = \? FOR UPDATE`
	expenseWrite = `UPDATE expenses`
)

var expenseCols = []string{
	"id", "expense_category", "title_ar", "title_en", "description", "amount", "currency",
	"expense_date", "paid_to", "payment_method", "receipt_number", "notes",
	"approval_required", "status", "created_by", "approved_by", "approved_at",
	"approval_notes", "deleted_by", "deleted_at", "created_at", "updated_at",
}

var (
	financialManager = &access.Principal{UserID: "fm-1", Role: access.RoleFinancialManager, IP: "10.0.0.1", RequestID: "req-1"}
	superAdmin       = &access.Principal{UserID: "sa-1", Role: access.RoleSuperAdmin, IP: "10.0.0.2", RequestID: "req-2"}
)

func testFund() config.FundConfig {
	return config.FundConfig{
		MinBalanceThreshold: decimal.NewFromInt(3600),
		Currency:            "SAR",
	}
}

func testAdmissionConfig() config.AdmissionConfig {
	return config.AdmissionConfig{
		MaxRetries:     3,
		Timeout:        time.Second,
		BackoffInitial: time.Millisecond,
		BackoffMax:     5 * time.Millisecond,
	}
}

func newMock(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db, mock
}

func totalsRows(revenue, expenses, diya string) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"total_revenue", "total_expenses", "total_internal_diya"}).
		AddRow(revenue, expenses, diya)
}

func expenseRow(id int64, status models.ExpenseStatus, amount string) *sqlmock.Rows {
	now := time.Date(2024, 3, 11, 9, 0, 0, 0, time.UTC)
	values := []driver.Value{
		id, "maintenance", "صيانة", nil, nil, amount, "SAR",
		now, "Contractor", nil, nil, nil,
		true, string(status), "fm-1", nil, nil,
		nil, nil, nil, now, now,
	}
	return sqlmock.NewRows(expenseCols).AddRow(values...)
}

// expectAdmission queues the statements an admission transaction issues
// before its mutation.
func expectAdmission(mock sqlmock.Sqlmock, version int64, revenue, expenses, diya string) {
	mock.ExpectBegin()
	mock.ExpectQuery(lockQuery).WithArgs(1).
		WillReturnRows(sqlmock.NewRows([]string{"version"}).AddRow(version))
	mock.ExpectQuery(totalsQuery).
		WillReturnRows(totalsRows(revenue, expenses, diya))
}

func expectAdmissionCommit(mock sqlmock.Sqlmock, version int64) {
	mock.ExpectExec(bumpExec).WithArgs(1, version).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()
}

type recordingAuditor struct {
	mu      sync.Mutex
	entries []audit.Entry
	access  []audit.AccessEntry
}

func (a *recordingAuditor) Record(e audit.Entry) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entries = append(a.entries, e)
}

func (a *recordingAuditor) LogAccess(e audit.AccessEntry) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.access = append(a.access, e)
}

func newAdmission(db *sql.DB, fund config.FundConfig, cfg config.AdmissionConfig) *AdmissionController {
	return NewAdmissionController(db, repositories.NewBalanceRepository(), cfg, fund, zap.NewNop())
}

func newBalanceService(db *sql.DB) *BalanceService {
	return NewBalanceService(db,
		repositories.NewBalanceRepository(),
		repositories.NewExpenseRepository(),
		repositories.NewPaymentRepository(),
		repositories.NewDiyaRepository(),
		testFund(),
		zap.NewNop(),
	)
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}
