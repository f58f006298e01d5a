package repositories

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fund-balance-service/internal/database"
	"fund-balance-service/internal/models"
)

func newMock(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db, mock
}

func beginTx(t *testing.T, db *sql.DB, mock sqlmock.Sqlmock) *sql.Tx {
	t.Helper()
	mock.ExpectBegin()
	tx, err := db.Begin()
	require.NoError(t, err)
	return tx
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestPlaceholders(t *testing.T) {
	assert.Equal(t, "?", placeholders(1))
	assert.Equal(t, "?, ?, ?", placeholders(3))
	assert.Equal(t, "", placeholders(0))
}

func TestGetLedgerTotals(t *testing.T) {
	db, mock := newMock(t)
	repo := NewBalanceRepository()

	mock.ExpectQuery(`FROM expenses WHERE status IN \(\?, \?\)\) AS total_expenses`).
		WithArgs("completed", "approved", "paid", "internal", "paid", "partially_paid", "completed").
		WillReturnRows(sqlmock.NewRows([]string{"total_revenue", "total_expenses", "total_internal_diya"}).
			AddRow("15000.00", "2000.50", "499.50"))

	totals, err := repo.GetLedgerTotals(context.Background(), db)
	require.NoError(t, err)

	assert.True(t, totals.TotalRevenue.Equal(dec("15000")))
	assert.True(t, totals.TotalExpenses.Equal(dec("2000.50")))
	assert.True(t, totals.TotalInternalDiya.Equal(dec("499.50")))
	assert.True(t, totals.Balance().Equal(dec("12500")))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetLedgerTotalsError(t *testing.T) {
	db, mock := newMock(t)
	mock.ExpectQuery(`SELECT`).WillReturnError(errors.New("connection reset"))

	_, err := NewBalanceRepository().GetLedgerTotals(context.Background(), db)
	assert.ErrorContains(t, err, "sum ledger totals")
}

func TestLockFundAndBump(t *testing.T) {
	db, mock := newMock(t)
	repo := NewBalanceRepository()
	tx := beginTx(t, db, mock)

	mock.ExpectQuery(`SELECT version FROM fund_balance_lock WHERE id = \? FOR UPDATE`).WithArgs(1).
		WillReturnRows(sqlmock.NewRows([]string{"version"}).AddRow(41))
	mock.ExpectExec(`UPDATE fund_balance_lock SET version = version \+ 1 WHERE id = \? AND version = \?`).
		WithArgs(1, 41).WillReturnResult(sqlmock.NewResult(0, 1))

	version, err := repo.LockFund(context.Background(), tx)
	require.NoError(t, err)
	assert.Equal(t, int64(41), version)
	require.NoError(t, repo.BumpFundVersion(context.Background(), tx, version))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBumpFundVersionMismatch(t *testing.T) {
	db, mock := newMock(t)
	tx := beginTx(t, db, mock)

	mock.ExpectExec(`UPDATE fund_balance_lock`).WithArgs(1, 3).WillReturnResult(sqlmock.NewResult(0, 0))

	err := NewBalanceRepository().BumpFundVersion(context.Background(), tx, 3)
	assert.ErrorIs(t, err, database.ErrVersionMismatch)
	assert.True(t, database.IsConflict(err))
}

func TestLockFundMissingRow(t *testing.T) {
	db, mock := newMock(t)
	tx := beginTx(t, db, mock)

	mock.ExpectQuery(`FROM fund_balance_lock`).WillReturnRows(sqlmock.NewRows([]string{"version"}))

	_, err := NewBalanceRepository().LockFund(context.Background(), tx)
	assert.ErrorContains(t, err, "fund lock row missing")
}

var expenseCols = []string{
	"id", "expense_category", "title_ar", "title_en", "description", "amount", "currency",
	"expense_date", "paid_to", "payment_method", "receipt_number", "notes",
	"approval_required", "status", "created_by", "approved_by", "approved_at",
	"approval_notes", "deleted_by", "deleted_at", "created_at", "updated_at",
}

func TestInsertExpense(t *testing.T) {
	db, mock := newMock(t)
	tx := beginTx(t, db, mock)
	day := time.Date(2024, 3, 11, 0, 0, 0, 0, time.UTC)

	e := &models.ExpenseRecord{
		Category:    "maintenance",
		TitleAr:     "صيانة",
		Amount:      dec("250.00"),
		Currency:    "SAR",
		ExpenseDate: day,
		PaidTo:      "Contractor",
		Status:      models.ExpenseStatusPending,
		CreatedBy:   "fm-1",
	}

	mock.ExpectExec(`INSERT INTO expenses`).
		WithArgs("maintenance", "صيانة", nil, nil, dec("250.00"), "SAR", day, "Contractor", nil, nil, nil,
			false, "pending", "fm-1", nil, nil, nil, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(12, 1))

	require.NoError(t, NewExpenseRepository().InsertExpense(context.Background(), tx, e))
	assert.Equal(t, int64(12), e.ID)
	assert.False(t, e.CreatedAt.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetExpenseByID(t *testing.T) {
	db, mock := newMock(t)
	now := time.Date(2024, 3, 11, 9, 0, 0, 0, time.UTC)
	approver := "fm-2"

	mock.ExpectQuery(`FROM expenses WHERE id = \?`).WithArgs(9).
		WillReturnRows(sqlmock.NewRows(expenseCols).AddRow(
			9, "utilities", "كهرباء", "Electricity", nil, "320.75", "SAR",
			now, "Utility Co", "transfer", "R-1", nil,
			false, "approved", "fm-1", approver, now,
			nil, nil, nil, now, now))

	e, err := NewExpenseRepository().GetExpenseByID(context.Background(), db, 9)
	require.NoError(t, err)

	assert.Equal(t, models.ExpenseStatusApproved, e.Status)
	assert.True(t, e.Amount.Equal(dec("320.75")))
	require.NotNil(t, e.TitleEn)
	assert.Equal(t, "Electricity", *e.TitleEn)
	require.NotNil(t, e.ApprovedBy)
	assert.Equal(t, approver, *e.ApprovedBy)
	assert.Nil(t, e.Description)
}

func TestGetExpenseNotFound(t *testing.T) {
	db, mock := newMock(t)
	mock.ExpectQuery(`FROM expenses WHERE id = \?`).WillReturnRows(sqlmock.NewRows(expenseCols))

	_, err := NewExpenseRepository().GetExpenseByID(context.Background(), db, 1)
	assert.ErrorIs(t, err, ErrExpenseNotFound)
}

func TestUpdateExpenseStatusGuarded(t *testing.T) {
	db, mock := newMock(t)
	tx := beginTx(t, db, mock)
	e := &models.ExpenseRecord{ID: 4, Status: models.ExpenseStatusRejected}

	mock.ExpectExec(`UPDATE expenses`).
		WithArgs("rejected", nil, nil, nil, nil, nil, sqlmock.AnyArg(), 4, "pending").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := NewExpenseRepository().UpdateExpenseStatus(context.Background(), tx, e, models.ExpenseStatusPending)
	assert.ErrorIs(t, err, ErrExpenseStatusChanged)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListRecentCounted(t *testing.T) {
	db, mock := newMock(t)
	now := time.Date(2024, 3, 11, 9, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`FROM expenses\s+WHERE status IN \(\?, \?\)\s+ORDER BY expense_date DESC, id DESC`).
		WithArgs("approved", "paid", 10).
		WillReturnRows(sqlmock.NewRows(expenseCols).
			AddRow(2, "c", "t", nil, nil, "10.00", "SAR", now, "p", nil, nil, nil, false, "paid", "u", nil, nil, nil, nil, nil, now, now).
			AddRow(1, "c", "t", nil, nil, "20.00", "SAR", now, "p", nil, nil, nil, false, "approved", "u", nil, nil, nil, nil, nil, now, now))

	expenses, err := NewExpenseRepository().ListRecentCounted(context.Background(), db, 10)
	require.NoError(t, err)
	require.Len(t, expenses, 2)
	assert.Equal(t, int64(2), expenses[0].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertPaymentKeepsGivenTime(t *testing.T) {
	db, mock := newMock(t)
	tx := beginTx(t, db, mock)
	paid := time.Date(2024, 1, 5, 12, 0, 0, 0, time.UTC)
	ref := "TRX-1"

	mock.ExpectExec(`INSERT INTO payments`).
		WithArgs("member-1", dec("100"), "completed", ref, paid).
		WillReturnResult(sqlmock.NewResult(3, 1))

	p := &models.PaymentRecord{PayerID: "member-1", Amount: dec("100"), Status: "completed", Reference: &ref, CreatedAt: paid}
	require.NoError(t, NewPaymentRepository().InsertPayment(context.Background(), tx, p))
	assert.Equal(t, int64(3), p.ID)
	assert.Equal(t, paid, p.CreatedAt)
}

func TestListRecentInternalDiya(t *testing.T) {
	db, mock := newMock(t)
	now := time.Now().UTC()

	mock.ExpectQuery(`FROM diya_cases\s+WHERE diya_type = \? AND status IN \(\?, \?, \?\)`).
		WithArgs("internal", "paid", "partially_paid", "completed", 5).
		WillReturnRows(sqlmock.NewRows([]string{"id", "case_number", "beneficiary_name", "amount_paid", "diya_type", "status", "created_at"}).
			AddRow(1, "D-1", "B", "1000.00", "internal", "partially_paid", now))

	cases, err := NewDiyaRepository().ListRecentInternal(context.Background(), db, 5)
	require.NoError(t, err)
	require.Len(t, cases, 1)
	assert.Equal(t, "partially_paid", cases[0].Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

var snapshotCols = []string{
	"id", "snapshot_date", "total_revenue", "total_expenses", "total_internal_diya",
	"calculated_balance", "bank_statement_balance", "variance", "notes", "created_by", "created_at",
}

func TestCreateSnapshot(t *testing.T) {
	db, mock := newMock(t)
	day := time.Date(2024, 3, 11, 0, 0, 0, 0, time.UTC)

	mock.ExpectExec(`INSERT INTO fund_balance_snapshots`).
		WithArgs(day, dec("100"), dec("20"), dec("5"), dec("75"), dec("80"), dec("5"), nil, "fm-1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(8, 1))

	snap := &models.FundBalanceSnapshot{
		SnapshotDate:         day,
		TotalRevenue:         dec("100"),
		TotalExpenses:        dec("20"),
		TotalInternalDiya:    dec("5"),
		CalculatedBalance:    dec("75"),
		BankStatementBalance: dec("80"),
		Variance:             dec("5"),
		CreatedBy:            "fm-1",
	}
	require.NoError(t, NewSnapshotRepository(db).CreateSnapshot(context.Background(), snap))
	assert.Equal(t, int64(8), snap.ID)
	assert.False(t, snap.CreatedAt.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetSnapshotByID(t *testing.T) {
	db, mock := newMock(t)
	day := time.Date(2024, 3, 11, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`FROM fund_balance_snapshots WHERE id = \?`).WithArgs(8).
		WillReturnRows(sqlmock.NewRows(snapshotCols).
			AddRow(8, day, "100.00", "20.00", "5.00", "75.00", "80.00", "5.00", "bank fee", "fm-1", day))

	snap, err := NewSnapshotRepository(db).GetSnapshotByID(context.Background(), 8)
	require.NoError(t, err)
	assert.True(t, snap.Variance.Equal(dec("5")))
	require.NotNil(t, snap.Notes)
	assert.Equal(t, "bank fee", *snap.Notes)

	mock.ExpectQuery(`FROM fund_balance_snapshots WHERE id = \?`).WithArgs(9).
		WillReturnRows(sqlmock.NewRows(snapshotCols))
	_, err = NewSnapshotRepository(db).GetSnapshotByID(context.Background(), 9)
	assert.ErrorIs(t, err, ErrSnapshotNotFound)
}

func TestListSnapshotsEmpty(t *testing.T) {
	db, mock := newMock(t)
	mock.ExpectQuery(`ORDER BY snapshot_date DESC, id DESC\s+LIMIT \? OFFSET \?`).WithArgs(20, 40).
		WillReturnRows(sqlmock.NewRows(snapshotCols))

	snaps, err := NewSnapshotRepository(db).ListSnapshots(context.Background(), 20, 40)
	require.NoError(t, err)
	assert.NotNil(t, snaps)
	assert.Empty(t, snaps)
}

func TestCreateAuditEntryStoresNullForEmptyJSON(t *testing.T) {
	db, mock := newMock(t)
	at := time.Date(2024, 3, 11, 9, 0, 0, 0, time.UTC)

	mock.ExpectExec(`INSERT INTO financial_audit_trail`).
		WithArgs("fm-1", "expense_creation", "expense", "12", nil, `{"id":12}`, nil, "10.0.0.1", at).
		WillReturnResult(sqlmock.NewResult(100, 1))

	entry := &models.FinancialAuditEntry{
		UserID:       "fm-1",
		Operation:    "expense_creation",
		ResourceType: "expense",
		ResourceID:   "12",
		NewValue:     []byte(`{"id":12}`),
		IPAddress:    "10.0.0.1",
		CreatedAt:    at,
	}
	require.NoError(t, NewAuditRepository(db).CreateAuditEntry(context.Background(), entry))
	assert.Equal(t, int64(100), entry.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateAccessLog(t *testing.T) {
	db, mock := newMock(t)
	at := time.Now().UTC()

	mock.ExpectExec(`INSERT INTO financial_access_logs`).
		WithArgs("u-1", "DENIED", "fund_balance_view", "member", `{"path":"/x"}`, "10.0.0.9", at).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err := NewAuditRepository(db).CreateAccessLog(context.Background(), &models.FinancialAccessLog{
		UserID:    "u-1",
		Result:    "DENIED",
		Operation: "fund_balance_view",
		Role:      "member",
		Metadata:  []byte(`{"path":"/x"}`),
		IPAddress: "10.0.0.9",
		CreatedAt: at,
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListAuditEntriesOrdered(t *testing.T) {
	db, mock := newMock(t)
	first := time.Date(2024, 3, 11, 9, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`WHERE resource_type = \? AND resource_id = \?\s+ORDER BY created_at ASC, id ASC`).
		WithArgs("expense", "12").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "user_id", "operation", "resource_type", "resource_id",
			"previous_value", "new_value", "metadata", "ip_address", "created_at",
		}).
			AddRow(1, "fm-1", "expense_creation", "expense", "12", nil, []byte(`{"status":"pending"}`), nil, "", first).
			AddRow(2, "fm-2", "expense_approve", "expense", "12", []byte(`{"status":"pending"}`), []byte(`{"status":"approved"}`), nil, "", first.Add(time.Minute)))

	entries, err := NewAuditRepository(db).ListAuditEntries(context.Background(), "expense", "12")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Nil(t, entries[0].PreviousValue)
	assert.JSONEq(t, `{"status":"approved"}`, string(entries[1].NewValue))
	assert.Equal(t, "expense_approve", entries[1].Operation)
}
