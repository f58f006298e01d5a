package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fund-balance-service/internal/apperrors"
)

func TestGetCurrentBalance(t *testing.T) {
	db, mock := newMock(t)
	svc := newBalanceService(db)

	mock.ExpectQuery(totalsQuery).
		WithArgs("completed", "approved", "paid", "internal", "paid", "partially_paid", "completed").
		WillReturnRows(totalsRows("10000.00", "2500.00", "1000.00"))

	figure, err := svc.GetCurrentBalance(context.Background())
	require.NoError(t, err)

	assert.True(t, figure.CalculatedBalance.Equal(dec("6500")))
	assert.True(t, figure.TotalRevenue.Equal(dec("10000")))
	assert.False(t, figure.IsLowBalance)
	assert.True(t, figure.MinThreshold.Equal(dec("3600")))
	assert.Equal(t, "SAR", figure.Currency)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLowBalanceBoundary(t *testing.T) {
	tests := []struct {
		revenue string
		low     bool
	}{
		{"3600.00", false},
		{"3599.99", true},
		{"0.00", true},
	}

	for _, tt := range tests {
		t.Run(tt.revenue, func(t *testing.T) {
			db, mock := newMock(t)
			svc := newBalanceService(db)
			mock.ExpectQuery(totalsQuery).WillReturnRows(totalsRows(tt.revenue, "0", "0"))

			figure, err := svc.GetCurrentBalance(context.Background())
			require.NoError(t, err)
			assert.Equal(t, tt.low, figure.IsLowBalance)
		})
	}
}

func TestGetCurrentBalanceIsRepeatable(t *testing.T) {
	db, mock := newMock(t)
	svc := newBalanceService(db)
	mock.ExpectQuery(totalsQuery).WillReturnRows(totalsRows("800.00", "150.50", "49.50"))
	mock.ExpectQuery(totalsQuery).WillReturnRows(totalsRows("800.00", "150.50", "49.50"))

	first, err := svc.GetCurrentBalance(context.Background())
	require.NoError(t, err)
	second, err := svc.GetCurrentBalance(context.Background())
	require.NoError(t, err)

	assert.True(t, first.CalculatedBalance.Equal(second.CalculatedBalance))
	assert.True(t, first.CalculatedBalance.Equal(dec("600")))
}

func TestGetCurrentBalanceFailsLoudly(t *testing.T) {
	db, mock := newMock(t)
	svc := newBalanceService(db)
	mock.ExpectQuery(totalsQuery).WillReturnError(errors.New("connection reset by peer"))

	figure, err := svc.GetCurrentBalance(context.Background())

	assert.Nil(t, figure)
	require.Error(t, err)
	assert.Equal(t, apperrors.KindDataUnavailable, apperrors.KindOf(err))
}

func TestGetBreakdown(t *testing.T) {
	db, mock := newMock(t)
	mock.MatchExpectationsInOrder(false)
	svc := newBalanceService(db)
	created := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(totalsQuery).WillReturnRows(totalsRows("10000", "1000", "500"))
	mock.ExpectQuery(`FROM expenses\s+WHERE status IN`).WithArgs("approved", "paid", 10).
		WillReturnRows(expenseRow(3, "approved", "1000.00"))
	mock.ExpectQuery(`FROM payments\s+WHERE status = \?`).WithArgs("completed", 10).
		WillReturnRows(sqlmock.NewRows([]string{"id", "payer_id", "amount", "status", "reference", "created_at"}).
			AddRow(1, "member-1", "10000.00", "completed", nil, created))
	mock.ExpectQuery(`FROM diya_cases\s+WHERE diya_type = \?`).WithArgs("internal", "paid", "partially_paid", "completed", 10).
		WillReturnRows(sqlmock.NewRows([]string{"id", "case_number", "beneficiary_name", "amount_paid", "diya_type", "status", "created_at"}).
			AddRow(2, "D-1", "Beneficiary", "500.00", "internal", "paid", created))

	breakdown, err := svc.GetBreakdown(context.Background())
	require.NoError(t, err)

	assert.True(t, breakdown.Summary.CalculatedBalance.Equal(dec("8500")))
	require.Len(t, breakdown.RecentExpenses, 1)
	require.Len(t, breakdown.RecentPayments, 1)
	require.Len(t, breakdown.InternalDiyaCases, 1)
	assert.Equal(t, "D-1", breakdown.InternalDiyaCases[0].CaseNumber)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetBreakdownListFailure(t *testing.T) {
	db, mock := newMock(t)
	mock.MatchExpectationsInOrder(false)
	svc := newBalanceService(db)

	mock.ExpectQuery(totalsQuery).WillReturnRows(totalsRows("10000", "0", "0"))
	mock.ExpectQuery(`FROM expenses\s+WHERE status IN`).WillReturnError(errors.New("table locked"))
	mock.ExpectQuery(`FROM payments\s+WHERE status = \?`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "payer_id", "amount", "status", "reference", "created_at"}))
	mock.ExpectQuery(`FROM diya_cases\s+WHERE diya_type = \?`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "case_number", "beneficiary_name", "amount_paid", "diya_type", "status", "created_at"}))

	_, err := svc.GetBreakdown(context.Background())
	assert.Equal(t, apperrors.KindDataUnavailable, apperrors.KindOf(err))
}
