package models

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestExpenseStatusRules(t *testing.T) {
	tests := []struct {
		status   ExpenseStatus
		counts   bool
		terminal bool
		review   bool
	}{
		{ExpenseStatusPending, false, false, true},
		{ExpenseStatusPendingInfo, false, false, true},
		{ExpenseStatusApproved, true, false, false},
		{ExpenseStatusPaid, true, true, false},
		{ExpenseStatusRejected, false, true, false},
		{ExpenseStatusDeleted, false, true, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			assert.True(t, tt.status.IsValid())
			assert.Equal(t, tt.counts, tt.status.CountsTowardExpenditure())
			assert.Equal(t, tt.terminal, tt.status.IsTerminal())
			assert.Equal(t, tt.review, tt.status.CanReview())
			assert.NotEmpty(t, tt.status.ArabicLabel())
		})
	}

	assert.False(t, ExpenseStatus("archived").IsValid())
}

func TestLedgerTotalsBalance(t *testing.T) {
	totals := LedgerTotals{
		TotalRevenue:      decimal.RequireFromString("10000.00"),
		TotalExpenses:     decimal.RequireFromString("2500.50"),
		TotalInternalDiya: decimal.RequireFromString("1000.25"),
	}

	assert.Equal(t, "6499.25", totals.Balance().StringFixed(2))
}
