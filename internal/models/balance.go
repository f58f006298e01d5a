package models

import "github.com/shopspring/decimal"

// LedgerTotals are the three running sums read from the ledger in one statement.
type LedgerTotals struct {
	TotalRevenue      decimal.Decimal
	TotalExpenses     decimal.Decimal
	TotalInternalDiya decimal.Decimal
}

// Balance is total_revenue − total_expenses − total_internal_diya.
func (t LedgerTotals) Balance() decimal.Decimal {
	return t.TotalRevenue.Sub(t.TotalExpenses).Sub(t.TotalInternalDiya)
}

// BalanceFigure is the aggregator's answer at the instant of the call.
type BalanceFigure struct {
	TotalRevenue      decimal.Decimal `json:"total_revenue"`
	TotalExpenses     decimal.Decimal `json:"total_expenses"`
	TotalInternalDiya decimal.Decimal `json:"total_internal_diya"`
	CalculatedBalance decimal.Decimal `json:"calculated_balance"`
	IsLowBalance      bool            `json:"is_low_balance"`
	MinThreshold      decimal.Decimal `json:"min_threshold"`
	Currency          string          `json:"currency"`
}

// BalanceCheck is the outcome of comparing a proposed amount with the balance.
type BalanceCheck struct {
	Valid        bool            `json:"valid"`
	Balance      decimal.Decimal `json:"balance"`
	BalanceAfter decimal.Decimal `json:"balance_after"`
	Error        string          `json:"error,omitempty"`
	ErrorEn      string          `json:"error_en,omitempty"`
}

// FundBreakdown is the balance with the most recent contributing records.
type FundBreakdown struct {
	Summary           BalanceFigure      `json:"summary"`
	RecentExpenses    []ExpenseRecord    `json:"recent_expenses"`
	RecentPayments    []PaymentRecord    `json:"recent_payments"`
	InternalDiyaCases []InternalDiyaCase `json:"internal_diya_cases"`
}
