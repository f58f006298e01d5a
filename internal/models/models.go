package models

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// PaymentRecord is a member due or contribution paid into the fund.
type PaymentRecord struct {
	ID        int64           `db:"id" json:"id"`
	PayerID   string          `db:"payer_id" json:"payer_id"`
	Amount    decimal.Decimal `db:"amount" json:"amount"`
	Status    string          `db:"status" json:"status"`
	Reference *string         `db:"reference" json:"reference,omitempty"`
	CreatedAt time.Time       `db:"created_at" json:"created_at"`
}

// ExpenseRecord is an expenditure proposed against the fund.
type ExpenseRecord struct {
	ID               int64           `db:"id" json:"id"`
	Category         string          `db:"expense_category" json:"expense_category"`
	TitleAr          string          `db:"title_ar" json:"title_ar"`
	TitleEn          *string         `db:"title_en" json:"title_en,omitempty"`
	Description      *string         `db:"description" json:"description,omitempty"`
	Amount           decimal.Decimal `db:"amount" json:"amount"`
	Currency         string          `db:"currency" json:"currency"`
	ExpenseDate      time.Time       `db:"expense_date" json:"expense_date"`
	PaidTo           string          `db:"paid_to" json:"paid_to"`
	PaymentMethod    *string         `db:"payment_method" json:"payment_method,omitempty"`
	ReceiptNumber    *string         `db:"receipt_number" json:"receipt_number,omitempty"`
	Notes            *string         `db:"notes" json:"notes,omitempty"`
	ApprovalRequired bool            `db:"approval_required" json:"approval_required"`
	Status           ExpenseStatus   `db:"status" json:"status"`
	CreatedBy        string          `db:"created_by" json:"created_by"`
	ApprovedBy       *string         `db:"approved_by" json:"approved_by,omitempty"`
	ApprovedAt       *time.Time      `db:"approved_at" json:"approved_at,omitempty"`
	ApprovalNotes    *string         `db:"approval_notes" json:"approval_notes,omitempty"`
	DeletedBy        *string         `db:"deleted_by" json:"deleted_by,omitempty"`
	DeletedAt        *time.Time      `db:"deleted_at" json:"deleted_at,omitempty"`
	CreatedAt        time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time       `db:"updated_at" json:"updated_at"`
}

// InternalDiyaCase is a compensation case; internal ones are paid out of the fund.
type InternalDiyaCase struct {
	ID              int64           `db:"id" json:"id"`
	CaseNumber      string          `db:"case_number" json:"case_number"`
	BeneficiaryName string          `db:"beneficiary_name" json:"beneficiary_name"`
	AmountPaid      decimal.Decimal `db:"amount_paid" json:"amount_paid"`
	DiyaType        string          `db:"diya_type" json:"diya_type"`
	Status          string          `db:"status" json:"status"`
	CreatedAt       time.Time       `db:"created_at" json:"created_at"`
}

// FundBalanceSnapshot is written once and never updated.
type FundBalanceSnapshot struct {
	ID                   int64           `db:"id" json:"id"`
	SnapshotDate         time.Time       `db:"snapshot_date" json:"snapshot_date"`
	TotalRevenue         decimal.Decimal `db:"total_revenue" json:"total_revenue"`
	TotalExpenses        decimal.Decimal `db:"total_expenses" json:"total_expenses"`
	TotalInternalDiya    decimal.Decimal `db:"total_internal_diya" json:"total_internal_diya"`
	CalculatedBalance    decimal.Decimal `db:"calculated_balance" json:"calculated_balance"`
	BankStatementBalance decimal.Decimal `db:"bank_statement_balance" json:"bank_statement_balance"`
	Variance             decimal.Decimal `db:"variance" json:"variance"`
	Notes                *string         `db:"notes" json:"notes,omitempty"`
	CreatedBy            string          `db:"created_by" json:"created_by"`
	CreatedAt            time.Time       `db:"created_at" json:"created_at"`
}

// FinancialAuditEntry is append-only.
type FinancialAuditEntry struct {
	ID            int64           `db:"id" json:"id"`
	UserID        string          `db:"user_id" json:"user_id"`
	Operation     string          `db:"operation" json:"operation"`
	ResourceType  string          `db:"resource_type" json:"resource_type"`
	ResourceID    string          `db:"resource_id" json:"resource_id"`
	PreviousValue json.RawMessage `db:"previous_value" json:"previous_value,omitempty"`
	NewValue      json.RawMessage `db:"new_value" json:"new_value,omitempty"`
	Metadata      json.RawMessage `db:"metadata" json:"metadata,omitempty"`
	IPAddress     string          `db:"ip_address" json:"ip_address"`
	CreatedAt     time.Time       `db:"created_at" json:"created_at"`
}

// FinancialAccessLog records each gated access attempt, granted or not.
type FinancialAccessLog struct {
	ID        int64           `db:"id" json:"id"`
	UserID    string          `db:"user_id" json:"user_id"`
	Result    string          `db:"result" json:"result"`
	Operation string          `db:"operation" json:"operation"`
	Role      string          `db:"role" json:"role"`
	Metadata  json.RawMessage `db:"metadata" json:"metadata,omitempty"`
	IPAddress string          `db:"ip_address" json:"ip_address"`
	CreatedAt time.Time       `db:"created_at" json:"created_at"`
}

// Payment status constants
const (
	PaymentStatusCompleted = "completed"
	PaymentStatusPending   = "pending"
	PaymentStatusFailed    = "failed"
	PaymentStatusRefunded  = "refunded"
)

// Diya constants
const (
	DiyaTypeInternal = "internal"
	DiyaTypeExternal = "external"

	DiyaStatusPending       = "pending"
	DiyaStatusPartiallyPaid = "partially_paid"
	DiyaStatusPaid          = "paid"
	DiyaStatusCompleted     = "completed"
)

// Access log results
const (
	AccessGranted = "GRANTED"
	AccessDenied  = "DENIED"
	AccessSuccess = "SUCCESS"
)

// Resource types written to the audit trail
const (
	ResourceExpense  = "expense"
	ResourceSnapshot = "fund_balance_snapshot"
	ResourcePayment  = "payment"
	ResourceDiyaCase = "diya_case"
)
