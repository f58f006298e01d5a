package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"fund-balance-service/internal/database"
	"fund-balance-service/internal/models"
)

var (
	ErrExpenseNotFound = errors.New("expense not found")
	// ErrExpenseStatusChanged means the row left the expected status between
	// read and write.
	ErrExpenseStatusChanged = errors.New("expense status changed concurrently")
)

const expenseColumns = `
	id, expense_category, title_ar, title_en, description, amount, currency,
	expense_date, paid_to, payment_method, receipt_number, notes,
	approval_required, status, created_by, approved_by, approved_at,
	approval_notes, deleted_by, deleted_at, created_at, updated_at`

type ExpenseRepository interface {
	InsertExpense(ctx context.Context, tx *sql.Tx, e *models.ExpenseRecord) error
	GetExpenseByID(ctx context.Context, q database.Querier, id int64) (*models.ExpenseRecord, error)
	GetExpenseForUpdate(ctx context.Context, tx *sql.Tx, id int64) (*models.ExpenseRecord, error)
	UpdateExpenseStatus(ctx context.Context, tx *sql.Tx, e *models.ExpenseRecord, from models.ExpenseStatus) error
	ListRecentCounted(ctx context.Context, q database.Querier, limit int) ([]models.ExpenseRecord, error)
}

type expenseRepository struct{}

func NewExpenseRepository() ExpenseRepository {
	return &expenseRepository{}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanExpense(row rowScanner) (*models.ExpenseRecord, error) {
	e := &models.ExpenseRecord{}
	err := row.Scan(
		&e.ID,
		&e.Category,
		&e.TitleAr,
		&e.TitleEn,
		&e.Description,
		&e.Amount,
		&e.Currency,
		&e.ExpenseDate,
		&e.PaidTo,
		&e.PaymentMethod,
		&e.ReceiptNumber,
		&e.Notes,
		&e.ApprovalRequired,
		&e.Status,
		&e.CreatedBy,
		&e.ApprovedBy,
		&e.ApprovedAt,
		&e.ApprovalNotes,
		&e.DeletedBy,
		&e.DeletedAt,
		&e.CreatedAt,
		&e.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return e, nil
}

func (r *expenseRepository) InsertExpense(ctx context.Context, tx *sql.Tx, e *models.ExpenseRecord) error {
	now := time.Now().UTC()
	query := `
		INSERT INTO expenses (
			expense_category, title_ar, title_en, description, amount, currency,
			expense_date, paid_to, payment_method, receipt_number, notes,
			approval_required, status, created_by, approved_by, approved_at,
			approval_notes, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	result, err := tx.ExecContext(ctx, query,
		e.Category,
		e.TitleAr,
		e.TitleEn,
		e.Description,
		e.Amount,
		e.Currency,
		e.ExpenseDate,
		e.PaidTo,
		e.PaymentMethod,
		e.ReceiptNumber,
		e.Notes,
		e.ApprovalRequired,
		string(e.Status),
		e.CreatedBy,
		e.ApprovedBy,
		e.ApprovedAt,
		e.ApprovalNotes,
		now,
		now,
	)
	if err != nil {
		return fmt.Errorf("insert expense: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	e.ID = id
	e.CreatedAt = now
	e.UpdatedAt = now
	return nil
}

func (r *expenseRepository) GetExpenseByID(ctx context.Context, q database.Querier, id int64) (*models.ExpenseRecord, error) {
	row := q.QueryRowContext(ctx, `SELECT `+expenseColumns+` FROM expenses WHERE id = ?`, id)
	e, err := scanExpense(row)
	if err == sql.ErrNoRows {
		return nil, ErrExpenseNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get expense: %w", err)
	}
	return e, nil
}

func (r *expenseRepository) GetExpenseForUpdate(ctx context.Context, tx *sql.Tx, id int64) (*models.ExpenseRecord, error) {
	row := tx.QueryRowContext(ctx, `SELECT `+expenseColumns+` FROM expenses WHERE id = ? FOR UPDATE`, id)
	e, err := scanExpense(row)
	if err == sql.ErrNoRows {
		return nil, ErrExpenseNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("lock expense: %w", err)
	}
	return e, nil
}

// UpdateExpenseStatus writes e's status and approval/deletion columns,
// guarded on the row still being in status from.
func (r *expenseRepository) UpdateExpenseStatus(ctx context.Context, tx *sql.Tx, e *models.ExpenseRecord, from models.ExpenseStatus) error {
	now := time.Now().UTC()
	query := `
		UPDATE expenses
		SET status = ?,
		    approved_by = ?,
		    approved_at = ?,
		    approval_notes = ?,
		    deleted_by = ?,
		    deleted_at = ?,
		    updated_at = ?
		WHERE id = ? AND status = ?
	`
	result, err := tx.ExecContext(ctx, query,
		string(e.Status),
		e.ApprovedBy,
		e.ApprovedAt,
		e.ApprovalNotes,
		e.DeletedBy,
		e.DeletedAt,
		now,
		e.ID,
		string(from),
	)
	if err != nil {
		return fmt.Errorf("update expense status: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return ErrExpenseStatusChanged
	}
	e.UpdatedAt = now
	return nil
}

func (r *expenseRepository) ListRecentCounted(ctx context.Context, q database.Querier, limit int) ([]models.ExpenseRecord, error) {
	query := `SELECT ` + expenseColumns + ` FROM expenses
		 WHERE status IN (` + placeholders(len(models.ExpenseStatusesCounted)) + `)
		 ORDER BY expense_date DESC, id DESC
		 LIMIT ?`
	rows, err := q.QueryContext(ctx, query, append(countedExpenseArgs(), limit)...)
	if err != nil {
		return nil, fmt.Errorf("list recent expenses: %w", err)
	}
	defer rows.Close()

	expenses := []models.ExpenseRecord{}
	for rows.Next() {
		e, err := scanExpense(rows)
		if err != nil {
			return nil, err
		}
		expenses = append(expenses, *e)
	}
	if err = rows.Err(); err != nil {
		return nil, err
	}
	return expenses, nil
}
