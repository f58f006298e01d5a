package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"fund-balance-service/internal/models"
)

var ErrSnapshotNotFound = errors.New("snapshot not found")

const snapshotColumns = `
	id, snapshot_date, total_revenue, total_expenses, total_internal_diya,
	calculated_balance, bank_statement_balance, variance, notes, created_by, created_at`

// SnapshotRepository has no update or delete: snapshots are write-once.
type SnapshotRepository interface {
	CreateSnapshot(ctx context.Context, snap *models.FundBalanceSnapshot) error
	GetSnapshotByID(ctx context.Context, id int64) (*models.FundBalanceSnapshot, error)
	ListSnapshots(ctx context.Context, limit, offset int) ([]models.FundBalanceSnapshot, error)
}

type snapshotRepository struct {
	db *sql.DB
}

func NewSnapshotRepository(db *sql.DB) SnapshotRepository {
	return &snapshotRepository{db: db}
}

func scanSnapshot(row rowScanner) (*models.FundBalanceSnapshot, error) {
	s := &models.FundBalanceSnapshot{}
	err := row.Scan(
		&s.ID,
		&s.SnapshotDate,
		&s.TotalRevenue,
		&s.TotalExpenses,
		&s.TotalInternalDiya,
		&s.CalculatedBalance,
		&s.BankStatementBalance,
		&s.Variance,
		&s.Notes,
		&s.CreatedBy,
		&s.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (r *snapshotRepository) CreateSnapshot(ctx context.Context, snap *models.FundBalanceSnapshot) error {
	snap.CreatedAt = time.Now().UTC()
	query := `
		INSERT INTO fund_balance_snapshots (
			snapshot_date, total_revenue, total_expenses, total_internal_diya,
			calculated_balance, bank_statement_balance, variance, notes, created_by, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	result, err := r.db.ExecContext(ctx, query,
		snap.SnapshotDate,
		snap.TotalRevenue,
		snap.TotalExpenses,
		snap.TotalInternalDiya,
		snap.CalculatedBalance,
		snap.BankStatementBalance,
		snap.Variance,
		snap.Notes,
		snap.CreatedBy,
		snap.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert snapshot: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	snap.ID = id
	return nil
}

func (r *snapshotRepository) GetSnapshotByID(ctx context.Context, id int64) (*models.FundBalanceSnapshot, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+snapshotColumns+` FROM fund_balance_snapshots WHERE id = ?`, id)
	s, err := scanSnapshot(row)
	if err == sql.ErrNoRows {
		return nil, ErrSnapshotNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get snapshot: %w", err)
	}
	return s, nil
}

// ListSnapshots returns stored snapshots newest snapshot_date first. The
// stored figures are returned as captured; nothing is recomputed.
func (r *snapshotRepository) ListSnapshots(ctx context.Context, limit, offset int) ([]models.FundBalanceSnapshot, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+snapshotColumns+` FROM fund_balance_snapshots
		 ORDER BY snapshot_date DESC, id DESC
		 LIMIT ? OFFSET ?`,
		limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	defer rows.Close()

	snapshots := []models.FundBalanceSnapshot{}
	for rows.Next() {
		s, err := scanSnapshot(rows)
		if err != nil {
			return nil, err
		}
		snapshots = append(snapshots, *s)
	}
	if err = rows.Err(); err != nil {
		return nil, err
	}
	return snapshots, nil
}
