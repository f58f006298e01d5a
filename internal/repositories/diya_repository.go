package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"fund-balance-service/internal/database"
	"fund-balance-service/internal/models"
)

type DiyaRepository interface {
	InsertDiyaCase(ctx context.Context, tx *sql.Tx, c *models.InternalDiyaCase) error
	ListRecentInternal(ctx context.Context, q database.Querier, limit int) ([]models.InternalDiyaCase, error)
}

type diyaRepository struct{}

func NewDiyaRepository() DiyaRepository {
	return &diyaRepository{}
}

func (r *diyaRepository) InsertDiyaCase(ctx context.Context, tx *sql.Tx, c *models.InternalDiyaCase) error {
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	query := `
		INSERT INTO diya_cases (
			case_number, beneficiary_name, amount_paid, diya_type, status, created_at
		) VALUES (?, ?, ?, ?, ?, ?)
	`
	result, err := tx.ExecContext(ctx, query,
		c.CaseNumber,
		c.BeneficiaryName,
		c.AmountPaid,
		c.DiyaType,
		c.Status,
		c.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert diya case: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	c.ID = id
	return nil
}

// ListRecentInternal returns internal cases in a status that counts toward
// expenditure, newest first.
func (r *diyaRepository) ListRecentInternal(ctx context.Context, q database.Querier, limit int) ([]models.InternalDiyaCase, error) {
	query := `
		SELECT id, case_number, beneficiary_name, amount_paid, diya_type, status, created_at
		FROM diya_cases
		WHERE diya_type = ? AND status IN (` + placeholders(len(models.DiyaStatusesCounted)) + `)
		ORDER BY created_at DESC, id DESC
		LIMIT ?
	`
	rows, err := q.QueryContext(ctx, query, append(countedDiyaArgs(), limit)...)
	if err != nil {
		return nil, fmt.Errorf("list internal diya cases: %w", err)
	}
	defer rows.Close()

	cases := []models.InternalDiyaCase{}
	for rows.Next() {
		var c models.InternalDiyaCase
		err := rows.Scan(
			&c.ID,
			&c.CaseNumber,
			&c.BeneficiaryName,
			&c.AmountPaid,
			&c.DiyaType,
			&c.Status,
			&c.CreatedAt,
		)
		if err != nil {
			return nil, err
		}
		cases = append(cases, c)
	}
	if err = rows.Err(); err != nil {
		return nil, err
	}
	return cases, nil
}
