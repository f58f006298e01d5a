package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"fund-balance-service/internal/database"
	"fund-balance-service/internal/models"
)

type PaymentRepository interface {
	InsertPayment(ctx context.Context, tx *sql.Tx, p *models.PaymentRecord) error
	ListRecentCompleted(ctx context.Context, q database.Querier, limit int) ([]models.PaymentRecord, error)
}

type paymentRepository struct{}

func NewPaymentRepository() PaymentRepository {
	return &paymentRepository{}
}

func (r *paymentRepository) InsertPayment(ctx context.Context, tx *sql.Tx, p *models.PaymentRecord) error {
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	query := `
		INSERT INTO payments (
			payer_id, amount, status, reference, created_at
		) VALUES (?, ?, ?, ?, ?)
	`
	result, err := tx.ExecContext(ctx, query,
		p.PayerID,
		p.Amount,
		p.Status,
		p.Reference,
		p.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert payment: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	p.ID = id
	return nil
}

func (r *paymentRepository) ListRecentCompleted(ctx context.Context, q database.Querier, limit int) ([]models.PaymentRecord, error) {
	query := `
		SELECT id, payer_id, amount, status, reference, created_at
		FROM payments
		WHERE status = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ?
	`
	rows, err := q.QueryContext(ctx, query, models.PaymentStatusCompleted, limit)
	if err != nil {
		return nil, fmt.Errorf("list recent payments: %w", err)
	}
	defer rows.Close()

	payments := []models.PaymentRecord{}
	for rows.Next() {
		var p models.PaymentRecord
		err := rows.Scan(
			&p.ID,
			&p.PayerID,
			&p.Amount,
			&p.Status,
			&p.Reference,
			&p.CreatedAt,
		)
		if err != nil {
			return nil, err
		}
		payments = append(payments, p)
	}
	if err = rows.Err(); err != nil {
		return nil, err
	}
	return payments, nil
}
