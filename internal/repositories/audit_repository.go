package repositories

import (
	"context"
	"database/sql"
	"fmt"

	"fund-balance-service/internal/models"
)

// AuditRepository only appends and reads.
type AuditRepository interface {
	CreateAuditEntry(ctx context.Context, entry *models.FinancialAuditEntry) error
	CreateAccessLog(ctx context.Context, entry *models.FinancialAccessLog) error
	ListAuditEntries(ctx context.Context, resourceType, resourceID string) ([]models.FinancialAuditEntry, error)
}

type auditRepository struct {
	db *sql.DB
}

func NewAuditRepository(db *sql.DB) AuditRepository {
	return &auditRepository{db: db}
}

// nullJSON keeps empty payloads as SQL NULL rather than an invalid JSON value.
func nullJSON(raw []byte) any {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}

func (r *auditRepository) CreateAuditEntry(ctx context.Context, entry *models.FinancialAuditEntry) error {
	query := `
		INSERT INTO financial_audit_trail (
			user_id, operation, resource_type, resource_id,
			previous_value, new_value, metadata, ip_address, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	result, err := r.db.ExecContext(ctx, query,
		entry.UserID,
		entry.Operation,
		entry.ResourceType,
		entry.ResourceID,
		nullJSON(entry.PreviousValue),
		nullJSON(entry.NewValue),
		nullJSON(entry.Metadata),
		entry.IPAddress,
		entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	entry.ID = id
	return nil
}

func (r *auditRepository) CreateAccessLog(ctx context.Context, entry *models.FinancialAccessLog) error {
	query := `
		INSERT INTO financial_access_logs (
			user_id, result, operation, role, metadata, ip_address, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	result, err := r.db.ExecContext(ctx, query,
		entry.UserID,
		entry.Result,
		entry.Operation,
		entry.Role,
		nullJSON(entry.Metadata),
		entry.IPAddress,
		entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert access log: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	entry.ID = id
	return nil
}

// ListAuditEntries returns the full history of one resource in the order
// it happened.
func (r *auditRepository) ListAuditEntries(ctx context.Context, resourceType, resourceID string) ([]models.FinancialAuditEntry, error) {
	query := `
		SELECT id, user_id, operation, resource_type, resource_id,
		       previous_value, new_value, metadata, ip_address, created_at
		FROM financial_audit_trail
		WHERE resource_type = ? AND resource_id = ?
		ORDER BY created_at ASC, id ASC
	`
	rows, err := r.db.QueryContext(ctx, query, resourceType, resourceID)
	if err != nil {
		return nil, fmt.Errorf("list audit entries: %w", err)
	}
	defer rows.Close()

	entries := []models.FinancialAuditEntry{}
	for rows.Next() {
		var e models.FinancialAuditEntry
		var previous, next, metadata []byte
		err := rows.Scan(
			&e.ID,
			&e.UserID,
			&e.Operation,
			&e.ResourceType,
			&e.ResourceID,
			&previous,
			&next,
			&metadata,
			&e.IPAddress,
			&e.CreatedAt,
		)
		if err != nil {
			return nil, err
		}
		e.PreviousValue = previous
		e.NewValue = next
		e.Metadata = metadata
		entries = append(entries, e)
	}
	if err = rows.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}
