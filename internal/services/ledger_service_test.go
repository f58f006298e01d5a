package services

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"fund-balance-service/internal/apperrors"
	"fund-balance-service/internal/models"
	"fund-balance-service/internal/repositories"
)

func newLedgerService(t *testing.T) (*LedgerService, sqlmock.Sqlmock, *recordingAuditor) {
	t.Helper()
	db, mock := newMock(t)
	auditor := &recordingAuditor{}
	svc := NewLedgerService(db, repositories.NewPaymentRepository(), repositories.NewDiyaRepository(), auditor, zap.NewNop())
	return svc, mock, auditor
}

func TestIngestPayments(t *testing.T) {
	svc, mock, auditor := newLedgerService(t)

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO payments`).
		WithArgs("member-1", dec("250"), "completed", nil, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(31, 1))
	mock.ExpectExec(`INSERT INTO payments`).
		WithArgs("member-2", dec("100"), "pending", nil, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(32, 1))
	mock.ExpectCommit()

	result, err := svc.IngestPayments(context.Background(), superAdmin, []PaymentInput{
		{PayerID: "member-1", Amount: dec("250"), Status: models.PaymentStatusCompleted},
		{PayerID: "", Amount: dec("50"), Status: models.PaymentStatusCompleted},
		{PayerID: "member-2", Amount: dec("100"), Status: models.PaymentStatusPending},
		{PayerID: "member-3", Amount: dec("-1"), Status: models.PaymentStatusCompleted},
		{PayerID: "member-4", Amount: dec("10"), Status: "bounced"},
	})
	require.NoError(t, err)

	assert.False(t, result.Success)
	assert.Equal(t, 2, result.RecordsCount)
	assert.Len(t, result.Errors, 3)
	assert.Equal(t, 5, result.Details["total_records"])

	require.Len(t, auditor.entries, 2)
	assert.Equal(t, "payment_recorded", auditor.entries[0].Operation)
	assert.Equal(t, "31", auditor.entries[0].ResourceID)
	assert.Equal(t, "32", auditor.entries[1].ResourceID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIngestPaymentsNothingValid(t *testing.T) {
	svc, mock, auditor := newLedgerService(t)

	mock.ExpectBegin()
	mock.ExpectRollback()

	result, err := svc.IngestPayments(context.Background(), superAdmin, []PaymentInput{
		{PayerID: "member-1", Amount: dec("0"), Status: models.PaymentStatusCompleted},
	})
	require.NoError(t, err)

	assert.False(t, result.Success)
	assert.Zero(t, result.RecordsCount)
	assert.Empty(t, auditor.entries)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIngestEmptyBatch(t *testing.T) {
	svc, _, _ := newLedgerService(t)

	_, err := svc.IngestPayments(context.Background(), superAdmin, nil)
	assert.Equal(t, "EMPTY_BATCH", codeOf(t, err))

	_, err = svc.IngestDiyaCases(context.Background(), superAdmin, []DiyaCaseInput{})
	assert.Equal(t, "EMPTY_BATCH", codeOf(t, err))
}

func TestIngestDiyaCases(t *testing.T) {
	svc, mock, auditor := newLedgerService(t)

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO diya_cases`).
		WithArgs("D-100", "Beneficiary", dec("3000"), "internal", "paid", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(41, 1))
	mock.ExpectExec(`INSERT INTO diya_cases`).
		WithArgs("D-101", "Other", dec("0"), "external", "pending", sqlmock.AnyArg()).
		WillReturnError(&mysql.MySQLError{Number: 1062, Message: "Duplicate entry 'D-101'"})
	mock.ExpectCommit()

	result, err := svc.IngestDiyaCases(context.Background(), superAdmin, []DiyaCaseInput{
		{CaseNumber: "D-100", BeneficiaryName: "Beneficiary", AmountPaid: dec("3000"), DiyaType: "internal", Status: "paid"},
		{CaseNumber: "D-101", BeneficiaryName: "Other", AmountPaid: dec("0"), DiyaType: "external", Status: "pending"},
		{CaseNumber: "D-102", BeneficiaryName: "Third", AmountPaid: dec("10"), DiyaType: "tribal", Status: "paid"},
	})
	require.NoError(t, err)

	assert.Equal(t, 1, result.RecordsCount)
	assert.Len(t, result.Errors, 2)
	require.Len(t, auditor.entries, 1)
	assert.Equal(t, "diya_recorded", auditor.entries[0].Operation)
	assert.Equal(t, models.ResourceDiyaCase, auditor.entries[0].ResourceType)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIngestAbortsOnDeadlock(t *testing.T) {
	svc, mock, auditor := newLedgerService(t)

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO payments`).
		WillReturnError(&mysql.MySQLError{Number: 1213, Message: "Deadlock found"})
	mock.ExpectRollback()

	_, err := svc.IngestPayments(context.Background(), superAdmin, []PaymentInput{
		{PayerID: "member-1", Amount: dec("250"), Status: models.PaymentStatusCompleted},
	})

	assert.Equal(t, apperrors.KindConflict, apperrors.KindOf(err))
	assert.Empty(t, auditor.entries)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIngestBeginFailure(t *testing.T) {
	svc, mock, _ := newLedgerService(t)
	mock.ExpectBegin().WillReturnError(errors.New("too many connections"))

	_, err := svc.IngestPayments(context.Background(), superAdmin, []PaymentInput{
		{PayerID: "member-1", Amount: dec("250"), Status: models.PaymentStatusCompleted},
	})
	assert.Equal(t, "STORE_UNAVAILABLE", codeOf(t, err))
}
