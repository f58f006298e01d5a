package database

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsConflict(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "deadlock", err: &mysql.MySQLError{Number: 1213, Message: "Deadlock found"}, want: true},
		{name: "lock wait timeout", err: &mysql.MySQLError{Number: 1205}, want: true},
		{name: "wrapped deadlock", err: fmt.Errorf("insert expense: %w", &mysql.MySQLError{Number: 1213}), want: true},
		{name: "version mismatch", err: fmt.Errorf("bump: %w", ErrVersionMismatch), want: true},
		{name: "deadline", err: context.DeadlineExceeded, want: true},
		{name: "duplicate key", err: &mysql.MySQLError{Number: 1062}, want: false},
		{name: "plain error", err: errors.New("connection refused"), want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsConflict(tt.err))
		})
	}
}

func TestBeginSerializable(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectRollback()

	tx, err := BeginSerializable(context.Background(), db)
	require.NoError(t, err)
	require.NoError(t, tx.Rollback())
	assert.NoError(t, mock.ExpectationsWereMet())
}
