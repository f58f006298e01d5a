package database

import (
	"context"
	"errors"

	"github.com/go-sql-driver/mysql"
)

// MySQL server error numbers the fund engine cares about.
const (
	erLockWaitTimeout   = 1205
	erLockDeadlock      = 1213
	erQueryInterrupted  = 1317
	erLockAbortedNoWait = 3572
)

// ErrVersionMismatch is returned when the fund lock row moved between read
// and update inside one admission transaction.
var ErrVersionMismatch = errors.New("fund lock version mismatch")

// IsConflict reports whether err means the transaction lost a race with a
// concurrent one and may succeed if retried.
func IsConflict(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrVersionMismatch) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		switch myErr.Number {
		case erLockDeadlock, erLockWaitTimeout, erQueryInterrupted, erLockAbortedNoWait:
			return true
		}
	}
	return false
}
