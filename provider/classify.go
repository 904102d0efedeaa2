package provider

import (
	"errors"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
)

// PostgreSQL SQLSTATE codes for lock contention.
const (
	pgDeadlockDetected     = "40P01"
	pgLockNotAvailable     = "55P03"
	pgSerializationFailure = "40001"
)

// MySQL server error numbers for lock contention.
const (
	mysqlDeadlock        = 1213
	mysqlLockWaitTimeout = 1205
)

// IsTransient reports whether err is a deadlock or lock timeout raised by
// one of the registered drivers.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return isPgLockCode(string(pqErr.Code))
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return isPgLockCode(pgErr.Code)
	}

	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return myErr.Number == mysqlDeadlock || myErr.Number == mysqlLockWaitTimeout
	}

	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		return liteErr.Code == sqlite3.ErrBusy || liteErr.Code == sqlite3.ErrLocked
	}

	return false
}

func isPgLockCode(code string) bool {
	switch code {
	case pgDeadlockDetected, pgLockNotAvailable, pgSerializationFailure:
		return true
	}
	return false
}
