package repository

import (
	"context"
	"database/sql/driver"
	"errors"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"

	"github.com/ManuelReschke/ClubDues/internal/pkg/apperr"
)

const (
	mysqlDuplicateEntry = 1062
	mysqlNoSuchTable    = 1146
	mysqlDeadlock       = 1213
	pgUniqueViolation   = "23505"
	pgUndefinedTable    = "42P01"
	pgDeadlock          = "40P01"
)

// Classify maps driver errors onto the repository and apperr vocabulary.
// Missing tables (migrations not applied yet) and dropped connections are
// transient; the caller may retry.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	if isSchemaMissing(err) {
		return apperr.TransientErr(apperr.CodeIndexBuilding, err)
	}
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, context.DeadlineExceeded) {
		return apperr.TransientErr(apperr.CodeStoreUnavailable, err)
	}
	return err
}

func isDuplicate(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var me *mysql.MySQLError
	if errors.As(err, &me) && me.Number == mysqlDuplicateEntry {
		return true
	}
	var pe *pgconn.PgError
	return errors.As(err, &pe) && pe.Code == pgUniqueViolation
}

func isSchemaMissing(err error) bool {
	var me *mysql.MySQLError
	if errors.As(err, &me) && me.Number == mysqlNoSuchTable {
		return true
	}
	var pe *pgconn.PgError
	return errors.As(err, &pe) && pe.Code == pgUndefinedTable
}

func isDeadlock(err error) bool {
	var me *mysql.MySQLError
	if errors.As(err, &me) && me.Number == mysqlDeadlock {
		return true
	}
	var pe *pgconn.PgError
	return errors.As(err, &pe) && pe.Code == pgDeadlock
}
