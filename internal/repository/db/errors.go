package db

import (
	"database/sql"
	"errors"

	"gorm.io/gorm"
)

// Common database errors
var (
	ErrNoRecord            = errors.New("no matching record found")
	ErrDuplicate           = errors.New("record already exists")
	ErrForeignKeyViolation = errors.New("foreign key constraint violation")
	ErrSerialization       = errors.New("transaction could not be serialized")
	ErrBusy                = errors.New("database is busy")
	ErrLocked              = errors.New("database is locked")
)

// ErrorTranslator maps driver specific errors onto the sentinels above.
type ErrorTranslator func(err error) error

// IsNotFound reports whether err means "no row", whatever layer produced it.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNoRecord) ||
		errors.Is(err, sql.ErrNoRows) ||
		errors.Is(err, gorm.ErrRecordNotFound)
}
