package repository

import "github.com/Olprog59/go-microservice/internal/repository/db"

// Re-export common errors for convenience
var (
	ErrNoRecord            = db.ErrNoRecord
	ErrDuplicate           = db.ErrDuplicate
	ErrForeignKeyViolation = db.ErrForeignKeyViolation
	ErrSerialization       = db.ErrSerialization
	ErrBusy                = db.ErrBusy
	ErrLocked              = db.ErrLocked
)
