package postgres

import (
	"errors"

	"github.com/Olprog59/go-microservice/internal/repository/db"
	"github.com/lib/pq"
)

// TranslateError translates PostgreSQL errors to typed errors / Traduit les erreurs PostgreSQL en erreurs typées
func TranslateError(err error) error {
	if err == nil {
		return nil
	}
	if db.IsNotFound(err) {
		return db.ErrNoRecord
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case "23505": // unique_violation
			return db.ErrDuplicate
		case "23503": // foreign_key_violation
			return db.ErrForeignKeyViolation
		case "40001": // serialization_failure
			return db.ErrSerialization
		}
	}
	return err
}
