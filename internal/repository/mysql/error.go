package mysql

import (
	"errors"

	"github.com/Olprog59/go-microservice/internal/repository/db"
	"github.com/go-sql-driver/mysql"
)

// TranslateError translates MySQL errors to typed errors / Traduit les erreurs MySQL en erreurs typées
func TranslateError(err error) error {
	if err == nil {
		return nil
	}
	if db.IsNotFound(err) {
		return db.ErrNoRecord
	}

	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) {
		switch mysqlErr.Number {
		case 1062: // ER_DUP_ENTRY
			return db.ErrDuplicate
		case 1451, 1452: // ER_ROW_IS_REFERENCED_2, ER_NO_REFERENCED_ROW_2
			return db.ErrForeignKeyViolation
		case 1213: // ER_LOCK_DEADLOCK
			return db.ErrSerialization
		}
	}
	return err
}
