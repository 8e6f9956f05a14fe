package mysql

import (
	"testing"

	"github.com/Olprog59/go-microservice/internal/repository/db"
	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"gorm.io/gorm"
)

func TestTranslateError(t *testing.T) {
	assert.ErrorIs(t, TranslateError(&mysql.MySQLError{Number: 1062}), db.ErrDuplicate)
	assert.ErrorIs(t, TranslateError(&mysql.MySQLError{Number: 1452}), db.ErrForeignKeyViolation)
	assert.ErrorIs(t, TranslateError(&mysql.MySQLError{Number: 1213}), db.ErrSerialization)
	assert.ErrorIs(t, TranslateError(gorm.ErrRecordNotFound), db.ErrNoRecord)

	other := &mysql.MySQLError{Number: 1146}
	assert.Equal(t, error(other), TranslateError(other))
	assert.NoError(t, TranslateError(nil))
}
