package postgres

import (
	"database/sql"
	"errors"
	"fmt"
	"testing"

	"github.com/Olprog59/go-microservice/internal/repository/db"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
)

func TestTranslateError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"unique violation", &pq.Error{Code: "23505"}, db.ErrDuplicate},
		{"wrapped unique violation", fmt.Errorf("insert: %w", &pq.Error{Code: "23505"}), db.ErrDuplicate},
		{"foreign key violation", &pq.Error{Code: "23503"}, db.ErrForeignKeyViolation},
		{"serialization failure", &pq.Error{Code: "40001"}, db.ErrSerialization},
		{"no rows", sql.ErrNoRows, db.ErrNoRecord},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, TranslateError(tt.err), tt.want)
		})
	}

	other := &pq.Error{Code: "42P01"}
	assert.Equal(t, error(other), TranslateError(other))
	assert.NoError(t, TranslateError(nil))
	assert.False(t, errors.Is(TranslateError(other), db.ErrDuplicate))
}
