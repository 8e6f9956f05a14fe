package sqlite

import (
	"database/sql"
	"errors"
	"path/filepath"
	"testing"

	"github.com/Olprog59/go-microservice/internal/repository/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	_ "modernc.org/sqlite"
)

func TestTranslateError(t *testing.T) {
	conn, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "err.db")+"?_pragma=foreign_keys(1)")
	require.NoError(t, err)
	defer conn.Close()
	conn.SetMaxOpenConns(1)

	_, err = conn.Exec(`CREATE TABLE parent (id INTEGER PRIMARY KEY);
		CREATE TABLE child (id INTEGER PRIMARY KEY, parent_id INTEGER NOT NULL REFERENCES parent(id));
		INSERT INTO parent (id) VALUES (1);`)
	require.NoError(t, err)

	_, err = conn.Exec("INSERT INTO parent (id) VALUES (1)")
	assert.ErrorIs(t, TranslateError(err), db.ErrDuplicate)

	_, err = conn.Exec("INSERT INTO child (id, parent_id) VALUES (1, 42)")
	assert.ErrorIs(t, TranslateError(err), db.ErrForeignKeyViolation)

	err = conn.QueryRow("SELECT id FROM parent WHERE id = 99").Scan(new(int))
	assert.ErrorIs(t, TranslateError(err), db.ErrNoRecord)

	assert.ErrorIs(t, TranslateError(gorm.ErrRecordNotFound), db.ErrNoRecord)
	assert.NoError(t, TranslateError(nil))

	other := errors.New("other")
	assert.Equal(t, other, TranslateError(other))
}
