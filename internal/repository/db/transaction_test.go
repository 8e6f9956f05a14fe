package db

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

const updateSQL = "UPDATE app_metadata SET value = $1 WHERE name = $2"

type recordingObserver struct {
	mu       sync.Mutex
	statuses []string
}

func (o *recordingObserver) ObserveTransaction(status string, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.statuses = append(o.statuses, status)
}

func newMockDatabase(t *testing.T) (*Database, sqlmock.Sqlmock, *recordingObserver) {
	t.Helper()

	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	database, err := Open(sqlDB, &postgresInitializer{}, DatabaseConfig{
		Type:      PostgreSQL,
		Isolation: sql.LevelRepeatableRead,
	}, discardLogger())
	require.NoError(t, err)

	observer := &recordingObserver{}
	database.SetObserver(observer)
	return database, mock, observer
}

func update(tx *gorm.DB, name, value string) error {
	return tx.Exec("UPDATE app_metadata SET value = ? WHERE name = ?", value, name).Error
}

func TestTransaction_Commit(t *testing.T) {
	database, mock, observer := newMockDatabase(t)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(updateSQL)).WithArgs("v1", "k1").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := database.Transaction(context.Background(), func(ctx context.Context, tx *gorm.DB) error {
		return update(tx, "k1", "v1")
	})

	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
	assert.Equal(t, []string{TxCommitted}, observer.statuses)
}

func TestTransaction_RollbackOnError(t *testing.T) {
	database, mock, observer := newMockDatabase(t)
	boom := errors.New("boom")

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(updateSQL)).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectRollback()

	err := database.Transaction(context.Background(), func(ctx context.Context, tx *gorm.DB) error {
		if err := update(tx, "k1", "v1"); err != nil {
			return err
		}
		return boom
	})

	assert.ErrorIs(t, err, boom)
	assert.NoError(t, mock.ExpectationsWereMet())
	assert.Equal(t, []string{TxRolledBack}, observer.statuses)
}

func TestTransaction_RollbackOnPanic(t *testing.T) {
	database, mock, observer := newMockDatabase(t)

	mock.ExpectBegin()
	mock.ExpectRollback()

	assert.PanicsWithValue(t, "boom", func() {
		_ = database.Transaction(context.Background(), func(ctx context.Context, tx *gorm.DB) error {
			panic("boom")
		})
	})

	assert.NoError(t, mock.ExpectationsWereMet())
	assert.Equal(t, []string{TxRolledBack}, observer.statuses)
}

func TestTransaction_NestedCallJoinsOuter(t *testing.T) {
	database, mock, observer := newMockDatabase(t)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(updateSQL)).WithArgs("v1", "k1").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta(updateSQL)).WithArgs("v2", "k2").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := database.Transaction(context.Background(), func(ctx context.Context, outer *gorm.DB) error {
		if err := update(outer, "k1", "v1"); err != nil {
			return err
		}
		return database.Transaction(ctx, func(ctx context.Context, inner *gorm.DB) error {
			assert.Same(t, outer, inner)
			assert.Same(t, outer, database.Conn(ctx))
			return update(inner, "k2", "v2")
		})
	})

	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
	assert.Equal(t, []string{TxCommitted}, observer.statuses, "only the outer transaction is observed")
}

func TestTransaction_NestedErrorRollsBackOuter(t *testing.T) {
	database, mock, _ := newMockDatabase(t)
	boom := errors.New("inner failed")

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(updateSQL)).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectRollback()

	err := database.Transaction(context.Background(), func(ctx context.Context, tx *gorm.DB) error {
		if err := update(tx, "k1", "v1"); err != nil {
			return err
		}
		return database.Transaction(ctx, func(ctx context.Context, tx *gorm.DB) error {
			return boom
		})
	})

	assert.ErrorIs(t, err, boom)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransaction_CanceledContext(t *testing.T) {
	database, mock, observer := newMockDatabase(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	err := database.Transaction(ctx, func(ctx context.Context, tx *gorm.DB) error {
		called = true
		return nil
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, called)
	assert.Empty(t, observer.statuses)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransaction_BeginFailure(t *testing.T) {
	database, mock, _ := newMockDatabase(t)
	mock.ExpectBegin().WillReturnError(errors.New("pool exhausted"))

	err := database.Transaction(context.Background(), func(ctx context.Context, tx *gorm.DB) error {
		t.Fatal("fn must not run without a transaction")
		return nil
	})

	assert.ErrorContains(t, err, "pool exhausted")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestQuery_ReturnsValue(t *testing.T) {
	database, mock, _ := newMockDatabase(t)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT count(*) FROM app_metadata")).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))
	mock.ExpectCommit()

	count, err := Query(context.Background(), database, func(ctx context.Context, tx *gorm.DB) (int64, error) {
		var n int64
		err := tx.Raw("SELECT count(*) FROM app_metadata").Scan(&n).Error
		return n, err
	})

	require.NoError(t, err)
	assert.Equal(t, int64(3), count)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestQuery_ZeroValueOnError(t *testing.T) {
	database, mock, _ := newMockDatabase(t)
	mock.ExpectBegin()
	mock.ExpectRollback()

	got, err := Query(context.Background(), database, func(ctx context.Context, tx *gorm.DB) (string, error) {
		return "partial", errors.New("failed")
	})

	assert.Error(t, err)
	assert.Empty(t, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// beginRecorder wraps the sqlmock connection and records the options every
// transaction is begun with.
type beginRecorder struct {
	driver.Conn
	mu   sync.Mutex
	opts []driver.TxOptions
}

func (c *beginRecorder) BeginTx(ctx context.Context, opts driver.TxOptions) (driver.Tx, error) {
	c.mu.Lock()
	c.opts = append(c.opts, opts)
	c.mu.Unlock()
	return c.Conn.(driver.ConnBeginTx).BeginTx(ctx, opts)
}

func (c *beginRecorder) ExecContext(ctx context.Context, query string, args []driver.NamedValue) (driver.Result, error) {
	return c.Conn.(driver.ExecerContext).ExecContext(ctx, query, args)
}

func (c *beginRecorder) QueryContext(ctx context.Context, query string, args []driver.NamedValue) (driver.Rows, error) {
	return c.Conn.(driver.QueryerContext).QueryContext(ctx, query, args)
}

func (c *beginRecorder) recorded() []driver.TxOptions {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]driver.TxOptions(nil), c.opts...)
}

type recorderConnector struct {
	conn *beginRecorder
	drv  driver.Driver
}

func (c *recorderConnector) Connect(context.Context) (driver.Conn, error) {
	return c.conn, nil
}

func (c *recorderConnector) Driver() driver.Driver {
	return c.drv
}

func TestTransaction_BeginsWithConfiguredIsolation(t *testing.T) {
	tests := []struct {
		name      string
		isolation sql.IsolationLevel
	}{
		{"repeatable read", sql.LevelRepeatableRead},
		{"serializable", sql.LevelSerializable},
		{"driver default", sql.LevelDefault},
	}

	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dsn := fmt.Sprintf("isolation_%d", i)
			mockDB, mock, err := sqlmock.NewWithDSN(dsn)
			require.NoError(t, err)
			t.Cleanup(func() { mockDB.Close() })

			conn, err := mockDB.Driver().Open(dsn)
			require.NoError(t, err)
			recorder := &beginRecorder{Conn: conn}
			sqlDB := sql.OpenDB(&recorderConnector{conn: recorder, drv: mockDB.Driver()})
			t.Cleanup(func() { sqlDB.Close() })

			database, err := Open(sqlDB, &postgresInitializer{}, DatabaseConfig{
				Type:      PostgreSQL,
				Isolation: tt.isolation,
			}, discardLogger())
			require.NoError(t, err)

			mock.ExpectBegin()
			mock.ExpectExec(regexp.QuoteMeta(updateSQL)).WithArgs("v1", "k1").WillReturnResult(sqlmock.NewResult(0, 1))
			mock.ExpectCommit()

			err = database.Transaction(context.Background(), func(ctx context.Context, tx *gorm.DB) error {
				return update(tx, "k1", "v1")
			})
			require.NoError(t, err)
			require.NoError(t, mock.ExpectationsWereMet())

			opts := recorder.recorded()
			require.Len(t, opts, 1)
			assert.Equal(t, driver.IsolationLevel(tt.isolation), opts[0].Isolation)
			assert.False(t, opts[0].ReadOnly)
		})
	}
}

func TestConn_WithoutTransaction(t *testing.T) {
	database, _, _ := newMockDatabase(t)

	_, ok := TxFromContext(context.Background())
	assert.False(t, ok)
	assert.NotNil(t, database.Conn(context.Background()))
}

func TestTransaction_SQLiteIntegration(t *testing.T) {
	database := newSQLiteDatabase(t)
	ctx := context.Background()

	require.NoError(t, database.ORM.Exec("CREATE TABLE counters (name TEXT PRIMARY KEY, n INTEGER NOT NULL)").Error)

	err := database.Transaction(ctx, func(ctx context.Context, tx *gorm.DB) error {
		return tx.Exec("INSERT INTO counters (name, n) VALUES (?, ?)", "a", 1).Error
	})
	require.NoError(t, err)

	err = database.Transaction(ctx, func(ctx context.Context, tx *gorm.DB) error {
		if err := tx.Exec("UPDATE counters SET n = n + 1 WHERE name = ?", "a").Error; err != nil {
			return err
		}
		return errors.New("abort")
	})
	require.Error(t, err)

	n, err := Query(ctx, database, func(ctx context.Context, tx *gorm.DB) (int, error) {
		var n int
		err := tx.Raw("SELECT n FROM counters WHERE name = ?", "a").Scan(&n).Error
		return n, err
	})
	require.NoError(t, err)
	assert.Equal(t, 1, n, "the aborted increment must not be visible")
}
