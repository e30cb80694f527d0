package storage

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"

	apperrors "gitlab.com/jackdesk/api/bcast-conversation-hub/internal/apperrors"
	"gitlab.com/jackdesk/api/bcast-conversation-hub/internal/tenant"
	"gitlab.com/jackdesk/api/bcast-conversation-hub/pkg/logger"
)

// Note on SQL Query Matching in Tests:
// ----------------------------------
// GORM generates SQL queries with additional clauses like ORDER BY and LIMIT
// that can make exact SQL string matching brittle. To handle this, we:
//
// 1. Use sqlmock.QueryMatcherEqual with the exact SQL GORM produces
// 2. Use sqlmock.AnyArg() for parameters that may vary in format or content
// 3. Use custom matchers (AnyTime, AnyJSON) for generated timestamps and
//    serialized JSON columns
//
// This approach makes tests robust without resorting to loose regexes.

const testOrganizationID = "org-test-123"

// Placeholder for AnyTime argument matcher
type AnyTime struct{}

// Match satisfies sqlmock.Argument interface
func (a AnyTime) Match(v driver.Value) bool {
	_, ok := v.(time.Time)
	return ok
}

// Placeholder for JSON fields like map[string]interface{}
type AnyJSON struct{}

// Match satisfies sqlmock.Argument interface
func (a AnyJSON) Match(v driver.Value) bool {
	switch v.(type) {
	case []byte, string, nil:
		// JSON fields are stored as string or []byte in the database
		// or as nil if the field is NULL
		return true
	default:
		return false
	}
}

// --- Test Helpers ---

// newTestRepo creates a PostgresRepo backed by sqlmock with exact query
// matching. Default transactions are skipped so only explicit Begin/Commit
// calls show up in expectations.
func newTestRepo(t *testing.T) (*PostgresRepo, sqlmock.Sqlmock) {
	logger.Log = zaptest.NewLogger(t).Named("test")
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	gormDB, err := gorm.Open(postgres.New(postgres.Config{Conn: db}), &gorm.Config{
		Logger:                 gormLogger.Default.LogMode(gormLogger.Silent),
		SkipDefaultTransaction: true,
	})
	require.NoError(t, err)
	return &PostgresRepo{db: gormDB}, mock
}

// testContext returns a context carrying the test organization and a test logger.
func testContext(t *testing.T) context.Context {
	ctx := tenant.WithOrganizationID(context.Background(), testOrganizationID)
	return logger.WithLogger(ctx, zaptest.NewLogger(t))
}

// --- Test Cases ---

func TestIsTransientError(t *testing.T) {
	testCases := []struct {
		name     string
		err      error
		expected bool
	}{
		{
			name:     "Nil error",
			err:      nil,
			expected: false,
		},
		{
			name:     "Context deadline exceeded",
			err:      context.DeadlineExceeded,
			expected: true,
		},
		{
			name:     "Wrapped Context deadline exceeded",
			err:      fmt.Errorf("operation failed: %w", context.DeadlineExceeded),
			expected: true,
		},
		{
			name:     "GORM Record Not Found",
			err:      gorm.ErrRecordNotFound,
			expected: false, // Permanent error
		},
		{
			name:     "GORM Invalid Transaction",
			err:      gorm.ErrInvalidTransaction,
			expected: false, // Permanent error
		},
		{
			name:     "PG Error - Connection Exception (08000)",
			err:      &pgconn.PgError{Code: "08000"},
			expected: true,
		},
		{
			name:     "PG Error - Insufficient Resources (53100)",
			err:      &pgconn.PgError{Code: "53100"},
			expected: true,
		},
		{
			name:     "PG Error - Deadlock Detected (40P01)",
			err:      &pgconn.PgError{Code: "40P01"},
			expected: true, // Consider transient if retry logic handles deadlocks
		},
		{
			name:     "PG Error - Serialization Failure (40001)",
			err:      &pgconn.PgError{Code: "40001"},
			expected: true, // Consider transient if retry logic handles serialization issues
		},
		{
			name:     "PG Error - Other (e.g., Syntax Error 42601)",
			err:      &pgconn.PgError{Code: "42601"},
			expected: false, // Permanent error
		},
		{
			name:     "Network Error - Connection Refused",
			err:      errors.New("dial tcp 127.0.0.1:5432: connect: connection refused"),
			expected: true,
		},
		{
			name:     "Network Error - I/O Timeout",
			err:      errors.New("read tcp 10.0.0.1:1234->10.0.0.2:5432: i/o timeout"),
			expected: true,
		},
		{
			name:     "Network Error - Broken Pipe",
			err:      errors.New("write: broken pipe"),
			expected: true,
		},
		{
			name:     "Network Error - DB Starting Up",
			err:      errors.New("pq: the database system is starting up"),
			expected: true,
		},
		{
			name:     "Generic Non-Transient Error",
			err:      errors.New("some other database error"),
			expected: false,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			actual := isTransientError(tc.err)
			assert.Equal(t, tc.expected, actual)
		})
	}
}

func TestPostgresRepo_Close(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		repo, mock := newTestRepo(t)

		mock.ExpectClose() // Expect the underlying sql.DB's Close() to be called

		err := repo.Close(context.Background())
		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Close Fails", func(t *testing.T) {
		repo, mock := newTestRepo(t)

		mock.ExpectClose().WillReturnError(errors.New("db close error"))

		err := repo.Close(context.Background())
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "failed to close SQL DB")
		assert.Contains(t, err.Error(), "db close error")
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestTryAdvisoryLock(t *testing.T) {
	t.Run("Acquired", func(t *testing.T) {
		repo, mock := newTestRepo(t)
		ctx := testContext(t)

		mock.ExpectQuery(`SELECT pg_try_advisory_lock($1)`).
			WithArgs(int64(815)).
			WillReturnRows(sqlmock.NewRows([]string{"pg_try_advisory_lock"}).AddRow(true))

		conn, acquired, err := repo.TryAdvisoryLock(ctx, 815)
		assert.NoError(t, err)
		assert.True(t, acquired)
		if conn != nil {
			defer conn.Close()
		}
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Held Elsewhere", func(t *testing.T) {
		repo, mock := newTestRepo(t)
		ctx := testContext(t)

		mock.ExpectQuery(`SELECT pg_try_advisory_lock($1)`).
			WithArgs(int64(815)).
			WillReturnRows(sqlmock.NewRows([]string{"pg_try_advisory_lock"}).AddRow(false))

		_, acquired, err := repo.TryAdvisoryLock(ctx, 815)
		assert.NoError(t, err)
		assert.False(t, acquired)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Query Error", func(t *testing.T) {
		repo, mock := newTestRepo(t)
		ctx := testContext(t)

		mock.ExpectQuery(`SELECT pg_try_advisory_lock($1)`).
			WithArgs(int64(815)).
			WillReturnError(errors.New("connection lost"))

		_, acquired, err := repo.TryAdvisoryLock(ctx, 815)
		assert.Error(t, err)
		assert.ErrorIs(t, err, apperrors.ErrDatabase)
		assert.False(t, acquired)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestAdvisoryUnlock(t *testing.T) {
	t.Run("Released", func(t *testing.T) {
		repo, mock := newTestRepo(t)
		ctx := testContext(t)

		mock.ExpectQuery(`SELECT pg_advisory_unlock($1)`).
			WithArgs(int64(815)).
			WillReturnRows(sqlmock.NewRows([]string{"pg_advisory_unlock"}).AddRow(true))

		sqlDB, err := repo.db.DB()
		require.NoError(t, err)
		conn, err := sqlDB.Conn(ctx)
		require.NoError(t, err)
		defer conn.Close()

		err = repo.AdvisoryUnlock(ctx, conn, 815)
		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Nothing Held", func(t *testing.T) {
		// Unlocking a lock this session never held logs a warning but is not
		// an error; the session-scoped lock may have been dropped with the
		// connection.
		repo, mock := newTestRepo(t)
		ctx := testContext(t)

		mock.ExpectQuery(`SELECT pg_advisory_unlock($1)`).
			WithArgs(int64(815)).
			WillReturnRows(sqlmock.NewRows([]string{"pg_advisory_unlock"}).AddRow(false))

		sqlDB, err := repo.db.DB()
		require.NoError(t, err)
		conn, err := sqlDB.Conn(ctx)
		require.NoError(t, err)
		defer conn.Close()

		err = repo.AdvisoryUnlock(ctx, conn, 815)
		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Query Error", func(t *testing.T) {
		repo, mock := newTestRepo(t)
		ctx := testContext(t)

		mock.ExpectQuery(`SELECT pg_advisory_unlock($1)`).
			WithArgs(int64(815)).
			WillReturnError(errors.New("connection lost"))

		sqlDB, err := repo.db.DB()
		require.NoError(t, err)
		conn, err := sqlDB.Conn(ctx)
		require.NoError(t, err)
		defer conn.Close()

		err = repo.AdvisoryUnlock(ctx, conn, 815)
		assert.Error(t, err)
		assert.ErrorIs(t, err, apperrors.ErrDatabase)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestCheckConstraintViolation(t *testing.T) {
	// Original errors for wrapping
	originalNotFound := gorm.ErrRecordNotFound
	originalUnique := &pgconn.PgError{Code: "23505", ConstraintName: "idx_contact_identity"}
	originalFK := &pgconn.PgError{Code: "23503", ConstraintName: "fk_conversations_contacts"}
	originalNotNull := &pgconn.PgError{Code: "23502", ColumnName: "address"}
	originalCheck := &pgconn.PgError{Code: "23514", ConstraintName: "frequency_check"}
	originalTruncate := &pgconn.PgError{Code: "22001", ColumnName: "message_body"}
	originalInvalidText := &pgconn.PgError{Code: "22P02", DataTypeName: "integer"}
	originalDeadlock := &pgconn.PgError{Code: "40P01"}
	originalSerialization := &pgconn.PgError{Code: "40001"}
	originalResource := &pgconn.PgError{Code: "53200"}    // out_of_memory
	originalConnection := &pgconn.PgError{Code: "08003"}  // connection_does_not_exist
	originalUnhandledPg := &pgconn.PgError{Code: "XX000"} // internal_error
	originalGeneric := errors.New("some generic DB error")

	testCases := []struct {
		name            string
		inErr           error
		expectedStdErr  error  // Expected standard error type (e.g., apperrors.ErrNotFound)
		checkMessage    bool   // Whether to check if the original message is contained
		originalMsgFrag string // Fragment of the original error message expected in the wrapped error
	}{
		{
			name:           "Nil error",
			inErr:          nil,
			expectedStdErr: nil,
		},
		{
			name:            "GORM Record Not Found",
			inErr:           originalNotFound,
			expectedStdErr:  apperrors.ErrNotFound,
			checkMessage:    true,
			originalMsgFrag: "record not found",
		},
		{
			name:            "Wrapped GORM Record Not Found",
			inErr:           fmt.Errorf("wrapper: %w", originalNotFound),
			expectedStdErr:  apperrors.ErrNotFound,
			checkMessage:    true,
			originalMsgFrag: "record not found",
		},
		{
			name:            "PG Unique Violation (23505)",
			inErr:           originalUnique,
			expectedStdErr:  apperrors.ErrDuplicate,
			checkMessage:    true,
			originalMsgFrag: "idx_contact_identity",
		},
		{
			name:            "PG Foreign Key Violation (23503)",
			inErr:           originalFK,
			expectedStdErr:  apperrors.ErrBadRequest,
			checkMessage:    true,
			originalMsgFrag: "fk_conversations_contacts",
		},
		{
			name:            "PG Not Null Violation (23502)",
			inErr:           originalNotNull,
			expectedStdErr:  apperrors.ErrBadRequest,
			checkMessage:    true,
			originalMsgFrag: "address",
		},
		{
			name:            "PG Check Violation (23514)",
			inErr:           originalCheck,
			expectedStdErr:  apperrors.ErrBadRequest,
			checkMessage:    true,
			originalMsgFrag: "frequency_check",
		},
		{
			name:            "PG String Truncation (22001)",
			inErr:           originalTruncate,
			expectedStdErr:  apperrors.ErrBadRequest,
			checkMessage:    true,
			originalMsgFrag: "message_body",
		},
		{
			name:            "PG Invalid Text Representation (22P02)",
			inErr:           originalInvalidText,
			expectedStdErr:  apperrors.ErrBadRequest,
			checkMessage:    true,
			originalMsgFrag: "integer",
		},
		{
			name:            "PG Deadlock Detected (40P01)",
			inErr:           originalDeadlock,
			expectedStdErr:  apperrors.ErrDatabase,
			checkMessage:    true,
			originalMsgFrag: "40P01",
		},
		{
			name:            "PG Serialization Failure (40001)",
			inErr:           originalSerialization,
			expectedStdErr:  apperrors.ErrDatabase,
			checkMessage:    true,
			originalMsgFrag: "40001",
		},
		{
			name:            "PG Insufficient Resources (53200)",
			inErr:           originalResource,
			expectedStdErr:  apperrors.ErrDatabase,
			checkMessage:    true,
			originalMsgFrag: "53200",
		},
		{
			name:            "PG Connection Exception (08003)",
			inErr:           originalConnection,
			expectedStdErr:  apperrors.ErrDatabase,
			checkMessage:    true,
			originalMsgFrag: "08003",
		},
		{
			name:            "PG Unhandled Code (XX000)",
			inErr:           originalUnhandledPg,
			expectedStdErr:  apperrors.ErrDatabase,
			checkMessage:    true,
			originalMsgFrag: "XX000",
		},
		{
			name:            "Generic non-GORM, non-PgError",
			inErr:           originalGeneric,
			expectedStdErr:  apperrors.ErrDatabase,
			checkMessage:    true,
			originalMsgFrag: "some generic DB error",
		},
		{
			name:            "Wrapped PG Unique Violation",
			inErr:           fmt.Errorf("wrapper: %w", originalUnique),
			expectedStdErr:  apperrors.ErrDuplicate,
			checkMessage:    true,
			originalMsgFrag: "idx_contact_identity",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			outErr := checkConstraintViolation(tc.inErr)

			if tc.expectedStdErr == nil {
				assert.NoError(t, outErr)
			} else {
				assert.Error(t, outErr)
				assert.Truef(t, errors.Is(outErr, tc.expectedStdErr), "Expected error to wrap %v, but got %v", tc.expectedStdErr, outErr)
				if tc.checkMessage {
					assert.ErrorContains(t, outErr, tc.originalMsgFrag)
				}
				// Additionally check if the original error is preserved in the chain
				assert.Truef(t, errors.Is(outErr, tc.inErr), "Expected error to wrap original error %v, but got %v", tc.inErr, outErr)
			}
		})
	}
}
