package sources

import (
	"context"
	"database/sql"
	stderrors "errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dserrors "github.com/systmms/edgesecrets/internal/errors"
	"github.com/systmms/edgesecrets/internal/logging"
)

func TestSQLGetPinnedVersion(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	expires := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT name, version, value, activation_date, expiration_date FROM secrets WHERE name = $1 AND version = $2")).
		WithArgs("db", "3").
		WillReturnRows(sqlmock.NewRows([]string{"name", "version", "value", "activation_date", "expiration_date"}).
			AddRow("db", "3", "pw3", nil, expires))

	src, err := NewSQL("sql", nil, logging.Nop(), WithDB(db, "postgres"))
	require.NoError(t, err)

	got, err := src.Get(context.Background(), "db", "3")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "pw3", got.Value)
	assert.Equal(t, "3", got.Version)
	assert.True(t, got.ActivationDate.IsZero())
	assert.Equal(t, expires, got.ExpirationDate)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLGetActive(t *testing.T) {
	tests := []struct {
		name   string
		driver string
		query  string
	}{
		{
			name:   "postgres",
			driver: "postgres",
			query: "SELECT name, version, value, activation_date, expiration_date FROM vault.secrets WHERE name = $1" +
				" AND (activation_date IS NULL OR activation_date <= $2)" +
				" AND (expiration_date IS NULL OR expiration_date > $3)" +
				" ORDER BY activation_date DESC NULLS LAST LIMIT 1",
		},
		{
			name:   "mysql",
			driver: "mysql",
			query: "SELECT name, version, value, activation_date, expiration_date FROM vault.secrets WHERE name = ?" +
				" AND (activation_date IS NULL OR activation_date <= ?)" +
				" AND (expiration_date IS NULL OR expiration_date > ?)" +
				" ORDER BY activation_date IS NULL, activation_date DESC LIMIT 1",
		},
	}

	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock, err := sqlmock.New()
			require.NoError(t, err)
			defer func() { _ = db.Close() }()

			mock.ExpectQuery(regexp.QuoteMeta(tt.query)).
				WithArgs("db", now, now).
				WillReturnRows(sqlmock.NewRows([]string{"name", "version", "value", "activation_date", "expiration_date"}).
					AddRow("db", "2", "pw2", now.Add(-time.Hour), nil))

			src, err := NewSQL("sql", map[string]interface{}{"table": "vault.secrets"}, logging.Nop(),
				WithDB(db, tt.driver), WithClock(func() time.Time { return now }))
			require.NoError(t, err)

			got, err := src.Get(context.Background(), "db", "")
			require.NoError(t, err)
			require.NotNil(t, got)
			assert.Equal(t, "2", got.Version)
			assert.Equal(t, now.Add(-time.Hour), got.ActivationDate)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestSQLGetMissingAndFailure(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	src, err := NewSQL("sql", nil, logging.Nop(), WithDB(db, "postgres"))
	require.NoError(t, err)

	mock.ExpectQuery("SELECT").WillReturnError(sql.ErrNoRows)
	got, err := src.Get(context.Background(), "db", "1")
	require.NoError(t, err)
	assert.Nil(t, got)

	mock.ExpectQuery("SELECT").WillReturnError(stderrors.New("dial tcp: connection refused"))
	_, err = src.Get(context.Background(), "db", "1")
	var userErr dserrors.UserError
	require.True(t, stderrors.As(err, &userErr))
	assert.Contains(t, userErr.Suggestion, "Unable to connect")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLConfig(t *testing.T) {
	t.Parallel()

	_, err := NewSQL("sql", map[string]interface{}{"table": "secrets; DROP TABLE x"}, logging.Nop())
	var cfgErr dserrors.ConfigError
	require.True(t, stderrors.As(err, &cfgErr))
	assert.Equal(t, "table", cfgErr.Field)

	_, err = NewSQL("sql", map[string]interface{}{"type": "oracle"}, logging.Nop())
	require.True(t, stderrors.As(err, &cfgErr))
	assert.Equal(t, "type", cfgErr.Field)

	dsn, err := buildDSN("postgres", map[string]interface{}{"host": "db", "database": "vault", "username": "edge"})
	require.NoError(t, err)
	assert.Equal(t, "host=db port=5432 dbname=vault user=edge sslmode=require", dsn)

	dsn, err = buildDSN("mysql", map[string]interface{}{"host": "db", "port": 3307, "database": "vault", "username": "edge", "password": "pw"})
	require.NoError(t, err)
	assert.Equal(t, "edge:pw@tcp(db:3307)/vault?parseTime=true", dsn)

	_, err = buildDSN("postgres", map[string]interface{}{})
	assert.Error(t, err)
}
