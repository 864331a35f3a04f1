package sources

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql" // MySQL
	_ "github.com/lib/pq"              // PostgreSQL

	dserrors "github.com/systmms/edgesecrets/internal/errors"
	"github.com/systmms/edgesecrets/internal/logging"
	"github.com/systmms/edgesecrets/pkg/secret"
)

var tableName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)

// SQL reads secrets from a table with the columns
// name, version, value, activation_date and expiration_date. Either date
// may be NULL. An unpinned lookup returns the row active now with the
// latest activation date.
type SQL struct {
	name   string
	db     *sql.DB
	driver string
	table  string
	now    func() time.Time
	logger *logging.Logger
}

// SQLOption configures a SQL source
type SQLOption func(*SQL)

// WithDB uses an existing database handle (for testing)
func WithDB(db *sql.DB, driver string) SQLOption {
	return func(s *SQL) {
		s.db = db
		s.driver = driver
	}
}

// WithClock replaces the clock used for unpinned lookups
func WithClock(now func() time.Time) SQLOption {
	return func(s *SQL) {
		s.now = now
	}
}

var driverMap = map[string]string{
	"postgresql": "postgres",
	"postgres":   "postgres",
	"mysql":      "mysql",
	"mariadb":    "mysql",
}

// NewSQL creates a SQL source
func NewSQL(name string, configMap map[string]interface{}, logger *logging.Logger, opts ...SQLOption) (*SQL, error) {
	if logger == nil {
		logger = logging.Nop()
	}
	s := &SQL{
		name:   name,
		table:  "secrets",
		now:    time.Now,
		logger: logger,
	}
	if t, ok := configMap["table"].(string); ok && t != "" {
		s.table = t
	}
	if !tableName.MatchString(s.table) {
		return nil, dserrors.ConfigError{
			Field:      "table",
			Value:      s.table,
			Message:    "invalid table name",
			Suggestion: "Use an unquoted identifier such as secrets or vault.secrets",
		}
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.db == nil {
		dbType, _ := configMap["type"].(string)
		driver, ok := driverMap[strings.ToLower(dbType)]
		if !ok {
			return nil, dserrors.ConfigError{
				Field:      "type",
				Value:      dbType,
				Message:    "unsupported database type",
				Suggestion: "Use postgres or mysql",
			}
		}
		dsn, _ := configMap["dsn"].(string)
		if dsn == "" {
			var err error
			if dsn, err = buildDSN(driver, configMap); err != nil {
				return nil, err
			}
		}
		db, err := sql.Open(driver, dsn)
		if err != nil {
			return nil, fmt.Errorf("failed to open database connection: %w", err)
		}
		s.db = db
		s.driver = driver
	}

	return s, nil
}

func buildDSN(driver string, configMap map[string]interface{}) (string, error) {
	host, _ := configMap["host"].(string)
	database, _ := configMap["database"].(string)
	username, _ := configMap["username"].(string)
	password, _ := configMap["password"].(string)
	if host == "" || database == "" || username == "" {
		return "", dserrors.ConfigError{
			Field:      "host",
			Message:    "host, database and username are required when dsn is not set",
			Suggestion: "Provide a dsn or the individual connection fields",
		}
	}
	port := fmt.Sprint(configMap["port"])
	if configMap["port"] == nil {
		port = map[string]string{"postgres": "5432", "mysql": "3306"}[driver]
	}

	switch driver {
	case "postgres":
		sslmode, _ := configMap["sslmode"].(string)
		if sslmode == "" {
			sslmode = "require"
		}
		parts := []string{
			fmt.Sprintf("host=%s", host),
			fmt.Sprintf("port=%s", port),
			fmt.Sprintf("dbname=%s", database),
			fmt.Sprintf("user=%s", username),
			fmt.Sprintf("sslmode=%s", sslmode),
		}
		if password != "" {
			parts = append(parts, fmt.Sprintf("password=%s", password))
		}
		return strings.Join(parts, " "), nil
	default:
		// MySQL DSN format: username:password@tcp(host:port)/database
		return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?parseTime=true", username, password, host, port, database), nil
	}
}

// Name returns the source name
func (s *SQL) Name() string {
	return s.name
}

// Close releases the database handle
func (s *SQL) Close() error {
	return s.db.Close()
}

// Get reads one row
func (s *SQL) Get(ctx context.Context, name, version string) (*secret.Secret, error) {
	var row *sql.Row
	if version != "" {
		row = s.db.QueryRowContext(ctx, s.versionQuery(), name, version)
	} else {
		now := s.now().UTC()
		row = s.db.QueryRowContext(ctx, s.activeQuery(), name, now, now)
	}

	var (
		rowName, rowVersion, value string
		activation, expiration     sql.NullTime
	)
	if err := row.Scan(&rowName, &rowVersion, &value, &activation, &expiration); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, dserrors.BackendError("sql", "get "+name, err)
	}

	out := secret.New(rowName, rowVersion, value)
	if activation.Valid || expiration.Valid {
		out = out.WithWindow(nullTime(activation), nullTime(expiration))
	}
	return &out, nil
}

const sqlColumns = "name, version, value, activation_date, expiration_date"

func (s *SQL) versionQuery() string {
	return fmt.Sprintf("SELECT %s FROM %s WHERE name = %s AND version = %s",
		sqlColumns, s.table, s.placeholder(1), s.placeholder(2))
}

func (s *SQL) activeQuery() string {
	order := "activation_date DESC NULLS LAST"
	if s.driver == "mysql" {
		order = "activation_date IS NULL, activation_date DESC"
	}
	return fmt.Sprintf("SELECT %s FROM %s WHERE name = %s"+
		" AND (activation_date IS NULL OR activation_date <= %s)"+
		" AND (expiration_date IS NULL OR expiration_date > %s)"+
		" ORDER BY %s LIMIT 1",
		sqlColumns, s.table, s.placeholder(1), s.placeholder(2), s.placeholder(3), order)
}

func (s *SQL) placeholder(n int) string {
	if s.driver == "postgres" {
		return fmt.Sprintf("$%d", n)
	}
	return "?"
}

func nullTime(t sql.NullTime) time.Time {
	if !t.Valid {
		return time.Time{}
	}
	return t.Time.UTC()
}
