package testsupport

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/goliatone/go-dbcommand/command"
	"github.com/goliatone/go-dbcommand/provider"
	"github.com/google/go-cmp/cmp"
)

// LoadFixture loads test data from a fixture file.
// The path is relative to the test package directory.
func LoadFixture(t *testing.T, path string) []byte {
	t.Helper()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to load fixture from %s: %v", path, err)
	}
	return data
}

// FixturePath constructs a path to a fixture file relative to the testdata directory.
func FixturePath(filename string) string {
	return filepath.Join("testdata", filename)
}

// SplitStatements splits a SQL script on semicolons at the end of a line.
// Blank statements and lines starting with -- are dropped.
func SplitStatements(script string) []string {
	var (
		out []string
		cur strings.Builder
	)
	for _, line := range strings.Split(script, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "--") {
			continue
		}
		cur.WriteString(line)
		cur.WriteString("\n")
		if strings.HasSuffix(trimmed, ";") {
			if stmt := strings.TrimSuffix(strings.TrimSpace(cur.String()), ";"); stmt != "" {
				out = append(out, stmt)
			}
			cur.Reset()
		}
	}
	if rest := strings.TrimSpace(cur.String()); rest != "" {
		out = append(out, rest)
	}
	return out
}

// Seed runs every statement of the fixture script at path against db.
func Seed(t *testing.T, db *sql.DB, path string) {
	t.Helper()

	for _, stmt := range SplitStatements(string(LoadFixture(t, path))) {
		if _, err := db.ExecContext(context.Background(), stmt); err != nil {
			t.Fatalf("seed %s: %v\n%s", path, err, stmt)
		}
	}
}

// SQLiteDSN returns a connection string for a fresh database file that is
// removed with the test's temp dir.
func SQLiteDSN(t *testing.T) string {
	t.Helper()
	return "file:" + filepath.Join(t.TempDir(), "test.db") + "?_busy_timeout=5000"
}

// MockDB returns a sqlmock pool that matches query text exactly. The
// expectations are verified when the test ends.
func MockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	if err != nil {
		t.Fatalf("failed to open sqlmock: %v", err)
	}
	t.Cleanup(func() {
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("unmet sqlmock expectations: %v", err)
		}
		db.Close()
	})
	return db, mock
}

// MockProvider wraps MockDB in a provider speaking dialect.
func MockProvider(t *testing.T, dialect command.Dialect) (*provider.SQLProvider, sqlmock.Sqlmock) {
	t.Helper()

	db, mock := MockDB(t)
	p := provider.FromDB(db,
		provider.Settings{DriverName: "sqlmock", ConnectionString: "sqlmock"},
		provider.WithDialect(dialect),
	)
	return p, mock
}

// Rows builds sqlmock rows from columns and row values.
func Rows(columns []string, rows ...[]any) *sqlmock.Rows {
	r := sqlmock.NewRows(columns)
	for _, row := range rows {
		r.AddRow(driverValues(row)...)
	}
	return r
}

// driverValues widens int to int64, the type drivers hand back.
func driverValues(row []any) []driver.Value {
	values := make([]driver.Value, len(row))
	for i, v := range row {
		if n, ok := v.(int); ok {
			v = int64(n)
		}
		values[i] = v
	}
	return values
}

// Equal fails the test with a go-cmp diff when want and got differ.
func Equal(t *testing.T, want, got any, opts ...cmp.Option) {
	t.Helper()

	if diff := cmp.Diff(want, got, opts...); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
}
