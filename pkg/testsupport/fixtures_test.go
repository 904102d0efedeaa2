package testsupport

import (
	"context"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/goliatone/go-dbcommand/command"
)

func TestLoadFixture(t *testing.T) {
	path := filepath.Join(t.TempDir(), "schema.sql")
	want := []byte("CREATE TABLE t (id INTEGER);")
	if err := os.WriteFile(path, want, 0o644); err != nil {
		t.Fatalf("failed to create fixture: %v", err)
	}

	if got := LoadFixture(t, path); string(got) != string(want) {
		t.Errorf("expected %q, got %q", want, got)
	}
}

func TestFixturePath(t *testing.T) {
	if got, want := FixturePath("schema.sql"), filepath.Join("testdata", "schema.sql"); got != want {
		t.Errorf("expected %q, got %q", want, got)
	}
}

func TestSplitStatements(t *testing.T) {
	script := `
-- users
CREATE TABLE users (
    id INTEGER PRIMARY KEY,
    name TEXT
);

INSERT INTO users (id, name) VALUES (1, 'Ada');
INSERT INTO users (id, name) VALUES (2, 'Grace')
`
	got := SplitStatements(script)
	want := []string{
		"CREATE TABLE users (\n    id INTEGER PRIMARY KEY,\n    name TEXT\n)",
		"INSERT INTO users (id, name) VALUES (1, 'Ada')",
		"INSERT INTO users (id, name) VALUES (2, 'Grace')",
	}
	Equal(t, want, got)
}

func TestMockProvider(t *testing.T) {
	p, mock := MockProvider(t, command.Postgres)
	if p.Dialect().Name != command.Postgres.Name {
		t.Fatalf("expected postgres dialect, got %s", p.Dialect().Name)
	}

	mock.ExpectQuery("SELECT id, name FROM users").
		WillReturnRows(Rows([]string{"id", "name"}, []any{1, "Ada"}, []any{2, nil}))

	db, err := p.Open(context.Background())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	rows, err := db.Query("SELECT id, name FROM users")
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	defer rows.Close()

	var got [][]any
	for rows.Next() {
		var id, name any
		if err := rows.Scan(&id, &name); err != nil {
			t.Fatalf("scan: %v", err)
		}
		got = append(got, []any{id, name})
	}
	want := [][]any{{int64(1), "Ada"}, {int64(2), nil}}
	if !reflect.DeepEqual(want, got) {
		t.Errorf("expected %v, got %v", want, got)
	}
}

func TestSQLiteDSN(t *testing.T) {
	a, b := SQLiteDSN(t), SQLiteDSN(t)
	if a == b {
		t.Errorf("expected distinct databases, got %q twice", a)
	}
}
