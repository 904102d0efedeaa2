package executor

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/goliatone/go-dbcommand/cache"
	"github.com/goliatone/go-dbcommand/command"
	"github.com/goliatone/go-dbcommand/dberrors"
	"github.com/goliatone/go-dbcommand/provider"
	"github.com/goliatone/go-dbcommand/transaction"
	"github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type user struct {
	ID   int64  `db:"id"`
	Name string `db:"name"`
}

const userQuery = "SELECT id, name FROM users WHERE id = ?"

func newTestEngine(t *testing.T, opts ...Option) (*Engine, sqlmock.Sqlmock, provider.Provider) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	p := provider.FromDB(db,
		provider.Settings{DriverName: "sqlmock", ConnectionString: "app:secret@tcp(db:3306)/app"},
		provider.WithDialect(command.MySQL),
	)
	opts = append([]Option{WithJitter(func(time.Duration) time.Duration { return 0 })}, opts...)
	return New(p, opts...), mock, p
}

func newTestCache(t *testing.T) *cache.Facade {
	t.Helper()
	store, err := cache.NewMemoryStore(cache.DefaultConfig())
	require.NoError(t, err)
	return cache.New("default", store)
}

func userCall(id int64) Call[user] {
	return Call[user]{
		Spec:    command.Query("SELECT id, name FROM users WHERE id = @id"),
		Binding: command.Bind[user]().Add("id", id),
		Mapper:  StructMapper[user](),
	}
}

func retries(n int) Option {
	return WithRetrySettings(func() RetrySettings { return RetrySettings{Attempts: n} })
}

func TestReaderSingle(t *testing.T) {
	e, mock, _ := newTestEngine(t)
	ctx := context.Background()

	mock.ExpectQuery(userQuery).WithArgs(7).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}).AddRow(int64(7), "Ada"))
	res, err := ReaderSingle(ctx, e, userCall(7))
	require.NoError(t, err)
	assert.Equal(t, user{ID: 7, Name: "Ada"}, res.Value)
	assert.Equal(t, FromDatabase, res.Source)

	mock.ExpectQuery(userQuery).WithArgs(8).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}))
	res, err = ReaderSingle(ctx, e, userCall(8))
	require.NoError(t, err)
	assert.Equal(t, user{}, res.Value)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReaderSingle_RequiresMapper(t *testing.T) {
	e, _, _ := newTestEngine(t)
	call := userCall(1)
	call.Mapper = nil
	_, err := ReaderSingle(context.Background(), e, call)
	assert.True(t, dberrors.IsConfig(err))
}

func TestReaderSingle_CacheHit(t *testing.T) {
	e, mock, _ := newTestEngine(t, WithCache(newTestCache(t)))
	ctx := context.Background()

	call := userCall(7)
	call.Cache = CacheSettings{Key: "user:7", Expiry: cache.Expire(60, 0)}

	mock.ExpectQuery(userQuery).WithArgs(7).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}).AddRow(int64(7), "Ada"))

	first, err := ReaderSingle(ctx, e, call)
	require.NoError(t, err)
	assert.False(t, first.Cached())

	second, err := ReaderSingle(ctx, e, call)
	require.NoError(t, err)
	assert.True(t, second.Cached())
	assert.Equal(t, first.Value, second.Value)
	assert.NoError(t, mock.ExpectationsWereMet())

	// Evict forces a new read.
	call.Cache.Evict = true
	mock.ExpectQuery(userQuery).WithArgs(7).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}).AddRow(int64(7), "Ada L."))
	third, err := ReaderSingle(ctx, e, call)
	require.NoError(t, err)
	assert.False(t, third.Cached())
	assert.Equal(t, "Ada L.", third.Value.Name)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReaderList(t *testing.T) {
	f := newTestCache(t)
	e, mock, _ := newTestEngine(t, WithCache(f))
	ctx := context.Background()

	call := Call[user]{
		Spec:   command.Query("SELECT id, name FROM users"),
		Mapper: StructMapper[user](),
		Cache:  CacheSettings{Key: "users"},
	}

	mock.ExpectQuery("SELECT id, name FROM users").WillReturnError(errors.New("connection reset"))
	_, err := ReaderList(ctx, e, call)
	require.Error(t, err)
	assert.True(t, dberrors.IsExecution(err))

	_, ok, err := cache.Lookup[[]user](ctx, f, "users")
	require.NoError(t, err)
	assert.False(t, ok, "a failed read must not be cached")

	mock.ExpectQuery("SELECT id, name FROM users").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}).AddRow(int64(1), "Ada").AddRow(int64(2), "Grace"))
	res, err := ReaderList(ctx, e, call)
	require.NoError(t, err)
	assert.Equal(t, []user{{1, "Ada"}, {2, "Grace"}}, res.Value)

	call.Cache = CacheSettings{}
	mock.ExpectQuery("SELECT id, name FROM users").WillReturnRows(sqlmock.NewRows([]string{"id", "name"}))
	res, err = ReaderList(ctx, e, call)
	require.NoError(t, err)
	assert.NotNil(t, res.Value)
	assert.Empty(t, res.Value)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReaderDictionary_LastRowWins(t *testing.T) {
	e, mock, _ := newTestEngine(t)

	call := Call[user]{
		Spec:   command.Query("SELECT id, name FROM users"),
		Mapper: StructMapper[user](),
		DictionaryKey: func(r Record) (any, error) {
			v, _ := r.Value("ID")
			return v, nil
		},
	}
	mock.ExpectQuery("SELECT id, name FROM users").WillReturnRows(
		sqlmock.NewRows([]string{"id", "name"}).
			AddRow(int64(1), "a").
			AddRow(int64(2), "b").
			AddRow(int64(1), "c"),
	)

	res, err := ReaderDictionary[int](context.Background(), e, call)
	require.NoError(t, err)
	assert.Equal(t, map[int]user{1: {1, "c"}, 2: {2, "b"}}, res.Value)

	call.DictionaryKey = nil
	_, err = ReaderDictionary[int](context.Background(), e, call)
	assert.True(t, dberrors.IsConfig(err))
}

func TestReaderTable(t *testing.T) {
	f := newTestCache(t)
	e, mock, _ := newTestEngine(t, WithCache(f))
	ctx := context.Background()

	existing := &TableSet{}
	existing.Add(&Table{Name: "Seed", Columns: []string{"x"}, Rows: [][]any{{int64(1)}}})

	call := Call[TableSet]{
		Spec:  command.Query("SELECT id, name FROM users"),
		Cache: CacheSettings{Key: "users-table"},
	}
	mock.ExpectQuery("SELECT id, name FROM users").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}).AddRow(int64(1), "Ada"))

	res, err := ReaderTable(ctx, e, call, existing, "Users")
	require.NoError(t, err)
	require.Same(t, existing, res.Value)
	require.Equal(t, 2, existing.Len())
	users, ok := existing.Table("users")
	require.True(t, ok)
	assert.Equal(t, []string{"id", "name"}, users.Columns)
	assert.Equal(t, "Ada", users.Record(0).Map()["name"])

	// A hit merges again without touching the database.
	again, err := ReaderTable(ctx, e, call, nil, "Users")
	require.NoError(t, err)
	assert.True(t, again.Cached())
	assert.Equal(t, 1, again.Value.Len())

	// No result set leaves the existing set unchanged.
	mock.ExpectQuery("DELETE FROM audit").WillReturnRows(sqlmock.NewRows(nil))
	empty, err := ReaderTable(ctx, e, Call[TableSet]{Spec: command.Query("DELETE FROM audit")}, existing, "Audit")
	require.NoError(t, err)
	assert.Equal(t, 2, empty.Value.Len())

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReaderTable_RejectsMisuse(t *testing.T) {
	e, mock, _ := newTestEngine(t)
	ctx := context.Background()

	_, err := ReaderTable(ctx, e, userCall(1), nil, "Users")
	assert.True(t, dberrors.IsConfig(err), "got %v", err)

	_, err = ReaderTable(ctx, e, Call[TableSet]{Spec: command.Query("SELECT 1")}, nil, "")
	assert.True(t, dberrors.IsConfig(err), "got %v", err)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeadlockRetry_Succeeds(t *testing.T) {
	var logged int
	m := NewMetrics(prometheus.NewRegistry())
	e, mock, _ := newTestEngine(t,
		retries(3),
		WithMetrics(m),
		WithDeadlockLogger(DeadlockLoggerFunc(func(_ context.Context, cmd dberrors.Snapshot, err error) {
			logged++
			assert.Equal(t, "UPDATE stock SET qty = qty - 1 WHERE sku = ?", cmd.Text)
		})),
	)

	call := Call[string]{
		Spec:    command.Query("UPDATE stock SET qty = qty - 1 WHERE sku = @sku"),
		Binding: command.Bind[string]().AddFunc("sku", func(s string) any { return s }),
	}
	deadlock := &pq.Error{Code: "40P01", Message: "deadlock detected"}
	mock.ExpectExec("UPDATE stock SET qty = qty - 1 WHERE sku = ?").WithArgs("A-1").WillReturnError(deadlock)
	mock.ExpectExec("UPDATE stock SET qty = qty - 1 WHERE sku = ?").WithArgs("A-1").WillReturnError(deadlock)
	mock.ExpectExec("UPDATE stock SET qty = qty - 1 WHERE sku = ?").WithArgs("A-1").WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, ExecuteItem(context.Background(), e, call, "A-1"))
	assert.Equal(t, 2, logged)
	assert.Equal(t, 2.0, testutil.ToFloat64(m.Deadlocks))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Commands.WithLabelValues("execute", "ok")))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeadlockRetry_ExhaustedRollsBack(t *testing.T) {
	var logged int
	e, mock, p := newTestEngine(t,
		retries(1),
		WithDeadlockLogger(DeadlockLoggerFunc(func(context.Context, dberrors.Snapshot, error) { logged++ })),
	)
	ctx := context.Background()

	mock.ExpectBegin()
	scope, err := transaction.Begin(ctx, p, transaction.CommitOnClose)
	require.NoError(t, err)

	deadlock := &pq.Error{Code: "40P01", Message: "deadlock detected"}
	mock.ExpectExec("DELETE FROM locks WHERE id = ?").WithArgs(3).WillReturnError(deadlock)
	mock.ExpectExec("DELETE FROM locks WHERE id = ?").WithArgs(3).WillReturnError(deadlock)
	mock.ExpectRollback()

	call := Call[any]{
		Spec:    command.Query("DELETE FROM locks WHERE id = @id"),
		Binding: command.Bind[any]().Add("id", 3),
	}
	err = Execute(transaction.WithScope(ctx, scope), e, call)
	require.Error(t, err)

	var execErr *dberrors.ExecutionError
	require.ErrorAs(t, err, &execErr)
	assert.True(t, execErr.Transient)
	assert.Equal(t, 2, execErr.Attempts)
	assert.Equal(t, "app:*****@tcp(db:3306)/app", execErr.ConnectionString)
	assert.Equal(t, "DELETE FROM locks WHERE id = ?", execErr.Command.Text)
	require.Len(t, execErr.Command.Parameters, 1)
	assert.Equal(t, 3, execErr.Command.Parameters[0].Value)
	assert.ErrorIs(t, err, deadlock)
	assert.Equal(t, 2, logged)

	assert.Equal(t, 0, scope.Depth())
	require.NoError(t, scope.Close())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNonTransientIsNotRetried(t *testing.T) {
	e, mock, _ := newTestEngine(t, retries(5))

	mock.ExpectExec("DELETE FROM t").WillReturnError(&pq.Error{Code: "23503"})
	err := Execute(context.Background(), e, Call[any]{Spec: command.Query("DELETE FROM t")})

	var execErr *dberrors.ExecutionError
	require.ErrorAs(t, err, &execErr)
	assert.False(t, execErr.Transient)
	assert.Equal(t, 1, execErr.Attempts)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestConnectionHookInTransactionIsConfigError(t *testing.T) {
	e, mock, p := newTestEngine(t)
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectRollback()
	scope, err := transaction.Begin(ctx, p, transaction.RollbackOnClose)
	require.NoError(t, err)
	defer scope.Close()

	call := Call[any]{
		Spec:              command.Query("SELECT 1"),
		Scope:             scope,
		ConnectionCreated: func(context.Context, *sql.Conn) error { return nil },
	}
	_, err = Scalar(ctx, e, call)
	assert.True(t, dberrors.IsConfig(err))
	assert.False(t, dberrors.IsExecution(err))
}

func TestConnectionHookRunsAdHoc(t *testing.T) {
	e, mock, _ := newTestEngine(t)

	var hooked, posted bool
	call := Call[any]{
		Spec: command.Query("SELECT COUNT(*) FROM users"),
		ConnectionCreated: func(ctx context.Context, conn *sql.Conn) error {
			hooked = true
			return nil
		},
		PostCommand: func(cmd *command.Command) error {
			posted = true
			assert.False(t, cmd.Disposed())
			return nil
		},
	}
	mock.ExpectQuery("SELECT COUNT(*) FROM users").WillReturnRows(sqlmock.NewRows([]string{"n"}).AddRow(int64(3)))

	n, err := ScalarAs[int](context.Background(), e, call)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.True(t, hooked)
	assert.True(t, posted)
}

func TestScalar(t *testing.T) {
	e, mock, _ := newTestEngine(t)
	ctx := context.Background()
	call := Call[any]{Spec: command.Query("SELECT name FROM users LIMIT 1")}

	mock.ExpectQuery("SELECT name FROM users LIMIT 1").WillReturnRows(sqlmock.NewRows([]string{"name"}))
	v, err := Scalar(ctx, e, call)
	require.NoError(t, err)
	assert.Nil(t, v)

	mock.ExpectQuery("SELECT name FROM users LIMIT 1").WillReturnRows(sqlmock.NewRows([]string{"name"}).AddRow(nil))
	s, err := ScalarAs[string](ctx, e, call)
	require.NoError(t, err)
	assert.Equal(t, "", s)

	mock.ExpectQuery("SELECT name FROM users LIMIT 1").WillReturnRows(sqlmock.NewRows([]string{"name"}).AddRow("Ada"))
	_, err = ScalarAs[int](ctx, e, call)
	assert.True(t, dberrors.IsConversion(err))

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestScalarOr(t *testing.T) {
	e, mock, _ := newTestEngine(t)
	ctx := context.Background()
	const q = "SELECT credit FROM accounts WHERE id = ?"
	call := Call[int64]{
		Spec:    command.Query("SELECT credit FROM accounts WHERE id = @id"),
		Binding: command.Bind[int64]().AddFunc("id", func(id int64) any { return id }),
	}

	mock.ExpectQuery(q).WithArgs(1).WillReturnRows(sqlmock.NewRows([]string{"credit"}).AddRow(nil))
	got, err := ScalarItemOr(ctx, e, call, 1, 250.0)
	require.NoError(t, err)
	assert.Equal(t, 250.0, got)

	mock.ExpectQuery(q).WithArgs(2).WillReturnRows(sqlmock.NewRows([]string{"credit"}))
	got, err = ScalarItemOr(ctx, e, call, 2, 250.0)
	require.NoError(t, err)
	assert.Equal(t, 250.0, got)

	mock.ExpectQuery(q).WithArgs(3).WillReturnRows(sqlmock.NewRows([]string{"credit"}).AddRow([]byte("12.50")))
	got, err = ScalarItemOr(ctx, e, call, 3, 250.0)
	require.NoError(t, err)
	assert.Equal(t, 12.5, got)

	mock.ExpectQuery(q).WithArgs(4).WillReturnRows(sqlmock.NewRows([]string{"credit"}).AddRow("lots"))
	_, err = ScalarItemOr(ctx, e, call, 4, 250.0)
	assert.True(t, dberrors.IsConversion(err))

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestExecuteList_StopsAtFirstFailure(t *testing.T) {
	e, mock, _ := newTestEngine(t)

	call := Call[user]{
		Spec: command.Query("INSERT INTO users (id, name) VALUES (@id, @name)"),
		Binding: command.Bind[user]().
			AddFunc("id", func(u user) any { return u.ID }).
			AddFunc("name", func(u user) any { return u.Name }),
	}
	items := []user{{1, "Ada"}, {2, "Grace"}, {3, "Edsger"}}

	const insert = "INSERT INTO users (id, name) VALUES (?, ?)"
	mock.ExpectExec(insert).WithArgs(1, "Ada").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(insert).WithArgs(2, "Grace").WillReturnError(errors.New("duplicate key"))

	err := ExecuteList(context.Background(), e, call, items)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "item 1")
	assert.True(t, dberrors.IsExecution(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCacheRequiresRegisteredFacade(t *testing.T) {
	e, _, _ := newTestEngine(t)
	call := userCall(1)
	call.Cache = CacheSettings{Key: "user:1"}

	_, err := ReaderSingle(context.Background(), e, call)
	assert.True(t, dberrors.IsConfig(err))
}
