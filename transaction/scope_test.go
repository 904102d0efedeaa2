package transaction

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/goliatone/go-dbcommand/dberrors"
	"github.com/goliatone/go-dbcommand/provider"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// recordingFrame appends "commit:N" or "rollback:N" to a shared log.
type recordingFrame struct {
	level   int
	log     *[]string
	failOn  string
	nestErr error
}

func (f *recordingFrame) Commit() error {
	*f.log = append(*f.log, fmt.Sprintf("commit:%d", f.level))
	if f.failOn == "commit" {
		return errors.New("commit failed")
	}
	return nil
}

func (f *recordingFrame) Rollback() error {
	*f.log = append(*f.log, fmt.Sprintf("rollback:%d", f.level))
	if f.failOn == "rollback" {
		return errors.New("rollback failed")
	}
	return nil
}

func (f *recordingFrame) Nest(context.Context) (frame, error) {
	if f.nestErr != nil {
		return nil, f.nestErr
	}
	return &recordingFrame{level: f.level + 1, log: f.log}, nil
}

func newRecordingScope(onClose Disposition) (*Scope, *[]string) {
	log := &[]string{}
	return newScope(&recordingFrame{level: 1, log: log}, nil, onClose, zap.NewNop()), log
}

func TestScope_CloseAppliesDispositionLIFO(t *testing.T) {
	tests := []struct {
		onClose Disposition
		want    []string
	}{
		{CommitOnClose, []string{"commit:4", "commit:3", "commit:2", "commit:1"}},
		{RollbackOnClose, []string{"rollback:4", "rollback:3", "rollback:2", "rollback:1"}},
	}

	for _, tt := range tests {
		t.Run(tt.onClose.String(), func(t *testing.T) {
			s, log := newRecordingScope(tt.onClose)
			ctx := context.Background()
			for i := 0; i < 3; i++ {
				require.NoError(t, s.BeginTransaction(ctx))
			}
			assert.Equal(t, 4, s.Depth())

			require.NoError(t, s.Close())
			assert.Equal(t, tt.want, *log)
			assert.Equal(t, 0, s.Depth())

			// Second close is a no-op.
			require.NoError(t, s.Close())
			assert.Len(t, *log, 4)
		})
	}
}

func TestScope_CommitAndRollbackPopTop(t *testing.T) {
	s, log := newRecordingScope(CommitOnClose)
	ctx := context.Background()

	require.NoError(t, s.BeginTransaction(ctx))
	require.NoError(t, s.BeginTransaction(ctx))

	require.NoError(t, s.Rollback())
	require.NoError(t, s.Commit())
	require.NoError(t, s.Commit())
	assert.Equal(t, []string{"rollback:3", "commit:2", "commit:1"}, *log)

	err := s.Commit()
	assert.ErrorIs(t, err, dberrors.ErrNoTransaction)
	assert.NoError(t, s.Rollback(), "rollback on an empty stack is a no-op")
	assert.Len(t, *log, 3)

	require.NoError(t, s.Close())
	assert.Len(t, *log, 3)
}

func TestScope_RollbackAll(t *testing.T) {
	s, log := newRecordingScope(CommitOnClose)
	require.NoError(t, s.BeginTransaction(context.Background()))

	require.NoError(t, s.RollbackAll())
	assert.Equal(t, []string{"rollback:2", "rollback:1"}, *log)
	require.NoError(t, s.Close())
	assert.Len(t, *log, 2)
}

func TestScope_CloseCollectsErrors(t *testing.T) {
	log := &[]string{}
	root := &recordingFrame{level: 1, log: log, failOn: "rollback"}
	s := newScope(root, nil, RollbackOnClose, zap.NewNop())

	err := s.Close()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rollback failed")
	assert.Equal(t, 0, s.Depth())
}

func TestScope_ClosedScopeRejectsNesting(t *testing.T) {
	s, _ := newRecordingScope(RollbackOnClose)
	require.NoError(t, s.Close())
	assert.ErrorIs(t, s.BeginTransaction(context.Background()), ErrClosed)
}

func TestScope_NestFailureKeepsStack(t *testing.T) {
	log := &[]string{}
	s := newScope(&recordingFrame{level: 1, log: log, nestErr: errors.New("no savepoints")}, nil, RollbackOnClose, zap.NewNop())

	require.Error(t, s.BeginTransaction(context.Background()))
	assert.Equal(t, 1, s.Depth())
}

func TestContext(t *testing.T) {
	s, _ := newRecordingScope(RollbackOnClose)

	_, ok := FromContext(context.Background())
	assert.False(t, ok)

	ctx := WithScope(context.Background(), s)
	got, ok := FromContext(ctx)
	assert.True(t, ok)
	assert.Same(t, s, got)

	assert.Equal(t, context.Background(), WithScope(context.Background(), nil))
}

func TestRunScope(t *testing.T) {
	t.Run("success follows disposition", func(t *testing.T) {
		s, log := newRecordingScope(CommitOnClose)
		v, err := runScope(context.Background(), s, func(ctx context.Context, got *Scope) (int, error) {
			inner, ok := FromContext(ctx)
			assert.True(t, ok)
			assert.Same(t, got, inner)
			return 42, nil
		})
		require.NoError(t, err)
		assert.Equal(t, 42, v)
		assert.Equal(t, []string{"commit:1"}, *log)
	})

	t.Run("error rolls back", func(t *testing.T) {
		s, log := newRecordingScope(CommitOnClose)
		boom := errors.New("boom")
		_, err := runScope(context.Background(), s, func(ctx context.Context, s *Scope) (int, error) {
			require.NoError(t, s.BeginTransaction(ctx))
			return 0, boom
		})
		assert.ErrorIs(t, err, boom)
		assert.Equal(t, []string{"rollback:2", "rollback:1"}, *log)
	})

	t.Run("panic rolls back and propagates", func(t *testing.T) {
		s, log := newRecordingScope(CommitOnClose)
		assert.PanicsWithValue(t, "kaboom", func() {
			_, _ = runScope(context.Background(), s, func(context.Context, *Scope) (int, error) {
				panic("kaboom")
			})
		})
		assert.Equal(t, []string{"rollback:1"}, *log)
	})
}

func TestBegin_WithSavepoints(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	p := provider.FromDB(db, provider.Settings{DriverName: "sqlite3", ConnectionString: "file::memory:"})

	mock.ExpectBegin()
	mock.ExpectExec("SAVEPOINT").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("ROLLBACK TO SAVEPOINT").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	ctx := context.Background()
	s, err := Begin(ctx, p, CommitOnClose)
	require.NoError(t, err)
	require.NotNil(t, s.Conn())
	assert.NotEmpty(t, s.ID())

	require.NoError(t, s.BeginTransaction(ctx))
	require.NoError(t, s.Rollback())
	require.NoError(t, s.Close())

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRun_CommitsThroughProvider(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	p := provider.FromDB(db, provider.Settings{DriverName: "sqlite3", ConnectionString: "file::memory:"})

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE accounts").WithArgs(10).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	n, err := Run(context.Background(), p, CommitOnClose, func(ctx context.Context, s *Scope) (int64, error) {
		res, err := s.Conn().ExecContext(ctx, "UPDATE accounts SET balance = balance - ?", 10)
		if err != nil {
			return 0, err
		}
		return res.RowsAffected()
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}
