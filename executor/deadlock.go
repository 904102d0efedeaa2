package executor

import (
	"context"
	"math/rand"
	"time"

	"github.com/goliatone/go-dbcommand/dberrors"
	"go.uber.org/zap"
)

// DeadlockLogger is told about every transient failure before it is retried
// or reported.
type DeadlockLogger interface {
	LogDeadlock(ctx context.Context, cmd dberrors.Snapshot, err error)
}

// DeadlockLoggerFunc adapts a function to DeadlockLogger.
type DeadlockLoggerFunc func(ctx context.Context, cmd dberrors.Snapshot, err error)

// LogDeadlock calls f.
func (f DeadlockLoggerFunc) LogDeadlock(ctx context.Context, cmd dberrors.Snapshot, err error) {
	f(ctx, cmd, err)
}

type zapDeadlockLogger struct {
	logger *zap.Logger
}

// NewZapDeadlockLogger writes deadlocks as warnings to logger.
func NewZapDeadlockLogger(logger *zap.Logger) DeadlockLogger {
	return zapDeadlockLogger{logger: logger}
}

func (l zapDeadlockLogger) LogDeadlock(_ context.Context, cmd dberrors.Snapshot, err error) {
	l.logger.Warn("deadlock detected",
		zap.String("command", cmd.Text),
		zap.String("kind", cmd.Kind),
		zap.Int("parameters", len(cmd.Parameters)),
		zap.Error(err),
	)
}

// RetrySettings controls deadlock retry. Zero attempts fails on the first
// transient error.
type RetrySettings struct {
	Attempts       int
	BackoffCeiling time.Duration
}

// jitterBackOff waits a random duration in [0, ceiling) between attempts.
// It satisfies backoff.BackOff.
type jitterBackOff struct {
	ceiling time.Duration
	next    func(time.Duration) time.Duration
}

func (b *jitterBackOff) NextBackOff() time.Duration {
	if b.ceiling <= 0 {
		return 0
	}
	return b.next(b.ceiling)
}

func (b *jitterBackOff) Reset() {}

func randomJitter(ceiling time.Duration) time.Duration {
	return time.Duration(rand.Int63n(int64(ceiling)))
}
