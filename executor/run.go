package executor

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/goliatone/go-dbcommand/command"
	"github.com/goliatone/go-dbcommand/dberrors"
	"github.com/goliatone/go-dbcommand/provider"
	"github.com/goliatone/go-dbcommand/transaction"
	"github.com/hashicorp/go-multierror"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// execFunc runs an assembled command on conn.
type execFunc func(ctx context.Context, conn command.Conn, cmd *command.Command) error

// run executes one command for item with deadlock retry. It is the single
// path every engine operation takes to the database.
func run[T any](ctx context.Context, e *Engine, op string, call *Call[T], item T, exec execFunc) (err error) {
	scope := call.Scope
	if scope == nil {
		scope, _ = transaction.FromContext(ctx)
	}
	if scope != nil && call.ConnectionCreated != nil {
		return dberrors.NewConfigError("ConnectionCreated",
			"cannot be used inside a transaction; attach connection setup when the scope is created")
	}

	ctx, span := e.tracer.Start(ctx, "dbcommand."+op, trace.WithAttributes(
		attribute.String("db.system", e.provider.Settings().DriverName),
		attribute.String("db.statement", call.Spec.Text),
		attribute.String("db.command.kind", call.Spec.Kind.String()),
		attribute.Bool("db.transactional", scope != nil),
	))
	start := time.Now()
	defer func() {
		outcome := "ok"
		if err != nil {
			outcome = "error"
			span.RecordError(err)
			span.SetStatus(codes.Error, op+" failed")
		}
		e.metrics.Commands.WithLabelValues(op, outcome).Inc()
		e.metrics.Duration.WithLabelValues(op).Observe(time.Since(start).Seconds())
		span.End()
	}()

	settings := e.retry()
	retries := settings.Attempts
	if retries < 0 {
		retries = 0
	}

	var (
		attempts  int
		transient bool
		snapshot  dberrors.Snapshot
		configErr error
	)

	attempt := func() error {
		attempts++
		cmd, err := command.Assemble(call.Spec, call.Binding, item, e.provider.Dialect())
		if err != nil {
			configErr = err
			return backoff.Permanent(err)
		}
		defer cmd.Dispose()

		actx, cancel := withTimeout(ctx, cmd.Timeout)
		defer cancel()

		if scope != nil {
			err = runInScope(actx, scope, call, item, cmd, exec)
		} else {
			err = runAdHoc(actx, e, call, item, cmd, exec)
		}
		if err == nil {
			return nil
		}

		snapshot = cmd.Snapshot()
		transient = e.provider.IsTransient(err)
		if !transient {
			return backoff.Permanent(err)
		}

		e.metrics.Deadlocks.Inc()
		e.logger.Warn("transient database error",
			zap.String("op", op),
			zap.Int("attempt", attempts),
			zap.Int("max_attempts", retries+1),
			zap.Error(err),
		)
		if e.deadlocks != nil {
			e.deadlocks.LogDeadlock(ctx, snapshot, err)
		}
		return err
	}

	b := backoff.WithContext(
		backoff.WithMaxRetries(&jitterBackOff{ceiling: settings.BackoffCeiling, next: e.jitter}, uint64(retries)),
		ctx,
	)
	runErr := backoff.Retry(attempt, b)
	if runErr == nil {
		return nil
	}
	if configErr != nil {
		return configErr
	}

	execErr := &dberrors.ExecutionError{
		ConnectionString: provider.MaskPassword(e.provider.Settings().ConnectionString),
		Command:          snapshot,
		Attempts:         attempts,
		Transient:        transient,
		Err:              runErr,
	}
	if scope != nil {
		if rbErr := scope.RollbackAll(); rbErr != nil {
			execErr.Err = multierror.Append(runErr, rbErr)
		}
	}
	e.logger.Error("command failed",
		zap.String("op", op),
		zap.String("command", snapshot.Text),
		zap.Int("attempts", attempts),
		zap.Bool("transactional", scope != nil),
		zap.Error(runErr),
	)
	return execErr
}

func runInScope[T any](ctx context.Context, scope *transaction.Scope, call *Call[T], item T, cmd *command.Command, exec execFunc) error {
	conn := scope.Conn()
	if conn == nil {
		return dberrors.ErrNoTransaction
	}
	if err := exec(ctx, conn, cmd); err != nil {
		return err
	}
	return postCommand(call, cmd, item)
}

// runAdHoc runs cmd on a dedicated connection that is returned to the pool
// before the attempt ends.
func runAdHoc[T any](ctx context.Context, e *Engine, call *Call[T], item T, cmd *command.Command, exec execFunc) error {
	db, err := e.provider.Open(ctx)
	if err != nil {
		return err
	}
	conn, err := db.Conn(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	if call.ConnectionCreated != nil {
		if err := call.ConnectionCreated(ctx, conn); err != nil {
			return err
		}
	}
	if err := exec(ctx, conn, cmd); err != nil {
		return err
	}
	return postCommand(call, cmd, item)
}

func postCommand[T any](call *Call[T], cmd *command.Command, item T) error {
	if call.PostCommand != nil {
		if err := call.PostCommand(cmd); err != nil {
			return err
		}
	}
	if call.PostItemCommand != nil {
		return call.PostItemCommand(cmd, item)
	}
	return nil
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
