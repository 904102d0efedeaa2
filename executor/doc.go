// Package executor runs assembled commands against a provider.
//
// Every operation is a package level function over an *Engine and a Call:
//
//	call := executor.Call[User]{
//		Spec:    command.Query("SELECT id, name FROM users WHERE id = @id"),
//		Binding: command.Bind[User]().Add("id", 7),
//		Mapper:  executor.StructMapper[User](),
//	}
//	res, err := executor.ReaderSingle(ctx, engine, call)
//
// A call runs inside a transaction when Call.Scope is set or a scope is
// attached to ctx with transaction.WithScope; otherwise it takes a dedicated
// connection from the pool for each attempt. Transient lock failures are
// retried up to RetrySettings.Attempts extra times with a random wait below
// RetrySettings.BackoffCeiling. Failures come back as
// *dberrors.ExecutionError; in a transaction the whole scope is rolled back
// first.
//
// Readers consult the cache named by Call.Cache when a key is set and only
// store a result once it was fully read.
package executor
