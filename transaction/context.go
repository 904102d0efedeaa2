package transaction

import "context"

type scopeContextKey struct{}

// WithScope attaches s to ctx as the ambient transaction for engine calls.
func WithScope(ctx context.Context, s *Scope) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	if s == nil {
		return ctx
	}
	return context.WithValue(ctx, scopeContextKey{}, s)
}

// FromContext returns the ambient scope, if any.
func FromContext(ctx context.Context) (*Scope, bool) {
	if ctx == nil {
		return nil, false
	}
	s, ok := ctx.Value(scopeContextKey{}).(*Scope)
	return s, ok && s != nil
}
