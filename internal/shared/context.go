package shared

import "context"

type ctxKey int

const ctxKeySession ctxKey = iota

// ContextWithSession attaches the Redis-backed session to the request
// context. Called by the session middleware only.
func ContextWithSession(ctx context.Context, sess *Session) context.Context {
	return context.WithValue(ctx, ctxKeySession, sess)
}

// SessionFromContext returns the session attached by the middleware, or nil
// for contexts outside the HTTP stack (background jobs, tests).
func SessionFromContext(ctx context.Context) *Session {
	if ctx == nil {
		return nil
	}
	sess, _ := ctx.Value(ctxKeySession).(*Session)
	return sess
}
