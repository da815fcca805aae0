package auth

import "context"

type contextKey string

const contextKeyAccount contextKey = "account_id"

// WithAccountID stores the authenticated account ID in ctx.
func WithAccountID(ctx context.Context, accountID string) context.Context {
	return context.WithValue(ctx, contextKeyAccount, accountID)
}

// AccountIDFromContext returns the authenticated account ID, if any.
func AccountIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(contextKeyAccount).(string)
	return id, ok && id != ""
}
