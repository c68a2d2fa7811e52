package mcp

import "context"

type userKey struct{}

// WithUserID attaches the authenticated user to ctx.  Tool implementations
// read it back with UserIDFrom; they never see the echo context.
func WithUserID(ctx context.Context, userID uint64) context.Context {
	return context.WithValue(ctx, userKey{}, userID)
}

// UserIDFrom returns the user attached by WithUserID.
func UserIDFrom(ctx context.Context) (uint64, bool) {
	id, ok := ctx.Value(userKey{}).(uint64)
	return id, ok && id != 0
}
