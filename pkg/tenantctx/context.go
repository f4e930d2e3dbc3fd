package tenantctx

import "context"

// SchoolContextKey is the request context key for the active school (tenant) ID.
type SchoolContextKey struct{}

// UserContextKey is the request context key for the authenticated user ID.
type UserContextKey struct{}

// WithSchoolID stores the school ID in the context.
func WithSchoolID(ctx context.Context, schoolID int64) context.Context {
	return context.WithValue(ctx, SchoolContextKey{}, schoolID)
}

// SchoolIDFromContext returns the school ID from context, if set.
func SchoolIDFromContext(ctx context.Context) (int64, bool) {
	if ctx == nil {
		return 0, false
	}
	id, ok := ctx.Value(SchoolContextKey{}).(int64)
	if !ok || id == 0 {
		return 0, false
	}
	return id, true
}

// WithUserID stores the caller's user ID in the context.
func WithUserID(ctx context.Context, userID int64) context.Context {
	return context.WithValue(ctx, UserContextKey{}, userID)
}

// UserIDFromContext returns the caller's user ID from context, if set.
func UserIDFromContext(ctx context.Context) (int64, bool) {
	if ctx == nil {
		return 0, false
	}
	id, ok := ctx.Value(UserContextKey{}).(int64)
	if !ok || id == 0 {
		return 0, false
	}
	return id, true
}
