package session

import "context"

// ResourceResolver computes the resources a session may touch. It runs on every
// issue and refresh, so changes take effect on the next refresh.
type ResourceResolver interface {
	Resources(ctx context.Context, userID string) ([]string, error)
}

// ResolverFunc adapts a function to ResourceResolver.
type ResolverFunc func(ctx context.Context, userID string) ([]string, error)

func (f ResolverFunc) Resources(ctx context.Context, userID string) ([]string, error) {
	return f(ctx, userID)
}

// UserStores grants each user their own store, named user_<id>.
var UserStores = ResolverFunc(func(_ context.Context, userID string) ([]string, error) {
	return []string{UserStoreID(userID)}, nil
})

// UserStoreID is the sync store owned by userID.
func UserStoreID(userID string) string { return "user_" + userID }
