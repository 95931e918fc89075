package storage

import (
	"context"
	"strings"
)

// Owner returns the company a storage path belongs to: its first segment.
func Owner(p string) string {
	owner, _, _ := strings.Cut(strings.TrimPrefix(p, "/"), "/")
	return owner
}

type ownerKey struct{}

// WithOwner scopes ctx to the files of companyID. Readers that honour it
// refuse paths owned by another company.
func WithOwner(ctx context.Context, companyID string) context.Context {
	return context.WithValue(ctx, ownerKey{}, companyID)
}

// OwnerFrom returns the company ctx was scoped to with WithOwner.
func OwnerFrom(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(ownerKey{}).(string)
	return id, ok
}
