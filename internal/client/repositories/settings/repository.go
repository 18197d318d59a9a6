package settings

import "context"

// Repository is a key/value store for small client state: device
// identity, the relay session token, ignore patterns.
type Repository interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
}
