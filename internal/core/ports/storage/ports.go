package storageports

import "context"

// KeyValueStore is the durable client-side storage used for credentials
type KeyValueStore interface {
	// Get returns the value and whether the key exists
	Get(ctx context.Context, key string) (string, bool, error)

	// Set stores the value under key
	Set(ctx context.Context, key, value string) error

	// Remove deletes the key; removing a missing key is not an error
	Remove(ctx context.Context, key string) error
}
