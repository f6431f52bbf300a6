package driven

import "context"

// KVStore defines the driven port for the shared key-value store holding the
// key pool's rotation state. Every instance of the service talks to the same
// store. Operations are independent; MultiSet writes all pairs atomically but
// is not a transaction across preceding reads.
type KVStore interface {
	// Get returns the value for key. found is false when the key is absent.
	Get(ctx context.Context, key string) (value string, found bool, err error)
	Set(ctx context.Context, key, value string) error
	MultiSet(ctx context.Context, pairs map[string]string) error
	Close() error
}
