/*
2021 © Postgres.ai
*/

package verification

import (
	"context"
	"time"
)

// Store keeps issued codes until they expire.
type Store interface {
	// Save stores the code under the key replacing the previous one.
	Save(ctx context.Context, key, code string, ttl time.Duration) error

	// Get returns the code stored under the key.
	Get(ctx context.Context, key string) (string, bool, error)

	// Delete removes the key and reports whether it was present.
	Delete(ctx context.Context, key string) (bool, error)

	// RecordFailure counts a wrong guess of the stored code and returns the number of failures so far.
	// The counter expires with the code and is reset by Save.
	RecordFailure(ctx context.Context, key string) (int, error)
}
