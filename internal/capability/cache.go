// Package capability derives, caches, and invalidates per-(user, workspace)
// capability sets. The cache is shared across request handlers so that a
// permission downgrade is observed by every concurrent request, not just the
// one that triggered it.
package capability

import (
	"context"
	"time"

	"github.com/workboard/authgate/model"
)

// Cache is the shared capability cache. Entries are keyed by
// (userID, workspaceID); no entry is ever readable across a different
// workspace key.
//
// Each key carries a separate monotonic version counter with no TTL. An
// entry is current only while its stamped Version equals the counter; Bump
// therefore invalidates without touching the entry itself (write-through,
// not write-back).
type Cache interface {
	// Get returns the cached set for the key, or nil when absent/expired.
	Get(ctx context.Context, userID, workspaceID string) (*model.CapabilitySet, error)

	// Set stores the derived set under its own (UserID, WorkspaceID) key
	// with the given TTL.
	Set(ctx context.Context, set *model.CapabilitySet, ttl time.Duration) error

	// Bump monotonically increments the key's version counter and returns
	// the new value.
	Bump(ctx context.Context, userID, workspaceID string) (int64, error)

	// Version returns the key's current version counter (0 if never bumped).
	Version(ctx context.Context, userID, workspaceID string) (int64, error)
}
