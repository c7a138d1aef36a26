package capability

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/workboard/authgate/internal/store"
	"github.com/workboard/authgate/model"
)

// ErrStoreUnavailable marks cache or store infrastructure failures so callers
// can surface 503 instead of a generic internal error.
var ErrStoreUnavailable = errors.New("capability store unavailable")

const (
	defaultTTL          = 5 * time.Minute
	defaultStoreTimeout = 2 * time.Second
)

// Resolver is the read-through layer over the shared cache: cached entries
// are served only while their stamped version matches the key's version
// counter, otherwise the set is re-derived from the authoritative role store.
type Resolver struct {
	cache        Cache
	roles        store.RoleStore
	policy       RolePolicy
	ttl          time.Duration
	storeTimeout time.Duration
	logger       *zap.Logger

	onHit        func()
	onMiss       func()
	onInvalidate func()
	onStore      func(status string, d time.Duration)
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithTTL sets the cache entry TTL.
func WithTTL(ttl time.Duration) Option {
	return func(r *Resolver) { r.ttl = ttl }
}

// WithStoreTimeout bounds authoritative store lookups on a cache miss.
func WithStoreTimeout(d time.Duration) Option {
	return func(r *Resolver) { r.storeTimeout = d }
}

// WithLogger sets the resolver logger.
func WithLogger(l *zap.Logger) Option {
	return func(r *Resolver) { r.logger = l }
}

// WithCacheHooks registers callbacks fired on cache hits and misses, used to
// feed metrics without coupling this package to the registry.
func WithCacheHooks(onHit, onMiss func()) Option {
	return func(r *Resolver) {
		r.onHit = onHit
		r.onMiss = onMiss
	}
}

// WithInvalidateHook registers a callback fired on every successful version
// bump.
func WithInvalidateHook(fn func()) Option {
	return func(r *Resolver) { r.onInvalidate = fn }
}

// WithStoreObserver registers a callback fired after every authoritative
// store load with its outcome and duration.
func WithStoreObserver(fn func(status string, d time.Duration)) Option {
	return func(r *Resolver) { r.onStore = fn }
}

// NewResolver creates a read-through capability resolver.
func NewResolver(cache Cache, roles store.RoleStore, policy RolePolicy, opts ...Option) *Resolver {
	r := &Resolver{
		cache:        cache,
		roles:        roles,
		policy:       policy,
		ttl:          defaultTTL,
		storeTimeout: defaultStoreTimeout,
		logger:       zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Get returns the current capability set for the (user, workspace) pair.
//
// The version counter is read first; a cached entry is a hit only when its
// stamped Version equals the counter, so a Bump anywhere in the fleet makes
// every process re-derive on its next read. Returns store.ErrNotAMember when
// the user has no membership in the workspace.
func (r *Resolver) Get(ctx context.Context, userID, workspaceID string) (*model.CapabilitySet, error) {
	ver, err := r.cache.Version(ctx, userID, workspaceID)
	if err != nil {
		return nil, fmt.Errorf("%w: read version: %v", ErrStoreUnavailable, err)
	}

	cached, err := r.cache.Get(ctx, userID, workspaceID)
	if err != nil {
		// A broken cache read falls through to the authoritative store
		// rather than failing the request.
		r.logger.Warn("capability cache read failed",
			zap.String("user_id", userID),
			zap.String("workspace_id", workspaceID),
			zap.Error(err))
		cached = nil
	}
	if cached != nil && cached.Version == ver {
		if r.onHit != nil {
			r.onHit()
		}
		return cached, nil
	}
	if r.onMiss != nil {
		r.onMiss()
	}

	return r.populate(ctx, userID, workspaceID, ver)
}

// populate derives the set from the authoritative store and writes it back.
// Concurrent populations for the same key are benign: derivation is pure and
// each writer stamps the version it read, so the last write is as correct as
// the first.
func (r *Resolver) populate(ctx context.Context, userID, workspaceID string, ver int64) (*model.CapabilitySet, error) {
	storeCtx, cancel := context.WithTimeout(ctx, r.storeTimeout)
	defer cancel()

	start := time.Now()
	membership, err := r.roles.LoadRoleAndOverrides(storeCtx, userID, workspaceID)
	if r.onStore != nil {
		// A NotAMember answer is still a working store.
		status := "ok"
		if err != nil && !errors.Is(err, store.ErrNotAMember) {
			status = "error"
		}
		r.onStore(status, time.Since(start))
	}
	if err != nil {
		if errors.Is(err, store.ErrNotAMember) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: load membership: %v", ErrStoreUnavailable, err)
	}

	set, err := Derive(membership, userID, workspaceID, ver, r.policy)
	if err != nil {
		// Malformed membership data fails closed.
		return nil, fmt.Errorf("derive capability set: %w", err)
	}

	if err := r.cache.Set(ctx, set, r.ttl); err != nil {
		// Best effort: the derived set is still authoritative for this
		// request even when the write-back fails.
		r.logger.Warn("capability cache write failed",
			zap.String("user_id", userID),
			zap.String("workspace_id", workspaceID),
			zap.Error(err))
	}
	return set, nil
}

// Invalidate bumps the key's version counter so every cached copy of the set,
// in this process and every other, is stale from this moment on. Called
// synchronously by role mutation paths before they acknowledge the change.
func (r *Resolver) Invalidate(ctx context.Context, userID, workspaceID string) (int64, error) {
	v, err := r.cache.Bump(ctx, userID, workspaceID)
	if err != nil {
		return 0, fmt.Errorf("%w: bump version: %v", ErrStoreUnavailable, err)
	}
	if r.onInvalidate != nil {
		r.onInvalidate()
	}
	r.logger.Info("capability set invalidated",
		zap.String("user_id", userID),
		zap.String("workspace_id", workspaceID),
		zap.Int64("version", v))
	return v, nil
}
