package store

import (
	"context"
	"sync"
)

// MemoryRoleStore is an in-memory RoleStore. Suitable for tests and
// single-instance development deployments.
type MemoryRoleStore struct {
	mu          sync.RWMutex
	memberships map[string]Membership
}

// NewMemoryRoleStore creates an empty in-memory role store.
func NewMemoryRoleStore() *MemoryRoleStore {
	return &MemoryRoleStore{memberships: make(map[string]Membership)}
}

func memberKey(userID, workspaceID string) string {
	return userID + ":" + workspaceID
}

// Put sets the membership for a (user, workspace) pair.
func (s *MemoryRoleStore) Put(userID, workspaceID string, m Membership) {
	s.mu.Lock()
	s.memberships[memberKey(userID, workspaceID)] = m
	s.mu.Unlock()
}

// Remove deletes the membership for a (user, workspace) pair.
func (s *MemoryRoleStore) Remove(userID, workspaceID string) {
	s.mu.Lock()
	delete(s.memberships, memberKey(userID, workspaceID))
	s.mu.Unlock()
}

// LoadRoleAndOverrides returns the membership, or ErrNotAMember.
func (s *MemoryRoleStore) LoadRoleAndOverrides(_ context.Context, userID, workspaceID string) (Membership, error) {
	s.mu.RLock()
	m, ok := s.memberships[memberKey(userID, workspaceID)]
	s.mu.RUnlock()
	if !ok {
		return Membership{}, ErrNotAMember
	}
	return m, nil
}

// HealthCheck implements the readiness probe. Always healthy.
func (s *MemoryRoleStore) HealthCheck(context.Context) error {
	return nil
}
