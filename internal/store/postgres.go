package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PgRoleStore is a PostgreSQL-backed RoleStore using pgx/v5.
//
// Schema:
//
//	workspace_members(user_id, workspace_id, role, team_id)
//	member_overrides(user_id, workspace_id, team_overrides jsonb,
//	                 explicit_grants jsonb, explicit_denials jsonb)
type PgRoleStore struct {
	pool *pgxpool.Pool
}

// NewPgRoleStore creates a new PostgreSQL role store.
func NewPgRoleStore(pool *pgxpool.Pool) *PgRoleStore {
	return &PgRoleStore{pool: pool}
}

// grantJSON mirrors GrantRecord for the jsonb override columns.
type grantJSON struct {
	Resource   string          `json:"resource"`
	Action     string          `json:"action"`
	Scope      string          `json:"scope"`
	Fields     []string        `json:"fields"`
	Conditions []conditionJSON `json:"conditions,omitempty"`
}

type conditionJSON struct {
	Attribute string   `json:"attribute"`
	Operator  string   `json:"operator"`
	Values    []string `json:"values"`
}

type denialJSON struct {
	Resource string `json:"resource"`
	Action   string `json:"action"`
}

// LoadRoleAndOverrides fetches the member's role and overrides, scoped to the
// workspace. Returns ErrNotAMember when no membership row exists.
func (s *PgRoleStore) LoadRoleAndOverrides(ctx context.Context, userID, workspaceID string) (Membership, error) {
	var m Membership

	err := s.pool.QueryRow(ctx, `
		SELECT role, COALESCE(team_id, '')
		FROM workspace_members
		WHERE user_id = $1 AND workspace_id = $2`,
		userID, workspaceID,
	).Scan(&m.Role, &m.TeamID)
	if err == pgx.ErrNoRows {
		return Membership{}, ErrNotAMember
	}
	if err != nil {
		return Membership{}, fmt.Errorf("query workspace member: %w", err)
	}

	var teamJSON, grantsJSON, denialsJSON []byte
	err = s.pool.QueryRow(ctx, `
		SELECT COALESCE(team_overrides, '[]'),
		       COALESCE(explicit_grants, '[]'),
		       COALESCE(explicit_denials, '[]')
		FROM member_overrides
		WHERE user_id = $1 AND workspace_id = $2`,
		userID, workspaceID,
	).Scan(&teamJSON, &grantsJSON, &denialsJSON)
	if err == pgx.ErrNoRows {
		// No overrides row is the common case.
		return m, nil
	}
	if err != nil {
		return Membership{}, fmt.Errorf("query member overrides: %w", err)
	}

	if m.TeamOverrides, err = decodeGrants(teamJSON); err != nil {
		return Membership{}, fmt.Errorf("decode team overrides: %w", err)
	}
	if m.ExplicitGrants, err = decodeGrants(grantsJSON); err != nil {
		return Membership{}, fmt.Errorf("decode explicit grants: %w", err)
	}
	if m.ExplicitDenials, err = decodeDenials(denialsJSON); err != nil {
		return Membership{}, fmt.Errorf("decode explicit denials: %w", err)
	}

	return m, nil
}

// HealthCheck verifies the connection pool is reachable.
func (s *PgRoleStore) HealthCheck(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func decodeGrants(raw []byte) ([]GrantRecord, error) {
	var rows []grantJSON
	if err := json.Unmarshal(raw, &rows); err != nil {
		return nil, err
	}
	out := make([]GrantRecord, 0, len(rows))
	for _, r := range rows {
		rec := GrantRecord{
			Resource: r.Resource,
			Action:   r.Action,
			Scope:    r.Scope,
			Fields:   r.Fields,
		}
		for _, c := range r.Conditions {
			rec.Conditions = append(rec.Conditions, ConditionRecord(c))
		}
		out = append(out, rec)
	}
	return out, nil
}

func decodeDenials(raw []byte) ([]DenialRecord, error) {
	var rows []denialJSON
	if err := json.Unmarshal(raw, &rows); err != nil {
		return nil, err
	}
	out := make([]DenialRecord, 0, len(rows))
	for _, r := range rows {
		out = append(out, DenialRecord(r))
	}
	return out, nil
}
