package capabilities

import "context"

// Store is the read surface the engine needs from the persistence layer.
// storage/postgres and storage/memory both satisfy it.
type Store interface {
	// ActiveEntitlementsByUser returns every entitlement for the user with
	// status "active".
	ActiveEntitlementsByUser(ctx context.Context, userID string) ([]Entitlement, error)

	// ActiveEntitlementByTeam returns the team's active entitlement, or nil
	// when the team holds none.
	ActiveEntitlementByTeam(ctx context.Context, teamID string) (*Entitlement, error)

	// ActiveEntitlementByClub returns the club's active entitlement, or nil
	// when the club holds none.
	ActiveEntitlementByClub(ctx context.Context, clubID string) (*Entitlement, error)

	// TeamMembershipsByUser returns the user's memberships joined with team
	// and club metadata.
	TeamMembershipsByUser(ctx context.Context, userID string) ([]TeamMembership, error)

	// PlayersByTeamOrderedByJoinDate returns player-role memberships in
	// ascending join order. Ties keep the store's stable insertion order;
	// seat ranking depends on that stability.
	PlayersByTeamOrderedByJoinDate(ctx context.Context, teamID string) ([]TeamMembership, error)

	// ParentRelationshipsByChild returns the relationships where the user is
	// the child, joined with the parent's display name.
	ParentRelationshipsByChild(ctx context.Context, childUserID string) ([]ParentChildRelationship, error)

	// Team returns the team record, or nil when it does not exist.
	Team(ctx context.Context, teamID string) (*Team, error)
}

// Cache caches resolved UserCapabilities keyed by user id. Implementations
// must treat a miss as (nil, false, nil), not an error.
type Cache interface {
	Get(ctx context.Context, userID string) (*UserCapabilities, bool, error)
	Put(ctx context.Context, caps *UserCapabilities) error
	Del(ctx context.Context, userID string) error
}
