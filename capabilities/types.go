package capabilities

import (
	"time"

	"github.com/powlax/memberkit/catalog"
)

// EntitlementStatus is the lifecycle state of an entitlement row.
// "expired" is a read-side interpretation of ExpiresAt and is never written
// by this kit.
type EntitlementStatus string

const (
	StatusActive    EntitlementStatus = "active"
	StatusInactive  EntitlementStatus = "inactive"
	StatusExpired   EntitlementStatus = "expired"
	StatusCancelled EntitlementStatus = "cancelled"
)

// Entitlement binds a subject (user, team, or club) to a product.
type Entitlement struct {
	ID          string            `json:"id"`
	SubjectID   string            `json:"subject_id"`
	ProductID   catalog.ProductID `json:"product_id"`
	Status      EntitlementStatus `json:"status"`
	PurchasedBy string            `json:"purchased_by,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
	ExpiresAt   *time.Time        `json:"expires_at,omitempty"`
}

// Role is a member's role on a team.
type Role string

const (
	RolePlayer    Role = "player"
	RoleCoach     Role = "coach"
	RoleHeadCoach Role = "head_coach"
	RoleManager   Role = "manager"
)

// IsCoach reports whether the role receives the team's coach bundle.
func (r Role) IsCoach() bool { return r == RoleCoach || r == RoleHeadCoach }

// Team is the minimal team record the engine needs.
type Team struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	ClubID   string `json:"club_id,omitempty"`
	ClubName string `json:"club_name,omitempty"`
}

// TeamMembership is a user's membership row, joined with team and club
// metadata by the store.
type TeamMembership struct {
	UserID   string    `json:"user_id"`
	TeamID   string    `json:"team_id"`
	Role     Role      `json:"role"`
	JoinedAt time.Time `json:"joined_at"`
	TeamName string    `json:"team_name,omitempty"`
	ClubID   string    `json:"club_id,omitempty"`
	ClubName string    `json:"club_name,omitempty"`
}

// ParentChildRelationship links a parent account to a child account.
// Benefits flow parent to child only.
type ParentChildRelationship struct {
	ParentUserID     string `json:"parent_user_id"`
	ChildUserID      string `json:"child_user_id"`
	RelationshipType string `json:"relationship_type"`
	ParentName       string `json:"parent_name,omitempty"`
	ChildName        string `json:"child_name,omitempty"`
}

// SourceType names the channel that granted a product.
type SourceType string

const (
	SourceDirect SourceType = "direct"
	SourceTeam   SourceType = "team"
	SourceClub   SourceType = "club"
	SourceParent SourceType = "parent"
)

// CapabilitySource records why a product was granted. It is explanatory
// provenance only and never drives authorization by itself.
type CapabilitySource struct {
	Type       SourceType        `json:"type"`
	ProductID  catalog.ProductID `json:"product_id"`
	SourceID   string            `json:"source_id,omitempty"`
	SourceName string            `json:"source_name,omitempty"`
}

// TeamLimitInfo describes a player's seat standing on one team.
type TeamLimitInfo struct {
	TeamID         string `json:"team_id"`
	TeamName       string `json:"team_name,omitempty"`
	PlayerLimit    int    `json:"player_limit"`
	CurrentPlayers int    `json:"current_players"`
	AvailableSlots int    `json:"available_slots"`
	Eligible       bool   `json:"is_eligible"`
	Position       int    `json:"position"`
}

// UserCapabilities is the engine's resolved output for one user.
type UserCapabilities struct {
	UserID       string               `json:"user_id"`
	Capabilities []catalog.Capability `json:"capabilities"`
	Products     []catalog.ProductID  `json:"products"`
	Sources      []CapabilitySource   `json:"sources"`
	AcademyTier  catalog.AcademyTier  `json:"academy_tier"`
	// TeamLimits holds one entry per player-role team membership, in the
	// store's membership order.
	TeamLimits []TeamLimitInfo `json:"team_limits,omitempty"`
}

// Has reports whether the resolved set contains cap.
func (u *UserCapabilities) Has(cap catalog.Capability) bool {
	for _, c := range u.Capabilities {
		if c == cap {
			return true
		}
	}
	return false
}

// PlayerSeat is one player's row in a team overview.
type PlayerSeat struct {
	UserID           string    `json:"user_id"`
	JoinedAt         time.Time `json:"joined_at"`
	Position         int       `json:"position"`
	HasAcademyAccess bool      `json:"has_academy_access"`
}

// TeamOverview summarizes a team's seat usage.
type TeamOverview struct {
	TeamID         string            `json:"team_id"`
	TeamName       string            `json:"team_name"`
	ProductID      catalog.ProductID `json:"product_id,omitempty"`
	PlayerLimit    int               `json:"player_limit"`
	CurrentPlayers int               `json:"current_players"`
	AvailableSlots int               `json:"available_slots"`
	Players        []PlayerSeat      `json:"players"`
}
