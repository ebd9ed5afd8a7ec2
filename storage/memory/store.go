// Package memorystore is an in-memory implementation of the capability and
// purchase store interfaces. It backs tests and single-node setups where
// Postgres is unavailable.
package memorystore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/powlax/memberkit/capabilities"
	"github.com/powlax/memberkit/catalog"
	"github.com/powlax/memberkit/purchases"
)

// Store holds everything in mutex-guarded slices and maps. Slices keep
// insertion order, which is what makes seat-ranking ties stable.
type Store struct {
	mu            sync.Mutex
	users         map[string]string
	clubs         map[string]string
	teams         map[string]capabilities.Team
	memberships   []capabilities.TeamMembership
	relationships []capabilities.ParentChildRelationship
	entitlements  []*capabilities.Entitlement
	audit         []purchases.AuditEntry
}

func New() *Store {
	return &Store{
		users: make(map[string]string),
		clubs: make(map[string]string),
		teams: make(map[string]capabilities.Team),
	}
}

// Seeding helpers. Not part of any consumer interface.

func (s *Store) AddUser(id, name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[id] = name
}

func (s *Store) AddClub(id, name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clubs[id] = name
}

func (s *Store) AddTeam(team capabilities.Team) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.teams[team.ID] = team
}

func (s *Store) AddMembership(m capabilities.TeamMembership) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.memberships = append(s.memberships, m)
}

func (s *Store) AddRelationship(parentUserID, childUserID, relationshipType string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.relationships = append(s.relationships, capabilities.ParentChildRelationship{
		ParentUserID:     parentUserID,
		ChildUserID:      childUserID,
		RelationshipType: relationshipType,
	})
}

// SeedEntitlement inserts an entitlement row directly, bypassing upsert
// semantics. Returns the row id.
func (s *Store) SeedEntitlement(ent capabilities.Entitlement) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ent.ID == "" {
		ent.ID = uuid.NewString()
	}
	if ent.CreatedAt.IsZero() {
		ent.CreatedAt = time.Now().UTC()
	}
	s.entitlements = append(s.entitlements, &ent)
	return ent.ID
}

// capabilities.Store

func (s *Store) ActiveEntitlementsByUser(ctx context.Context, userID string) ([]capabilities.Entitlement, error) {
	return s.activeBySubject(userID), nil
}

func (s *Store) ActiveEntitlementByTeam(ctx context.Context, teamID string) (*capabilities.Entitlement, error) {
	return s.firstActiveBySubject(teamID), nil
}

func (s *Store) ActiveEntitlementByClub(ctx context.Context, clubID string) (*capabilities.Entitlement, error) {
	return s.firstActiveBySubject(clubID), nil
}

func (s *Store) TeamMembershipsByUser(ctx context.Context, userID string) ([]capabilities.TeamMembership, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []capabilities.TeamMembership
	for _, m := range s.memberships {
		if m.UserID != userID {
			continue
		}
		out = append(out, s.joinTeamLocked(m))
	}
	return out, nil
}

func (s *Store) PlayersByTeamOrderedByJoinDate(ctx context.Context, teamID string) ([]capabilities.TeamMembership, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []capabilities.TeamMembership
	for _, m := range s.memberships {
		if m.TeamID == teamID && m.Role == capabilities.RolePlayer {
			out = append(out, s.joinTeamLocked(m))
		}
	}
	// Stable sort: equal join times keep insertion order.
	sort.SliceStable(out, func(i, j int) bool { return out[i].JoinedAt.Before(out[j].JoinedAt) })
	return out, nil
}

func (s *Store) ParentRelationshipsByChild(ctx context.Context, childUserID string) ([]capabilities.ParentChildRelationship, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []capabilities.ParentChildRelationship
	for _, rel := range s.relationships {
		if rel.ChildUserID == childUserID {
			rel.ParentName = s.users[rel.ParentUserID]
			rel.ChildName = s.users[rel.ChildUserID]
			out = append(out, rel)
		}
	}
	return out, nil
}

func (s *Store) Team(ctx context.Context, teamID string) (*capabilities.Team, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	team, ok := s.teams[teamID]
	if !ok {
		return nil, nil
	}
	if team.ClubName == "" {
		team.ClubName = s.clubs[team.ClubID]
	}
	return &team, nil
}

// purchases.Store

func (s *Store) Relationship(ctx context.Context, parentUserID, childUserID string) (*capabilities.ParentChildRelationship, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, rel := range s.relationships {
		if rel.ParentUserID == parentUserID && rel.ChildUserID == childUserID {
			rel.ParentName = s.users[rel.ParentUserID]
			rel.ChildName = s.users[rel.ChildUserID]
			return &rel, nil
		}
	}
	return nil, nil
}

func (s *Store) ChildRelationshipsByParent(ctx context.Context, parentUserID string) ([]capabilities.ParentChildRelationship, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []capabilities.ParentChildRelationship
	for _, rel := range s.relationships {
		if rel.ParentUserID == parentUserID {
			rel.ParentName = s.users[rel.ParentUserID]
			rel.ChildName = s.users[rel.ChildUserID]
			out = append(out, rel)
		}
	}
	return out, nil
}

func (s *Store) EntitlementBySubjectAndProduct(ctx context.Context, subjectID string, productID catalog.ProductID) (*capabilities.Entitlement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ent := range s.entitlements {
		if ent.SubjectID == subjectID && ent.ProductID == productID {
			cp := *ent
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *Store) UpsertEntitlement(ctx context.Context, up purchases.EntitlementUpsert) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ent := range s.entitlements {
		if ent.SubjectID == up.SubjectID && ent.ProductID == up.ProductID {
			ent.Status = up.Status
			ent.PurchasedBy = up.PurchasedBy
			ent.ExpiresAt = up.ExpiresAt
			return ent.ID, nil
		}
	}
	ent := &capabilities.Entitlement{
		ID:          uuid.NewString(),
		SubjectID:   up.SubjectID,
		ProductID:   up.ProductID,
		Status:      up.Status,
		PurchasedBy: up.PurchasedBy,
		CreatedAt:   time.Now().UTC(),
		ExpiresAt:   up.ExpiresAt,
	}
	s.entitlements = append(s.entitlements, ent)
	return ent.ID, nil
}

func (s *Store) CancelEntitlement(ctx context.Context, subjectID string, productID catalog.ProductID, purchasedBy string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ent := range s.entitlements {
		if ent.SubjectID == subjectID && ent.ProductID == productID && ent.PurchasedBy == purchasedBy {
			ent.Status = capabilities.StatusCancelled
			return true, nil
		}
	}
	return false, nil
}

func (s *Store) EntitlementsPurchasedBy(ctx context.Context, parentUserID string) ([]capabilities.Entitlement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []capabilities.Entitlement
	// Newest first.
	for i := len(s.entitlements) - 1; i >= 0; i-- {
		if s.entitlements[i].PurchasedBy == parentUserID {
			out = append(out, *s.entitlements[i])
		}
	}
	return out, nil
}

// Jobs support

func (s *Store) InsertAuditLogEntry(ctx context.Context, entry purchases.AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.audit = append(s.audit, entry)
	return nil
}

func (s *Store) ExpiringEntitlements(ctx context.Context, before time.Time) ([]capabilities.Entitlement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []capabilities.Entitlement
	for _, ent := range s.entitlements {
		if ent.Status == capabilities.StatusActive && ent.ExpiresAt != nil && !ent.ExpiresAt.After(before) {
			out = append(out, *ent)
		}
	}
	return out, nil
}

// AuditEntries returns a copy of the recorded audit log, oldest first.
func (s *Store) AuditEntries() []purchases.AuditEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]purchases.AuditEntry, len(s.audit))
	copy(out, s.audit)
	return out
}

// EntitlementCount reports how many rows exist for (subject, product); the
// upsert contract says this never exceeds one.
func (s *Store) EntitlementCount(subjectID string, productID catalog.ProductID) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, ent := range s.entitlements {
		if ent.SubjectID == subjectID && ent.ProductID == productID {
			n++
		}
	}
	return n
}

func (s *Store) activeBySubject(subjectID string) []capabilities.Entitlement {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []capabilities.Entitlement
	for _, ent := range s.entitlements {
		if ent.SubjectID == subjectID && ent.Status == capabilities.StatusActive {
			out = append(out, *ent)
		}
	}
	return out
}

func (s *Store) firstActiveBySubject(subjectID string) *capabilities.Entitlement {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ent := range s.entitlements {
		if ent.SubjectID == subjectID && ent.Status == capabilities.StatusActive {
			cp := *ent
			return &cp
		}
	}
	return nil
}

func (s *Store) joinTeamLocked(m capabilities.TeamMembership) capabilities.TeamMembership {
	if team, ok := s.teams[m.TeamID]; ok {
		m.TeamName = team.Name
		m.ClubID = team.ClubID
		m.ClubName = s.clubs[team.ClubID]
	}
	return m
}
