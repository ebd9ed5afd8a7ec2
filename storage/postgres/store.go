// Package pgstore is the pgx-backed implementation of the capability and
// purchase store interfaces over the membership schema.
package pgstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/powlax/memberkit/capabilities"
	"github.com/powlax/memberkit/catalog"
	"github.com/powlax/memberkit/purchases"
)

// Store provides membership lookups/mutations against the membership schema.
type Store struct {
	pg     *pgxpool.Pool
	schema string
}

func NewStore(pg *pgxpool.Pool, schema string) *Store {
	s := strings.TrimSpace(schema)
	if s == "" {
		s = "membership"
	}
	return &Store{pg: pg, schema: s}
}

func (s *Store) entitlementsTable() string  { return s.schema + ".entitlements" }
func (s *Store) teamMembersTable() string   { return s.schema + ".team_members" }
func (s *Store) teamsTable() string         { return s.schema + ".teams" }
func (s *Store) clubsTable() string         { return s.schema + ".clubs" }
func (s *Store) relationshipsTable() string { return s.schema + ".parent_child_relationships" }
func (s *Store) usersTable() string         { return s.schema + ".users" }
func (s *Store) auditTable() string         { return s.schema + ".purchase_audit_log" }

const entitlementColumns = `id, subject_id, product_id, status, COALESCE(purchased_by, ''), created_at, expires_at`

func scanEntitlement(row pgx.Row) (capabilities.Entitlement, error) {
	var ent capabilities.Entitlement
	err := row.Scan(&ent.ID, &ent.SubjectID, &ent.ProductID, &ent.Status, &ent.PurchasedBy, &ent.CreatedAt, &ent.ExpiresAt)
	return ent, err
}

func (s *Store) ActiveEntitlementsByUser(ctx context.Context, userID string) ([]capabilities.Entitlement, error) {
	rows, err := s.pg.Query(ctx, `SELECT `+entitlementColumns+` FROM `+s.entitlementsTable()+`
		WHERE subject_id = $1 AND status = 'active' ORDER BY created_at, id`, userID)
	if err != nil {
		return nil, fmt.Errorf("query user entitlements: %w", err)
	}
	defer rows.Close()
	return collectEntitlements(rows)
}

func (s *Store) ActiveEntitlementByTeam(ctx context.Context, teamID string) (*capabilities.Entitlement, error) {
	return s.activeEntitlementBySubject(ctx, teamID)
}

func (s *Store) ActiveEntitlementByClub(ctx context.Context, clubID string) (*capabilities.Entitlement, error) {
	return s.activeEntitlementBySubject(ctx, clubID)
}

func (s *Store) activeEntitlementBySubject(ctx context.Context, subjectID string) (*capabilities.Entitlement, error) {
	ent, err := scanEntitlement(s.pg.QueryRow(ctx, `SELECT `+entitlementColumns+` FROM `+s.entitlementsTable()+`
		WHERE subject_id = $1 AND status = 'active' ORDER BY created_at, id LIMIT 1`, subjectID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query subject entitlement: %w", err)
	}
	return &ent, nil
}

func (s *Store) TeamMembershipsByUser(ctx context.Context, userID string) ([]capabilities.TeamMembership, error) {
	rows, err := s.pg.Query(ctx, `SELECT tm.user_id, tm.team_id, tm.role, tm.joined_at,
			t.name, COALESCE(t.club_id, ''), COALESCE(c.name, '')
		FROM `+s.teamMembersTable()+` tm
		JOIN `+s.teamsTable()+` t ON t.id = tm.team_id
		LEFT JOIN `+s.clubsTable()+` c ON c.id = t.club_id
		WHERE tm.user_id = $1 ORDER BY tm.joined_at, tm.id`, userID)
	if err != nil {
		return nil, fmt.Errorf("query team memberships: %w", err)
	}
	defer rows.Close()

	var out []capabilities.TeamMembership
	for rows.Next() {
		var m capabilities.TeamMembership
		if err := rows.Scan(&m.UserID, &m.TeamID, &m.Role, &m.JoinedAt, &m.TeamName, &m.ClubID, &m.ClubName); err != nil {
			return nil, fmt.Errorf("scan team membership: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// PlayersByTeamOrderedByJoinDate orders by joined_at with the row id as the
// tie-break, so equal join times keep a stable rank.
func (s *Store) PlayersByTeamOrderedByJoinDate(ctx context.Context, teamID string) ([]capabilities.TeamMembership, error) {
	rows, err := s.pg.Query(ctx, `SELECT tm.user_id, tm.team_id, tm.role, tm.joined_at
		FROM `+s.teamMembersTable()+` tm
		WHERE tm.team_id = $1 AND tm.role = 'player'
		ORDER BY tm.joined_at ASC, tm.id ASC`, teamID)
	if err != nil {
		return nil, fmt.Errorf("query team players: %w", err)
	}
	defer rows.Close()

	var out []capabilities.TeamMembership
	for rows.Next() {
		var m capabilities.TeamMembership
		if err := rows.Scan(&m.UserID, &m.TeamID, &m.Role, &m.JoinedAt); err != nil {
			return nil, fmt.Errorf("scan team player: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *Store) ParentRelationshipsByChild(ctx context.Context, childUserID string) ([]capabilities.ParentChildRelationship, error) {
	rows, err := s.pg.Query(ctx, `SELECT r.parent_user_id, r.child_user_id, r.relationship_type,
			COALESCE(p.name, ''), COALESCE(ch.name, '')
		FROM `+s.relationshipsTable()+` r
		JOIN `+s.usersTable()+` p ON p.id = r.parent_user_id
		LEFT JOIN `+s.usersTable()+` ch ON ch.id = r.child_user_id
		WHERE r.child_user_id = $1`, childUserID)
	if err != nil {
		return nil, fmt.Errorf("query parent relationships: %w", err)
	}
	defer rows.Close()
	return collectRelationships(rows)
}

func (s *Store) Team(ctx context.Context, teamID string) (*capabilities.Team, error) {
	var t capabilities.Team
	err := s.pg.QueryRow(ctx, `SELECT t.id, t.name, COALESCE(t.club_id, ''), COALESCE(c.name, '')
		FROM `+s.teamsTable()+` t
		LEFT JOIN `+s.clubsTable()+` c ON c.id = t.club_id
		WHERE t.id = $1 LIMIT 1`, teamID).Scan(&t.ID, &t.Name, &t.ClubID, &t.ClubName)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query team: %w", err)
	}
	return &t, nil
}

func (s *Store) Relationship(ctx context.Context, parentUserID, childUserID string) (*capabilities.ParentChildRelationship, error) {
	var rel capabilities.ParentChildRelationship
	err := s.pg.QueryRow(ctx, `SELECT r.parent_user_id, r.child_user_id, r.relationship_type,
			COALESCE(p.name, ''), COALESCE(ch.name, '')
		FROM `+s.relationshipsTable()+` r
		JOIN `+s.usersTable()+` p ON p.id = r.parent_user_id
		LEFT JOIN `+s.usersTable()+` ch ON ch.id = r.child_user_id
		WHERE r.parent_user_id = $1 AND r.child_user_id = $2 LIMIT 1`, parentUserID, childUserID).
		Scan(&rel.ParentUserID, &rel.ChildUserID, &rel.RelationshipType, &rel.ParentName, &rel.ChildName)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query relationship: %w", err)
	}
	return &rel, nil
}

func (s *Store) ChildRelationshipsByParent(ctx context.Context, parentUserID string) ([]capabilities.ParentChildRelationship, error) {
	rows, err := s.pg.Query(ctx, `SELECT r.parent_user_id, r.child_user_id, r.relationship_type,
			COALESCE(p.name, ''), COALESCE(ch.name, '')
		FROM `+s.relationshipsTable()+` r
		JOIN `+s.usersTable()+` p ON p.id = r.parent_user_id
		LEFT JOIN `+s.usersTable()+` ch ON ch.id = r.child_user_id
		WHERE r.parent_user_id = $1`, parentUserID)
	if err != nil {
		return nil, fmt.Errorf("query child relationships: %w", err)
	}
	defer rows.Close()
	return collectRelationships(rows)
}

func (s *Store) EntitlementBySubjectAndProduct(ctx context.Context, subjectID string, productID catalog.ProductID) (*capabilities.Entitlement, error) {
	ent, err := scanEntitlement(s.pg.QueryRow(ctx, `SELECT `+entitlementColumns+` FROM `+s.entitlementsTable()+`
		WHERE subject_id = $1 AND product_id = $2 LIMIT 1`, subjectID, productID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query entitlement: %w", err)
	}
	return &ent, nil
}

// UpsertEntitlement is idempotent on (subject_id, product_id): a repeated
// purchase reactivates the existing row.
func (s *Store) UpsertEntitlement(ctx context.Context, up purchases.EntitlementUpsert) (string, error) {
	var id string
	err := s.pg.QueryRow(ctx, `INSERT INTO `+s.entitlementsTable()+`
			(subject_id, product_id, status, purchased_by, expires_at)
		VALUES ($1, $2, $3, NULLIF($4, ''), $5)
		ON CONFLICT (subject_id, product_id) DO UPDATE
			SET status = EXCLUDED.status,
			    purchased_by = EXCLUDED.purchased_by,
			    expires_at = EXCLUDED.expires_at,
			    updated_at = NOW()
		RETURNING id`, up.SubjectID, up.ProductID, up.Status, up.PurchasedBy, up.ExpiresAt).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("upsert entitlement: %w", err)
	}
	return id, nil
}

func (s *Store) CancelEntitlement(ctx context.Context, subjectID string, productID catalog.ProductID, purchasedBy string) (bool, error) {
	tag, err := s.pg.Exec(ctx, `UPDATE `+s.entitlementsTable()+`
		SET status = 'cancelled', updated_at = NOW()
		WHERE subject_id = $1 AND product_id = $2 AND purchased_by = $3`,
		subjectID, productID, purchasedBy)
	if err != nil {
		return false, fmt.Errorf("cancel entitlement: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (s *Store) EntitlementsPurchasedBy(ctx context.Context, parentUserID string) ([]capabilities.Entitlement, error) {
	rows, err := s.pg.Query(ctx, `SELECT `+entitlementColumns+` FROM `+s.entitlementsTable()+`
		WHERE purchased_by = $1 ORDER BY created_at DESC, id DESC`, parentUserID)
	if err != nil {
		return nil, fmt.Errorf("query purchased entitlements: %w", err)
	}
	defer rows.Close()
	return collectEntitlements(rows)
}

// InsertAuditLogEntry satisfies purchases.AuditLogger for setups that write
// audit rows inline rather than through the job queue.
func (s *Store) InsertAuditLogEntry(ctx context.Context, entry purchases.AuditEntry) error {
	_, err := s.pg.Exec(ctx, `INSERT INTO `+s.auditTable()+`
			(id, action, parent_user_id, child_user_id, product_id, receipt, occurred_at)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), $7)`,
		entry.ID, entry.Action, entry.ParentUserID, entry.ChildUserID, entry.ProductID, entry.Receipt, entry.OccurredAt)
	if err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	return nil
}

// LogPurchaseEvent makes the store usable directly as an AuditLogger.
func (s *Store) LogPurchaseEvent(ctx context.Context, entry purchases.AuditEntry) error {
	return s.InsertAuditLogEntry(ctx, entry)
}

// ExpiringEntitlements returns active rows whose expiry falls on or before
// the given instant. The expiry sweep job reads this; nothing here ever
// writes an "expired" status.
func (s *Store) ExpiringEntitlements(ctx context.Context, before time.Time) ([]capabilities.Entitlement, error) {
	rows, err := s.pg.Query(ctx, `SELECT `+entitlementColumns+` FROM `+s.entitlementsTable()+`
		WHERE status = 'active' AND expires_at IS NOT NULL AND expires_at <= $1
		ORDER BY expires_at, id`, before)
	if err != nil {
		return nil, fmt.Errorf("query expiring entitlements: %w", err)
	}
	defer rows.Close()
	return collectEntitlements(rows)
}

func collectEntitlements(rows pgx.Rows) ([]capabilities.Entitlement, error) {
	var out []capabilities.Entitlement
	for rows.Next() {
		ent, err := scanEntitlement(rows)
		if err != nil {
			return nil, fmt.Errorf("scan entitlement: %w", err)
		}
		out = append(out, ent)
	}
	return out, rows.Err()
}

func collectRelationships(rows pgx.Rows) ([]capabilities.ParentChildRelationship, error) {
	var out []capabilities.ParentChildRelationship
	for rows.Next() {
		var rel capabilities.ParentChildRelationship
		if err := rows.Scan(&rel.ParentUserID, &rel.ChildUserID, &rel.RelationshipType, &rel.ParentName, &rel.ChildName); err != nil {
			return nil, fmt.Errorf("scan relationship: %w", err)
		}
		out = append(out, rel)
	}
	return out, rows.Err()
}
