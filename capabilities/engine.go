// Package capabilities resolves the full set of product-derived feature
// permissions a user holds across four independent channels: direct
// purchases, team-derived benefits (with the 25-seat player cap), club-wide
// cascades, and parent-shared academy products.
package capabilities

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/powlax/memberkit/catalog"
)

const (
	defaultTeamConcurrency = 4
	defaultBulkConcurrency = 8
)

// Config configures an Engine. Store and Catalog are required.
type Config struct {
	Store   Store
	Catalog *catalog.Catalog
	// Cache is optional; when set, resolved results are cached per user and
	// read before hitting the store.
	Cache  Cache
	Logger logrus.FieldLogger
	// TeamConcurrency bounds the per-team fan-out inside one resolution.
	TeamConcurrency int
	// BulkConcurrency bounds the per-user fan-out in BulkUserCapabilities.
	BulkConcurrency int
}

// Engine computes user capabilities. It holds no mutable state and is safe
// for concurrent use.
type Engine struct {
	store   Store
	catalog *catalog.Catalog
	cache   Cache
	log     logrus.FieldLogger
	teamPar int
	bulkPar int
}

// NewEngine validates cfg and builds an Engine.
func NewEngine(cfg Config) (*Engine, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("capabilities: Config.Store is required")
	}
	if cfg.Catalog == nil {
		return nil, fmt.Errorf("capabilities: Config.Catalog is required")
	}
	log := cfg.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}
	teamPar := cfg.TeamConcurrency
	if teamPar <= 0 {
		teamPar = defaultTeamConcurrency
	}
	bulkPar := cfg.BulkConcurrency
	if bulkPar <= 0 {
		bulkPar = defaultBulkConcurrency
	}
	return &Engine{
		store:   cfg.Store,
		catalog: cfg.Catalog,
		cache:   cfg.Cache,
		log:     log,
		teamPar: teamPar,
		bulkPar: bulkPar,
	}, nil
}

// UserCapabilities resolves the user's effective capability set. The four
// source lookups run concurrently; any store failure fails the whole call,
// no partial result is fabricated. A user with no entitlements anywhere gets
// empty sets and tier "none", not an error.
func (e *Engine) UserCapabilities(ctx context.Context, userID string) (*UserCapabilities, error) {
	if userID == "" {
		return nil, fmt.Errorf("capabilities: empty user id")
	}
	if e.cache != nil {
		if cached, ok, err := e.cache.Get(ctx, userID); err != nil {
			e.log.WithField("user_id", userID).WithError(err).Warn("capability cache read failed")
		} else if ok {
			return cached, nil
		}
	}

	var (
		direct []CapabilitySource
		team   []CapabilitySource
		limits []TeamLimitInfo
		club   []CapabilitySource
		parent []CapabilitySource
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		direct, err = e.resolveDirect(gctx, userID)
		return err
	})
	g.Go(func() error {
		var err error
		team, limits, err = e.resolveTeams(gctx, userID)
		return err
	})
	g.Go(func() error {
		var err error
		club, err = e.resolveClubs(gctx, userID)
		return err
	})
	g.Go(func() error {
		var err error
		parent, err = e.resolveParents(gctx, userID)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("resolve capabilities for user %s: %w", userID, err)
	}

	sources := make([]CapabilitySource, 0, len(direct)+len(team)+len(club)+len(parent))
	sources = append(sources, direct...)
	sources = append(sources, team...)
	sources = append(sources, club...)
	sources = append(sources, parent...)

	// A product reached through two channels counts once.
	seen := make(map[catalog.ProductID]struct{}, len(sources))
	products := make([]catalog.ProductID, 0, len(sources))
	for _, s := range sources {
		if _, dup := seen[s.ProductID]; dup {
			continue
		}
		seen[s.ProductID] = struct{}{}
		products = append(products, s.ProductID)
	}

	result := &UserCapabilities{
		UserID:       userID,
		Capabilities: e.catalog.CombinedCapabilities(products).Sorted(),
		Products:     products,
		Sources:      sources,
		AcademyTier:  e.catalog.AcademyTier(products),
		TeamLimits:   limits,
	}
	if e.cache != nil {
		if err := e.cache.Put(ctx, result); err != nil {
			e.log.WithField("user_id", userID).WithError(err).Warn("capability cache write failed")
		}
	}
	return result, nil
}

// HasCapability resolves the user and tests membership.
func (e *Engine) HasCapability(ctx context.Context, userID string, cap catalog.Capability) (bool, error) {
	caps, err := e.UserCapabilities(ctx, userID)
	if err != nil {
		return false, err
	}
	return caps.Has(cap), nil
}

// BulkResult is one user's outcome in a bulk resolution. Err is set per
// item; one failure never aborts the batch.
type BulkResult struct {
	UserID       string
	Capabilities *UserCapabilities
	Err          error
}

// BulkUserCapabilities resolves many users with bounded concurrency.
// Results are order-matched to userIDs.
func (e *Engine) BulkUserCapabilities(ctx context.Context, userIDs []string) []BulkResult {
	results := make([]BulkResult, len(userIDs))
	g := new(errgroup.Group)
	g.SetLimit(e.bulkPar)
	for i, id := range userIDs {
		g.Go(func() error {
			caps, err := e.UserCapabilities(ctx, id)
			results[i] = BulkResult{UserID: id, Capabilities: caps, Err: err}
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// InvalidateUser evicts the user's cached resolution, if a cache is
// configured. Purchase flows call this after writes.
func (e *Engine) InvalidateUser(ctx context.Context, userID string) error {
	if e.cache == nil {
		return nil
	}
	return e.cache.Del(ctx, userID)
}

func (e *Engine) resolveDirect(ctx context.Context, userID string) ([]CapabilitySource, error) {
	ents, err := e.store.ActiveEntitlementsByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("direct entitlements: %w", err)
	}
	sources := make([]CapabilitySource, 0, len(ents))
	for _, ent := range ents {
		sources = append(sources, CapabilitySource{
			Type:      SourceDirect,
			ProductID: ent.ProductID,
		})
	}
	return sources, nil
}

// resolveTeams walks the user's memberships with bounded concurrency. Each
// team contributes the team product, plus the coach bundle for coach roles,
// plus the player academy product when the member holds one of the first 25
// player seats by join order.
func (e *Engine) resolveTeams(ctx context.Context, userID string) ([]CapabilitySource, []TeamLimitInfo, error) {
	memberships, err := e.store.TeamMembershipsByUser(ctx, userID)
	if err != nil {
		return nil, nil, fmt.Errorf("team memberships: %w", err)
	}

	type teamResult struct {
		sources []CapabilitySource
		limit   *TeamLimitInfo
	}
	slots := make([]teamResult, len(memberships))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.teamPar)
	for i, m := range memberships {
		g.Go(func() error {
			res, err := e.resolveOneTeam(gctx, userID, m)
			if err != nil {
				return err
			}
			slots[i] = teamResult{sources: res.sources, limit: res.limit}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	var sources []CapabilitySource
	var limits []TeamLimitInfo
	for _, slot := range slots {
		sources = append(sources, slot.sources...)
		if slot.limit != nil {
			limits = append(limits, *slot.limit)
		}
	}
	return sources, limits, nil
}

type oneTeamResult struct {
	sources []CapabilitySource
	limit   *TeamLimitInfo
}

func (e *Engine) resolveOneTeam(ctx context.Context, userID string, m TeamMembership) (oneTeamResult, error) {
	var out oneTeamResult

	ent, err := e.store.ActiveEntitlementByTeam(ctx, m.TeamID)
	if err != nil {
		return out, fmt.Errorf("team %s entitlement: %w", m.TeamID, err)
	}
	// A team with no active product contributes nothing, player limits
	// included.
	if ent == nil {
		return out, nil
	}

	out.sources = append(out.sources, CapabilitySource{
		Type:       SourceTeam,
		ProductID:  ent.ProductID,
		SourceID:   m.TeamID,
		SourceName: m.TeamName,
	})

	if m.Role.IsCoach() {
		if coach, ok := e.catalog.TeamCoachProduct(ent.ProductID); ok {
			out.sources = append(out.sources, CapabilitySource{
				Type:       SourceTeam,
				ProductID:  coach,
				SourceID:   m.TeamID,
				SourceName: m.TeamName,
			})
		}
	}

	if m.Role == RolePlayer {
		players, err := e.store.PlayersByTeamOrderedByJoinDate(ctx, m.TeamID)
		if err != nil {
			return out, fmt.Errorf("team %s players: %w", m.TeamID, err)
		}
		limit := TeamPlayerLimitFor(e.catalog, ent.ProductID)
		position := 0
		for i, p := range players {
			if p.UserID == userID {
				position = i + 1
				break
			}
		}
		info := TeamLimitInfo{
			TeamID:         m.TeamID,
			TeamName:       m.TeamName,
			PlayerLimit:    limit,
			CurrentPlayers: len(players),
			AvailableSlots: max(0, limit-len(players)),
			Eligible:       position > 0 && position <= limit,
			Position:       position,
		}
		out.limit = &info
		if info.Eligible {
			if player, ok := e.catalog.TeamPlayerProduct(ent.ProductID); ok {
				out.sources = append(out.sources, CapabilitySource{
					Type:       SourceTeam,
					ProductID:  player,
					SourceID:   m.TeamID,
					SourceName: m.TeamName,
				})
			}
		}
	}
	return out, nil
}

// resolveClubs grants every club product reachable through the user's team
// memberships, plus the cascaded team tier. Clubs are deduplicated; the
// cascade does not depend on any team-level entitlement.
func (e *Engine) resolveClubs(ctx context.Context, userID string) ([]CapabilitySource, error) {
	memberships, err := e.store.TeamMembershipsByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("club memberships: %w", err)
	}
	seen := make(map[string]struct{})
	var sources []CapabilitySource
	for _, m := range memberships {
		if m.ClubID == "" {
			continue
		}
		if _, dup := seen[m.ClubID]; dup {
			continue
		}
		seen[m.ClubID] = struct{}{}

		ent, err := e.store.ActiveEntitlementByClub(ctx, m.ClubID)
		if err != nil {
			return nil, fmt.Errorf("club %s entitlement: %w", m.ClubID, err)
		}
		if ent == nil || !e.catalog.IsClubProduct(ent.ProductID) {
			continue
		}
		sources = append(sources, CapabilitySource{
			Type:       SourceClub,
			ProductID:  ent.ProductID,
			SourceID:   m.ClubID,
			SourceName: m.ClubName,
		})
		if tier, ok := e.catalog.ClubTeamTier(ent.ProductID); ok {
			sources = append(sources, CapabilitySource{
				Type:       SourceClub,
				ProductID:  tier,
				SourceID:   m.ClubID,
				SourceName: m.ClubName,
			})
		}
	}
	return sources, nil
}

// resolveParents grants the child-shareable academy products each linked
// parent actively holds.
func (e *Engine) resolveParents(ctx context.Context, userID string) ([]CapabilitySource, error) {
	rels, err := e.store.ParentRelationshipsByChild(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("parent relationships: %w", err)
	}
	var sources []CapabilitySource
	for _, rel := range rels {
		ents, err := e.store.ActiveEntitlementsByUser(ctx, rel.ParentUserID)
		if err != nil {
			return nil, fmt.Errorf("parent %s entitlements: %w", rel.ParentUserID, err)
		}
		for _, ent := range ents {
			if !e.catalog.ChildShareable(ent.ProductID) {
				continue
			}
			sources = append(sources, CapabilitySource{
				Type:       SourceParent,
				ProductID:  ent.ProductID,
				SourceID:   rel.ParentUserID,
				SourceName: rel.ParentName,
			})
		}
	}
	return sources, nil
}

// TeamPlayerLimitFor returns the player seat cap of a team product, falling
// back to the global 25-seat cap when the product does not declare one.
func TeamPlayerLimitFor(c *catalog.Catalog, id catalog.ProductID) int {
	if p, ok := c.Product(id); ok && p.PlayerLimit > 0 {
		return p.PlayerLimit
	}
	return catalog.TeamPlayerLimit
}
