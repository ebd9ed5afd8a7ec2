package capabilities

import (
	"context"
	"fmt"

	"github.com/powlax/memberkit/catalog"
)

// TeamOverview returns the team's seat usage: every player in join order
// with their 1-based position and whether that position falls inside the
// academy seat cap. Returns (nil, nil) when the team does not exist.
func (e *Engine) TeamOverview(ctx context.Context, teamID string) (*TeamOverview, error) {
	team, err := e.store.Team(ctx, teamID)
	if err != nil {
		return nil, fmt.Errorf("team %s: %w", teamID, err)
	}
	if team == nil {
		return nil, nil
	}

	players, err := e.store.PlayersByTeamOrderedByJoinDate(ctx, teamID)
	if err != nil {
		return nil, fmt.Errorf("team %s players: %w", teamID, err)
	}
	ent, err := e.store.ActiveEntitlementByTeam(ctx, teamID)
	if err != nil {
		return nil, fmt.Errorf("team %s entitlement: %w", teamID, err)
	}

	var productID catalog.ProductID
	limit := catalog.TeamPlayerLimit
	if ent != nil {
		productID = ent.ProductID
		limit = TeamPlayerLimitFor(e.catalog, ent.ProductID)
	}

	overview := &TeamOverview{
		TeamID:         team.ID,
		TeamName:       team.Name,
		ProductID:      productID,
		PlayerLimit:    limit,
		CurrentPlayers: len(players),
		AvailableSlots: max(0, limit-len(players)),
		Players:        make([]PlayerSeat, 0, len(players)),
	}
	for i, p := range players {
		overview.Players = append(overview.Players, PlayerSeat{
			UserID:           p.UserID,
			JoinedAt:         p.JoinedAt,
			Position:         i + 1,
			HasAcademyAccess: i+1 <= limit,
		})
	}
	return overview, nil
}
