package capabilities_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/powlax/memberkit/capabilities"
	"github.com/powlax/memberkit/catalog"
	memorystore "github.com/powlax/memberkit/storage/memory"
)

var fixtureEpoch = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func newEngine(t *testing.T, store capabilities.Store) *capabilities.Engine {
	t.Helper()
	engine, err := capabilities.NewEngine(capabilities.Config{
		Store:   store,
		Catalog: catalog.Default(),
	})
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	return engine
}

// seedTeam creates a team with n players joined at strictly increasing
// times. Player ids are <teamID>_player_1..n in join order.
func seedTeam(store *memorystore.Store, teamID, clubID string, n int) {
	store.AddTeam(capabilities.Team{ID: teamID, Name: "Team " + teamID, ClubID: clubID})
	for i := 1; i <= n; i++ {
		id := fmt.Sprintf("%s_player_%d", teamID, i)
		store.AddUser(id, "Player "+id)
		store.AddMembership(capabilities.TeamMembership{
			UserID:   id,
			TeamID:   teamID,
			Role:     capabilities.RolePlayer,
			JoinedAt: fixtureEpoch.Add(time.Duration(i) * time.Hour),
		})
	}
}

func activeEntitlement(subjectID string, productID catalog.ProductID) capabilities.Entitlement {
	return capabilities.Entitlement{
		SubjectID: subjectID,
		ProductID: productID,
		Status:    capabilities.StatusActive,
	}
}

func TestUserCapabilitiesEmptyUser(t *testing.T) {
	store := memorystore.New()
	engine := newEngine(t, store)

	caps, err := engine.UserCapabilities(context.Background(), "nobody")
	if err != nil {
		t.Fatalf("UserCapabilities: %v", err)
	}
	if len(caps.Capabilities) != 0 || len(caps.Products) != 0 || len(caps.Sources) != 0 {
		t.Fatalf("expected empty result, got %+v", caps)
	}
	if caps.AcademyTier != catalog.TierNone {
		t.Fatalf("expected tier none, got %q", caps.AcademyTier)
	}
}

func TestUserCapabilitiesDirectOnly(t *testing.T) {
	store := memorystore.New()
	store.SeedEntitlement(activeEntitlement("u1", catalog.SkillsAcademyMonthly))
	// Cancelled rows must not contribute.
	store.SeedEntitlement(capabilities.Entitlement{
		SubjectID: "u1",
		ProductID: catalog.CoachEssentialsKit,
		Status:    capabilities.StatusCancelled,
	})
	engine := newEngine(t, store)

	caps, err := engine.UserCapabilities(context.Background(), "u1")
	if err != nil {
		t.Fatalf("UserCapabilities: %v", err)
	}
	if len(caps.Products) != 1 || caps.Products[0] != catalog.SkillsAcademyMonthly {
		t.Fatalf("products = %v", caps.Products)
	}
	if caps.AcademyTier != catalog.TierFull {
		t.Fatalf("tier = %q, want full", caps.AcademyTier)
	}
	for _, want := range []catalog.Capability{catalog.CapFullAcademy, catalog.CapBasicAcademy, catalog.CapDrills, catalog.CapWorkouts} {
		if !caps.Has(want) {
			t.Errorf("missing %q", want)
		}
	}
	if caps.Has(catalog.CapCoachResources) {
		t.Errorf("cancelled entitlement leaked coach_resources")
	}
	if len(caps.Sources) != 1 || caps.Sources[0].Type != capabilities.SourceDirect {
		t.Fatalf("sources = %+v", caps.Sources)
	}
}

func TestTeamSeatRanking(t *testing.T) {
	store := memorystore.New()
	seedTeam(store, "t1", "", 30)
	store.SeedEntitlement(activeEntitlement("t1", catalog.TeamHQActivated))
	engine := newEngine(t, store)
	ctx := context.Background()

	eligible, err := engine.UserCapabilities(ctx, "t1_player_10")
	if err != nil {
		t.Fatalf("UserCapabilities: %v", err)
	}
	if len(eligible.TeamLimits) != 1 {
		t.Fatalf("team limits = %+v", eligible.TeamLimits)
	}
	info := eligible.TeamLimits[0]
	if !info.Eligible || info.Position != 10 {
		t.Fatalf("position 10 should be eligible, got %+v", info)
	}
	if info.PlayerLimit != 25 || info.CurrentPlayers != 30 || info.AvailableSlots != 0 {
		t.Fatalf("limit info = %+v", info)
	}
	if !eligible.Has(catalog.CapFullAcademy) {
		t.Fatalf("eligible player missing academy benefit: %v", eligible.Capabilities)
	}

	over, err := engine.UserCapabilities(ctx, "t1_player_26")
	if err != nil {
		t.Fatalf("UserCapabilities: %v", err)
	}
	if len(over.TeamLimits) != 1 || over.TeamLimits[0].Eligible {
		t.Fatalf("position 26 should be ineligible, got %+v", over.TeamLimits)
	}
	if over.Has(catalog.CapFullAcademy) {
		t.Fatalf("over-cap player received academy benefit")
	}
	// The team product itself still applies.
	if !over.Has(catalog.CapRoster) || !over.Has(catalog.CapPlaybook) {
		t.Fatalf("over-cap player lost team capabilities: %v", over.Capabilities)
	}
}

func TestCoachReceivesCoachBundle(t *testing.T) {
	store := memorystore.New()
	store.AddTeam(capabilities.Team{ID: "t1", Name: "Team t1"})
	store.AddUser("coach1", "Coach One")
	store.AddMembership(capabilities.TeamMembership{
		UserID:   "coach1",
		TeamID:   "t1",
		Role:     capabilities.RoleHeadCoach,
		JoinedAt: fixtureEpoch,
	})
	store.SeedEntitlement(activeEntitlement("t1", catalog.TeamHQActivated))
	engine := newEngine(t, store)

	caps, err := engine.UserCapabilities(context.Background(), "coach1")
	if err != nil {
		t.Fatalf("UserCapabilities: %v", err)
	}
	if !caps.Has(catalog.CapCoachResources) || !caps.Has(catalog.CapPracticePlanner) {
		t.Fatalf("coach missing coach bundle: %v", caps.Capabilities)
	}
	if len(caps.TeamLimits) != 0 {
		t.Fatalf("coach should have no seat info, got %+v", caps.TeamLimits)
	}
}

func TestTeamWithoutProductContributesNothing(t *testing.T) {
	store := memorystore.New()
	seedTeam(store, "t1", "", 3)
	engine := newEngine(t, store)

	caps, err := engine.UserCapabilities(context.Background(), "t1_player_1")
	if err != nil {
		t.Fatalf("UserCapabilities: %v", err)
	}
	if len(caps.Capabilities) != 0 || len(caps.TeamLimits) != 0 {
		t.Fatalf("team without product granted %+v", caps)
	}
}

func TestClubCascade(t *testing.T) {
	store := memorystore.New()
	store.AddClub("c1", "Lax Club")
	seedTeam(store, "t1", "c1", 2)
	// The club holds the product; the team itself has no entitlement row.
	store.SeedEntitlement(activeEntitlement("c1", catalog.ClubOSGrowth))
	engine := newEngine(t, store)

	caps, err := engine.UserCapabilities(context.Background(), "t1_player_1")
	if err != nil {
		t.Fatalf("UserCapabilities: %v", err)
	}
	if !caps.Has(catalog.CapTeamManagement) || !caps.Has(catalog.CapPlaybook) {
		t.Fatalf("club cascade missing team tier capabilities: %v", caps.Capabilities)
	}
	var clubSources int
	for _, s := range caps.Sources {
		if s.Type == capabilities.SourceClub {
			clubSources++
			if s.SourceID != "c1" || s.SourceName != "Lax Club" {
				t.Errorf("club source provenance = %+v", s)
			}
		}
	}
	// One source for the club product, one for the cascaded team tier.
	if clubSources != 2 {
		t.Fatalf("club sources = %d, want 2", clubSources)
	}
}

func TestParentSharedProducts(t *testing.T) {
	store := memorystore.New()
	store.AddUser("parent1", "Pat Parent")
	store.AddUser("child1", "Casey Child")
	store.AddRelationship("parent1", "child1", "parent")
	store.SeedEntitlement(activeEntitlement("parent1", catalog.SkillsAcademyMonthly))
	store.SeedEntitlement(activeEntitlement("parent1", catalog.CoachEssentialsKit))
	engine := newEngine(t, store)

	caps, err := engine.UserCapabilities(context.Background(), "child1")
	if err != nil {
		t.Fatalf("UserCapabilities: %v", err)
	}
	if !caps.Has(catalog.CapFullAcademy) {
		t.Fatalf("child missing shared academy access: %v", caps.Capabilities)
	}
	if caps.Has(catalog.CapCoachResources) {
		t.Fatalf("non-shareable coach kit leaked through parent channel")
	}
	if len(caps.Sources) != 1 || caps.Sources[0].Type != capabilities.SourceParent || caps.Sources[0].SourceName != "Pat Parent" {
		t.Fatalf("sources = %+v", caps.Sources)
	}
}

func TestMergeDeduplicatesProducts(t *testing.T) {
	store := memorystore.New()
	store.AddUser("parent1", "Pat Parent")
	store.AddUser("child1", "Casey Child")
	store.AddRelationship("parent1", "child1", "parent")
	// Same product held directly and shared by the parent.
	store.SeedEntitlement(activeEntitlement("child1", catalog.SkillsAcademyBasic))
	store.SeedEntitlement(activeEntitlement("parent1", catalog.SkillsAcademyBasic))
	engine := newEngine(t, store)

	caps, err := engine.UserCapabilities(context.Background(), "child1")
	if err != nil {
		t.Fatalf("UserCapabilities: %v", err)
	}
	if len(caps.Products) != 1 {
		t.Fatalf("products = %v, want one deduplicated entry", caps.Products)
	}
	if len(caps.Sources) != 2 {
		t.Fatalf("both provenance records should remain, got %+v", caps.Sources)
	}
}

func TestEndToEndDirectPlusTeam(t *testing.T) {
	store := memorystore.New()
	seedTeam(store, "t1", "", 30)
	store.SeedEntitlement(activeEntitlement("t1", catalog.TeamHQActivated))
	store.SeedEntitlement(activeEntitlement("t1_player_10", catalog.SkillsAcademyBasic))
	engine := newEngine(t, store)

	caps, err := engine.UserCapabilities(context.Background(), "t1_player_10")
	if err != nil {
		t.Fatalf("UserCapabilities: %v", err)
	}
	if caps.AcademyTier != catalog.TierFull {
		t.Fatalf("tier = %q, want full", caps.AcademyTier)
	}
	want := []catalog.Capability{
		catalog.CapFullAcademy, catalog.CapBasicAcademy, catalog.CapLimitedDrills,
		catalog.CapDrills, catalog.CapWorkouts, catalog.CapTeamManagement,
		catalog.CapPlaybook, catalog.CapRoster, catalog.CapAnalytics,
	}
	for _, w := range want {
		if !caps.Has(w) {
			t.Errorf("missing %q", w)
		}
	}
	if len(caps.TeamLimits) != 1 || !caps.TeamLimits[0].Eligible || caps.TeamLimits[0].Position != 10 {
		t.Fatalf("team limits = %+v", caps.TeamLimits)
	}
}

func TestMultiTeamPlayerGetsLimitPerTeam(t *testing.T) {
	store := memorystore.New()
	seedTeam(store, "t1", "", 5)
	seedTeam(store, "t2", "", 5)
	store.SeedEntitlement(activeEntitlement("t1", catalog.TeamHQActivated))
	store.SeedEntitlement(activeEntitlement("t2", catalog.TeamHQStructure))
	// t1_player_2 also plays on t2, joining last.
	store.AddMembership(capabilities.TeamMembership{
		UserID:   "t1_player_2",
		TeamID:   "t2",
		Role:     capabilities.RolePlayer,
		JoinedAt: fixtureEpoch.Add(48 * time.Hour),
	})
	engine := newEngine(t, store)

	caps, err := engine.UserCapabilities(context.Background(), "t1_player_2")
	if err != nil {
		t.Fatalf("UserCapabilities: %v", err)
	}
	if len(caps.TeamLimits) != 2 {
		t.Fatalf("team limits = %+v, want one per team", caps.TeamLimits)
	}
	byTeam := map[string]capabilities.TeamLimitInfo{}
	for _, info := range caps.TeamLimits {
		byTeam[info.TeamID] = info
	}
	if byTeam["t1"].Position != 2 || byTeam["t2"].Position != 6 {
		t.Fatalf("positions = %+v", byTeam)
	}
}

type failingStore struct {
	*memorystore.Store
	failUser string
}

func (f *failingStore) ActiveEntitlementsByUser(ctx context.Context, userID string) ([]capabilities.Entitlement, error) {
	if userID == f.failUser {
		return nil, errors.New("store unavailable")
	}
	return f.Store.ActiveEntitlementsByUser(ctx, userID)
}

func TestSourceFailureFailsWholeCall(t *testing.T) {
	store := memorystore.New()
	store.SeedEntitlement(activeEntitlement("u1", catalog.SkillsAcademyBasic))
	engine := newEngine(t, &failingStore{Store: store, failUser: "u1"})

	if _, err := engine.UserCapabilities(context.Background(), "u1"); err == nil {
		t.Fatalf("expected error when a source read fails")
	}
}

func TestBulkIsolatesFailures(t *testing.T) {
	store := memorystore.New()
	store.SeedEntitlement(activeEntitlement("ok1", catalog.SkillsAcademyBasic))
	store.SeedEntitlement(activeEntitlement("ok2", catalog.SkillsAcademyMonthly))
	engine := newEngine(t, &failingStore{Store: store, failUser: "bad"})

	results := engine.BulkUserCapabilities(context.Background(), []string{"ok1", "bad", "ok2"})
	if len(results) != 3 {
		t.Fatalf("results = %d", len(results))
	}
	if results[0].Err != nil || results[2].Err != nil {
		t.Fatalf("healthy users failed: %v, %v", results[0].Err, results[2].Err)
	}
	if results[1].Err == nil {
		t.Fatalf("failing user should carry its error")
	}
	if results[0].UserID != "ok1" || results[2].UserID != "ok2" {
		t.Fatalf("results not order-matched: %+v", results)
	}
	if results[2].Capabilities.AcademyTier != catalog.TierFull {
		t.Fatalf("ok2 tier = %q", results[2].Capabilities.AcademyTier)
	}
}

func TestHasCapability(t *testing.T) {
	store := memorystore.New()
	store.SeedEntitlement(activeEntitlement("u1", catalog.SkillsAcademyStarter))
	engine := newEngine(t, store)
	ctx := context.Background()

	has, err := engine.HasCapability(ctx, "u1", catalog.CapLimitedDrills)
	if err != nil || !has {
		t.Fatalf("HasCapability(limited_drills) = %v, %v", has, err)
	}
	has, err = engine.HasCapability(ctx, "u1", catalog.CapFullAcademy)
	if err != nil || has {
		t.Fatalf("HasCapability(full_academy) = %v, %v", has, err)
	}
}

type fakeCache struct {
	data map[string]*capabilities.UserCapabilities
	gets int
	puts int
	dels int
}

func newFakeCache() *fakeCache {
	return &fakeCache{data: make(map[string]*capabilities.UserCapabilities)}
}

func (f *fakeCache) Get(ctx context.Context, userID string) (*capabilities.UserCapabilities, bool, error) {
	f.gets++
	caps, ok := f.data[userID]
	return caps, ok, nil
}

func (f *fakeCache) Put(ctx context.Context, caps *capabilities.UserCapabilities) error {
	f.puts++
	f.data[caps.UserID] = caps
	return nil
}

func (f *fakeCache) Del(ctx context.Context, userID string) error {
	f.dels++
	delete(f.data, userID)
	return nil
}

func TestCacheHitSkipsResolution(t *testing.T) {
	store := memorystore.New()
	store.SeedEntitlement(activeEntitlement("u1", catalog.SkillsAcademyBasic))
	cache := newFakeCache()
	engine, err := capabilities.NewEngine(capabilities.Config{
		Store:   store,
		Catalog: catalog.Default(),
		Cache:   cache,
	})
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	ctx := context.Background()

	first, err := engine.UserCapabilities(ctx, "u1")
	if err != nil {
		t.Fatalf("UserCapabilities: %v", err)
	}
	if cache.puts != 1 {
		t.Fatalf("puts = %d", cache.puts)
	}

	second, err := engine.UserCapabilities(ctx, "u1")
	if err != nil {
		t.Fatalf("UserCapabilities: %v", err)
	}
	if second != first {
		t.Fatalf("expected cached pointer on second resolution")
	}

	if err := engine.InvalidateUser(ctx, "u1"); err != nil {
		t.Fatalf("InvalidateUser: %v", err)
	}
	if cache.dels != 1 {
		t.Fatalf("dels = %d", cache.dels)
	}
}

func TestTeamOverview(t *testing.T) {
	store := memorystore.New()
	seedTeam(store, "t1", "", 30)
	store.SeedEntitlement(activeEntitlement("t1", catalog.TeamHQActivated))
	engine := newEngine(t, store)
	ctx := context.Background()

	overview, err := engine.TeamOverview(ctx, "t1")
	if err != nil {
		t.Fatalf("TeamOverview: %v", err)
	}
	if overview == nil {
		t.Fatalf("expected overview")
	}
	if overview.ProductID != catalog.TeamHQActivated || overview.PlayerLimit != 25 {
		t.Fatalf("overview = %+v", overview)
	}
	if overview.CurrentPlayers != 30 || overview.AvailableSlots != 0 {
		t.Fatalf("seat counts = %d/%d", overview.CurrentPlayers, overview.AvailableSlots)
	}
	if len(overview.Players) != 30 {
		t.Fatalf("players = %d", len(overview.Players))
	}
	for i, p := range overview.Players {
		if p.Position != i+1 {
			t.Fatalf("player %d position = %d", i, p.Position)
		}
		if p.HasAcademyAccess != (p.Position <= 25) {
			t.Fatalf("player %d access = %v at position %d", i, p.HasAcademyAccess, p.Position)
		}
	}

	missing, err := engine.TeamOverview(ctx, "ghost")
	if err != nil {
		t.Fatalf("TeamOverview(ghost): %v", err)
	}
	if missing != nil {
		t.Fatalf("expected nil for unknown team")
	}
}
