package catalog

// ProductID identifies a product in the catalog.
type ProductID string

// ProductType scopes who a product is sold to.
type ProductType string

const (
	TypeIndividual ProductType = "individual"
	TypeTeam       ProductType = "team"
	TypeClub       ProductType = "club"
)

// TeamPlayerLimit is the hard seat cap for player-role academy benefits on
// any team product.
const TeamPlayerLimit = 25

// childShareablePrefix marks individual skills-academy products that a
// parent may purchase for a child account.
const childShareablePrefix = "skills_academy_"

// Product is an immutable product definition.
type Product struct {
	ID           ProductID
	Name         string
	Type         ProductType
	Capabilities []Capability
	// Excludes lists capabilities this product must never grant, even when
	// an implication rule would otherwise introduce them.
	Excludes    []Capability
	Description string

	// Team products only.
	CoachProduct  ProductID
	PlayerProduct ProductID
	PlayerLimit   int

	// Club products only: the team-tier product cascaded to every member team.
	TeamTier ProductID
}

// Individual product IDs.
const (
	SkillsAcademyMonthly ProductID = "skills_academy_monthly"
	SkillsAcademyAnnual  ProductID = "skills_academy_annual"
	SkillsAcademyBasic   ProductID = "skills_academy_basic"
	SkillsAcademyStarter ProductID = "skills_academy_starter"
	CoachEssentialsKit   ProductID = "coach_essentials_kit"
)

// Team product IDs.
const (
	TeamHQStructure  ProductID = "team_hq_structure"
	TeamHQActivated  ProductID = "team_hq_activated"
	TeamHQLeadership ProductID = "team_hq_leadership"
)

// Club product IDs.
const (
	ClubOSFoundation ProductID = "club_os_foundation"
	ClubOSGrowth     ProductID = "club_os_growth"
	ClubOSCommand    ProductID = "club_os_command"
)

// defaultProducts is the production POWLAX catalog.
func defaultProducts() []Product {
	return []Product{
		{
			ID:           SkillsAcademyMonthly,
			Name:         "Skills Academy Monthly",
			Type:         TypeIndividual,
			Capabilities: []Capability{CapFullAcademy},
			Description:  "Full skills academy access, billed monthly.",
		},
		{
			ID:           SkillsAcademyAnnual,
			Name:         "Skills Academy Annual",
			Type:         TypeIndividual,
			Capabilities: []Capability{CapFullAcademy},
			Description:  "Full skills academy access, billed yearly.",
		},
		{
			ID:           SkillsAcademyBasic,
			Name:         "Skills Academy Basic",
			Type:         TypeIndividual,
			Capabilities: []Capability{CapBasicAcademy},
			Description:  "Core academy workouts and drill library.",
		},
		{
			ID:           SkillsAcademyStarter,
			Name:         "Skills Academy Starter",
			Type:         TypeIndividual,
			Capabilities: []Capability{CapLimitedDrills},
			Description:  "A limited starter slice of the drill library.",
		},
		{
			ID:           CoachEssentialsKit,
			Name:         "Coach Essentials Kit",
			Type:         TypeIndividual,
			Capabilities: []Capability{CapCoachResources, CapPracticePlanner},
			Description:  "Practice planning tools and coaching resources.",
		},
		{
			ID:            TeamHQStructure,
			Name:          "Team HQ Structure",
			Type:          TypeTeam,
			Capabilities:  []Capability{CapRoster, CapPlaybook},
			Description:   "Entry team tier: roster and playbook.",
			CoachProduct:  CoachEssentialsKit,
			PlayerProduct: SkillsAcademyBasic,
			PlayerLimit:   TeamPlayerLimit,
		},
		{
			ID:            TeamHQActivated,
			Name:          "Team HQ Activated",
			Type:          TypeTeam,
			Capabilities:  []Capability{CapTeamManagement, CapPlaybook, CapRoster, CapAnalytics},
			Description:   "Full team tier with academy seats for players.",
			CoachProduct:  CoachEssentialsKit,
			PlayerProduct: SkillsAcademyMonthly,
			PlayerLimit:   TeamPlayerLimit,
		},
		{
			ID:            TeamHQLeadership,
			Name:          "Team HQ Leadership",
			Type:          TypeTeam,
			Capabilities:  []Capability{CapTeamManagement, CapPlaybook, CapRoster, CapAnalytics, CapMasterClasses},
			Description:   "Top team tier with coaching master classes.",
			CoachProduct:  CoachEssentialsKit,
			PlayerProduct: SkillsAcademyMonthly,
			PlayerLimit:   TeamPlayerLimit,
		},
		{
			ID:           ClubOSFoundation,
			Name:         "Club OS Foundation",
			Type:         TypeClub,
			Capabilities: []Capability{CapAnalytics},
			Description:  "Club-wide cascade of the Structure team tier.",
			TeamTier:     TeamHQStructure,
		},
		{
			ID:           ClubOSGrowth,
			Name:         "Club OS Growth",
			Type:         TypeClub,
			Capabilities: []Capability{CapAnalytics},
			Description:  "Club-wide cascade of the Leadership team tier.",
			TeamTier:     TeamHQLeadership,
		},
		{
			ID:           ClubOSCommand,
			Name:         "Club OS Command",
			Type:         TypeClub,
			Capabilities: []Capability{CapAnalytics, CapMasterClasses},
			Description:  "Leadership cascade plus club-level master classes.",
			TeamTier:     TeamHQLeadership,
		},
	}
}

// defaultImplications declares academy-family inheritance: holding a higher
// academy level grants every lower level. Capabilities outside the academy
// family never imply one another.
func defaultImplications() []Implication {
	return []Implication{
		{Holds: CapFullAcademy, Implies: CapBasicAcademy},
		{Holds: CapBasicAcademy, Implies: CapLimitedDrills},
		{Holds: CapBasicAcademy, Implies: CapDrills},
		{Holds: CapBasicAcademy, Implies: CapWorkouts},
	}
}
