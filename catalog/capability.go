package catalog

import "sort"

// Capability is an atomic named feature permission granted by holding a
// qualifying product. The enumeration is closed; unknown strings simply
// never match anything in the catalog.
type Capability string

const (
	// Academy family. Higher levels imply the lower ones.
	CapFullAcademy   Capability = "full_academy"
	CapBasicAcademy  Capability = "basic_academy"
	CapLimitedDrills Capability = "limited_drills"
	CapDrills        Capability = "drills"
	CapWorkouts      Capability = "workouts"

	// Team family. Independent of one another.
	CapTeamManagement Capability = "team_management"
	CapPlaybook       Capability = "playbook"
	CapRoster         Capability = "roster"
	CapAnalytics      Capability = "analytics"

	// Coach family.
	CapCoachResources  Capability = "coach_resources"
	CapPracticePlanner Capability = "practice_planner"
	CapMasterClasses   Capability = "master_classes"
)

// AcademyTier is the highest level of skills-academy access a capability
// set grants.
type AcademyTier string

const (
	TierFull    AcademyTier = "full"
	TierBasic   AcademyTier = "basic"
	TierLimited AcademyTier = "limited"
	TierNone    AcademyTier = "none"
)

// Set is a capability set.
type Set map[Capability]struct{}

func NewSet(caps ...Capability) Set {
	s := make(Set, len(caps))
	for _, c := range caps {
		s[c] = struct{}{}
	}
	return s
}

func (s Set) Has(c Capability) bool {
	_, ok := s[c]
	return ok
}

func (s Set) Add(c Capability) { s[c] = struct{}{} }

// Union merges other into s and returns s.
func (s Set) Union(other Set) Set {
	for c := range other {
		s[c] = struct{}{}
	}
	return s
}

// Sorted returns the members in lexical order, for stable output.
func (s Set) Sorted() []Capability {
	out := make([]Capability, 0, len(s))
	for c := range s {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Implication declares that holding one capability implies another.
// The catalog computes the transitive closure of these rules once at
// construction, so resolution never walks the rule list.
type Implication struct {
	Holds   Capability
	Implies Capability
}
