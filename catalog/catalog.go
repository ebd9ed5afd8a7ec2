// Package catalog holds the immutable product catalog and the pure
// capability-resolution rules: which capabilities a product grants, which
// capabilities imply others, and how products roll up into an academy tier.
// The package does no I/O; services receive a *Catalog at construction so
// tests can substitute their own.
package catalog

import "fmt"

// Catalog is an immutable product/capability table. Build one with New or
// use Default for the production catalog.
type Catalog struct {
	products  map[ProductID]Product
	implies   map[Capability]Set
	shareable map[ProductID]struct{}
}

// New builds a catalog from product definitions and implication rules. The
// transitive closure of the rules is computed here so lookups are flat maps.
// Implication cycles are rejected.
func New(products []Product, rules []Implication) (*Catalog, error) {
	c := &Catalog{
		products:  make(map[ProductID]Product, len(products)),
		shareable: make(map[ProductID]struct{}),
	}
	for _, p := range products {
		if p.ID == "" {
			return nil, fmt.Errorf("catalog: product with empty id")
		}
		if _, dup := c.products[p.ID]; dup {
			return nil, fmt.Errorf("catalog: duplicate product %q", p.ID)
		}
		c.products[p.ID] = p
		if p.Type == TypeIndividual && hasShareablePrefix(p.ID) {
			c.shareable[p.ID] = struct{}{}
		}
	}
	implies, err := closeImplications(rules)
	if err != nil {
		return nil, err
	}
	c.implies = implies
	return c, nil
}

// Default returns the production catalog. It panics only on a programming
// error in the static tables.
func Default() *Catalog {
	c, err := New(defaultProducts(), defaultImplications())
	if err != nil {
		panic("catalog: invalid default catalog: " + err.Error())
	}
	return c
}

func hasShareablePrefix(id ProductID) bool {
	return len(id) >= len(childShareablePrefix) && string(id[:len(childShareablePrefix)]) == childShareablePrefix
}

// closeImplications expands declarative rules into their transitive closure.
func closeImplications(rules []Implication) (map[Capability]Set, error) {
	direct := make(map[Capability]Set)
	for _, r := range rules {
		if direct[r.Holds] == nil {
			direct[r.Holds] = NewSet()
		}
		direct[r.Holds].Add(r.Implies)
	}
	closed := make(map[Capability]Set, len(direct))
	for holds := range direct {
		seen := NewSet()
		stack := []Capability{holds}
		for len(stack) > 0 {
			cur := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			for next := range direct[cur] {
				if next == holds {
					return nil, fmt.Errorf("catalog: implication cycle through %q", holds)
				}
				if !seen.Has(next) {
					seen.Add(next)
					stack = append(stack, next)
				}
			}
		}
		closed[holds] = seen
	}
	return closed, nil
}

// Product returns the definition for id. The ok bool lets callers that care
// about stale references distinguish "unknown" from "grants nothing".
func (c *Catalog) Product(id ProductID) (Product, bool) {
	p, ok := c.products[id]
	return p, ok
}

// EffectiveCapabilities resolves a product to its full capability set:
// declared capabilities plus everything they imply, minus excludes.
// Excludes win over implications. Unknown ids resolve to an empty set so a
// retired product reference degrades instead of failing resolution.
func (c *Catalog) EffectiveCapabilities(id ProductID) Set {
	out := NewSet()
	p, ok := c.products[id]
	if !ok {
		return out
	}
	for _, cap := range p.Capabilities {
		out.Add(cap)
		if implied, ok := c.implies[cap]; ok {
			out.Union(implied)
		}
	}
	for _, ex := range p.Excludes {
		delete(out, ex)
	}
	return out
}

// CombinedCapabilities unions the effective sets of every product given.
// Union is commutative, so the order of ids never matters.
func (c *Catalog) CombinedCapabilities(ids []ProductID) Set {
	out := NewSet()
	for _, id := range ids {
		out.Union(c.EffectiveCapabilities(id))
	}
	return out
}

// HasCapability reports whether any of the products grants cap.
func (c *Catalog) HasCapability(ids []ProductID, cap Capability) bool {
	for _, id := range ids {
		if c.EffectiveCapabilities(id).Has(cap) {
			return true
		}
	}
	return false
}

// AcademyTier returns the highest academy level present across the products,
// checked in strict order full > basic > limited > none.
func (c *Catalog) AcademyTier(ids []ProductID) AcademyTier {
	caps := c.CombinedCapabilities(ids)
	switch {
	case caps.Has(CapFullAcademy):
		return TierFull
	case caps.Has(CapBasicAcademy):
		return TierBasic
	case caps.Has(CapLimitedDrills) || caps.Has(CapDrills) || caps.Has(CapWorkouts):
		return TierLimited
	default:
		return TierNone
	}
}

// TeamPlayerProduct returns the academy product a team product grants to
// eligible players. ok is false for unknown or non-team ids.
func (c *Catalog) TeamPlayerProduct(id ProductID) (ProductID, bool) {
	p, ok := c.products[id]
	if !ok || p.Type != TypeTeam || p.PlayerProduct == "" {
		return "", false
	}
	return p.PlayerProduct, true
}

// TeamCoachProduct returns the coach bundle a team product grants to
// coach-role members. ok is false for unknown or non-team ids.
func (c *Catalog) TeamCoachProduct(id ProductID) (ProductID, bool) {
	p, ok := c.products[id]
	if !ok || p.Type != TypeTeam || p.CoachProduct == "" {
		return "", false
	}
	return p.CoachProduct, true
}

// ClubTeamTier returns the team-tier product a club product cascades to its
// member teams. ok is false for unknown or non-club ids.
func (c *Catalog) ClubTeamTier(id ProductID) (ProductID, bool) {
	p, ok := c.products[id]
	if !ok || p.Type != TypeClub || p.TeamTier == "" {
		return "", false
	}
	return p.TeamTier, true
}

func (c *Catalog) IsTeamProduct(id ProductID) bool {
	p, ok := c.products[id]
	return ok && p.Type == TypeTeam
}

func (c *Catalog) IsClubProduct(id ProductID) bool {
	p, ok := c.products[id]
	return ok && p.Type == TypeClub
}

// ChildShareable reports whether a parent may grant this product to a child
// account. The set is fixed at construction: individual skills-academy
// products only.
func (c *Catalog) ChildShareable(id ProductID) bool {
	_, ok := c.shareable[id]
	return ok
}
