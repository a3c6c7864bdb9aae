package campaign

import (
	"sort"

	"statecraft.ai/internal/sim/campaign/feature/ceasefire"
	"statecraft.ai/internal/sim/campaign/feature/digest"
	"statecraft.ai/internal/sim/campaign/feature/territory"
	"statecraft.ai/internal/sim/campaign/feature/treaty"
	"statecraft.ai/internal/sim/campaign/kernel/model"
)

type TreatyOutcome struct {
	Acceptance  treaty.AcceptanceReport `json:"acceptance"`
	Applied     bool                    `json:"applied"`
	Territory   *territory.Report       `json:"territory,omitempty"`
	Enforcement *ceasefire.ApplyReport  `json:"enforcement,omitempty"`
	// Competence ids whose holder was recorded, sorted.
	Allocations []string `json:"allocations,omitempty"`
	Digest      string   `json:"digest"`
}

// EvaluateTreaty scores the draft against the current state without
// mutating it.
func (c *Campaign) EvaluateTreaty(d treaty.Draft) (treaty.AcceptanceReport, error) {
	return treaty.Evaluate(c.State, c.Catalog, c.Tuning.Acceptance, d)
}

// ApplyTreaty evaluates the draft and, only if every target accepts, applies
// its territorial, military and institutional clauses as one batch. Effects
// are dated to the current state turn whatever turn the draft names; the
// draft turn is kept in the acceptance report as the proposal date.
func (c *Campaign) ApplyTreaty(d treaty.Draft) (TreatyOutcome, error) {
	acc, err := c.EvaluateTreaty(d)
	if err != nil {
		return TreatyOutcome{}, err
	}
	out := TreatyOutcome{Acceptance: acc}
	if !acc.AcceptedByAllTargets {
		out.Digest = digest.StateDigest(c.State)
		return out, nil
	}

	next := c.State.Clone()
	turn := next.Turn

	tr, err := territory.Apply(next, c.Tuning.Territory, d, turn)
	if err != nil {
		return TreatyOutcome{}, err
	}
	out.Territory = &tr

	if edges := freezeEdges(next, d); len(edges) > 0 {
		ar := ceasefire.Apply(next, ceasefire.EnforcementPackage{
			OfferID:     d.TreatyID,
			Turn:        turn,
			FreezeEdges: edges,
		})
		out.Enforcement = &ar
	}

	for _, cl := range d.Clauses {
		a, ok := cl.(treaty.AllocateCompetence)
		if !ok {
			continue
		}
		next.CompetenceAllocations[a.Competence] = model.CompetenceAllocation{
			Holder: a.Holder, TreatyID: d.TreatyID, SinceTurn: turn,
		}
		out.Allocations = append(out.Allocations, a.Competence)
	}
	sort.Strings(out.Allocations)

	out.Applied = true
	out.Digest = digest.StateDigest(next)
	c.State = next
	return out, nil
}

// freezeEdges collects the active edges named by the draft's freeze_region
// clauses: the region's edges for region scope, every active edge for
// global scope.
func freezeEdges(state *model.State, d treaty.Draft) []string {
	set := map[string]bool{}
	for _, cl := range d.Clauses {
		f, ok := cl.(treaty.FreezeRegion)
		if !ok {
			continue
		}
		var candidates []string
		if f.Scope.Kind == treaty.ScopeRegion {
			if r := state.Regions[f.Scope.RegionID]; r != nil {
				candidates = r.EdgeIDs
			}
		} else {
			candidates = model.SortedKeys(state.FrontSegments)
		}
		for _, e := range candidates {
			if seg := state.FrontSegments[e]; seg != nil && seg.Active {
				set[e] = true
			}
		}
	}
	return model.SortedKeys(set)
}

// Submit handles a draft proposed during the current turn. Drafts without a
// turn are dated to the current one; apply selects ApplyTreaty over a plain
// evaluation.
func (c *Campaign) Submit(d treaty.Draft, apply bool) (TreatyOutcome, error) {
	if d.Turn <= 0 {
		d.Turn = c.State.Turn
	}
	if apply {
		return c.ApplyTreaty(d)
	}
	acc, err := c.EvaluateTreaty(d)
	if err != nil {
		return TreatyOutcome{}, err
	}
	return TreatyOutcome{Acceptance: acc, Digest: digest.StateDigest(c.State)}, nil
}
