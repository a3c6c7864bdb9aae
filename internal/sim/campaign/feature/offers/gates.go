package offers

import (
	"sort"

	"statecraft.ai/internal/sim/campaign/feature/ceasefire"
	"statecraft.ai/internal/sim/campaign/kernel/model"
	"statecraft.ai/internal/sim/tuning"
)

type GateFailure string

const (
	GateNone           GateFailure = ""
	GateNotEnforceable GateFailure = "not_enforceable"
	GateAsymmetric     GateFailure = "asymmetric_pressure"
	GateSupplySanity   GateFailure = "supply_sanity"
)

type GateResult struct {
	OfferID string      `json:"offer_id"`
	Passed  bool        `json:"passed"`
	Failure GateFailure `json:"failure,omitempty"`
	// Edges or factions that tripped the failing gate, sorted.
	Details []string `json:"details,omitempty"`

	Package *ceasefire.EnforcementPackage `json:"package,omitempty"`
}

// Gate runs enforceability, symmetry and supply sanity in that order and
// stops at the first failure.
func Gate(state *model.State, o *Offer, cfg tuning.Offers) GateResult {
	res := GateResult{OfferID: o.ID}

	if bad := unenforceable(state, o.Terms.FreezeEdges); len(o.Terms.FreezeEdges) == 0 || len(bad) > 0 {
		res.Failure, res.Details = GateNotEnforceable, bad
		return res
	}
	if weak := belowTrigger(state, o.Scope.Parties, cfg.TriggerThreshold); len(weak) > 0 {
		res.Failure, res.Details = GateAsymmetric, weak
		return res
	}
	if stranded := withoutSupply(state, o.Scope.Parties); len(stranded) > 0 {
		res.Failure, res.Details = GateSupplySanity, stranded
		return res
	}

	edges := append([]string(nil), o.Terms.FreezeEdges...)
	sort.Strings(edges)
	res.Passed = true
	res.Package = &ceasefire.EnforcementPackage{
		OfferID:       o.ID,
		Turn:          o.Turn,
		FreezeEdges:   edges,
		DurationTurns: o.Terms.DurationTurns,
	}
	return res
}

func unenforceable(state *model.State, edges []string) []string {
	var out []string
	for _, e := range edges {
		if !state.FrontSegments[e].Contested() {
			out = append(out, e)
		}
	}
	sort.Strings(out)
	return out
}

func belowTrigger(state *model.State, parties []string, trigger int) []string {
	var out []string
	for _, p := range parties {
		f, ok := state.Faction(p)
		if !ok || f.Negotiation.Pressure < trigger {
			out = append(out, p)
		}
	}
	sort.Strings(out)
	return out
}

// withoutSupply lists parties holding no supply source. Scenarios that
// declare no supply sources skip the check.
func withoutSupply(state *model.State, parties []string) []string {
	if len(state.SupplySources) == 0 {
		return nil
	}
	var out []string
	for _, p := range parties {
		if state.SupplySourceCount(p) == 0 {
			out = append(out, p)
		}
	}
	sort.Strings(out)
	return out
}
