// Package ceasefire persists accepted freezes and sweeps expired ones.
package ceasefire

import (
	"sort"

	"statecraft.ai/internal/sim/campaign/kernel/model"
)

// EnforcementPackage is what a gated offer (or an accepted treaty's
// freeze clauses) hands to the applier. DurationTurns 0 is indefinite.
type EnforcementPackage struct {
	OfferID       string   `json:"offer_id"`
	Turn          int      `json:"turn"`
	FreezeEdges   []string `json:"freeze_edges"`
	DurationTurns int      `json:"duration_turns"`
}

type ApplyReport struct {
	OfferID   string   `json:"offer_id"`
	Frozen    []string `json:"frozen"`
	SinceTurn int      `json:"since_turn"`
	UntilTurn *int     `json:"until_turn"`
}

// Apply activates the ceasefire and writes one entry per frozen edge. An
// edge that is already frozen is overwritten by the newer package.
func Apply(state *model.State, pkg EnforcementPackage) ApplyReport {
	edges := append([]string(nil), pkg.FreezeEdges...)
	sort.Strings(edges)
	edges = dedupeSorted(edges)

	var until *int
	if pkg.DurationTurns > 0 {
		u := pkg.Turn + pkg.DurationTurns
		until = &u
	}

	if !state.NegotiationStatus.CeasefireActive {
		state.NegotiationStatus.CeasefireSinceTurn = pkg.Turn
	}
	state.NegotiationStatus.CeasefireActive = true
	state.NegotiationStatus.LastOfferTurn = pkg.Turn
	state.NegotiationStatus.LastOfferID = pkg.OfferID

	for _, e := range edges {
		entry := model.CeasefireEntry{SinceTurn: pkg.Turn, OfferID: pkg.OfferID}
		if until != nil {
			u := *until
			entry.UntilTurn = &u
		}
		state.Ceasefire[e] = entry
	}

	rep := ApplyReport{OfferID: pkg.OfferID, Frozen: edges, SinceTurn: pkg.Turn}
	if until != nil {
		u := *until
		rep.UntilTurn = &u
	}
	return rep
}

type SweepReport struct {
	Expired []string `json:"expired"`
	Cleared bool     `json:"cleared"`
}

// Sweep removes entries whose until_turn is before turn and clears the
// active flag once no entry remains.
func Sweep(state *model.State, turn int) SweepReport {
	var rep SweepReport
	for _, id := range model.SortedKeys(state.Ceasefire) {
		if state.Ceasefire[id].ExpiredAt(turn) {
			delete(state.Ceasefire, id)
			rep.Expired = append(rep.Expired, id)
		}
	}
	if len(state.Ceasefire) == 0 && state.NegotiationStatus.CeasefireActive {
		state.NegotiationStatus.CeasefireActive = false
		rep.Cleared = true
	}
	return rep
}

func dedupeSorted(in []string) []string {
	out := in[:0]
	for i, s := range in {
		if i > 0 && s == in[i-1] {
			continue
		}
		out = append(out, s)
	}
	return out
}
