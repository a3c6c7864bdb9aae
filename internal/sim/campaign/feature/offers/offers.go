// Package offers synthesizes at most one peace offer per turn from the
// negotiation pressure and front state, and runs the hard gates that an
// offer must clear before it becomes an enforcement package.
package offers

import (
	"sort"

	"statecraft.ai/internal/sim/campaign/feature/fronts"
	"statecraft.ai/internal/sim/campaign/kernel/model"
	"statecraft.ai/internal/sim/campaign/logic/ids"
	"statecraft.ai/internal/sim/tuning"
)

type Kind string

const (
	KindGeneralCeasefire Kind = "general_ceasefire"
	KindLocalFreeze      Kind = "local_freeze"
)

type ScopeKind string

const (
	ScopeGlobal ScopeKind = "global"
	ScopeRegion ScopeKind = "region"
	ScopeFront  ScopeKind = "front"
)

type Scope struct {
	Kind     ScopeKind `json:"kind"`
	RegionID string    `json:"region_id,omitempty"`
	Parties  []string  `json:"parties"`
}

// Rationale snapshots the numbers the offer was derived from.
type Rationale struct {
	Initiator           string   `json:"initiator"`
	Counterpart         string   `json:"counterpart"`
	InitiatorPressure   int      `json:"initiator_pressure"`
	CounterpartPressure int      `json:"counterpart_pressure"`
	TriggerThreshold    int      `json:"trigger_threshold"`
	PairActiveEdges     int      `json:"pair_active_edges"`
	Candidates          []string `json:"candidates"`
}

type Terms struct {
	DurationTurns int      `json:"duration_turns"`
	FreezeEdges   []string `json:"freeze_edges"`
}

type Offer struct {
	ID        string    `json:"id"`
	Turn      int       `json:"turn"`
	Kind      Kind      `json:"kind"`
	Scope     Scope     `json:"scope"`
	Rationale Rationale `json:"rationale"`
	Terms     Terms     `json:"terms"`
}

type SkipReason string

const (
	SkipNone            SkipReason = ""
	SkipCeasefireActive SkipReason = "ceasefire_active"
	SkipBelowTrigger    SkipReason = "below_trigger"
	SkipNoActiveFront   SkipReason = "no_active_front"
)

// Generate returns the turn's offer, or nil with the reason none was made.
func Generate(state *model.State, cfg tuning.Offers, turn int) (*Offer, SkipReason) {
	if state.NegotiationStatus.CeasefireActive {
		return nil, SkipCeasefireActive
	}

	var candidates []string
	for _, id := range state.FactionIDs() {
		if state.Factions[id].Negotiation.Pressure >= cfg.TriggerThreshold {
			candidates = append(candidates, id)
		}
	}
	if len(candidates) == 0 {
		return nil, SkipBelowTrigger
	}

	// Highest pressure first; ties keep lexical order.
	ranked := append([]string(nil), candidates...)
	sort.SliceStable(ranked, func(i, j int) bool {
		return state.Factions[ranked[i]].Negotiation.Pressure > state.Factions[ranked[j]].Negotiation.Pressure
	})

	active := fronts.ActiveEdges(state)
	for _, initiator := range ranked {
		byOpponent := map[string][]string{}
		for _, e := range active {
			if !e.Touches(initiator) {
				continue
			}
			if opp := e.Opponent(initiator); opp != "" && opp != initiator {
				byOpponent[opp] = append(byOpponent[opp], e.EdgeID)
			}
		}
		if len(byOpponent) == 0 {
			continue
		}
		counterpart := ""
		for _, opp := range model.SortedKeys(byOpponent) {
			if counterpart == "" || len(byOpponent[opp]) > len(byOpponent[counterpart]) {
				counterpart = opp
			}
		}
		return build(state, cfg, turn, initiator, counterpart, byOpponent[counterpart], candidates), SkipNone
	}
	return nil, SkipNoActiveFront
}

func build(state *model.State, cfg tuning.Offers, turn int, initiator, counterpart string, pairEdges, candidates []string) *Offer {
	sort.Strings(pairEdges)
	parties := []string{initiator, counterpart}
	sort.Strings(parties)

	ip := state.Factions[initiator].Negotiation.Pressure
	o := &Offer{
		Turn: turn,
		Rationale: Rationale{
			Initiator:           initiator,
			Counterpart:         counterpart,
			InitiatorPressure:   ip,
			CounterpartPressure: state.Factions[counterpart].Negotiation.Pressure,
			TriggerThreshold:    cfg.TriggerThreshold,
			PairActiveEdges:     len(pairEdges),
			Candidates:          append([]string(nil), candidates...),
		},
	}

	if ip >= cfg.TriggerThreshold*cfg.CeasefireMultiplier {
		o.Kind = KindGeneralCeasefire
		o.Scope = Scope{Kind: ScopeGlobal, Parties: parties}
		o.Terms = Terms{DurationTurns: cfg.GeneralCeasefireTurns, FreezeEdges: pairEdges}
	} else {
		o.Kind = KindLocalFreeze
		regionID, edges := pickRegion(state, parties, pairEdges)
		if regionID == "" {
			o.Scope = Scope{Kind: ScopeFront, Parties: parties}
			edges = pairEdges
		} else {
			o.Scope = Scope{Kind: ScopeRegion, RegionID: regionID, Parties: parties}
		}
		o.Terms = Terms{DurationTurns: cfg.LocalFreezeTurns, FreezeEdges: edges}
	}
	o.ID = ids.OfferID(turn, string(o.Kind), parties)
	return o
}

// pickRegion returns the lexically first region of the pair that contains
// at least one of the pair's active edges, with those edges.
func pickRegion(state *model.State, parties, pairEdges []string) (string, []string) {
	live := map[string]bool{}
	for _, e := range pairEdges {
		live[e] = true
	}
	for _, rid := range model.SortedKeys(state.Regions) {
		r := state.Regions[rid]
		if r == nil {
			continue
		}
		sides := []string{r.SideA, r.SideB}
		sort.Strings(sides)
		if sides[0] != parties[0] || sides[1] != parties[1] {
			continue
		}
		var edges []string
		seen := map[string]bool{}
		for _, e := range r.EdgeIDs {
			if live[e] && !seen[e] {
				seen[e] = true
				edges = append(edges, e)
			}
		}
		if len(edges) > 0 {
			sort.Strings(edges)
			return rid, edges
		}
	}
	return "", nil
}
