// Package fronts tracks front segment liveness and the signed pressure
// accumulated on each front edge.
package fronts

import (
	"sort"

	"statecraft.ai/internal/sim/campaign/kernel/model"
	"statecraft.ai/internal/sim/campaign/logic/mathx"
)

// DeriveEdges builds the current front edges from the settlement graph and
// effective control. Settlements with no controller never form a front.
func DeriveEdges(state *model.State) []model.FrontEdge {
	control := map[string]string{}
	for _, sid := range state.Settlements() {
		control[sid] = state.EffectiveController(sid)
	}
	seen := map[string]bool{}
	var out []model.FrontEdge
	for _, a := range model.SortedKeys(state.Adjacency) {
		for _, b := range state.Adjacency[a] {
			if a == b {
				continue
			}
			id := model.EdgeID(a, b)
			if seen[id] {
				continue
			}
			seen[id] = true
			lo, hi := a, b
			if hi < lo {
				lo, hi = hi, lo
			}
			ca, cb := control[lo], control[hi]
			if ca == "" || cb == "" || ca == cb {
				continue
			}
			out = append(out, model.FrontEdge{EdgeID: id, SettlementA: lo, SettlementB: hi, SideA: ca, SideB: cb})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EdgeID < out[j].EdgeID })
	return out
}

type SegmentReport struct {
	Activated   []string `json:"activated"`
	Deactivated []string `json:"deactivated"`
	ActiveCount int      `json:"active_count"`
}

// UpdateSegments advances every segment's state machine for the turn. An
// edge present in edges is active; an active segment whose edge vanished is
// deactivated and its streak/friction reset. Friction does not grow on
// ceasefired edges.
func UpdateSegments(state *model.State, edges []model.FrontEdge, turn int) SegmentReport {
	present := make(map[string]model.FrontEdge, len(edges))
	for _, e := range edges {
		present[e.EdgeID] = e
	}

	var rep SegmentReport
	for _, id := range model.SortedKeys(present) {
		e := present[id]
		seg := state.FrontSegments[id]
		if seg == nil {
			seg = &model.FrontSegment{EdgeID: id}
			state.FrontSegments[id] = seg
		}
		seg.SideA, seg.SideB = e.SideA, e.SideB
		if !seg.Active {
			seg.Active = true
			seg.ActiveStreak = 0
			seg.Friction = 0
			seg.SinceTurn = turn
			rep.Activated = append(rep.Activated, id)
		}
		seg.ActiveStreak++
		if _, frozen := state.Ceasefire[id]; !frozen {
			seg.Friction++
		}
		seg.MaxFriction = mathx.MaxInt(seg.MaxFriction, seg.Friction)
		rep.ActiveCount++
	}

	for _, id := range model.SortedKeys(state.FrontSegments) {
		if _, ok := present[id]; ok {
			continue
		}
		seg := state.FrontSegments[id]
		if seg == nil || !seg.Active {
			continue
		}
		seg.Active = false
		seg.ActiveStreak = 0
		seg.Friction = 0
		seg.SinceTurn = turn
		rep.Deactivated = append(rep.Deactivated, id)
	}
	return rep
}

// ActiveEdges returns the active segments as front edges, sorted by id.
func ActiveEdges(state *model.State) []model.FrontEdge {
	var out []model.FrontEdge
	for _, id := range model.SortedKeys(state.FrontSegments) {
		seg := state.FrontSegments[id]
		if seg == nil || !seg.Active {
			continue
		}
		a, b, _ := model.SplitEdgeID(id)
		out = append(out, model.FrontEdge{EdgeID: id, SettlementA: a, SettlementB: b, SideA: seg.SideA, SideB: seg.SideB})
	}
	return out
}
