// Package commitment converts formation assignments into per-edge commit
// points and throttles posture demand by the resulting friction.
package commitment

import (
	"errors"
	"fmt"
	"sort"

	"statecraft.ai/internal/sim/campaign/kernel/model"
	"statecraft.ai/internal/sim/campaign/logic/mathx"
)

var (
	ErrUnknownRegion   = errors.New("unknown front region")
	ErrMalformedAssign = errors.New("malformed assignment")
)

type EdgeCommitment struct {
	EdgeID          string  `json:"edge_id"`
	FactionID       string  `json:"faction_id"`
	CommitPoints    int     `json:"commit_points"`
	Demand          int     `json:"demand"`
	Friction        float64 `json:"friction"`
	EffectiveWeight int     `json:"effective_weight"`
	CapacityApplied bool    `json:"capacity_applied"`
	Ceasefired      bool    `json:"ceasefired"`
}

type FactionCommitment struct {
	FactionID       string  `json:"faction_id"`
	TotalDemand     int     `json:"total_demand"`
	CommandCapacity *int    `json:"command_capacity"`
	CapacityApplied bool    `json:"capacity_applied"`
	CapacityScale   float64 `json:"capacity_scale"`
	CommittedPoints int     `json:"committed_points"`

	ActiveFormations       int `json:"active_formations"`
	UnsuppliedFormations   int `json:"unsupplied_formations"`
	MilitiaPools           int `json:"militia_pools"`
	UnsuppliedMilitiaPools int `json:"unsupplied_militia_pools"`
}

type Report struct {
	Turn     int                 `json:"turn"`
	Edges    []EdgeCommitment    `json:"edges"`
	Factions []FactionCommitment `json:"factions"`

	index map[string]int
}

func postureKey(factionID, edgeID string) string { return factionID + "|" + edgeID }

// EffectiveWeight implements fronts.WeightSource.
func (r *Report) EffectiveWeight(factionID, edgeID string) int {
	if r == nil {
		return 0
	}
	if r.index == nil {
		for _, e := range r.Edges {
			if e.FactionID == factionID && e.EdgeID == edgeID {
				return e.EffectiveWeight
			}
		}
		return 0
	}
	i, ok := r.index[postureKey(factionID, edgeID)]
	if !ok {
		return 0
	}
	return r.Edges[i].EffectiveWeight
}

func (r *Report) Faction(id string) (FactionCommitment, bool) {
	if r == nil {
		return FactionCommitment{}, false
	}
	i := sort.Search(len(r.Factions), func(i int) bool { return r.Factions[i].FactionID >= id })
	if i < len(r.Factions) && r.Factions[i].FactionID == id {
		return r.Factions[i], true
	}
	return FactionCommitment{}, false
}

// Resolve computes commit points, friction and effective posture weights
// for the turn. pointsPerFormation is the commitment one active, assigned
// formation brings. Ceasefired edges always resolve to weight 0.
func Resolve(state *model.State, pointsPerFormation, turn int) (Report, error) {
	if pointsPerFormation <= 0 {
		pointsPerFormation = 1000
	}
	rep := Report{Turn: turn}

	facs := map[string]*FactionCommitment{}
	factionRow := func(id string) (*FactionCommitment, error) {
		if fc, ok := facs[id]; ok {
			return fc, nil
		}
		f, ok := state.Faction(id)
		if !ok {
			return nil, fmt.Errorf("%w %q", model.ErrUnknownFaction, id)
		}
		fc := &FactionCommitment{FactionID: id, CapacityScale: 1}
		if f.CommandCapacity != nil {
			c := *f.CommandCapacity
			fc.CommandCapacity = &c
		}
		facs[id] = fc
		return fc, nil
	}
	for _, id := range state.FactionIDs() {
		if _, err := factionRow(id); err != nil {
			return Report{}, err
		}
	}

	commit := map[string]int{}
	for _, id := range model.SortedKeys(state.Formations) {
		f := state.Formations[id]
		if f == nil || !f.Active {
			continue
		}
		fc, err := factionRow(f.FactionID)
		if err != nil {
			return Report{}, fmt.Errorf("formation %s: %w", id, err)
		}
		fc.ActiveFormations++
		if !f.Supplied {
			fc.UnsuppliedFormations++
		}
		switch f.Assignment.Kind {
		case "", model.AssignNone:
		case model.AssignEdge:
			if f.Assignment.EdgeID == "" {
				return Report{}, fmt.Errorf("formation %s: %w: edge assignment without edge", id, ErrMalformedAssign)
			}
			commit[postureKey(f.FactionID, f.Assignment.EdgeID)] += pointsPerFormation
			fc.CommittedPoints += pointsPerFormation
		case model.AssignRegion:
			region, ok := state.Regions[f.Assignment.RegionID]
			if !ok || region == nil {
				return Report{}, fmt.Errorf("formation %s: %w %q", id, ErrUnknownRegion, f.Assignment.RegionID)
			}
			edges := activeRegionEdges(state, region)
			if len(edges) == 0 {
				continue
			}
			share, rem := pointsPerFormation/len(edges), pointsPerFormation%len(edges)
			for i, e := range edges {
				pts := share
				if i < rem {
					pts++
				}
				commit[postureKey(f.FactionID, e)] += pts
			}
			fc.CommittedPoints += pointsPerFormation
		default:
			return Report{}, fmt.Errorf("formation %s: %w: kind %q", id, ErrMalformedAssign, f.Assignment.Kind)
		}
	}

	for _, id := range model.SortedKeys(state.MilitiaPools) {
		p := state.MilitiaPools[id]
		if p == nil {
			continue
		}
		fc, err := factionRow(p.FactionID)
		if err != nil {
			return Report{}, fmt.Errorf("militia pool %s: %w", id, err)
		}
		fc.MilitiaPools++
		if !p.Supplied {
			fc.UnsuppliedMilitiaPools++
		}
	}

	postures, err := mergePostures(state.Postures)
	if err != nil {
		return Report{}, err
	}
	for _, p := range postures {
		fc, err := factionRow(p.FactionID)
		if err != nil {
			return Report{}, fmt.Errorf("posture %s: %w", p.EdgeID, err)
		}
		ec := EdgeCommitment{
			EdgeID:       p.EdgeID,
			FactionID:    p.FactionID,
			CommitPoints: commit[postureKey(p.FactionID, p.EdgeID)],
			Demand:       p.Weight,
		}
		if p.Weight > 0 {
			demand := p.Weight * pointsPerFormation
			ec.Friction = mathx.Clamp01(float64(ec.CommitPoints) / float64(demand))
			// floor(weight * commit/(weight*points)) without float rounding.
			ec.EffectiveWeight = mathx.MinInt(p.Weight, ec.CommitPoints/pointsPerFormation)
			fc.TotalDemand += p.Weight
		}
		rep.Edges = append(rep.Edges, ec)
	}

	for i := range rep.Edges {
		ec := &rep.Edges[i]
		fc := facs[ec.FactionID]
		if fc.CommandCapacity == nil || fc.TotalDemand <= *fc.CommandCapacity {
			continue
		}
		capacity := mathx.MaxInt(*fc.CommandCapacity, 0)
		fc.CapacityApplied = true
		fc.CapacityScale = float64(capacity) / float64(fc.TotalDemand)
		ec.EffectiveWeight = ec.EffectiveWeight * capacity / fc.TotalDemand
		ec.CapacityApplied = true
	}

	for i := range rep.Edges {
		ec := &rep.Edges[i]
		if _, frozen := state.Ceasefire[ec.EdgeID]; frozen {
			ec.EffectiveWeight = 0
			ec.Ceasefired = true
		}
	}

	sort.Slice(rep.Edges, func(i, j int) bool {
		if rep.Edges[i].EdgeID != rep.Edges[j].EdgeID {
			return rep.Edges[i].EdgeID < rep.Edges[j].EdgeID
		}
		return rep.Edges[i].FactionID < rep.Edges[j].FactionID
	})
	rep.index = make(map[string]int, len(rep.Edges))
	for i, e := range rep.Edges {
		rep.index[postureKey(e.FactionID, e.EdgeID)] = i
	}
	for _, id := range model.SortedKeys(facs) {
		rep.Factions = append(rep.Factions, *facs[id])
	}
	return rep, nil
}

func activeRegionEdges(state *model.State, region *model.FrontRegion) []string {
	seen := map[string]bool{}
	var out []string
	for _, e := range region.EdgeIDs {
		if seen[e] {
			continue
		}
		seen[e] = true
		if seg := state.FrontSegments[e]; seg != nil && seg.Active {
			out = append(out, e)
		}
	}
	sort.Strings(out)
	return out
}

// mergePostures sums duplicate (faction, edge) demands and sorts them by
// faction then edge.
func mergePostures(in []model.PostureAssignment) ([]model.PostureAssignment, error) {
	byKey := map[string]model.PostureAssignment{}
	for _, p := range in {
		if p.FactionID == "" || p.EdgeID == "" {
			return nil, fmt.Errorf("%w: posture needs faction and edge", ErrMalformedAssign)
		}
		k := postureKey(p.FactionID, p.EdgeID)
		cur, ok := byKey[k]
		if !ok {
			byKey[k] = p
			continue
		}
		cur.Weight += p.Weight
		byKey[k] = cur
	}
	out := make([]model.PostureAssignment, 0, len(byKey))
	for _, k := range model.SortedKeys(byKey) {
		out = append(out, byKey[k])
	}
	return out, nil
}
