package fronts

import (
	"statecraft.ai/internal/sim/campaign/kernel/model"
	"statecraft.ai/internal/sim/campaign/logic/mathx"
)

// WeightSource yields the effective posture weight a faction brings to an
// edge this turn.
type WeightSource interface {
	EffectiveWeight(factionID, edgeID string) int
}

type Breach struct {
	EdgeID string `json:"edge_id"`
	SideA  string `json:"side_a"`
	SideB  string `json:"side_b"`
	Value  int    `json:"value"`
}

type PressureReport struct {
	Deltas   []EdgeDelta `json:"deltas"`
	Breaches []Breach    `json:"breaches"`
}

type EdgeDelta struct {
	EdgeID string `json:"edge_id"`
	Delta  int    `json:"delta"`
	Value  int    `json:"value"`
}

// ApplyPressure accumulates side_a minus side_b effective weight onto every
// active edge, resets inactive edges to zero and reports breaches.
func ApplyPressure(state *model.State, weights WeightSource, breachThreshold, turn int) PressureReport {
	var rep PressureReport
	for _, id := range model.SortedKeys(state.FrontSegments) {
		seg := state.FrontSegments[id]
		if seg == nil {
			continue
		}
		fp := state.FrontPressures[id]
		if fp == nil {
			fp = &model.FrontPressure{EdgeID: id}
			state.FrontPressures[id] = fp
		}
		if !seg.Active {
			if fp.Value != 0 {
				fp.Value = 0
				fp.Updated = turn
			}
			continue
		}
		delta := 0
		if weights != nil {
			delta = weights.EffectiveWeight(seg.SideA, id) - weights.EffectiveWeight(seg.SideB, id)
		}
		fp.Value += delta
		fp.MaxAbs = mathx.MaxInt(fp.MaxAbs, mathx.AbsInt(fp.Value))
		fp.Updated = turn
		rep.Deltas = append(rep.Deltas, EdgeDelta{EdgeID: id, Delta: delta, Value: fp.Value})
	}
	rep.Breaches = Breaches(state, breachThreshold)
	return rep
}

// Breaches lists active, unfrozen edges whose pressure magnitude exceeds
// threshold, sorted by edge id. A ceasefired edge keeps its value but does
// not breach until the freeze lifts.
func Breaches(state *model.State, threshold int) []Breach {
	var out []Breach
	for _, id := range model.SortedKeys(state.FrontSegments) {
		seg := state.FrontSegments[id]
		fp := state.FrontPressures[id]
		if seg == nil || fp == nil || !seg.Active {
			continue
		}
		if _, frozen := state.Ceasefire[id]; frozen {
			continue
		}
		if mathx.AbsInt(fp.Value) > threshold {
			out = append(out, Breach{EdgeID: id, SideA: seg.SideA, SideB: seg.SideB, Value: fp.Value})
		}
	}
	return out
}

// BreachCounts counts, per faction, breaches touching it on either side.
func BreachCounts(breaches []Breach) map[string]int {
	out := map[string]int{}
	for _, b := range breaches {
		out[b.SideA]++
		if b.SideB != b.SideA {
			out[b.SideB]++
		}
	}
	return out
}
