// Package pressure accumulates per-faction negotiation pressure from the
// turn's exhaustion, breach, supply and collapse reports.
package pressure

import (
	"fmt"

	"statecraft.ai/internal/sim/campaign/feature/fronts"
	"statecraft.ai/internal/sim/campaign/kernel/model"
	"statecraft.ai/internal/sim/campaign/logic/mathx"
	"statecraft.ai/internal/sim/tuning"
)

type ExhaustionDelta struct {
	FactionID string `json:"faction_id"`
	Before    int    `json:"before"`
	After     int    `json:"after"`
}

type ExhaustionReport struct {
	Factions []ExhaustionDelta `json:"factions"`
}

type SupplyCounts struct {
	FactionID              string `json:"faction_id"`
	UnsuppliedFormations   int    `json:"unsupplied_formations"`
	UnsuppliedMilitiaPools int    `json:"unsupplied_militia_pools"`
}

type SupplyReport struct {
	Factions []SupplyCounts `json:"factions"`
}

type MunicipalityStatus struct {
	MunicipalityID  string `json:"municipality_id"`
	FactionID       string `json:"faction_id"`
	CollapsedBefore bool   `json:"collapsed_before"`
	CollapsedAfter  bool   `json:"collapsed_after"`
}

type SustainabilityReport struct {
	Municipalities []MunicipalityStatus `json:"municipalities"`
}

// Inputs are the collaborator reports for one turn. Any of them may be nil
// when the collaborator did not run; it then contributes nothing.
type Inputs struct {
	Exhaustion     *ExhaustionReport
	Breaches       []fronts.Breach
	Supply         *SupplyReport
	Sustainability *SustainabilityReport
}

type Components struct {
	Exhaustion       int `json:"exhaustion"`
	Breaches         int `json:"breaches"`
	SupplyFormations int `json:"supply_formations"`
	SupplyMilitia    int `json:"supply_militia"`
	Collapse         int `json:"collapse"`
}

func (c Components) Total() int {
	return c.Exhaustion + c.Breaches + c.SupplyFormations + c.SupplyMilitia + c.Collapse
}

type FactionPressure struct {
	FactionID      string     `json:"faction_id"`
	Before         int        `json:"before"`
	After          int        `json:"after"`
	Components     Components `json:"components"`
	TotalIncrement int        `json:"total_increment"`
}

type Report struct {
	Turn     int               `json:"turn"`
	Factions []FactionPressure `json:"factions"`
}

func (r Report) Faction(id string) (FactionPressure, bool) {
	for _, f := range r.Factions {
		if f.FactionID == id {
			return f, true
		}
	}
	return FactionPressure{}, false
}

// Compute derives each faction's components without touching state.
func Compute(state *model.State, in Inputs, cfg tuning.Pressure) (map[string]Components, error) {
	out := make(map[string]Components, len(state.Factions))
	for _, id := range state.FactionIDs() {
		out[id] = Components{}
	}
	known := func(id, what string) error {
		if _, ok := out[id]; !ok {
			return fmt.Errorf("%s: %w %q", what, model.ErrUnknownFaction, id)
		}
		return nil
	}

	if in.Exhaustion != nil {
		for _, d := range in.Exhaustion.Factions {
			if err := known(d.FactionID, "exhaustion report"); err != nil {
				return nil, err
			}
			c := out[d.FactionID]
			c.Exhaustion += mathx.MaxInt(0, d.After-d.Before)
			out[d.FactionID] = c
		}
	}

	counts := fronts.BreachCounts(in.Breaches)
	for _, id := range model.SortedKeys(counts) {
		if err := known(id, "breach"); err != nil {
			return nil, err
		}
		c := out[id]
		c.Breaches = mathx.MinInt(counts[id], cfg.BreachCap)
		out[id] = c
	}

	if in.Supply != nil {
		fu := mathx.MaxInt(cfg.UnsuppliedFormationsUnit, 1)
		mu := mathx.MaxInt(cfg.UnsuppliedMilitiaUnit, 1)
		for _, s := range in.Supply.Factions {
			if err := known(s.FactionID, "supply report"); err != nil {
				return nil, err
			}
			c := out[s.FactionID]
			c.SupplyFormations += mathx.MaxInt(0, s.UnsuppliedFormations) / fu
			c.SupplyMilitia += mathx.MaxInt(0, s.UnsuppliedMilitiaPools) / mu
			out[s.FactionID] = c
		}
	}

	if in.Sustainability != nil {
		for _, m := range in.Sustainability.Municipalities {
			if !m.CollapsedAfter || m.CollapsedBefore {
				continue
			}
			if err := known(m.FactionID, "sustainability report"); err != nil {
				return nil, err
			}
			c := out[m.FactionID]
			c.Collapse += cfg.CollapsePoints
			out[m.FactionID] = c
		}
	}
	return out, nil
}

// Accumulate applies the turn's increments. Pressure never decreases, and
// last_change_turn only moves when something was added.
func Accumulate(state *model.State, in Inputs, cfg tuning.Pressure, turn int) (Report, error) {
	comps, err := Compute(state, in, cfg)
	if err != nil {
		return Report{}, err
	}
	rep := Report{Turn: turn}
	for _, id := range state.FactionIDs() {
		f := state.Factions[id]
		c := comps[id]
		inc := mathx.MaxInt(0, c.Total())
		row := FactionPressure{
			FactionID:      id,
			Before:         f.Negotiation.Pressure,
			Components:     c,
			TotalIncrement: inc,
		}
		if inc > 0 {
			f.Negotiation.Pressure += inc
			f.Negotiation.LastChangeTurn = turn
		}
		row.After = f.Negotiation.Pressure
		rep.Factions = append(rep.Factions, row)
	}
	return rep, nil
}
