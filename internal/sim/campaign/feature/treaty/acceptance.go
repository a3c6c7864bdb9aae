package treaty

import (
	"sort"

	"statecraft.ai/internal/sim/campaign/kernel/model"
	"statecraft.ai/internal/sim/campaign/logic/mathx"
	"statecraft.ai/internal/sim/catalogs"
	"statecraft.ai/internal/sim/tuning"
)

// Factors are the named additive terms of one target's score.
type Factors struct {
	BaseWill            int `json:"base_will"`
	PressureFactor      int `json:"pressure_factor"`
	RealityFactor       int `json:"reality_factor"`
	GuaranteeFactor     int `json:"guarantee_factor"`
	CostFactor          int `json:"cost_factor"`
	HumiliationFactor   int `json:"humiliation_factor"`
	WarningPenalty      int `json:"warning_penalty"`
	HeldnessFactor      int `json:"heldness_factor"`
	TradeFairnessFactor int `json:"trade_fairness_factor"`
	CompetenceFactor    int `json:"competence_factor"`
}

func (f Factors) Total() int {
	return f.BaseWill + f.PressureFactor + f.RealityFactor + f.GuaranteeFactor + f.CostFactor +
		f.HumiliationFactor + f.WarningPenalty + f.HeldnessFactor + f.TradeFairnessFactor + f.CompetenceFactor
}

type TargetScore struct {
	FactionID  string  `json:"faction_id"`
	Factors    Factors `json:"factors"`
	TotalScore int     `json:"total_score"`
	Accept     bool    `json:"accept"`
}

type AcceptanceReport struct {
	TreatyID             string            `json:"treaty_id"`
	Turn                 int               `json:"turn"`
	Proposer             string            `json:"proposer"`
	Totals               Totals            `json:"totals"`
	Targets              []TargetScore     `json:"targets"`
	AcceptedByAllTargets bool              `json:"accepted_by_all_targets"`
	RejectionReason      RejectionReason   `json:"rejection_reason,omitempty"`
	RejectionDetails     *RejectionDetails `json:"rejection_details,omitempty"`
}

// Evaluate checks the draft's structural constraints and, when they all
// hold, scores every non-proposer target. It never mutates state. Unknown
// factions, competences or malformed scopes are returned as errors.
func Evaluate(state *model.State, cat *catalogs.CompetenceCatalog, cfg tuning.Acceptance, d Draft) (AcceptanceReport, error) {
	if err := Validate(state, cat, d); err != nil {
		return AcceptanceReport{}, err
	}
	rep := AcceptanceReport{
		TreatyID: d.TreatyID,
		Turn:     d.Turn,
		Proposer: d.Proposer,
		Totals:   d.Totals(),
	}

	if reason, details := checkConstraints(cat, d); reason != RejectNone {
		rep.RejectionReason = reason
		rep.RejectionDetails = details
		return rep, nil
	}

	targets := Targets(d)
	if len(targets) == 0 {
		rep.RejectionReason = RejectNoTargets
		return rep, nil
	}
	rep.AcceptedByAllTargets = true
	for _, t := range targets {
		f, err := score(state, cat, cfg, d, t)
		if err != nil {
			return AcceptanceReport{}, err
		}
		ts := TargetScore{FactionID: t, Factors: f, TotalScore: f.Total()}
		ts.Accept = ts.TotalScore >= cfg.AcceptBar
		if !ts.Accept && rep.AcceptedByAllTargets {
			rep.AcceptedByAllTargets = false
			rep.RejectionReason = RejectTargetRejected
			rep.RejectionDetails = &RejectionDetails{Faction: t}
		}
		rep.Targets = append(rep.Targets, ts)
	}
	return rep, nil
}

// Targets returns every faction some clause targets, minus the draft's
// proposer, sorted by id.
func Targets(d Draft) []string {
	set := map[string]bool{}
	for _, c := range d.Clauses {
		for _, t := range c.Header().Targets {
			if t != d.Proposer {
				set[t] = true
			}
		}
	}
	out := make([]string, 0, len(set))
	for t := range set {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

func score(state *model.State, cat *catalogs.CompetenceCatalog, cfg tuning.Acceptance, d Draft, target string) (Factors, error) {
	f := Factors{BaseWill: cfg.BaseWill}
	if fac, ok := state.Faction(target); ok {
		f.PressureFactor = mathx.MinInt(fac.Negotiation.Pressure, cfg.PressureCap)
	}
	if d.has(KindFreezeRegion) || d.has(KindBrckoSpecialStatus) {
		f.GuaranteeFactor = cfg.GuaranteeBonus
	}

	var given, givenHeld, givenUnheld, received, targetedCost int
	for _, c := range d.Clauses {
		h := c.Header()
		if h.targets(target) {
			targetedCost += h.Cost
		}
		switch v := c.(type) {
		case TransferSettlements:
			for _, sid := range v.Scope.Settlements() {
				if v.GiverSide == target {
					given++
					if state.EffectiveController(sid) == target {
						givenHeld++
					} else {
						givenUnheld++
					}
				}
				if v.ReceiverSide == target {
					received++
				}
			}
		case RecognizeControlSettlements:
			for _, sid := range v.Scope.Settlements() {
				if state.EffectiveController(sid) != target {
					continue
				}
				if v.Side == target {
					f.RealityFactor++
				} else {
					f.RealityFactor--
				}
			}
		case AllocateCompetence:
			if v.Holder != target {
				continue
			}
			u, err := cat.Utility(v.Competence, target)
			if err != nil {
				return Factors{}, err
			}
			f.CompetenceFactor += u
		}
	}

	f.CostFactor = -(targetedCost / mathx.MaxInt(cfg.CostDivisor, 1))
	if given > 0 && received == 0 {
		f.HumiliationFactor = -cfg.HumiliationPenalty
	}
	f.WarningPenalty = -cfg.WarningPenalty * givenUnheld
	f.HeldnessFactor = received - givenHeld
	if given > 0 && received > 0 {
		f.TradeFairnessFactor = mathx.MinInt(mathx.MinInt(given, received), cfg.TradeFairnessCap)
	}
	return f, nil
}
