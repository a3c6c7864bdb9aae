// Package territory applies an accepted treaty's territorial clauses to the
// control overlays and charges their capital cost to the proposer.
package territory

import (
	"fmt"
	"sort"

	"statecraft.ai/internal/sim/campaign/feature/treaty"
	"statecraft.ai/internal/sim/campaign/kernel/model"
	"statecraft.ai/internal/sim/tuning"
)

type FailureReason string

const (
	FailInsufficientCapital FailureReason = "insufficient_capital"
	FailInfeasibleTransfer  FailureReason = "infeasible_transfer"
	FailNoEffectiveControl  FailureReason = "cannot_recognize_without_effective_control"
)

type Transfer struct {
	ClauseID     string `json:"clause_id"`
	SettlementID string `json:"settlement_id"`
	From         string `json:"from"`
	To           string `json:"to"`
}

type Recognition struct {
	ClauseID     string `json:"clause_id"`
	SettlementID string `json:"settlement_id"`
	Side         string `json:"side"`
	Kind         string `json:"kind"`
}

// Failure is a business outcome, not an error. SettlementID is empty when the
// whole clause failed for a reason that is not tied to one settlement.
type Failure struct {
	ClauseID     string        `json:"clause_id"`
	SettlementID string        `json:"settlement_id,omitempty"`
	Reason       FailureReason `json:"reason"`
}

type Report struct {
	TreatyID     string              `json:"treaty_id"`
	Turn         int                 `json:"turn"`
	Transfers    []Transfer          `json:"transfers"`
	Recognitions []Recognition       `json:"recognitions"`
	Failures     []Failure           `json:"failures"`
	Ledger       []model.LedgerEntry `json:"ledger"`
}

// Apply executes the territorial clauses of d in clause id order. Each clause
// is all-or-nothing: a failed clause writes no overlay and spends nothing.
// Acceptance is the caller's concern; Apply only re-checks structure.
func Apply(state *model.State, cfg tuning.Territory, d treaty.Draft, turn int) (Report, error) {
	rep := Report{TreatyID: d.TreatyID, Turn: turn}
	for _, c := range orderedClauses(d) {
		var err error
		switch v := c.(type) {
		case treaty.TransferSettlements:
			err = applyTransfer(state, cfg, d.TreatyID, v, turn, &rep)
		case treaty.RecognizeControlSettlements:
			err = applyRecognition(state, cfg, d.TreatyID, v, turn, &rep)
		case treaty.BrckoSpecialStatus:
			for _, sid := range v.Scope.Settlements() {
				side := state.EffectiveController(sid)
				state.ControlRecognition[sid] = model.ControlRecognition{
					Side: side, Kind: model.OverlayBrckoStatus, TreatyID: d.TreatyID, SinceTurn: turn,
				}
				rep.Recognitions = append(rep.Recognitions, Recognition{
					ClauseID: v.ID, SettlementID: sid, Side: side, Kind: model.OverlayBrckoStatus,
				})
			}
		}
		if err != nil {
			return rep, err
		}
	}
	sortReport(&rep)
	return rep, nil
}

func proposer(state *model.State, h treaty.ClauseHeader) (*model.Faction, error) {
	f, ok := state.Faction(h.Proposer)
	if !ok {
		return nil, fmt.Errorf("clause %s proposer: %w %q", h.ID, model.ErrUnknownFaction, h.Proposer)
	}
	return f, nil
}

func applyTransfer(state *model.State, cfg tuning.Territory, treatyID string, c treaty.TransferSettlements, turn int, rep *Report) error {
	f, err := proposer(state, c.ClauseHeader)
	if err != nil {
		return err
	}
	sids := c.Scope.Settlements()
	cost := cfg.TransferCostPerSettlement * len(sids)
	if cost > f.Negotiation.Capital {
		rep.Failures = append(rep.Failures, Failure{ClauseID: c.ID, Reason: FailInsufficientCapital})
		return nil
	}
	infeasible := false
	for _, sid := range sids {
		if state.EffectiveController(sid) != c.GiverSide {
			rep.Failures = append(rep.Failures, Failure{ClauseID: c.ID, SettlementID: sid, Reason: FailInfeasibleTransfer})
			infeasible = true
		}
	}
	if infeasible {
		return nil
	}
	for _, sid := range sids {
		state.ControlOverrides[sid] = model.ControlOverride{
			Side: c.ReceiverSide, Kind: model.OverlayTreatyTransfer, TreatyID: treatyID, SinceTurn: turn,
		}
		state.ControlRecognition[sid] = model.ControlRecognition{
			Side: c.ReceiverSide, Kind: model.OverlayTreatyTransfer, TreatyID: treatyID, SinceTurn: turn,
		}
		rep.Transfers = append(rep.Transfers, Transfer{ClauseID: c.ID, SettlementID: sid, From: c.GiverSide, To: c.ReceiverSide})
	}
	rep.Ledger = append(rep.Ledger, spend(state, f, turn, cost, string(treaty.KindTransferSettlements)))
	return nil
}

// applyRecognition affirms control only where the recognized side already
// holds the settlement; only those settlements are charged.
func applyRecognition(state *model.State, cfg tuning.Territory, treatyID string, c treaty.RecognizeControlSettlements, turn int, rep *Report) error {
	f, err := proposer(state, c.ClauseHeader)
	if err != nil {
		return err
	}
	var held []string
	var missed []Failure
	for _, sid := range c.Scope.Settlements() {
		if state.EffectiveController(sid) == c.Side {
			held = append(held, sid)
		} else {
			missed = append(missed, Failure{ClauseID: c.ID, SettlementID: sid, Reason: FailNoEffectiveControl})
		}
	}
	rep.Failures = append(rep.Failures, missed...)
	if len(held) == 0 {
		return nil
	}
	cost := cfg.RecognitionCostPerSettlement * len(held)
	if cost > f.Negotiation.Capital {
		rep.Failures = append(rep.Failures, Failure{ClauseID: c.ID, Reason: FailInsufficientCapital})
		return nil
	}
	for _, sid := range held {
		state.ControlRecognition[sid] = model.ControlRecognition{
			Side: c.Side, Kind: model.OverlayTreatyRecognition, TreatyID: treatyID, SinceTurn: turn,
		}
		rep.Recognitions = append(rep.Recognitions, Recognition{
			ClauseID: c.ID, SettlementID: sid, Side: c.Side, Kind: model.OverlayTreatyRecognition,
		})
	}
	rep.Ledger = append(rep.Ledger, spend(state, f, turn, cost, string(treaty.KindRecognizeControl)))
	return nil
}

func orderedClauses(d treaty.Draft) []treaty.Clause {
	out := make([]treaty.Clause, len(d.Clauses))
	copy(out, d.Clauses)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Header().ID < out[j].Header().ID })
	return out
}

func sortReport(rep *Report) {
	sort.SliceStable(rep.Transfers, func(i, j int) bool {
		a, b := rep.Transfers[i], rep.Transfers[j]
		if a.SettlementID != b.SettlementID {
			return a.SettlementID < b.SettlementID
		}
		return a.ClauseID < b.ClauseID
	})
	sort.SliceStable(rep.Recognitions, func(i, j int) bool {
		a, b := rep.Recognitions[i], rep.Recognitions[j]
		if a.SettlementID != b.SettlementID {
			return a.SettlementID < b.SettlementID
		}
		return a.ClauseID < b.ClauseID
	})
	sort.SliceStable(rep.Failures, func(i, j int) bool {
		a, b := rep.Failures[i], rep.Failures[j]
		if a.SettlementID != b.SettlementID {
			return a.SettlementID < b.SettlementID
		}
		if a.ClauseID != b.ClauseID {
			return a.ClauseID < b.ClauseID
		}
		return a.Reason < b.Reason
	})
}
