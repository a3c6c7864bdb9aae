package territory

import (
	"errors"
	"fmt"

	"statecraft.ai/internal/sim/campaign/feature/pressure"
	"statecraft.ai/internal/sim/campaign/kernel/model"
	"statecraft.ai/internal/sim/campaign/logic/ids"
	"statecraft.ai/internal/sim/campaign/logic/mathx"
)

var (
	ErrNegativeAmount = errors.New("negative amount")
)

const (
	ReasonScenarioStart   = "scenario_start"
	ReasonPressureAccrual = "pressure_accrual"
)

// appendLedger records one entry. The sequence number counts every earlier
// entry of the same faction and reason, so ids stay unique across turns.
func appendLedger(state *model.State, turn int, factionID string, kind model.LedgerKind, reason string, amount int) model.LedgerEntry {
	seq := 1
	for _, e := range state.NegotiationLedger {
		if e.FactionID == factionID && e.Reason == reason {
			seq++
		}
	}
	e := model.LedgerEntry{
		ID:        ids.LedgerEntryID(turn, factionID, string(kind), reason, seq),
		Turn:      turn,
		FactionID: factionID,
		Kind:      kind,
		Amount:    amount,
		Reason:    reason,
	}
	state.NegotiationLedger = append(state.NegotiationLedger, e)
	return e
}

func spend(state *model.State, f *model.Faction, turn, amount int, reason string) model.LedgerEntry {
	f.Negotiation.Capital -= amount
	f.Negotiation.SpentTotal += amount
	f.Negotiation.LastCapitalChangeTurn = turn
	return appendLedger(state, turn, f.ID, model.LedgerSpend, reason, amount)
}

// GrantCapital credits capital to a faction and records the gain.
func GrantCapital(state *model.State, factionID string, amount, turn int, reason string) (model.LedgerEntry, error) {
	f, ok := state.Faction(factionID)
	if !ok {
		return model.LedgerEntry{}, fmt.Errorf("grant capital: %w %q", model.ErrUnknownFaction, factionID)
	}
	if amount < 0 {
		return model.LedgerEntry{}, fmt.Errorf("grant capital to %s: %w %d", factionID, ErrNegativeAmount, amount)
	}
	f.Negotiation.Capital += amount
	f.Negotiation.LastCapitalChangeTurn = turn
	return appendLedger(state, turn, factionID, model.LedgerGain, reason, amount), nil
}

// AccrueCapital converts this turn's pressure growth into capital: one unit
// for every perPressure threshold crossed. perPressure <= 0 disables accrual.
func AccrueCapital(state *model.State, rep pressure.Report, perPressure, turn int) ([]model.LedgerEntry, error) {
	if perPressure <= 0 {
		return nil, nil
	}
	var out []model.LedgerEntry
	for _, row := range rep.Factions {
		gain := mathx.FloorDiv(row.After, perPressure) - mathx.FloorDiv(row.Before, perPressure)
		if gain <= 0 {
			continue
		}
		e, err := GrantCapital(state, row.FactionID, gain, turn, ReasonPressureAccrual)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}
