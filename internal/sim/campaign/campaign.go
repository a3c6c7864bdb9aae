// Package campaign runs the negotiation engine one turn at a time over an
// exclusively owned state.
package campaign

import (
	"fmt"

	"statecraft.ai/internal/sim/campaign/feature/ceasefire"
	"statecraft.ai/internal/sim/campaign/feature/commitment"
	"statecraft.ai/internal/sim/campaign/feature/digest"
	"statecraft.ai/internal/sim/campaign/feature/fronts"
	"statecraft.ai/internal/sim/campaign/feature/offers"
	"statecraft.ai/internal/sim/campaign/feature/pressure"
	"statecraft.ai/internal/sim/campaign/feature/territory"
	"statecraft.ai/internal/sim/campaign/kernel/model"
	"statecraft.ai/internal/sim/catalogs"
	"statecraft.ai/internal/sim/tuning"
)

type Campaign struct {
	State   *model.State
	Tuning  tuning.Tuning
	Catalog *catalogs.CompetenceCatalog
}

func New(state *model.State, t tuning.Tuning, cat *catalogs.CompetenceCatalog) *Campaign {
	state.EnsureMaps()
	return &Campaign{State: state, Tuning: t, Catalog: cat}
}

// TurnInput carries the collaborator outputs for one turn. Nil reports
// contribute nothing; nil Edges are derived from adjacency and control, and
// a nil Supply report is taken from the commitment resolver's counts.
type TurnInput struct {
	Edges          []model.FrontEdge
	Exhaustion     *pressure.ExhaustionReport
	Supply         *pressure.SupplyReport
	Sustainability *pressure.SustainabilityReport
}

type TurnReport struct {
	Turn        int                    `json:"turn"`
	Sweep       ceasefire.SweepReport  `json:"sweep"`
	Segments    fronts.SegmentReport   `json:"segments"`
	Commitment  commitment.Report      `json:"commitment"`
	Fronts      fronts.PressureReport  `json:"fronts"`
	Pressure    pressure.Report        `json:"pressure"`
	Capital     []model.LedgerEntry    `json:"capital"`
	Offer       *offers.Offer          `json:"offer"`
	OfferSkip   offers.SkipReason      `json:"offer_skip,omitempty"`
	Gate        *offers.GateResult     `json:"gate,omitempty"`
	Enforcement *ceasefire.ApplyReport `json:"enforcement,omitempty"`
	Digest      string                 `json:"digest"`
}

// Step advances the campaign by one turn. All phases run against a copy of
// the state, which replaces the current one only if every phase succeeds.
func (c *Campaign) Step(in TurnInput) (TurnReport, error) {
	next := c.State.Clone()
	next.Turn++
	turn := next.Turn
	rep := TurnReport{Turn: turn}

	rep.Sweep = ceasefire.Sweep(next, turn)

	edges := in.Edges
	if edges == nil {
		edges = fronts.DeriveEdges(next)
	}
	rep.Segments = fronts.UpdateSegments(next, edges, turn)

	com, err := commitment.Resolve(next, c.Tuning.Commitment.PointsPerFormation, turn)
	if err != nil {
		return TurnReport{}, fmt.Errorf("turn %d commitment: %w", turn, err)
	}
	rep.Commitment = com

	rep.Fronts = fronts.ApplyPressure(next, &com, c.Tuning.Fronts.BreachThreshold, turn)

	supply := in.Supply
	if supply == nil {
		supply = supplyFromCommitment(com)
	}
	rep.Pressure, err = pressure.Accumulate(next, pressure.Inputs{
		Exhaustion:     in.Exhaustion,
		Breaches:       rep.Fronts.Breaches,
		Supply:         supply,
		Sustainability: in.Sustainability,
	}, c.Tuning.Pressure, turn)
	if err != nil {
		return TurnReport{}, fmt.Errorf("turn %d pressure: %w", turn, err)
	}

	rep.Capital, err = territory.AccrueCapital(next, rep.Pressure, c.Tuning.Pressure.CapitalPerPressure, turn)
	if err != nil {
		return TurnReport{}, fmt.Errorf("turn %d capital: %w", turn, err)
	}

	rep.Offer, rep.OfferSkip = offers.Generate(next, c.Tuning.Offers, turn)
	if rep.Offer != nil {
		g := offers.Gate(next, rep.Offer, c.Tuning.Offers)
		rep.Gate = &g
		if g.Passed && g.Package != nil {
			ar := ceasefire.Apply(next, *g.Package)
			rep.Enforcement = &ar
		}
	}

	rep.Digest = digest.StateDigest(next)
	c.State = next
	return rep, nil
}

func supplyFromCommitment(com commitment.Report) *pressure.SupplyReport {
	out := &pressure.SupplyReport{}
	for _, f := range com.Factions {
		out.Factions = append(out.Factions, pressure.SupplyCounts{
			FactionID:              f.FactionID,
			UnsuppliedFormations:   f.UnsuppliedFormations,
			UnsuppliedMilitiaPools: f.UnsuppliedMilitiaPools,
		})
	}
	return out
}

// Digest returns the digest of the current state.
func (c *Campaign) Digest() string {
	return digest.StateDigest(c.State)
}
