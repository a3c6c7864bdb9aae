package campaign

import (
	"encoding/json"
	"errors"
	"reflect"
	"regexp"
	"testing"

	"statecraft.ai/internal/sim/campaign/feature/commitment"
	"statecraft.ai/internal/sim/campaign/feature/offers"
	"statecraft.ai/internal/sim/campaign/feature/pressure"
	"statecraft.ai/internal/sim/campaign/feature/treaty"
	"statecraft.ai/internal/sim/campaign/kernel/model"
	"statecraft.ai/internal/sim/catalogs"
	"statecraft.ai/internal/sim/scenario"
	"statecraft.ai/internal/sim/tuning"
)

const configDir = "../../../configs"

func newSample(t *testing.T) *Campaign {
	t.Helper()
	tun, err := tuning.Load(configDir + "/tuning.yaml")
	if err != nil {
		t.Fatalf("tuning: %v", err)
	}
	cats, err := catalogs.Load(configDir)
	if err != nil {
		t.Fatalf("catalogs: %v", err)
	}
	s, err := scenario.LoadState(configDir + "/scenarios/sample.yaml")
	if err != nil {
		t.Fatalf("scenario: %v", err)
	}
	return New(s, tun, &cats.Competences)
}

func exhaustion(pairs ...any) *pressure.ExhaustionReport {
	rep := &pressure.ExhaustionReport{}
	for i := 0; i+1 < len(pairs); i += 2 {
		rep.Factions = append(rep.Factions, pressure.ExhaustionDelta{FactionID: pairs[i].(string), After: pairs[i+1].(int)})
	}
	return rep
}

func TestStepIsDeterministic(t *testing.T) {
	run := func() ([]string, []byte) {
		c := newSample(t)
		var digests []string
		var reports []TurnReport
		for i := 0; i < 12; i++ {
			in := TurnInput{}
			if i%3 == 0 {
				in.Exhaustion = exhaustion("RBiH", 2, "RS", 3)
			}
			rep, err := c.Step(in)
			if err != nil {
				t.Fatalf("step %d: %v", i+1, err)
			}
			digests = append(digests, rep.Digest)
			reports = append(reports, rep)
		}
		b, err := json.Marshal(reports)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		return digests, b
	}
	d1, b1 := run()
	d2, b2 := run()
	if !reflect.DeepEqual(d1, d2) {
		t.Fatalf("digests differ:\n%v\n%v", d1, d2)
	}
	if string(b1) != string(b2) {
		t.Fatalf("serialized turn reports differ")
	}
}

func TestStepGeneratesGatedFreezeAndSweepsIt(t *testing.T) {
	c := newSample(t)
	rep, err := c.Step(TurnInput{Exhaustion: exhaustion("RBiH", 10, "RS", 12)})
	if err != nil {
		t.Fatalf("step: %v", err)
	}
	if rep.Offer == nil || rep.Offer.Kind != offers.KindLocalFreeze || rep.Offer.Scope.RegionID != "central" {
		t.Fatalf("expected local freeze in central, got %+v (skip %q)", rep.Offer, rep.OfferSkip)
	}
	if rep.Offer.Rationale.Initiator != "RS" || rep.Offer.Rationale.Counterpart != "RBiH" {
		t.Fatalf("unexpected rationale %+v", rep.Offer.Rationale)
	}
	if rep.Gate == nil || !rep.Gate.Passed || rep.Enforcement == nil {
		t.Fatalf("offer should pass the gates: %+v", rep.Gate)
	}
	wantFrozen := []string{"s01__s05", "s02__s06", "s03__s07"}
	if !reflect.DeepEqual(rep.Enforcement.Frozen, wantFrozen) {
		t.Fatalf("frozen %v", rep.Enforcement.Frozen)
	}
	if rep.Enforcement.UntilTurn == nil || *rep.Enforcement.UntilTurn != 5 {
		t.Fatalf("expected until_turn 5, got %v", rep.Enforcement.UntilTurn)
	}
	if !c.State.NegotiationStatus.CeasefireActive || c.State.NegotiationStatus.CeasefireSinceTurn != 1 {
		t.Fatalf("ceasefire not recorded: %+v", c.State.NegotiationStatus)
	}
	if c.State.Factions["RS"].Negotiation.Pressure != 12 || c.State.Factions["RS"].Negotiation.Capital != 8 {
		t.Fatalf("unexpected RS negotiation %+v", c.State.Factions["RS"].Negotiation)
	}

	rep, err = c.Step(TurnInput{})
	if err != nil {
		t.Fatalf("step 2: %v", err)
	}
	if rep.Offer != nil || rep.OfferSkip != offers.SkipCeasefireActive {
		t.Fatalf("no offer while a ceasefire is active, got %+v", rep.Offer)
	}
	if seg := c.State.FrontSegments["s01__s05"]; seg.Friction != 1 || seg.ActiveStreak != 2 {
		t.Fatalf("frozen edge friction must not grow: %+v", seg)
	}
	for _, e := range rep.Commitment.Edges {
		if e.EdgeID == "s01__s05" && (e.EffectiveWeight != 0 || !e.Ceasefired) {
			t.Fatalf("frozen edge must resolve to zero weight: %+v", e)
		}
	}
	for i := 3; i <= 5; i++ {
		if _, err := c.Step(TurnInput{}); err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
	}
	rep, err = c.Step(TurnInput{})
	if err != nil {
		t.Fatalf("step 6: %v", err)
	}
	if !reflect.DeepEqual(rep.Sweep.Expired, wantFrozen) || !rep.Sweep.Cleared {
		t.Fatalf("expected the freeze to expire at turn 6: %+v", rep.Sweep)
	}
}

func TestStepFailureLeavesStateUntouched(t *testing.T) {
	c := newSample(t)
	before := c.Digest()

	_, err := c.Step(TurnInput{Exhaustion: exhaustion("Nobody", 3)})
	if !errors.Is(err, model.ErrUnknownFaction) {
		t.Fatalf("expected unknown faction, got %v", err)
	}
	if c.Digest() != before || c.State.Turn != 0 || len(c.State.FrontSegments) != 0 {
		t.Fatalf("failed step leaked partial mutations")
	}

	c.State.Formations["lost"] = &model.Formation{ID: "lost", FactionID: "RS", Active: true,
		Assignment: model.Assignment{Kind: model.AssignRegion, RegionID: "nowhere"}}
	if _, err := c.Step(TurnInput{}); !errors.Is(err, commitment.ErrUnknownRegion) {
		t.Fatalf("expected unknown region, got %v", err)
	}
}

func peaceDraft() treaty.Draft {
	terr := func(id string, sids ...string) treaty.ClauseHeader {
		return treaty.ClauseHeader{ID: id, Annex: treaty.AnnexTerritorial, Proposer: "RBiH", Targets: []string{"RS"},
			Scope: treaty.Scope{Kind: treaty.ScopeSettlements, SettlementIDs: sids}}
	}
	inst := func(id string) treaty.ClauseHeader {
		return treaty.ClauseHeader{ID: id, Annex: treaty.AnnexInstitutional, Proposer: "RBiH", Targets: []string{"RS"},
			Scope: treaty.Scope{Kind: treaty.ScopeGlobal}}
	}
	return treaty.Draft{TreatyID: "DAYTON_1", Proposer: "RBiH", Clauses: []treaty.Clause{
		treaty.TransferSettlements{ClauseHeader: terr("c1", "s08"), GiverSide: "RS", ReceiverSide: "RBiH"},
		treaty.BrckoSpecialStatus{ClauseHeader: terr("c2", "brcko")},
		treaty.AllocateCompetence{ClauseHeader: inst("c3"), Competence: "customs", Holder: "RS"},
		treaty.AllocateCompetence{ClauseHeader: inst("c4"), Competence: "indirect_taxation", Holder: "RS"},
		treaty.FreezeRegion{ClauseHeader: treaty.ClauseHeader{ID: "c5", Annex: treaty.AnnexMilitary, Proposer: "RBiH",
			Targets: []string{"RS"}, Scope: treaty.Scope{Kind: treaty.ScopeRegion, RegionID: "posavina"}}},
	}}
}

func TestApplyTreatyAccepted(t *testing.T) {
	c := newSample(t)
	if _, err := c.Step(TurnInput{}); err != nil {
		t.Fatalf("step: %v", err)
	}
	c.State.Factions["RS"].Negotiation.Pressure = 20
	capital := c.State.Factions["RBiH"].Negotiation.Capital

	out, err := c.ApplyTreaty(peaceDraft())
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if !out.Acceptance.AcceptedByAllTargets || !out.Applied {
		t.Fatalf("expected acceptance, got %+v", out.Acceptance)
	}
	if c.State.EffectiveController("s08") != "RBiH" || c.State.ControlOverrides["s08"].SinceTurn != 1 {
		t.Fatalf("transfer not applied: %+v", c.State.ControlOverrides)
	}
	if got := c.State.Factions["RBiH"].Negotiation.Capital; got != capital-2 {
		t.Fatalf("expected 2 capital spent, capital %d -> %d", capital, got)
	}
	if c.State.ControlRecognition["brcko"].Kind != model.OverlayBrckoStatus {
		t.Fatalf("brcko status not recorded")
	}
	if !reflect.DeepEqual(out.Allocations, []string{"customs", "indirect_taxation"}) ||
		c.State.CompetenceAllocations["customs"].Holder != "RS" {
		t.Fatalf("allocations not recorded: %+v", c.State.CompetenceAllocations)
	}
	if out.Enforcement == nil || !reflect.DeepEqual(out.Enforcement.Frozen, []string{"brcko__s04", "s04__s08"}) {
		t.Fatalf("posavina freeze not applied: %+v", out.Enforcement)
	}
	if e := c.State.Ceasefire["s04__s08"]; e.UntilTurn != nil || e.OfferID != "DAYTON_1" {
		t.Fatalf("treaty freeze must be indefinite: %+v", e)
	}
	if out.Digest != c.Digest() {
		t.Fatalf("outcome digest must describe the new state")
	}
}

func TestApplyTreatyDatesEffectsToCurrentTurn(t *testing.T) {
	c := newSample(t)
	for i := 0; i < 5; i++ {
		if _, err := c.Step(TurnInput{}); err != nil {
			t.Fatalf("step: %v", err)
		}
	}
	c.State.Factions["RS"].Negotiation.Pressure = 20
	c.State.Factions["RBiH"].Negotiation.Capital = 10

	d := peaceDraft()
	d.Turn = 1
	out, err := c.ApplyTreaty(d)
	if err != nil || !out.Applied {
		t.Fatalf("apply: %+v err=%v", out.Acceptance, err)
	}
	if out.Acceptance.Turn != 1 {
		t.Fatalf("report should keep the proposal turn, got %d", out.Acceptance.Turn)
	}
	if o := c.State.ControlOverrides["s08"]; o.SinceTurn != 5 {
		t.Fatalf("override dated %d, want 5", o.SinceTurn)
	}
	if r := c.State.ControlRecognition["brcko"]; r.SinceTurn != 5 {
		t.Fatalf("recognition dated %d, want 5", r.SinceTurn)
	}
	if a := c.State.CompetenceAllocations["customs"]; a.SinceTurn != 5 {
		t.Fatalf("allocation dated %d, want 5", a.SinceTurn)
	}
	if e := c.State.Ceasefire["s04__s08"]; e.SinceTurn != 5 {
		t.Fatalf("freeze dated %d, want 5", e.SinceTurn)
	}
	if out.Territory == nil || out.Territory.Turn != 5 || len(out.Territory.Ledger) == 0 {
		t.Fatalf("territory report %+v", out.Territory)
	}
	for _, e := range out.Territory.Ledger {
		if e.Turn != 5 {
			t.Fatalf("ledger entry %s dated %d, want 5", e.ID, e.Turn)
		}
	}
}

func TestApplyTreatyRejectedDoesNotMutate(t *testing.T) {
	c := newSample(t)
	if _, err := c.Step(TurnInput{}); err != nil {
		t.Fatalf("step: %v", err)
	}
	before := c.Digest()
	out, err := c.ApplyTreaty(peaceDraft())
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if out.Applied || out.Acceptance.RejectionReason != treaty.RejectTargetRejected {
		t.Fatalf("expected target rejection, got %+v", out.Acceptance)
	}
	if c.Digest() != before || out.Digest != before {
		t.Fatalf("rejected treaty mutated state")
	}

	d := peaceDraft()
	d.Clauses = d.Clauses[2:3]
	out, err = c.ApplyTreaty(d)
	if err != nil || out.Applied || out.Acceptance.RejectionReason != treaty.RejectBundleIncomplete {
		t.Fatalf("unexpected outcome %+v err=%v", out.Acceptance, err)
	}

	d.Clauses = append(d.Clauses, treaty.AllocateCompetence{ClauseHeader: treaty.ClauseHeader{ID: "c9",
		Annex: treaty.AnnexInstitutional, Proposer: "RBiH", Targets: []string{"RS"}}, Competence: "postal_service", Holder: "RS"})
	if _, err := c.ApplyTreaty(d); !errors.Is(err, catalogs.ErrUnknownCompetence) {
		t.Fatalf("expected unknown competence error, got %v", err)
	}
}

var timestampRe = regexp.MustCompile(`\d{4}-\d{2}-\d{2}[T ]\d{2}:\d{2}`)

func TestOutputsCarryNoTimestamps(t *testing.T) {
	c := newSample(t)
	var out []any
	for i := 0; i < 6; i++ {
		rep, err := c.Step(TurnInput{Exhaustion: exhaustion("RBiH", 4, "RS", 5)})
		if err != nil {
			t.Fatalf("step: %v", err)
		}
		out = append(out, rep)
	}
	acc, err := c.EvaluateTreaty(peaceDraft())
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	out = append(out, acc, c.State)
	b, err := json.Marshal(out)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if m := timestampRe.Find(b); m != nil {
		t.Fatalf("found timestamp-shaped string %q", m)
	}
}

func TestSubmitEvaluateOnlyDatesDraftAndKeepsState(t *testing.T) {
	c := newSample(t)
	if _, err := c.Step(TurnInput{}); err != nil {
		t.Fatalf("step: %v", err)
	}
	c.State.Factions["RS"].Negotiation.Pressure = 20
	before := c.Digest()

	out, err := c.Submit(peaceDraft(), false)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if out.Applied || out.Acceptance.Turn != 1 || !out.Acceptance.AcceptedByAllTargets {
		t.Fatalf("unexpected outcome %+v", out.Acceptance)
	}
	if out.Digest != before || c.Digest() != before {
		t.Fatalf("evaluation must not mutate state")
	}

	out, err = c.Submit(peaceDraft(), true)
	if err != nil || !out.Applied {
		t.Fatalf("apply: %+v err=%v", out, err)
	}
	if c.Digest() == before {
		t.Fatalf("applied treaty must change the state")
	}
}
