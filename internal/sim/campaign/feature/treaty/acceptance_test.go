package treaty

import (
	"encoding/json"
	"errors"
	"reflect"
	"testing"

	"statecraft.ai/internal/sim/campaign/kernel/model"
	"statecraft.ai/internal/sim/catalogs"
	"statecraft.ai/internal/sim/tuning"
)

func loadCatalog(t *testing.T) *catalogs.CompetenceCatalog {
	t.Helper()
	c, err := catalogs.Load("../../../../../configs")
	if err != nil {
		t.Fatalf("load catalogs: %v", err)
	}
	return &c.Competences
}

func testState(rsPressure int) *model.State {
	s := model.NewState()
	s.Factions["RBiH"] = &model.Faction{ID: "RBiH", Negotiation: model.NegotiationState{Pressure: 12},
		AreasOfResponsibility: map[string]bool{"sid1": true, "sid2": true}}
	s.Factions["RS"] = &model.Faction{ID: "RS", Negotiation: model.NegotiationState{Pressure: rsPressure},
		AreasOfResponsibility: map[string]bool{"sid3": true, "sid4": true, "brcko": true}}
	s.Factions["HRHB"] = &model.Faction{ID: "HRHB", AreasOfResponsibility: map[string]bool{"sid5": true}}
	s.Regions["R1"] = &model.FrontRegion{RegionID: "R1", SideA: "RBiH", SideB: "RS"}
	return s
}

func allocate(id, competence, holder string, targets ...string) AllocateCompetence {
	return AllocateCompetence{
		ClauseHeader: ClauseHeader{ID: id, Annex: AnnexInstitutional, Proposer: "RBiH", Targets: targets, Scope: Scope{Kind: ScopeGlobal}},
		Competence:   competence,
		Holder:       holder,
	}
}

func settlements(ids ...string) Scope { return Scope{Kind: ScopeSettlements, SettlementIDs: ids} }

func brcko(id string) BrckoSpecialStatus {
	return BrckoSpecialStatus{ClauseHeader: ClauseHeader{ID: id, Annex: AnnexTerritorial, Proposer: "RBiH", Targets: []string{"RS"}, Scope: settlements("brcko")}}
}

func draft(clauses ...Clause) Draft {
	return Draft{TreatyID: "T1", Proposer: "RBiH", Turn: 9, Clauses: clauses}
}

func TestEvaluateBundleIncomplete(t *testing.T) {
	rep, err := Evaluate(testState(15), loadCatalog(t), tuning.Defaults().Acceptance, draft(allocate("c1", "customs", "RS", "RS")))
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if rep.RejectionReason != RejectBundleIncomplete || rep.AcceptedByAllTargets {
		t.Fatalf("expected bundle rejection, got %+v", rep)
	}
	if !reflect.DeepEqual(rep.RejectionDetails.Competences, []string{"customs", "indirect_taxation"}) {
		t.Fatalf("unexpected details %+v", rep.RejectionDetails)
	}
	if len(rep.Targets) != 0 {
		t.Fatalf("constraint failures should not be scored: %+v", rep.Targets)
	}
}

func TestEvaluateBundleSplitAcrossHolders(t *testing.T) {
	rep, err := Evaluate(testState(15), loadCatalog(t), tuning.Defaults().Acceptance, draft(
		allocate("c1", "customs", "RS", "RS"),
		allocate("c2", "indirect_taxation", "RBiH", "RS"),
	))
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if rep.RejectionReason != RejectBundleIncomplete {
		t.Fatalf("expected bundle rejection for split holders, got %q", rep.RejectionReason)
	}
}

func TestEvaluateCompleteBundleAccepted(t *testing.T) {
	rep, err := Evaluate(testState(10), loadCatalog(t), tuning.Defaults().Acceptance, draft(
		allocate("c1", "customs", "RS", "RS"),
		allocate("c2", "indirect_taxation", "RS", "RS"),
	))
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if !rep.AcceptedByAllTargets || rep.RejectionReason != RejectNone {
		t.Fatalf("expected acceptance, got %+v", rep)
	}
	if len(rep.Targets) != 1 || rep.Targets[0].FactionID != "RS" {
		t.Fatalf("unexpected targets %+v", rep.Targets)
	}
	f := rep.Targets[0].Factors
	if f.CompetenceFactor != 5 || f.PressureFactor != 10 || f.BaseWill != -5 {
		t.Fatalf("unexpected factors %+v", f)
	}
	if rep.Targets[0].TotalScore != f.Total() || !rep.Targets[0].Accept {
		t.Fatalf("unexpected target score %+v", rep.Targets[0])
	}
}

func TestEvaluateForbiddenToFactionRegardlessOfScore(t *testing.T) {
	rep, err := Evaluate(testState(1000), loadCatalog(t), tuning.Defaults().Acceptance, draft(
		allocate("c1", "currency_authority", "RS", "RS"),
	))
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if rep.RejectionReason != RejectForbiddenToFaction || rep.AcceptedByAllTargets {
		t.Fatalf("expected forbidden rejection, got %+v", rep)
	}
	if rep.RejectionDetails.Competence != "currency_authority" || rep.RejectionDetails.Faction != "RS" {
		t.Fatalf("unexpected details %+v", rep.RejectionDetails)
	}
}

func TestEvaluateForbiddenHolder(t *testing.T) {
	rep, err := Evaluate(testState(10), loadCatalog(t), tuning.Defaults().Acceptance, draft(
		allocate("c1", "airspace_control", "HRHB", "HRHB"),
	))
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if rep.RejectionReason != RejectForbiddenHolder {
		t.Fatalf("expected forbidden holder, got %q", rep.RejectionReason)
	}
}

func TestEvaluateConstraintOrderIsFixed(t *testing.T) {
	d := draft(
		TransferSettlements{ClauseHeader: ClauseHeader{ID: "t1", Annex: AnnexTerritorial, Proposer: "RBiH", Targets: []string{"RS"}, Scope: settlements("sid3")}, GiverSide: "RS", ReceiverSide: "RBiH"},
		allocate("c1", "currency_authority", "RS", "RS"),
		allocate("c2", "customs", "RS", "RS"),
	)
	rep, err := Evaluate(testState(10), loadCatalog(t), tuning.Defaults().Acceptance, d)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if rep.RejectionReason != RejectBundleIncomplete {
		t.Fatalf("bundle check must run first, got %q", rep.RejectionReason)
	}

	d.Clauses = d.Clauses[:2]
	rep, _ = Evaluate(testState(10), loadCatalog(t), tuning.Defaults().Acceptance, d)
	if rep.RejectionReason != RejectForbiddenToFaction {
		t.Fatalf("forbid check must precede brcko, got %q", rep.RejectionReason)
	}

	d.Clauses = d.Clauses[:1]
	rep, _ = Evaluate(testState(10), loadCatalog(t), tuning.Defaults().Acceptance, d)
	if rep.RejectionReason != RejectBrckoUnresolved || !reflect.DeepEqual(rep.RejectionDetails.Clauses, []string{"t1"}) {
		t.Fatalf("expected brcko_unresolved, got %+v", rep)
	}
}

func TestEvaluateMultipleHolders(t *testing.T) {
	rep, err := Evaluate(testState(10), loadCatalog(t), tuning.Defaults().Acceptance, draft(
		allocate("c1", "education_policy", "RS", "RS"),
		allocate("c2", "education_policy", "HRHB", "RS"),
	))
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if rep.RejectionReason != RejectMultipleHolders || rep.RejectionDetails.Competence != "education_policy" {
		t.Fatalf("expected multiple holders, got %+v", rep)
	}
}

func TestEvaluateScoreFailureNamesFirstTarget(t *testing.T) {
	d := draft(
		TransferSettlements{ClauseHeader: ClauseHeader{ID: "t1", Annex: AnnexTerritorial, Proposer: "RBiH", Targets: []string{"RS"}, Scope: settlements("sid3", "sid4"), Cost: 4}, GiverSide: "RS", ReceiverSide: "RBiH"},
		brcko("b1"),
	)
	rep, err := Evaluate(testState(0), loadCatalog(t), tuning.Defaults().Acceptance, d)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if rep.AcceptedByAllTargets || rep.RejectionReason != RejectTargetRejected || rep.RejectionDetails.Faction != "RS" {
		t.Fatalf("expected target rejection by RS, got %+v", rep)
	}
	f := rep.Targets[0].Factors
	want := Factors{BaseWill: -5, GuaranteeFactor: 3, CostFactor: -2, HumiliationFactor: -4, HeldnessFactor: -2}
	if f != want {
		t.Fatalf("factors\n got=%+v\nwant=%+v", f, want)
	}
}

func TestEvaluateSelfTargetedDraftHasNoTargets(t *testing.T) {
	rep, err := Evaluate(testState(15), loadCatalog(t), tuning.Defaults().Acceptance, draft(
		allocate("c1", "customs", "RS", "RBiH"),
		allocate("c2", "indirect_taxation", "RS", "RBiH"),
	))
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if rep.AcceptedByAllTargets || rep.RejectionReason != RejectNoTargets || len(rep.Targets) != 0 {
		t.Fatalf("expected no_targets rejection, got %+v", rep)
	}
}

func TestEvaluateRealityAndTradeFactors(t *testing.T) {
	s := testState(20)
	d := draft(
		TransferSettlements{ClauseHeader: ClauseHeader{ID: "t1", Annex: AnnexTerritorial, Proposer: "RBiH", Targets: []string{"RS"}, Scope: settlements("sid3", "sid1")}, GiverSide: "RS", ReceiverSide: "RBiH"},
		TransferSettlements{ClauseHeader: ClauseHeader{ID: "t2", Annex: AnnexTerritorial, Proposer: "RBiH", Targets: []string{"RS"}, Scope: settlements("sid2")}, GiverSide: "RBiH", ReceiverSide: "RS"},
		RecognizeControlSettlements{ClauseHeader: ClauseHeader{ID: "r1", Annex: AnnexTerritorial, Proposer: "RBiH", Targets: []string{"RS"}, Scope: settlements("sid4", "brcko")}, Side: "RS"},
		brcko("b1"),
	)
	rep, err := Evaluate(s, loadCatalog(t), tuning.Defaults().Acceptance, d)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	f := rep.Targets[0].Factors
	if f.RealityFactor != 2 || f.WarningPenalty != -2 || f.HeldnessFactor != 0 || f.TradeFairnessFactor != 1 || f.HumiliationFactor != 0 {
		t.Fatalf("unexpected factors %+v", f)
	}
}

func TestEvaluateIsIdempotent(t *testing.T) {
	s := testState(7)
	cat := loadCatalog(t)
	d := draft(
		TransferSettlements{ClauseHeader: ClauseHeader{ID: "t1", Annex: AnnexTerritorial, Proposer: "RBiH", Targets: []string{"RS", "HRHB"}, Scope: settlements("sid3")}, GiverSide: "RS", ReceiverSide: "RBiH"},
		brcko("b1"),
		allocate("c1", "defence_policy", "RS", "RS"),
		allocate("c2", "armed_forces_command", "RS", "RS"),
	)
	r1, err := Evaluate(s, cat, tuning.Defaults().Acceptance, d)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	r2, _ := Evaluate(s, cat, tuning.Defaults().Acceptance, d)
	if !reflect.DeepEqual(r1, r2) {
		t.Fatalf("reports differ:\n%+v\n%+v", r1, r2)
	}
	b1, _ := json.Marshal(r1)
	b2, _ := json.Marshal(r2)
	if string(b1) != string(b2) {
		t.Fatalf("serialized reports differ")
	}
	if len(r1.Targets) != 2 || r1.Targets[0].FactionID != "HRHB" || r1.Targets[1].FactionID != "RS" {
		t.Fatalf("targets must be sorted by id: %+v", r1.Targets)
	}
}

func TestEvaluateStructuralErrors(t *testing.T) {
	cat := loadCatalog(t)
	cfg := tuning.Defaults().Acceptance
	cases := []struct {
		name string
		d    Draft
		want error
	}{
		{"unknown competence", draft(allocate("c1", "postal_service", "RS", "RS")), catalogs.ErrUnknownCompetence},
		{"unknown holder", draft(allocate("c1", "customs", "ZZ", "RS")), model.ErrUnknownFaction},
		{"unknown target", draft(allocate("c1", "customs", "RS", "ZZ")), model.ErrUnknownFaction},
		{"empty settlements", draft(BrckoSpecialStatus{ClauseHeader: ClauseHeader{ID: "b", Annex: AnnexTerritorial, Proposer: "RBiH", Targets: []string{"RS"}, Scope: Scope{Kind: ScopeSettlements}}}), ErrMalformedScope},
		{"unknown region", draft(FreezeRegion{ClauseHeader: ClauseHeader{ID: "f", Annex: AnnexMilitary, Proposer: "RBiH", Targets: []string{"RS"}, Scope: Scope{Kind: ScopeRegion, RegionID: "nowhere"}}}), ErrMalformedScope},
		{"wrong annex", draft(FreezeRegion{ClauseHeader: ClauseHeader{ID: "f", Annex: AnnexTerritorial, Proposer: "RBiH", Targets: []string{"RS"}, Scope: Scope{Kind: ScopeGlobal}}}), ErrMalformedClause},
	}
	for _, c := range cases {
		if _, err := Evaluate(testState(10), cat, cfg, c.d); !errors.Is(err, c.want) {
			t.Fatalf("%s: expected %v, got %v", c.name, c.want, err)
		}
	}
}

func TestDecodeDraft(t *testing.T) {
	raw := []byte(`{
	  "treaty_id": "T7",
	  "proposer": "RBiH",
	  "turn": 3,
	  "clauses": [
	    {"id": "t1", "kind": "transfer_settlements", "targets": ["RS"],
	     "scope": {"kind": "settlements", "settlement_ids": ["sid3"]}, "cost": 2,
	     "giver_side": "RS", "receiver_side": "RBiH"},
	    {"id": "c1", "kind": "allocate_competence", "targets": ["RS"],
	     "scope": {"kind": "global"}, "competence": "customs", "holder": "RS"}
	  ]
	}`)
	d, err := DecodeDraft(raw)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	tr, ok := d.Clauses[0].(TransferSettlements)
	if !ok || tr.GiverSide != "RS" || tr.Annex != AnnexTerritorial || tr.Proposer != "RBiH" {
		t.Fatalf("unexpected transfer clause %#v", d.Clauses[0])
	}
	if ac, ok := d.Clauses[1].(AllocateCompetence); !ok || ac.Annex != AnnexInstitutional || ac.Holder != "RS" {
		t.Fatalf("unexpected allocate clause %#v", d.Clauses[1])
	}
	if d.Totals() != (Totals{Clauses: 2, Cost: 2}) {
		t.Fatalf("unexpected totals %+v", d.Totals())
	}

	again, err := json.Marshal(d)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	d2, err := DecodeDraft(again)
	if err != nil || !reflect.DeepEqual(d, d2) {
		t.Fatalf("re-decode mismatch err=%v\n%#v\n%#v", err, d, d2)
	}

	_, err = DecodeDraft([]byte(`{"treaty_id":"T","proposer":"RBiH","clauses":[{"kind":"annex_everything"}]}`))
	if !errors.Is(err, ErrUnknownClauseKind) {
		t.Fatalf("expected ErrUnknownClauseKind, got %v", err)
	}
}
