package model

import (
	"reflect"
	"testing"
)

func TestEdgeIDCanonical(t *testing.T) {
	if EdgeID("b", "a") != "a__b" || EdgeID("a", "b") != "a__b" {
		t.Fatalf("edge id must be order independent")
	}
	a, b, ok := SplitEdgeID("a__b")
	if !ok || a != "a" || b != "b" {
		t.Fatalf("split: %q %q %v", a, b, ok)
	}
	if _, _, ok := SplitEdgeID("nosep"); ok {
		t.Fatalf("expected split failure")
	}
}

func TestEffectiveControllerLayersOverrides(t *testing.T) {
	s := NewState()
	s.Factions["A"] = &Faction{ID: "A", AreasOfResponsibility: map[string]bool{"s1": true}}
	s.Factions["B"] = &Faction{ID: "B", AreasOfResponsibility: map[string]bool{"s2": true}}
	if s.EffectiveController("s1") != "A" {
		t.Fatalf("base control")
	}
	s.ControlOverrides["s1"] = ControlOverride{Side: "B", Kind: OverlayTreatyTransfer}
	if s.EffectiveController("s1") != "B" || s.BaseController("s1") != "A" {
		t.Fatalf("override must layer over base ownership")
	}
	if s.EffectiveController("s9") != "" {
		t.Fatalf("unknown settlement has no controller")
	}
}

func TestCloneIsDeep(t *testing.T) {
	s := NewState()
	capacity := 3
	until := 4
	s.Factions["A"] = &Faction{ID: "A", AreasOfResponsibility: map[string]bool{"s1": true}, CommandCapacity: &capacity}
	s.FrontSegments["s1__s2"] = &FrontSegment{EdgeID: "s1__s2", Active: true}
	s.Ceasefire["s1__s2"] = CeasefireEntry{SinceTurn: 1, UntilTurn: &until}
	s.NegotiationLedger = []LedgerEntry{{ID: "x"}}

	c := s.Clone()
	if !reflect.DeepEqual(s, c) {
		t.Fatalf("clone differs from source")
	}
	c.Factions["A"].Negotiation.Pressure = 9
	c.Factions["A"].AreasOfResponsibility["s3"] = true
	*c.Factions["A"].CommandCapacity = 7
	c.FrontSegments["s1__s2"].Active = false
	*c.Ceasefire["s1__s2"].UntilTurn = 8
	c.NegotiationLedger[0].ID = "y"

	if s.Factions["A"].Negotiation.Pressure != 0 || s.Factions["A"].AreasOfResponsibility["s3"] ||
		*s.Factions["A"].CommandCapacity != 3 || !s.FrontSegments["s1__s2"].Active ||
		*s.Ceasefire["s1__s2"].UntilTurn != 4 || s.NegotiationLedger[0].ID != "x" {
		t.Fatalf("mutating the clone leaked into the source")
	}
}
