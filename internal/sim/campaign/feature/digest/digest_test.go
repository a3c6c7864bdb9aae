package digest

import (
	"testing"

	"statecraft.ai/internal/sim/campaign/kernel/model"
)

func sample() *model.State {
	s := model.NewState()
	s.Turn = 3
	s.Factions["A"] = &model.Faction{ID: "A", AreasOfResponsibility: map[string]bool{"s1": true, "s2": true}}
	s.Factions["B"] = &model.Faction{ID: "B", AreasOfResponsibility: map[string]bool{"s3": true}}
	s.FrontSegments["s2__s3"] = &model.FrontSegment{EdgeID: "s2__s3", SideA: "A", SideB: "B", Active: true, ActiveStreak: 2}
	s.Ceasefire["s2__s3"] = model.CeasefireEntry{SinceTurn: 2}
	return s
}

func TestStateDigestStable(t *testing.T) {
	a, b := StateDigest(sample()), StateDigest(sample())
	if a != b {
		t.Fatalf("digest differs for identical states: %s vs %s", a, b)
	}
	if len(a) != 64 {
		t.Fatalf("expected hex sha256, got %q", a)
	}
}

func TestStateDigestSensitivity(t *testing.T) {
	base := StateDigest(sample())

	s := sample()
	s.Factions["A"].Negotiation.Capital = 1
	if StateDigest(s) == base {
		t.Fatalf("capital change not reflected")
	}

	s = sample()
	until := 5
	s.Ceasefire["s2__s3"] = model.CeasefireEntry{SinceTurn: 2, UntilTurn: &until}
	if StateDigest(s) == base {
		t.Fatalf("ceasefire expiry not reflected")
	}

	s = sample()
	s.ControlOverrides["s1"] = model.ControlOverride{Side: "B", Kind: model.OverlayTreatyTransfer, TreatyID: "T", SinceTurn: 3}
	if StateDigest(s) == base {
		t.Fatalf("override not reflected")
	}
}

func TestStateDigestFieldBoundaries(t *testing.T) {
	s1 := sample()
	s1.ControlRecognition["ab"] = model.ControlRecognition{Side: "c"}
	s2 := sample()
	s2.ControlRecognition["a"] = model.ControlRecognition{Side: "bc"}
	if StateDigest(s1) == StateDigest(s2) {
		t.Fatalf("adjacent strings must not alias")
	}
}
