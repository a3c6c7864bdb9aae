package snapshot

import (
	"sort"

	"statecraft.ai/internal/sim/campaign/feature/digest"
	"statecraft.ai/internal/sim/campaign/kernel/model"
	"statecraft.ai/internal/sim/tuning"
)

// Export flattens the state into sorted V1 records.
func Export(s *model.State, scenario string, t tuning.Tuning, catalogDigest string) SnapshotV1 {
	snap := SnapshotV1{
		Header: Header{
			Version:  Version,
			Scenario: scenario,
			Turn:     s.Turn,
			Digest:   digest.StateDigest(s),
		},
		Tuning:        t,
		CatalogDigest: catalogDigest,
		NegotiationStatus: NegotiationStatusV1{
			CeasefireActive:    s.NegotiationStatus.CeasefireActive,
			CeasefireSinceTurn: s.NegotiationStatus.CeasefireSinceTurn,
			LastOfferTurn:      s.NegotiationStatus.LastOfferTurn,
			LastOfferID:        s.NegotiationStatus.LastOfferID,
		},
		SupplySources: append([]string(nil), s.SupplySources...),
	}

	for _, id := range s.FactionIDs() {
		f := s.Factions[id]
		fv := FactionV1{
			ID:                    id,
			Authority:             f.Profile.Authority,
			Legitimacy:            f.Profile.Legitimacy,
			Control:               f.Profile.Control,
			Logistics:             f.Profile.Logistics,
			Exhaustion:            f.Profile.Exhaustion,
			Pressure:              f.Negotiation.Pressure,
			LastChangeTurn:        f.Negotiation.LastChangeTurn,
			Capital:               f.Negotiation.Capital,
			SpentTotal:            f.Negotiation.SpentTotal,
			LastCapitalChangeTurn: f.Negotiation.LastCapitalChangeTurn,
		}
		for sid, ok := range f.AreasOfResponsibility {
			if ok {
				fv.AoR = append(fv.AoR, sid)
			}
		}
		sort.Strings(fv.AoR)
		if f.CommandCapacity != nil {
			fv.HasCommandCapacity = true
			fv.CommandCapacity = *f.CommandCapacity
		}
		snap.Factions = append(snap.Factions, fv)
	}
	for _, id := range model.SortedKeys(s.Adjacency) {
		snap.Adjacency = append(snap.Adjacency, AdjacencyV1{Settlement: id, Neighbors: append([]string(nil), s.Adjacency[id]...)})
	}
	for _, id := range model.SortedKeys(s.Regions) {
		if r := s.Regions[id]; r != nil {
			snap.Regions = append(snap.Regions, RegionV1{ID: id, SideA: r.SideA, SideB: r.SideB, Edges: append([]string(nil), r.EdgeIDs...)})
		}
	}
	for _, id := range model.SortedKeys(s.Formations) {
		if f := s.Formations[id]; f != nil {
			snap.Formations = append(snap.Formations, FormationV1{
				ID: id, FactionID: f.FactionID, Active: f.Active, Supplied: f.Supplied,
				AssignKind: string(f.Assignment.Kind), EdgeID: f.Assignment.EdgeID, RegionID: f.Assignment.RegionID,
			})
		}
	}
	for _, id := range model.SortedKeys(s.MilitiaPools) {
		if p := s.MilitiaPools[id]; p != nil {
			snap.MilitiaPools = append(snap.MilitiaPools, MilitiaPoolV1{ID: id, FactionID: p.FactionID, MunicipalityID: p.MunicipalityID, Supplied: p.Supplied})
		}
	}
	for _, p := range s.Postures {
		snap.Postures = append(snap.Postures, PostureV1{FactionID: p.FactionID, EdgeID: p.EdgeID, Weight: p.Weight})
	}
	for _, id := range model.SortedKeys(s.FrontSegments) {
		if g := s.FrontSegments[id]; g != nil {
			snap.Segments = append(snap.Segments, SegmentV1{
				EdgeID: id, SideA: g.SideA, SideB: g.SideB, Active: g.Active,
				ActiveStreak: g.ActiveStreak, Friction: g.Friction, MaxFriction: g.MaxFriction, SinceTurn: g.SinceTurn,
			})
		}
	}
	for _, id := range model.SortedKeys(s.FrontPressures) {
		if p := s.FrontPressures[id]; p != nil {
			snap.Pressures = append(snap.Pressures, PressureV1{EdgeID: id, Value: p.Value, MaxAbs: p.MaxAbs, Updated: p.Updated})
		}
	}
	for _, id := range model.SortedKeys(s.Ceasefire) {
		c := s.Ceasefire[id]
		cv := CeasefireV1{EdgeID: id, SinceTurn: c.SinceTurn, OfferID: c.OfferID}
		if c.UntilTurn != nil {
			cv.HasUntil = true
			cv.UntilTurn = *c.UntilTurn
		}
		snap.Ceasefire = append(snap.Ceasefire, cv)
	}
	for _, sid := range model.SortedKeys(s.ControlOverrides) {
		o := s.ControlOverrides[sid]
		snap.Overrides = append(snap.Overrides, OverlayV1{SettlementID: sid, Side: o.Side, Kind: o.Kind, TreatyID: o.TreatyID, SinceTurn: o.SinceTurn})
	}
	for _, sid := range model.SortedKeys(s.ControlRecognition) {
		r := s.ControlRecognition[sid]
		snap.Recognition = append(snap.Recognition, OverlayV1{SettlementID: sid, Side: r.Side, Kind: r.Kind, TreatyID: r.TreatyID, SinceTurn: r.SinceTurn})
	}
	for _, cid := range model.SortedKeys(s.CompetenceAllocations) {
		a := s.CompetenceAllocations[cid]
		snap.Allocations = append(snap.Allocations, AllocationV1{Competence: cid, Holder: a.Holder, TreatyID: a.TreatyID, SinceTurn: a.SinceTurn})
	}
	for _, e := range s.NegotiationLedger {
		snap.Ledger = append(snap.Ledger, LedgerV1{ID: e.ID, Turn: e.Turn, FactionID: e.FactionID, Kind: string(e.Kind), Amount: e.Amount, Reason: e.Reason})
	}
	return snap
}

// Import rebuilds the campaign state.
func Import(snap SnapshotV1) *model.State {
	s := model.NewState()
	s.Turn = snap.Header.Turn
	s.NegotiationStatus = model.NegotiationStatus{
		CeasefireActive:    snap.NegotiationStatus.CeasefireActive,
		CeasefireSinceTurn: snap.NegotiationStatus.CeasefireSinceTurn,
		LastOfferTurn:      snap.NegotiationStatus.LastOfferTurn,
		LastOfferID:        snap.NegotiationStatus.LastOfferID,
	}
	s.SupplySources = append([]string(nil), snap.SupplySources...)

	for _, fv := range snap.Factions {
		f := &model.Faction{
			ID: fv.ID,
			Profile: model.Profile{
				Authority: fv.Authority, Legitimacy: fv.Legitimacy, Control: fv.Control,
				Logistics: fv.Logistics, Exhaustion: fv.Exhaustion,
			},
			Negotiation: model.NegotiationState{
				Pressure: fv.Pressure, LastChangeTurn: fv.LastChangeTurn,
				Capital: fv.Capital, SpentTotal: fv.SpentTotal, LastCapitalChangeTurn: fv.LastCapitalChangeTurn,
			},
			AreasOfResponsibility: make(map[string]bool, len(fv.AoR)),
		}
		for _, sid := range fv.AoR {
			f.AreasOfResponsibility[sid] = true
		}
		if fv.HasCommandCapacity {
			c := fv.CommandCapacity
			f.CommandCapacity = &c
		}
		s.Factions[fv.ID] = f
	}
	for _, a := range snap.Adjacency {
		s.Adjacency[a.Settlement] = append([]string(nil), a.Neighbors...)
	}
	for _, r := range snap.Regions {
		s.Regions[r.ID] = &model.FrontRegion{RegionID: r.ID, SideA: r.SideA, SideB: r.SideB, EdgeIDs: append([]string(nil), r.Edges...)}
	}
	for _, f := range snap.Formations {
		s.Formations[f.ID] = &model.Formation{
			ID: f.ID, FactionID: f.FactionID, Active: f.Active, Supplied: f.Supplied,
			Assignment: model.Assignment{Kind: model.AssignmentKind(f.AssignKind), EdgeID: f.EdgeID, RegionID: f.RegionID},
		}
	}
	for _, p := range snap.MilitiaPools {
		s.MilitiaPools[p.ID] = &model.MilitiaPool{ID: p.ID, FactionID: p.FactionID, MunicipalityID: p.MunicipalityID, Supplied: p.Supplied}
	}
	for _, p := range snap.Postures {
		s.Postures = append(s.Postures, model.PostureAssignment{FactionID: p.FactionID, EdgeID: p.EdgeID, Weight: p.Weight})
	}
	for _, g := range snap.Segments {
		s.FrontSegments[g.EdgeID] = &model.FrontSegment{
			EdgeID: g.EdgeID, SideA: g.SideA, SideB: g.SideB, Active: g.Active,
			ActiveStreak: g.ActiveStreak, Friction: g.Friction, MaxFriction: g.MaxFriction, SinceTurn: g.SinceTurn,
		}
	}
	for _, p := range snap.Pressures {
		s.FrontPressures[p.EdgeID] = &model.FrontPressure{EdgeID: p.EdgeID, Value: p.Value, MaxAbs: p.MaxAbs, Updated: p.Updated}
	}
	for _, c := range snap.Ceasefire {
		e := model.CeasefireEntry{SinceTurn: c.SinceTurn, OfferID: c.OfferID}
		if c.HasUntil {
			u := c.UntilTurn
			e.UntilTurn = &u
		}
		s.Ceasefire[c.EdgeID] = e
	}
	for _, o := range snap.Overrides {
		s.ControlOverrides[o.SettlementID] = model.ControlOverride{Side: o.Side, Kind: o.Kind, TreatyID: o.TreatyID, SinceTurn: o.SinceTurn}
	}
	for _, r := range snap.Recognition {
		s.ControlRecognition[r.SettlementID] = model.ControlRecognition{Side: r.Side, Kind: r.Kind, TreatyID: r.TreatyID, SinceTurn: r.SinceTurn}
	}
	for _, a := range snap.Allocations {
		s.CompetenceAllocations[a.Competence] = model.CompetenceAllocation{Holder: a.Holder, TreatyID: a.TreatyID, SinceTurn: a.SinceTurn}
	}
	for _, e := range snap.Ledger {
		s.NegotiationLedger = append(s.NegotiationLedger, model.LedgerEntry{
			ID: e.ID, Turn: e.Turn, FactionID: e.FactionID, Kind: model.LedgerKind(e.Kind), Amount: e.Amount, Reason: e.Reason,
		})
	}
	return s
}
