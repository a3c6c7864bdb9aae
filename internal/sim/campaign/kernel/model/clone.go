package model

func copyInt(p *int) *int {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// Clone returns a deep copy; turn steps run against a clone and swap it in
// only when every phase succeeded.
func (s *State) Clone() *State {
	out := &State{
		Turn:              s.Turn,
		SupplySources:     append([]string(nil), s.SupplySources...),
		Postures:          append([]PostureAssignment(nil), s.Postures...),
		NegotiationStatus: s.NegotiationStatus,
		NegotiationLedger: append([]LedgerEntry(nil), s.NegotiationLedger...),
	}
	out.EnsureMaps()
	for id, f := range s.Factions {
		if f == nil {
			continue
		}
		c := *f
		c.AreasOfResponsibility = make(map[string]bool, len(f.AreasOfResponsibility))
		for sid, v := range f.AreasOfResponsibility {
			c.AreasOfResponsibility[sid] = v
		}
		c.CommandCapacity = copyInt(f.CommandCapacity)
		out.Factions[id] = &c
	}
	for id, ns := range s.Adjacency {
		out.Adjacency[id] = append([]string(nil), ns...)
	}
	for id, r := range s.Regions {
		if r == nil {
			continue
		}
		c := *r
		c.EdgeIDs = append([]string(nil), r.EdgeIDs...)
		out.Regions[id] = &c
	}
	for id, f := range s.Formations {
		if f == nil {
			continue
		}
		c := *f
		out.Formations[id] = &c
	}
	for id, p := range s.MilitiaPools {
		if p == nil {
			continue
		}
		c := *p
		out.MilitiaPools[id] = &c
	}
	for id, seg := range s.FrontSegments {
		if seg == nil {
			continue
		}
		c := *seg
		out.FrontSegments[id] = &c
	}
	for id, p := range s.FrontPressures {
		if p == nil {
			continue
		}
		c := *p
		out.FrontPressures[id] = &c
	}
	for id, e := range s.Ceasefire {
		e.UntilTurn = copyInt(e.UntilTurn)
		out.Ceasefire[id] = e
	}
	for id, o := range s.ControlOverrides {
		out.ControlOverrides[id] = o
	}
	for id, r := range s.ControlRecognition {
		out.ControlRecognition[id] = r
	}
	for id, a := range s.CompetenceAllocations {
		out.CompetenceAllocations[id] = a
	}
	return out
}
