// Package digest hashes the campaign state into a stable hex string used for
// replay verification.
package digest

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"sort"

	"statecraft.ai/internal/sim/campaign/kernel/model"
)

type hashWriter interface {
	Write(p []byte) (n int, err error)
}

func StateDigest(s *model.State) string {
	h := sha256.New()
	var tmp [8]byte

	writeI64(h, &tmp, int64(s.Turn))
	digestFactions(h, &tmp, s.Factions)
	digestForces(h, &tmp, s)
	digestFronts(h, &tmp, s)
	digestNegotiation(h, &tmp, s)
	digestLedger(h, &tmp, s.NegotiationLedger)

	return hex.EncodeToString(h.Sum(nil))
}

func writeU64(h hashWriter, tmp *[8]byte, v uint64) {
	binary.LittleEndian.PutUint64(tmp[:], v)
	h.Write(tmp[:])
}

func writeI64(h hashWriter, tmp *[8]byte, v int64) {
	writeU64(h, tmp, uint64(v))
}

// writeString is length-prefixed so adjacent fields cannot alias.
func writeString(h hashWriter, tmp *[8]byte, v string) {
	writeU64(h, tmp, uint64(len(v)))
	h.Write([]byte(v))
}

func boolByte(v bool) byte {
	if v {
		return 1
	}
	return 0
}

func writeBool(h hashWriter, v bool) {
	h.Write([]byte{boolByte(v)})
}

func writeOptInt(h hashWriter, tmp *[8]byte, v *int) {
	writeBool(h, v != nil)
	if v != nil {
		writeI64(h, tmp, int64(*v))
	}
}

func digestFactions(h hashWriter, tmp *[8]byte, factions map[string]*model.Faction) {
	for _, id := range model.SortedKeys(factions) {
		f := factions[id]
		if f == nil {
			continue
		}
		writeString(h, tmp, id)
		for _, v := range []int{
			f.Profile.Authority, f.Profile.Legitimacy, f.Profile.Control, f.Profile.Logistics, f.Profile.Exhaustion,
			f.Negotiation.Pressure, f.Negotiation.LastChangeTurn,
			f.Negotiation.Capital, f.Negotiation.SpentTotal, f.Negotiation.LastCapitalChangeTurn,
		} {
			writeI64(h, tmp, int64(v))
		}
		aor := make([]string, 0, len(f.AreasOfResponsibility))
		for sid, ok := range f.AreasOfResponsibility {
			if ok {
				aor = append(aor, sid)
			}
		}
		sort.Strings(aor)
		writeU64(h, tmp, uint64(len(aor)))
		for _, sid := range aor {
			writeString(h, tmp, sid)
		}
		writeOptInt(h, tmp, f.CommandCapacity)
	}
}

func digestForces(h hashWriter, tmp *[8]byte, s *model.State) {
	for _, id := range model.SortedKeys(s.Formations) {
		f := s.Formations[id]
		if f == nil {
			continue
		}
		writeString(h, tmp, id)
		writeString(h, tmp, f.FactionID)
		writeBool(h, f.Active)
		writeBool(h, f.Supplied)
		writeString(h, tmp, string(f.Assignment.Kind))
		writeString(h, tmp, f.Assignment.EdgeID)
		writeString(h, tmp, f.Assignment.RegionID)
	}
	for _, id := range model.SortedKeys(s.MilitiaPools) {
		p := s.MilitiaPools[id]
		if p == nil {
			continue
		}
		writeString(h, tmp, id)
		writeString(h, tmp, p.FactionID)
		writeString(h, tmp, p.MunicipalityID)
		writeBool(h, p.Supplied)
	}
	postures := append([]model.PostureAssignment(nil), s.Postures...)
	sort.SliceStable(postures, func(i, j int) bool {
		if postures[i].FactionID != postures[j].FactionID {
			return postures[i].FactionID < postures[j].FactionID
		}
		return postures[i].EdgeID < postures[j].EdgeID
	})
	writeU64(h, tmp, uint64(len(postures)))
	for _, p := range postures {
		writeString(h, tmp, p.FactionID)
		writeString(h, tmp, p.EdgeID)
		writeI64(h, tmp, int64(p.Weight))
	}
}

func digestFronts(h hashWriter, tmp *[8]byte, s *model.State) {
	for _, id := range model.SortedKeys(s.FrontSegments) {
		seg := s.FrontSegments[id]
		if seg == nil {
			continue
		}
		writeString(h, tmp, id)
		writeString(h, tmp, seg.SideA)
		writeString(h, tmp, seg.SideB)
		writeBool(h, seg.Active)
		writeI64(h, tmp, int64(seg.ActiveStreak))
		writeI64(h, tmp, int64(seg.Friction))
		writeI64(h, tmp, int64(seg.MaxFriction))
		writeI64(h, tmp, int64(seg.SinceTurn))
	}
	for _, id := range model.SortedKeys(s.FrontPressures) {
		p := s.FrontPressures[id]
		if p == nil {
			continue
		}
		writeString(h, tmp, id)
		writeI64(h, tmp, int64(p.Value))
		writeI64(h, tmp, int64(p.MaxAbs))
		writeI64(h, tmp, int64(p.Updated))
	}
}

func digestNegotiation(h hashWriter, tmp *[8]byte, s *model.State) {
	st := s.NegotiationStatus
	writeBool(h, st.CeasefireActive)
	writeI64(h, tmp, int64(st.CeasefireSinceTurn))
	writeI64(h, tmp, int64(st.LastOfferTurn))
	writeString(h, tmp, st.LastOfferID)

	for _, id := range model.SortedKeys(s.Ceasefire) {
		c := s.Ceasefire[id]
		writeString(h, tmp, id)
		writeI64(h, tmp, int64(c.SinceTurn))
		writeOptInt(h, tmp, c.UntilTurn)
		writeString(h, tmp, c.OfferID)
	}
	for _, sid := range model.SortedKeys(s.ControlOverrides) {
		o := s.ControlOverrides[sid]
		writeString(h, tmp, sid)
		writeString(h, tmp, o.Side)
		writeString(h, tmp, o.Kind)
		writeString(h, tmp, o.TreatyID)
		writeI64(h, tmp, int64(o.SinceTurn))
	}
	for _, sid := range model.SortedKeys(s.ControlRecognition) {
		r := s.ControlRecognition[sid]
		writeString(h, tmp, sid)
		writeString(h, tmp, r.Side)
		writeString(h, tmp, r.Kind)
		writeString(h, tmp, r.TreatyID)
		writeI64(h, tmp, int64(r.SinceTurn))
	}
	for _, cid := range model.SortedKeys(s.CompetenceAllocations) {
		a := s.CompetenceAllocations[cid]
		writeString(h, tmp, cid)
		writeString(h, tmp, a.Holder)
		writeString(h, tmp, a.TreatyID)
		writeI64(h, tmp, int64(a.SinceTurn))
	}
}

// The ledger is append-only, so its order is already deterministic.
func digestLedger(h hashWriter, tmp *[8]byte, ledger []model.LedgerEntry) {
	writeU64(h, tmp, uint64(len(ledger)))
	for _, e := range ledger {
		writeString(h, tmp, e.ID)
		writeI64(h, tmp, int64(e.Turn))
		writeString(h, tmp, e.FactionID)
		writeString(h, tmp, string(e.Kind))
		writeI64(h, tmp, int64(e.Amount))
		writeString(h, tmp, e.Reason)
	}
}
