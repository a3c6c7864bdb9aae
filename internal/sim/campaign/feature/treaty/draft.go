package treaty

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"statecraft.ai/internal/sim/campaign/kernel/model"
	"statecraft.ai/internal/sim/catalogs"
)

var (
	ErrUnknownClauseKind = errors.New("unknown clause kind")
	ErrMalformedScope    = errors.New("malformed scope")
	ErrMalformedClause   = errors.New("malformed clause")
)

type Totals struct {
	Clauses int `json:"clauses"`
	Cost    int `json:"cost"`
}

type Draft struct {
	TreatyID string
	Proposer string
	Turn     int
	Clauses  []Clause
}

func (d Draft) Totals() Totals {
	t := Totals{Clauses: len(d.Clauses)}
	for _, c := range d.Clauses {
		t.Cost += c.Header().Cost
	}
	return t
}

func (d Draft) has(kind ClauseKind) bool {
	for _, c := range d.Clauses {
		if c.Kind() == kind {
			return true
		}
	}
	return false
}

type clauseJSON struct {
	ClauseHeader
	Kind         ClauseKind `json:"kind"`
	GiverSide    string     `json:"giver_side,omitempty"`
	ReceiverSide string     `json:"receiver_side,omitempty"`
	Side         string     `json:"side,omitempty"`
	Competence   string     `json:"competence,omitempty"`
	Holder       string     `json:"holder,omitempty"`
}

type draftJSON struct {
	TreatyID string       `json:"treaty_id"`
	Proposer string       `json:"proposer"`
	Turn     int          `json:"turn"`
	Clauses  []clauseJSON `json:"clauses"`
	Totals   *Totals      `json:"totals,omitempty"`
}

func (d Draft) MarshalJSON() ([]byte, error) {
	out := draftJSON{TreatyID: d.TreatyID, Proposer: d.Proposer, Turn: d.Turn}
	t := d.Totals()
	out.Totals = &t
	for _, c := range d.Clauses {
		cj := clauseJSON{ClauseHeader: c.Header(), Kind: c.Kind()}
		switch v := c.(type) {
		case TransferSettlements:
			cj.GiverSide, cj.ReceiverSide = v.GiverSide, v.ReceiverSide
		case RecognizeControlSettlements:
			cj.Side = v.Side
		case AllocateCompetence:
			cj.Competence, cj.Holder = v.Competence, v.Holder
		}
		out.Clauses = append(out.Clauses, cj)
	}
	return json.Marshal(out)
}

func (d *Draft) UnmarshalJSON(b []byte) error {
	var in draftJSON
	if err := json.Unmarshal(b, &in); err != nil {
		return err
	}
	out := Draft{TreatyID: in.TreatyID, Proposer: in.Proposer, Turn: in.Turn}
	for i, cj := range in.Clauses {
		h := cj.ClauseHeader
		if h.Annex == "" {
			h.Annex = cj.Kind.annex()
		}
		if h.Proposer == "" {
			h.Proposer = in.Proposer
		}
		var c Clause
		switch cj.Kind {
		case KindTransferSettlements:
			c = TransferSettlements{ClauseHeader: h, GiverSide: cj.GiverSide, ReceiverSide: cj.ReceiverSide}
		case KindRecognizeControl:
			c = RecognizeControlSettlements{ClauseHeader: h, Side: cj.Side}
		case KindBrckoSpecialStatus:
			c = BrckoSpecialStatus{ClauseHeader: h}
		case KindAllocateCompetence:
			c = AllocateCompetence{ClauseHeader: h, Competence: cj.Competence, Holder: cj.Holder}
		case KindFreezeRegion:
			c = FreezeRegion{ClauseHeader: h}
		default:
			return fmt.Errorf("clause %d: %w %q", i, ErrUnknownClauseKind, cj.Kind)
		}
		out.Clauses = append(out.Clauses, c)
	}
	*d = out
	return nil
}

// DecodeDraft parses a draft from its JSON wire form.
func DecodeDraft(b []byte) (Draft, error) {
	var d Draft
	if err := json.Unmarshal(b, &d); err != nil {
		return Draft{}, err
	}
	return d, nil
}

// Validate rejects drafts that reference unknown factions, competences or
// regions, or whose scopes do not fit their clause kinds. These are corrupt
// inputs, not negotiable terms.
func Validate(state *model.State, cat *catalogs.CompetenceCatalog, d Draft) error {
	faction := func(id, what string) error {
		if _, ok := state.Faction(id); !ok {
			return fmt.Errorf("%s: %w %q", what, model.ErrUnknownFaction, id)
		}
		return nil
	}
	if strings.TrimSpace(d.TreatyID) == "" {
		return fmt.Errorf("%w: draft without treaty_id", ErrMalformedClause)
	}
	if err := faction(d.Proposer, "draft proposer"); err != nil {
		return err
	}
	seen := map[string]bool{}
	for i, c := range d.Clauses {
		h := c.Header()
		where := fmt.Sprintf("clause %d (%s)", i, h.ID)
		if h.ID != "" {
			if seen[h.ID] {
				return fmt.Errorf("%s: %w: duplicate id", where, ErrMalformedClause)
			}
			seen[h.ID] = true
		}
		if h.Annex != c.Kind().annex() {
			return fmt.Errorf("%s: %w: %s clause in %s annex", where, ErrMalformedClause, c.Kind(), h.Annex)
		}
		if h.Cost < 0 {
			return fmt.Errorf("%s: %w: negative cost", where, ErrMalformedClause)
		}
		if err := faction(h.Proposer, where+" proposer"); err != nil {
			return err
		}
		if len(h.Targets) == 0 {
			return fmt.Errorf("%s: %w: no targets", where, ErrMalformedClause)
		}
		for _, t := range h.Targets {
			if err := faction(t, where+" target"); err != nil {
				return err
			}
		}
		if err := validateScope(state, c, where); err != nil {
			return err
		}
		switch v := c.(type) {
		case TransferSettlements:
			if err := faction(v.GiverSide, where+" giver_side"); err != nil {
				return err
			}
			if err := faction(v.ReceiverSide, where+" receiver_side"); err != nil {
				return err
			}
			if v.GiverSide == v.ReceiverSide {
				return fmt.Errorf("%s: %w: giver equals receiver", where, ErrMalformedClause)
			}
		case RecognizeControlSettlements:
			if err := faction(v.Side, where+" side"); err != nil {
				return err
			}
		case AllocateCompetence:
			if !cat.Has(v.Competence) {
				return fmt.Errorf("%s: %w %q", where, catalogs.ErrUnknownCompetence, v.Competence)
			}
			if err := faction(v.Holder, where+" holder"); err != nil {
				return err
			}
		}
	}
	return nil
}

func validateScope(state *model.State, c Clause, where string) error {
	s := c.Header().Scope
	switch c.Kind() {
	case KindTransferSettlements, KindRecognizeControl, KindBrckoSpecialStatus:
		if s.Kind != ScopeSettlements || len(s.Settlements()) == 0 {
			return fmt.Errorf("%s: %w: %s needs a non-empty settlement scope", where, ErrMalformedScope, c.Kind())
		}
	case KindFreezeRegion:
		switch s.Kind {
		case ScopeGlobal:
		case ScopeRegion:
			if _, ok := state.Regions[s.RegionID]; !ok {
				return fmt.Errorf("%s: %w: unknown region %q", where, ErrMalformedScope, s.RegionID)
			}
		default:
			return fmt.Errorf("%s: %w: freeze_region needs region or global scope", where, ErrMalformedScope)
		}
	case KindAllocateCompetence:
		if s.Kind != "" && s.Kind != ScopeGlobal {
			return fmt.Errorf("%s: %w: competences are allocated globally", where, ErrMalformedScope)
		}
	}
	return nil
}
