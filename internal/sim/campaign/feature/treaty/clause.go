// Package treaty models treaty drafts as a closed set of clause variants,
// checks their structural constraints and scores multi-party acceptance.
package treaty

import "sort"

type Annex string

const (
	AnnexTerritorial   Annex = "territorial"
	AnnexMilitary      Annex = "military"
	AnnexInstitutional Annex = "institutional"
)

type ClauseKind string

const (
	KindTransferSettlements ClauseKind = "transfer_settlements"
	KindRecognizeControl    ClauseKind = "recognize_control_settlements"
	KindBrckoSpecialStatus  ClauseKind = "brcko_special_status"
	KindAllocateCompetence  ClauseKind = "allocate_competence"
	KindFreezeRegion        ClauseKind = "freeze_region"
)

// peaceTriggering reports whether a clause kind settles territory and
// therefore requires the Brcko question to be resolved in the same draft.
func (k ClauseKind) peaceTriggering() bool {
	switch k {
	case KindTransferSettlements, KindRecognizeControl, KindBrckoSpecialStatus:
		return true
	}
	return false
}

func (k ClauseKind) annex() Annex {
	switch k {
	case KindFreezeRegion:
		return AnnexMilitary
	case KindAllocateCompetence:
		return AnnexInstitutional
	}
	return AnnexTerritorial
}

type ScopeKind string

const (
	ScopeSettlements ScopeKind = "settlements"
	ScopeRegion      ScopeKind = "region"
	ScopeGlobal      ScopeKind = "global"
)

type Scope struct {
	Kind          ScopeKind `json:"kind"`
	SettlementIDs []string  `json:"settlement_ids,omitempty"`
	RegionID      string    `json:"region_id,omitempty"`
}

// Settlements returns the scoped settlement ids sorted and de-duplicated.
func (s Scope) Settlements() []string {
	out := append([]string(nil), s.SettlementIDs...)
	sort.Strings(out)
	n := 0
	for i, id := range out {
		if i > 0 && id == out[i-1] {
			continue
		}
		out[n] = id
		n++
	}
	return out[:n]
}

type ClauseHeader struct {
	ID       string   `json:"id"`
	Annex    Annex    `json:"annex"`
	Proposer string   `json:"proposer"`
	Targets  []string `json:"targets"`
	Scope    Scope    `json:"scope"`
	Cost     int      `json:"cost"`
}

func (h ClauseHeader) Header() ClauseHeader { return h }

func (h ClauseHeader) targets(faction string) bool {
	for _, t := range h.Targets {
		if t == faction {
			return true
		}
	}
	return false
}

func (ClauseHeader) sealed() {}

// Clause is one of the variant types below.
type Clause interface {
	Kind() ClauseKind
	Header() ClauseHeader
	sealed()
}

type TransferSettlements struct {
	ClauseHeader
	GiverSide    string
	ReceiverSide string
}

type RecognizeControlSettlements struct {
	ClauseHeader
	Side string
}

type BrckoSpecialStatus struct {
	ClauseHeader
}

type AllocateCompetence struct {
	ClauseHeader
	Competence string
	Holder     string
}

type FreezeRegion struct {
	ClauseHeader
}

func (TransferSettlements) Kind() ClauseKind         { return KindTransferSettlements }
func (RecognizeControlSettlements) Kind() ClauseKind { return KindRecognizeControl }
func (BrckoSpecialStatus) Kind() ClauseKind          { return KindBrckoSpecialStatus }
func (AllocateCompetence) Kind() ClauseKind          { return KindAllocateCompetence }
func (FreezeRegion) Kind() ClauseKind                { return KindFreezeRegion }
