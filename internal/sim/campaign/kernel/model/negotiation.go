package model

type NegotiationStatus struct {
	CeasefireActive    bool   `json:"ceasefire_active"`
	CeasefireSinceTurn int    `json:"ceasefire_since_turn"`
	LastOfferTurn      int    `json:"last_offer_turn"`
	LastOfferID        string `json:"last_offer_id,omitempty"`
}

// CeasefireEntry freezes one edge. A nil UntilTurn is indefinite.
type CeasefireEntry struct {
	SinceTurn int    `json:"since_turn"`
	UntilTurn *int   `json:"until_turn"`
	OfferID   string `json:"offer_id,omitempty"`
}

func (c CeasefireEntry) ExpiredAt(turn int) bool {
	return c.UntilTurn != nil && *c.UntilTurn < turn
}

const (
	OverlayTreatyTransfer    = "treaty_transfer"
	OverlayTreatyRecognition = "treaty_recognition"
	OverlayBrckoStatus       = "brcko_special_status"
)

type ControlOverride struct {
	Side      string `json:"side"`
	Kind      string `json:"kind"`
	TreatyID  string `json:"treaty_id"`
	SinceTurn int    `json:"since_turn"`
}

type ControlRecognition struct {
	Side      string `json:"side"`
	Kind      string `json:"kind"`
	TreatyID  string `json:"treaty_id"`
	SinceTurn int    `json:"since_turn"`
}

type LedgerKind string

const (
	LedgerSpend LedgerKind = "spend"
	LedgerGain  LedgerKind = "gain"
)

type LedgerEntry struct {
	ID        string     `json:"id"`
	Turn      int        `json:"turn"`
	FactionID string     `json:"faction_id"`
	Kind      LedgerKind `json:"kind"`
	Amount    int        `json:"amount"`
	Reason    string     `json:"reason"`
}

type CompetenceAllocation struct {
	Holder    string `json:"holder"`
	TreatyID  string `json:"treaty_id"`
	SinceTurn int    `json:"since_turn"`
}
