package model

type Profile struct {
	Authority  int `json:"authority"`
	Legitimacy int `json:"legitimacy"`
	Control    int `json:"control"`
	Logistics  int `json:"logistics"`
	Exhaustion int `json:"exhaustion"`
}

type NegotiationState struct {
	Pressure       int `json:"pressure"`
	LastChangeTurn int `json:"last_change_turn"`

	Capital               int `json:"capital"`
	SpentTotal            int `json:"spent_total"`
	LastCapitalChangeTurn int `json:"last_capital_change_turn"`
}

type Faction struct {
	ID          string           `json:"id"`
	Profile     Profile          `json:"profile"`
	Negotiation NegotiationState `json:"negotiation"`

	// Base ownership. Treaties layer overlays on top; this set is never
	// mutated after scenario load.
	AreasOfResponsibility map[string]bool `json:"areas_of_responsibility"`
	// Optional cap on total posture demand; nil means uncapped.
	CommandCapacity *int `json:"command_capacity,omitempty"`
}

func (f *Faction) Holds(settlementID string) bool {
	if f == nil {
		return false
	}
	return f.AreasOfResponsibility[settlementID]
}
