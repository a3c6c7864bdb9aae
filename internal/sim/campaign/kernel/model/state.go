package model

import "sort"

// State is the exclusively owned campaign state. Every function that reads
// or mutates it takes it by pointer; nothing here is package-global.
type State struct {
	Turn int `json:"turn"`

	Factions map[string]*Faction `json:"factions"`

	// Settlement graph (external collaborator output, read-only here).
	Adjacency map[string][]string `json:"adjacency"`
	// Settlements that act as supply sources for whoever controls them.
	SupplySources []string `json:"supply_sources"`

	Regions      map[string]*FrontRegion `json:"regions"`
	Formations   map[string]*Formation   `json:"formations"`
	MilitiaPools map[string]*MilitiaPool `json:"militia_pools"`
	Postures     []PostureAssignment     `json:"postures"`

	FrontSegments  map[string]*FrontSegment  `json:"front_segments"`
	FrontPressures map[string]*FrontPressure `json:"front_pressures"`

	NegotiationStatus     NegotiationStatus               `json:"negotiation_status"`
	Ceasefire             map[string]CeasefireEntry       `json:"ceasefire"`
	ControlOverrides      map[string]ControlOverride      `json:"control_overrides"`
	ControlRecognition    map[string]ControlRecognition   `json:"control_recognition"`
	CompetenceAllocations map[string]CompetenceAllocation `json:"competence_allocations"`
	NegotiationLedger     []LedgerEntry                   `json:"negotiation_ledger"`
}

func NewState() *State {
	s := &State{}
	s.EnsureMaps()
	return s
}

// EnsureMaps allocates nil maps, e.g. after a decode that omitted them.
func (s *State) EnsureMaps() {
	if s.Factions == nil {
		s.Factions = map[string]*Faction{}
	}
	if s.Adjacency == nil {
		s.Adjacency = map[string][]string{}
	}
	if s.Regions == nil {
		s.Regions = map[string]*FrontRegion{}
	}
	if s.Formations == nil {
		s.Formations = map[string]*Formation{}
	}
	if s.MilitiaPools == nil {
		s.MilitiaPools = map[string]*MilitiaPool{}
	}
	if s.FrontSegments == nil {
		s.FrontSegments = map[string]*FrontSegment{}
	}
	if s.FrontPressures == nil {
		s.FrontPressures = map[string]*FrontPressure{}
	}
	if s.Ceasefire == nil {
		s.Ceasefire = map[string]CeasefireEntry{}
	}
	if s.ControlOverrides == nil {
		s.ControlOverrides = map[string]ControlOverride{}
	}
	if s.ControlRecognition == nil {
		s.ControlRecognition = map[string]ControlRecognition{}
	}
	if s.CompetenceAllocations == nil {
		s.CompetenceAllocations = map[string]CompetenceAllocation{}
	}
}

func (s *State) FactionIDs() []string {
	return SortedKeys(s.Factions)
}

func (s *State) Faction(id string) (*Faction, bool) {
	f, ok := s.Factions[id]
	return f, ok && f != nil
}

// BaseController returns the faction whose AoR contains the settlement,
// picking the lexically first one if scenario data overlaps.
func (s *State) BaseController(settlementID string) string {
	for _, id := range s.FactionIDs() {
		if s.Factions[id].Holds(settlementID) {
			return id
		}
	}
	return ""
}

// EffectiveController layers control overrides over base ownership.
func (s *State) EffectiveController(settlementID string) string {
	if o, ok := s.ControlOverrides[settlementID]; ok && o.Side != "" {
		return o.Side
	}
	return s.BaseController(settlementID)
}

// Settlements returns every settlement id known to the graph or any AoR.
func (s *State) Settlements() []string {
	seen := map[string]bool{}
	for id, ns := range s.Adjacency {
		seen[id] = true
		for _, n := range ns {
			seen[n] = true
		}
	}
	for _, f := range s.Factions {
		if f == nil {
			continue
		}
		for sid := range f.AreasOfResponsibility {
			seen[sid] = true
		}
	}
	return SortedKeys(seen)
}

// SupplySourceCount counts supply-source settlements effectively held by
// the faction.
func (s *State) SupplySourceCount(factionID string) int {
	n := 0
	for _, sid := range s.SupplySources {
		if s.EffectiveController(sid) == factionID {
			n++
		}
	}
	return n
}

func SortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
