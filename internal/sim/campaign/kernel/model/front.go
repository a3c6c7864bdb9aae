package model

import "strings"

const edgeSep = "__"

// EdgeID returns the canonical id of the undirected edge between a and b.
func EdgeID(a, b string) string {
	if b < a {
		a, b = b, a
	}
	return a + edgeSep + b
}

// SplitEdgeID is the inverse of EdgeID.
func SplitEdgeID(id string) (a, b string, ok bool) {
	i := strings.Index(id, edgeSep)
	if i <= 0 || i+len(edgeSep) >= len(id) {
		return "", "", false
	}
	return id[:i], id[i+len(edgeSep):], true
}

// FrontEdge is an adjacency pair whose endpoints are held by different
// factions. SettlementA < SettlementB; SideA controls SettlementA.
type FrontEdge struct {
	EdgeID      string `json:"edge_id"`
	SettlementA string `json:"settlement_a"`
	SettlementB string `json:"settlement_b"`
	SideA       string `json:"side_a"`
	SideB       string `json:"side_b"`
}

func (e FrontEdge) Touches(factionID string) bool {
	return e.SideA == factionID || e.SideB == factionID
}

// Opponent returns the faction facing factionID across the edge.
func (e FrontEdge) Opponent(factionID string) string {
	switch factionID {
	case e.SideA:
		return e.SideB
	case e.SideB:
		return e.SideA
	}
	return ""
}

type FrontSegment struct {
	EdgeID       string `json:"edge_id"`
	SideA        string `json:"side_a"`
	SideB        string `json:"side_b"`
	Active       bool   `json:"active"`
	ActiveStreak int    `json:"active_streak"`
	Friction     int    `json:"friction"`
	MaxFriction  int    `json:"max_friction"`
	// Turn the segment last changed activity state.
	SinceTurn int `json:"since_turn"`
}

// Contested reports whether the segment is a real, live front: active, with
// a running streak and friction that a freeze has not held at zero.
func (s *FrontSegment) Contested() bool {
	return s != nil && s.Active && s.ActiveStreak > 0 && s.Friction > 0
}

type FrontPressure struct {
	EdgeID  string `json:"edge_id"`
	Value   int    `json:"value"`
	MaxAbs  int    `json:"max_abs"`
	Updated int    `json:"updated_turn"`
}

// FrontRegion groups the edges along which one pair of sides is in contact.
type FrontRegion struct {
	RegionID string   `json:"region_id"`
	SideA    string   `json:"side_a"`
	SideB    string   `json:"side_b"`
	EdgeIDs  []string `json:"edge_ids"`
}
