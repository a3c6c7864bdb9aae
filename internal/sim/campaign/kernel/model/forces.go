package model

type AssignmentKind string

const (
	AssignNone   AssignmentKind = "none"
	AssignEdge   AssignmentKind = "edge"
	AssignRegion AssignmentKind = "region"
)

type Assignment struct {
	Kind     AssignmentKind `json:"kind"`
	EdgeID   string         `json:"edge_id,omitempty"`
	RegionID string         `json:"region_id,omitempty"`
}

type Formation struct {
	ID         string     `json:"id"`
	FactionID  string     `json:"faction_id"`
	Active     bool       `json:"active"`
	Supplied   bool       `json:"supplied"`
	Assignment Assignment `json:"assignment"`
}

type MilitiaPool struct {
	ID             string `json:"id"`
	FactionID      string `json:"faction_id"`
	MunicipalityID string `json:"municipality_id"`
	Supplied       bool   `json:"supplied"`
}

// PostureAssignment is a faction's demanded weight on one front edge.
type PostureAssignment struct {
	FactionID string `json:"faction_id"`
	EdgeID    string `json:"edge_id"`
	Weight    int    `json:"weight"`
}
