// Package scenario loads the starting campaign state from YAML.
package scenario

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"statecraft.ai/internal/sim/campaign/feature/territory"
	"statecraft.ai/internal/sim/campaign/kernel/model"
)

var ErrInvalid = errors.New("invalid scenario")

type Scenario struct {
	Name string `yaml:"name"`
	Turn int    `yaml:"turn"`

	Factions      []Faction           `yaml:"factions"`
	Adjacency     map[string][]string `yaml:"adjacency"`
	SupplySources []string            `yaml:"supply_sources"`
	Regions       []Region            `yaml:"regions"`
	Formations    []Formation         `yaml:"formations"`
	MilitiaPools  []MilitiaPool       `yaml:"militia_pools"`
	Postures      []Posture           `yaml:"postures"`
}

type Faction struct {
	ID              string        `yaml:"id"`
	Profile         model.Profile `yaml:"profile"`
	Pressure        int           `yaml:"pressure"`
	Capital         int           `yaml:"capital"`
	CommandCapacity *int          `yaml:"command_capacity"`
	AoR             []string      `yaml:"aor"`
}

type Region struct {
	ID    string   `yaml:"id"`
	SideA string   `yaml:"side_a"`
	SideB string   `yaml:"side_b"`
	Edges []string `yaml:"edges"`
}

type Formation struct {
	ID       string `yaml:"id"`
	Faction  string `yaml:"faction"`
	Active   *bool  `yaml:"active"`
	Supplied *bool  `yaml:"supplied"`
	Edge     string `yaml:"edge"`
	Region   string `yaml:"region"`
}

type MilitiaPool struct {
	ID           string `yaml:"id"`
	Faction      string `yaml:"faction"`
	Municipality string `yaml:"municipality"`
	Supplied     *bool  `yaml:"supplied"`
}

type Posture struct {
	Faction string `yaml:"faction"`
	Edge    string `yaml:"edge"`
	Weight  int    `yaml:"weight"`
}

func Load(path string) (*Scenario, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(raw)
}

func Parse(raw []byte) (*Scenario, error) {
	var sc Scenario
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&sc); err != nil {
		return nil, fmt.Errorf("scenario: %w", err)
	}
	if err := sc.Validate(); err != nil {
		return nil, err
	}
	return &sc, nil
}

func (sc *Scenario) Validate() error {
	bad := func(format string, args ...any) error {
		return fmt.Errorf("scenario %q: %w: %s", sc.Name, ErrInvalid, fmt.Sprintf(format, args...))
	}
	if len(sc.Factions) == 0 {
		return bad("no factions")
	}
	if sc.Turn < 0 {
		return bad("negative turn")
	}
	factions := map[string]bool{}
	owner := map[string]string{}
	for _, f := range sc.Factions {
		if strings.TrimSpace(f.ID) == "" {
			return bad("faction without id")
		}
		if factions[f.ID] {
			return bad("duplicate faction %s", f.ID)
		}
		factions[f.ID] = true
		if f.Pressure < 0 || f.Capital < 0 {
			return bad("faction %s: pressure and capital must be >= 0", f.ID)
		}
		for _, sid := range f.AoR {
			if prev, ok := owner[sid]; ok {
				return bad("settlement %s in both %s and %s", sid, prev, f.ID)
			}
			owner[sid] = f.ID
		}
	}
	for _, r := range sc.Regions {
		if r.ID == "" || !factions[r.SideA] || !factions[r.SideB] || r.SideA == r.SideB {
			return bad("region %q needs two distinct known sides", r.ID)
		}
		for _, e := range r.Edges {
			if _, _, ok := model.SplitEdgeID(e); !ok {
				return bad("region %s: malformed edge %q", r.ID, e)
			}
		}
	}
	regions := map[string]bool{}
	for _, r := range sc.Regions {
		if regions[r.ID] {
			return bad("duplicate region %s", r.ID)
		}
		regions[r.ID] = true
	}
	seen := map[string]bool{}
	for _, f := range sc.Formations {
		if f.ID == "" || seen[f.ID] {
			return bad("formation id %q missing or duplicated", f.ID)
		}
		seen[f.ID] = true
		if !factions[f.Faction] {
			return bad("formation %s: unknown faction %q", f.ID, f.Faction)
		}
		if f.Edge != "" && f.Region != "" {
			return bad("formation %s: edge and region are exclusive", f.ID)
		}
		if f.Region != "" && !regions[f.Region] {
			return bad("formation %s: unknown region %q", f.ID, f.Region)
		}
	}
	for _, p := range sc.MilitiaPools {
		if p.ID == "" || seen[p.ID] {
			return bad("militia pool id %q missing or duplicated", p.ID)
		}
		seen[p.ID] = true
		if !factions[p.Faction] {
			return bad("militia pool %s: unknown faction %q", p.ID, p.Faction)
		}
	}
	for _, p := range sc.Postures {
		if !factions[p.Faction] {
			return bad("posture on %s: unknown faction %q", p.Edge, p.Faction)
		}
		if _, _, ok := model.SplitEdgeID(p.Edge); !ok {
			return bad("posture: malformed edge %q", p.Edge)
		}
		if p.Weight < 0 {
			return bad("posture on %s: negative weight", p.Edge)
		}
	}
	return nil
}

func boolOr(p *bool, def bool) bool {
	if p == nil {
		return def
	}
	return *p
}

// canonicalEdge rewrites "b__a" as "a__b".
func canonicalEdge(id string) string {
	a, b, ok := model.SplitEdgeID(id)
	if !ok {
		return id
	}
	return model.EdgeID(a, b)
}

// Build materializes the starting state. Adjacency is made symmetric and
// starting capital is granted through the ledger.
func (sc *Scenario) Build() (*model.State, error) {
	s := model.NewState()
	s.Turn = sc.Turn

	for _, f := range sc.Factions {
		aor := make(map[string]bool, len(f.AoR))
		for _, sid := range f.AoR {
			aor[sid] = true
		}
		fac := &model.Faction{
			ID:                    f.ID,
			Profile:               f.Profile,
			Negotiation:           model.NegotiationState{Pressure: f.Pressure},
			AreasOfResponsibility: aor,
		}
		if f.CommandCapacity != nil {
			c := *f.CommandCapacity
			fac.CommandCapacity = &c
		}
		s.Factions[f.ID] = fac
	}

	adj := map[string]map[string]bool{}
	link := func(a, b string) {
		if adj[a] == nil {
			adj[a] = map[string]bool{}
		}
		adj[a][b] = true
	}
	for a, ns := range sc.Adjacency {
		for _, b := range ns {
			if a == b {
				continue
			}
			link(a, b)
			link(b, a)
		}
	}
	for a, ns := range adj {
		s.Adjacency[a] = model.SortedKeys(ns)
	}

	s.SupplySources = append([]string(nil), sc.SupplySources...)
	sort.Strings(s.SupplySources)

	for _, r := range sc.Regions {
		edges := make([]string, 0, len(r.Edges))
		for _, e := range r.Edges {
			edges = append(edges, canonicalEdge(e))
		}
		sort.Strings(edges)
		s.Regions[r.ID] = &model.FrontRegion{RegionID: r.ID, SideA: r.SideA, SideB: r.SideB, EdgeIDs: edges}
	}

	for _, f := range sc.Formations {
		fm := &model.Formation{
			ID:         f.ID,
			FactionID:  f.Faction,
			Active:     boolOr(f.Active, true),
			Supplied:   boolOr(f.Supplied, true),
			Assignment: model.Assignment{Kind: model.AssignNone},
		}
		switch {
		case f.Edge != "":
			fm.Assignment = model.Assignment{Kind: model.AssignEdge, EdgeID: canonicalEdge(f.Edge)}
		case f.Region != "":
			fm.Assignment = model.Assignment{Kind: model.AssignRegion, RegionID: f.Region}
		}
		s.Formations[f.ID] = fm
	}
	for _, p := range sc.MilitiaPools {
		s.MilitiaPools[p.ID] = &model.MilitiaPool{
			ID: p.ID, FactionID: p.Faction, MunicipalityID: p.Municipality, Supplied: boolOr(p.Supplied, true),
		}
	}
	for _, p := range sc.Postures {
		s.Postures = append(s.Postures, model.PostureAssignment{FactionID: p.Faction, EdgeID: canonicalEdge(p.Edge), Weight: p.Weight})
	}

	for _, id := range s.FactionIDs() {
		for _, f := range sc.Factions {
			if f.ID != id || f.Capital == 0 {
				continue
			}
			if _, err := territory.GrantCapital(s, id, f.Capital, sc.Turn, territory.ReasonScenarioStart); err != nil {
				return nil, err
			}
		}
	}
	return s, nil
}

// LoadState is Load followed by Build.
func LoadState(path string) (*model.State, error) {
	sc, err := Load(path)
	if err != nil {
		return nil, err
	}
	return sc.Build()
}
