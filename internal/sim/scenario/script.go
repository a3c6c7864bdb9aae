package scenario

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"statecraft.ai/internal/sim/campaign/feature/pressure"
)

// Script supplies the collaborator inputs a scenario run would otherwise get
// from the wider wargame: exhaustion increases, municipality collapses and
// treaty drafts submitted at given turns.
type Script struct {
	Turns []ScriptTurn `yaml:"turns"`

	dir string
}

type ScriptTurn struct {
	Turn int `yaml:"turn"`
	// Exhaustion increase per faction this turn.
	Exhaustion map[string]int `yaml:"exhaustion"`
	// Municipality id -> faction, for municipalities that collapsed this turn.
	Collapsed map[string]string `yaml:"collapsed"`
	// DRAFT message files, relative to the script file.
	Drafts []string `yaml:"drafts"`
}

func LoadScript(path string) (*Script, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	s, err := ParseScript(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	s.dir = filepath.Dir(path)
	return s, nil
}

func ParseScript(raw []byte) (*Script, error) {
	var s Script
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&s); err != nil {
		return nil, err
	}
	seen := map[int]bool{}
	for _, t := range s.Turns {
		if t.Turn <= 0 {
			return nil, fmt.Errorf("%w: script turn %d must be > 0", ErrInvalid, t.Turn)
		}
		if seen[t.Turn] {
			return nil, fmt.Errorf("%w: script turn %d listed twice", ErrInvalid, t.Turn)
		}
		seen[t.Turn] = true
		for fac, v := range t.Exhaustion {
			if v < 0 {
				return nil, fmt.Errorf("%w: turn %d: negative exhaustion for %q", ErrInvalid, t.Turn, fac)
			}
		}
		for _, d := range t.Drafts {
			if strings.TrimSpace(d) == "" {
				return nil, fmt.Errorf("%w: turn %d: empty draft path", ErrInvalid, t.Turn)
			}
		}
	}
	sort.Slice(s.Turns, func(i, j int) bool { return s.Turns[i].Turn < s.Turns[j].Turn })
	return &s, nil
}

// At returns the entry for turn, or nil. A nil script has no entries.
func (s *Script) At(turn int) *ScriptTurn {
	if s == nil {
		return nil
	}
	i := sort.Search(len(s.Turns), func(i int) bool { return s.Turns[i].Turn >= turn })
	if i < len(s.Turns) && s.Turns[i].Turn == turn {
		return &s.Turns[i]
	}
	return nil
}

// DraftPaths resolves the turn's draft files against the script directory.
func (s *Script) DraftPaths(t *ScriptTurn) []string {
	if t == nil {
		return nil
	}
	out := make([]string, 0, len(t.Drafts))
	for _, d := range t.Drafts {
		if filepath.IsAbs(d) || s == nil {
			out = append(out, d)
			continue
		}
		out = append(out, filepath.Join(s.dir, d))
	}
	return out
}

func (t *ScriptTurn) ExhaustionReport() *pressure.ExhaustionReport {
	if t == nil || len(t.Exhaustion) == 0 {
		return nil
	}
	ids := make([]string, 0, len(t.Exhaustion))
	for id := range t.Exhaustion {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	rep := &pressure.ExhaustionReport{}
	for _, id := range ids {
		rep.Factions = append(rep.Factions, pressure.ExhaustionDelta{FactionID: id, After: t.Exhaustion[id]})
	}
	return rep
}

func (t *ScriptTurn) SustainabilityReport() *pressure.SustainabilityReport {
	if t == nil || len(t.Collapsed) == 0 {
		return nil
	}
	ids := make([]string, 0, len(t.Collapsed))
	for id := range t.Collapsed {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	rep := &pressure.SustainabilityReport{}
	for _, id := range ids {
		rep.Municipalities = append(rep.Municipalities, pressure.MunicipalityStatus{
			MunicipalityID: id,
			FactionID:      t.Collapsed[id],
			CollapsedAfter: true,
		})
	}
	return rep
}
