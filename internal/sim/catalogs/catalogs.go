package catalogs

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"statecraft.ai/internal/sim/campaign/kernel/model"
)

var ErrUnknownCompetence = errors.New("unknown competence")

type Catalogs struct {
	Competences CompetenceCatalog
}

type CompetenceCatalog struct {
	// Factions every competence must carry a utility for.
	Factions []string
	ByID     map[string]CompetenceDef
	Bundles  []Bundle
	Digest   string
}

type CompetenceDef struct {
	ID                string         `json:"id"`
	Utility           map[string]int `json:"utility"`
	ForbiddenFactions []string       `json:"forbidden_factions,omitempty"`
	ForbiddenHolder   string         `json:"forbidden_holder,omitempty"`
}

// Bundle is a set of competences that must be allocated together, to a
// single holder, or not at all.
type Bundle struct {
	ID          string   `json:"id"`
	Competences []string `json:"competences"`
}

type competenceFile struct {
	Factions    []string        `json:"factions"`
	Competences []CompetenceDef `json:"competences"`
	Bundles     []Bundle        `json:"bundles"`
}

func Load(configDir string) (*Catalogs, error) {
	var c Catalogs
	if err := loadCompetences(filepath.Join(configDir, "competences.json"), &c.Competences); err != nil {
		return nil, err
	}
	return &c, nil
}

func sha256Hex(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

func loadCompetences(path string, out *CompetenceCatalog) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	cat, err := ParseCompetences(raw)
	if err != nil {
		return fmt.Errorf("competences.json: %w", err)
	}
	*out = cat
	return nil
}

// ParseCompetences decodes and validates a competence table. Every
// competence must carry a utility for every listed faction, and bundles
// may only name known competences.
func ParseCompetences(raw []byte) (CompetenceCatalog, error) {
	var f competenceFile
	if err := json.Unmarshal(raw, &f); err != nil {
		return CompetenceCatalog{}, err
	}
	out := CompetenceCatalog{
		Factions: append([]string(nil), f.Factions...),
		ByID:     map[string]CompetenceDef{},
		Digest:   sha256Hex(raw),
	}
	sort.Strings(out.Factions)
	for _, def := range f.Competences {
		id := strings.TrimSpace(def.ID)
		if id == "" {
			return CompetenceCatalog{}, errors.New("competence with empty id")
		}
		if _, dup := out.ByID[id]; dup {
			return CompetenceCatalog{}, fmt.Errorf("duplicate competence %q", id)
		}
		for _, fac := range out.Factions {
			if _, ok := def.Utility[fac]; !ok {
				return CompetenceCatalog{}, fmt.Errorf("competence %q: missing utility for %q", id, fac)
			}
		}
		def.ID = id
		def.ForbiddenFactions = append([]string(nil), def.ForbiddenFactions...)
		sort.Strings(def.ForbiddenFactions)
		out.ByID[id] = def
	}
	for _, b := range f.Bundles {
		if strings.TrimSpace(b.ID) == "" || len(b.Competences) == 0 {
			return CompetenceCatalog{}, errors.New("bundle needs id and members")
		}
		members := append([]string(nil), b.Competences...)
		sort.Strings(members)
		for _, m := range members {
			if _, ok := out.ByID[m]; !ok {
				return CompetenceCatalog{}, fmt.Errorf("bundle %q: %w %q", b.ID, ErrUnknownCompetence, m)
			}
		}
		out.Bundles = append(out.Bundles, Bundle{ID: b.ID, Competences: members})
	}
	sort.Slice(out.Bundles, func(i, j int) bool { return out.Bundles[i].ID < out.Bundles[j].ID })
	return out, nil
}

func (c *CompetenceCatalog) Has(id string) bool {
	_, ok := c.ByID[id]
	return ok
}

func (c *CompetenceCatalog) Utility(competence, faction string) (int, error) {
	def, ok := c.ByID[competence]
	if !ok {
		return 0, fmt.Errorf("%w %q", ErrUnknownCompetence, competence)
	}
	v, ok := def.Utility[faction]
	if !ok {
		return 0, fmt.Errorf("competence %s utility: %w %q", competence, model.ErrUnknownFaction, faction)
	}
	return v, nil
}

func (c *CompetenceCatalog) ForbiddenTo(competence, faction string) bool {
	def, ok := c.ByID[competence]
	if !ok {
		return false
	}
	i := sort.SearchStrings(def.ForbiddenFactions, faction)
	return i < len(def.ForbiddenFactions) && def.ForbiddenFactions[i] == faction
}

func (c *CompetenceCatalog) ForbiddenHolder(competence string) (string, bool) {
	def, ok := c.ByID[competence]
	if !ok || def.ForbiddenHolder == "" {
		return "", false
	}
	return def.ForbiddenHolder, true
}

// IDs returns every competence id in lexical order.
func (c *CompetenceCatalog) IDs() []string {
	out := make([]string, 0, len(c.ByID))
	for id := range c.ByID {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
