package snapshot

import (
	"bufio"
	"encoding/gob"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"

	"statecraft.ai/internal/sim/tuning"
)

const Version = 1

var ErrVersion = errors.New("unsupported snapshot version")

type Header struct {
	Version  int    `json:"version"`
	Scenario string `json:"scenario"`
	Turn     int    `json:"turn"`
	Digest   string `json:"digest"`
}

type SnapshotV1 struct {
	Header Header `json:"header"`

	// Captured so a resumed campaign replays with the same constants.
	Tuning        tuning.Tuning `json:"tuning"`
	CatalogDigest string        `json:"catalog_digest"`

	NegotiationStatus NegotiationStatusV1 `json:"negotiation_status"`

	Factions      []FactionV1     `json:"factions"`
	Adjacency     []AdjacencyV1   `json:"adjacency"`
	SupplySources []string        `json:"supply_sources"`
	Regions       []RegionV1      `json:"regions"`
	Formations    []FormationV1   `json:"formations"`
	MilitiaPools  []MilitiaPoolV1 `json:"militia_pools"`
	Postures      []PostureV1     `json:"postures"`

	Segments    []SegmentV1    `json:"segments"`
	Pressures   []PressureV1   `json:"pressures"`
	Ceasefire   []CeasefireV1  `json:"ceasefire"`
	Overrides   []OverlayV1    `json:"overrides"`
	Recognition []OverlayV1    `json:"recognition"`
	Allocations []AllocationV1 `json:"allocations"`
	Ledger      []LedgerV1     `json:"ledger"`
}

type NegotiationStatusV1 struct {
	CeasefireActive    bool   `json:"ceasefire_active"`
	CeasefireSinceTurn int    `json:"ceasefire_since_turn"`
	LastOfferTurn      int    `json:"last_offer_turn"`
	LastOfferID        string `json:"last_offer_id,omitempty"`
}

type FactionV1 struct {
	ID         string `json:"id"`
	Authority  int    `json:"authority"`
	Legitimacy int    `json:"legitimacy"`
	Control    int    `json:"control"`
	Logistics  int    `json:"logistics"`
	Exhaustion int    `json:"exhaustion"`

	Pressure              int `json:"pressure"`
	LastChangeTurn        int `json:"last_change_turn"`
	Capital               int `json:"capital"`
	SpentTotal            int `json:"spent_total"`
	LastCapitalChangeTurn int `json:"last_capital_change_turn"`

	AoR []string `json:"aor"`
	// gob drops zero values, so optional ints carry an explicit flag.
	HasCommandCapacity bool `json:"has_command_capacity"`
	CommandCapacity    int  `json:"command_capacity"`
}

type AdjacencyV1 struct {
	Settlement string   `json:"settlement"`
	Neighbors  []string `json:"neighbors"`
}

type RegionV1 struct {
	ID    string   `json:"id"`
	SideA string   `json:"side_a"`
	SideB string   `json:"side_b"`
	Edges []string `json:"edges"`
}

type FormationV1 struct {
	ID         string `json:"id"`
	FactionID  string `json:"faction_id"`
	Active     bool   `json:"active"`
	Supplied   bool   `json:"supplied"`
	AssignKind string `json:"assign_kind"`
	EdgeID     string `json:"edge_id,omitempty"`
	RegionID   string `json:"region_id,omitempty"`
}

type MilitiaPoolV1 struct {
	ID             string `json:"id"`
	FactionID      string `json:"faction_id"`
	MunicipalityID string `json:"municipality_id"`
	Supplied       bool   `json:"supplied"`
}

type PostureV1 struct {
	FactionID string `json:"faction_id"`
	EdgeID    string `json:"edge_id"`
	Weight    int    `json:"weight"`
}

type SegmentV1 struct {
	EdgeID       string `json:"edge_id"`
	SideA        string `json:"side_a"`
	SideB        string `json:"side_b"`
	Active       bool   `json:"active"`
	ActiveStreak int    `json:"active_streak"`
	Friction     int    `json:"friction"`
	MaxFriction  int    `json:"max_friction"`
	SinceTurn    int    `json:"since_turn"`
}

type PressureV1 struct {
	EdgeID  string `json:"edge_id"`
	Value   int    `json:"value"`
	MaxAbs  int    `json:"max_abs"`
	Updated int    `json:"updated_turn"`
}

type CeasefireV1 struct {
	EdgeID    string `json:"edge_id"`
	SinceTurn int    `json:"since_turn"`
	HasUntil  bool   `json:"has_until"`
	UntilTurn int    `json:"until_turn"`
	OfferID   string `json:"offer_id,omitempty"`
}

type OverlayV1 struct {
	SettlementID string `json:"settlement_id"`
	Side         string `json:"side"`
	Kind         string `json:"kind"`
	TreatyID     string `json:"treaty_id"`
	SinceTurn    int    `json:"since_turn"`
}

type AllocationV1 struct {
	Competence string `json:"competence"`
	Holder     string `json:"holder"`
	TreatyID   string `json:"treaty_id"`
	SinceTurn  int    `json:"since_turn"`
}

type LedgerV1 struct {
	ID        string `json:"id"`
	Turn      int    `json:"turn"`
	FactionID string `json:"faction_id"`
	Kind      string `json:"kind"`
	Amount    int    `json:"amount"`
	Reason    string `json:"reason"`
}

func WriteSnapshot(path string, snap SnapshotV1) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return err
	}

	bw := bufio.NewWriterSize(enc, 256*1024)

	hb, _ := json.Marshal(snap.Header)
	if _, err := bw.Write(hb); err != nil {
		_ = enc.Close()
		return err
	}
	if err := bw.WriteByte('\n'); err != nil {
		_ = enc.Close()
		return err
	}
	if err := gob.NewEncoder(bw).Encode(&snap); err != nil {
		_ = enc.Close()
		return fmt.Errorf("gob encode: %w", err)
	}
	if err := bw.Flush(); err != nil {
		_ = enc.Close()
		return err
	}
	return enc.Close()
}

func ReadSnapshot(path string) (SnapshotV1, error) {
	var snap SnapshotV1
	f, err := os.Open(path)
	if err != nil {
		return snap, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return snap, err
	}
	defer dec.Close()

	br := bufio.NewReaderSize(dec, 256*1024)

	// The header is repeated inside the gob body.
	if _, err := br.ReadBytes('\n'); err != nil {
		return snap, fmt.Errorf("read header: %w", err)
	}
	if err := gob.NewDecoder(br).Decode(&snap); err != nil {
		return snap, fmt.Errorf("gob decode: %w", err)
	}
	if snap.Header.Version != Version {
		return snap, fmt.Errorf("%w %d", ErrVersion, snap.Header.Version)
	}
	return snap, nil
}

// ReadHeader decodes only the leading JSON line.
func ReadHeader(path string) (Header, error) {
	var h Header
	f, err := os.Open(path)
	if err != nil {
		return h, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return h, err
	}
	defer dec.Close()

	line, err := bufio.NewReader(dec).ReadBytes('\n')
	if err != nil {
		return h, fmt.Errorf("read header: %w", err)
	}
	if err := json.Unmarshal(line, &h); err != nil {
		return h, fmt.Errorf("decode header: %w", err)
	}
	return h, nil
}
