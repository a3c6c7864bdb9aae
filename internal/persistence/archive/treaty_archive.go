package archive

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"statecraft.ai/internal/persistence/snapshot"
	"statecraft.ai/internal/sim/campaign"
)

type TreatyArchiveMeta struct {
	TreatyID     string   `json:"treaty_id"`
	Turn         int      `json:"turn"`
	Proposer     string   `json:"proposer"`
	Scenario     string   `json:"scenario"`
	Digest       string   `json:"digest"`
	Snapshot     string   `json:"snapshot"`
	Allocations  []string `json:"allocations,omitempty"`
	Transfers    int      `json:"transfers"`
	Recognitions int      `json:"recognitions"`
	Frozen       int      `json:"frozen"`
}

// ArchiveTreaty writes the post-treaty snapshot and its meta into
// `campaignDir/archives/treaty_<TurnNNNN>_<ID>/`. Only applied treaties are
// archived; archived=false otherwise.
func ArchiveTreaty(campaignDir string, snap snapshot.SnapshotV1, out campaign.TreatyOutcome) (archivedPath string, archived bool, err error) {
	if !out.Applied {
		return "", false, nil
	}
	acc := out.Acceptance
	if snap.Header.Digest != out.Digest {
		return "", false, fmt.Errorf("treaty %s: snapshot digest %s does not match outcome %s", acc.TreatyID, snap.Header.Digest, out.Digest)
	}

	dir := filepath.Join(campaignDir, "archives", dirName(snap.Header.Turn, acc.TreatyID))
	dst := filepath.Join(dir, fmt.Sprintf("%d.snap.zst", snap.Header.Turn))
	if err := snapshot.WriteSnapshot(dst, snap); err != nil {
		return "", false, err
	}

	meta := TreatyArchiveMeta{
		TreatyID:    acc.TreatyID,
		Turn:        snap.Header.Turn,
		Proposer:    acc.Proposer,
		Scenario:    snap.Header.Scenario,
		Digest:      snap.Header.Digest,
		Snapshot:    filepath.Base(dst),
		Allocations: out.Allocations,
	}
	if out.Territory != nil {
		meta.Transfers = len(out.Territory.Transfers)
		meta.Recognitions = len(out.Territory.Recognitions)
	}
	if out.Enforcement != nil {
		meta.Frozen = len(out.Enforcement.Frozen)
	}
	b, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return "", false, err
	}
	if err := os.WriteFile(filepath.Join(dir, "meta.json"), b, 0o644); err != nil {
		return "", false, err
	}
	return dst, true, nil
}

// ListTreaties reads every archived treaty meta in turn order.
func ListTreaties(campaignDir string) ([]TreatyArchiveMeta, error) {
	root := filepath.Join(campaignDir, "archives")
	ents, err := os.ReadDir(root)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var out []TreatyArchiveMeta
	for _, e := range ents {
		if !e.IsDir() || !strings.HasPrefix(e.Name(), "treaty_") {
			continue
		}
		b, err := os.ReadFile(filepath.Join(root, e.Name(), "meta.json"))
		if err != nil {
			return nil, err
		}
		var m TreatyArchiveMeta
		if err := json.Unmarshal(b, &m); err != nil {
			return nil, fmt.Errorf("%s: %w", e.Name(), err)
		}
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Turn != out[j].Turn {
			return out[i].Turn < out[j].Turn
		}
		return out[i].TreatyID < out[j].TreatyID
	})
	return out, nil
}

func dirName(turn int, treatyID string) string {
	var b strings.Builder
	for _, r := range treatyID {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return fmt.Sprintf("treaty_%04d_%s", turn, b.String())
}
