package main

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"os"
	"path/filepath"
	"testing"

	"statecraft.ai/internal/persistence/archive"
	"statecraft.ai/internal/persistence/indexdb"
	persistlog "statecraft.ai/internal/persistence/log"
	"statecraft.ai/internal/persistence/snapshot"
	"statecraft.ai/internal/protocol"
)

func findRepoRootForCampaignTests(t *testing.T) string {
	t.Helper()
	dir, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			t.Fatalf("could not locate go.mod from %s", dir)
		}
		dir = parent
	}
}

func sampleConfig(t *testing.T, dataDir string, turns int) runConfig {
	t.Helper()
	root := findRepoRootForCampaignTests(t)
	return runConfig{
		ConfigDir:    filepath.Join(root, "configs"),
		ScenarioPath: filepath.Join(root, "configs", "scenarios", "sample.yaml"),
		ScriptPath:   filepath.Join(root, "configs", "scenarios", "sample_script.yaml"),
		DataDir:      dataDir,
		Turns:        turns,
	}
}

func quietLogger() *log.Logger { return log.New(io.Discard, "", 0) }

func TestRunWritesLogsSnapshotAndIndex(t *testing.T) {
	data := t.TempDir()
	res, err := run(sampleConfig(t, data, 4), quietLogger())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.StartTurn != 0 || res.EndTurn != 4 {
		t.Fatalf("turn range %d..%d", res.StartTurn, res.EndTurn)
	}
	if res.Treaties != 1 {
		t.Fatalf("expected the scripted draft to be submitted, treaties=%d", res.Treaties)
	}

	h, err := snapshot.ReadHeader(res.SnapshotPath)
	if err != nil {
		t.Fatalf("snapshot header: %v", err)
	}
	if h.Turn != 4 || h.Digest != res.Digest || h.Scenario != "sample_posavina" {
		t.Fatalf("unexpected header %+v (digest %s)", h, res.Digest)
	}

	segs, err := persistlog.Segments(filepath.Join(res.Dir, "turns"), "turns")
	if err != nil || len(segs) != 1 {
		t.Fatalf("turn segments=%v err=%v", segs, err)
	}
	counts := map[string]int{}
	var lastDigest string
	err = persistlog.ReadJSONL(segs[0], func(line []byte) error {
		base, err := protocol.DecodeBase(line)
		if err != nil {
			return err
		}
		counts[base.Type]++
		if base.Type == protocol.TypeTurn {
			var m protocol.TurnMsg
			if err := json.Unmarshal(line, &m); err != nil {
				return err
			}
			lastDigest = m.Digest
		}
		return nil
	})
	if err != nil {
		t.Fatalf("read turns: %v", err)
	}
	if counts[protocol.TypeTurn] != 4 || counts[protocol.TypeTreaty] != 1 {
		t.Fatalf("unexpected message counts %v", counts)
	}
	if lastDigest != res.Digest {
		t.Fatalf("last logged digest %s != final %s", lastDigest, res.Digest)
	}

	idx, err := indexdb.OpenSQLite(filepath.Join(res.Dir, "index.sqlite"))
	if err != nil {
		t.Fatalf("open index: %v", err)
	}
	defer idx.Close()
	rows, err := idx.LedgerForFaction(context.Background(), "RBiH")
	if err != nil {
		t.Fatalf("ledger: %v", err)
	}
	if len(rows) == 0 || rows[0].Reason != "scenario_start" {
		t.Fatalf("expected the scenario_start grant first, got %+v", rows)
	}
	treaties, err := idx.Treaties(context.Background())
	if err != nil || len(treaties) != 1 || treaties[0].TreatyID != "POSAVINA_1" || treaties[0].Turn != 3 {
		t.Fatalf("treaties=%+v err=%v", treaties, err)
	}

	metas, err := archive.ListTreaties(res.Dir)
	if err != nil {
		t.Fatalf("archives: %v", err)
	}
	if treaties[0].Applied != (len(metas) == 1) || res.Applied != len(metas) {
		t.Fatalf("archive must hold exactly the applied treaties: applied=%d metas=%+v", res.Applied, metas)
	}
}

func TestRunResumeMatchesUninterruptedRun(t *testing.T) {
	straight, err := run(sampleConfig(t, t.TempDir(), 6), quietLogger())
	if err != nil {
		t.Fatalf("straight run: %v", err)
	}

	data := t.TempDir()
	if _, err := run(sampleConfig(t, data, 2), quietLogger()); err != nil {
		t.Fatalf("first leg: %v", err)
	}
	cfg := sampleConfig(t, data, 4)
	cfg.LoadLatest = true
	resumed, err := run(cfg, quietLogger())
	if err != nil {
		t.Fatalf("second leg: %v", err)
	}
	if resumed.StartTurn != 2 || resumed.EndTurn != 6 {
		t.Fatalf("resumed turn range %d..%d", resumed.StartTurn, resumed.EndTurn)
	}
	if resumed.Digest != straight.Digest {
		t.Fatalf("resumed digest %s != straight %s", resumed.Digest, straight.Digest)
	}
}

func TestRunWithoutSourceFails(t *testing.T) {
	cfg := sampleConfig(t, t.TempDir(), 1)
	cfg.ScenarioPath = ""
	if _, err := run(cfg, quietLogger()); err != errNoSource {
		t.Fatalf("want errNoSource, got %v", err)
	}
}

func TestLatestSnapshotPicksHighestTurn(t *testing.T) {
	dir := t.TempDir()
	snaps := filepath.Join(dir, "snapshots")
	if err := os.MkdirAll(snaps, 0o755); err != nil {
		t.Fatal(err)
	}
	for _, n := range []string{"2.snap.zst", "10.snap.zst", "9.snap.zst", "x.snap.zst", "3.txt"} {
		if err := os.WriteFile(filepath.Join(snaps, n), nil, 0o644); err != nil {
			t.Fatal(err)
		}
	}
	if got := latestSnapshot(dir); got != filepath.Join(snaps, "10.snap.zst") {
		t.Fatalf("latest=%s", got)
	}
	if got := latestSnapshot(filepath.Join(dir, "missing")); got != "" {
		t.Fatalf("missing dir should yield empty, got %s", got)
	}
}
