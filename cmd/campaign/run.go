package main

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"statecraft.ai/internal/persistence/archive"
	"statecraft.ai/internal/persistence/indexdb"
	persistlog "statecraft.ai/internal/persistence/log"
	"statecraft.ai/internal/persistence/snapshot"
	"statecraft.ai/internal/protocol"
	"statecraft.ai/internal/sim/campaign"
	"statecraft.ai/internal/sim/campaign/feature/digest"
	"statecraft.ai/internal/sim/campaign/kernel/model"
	"statecraft.ai/internal/sim/catalogs"
	"statecraft.ai/internal/sim/scenario"
	"statecraft.ai/internal/sim/tuning"
)

var errNoSource = errors.New("need -scenario or -snapshot")

type runConfig struct {
	ConfigDir    string
	ScenarioPath string
	ScriptPath   string
	DataDir      string
	TuningPath   string
	Turns        int
	DisableDB    bool

	SnapshotPath  string
	LoadLatest    bool
	SnapshotEvery int
}

type runResult struct {
	Dir          string
	StartTurn    int
	EndTurn      int
	Digest       string
	SnapshotPath string
	Treaties     int
	Applied      int
}

// sinks fans each record out to the logs and, when enabled, the index.
type sinks struct {
	turns  *persistlog.TurnLogger
	ledger *persistlog.LedgerLogger
	idx    *indexdb.SQLiteIndex
}

func (s *sinks) turn(rep campaign.TurnReport) error {
	if err := s.turns.WriteTurn(rep); err != nil {
		return err
	}
	for _, e := range rep.Capital {
		if err := s.ledger.WriteEntry(e); err != nil {
			return err
		}
	}
	return s.idx.WriteTurn(rep)
}

func (s *sinks) treaty(turn int, out campaign.TreatyOutcome) error {
	if err := s.turns.WriteTreaty(turn, out); err != nil {
		return err
	}
	if out.Territory != nil {
		for _, e := range out.Territory.Ledger {
			if err := s.ledger.WriteEntry(e); err != nil {
				return err
			}
		}
	}
	return s.idx.WriteTreaty(turn, out)
}

func (s *sinks) entries(es []model.LedgerEntry) error {
	for _, e := range es {
		if err := s.ledger.WriteEntry(e); err != nil {
			return err
		}
		if err := s.idx.WriteLedger(e); err != nil {
			return err
		}
	}
	return nil
}

func run(cfg runConfig, logger *log.Logger) (runResult, error) {
	var res runResult

	cats, err := catalogs.Load(cfg.ConfigDir)
	if err != nil {
		return res, fmt.Errorf("load catalogs: %w", err)
	}

	var sc *scenario.Scenario
	name := ""
	if strings.TrimSpace(cfg.ScenarioPath) != "" {
		sc, err = scenario.Load(cfg.ScenarioPath)
		if err != nil {
			return res, fmt.Errorf("load scenario: %w", err)
		}
		name = sc.Name
	}

	snapshotToLoad := strings.TrimSpace(cfg.SnapshotPath)
	if snapshotToLoad == "" && cfg.LoadLatest && name != "" {
		snapshotToLoad = latestSnapshot(campaignDir(cfg.DataDir, name))
	}

	var (
		state *model.State
		tune  tuning.Tuning
		fresh bool
	)
	if snapshotToLoad != "" {
		snap, err := snapshot.ReadSnapshot(snapshotToLoad)
		if err != nil {
			return res, fmt.Errorf("read snapshot: %w", err)
		}
		state = snapshot.Import(snap)
		if got := digest.StateDigest(state); got != snap.Header.Digest {
			return res, fmt.Errorf("snapshot %s: digest mismatch: got=%s want=%s", snapshotToLoad, got, snap.Header.Digest)
		}
		if snap.CatalogDigest != cats.Competences.Digest {
			logger.Printf("snapshot catalog digest %s differs from loaded catalog %s", snap.CatalogDigest, cats.Competences.Digest)
		}
		// The snapshot carries the tuning it was produced with.
		tune = snap.Tuning
		name = snap.Header.Scenario
		logger.Printf("resumed %s at turn %d from %s", name, snap.Header.Turn, snapshotToLoad)
	} else {
		if sc == nil {
			return res, errNoSource
		}
		tp := strings.TrimSpace(cfg.TuningPath)
		if tp == "" {
			tp = filepath.Join(cfg.ConfigDir, "tuning.yaml")
		}
		tune, err = tuning.Load(tp)
		if err != nil {
			return res, fmt.Errorf("load tuning: %w", err)
		}
		state, err = sc.Build()
		if err != nil {
			return res, fmt.Errorf("build scenario: %w", err)
		}
		fresh = true
	}

	var script *scenario.Script
	if strings.TrimSpace(cfg.ScriptPath) != "" {
		script, err = scenario.LoadScript(cfg.ScriptPath)
		if err != nil {
			return res, fmt.Errorf("load script: %w", err)
		}
	}

	dir := campaignDir(cfg.DataDir, name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return res, err
	}
	res.Dir = dir

	out := &sinks{
		turns:  persistlog.NewTurnLogger(dir),
		ledger: persistlog.NewLedgerLogger(dir),
	}
	defer out.turns.Close()
	defer out.ledger.Close()
	if !cfg.DisableDB {
		idx, err := indexdb.OpenSQLite(filepath.Join(dir, "index.sqlite"))
		if err != nil {
			return res, fmt.Errorf("open index: %w", err)
		}
		defer func() {
			st := idx.Stats()
			_ = idx.Close()
			if n := st.DropTurnTotal + st.DropLedgerTotal + st.DropTreatyTotal + st.DropSnapshotTotal; n > 0 {
				logger.Printf("index dropped %d rows", n)
			}
		}()
		if err := idx.UpsertCatalogs(cfg.ConfigDir, cats, tune); err != nil {
			logger.Printf("index: upsert catalogs: %v", err)
		}
		out.idx = idx
	}

	if fresh {
		if err := out.entries(state.NegotiationLedger); err != nil {
			return res, fmt.Errorf("log scenario ledger: %w", err)
		}
	}

	c := campaign.New(state, tune, &cats.Competences)
	res.StartTurn = c.State.Turn
	lastSnapshotTurn := -1

	for i := 0; i < cfg.Turns; i++ {
		st := script.At(c.State.Turn + 1)
		rep, err := c.Step(campaign.TurnInput{
			Exhaustion:     st.ExhaustionReport(),
			Sustainability: st.SustainabilityReport(),
		})
		if err != nil {
			return res, err
		}
		if err := out.turn(rep); err != nil {
			return res, fmt.Errorf("turn %d: log: %w", rep.Turn, err)
		}
		logTurn(logger, rep)

		for _, path := range script.DraftPaths(st) {
			o, err := submitDraft(c, path)
			if err != nil {
				return res, fmt.Errorf("turn %d: %s: %w", rep.Turn, filepath.Base(path), err)
			}
			res.Treaties++
			if o.Applied {
				res.Applied++
				snap := snapshot.Export(c.State, name, c.Tuning, cats.Competences.Digest)
				if _, _, err := archive.ArchiveTreaty(dir, snap, o); err != nil {
					return res, fmt.Errorf("turn %d: archive treaty: %w", rep.Turn, err)
				}
			}
			if err := out.treaty(rep.Turn, o); err != nil {
				return res, fmt.Errorf("turn %d: log treaty: %w", rep.Turn, err)
			}
			logTreaty(logger, o)
		}

		if cfg.SnapshotEvery > 0 && rep.Turn%cfg.SnapshotEvery == 0 {
			p, err := writeSnapshot(dir, name, c, cats, out.idx)
			if err != nil {
				return res, err
			}
			res.SnapshotPath = p
			lastSnapshotTurn = rep.Turn
		}
	}

	if lastSnapshotTurn != c.State.Turn {
		p, err := writeSnapshot(dir, name, c, cats, out.idx)
		if err != nil {
			return res, err
		}
		res.SnapshotPath = p
	}
	res.EndTurn = c.State.Turn
	res.Digest = c.Digest()
	return res, nil
}

// submitDraft reads a DRAFT message and submits it for the turn just
// resolved.
func submitDraft(c *campaign.Campaign, path string) (campaign.TreatyOutcome, error) {
	msg, err := readDraft(path)
	if err != nil {
		return campaign.TreatyOutcome{}, err
	}
	return c.Submit(msg.Draft, msg.Apply)
}

func readDraft(path string) (protocol.DraftMsg, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return protocol.DraftMsg{}, err
	}
	msg, err := protocol.DecodeDraftMsg(raw)
	if err != nil {
		return protocol.DraftMsg{}, err
	}
	if msg.Type != protocol.TypeDraft {
		return protocol.DraftMsg{}, fmt.Errorf("unexpected message type %q", msg.Type)
	}
	return msg, nil
}

func writeSnapshot(dir, name string, c *campaign.Campaign, cats *catalogs.Catalogs, idx *indexdb.SQLiteIndex) (string, error) {
	snap := snapshot.Export(c.State, name, c.Tuning, cats.Competences.Digest)
	path := filepath.Join(dir, "snapshots", fmt.Sprintf("%d.snap.zst", snap.Header.Turn))
	if err := snapshot.WriteSnapshot(path, snap); err != nil {
		return "", fmt.Errorf("write snapshot: %w", err)
	}
	idx.RecordSnapshot(path, snap)
	return path, nil
}

func logTurn(logger *log.Logger, rep campaign.TurnReport) {
	offer := "-"
	if rep.Offer != nil {
		offer = rep.Offer.ID
		if rep.Gate != nil && !rep.Gate.Passed {
			offer += " (gated)"
		}
	} else if rep.OfferSkip != "" {
		offer = "skip:" + string(rep.OfferSkip)
	}
	logger.Printf("turn %d digest=%s breaches=%d offer=%s", rep.Turn, rep.Digest, len(rep.Fronts.Breaches), offer)
}

func logTreaty(logger *log.Logger, o campaign.TreatyOutcome) {
	a := o.Acceptance
	if a.AcceptedByAllTargets {
		logger.Printf("treaty %s by %s accepted applied=%v", a.TreatyID, a.Proposer, o.Applied)
		return
	}
	logger.Printf("treaty %s by %s rejected: %s", a.TreatyID, a.Proposer, a.RejectionReason)
}

func campaignDir(dataDir, name string) string {
	if strings.TrimSpace(name) == "" {
		name = "default"
	}
	return filepath.Join(dataDir, "campaigns", name)
}

func latestSnapshot(dir string) string {
	dir = filepath.Join(dir, "snapshots")
	ents, err := os.ReadDir(dir)
	if err != nil {
		return ""
	}
	var best string
	bestTurn := -1
	for _, e := range ents {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if !strings.HasSuffix(name, ".snap.zst") {
			continue
		}
		turn, err := strconv.Atoi(strings.TrimSuffix(name, ".snap.zst"))
		if err != nil {
			continue
		}
		if turn > bestTurn {
			bestTurn = turn
			best = filepath.Join(dir, name)
		}
	}
	return best
}
