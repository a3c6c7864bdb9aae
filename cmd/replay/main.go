package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"

	persistlog "statecraft.ai/internal/persistence/log"
	"statecraft.ai/internal/persistence/snapshot"
	"statecraft.ai/internal/protocol"
	"statecraft.ai/internal/sim/campaign"
	"statecraft.ai/internal/sim/catalogs"
	"statecraft.ai/internal/sim/scenario"
)

var errStop = errors.New("stop")

func main() {
	var (
		snapPath   = flag.String("snapshot", "", "path to .snap.zst")
		turnsDir   = flag.String("turns", "", "turns dir containing turns-*.jsonl.zst (optional)")
		configDir  = flag.String("configs", "./configs", "config directory")
		scriptPath = flag.String("script", "", "script the campaign was run with; enables digest verification (optional)")
		toTurn     = flag.Int("to_turn", 0, "stop at turn (inclusive, optional)")
	)
	flag.Parse()

	if *snapPath == "" {
		fmt.Fprintln(os.Stderr, "missing -snapshot")
		os.Exit(2)
	}

	snap, err := snapshot.ReadSnapshot(*snapPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "read snapshot:", err)
		os.Exit(1)
	}
	printSummary(os.Stdout, snap)

	if *turnsDir == "" {
		return
	}

	var v *verifier
	if *scriptPath != "" {
		cats, err := catalogs.Load(*configDir)
		if err != nil {
			fmt.Fprintln(os.Stderr, "load catalogs:", err)
			os.Exit(1)
		}
		script, err := scenario.LoadScript(*scriptPath)
		if err != nil {
			fmt.Fprintln(os.Stderr, "load script:", err)
			os.Exit(1)
		}
		v = newVerifier(snap, cats, script)
	}

	files, err := persistlog.Segments(*turnsDir, "turns")
	if err != nil {
		fmt.Fprintln(os.Stderr, "list turns:", err)
		os.Exit(1)
	}
	if len(files) == 0 {
		fmt.Fprintln(os.Stderr, "no turn logs found in", *turnsDir)
		os.Exit(1)
	}

	st := &stream{out: os.Stdout, from: snap.Header.Turn, to: *toTurn, v: v}
	for _, path := range files {
		if err := persistlog.ReadJSONL(path, st.line); err != nil {
			if errors.Is(err, errStop) {
				break
			}
			fmt.Fprintf(os.Stderr, "replay %s: %v\n", filepath.Base(path), err)
			os.Exit(1)
		}
	}
	if v != nil {
		fmt.Printf("replay ok: checked=%d turns treaties=%d (from snapshot turn=%d)\n", st.turns, st.treaties, snap.Header.Turn)
		return
	}
	fmt.Printf("streamed %d turns %d treaties (from snapshot turn=%d)\n", st.turns, st.treaties, snap.Header.Turn)
}

func printSummary(w io.Writer, snap snapshot.SnapshotV1) {
	active := 0
	for _, s := range snap.Segments {
		if s.Active {
			active++
		}
	}
	fmt.Fprintf(w, "snapshot v%d scenario=%s turn=%d digest=%s factions=%d segments=%d active=%d ceasefire=%d overrides=%d recognitions=%d allocations=%d ledger=%d\n",
		snap.Header.Version, snap.Header.Scenario, snap.Header.Turn, snap.Header.Digest,
		len(snap.Factions), len(snap.Segments), active, len(snap.Ceasefire),
		len(snap.Overrides), len(snap.Recognition), len(snap.Allocations), len(snap.Ledger))
	for _, f := range snap.Factions {
		fmt.Fprintf(w, "  %s pressure=%d capital=%d spent=%d\n", f.ID, f.Pressure, f.Capital, f.SpentTotal)
	}
}

// stream walks TURN and TREATY messages after the snapshot turn, printing
// each and, with a verifier, re-running it.
type stream struct {
	out      io.Writer
	from, to int
	v        *verifier

	turns, treaties int
}

func (s *stream) line(b []byte) error {
	base, err := protocol.DecodeBase(b)
	if err != nil {
		return err
	}
	switch base.Type {
	case protocol.TypeTurn:
		var m protocol.TurnMsg
		if err := json.Unmarshal(b, &m); err != nil {
			return err
		}
		if m.Turn <= s.from {
			return nil
		}
		if s.to != 0 && m.Turn > s.to {
			return errStop
		}
		if s.v != nil {
			if err := s.v.turn(m); err != nil {
				return err
			}
		}
		s.turns++
		fmt.Fprintf(s.out, "turn %d digest=%s\n", m.Turn, m.Digest)

	case protocol.TypeTreaty:
		var m protocol.TreatyMsg
		if err := json.Unmarshal(b, &m); err != nil {
			return err
		}
		if m.Turn <= s.from || (s.to != 0 && m.Turn > s.to) {
			return nil
		}
		if s.v != nil {
			if err := s.v.treaty(m); err != nil {
				return err
			}
		}
		s.treaties++
		acc := m.Outcome.Acceptance
		fmt.Fprintf(s.out, "  treaty %s accepted=%v applied=%v reason=%s digest=%s\n",
			m.TreatyID, acc.AcceptedByAllTargets, m.Outcome.Applied, acc.RejectionReason, m.Outcome.Digest)
	}
	return nil
}

// verifier re-runs logged turns from the snapshot state and checks every
// digest against the log.
type verifier struct {
	c      *campaign.Campaign
	script *scenario.Script

	// Drafts of the current turn not yet matched to a TREATY entry.
	pending []string
}

func newVerifier(snap snapshot.SnapshotV1, cats *catalogs.Catalogs, script *scenario.Script) *verifier {
	return &verifier{
		c:      campaign.New(snapshot.Import(snap), snap.Tuning, &cats.Competences),
		script: script,
	}
}

func (v *verifier) turn(m protocol.TurnMsg) error {
	if m.Turn != v.c.State.Turn+1 {
		return fmt.Errorf("turn mismatch: want=%d got=%d", v.c.State.Turn+1, m.Turn)
	}
	if len(v.pending) > 0 {
		return fmt.Errorf("turn %d: %d scripted drafts missing from the log", v.c.State.Turn, len(v.pending))
	}
	st := v.script.At(m.Turn)
	rep, err := v.c.Step(campaign.TurnInput{
		Exhaustion:     st.ExhaustionReport(),
		Sustainability: st.SustainabilityReport(),
	})
	if err != nil {
		return err
	}
	if rep.Digest != m.Digest {
		return fmt.Errorf("digest mismatch at turn %d: got=%s want=%s", rep.Turn, rep.Digest, m.Digest)
	}
	v.pending = v.script.DraftPaths(st)
	return nil
}

func (v *verifier) treaty(m protocol.TreatyMsg) error {
	if len(v.pending) == 0 {
		return fmt.Errorf("turn %d: treaty %s not in script", m.Turn, m.TreatyID)
	}
	path := v.pending[0]
	v.pending = v.pending[1:]

	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	msg, err := protocol.DecodeDraftMsg(raw)
	if err != nil {
		return err
	}
	out, err := v.c.Submit(msg.Draft, msg.Apply)
	if err != nil {
		return fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	if out.Acceptance.TreatyID != m.TreatyID || out.Applied != m.Outcome.Applied || out.Digest != m.Outcome.Digest {
		return fmt.Errorf("treaty %s mismatch at turn %d: applied=%v digest=%s want applied=%v digest=%s",
			m.TreatyID, m.Turn, out.Applied, out.Digest, m.Outcome.Applied, m.Outcome.Digest)
	}
	return nil
}
