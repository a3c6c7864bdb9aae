package indexdb

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"

	"statecraft.ai/internal/persistence/snapshot"
	"statecraft.ai/internal/sim/campaign"
	"statecraft.ai/internal/sim/campaign/feature/territory"
	"statecraft.ai/internal/sim/campaign/feature/treaty"
	"statecraft.ai/internal/sim/campaign/kernel/model"
	"statecraft.ai/internal/sim/catalogs"
	"statecraft.ai/internal/sim/tuning"
)

func TestSQLiteIndex_QueueDropStats(t *testing.T) {
	s := &SQLiteIndex{ch: make(chan req, 1)}
	s.ch <- req{kind: reqTurn, turn: campaign.TurnReport{Turn: 1}}

	_ = s.WriteTurn(campaign.TurnReport{Turn: 2})
	_ = s.WriteLedger(model.LedgerEntry{ID: "x"})
	_ = s.WriteTreaty(2, campaign.TreatyOutcome{})
	s.RecordSnapshot("/tmp/2.snap.zst", snapshot.SnapshotV1{})

	st := s.Stats()
	if st.DropTurnTotal != 1 || st.DropLedgerTotal != 1 || st.DropTreatyTotal != 1 || st.DropSnapshotTotal != 1 {
		t.Fatalf("drop stats mismatch: %+v", st)
	}
	if st.QueueDepth != 1 || st.QueueCapacity != 1 {
		t.Fatalf("queue stats mismatch: depth=%d cap=%d", st.QueueDepth, st.QueueCapacity)
	}
}

func TestSQLiteIndex_NilAndClosedAreNoops(t *testing.T) {
	var s *SQLiteIndex
	if err := s.WriteTurn(campaign.TurnReport{}); err != nil {
		t.Fatalf("nil WriteTurn: %v", err)
	}
	s.RecordSnapshot("x", snapshot.SnapshotV1{})
	if st := s.Stats(); st != (Stats{}) {
		t.Fatalf("nil stats: %+v", st)
	}

	idx, err := OpenSQLite(filepath.Join(t.TempDir(), "index.sqlite"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := idx.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := idx.WriteLedger(model.LedgerEntry{ID: "late"}); err != nil {
		t.Fatalf("write after close: %v", err)
	}
	if err := idx.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
}

func spend(id string, turn int, faction string, amount int, reason string) model.LedgerEntry {
	return model.LedgerEntry{ID: id, Turn: turn, FactionID: faction, Kind: model.LedgerSpend, Amount: amount, Reason: reason}
}

func TestSQLiteIndex_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "index.sqlite")
	idx, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	tun := tuning.Defaults()
	cats := &catalogs.Catalogs{Competences: catalogs.CompetenceCatalog{Digest: "abc"}}
	if err := idx.UpsertCatalogs("", cats, tun); err != nil {
		t.Fatalf("upsert catalogs: %v", err)
	}

	gain := model.LedgerEntry{ID: "NEG_T0002_RS_gain_pressure_accrual_001", Turn: 2, FactionID: "RS", Kind: model.LedgerGain, Amount: 2, Reason: "pressure_accrual"}
	_ = idx.WriteTurn(campaign.TurnReport{Turn: 1, Digest: "d1"})
	_ = idx.WriteTurn(campaign.TurnReport{Turn: 2, Digest: "d2", Capital: []model.LedgerEntry{gain}})
	_ = idx.WriteLedger(spend("NEG_T0001_RS_spend_x_001", 1, "RS", 1, "x"))
	_ = idx.WriteLedger(spend("NEG_T0001_RBiH_spend_x_001", 1, "RBiH", 1, "x"))

	out := campaign.TreatyOutcome{
		Acceptance: treaty.AcceptanceReport{TreatyID: "T1", Turn: 3, Proposer: "RBiH", AcceptedByAllTargets: true},
		Applied:    true,
		Territory: &territory.Report{TreatyID: "T1", Turn: 3, Ledger: []model.LedgerEntry{
			spend("NEG_T0003_RS_spend_transfer_settlements_001", 3, "RS", 2, "transfer_settlements"),
		}},
		Digest: "d3",
	}
	_ = idx.WriteTreaty(3, out)
	_ = idx.WriteTreaty(3, campaign.TreatyOutcome{Acceptance: treaty.AcceptanceReport{
		TreatyID: "T2", Turn: 3, Proposer: "RS", RejectionReason: treaty.RejectTargetRejected,
	}})
	idx.RecordSnapshot(filepath.Join(dir, "3.snap.zst"), snapshot.SnapshotV1{Header: snapshot.Header{Version: 1, Scenario: "s", Turn: 3, Digest: "d3"}})

	if err := idx.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if st := idx.Stats(); st.DropTurnTotal+st.DropLedgerTotal+st.DropTreatyTotal+st.DropSnapshotTotal != 0 {
		t.Fatalf("unexpected drops: %+v", st)
	}

	idx, err = OpenSQLite(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer idx.Close()
	ctx := context.Background()

	rows, err := idx.LedgerForFaction(ctx, "RS")
	if err != nil {
		t.Fatalf("ledger: %v", err)
	}
	wantIDs := []string{
		"NEG_T0001_RS_spend_x_001",
		"NEG_T0002_RS_gain_pressure_accrual_001",
		"NEG_T0003_RS_spend_transfer_settlements_001",
	}
	if len(rows) != len(wantIDs) {
		t.Fatalf("ledger rows=%d want=%d: %+v", len(rows), len(wantIDs), rows)
	}
	for i, id := range wantIDs {
		if rows[i].ID != id {
			t.Fatalf("row %d id=%q want=%q", i, rows[i].ID, id)
		}
	}
	if rows[1].Kind != "gain" || rows[1].Amount != 2 {
		t.Fatalf("gain row mismatch: %+v", rows[1])
	}

	treaties, err := idx.Treaties(ctx)
	if err != nil {
		t.Fatalf("treaties: %v", err)
	}
	if len(treaties) != 2 {
		t.Fatalf("treaties=%d want=2", len(treaties))
	}
	if !treaties[0].Accepted || !treaties[0].Applied || treaties[0].TreatyID != "T1" {
		t.Fatalf("T1 row mismatch: %+v", treaties[0])
	}
	if treaties[1].Accepted || treaties[1].RejectionReason != string(treaty.RejectTargetRejected) {
		t.Fatalf("T2 row mismatch: %+v", treaties[1])
	}

	if d, err := idx.TurnDigest(ctx, 2); err != nil || d != "d2" {
		t.Fatalf("turn digest=%q err=%v", d, err)
	}
	if _, err := idx.TurnDigest(ctx, 99); !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("missing turn err=%v", err)
	}
}
