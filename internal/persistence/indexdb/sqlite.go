package indexdb

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"statecraft.ai/internal/persistence/snapshot"
	"statecraft.ai/internal/sim/campaign"
	"statecraft.ai/internal/sim/campaign/kernel/model"
	"statecraft.ai/internal/sim/catalogs"
	"statecraft.ai/internal/sim/tuning"
)

// SQLiteIndex is a queryable secondary copy of the campaign logs. Writes are
// queued and applied by a single goroutine; the JSONL logs stay
// authoritative, so a full queue drops rows instead of stalling a turn.
type SQLiteIndex struct {
	db *sqlx.DB

	ch   chan req
	wg   sync.WaitGroup
	once sync.Once

	closed atomic.Bool

	dropTurn     atomic.Uint64
	dropLedger   atomic.Uint64
	dropTreaty   atomic.Uint64
	dropSnapshot atomic.Uint64
}

type Stats struct {
	QueueDepth    int `json:"queue_depth"`
	QueueCapacity int `json:"queue_capacity"`

	DropTurnTotal     uint64 `json:"drop_turn_total"`
	DropLedgerTotal   uint64 `json:"drop_ledger_total"`
	DropTreatyTotal   uint64 `json:"drop_treaty_total"`
	DropSnapshotTotal uint64 `json:"drop_snapshot_total"`
}

type reqKind int

const (
	reqTurn reqKind = iota + 1
	reqLedger
	reqTreaty
	reqSnapshot
)

type req struct {
	kind reqKind

	turn     campaign.TurnReport
	ledger   model.LedgerEntry
	treaty   treatyRow
	snapshot snapshotRow
}

type treatyRow struct {
	Turn    int
	Outcome campaign.TreatyOutcome
}

type snapshotRow struct {
	Turn     int
	Path     string
	Scenario string
	Digest   string
	Factions int
	Edges    int
}

// LedgerRow is one capital ledger entry as stored in the index.
type LedgerRow struct {
	ID        string `db:"id" json:"id"`
	Turn      int    `db:"turn" json:"turn"`
	FactionID string `db:"faction_id" json:"faction_id"`
	Kind      string `db:"kind" json:"kind"`
	Amount    int    `db:"amount" json:"amount"`
	Reason    string `db:"reason" json:"reason"`
}

// TreatyRow is one acceptance verdict as stored in the index.
type TreatyRow struct {
	TreatyID        string `db:"treaty_id" json:"treaty_id"`
	Turn            int    `db:"turn" json:"turn"`
	Proposer        string `db:"proposer" json:"proposer"`
	Accepted        bool   `db:"accepted" json:"accepted"`
	Applied         bool   `db:"applied" json:"applied"`
	RejectionReason string `db:"rejection_reason" json:"rejection_reason"`
}

func OpenSQLite(path string) (*SQLiteIndex, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sqlx.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db.DB); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db.DB); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &SQLiteIndex{
		db: db,
		ch: make(chan req, 65536),
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

func initPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA foreign_keys=ON;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS catalogs (
			name TEXT PRIMARY KEY,
			digest TEXT NOT NULL,
			json TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS turns (
			turn INTEGER PRIMARY KEY,
			digest TEXT NOT NULL,
			offer_id TEXT,
			offer_skip TEXT,
			ledger_entries INTEGER NOT NULL,
			raw_json TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS ledger (
			id TEXT PRIMARY KEY,
			turn INTEGER NOT NULL,
			faction_id TEXT NOT NULL,
			kind TEXT NOT NULL,
			amount INTEGER NOT NULL,
			reason TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_ledger_faction_turn ON ledger(faction_id, turn);`,
		`CREATE TABLE IF NOT EXISTS treaties (
			treaty_id TEXT NOT NULL,
			turn INTEGER NOT NULL,
			proposer TEXT NOT NULL,
			accepted INTEGER NOT NULL,
			applied INTEGER NOT NULL,
			rejection_reason TEXT NOT NULL,
			digest TEXT NOT NULL,
			raw_json TEXT NOT NULL,
			PRIMARY KEY (treaty_id, turn)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_treaties_proposer ON treaties(proposer, turn);`,
		`CREATE TABLE IF NOT EXISTS snapshots (
			turn INTEGER PRIMARY KEY,
			path TEXT NOT NULL,
			scenario TEXT NOT NULL,
			digest TEXT NOT NULL,
			factions INTEGER NOT NULL,
			edges INTEGER NOT NULL
		);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteIndex) Close() error {
	var err error
	s.once.Do(func() {
		s.closed.Store(true)
		close(s.ch)
		s.wg.Wait()
		err = s.db.Close()
	})
	return err
}

func (s *SQLiteIndex) Stats() Stats {
	if s == nil {
		return Stats{}
	}
	return Stats{
		QueueDepth:        len(s.ch),
		QueueCapacity:     cap(s.ch),
		DropTurnTotal:     s.dropTurn.Load(),
		DropLedgerTotal:   s.dropLedger.Load(),
		DropTreatyTotal:   s.dropTreaty.Load(),
		DropSnapshotTotal: s.dropSnapshot.Load(),
	}
}

func (s *SQLiteIndex) WriteTurn(rep campaign.TurnReport) error {
	if s == nil || s.closed.Load() {
		return nil
	}
	select {
	case s.ch <- req{kind: reqTurn, turn: rep}:
	default:
		s.dropTurn.Add(1)
	}
	return nil
}

func (s *SQLiteIndex) WriteLedger(e model.LedgerEntry) error {
	if s == nil || s.closed.Load() {
		return nil
	}
	select {
	case s.ch <- req{kind: reqLedger, ledger: e}:
	default:
		s.dropLedger.Add(1)
	}
	return nil
}

func (s *SQLiteIndex) WriteTreaty(turn int, out campaign.TreatyOutcome) error {
	if s == nil || s.closed.Load() {
		return nil
	}
	select {
	case s.ch <- req{kind: reqTreaty, treaty: treatyRow{Turn: turn, Outcome: out}}:
	default:
		s.dropTreaty.Add(1)
	}
	return nil
}

func (s *SQLiteIndex) RecordSnapshot(path string, snap snapshot.SnapshotV1) {
	if s == nil || s.closed.Load() {
		return
	}
	r := snapshotRow{
		Turn:     snap.Header.Turn,
		Path:     path,
		Scenario: snap.Header.Scenario,
		Digest:   snap.Header.Digest,
		Factions: len(snap.Factions),
		Edges:    len(snap.Segments),
	}
	select {
	case s.ch <- req{kind: reqSnapshot, snapshot: r}:
	default:
		s.dropSnapshot.Add(1)
	}
}

// UpsertCatalogs stores the competence table and the tuning actually in
// effect, so a query can tell which constants produced the indexed turns.
func (s *SQLiteIndex) UpsertCatalogs(configDir string, cats *catalogs.Catalogs, tune tuning.Tuning) error {
	if s == nil {
		return nil
	}

	type kv struct {
		name   string
		digest string
		json   []byte
	}
	var rows []kv
	if configDir != "" {
		if b, err := os.ReadFile(filepath.Join(configDir, "competences.json")); err == nil && cats != nil {
			rows = append(rows, kv{name: "competences", digest: cats.Competences.Digest, json: b})
		}
	}
	{
		b, _ := json.Marshal(tune)
		sum := sha256.Sum256(b)
		rows = append(rows, kv{name: "tuning", digest: hex.EncodeToString(sum[:]), json: b})
	}

	tx, err := s.db.BeginTx(context.Background(), nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`INSERT OR REPLACE INTO meta(key,value) VALUES('schema_version','1')`); err != nil {
		return err
	}
	if _, err := tx.Exec(`INSERT OR REPLACE INTO meta(key,value) VALUES('protocol_version',?)`, tune.ProtocolVersion); err != nil {
		return err
	}
	stmt, err := tx.Prepare(`INSERT OR REPLACE INTO catalogs(name,digest,json) VALUES(?,?,?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, r := range rows {
		if r.name == "" || r.digest == "" || len(r.json) == 0 {
			continue
		}
		if _, err := stmt.Exec(r.name, r.digest, string(r.json)); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// LedgerForFaction returns every indexed ledger entry of one faction in
// turn order, ties broken by id.
func (s *SQLiteIndex) LedgerForFaction(ctx context.Context, factionID string) ([]LedgerRow, error) {
	var rows []LedgerRow
	err := s.db.SelectContext(ctx, &rows,
		`SELECT id, turn, faction_id, kind, amount, reason FROM ledger WHERE faction_id = ? ORDER BY turn, id`,
		factionID,
	)
	return rows, err
}

func (s *SQLiteIndex) Treaties(ctx context.Context) ([]TreatyRow, error) {
	var rows []TreatyRow
	err := s.db.SelectContext(ctx, &rows,
		`SELECT treaty_id, turn, proposer, accepted, applied, rejection_reason FROM treaties ORDER BY turn, treaty_id`,
	)
	return rows, err
}

// TurnDigest returns the digest indexed for turn, or sql.ErrNoRows.
func (s *SQLiteIndex) TurnDigest(ctx context.Context, turn int) (string, error) {
	var digest string
	err := s.db.GetContext(ctx, &digest, `SELECT digest FROM turns WHERE turn = ?`, turn)
	return digest, err
}

func (s *SQLiteIndex) loop() {
	ctx := context.Background()

	insertTurn, _ := s.db.Prepare(`INSERT OR REPLACE INTO turns(turn,digest,offer_id,offer_skip,ledger_entries,raw_json) VALUES(?,?,?,?,?,?)`)
	insertLedger, _ := s.db.Prepare(`INSERT OR REPLACE INTO ledger(id,turn,faction_id,kind,amount,reason) VALUES(?,?,?,?,?,?)`)
	insertTreaty, _ := s.db.Prepare(`INSERT OR REPLACE INTO treaties(treaty_id,turn,proposer,accepted,applied,rejection_reason,digest,raw_json) VALUES(?,?,?,?,?,?,?,?)`)
	insertSnapshot, _ := s.db.Prepare(`INSERT OR REPLACE INTO snapshots(turn,path,scenario,digest,factions,edges) VALUES(?,?,?,?,?,?)`)
	defer func() {
		for _, st := range []*sql.Stmt{insertTurn, insertLedger, insertTreaty, insertSnapshot} {
			if st != nil {
				_ = st.Close()
			}
		}
	}()

	var (
		tx            *sql.Tx
		opCount       int
		lastCommit    = time.Now()
		commitEvery   = 500
		commitMaxWait = time.Second
	)

	begin := func() {
		if tx != nil {
			return
		}
		txx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			time.Sleep(50 * time.Millisecond)
			return
		}
		tx = txx
		opCount = 0
		lastCommit = time.Now()
	}
	commit := func() {
		if tx == nil {
			return
		}
		_ = tx.Commit()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	rollback := func() {
		if tx == nil {
			return
		}
		_ = tx.Rollback()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	flushIfNeeded := func() {
		if tx == nil {
			return
		}
		if opCount >= commitEvery || time.Since(lastCommit) >= commitMaxWait {
			commit()
		}
	}
	exec := func(st *sql.Stmt, args ...any) bool {
		if st == nil {
			return true
		}
		if _, err := tx.Stmt(st).Exec(args...); err != nil {
			rollback()
			return false
		}
		opCount++
		return true
	}

	for r := range s.ch {
		begin()
		if tx == nil {
			continue
		}
		switch r.kind {
		case reqTurn:
			t := r.turn
			raw, _ := json.Marshal(t)
			var offerID any
			if t.Offer != nil {
				offerID = t.Offer.ID
			}
			if !exec(insertTurn, t.Turn, t.Digest, offerID, string(t.OfferSkip), len(t.Capital), string(raw)) {
				continue
			}
			// Accrual entries ride along with the turn.
			for _, e := range t.Capital {
				if !exec(insertLedger, e.ID, e.Turn, e.FactionID, string(e.Kind), e.Amount, e.Reason) {
					break
				}
			}

		case reqLedger:
			e := r.ledger
			exec(insertLedger, e.ID, e.Turn, e.FactionID, string(e.Kind), e.Amount, e.Reason)

		case reqTreaty:
			out := r.treaty.Outcome
			acc := out.Acceptance
			raw, _ := json.Marshal(out)
			if !exec(insertTreaty, acc.TreatyID, r.treaty.Turn, acc.Proposer, acc.AcceptedByAllTargets, out.Applied, string(acc.RejectionReason), out.Digest, string(raw)) {
				continue
			}
			if out.Territory != nil {
				for _, e := range out.Territory.Ledger {
					if !exec(insertLedger, e.ID, e.Turn, e.FactionID, string(e.Kind), e.Amount, e.Reason) {
						break
					}
				}
			}

		case reqSnapshot:
			sn := r.snapshot
			exec(insertSnapshot, sn.Turn, sn.Path, sn.Scenario, sn.Digest, sn.Factions, sn.Edges)
		}
		flushIfNeeded()
	}

	commit()
}
