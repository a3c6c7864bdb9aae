package log

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/klauspost/compress/zstd"

	"statecraft.ai/internal/protocol"
	"statecraft.ai/internal/sim/campaign"
	"statecraft.ai/internal/sim/campaign/kernel/model"
)

// DefaultSegmentTurns is how many turns share one log file. Segment names
// depend only on turn numbers so two runs produce identical layouts.
const DefaultSegmentTurns = 100

type JSONLZstdWriter struct {
	baseDir      string
	prefix       string
	segmentTurns int

	mu     sync.Mutex
	curSeg int
	f      *os.File
	enc    *zstd.Encoder
	w      *bufio.Writer
}

func NewJSONLZstdWriter(baseDir, prefix string, segmentTurns int) *JSONLZstdWriter {
	if segmentTurns <= 0 {
		segmentTurns = DefaultSegmentTurns
	}
	return &JSONLZstdWriter{
		baseDir:      baseDir,
		prefix:       prefix,
		segmentTurns: segmentTurns,
		curSeg:       -1,
	}
}

func (w *JSONLZstdWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closeLocked()
}

func (w *JSONLZstdWriter) Write(turn int, v any) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	seg := turn / w.segmentTurns
	if seg != w.curSeg {
		if err := w.rotateLocked(seg); err != nil {
			return err
		}
	}

	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if _, err := w.w.Write(b); err != nil {
		return err
	}
	if err := w.w.WriteByte('\n'); err != nil {
		return err
	}
	return w.w.Flush()
}

func (w *JSONLZstdWriter) rotateLocked(seg int) error {
	if err := w.closeLocked(); err != nil {
		return err
	}
	if err := os.MkdirAll(w.baseDir, 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(w.pathForSegment(seg), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		_ = f.Close()
		return err
	}
	w.f = f
	w.enc = enc
	w.w = bufio.NewWriterSize(enc, 128*1024)
	w.curSeg = seg
	return nil
}

func (w *JSONLZstdWriter) closeLocked() error {
	var err1 error
	if w.w != nil {
		_ = w.w.Flush()
	}
	if w.enc != nil {
		err1 = w.enc.Close()
		w.enc = nil
	}
	if w.f != nil {
		_ = w.f.Close()
		w.f = nil
	}
	w.w = nil
	w.curSeg = -1
	return err1
}

func (w *JSONLZstdWriter) pathForSegment(seg int) string {
	first := seg * w.segmentTurns
	last := first + w.segmentTurns - 1
	return filepath.Join(w.baseDir, fmt.Sprintf("%s-%06d-%06d.jsonl.zst", w.prefix, first, last))
}

// Segments lists a prefix's log files in turn order.
func Segments(baseDir, prefix string) ([]string, error) {
	entries, err := os.ReadDir(baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var out []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, prefix+"-") || !strings.HasSuffix(name, ".jsonl.zst") {
			continue
		}
		out = append(out, filepath.Join(baseDir, name))
	}
	// Zero-padded turn ranges sort lexically.
	sort.Strings(out)
	return out, nil
}

// ReadJSONL streams every line of one compressed segment to fn.
func ReadJSONL(path string, fn func(line []byte) error) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	dec, err := zstd.NewReader(f)
	if err != nil {
		return err
	}
	defer dec.Close()

	sc := bufio.NewScanner(dec)
	sc.Buffer(make([]byte, 0, 256*1024), 64*1024*1024)
	for sc.Scan() {
		if len(sc.Bytes()) == 0 {
			continue
		}
		if err := fn(sc.Bytes()); err != nil {
			return err
		}
	}
	return sc.Err()
}

// TurnLogger writes one TURN entry per turn and one TREATY entry per
// evaluated draft (compressed).
type TurnLogger struct{ w *JSONLZstdWriter }

func NewTurnLogger(campaignDir string) *TurnLogger {
	return &TurnLogger{w: NewJSONLZstdWriter(filepath.Join(campaignDir, "turns"), "turns", DefaultSegmentTurns)}
}

func (l *TurnLogger) WriteTurn(rep campaign.TurnReport) error {
	return l.w.Write(rep.Turn, protocol.NewTurnMsg(rep))
}

func (l *TurnLogger) WriteTreaty(turn int, out campaign.TreatyOutcome) error {
	return l.w.Write(turn, protocol.NewTreatyMsg(turn, out))
}

func (l *TurnLogger) Close() error { return l.w.Close() }

// LedgerLogger writes negotiation ledger entries (compressed).
type LedgerLogger struct{ w *JSONLZstdWriter }

func NewLedgerLogger(campaignDir string) *LedgerLogger {
	return &LedgerLogger{w: NewJSONLZstdWriter(filepath.Join(campaignDir, "ledger"), "ledger", DefaultSegmentTurns)}
}

func (l *LedgerLogger) WriteEntry(e model.LedgerEntry) error {
	return l.w.Write(e.Turn, protocol.NewLedgerMsg(e))
}

func (l *LedgerLogger) Close() error { return l.w.Close() }
