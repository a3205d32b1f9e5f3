package log

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"

	"barterforge.ai/internal/sim/crafter"
	"barterforge.ai/internal/sim/market"
	"barterforge.ai/internal/sim/model"
	"barterforge.ai/internal/sim/trade"
)

// JSONLZstdWriter appends JSON lines to hourly zstd files named
// <prefix>-YYYY-MM-DD-HH.jsonl.zst under baseDir.
type JSONLZstdWriter struct {
	baseDir string
	prefix  string
	now     func() time.Time

	mu      sync.Mutex
	curHour string
	f       *os.File
	enc     *zstd.Encoder
	w       *bufio.Writer
}

func NewJSONLZstdWriter(baseDir, prefix string) *JSONLZstdWriter {
	return &JSONLZstdWriter{
		baseDir: baseDir,
		prefix:  prefix,
		now:     time.Now,
	}
}

func (w *JSONLZstdWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closeLocked()
}

func (w *JSONLZstdWriter) Write(v any) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	hour := w.now().UTC().Format("2006-01-02-15")
	if hour != w.curHour {
		if err := w.rotateLocked(hour); err != nil {
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

func (w *JSONLZstdWriter) rotateLocked(hour string) error {
	if err := w.closeLocked(); err != nil {
		return err
	}
	if err := os.MkdirAll(w.baseDir, 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(w.pathForHour(hour), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
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
	w.w = bufio.NewWriterSize(enc, 64*1024)
	w.curHour = hour
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
	w.curHour = ""
	return err1
}

func (w *JSONLZstdWriter) pathForHour(hour string) string {
	return filepath.Join(w.baseDir, fmt.Sprintf("%s-%s.jsonl.zst", w.prefix, hour))
}

// ReadJSONL decodes every line of one rotated file into a generic map.
// Appended zstd frames are read back to back.
func ReadJSONL(path string) ([]map[string]any, error) {
	return readAll[map[string]any](path)
}

func readAll[T any](path string) ([]T, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	dec, err := zstd.NewReader(f)
	if err != nil {
		return nil, err
	}
	defer dec.Close()

	var out []T
	jd := json.NewDecoder(dec)
	for {
		var v T
		if err := jd.Decode(&v); err != nil {
			if err == io.EOF {
				return out, nil
			}
			return out, fmt.Errorf("%s: %w", filepath.Base(path), err)
		}
		out = append(out, v)
	}
}

// TradeLogger is the audit trail of one vendor's trades.
type TradeLogger struct{ w *JSONLZstdWriter }

func NewTradeLogger(dataDir string, vendor model.PartyID) *TradeLogger {
	dir := filepath.Join(dataDir, "audit", fmt.Sprintf("vendor-%d", vendor))
	return &TradeLogger{w: NewJSONLZstdWriter(dir, "trades")}
}

type tradeLine struct {
	TS time.Time `json:"ts"`
	trade.AuditEntry
}

func (l *TradeLogger) WriteAudit(e trade.AuditEntry) error {
	return l.w.Write(tradeLine{TS: l.w.now().UTC(), AuditEntry: e})
}
func (l *TradeLogger) Close() error { return l.w.Close() }

// AlertLogger is the shared administrator alert stream.
type AlertLogger struct{ w *JSONLZstdWriter }

func NewAlertLogger(dataDir string) *AlertLogger {
	return &AlertLogger{w: NewJSONLZstdWriter(filepath.Join(dataDir, "alerts"), "alerts")}
}

type alertLine struct {
	TS time.Time `json:"ts"`
	crafter.Alert
}

func (l *AlertLogger) Alert(a crafter.Alert) error {
	return l.w.Write(alertLine{TS: l.w.now().UTC(), Alert: a})
}
func (l *AlertLogger) Close() error { return l.w.Close() }

// TickLogger writes one JSONL entry per market tick that did work.
type TickLogger struct{ w *JSONLZstdWriter }

func NewTickLogger(dataDir string) *TickLogger {
	return &TickLogger{w: NewJSONLZstdWriter(filepath.Join(dataDir, "ticks"), "ticks")}
}

func (l *TickLogger) WriteTick(e market.TickLogEntry) error { return l.w.Write(e) }
func (l *TickLogger) Close() error                         { return l.w.Close() }

// ReadTicks loads the tick log of a market directory in file order. A server
// restarted from an older snapshot logs some ticks again; the later run wins.
func ReadTicks(dataDir string) ([]market.TickLogEntry, error) {
	paths, err := filepath.Glob(filepath.Join(dataDir, "ticks", "ticks-*.jsonl.zst"))
	if err != nil {
		return nil, err
	}
	sort.Strings(paths)
	var out []market.TickLogEntry
	for _, p := range paths {
		entries, err := readAll[market.TickLogEntry](p)
		if err != nil {
			return nil, err
		}
		for _, e := range entries {
			out = supersede(out, e.Tick)
			out = append(out, e)
		}
	}
	return out, nil
}

// supersede drops the tail of entries at or after tick.
func supersede(entries []market.TickLogEntry, tick uint64) []market.TickLogEntry {
	i := len(entries)
	for i > 0 && entries[i-1].Tick >= tick {
		i--
	}
	return entries[:i]
}
