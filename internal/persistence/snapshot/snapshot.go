// Package snapshot is the zstd-compressed restart image of a market: items,
// inventories, creatures, vendors, market counters and treasury. Ledger pages
// are copied in for offline replay and inspection, but a live restore reads
// them from the page store.
package snapshot

import (
	"bufio"
	"crypto/sha256"
	"encoding/gob"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"
)

const Version = 1

type Header struct {
	Version  int    `json:"version"`
	MarketID string `json:"market_id"`
	Tick     uint64 `json:"tick"`
}

type SnapshotV1 struct {
	Header Header `json:"header"`

	TickRate      int    `json:"tick_rate_hz"`
	TuningDigest  string `json:"tuning_digest,omitempty"`
	CatalogDigest string `json:"catalog_digest,omitempty"`

	// Players were connected at export. A restarted server ignores this;
	// replay re-registers them.
	Players []int64 `json:"players,omitempty"`

	Items       []ItemV1      `json:"items"`
	Inventories []InventoryV1 `json:"inventories"`
	Creatures   []CreatureV1  `json:"creatures"`
	Vendors     []VendorV1    `json:"vendors"`
	Markets     []MarketV1    `json:"markets,omitempty"`
	Outbox      []MailV1      `json:"outbox,omitempty"`

	Treasury TreasuryV1 `json:"treasury"`
	Counters CountersV1 `json:"counters"`
}

type ItemV1 struct {
	ID          int64   `json:"id"`
	Template    string  `json:"template"`
	Name        string  `json:"name"`
	Material    string  `json:"material,omitempty"`
	Quality     float64 `json:"quality"`
	Damage      float64 `json:"damage,omitempty"`
	WeightGrams int     `json:"weight_grams"`
	Coin        bool    `json:"coin,omitempty"`
	CoinValue   int64   `json:"coin_value,omitempty"`
	Owner       int64   `json:"owner"`
	// Parent is the containing item, 0 at top level.
	Parent int64 `json:"parent,omitempty"`

	NoTrade    bool `json:"no_trade,omitempty"`
	Repairable bool `json:"repairable,omitempty"`
	Newbie     bool `json:"newbie,omitempty"`
	Royal      bool `json:"royal,omitempty"`
	Tool       bool `json:"tool,omitempty"`

	DeedSubject int64 `json:"deed_subject,omitempty"`
}

// InventoryV1 lists a party's top-level items in insertion order.
type InventoryV1 struct {
	Party int64   `json:"party"`
	Items []int64 `json:"items"`
}

type CreatureV1 struct {
	ID            int64  `json:"id"`
	Name          string `json:"name"`
	Interactive   bool   `json:"interactive,omitempty"`
	MaxCarryGrams int    `json:"max_carry_grams,omitempty"`
	MaxSlots      int    `json:"max_slots,omitempty"`
	Dead          bool   `json:"dead,omitempty"`
}

type VendorV1 struct {
	ID         int64  `json:"id"`
	Kind       string `json:"kind"`
	Controller int64  `json:"controller,omitempty"`
	Money      int64  `json:"money"`
	// Forge is the assigned forge item, -10 for none.
	Forge  int64     `json:"forge"`
	Ledger *LedgerV1 `json:"ledger,omitempty"`
}

type LedgerV1 struct {
	Header string   `json:"header"`
	Pages  []string `json:"pages,omitempty"`
}

type TemplateCountV1 struct {
	Template string `json:"template"`
	Bought   int    `json:"bought"`
	Sold     int    `json:"sold"`
}

type MarketV1 struct {
	Vendor int64             `json:"vendor"`
	Counts []TemplateCountV1 `json:"counts"`
}

type MailV1 struct {
	To   int64 `json:"to"`
	Item int64 `json:"item"`
}

type TreasuryV1 struct {
	King   int64 `json:"king"`
	Upkeep int64 `json:"upkeep"`
	Minted int64 `json:"minted"`
}

type CountersV1 struct {
	NextItem int64 `json:"next_item"`
}

// Digest is a hex sha256 over the JSON form of v.
func Digest(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// StateDigest fingerprints market state. The header is left out so a
// replayed market can be compared with a snapshot taken live.
func StateDigest(snap SnapshotV1) string {
	snap.Header = Header{}
	return Digest(snap)
}

// WriteSnapshot writes a JSON header line followed by the gob body, all in
// one zstd stream. The file is replaced atomically.
func WriteSnapshot(path string, snap SnapshotV1) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := writeFile(tmp, snap); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}

func writeFile(path string, snap SnapshotV1) error {
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
		return err
	}
	if err := bw.WriteByte('\n'); err != nil {
		return err
	}
	if err := gob.NewEncoder(bw).Encode(&snap); err != nil {
		return fmt.Errorf("gob encode: %w", err)
	}
	if err := bw.Flush(); err != nil {
		return err
	}
	if err := enc.Close(); err != nil {
		return err
	}
	return f.Sync()
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
	if _, err := br.ReadBytes('\n'); err != nil {
		return snap, fmt.Errorf("header: %w", err)
	}
	if err := gob.NewDecoder(br).Decode(&snap); err != nil {
		return snap, fmt.Errorf("gob decode: %w", err)
	}
	if snap.Header.Version != Version {
		return snap, fmt.Errorf("unsupported snapshot version %d", snap.Header.Version)
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
		return h, err
	}
	err = json.Unmarshal(line, &h)
	return h, err
}

// Path is where the snapshot of tick is kept under dataDir.
func Path(dataDir string, tick uint64) string {
	return filepath.Join(dataDir, "snapshots", fmt.Sprintf("%012d.snap.zst", tick))
}

// Latest returns the newest snapshot file under dataDir, or "" when none.
func Latest(dataDir string) (string, error) {
	matches, err := filepath.Glob(filepath.Join(dataDir, "snapshots", "*.snap.zst"))
	if err != nil || len(matches) == 0 {
		return "", err
	}
	latest := matches[0]
	for _, m := range matches[1:] {
		if m > latest {
			latest = m
		}
	}
	return latest, nil
}
