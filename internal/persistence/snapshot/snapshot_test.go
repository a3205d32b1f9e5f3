package snapshot

import (
	"path/filepath"
	"testing"
)

func TestWriteReadSnapshot(t *testing.T) {
	dir := t.TempDir()
	snap := SnapshotV1{
		Header:   Header{Version: Version, MarketID: "m1", Tick: 3000},
		TickRate: 5,
		Items: []ItemV1{
			{ID: 1, Template: "bag", Name: "satchel", Owner: 7, WeightGrams: 300},
			{ID: 2, Template: "coin.copper", Coin: true, CoinValue: 100, Owner: 7, Parent: 1},
		},
		Inventories: []InventoryV1{{Party: 7, Items: []int64{1}}},
		Vendors: []VendorV1{{ID: 100, Kind: "crafter", Money: 137, Forge: -10,
			Ledger: &LedgerV1{Header: "50.0\n-10\n10015", Pages: []string{"7,1,30,0,161,0"}}}},
		Markets:     []MarketV1{{Vendor: 101, Counts: []TemplateCountV1{{Template: "tool.hammer", Sold: 2}}}},
		Treasury:    TreasuryV1{King: 16, Upkeep: 8},
		Counters:    CountersV1{NextItem: 3},
	}
	path := Path(dir, 3000)
	if err := WriteSnapshot(path, snap); err != nil {
		t.Fatalf("write: %v", err)
	}

	h, err := ReadHeader(path)
	if err != nil || h.Tick != 3000 || h.MarketID != "m1" {
		t.Fatalf("header: %+v %v", h, err)
	}
	got, err := ReadSnapshot(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(got.Items) != 2 || got.Items[1].Parent != 1 || got.Vendors[0].Money != 137 || got.Markets[0].Counts[0].Sold != 2 {
		t.Fatalf("snapshot: %+v", got)
	}
	if l := got.Vendors[0].Ledger; l == nil || len(l.Pages) != 1 || l.Pages[0] != "7,1,30,0,161,0" {
		t.Fatalf("ledger: %+v", l)
	}
	if StateDigest(got) != StateDigest(snap) {
		t.Fatalf("digest changed across write/read")
	}

	if err := WriteSnapshot(Path(dir, 6000), snap); err != nil {
		t.Fatal(err)
	}
	latest, err := Latest(dir)
	if err != nil || filepath.Base(latest) != "000000006000.snap.zst" {
		t.Fatalf("latest: %q %v", latest, err)
	}
}

func TestLatestWithoutSnapshots(t *testing.T) {
	p, err := Latest(t.TempDir())
	if err != nil || p != "" {
		t.Fatalf("got %q %v", p, err)
	}
}

func TestStateDigestIgnoresHeader(t *testing.T) {
	a := SnapshotV1{Header: Header{Version: Version, MarketID: "m1", Tick: 10}, Counters: CountersV1{NextItem: 4}}
	b := a
	b.Header.Tick = 99
	if StateDigest(a) != StateDigest(b) {
		t.Fatalf("header should not change the digest")
	}
	b.Counters.NextItem = 5
	if StateDigest(a) == StateDigest(b) {
		t.Fatalf("state change should change the digest")
	}
}
