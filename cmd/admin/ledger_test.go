package main

import (
	"io"
	"log"
	"path/filepath"
	"strings"
	"testing"

	"barterforge.ai/internal/persistence/pagedb"
	"barterforge.ai/internal/persistence/snapshot"
	"barterforge.ai/internal/sim/tuning"
	"barterforge.ai/internal/sim/workbook"
)

func openStore(t *testing.T) *pagedb.Store {
	t.Helper()
	st, err := pagedb.Open(filepath.Join(t.TempDir(), "pages.sqlite"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

func TestDescribeLedgerReportsDamage(t *testing.T) {
	st := openStore(t)
	page := strings.Join([]string{"5,101,30.0,0,161,0", "5,102,abc,0,100,0", "103"}, "\n")
	if err := st.SavePages(9, "50.0\n-10\n10015", []string{page}); err != nil {
		t.Fatal(err)
	}

	rep, err := describeLedger(st, 9)
	if err != nil {
		t.Fatalf("describe: %v", err)
	}
	if rep.Format != "legacy" || rep.Header.SkillCap != 50 || rep.Pages != 1 {
		t.Fatalf("report: %+v", rep)
	}
	if len(rep.Jobs) != 2 || rep.Jobs[0].Price != 161 || !rep.Jobs[1].Donation {
		t.Fatalf("jobs: %+v", rep.Jobs)
	}
	if len(rep.Damaged) != 1 || rep.Damaged[0].Item != 102 || rep.Damaged[0].Customer != 5 {
		t.Fatalf("damaged: %+v", rep.Damaged)
	}

	// Describing never rewrites.
	header, pages, _, _ := st.LoadPages(9)
	if header != "50.0\n-10\n10015" || pages[0] != page {
		t.Fatalf("ledger changed: %q %q", header, pages)
	}
}

func TestRepairRewritesInRequestedFormat(t *testing.T) {
	st := openStore(t)
	page := strings.Join([]string{"5,101,30.0,0,161,0", "5,102,abc,0,100,0"}, "\n")
	if err := st.SavePages(9, "50.0\n-10\n10015", []string{page}); err != nil {
		t.Fatal(err)
	}
	tu := tuning.Defaults()
	tu.Ledger.Format = tuning.FormatFramed

	rep, err := repairLedger(st, 9, tu, log.New(io.Discard, "", 0))
	if err != nil {
		t.Fatalf("repair: %v", err)
	}
	if rep.Format != "framed" || len(rep.Jobs) != 1 || len(rep.Damaged) != 0 {
		t.Fatalf("report: %+v", rep)
	}
	if rep.Jobs[0] != (workbook.Job{Customer: 5, Item: 101, TargetQL: 30, Price: 161}) {
		t.Fatalf("job: %+v", rep.Jobs[0])
	}

	if _, err := repairLedger(st, 42, tu, nil); err == nil {
		t.Fatalf("missing ledger should fail")
	}
}

func TestSummarizeCountsVendorItems(t *testing.T) {
	snap := snapshot.SnapshotV1{
		Header: snapshot.Header{Version: snapshot.Version, MarketID: "m", Tick: 12},
		Items: []snapshot.ItemV1{
			{ID: 1, Owner: 100}, {ID: 2, Owner: 100}, {ID: 3, Owner: 7},
		},
		Vendors: []snapshot.VendorV1{
			{ID: 101, Kind: "trader", Forge: -10},
			{ID: 100, Kind: "crafter", Money: 137, Forge: 5000},
		},
	}
	s := summarize(snap)
	if s.Items != 3 || len(s.Vendors) != 2 {
		t.Fatalf("summary: %+v", s)
	}
	if v := s.Vendors[0]; v.ID != 100 || v.Items != 2 || v.Forge != 5000 || v.Money != 137 {
		t.Fatalf("crafter: %+v", v)
	}
	if v := s.Vendors[1]; v.Forge != 0 || v.Items != 0 {
		t.Fatalf("trader: %+v", v)
	}
}
