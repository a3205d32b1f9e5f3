package pagedb

import (
	"path/filepath"
	"testing"

	"barterforge.ai/internal/sim/model"
	"barterforge.ai/internal/sim/tuning"
	"barterforge.ai/internal/sim/workbook"
)

func openStore(t *testing.T) (*Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pages.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s, path
}

func TestSaveLoadReplace(t *testing.T) {
	s, _ := openStore(t)
	if _, _, found, err := s.LoadPages(7); err != nil || found {
		t.Fatalf("empty store: found=%v err=%v", found, err)
	}
	if err := s.SavePages(7, "50.0\n-10\n10015", []string{"a", "b", "c"}); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := s.SavePages(7, "60.0\n-10\n10015", []string{"x"}); err != nil {
		t.Fatalf("resave: %v", err)
	}
	header, pages, found, err := s.LoadPages(7)
	if err != nil || !found || header != "60.0\n-10\n10015" || len(pages) != 1 || pages[0] != "x" {
		t.Fatalf("load: %q %q %v %v", header, pages, found, err)
	}

	rows, err := s.Ledgers()
	if err != nil || len(rows) != 1 || rows[0].Vendor != 7 || rows[0].Pages != 1 || rows[0].Chars != len("60.0\n-10\n10015")+1 {
		t.Fatalf("ledgers: %+v %v", rows, err)
	}

	if err := s.DeletePages(7); err != nil {
		t.Fatal(err)
	}
	if _, _, found, _ := s.LoadPages(7); found {
		t.Fatalf("deleted ledger still found")
	}
}

func TestWorkbookSurvivesReopen(t *testing.T) {
	s, path := openStore(t)
	opts := workbook.Options{
		Vendor:      100,
		Ledger:      tuning.Defaults().Ledger,
		MaxSkillCap: 100,
		Init:        workbook.Header{SkillCap: 50, Forge: model.NoForge, Skills: []model.SkillID{10015}},
		Store:       s,
	}
	b, err := workbook.Open(opts)
	if err != nil {
		t.Fatalf("open book: %v", err)
	}
	for i := 0; i < 60; i++ {
		if err := b.AddJob(workbook.Job{Customer: 1, Item: model.ItemID(1000 + i), TargetQL: 30, Price: 161}); err != nil {
			t.Fatalf("add %d: %v", i, err)
		}
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}

	s2, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer s2.Close()
	opts.Store = s2
	b2, err := workbook.Open(opts)
	if err != nil {
		t.Fatalf("reopen book: %v", err)
	}
	if b2.Len() != 60 {
		t.Fatalf("jobs after reopen: %d", b2.Len())
	}
	if j, ok := b2.Find(1059); !ok || j.Price != 161 || j.TargetQL != 30 {
		t.Fatalf("job: %+v %v", j, ok)
	}
}

func TestMeta(t *testing.T) {
	s, _ := openStore(t)
	if v, err := s.Meta("tuning_digest"); err != nil || v != "" {
		t.Fatalf("missing key: %q %v", v, err)
	}
	if err := s.SetMeta("tuning_digest", "abc"); err != nil {
		t.Fatal(err)
	}
	if err := s.SetMeta("tuning_digest", "def"); err != nil {
		t.Fatal(err)
	}
	if v, _ := s.Meta("tuning_digest"); v != "def" {
		t.Fatalf("meta: %q", v)
	}
}
