package registry

import (
	"errors"
	"testing"

	"barterforge.ai/internal/persistence/snapshot"
	"barterforge.ai/internal/sim/catalogs"
	"barterforge.ai/internal/sim/crafter"
	"barterforge.ai/internal/sim/host"
	"barterforge.ai/internal/sim/memhost"
	"barterforge.ai/internal/sim/model"
	"barterforge.ai/internal/sim/pricing"
	"barterforge.ai/internal/sim/trade"
	"barterforge.ai/internal/sim/tuning"
	"barterforge.ai/internal/sim/workbook"
)

type memLogger struct {
	entries []trade.AuditEntry
	closed  bool
}

func (l *memLogger) WriteAudit(e trade.AuditEntry) error {
	l.entries = append(l.entries, e)
	return nil
}

func (l *memLogger) Close() error {
	l.closed = true
	return nil
}

type fixture struct {
	w       *memhost.World
	pages   *workbook.MemoryStore
	loggers map[model.PartyID]*memLogger
	reg     *Registry
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	items, err := catalogs.NewItemCatalog([]catalogs.ItemDef{
		{ID: "coin.copper", Name: "copper coin", WeightGrams: 10, Value: 100, Coin: true},
		{ID: "tool.hammer", Name: "hammer", WeightGrams: 1500, Value: 40, Skill: 10015, Repairable: true},
	})
	if err != nil {
		t.Fatal(err)
	}
	f := &fixture{
		w:       memhost.New(items),
		pages:   workbook.NewMemoryStore(),
		loggers: map[model.PartyID]*memLogger{},
	}
	tu := tuning.Defaults()
	f.reg = New(Deps{
		Items:    f.w,
		Pages:    f.pages,
		Tuning:   tu,
		Catalogs: &catalogs.Catalogs{Items: items},
		Prices:   pricing.NewTable(tu.Pricing),
		NewVendorLogger: func(id model.PartyID) VendorLogger {
			l := &memLogger{}
			f.loggers[id] = l
			return l
		},
	})
	return f
}

func (f *fixture) hire(t *testing.T, id model.PartyID, kind trade.VendorKind) *Entry {
	t.Helper()
	c := f.w.AddCreature(memhost.CreatureSpec{ID: id, Name: string(kind)})
	e, err := f.reg.Hire(HireSpec{Creature: c, Kind: kind, Controller: 1, Skills: []model.SkillID{10015}})
	if err != nil {
		t.Fatalf("hire %d: %v", id, err)
	}
	return e
}

func TestHireCrafterCreatesLedger(t *testing.T) {
	f := newFixture(t)
	e := f.hire(t, 100, trade.VendorCrafter)
	if e.Workshop == nil || e.Market != nil {
		t.Fatalf("crafter entry: %+v", e)
	}
	if h := e.Workshop.Book.Header(); h.SkillCap != 50 || h.Forge != model.NoForge {
		t.Fatalf("header: %+v", h)
	}
	if _, _, found, _ := f.pages.LoadPages(100); !found {
		t.Fatalf("ledger not persisted on hire")
	}
	if _, err := f.reg.Hire(HireSpec{Creature: e.Vendor.Creature, Kind: trade.VendorCrafter}); !errors.Is(err, ErrHired) {
		t.Fatalf("double hire: %v", err)
	}
	tr := f.hire(t, 101, trade.VendorTrader)
	if tr.Market == nil || f.reg.Market(101) != tr.Market {
		t.Fatalf("trader market missing")
	}
	if _, ok := f.reg.Workshop(101); ok {
		t.Fatalf("trader has no workshop")
	}
}

func TestForgesAreExclusive(t *testing.T) {
	f := newFixture(t)
	f.hire(t, 100, trade.VendorCrafter)
	f.hire(t, 102, trade.VendorCrafter)
	f.hire(t, 101, trade.VendorTrader)

	if err := f.reg.AssignForge(100, 55); err != nil {
		t.Fatalf("assign: %v", err)
	}
	if err := f.reg.AssignForge(102, 55); !errors.Is(err, ErrForgeTaken) {
		t.Fatalf("second assign: %v", err)
	}
	if err := f.reg.AssignForge(101, 56); !errors.Is(err, ErrNotCrafter) {
		t.Fatalf("trader forge: %v", err)
	}
	if err := f.reg.AssignForge(100, 57); err != nil {
		t.Fatalf("move forge: %v", err)
	}
	if _, ok := f.reg.ForgeOwner(55); ok {
		t.Fatalf("old forge should be free")
	}
	if err := f.reg.AssignForge(102, 55); err != nil {
		t.Fatalf("freed forge: %v", err)
	}
	ws, _ := f.reg.Workshop(100)
	if ws.Book.Header().Forge != 57 {
		t.Fatalf("forge not persisted in header")
	}
	if err := f.reg.ReleaseForge(100); err != nil {
		t.Fatal(err)
	}
	if _, ok := f.reg.ForgeOwner(57); ok || ws.Book.Header().Forge != model.NoForge {
		t.Fatalf("release failed")
	}
}

func TestDismissTearsDown(t *testing.T) {
	f := newFixture(t)
	f.hire(t, 100, trade.VendorCrafter)
	if err := f.reg.AssignForge(100, 55); err != nil {
		t.Fatal(err)
	}
	if err := f.reg.Dismiss(100); err != nil {
		t.Fatalf("dismiss: %v", err)
	}
	if _, _, found, _ := f.pages.LoadPages(100); found {
		t.Fatalf("ledger should be deleted")
	}
	if _, ok := f.reg.ForgeOwner(55); ok {
		t.Fatalf("forge should be released")
	}
	if !f.loggers[100].closed {
		t.Fatalf("audit trail not closed")
	}
	if err := f.reg.Dismiss(100); !errors.Is(err, ErrNotHired) {
		t.Fatalf("second dismiss: %v", err)
	}
}

func TestAuditRoutedPerVendor(t *testing.T) {
	f := newFixture(t)
	f.hire(t, 100, trade.VendorCrafter)
	f.hire(t, 101, trade.VendorTrader)
	_ = f.reg.WriteAudit(trade.AuditEntry{Vendor: 101, Action: "SETTLE"})
	_ = f.reg.WriteAudit(trade.AuditEntry{Vendor: 999, Action: "SETTLE"})
	if len(f.loggers[101].entries) != 1 || len(f.loggers[100].entries) != 0 {
		t.Fatalf("routing wrong")
	}
}

func TestHandlersComeFromRegistry(t *testing.T) {
	f := newFixture(t)
	e := f.hire(t, 100, trade.VendorCrafter)
	alice := trade.NewPlayer(f.w.AddCreature(memhost.CreatureSpec{ID: 1, Name: "alice", Interactive: true}))
	env := &trade.Env{Items: f.w, Shops: f.w, Treasury: f.w, Controllers: f.w, Handlers: trade.NewFactory(), Audit: f.reg}
	f.reg.RegisterHandlers(env.Handlers)

	s, err := trade.Begin(env, alice, e.Vendor)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	if _, ok := s.Handler().(*crafter.Handler); !ok {
		t.Fatalf("handler %T", s.Handler())
	}
	s.Cancel(alice, "done")
	if len(f.loggers[100].entries) == 0 {
		t.Fatalf("session audit should reach the vendor trail")
	}
}

func TestExportRestore(t *testing.T) {
	f := newFixture(t)
	f.hire(t, 100, trade.VendorCrafter)
	tr := f.hire(t, 101, trade.VendorTrader)
	if err := f.reg.AssignForge(100, 55); err != nil {
		t.Fatal(err)
	}
	tr.Market.RecordSale("tool.hammer")
	f.w.AdjustMoney(101, 500)

	var snap snapshot.SnapshotV1
	f.reg.Export(&snap, f.w)
	if len(snap.Vendors) != 2 || snap.Vendors[0].Forge != 55 || snap.Vendors[1].Money != 500 {
		t.Fatalf("export: %+v", snap.Vendors)
	}

	g := newFixture(t)
	g.pages = f.pages
	g.reg.deps.Pages = f.pages
	for _, id := range []model.PartyID{100, 101} {
		g.w.AddCreature(memhost.CreatureSpec{ID: id, Name: "v"})
	}
	err := g.reg.Restore(snap, func(id model.PartyID) (host.Creature, bool) {
		c, ok := g.w.Creature(id)
		return c, ok
	}, g.w.SetMoney)
	if err != nil {
		t.Fatalf("restore: %v", err)
	}
	if owner, ok := g.reg.ForgeOwner(55); !ok || owner != 100 {
		t.Fatalf("forge not restored from the ledger header")
	}
	if _, sold := g.reg.Market(101).Counts("tool.hammer"); sold != 1 {
		t.Fatalf("market counts lost")
	}
	if g.w.Money(101) != 500 {
		t.Fatalf("money: %d", g.w.Money(101))
	}
}

func TestSeedPagesRestoresAwayFromStore(t *testing.T) {
	f := newFixture(t)
	f.hire(t, 100, trade.VendorCrafter)
	if err := f.reg.AssignForge(100, 55); err != nil {
		t.Fatal(err)
	}
	var snap snapshot.SnapshotV1
	f.reg.Export(&snap, f.w)
	if snap.Vendors[0].Ledger == nil || snap.Vendors[0].Ledger.Header == "" {
		t.Fatalf("ledger copy missing: %+v", snap.Vendors[0])
	}

	g := newFixture(t)
	if err := SeedPages(g.pages, snap); err != nil {
		t.Fatal(err)
	}
	g.w.AddCreature(memhost.CreatureSpec{ID: 100, Name: "v"})
	err := g.reg.Restore(snap, func(id model.PartyID) (host.Creature, bool) {
		c, ok := g.w.Creature(id)
		return c, ok
	}, g.w.SetMoney)
	if err != nil {
		t.Fatalf("restore: %v", err)
	}
	if owner, ok := g.reg.ForgeOwner(55); !ok || owner != 100 {
		t.Fatalf("forge not restored from seeded pages")
	}
}
