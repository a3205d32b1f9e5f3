package main

import (
	"testing"

	persistlog "barterforge.ai/internal/persistence/log"
	"barterforge.ai/internal/persistence/snapshot"
	"barterforge.ai/internal/protocol"
	"barterforge.ai/internal/sim/catalogs"
	"barterforge.ai/internal/sim/market"
	"barterforge.ai/internal/sim/memhost"
	"barterforge.ai/internal/sim/model"
	"barterforge.ai/internal/sim/pricing"
	"barterforge.ai/internal/sim/registry"
	"barterforge.ai/internal/sim/trade"
	"barterforge.ai/internal/sim/tuning"
	"barterforge.ai/internal/sim/workbook"
)

func testCatalogs(t *testing.T) *catalogs.Catalogs {
	t.Helper()
	items, err := catalogs.NewItemCatalog([]catalogs.ItemDef{
		{ID: "coin.iron", Name: "iron coin", WeightGrams: 10, Value: 1, Coin: true},
		{ID: "coin.copper", Name: "copper coin", WeightGrams: 10, Value: 100, Coin: true},
		{ID: "tool.hammer", Name: "hammer", WeightGrams: 1500, Value: 40, Skill: 10015, Repairable: true, Tool: true},
	})
	if err != nil {
		t.Fatal(err)
	}
	return &catalogs.Catalogs{Items: items}
}

func act(id model.PartyID, insts ...protocol.InstantReq) []market.ActionEnvelope {
	return []market.ActionEnvelope{{PartyID: id, Act: protocol.ActMsg{Type: protocol.TypeAct, ProtocolVersion: protocol.Version, Instants: insts}}}
}

func TestReplayFromDisk(t *testing.T) {
	dir := t.TempDir()
	cats := testCatalogs(t)
	tu := tuning.Defaults()

	world := memhost.New(cats.Items)
	reg := registry.New(registry.Deps{
		Items:    world,
		Pages:    workbook.NewMemoryStore(),
		Tuning:   tu,
		Catalogs: cats,
		Prices:   pricing.NewTable(tu.Pricing),
	})
	env := &trade.Env{Items: world, Controllers: world, Treasury: world, Shops: world, Revenue: tu.Revenue}
	live := market.New(market.Config{ID: "m1", Tuning: tu}, world, reg, env, nil)

	if _, err := live.Hire(market.HireRequest{ID: 100, Name: "Trader", Kind: trade.VendorTrader}); err != nil {
		t.Fatal(err)
	}
	live.StepOnce([]market.JoinRequest{{PartyID: 1, Name: "alice"}}, nil, nil)
	start := live.FinalSnapshot()
	startPath := snapshot.Path(dir, start.Header.Tick)
	if err := snapshot.WriteSnapshot(startPath, start); err != nil {
		t.Fatal(err)
	}

	ticks := persistlog.NewTickLogger(dir)
	live.SetTickLogger(ticks)
	if _, err := live.Give(1, "tool.hammer", 25); err != nil {
		t.Fatal(err)
	}
	live.StepOnce(nil, nil, act(1, protocol.InstantReq{ID: "r", Type: protocol.InstantTradeRequest, With: 100}))
	for i := 0; i < 12; i++ {
		live.StepOnce(nil, nil, nil)
	}
	live.StepOnce(nil, []model.PartyID{1}, nil)
	live.StepOnce(nil, nil, nil)
	want := live.FinalSnapshot()
	if err := ticks.Close(); err != nil {
		t.Fatal(err)
	}

	snap, err := snapshot.ReadSnapshot(startPath)
	if err != nil {
		t.Fatal(err)
	}
	entries, err := persistlog.ReadTicks(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 {
		t.Fatalf("logged entries: %d", len(entries))
	}
	got, applied, err := replay(snap, entries, want.Header.Tick, cats, tu, nil)
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if applied != 2 || got.Header.Tick != want.Header.Tick {
		t.Fatalf("applied=%d tick=%d want tick %d", applied, got.Header.Tick, want.Header.Tick)
	}
	if snapshot.StateDigest(got) != snapshot.StateDigest(want) {
		t.Fatalf("replayed state differs")
	}
}
