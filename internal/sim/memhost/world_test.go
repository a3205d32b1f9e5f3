package memhost

import (
	"errors"
	"testing"

	"barterforge.ai/internal/persistence/snapshot"
	"barterforge.ai/internal/sim/catalogs"
	"barterforge.ai/internal/sim/host"
	"barterforge.ai/internal/sim/model"
)

func newWorld(t *testing.T) *World {
	t.Helper()
	cat, err := catalogs.NewItemCatalog([]catalogs.ItemDef{
		{ID: "coin.iron", Name: "iron coin", WeightGrams: 10, Value: 1, Coin: true},
		{ID: "coin.copper", Name: "copper coin", WeightGrams: 10, Value: 100, Coin: true},
		{ID: "coin.silver", Name: "silver coin", WeightGrams: 10, Value: 10000, Coin: true},
		{ID: "stone", Name: "stone", WeightGrams: 5000, Value: 1},
	})
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}
	return New(cat)
}

func TestCoinsForMintsLargestFirst(t *testing.T) {
	w := newWorld(t)
	coins := w.CoinsFor(10239)
	counts := map[model.TemplateID]int{}
	var sum int64
	for _, c := range coins {
		if c.Owner != model.EscrowOwner {
			t.Fatalf("minted coin owner %d", c.Owner)
		}
		counts[c.Template]++
		sum += c.CoinValue
	}
	if sum != 10239 || counts["coin.silver"] != 1 || counts["coin.copper"] != 2 || counts["coin.iron"] != 39 {
		t.Fatalf("coins: %v sum %d", counts, sum)
	}
	if w.Minted != 10239 {
		t.Fatalf("minted: %d", w.Minted)
	}
	for _, c := range coins {
		w.ReturnCoin(c)
	}
	if w.Minted != 0 {
		t.Fatalf("minted after return: %d", w.Minted)
	}
	if len(w.CoinsFor(0)) != 0 {
		t.Fatalf("no coins for zero")
	}
}

func TestInventorySlotsAndCarry(t *testing.T) {
	w := newWorld(t)
	c := w.AddCreature(CreatureSpec{ID: 1, Name: "alice", Interactive: true, MaxCarryGrams: 6000, MaxSlots: 2})
	if _, err := w.Give(1, "stone", 50); err != nil {
		t.Fatal(err)
	}
	if c.CanCarry(5000) {
		t.Fatalf("10kg exceeds the 6kg limit")
	}
	if !c.CanCarry(1000) {
		t.Fatalf("6kg fits")
	}
	if _, err := w.Give(1, "coin.iron", 50); err != nil {
		t.Fatal(err)
	}
	if c.FreeSlots() != 0 {
		t.Fatalf("free slots: %d", c.FreeSlots())
	}
	if _, err := w.Give(1, "coin.iron", 50); !errors.Is(err, host.ErrInventoryCap) {
		t.Fatalf("expected inventory cap, got %v", err)
	}
	if len(w.Inventory(1)) != 2 {
		t.Fatalf("failed give must not leave an item behind")
	}
}

func TestTakeAndMail(t *testing.T) {
	w := newWorld(t)
	w.AddCreature(CreatureSpec{ID: 1, Name: "alice"})
	stone, err := w.Give(1, "stone", 50)
	if err != nil {
		t.Fatal(err)
	}
	if err := w.TakeFromInventory(1, stone); err != nil {
		t.Fatalf("take: %v", err)
	}
	if err := w.TakeFromInventory(1, stone); !errors.Is(err, host.ErrNoContainer) {
		t.Fatalf("second take: %v", err)
	}
	if err := w.MailTo(7, stone); err != nil {
		t.Fatalf("mail: %v", err)
	}
	if stone.Owner != 7 || len(w.Outbox) != 1 || w.Outbox[0] != (Mail{To: 7, Item: stone.ID}) {
		t.Fatalf("mail: owner %d outbox %+v", stone.Owner, w.Outbox)
	}
	w.DestroyItem(stone.ID)
	if err := w.MailTo(7, stone); !errors.Is(err, host.ErrNoSuchItem) {
		t.Fatalf("mail destroyed item: %v", err)
	}
}

func TestControllersAndNotify(t *testing.T) {
	w := newWorld(t)
	c := w.AddCreature(CreatureSpec{ID: 5, Name: "merchant"})
	if err := w.ReassignController(5, 1); err != nil || w.Controller(5) != 1 {
		t.Fatalf("reassign: %v controller %d", err, w.Controller(5))
	}
	if err := w.ReassignController(6, 1); !errors.Is(err, host.ErrNoSuchParty) {
		t.Fatalf("unknown subject: %v", err)
	}
	c.Notify("hello")
	if c.LastMessage() != "hello" || len(c.DrainEvents()) != 1 || len(c.Events) != 0 {
		t.Fatalf("notify did not buffer one event")
	}
}

func TestStateRoundTrip(t *testing.T) {
	w := newWorld(t)
	w.AddCreature(CreatureSpec{ID: 1, Name: "alice", Interactive: true, MaxSlots: 5})
	w.AddCreature(CreatureSpec{ID: 100, Name: "smith"})
	stone, _ := w.Give(1, "stone", 42)
	coin, _ := w.CreateItem("coin.copper", 50, 1)
	if _, err := w.Give(100, "coin.iron", 50); err != nil {
		t.Fatal(err)
	}
	stone.Insert(coin)
	stone.Deed = &model.Deed{Subject: 100}
	tok, _ := w.CreateItem(model.OptionTemplate, 0, 100)
	w.King = 9

	var snap snapshot.SnapshotV1
	w.ExportState(&snap)
	for _, iv := range snap.Items {
		if iv.ID == int64(tok.ID) {
			t.Fatalf("menu token exported")
		}
	}

	back := newWorld(t)
	if err := back.ImportState(snap); err != nil {
		t.Fatalf("import: %v", err)
	}
	got, ok := back.Item(stone.ID)
	if !ok || got.Quality != 42 || got.Deed == nil || got.Deed.Subject != 100 {
		t.Fatalf("stone: %+v", got)
	}
	if len(got.Contents()) != 1 || got.Contents()[0].ID != coin.ID {
		t.Fatalf("containment lost")
	}
	if back.CoinTotal(1) != 100 || back.King != 9 {
		t.Fatalf("coins %d king %d", back.CoinTotal(1), back.King)
	}
	alice, ok := back.Creature(1)
	if !ok || alice.Connected() || alice.FreeSlots() != 4 {
		t.Fatalf("alice restored wrong")
	}
	smith, _ := back.Creature(100)
	if !smith.Connected() {
		t.Fatalf("vendors stay connectable")
	}
	fresh, _ := back.CreateItem("stone", 1, 1)
	if fresh.ID <= tok.ID {
		t.Fatalf("item ids must not be reused: %d", fresh.ID)
	}
}
