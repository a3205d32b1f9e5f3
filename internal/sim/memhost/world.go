// Package memhost is an in-memory engine host: item store, inventories, mail,
// mint, shop money and treasury. The market runtime and tests run on it.
package memhost

import (
	"fmt"
	"sort"

	"barterforge.ai/internal/sim/catalogs"
	"barterforge.ai/internal/sim/host"
	"barterforge.ai/internal/sim/model"
)

type Mail struct {
	To   model.PartyID
	Item model.ItemID
}

type World struct {
	catalog catalogs.ItemCatalog

	nextItem  model.ItemID
	items     map[model.ItemID]*model.Item
	inv       map[model.PartyID][]*model.Item
	creatures map[model.PartyID]*Creature

	shops       map[model.PartyID]int64
	controllers map[model.PartyID]model.PartyID

	Outbox []Mail
	King   int64
	Upkeep int64
	// Minted is the net currency value currently in escrow or circulation
	// that came from the mint.
	Minted int64
}

func New(catalog catalogs.ItemCatalog) *World {
	return &World{
		catalog:     catalog,
		nextItem:    1,
		items:       map[model.ItemID]*model.Item{},
		inv:         map[model.PartyID][]*model.Item{},
		creatures:   map[model.PartyID]*Creature{},
		shops:       map[model.PartyID]int64{},
		controllers: map[model.PartyID]model.PartyID{},
	}
}

var (
	_ host.Items       = (*World)(nil)
	_ host.Controllers = (*World)(nil)
	_ host.Treasury    = (*World)(nil)
	_ host.Shops       = (*World)(nil)
)

func (w *World) Catalog() catalogs.ItemCatalog { return w.catalog }

func (w *World) Item(id model.ItemID) (*model.Item, bool) {
	it, ok := w.items[id]
	return it, ok
}

func (w *World) CreateItem(tpl model.TemplateID, quality float64, owner model.PartyID) (*model.Item, error) {
	def, ok := w.catalog.Def(tpl)
	if !ok && tpl != model.OptionTemplate {
		return nil, fmt.Errorf("unknown item template %q", tpl)
	}
	it := &model.Item{
		ID:          w.nextItem,
		Template:    tpl,
		Name:        def.Name,
		Material:    def.Material,
		Quality:     quality,
		WeightGrams: def.WeightGrams,
		Coin:        def.Coin,
		Owner:       owner,
		Flags: model.ItemFlags{
			NoTrade:    def.NoTrade,
			Repairable: def.Repairable,
			Royal:      def.Royal,
			Tool:       def.Tool,
		},
	}
	if def.Coin {
		it.CoinValue = def.Value
	}
	if it.Name == "" {
		it.Name = string(tpl)
	}
	w.nextItem++
	w.items[it.ID] = it
	return it, nil
}

// Restore registers an item with a fixed id, as loaded from a snapshot.
func (w *World) Restore(it *model.Item) {
	w.items[it.ID] = it
	if it.ID >= w.nextItem {
		w.nextItem = it.ID + 1
	}
}

func (w *World) DestroyItem(id model.ItemID) {
	it, ok := w.items[id]
	if !ok {
		return
	}
	it.Walk(func(x *model.Item) {
		w.removeFromInventory(x.Owner, x)
		delete(w.items, x.ID)
	})
	it.DetachFromParent()
}

func (w *World) CoinsFor(amount int64) []*model.Item {
	var out []*model.Item
	if amount <= 0 {
		return out
	}
	for _, d := range w.catalog.Coins() {
		for amount >= d.Value {
			c, err := w.CreateItem(d.ID, 50, model.EscrowOwner)
			if err != nil {
				return out
			}
			out = append(out, c)
			amount -= d.Value
			w.Minted += d.Value
		}
	}
	return out
}

func (w *World) ReturnCoin(coin *model.Item) {
	if coin == nil || !coin.Coin {
		return
	}
	if _, ok := w.items[coin.ID]; !ok {
		return
	}
	w.Minted -= coin.CoinValue
	w.DestroyItem(coin.ID)
}

func (w *World) ValueOf(tpl model.TemplateID) int64 {
	if d, ok := w.catalog.Def(tpl); ok {
		return d.Value
	}
	return 0
}

// Inventory returns the party's top-level items ordered by id.
func (w *World) Inventory(party model.PartyID) []*model.Item {
	out := append([]*model.Item(nil), w.inv[party]...)
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (w *World) InsertIntoInventory(party model.PartyID, it *model.Item) error {
	if it == nil {
		return host.ErrNoSuchItem
	}
	c, ok := w.creatures[party]
	if !ok {
		return host.ErrNoSuchParty
	}
	if _, ok := w.items[it.ID]; !ok {
		return host.ErrNoSuchItem
	}
	if c.maxSlots > 0 && len(w.inv[party]) >= c.maxSlots {
		return host.ErrInventoryCap
	}
	it.DetachFromParent()
	it.SetOwnerDeep(party)
	w.inv[party] = append(w.inv[party], it)
	return nil
}

func (w *World) TakeFromInventory(party model.PartyID, it *model.Item) error {
	if it == nil {
		return host.ErrNoSuchItem
	}
	if it.DetachFromParent() {
		return nil
	}
	if w.removeFromInventory(party, it) {
		return nil
	}
	return host.ErrNoContainer
}

func (w *World) removeFromInventory(party model.PartyID, it *model.Item) bool {
	list := w.inv[party]
	for i, x := range list {
		if x == it {
			w.inv[party] = append(list[:i], list[i+1:]...)
			return true
		}
	}
	return false
}

// MailTo detaches the item from its holder's inventory and posts it.
func (w *World) MailTo(party model.PartyID, it *model.Item) error {
	if it == nil {
		return host.ErrNoSuchItem
	}
	if _, ok := w.items[it.ID]; !ok {
		return host.ErrNoSuchItem
	}
	if !it.DetachFromParent() {
		w.removeFromInventory(it.Owner, it)
	}
	it.SetOwnerDeep(party)
	w.Outbox = append(w.Outbox, Mail{To: party, Item: it.ID})
	return nil
}

func (w *World) ReassignController(subject, controller model.PartyID) error {
	if _, ok := w.creatures[subject]; !ok {
		return host.ErrNoSuchParty
	}
	w.controllers[subject] = controller
	return nil
}

func (w *World) Controller(subject model.PartyID) model.PartyID { return w.controllers[subject] }

func (w *World) DepositKing(amount int64)   { w.King += amount }
func (w *World) DepositUpkeep(amount int64) { w.Upkeep += amount }

func (w *World) Money(vendor model.PartyID) int64 { return w.shops[vendor] }
func (w *World) AdjustMoney(vendor model.PartyID, delta int64) {
	w.shops[vendor] += delta
}

// Give creates an item straight into a party's inventory.
func (w *World) Give(party model.PartyID, tpl model.TemplateID, quality float64) (*model.Item, error) {
	it, err := w.CreateItem(tpl, quality, party)
	if err != nil {
		return nil, err
	}
	if err := w.InsertIntoInventory(party, it); err != nil {
		w.DestroyItem(it.ID)
		return nil, err
	}
	return it, nil
}

// CoinTotal sums the coin value a party carries at top level.
func (w *World) CoinTotal(party model.PartyID) int64 {
	var total int64
	for _, it := range w.inv[party] {
		it.Walk(func(x *model.Item) {
			if x.Coin {
				total += x.CoinValue
			}
		})
	}
	return total
}

func (w *World) carriedGrams(party model.PartyID) int {
	total := 0
	for _, it := range w.inv[party] {
		total += it.TotalWeight()
	}
	return total
}
