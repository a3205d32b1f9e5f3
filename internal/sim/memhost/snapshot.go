package memhost

import (
	"fmt"
	"sort"

	"barterforge.ai/internal/persistence/snapshot"
	"barterforge.ai/internal/sim/model"
)

// ExportState fills the host part of snap. Menu tokens are session state and
// are left out.
func (w *World) ExportState(snap *snapshot.SnapshotV1) {
	ids := make([]model.ItemID, 0, len(w.items))
	for id, it := range w.items {
		if it.Option != nil {
			continue
		}
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	snap.Items = snap.Items[:0]
	for _, id := range ids {
		it := w.items[id]
		iv := snapshot.ItemV1{
			ID:          int64(it.ID),
			Template:    string(it.Template),
			Name:        it.Name,
			Material:    it.Material,
			Quality:     it.Quality,
			Damage:      it.Damage,
			WeightGrams: it.WeightGrams,
			Coin:        it.Coin,
			CoinValue:   it.CoinValue,
			Owner:       int64(it.Owner),
			NoTrade:     it.Flags.NoTrade,
			Repairable:  it.Flags.Repairable,
			Newbie:      it.Flags.Newbie,
			Royal:       it.Flags.Royal,
			Tool:        it.Flags.Tool,
		}
		if p := it.Parent(); p != nil {
			iv.Parent = int64(p.ID)
		}
		if it.Deed != nil {
			iv.DeedSubject = int64(it.Deed.Subject)
		}
		snap.Items = append(snap.Items, iv)
	}

	parties := make([]model.PartyID, 0, len(w.inv))
	for p := range w.inv {
		parties = append(parties, p)
	}
	sort.Slice(parties, func(i, j int) bool { return parties[i] < parties[j] })
	snap.Inventories = snap.Inventories[:0]
	for _, p := range parties {
		inv := snapshot.InventoryV1{Party: int64(p)}
		for _, it := range w.inv[p] {
			inv.Items = append(inv.Items, int64(it.ID))
		}
		snap.Inventories = append(snap.Inventories, inv)
	}

	cids := make([]model.PartyID, 0, len(w.creatures))
	for id := range w.creatures {
		cids = append(cids, id)
	}
	sort.Slice(cids, func(i, j int) bool { return cids[i] < cids[j] })
	snap.Creatures = snap.Creatures[:0]
	for _, id := range cids {
		c := w.creatures[id]
		snap.Creatures = append(snap.Creatures, snapshot.CreatureV1{
			ID:            int64(c.id),
			Name:          c.name,
			Interactive:   c.interactive,
			MaxCarryGrams: c.maxCarryGrams,
			MaxSlots:      c.maxSlots,
			Dead:          c.dead,
		})
	}

	snap.Outbox = snap.Outbox[:0]
	for _, m := range w.Outbox {
		snap.Outbox = append(snap.Outbox, snapshot.MailV1{To: int64(m.To), Item: int64(m.Item)})
	}
	snap.Treasury = snapshot.TreasuryV1{King: w.King, Upkeep: w.Upkeep, Minted: w.Minted}
	snap.Counters = snapshot.CountersV1{NextItem: int64(w.nextItem)}
}

// ImportState replaces the world contents with snap. Interactive creatures
// come back disconnected until their client says hello again.
func (w *World) ImportState(snap snapshot.SnapshotV1) error {
	w.items = map[model.ItemID]*model.Item{}
	w.inv = map[model.PartyID][]*model.Item{}
	w.creatures = map[model.PartyID]*Creature{}
	w.nextItem = 1

	for _, iv := range snap.Items {
		it := &model.Item{
			ID:          model.ItemID(iv.ID),
			Template:    model.TemplateID(iv.Template),
			Name:        iv.Name,
			Material:    iv.Material,
			Quality:     iv.Quality,
			Damage:      iv.Damage,
			WeightGrams: iv.WeightGrams,
			Coin:        iv.Coin,
			CoinValue:   iv.CoinValue,
			Owner:       model.PartyID(iv.Owner),
			Flags: model.ItemFlags{
				NoTrade:    iv.NoTrade,
				Repairable: iv.Repairable,
				Newbie:     iv.Newbie,
				Royal:      iv.Royal,
				Tool:       iv.Tool,
			},
		}
		if iv.DeedSubject != 0 {
			it.Deed = &model.Deed{Subject: model.PartyID(iv.DeedSubject)}
		}
		w.Restore(it)
	}
	for _, iv := range snap.Items {
		if iv.Parent == 0 {
			continue
		}
		parent, ok := w.items[model.ItemID(iv.Parent)]
		if !ok {
			return fmt.Errorf("item %d: missing parent %d", iv.ID, iv.Parent)
		}
		parent.Insert(w.items[model.ItemID(iv.ID)])
	}

	for _, cv := range snap.Creatures {
		c := w.AddCreature(CreatureSpec{
			ID:            model.PartyID(cv.ID),
			Name:          cv.Name,
			Interactive:   cv.Interactive,
			MaxCarryGrams: cv.MaxCarryGrams,
			MaxSlots:      cv.MaxSlots,
		})
		c.dead = cv.Dead
		c.connected = !cv.Interactive
	}
	for _, inv := range snap.Inventories {
		for _, id := range inv.Items {
			it, ok := w.items[model.ItemID(id)]
			if !ok {
				return fmt.Errorf("inventory %d: missing item %d", inv.Party, id)
			}
			w.inv[model.PartyID(inv.Party)] = append(w.inv[model.PartyID(inv.Party)], it)
		}
	}

	w.Outbox = w.Outbox[:0]
	for _, m := range snap.Outbox {
		w.Outbox = append(w.Outbox, Mail{To: model.PartyID(m.To), Item: model.ItemID(m.Item)})
	}
	w.King, w.Upkeep, w.Minted = snap.Treasury.King, snap.Treasury.Upkeep, snap.Treasury.Minted
	if next := model.ItemID(snap.Counters.NextItem); next > w.nextItem {
		w.nextItem = next
	}
	return nil
}

// SetMoney overwrites a shop balance, as restored from a snapshot.
func (w *World) SetMoney(vendor model.PartyID, money int64) { w.shops[vendor] = money }
