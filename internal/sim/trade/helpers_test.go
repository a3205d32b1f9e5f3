package trade

import (
	"barterforge.ai/internal/sim/catalogs"
	"barterforge.ai/internal/sim/memhost"
	"barterforge.ai/internal/sim/model"
	"barterforge.ai/internal/sim/pricing"
	"barterforge.ai/internal/sim/tuning"
)

type fataler interface {
	Fatalf(format string, args ...any)
}

var testDefs = []catalogs.ItemDef{
	{ID: "coin.iron", Name: "iron coin", WeightGrams: 10, Value: 1, Coin: true},
	{ID: "coin.copper", Name: "copper coin", WeightGrams: 10, Value: 100, Coin: true},
	{ID: "coin.silver", Name: "silver coin", WeightGrams: 10, Value: 10000, Coin: true},
	{ID: "tool.hammer", Name: "hammer", WeightGrams: 1500, Value: 40, Skill: 10015, Material: "iron", Repairable: true, Tool: true},
	{ID: "food.bread", Name: "bread", WeightGrams: 200, Value: 3},
	{ID: "bag", Name: "satchel", WeightGrams: 300, Value: 10, Hollow: true},
	{ID: "bound.token", Name: "bound token", WeightGrams: 1, Value: 0, NoTrade: true},
	{ID: "royal.sceptre", Name: "sceptre", WeightGrams: 800, Value: 500, Royal: true},
	{ID: "deed.merchant", Name: "merchant contract", WeightGrams: 5, Value: 100},
}

type fixture struct {
	w   *memhost.World
	env *Env
}

func newFixture(t fataler) *fixture {
	cat, err := catalogs.NewItemCatalog(testDefs)
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}
	w := memhost.New(cat)
	env := &Env{
		Items:       w,
		Controllers: w,
		Treasury:    w,
		Shops:       w,
		Revenue:     tuning.Revenue{KingPct: 10, UpkeepPct: 5},
		Handlers:    NewFactory(),
	}
	return &fixture{w: w, env: env}
}

func (f *fixture) player(id model.PartyID, name string) (*Player, *memhost.Creature) {
	c := f.w.AddCreature(memhost.CreatureSpec{ID: id, Name: name, Interactive: true})
	return NewPlayer(c), c
}

func (f *fixture) vendor(id model.PartyID, name string, kind VendorKind) (*Vendor, *memhost.Creature) {
	c := f.w.AddCreature(memhost.CreatureSpec{ID: id, Name: name})
	return NewVendor(c, kind), c
}

func (f *fixture) give(t fataler, owner model.PartyID, tpl model.TemplateID, ql float64) *model.Item {
	it, err := f.w.Give(owner, tpl, ql)
	if err != nil {
		t.Fatalf("give %s: %v", tpl, err)
	}
	return it
}

func (f *fixture) withShops(markets map[model.PartyID]*pricing.Market) {
	f.env.Handlers.Register(VendorTrader, NewShopConstructor(func(id model.PartyID) *pricing.Market {
		return markets[id]
	}, tuning.Defaults().Pricing))
}

func hasEvent(c *memhost.Creature, typ string) bool {
	for _, e := range c.Events {
		if e["type"] == typ {
			return true
		}
	}
	return false
}

func memhostSpec(id model.PartyID, name string, carry int) memhost.CreatureSpec {
	return memhost.CreatureSpec{ID: id, Name: name, Interactive: true, MaxCarryGrams: carry}
}
