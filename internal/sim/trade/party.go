package trade

import (
	"barterforge.ai/internal/sim/host"
	"barterforge.ai/internal/sim/model"
)

type VendorKind string

const (
	// VendorTrader is a system shop that buys and sells for money.
	VendorTrader VendorKind = "trader"
	// VendorCrafter takes items in for paid improvement.
	VendorCrafter VendorKind = "crafter"
	// VendorMerchant is a personal merchant whose coins stay in its inventory.
	VendorMerchant VendorKind = "merchant"
)

// Party is one side of a session. The set of implementations is closed:
// *Player and *Vendor.
type Party interface {
	host.Creature
	// ReceiveCoin hands a coin to the party. absorbed reports that the coin
	// left circulation into the party's shop account.
	ReceiveCoin(env *Env, coin *model.Item) (absorbed bool, err error)
	ReceiveGoods(env *Env, it *model.Item) error

	vendor() *Vendor
}

type Player struct {
	host.Creature
}

func NewPlayer(c host.Creature) *Player { return &Player{Creature: c} }

func (p *Player) ReceiveCoin(env *Env, coin *model.Item) (bool, error) {
	return false, env.Items.InsertIntoInventory(p.ID(), coin)
}

func (p *Player) ReceiveGoods(env *Env, it *model.Item) error {
	return env.Items.InsertIntoInventory(p.ID(), it)
}

func (p *Player) vendor() *Vendor { return nil }

type Vendor struct {
	host.Creature
	Kind VendorKind
}

func NewVendor(c host.Creature, kind VendorKind) *Vendor {
	return &Vendor{Creature: c, Kind: kind}
}

func (v *Vendor) ReceiveCoin(env *Env, coin *model.Item) (bool, error) {
	if !v.Shop() {
		return false, env.Items.InsertIntoInventory(v.ID(), coin)
	}
	env.Items.ReturnCoin(coin)
	return true, nil
}

func (v *Vendor) ReceiveGoods(env *Env, it *model.Item) error {
	return env.Items.InsertIntoInventory(v.ID(), it)
}

func (v *Vendor) vendor() *Vendor { return v }

// Shop reports whether the vendor keeps its money in a shop account rather
// than as coins.
func (v *Vendor) Shop() bool { return v.Kind != VendorMerchant }

func AsVendor(p Party) (*Vendor, bool) {
	if p == nil {
		return nil, false
	}
	v := p.vendor()
	return v, v != nil
}
