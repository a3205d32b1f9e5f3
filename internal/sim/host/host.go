// Package host names the engine services the trade core consumes. The core
// never owns items or creatures; it reaches them only through these interfaces.
package host

import (
	"errors"

	"barterforge.ai/internal/protocol"
	"barterforge.ai/internal/sim/model"
)

var (
	ErrNoSuchItem   = errors.New("no such item")
	ErrNoSuchParty  = errors.New("no such party")
	ErrNoContainer  = errors.New("item not in an inventory")
	ErrInventoryCap = errors.New("inventory full")
)

// Items is the item and currency provider.
type Items interface {
	Item(id model.ItemID) (*model.Item, bool)
	CreateItem(tpl model.TemplateID, quality float64, owner model.PartyID) (*model.Item, error)
	DestroyItem(id model.ItemID)

	// CoinsFor mints escrow-owned coins whose values sum to amount.
	CoinsFor(amount int64) []*model.Item
	// ReturnCoin gives a coin back to the mint.
	ReturnCoin(coin *model.Item)
	ValueOf(tpl model.TemplateID) int64

	Inventory(party model.PartyID) []*model.Item
	InsertIntoInventory(party model.PartyID, it *model.Item) error
	// TakeFromInventory detaches it from whatever container the party keeps it
	// in. ErrNoContainer is returned when the item was not found there.
	TakeFromInventory(party model.PartyID, it *model.Item) error
	MailTo(party model.PartyID, it *model.Item) error
}

// Creature is the engine record of a trading party.
type Creature interface {
	ID() model.PartyID
	Name() string
	Connected() bool
	Dead() bool
	// Interactive is false for automated vendors, which stay connectable even
	// with no client attached.
	Interactive() bool
	CanCarry(grams int) bool
	FreeSlots() int

	Notify(text string)
	AddEvent(e protocol.Event)

	StartTrading()
	EndTrading()
	Trading() bool
}

// Controllers re-homes subordinate entities when their deed changes hands.
type Controllers interface {
	ReassignController(subject, controller model.PartyID) error
}

// Treasury receives the revenue splits of vendor sales.
type Treasury interface {
	DepositKing(amount int64)
	DepositUpkeep(amount int64)
}

// Shops keeps the money balance of vendor shops.
type Shops interface {
	Money(vendor model.PartyID) int64
	AdjustMoney(vendor model.PartyID, delta int64)
}
